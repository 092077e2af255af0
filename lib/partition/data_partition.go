/*
Copyright 2022 Huawei Cloud Computing Technologies Co., Ltd.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

 http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package partition

import (
	"github.com/tsgrid/tsgrid/lib/metapath"
)

// StorageGroupResolver returns the storage group a device belongs to.
type StorageGroupResolver interface {
	StorageGroupOf(path metapath.PartialPath) (metapath.PartialPath, error)
}

// DataPartition routes device writes through the partition table.
type DataPartition struct {
	table    Table
	resolver StorageGroupResolver
}

func NewDataPartition(table Table, resolver StorageGroupResolver) *DataPartition {
	return &DataPartition{table: table, resolver: resolver}
}

// DataRegionReplicaSetForWriting returns the group that stores the rows of
// device falling into slot.
func (p *DataPartition) DataRegionReplicaSetForWriting(device metapath.PartialPath, slot TimePartitionSlot) (*PartitionGroup, error) {
	sg, err := p.resolver.StorageGroupOf(device)
	if err != nil {
		return nil, err
	}
	return p.table.Route(sg.String(), slot.StartTime)
}

// TimePartitionInterval is the slot width of the table, 0 when the table
// does not split storage groups by time.
func (p *DataPartition) TimePartitionInterval() int64 {
	if t, ok := p.table.(interface{ TimePartitionInterval() int64 }); ok {
		return t.TimePartitionInterval()
	}
	return 0
}
