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

package statement

import (
	"github.com/tsgrid/tsgrid/lib/metapath"
	"github.com/tsgrid/tsgrid/lib/partition"
	"github.com/tsgrid/tsgrid/lib/schema"
)

type Kind uint8

const (
	UnknownKind Kind = iota
	QueryKind
	InsertRowKind
	InsertTabletKind
	InsertRowsKind
	InsertMultiTabletsKind
	InsertRowsOfOneDeviceKind
	CreateTimeSeriesKind
	CreateAlignedTimeSeriesKind
	AlterTimeSeriesKind
	AuthorKind
)

var kindNames = map[Kind]string{
	QueryKind:                   "QUERY",
	InsertRowKind:               "INSERT_ROW",
	InsertTabletKind:            "INSERT_TABLET",
	InsertRowsKind:              "INSERT_ROWS",
	InsertMultiTabletsKind:      "INSERT_MULTI_TABLETS",
	InsertRowsOfOneDeviceKind:   "INSERT_ROWS_OF_ONE_DEVICE",
	CreateTimeSeriesKind:        "CREATE_TIMESERIES",
	CreateAlignedTimeSeriesKind: "CREATE_ALIGNED_TIMESERIES",
	AlterTimeSeriesKind:         "ALTER_TIMESERIES",
	AuthorKind:                  "AUTHOR",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "UNKNOWN"
}

// Statement is an analyzed statement handed to the planner.
type Statement interface {
	Kind() Kind
	// IsQuery reports whether the statement reads data.
	IsQuery() bool
}

// SchemaTree resolves measurement schemas of the devices a statement writes.
type SchemaTree interface {
	SearchMeasurementSchema(device metapath.PartialPath, measurements []string) ([]schema.MeasurementSchema, error)
}

// PartitionInfo routes the rows of a device to the group storing them.
type PartitionInfo interface {
	DataRegionReplicaSetForWriting(device metapath.PartialPath, slot partition.TimePartitionSlot) (*partition.PartitionGroup, error)
	TimePartitionInterval() int64
}

// Analysis is the outcome of analyzing one statement.
type Analysis struct {
	Statement     Statement
	SchemaTree    SchemaTree
	DataPartition PartitionInfo
}

type writeStatement struct{}

func (writeStatement) IsQuery() bool { return false }
