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
)

// InsertRowStatement writes one timestamp of a device.
type InsertRowStatement struct {
	writeStatement
	Device       metapath.PartialPath
	Time         int64
	Measurements []string
	Values       []interface{}
	Aligned      bool
}

func (*InsertRowStatement) Kind() Kind { return InsertRowKind }

// InsertTabletStatement writes a column block of a device. Columns[i] holds
// the values of Measurements[i], one per entry of Times.
type InsertTabletStatement struct {
	writeStatement
	Device       metapath.PartialPath
	Measurements []string
	Times        []int64
	Columns      [][]interface{}
	Aligned      bool
}

func (*InsertTabletStatement) Kind() Kind { return InsertTabletKind }

func (s *InsertTabletStatement) RowCount() int {
	return len(s.Times)
}

type InsertRowsStatement struct {
	writeStatement
	Rows []*InsertRowStatement
}

func (*InsertRowsStatement) Kind() Kind { return InsertRowsKind }

type InsertRowsOfOneDeviceStatement struct {
	writeStatement
	Device metapath.PartialPath
	Rows   []*InsertRowStatement
}

func (*InsertRowsOfOneDeviceStatement) Kind() Kind { return InsertRowsOfOneDeviceKind }

type InsertMultiTabletsStatement struct {
	writeStatement
	Tablets []*InsertTabletStatement
}

func (*InsertMultiTabletsStatement) Kind() Kind { return InsertMultiTabletsKind }
