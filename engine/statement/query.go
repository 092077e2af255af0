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
	"fmt"

	"github.com/samber/lo"
	"github.com/tsgrid/tsgrid/lib/metapath"
)

type Ordering uint8

const (
	TimeAsc Ordering = iota
	TimeDesc
)

func (o Ordering) String() string {
	if o == TimeDesc {
		return "TIME DESC"
	}
	return "TIME ASC"
}

// ResultColumn is one selected series, optionally wrapped by an aggregation.
type ResultColumn struct {
	Path        metapath.PartialPath
	Aggregation string
	Alias       string
}

func NewResultColumn(path string) ResultColumn {
	return ResultColumn{Path: metapath.MustParse(path)}
}

func (c ResultColumn) Device() string {
	return c.Path.Device().String()
}

func (c ResultColumn) Name() string {
	return c.named(c.Path)
}

func (c ResultColumn) named(p metapath.PartialPath) string {
	if c.Alias != "" {
		return c.Alias
	}
	if c.Aggregation != "" {
		return fmt.Sprintf("%s(%s)", c.Aggregation, p)
	}
	return p.String()
}

type WhereCondition struct {
	Predicate string
}

type GroupByLevelComponent struct {
	// Levels are the path depths kept in the output column, root is depth 0.
	Levels []int
}

// GroupedPath keeps the root, the measurement and the nodes at the retained
// levels, replacing every other node with *.
func (c *GroupByLevelComponent) GroupedPath(p metapath.PartialPath) metapath.PartialPath {
	nodes := p.Nodes()
	for i := 1; i < len(nodes)-1; i++ {
		if !lo.Contains(c.Levels, i) {
			nodes[i] = metapath.OneLevelWildcard
		}
	}
	return metapath.New(nodes...)
}

// GroupedColumn maps an input column onto the output column it rolls up into.
type GroupedColumn struct {
	Source  string
	Display string
}

func (c *GroupByLevelComponent) Columns(cols []ResultColumn) []GroupedColumn {
	return lo.Map(cols, func(col ResultColumn, _ int) GroupedColumn {
		return GroupedColumn{Source: col.Name(), Display: col.named(c.GroupedPath(col.Path))}
	})
}

type FillPolicy uint8

const (
	FillPrevious FillPolicy = iota
	FillLinear
	FillValue
)

type FillComponent struct {
	Policy FillPolicy
	Value  string
}

type NullPolicy uint8

const (
	NoNullFilter NullPolicy = iota
	ContainsNull
	AllNull
)

type FilterNullComponent struct {
	Policy NullPolicy
	// Columns restricts the check, all output columns are checked when empty.
	Columns []string
}

type QueryStatement struct {
	ResultColumns []ResultColumn
	AlignByDevice bool
	Where         *WhereCondition
	GroupByLevel  *GroupByLevelComponent
	Fill          *FillComponent
	FilterNull    *FilterNullComponent
	Order         Ordering
	Limit         int
	Offset        int
}

func (*QueryStatement) Kind() Kind    { return QueryKind }
func (*QueryStatement) IsQuery() bool { return true }

// Devices lists the devices of the result columns in first appearance order.
func (s *QueryStatement) Devices() []string {
	return lo.Uniq(lo.Map(s.ResultColumns, func(c ResultColumn, _ int) string {
		return c.Device()
	}))
}

// MeasurementName is the column name under ALIGN BY DEVICE, where the device
// is reported in its own column.
func (c ResultColumn) MeasurementName() string {
	return c.named(metapath.New(c.Path.Measurement()))
}
