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

package executor

import (
	"github.com/samber/lo"
	"github.com/tsgrid/tsgrid/engine/hybridqp"
	"github.com/tsgrid/tsgrid/engine/statement"
	"github.com/tsgrid/tsgrid/lib/metapath"
)

// DeviceColumn is the first output column of a DeviceMergeNode.
const DeviceColumn = "Device"

// SourceNode reads one series.
type SourceNode struct {
	planNodeBase
	Path        metapath.PartialPath
	Aggregation string
	Column      string
	Order       statement.Ordering
}

func NewSourceNode(id hybridqp.PlanNodeID, col statement.ResultColumn, order statement.Ordering) *SourceNode {
	return &SourceNode{
		planNodeBase: newPlanNodeBase(id, SourceNodeType, hybridqp.NoChild),
		Path:         col.Path,
		Aggregation:  col.Aggregation,
		Column:       col.Name(),
		Order:        order,
	}
}

func (n *SourceNode) OutputColumns() []string {
	return []string{n.Column}
}

func (n *SourceNode) Clone() hybridqp.QueryNode {
	c := *n
	c.planNodeBase = n.clone()
	return &c
}

// TimeJoinNode merges its inputs into rows aligned by timestamp.
type TimeJoinNode struct {
	planNodeBase
	Order statement.Ordering
}

func NewTimeJoinNode(id hybridqp.PlanNodeID, order statement.Ordering) *TimeJoinNode {
	return &TimeJoinNode{planNodeBase: newPlanNodeBase(id, TimeJoinNodeType, hybridqp.UnboundedChildren), Order: order}
}

func (n *TimeJoinNode) OutputColumns() []string {
	var cols []string
	for _, c := range n.children {
		cols = append(cols, c.OutputColumns()...)
	}
	return cols
}

func (n *TimeJoinNode) Clone() hybridqp.QueryNode {
	c := *n
	c.planNodeBase = n.clone()
	return &c
}

// DeviceMergeNode concatenates per device sub-plans. Devices[i] names the
// device of the i-th input.
type DeviceMergeNode struct {
	planNodeBase
	Devices      []string
	Measurements []string
	Order        statement.Ordering
}

func NewDeviceMergeNode(id hybridqp.PlanNodeID, measurements []string, order statement.Ordering) *DeviceMergeNode {
	return &DeviceMergeNode{
		planNodeBase: newPlanNodeBase(id, DeviceMergeNodeType, hybridqp.UnboundedChildren),
		Measurements: measurements,
		Order:        order,
	}
}

// AddDevice appends the sub-plan of device.
func (n *DeviceMergeNode) AddDevice(device string, child PlanNode) {
	n.AddChild(child)
	n.Devices = append(n.Devices, device)
}

func (n *DeviceMergeNode) OutputColumns() []string {
	return append([]string{DeviceColumn}, n.Measurements...)
}

func (n *DeviceMergeNode) Clone() hybridqp.QueryNode {
	c := *n
	c.planNodeBase = n.clone()
	c.Devices = append([]string(nil), n.Devices...)
	return &c
}

type FilterNode struct {
	planNodeBase
	Predicate string
}

func NewFilterNode(id hybridqp.PlanNodeID, child PlanNode, predicate string) *FilterNode {
	n := &FilterNode{planNodeBase: newPlanNodeBase(id, FilterNodeType, hybridqp.OneChild), Predicate: predicate}
	n.AddChild(child)
	return n
}

func (n *FilterNode) OutputColumns() []string {
	return n.firstInputColumns()
}

func (n *FilterNode) Clone() hybridqp.QueryNode {
	c := *n
	c.planNodeBase = n.clone()
	return &c
}

// GroupByLevelNode rolls input columns up into the columns of their retained levels.
type GroupByLevelNode struct {
	planNodeBase
	Levels  []int
	Columns []statement.GroupedColumn
}

func NewGroupByLevelNode(id hybridqp.PlanNodeID, child PlanNode, levels []int, columns []statement.GroupedColumn) *GroupByLevelNode {
	n := &GroupByLevelNode{
		planNodeBase: newPlanNodeBase(id, GroupByLevelNodeType, hybridqp.OneChild),
		Levels:       levels,
		Columns:      columns,
	}
	n.AddChild(child)
	return n
}

// OutputColumns is the set of display columns in first appearance order.
func (n *GroupByLevelNode) OutputColumns() []string {
	return lo.Uniq(lo.Map(n.Columns, func(c statement.GroupedColumn, _ int) string {
		return c.Display
	}))
}

// DisplayOf returns the output column source rolls up into.
func (n *GroupByLevelNode) DisplayOf(source string) (string, bool) {
	c, ok := lo.Find(n.Columns, func(c statement.GroupedColumn) bool {
		return c.Source == source
	})
	return c.Display, ok
}

func (n *GroupByLevelNode) Clone() hybridqp.QueryNode {
	c := *n
	c.planNodeBase = n.clone()
	return &c
}

type FilterNullNode struct {
	planNodeBase
	Policy  statement.NullPolicy
	Columns []string
}

func NewFilterNullNode(id hybridqp.PlanNodeID, child PlanNode, policy statement.NullPolicy, columns []string) *FilterNullNode {
	n := &FilterNullNode{
		planNodeBase: newPlanNodeBase(id, FilterNullNodeType, hybridqp.OneChild),
		Policy:       policy,
		Columns:      columns,
	}
	n.AddChild(child)
	return n
}

func (n *FilterNullNode) OutputColumns() []string {
	return n.firstInputColumns()
}

func (n *FilterNullNode) Clone() hybridqp.QueryNode {
	c := *n
	c.planNodeBase = n.clone()
	return &c
}

type SortNode struct {
	planNodeBase
	Order statement.Ordering
}

func NewSortNode(id hybridqp.PlanNodeID, child PlanNode, order statement.Ordering) *SortNode {
	n := &SortNode{planNodeBase: newPlanNodeBase(id, SortNodeType, hybridqp.OneChild), Order: order}
	n.AddChild(child)
	return n
}

func (n *SortNode) OutputColumns() []string {
	return n.firstInputColumns()
}

func (n *SortNode) Clone() hybridqp.QueryNode {
	c := *n
	c.planNodeBase = n.clone()
	return &c
}

type LimitNode struct {
	planNodeBase
	Limit int
}

func NewLimitNode(id hybridqp.PlanNodeID, child PlanNode, limit int) *LimitNode {
	n := &LimitNode{planNodeBase: newPlanNodeBase(id, LimitNodeType, hybridqp.OneChild), Limit: limit}
	n.AddChild(child)
	return n
}

func (n *LimitNode) OutputColumns() []string {
	return n.firstInputColumns()
}

func (n *LimitNode) Clone() hybridqp.QueryNode {
	c := *n
	c.planNodeBase = n.clone()
	return &c
}

type OffsetNode struct {
	planNodeBase
	Offset int
}

func NewOffsetNode(id hybridqp.PlanNodeID, child PlanNode, offset int) *OffsetNode {
	n := &OffsetNode{planNodeBase: newPlanNodeBase(id, OffsetNodeType, hybridqp.OneChild), Offset: offset}
	n.AddChild(child)
	return n
}

func (n *OffsetNode) OutputColumns() []string {
	return n.firstInputColumns()
}

func (n *OffsetNode) Clone() hybridqp.QueryNode {
	c := *n
	c.planNodeBase = n.clone()
	return &c
}
