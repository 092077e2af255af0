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
)

// LogicalPlanBuilder threads the current root through the query pipeline.
// Every Plan* step returns a new builder and leaves the receiver untouched.
// A step whose clause is absent or default returns the receiver unchanged.
type LogicalPlanBuilder struct {
	ctx  *hybridqp.QueryContext
	root PlanNode
}

func NewLogicalPlanBuilder(ctx *hybridqp.QueryContext) LogicalPlanBuilder {
	return LogicalPlanBuilder{ctx: ctx}
}

func (b LogicalPlanBuilder) Root() PlanNode {
	return b.root
}

func (b LogicalPlanBuilder) withRoot(root PlanNode) LogicalPlanBuilder {
	b.root = root
	return b
}

// PlanRawDataSource creates one SourceNode per result column. With
// alignByDevice the sources of each device go under their own TimeJoinNode
// below a DeviceMergeNode, otherwise all of them go under one TimeJoinNode.
func (b LogicalPlanBuilder) PlanRawDataSource(cols []statement.ResultColumn, alignByDevice bool, order statement.Ordering) LogicalPlanBuilder {
	if !alignByDevice {
		join := NewTimeJoinNode(b.ctx.GenPlanNodeID(), order)
		for _, col := range cols {
			join.AddChild(NewSourceNode(b.ctx.GenPlanNodeID(), col, order))
		}
		return b.withRoot(join)
	}

	byDevice := lo.GroupBy(cols, func(c statement.ResultColumn) string {
		return c.Device()
	})
	devices := lo.Uniq(lo.Map(cols, func(c statement.ResultColumn, _ int) string {
		return c.Device()
	}))
	measurements := lo.Uniq(lo.Map(cols, func(c statement.ResultColumn, _ int) string {
		return c.MeasurementName()
	}))
	merge := NewDeviceMergeNode(b.ctx.GenPlanNodeID(), measurements, order)
	for _, device := range devices {
		join := NewTimeJoinNode(b.ctx.GenPlanNodeID(), order)
		for _, col := range byDevice[device] {
			join.AddChild(NewSourceNode(b.ctx.GenPlanNodeID(), col, order))
		}
		merge.AddDevice(device, join)
	}
	return b.withRoot(merge)
}

func (b LogicalPlanBuilder) PlanFilter(where *statement.WhereCondition) LogicalPlanBuilder {
	if where == nil || where.Predicate == "" {
		return b
	}
	return b.withRoot(NewFilterNode(b.ctx.GenPlanNodeID(), b.root, where.Predicate))
}

func (b LogicalPlanBuilder) PlanGroupByLevel(c *statement.GroupByLevelComponent, cols []statement.ResultColumn) LogicalPlanBuilder {
	if c == nil || len(c.Levels) == 0 {
		return b
	}
	return b.withRoot(NewGroupByLevelNode(b.ctx.GenPlanNodeID(), b.root, c.Levels, c.Columns(cols)))
}

// PlanFill leaves the plan as it is, fill has no operator yet.
func (b LogicalPlanBuilder) PlanFill(*statement.FillComponent) LogicalPlanBuilder {
	return b
}

func (b LogicalPlanBuilder) PlanFilterNull(c *statement.FilterNullComponent) LogicalPlanBuilder {
	if c == nil || c.Policy == statement.NoNullFilter {
		return b
	}
	return b.withRoot(NewFilterNullNode(b.ctx.GenPlanNodeID(), b.root, c.Policy, c.Columns))
}

func (b LogicalPlanBuilder) PlanSort(order statement.Ordering) LogicalPlanBuilder {
	if order == statement.TimeAsc {
		return b
	}
	return b.withRoot(NewSortNode(b.ctx.GenPlanNodeID(), b.root, order))
}

func (b LogicalPlanBuilder) PlanLimit(limit int) LogicalPlanBuilder {
	if limit == 0 {
		return b
	}
	return b.withRoot(NewLimitNode(b.ctx.GenPlanNodeID(), b.root, limit))
}

func (b LogicalPlanBuilder) PlanOffset(offset int) LogicalPlanBuilder {
	if offset == 0 {
		return b
	}
	return b.withRoot(NewOffsetNode(b.ctx.GenPlanNodeID(), b.root, offset))
}
