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

package executor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsgrid/tsgrid/engine/executor"
	"github.com/tsgrid/tsgrid/engine/hybridqp"
	"github.com/tsgrid/tsgrid/engine/statement"
	"github.com/tsgrid/tsgrid/lib/errno"
	"github.com/tsgrid/tsgrid/lib/metapath"
)

func source(ctx *hybridqp.QueryContext, path string) *executor.SourceNode {
	return executor.NewSourceNode(ctx.GenPlanNodeID(), statement.NewResultColumn(path), statement.TimeAsc)
}

func requireMisuse(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.True(t, errno.Equal(err, errno.PlanNodeMisuse), err.Error())
	}()
	fn()
}

func TestPlanNode_AddChildMisuse(t *testing.T) {
	ctx := hybridqp.NewQueryContext("q", "")
	src := source(ctx, "root.sg.d1.s1")

	requireMisuse(t, func() { src.AddChild(source(ctx, "root.sg.d1.s2")) })

	limit := executor.NewLimitNode(ctx.GenPlanNodeID(), src, 10)
	requireMisuse(t, func() { limit.AddChild(src) })
	requireMisuse(t, func() { limit.ReplaceChild(1, src) })

	join := executor.NewTimeJoinNode(ctx.GenPlanNodeID(), statement.TimeAsc)
	for i := 0; i < 50; i++ {
		join.AddChild(src)
	}
	assert.Len(t, join.Inputs(), 50)
	assert.Equal(t, hybridqp.UnboundedChildren, join.AllowedChildCount())
	assert.Equal(t, hybridqp.NoChild, src.AllowedChildCount())
	assert.Equal(t, hybridqp.OneChild, limit.AllowedChildCount())

	requireMisuse(t, func() {
		executor.WithInputs(limit, []executor.PlanNode{src, src})
	})
}

func TestPlanNode_CloneIsIndependent(t *testing.T) {
	ctx := hybridqp.NewQueryContext("q", "")
	a, b := source(ctx, "root.sg.d1.s1"), source(ctx, "root.sg.d1.s2")
	limit := executor.NewLimitNode(ctx.GenPlanNodeID(), a, 10)

	c := limit.Clone().(*executor.LimitNode)
	c.ReplaceChild(0, b)
	assert.Same(t, a, limit.Inputs()[0])
	assert.Same(t, b, c.Inputs()[0])
	assert.Equal(t, limit.ID(), c.ID())

	replaced := executor.WithInputs(limit, []executor.PlanNode{b})
	assert.Same(t, a, limit.Inputs()[0])
	assert.Equal(t, []string{"root.sg.d1.s2"}, replaced.OutputColumns())
}

func TestPlanNode_OutputColumns(t *testing.T) {
	ctx := hybridqp.NewQueryContext("q", "")
	join := executor.NewTimeJoinNode(ctx.GenPlanNodeID(), statement.TimeAsc)
	cols := []statement.ResultColumn{
		{Path: metapath.MustParse("root.sg.d1.s1"), Aggregation: "count"},
		{Path: metapath.MustParse("root.sg.d2.s1"), Aggregation: "count"},
		{Path: metapath.MustParse("root.sg.d1.s2"), Aggregation: "count"},
	}
	for _, c := range cols {
		join.AddChild(executor.NewSourceNode(ctx.GenPlanNodeID(), c, statement.TimeAsc))
	}
	assert.Equal(t, []string{"count(root.sg.d1.s1)", "count(root.sg.d2.s1)", "count(root.sg.d1.s2)"}, join.OutputColumns())

	filter := executor.NewFilterNode(ctx.GenPlanNodeID(), join, "time > 10")
	assert.Equal(t, join.OutputColumns(), filter.OutputColumns())

	level := &statement.GroupByLevelComponent{Levels: []int{1}}
	gbl := executor.NewGroupByLevelNode(ctx.GenPlanNodeID(), filter, level.Levels, level.Columns(cols))
	assert.Equal(t, []string{"count(root.sg.*.s1)", "count(root.sg.*.s2)"}, gbl.OutputColumns())
	display, ok := gbl.DisplayOf("count(root.sg.d2.s1)")
	assert.True(t, ok)
	assert.Equal(t, "count(root.sg.*.s1)", display)
	_, ok = gbl.DisplayOf("missing")
	assert.False(t, ok)

	merge := executor.NewDeviceMergeNode(ctx.GenPlanNodeID(), []string{"s1", "s2"}, statement.TimeAsc)
	merge.AddDevice("root.sg.d1", join)
	assert.Equal(t, []string{executor.DeviceColumn, "s1", "s2"}, merge.OutputColumns())
	assert.Equal(t, []string{"root.sg.d1"}, merge.Devices)
}

func TestExplain(t *testing.T) {
	ctx := hybridqp.NewQueryContext("q", "")
	join := executor.NewTimeJoinNode(ctx.GenPlanNodeID(), statement.TimeAsc)
	join.AddChild(source(ctx, "root.sg.d1.s1"))
	join.AddChild(source(ctx, "root.sg.d2.s1"))
	filter := executor.NewFilterNode(ctx.GenPlanNodeID(), join, "s1 > 1")
	root := executor.NewLimitNode(ctx.GenPlanNodeID(), filter, 5)

	out := executor.Explain(root)
	assert.Contains(t, out, "Limit[5] limit=5")
	assert.Contains(t, out, "Filter[4] predicate=s1 > 1")
	assert.Contains(t, out, "TimeJoin[1] order=TIME ASC")
	assert.Contains(t, out, "Source[2] path=root.sg.d1.s1")
	assert.Contains(t, out, "Source[3] path=root.sg.d2.s1")
	assert.NotContains(t, executor.Explain(nil), "[")
}
