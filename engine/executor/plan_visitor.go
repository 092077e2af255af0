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

// PlanVisitor has one method per plan node type. R is the result and C the
// context threaded through a walk.
type PlanVisitor[R, C any] interface {
	VisitSource(*SourceNode, C) R
	VisitTimeJoin(*TimeJoinNode, C) R
	VisitDeviceMerge(*DeviceMergeNode, C) R
	VisitFilter(*FilterNode, C) R
	VisitGroupByLevel(*GroupByLevelNode, C) R
	VisitFilterNull(*FilterNullNode, C) R
	VisitSort(*SortNode, C) R
	VisitLimit(*LimitNode, C) R
	VisitOffset(*OffsetNode, C) R
	VisitAuthor(*AuthorNode, C) R
	VisitCreateTimeSeries(*CreateTimeSeriesNode, C) R
	VisitCreateAlignedTimeSeries(*CreateAlignedTimeSeriesNode, C) R
	VisitAlterTimeSeries(*AlterTimeSeriesNode, C) R
	VisitInsertRow(*InsertRowNode, C) R
	VisitInsertTablet(*InsertTabletNode, C) R
	VisitInsertRows(*InsertRowsNode, C) R
	VisitInsertMultiTablets(*InsertMultiTabletsNode, C) R
	VisitInsertRowsOfOneDevice(*InsertRowsOfOneDeviceNode, C) R
}

// Accept calls the method of v matching the type of node.
func Accept[R, C any](node PlanNode, v PlanVisitor[R, C], ctx C) R {
	switch n := node.(type) {
	case *SourceNode:
		return v.VisitSource(n, ctx)
	case *TimeJoinNode:
		return v.VisitTimeJoin(n, ctx)
	case *DeviceMergeNode:
		return v.VisitDeviceMerge(n, ctx)
	case *FilterNode:
		return v.VisitFilter(n, ctx)
	case *GroupByLevelNode:
		return v.VisitGroupByLevel(n, ctx)
	case *FilterNullNode:
		return v.VisitFilterNull(n, ctx)
	case *SortNode:
		return v.VisitSort(n, ctx)
	case *LimitNode:
		return v.VisitLimit(n, ctx)
	case *OffsetNode:
		return v.VisitOffset(n, ctx)
	case *AuthorNode:
		return v.VisitAuthor(n, ctx)
	case *CreateTimeSeriesNode:
		return v.VisitCreateTimeSeries(n, ctx)
	case *CreateAlignedTimeSeriesNode:
		return v.VisitCreateAlignedTimeSeries(n, ctx)
	case *AlterTimeSeriesNode:
		return v.VisitAlterTimeSeries(n, ctx)
	case *InsertRowNode:
		return v.VisitInsertRow(n, ctx)
	case *InsertTabletNode:
		return v.VisitInsertTablet(n, ctx)
	case *InsertRowsNode:
		return v.VisitInsertRows(n, ctx)
	case *InsertMultiTabletsNode:
		return v.VisitInsertMultiTablets(n, ctx)
	case *InsertRowsOfOneDeviceNode:
		return v.VisitInsertRowsOfOneDevice(n, ctx)
	}
	misuse(node.Type(), "no visitor method for %T", node)
	panic("unreachable")
}
