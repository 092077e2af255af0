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
	"fmt"
	"strings"

	"github.com/xlab/treeprint"
)

// Explain renders the tree below root, one line per node.
func Explain(root PlanNode) string {
	tree := treeprint.New()
	if root != nil {
		Accept[struct{}, treeprint.Tree](root, explainVisitor{}, tree)
	}
	return tree.String()
}

type explainVisitor struct{}

func (v explainVisitor) add(parent treeprint.Tree, n PlanNode, format string, args ...interface{}) struct{} {
	label := n.String()
	if format != "" {
		label += " " + fmt.Sprintf(format, args...)
	}
	if len(n.Inputs()) == 0 {
		parent.AddNode(label)
		return struct{}{}
	}
	branch := parent.AddBranch(label)
	for _, c := range n.Inputs() {
		Accept[struct{}, treeprint.Tree](c, v, branch)
	}
	return struct{}{}
}

func (v explainVisitor) VisitSource(n *SourceNode, t treeprint.Tree) struct{} {
	return v.add(t, n, "path=%s order=%s", n.Path, n.Order)
}

func (v explainVisitor) VisitTimeJoin(n *TimeJoinNode, t treeprint.Tree) struct{} {
	return v.add(t, n, "order=%s", n.Order)
}

func (v explainVisitor) VisitDeviceMerge(n *DeviceMergeNode, t treeprint.Tree) struct{} {
	return v.add(t, n, "devices=[%s]", strings.Join(n.Devices, ","))
}

func (v explainVisitor) VisitFilter(n *FilterNode, t treeprint.Tree) struct{} {
	return v.add(t, n, "predicate=%s", n.Predicate)
}

func (v explainVisitor) VisitGroupByLevel(n *GroupByLevelNode, t treeprint.Tree) struct{} {
	return v.add(t, n, "levels=%v columns=[%s]", n.Levels, strings.Join(n.OutputColumns(), ","))
}

func (v explainVisitor) VisitFilterNull(n *FilterNullNode, t treeprint.Tree) struct{} {
	return v.add(t, n, "policy=%d", n.Policy)
}

func (v explainVisitor) VisitSort(n *SortNode, t treeprint.Tree) struct{} {
	return v.add(t, n, "order=%s", n.Order)
}

func (v explainVisitor) VisitLimit(n *LimitNode, t treeprint.Tree) struct{} {
	return v.add(t, n, "limit=%d", n.Limit)
}

func (v explainVisitor) VisitOffset(n *OffsetNode, t treeprint.Tree) struct{} {
	return v.add(t, n, "offset=%d", n.Offset)
}

func (v explainVisitor) VisitAuthor(n *AuthorNode, t treeprint.Tree) struct{} {
	return v.add(t, n, "type=%s", n.AuthorType)
}

func (v explainVisitor) VisitCreateTimeSeries(n *CreateTimeSeriesNode, t treeprint.Tree) struct{} {
	return v.add(t, n, "path=%s type=%s", n.Path, n.Schema.Type)
}

func (v explainVisitor) VisitCreateAlignedTimeSeries(n *CreateAlignedTimeSeriesNode, t treeprint.Tree) struct{} {
	return v.add(t, n, "device=%s measurements=%d", n.Device, len(n.Schemas))
}

func (v explainVisitor) VisitAlterTimeSeries(n *AlterTimeSeriesNode, t treeprint.Tree) struct{} {
	return v.add(t, n, "path=%s", n.Path)
}

func (v explainVisitor) VisitInsertRow(n *InsertRowNode, t treeprint.Tree) struct{} {
	return v.add(t, n, "device=%s time=%d", n.Device, n.Time)
}

func (v explainVisitor) VisitInsertTablet(n *InsertTabletNode, t treeprint.Tree) struct{} {
	return v.add(t, n, "device=%s rows=%d", n.Device, len(n.Times))
}

func (v explainVisitor) VisitInsertRows(n *InsertRowsNode, t treeprint.Tree) struct{} {
	return v.add(t, n, "rows=%d", len(n.Rows))
}

func (v explainVisitor) VisitInsertMultiTablets(n *InsertMultiTabletsNode, t treeprint.Tree) struct{} {
	return v.add(t, n, "tablets=%d", len(n.Tablets))
}

func (v explainVisitor) VisitInsertRowsOfOneDevice(n *InsertRowsOfOneDeviceNode, t treeprint.Tree) struct{} {
	return v.add(t, n, "device=%s rows=%d", n.Device, len(n.Rows))
}

var _ PlanVisitor[struct{}, treeprint.Tree] = explainVisitor{}
