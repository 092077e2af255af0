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
	"github.com/tsgrid/tsgrid/engine/hybridqp"
	"github.com/tsgrid/tsgrid/engine/statement"
)

// DefaultOptimizers is the rewrite pipeline used for query plans.
func DefaultOptimizers() []PlanOptimizer {
	return []PlanOptimizer{SortElimination{}}
}

// Rewrite rebuilds the tree bottom up, applying fn to every node. A node is
// copied only when one of its inputs changed, the input tree is never modified.
func Rewrite(node PlanNode, fn func(PlanNode) PlanNode) PlanNode {
	inputs := node.Inputs()
	if len(inputs) > 0 {
		rewritten := make([]PlanNode, len(inputs))
		changed := false
		for i, c := range inputs {
			rewritten[i] = Rewrite(c, fn)
			changed = changed || rewritten[i] != c
		}
		if changed {
			node = WithInputs(node, rewritten)
		}
	}
	return fn(node)
}

// SortElimination drops a SortNode whose input already yields rows in the
// requested order.
type SortElimination struct{}

func (SortElimination) Optimize(root PlanNode, _ *hybridqp.QueryContext) PlanNode {
	return Rewrite(root, func(n PlanNode) PlanNode {
		sort, ok := n.(*SortNode)
		if !ok {
			return n
		}
		if order, known := outputOrder(sort.Inputs()[0]); known && order == sort.Order {
			return sort.Inputs()[0]
		}
		return n
	})
}

// outputOrder follows order preserving nodes down to the join producing the rows.
func outputOrder(n PlanNode) (statement.Ordering, bool) {
	for {
		switch node := n.(type) {
		case *TimeJoinNode:
			return node.Order, true
		case *DeviceMergeNode:
			return node.Order, true
		case *SourceNode:
			return node.Order, true
		case *SortNode:
			return node.Order, true
		case *FilterNode, *FilterNullNode, *GroupByLevelNode:
			n = node.Inputs()[0]
		default:
			return statement.TimeAsc, false
		}
	}
}
