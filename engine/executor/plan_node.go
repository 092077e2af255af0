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

	"github.com/tsgrid/tsgrid/engine/hybridqp"
	"github.com/tsgrid/tsgrid/lib/errno"
)

const (
	SourceNodeType                  = "Source"
	TimeJoinNodeType                = "TimeJoin"
	DeviceMergeNodeType             = "DeviceMerge"
	FilterNodeType                  = "Filter"
	GroupByLevelNodeType            = "GroupByLevel"
	FilterNullNodeType              = "FilterNull"
	SortNodeType                    = "Sort"
	LimitNodeType                   = "Limit"
	OffsetNodeType                  = "Offset"
	AuthorNodeType                  = "Author"
	CreateTimeSeriesNodeType        = "CreateTimeSeries"
	CreateAlignedTimeSeriesNodeType = "CreateAlignedTimeSeries"
	AlterTimeSeriesNodeType         = "AlterTimeSeries"
	InsertRowNodeType               = "InsertRow"
	InsertTabletNodeType            = "InsertTablet"
	InsertRowsNodeType              = "InsertRows"
	InsertMultiTabletsNodeType      = "InsertMultiTablets"
	InsertRowsOfOneDeviceNodeType   = "InsertRowsOfOneDevice"
)

// PlanNode is implemented only by the node types of this package. Accept
// dispatches over all of them.
type PlanNode interface {
	hybridqp.QueryNode
	Inputs() []PlanNode
	// AddChild panics with PlanNodeMisuse when the node is full.
	AddChild(child PlanNode)
	ReplaceChild(ordinal int, child PlanNode)

	base() *planNodeBase
}

// misuse reports a wrong use of the plan node API. It is not meant to be recovered.
func misuse(typ string, format string, args ...interface{}) {
	panic(errno.NewError(errno.PlanNodeMisuse, typ, fmt.Sprintf(format, args...)))
}

type planNodeBase struct {
	id       hybridqp.PlanNodeID
	typ      string
	arity    hybridqp.ChildCount
	children []PlanNode
}

func newPlanNodeBase(id hybridqp.PlanNodeID, typ string, arity hybridqp.ChildCount) planNodeBase {
	return planNodeBase{id: id, typ: typ, arity: arity}
}

func (b *planNodeBase) base() *planNodeBase {
	return b
}

func (b *planNodeBase) ID() hybridqp.PlanNodeID {
	return b.id
}

func (b *planNodeBase) Type() string {
	return b.typ
}

func (b *planNodeBase) String() string {
	return fmt.Sprintf("%s[%s]", b.typ, b.id)
}

func (b *planNodeBase) AllowedChildCount() hybridqp.ChildCount {
	return b.arity
}

func (b *planNodeBase) Inputs() []PlanNode {
	return b.children
}

func (b *planNodeBase) Children() []hybridqp.QueryNode {
	if len(b.children) == 0 {
		return nil
	}
	out := make([]hybridqp.QueryNode, len(b.children))
	for i, c := range b.children {
		out[i] = c
	}
	return out
}

func (b *planNodeBase) AddChild(child PlanNode) {
	if !b.arity.Accepts(len(b.children)) {
		misuse(b.typ, "cannot add a child to a node accepting %s children, it has %d", b.arity, len(b.children))
	}
	b.children = append(b.children, child)
}

func (b *planNodeBase) ReplaceChild(ordinal int, child PlanNode) {
	if ordinal < 0 || ordinal >= len(b.children) {
		misuse(b.typ, "index %d out of range %d", ordinal, len(b.children))
	}
	b.children[ordinal] = child
}

// clone copies the child list so that replacing a child of the copy leaves
// the original untouched.
func (b *planNodeBase) clone() planNodeBase {
	c := *b
	if b.children != nil {
		c.children = make([]PlanNode, len(b.children))
		copy(c.children, b.children)
	}
	return c
}

func (b *planNodeBase) firstInputColumns() []string {
	if len(b.children) == 0 {
		return nil
	}
	return b.children[0].OutputColumns()
}

// WithInputs returns a copy of node holding children instead of its inputs.
func WithInputs(node PlanNode, children []PlanNode) PlanNode {
	c := node.Clone().(PlanNode)
	b := c.base()
	if b.arity != hybridqp.UnboundedChildren && len(children) > int(b.arity) {
		misuse(b.typ, "%d children given to a node accepting %s", len(children), b.arity)
	}
	b.children = append([]PlanNode(nil), children...)
	return c
}
