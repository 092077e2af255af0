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

package hybridqp

// ChildCount is the number of children a node kind accepts.
type ChildCount int

const (
	NoChild           ChildCount = 0
	OneChild          ChildCount = 1
	UnboundedChildren ChildCount = -1
)

func (c ChildCount) String() string {
	switch c {
	case NoChild:
		return "none"
	case OneChild:
		return "one"
	default:
		return "unbounded"
	}
}

// Accepts reports whether a node holding n children may take one more.
func (c ChildCount) Accepts(n int) bool {
	return c == UnboundedChildren || n < int(c)
}

type QueryNode interface {
	ID() PlanNodeID
	Type() string
	String() string
	Children() []QueryNode
	AllowedChildCount() ChildCount
	// OutputColumns are the column names the node produces, in order.
	OutputColumns() []string
	Clone() QueryNode
}

type QueryNodeVisitor interface {
	Visit(QueryNode) QueryNodeVisitor
}

func WalkQueryNodeInPreOrder(v QueryNodeVisitor, node QueryNode) {
	if node == nil {
		return
	}

	if v = v.Visit(node); v == nil {
		return
	}

	for _, child := range node.Children() {
		WalkQueryNodeInPreOrder(v, child)
	}
}

func WalkQueryNodeInPostOrder(v QueryNodeVisitor, node QueryNode) {
	if node == nil {
		return
	}

	for _, child := range node.Children() {
		WalkQueryNodeInPostOrder(v, child)
	}

	v.Visit(node)
}

type FlattenQueryNodeVisitor struct {
	nodes []QueryNode
}

func (visitor *FlattenQueryNodeVisitor) Visit(node QueryNode) QueryNodeVisitor {
	visitor.nodes = append(visitor.nodes, node)
	return visitor
}

func (visitor *FlattenQueryNodeVisitor) Nodes() []QueryNode {
	return visitor.nodes
}

// Flatten lists the tree below root in pre-order.
func Flatten(root QueryNode) []QueryNode {
	v := &FlattenQueryNodeVisitor{}
	WalkQueryNodeInPreOrder(v, root)
	return v.Nodes()
}

// Chain follows the first child from root down to a leaf and returns the
// node types bottom up.
func Chain(root QueryNode) []string {
	var types []string
	for node := root; node != nil; {
		types = append(types, node.Type())
		children := node.Children()
		if len(children) == 0 {
			break
		}
		node = children[0]
	}
	for i, j := 0, len(types)-1; i < j; i, j = i+1, j-1 {
		types[i], types[j] = types[j], types[i]
	}
	return types
}
