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
	"sort"

	"github.com/tsgrid/tsgrid/engine/hybridqp"
	"github.com/tsgrid/tsgrid/engine/statement"
	"github.com/tsgrid/tsgrid/lib/errno"
	"github.com/tsgrid/tsgrid/lib/metapath"
	"github.com/tsgrid/tsgrid/lib/partition"
	"github.com/tsgrid/tsgrid/lib/schema"
)

const StatusSuccess = 200

// WriteStatus is the outcome of writing one row.
type WriteStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

func (s WriteStatus) OK() bool {
	return s.Code == StatusSuccess
}

// WriteNode is a write plan that can be cut along the replica groups storing its rows.
type WriteNode interface {
	PlanNode
	// ReplicaSet is the group the node was split for, nil before splitting.
	ReplicaSet() *partition.PartitionGroup
	SplitByPartition(info statement.PartitionInfo) ([]WriteNode, error)
}

type writeNodeBase struct {
	planNodeBase
	group *partition.PartitionGroup
}

func newWriteNodeBase(id hybridqp.PlanNodeID, typ string) writeNodeBase {
	return writeNodeBase{planNodeBase: newPlanNodeBase(id, typ, hybridqp.NoChild)}
}

func (b *writeNodeBase) ReplicaSet() *partition.PartitionGroup {
	return b.group
}

func (b *writeNodeBase) OutputColumns() []string {
	return nil
}

// groupSplitter accumulates sub-batches keyed by replica group in the order
// groups are first seen.
type groupSplitter[T any] struct {
	order []string
	subs  map[string]T
}

func newGroupSplitter[T any]() *groupSplitter[T] {
	return &groupSplitter[T]{subs: make(map[string]T)}
}

func (s *groupSplitter[T]) get(g *partition.PartitionGroup, create func() T) T {
	key := g.Key()
	sub, ok := s.subs[key]
	if !ok {
		sub = create()
		s.subs[key] = sub
		s.order = append(s.order, key)
	}
	return sub
}

func (s *groupSplitter[T]) result() []T {
	out := make([]T, len(s.order))
	for i, key := range s.order {
		out[i] = s.subs[key]
	}
	return out
}

func routeRow(info statement.PartitionInfo, device metapath.PartialPath, ts int64) (*partition.PartitionGroup, error) {
	g, err := info.DataRegionReplicaSetForWriting(device, partition.SlotOf(ts, info.TimePartitionInterval()))
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, errno.NewError(errno.NoPartitionGroup, device.String())
	}
	return g, nil
}

func sequence(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

type InsertRowNode struct {
	writeNodeBase
	Device       metapath.PartialPath
	Time         int64
	Measurements []string
	Schemas      []schema.MeasurementSchema
	Values       []interface{}
	Aligned      bool
}

func NewInsertRowNode(id hybridqp.PlanNodeID, stmt *statement.InsertRowStatement, schemas []schema.MeasurementSchema) *InsertRowNode {
	return &InsertRowNode{
		writeNodeBase: newWriteNodeBase(id, InsertRowNodeType),
		Device:        stmt.Device,
		Time:          stmt.Time,
		Measurements:  stmt.Measurements,
		Schemas:       schemas,
		Values:        stmt.Values,
		Aligned:       stmt.Aligned,
	}
}

func (n *InsertRowNode) SplitByPartition(info statement.PartitionInfo) ([]WriteNode, error) {
	g, err := routeRow(info, n.Device, n.Time)
	if err != nil {
		return nil, err
	}
	c := n.Clone().(*InsertRowNode)
	c.group = g
	return []WriteNode{c}, nil
}

func (n *InsertRowNode) Clone() hybridqp.QueryNode {
	c := *n
	c.planNodeBase = n.clone()
	return &c
}

// InsertTabletNode writes a column block of one device. Rows[i] is the
// position of row i in the tablet it was split from.
type InsertTabletNode struct {
	writeNodeBase
	Device       metapath.PartialPath
	Measurements []string
	Schemas      []schema.MeasurementSchema
	Times        []int64
	Columns      [][]interface{}
	Aligned      bool
	Rows         []int
}

func NewInsertTabletNode(id hybridqp.PlanNodeID, stmt *statement.InsertTabletStatement, schemas []schema.MeasurementSchema) *InsertTabletNode {
	return &InsertTabletNode{
		writeNodeBase: newWriteNodeBase(id, InsertTabletNodeType),
		Device:        stmt.Device,
		Measurements:  stmt.Measurements,
		Schemas:       schemas,
		Times:         stmt.Times,
		Columns:       stmt.Columns,
		Aligned:       stmt.Aligned,
		Rows:          sequence(len(stmt.Times)),
	}
}

func (n *InsertTabletNode) SplitByPartition(info statement.PartitionInfo) ([]WriteNode, error) {
	splitter := newGroupSplitter[*InsertTabletNode]()
	for i, ts := range n.Times {
		g, err := routeRow(info, n.Device, ts)
		if err != nil {
			return nil, err
		}
		sub := splitter.get(g, func() *InsertTabletNode {
			c := *n
			c.planNodeBase = n.clone()
			c.group = g
			c.Times, c.Rows = nil, nil
			c.Columns = make([][]interface{}, len(n.Columns))
			return &c
		})
		sub.Times = append(sub.Times, ts)
		sub.Rows = append(sub.Rows, n.Rows[i])
		for j := range n.Columns {
			sub.Columns[j] = append(sub.Columns[j], n.Columns[j][i])
		}
	}
	subs := splitter.result()
	out := make([]WriteNode, len(subs))
	for i, s := range subs {
		out[i] = s
	}
	return out, nil
}

func (n *InsertTabletNode) Clone() hybridqp.QueryNode {
	c := *n
	c.planNodeBase = n.clone()
	return &c
}

// InsertRowsNode writes rows of any devices. Indexes[i] is the position of
// Rows[i] in the original batch.
type InsertRowsNode struct {
	writeNodeBase
	Rows    []*InsertRowNode
	Indexes []int
}

func NewInsertRowsNode(id hybridqp.PlanNodeID, rows []*InsertRowNode) *InsertRowsNode {
	return &InsertRowsNode{
		writeNodeBase: newWriteNodeBase(id, InsertRowsNodeType),
		Rows:          rows,
		Indexes:       sequence(len(rows)),
	}
}

func (n *InsertRowsNode) SplitByPartition(info statement.PartitionInfo) ([]WriteNode, error) {
	splitter := newGroupSplitter[*InsertRowsNode]()
	for i, row := range n.Rows {
		g, err := routeRow(info, row.Device, row.Time)
		if err != nil {
			return nil, err
		}
		sub := splitter.get(g, func() *InsertRowsNode {
			return &InsertRowsNode{writeNodeBase: writeNodeBase{planNodeBase: n.clone(), group: g}}
		})
		sub.Rows = append(sub.Rows, row)
		sub.Indexes = append(sub.Indexes, n.Indexes[i])
	}
	subs := splitter.result()
	out := make([]WriteNode, len(subs))
	for i, s := range subs {
		out[i] = s
	}
	return out, nil
}

func (n *InsertRowsNode) Clone() hybridqp.QueryNode {
	c := *n
	c.planNodeBase = n.clone()
	return &c
}

// InsertMultiTabletsNode writes several tablets. Indexes[i] is the position
// of the tablet Tablets[i] was cut from in the original batch.
type InsertMultiTabletsNode struct {
	writeNodeBase
	Tablets []*InsertTabletNode
	Indexes []int
}

func NewInsertMultiTabletsNode(id hybridqp.PlanNodeID, tablets []*InsertTabletNode) *InsertMultiTabletsNode {
	return &InsertMultiTabletsNode{
		writeNodeBase: newWriteNodeBase(id, InsertMultiTabletsNodeType),
		Tablets:       tablets,
		Indexes:       sequence(len(tablets)),
	}
}

func (n *InsertMultiTabletsNode) SplitByPartition(info statement.PartitionInfo) ([]WriteNode, error) {
	splitter := newGroupSplitter[*InsertMultiTabletsNode]()
	for i, tablet := range n.Tablets {
		parts, err := tablet.SplitByPartition(info)
		if err != nil {
			return nil, err
		}
		for _, p := range parts {
			g := p.ReplicaSet()
			sub := splitter.get(g, func() *InsertMultiTabletsNode {
				return &InsertMultiTabletsNode{writeNodeBase: writeNodeBase{planNodeBase: n.clone(), group: g}}
			})
			sub.Tablets = append(sub.Tablets, p.(*InsertTabletNode))
			sub.Indexes = append(sub.Indexes, n.Indexes[i])
		}
	}
	subs := splitter.result()
	out := make([]WriteNode, len(subs))
	for i, s := range subs {
		out[i] = s
	}
	return out, nil
}

func (n *InsertMultiTabletsNode) Clone() hybridqp.QueryNode {
	c := *n
	c.planNodeBase = n.clone()
	return &c
}

// InsertRowsOfOneDeviceNode writes rows of a single device. Rows is never
// reordered: splitting only hands out subsets of it together with the
// original positions in Indexes, and CollectResults scatters statuses back
// by those positions.
type InsertRowsOfOneDeviceNode struct {
	writeNodeBase
	Device  metapath.PartialPath
	Rows    []*InsertRowNode
	Indexes []int
	Results map[int]WriteStatus
}

func NewInsertRowsOfOneDeviceNode(id hybridqp.PlanNodeID, device metapath.PartialPath, rows []*InsertRowNode) *InsertRowsOfOneDeviceNode {
	return &InsertRowsOfOneDeviceNode{
		writeNodeBase: newWriteNodeBase(id, InsertRowsOfOneDeviceNodeType),
		Device:        device,
		Rows:          rows,
		Indexes:       sequence(len(rows)),
		Results:       make(map[int]WriteStatus),
	}
}

// SplitByPartition returns one node per replica group, in the order groups
// are first hit. Every original index lands in exactly one of them.
func (n *InsertRowsOfOneDeviceNode) SplitByPartition(info statement.PartitionInfo) ([]WriteNode, error) {
	if len(n.Indexes) != len(n.Rows) {
		return nil, errno.NewError(errno.InvalidWriteStatement, n.typ,
			fmt.Sprintf("%d indexes for %d rows", len(n.Indexes), len(n.Rows)))
	}
	splitter := newGroupSplitter[*InsertRowsOfOneDeviceNode]()
	for i, row := range n.Rows {
		g, err := routeRow(info, n.Device, row.Time)
		if err != nil {
			return nil, err
		}
		sub := splitter.get(g, func() *InsertRowsOfOneDeviceNode {
			return &InsertRowsOfOneDeviceNode{
				writeNodeBase: writeNodeBase{planNodeBase: n.clone(), group: g},
				Device:        n.Device,
				Results:       make(map[int]WriteStatus),
			}
		})
		sub.Rows = append(sub.Rows, row)
		sub.Indexes = append(sub.Indexes, n.Indexes[i])
	}
	subs := splitter.result()
	out := make([]WriteNode, len(subs))
	for i, s := range subs {
		out[i] = s
	}
	return out, nil
}

// CollectResults records statuses[i] as the result of sub.Rows[i] under its
// original index.
func (n *InsertRowsOfOneDeviceNode) CollectResults(sub *InsertRowsOfOneDeviceNode, statuses []WriteStatus) error {
	if len(statuses) != len(sub.Indexes) {
		return errno.NewError(errno.InvalidWriteStatement, n.typ,
			fmt.Sprintf("%d statuses for %d rows", len(statuses), len(sub.Indexes)))
	}
	for i, idx := range sub.Indexes {
		n.Results[idx] = statuses[i]
	}
	return nil
}

// FailedIndexes lists, in ascending order, the original indexes whose write failed.
func (n *InsertRowsOfOneDeviceNode) FailedIndexes() []int {
	var out []int
	for idx, st := range n.Results {
		if !st.OK() {
			out = append(out, idx)
		}
	}
	sort.Ints(out)
	return out
}

func (n *InsertRowsOfOneDeviceNode) Clone() hybridqp.QueryNode {
	c := *n
	c.planNodeBase = n.clone()
	c.Results = make(map[int]WriteStatus, len(n.Results))
	for k, v := range n.Results {
		c.Results[k] = v
	}
	return &c
}
