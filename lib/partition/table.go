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

package partition

import (
	"strconv"

	"github.com/RoaringBitmap/roaring"
	"github.com/cespare/xxhash/v2"
	"github.com/tsgrid/tsgrid/lib/config"
	"github.com/tsgrid/tsgrid/lib/errno"
)

// Table is the partition table consulted by the coordinator.
type Table interface {
	// Route returns the group owning the data of sg at timestamp ts.
	Route(sg string, ts int64) (*PartitionGroup, error)
	// GlobalGroups lists every group of the cluster.
	GlobalGroups() []PartitionGroup
	// NodeSlots returns the slots owned by the group, or nil for an unknown group.
	NodeSlots(header Node, raftID int) *roaring.Bitmap
	// SlotOf returns the slot of sg at timestamp ts.
	SlotOf(sg string, ts int64) uint32
}

// SlotTable hashes (storage group, time partition) onto a fixed number of
// slots and deals slots to groups round-robin.
type SlotTable struct {
	totalSlots uint32
	interval   int64
	groups     []PartitionGroup
	slots      []*roaring.Bitmap
	owner      []int
}

func NewSlotTable(totalSlots int, intervalMs int64, groups []PartitionGroup) *SlotTable {
	t := &SlotTable{
		totalSlots: uint32(totalSlots),
		interval:   intervalMs,
		groups:     groups,
		slots:      make([]*roaring.Bitmap, len(groups)),
		owner:      make([]int, totalSlots),
	}
	for i := range t.slots {
		t.slots[i] = roaring.New()
	}
	if len(groups) == 0 {
		return t
	}
	for s := 0; s < totalSlots; s++ {
		g := s % len(groups)
		t.owner[s] = g
		t.slots[g].Add(uint32(s))
	}
	return t
}

// NewSlotTableFromConfig builds the table from the [partition] section.
func NewSlotTableFromConfig(conf config.Partition) (*SlotTable, error) {
	groups := make([]PartitionGroup, 0, len(conf.Groups))
	for _, gc := range conf.Groups {
		nodes := make([]Node, 0, len(gc.Members))
		for _, m := range gc.Members {
			n, err := ParseNode(m)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		}
		groups = append(groups, NewPartitionGroup(gc.RaftID, nodes...))
	}
	return NewSlotTable(conf.TotalSlots, conf.TimePartitionIntervalMs(), groups), nil
}

func (t *SlotTable) SlotOf(sg string, ts int64) uint32 {
	if t.totalSlots == 0 {
		return 0
	}
	start := SlotOf(ts, t.interval).StartTime
	key := make([]byte, 0, len(sg)+21)
	key = append(key, sg...)
	key = append(key, '#')
	key = strconv.AppendInt(key, start, 10)
	return uint32(xxhash.Sum64(key) % uint64(t.totalSlots))
}

func (t *SlotTable) Route(sg string, ts int64) (*PartitionGroup, error) {
	if len(t.groups) == 0 {
		return nil, errno.NewError(errno.NoPartitionGroup, sg)
	}
	g := t.groups[t.owner[t.SlotOf(sg, ts)]]
	return &g, nil
}

func (t *SlotTable) GlobalGroups() []PartitionGroup {
	out := make([]PartitionGroup, len(t.groups))
	copy(out, t.groups)
	return out
}

func (t *SlotTable) NodeSlots(header Node, raftID int) *roaring.Bitmap {
	for i := range t.groups {
		if t.groups[i].Header == header && t.groups[i].RaftID == raftID {
			return t.slots[i].Clone()
		}
	}
	return nil
}

// LocalGroups returns the groups n is a member of.
func (t *SlotTable) LocalGroups(n Node) []PartitionGroup {
	var out []PartitionGroup
	for i := range t.groups {
		if t.groups[i].Contains(n) {
			out = append(out, t.groups[i])
		}
	}
	return out
}

// Group finds a group by identity.
func (t *SlotTable) Group(header Node, raftID int) (*PartitionGroup, bool) {
	for i := range t.groups {
		if t.groups[i].Header == header && t.groups[i].RaftID == raftID {
			g := t.groups[i]
			return &g, true
		}
	}
	return nil, false
}

func (t *SlotTable) TimePartitionInterval() int64 {
	return t.interval
}

// SlotFilter keeps storage groups whose schema slot is in slots.
func SlotFilter(t Table, slots *roaring.Bitmap) func(sg string) bool {
	return func(sg string) bool {
		if slots == nil {
			return false
		}
		return slots.Contains(t.SlotOf(sg, 0))
	}
}
