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
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/tsgrid/tsgrid/lib/errno"
)

// Node is a cluster member. Two nodes are the same member when all fields match.
type Node struct {
	ID   uint64 `json:"id"`
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ParseNode parses "<id>@<host>:<port>".
func ParseNode(s string) (Node, error) {
	id, addr, ok := strings.Cut(s, "@")
	if !ok {
		return Node{}, errno.NewError(errno.InvalidAddress, s)
	}
	nodeID, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return Node{}, errno.NewError(errno.InvalidAddress, s)
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return Node{}, errno.NewError(errno.InvalidAddress, s)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p <= 0 || p > 65535 {
		return Node{}, errno.NewError(errno.InvalidAddress, s)
	}
	return Node{ID: nodeID, Host: host, Port: p}, nil
}

func (n Node) Addr() string {
	return net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
}

func (n Node) String() string {
	return fmt.Sprintf("%d@%s", n.ID, n.Addr())
}

// PartitionGroup is an ordered replica set. Its identity is the header
// node plus the raft group id and stays stable for the partition scheme.
type PartitionGroup struct {
	Header Node   `json:"header"`
	RaftID int    `json:"raftId"`
	Nodes  []Node `json:"nodes"`
}

func NewPartitionGroup(raftID int, nodes ...Node) PartitionGroup {
	g := PartitionGroup{RaftID: raftID, Nodes: nodes}
	if len(nodes) > 0 {
		g.Header = nodes[0]
	}
	return g
}

func (g *PartitionGroup) Contains(n Node) bool {
	for i := range g.Nodes {
		if g.Nodes[i] == n {
			return true
		}
	}
	return false
}

func (g *PartitionGroup) Key() string {
	return fmt.Sprintf("%d-%d", g.Header.ID, g.RaftID)
}

// Equal compares identities only.
func (g *PartitionGroup) Equal(o *PartitionGroup) bool {
	return g.Header == o.Header && g.RaftID == o.RaftID
}

func (g *PartitionGroup) String() string {
	return fmt.Sprintf("group[header=%s raft=%d nodes=%d]", g.Header, g.RaftID, len(g.Nodes))
}

// TimePartitionSlot is the time range [StartTime, StartTime+interval) rows are routed by.
type TimePartitionSlot struct {
	StartTime int64 `json:"startTime"`
}

// SlotOf returns the slot containing ts. Negative timestamps round down.
func SlotOf(ts, interval int64) TimePartitionSlot {
	if interval <= 0 {
		return TimePartitionSlot{}
	}
	q := ts / interval
	if ts%interval != 0 && ts < 0 {
		q--
	}
	return TimePartitionSlot{StartTime: q * interval}
}
