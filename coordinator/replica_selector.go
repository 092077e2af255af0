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

package coordinator

import (
	"sort"
	"sync"
	"time"

	"github.com/tsgrid/tsgrid/lib/partition"
	"go.uber.org/atomic"
)

const latencyDecay = 0.3

type replicaStat struct {
	latency  atomic.Float64 // EWMA, seconds
	measured atomic.Bool
	failedAt atomic.Int64 // unix nano of the last failure
}

// ReplicaSelector ranks the members of a group for remote reads. Nodes
// that failed within the penalty window go last. Measured nodes come first
// ordered by smoothed latency, then unmeasured nodes in their given order.
type ReplicaSelector struct {
	mu      sync.RWMutex
	stats   map[partition.Node]*replicaStat
	penalty time.Duration
	now     func() time.Time
}

func NewReplicaSelector(penalty time.Duration) *ReplicaSelector {
	return &ReplicaSelector{
		stats:   make(map[partition.Node]*replicaStat),
		penalty: penalty,
		now:     time.Now,
	}
}

func (s *ReplicaSelector) stat(n partition.Node) *replicaStat {
	s.mu.RLock()
	st, ok := s.stats[n]
	s.mu.RUnlock()
	if ok {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok = s.stats[n]; !ok {
		st = &replicaStat{}
		s.stats[n] = st
	}
	return st
}

// Observe records a successful call to n that took d.
func (s *ReplicaSelector) Observe(n partition.Node, d time.Duration) {
	st := s.stat(n)
	sample := d.Seconds()
	for {
		old := st.latency.Load()
		next := sample
		if st.measured.Load() {
			next = old + latencyDecay*(sample-old)
		}
		if st.latency.CAS(old, next) {
			break
		}
	}
	st.measured.Store(true)
	st.failedAt.Store(0)
}

// Failed records a failed call to n.
func (s *ReplicaSelector) Failed(n partition.Node) {
	s.stat(n).failedAt.Store(s.now().UnixNano())
}

func (s *ReplicaSelector) coolingDown(st *replicaStat, now int64) bool {
	at := st.failedAt.Load()
	return at != 0 && now-at < int64(s.penalty)
}

// Rank returns the nodes in the order they should be tried. nodes is not modified.
func (s *ReplicaSelector) Rank(nodes []partition.Node) []partition.Node {
	now := s.now().UnixNano()
	type ranked struct {
		node     partition.Node
		latency  float64
		measured bool
		cooling  bool
	}
	items := make([]ranked, len(nodes))
	for i, n := range nodes {
		st := s.stat(n)
		items[i] = ranked{
			node:     n,
			latency:  st.latency.Load(),
			measured: st.measured.Load(),
			cooling:  s.coolingDown(st, now),
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].cooling != items[j].cooling {
			return !items[i].cooling
		}
		if items[i].measured != items[j].measured {
			return items[i].measured
		}
		return items[i].measured && items[i].latency < items[j].latency
	})

	out := make([]partition.Node, len(items))
	for i := range items {
		out[i] = items[i].node
	}
	return out
}
