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

package coordinator_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/RoaringBitmap/roaring"
	itoml "github.com/influxdata/influxdb/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsgrid/tsgrid/coordinator"
	"github.com/tsgrid/tsgrid/lib/config"
	"github.com/tsgrid/tsgrid/lib/consistency"
	"github.com/tsgrid/tsgrid/lib/errno"
	"github.com/tsgrid/tsgrid/lib/metapath"
	"github.com/tsgrid/tsgrid/lib/partition"
	"github.com/tsgrid/tsgrid/lib/schema"
)

var (
	n1 = partition.Node{ID: 1, Host: "127.0.0.1", Port: 6001}
	n2 = partition.Node{ID: 2, Host: "127.0.0.1", Port: 6002}
	n3 = partition.Node{ID: 3, Host: "127.0.0.1", Port: 6003}
	n4 = partition.Node{ID: 4, Host: "127.0.0.1", Port: 6004}
	n5 = partition.Node{ID: 5, Host: "127.0.0.1", Port: 6005}
)

// routedTable sends every storage group to a fixed group; each storage
// group gets its own slot.
type routedTable struct {
	groups []partition.PartitionGroup
	routes map[string]int
	slots  map[string]uint32
}

func newRoutedTable(groups []partition.PartitionGroup, routes map[string]int) *routedTable {
	t := &routedTable{groups: groups, routes: routes, slots: make(map[string]uint32)}
	for sg := range routes {
		t.slots[sg] = uint32(len(t.slots))
	}
	return t
}

func (t *routedTable) Route(sg string, _ int64) (*partition.PartitionGroup, error) {
	i, ok := t.routes[sg]
	if !ok {
		return nil, errno.NewError(errno.NoPartitionGroup, sg)
	}
	g := t.groups[i]
	return &g, nil
}

func (t *routedTable) GlobalGroups() []partition.PartitionGroup {
	return append([]partition.PartitionGroup(nil), t.groups...)
}

func (t *routedTable) NodeSlots(header partition.Node, raftID int) *roaring.Bitmap {
	bm := roaring.New()
	for sg, i := range t.routes {
		if t.groups[i].Header == header && t.groups[i].RaftID == raftID {
			bm.Add(t.slots[sg])
		}
	}
	return bm
}

func (t *routedTable) SlotOf(sg string, _ int64) uint32 {
	if s, ok := t.slots[sg]; ok {
		return s
	}
	return 1 << 31
}

// fakeReader serves remote calls in process with the LocalMetaService of the addressed node.
type fakeReader struct {
	mu       sync.Mutex
	services map[partition.Node]*coordinator.LocalMetaService
	down     map[partition.Node]bool
	silent   map[partition.Node]bool
	calls    map[partition.Node]int
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		services: make(map[partition.Node]*coordinator.LocalMetaService),
		down:     make(map[partition.Node]bool),
		silent:   make(map[partition.Node]bool),
		calls:    make(map[partition.Node]int),
	}
}

func (r *fakeReader) serve(node partition.Node) (*coordinator.LocalMetaService, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[node]++
	if r.down[node] {
		return nil, false, errno.NewError(errno.NoConnectionAvailable, node.ID, node.Addr()).SetCause(errors.New("connection refused"))
	}
	if r.silent[node] {
		return nil, false, nil
	}
	return r.services[node], true, nil
}

func (r *fakeReader) totalCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, n := range r.calls {
		total += n
	}
	return total
}

func (r *fakeReader) callsTo(n partition.Node) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[n]
}

func (r *fakeReader) GetDeviceCount(ctx context.Context, node partition.Node, g *partition.PartitionGroup, paths []string) (int, bool, error) {
	svc, ok, err := r.serve(node)
	if !ok {
		return 0, false, err
	}
	n, err := svc.GetDeviceCount(ctx, g.Header, g.RaftID, paths)
	return n, err == nil, err
}

func (r *fakeReader) GetPathCount(ctx context.Context, node partition.Node, g *partition.PartitionGroup, paths []string, level int) (int, bool, error) {
	svc, ok, err := r.serve(node)
	if !ok {
		return 0, false, err
	}
	n, err := svc.GetPathCount(ctx, g.Header, g.RaftID, paths, level)
	return n, err == nil, err
}

func (r *fakeReader) GetNodeList(ctx context.Context, node partition.Node, g *partition.PartitionGroup, path string, level int) ([]string, bool, error) {
	svc, ok, err := r.serve(node)
	if !ok {
		return nil, false, err
	}
	out, err := svc.GetNodeList(ctx, g.Header, g.RaftID, path, level)
	return out, err == nil, err
}

func (r *fakeReader) GetChildNodeInNextLevel(ctx context.Context, node partition.Node, g *partition.PartitionGroup, path string) ([]string, bool, error) {
	svc, ok, err := r.serve(node)
	if !ok {
		return nil, false, err
	}
	out, err := svc.GetChildNodeInNextLevel(ctx, g.Header, g.RaftID, path)
	return out, err == nil, err
}

func (r *fakeReader) GetChildNodePathInNextLevel(ctx context.Context, node partition.Node, g *partition.PartitionGroup, path string) ([]string, bool, error) {
	svc, ok, err := r.serve(node)
	if !ok {
		return nil, false, err
	}
	out, err := svc.GetChildNodePathInNextLevel(ctx, g.Header, g.RaftID, path)
	return out, err == nil, err
}

func (r *fakeReader) Close() {}

// testCluster gives every node all storage groups and the timeseries of
// the groups it replicates.
type testCluster struct {
	table   partition.Table
	global  *schema.Processor
	schemas map[partition.Node]*schema.Processor
	gates   map[partition.Node]coordinator.Gates
	reader  *fakeReader
}

func newTestCluster(t *testing.T, table partition.Table, sgs []string, series []string) *testCluster {
	c := &testCluster{
		table:   table,
		global:  schema.NewProcessor(),
		schemas: make(map[partition.Node]*schema.Processor),
		gates:   make(map[partition.Node]coordinator.Gates),
		reader:  newFakeReader(),
	}
	for _, sg := range sgs {
		require.NoError(t, c.global.SetStorageGroup(metapath.MustParse(sg)))
	}
	for _, s := range series {
		// conflicting random series are skipped
		_ = c.global.CreateTimeseries(metapath.MustParse(s), schema.NewMeasurementSchema("", schema.Double))
	}

	for _, g := range table.GlobalGroups() {
		for _, n := range g.Nodes {
			if _, ok := c.schemas[n]; !ok {
				p := schema.NewProcessor()
				for _, sg := range sgs {
					require.NoError(t, p.SetStorageGroup(metapath.MustParse(sg)))
				}
				c.schemas[n] = p
				c.gates[n] = coordinator.Gates{}
			}
			c.gates[n][g.Key()] = consistency.AlwaysFresh{}
		}
	}

	for _, ts := range c.global.AllTimeseries() {
		sg, err := c.global.StorageGroupOf(ts.Path)
		require.NoError(t, err)
		g, err := table.Route(sg.String(), 0)
		require.NoError(t, err)
		for _, n := range g.Nodes {
			require.NoError(t, c.schemas[n].CreateTimeseries(ts.Path, ts.Schema))
		}
	}

	for n, p := range c.schemas {
		c.reader.services[n] = coordinator.NewLocalMetaService(table, p, c.gates[n])
	}
	return c
}

func (c *testCluster) executor(local partition.Node) *coordinator.ClusterPlanExecutor {
	conf := config.NewCluster()
	conf.ReadOperationTimeout = itoml.Duration(5 * time.Second)
	e := coordinator.NewClusterPlanExecutor(conf, local)
	e.Table = c.table
	e.Schema = c.schemas[local]
	e.Service = c.reader.services[local]
	e.Reader = c.reader
	return e
}

func twoGroupCluster(t *testing.T) *testCluster {
	g1 := partition.NewPartitionGroup(1, n1, n2)
	g2 := partition.NewPartitionGroup(2, n3, n4)
	table := newRoutedTable([]partition.PartitionGroup{g1, g2}, map[string]int{
		"root.sg1": 0,
		"root.sg2": 1,
	})
	return newTestCluster(t, table, []string{"root.sg1", "root.sg2"}, []string{
		"root.sg1.d1.s1", "root.sg1.d1.s2", "root.sg1.d2.s1",
		"root.sg2.d1.s1", "root.sg2.d3.s1", "root.sg2.d4.a.s1",
	})
}

func TestGetDeviceCountLocalOnly(t *testing.T) {
	g1 := partition.NewPartitionGroup(1, n1, n2)
	table := newRoutedTable([]partition.PartitionGroup{g1}, map[string]int{"root.sg1": 0})
	c := newTestCluster(t, table, []string{"root.sg1"}, []string{"root.sg1.d1.s1", "root.sg1.d2.s1", "root.sg1.d2.s2"})
	e := c.executor(n1)

	n, err := e.GetDeviceCount(context.Background(), metapath.MustParse("root.sg1.**"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, c.reader.totalCalls())
	assert.Equal(t, int64(1), e.Executor.Stats.LocalCalls.Load())
}

func TestGetDeviceCountLocalAndRemote(t *testing.T) {
	c := twoGroupCluster(t)
	e := c.executor(n1)
	ctx := context.Background()

	n, err := e.GetDeviceCount(ctx, metapath.MustParse("root.**"))
	require.NoError(t, err)
	assert.Equal(t, 2+3, n)
	assert.Equal(t, 1, c.reader.callsTo(n3))
	assert.Equal(t, 0, c.reader.callsTo(n4))

	// the first replica has nothing to say, the next one answers
	c.reader.silent[n3] = true
	n, err = e.GetDeviceCount(ctx, metapath.MustParse("root.**"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 1, c.reader.callsTo(n4))
}

func TestGetDeviceCountRemoteFailure(t *testing.T) {
	c := twoGroupCluster(t)
	e := c.executor(n1)
	c.reader.down[n3] = true

	n, err := e.GetDeviceCount(context.Background(), metapath.MustParse("root.**"))
	require.NoError(t, err)
	// a failed call gives up on the group instead of asking n4
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, c.reader.callsTo(n4))
	assert.Equal(t, int64(1), e.Executor.Stats.SoftFailures.Load())

	// all replicas silent: the group contributes nothing
	c.reader.down[n3] = false
	c.reader.silent[n3] = true
	c.reader.silent[n4] = true
	n, err = e.GetDeviceCount(context.Background(), metapath.MustParse("root.**"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(1), e.Executor.Stats.ReplicasExhausted.Load())
}

func TestCountPathNotExist(t *testing.T) {
	c := twoGroupCluster(t)
	e := c.executor(n1)
	ctx := context.Background()

	_, err := e.GetDeviceCount(ctx, metapath.MustParse("root.nope.**"))
	assert.True(t, errno.Equal(err, errno.PathNotExist))
	_, err = e.GetPathCount(ctx, metapath.MustParse("root.nope"), -1)
	assert.True(t, errno.Equal(err, errno.PathNotExist))
	_, err = e.GetPathCount(ctx, metapath.MustParse("root.nope.*"), 2)
	assert.True(t, errno.Equal(err, errno.PathNotExist))

	nodes, err := e.GetNodesList(ctx, metapath.MustParse("root.nope.**"), 2)
	require.NoError(t, err)
	assert.Empty(t, nodes)
	children, err := e.GetChildNodeInNextLevel(ctx, metapath.MustParse("root.nope"))
	require.NoError(t, err)
	assert.Empty(t, children)
	assert.Equal(t, 0, c.reader.totalCalls())
}

func TestGetPathCount(t *testing.T) {
	c := twoGroupCluster(t)
	e := c.executor(n1)
	ctx := context.Background()

	cases := []struct {
		path  string
		level int
		want  int
	}{
		{"root.**", -1, 6},
		{"root.sg2", -1, 0},
		{"root.sg2.**", -1, 3},
		{"root.*.d1.*", -1, 3},
		{"root", 0, 1},
		{"root", 1, 2},
		{"root.sg2", 2, 3},
		{"root.**", 2, 5},
		{"root.**", 3, 6},
		{"root.**", 4, 1},
		{"root.*", 1, 2},
		// "*" at a depth other than the level
		{"root.*", 2, 0},
		{"root.sg1.*.s1", 3, 0},
		// literal prefix deeper than the level
		{"root.sg1.d1", 1, 0},
		{"root.sg1.d1.**", 3, 2},
	}
	for _, tc := range cases {
		n, err := e.GetPathCount(ctx, metapath.MustParse(tc.path), tc.level)
		require.NoError(t, err, tc.path)
		assert.Equal(t, tc.want, n, "%s level %d", tc.path, tc.level)
	}
}

func TestPrefixMatchCounts(t *testing.T) {
	c := twoGroupCluster(t)
	e := c.executor(n1)
	ctx := context.Background()

	n, err := e.GetDeviceCountPrefixMatch(ctx, metapath.MustParse("root.sg2.d4"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = e.GetPathCountPrefixMatch(ctx, metapath.MustParse("root.sg1.d1"), -1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestListings(t *testing.T) {
	c := twoGroupCluster(t)
	e := c.executor(n1)
	ctx := context.Background()

	nodes, err := e.GetNodesList(ctx, metapath.MustParse("root.**"), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"root.sg1.d1", "root.sg1.d2", "root.sg2.d1", "root.sg2.d3", "root.sg2.d4"}, nodes)

	nodes, err = e.GetNodesList(ctx, metapath.MustParse("root.**"), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"root.sg1", "root.sg2"}, nodes)

	names, err := e.GetChildNodeInNextLevel(ctx, metapath.MustParse("root.*"))
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d2", "d3", "d4"}, names)

	paths, err := e.GetChildNodePathInNextLevel(ctx, metapath.MustParse("root.sg2.d4"))
	require.NoError(t, err)
	assert.Equal(t, []string{"root.sg2.d4.a"}, paths)

	// a failed replica is skipped for listings
	c.reader.down[n3] = true
	names, err = e.GetChildNodeInNextLevel(ctx, metapath.MustParse("root.sg2"))
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d3", "d4"}, names)
	assert.Equal(t, 1, c.reader.callsTo(n4))

	c.reader.down[n4] = true
	names, err = e.GetChildNodeInNextLevel(ctx, metapath.MustParse("root.sg2"))
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestGetAllStorageGroupNodes(t *testing.T) {
	c := twoGroupCluster(t)
	e := c.executor(n1)
	e.MetaGate = consistency.GateFunc(func(ctx context.Context) error {
		return errno.NewError(errno.NoLeader, "meta")
	})
	sgs := e.GetAllStorageGroupNodes(context.Background())
	assert.Equal(t, []string{"root.sg1", "root.sg2"}, metapath.Strings(sgs))
}

func TestConsistencyFailures(t *testing.T) {
	c := twoGroupCluster(t)
	ctx := context.Background()

	e := c.executor(n1)
	e.MetaGate = consistency.GateFunc(func(ctx context.Context) error {
		return errno.NewError(errno.ConsistencyCheckFailed, 1, 100)
	})
	_, err := e.GetDeviceCount(ctx, metapath.MustParse("root.**"))
	assert.True(t, errno.Equal(err, errno.ConsistencyCheckFailed))
	_, err = e.GetNodesList(ctx, metapath.MustParse("root.**"), 1)
	assert.True(t, errno.Equal(err, errno.ConsistencyCheckFailed))
	assert.Equal(t, 0, c.reader.totalCalls())

	// the local group cannot catch up with its leader
	g1 := partition.NewPartitionGroup(1, n1, n2)
	c.gates[n1][g1.Key()] = consistency.GateFunc(func(ctx context.Context) error {
		return errno.NewError(errno.ConsistencyCheckFailed, 1, 100)
	})
	e = c.executor(n1)
	_, err = e.GetDeviceCount(ctx, metapath.MustParse("root.**"))
	assert.True(t, errno.Equal(err, errno.ConsistencyCheckFailed))

	_, err = e.GetChildNodeInNextLevel(ctx, metapath.MustParse("root"))
	assert.True(t, errno.Equal(err, errno.MetaAggregateFailed))
	assert.True(t, errno.Is(err, errno.ConsistencyCheckFailed))
}
