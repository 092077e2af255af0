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

package partition_test

import (
	"fmt"
	"testing"
	"time"

	itoml "github.com/influxdata/influxdb/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsgrid/tsgrid/lib/config"
	"github.com/tsgrid/tsgrid/lib/errno"
	"github.com/tsgrid/tsgrid/lib/metapath"
	"github.com/tsgrid/tsgrid/lib/partition"
)

func TestParseNode(t *testing.T) {
	n, err := partition.ParseNode("3@127.0.0.1:6667")
	require.NoError(t, err)
	assert.Equal(t, partition.Node{ID: 3, Host: "127.0.0.1", Port: 6667}, n)
	assert.Equal(t, "127.0.0.1:6667", n.Addr())
	assert.Equal(t, "3@127.0.0.1:6667", n.String())

	for _, s := range []string{"127.0.0.1:6667", "x@127.0.0.1:6667", "1@127.0.0.1", "1@h:0"} {
		_, err = partition.ParseNode(s)
		assert.True(t, errno.Equal(err, errno.InvalidAddress), s)
	}
}

func TestPartitionGroup(t *testing.T) {
	n1 := partition.Node{ID: 1, Host: "h1", Port: 1}
	n2 := partition.Node{ID: 2, Host: "h2", Port: 2}
	n3 := partition.Node{ID: 3, Host: "h3", Port: 3}
	g := partition.NewPartitionGroup(0, n1, n2)

	assert.Equal(t, n1, g.Header)
	assert.True(t, g.Contains(n2))
	assert.False(t, g.Contains(n3))
	assert.False(t, g.Contains(partition.Node{ID: 2, Host: "other", Port: 2}))

	same := partition.NewPartitionGroup(0, n1, n3)
	assert.True(t, g.Equal(&same))
	other := partition.NewPartitionGroup(1, n1, n2)
	assert.False(t, g.Equal(&other))
	assert.NotEqual(t, g.Key(), other.Key())
}

func TestSlotOf(t *testing.T) {
	assert.Equal(t, int64(0), partition.SlotOf(0, 100).StartTime)
	assert.Equal(t, int64(0), partition.SlotOf(99, 100).StartTime)
	assert.Equal(t, int64(100), partition.SlotOf(100, 100).StartTime)
	assert.Equal(t, int64(-100), partition.SlotOf(-1, 100).StartTime)
	assert.Equal(t, int64(-100), partition.SlotOf(-100, 100).StartTime)
}

func newTestTable(t *testing.T) *partition.SlotTable {
	conf := config.NewPartition()
	conf.TotalSlots = 16
	conf.TimePartitionInterval = itoml.Duration(time.Second)
	conf.Groups = []config.PartitionGroup{
		{RaftID: 0, Members: []string{"1@127.0.0.1:1", "2@127.0.0.1:2"}},
		{RaftID: 0, Members: []string{"3@127.0.0.1:3", "4@127.0.0.1:4"}},
		{RaftID: 0, Members: []string{"5@127.0.0.1:5"}},
	}
	table, err := partition.NewSlotTableFromConfig(conf)
	require.NoError(t, err)
	return table
}

func TestSlotTable(t *testing.T) {
	table := newTestTable(t)
	groups := table.GlobalGroups()
	require.Len(t, groups, 3)

	// slots are dealt to exactly one group each
	total := uint64(0)
	for i := range groups {
		bm := table.NodeSlots(groups[i].Header, groups[i].RaftID)
		require.NotNil(t, bm)
		total += bm.GetCardinality()
	}
	assert.Equal(t, uint64(16), total)
	assert.Nil(t, table.NodeSlots(partition.Node{ID: 9}, 0))

	// routing is stable inside one time partition and follows slot ownership
	for i := 0; i < 50; i++ {
		sg := fmt.Sprintf("root.sg%d", i)
		g1, err := table.Route(sg, 10)
		require.NoError(t, err)
		g2, err := table.Route(sg, 999)
		require.NoError(t, err)
		assert.True(t, g1.Equal(g2))
		assert.True(t, table.NodeSlots(g1.Header, g1.RaftID).Contains(table.SlotOf(sg, 10)))
		assert.True(t, partition.SlotFilter(table, table.NodeSlots(g1.Header, g1.RaftID))(sg))
	}

	local := table.LocalGroups(partition.Node{ID: 4, Host: "127.0.0.1", Port: 4})
	require.Len(t, local, 1)
	assert.Equal(t, uint64(3), local[0].Header.ID)
}

func TestSlotTableFromBadConfig(t *testing.T) {
	conf := config.NewPartition()
	conf.Groups = []config.PartitionGroup{{Members: []string{"bad"}}}
	_, err := partition.NewSlotTableFromConfig(conf)
	assert.Error(t, err)

	empty := partition.NewSlotTable(4, 1000, nil)
	_, err = empty.Route("root.sg", 0)
	assert.True(t, errno.Equal(err, errno.NoPartitionGroup))
}

type staticResolver struct{}

func (staticResolver) StorageGroupOf(p metapath.PartialPath) (metapath.PartialPath, error) {
	if p.Len() < 2 {
		return metapath.PartialPath{}, errno.NewError(errno.StorageGroupNotSet, p.String())
	}
	return p.Slice(0, 2), nil
}

func TestDataPartition(t *testing.T) {
	table := newTestTable(t)
	dp := partition.NewDataPartition(table, staticResolver{})

	device := metapath.MustParse("root.sg1.d1")
	slot := partition.SlotOf(1500, 1000)
	g, err := dp.DataRegionReplicaSetForWriting(device, slot)
	require.NoError(t, err)
	want, err := table.Route("root.sg1", 1000)
	require.NoError(t, err)
	assert.True(t, g.Equal(want))

	_, err = dp.DataRegionReplicaSetForWriting(metapath.MustParse("root"), slot)
	assert.True(t, errno.Equal(err, errno.StorageGroupNotSet))
}
