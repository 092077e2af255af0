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

package config_test

import (
	"fmt"
	"os"
	"path"
	"testing"
	"time"

	itoml "github.com/influxdata/influxdb/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsgrid/tsgrid/lib/config"
)

func TestTSNode_Parse(t *testing.T) {
	txt := "\ufeff" + `
[common]
  node-id = 3
[cluster]
  read-operation-timeout = "2s"
  use-async-server = true
  fan-out-pool-size = 4
  compress-threshold = "1k"
[partition]
  total-slots = 32
  time-partition-interval = "1h"
  [[partition.groups]]
    raft-id = 0
    members = ["1@127.0.0.1:6667", "2@127.0.0.1:6668"]
  [[partition.groups]]
    raft-id = 0
    members = ["3@127.0.0.1:6669"]
`
	configFile := t.TempDir() + "/node.conf"
	require.NoError(t, os.WriteFile(configFile, []byte(txt), 0600))

	conf := config.NewTSNode()
	require.NoError(t, config.Parse(conf, configFile))
	require.NoError(t, conf.Validate())

	assert.Equal(t, uint64(3), conf.GetCommon().NodeID)
	assert.Equal(t, 2*time.Second, time.Duration(conf.Cluster.ReadOperationTimeout))
	assert.True(t, conf.Cluster.UseAsyncServer)
	assert.Equal(t, 4, conf.Cluster.FanOutPoolSize)
	assert.Equal(t, 1024, int(conf.Cluster.CompressThreshold))
	assert.Equal(t, 32, conf.Partition.TotalSlots)
	assert.Equal(t, int64(3600*1000), conf.Partition.TimePartitionIntervalMs())
	require.Len(t, conf.Partition.Groups, 2)
	assert.Equal(t, []string{"3@127.0.0.1:6669"}, conf.Partition.Groups[1].Members)

	// defaults survive partial files
	assert.Equal(t, config.DefaultMaxIdleConnsPerNode, conf.Cluster.MaxIdleConnsPerNode)
	assert.True(t, conf.Schema.RaftEnabled)
	assert.Equal(t, config.DefaultSchemaApplyTimeout, time.Duration(conf.Schema.ApplyTimeout))
}

func TestParseEmptyPath(t *testing.T) {
	conf := config.NewTSNode()
	assert.NoError(t, config.Parse(conf, ""))
	assert.Error(t, config.Parse(conf, path.Join(t.TempDir(), "missing.conf")))
}

func TestTSNode_Validate(t *testing.T) {
	conf := config.NewTSNode()
	// no groups configured
	assert.EqualError(t, conf.Validate(), "partition groups must not be empty")

	conf.Partition.Groups = []config.PartitionGroup{{Members: []string{"1@127.0.0.1:6667"}}}
	assert.NoError(t, conf.Validate())

	conf.Cluster.FanOutPoolSize = 0
	assert.EqualError(t, conf.Validate(), "cluster fan-out-pool-size must be greater than 0. got: 0")

	conf.Cluster.FanOutPoolSize = 6
	conf.Cluster.ReadOperationTimeout = 0
	assert.EqualError(t, conf.Validate(), "cluster read-operation-timeout must be positive. got: 0s")

	conf.Cluster = config.NewCluster()
	conf.Schema.RaftElectionTimeout = itoml.Duration(time.Millisecond)
	assert.EqualError(t, conf.Validate(), "schema raft-election-timeout must be at least 10ms. got: 1ms")

	conf.Schema.RaftElectionTimeout = itoml.Duration(config.DefaultSchemaRaftElectionTimeout)
	conf.Schema.ApplyTimeout = 0
	assert.EqualError(t, conf.Validate(), "schema apply-timeout must be positive. got: 0s")

	// the raft timeouts only matter with the schema log
	conf.Schema.RaftEnabled = false
	assert.NoError(t, conf.Validate())

	conf.Schema = config.NewSchema()
	conf.Schema.SnapshotPath = ""
	assert.EqualError(t, conf.Validate(), "schema snapshot-path must not be empty")

	conf.Schema = config.NewSchema()
	conf.Common.NodeID = 0
	assert.EqualError(t, conf.Validate(), "common node-id must be positive")
}

func TestEnvOverrides(t *testing.T) {
	conf := config.NewTSNode()
	env := map[string]string{
		"TSGRID_CLUSTER_FAN_OUT_POOL_SIZE": "9",
		"TSGRID_COMMON_NODE_ID":            "7",
	}
	require.NoError(t, conf.ApplyEnvOverrides(func(k string) string { return env[k] }))
	assert.Equal(t, 9, conf.Cluster.FanOutPoolSize)
	assert.Equal(t, uint64(7), conf.Common.NodeID)
}

func TestLogger(t *testing.T) {
	dir := t.TempDir()

	lg := config.NewLogger(config.AppNode)
	lg.Path = dir
	assert.NoError(t, lg.Validate())
	assert.Equal(t, path.Clean(fmt.Sprintf("%s/%s.log", dir, config.AppNode)), lg.GetFileName())

	lg.SetApp(config.AppCli)
	assert.Equal(t, path.Clean(fmt.Sprintf("%s/%s.log", dir, config.AppCli)), lg.GetFileName())

	jack := lg.NewLumberjackLogger("raft")
	assert.Equal(t, lg.MaxAge, jack.MaxAge)
	assert.Equal(t, 64, jack.MaxSize)

	lg.MaxNum = 0
	assert.Error(t, lg.Validate())
}
