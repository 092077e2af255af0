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

package app

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsgrid/tsgrid/lib/config"
	"github.com/tsgrid/tsgrid/lib/logger"
)

type fakeServer struct {
	opened   bool
	closed   bool
	openErr  error
	closeErr error
}

func (s *fakeServer) Open() error {
	s.opened = true
	return s.openErr
}

func (s *fakeServer) Close() error {
	s.closed = true
	return s.closeErr
}

func (s *fakeServer) Err() <-chan error { return nil }

func writeNodeConfig(t *testing.T) string {
	dir := t.TempDir()
	txt := fmt.Sprintf(`
[common]
  node-id = 3
  cluster-id = "test"

[logging]
  path = %q

[cluster]
  bind-address = "127.0.0.1:0"

[partition]
  total-slots = 16

  [[partition.groups]]
    raft-id = 0
    members = ["3@127.0.0.1:6667"]
`, filepath.Join(dir, "logs"))
	file := filepath.Join(dir, "node.conf")
	require.NoError(t, os.WriteFile(file, []byte(txt), 0600))
	return file
}

func newTestCommand(s *fakeServer) *Command {
	cmd := NewCommand()
	cmd.Info = ServerInfo{App: config.AppNode}
	cmd.Version = "v0.0.1-test"
	cmd.Config = config.NewTSNode()
	cmd.NewServerFunc = func(config.Config, ServerInfo, *logger.Logger) (Server, error) {
		return s, nil
	}
	return cmd
}

func TestCommand_InitConfig(t *testing.T) {
	file := writeNodeConfig(t)
	t.Setenv("TSGRID_CLUSTER_FAN_OUT_POOL_SIZE", "5")

	cmd := newTestCommand(&fakeServer{})
	conf := config.NewTSNode()
	require.NoError(t, cmd.InitConfig(conf, file))

	assert.Equal(t, uint64(3), conf.Common.NodeID)
	assert.Equal(t, "test", conf.Common.ClusterID)
	assert.Equal(t, 5, conf.Cluster.FanOutPoolSize)
	assert.Equal(t, 16, conf.Partition.TotalSlots)
	assert.Len(t, conf.Partition.Groups, 1)

	err := cmd.InitConfig(config.NewTSNode(), filepath.Join(t.TempDir(), "missing.conf"))
	assert.Error(t, err)

	// the default config has no partition groups
	assert.Error(t, cmd.InitConfig(config.NewTSNode(), ""))
}

func TestCommand_RunAndClose(t *testing.T) {
	file := writeNodeConfig(t)
	pidfile := filepath.Join(t.TempDir(), "node.pid")

	s := &fakeServer{}
	cmd := newTestCommand(s)
	require.NoError(t, cmd.Run("--config", file, "--pidfile", pidfile))
	assert.True(t, s.opened)
	assert.FileExists(t, pidfile)

	require.NoError(t, cmd.Close())
	assert.True(t, s.closed)
	assert.NoFileExists(t, pidfile)
}

func TestCommand_RunErrors(t *testing.T) {
	cmd := newTestCommand(&fakeServer{})
	err := cmd.Run("--config", "notFoundFile")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")

	file := writeNodeConfig(t)
	cmd = newTestCommand(&fakeServer{openErr: errors.New("boom")})
	err = cmd.Run("--config", file)
	assert.EqualError(t, err, "open server: boom")

	assert.Error(t, NewCommand().Start(Options{}))
}

func TestRootCommand(t *testing.T) {
	defer func(old func() os.Signal) { waitForSignal = old }(waitForSignal)
	waitForSignal = func() os.Signal { return os.Interrupt }

	file := writeNodeConfig(t)
	s := &fakeServer{}
	root := NewRootCommand(newTestCommand(s))
	root.SetArgs([]string{"run", "--config", file})
	require.NoError(t, root.Execute())
	assert.True(t, s.opened)
	assert.True(t, s.closed)

	// run is the default command
	s = &fakeServer{closeErr: errors.New("close failed")}
	root = NewRootCommand(newTestCommand(s))
	root.SetArgs([]string{"--config", file})
	require.NoError(t, root.Execute())
	assert.True(t, s.closed)

	var out bytes.Buffer
	root = NewRootCommand(newTestCommand(&fakeServer{}))
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "v0.0.1-test\n", out.String())
}
