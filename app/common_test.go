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

package app_test

import (
	"os"
	"path"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsgrid/tsgrid/app"
	"github.com/tsgrid/tsgrid/lib/config"
)

func TestWritePIDFile(t *testing.T) {
	tempDir := t.TempDir()

	pidfile := path.Join(tempDir, "node", "node.pid")
	err := app.WritePIDFile(pidfile)
	if !assert.NoError(t, err) {
		return
	}

	buf, err := os.ReadFile(pidfile)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(buf))

	app.RemovePIDFile(pidfile)
	_, err = os.Stat(pidfile)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, app.WritePIDFile(""))
}

func TestParseFlags(t *testing.T) {
	options, err := app.ParseFlags(func() {}, "--config", "node.conf", "-p", "/tmp/node.pid")
	require.NoError(t, err)
	assert.Equal(t, "node.conf", options.ConfigPath)
	assert.Equal(t, "/tmp/node.pid", options.PIDFile)

	options, err = app.ParseFlags(func() {})
	require.NoError(t, err)
	assert.Equal(t, app.Options{}, options)

	_, err = app.ParseFlags(func() {}, "--unknown")
	assert.Error(t, err)
}

func TestServerInfo(t *testing.T) {
	info := app.ServerInfo{
		App:       config.AppNode,
		Version:   "v0.1.0",
		Commit:    "abc",
		Branch:    "main",
		BuildTime: "today",
	}
	assert.Equal(t, "v0.1.0-main:abc-today", info.StatVersion())
	assert.Contains(t, info.FullVersion(), "node: ")
	assert.Contains(t, info.FullVersion(), "tsgrid version info")
}
