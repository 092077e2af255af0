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

package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	itoml "github.com/influxdata/influxdb/toml"
)

const (
	DefaultHTTPBindAddress           = "127.0.0.1:8091"
	DefaultSchemaRaftElectionTimeout = time.Second
	DefaultSchemaApplyTimeout        = 10 * time.Second

	minSchemaRaftElectionTimeout = 10 * time.Millisecond
)

// Schema configures the local schema processor.
type Schema struct {
	SnapshotPath string `toml:"snapshot-path"`

	// RaftEnabled orders schema changes through a raft log. Local reads are
	// then gated on the applied index of that log.
	RaftEnabled         bool           `toml:"raft-enabled"`
	RaftElectionTimeout itoml.Duration `toml:"raft-election-timeout"`
	ApplyTimeout        itoml.Duration `toml:"apply-timeout"`
}

func NewSchema() Schema {
	return Schema{
		SnapshotPath:        filepath.Join(defaultDir(), "schema", "schema.db"),
		RaftEnabled:         true,
		RaftElectionTimeout: itoml.Duration(DefaultSchemaRaftElectionTimeout),
		ApplyTimeout:        itoml.Duration(DefaultSchemaApplyTimeout),
	}
}

func (c Schema) Validate() error {
	if c.SnapshotPath == "" {
		return errors.New("schema snapshot-path must not be empty")
	}
	if !c.RaftEnabled {
		return nil
	}
	if err := positiveDurations(
		durationValidatorItem{"schema raft-election-timeout", time.Duration(c.RaftElectionTimeout)},
		durationValidatorItem{"schema apply-timeout", time.Duration(c.ApplyTimeout)},
	); err != nil {
		return err
	}
	if time.Duration(c.RaftElectionTimeout) < minSchemaRaftElectionTimeout {
		return fmt.Errorf("schema raft-election-timeout must be at least %s. got: %s",
			minSchemaRaftElectionTimeout, time.Duration(c.RaftElectionTimeout))
	}
	return nil
}

// HTTP configures the admin endpoints of a node.
type HTTP struct {
	Enabled     bool   `toml:"enabled"`
	BindAddress string `toml:"bind-address"`
}

// TSNode is the configuration of the ts-node binary.
type TSNode struct {
	Common    *Common   `toml:"common"`
	Logging   Logger    `toml:"logging"`
	Cluster   Cluster   `toml:"cluster"`
	Partition Partition `toml:"partition"`
	Schema    Schema    `toml:"schema"`
	HTTP      HTTP      `toml:"http"`
}

func NewTSNode() *TSNode {
	return &TSNode{
		Common:    NewCommon(),
		Logging:   NewLogger(AppNode),
		Cluster:   NewCluster(),
		Partition: NewPartition(),
		Schema:    NewSchema(),
		HTTP: HTTP{
			Enabled:     true,
			BindAddress: DefaultHTTPBindAddress,
		},
	}
}

func (c *TSNode) Validate() error {
	for _, v := range []Validator{
		c.Common,
		c.Logging,
		c.Cluster,
		c.Partition,
		c.Schema,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *TSNode) ApplyEnvOverrides(fn func(string) string) error {
	return itoml.ApplyEnvOverrides(fn, envPrefix, c)
}

func (c *TSNode) GetLogging() *Logger {
	return &c.Logging
}

func (c *TSNode) GetCommon() *Common {
	return c.Common
}
