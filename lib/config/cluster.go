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
	"math"
	"time"

	itoml "github.com/influxdata/influxdb/toml"
)

const (
	DefaultReadOperationTimeout  = 30 * time.Second
	DefaultFanOutPoolSize        = 6
	DefaultMaxIdleConnsPerNode   = 8
	DefaultDialTimeout           = 5 * time.Second
	DefaultConsistencyMaxLag     = 1000
	DefaultConsistencyMaxWait    = 5 * time.Second
	DefaultConsistencyPoll       = 10 * time.Millisecond
	DefaultReplicaFailurePenalty = 10 * time.Second
	DefaultCompressThreshold     = 64 * 1024
	DefaultMaxFrameSize          = 64 * 1024 * 1024
	DefaultClusterBindAddress    = "127.0.0.1:6667"
	DefaultAsyncCallbackPoolSize = 64
)

// Cluster configures fan-out, consistency checks and the internal meta RPC.
type Cluster struct {
	BindAddress string `toml:"bind-address"`

	// ReadOperationTimeout bounds remote reads and the wait of a fan-out call.
	ReadOperationTimeout itoml.Duration `toml:"read-operation-timeout"`
	UseAsyncServer       bool           `toml:"use-async-server"`
	AsyncCallbackPool    int            `toml:"async-callback-pool-size"`
	FanOutPoolSize       int            `toml:"fan-out-pool-size"`
	MaxIdleConnsPerNode  int            `toml:"max-idle-conns-per-node"`
	DialTimeout          itoml.Duration `toml:"dial-timeout"`

	ConsistencyMaxLag          uint64         `toml:"consistency-max-lag"`
	ConsistencyMaxWait         itoml.Duration `toml:"consistency-max-wait"`
	ConsistencyPollInterval    itoml.Duration `toml:"consistency-poll-interval"`
	ReplicaFailurePenalty      itoml.Duration `toml:"replica-failure-penalty"`
	CompressThreshold          itoml.Size     `toml:"compress-threshold"`
	MaxFrameSize               itoml.Size     `toml:"max-frame-size"`
	ServerRateLimit            float64        `toml:"server-rate-limit"`
	ServerRateBurst            int            `toml:"server-rate-burst"`
	MaxConnectionLimit         int            `toml:"max-connection-limit"`
	WhiteList                  string         `toml:"white-list"`
	DisableConsistencyOnRemote bool           `toml:"disable-consistency-on-remote"`
}

func NewCluster() Cluster {
	return Cluster{
		BindAddress:             DefaultClusterBindAddress,
		ReadOperationTimeout:    itoml.Duration(DefaultReadOperationTimeout),
		AsyncCallbackPool:       DefaultAsyncCallbackPoolSize,
		FanOutPoolSize:          DefaultFanOutPoolSize,
		MaxIdleConnsPerNode:     DefaultMaxIdleConnsPerNode,
		DialTimeout:             itoml.Duration(DefaultDialTimeout),
		ConsistencyMaxLag:       DefaultConsistencyMaxLag,
		ConsistencyMaxWait:      itoml.Duration(DefaultConsistencyMaxWait),
		ConsistencyPollInterval: itoml.Duration(DefaultConsistencyPoll),
		ReplicaFailurePenalty:   itoml.Duration(DefaultReplicaFailurePenalty),
		CompressThreshold:       itoml.Size(DefaultCompressThreshold),
		MaxFrameSize:            itoml.Size(DefaultMaxFrameSize),
	}
}

func (c Cluster) Validate() error {
	if err := (stringValidator{}).Validate([]stringValidatorItem{
		{"cluster bind-address", c.BindAddress},
	}); err != nil {
		return err
	}

	iv := intValidator{0, math.MaxInt32}
	if err := iv.Validate([]intValidatorItem{
		{"cluster fan-out-pool-size", int64(c.FanOutPoolSize), false},
		{"cluster max-idle-conns-per-node", int64(c.MaxIdleConnsPerNode), false},
		{"cluster async-callback-pool-size", int64(c.AsyncCallbackPool), false},
		{"cluster max-frame-size", int64(c.MaxFrameSize), false},
		{"cluster max-connection-limit", int64(c.MaxConnectionLimit), true},
	}); err != nil {
		return err
	}

	if err := positiveDurations(
		durationValidatorItem{"cluster read-operation-timeout", time.Duration(c.ReadOperationTimeout)},
		durationValidatorItem{"cluster dial-timeout", time.Duration(c.DialTimeout)},
		durationValidatorItem{"cluster consistency-max-wait", time.Duration(c.ConsistencyMaxWait)},
		durationValidatorItem{"cluster consistency-poll-interval", time.Duration(c.ConsistencyPollInterval)},
	); err != nil {
		return err
	}

	if c.ServerRateLimit < 0 {
		return errors.New("cluster server-rate-limit must not be negative")
	}
	return nil
}

// Partition describes the static partition table: replica groups and slot layout.
type Partition struct {
	TotalSlots            int              `toml:"total-slots"`
	TimePartitionInterval itoml.Duration   `toml:"time-partition-interval"`
	Groups                []PartitionGroup `toml:"groups"`
}

// PartitionGroup lists members as "<id>@<host>:<port>"; the first member is the header.
type PartitionGroup struct {
	RaftID  int      `toml:"raft-id"`
	Members []string `toml:"members"`
}

const (
	DefaultTotalSlots            = 10000
	DefaultTimePartitionInterval = 7 * 24 * time.Hour
)

func NewPartition() Partition {
	return Partition{
		TotalSlots:            DefaultTotalSlots,
		TimePartitionInterval: itoml.Duration(DefaultTimePartitionInterval),
	}
}

func (c Partition) Validate() error {
	if c.TotalSlots <= 0 {
		return errors.New("partition total-slots must be positive")
	}
	if err := positiveDurations(durationValidatorItem{
		"partition time-partition-interval", time.Duration(c.TimePartitionInterval),
	}); err != nil {
		return err
	}
	if len(c.Groups) == 0 {
		return errors.New("partition groups must not be empty")
	}
	for i := range c.Groups {
		if len(c.Groups[i].Members) == 0 {
			return errors.New("partition group members must not be empty")
		}
	}
	return nil
}

// TimePartitionIntervalMs returns the slot width in milliseconds, the unit of row timestamps.
func (c Partition) TimePartitionIntervalMs() int64 {
	return time.Duration(c.TimePartitionInterval).Milliseconds()
}
