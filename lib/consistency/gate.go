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

package consistency

import (
	"context"
	"time"

	"github.com/tsgrid/tsgrid/lib/config"
	"github.com/tsgrid/tsgrid/lib/errno"
	"github.com/tsgrid/tsgrid/lib/logger"
	"go.uber.org/zap"
)

// Gate blocks a local read until the local replica is fresh enough.
type Gate interface {
	SyncLeaderWithConsistencyCheck(ctx context.Context) error
}

// GateFunc adapts a function to Gate.
type GateFunc func(ctx context.Context) error

func (f GateFunc) SyncLeaderWithConsistencyCheck(ctx context.Context) error {
	return f(ctx)
}

// AlwaysFresh is the gate of a replica that is its own leader.
type AlwaysFresh struct{}

func (AlwaysFresh) SyncLeaderWithConsistencyCheck(context.Context) error {
	return nil
}

// LogProgress exposes how far the local replica of a raft group has applied its log.
type LogProgress interface {
	AppliedIndex() uint64
	// LeaderCommitIndex returns errno.NoLeader while the group has no leader.
	LeaderCommitIndex(ctx context.Context) (uint64, error)
}

// LeaderGate waits until the applied index of the local replica is at most
// maxLag entries behind the commit index the leader reported when the
// check started.
type LeaderGate struct {
	name     string
	progress LogProgress
	maxLag   uint64
	maxWait  time.Duration
	poll     time.Duration
	logger   *logger.Logger
}

func NewLeaderGate(name string, progress LogProgress, conf config.Cluster) *LeaderGate {
	return &LeaderGate{
		name:     name,
		progress: progress,
		maxLag:   conf.ConsistencyMaxLag,
		maxWait:  time.Duration(conf.ConsistencyMaxWait),
		poll:     time.Duration(conf.ConsistencyPollInterval),
		logger:   logger.NewLogger(errno.ModuleConsistency).With(zap.String("group", name)),
	}
}

func (g *LeaderGate) fresh(commit uint64) (uint64, bool) {
	applied := g.progress.AppliedIndex()
	return applied, applied+g.maxLag >= commit
}

func (g *LeaderGate) SyncLeaderWithConsistencyCheck(ctx context.Context) error {
	commit, err := g.progress.LeaderCommitIndex(ctx)
	if err != nil {
		g.logger.Error("get leader commit index failed", zap.Error(err))
		return err
	}
	applied, ok := g.fresh(commit)
	if ok {
		return nil
	}

	timer := time.NewTimer(g.maxWait)
	defer timer.Stop()
	ticker := time.NewTicker(g.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			err = errno.NewError(errno.OperationInterrupted, "consistency check of "+g.name, ctx.Err()).SetCause(ctx.Err())
			g.logger.Warn("consistency check interrupted", zap.Error(err))
			return err
		case <-timer.C:
			applied, ok = g.fresh(commit)
			if ok {
				return nil
			}
			err = errno.NewError(errno.ConsistencyCheckFailed, applied, commit)
			g.logger.Error("replica is stale", zap.Error(err), zap.Duration("waited", g.maxWait))
			return err
		case <-ticker.C:
			if applied, ok = g.fresh(commit); ok {
				return nil
			}
		}
	}
}
