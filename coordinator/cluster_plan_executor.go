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
	"context"
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/samber/lo"
	"github.com/tsgrid/tsgrid/lib/config"
	"github.com/tsgrid/tsgrid/lib/consistency"
	"github.com/tsgrid/tsgrid/lib/errno"
	"github.com/tsgrid/tsgrid/lib/logger"
	"github.com/tsgrid/tsgrid/lib/metapath"
	"github.com/tsgrid/tsgrid/lib/metrics"
	"github.com/tsgrid/tsgrid/lib/netstorage"
	"github.com/tsgrid/tsgrid/lib/partition"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	opDeviceCount         = "getDeviceCount"
	opPathCount           = "getPathCount"
	opNodeList            = "getNodeList"
	opChildNode           = "getChildNodeInNextLevel"
	opChildNodePath       = "getChildNodePathInNextLevel"
	opStorageGroupRefresh = "getAllStorageGroupNodes"
)

// ClusterPlanExecutor answers schema aggregates that need every partition
// group: local groups are served in-process, remote groups over the
// MetaReader, and the partial results are merged.
type ClusterPlanExecutor struct {
	Local    partition.Node
	Table    partition.Table
	Schema   SchemaView
	MetaGate consistency.Gate // brings the local schema view up to the meta leader
	Service  *LocalMetaService
	Reader   netstorage.MetaReader
	Selector *ReplicaSelector
	Executor *MetaExecutor

	fanOutPoolSize int
	Logger         *logger.Logger
}

func NewClusterPlanExecutor(conf config.Cluster, local partition.Node) *ClusterPlanExecutor {
	executor := NewMetaExecutor()
	executor.SetTimeOut(time.Duration(conf.ReadOperationTimeout))
	return &ClusterPlanExecutor{
		Local:          local,
		MetaGate:       consistency.AlwaysFresh{},
		Selector:       NewReplicaSelector(time.Duration(conf.ReplicaFailurePenalty)),
		Executor:       executor,
		fanOutPoolSize: conf.FanOutPoolSize,
		Logger:         logger.NewLogger(errno.ModuleCoordinator).With(zap.String("service", "cluster_plan_executor")),
	}
}

func (e *ClusterPlanExecutor) stats() *metrics.CoordinatorStats {
	return e.Executor.Stats
}

func (e *ClusterPlanExecutor) syncMeta(ctx context.Context, op string) error {
	if err := e.MetaGate.SyncLeaderWithConsistencyCheck(ctx); err != nil {
		e.Logger.Error("failed to sync schema with the meta leader", zap.String("op", op), zap.Error(err))
		return err
	}
	return nil
}

// GetDeviceCount counts the devices pattern matches across the cluster.
func (e *ClusterPlanExecutor) GetDeviceCount(ctx context.Context, pattern metapath.PartialPath) (int, error) {
	if err := e.syncMeta(ctx, opDeviceCount); err != nil {
		return 0, err
	}
	sgPatterns := e.Schema.GroupPathByStorageGroup(pattern)
	if len(sgPatterns) == 0 {
		return 0, errno.NewError(errno.PathNotExist, pattern.String())
	}
	return e.countByGroup(ctx, opDeviceCount, sgPatterns,
		func(ctx context.Context, g *partition.PartitionGroup, paths []string) (int, error) {
			return e.Service.GetDeviceCount(ctx, g.Header, g.RaftID, paths)
		},
		func(ctx context.Context, n partition.Node, g *partition.PartitionGroup, paths []string) (int, bool, error) {
			return e.Reader.GetDeviceCount(ctx, n, g, paths)
		})
}

// GetPathCount counts the timeseries pattern matches when level is
// negative, and the distinct nodes at depth level (root is 0) the
// pattern can reach otherwise.
func (e *ClusterPlanExecutor) GetPathCount(ctx context.Context, pattern metapath.PartialPath, level int) (int, error) {
	if err := e.syncMeta(ctx, opPathCount); err != nil {
		return 0, err
	}

	extended := pattern
	if !pattern.EndsWithMultiLevelWildcard() {
		extended = pattern.ConcatNode(metapath.MultiLevelWildcard)
	}
	sgs := e.Schema.MatchedStorageGroups(extended)
	if len(sgs) == 0 {
		return 0, errno.NewError(errno.PathNotExist, pattern.String())
	}

	if level < 0 {
		sgPatterns := make(map[string][]metapath.PartialPath, len(sgs))
		for _, sg := range sgs {
			if ps := pattern.AlterPrefix(sg); len(ps) > 0 {
				sgPatterns[sg.String()] = ps
			}
		}
		return e.countPaths(ctx, sgPatterns, level)
	}

	if metapath.LevelPruned(pattern, level) {
		return 0, nil
	}
	// storage groups as deep as level are counted by their truncation
	direct := make(map[string]struct{})
	sgPatterns := make(map[string][]metapath.PartialPath)
	for _, sg := range sgs {
		if sg.Len()-1 >= level {
			direct[sg.Slice(0, level+1).String()] = struct{}{}
			continue
		}
		sgPatterns[sg.String()] = extended.AlterPrefix(sg)
	}
	n, err := e.countPaths(ctx, sgPatterns, level)
	return len(direct) + n, err
}

func (e *ClusterPlanExecutor) countPaths(ctx context.Context, sgPatterns map[string][]metapath.PartialPath, level int) (int, error) {
	if len(sgPatterns) == 0 {
		return 0, nil
	}
	return e.countByGroup(ctx, opPathCount, sgPatterns,
		func(ctx context.Context, g *partition.PartitionGroup, paths []string) (int, error) {
			return e.Service.GetPathCount(ctx, g.Header, g.RaftID, paths, level)
		},
		func(ctx context.Context, n partition.Node, g *partition.PartitionGroup, paths []string) (int, bool, error) {
			return e.Reader.GetPathCount(ctx, n, g, paths, level)
		})
}

// GetDeviceCountPrefixMatch counts the devices of pattern and of everything below it.
func (e *ClusterPlanExecutor) GetDeviceCountPrefixMatch(ctx context.Context, pattern metapath.PartialPath) (int, error) {
	n, err := e.GetDeviceCount(ctx, pattern)
	if err != nil {
		return 0, err
	}
	m, err := e.GetDeviceCount(ctx, pattern.ConcatNode(metapath.MultiLevelWildcard))
	if err != nil {
		return 0, err
	}
	return n + m, nil
}

func (e *ClusterPlanExecutor) GetPathCountPrefixMatch(ctx context.Context, pattern metapath.PartialPath, level int) (int, error) {
	n, err := e.GetPathCount(ctx, pattern, level)
	if err != nil {
		return 0, err
	}
	m, err := e.GetPathCount(ctx, pattern.ConcatNode(metapath.MultiLevelWildcard), level)
	if err != nil {
		return 0, err
	}
	return n + m, nil
}

type groupTargets struct {
	group *partition.PartitionGroup
	paths []string
}

type localCount func(ctx context.Context, g *partition.PartitionGroup, paths []string) (int, error)

type remoteCount func(ctx context.Context, n partition.Node, g *partition.PartitionGroup, paths []string) (int, bool, error)

// routeTargets batches the target paths by owning group. Schema is not
// time partitioned, so storage groups are routed with timestamp 0.
func (e *ClusterPlanExecutor) routeTargets(sgPatterns map[string][]metapath.PartialPath) ([]*groupTargets, error) {
	byGroup := make(map[string]*groupTargets)
	for _, sg := range lo.Keys(sgPatterns) {
		group, err := e.Table.Route(sg, 0)
		if err != nil {
			return nil, err
		}
		t, ok := byGroup[group.Key()]
		if !ok {
			t = &groupTargets{group: group}
			byGroup[group.Key()] = t
		}
		t.paths = append(t.paths, metapath.Strings(sgPatterns[sg])...)
	}

	targets := lo.Values(byGroup)
	sort.Slice(targets, func(i, j int) bool {
		return targets[i].group.Key() < targets[j].group.Key()
	})
	for _, t := range targets {
		sort.Strings(t.paths)
	}
	return targets, nil
}

func (e *ClusterPlanExecutor) countByGroup(ctx context.Context, op string, sgPatterns map[string][]metapath.PartialPath, local localCount, remote remoteCount) (int, error) {
	targets, err := e.routeTargets(sgPatterns)
	if err != nil {
		return 0, err
	}
	localTargets, remoteTargets := lo.FilterReject(targets, func(t *groupTargets, _ int) bool {
		return t.group.Contains(e.Local)
	})

	var total atomic.Int64
	for _, t := range localTargets {
		e.stats().LocalCalls.Inc()
		n, err := local(ctx, t.group, t.paths)
		if err != nil {
			return 0, err
		}
		total.Add(int64(n))
	}

	err = e.Executor.EachUnit(ctx, op, len(remoteTargets), 0, func(ctx context.Context, i int) error {
		n, err := e.remoteCount(ctx, op, remoteTargets[i], remote)
		total.Add(int64(n))
		return err
	})
	if err != nil {
		return 0, err
	}
	return int(total.Load()), nil
}

// remoteCount tries the replicas in ranked order until one answers. A
// failed call gives up on the group.
func (e *ClusterPlanExecutor) remoteCount(ctx context.Context, op string, t *groupTargets, call remoteCount) (int, error) {
	for _, node := range e.Selector.Rank(t.group.Nodes) {
		start := time.Now()
		e.stats().RemoteCalls.Inc()
		n, answered, err := call(ctx, node, t.group, t.paths)
		if err != nil {
			e.Selector.Failed(node)
			e.stats().RemoteFailures.Inc()
			e.Logger.Error("remote call failed", zap.String("op", op), zap.String("node", node.String()),
				zap.String("group", t.group.String()), zap.Error(err))
			return 0, errno.NewError(errno.RemoteMetaCallFailed, op, node.String(), err)
		}
		if answered {
			e.observe(op, node, start)
			return n, nil
		}
	}
	e.stats().ReplicasExhausted.Inc()
	e.Logger.Warn("no replica answered", zap.String("op", op), zap.String("group", t.group.String()))
	return 0, nil
}

func (e *ClusterPlanExecutor) observe(op string, node partition.Node, start time.Time) {
	d := time.Since(start)
	e.Selector.Observe(node, d)
	metrics.RemoteCallDuration.WithLabelValues(op, node.String()).Observe(d.Seconds())
}

type localList func(ctx context.Context, g *partition.PartitionGroup) ([]string, error)

type remoteList func(ctx context.Context, n partition.Node, g *partition.PartitionGroup) ([]string, bool, error)

// GetNodesList lists the nodes at depth level that pattern reaches. Each
// group only reports the storage groups whose slot it owns.
func (e *ClusterPlanExecutor) GetNodesList(ctx context.Context, pattern metapath.PartialPath, level int) ([]string, error) {
	path := pattern.String()
	return e.listAll(ctx, opNodeList, pattern,
		func(ctx context.Context, g *partition.PartitionGroup) ([]string, error) {
			return e.Service.GetNodeList(ctx, g.Header, g.RaftID, path, level)
		},
		func(ctx context.Context, n partition.Node, g *partition.PartitionGroup) ([]string, bool, error) {
			return e.Reader.GetNodeList(ctx, n, g, path, level)
		})
}

// GetChildNodeInNextLevel lists the names of the children of the nodes pattern matches.
func (e *ClusterPlanExecutor) GetChildNodeInNextLevel(ctx context.Context, pattern metapath.PartialPath) ([]string, error) {
	path := pattern.String()
	return e.listAll(ctx, opChildNode, pattern,
		func(ctx context.Context, g *partition.PartitionGroup) ([]string, error) {
			return e.Service.GetChildNodeInNextLevel(ctx, g.Header, g.RaftID, path)
		},
		func(ctx context.Context, n partition.Node, g *partition.PartitionGroup) ([]string, bool, error) {
			return e.Reader.GetChildNodeInNextLevel(ctx, n, g, path)
		})
}

// GetChildNodePathInNextLevel lists the full paths of the children of the nodes pattern matches.
func (e *ClusterPlanExecutor) GetChildNodePathInNextLevel(ctx context.Context, pattern metapath.PartialPath) ([]string, error) {
	path := pattern.String()
	return e.listAll(ctx, opChildNodePath, pattern,
		func(ctx context.Context, g *partition.PartitionGroup) ([]string, error) {
			return e.Service.GetChildNodePathInNextLevel(ctx, g.Header, g.RaftID, path)
		},
		func(ctx context.Context, n partition.Node, g *partition.PartitionGroup) ([]string, bool, error) {
			return e.Reader.GetChildNodePathInNextLevel(ctx, n, g, path)
		})
}

// listAll asks every group and returns the sorted union. A pattern that
// reaches no storage group lists nothing.
func (e *ClusterPlanExecutor) listAll(ctx context.Context, op string, pattern metapath.PartialPath, local localList, remote remoteList) ([]string, error) {
	if err := e.syncMeta(ctx, op); err != nil {
		return nil, err
	}
	if len(e.Schema.OverlappingStorageGroups(pattern)) == 0 {
		return []string{}, nil
	}

	groups := e.Table.GlobalGroups()
	result := mapset.NewSet()
	err := e.Executor.EachUnit(ctx, op, len(groups), e.fanOutPoolSize, func(ctx context.Context, i int) error {
		g := &groups[i]
		var items []string
		var err error
		if g.Contains(e.Local) {
			e.stats().LocalCalls.Inc()
			items, err = local(ctx, g)
		} else {
			items = e.remoteList(ctx, op, g, remote)
		}
		for _, item := range items {
			result.Add(item)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, result.Cardinality())
	for _, item := range result.ToSlice() {
		out = append(out, item.(string))
	}
	sort.Strings(out)
	return out, nil
}

// remoteList tries the replicas in ranked order; a failed replica is skipped.
func (e *ClusterPlanExecutor) remoteList(ctx context.Context, op string, g *partition.PartitionGroup, call remoteList) []string {
	for _, node := range e.Selector.Rank(g.Nodes) {
		start := time.Now()
		e.stats().RemoteCalls.Inc()
		items, answered, err := call(ctx, node, g)
		if err != nil {
			e.Selector.Failed(node)
			e.stats().RemoteFailures.Inc()
			e.Logger.Error("remote call failed, trying next replica", zap.String("op", op),
				zap.String("node", node.String()), zap.String("group", g.String()), zap.Error(err))
			continue
		}
		if answered {
			e.observe(op, node, start)
			return items
		}
	}
	e.stats().ReplicasExhausted.Inc()
	e.Logger.Warn("no replica answered", zap.String("op", op), zap.String("group", g.String()))
	return nil
}

// GetAllStorageGroupNodes returns the storage groups of the local schema
// view. A failed sync with the meta leader is only logged.
func (e *ClusterPlanExecutor) GetAllStorageGroupNodes(ctx context.Context) []metapath.PartialPath {
	_ = e.syncMeta(ctx, opStorageGroupRefresh)
	return e.Schema.StorageGroups()
}
