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

	"github.com/tsgrid/tsgrid/lib/consistency"
	"github.com/tsgrid/tsgrid/lib/errno"
	"github.com/tsgrid/tsgrid/lib/logger"
	"github.com/tsgrid/tsgrid/lib/metapath"
	"github.com/tsgrid/tsgrid/lib/netstorage"
	"github.com/tsgrid/tsgrid/lib/partition"
	"go.uber.org/zap"
)

// SchemaView is the schema held by this node: every storage group of the
// cluster plus the timeseries of the groups this node replicates.
type SchemaView interface {
	StorageGroups() []metapath.PartialPath
	MatchedStorageGroups(pattern metapath.PartialPath) []metapath.PartialPath
	OverlappingStorageGroups(pattern metapath.PartialPath) []metapath.PartialPath
	GroupPathByStorageGroup(pattern metapath.PartialPath) map[string][]metapath.PartialPath
	DevicesNum(patterns []metapath.PartialPath) int
	TimeseriesNum(patterns []metapath.PartialPath) int
	NodesNumInGivenLevel(patterns []metapath.PartialPath, level int) int
	NodesListInGivenLevel(pattern metapath.PartialPath, level int, filter func(sg string) bool) []metapath.PartialPath
	ChildNodeNameInNextLevel(pattern metapath.PartialPath) []string
	ChildNodePathInNextLevel(pattern metapath.PartialPath) []string
}

// Gates holds the consistency gate of every local replica, keyed by PartitionGroup.Key.
type Gates map[string]consistency.Gate

func (g Gates) Gate(group *partition.PartitionGroup) (consistency.Gate, error) {
	gate, ok := g[group.Key()]
	if !ok {
		return nil, errno.NewError(errno.UnknownGroup, group.String())
	}
	return gate, nil
}

// LocalMetaService answers schema calls for the groups this node replicates.
// Every call passes the consistency gate of the addressed group first.
type LocalMetaService struct {
	Table  partition.Table
	Schema SchemaView
	Gates  Gates

	// SkipConsistency serves reads without waiting for the leader.
	SkipConsistency bool

	Logger *logger.Logger
}

var _ netstorage.MetaHandler = (*LocalMetaService)(nil)

func NewLocalMetaService(table partition.Table, schema SchemaView, gates Gates) *LocalMetaService {
	return &LocalMetaService{
		Table:  table,
		Schema: schema,
		Gates:  gates,
		Logger: logger.NewLogger(errno.ModuleCoordinator).With(zap.String("service", "local_meta")),
	}
}

func findGroup(table partition.Table, header partition.Node, raftID int) (*partition.PartitionGroup, error) {
	groups := table.GlobalGroups()
	for i := range groups {
		if groups[i].Header == header && groups[i].RaftID == raftID {
			return &groups[i], nil
		}
	}
	return nil, errno.NewError(errno.UnknownGroup, header.String())
}

func (s *LocalMetaService) prepare(ctx context.Context, header partition.Node, raftID int) (*partition.PartitionGroup, error) {
	group, err := findGroup(s.Table, header, raftID)
	if err != nil {
		return nil, err
	}
	gate, err := s.Gates.Gate(group)
	if err != nil {
		return nil, err
	}
	if s.SkipConsistency {
		return group, nil
	}
	if err = gate.SyncLeaderWithConsistencyCheck(ctx); err != nil {
		s.Logger.Error("consistency check of local group failed", zap.String("group", group.String()), zap.Error(err))
		return nil, err
	}
	return group, nil
}

func (s *LocalMetaService) GetDeviceCount(ctx context.Context, header partition.Node, raftID int, paths []string) (int, error) {
	if _, err := s.prepare(ctx, header, raftID); err != nil {
		return 0, err
	}
	patterns, err := metapath.ParseAll(paths)
	if err != nil {
		return 0, err
	}
	return s.Schema.DevicesNum(patterns), nil
}

// GetPathCount counts timeseries when level is negative, nodes at level otherwise.
func (s *LocalMetaService) GetPathCount(ctx context.Context, header partition.Node, raftID int, paths []string, level int) (int, error) {
	if _, err := s.prepare(ctx, header, raftID); err != nil {
		return 0, err
	}
	patterns, err := metapath.ParseAll(paths)
	if err != nil {
		return 0, err
	}
	if level < 0 {
		return s.Schema.TimeseriesNum(patterns), nil
	}
	return s.Schema.NodesNumInGivenLevel(patterns, level), nil
}

// GetNodeList only covers the storage groups whose slot the group owns.
func (s *LocalMetaService) GetNodeList(ctx context.Context, header partition.Node, raftID int, path string, level int) ([]string, error) {
	group, err := s.prepare(ctx, header, raftID)
	if err != nil {
		return nil, err
	}
	pattern, err := metapath.Parse(path)
	if err != nil {
		return nil, err
	}
	filter := partition.SlotFilter(s.Table, s.Table.NodeSlots(group.Header, group.RaftID))
	return metapath.Strings(s.Schema.NodesListInGivenLevel(pattern, level, filter)), nil
}

func (s *LocalMetaService) GetChildNodeInNextLevel(ctx context.Context, header partition.Node, raftID int, path string) ([]string, error) {
	if _, err := s.prepare(ctx, header, raftID); err != nil {
		return nil, err
	}
	pattern, err := metapath.Parse(path)
	if err != nil {
		return nil, err
	}
	return s.Schema.ChildNodeNameInNextLevel(pattern), nil
}

func (s *LocalMetaService) GetChildNodePathInNextLevel(ctx context.Context, header partition.Node, raftID int, path string) ([]string, error) {
	if _, err := s.prepare(ctx, header, raftID); err != nil {
		return nil, err
	}
	pattern, err := metapath.Parse(path)
	if err != nil {
		return nil, err
	}
	return s.Schema.ChildNodePathInNextLevel(pattern), nil
}
