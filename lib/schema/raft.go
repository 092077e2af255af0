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

package schema

import (
	"context"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	hraft "github.com/hashicorp/raft"
	"github.com/tsgrid/tsgrid/lib/config"
	"github.com/tsgrid/tsgrid/lib/errno"
	"github.com/tsgrid/tsgrid/lib/metapath"
)

type commandType uint8

const (
	setStorageGroupCommand commandType = iota + 1
	createTimeseriesCommand
	createAlignedTimeseriesCommand
)

type command struct {
	Type    commandType         `json:"type"`
	Path    string              `json:"path"`
	Schemas []MeasurementSchema `json:"schemas,omitempty"`
}

const leaderPollInterval = 10 * time.Millisecond

// RaftProcessor orders schema changes through a raft log before they reach
// the processor. Reads go straight to the processor, so callers gate them on
// the applied index of Raft().
type RaftProcessor struct {
	*Processor
	raft         *hraft.Raft
	applyTimeout time.Duration
}

// OpenRaftProcessor starts a single voter raft group named id over p. Log
// and snapshots live in memory: the bbolt snapshot store keeps the schema
// across restarts.
func OpenRaftProcessor(p *Processor, id string, conf config.Schema, logOutput io.Writer) (*RaftProcessor, error) {
	timeout := time.Duration(conf.RaftElectionTimeout)
	c := hraft.DefaultConfig()
	c.LocalID = hraft.ServerID(id)
	c.HeartbeatTimeout = timeout
	c.ElectionTimeout = timeout
	c.LeaderLeaseTimeout = timeout / 2
	c.LogOutput = logOutput

	store := hraft.NewInmemStore()
	addr, trans := hraft.NewInmemTransport(hraft.ServerAddress(id))
	r, err := hraft.NewRaft(c, &processorFSM{p: p}, store, store, hraft.NewInmemSnapshotStore(), trans)
	if err != nil {
		return nil, errors.Wrapf(err, "start schema raft %s", id)
	}
	bootstrap := hraft.Configuration{Servers: []hraft.Server{{ID: c.LocalID, Address: addr}}}
	if err = r.BootstrapCluster(bootstrap).Error(); err != nil {
		_ = r.Shutdown().Error()
		return nil, errors.Wrapf(err, "bootstrap schema raft %s", id)
	}
	return &RaftProcessor{Processor: p, raft: r, applyTimeout: time.Duration(conf.ApplyTimeout)}, nil
}

func (r *RaftProcessor) Raft() *hraft.Raft {
	return r.raft
}

// WaitForLeader blocks until the local voter has won its election.
func (r *RaftProcessor) WaitForLeader(ctx context.Context) error {
	ticker := time.NewTicker(leaderPollInterval)
	defer ticker.Stop()
	for r.raft.State() != hraft.Leader {
		select {
		case <-ctx.Done():
			return errno.NewError(errno.NoLeader, "schema").SetCause(ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

func (r *RaftProcessor) SetStorageGroup(path metapath.PartialPath) error {
	return r.apply(command{Type: setStorageGroupCommand, Path: path.String()})
}

func (r *RaftProcessor) CreateTimeseries(path metapath.PartialPath, ms MeasurementSchema) error {
	return r.apply(command{Type: createTimeseriesCommand, Path: path.String(), Schemas: []MeasurementSchema{ms}})
}

func (r *RaftProcessor) CreateAlignedTimeseries(device metapath.PartialPath, schemas []MeasurementSchema) error {
	return r.apply(command{Type: createAlignedTimeseriesCommand, Path: device.String(), Schemas: schemas})
}

// apply returns the processor's own error unchanged so that its code
// reaches the caller.
func (r *RaftProcessor) apply(cmd command) error {
	buf, err := json.Marshal(cmd)
	if err != nil {
		return errors.Wrap(err, "cannot marshal schema command")
	}
	f := r.raft.Apply(buf, r.applyTimeout)
	if err = f.Error(); err != nil {
		return errors.Wrap(err, "apply schema command")
	}
	if err, ok := f.Response().(error); ok {
		return err
	}
	return nil
}

func (r *RaftProcessor) Close() error {
	return r.raft.Shutdown().Error()
}

type processorFSM struct {
	p *Processor
}

func (f *processorFSM) Apply(l *hraft.Log) interface{} {
	var cmd command
	if err := json.Unmarshal(l.Data, &cmd); err != nil {
		return errors.Wrapf(err, "cannot parse schema command at index %d", l.Index)
	}
	path, err := metapath.Parse(cmd.Path)
	if err != nil {
		return err
	}
	switch cmd.Type {
	case setStorageGroupCommand:
		return f.p.SetStorageGroup(path)
	case createTimeseriesCommand:
		if len(cmd.Schemas) != 1 {
			return errors.Newf("create timeseries %s carries %d schemas", cmd.Path, len(cmd.Schemas))
		}
		return f.p.CreateTimeseries(path, cmd.Schemas[0])
	case createAlignedTimeseriesCommand:
		return f.p.CreateAlignedTimeseries(path, cmd.Schemas)
	}
	return errors.Newf("unknown schema command %d", cmd.Type)
}

type snapshotData struct {
	StorageGroups []string             `json:"storageGroups"`
	Timeseries    []snapshotTimeseries `json:"timeseries"`
}

type snapshotTimeseries struct {
	Path    string            `json:"path"`
	Schema  MeasurementSchema `json:"schema"`
	Aligned bool              `json:"aligned"`
}

func (f *processorFSM) Snapshot() (hraft.FSMSnapshot, error) {
	data := &snapshotData{StorageGroups: metapath.Strings(f.p.StorageGroups())}
	for _, ts := range f.p.AllTimeseries() {
		data.Timeseries = append(data.Timeseries, snapshotTimeseries{Path: ts.Path.String(), Schema: ts.Schema, Aligned: ts.Aligned})
	}
	return data, nil
}

func (f *processorFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var data snapshotData
	if err := json.NewDecoder(rc).Decode(&data); err != nil {
		return corrupted(errors.Wrap(err, "cannot parse schema raft snapshot"))
	}
	p := NewProcessor()
	for _, s := range data.StorageGroups {
		sg, err := metapath.Parse(s)
		if err != nil {
			return corrupted(err)
		}
		if err = p.SetStorageGroup(sg); err != nil {
			return err
		}
	}
	for _, ts := range data.Timeseries {
		path, err := metapath.Parse(ts.Path)
		if err != nil {
			return corrupted(err)
		}
		if ts.Aligned {
			err = p.CreateAlignedTimeseries(path.Device(), []MeasurementSchema{ts.Schema})
		} else {
			err = p.CreateTimeseries(path, ts.Schema)
		}
		if err != nil {
			return err
		}
	}
	f.p.replaceWith(p)
	return nil
}

func (s *snapshotData) Persist(sink hraft.SnapshotSink) error {
	persist := func() error {
		buf, err := json.Marshal(s)
		if err != nil {
			return err
		}
		if _, err = sink.Write(buf); err != nil {
			return err
		}
		return sink.Close()
	}
	if err := persist(); err != nil {
		if cancelErr := sink.Cancel(); cancelErr != nil {
			return cancelErr
		}
		return err
	}
	return nil
}

func (s *snapshotData) Release() {}
