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

package run

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tsgrid/tsgrid/app"
	"github.com/tsgrid/tsgrid/coordinator"
	"github.com/tsgrid/tsgrid/engine/hybridqp"
	"github.com/tsgrid/tsgrid/lib/config"
	"github.com/tsgrid/tsgrid/lib/consistency"
	"github.com/tsgrid/tsgrid/lib/httpserver"
	Logger "github.com/tsgrid/tsgrid/lib/logger"
	"github.com/tsgrid/tsgrid/lib/metrics"
	"github.com/tsgrid/tsgrid/lib/netstorage"
	"github.com/tsgrid/tsgrid/lib/partition"
	"github.com/tsgrid/tsgrid/lib/schema"
	"go.etcd.io/etcd/raft/v3"
	"go.uber.org/zap"
)

// Server is one ts-node process: the schema of its replica groups, the
// meta transport answering peers and the cluster plan executor on top.
type Server struct {
	info app.ServerInfo

	err chan error

	config *config.TSNode
	local  partition.Node

	Logger *Logger.Logger

	table     *partition.SlotTable
	processor *schema.Processor
	schemaLog *schema.RaftProcessor // nil without raft-enabled
	store     httpserver.SchemaStore
	snapshots *schema.SnapshotStore
	service   *coordinator.LocalMetaService
	transport *netstorage.Server
	reader    netstorage.MetaReader
	executor  *coordinator.ClusterPlanExecutor
	registry  *prometheus.Registry

	httpListener net.Listener
	httpServer   *http.Server
}

// NewServer returns a new instance of Server built from a config.
func NewServer(c config.Config, info app.ServerInfo, logger *Logger.Logger) (app.Server, error) {
	conf, ok := c.(*config.TSNode)
	if !ok {
		return nil, fmt.Errorf("unexpected config type %T", c)
	}

	local, err := partition.ParseNode(fmt.Sprintf("%d@%s", conf.Common.NodeID, conf.Cluster.BindAddress))
	if err != nil {
		return nil, err
	}

	table, err := partition.NewSlotTableFromConfig(conf.Partition)
	if err != nil {
		return nil, err
	}

	return &Server{
		info:      info,
		err:       make(chan error, 1),
		config:    conf,
		local:     local,
		Logger:    logger.With(zap.String("node", local.String())),
		table:     table,
		processor: schema.NewProcessor(),
		registry:  prometheus.NewRegistry(),
	}, nil
}

// Err returns an error channel that multiplexes all out of band errors received from all services.
func (s *Server) Err() <-chan error { return s.err }

// Open loads the schema snapshot and starts the meta transport and the HTTP endpoints.
func (s *Server) Open() error {
	// Mark start-up in log.
	app.LogStarting("TSNode", &s.info)
	raft.SetLogger(Logger.NewRaftLogger(s.config.Logging))

	if err := s.openSchema(); err != nil {
		return err
	}

	gates := make(coordinator.Gates)
	for _, g := range s.table.LocalGroups(s.local) {
		gates[g.Key()] = s.newGate(g.String())
	}
	s.service = coordinator.NewLocalMetaService(s.table, s.processor, gates)
	s.service.SkipConsistency = s.config.Cluster.DisableConsistencyOnRemote

	s.transport = netstorage.NewServer(s.config.Cluster, s.service)
	if err := s.transport.Open(); err != nil {
		return fmt.Errorf("open meta transport: %s", err)
	}

	reader, err := netstorage.NewMetaReader(s.config.Cluster)
	if err != nil {
		return fmt.Errorf("create meta reader: %s", err)
	}
	s.reader = reader

	s.executor = coordinator.NewClusterPlanExecutor(s.config.Cluster, s.local)
	s.executor.MetaGate = s.newGate("meta")
	s.executor.Table = s.table
	s.executor.Schema = s.processor
	s.executor.Service = s.service
	s.executor.Reader = s.reader

	if err = metrics.Register(s.registry, s.executor.Executor.Stats); err != nil {
		return err
	}

	if s.config.HTTP.Enabled {
		if err = s.openHTTP(); err != nil {
			return err
		}
	}

	s.Logger.Info("ts-node opened",
		zap.String("transport", s.transport.Addr().String()),
		zap.Int("localGroups", len(gates)))
	return nil
}

func (s *Server) openSchema() error {
	path := s.config.Schema.SnapshotPath
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}
	store, err := schema.OpenSnapshotStore(path)
	if err != nil {
		return fmt.Errorf("open schema snapshot %s: %s", path, err)
	}
	s.snapshots = store

	start := time.Now()
	if err = store.Load(s.processor); err != nil {
		return err
	}
	s.Logger.Info("schema snapshot loaded",
		zap.String("path", path),
		zap.Int("storageGroups", len(s.processor.StorageGroups())),
		zap.Duration("duration", time.Since(start)))

	s.store = s.processor
	if !s.config.Schema.RaftEnabled {
		return nil
	}
	id := fmt.Sprintf("schema-%d", s.local.ID)
	logOutput := zap.NewStdLog(s.Logger.With(zap.String("raft", id)).GetZapLogger()).Writer()
	s.schemaLog, err = schema.OpenRaftProcessor(s.processor, id, s.config.Schema, logOutput)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.config.Schema.ApplyTimeout))
	defer cancel()
	if err = s.schemaLog.WaitForLeader(ctx); err != nil {
		return fmt.Errorf("schema raft %s: %s", id, err)
	}
	s.store = s.schemaLog
	return nil
}

// newGate checks local reads against the schema raft log. Without it the
// processor is the only copy and always fresh.
func (s *Server) newGate(name string) consistency.Gate {
	if s.schemaLog == nil {
		return consistency.AlwaysFresh{}
	}
	progress := &consistency.HashicorpProgress{Group: name, Raft: s.schemaLog.Raft()}
	return consistency.NewLeaderGate(name, progress, s.config.Cluster)
}

func (s *Server) openHTTP() error {
	h := httpserver.NewHandler()
	h.Cluster = s.executor
	h.Schema = s.store
	h.Partition = partition.NewDataPartition(s.table, s.processor)
	h.Gatherer = s.registry
	h.QueryIDs = hybridqp.NewQueryIDGenerator(int(s.local.ID))
	h.RequestTimeout = time.Duration(s.config.Cluster.ReadOperationTimeout)
	h.Persist = s.saveSchema

	ln, err := net.Listen("tcp", s.config.HTTP.BindAddress)
	if err != nil {
		return fmt.Errorf("listen http %s: %s", s.config.HTTP.BindAddress, err)
	}
	s.httpListener = ln
	s.httpServer = &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(s.Logger.GetZapLogger()),
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			select {
			case s.err <- err:
			default:
			}
		}
	}()
	s.Logger.Info("http service listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// HTTPAddr is the address the HTTP endpoints listen on, nil when disabled.
func (s *Server) HTTPAddr() net.Addr {
	if s.httpListener == nil {
		return nil
	}
	return s.httpListener.Addr()
}

// Executor exposes the cluster plan executor of the node.
func (s *Server) Executor() *coordinator.ClusterPlanExecutor {
	return s.executor
}

func (s *Server) saveSchema() error {
	return s.snapshots.Save(s.processor)
}

// Close stops the endpoints and writes the final schema snapshot.
func (s *Server) Close() error {
	log := Logger.GetLogger()
	log.Info("gracefully shutting down the service")
	startTime := time.Now()

	if s.httpServer != nil {
		if err := s.httpServer.Close(); err != nil {
			log.Error("close http server failed", zap.Error(err))
		}
	}
	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			log.Error("close meta transport failed", zap.Error(err))
		}
	}
	if s.reader != nil {
		s.reader.Close()
	}

	var err error
	if s.schemaLog != nil {
		if rerr := s.schemaLog.Close(); rerr != nil {
			log.Error("shutdown schema raft failed", zap.Error(rerr))
		}
	}
	if s.snapshots != nil {
		if err = s.saveSchema(); err != nil {
			log.Error("save schema snapshot failed", zap.Error(err))
		}
		if cerr := s.snapshots.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	log.Info("successfully shut down", zap.Float64("the service in seconds", time.Since(startTime).Seconds()))
	return err
}
