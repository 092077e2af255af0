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

package netstorage

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/tsgrid/tsgrid/lib/config"
	"github.com/tsgrid/tsgrid/lib/errno"
	"github.com/tsgrid/tsgrid/lib/listener"
	"github.com/tsgrid/tsgrid/lib/logger"
	"github.com/tsgrid/tsgrid/lib/partition"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// MetaHandler answers the schema calls addressed to one local partition group.
type MetaHandler interface {
	GetDeviceCount(ctx context.Context, header partition.Node, raftID int, paths []string) (int, error)
	GetPathCount(ctx context.Context, header partition.Node, raftID int, paths []string, level int) (int, error)
	GetNodeList(ctx context.Context, header partition.Node, raftID int, path string, level int) ([]string, error)
	GetChildNodeInNextLevel(ctx context.Context, header partition.Node, raftID int, path string) ([]string, error)
	GetChildNodePathInNextLevel(ctx context.Context, header partition.Node, raftID int, path string) ([]string, error)
}

// Server serves MetaHandler over the frame protocol, one goroutine per connection.
type Server struct {
	conf    config.Cluster
	handler MetaHandler
	codec   *Codec
	limiter *rate.Limiter
	timeout time.Duration

	mu    sync.Mutex
	ln    net.Listener
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup

	logger *logger.Logger
}

func NewServer(conf config.Cluster, handler MetaHandler) *Server {
	s := &Server{
		conf:    conf,
		handler: handler,
		codec:   NewCodec(int(conf.CompressThreshold), int(conf.MaxFrameSize)),
		timeout: time.Duration(conf.ReadOperationTimeout),
		conns:   make(map[net.Conn]struct{}),
		logger:  logger.NewLogger(errno.ModuleNetwork).With(zap.String("service", "meta_server")),
	}
	if conf.ServerRateLimit > 0 {
		burst := conf.ServerRateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(conf.ServerRateLimit), burst)
	}
	return s
}

// Open starts listening on the configured bind address.
func (s *Server) Open() error {
	ln, err := net.Listen("tcp", s.conf.BindAddress)
	if err != nil {
		return errno.NewError(errno.InvalidAddress, s.conf.BindAddress).SetCause(err)
	}
	s.Serve(ln)
	return nil
}

// Serve accepts connections of ln in the background.
func (s *Server) Serve(ln net.Listener) {
	if s.conf.MaxConnectionLimit > 0 {
		ln = listener.NewLimitListener(ln, s.conf.MaxConnectionLimit, s.conf.WhiteList)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.logger.Info("meta server listening", zap.String("addr", ln.Addr().String()))
	s.wg.Add(1)
	go s.accept(ln)
}

func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) accept(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Error("accept failed", zap.Error(err))
			}
			return
		}
		if !s.track(conn) {
			_ = conn.Close()
			return
		}
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)

	for {
		typ, v, err := s.codec.ReadFrame(conn, newRequestValue)
		if err != nil {
			if errno.Equal(err, errno.UnknownMessageType) {
				// the frame was consumed, the stream is still in sync
				if !s.reply(conn, &MetaResponse{}, err) {
					return
				}
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("read request failed", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
			}
			return
		}

		if s.limiter != nil && !s.limiter.Allow() {
			if !s.reply(conn, &MetaResponse{}, errno.NewError(errno.RequestRateLimited)) {
				return
			}
			continue
		}

		resp, err := s.dispatch(typ, v.(*MetaRequest))
		if !s.reply(conn, resp, err) {
			return
		}
	}
}

func (s *Server) reply(conn net.Conn, resp *MetaResponse, err error) bool {
	resp.SetError(err)
	if err := s.codec.WriteFrame(conn, ResponseMessage, resp); err != nil {
		s.logger.Warn("write response failed", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
		return false
	}
	return true
}

func (s *Server) dispatch(typ uint8, req *MetaRequest) (*MetaResponse, error) {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp := &MetaResponse{}
	var err error
	switch typ {
	case GetDeviceCountRequestMessage:
		resp.Count, err = s.handler.GetDeviceCount(ctx, req.Header, req.RaftID, req.Paths)
	case GetPathCountRequestMessage:
		resp.Count, err = s.handler.GetPathCount(ctx, req.Header, req.RaftID, req.Paths, req.Level)
	case GetNodeListRequestMessage:
		resp.Paths, err = s.handler.GetNodeList(ctx, req.Header, req.RaftID, req.Path, req.Level)
	case GetChildNodeInNextLevelRequestMessage:
		resp.Paths, err = s.handler.GetChildNodeInNextLevel(ctx, req.Header, req.RaftID, req.Path)
	case GetChildNodePathInNextLevelRequestMessage:
		resp.Paths, err = s.handler.GetChildNodePathInNextLevel(ctx, req.Header, req.RaftID, req.Path)
	default:
		err = errno.NewError(errno.UnknownMessageType, typ)
	}
	return resp, err
}

// Close stops accepting, closes open connections and waits for their goroutines.
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.ln
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	for conn := range conns {
		_ = conn.Close()
	}
	s.wg.Wait()
	return err
}
