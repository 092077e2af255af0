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
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tsgrid/tsgrid/lib/config"
	"github.com/tsgrid/tsgrid/lib/errno"
	"github.com/tsgrid/tsgrid/lib/logger"
	"github.com/tsgrid/tsgrid/lib/partition"
	"go.uber.org/zap"
)

// SyncClient issues one blocking call at a time over one connection.
type SyncClient struct {
	node  partition.Node
	conn  net.Conn
	codec *Codec
}

func (c *SyncClient) Node() partition.Node {
	return c.node
}

// Call sends req and waits for the response. ctx's deadline bounds the round trip.
func (c *SyncClient) Call(ctx context.Context, typ uint8, req *MetaRequest) (*MetaResponse, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, errors.Wrap(err, "set deadline")
	}
	if err := c.codec.WriteFrame(c.conn, typ, req); err != nil {
		return nil, err
	}
	_, v, err := c.codec.ReadFrame(c.conn, newResponseValue)
	if err != nil {
		return nil, err
	}
	resp, ok := v.(*MetaResponse)
	if !ok {
		return nil, errno.NewError(errno.InvalidDataType, "*netstorage.MetaResponse", "unknown")
	}
	return resp, nil
}

func (c *SyncClient) Close() error {
	return c.conn.Close()
}

// ClientPool keeps idle connections per node. A client that failed is
// discarded by the caller instead of being returned.
type ClientPool struct {
	mu      sync.Mutex
	idle    map[partition.Node][]*SyncClient
	maxIdle int
	dial    time.Duration
	codec   *Codec
	closed  bool
	logger  *logger.Logger
}

func NewClientPool(conf config.Cluster) *ClientPool {
	return &ClientPool{
		idle:    make(map[partition.Node][]*SyncClient),
		maxIdle: conf.MaxIdleConnsPerNode,
		dial:    time.Duration(conf.DialTimeout),
		codec:   NewCodec(int(conf.CompressThreshold), int(conf.MaxFrameSize)),
		logger:  logger.NewLogger(errno.ModuleNetwork).With(zap.String("service", "client_pool")),
	}
}

// Borrow returns an idle client of node or dials a new one.
func (p *ClientPool) Borrow(ctx context.Context, node partition.Node) (*SyncClient, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errno.NewError(errno.PoolClosed)
	}
	if clients := p.idle[node]; len(clients) > 0 {
		c := clients[len(clients)-1]
		p.idle[node] = clients[:len(clients)-1]
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	d := net.Dialer{Timeout: p.dial}
	conn, err := d.DialContext(ctx, "tcp", node.Addr())
	if err != nil {
		return nil, errno.NewError(errno.NoConnectionAvailable, node.ID, node.Addr()).SetCause(err)
	}
	return &SyncClient{node: node, conn: conn, codec: p.codec}, nil
}

// Return hands a healthy client back for reuse.
func (p *ClientPool) Return(c *SyncClient) {
	p.mu.Lock()
	if !p.closed && len(p.idle[c.node]) < p.maxIdle {
		p.idle[c.node] = append(p.idle[c.node], c)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.Discard(c)
}

// Discard closes a client whose connection may be broken.
func (p *ClientPool) Discard(c *SyncClient) {
	if err := c.Close(); err != nil {
		p.logger.Debug("close client failed", zap.String("node", c.node.String()), zap.Error(err))
	}
}

func (p *ClientPool) IdleCount(node partition.Node) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle[node])
}

func (p *ClientPool) Close() {
	p.mu.Lock()
	idle := p.idle
	p.idle = make(map[partition.Node][]*SyncClient)
	p.closed = true
	p.mu.Unlock()
	for _, clients := range idle {
		for _, c := range clients {
			p.Discard(c)
		}
	}
}

// Call borrows a client of node, issues the call and returns or discards the client.
func (p *ClientPool) Call(ctx context.Context, node partition.Node, typ uint8, req *MetaRequest) (*MetaResponse, error) {
	c, err := p.Borrow(ctx, node)
	if err != nil {
		return nil, err
	}
	resp, err := c.Call(ctx, typ, req)
	if err != nil {
		p.Discard(c)
		return nil, err
	}
	p.Return(c)
	return resp, nil
}
