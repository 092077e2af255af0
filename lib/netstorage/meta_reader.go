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
	"time"

	"github.com/tsgrid/tsgrid/lib/config"
	"github.com/tsgrid/tsgrid/lib/partition"
)

// MetaReader issues the remote schema calls of the coordinator against
// one replica of a group. answered is false when the replica gave no
// result, which lets the caller move on to the next replica. A non-nil
// error means the call itself failed.
type MetaReader interface {
	GetDeviceCount(ctx context.Context, node partition.Node, group *partition.PartitionGroup, paths []string) (count int, answered bool, err error)
	GetPathCount(ctx context.Context, node partition.Node, group *partition.PartitionGroup, paths []string, level int) (count int, answered bool, err error)
	GetNodeList(ctx context.Context, node partition.Node, group *partition.PartitionGroup, path string, level int) (paths []string, answered bool, err error)
	GetChildNodeInNextLevel(ctx context.Context, node partition.Node, group *partition.PartitionGroup, path string) (names []string, answered bool, err error)
	GetChildNodePathInNextLevel(ctx context.Context, node partition.Node, group *partition.PartitionGroup, path string) (paths []string, answered bool, err error)
	Close()
}

// NewMetaReader picks the blocking or the callback transport as configured.
func NewMetaReader(conf config.Cluster) (MetaReader, error) {
	pool := NewClientPool(conf)
	timeout := time.Duration(conf.ReadOperationTimeout)
	if !conf.UseAsyncServer {
		return &syncMetaReader{metaCaller: metaCaller{timeout: timeout, call: pool.Call}, pool: pool}, nil
	}
	client, err := NewAsyncClient(pool, conf.AsyncCallbackPool)
	if err != nil {
		return nil, err
	}
	return newAsyncMetaReader(client, timeout), nil
}

type callFunc func(ctx context.Context, node partition.Node, typ uint8, req *MetaRequest) (*MetaResponse, error)

// metaCaller implements every call on top of one round trip function.
// A nil response with a nil error is an unanswered call.
type metaCaller struct {
	timeout time.Duration
	call    callFunc
}

func (m *metaCaller) do(ctx context.Context, node partition.Node, typ uint8, req *MetaRequest) (*MetaResponse, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	resp, err := m.call(ctx, node, typ, req)
	if err != nil || resp == nil {
		return nil, err
	}
	return resp, resp.Error()
}

func newRequest(group *partition.PartitionGroup) *MetaRequest {
	return &MetaRequest{Header: group.Header, RaftID: group.RaftID}
}

func (m *metaCaller) count(ctx context.Context, node partition.Node, typ uint8, req *MetaRequest) (int, bool, error) {
	resp, err := m.do(ctx, node, typ, req)
	if err != nil || resp == nil {
		return 0, false, err
	}
	return resp.Count, true, nil
}

func (m *metaCaller) list(ctx context.Context, node partition.Node, typ uint8, req *MetaRequest) ([]string, bool, error) {
	resp, err := m.do(ctx, node, typ, req)
	if err != nil || resp == nil {
		return nil, false, err
	}
	return resp.Paths, true, nil
}

func (m *metaCaller) GetDeviceCount(ctx context.Context, node partition.Node, group *partition.PartitionGroup, paths []string) (int, bool, error) {
	req := newRequest(group)
	req.Paths = paths
	return m.count(ctx, node, GetDeviceCountRequestMessage, req)
}

func (m *metaCaller) GetPathCount(ctx context.Context, node partition.Node, group *partition.PartitionGroup, paths []string, level int) (int, bool, error) {
	req := newRequest(group)
	req.Paths = paths
	req.Level = level
	return m.count(ctx, node, GetPathCountRequestMessage, req)
}

func (m *metaCaller) GetNodeList(ctx context.Context, node partition.Node, group *partition.PartitionGroup, path string, level int) ([]string, bool, error) {
	req := newRequest(group)
	req.Path = path
	req.Level = level
	return m.list(ctx, node, GetNodeListRequestMessage, req)
}

func (m *metaCaller) GetChildNodeInNextLevel(ctx context.Context, node partition.Node, group *partition.PartitionGroup, path string) ([]string, bool, error) {
	req := newRequest(group)
	req.Path = path
	return m.list(ctx, node, GetChildNodeInNextLevelRequestMessage, req)
}

func (m *metaCaller) GetChildNodePathInNextLevel(ctx context.Context, node partition.Node, group *partition.PartitionGroup, path string) ([]string, bool, error) {
	req := newRequest(group)
	req.Path = path
	return m.list(ctx, node, GetChildNodePathInNextLevelRequestMessage, req)
}

type syncMetaReader struct {
	metaCaller
	pool *ClientPool
}

func (r *syncMetaReader) Close() {
	r.pool.Close()
}

// asyncMetaReader waits for the callback of an AsyncClient. A call that
// does not complete within the read timeout is unanswered.
type asyncMetaReader struct {
	metaCaller
	client *AsyncClient
}

type callResult struct {
	resp *MetaResponse
	err  error
}

func newAsyncMetaReader(client *AsyncClient, timeout time.Duration) *asyncMetaReader {
	r := &asyncMetaReader{client: client}
	r.metaCaller = metaCaller{timeout: timeout, call: r.wait}
	return r
}

func (r *asyncMetaReader) wait(ctx context.Context, node partition.Node, typ uint8, req *MetaRequest) (*MetaResponse, error) {
	done := make(chan callResult, 1)
	if err := r.client.Go(ctx, node, typ, req, func(resp *MetaResponse, err error) {
		done <- callResult{resp: resp, err: err}
	}); err != nil {
		return nil, err
	}
	select {
	case res := <-done:
		if res.err != nil && ctx.Err() != nil {
			return nil, nil
		}
		return res.resp, res.err
	case <-ctx.Done():
		return nil, nil
	}
}

func (r *asyncMetaReader) Close() {
	r.client.Close()
}
