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

	"github.com/panjf2000/ants/v2"
	"github.com/tsgrid/tsgrid/lib/errno"
	"github.com/tsgrid/tsgrid/lib/partition"
)

// Callback receives the outcome of an asynchronous call. It runs on a worker goroutine.
type Callback func(resp *MetaResponse, err error)

// AsyncClient runs calls on a bounded goroutine pool and reports through callbacks.
type AsyncClient struct {
	pool    *ClientPool
	workers *ants.Pool
}

func NewAsyncClient(pool *ClientPool, workers int) (*AsyncClient, error) {
	p, err := ants.NewPool(workers)
	if err != nil {
		return nil, errno.NewThirdParty(err, errno.ModuleNetwork)
	}
	return &AsyncClient{pool: pool, workers: p}, nil
}

// Go submits the call. cb is invoked exactly once unless Go returns an error.
func (c *AsyncClient) Go(ctx context.Context, node partition.Node, typ uint8, req *MetaRequest, cb Callback) error {
	return c.workers.Submit(func() {
		cb(c.pool.Call(ctx, node, typ, req))
	})
}

func (c *AsyncClient) Close() {
	c.workers.Release()
	c.pool.Close()
}
