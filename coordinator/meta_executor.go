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
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/tsgrid/tsgrid/lib/errno"
	"github.com/tsgrid/tsgrid/lib/logger"
	"github.com/tsgrid/tsgrid/lib/metrics"
	"go.uber.org/zap"
)

const metaExecutorReadTimeout = 30 * time.Second

// hardErrors fail the whole fan-out. Anything else a unit returns only
// means the unit contributed nothing.
var hardErrors = []errno.Errno{
	errno.ConsistencyCheckFailed,
	errno.NoLeader,
	errno.PathNotExist,
	errno.RecoverPanic,
}

func isHardError(err error) bool {
	for _, code := range hardErrors {
		if errno.Is(err, code) {
			return true
		}
	}
	return false
}

type IMetaExecutor interface {
	SetTimeOut(timeout time.Duration)
	EachUnit(ctx context.Context, op string, units, capacity int, fn func(ctx context.Context, i int) error) error
}

// MetaExecutor runs one unit of work per target on a pool that lives for
// a single call.
type MetaExecutor struct {
	timeout time.Duration
	Logger  *logger.Logger
	Stats   *metrics.CoordinatorStats
}

func NewMetaExecutor() *MetaExecutor {
	return &MetaExecutor{
		timeout: metaExecutorReadTimeout,
		Logger:  logger.NewLogger(errno.ModuleCoordinator).With(zap.String("service", "meta_executor")),
		Stats:   &metrics.CoordinatorStats{},
	}
}

func (m *MetaExecutor) SetTimeOut(timeout time.Duration) {
	m.timeout = timeout
}

// EachUnit calls fn for i in [0, units) concurrently, with at most
// capacity units in flight (capacity <= 0 means one worker per unit).
// fn gets a context bounded by the read timeout.
//
// The call returns once every unit finished or the timeout elapsed; in
// the latter case results gathered so far stand. A cancelled ctx fails
// the call with errno.OperationInterrupted. Unit errors are logged and
// dropped, except consistency, missing path and panic errors, which are
// returned after the units drained as errno.MetaAggregateFailed.
func (m *MetaExecutor) EachUnit(ctx context.Context, op string, units, capacity int, fn func(ctx context.Context, i int) error) error {
	if units <= 0 {
		return nil
	}
	size := units
	if capacity > 0 && capacity < size {
		size = capacity
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return errno.NewThirdParty(err, errno.ModuleCoordinator)
	}
	defer pool.Release()

	m.Stats.FanOutCalls.Inc()
	m.Stats.FanOutUnits.Add(int64(units))

	waitCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		hard   error
		record = func(i int, err error) {
			if err == nil {
				return
			}
			if isHardError(err) {
				m.Stats.HardFailures.Inc()
				m.Logger.Error("unit failed", zap.String("op", op), zap.Int("unit", i), zap.Error(err))
				mu.Lock()
				if hard == nil {
					hard = err
				}
				mu.Unlock()
				return
			}
			m.Stats.SoftFailures.Inc()
			m.Logger.Warn("unit failed, contributes nothing", zap.String("op", op), zap.Int("unit", i), zap.Error(err))
		}
	)

	for i := 0; i < units; i++ {
		i := i
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					record(i, errno.NewError(errno.RecoverPanic, r))
				}
			}()
			record(i, fn(waitCtx, i))
		})
		if submitErr != nil {
			wg.Done()
			record(i, submitErr)
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			m.Stats.Interrupts.Inc()
			m.Logger.Warn("interrupted while waiting for units", zap.String("op", op), zap.Error(ctx.Err()))
			return errno.NewError(errno.OperationInterrupted, op, ctx.Err()).SetCause(ctx.Err())
		}
		m.Stats.Timeouts.Inc()
		m.Logger.Warn("units did not finish in time, returning partial result",
			zap.String("op", op), zap.Duration("timeout", m.timeout))
	}

	mu.Lock()
	defer mu.Unlock()
	if hard != nil {
		return errno.NewError(errno.MetaAggregateFailed, op, hard).SetCause(hard)
	}
	return nil
}
