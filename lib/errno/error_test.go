// Copyright 2022 Huawei Cloud Computing Technologies Co., Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errno_test

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsgrid/tsgrid/lib/errno"
)

func TestError(t *testing.T) {
	nodeId := 1
	address := "127.0.0.2"
	err := errno.NewError(errno.NoConnectionAvailable, nodeId, address)
	if !assert.NotEmpty(t, err, "new error failed with nil result") {
		return
	}

	exp := fmt.Sprintf("no connections available, node: %v, %v", nodeId, address)
	assert.EqualError(t, err, exp)
}

func TestUnknown(t *testing.T) {
	err := errno.NewError(65533, 1, "aaa")
	if !assert.NotEmpty(t, err, "new error failed with nil result") {
		return
	}

	assert.EqualError(t, err, "unknown error")
	_ = err.SetModule(errno.ModuleMeta).SetErrno(errno.RecoverPanic)

	assert.Equal(t, int(err.Module()), errno.ModuleMeta)
	assert.Equal(t, int(err.Errno()), errno.RecoverPanic)

}

func TestMessage(t *testing.T) {
	type Item struct {
		err    error
		errno  errno.Errno
		module errno.Module
		level  errno.Level
	}

	var items = []*Item{
		{
			err:    errno.NewError(errno.PathNotExist, "root.sg"),
			errno:  errno.PathNotExist,
			module: errno.ModuleMeta,
			level:  errno.LevelNotice,
		},
		{
			err:    errno.NewError(errno.ConsistencyCheckFailed, 1, 2),
			errno:  errno.ConsistencyCheckFailed,
			module: errno.ModuleConsistency,
			level:  errno.LevelWarn,
		},
		{
			err:    errno.NewError(errno.PlanNodeMisuse, "LimitNode", "add child"),
			errno:  errno.PlanNodeMisuse,
			module: errno.ModuleQueryEngine,
			level:  errno.LevelFatal,
		},
	}

	for _, item := range items {
		err, ok := item.err.(*errno.Error)
		if !ok {
			t.Fatalf("invalid error type, exp: *errno.Error; got: %s", reflect.TypeOf(item.err))
		}

		assert.Equal(t, item.module, err.Module())
		assert.Equal(t, item.level, err.Level())
		assert.Equal(t, item.errno, err.Errno())
	}
}

func TestIllegalPathMessage(t *testing.T) {
	assert.EqualError(t, errno.NewError(errno.IllegalPath, "root..a"), "root..a is not a legal path")
}

func TestConvert(t *testing.T) {
	err := errors.New("some error")
	thirdParty := errno.NewThirdParty(err, errno.ModuleUnknown)
	assert.Equal(t, thirdParty.Error(), err.Error())
	assert.ErrorIs(t, thirdParty, err)
	assert.True(t, thirdParty == errno.NewThirdParty(thirdParty, errno.ModuleMeta))
	assert.Equal(t, int(thirdParty.Errno()), errno.ThirdPartyError)

	remote := errno.NewRemote("test error", errno.PathNotExist).SetModule(errno.ModuleMeta)
	assert.Equal(t, int(remote.Errno()), errno.PathNotExist)
	assert.Equal(t, int(remote.Module()), errno.ModuleMeta)
	assert.EqualError(t, remote, "remote error: test error")
}

func TestEqual(t *testing.T) {
	assert.False(t, errno.Equal(nil, errno.PathNotExist))

	err := errno.NewError(errno.PathNotExist, "root.sg")
	assert.True(t, errno.Equal(err, errno.PathNotExist))

	assert.False(t, errno.Equal(err, errno.InvalidAddress))
	assert.False(t, errno.Equal(fmt.Errorf("some error"), errno.PathNotExist))
}

func TestIsWalksCause(t *testing.T) {
	inner := errno.NewError(errno.ConsistencyCheckFailed, 3, 9)
	outer := errno.NewError(errno.MetaAggregateFailed, "getNodesList", inner).SetCause(inner)

	assert.True(t, errno.Is(outer, errno.MetaAggregateFailed))
	assert.True(t, errno.Is(outer, errno.ConsistencyCheckFailed))
	assert.False(t, errno.Is(outer, errno.PathNotExist))

	wrapped := fmt.Errorf("query: %w", outer)
	assert.False(t, errno.Equal(wrapped, errno.ConsistencyCheckFailed))
	assert.True(t, errno.Is(wrapped, errno.ConsistencyCheckFailed))
	assert.False(t, errno.Is(nil, errno.ConsistencyCheckFailed))
}

func TestStackOnlyForFatal(t *testing.T) {
	err := errno.NewError(errno.PathNotExist, "root.a")
	assert.Empty(t, err.Stack())
}
