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
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsgrid/tsgrid/lib/errno"
	"github.com/tsgrid/tsgrid/lib/partition"
)

func TestMessageName(t *testing.T) {
	assert.Equal(t, "getPathCount", MessageName(GetPathCountRequestMessage))
	assert.Equal(t, "unknown", MessageName(UnknownMessage))
	assert.Equal(t, "unknown", MessageName(200))
}

func TestResponseError(t *testing.T) {
	resp := &MetaResponse{}
	resp.SetError(nil)
	assert.NoError(t, resp.Error())

	resp.SetError(errno.NewError(errno.PathNotExist, "root.x"))
	err := resp.Error()
	require.Error(t, err)
	assert.True(t, errno.Equal(err, errno.PathNotExist))
	assert.Contains(t, err.Error(), "root.x")
	assert.Equal(t, errno.Module(errno.ModuleMeta), err.(*errno.Error).Module())

	// the module of the remote error survives the frame codec
	codec := NewCodec(0, 0)
	buf := &bytes.Buffer{}
	require.NoError(t, codec.WriteFrame(buf, ResponseMessage, resp))
	_, v, err := codec.ReadFrame(buf, newResponseValue)
	require.NoError(t, err)
	decoded := v.(*MetaResponse).Error()
	assert.True(t, errno.Is(decoded, errno.PathNotExist))
	assert.Equal(t, errno.Module(errno.ModuleMeta), decoded.(*errno.Error).Module())

	resp = &MetaResponse{}
	resp.SetError(fmt.Errorf("disk full"))
	assert.True(t, errno.Equal(resp.Error(), errno.RemoteError))
	assert.Contains(t, resp.Error().Error(), "disk full")
	assert.Equal(t, errno.Module(errno.ModuleNetwork), resp.Error().(*errno.Error).Module())
}

func TestCodecRoundTrip(t *testing.T) {
	req := &MetaRequest{
		Header: partition.Node{ID: 1, Host: "127.0.0.1", Port: 6667},
		RaftID: 2,
		Paths:  []string{"root.sg.**"},
		Level:  3,
	}
	for _, threshold := range []int{0, 8} {
		codec := NewCodec(threshold, 1024)
		buf := &bytes.Buffer{}
		require.NoError(t, codec.WriteFrame(buf, GetPathCountRequestMessage, req))

		flags := buf.Bytes()[frameHeaderSize]
		assert.Equal(t, threshold > 0, flags&flagSnappy != 0)

		typ, v, err := codec.ReadFrame(buf, newRequestValue)
		require.NoError(t, err)
		assert.Equal(t, GetPathCountRequestMessage, typ)
		assert.Equal(t, req, v)
	}
}

func TestCodecFrameTooLarge(t *testing.T) {
	codec := NewCodec(0, 32)
	err := codec.WriteFrame(&bytes.Buffer{}, ResponseMessage, &MetaResponse{Paths: []string{strings.Repeat("a", 64)}})
	assert.True(t, errno.Equal(err, errno.FrameTooLarge))

	buf := &bytes.Buffer{}
	var header [frameHeaderSize]byte
	binary.BigEndian.PutUint32(header[:], 1<<20)
	buf.Write(header[:])
	_, _, err = codec.ReadFrame(buf, newResponseValue)
	assert.True(t, errno.Equal(err, errno.FrameTooLarge))

	buf.Reset()
	binary.BigEndian.PutUint32(header[:], 1)
	buf.Write(header[:])
	_, _, err = codec.ReadFrame(buf, newResponseValue)
	assert.True(t, errno.Equal(err, errno.InvalidDataSize))
}

func TestCodecUnknownType(t *testing.T) {
	codec := NewCodec(0, 0)
	buf := &bytes.Buffer{}
	require.NoError(t, codec.WriteFrame(buf, 99, &MetaRequest{}))
	_, _, err := codec.ReadFrame(buf, newRequestValue)
	assert.True(t, errno.Equal(err, errno.UnknownMessageType))
	assert.Equal(t, 0, buf.Len())

	require.NoError(t, codec.WriteFrame(buf, GetNodeListRequestMessage, &MetaRequest{}))
	_, _, err = codec.ReadFrame(buf, newResponseValue)
	assert.True(t, errno.Equal(err, errno.UnknownMessageType))
}
