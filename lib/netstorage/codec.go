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
	"encoding/binary"
	"io"

	"github.com/golang/snappy"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/tsgrid/tsgrid/lib/errno"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	frameHeaderSize = 4
	flagSnappy      = byte(1)
)

// Codec writes and reads frames: a 4-byte big-endian length of what
// follows, a flags byte, a message type byte and the json body, snappy
// compressed when it is larger than the threshold.
type Codec struct {
	compressThreshold int
	maxFrameSize      int
}

func NewCodec(compressThreshold, maxFrameSize int) *Codec {
	return &Codec{compressThreshold: compressThreshold, maxFrameSize: maxFrameSize}
}

func (c *Codec) WriteFrame(w io.Writer, typ uint8, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", MessageName(typ))
	}
	flags := byte(0)
	if c.compressThreshold > 0 && len(body) > c.compressThreshold {
		body = snappy.Encode(nil, body)
		flags |= flagSnappy
	}
	size := len(body) + 2
	if c.maxFrameSize > 0 && size > c.maxFrameSize {
		return errno.NewError(errno.FrameTooLarge, size, c.maxFrameSize)
	}

	buf := make([]byte, frameHeaderSize+size)
	binary.BigEndian.PutUint32(buf, uint32(size))
	buf[frameHeaderSize] = flags
	buf[frameHeaderSize+1] = typ
	copy(buf[frameHeaderSize+2:], body)
	_, err = w.Write(buf)
	return errors.Wrap(err, "write frame")
}

// ReadFrame reads one frame and decodes its body into the value produced by newValue.
func (c *Codec) ReadFrame(r io.Reader, newValue func(typ uint8) (interface{}, error)) (uint8, interface{}, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}
	size := int(binary.BigEndian.Uint32(header[:]))
	if size < 2 {
		return 0, nil, errno.NewError(errno.InvalidDataSize, 2, size)
	}
	if c.maxFrameSize > 0 && size > c.maxFrameSize {
		return 0, nil, errno.NewError(errno.FrameTooLarge, size, c.maxFrameSize)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, nil, errors.Wrap(err, "read frame body")
	}

	flags, typ, body := buf[0], buf[1], buf[2:]
	if flags&flagSnappy != 0 {
		var err error
		body, err = snappy.Decode(nil, body)
		if err != nil {
			return typ, nil, errors.Wrap(err, "snappy decode")
		}
	}
	v, err := newValue(typ)
	if err != nil {
		return typ, nil, err
	}
	if err = json.Unmarshal(body, v); err != nil {
		return typ, nil, errors.Wrapf(err, "unmarshal %s", MessageName(typ))
	}
	return typ, v, nil
}

func newRequestValue(typ uint8) (interface{}, error) {
	switch typ {
	case GetDeviceCountRequestMessage, GetPathCountRequestMessage, GetNodeListRequestMessage,
		GetChildNodeInNextLevelRequestMessage, GetChildNodePathInNextLevelRequestMessage:
		return &MetaRequest{}, nil
	default:
		return nil, errno.NewError(errno.UnknownMessageType, typ)
	}
}

func newResponseValue(typ uint8) (interface{}, error) {
	if typ != ResponseMessage {
		return nil, errno.NewError(errno.UnknownMessageType, typ)
	}
	return &MetaResponse{}, nil
}
