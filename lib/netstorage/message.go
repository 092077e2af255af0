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
	"github.com/tsgrid/tsgrid/lib/errno"
	"github.com/tsgrid/tsgrid/lib/partition"
)

const (
	UnknownMessage uint8 = iota
	GetDeviceCountRequestMessage
	GetPathCountRequestMessage
	GetNodeListRequestMessage
	GetChildNodeInNextLevelRequestMessage
	GetChildNodePathInNextLevelRequestMessage
	ResponseMessage
)

var messageNames = map[uint8]string{
	GetDeviceCountRequestMessage:              "getDeviceCount",
	GetPathCountRequestMessage:                "getPathCount",
	GetNodeListRequestMessage:                 "getNodeList",
	GetChildNodeInNextLevelRequestMessage:     "getChildNodeInNextLevel",
	GetChildNodePathInNextLevelRequestMessage: "getChildNodePathInNextLevel",
	ResponseMessage:                           "response",
}

func MessageName(typ uint8) string {
	if s, ok := messageNames[typ]; ok {
		return s
	}
	return "unknown"
}

// MetaRequest addresses one partition group on the receiving node.
type MetaRequest struct {
	Header partition.Node `json:"header"`
	RaftID int            `json:"raftId"`
	Paths  []string       `json:"paths,omitempty"`
	Path   string         `json:"path,omitempty"`
	Level  int            `json:"level"`
}

type MetaResponse struct {
	Count   int      `json:"count"`
	Paths   []string `json:"paths,omitempty"`
	ErrCode   uint16   `json:"errCode,omitempty"`
	ErrModule uint8    `json:"errModule,omitempty"`
	ErrMsg    string   `json:"errMsg,omitempty"`
}

// SetError carries err back to the caller, keeping its code and module when
// it has them.
func (r *MetaResponse) SetError(err error) {
	if err == nil {
		return
	}
	r.ErrMsg = err.Error()
	if e, ok := err.(*errno.Error); ok {
		r.ErrCode = uint16(e.Errno())
		r.ErrModule = uint8(e.Module())
		return
	}
	r.ErrCode = uint16(errno.RemoteError)
}

// Error rebuilds the remote error.
func (r *MetaResponse) Error() error {
	if r.ErrCode == 0 && r.ErrMsg == "" {
		return nil
	}
	err := errno.NewRemote(r.ErrMsg, errno.Errno(r.ErrCode))
	if r.ErrModule != 0 {
		err.SetModule(errno.Module(r.ErrModule))
	}
	return err
}
