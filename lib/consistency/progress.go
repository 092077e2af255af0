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

package consistency

import (
	"context"
	"strconv"

	hraft "github.com/hashicorp/raft"
	"github.com/pkg/errors"
	"github.com/tsgrid/tsgrid/lib/errno"
	"go.etcd.io/etcd/raft/v3"
)

// HashicorpProgress reads the progress of a hashicorp/raft replica.
type HashicorpProgress struct {
	Group string
	Raft  *hraft.Raft
}

func (p *HashicorpProgress) AppliedIndex() uint64 {
	return p.Raft.AppliedIndex()
}

func (p *HashicorpProgress) LeaderCommitIndex(context.Context) (uint64, error) {
	if addr, _ := p.Raft.LeaderWithID(); addr == "" {
		return 0, errno.NewError(errno.NoLeader, p.Group)
	}
	commit, err := strconv.ParseUint(p.Raft.Stats()["commit_index"], 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "parse raft commit_index")
	}
	return commit, nil
}

// EtcdProgress reads the progress of an etcd raft replica.
type EtcdProgress struct {
	Group string
	Node  raft.Node
}

func (p *EtcdProgress) AppliedIndex() uint64 {
	return p.Node.Status().Applied
}

func (p *EtcdProgress) LeaderCommitIndex(context.Context) (uint64, error) {
	st := p.Node.Status()
	if st.Lead == raft.None {
		return 0, errno.NewError(errno.NoLeader, p.Group)
	}
	return st.Commit, nil
}
