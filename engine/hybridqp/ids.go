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

package hybridqp

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tsgrid/tsgrid/lib/errno"
	"go.uber.org/atomic"
)

const idSeparator = "."

// PlanNodeID identifies a plan node within the plan of one query.
type PlanNodeID string

func (id PlanNodeID) String() string {
	return string(id)
}

// PlanNodeIDAllocator hands out increasing node ids. One allocator is owned
// by each query context.
type PlanNodeIDAllocator struct {
	next atomic.Uint64
}

func (a *PlanNodeIDAllocator) Next() PlanNodeID {
	return PlanNodeID(strconv.FormatUint(a.next.Inc(), 10))
}

// QueryID must not contain the id separator so that fragment instance ids
// can be split back into their parts.
type QueryID string

func (id QueryID) String() string {
	return string(id)
}

func ParseQueryID(s string) (QueryID, error) {
	if s == "" || strings.Contains(s, idSeparator) {
		return "", errno.NewError(errno.InvalidQueryID, s)
	}
	return QueryID(s), nil
}

// QueryIDGenerator produces ids of the form yyyyMMdd_HHmmss_seq_node.
type QueryIDGenerator struct {
	node int
	seq  atomic.Uint64
	now  func() time.Time
}

func NewQueryIDGenerator(node int) *QueryIDGenerator {
	return &QueryIDGenerator{node: node, now: time.Now}
}

func (g *QueryIDGenerator) Next() QueryID {
	seq := g.seq.Inc() % 100000
	return QueryID(fmt.Sprintf("%s_%05d_%d", g.now().Format("20060102_150405"), seq, g.node))
}

// FragmentInstanceID identifies one instance of a plan fragment. Two ids are
// equal when their three parts are equal, so the struct is comparable and
// usable as a map key.
type FragmentInstanceID struct {
	QueryID    QueryID
	FragmentID int32
	InstanceID string
}

// NewFragmentInstanceID rejects triples whose string form would not parse
// back into the same triple.
func NewFragmentInstanceID(query QueryID, fragment int32, instance string) (FragmentInstanceID, error) {
	raw := formatFragmentInstanceID(string(query), fragment, instance)
	return newFragmentInstanceID(raw, string(query), fragment, instance)
}

func formatFragmentInstanceID(query string, fragment int32, instance string) string {
	return query + idSeparator + strconv.FormatInt(int64(fragment), 10) + idSeparator + instance
}

func newFragmentInstanceID(raw, query string, fragment int32, instance string) (FragmentInstanceID, error) {
	qid, err := ParseQueryID(query)
	if err != nil {
		return FragmentInstanceID{}, errno.NewError(errno.InvalidFragmentInstanceID, raw).SetCause(err)
	}
	if fragment < 0 || instance == "" {
		return FragmentInstanceID{}, errno.NewError(errno.InvalidFragmentInstanceID, raw)
	}
	return FragmentInstanceID{QueryID: qid, FragmentID: fragment, InstanceID: instance}, nil
}

// String is the display form "<queryId>.<fragmentId>.<instanceId>".
func (id FragmentInstanceID) String() string {
	return formatFragmentInstanceID(string(id.QueryID), id.FragmentID, id.InstanceID)
}

// ParseFragmentInstanceID is the inverse of String. The instance part may
// itself contain dots. The fragment part must be in canonical decimal form.
func ParseFragmentInstanceID(s string) (FragmentInstanceID, error) {
	parts := strings.SplitN(s, idSeparator, 3)
	if len(parts) != 3 {
		return FragmentInstanceID{}, errno.NewError(errno.InvalidFragmentInstanceID, s)
	}
	fid, err := strconv.ParseInt(parts[1], 10, 32)
	if err != nil || strconv.FormatInt(fid, 10) != parts[1] {
		return FragmentInstanceID{}, errno.NewError(errno.InvalidFragmentInstanceID, s)
	}
	return newFragmentInstanceID(s, parts[0], int32(fid), parts[2])
}

// FragmentInstanceIDWire is the three field form carried in requests.
type FragmentInstanceIDWire struct {
	QueryID    string `json:"queryId"`
	FragmentID int32  `json:"fragmentId"`
	InstanceID string `json:"instanceId"`
}

func (id FragmentInstanceID) ToWire() FragmentInstanceIDWire {
	return FragmentInstanceIDWire{
		QueryID:    string(id.QueryID),
		FragmentID: id.FragmentID,
		InstanceID: id.InstanceID,
	}
}

func FragmentInstanceIDFromWire(w FragmentInstanceIDWire) (FragmentInstanceID, error) {
	return NewFragmentInstanceID(QueryID(w.QueryID), w.FragmentID, w.InstanceID)
}

// QueryContext carries what every stage of one query compilation shares.
type QueryContext struct {
	queryID   QueryID
	sql       string
	startTime time.Time
	ids       PlanNodeIDAllocator
	fragments atomic.Int32
}

func NewQueryContext(queryID QueryID, sql string) *QueryContext {
	return &QueryContext{queryID: queryID, sql: sql, startTime: time.Now()}
}

func (c *QueryContext) QueryID() QueryID {
	return c.queryID
}

func (c *QueryContext) SQL() string {
	return c.sql
}

func (c *QueryContext) StartTime() time.Time {
	return c.startTime
}

func (c *QueryContext) GenPlanNodeID() PlanNodeID {
	return c.ids.Next()
}

// GenFragmentInstanceID allocates the next fragment of the query with a
// single instance.
func (c *QueryContext) GenFragmentInstanceID() (FragmentInstanceID, error) {
	return NewFragmentInstanceID(c.queryID, c.fragments.Inc()-1, "0")
}
