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

package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsgrid/tsgrid/engine/statement"
	"github.com/tsgrid/tsgrid/lib/errno"
	"github.com/tsgrid/tsgrid/lib/metapath"
)

type fakeCluster struct {
	err      error
	patterns []string
	levels   []int
}

func (c *fakeCluster) record(p metapath.PartialPath, level int) {
	c.patterns = append(c.patterns, p.String())
	c.levels = append(c.levels, level)
}

func (c *fakeCluster) GetDeviceCount(_ context.Context, p metapath.PartialPath) (int, error) {
	c.record(p, 0)
	return 1, c.err
}

func (c *fakeCluster) GetDeviceCountPrefixMatch(_ context.Context, p metapath.PartialPath) (int, error) {
	c.record(p, 0)
	return 2, c.err
}

func (c *fakeCluster) GetPathCount(_ context.Context, p metapath.PartialPath, level int) (int, error) {
	c.record(p, level)
	return 3, c.err
}

func (c *fakeCluster) GetPathCountPrefixMatch(_ context.Context, p metapath.PartialPath, level int) (int, error) {
	c.record(p, level)
	return 4, c.err
}

func (c *fakeCluster) GetNodesList(_ context.Context, p metapath.PartialPath, level int) ([]string, error) {
	c.record(p, level)
	return []string{"root.sg"}, c.err
}

func (c *fakeCluster) GetChildNodeInNextLevel(_ context.Context, p metapath.PartialPath) ([]string, error) {
	c.record(p, 0)
	return []string{"d1"}, c.err
}

func (c *fakeCluster) GetChildNodePathInNextLevel(_ context.Context, p metapath.PartialPath) ([]string, error) {
	c.record(p, 0)
	return []string{"root.sg.d1"}, c.err
}

func (c *fakeCluster) GetAllStorageGroupNodes(context.Context) []metapath.PartialPath {
	return []metapath.PartialPath{metapath.MustParse("root.sg")}
}

func serve(h *Handler, method, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, target, strings.NewReader(body)))
	return w
}

func TestHandler_Counts(t *testing.T) {
	cluster := &fakeCluster{}
	h := NewHandler()
	h.Cluster = cluster

	cases := []struct {
		target string
		body   string
	}{
		{"/debug/count/devices?path=root.sg.*", `{"count":1}`},
		{"/debug/count/devices?path=root.sg&prefix=true", `{"count":2}`},
		{"/debug/count/paths?path=root.**", `{"count":3}`},
		{"/debug/count/paths?path=root.sg&level=2&prefix=1", `{"count":4}`},
		{"/debug/nodes?path=root.*", `{"values":["root.sg"]}`},
		{"/debug/children?path=root.sg", `{"values":["d1"]}`},
		{"/debug/children?path=root.sg&full=true", `{"values":["root.sg.d1"]}`},
		{"/debug/storage-groups", `{"values":["root.sg"]}`},
	}
	for _, c := range cases {
		w := serve(h, http.MethodGet, c.target, "")
		require.Equal(t, http.StatusOK, w.Code, c.target)
		assert.JSONEq(t, c.body, w.Body.String(), c.target)
	}
	// level defaults to -1 for path counts and to the pattern depth for node lists
	assert.Equal(t, []int{0, 0, -1, 2, 1, 0, 0}, cluster.levels)
}

func TestHandler_Errors(t *testing.T) {
	cluster := &fakeCluster{}
	h := NewHandler()
	h.Cluster = cluster

	w := serve(h, http.MethodGet, "/debug/count/devices", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"code":6400,"error":"bad request: missing path"}`, w.Body.String())

	w = serve(h, http.MethodGet, "/debug/count/paths?path=root.sg&level=x", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	cluster.err = errno.NewError(errno.PathNotExist, "root.x")
	w = serve(h, http.MethodGet, "/debug/count/devices?path=root.x", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	cluster.err = errno.NewError(errno.OperationInterrupted, "getPathCount", context.Canceled)
	w = serve(h, http.MethodGet, "/debug/count/paths?path=root.x", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	cluster.err = errno.NewError(errno.MetaAggregateFailed, "getNodeList")
	w = serve(h, http.MethodGet, "/debug/nodes?path=root.x", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = serve(h, http.MethodPost, "/debug/count/devices?path=root.x", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = serve(h, http.MethodGet, "/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusOf(errno.NewError(errno.IllegalPath, "a")))
	assert.Equal(t, http.StatusBadRequest, statusOf(errno.NewError(errno.SchemaNotFound, "root.sg.d1", "s1")))
	assert.Equal(t, http.StatusConflict, statusOf(errno.NewError(errno.StorageGroupAlreadySet, "root.sg")))
	assert.Equal(t, http.StatusConflict, statusOf(errno.NewError(errno.TimeseriesAlreadyExist, "root.sg.d1.s1")))
	assert.Equal(t, http.StatusNotFound, statusOf(errno.NewError(errno.PathNotExist, "root.x")))
	assert.Equal(t, http.StatusInternalServerError, statusOf(errno.NewError(errno.MetaAggregateFailed, "x").SetCause(errors.New("y"))))
	assert.Equal(t, http.StatusInternalServerError, statusOf(errors.New("plain")))
	assert.Equal(t, errno.InternalError, codeOf(errors.New("plain")))
	assert.Equal(t, errno.IllegalPath, codeOf(errno.NewError(errno.IllegalPath, "a")))
}

func TestQueryRequest_Statement(t *testing.T) {
	req := QueryRequest{
		Columns:      []QueryColumn{{Path: "root.sg.d1.s1", Aggregation: "count"}, {Path: "root.sg.d2.s1", Alias: "x"}},
		Where:        "s1 > 0",
		GroupByLevel: []int{1},
		Fill:         "3.5",
		FilterNull:   "ALL",
		Order:        "desc",
		Limit:        10,
		Offset:       2,
	}
	stmt, err := req.Statement()
	require.NoError(t, err)
	assert.Len(t, stmt.ResultColumns, 2)
	assert.Equal(t, "count", stmt.ResultColumns[0].Aggregation)
	assert.Equal(t, "s1 > 0", stmt.Where.Predicate)
	assert.Equal(t, []int{1}, stmt.GroupByLevel.Levels)
	assert.Equal(t, statement.FillValue, stmt.Fill.Policy)
	assert.Equal(t, "3.5", stmt.Fill.Value)
	assert.Equal(t, statement.AllNull, stmt.FilterNull.Policy)
	assert.Equal(t, statement.TimeDesc, stmt.Order)
	assert.Equal(t, 10, stmt.Limit)
	assert.Equal(t, 2, stmt.Offset)

	stmt, err = (&QueryRequest{Columns: []QueryColumn{{Path: "root.sg.d1.s1"}}, Fill: "linear", FilterNull: "any"}).Statement()
	require.NoError(t, err)
	assert.Nil(t, stmt.Where)
	assert.Nil(t, stmt.GroupByLevel)
	assert.Equal(t, statement.FillLinear, stmt.Fill.Policy)
	assert.Equal(t, statement.ContainsNull, stmt.FilterNull.Policy)
	assert.Equal(t, statement.TimeAsc, stmt.Order)

	for _, bad := range []QueryRequest{
		{},
		{Columns: []QueryColumn{{Path: ""}}},
		{Columns: []QueryColumn{{Path: "root.a"}}, Order: "sideways"},
		{Columns: []QueryColumn{{Path: "root.a"}}, FilterNull: "some"},
		{Columns: []QueryColumn{{Path: "root.a"}}, Limit: -1},
	} {
		_, err = bad.Statement()
		assert.Error(t, err)
	}
}

func TestWriteAndSchemaRequests(t *testing.T) {
	stmt, err := (&WriteRequest{Rows: []RowRequest{
		{Device: "root.sg.d1", Time: 5, Measurements: []string{"s1"}, Values: []interface{}{1}},
	}}).Statement()
	require.NoError(t, err)
	require.Len(t, stmt.Rows, 1)
	assert.Equal(t, "root.sg.d1", stmt.Rows[0].Device.String())
	assert.Equal(t, int64(5), stmt.Rows[0].Time)

	_, err = (&WriteRequest{}).Statement()
	assert.Error(t, err)

	ts, err := (&TimeseriesRequest{Path: "root.sg.d1.s1", DataType: "boolean", Alias: "on"}).Statement()
	require.NoError(t, err)
	assert.Equal(t, "BOOLEAN", ts.DataType.String())
	assert.Equal(t, "on", ts.Alias)

	_, err = (&TimeseriesRequest{Path: "root.sg.d1.s1", DataType: "unknown"}).Statement()
	assert.Error(t, err)

	aligned, err := (&AlignedTimeseriesRequest{Device: "root.sg.d1", Measurements: []string{"a", "b"}, DataTypes: []string{"INT32", "TEXT"}}).Statement()
	require.NoError(t, err)
	assert.Equal(t, "TEXT", aligned.DataTypes[1].String())
}
