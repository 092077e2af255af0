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
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tsgrid/tsgrid/engine/executor"
	"github.com/tsgrid/tsgrid/engine/hybridqp"
	"github.com/tsgrid/tsgrid/engine/statement"
	"github.com/tsgrid/tsgrid/lib/errno"
	"github.com/tsgrid/tsgrid/lib/logger"
	"github.com/tsgrid/tsgrid/lib/metapath"
	"github.com/tsgrid/tsgrid/lib/schema"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultRequestTimeout = 30 * time.Second

// ClusterReader answers the cluster wide schema aggregates.
type ClusterReader interface {
	GetDeviceCount(ctx context.Context, pattern metapath.PartialPath) (int, error)
	GetDeviceCountPrefixMatch(ctx context.Context, pattern metapath.PartialPath) (int, error)
	GetPathCount(ctx context.Context, pattern metapath.PartialPath, level int) (int, error)
	GetPathCountPrefixMatch(ctx context.Context, pattern metapath.PartialPath, level int) (int, error)
	GetNodesList(ctx context.Context, pattern metapath.PartialPath, level int) ([]string, error)
	GetChildNodeInNextLevel(ctx context.Context, pattern metapath.PartialPath) ([]string, error)
	GetChildNodePathInNextLevel(ctx context.Context, pattern metapath.PartialPath) ([]string, error)
	GetAllStorageGroupNodes(ctx context.Context) []metapath.PartialPath
}

// SchemaStore is the local schema the write endpoints change.
type SchemaStore interface {
	statement.SchemaTree
	SetStorageGroup(path metapath.PartialPath) error
	CreateTimeseries(path metapath.PartialPath, ms schema.MeasurementSchema) error
	CreateAlignedTimeseries(device metapath.PartialPath, schemas []schema.MeasurementSchema) error
}

type Route struct {
	Name        string
	Method      string
	Pattern     string
	HandlerFunc http.HandlerFunc
}

type Handler struct {
	Logger *logger.Logger

	Cluster   ClusterReader
	Schema    SchemaStore
	Partition statement.PartitionInfo
	Gatherer  prometheus.Gatherer
	QueryIDs  *hybridqp.QueryIDGenerator

	// Persist is called after every successful schema change.
	Persist func() error

	RequestTimeout time.Duration

	router *mux.Router
}

func NewHandler() *Handler {
	h := &Handler{
		Logger:         logger.NewLogger(errno.ModuleHTTP).With(zap.String("service", "httpd")),
		Gatherer:       prometheus.DefaultGatherer,
		QueryIDs:       hybridqp.NewQueryIDGenerator(0),
		RequestTimeout: defaultRequestTimeout,
		router:         mux.NewRouter(),
	}
	h.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.httpError(w, errno.NewError(errno.HttpNotFound, r.URL.Path))
	})
	h.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.httpError(w, errno.NewError(errno.HttpMethodNotAllowed, r.Method))
	})
	h.router.Use(h.logRequest)

	h.AddRoutes(
		Route{"ping", http.MethodGet, "/ping", h.servePing},
		Route{"prometheus-metrics", http.MethodGet, "/metrics", h.serveMetrics},
		Route{"count-devices", http.MethodGet, "/debug/count/devices", h.serveCountDevices},
		Route{"count-paths", http.MethodGet, "/debug/count/paths", h.serveCountPaths},
		Route{"nodes", http.MethodGet, "/debug/nodes", h.serveNodes},
		Route{"children", http.MethodGet, "/debug/children", h.serveChildren},
		Route{"storage-groups", http.MethodGet, "/debug/storage-groups", h.serveStorageGroups},
		Route{"plan", http.MethodPost, "/debug/plan", h.servePlan},
		Route{"write-plan", http.MethodPost, "/debug/write-plan", h.serveWritePlan},
		Route{"set-storage-group", http.MethodPost, "/storage-groups", h.serveSetStorageGroup},
		Route{"create-timeseries", http.MethodPost, "/timeseries", h.serveCreateTimeseries},
		Route{"create-aligned-timeseries", http.MethodPost, "/aligned-timeseries", h.serveCreateAlignedTimeseries},
	)
	return h
}

// AddRoutes sets the provided routes on the handler.
func (h *Handler) AddRoutes(routes ...Route) {
	for _, r := range routes {
		h.router.HandleFunc(r.Pattern, r.HandlerFunc).Methods(r.Method).Name(r.Name)
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.Logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

func (h *Handler) context(r *http.Request) (context.Context, context.CancelFunc) {
	if h.RequestTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.RequestTimeout)
}

type errorResponse struct {
	Code  int    `json:"code"`
	Error string `json:"error"`
}

// statusOf maps an error code onto the HTTP status returned to the client.
func statusOf(err error) int {
	switch {
	case errno.Is(err, errno.HttpBadRequest),
		errno.Is(err, errno.IllegalPath),
		errno.Is(err, errno.InvalidWriteStatement),
		errno.Is(err, errno.UnsupportedStatement),
		errno.Is(err, errno.AuthorPlanBuildFailed),
		errno.Is(err, errno.SchemaNotFound),
		errno.Is(err, errno.StorageGroupNotSet):
		return http.StatusBadRequest
	case errno.Is(err, errno.HttpNotFound),
		errno.Is(err, errno.PathNotExist):
		return http.StatusNotFound
	case errno.Is(err, errno.HttpMethodNotAllowed):
		return http.StatusMethodNotAllowed
	case errno.Is(err, errno.StorageGroupAlreadySet),
		errno.Is(err, errno.TimeseriesAlreadyExist):
		return http.StatusConflict
	case errno.Is(err, errno.OperationInterrupted):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func codeOf(err error) int {
	if e, ok := err.(*errno.Error); ok {
		return int(e.Errno())
	}
	return errno.InternalError
}

func (h *Handler) httpError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("http request failed", zap.Error(err))
	}
	h.writeJSON(w, status, errorResponse{Code: codeOf(err), Error: err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	buf, err := json.Marshal(v)
	if err != nil {
		h.Logger.Error("encode response failed", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

func (h *Handler) servePing(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) serveMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

func pathParam(r *http.Request) (metapath.PartialPath, error) {
	raw := r.URL.Query().Get("path")
	if raw == "" {
		return metapath.PartialPath{}, errno.NewError(errno.HttpBadRequest, "missing path")
	}
	return metapath.Parse(raw)
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errno.NewError(errno.HttpBadRequest, name+" must be an integer")
	}
	return n, nil
}

func boolParam(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}

type countResponse struct {
	Count int `json:"count"`
}

type listResponse struct {
	Values []string `json:"values"`
}

func (h *Handler) serveCountDevices(w http.ResponseWriter, r *http.Request) {
	pattern, err := pathParam(r)
	if err != nil {
		h.httpError(w, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	count := h.Cluster.GetDeviceCount
	if boolParam(r, "prefix") {
		count = h.Cluster.GetDeviceCountPrefixMatch
	}
	n, err := count(ctx, pattern)
	if err != nil {
		h.httpError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, countResponse{Count: n})
}

func (h *Handler) serveCountPaths(w http.ResponseWriter, r *http.Request) {
	pattern, err := pathParam(r)
	if err != nil {
		h.httpError(w, err)
		return
	}
	level, err := intParam(r, "level", -1)
	if err != nil {
		h.httpError(w, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	count := h.Cluster.GetPathCount
	if boolParam(r, "prefix") {
		count = h.Cluster.GetPathCountPrefixMatch
	}
	n, err := count(ctx, pattern, level)
	if err != nil {
		h.httpError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, countResponse{Count: n})
}

func (h *Handler) serveNodes(w http.ResponseWriter, r *http.Request) {
	pattern, err := pathParam(r)
	if err != nil {
		h.httpError(w, err)
		return
	}
	level, err := intParam(r, "level", pattern.Len()-1)
	if err != nil {
		h.httpError(w, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	nodes, err := h.Cluster.GetNodesList(ctx, pattern, level)
	if err != nil {
		h.httpError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, listResponse{Values: nodes})
}

func (h *Handler) serveChildren(w http.ResponseWriter, r *http.Request) {
	pattern, err := pathParam(r)
	if err != nil {
		h.httpError(w, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	children := h.Cluster.GetChildNodeInNextLevel
	if boolParam(r, "full") {
		children = h.Cluster.GetChildNodePathInNextLevel
	}
	values, err := children(ctx, pattern)
	if err != nil {
		h.httpError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, listResponse{Values: values})
}

func (h *Handler) serveStorageGroups(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()
	sgs := h.Cluster.GetAllStorageGroupNodes(ctx)
	h.writeJSON(w, http.StatusOK, listResponse{Values: metapath.Strings(sgs)})
}

func (h *Handler) decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errno.NewError(errno.HttpBadRequest, err)
	}
	return nil
}

// plan runs the logical planner over one statement of a request.
func (h *Handler) plan(r *http.Request, stmt statement.Statement) (*executor.LogicalQueryPlan, error) {
	qctx := hybridqp.NewQueryContext(h.QueryIDs.Next(), r.Method+" "+r.URL.Path)
	planner := executor.NewLogicalPlanner(qctx, executor.DefaultOptimizers())
	return planner.Plan(&statement.Analysis{
		Statement:     stmt,
		SchemaTree:    h.Schema,
		DataPartition: h.Partition,
	})
}

type planResponse struct {
	QueryID string   `json:"queryId"`
	Columns []string `json:"columns"`
	Plan    string   `json:"plan"`
}

func (h *Handler) servePlan(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := h.decode(r, &req); err != nil {
		h.httpError(w, err)
		return
	}
	stmt, err := req.Statement()
	if err != nil {
		h.httpError(w, err)
		return
	}
	plan, err := h.plan(r, stmt)
	if err != nil {
		h.httpError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, planResponse{
		QueryID: plan.Context().QueryID().String(),
		Columns: plan.Root().OutputColumns(),
		Plan:    plan.Explain(),
	})
}

type splitGroup struct {
	Group   string `json:"group"`
	Indexes []int  `json:"indexes"`
}

func (h *Handler) serveWritePlan(w http.ResponseWriter, r *http.Request) {
	var req WriteRequest
	if err := h.decode(r, &req); err != nil {
		h.httpError(w, err)
		return
	}
	stmt, err := req.Statement()
	if err != nil {
		h.httpError(w, err)
		return
	}
	plan, err := h.plan(r, stmt)
	if err != nil {
		h.httpError(w, err)
		return
	}
	node, ok := plan.Root().(*executor.InsertRowsNode)
	if !ok {
		h.httpError(w, errno.NewError(errno.UnsupportedStatement, plan.Root().Type()))
		return
	}
	subs, err := node.SplitByPartition(h.Partition)
	if err != nil {
		h.httpError(w, err)
		return
	}
	groups := make([]splitGroup, 0, len(subs))
	for _, sub := range subs {
		groups = append(groups, splitGroup{
			Group:   sub.ReplicaSet().String(),
			Indexes: sub.(*executor.InsertRowsNode).Indexes,
		})
	}
	h.writeJSON(w, http.StatusOK, groups)
}

func (h *Handler) persist() error {
	if h.Persist == nil {
		return nil
	}
	return h.Persist()
}

type storageGroupRequest struct {
	Path string `json:"path"`
}

func (h *Handler) serveSetStorageGroup(w http.ResponseWriter, r *http.Request) {
	var req storageGroupRequest
	if err := h.decode(r, &req); err != nil {
		h.httpError(w, err)
		return
	}
	sg, err := metapath.Parse(req.Path)
	if err != nil {
		h.httpError(w, err)
		return
	}
	if err = h.Schema.SetStorageGroup(sg); err != nil {
		h.httpError(w, err)
		return
	}
	if err = h.persist(); err != nil {
		h.httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) serveCreateTimeseries(w http.ResponseWriter, r *http.Request) {
	var req TimeseriesRequest
	if err := h.decode(r, &req); err != nil {
		h.httpError(w, err)
		return
	}
	stmt, err := req.Statement()
	if err != nil {
		h.httpError(w, err)
		return
	}
	plan, err := h.plan(r, stmt)
	if err != nil {
		h.httpError(w, err)
		return
	}
	node := plan.Root().(*executor.CreateTimeSeriesNode)
	if err = h.Schema.CreateTimeseries(node.Path, node.Schema); err != nil {
		h.httpError(w, err)
		return
	}
	if err = h.persist(); err != nil {
		h.httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) serveCreateAlignedTimeseries(w http.ResponseWriter, r *http.Request) {
	var req AlignedTimeseriesRequest
	if err := h.decode(r, &req); err != nil {
		h.httpError(w, err)
		return
	}
	stmt, err := req.Statement()
	if err != nil {
		h.httpError(w, err)
		return
	}
	plan, err := h.plan(r, stmt)
	if err != nil {
		h.httpError(w, err)
		return
	}
	node := plan.Root().(*executor.CreateAlignedTimeSeriesNode)
	if err = h.Schema.CreateAlignedTimeseries(node.Device, node.Schemas); err != nil {
		h.httpError(w, err)
		return
	}
	if err = h.persist(); err != nil {
		h.httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}
