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
	"fmt"
	"strings"

	"github.com/tsgrid/tsgrid/engine/statement"
	"github.com/tsgrid/tsgrid/lib/errno"
	"github.com/tsgrid/tsgrid/lib/metapath"
	"github.com/tsgrid/tsgrid/lib/schema"
)

func badRequest(format string, args ...interface{}) error {
	return errno.NewError(errno.HttpBadRequest, fmt.Sprintf(format, args...))
}

type QueryColumn struct {
	Path        string `json:"path"`
	Aggregation string `json:"aggregation,omitempty"`
	Alias       string `json:"alias,omitempty"`
}

// QueryRequest is the JSON form of a raw data query.
type QueryRequest struct {
	Columns       []QueryColumn `json:"columns"`
	AlignByDevice bool          `json:"alignByDevice,omitempty"`
	Where         string        `json:"where,omitempty"`
	GroupByLevel  []int         `json:"groupByLevel,omitempty"`
	// Fill is "previous", "linear" or a constant.
	Fill string `json:"fill,omitempty"`
	// FilterNull is "any" or "all".
	FilterNull        string   `json:"filterNull,omitempty"`
	FilterNullColumns []string `json:"filterNullColumns,omitempty"`
	// Order is "asc" or "desc".
	Order  string `json:"order,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

func (q *QueryRequest) Statement() (*statement.QueryStatement, error) {
	if len(q.Columns) == 0 {
		return nil, badRequest("query without columns")
	}
	if q.Limit < 0 || q.Offset < 0 {
		return nil, badRequest("negative limit or offset")
	}
	stmt := &statement.QueryStatement{
		AlignByDevice: q.AlignByDevice,
		Limit:         q.Limit,
		Offset:        q.Offset,
	}
	for _, c := range q.Columns {
		p, err := metapath.Parse(c.Path)
		if err != nil {
			return nil, err
		}
		stmt.ResultColumns = append(stmt.ResultColumns, statement.ResultColumn{Path: p, Aggregation: c.Aggregation, Alias: c.Alias})
	}
	if q.Where != "" {
		stmt.Where = &statement.WhereCondition{Predicate: q.Where}
	}
	if len(q.GroupByLevel) > 0 {
		stmt.GroupByLevel = &statement.GroupByLevelComponent{Levels: q.GroupByLevel}
	}

	switch strings.ToLower(q.Fill) {
	case "":
	case "previous":
		stmt.Fill = &statement.FillComponent{Policy: statement.FillPrevious}
	case "linear":
		stmt.Fill = &statement.FillComponent{Policy: statement.FillLinear}
	default:
		stmt.Fill = &statement.FillComponent{Policy: statement.FillValue, Value: q.Fill}
	}

	switch strings.ToLower(q.FilterNull) {
	case "":
	case "any":
		stmt.FilterNull = &statement.FilterNullComponent{Policy: statement.ContainsNull, Columns: q.FilterNullColumns}
	case "all":
		stmt.FilterNull = &statement.FilterNullComponent{Policy: statement.AllNull, Columns: q.FilterNullColumns}
	default:
		return nil, badRequest("unknown filterNull policy %q", q.FilterNull)
	}

	switch strings.ToLower(q.Order) {
	case "", "asc":
		stmt.Order = statement.TimeAsc
	case "desc":
		stmt.Order = statement.TimeDesc
	default:
		return nil, badRequest("unknown order %q", q.Order)
	}
	return stmt, nil
}

type RowRequest struct {
	Device       string        `json:"device"`
	Time         int64         `json:"time"`
	Measurements []string      `json:"measurements"`
	Values       []interface{} `json:"values"`
}

// WriteRequest is a batch of rows of any devices.
type WriteRequest struct {
	Rows []RowRequest `json:"rows"`
}

func (q *WriteRequest) Statement() (*statement.InsertRowsStatement, error) {
	if len(q.Rows) == 0 {
		return nil, badRequest("write without rows")
	}
	stmt := &statement.InsertRowsStatement{Rows: make([]*statement.InsertRowStatement, 0, len(q.Rows))}
	for _, r := range q.Rows {
		device, err := metapath.Parse(r.Device)
		if err != nil {
			return nil, err
		}
		stmt.Rows = append(stmt.Rows, &statement.InsertRowStatement{
			Device:       device,
			Time:         r.Time,
			Measurements: r.Measurements,
			Values:       r.Values,
		})
	}
	return stmt, nil
}

func parseDataType(s string) (schema.DataType, error) {
	t, ok := schema.ParseDataType(s)
	if !ok {
		return schema.Unknown, badRequest("unknown data type %q", s)
	}
	return t, nil
}

type TimeseriesRequest struct {
	Path       string            `json:"path"`
	DataType   string            `json:"type"`
	Encoding   string            `json:"encoding,omitempty"`
	Compressor string            `json:"compressor,omitempty"`
	Alias      string            `json:"alias,omitempty"`
	Props      map[string]string `json:"props,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func (q *TimeseriesRequest) Statement() (*statement.CreateTimeSeriesStatement, error) {
	p, err := metapath.Parse(q.Path)
	if err != nil {
		return nil, err
	}
	t, err := parseDataType(q.DataType)
	if err != nil {
		return nil, err
	}
	return &statement.CreateTimeSeriesStatement{
		Path:       p,
		DataType:   t,
		Encoding:   q.Encoding,
		Compressor: q.Compressor,
		Alias:      q.Alias,
		Props:      q.Props,
		Tags:       q.Tags,
		Attributes: q.Attributes,
	}, nil
}

type AlignedTimeseriesRequest struct {
	Device       string   `json:"device"`
	Measurements []string `json:"measurements"`
	DataTypes    []string `json:"types"`
	Encodings    []string `json:"encodings,omitempty"`
	Compressors  []string `json:"compressors,omitempty"`
	Aliases      []string `json:"aliases,omitempty"`
}

func (q *AlignedTimeseriesRequest) Statement() (*statement.CreateAlignedTimeSeriesStatement, error) {
	device, err := metapath.Parse(q.Device)
	if err != nil {
		return nil, err
	}
	types := make([]schema.DataType, 0, len(q.DataTypes))
	for _, s := range q.DataTypes {
		t, err := parseDataType(s)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return &statement.CreateAlignedTimeSeriesStatement{
		Device:       device,
		Measurements: q.Measurements,
		DataTypes:    types,
		Encodings:    q.Encodings,
		Compressors:  q.Compressors,
		Aliases:      q.Aliases,
	}, nil
}
