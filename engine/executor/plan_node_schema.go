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

package executor

import (
	"github.com/tsgrid/tsgrid/engine/hybridqp"
	"github.com/tsgrid/tsgrid/engine/statement"
	"github.com/tsgrid/tsgrid/lib/metapath"
	"github.com/tsgrid/tsgrid/lib/schema"
)

type CreateTimeSeriesNode struct {
	planNodeBase
	Path       metapath.PartialPath
	Schema     schema.MeasurementSchema
	Tags       map[string]string
	Attributes map[string]string
}

func NewCreateTimeSeriesNode(id hybridqp.PlanNodeID, stmt *statement.CreateTimeSeriesStatement) *CreateTimeSeriesNode {
	return &CreateTimeSeriesNode{
		planNodeBase: newPlanNodeBase(id, CreateTimeSeriesNodeType, hybridqp.NoChild),
		Path:         stmt.Path,
		Schema: schema.MeasurementSchema{
			Measurement: stmt.Path.Measurement(),
			Type:        stmt.DataType,
			Encoding:    stmt.Encoding,
			Compressor:  stmt.Compressor,
			Alias:       stmt.Alias,
			Props:       stmt.Props,
		},
		Tags:       stmt.Tags,
		Attributes: stmt.Attributes,
	}
}

func (n *CreateTimeSeriesNode) OutputColumns() []string {
	return nil
}

func (n *CreateTimeSeriesNode) Clone() hybridqp.QueryNode {
	c := *n
	c.planNodeBase = n.clone()
	return &c
}

type CreateAlignedTimeSeriesNode struct {
	planNodeBase
	Device  metapath.PartialPath
	Schemas []schema.MeasurementSchema
}

func NewCreateAlignedTimeSeriesNode(id hybridqp.PlanNodeID, stmt *statement.CreateAlignedTimeSeriesStatement) *CreateAlignedTimeSeriesNode {
	schemas := make([]schema.MeasurementSchema, len(stmt.Measurements))
	for i, m := range stmt.Measurements {
		s := schema.NewMeasurementSchema(m, stmt.DataTypes[i])
		s.Encoding = element(stmt.Encodings, i)
		s.Compressor = element(stmt.Compressors, i)
		s.Alias = element(stmt.Aliases, i)
		schemas[i] = s
	}
	return &CreateAlignedTimeSeriesNode{
		planNodeBase: newPlanNodeBase(id, CreateAlignedTimeSeriesNodeType, hybridqp.NoChild),
		Device:       stmt.Device,
		Schemas:      schemas,
	}
}

// element returns ss[i], or "" when the optional list is shorter.
func element(ss []string, i int) string {
	if i < len(ss) {
		return ss[i]
	}
	return ""
}

func (n *CreateAlignedTimeSeriesNode) OutputColumns() []string {
	return nil
}

func (n *CreateAlignedTimeSeriesNode) Clone() hybridqp.QueryNode {
	c := *n
	c.planNodeBase = n.clone()
	return &c
}

type AlterTimeSeriesNode struct {
	planNodeBase
	Path       metapath.PartialPath
	AlterType  statement.AlterType
	AlterMap   map[string]string
	Alias      string
	Tags       map[string]string
	Attributes map[string]string
}

func NewAlterTimeSeriesNode(id hybridqp.PlanNodeID, stmt *statement.AlterTimeSeriesStatement) *AlterTimeSeriesNode {
	return &AlterTimeSeriesNode{
		planNodeBase: newPlanNodeBase(id, AlterTimeSeriesNodeType, hybridqp.NoChild),
		Path:         stmt.Path,
		AlterType:    stmt.AlterType,
		AlterMap:     stmt.AlterMap,
		Alias:        stmt.Alias,
		Tags:         stmt.Tags,
		Attributes:   stmt.Attributes,
	}
}

func (n *AlterTimeSeriesNode) OutputColumns() []string {
	return nil
}

func (n *AlterTimeSeriesNode) Clone() hybridqp.QueryNode {
	c := *n
	c.planNodeBase = n.clone()
	return &c
}
