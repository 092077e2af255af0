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
	"fmt"

	"github.com/tsgrid/tsgrid/engine/hybridqp"
	"github.com/tsgrid/tsgrid/engine/statement"
	"github.com/tsgrid/tsgrid/lib/errno"
	"github.com/tsgrid/tsgrid/lib/logger"
	"github.com/tsgrid/tsgrid/lib/metapath"
	"github.com/tsgrid/tsgrid/lib/schema"
	"go.uber.org/zap"
)

// PlanOptimizer rewrites a finished query plan. It must not modify the
// nodes of root in place.
type PlanOptimizer interface {
	Optimize(root PlanNode, ctx *hybridqp.QueryContext) PlanNode
}

// LogicalQueryPlan is the compiled form of one statement.
type LogicalQueryPlan struct {
	ctx  *hybridqp.QueryContext
	root PlanNode
}

func (p *LogicalQueryPlan) Root() PlanNode {
	return p.root
}

func (p *LogicalQueryPlan) Context() *hybridqp.QueryContext {
	return p.ctx
}

func (p *LogicalQueryPlan) Explain() string {
	return Explain(p.root)
}

type LogicalPlanner struct {
	ctx        *hybridqp.QueryContext
	optimizers []PlanOptimizer
	logger     *logger.Logger
}

func NewLogicalPlanner(ctx *hybridqp.QueryContext, optimizers []PlanOptimizer) *LogicalPlanner {
	return &LogicalPlanner{
		ctx:        ctx,
		optimizers: optimizers,
		logger:     logger.NewLogger(errno.ModuleQueryEngine),
	}
}

// Plan compiles the analyzed statement. Optimizers run in order, and only
// for query statements.
func (p *LogicalPlanner) Plan(analysis *statement.Analysis) (*LogicalQueryPlan, error) {
	root, err := p.planStatement(analysis)
	if err != nil {
		p.logger.Error("plan statement failed", zap.String("query", p.ctx.QueryID().String()), zap.Error(err))
		return nil, err
	}
	if analysis.Statement.IsQuery() {
		for _, opt := range p.optimizers {
			root = opt.Optimize(root, p.ctx)
		}
	}
	if p.logger.IsDebugLevel() {
		p.logger.Debug("logical plan",
			zap.String("query", p.ctx.QueryID().String()),
			zap.String("sql", p.ctx.SQL()),
			zap.String("plan", Explain(root)))
	}
	return &LogicalQueryPlan{ctx: p.ctx, root: root}, nil
}

func (p *LogicalPlanner) planStatement(analysis *statement.Analysis) (PlanNode, error) {
	switch stmt := analysis.Statement.(type) {
	case *statement.QueryStatement:
		return p.planQuery(stmt)
	case *statement.AuthorStatement:
		n, err := NewAuthorNode(p.ctx.GenPlanNodeID(), stmt)
		if err != nil {
			return nil, err
		}
		return n, nil
	case *statement.CreateTimeSeriesStatement:
		return NewCreateTimeSeriesNode(p.ctx.GenPlanNodeID(), stmt), nil
	case *statement.CreateAlignedTimeSeriesStatement:
		if len(stmt.DataTypes) != len(stmt.Measurements) {
			return nil, invalidWrite(stmt, "%d data types for %d measurements", len(stmt.DataTypes), len(stmt.Measurements))
		}
		return NewCreateAlignedTimeSeriesNode(p.ctx.GenPlanNodeID(), stmt), nil
	case *statement.AlterTimeSeriesStatement:
		return NewAlterTimeSeriesNode(p.ctx.GenPlanNodeID(), stmt), nil
	case *statement.InsertRowStatement:
		n, err := p.planInsertRow(analysis.SchemaTree, stmt)
		if err != nil {
			return nil, err
		}
		return n, nil
	case *statement.InsertTabletStatement:
		n, err := p.planInsertTablet(analysis.SchemaTree, stmt)
		if err != nil {
			return nil, err
		}
		return n, nil
	case *statement.InsertRowsStatement:
		rows, err := p.planRows(analysis.SchemaTree, stmt.Rows)
		if err != nil {
			return nil, err
		}
		return NewInsertRowsNode(p.ctx.GenPlanNodeID(), rows), nil
	case *statement.InsertRowsOfOneDeviceStatement:
		for _, r := range stmt.Rows {
			if !r.Device.Equal(stmt.Device) {
				return nil, invalidWrite(stmt, "row of %s in a batch of %s", r.Device, stmt.Device)
			}
		}
		rows, err := p.planRows(analysis.SchemaTree, stmt.Rows)
		if err != nil {
			return nil, err
		}
		return NewInsertRowsOfOneDeviceNode(p.ctx.GenPlanNodeID(), stmt.Device, rows), nil
	case *statement.InsertMultiTabletsStatement:
		tablets := make([]*InsertTabletNode, 0, len(stmt.Tablets))
		for _, t := range stmt.Tablets {
			n, err := p.planInsertTablet(analysis.SchemaTree, t)
			if err != nil {
				return nil, err
			}
			tablets = append(tablets, n)
		}
		return NewInsertMultiTabletsNode(p.ctx.GenPlanNodeID(), tablets), nil
	case nil:
		return nil, errno.NewError(errno.UnsupportedStatement, "<nil>")
	}
	return nil, errno.NewError(errno.UnsupportedStatement, analysis.Statement.Kind())
}

func (p *LogicalPlanner) planQuery(stmt *statement.QueryStatement) (PlanNode, error) {
	if stmt.AlignByDevice && stmt.GroupByLevel != nil {
		return nil, errno.NewError(errno.UnsupportedStatement, "GROUP BY LEVEL with ALIGN BY DEVICE")
	}
	b := NewLogicalPlanBuilder(p.ctx).
		PlanRawDataSource(stmt.ResultColumns, stmt.AlignByDevice, stmt.Order).
		PlanFilter(stmt.Where).
		PlanGroupByLevel(stmt.GroupByLevel, stmt.ResultColumns).
		PlanFill(stmt.Fill).
		PlanFilterNull(stmt.FilterNull).
		PlanSort(stmt.Order).
		PlanLimit(stmt.Limit).
		PlanOffset(stmt.Offset)
	return b.Root(), nil
}

func invalidWrite(stmt statement.Statement, format string, args ...interface{}) error {
	return errno.NewError(errno.InvalidWriteStatement, stmt.Kind(), fmt.Sprintf(format, args...))
}

// searchSchemas resolves the measurements of device before any write node is built.
func searchSchemas(tree statement.SchemaTree, stmt statement.Statement, device metapath.PartialPath, measurements []string) ([]schema.MeasurementSchema, error) {
	if tree == nil {
		return nil, invalidWrite(stmt, "no schema tree for %s", device)
	}
	return tree.SearchMeasurementSchema(device, measurements)
}

func (p *LogicalPlanner) planInsertRow(tree statement.SchemaTree, stmt *statement.InsertRowStatement) (*InsertRowNode, error) {
	if len(stmt.Values) != len(stmt.Measurements) {
		return nil, invalidWrite(stmt, "%d values for %d measurements", len(stmt.Values), len(stmt.Measurements))
	}
	schemas, err := searchSchemas(tree, stmt, stmt.Device, stmt.Measurements)
	if err != nil {
		return nil, err
	}
	return NewInsertRowNode(p.ctx.GenPlanNodeID(), stmt, schemas), nil
}

func (p *LogicalPlanner) planRows(tree statement.SchemaTree, rows []*statement.InsertRowStatement) ([]*InsertRowNode, error) {
	out := make([]*InsertRowNode, 0, len(rows))
	for _, r := range rows {
		n, err := p.planInsertRow(tree, r)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (p *LogicalPlanner) planInsertTablet(tree statement.SchemaTree, stmt *statement.InsertTabletStatement) (*InsertTabletNode, error) {
	if len(stmt.Columns) != len(stmt.Measurements) {
		return nil, invalidWrite(stmt, "%d columns for %d measurements", len(stmt.Columns), len(stmt.Measurements))
	}
	for i, col := range stmt.Columns {
		if len(col) != stmt.RowCount() {
			return nil, invalidWrite(stmt, "column %s has %d values for %d rows", stmt.Measurements[i], len(col), stmt.RowCount())
		}
	}
	schemas, err := searchSchemas(tree, stmt, stmt.Device, stmt.Measurements)
	if err != nil {
		return nil, err
	}
	return NewInsertTabletNode(p.ctx.GenPlanNodeID(), stmt, schemas), nil
}
