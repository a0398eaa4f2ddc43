// Package document implements a document-kind Adapter backed by
// github.com/xuri/excelize/v2, loading a workbook's sheets into memory as
// tables and optionally writing changes back to the file. Grounded on the
// teacher's pkg/resource/excel.ExcelAdapter, which layers an Excel loader
// over its MVCC memory datasource; this adapter keeps the same
// load-once/write-back shape but flattens the MVCC layer away since the
// federation engine has no versioned-read requirement (spec.md §1
// non-goals: no support for write-heavy OLTP workloads).
package document

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/datapunk/lakequery/internal/adapter"
	"github.com/datapunk/lakequery/internal/plan"
	"github.com/datapunk/lakequery/internal/plan/eval"
)

// Adapter loads one workbook's sheets as tables, inferring a schema per
// sheet by sampling its data rows the way the teacher's ExcelAdapter does.
type Adapter struct {
	id       string
	path     string
	writable bool

	mu     sync.RWMutex
	file   *excelize.File
	tables map[string]*sheetTable
}

type sheetTable struct {
	schema plan.Schema
	rows   [][]interface{}
}

// New creates a document adapter over the workbook at path. When writable
// is true, Disconnect writes any loaded-table mutations back to the file;
// excelize writes are rare in this reference adapter since the engine has
// no INSERT/UPDATE/DELETE surface, but the option matches the teacher's
// shape for future extension.
func New(sourceID, path string, writable bool) *Adapter {
	return &Adapter{id: sourceID, path: path, writable: writable, tables: make(map[string]*sheetTable)}
}

func (a *Adapter) Connect(ctx context.Context) error {
	f, err := excelize.OpenFile(a.path)
	if err != nil {
		return adapter.ErrConnection("document.Connect", err, false)
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return adapter.ErrSchema("document.Connect", fmt.Errorf("workbook %q has no sheets", a.path))
	}

	tables := make(map[string]*sheetTable, len(sheets))
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			f.Close()
			return adapter.ErrSchema("document.Connect", fmt.Errorf("sheet %q: %w", sheet, err))
		}
		if len(rows) == 0 {
			continue
		}
		headers := rows[0]
		schema := inferSchema(headers, rows[1:])
		tables[sheet] = &sheetTable{schema: schema, rows: convertRows(schema, rows[1:])}
	}

	a.mu.Lock()
	a.file = f
	a.tables = tables
	a.mu.Unlock()
	return nil
}

func (a *Adapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	if a.writable {
		if err := a.writeBack(); err != nil {
			return err
		}
	}
	err := a.file.Close()
	a.file = nil
	return err
}

func (a *Adapter) writeBack() error {
	for sheet, t := range a.tables {
		for r, row := range t.rows {
			for c, v := range row {
				cell, err := excelize.CoordinatesToCellName(c+1, r+2)
				if err != nil {
					return err
				}
				if err := a.file.SetCellValue(sheet, cell, v); err != nil {
					return err
				}
			}
		}
	}
	return a.file.Save()
}

func (a *Adapter) Descriptor() adapter.Descriptor {
	return adapter.Descriptor{
		ID:   a.id,
		Kind: adapter.KindDocument,
		Capabilities: adapter.CapabilitySet{
			adapter.CapFullText: true,
		},
		CostFactors: adapter.CostFactors{IOPerRow: 0.02, CPUPerRow: 0.02, StartupCost: 0.5, Parallelism: 1},
	}
}

func (a *Adapter) Capabilities() adapter.CapabilitySet { return a.Descriptor().Capabilities }

func (a *Adapter) Schema(ctx context.Context, table string) (plan.Schema, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, ok := a.tables[table]
	if !ok {
		return nil, adapter.ErrSchema("document.Schema", fmt.Errorf("sheet %q not found", table))
	}
	return t.schema, nil
}

func (a *Adapter) ListTables(ctx context.Context) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.tables))
	for name := range a.tables {
		out = append(out, name)
	}
	return out, nil
}

func (a *Adapter) EstimateCost(ctx context.Context, sub plan.Node) (*adapter.CostEstimate, error) {
	scan, ok := sub.(*plan.Scan)
	if !ok {
		return nil, nil
	}
	a.mu.RLock()
	t := a.tables[scan.Table]
	a.mu.RUnlock()
	if t == nil {
		return &adapter.CostEstimate{}, nil
	}
	n := int64(len(t.rows))
	return &adapter.CostEstimate{IO: float64(n) * 0.02, CPU: float64(n) * 0.02, RowsOut: n}, nil
}

func (a *Adapter) Execute(ctx context.Context, sub plan.Node) (adapter.RowIterator, error) {
	scan, ok := sub.(*plan.Scan)
	if !ok {
		return nil, adapter.ErrCapability("document.Execute", fmt.Sprintf("unsupported subplan kind %s", sub.Kind()))
	}
	a.mu.RLock()
	t := a.tables[scan.Table]
	a.mu.RUnlock()
	if t == nil {
		return nil, adapter.ErrSchema("document.Execute", fmt.Errorf("sheet %q not found", scan.Table))
	}

	schema, rows := t.schema, t.rows
	if scan.Predicate != nil {
		var err error
		rows, err = filterRows(schema, rows, scan.Predicate)
		if err != nil {
			return nil, adapter.ErrQuery("document.Execute", err)
		}
	}
	if len(scan.Projection) > 0 {
		schema, rows = projectRows(schema, rows, scan.Projection)
	}
	return &sliceIterator{schema: schema, rows: rows}, nil
}

func (a *Adapter) Supports(n plan.Node) bool {
	scan, ok := n.(*plan.Scan)
	return ok && scan != nil
}

func filterRows(schema plan.Schema, rows [][]interface{}, predicate plan.Expr) ([][]interface{}, error) {
	out := make([][]interface{}, 0, len(rows))
	for _, row := range rows {
		v, err := eval.Row(schema, row, predicate)
		if err != nil {
			return nil, err
		}
		if b, ok := v.(bool); ok && b {
			out = append(out, row)
		}
	}
	return out, nil
}

func projectRows(schema plan.Schema, rows [][]interface{}, cols []string) (plan.Schema, [][]interface{}) {
	idx := make([]int, len(cols))
	outSchema := make(plan.Schema, len(cols))
	for i, c := range cols {
		pos := schema.IndexOf(c)
		idx[i] = pos
		if pos >= 0 {
			outSchema[i] = schema[pos]
		}
	}
	out := make([][]interface{}, len(rows))
	for r, row := range rows {
		newRow := make([]interface{}, len(cols))
		for i, pos := range idx {
			if pos >= 0 {
				newRow[i] = row[pos]
			}
		}
		out[r] = newRow
	}
	return outSchema, out
}

type sliceIterator struct {
	schema plan.Schema
	rows   [][]interface{}
	sent   bool
}

func (s *sliceIterator) Next(ctx context.Context) (*adapter.Batch, error) {
	if s.sent {
		return nil, nil
	}
	s.sent = true
	return &adapter.Batch{Schema: s.schema, Rows: s.rows}, nil
}

func (s *sliceIterator) Close() error { return nil }

// inferSchema samples up to 100 rows per column to pick the column's most
// common scalar type, the way the teacher's inferColumnTypes does.
func inferSchema(headers []string, rows [][]string) plan.Schema {
	sample := rows
	if len(sample) > 100 {
		sample = sample[:100]
	}

	counts := make([]map[plan.TypeTag]int, len(headers))
	for i := range counts {
		counts[i] = map[plan.TypeTag]int{}
	}
	for _, row := range sample {
		for j := range headers {
			if j >= len(row) || row[j] == "" {
				continue
			}
			counts[j][detectType(row[j])]++
		}
	}

	schema := make(plan.Schema, len(headers))
	for i, h := range headers {
		best, bestN := plan.TUTF8, 0
		for tag, n := range counts[i] {
			if n > bestN {
				best, bestN = tag, n
			}
		}
		schema[i] = plan.Column{Name: h, Type: plan.ColumnType{Tag: best}, Nullable: true}
	}
	return schema
}

func detectType(v string) plan.TypeTag {
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		return plan.TInt64
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return plan.TFloat64
	}
	if _, err := strconv.ParseBool(v); err == nil {
		return plan.TBool
	}
	return plan.TUTF8
}

func convertRows(schema plan.Schema, raw [][]string) [][]interface{} {
	out := make([][]interface{}, len(raw))
	for r, row := range raw {
		converted := make([]interface{}, len(schema))
		for c := range schema {
			if c >= len(row) || row[c] == "" {
				continue
			}
			converted[c] = convertCell(schema[c].Type.Tag, row[c])
		}
		out[r] = converted
	}
	return out
}

func convertCell(tag plan.TypeTag, v string) interface{} {
	switch tag {
	case plan.TInt64:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return v
		}
		return n
	case plan.TFloat64:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return v
		}
		return f
	case plan.TBool:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return v
		}
		return b
	default:
		return v
	}
}
