// Package timeseries implements a timeseries-kind Adapter: an in-memory,
// time-sorted row store exposing the time_bucket capability. A Bucket
// subplan handed to Execute counts points per truncated timestamp on the
// adapter side instead of shipping every raw row to the execution
// engine; the optimizer's capability-pushdown rule does not construct
// Bucket nodes.
//
// Grounded on the shape of the teacher's pkg/resource/csv_source and
// json_source (slice-backed row stores behind the same DataSource
// contract), generalized here with bucketing by truncated timestamp,
// computed from the sorted points at execution time.
package timeseries

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/datapunk/lakequery/internal/adapter"
	"github.com/datapunk/lakequery/internal/plan"
	"github.com/datapunk/lakequery/internal/plan/eval"
)

// Point is one timeseries observation: a timestamp plus arbitrary tag and
// field columns, flattened into a single row matching the table's schema.
type Point struct {
	Time time.Time
	Row  []interface{} // positional, matching Table.Schema minus the time column
}

// Table holds one metric's points, always sorted by Time.
type Table struct {
	Schema    plan.Schema // field/tag columns, time column excluded
	TimeField string
	Points    []Point
}

// Bucket aggregates one Bucket node (table, interval) into truncated
// timestamp -> row groups.
type Bucket struct {
	Table    string
	Interval time.Duration
	Alias    string
}

func (b *Bucket) Kind() plan.Type       { return plan.TypeUnsupported }
func (b *Bucket) ID() string            { return "time_bucket" }
func (b *Bucket) Children() []plan.Node { return nil }
func (b *Bucket) Schema() plan.Schema {
	return plan.Schema{
		{Name: "bucket", Type: plan.ColumnType{Tag: plan.TTimestamp}},
		{Name: "count", Type: plan.ColumnType{Tag: plan.TInt64}},
	}
}
func (b *Bucket) WithChildren([]plan.Node) plan.Node { cp := *b; return &cp }

// Adapter stores one or more metrics tables in memory.
type Adapter struct {
	id string

	mu        sync.RWMutex
	tables    map[string]*Table
	connected bool
}

func New(sourceID string) *Adapter {
	return &Adapter{id: sourceID, tables: make(map[string]*Table)}
}

// AddTable registers table, sorting its points by time.
func (a *Adapter) AddTable(name string, t *Table) {
	sort.Slice(t.Points, func(i, j int) bool { return t.Points[i].Time.Before(t.Points[j].Time) })
	a.mu.Lock()
	a.tables[name] = t
	a.mu.Unlock()
}

func (a *Adapter) Connect(ctx context.Context) error {
	a.connected = true
	return nil
}

func (a *Adapter) Disconnect(ctx context.Context) error {
	a.connected = false
	return nil
}

func (a *Adapter) Descriptor() adapter.Descriptor {
	return adapter.Descriptor{
		ID:   a.id,
		Kind: adapter.KindTimeseries,
		Capabilities: adapter.CapabilitySet{
			adapter.CapTimeBucket: true,
		},
		CostFactors: adapter.CostFactors{IOPerRow: 0.001, CPUPerRow: 0.001, StartupCost: 0.05, Parallelism: 2},
	}
}

func (a *Adapter) Capabilities() adapter.CapabilitySet { return a.Descriptor().Capabilities }

func (a *Adapter) Schema(ctx context.Context, table string) (plan.Schema, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, ok := a.tables[table]
	if !ok {
		return nil, adapter.ErrSchema("timeseries.Schema", fmt.Errorf("table %q not found", table))
	}
	schema := make(plan.Schema, 0, len(t.Schema)+1)
	schema = append(schema, plan.Column{Name: t.TimeField, Type: plan.ColumnType{Tag: plan.TTimestamp}})
	schema = append(schema, t.Schema...)
	return schema, nil
}

func (a *Adapter) ListTables(ctx context.Context) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.tables))
	for name := range a.tables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (a *Adapter) EstimateCost(ctx context.Context, sub plan.Node) (*adapter.CostEstimate, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	switch v := sub.(type) {
	case *plan.Scan:
		t := a.tables[v.Table]
		if t == nil {
			return &adapter.CostEstimate{}, nil
		}
		return &adapter.CostEstimate{RowsOut: int64(len(t.Points))}, nil
	case *Bucket:
		t := a.tables[v.Table]
		if t == nil {
			return &adapter.CostEstimate{}, nil
		}
		return &adapter.CostEstimate{RowsOut: int64(len(t.Points))}, nil
	default:
		return nil, nil
	}
}

func (a *Adapter) Execute(ctx context.Context, sub plan.Node) (adapter.RowIterator, error) {
	if !a.connected {
		return nil, adapter.ErrConnection("timeseries.Execute", nil, false)
	}
	switch v := sub.(type) {
	case *plan.Scan:
		return a.executeScan(v)
	case *Bucket:
		return a.executeBucket(v)
	default:
		return nil, adapter.ErrCapability("timeseries.Execute", fmt.Sprintf("unsupported subplan kind %s", sub.Kind()))
	}
}

func (a *Adapter) executeScan(scan *plan.Scan) (adapter.RowIterator, error) {
	a.mu.RLock()
	t := a.tables[scan.Table]
	a.mu.RUnlock()
	if t == nil {
		return nil, adapter.ErrSchema("timeseries.Execute", fmt.Errorf("table %q not found", scan.Table))
	}

	fullSchema, _ := a.Schema(context.Background(), scan.Table)
	rows := make([][]interface{}, len(t.Points))
	for i, p := range t.Points {
		row := make([]interface{}, 0, len(p.Row)+1)
		row = append(row, p.Time)
		row = append(row, p.Row...)
		rows[i] = row
	}

	if scan.Predicate != nil {
		filtered := rows[:0:0]
		for _, row := range rows {
			v, err := eval.Row(fullSchema, row, scan.Predicate)
			if err != nil {
				return nil, adapter.ErrQuery("timeseries.Execute", err)
			}
			if b, ok := v.(bool); ok && b {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}

	if len(scan.Projection) > 0 {
		idx := make([]int, len(scan.Projection))
		outSchema := make(plan.Schema, len(scan.Projection))
		for i, c := range scan.Projection {
			idx[i] = fullSchema.IndexOf(c)
			if idx[i] >= 0 {
				outSchema[i] = fullSchema[idx[i]]
			}
		}
		projected := make([][]interface{}, len(rows))
		for r, row := range rows {
			newRow := make([]interface{}, len(idx))
			for i, pos := range idx {
				if pos >= 0 {
					newRow[i] = row[pos]
				}
			}
			projected[r] = newRow
		}
		return &batchIterator{schema: outSchema, rows: projected}, nil
	}

	return &batchIterator{schema: fullSchema, rows: rows}, nil
}

func (a *Adapter) executeBucket(b *Bucket) (adapter.RowIterator, error) {
	a.mu.RLock()
	t := a.tables[b.Table]
	a.mu.RUnlock()
	if t == nil {
		return nil, adapter.ErrSchema("timeseries.Execute", fmt.Errorf("table %q not found", b.Table))
	}
	if b.Interval <= 0 {
		return nil, adapter.ErrCapability("timeseries.Execute", "bucket interval must be positive")
	}

	counts := map[time.Time]int64{}
	var order []time.Time
	for _, p := range t.Points {
		bucket := p.Time.Truncate(b.Interval)
		if _, seen := counts[bucket]; !seen {
			order = append(order, bucket)
		}
		counts[bucket]++
	}
	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })

	rows := make([][]interface{}, len(order))
	for i, bucket := range order {
		rows[i] = []interface{}{bucket, counts[bucket]}
	}
	schema := plan.Schema{
		{Name: "bucket", Type: plan.ColumnType{Tag: plan.TTimestamp}},
		{Name: "count", Type: plan.ColumnType{Tag: plan.TInt64}},
	}
	return &batchIterator{schema: schema, rows: rows}, nil
}

func (a *Adapter) Supports(n plan.Node) bool {
	switch n.(type) {
	case *plan.Scan, *Bucket:
		return true
	default:
		return false
	}
}

type batchIterator struct {
	schema plan.Schema
	rows   [][]interface{}
	sent   bool
}

func (b *batchIterator) Next(ctx context.Context) (*adapter.Batch, error) {
	if b.sent {
		return nil, nil
	}
	b.sent = true
	return &adapter.Batch{Schema: b.schema, Rows: b.rows}, nil
}

func (b *batchIterator) Close() error { return nil }
