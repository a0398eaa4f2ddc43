// Package memory implements an in-process Adapter over plain Go slices.
// It is the relational reference adapter used by tests and the example
// CLI, and backs the planner's default cost heuristics when no other
// source is configured. Grounded on the teacher's general
// pkg/resource/domain.DataSource contract shape, reduced to the
// read-federation surface of adapter.Adapter.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/datapunk/lakequery/internal/adapter"
	"github.com/datapunk/lakequery/internal/plan"
)

// Table is one in-memory relation: a fixed schema plus its rows.
type Table struct {
	Schema plan.Schema
	Rows   [][]interface{}
}

// Adapter is a relational-kind Adapter backed entirely by in-memory
// tables, connected or not per Connect/Disconnect.
type Adapter struct {
	mu        sync.RWMutex
	id        string
	tables    map[string]*Table
	connected bool
}

// New creates a memory adapter with the given source id.
func New(sourceID string) *Adapter {
	return &Adapter{id: sourceID, tables: make(map[string]*Table)}
}

// AddTable registers a table (may be called before or after Connect).
func (a *Adapter) AddTable(name string, t *Table) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tables[name] = t
}

func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = true
	return nil
}

func (a *Adapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = false
	return nil
}

func (a *Adapter) Descriptor() adapter.Descriptor {
	return adapter.Descriptor{
		ID:   a.id,
		Kind: adapter.KindRelational,
		Capabilities: adapter.CapabilitySet{
			adapter.CapJoins:          true,
			adapter.CapSubqueries:     true,
			adapter.CapWindow:         true,
			adapter.CapCostEstimation: true,
		},
		CostFactors: adapter.CostFactors{IOPerRow: 0.001, CPUPerRow: 0.0005, StartupCost: 0.01, Parallelism: 1},
	}
}

func (a *Adapter) Capabilities() adapter.CapabilitySet { return a.Descriptor().Capabilities }

func (a *Adapter) Schema(ctx context.Context, table string) (plan.Schema, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.connected {
		return nil, adapter.ErrConnection("memory.Schema", nil, false)
	}
	t, ok := a.tables[table]
	if !ok {
		return nil, adapter.ErrSchema("memory.Schema", errTableNotFound(table))
	}
	return t.Schema, nil
}

func (a *Adapter) ListTables(ctx context.Context) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.tables))
	for name := range a.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (a *Adapter) EstimateCost(ctx context.Context, sub plan.Node) (*adapter.CostEstimate, error) {
	scan, ok := sub.(*plan.Scan)
	if !ok {
		return nil, nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, ok := a.tables[scan.Table]
	if !ok {
		return nil, adapter.ErrSchema("memory.EstimateCost", errTableNotFound(scan.Table))
	}
	rows := int64(len(t.Rows))
	return &adapter.CostEstimate{IO: float64(rows) * 0.001, CPU: float64(rows) * 0.0005, RowsOut: rows}, nil
}

func (a *Adapter) Execute(ctx context.Context, sub plan.Node) (adapter.RowIterator, error) {
	scan, ok := sub.(*plan.Scan)
	if !ok {
		return nil, adapter.ErrQuery("memory.Execute", errUnsupportedSubplan(sub))
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.connected {
		return nil, adapter.ErrConnection("memory.Execute", nil, false)
	}
	t, ok := a.tables[scan.Table]
	if !ok {
		return nil, adapter.ErrSchema("memory.Execute", errTableNotFound(scan.Table))
	}

	schema := t.Schema
	rows := t.Rows
	if scan.Predicate != nil {
		var err error
		rows, err = filterRows(schema, rows, scan.Predicate)
		if err != nil {
			return nil, adapter.ErrQuery("memory.Execute", err)
		}
	}
	if scan.Projection != nil {
		schema, rows = projectRows(schema, rows, scan.Projection)
	}
	return &sliceIterator{schema: schema, rows: rows}, nil
}

func (a *Adapter) Supports(n plan.Node) bool {
	switch n.(type) {
	case *plan.Scan, *plan.Filter, *plan.Project:
		return true
	default:
		return false
	}
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
