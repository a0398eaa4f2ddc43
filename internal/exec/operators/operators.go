// Package operators implements the Physical Operators layer (spec.md
// §4.6): pull-based iterators mirroring internal/plan's logical node
// shapes (Scan, Filter, Project, Join, Aggregate, Sort, Limit, Union;
// plan.Window has no operator), each driven by the same adapter.RowIterator
// contract the Source Adapter Contract already exposes so a Federated
// leaf and a locally-computed operator compose without an adapter shim.
//
// Grounded on the teacher's pkg/executor/operators package (Operator
// interface, BaseOperator, HashJoinOperator's hashKey/multiHashKey
// helpers), adapted from its pull-to-completion QueryResult model to a
// streaming Next()-batch model matching adapter.RowIterator, since a
// federated engine must be able to start consuming a large scan before
// every row has arrived over the wire.
package operators

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/datapunk/lakequery/internal/adapter"
	"github.com/datapunk/lakequery/internal/plan"
	"github.com/datapunk/lakequery/internal/plan/eval"
)

// Operator is a physical, pull-based execution node. It is adapter.
// RowIterator-shaped so operators and adapter-native iterators compose
// without translation at a Federated boundary.
type Operator interface {
	adapter.RowIterator
	Schema() plan.Schema
}

// sliceIterator turns a pre-materialized set of batches into an
// Operator, the shape every non-streaming operator below (Sort,
// HashJoin's build side, Aggregate) reduces to once it has consumed its
// input.
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
func (s *sliceIterator) Close() error       { return nil }
func (s *sliceIterator) Schema() plan.Schema { return s.schema }

func drainAll(ctx context.Context, it adapter.RowIterator) ([][]interface{}, plan.Schema, error) {
	var rows [][]interface{}
	var schema plan.Schema
	for {
		batch, err := it.Next(ctx)
		if err != nil {
			return nil, nil, err
		}
		if batch == nil {
			break
		}
		if schema == nil {
			schema = batch.Schema
		}
		rows = append(rows, batch.Rows...)
	}
	return rows, schema, nil
}

// FilterOp applies Predicate to each row of Input, pulling batches
// through unmodified except for the rows it drops.
type FilterOp struct {
	Input     Operator
	Predicate plan.Expr
}

func (f *FilterOp) Schema() plan.Schema { return f.Input.Schema() }
func (f *FilterOp) Close() error        { return f.Input.Close() }
func (f *FilterOp) Next(ctx context.Context) (*adapter.Batch, error) {
	for {
		batch, err := f.Input.Next(ctx)
		if err != nil || batch == nil {
			return batch, err
		}
		kept := batch.Rows[:0:0]
		for _, row := range batch.Rows {
			v, err := eval.Row(batch.Schema, row, f.Predicate)
			if err != nil {
				return nil, err
			}
			if b, ok := v.(bool); ok && b {
				kept = append(kept, row)
			}
		}
		if len(kept) > 0 {
			return &adapter.Batch{Schema: batch.Schema, Rows: kept}, nil
		}
		// batch fully filtered out: pull the next one instead of returning
		// an empty batch, which the caller would otherwise treat as EOF-ish.
	}
}

// ProjectOp evaluates Exprs against each row of Input.
type ProjectOp struct {
	Input Operator
	Exprs []plan.NamedExpr
	schema plan.Schema
}

func NewProjectOp(input Operator, exprs []plan.NamedExpr) *ProjectOp {
	cols := make(plan.Schema, len(exprs))
	for i, e := range exprs {
		cols[i] = plan.Column{Name: e.Alias, Type: e.Expr.Type()}
	}
	return &ProjectOp{Input: input, Exprs: exprs, schema: cols}
}

func (p *ProjectOp) Schema() plan.Schema { return p.schema }
func (p *ProjectOp) Close() error        { return p.Input.Close() }
func (p *ProjectOp) Next(ctx context.Context) (*adapter.Batch, error) {
	batch, err := p.Input.Next(ctx)
	if err != nil || batch == nil {
		return batch, err
	}
	out := make([][]interface{}, len(batch.Rows))
	for i, row := range batch.Rows {
		projected := make([]interface{}, len(p.Exprs))
		for j, e := range p.Exprs {
			v, err := eval.Row(batch.Schema, row, e.Expr)
			if err != nil {
				return nil, err
			}
			projected[j] = v
		}
		out[i] = projected
	}
	return &adapter.Batch{Schema: p.schema, Rows: out}, nil
}

// LimitOp stops producing rows after N, skipping Offset first, the
// pull-model shape of the teacher's limit.go operator.
type LimitOp struct {
	Input        Operator
	N, Offset    int64
	seen, served int64
}

func (l *LimitOp) Schema() plan.Schema { return l.Input.Schema() }
func (l *LimitOp) Close() error        { return l.Input.Close() }
func (l *LimitOp) Next(ctx context.Context) (*adapter.Batch, error) {
	if l.served >= l.N {
		return nil, nil
	}
	for {
		batch, err := l.Input.Next(ctx)
		if err != nil || batch == nil {
			return batch, err
		}
		var kept [][]interface{}
		for _, row := range batch.Rows {
			if l.seen < l.Offset {
				l.seen++
				continue
			}
			if l.served >= l.N {
				break
			}
			kept = append(kept, row)
			l.served++
		}
		if len(kept) > 0 {
			return &adapter.Batch{Schema: batch.Schema, Rows: kept}, nil
		}
		if l.served >= l.N {
			return nil, nil
		}
	}
}

// SortOp materializes Input fully, then sorts — the teacher's sort.go
// operator is likewise non-streaming (a general external sort is out of
// scope here, same as the teacher's in-memory-only implementation).
type SortOp struct {
	Input Operator
	Keys  []plan.SortKey

	sorted Operator
}

func (s *SortOp) Schema() plan.Schema { return s.Input.Schema() }

func (s *SortOp) materialize(ctx context.Context) (Operator, error) {
	rows, schema, err := drainAll(ctx, s.Input)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range s.Keys {
			vi, _ := eval.Row(schema, rows[i], k.Expr)
			vj, _ := eval.Row(schema, rows[j], k.Expr)
			cmp := compareValues(vi, vj)
			if cmp == 0 {
				continue
			}
			if k.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return &sliceIterator{schema: schema, rows: rows}, nil
}

func (s *SortOp) Next(ctx context.Context) (*adapter.Batch, error) {
	if s.sorted == nil {
		materialized, err := s.materialize(ctx)
		if err != nil {
			return nil, err
		}
		s.sorted = materialized // subsequent Next calls just drain the sorted slice
	}
	return s.sorted.Next(ctx)
}
func (s *SortOp) Close() error { return s.Input.Close() }

func compareValues(a, b interface{}) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// UnionOp concatenates rows from Inputs in order.
type UnionOp struct {
	Inputs []Operator
	idx    int
}

func (u *UnionOp) Schema() plan.Schema { return u.Inputs[0].Schema() }
func (u *UnionOp) Close() error {
	var firstErr error
	for _, in := range u.Inputs {
		if err := in.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
func (u *UnionOp) Next(ctx context.Context) (*adapter.Batch, error) {
	for u.idx < len(u.Inputs) {
		batch, err := u.Inputs[u.idx].Next(ctx)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			u.idx++
			continue
		}
		return batch, nil
	}
	return nil, nil
}

// hashKey builds a type-aware hash key for a join column value, ported
// directly from the teacher's hash_join.go — the exact collision
// concern (int64(1) vs "1") applies unchanged.
func hashKey(v interface{}) string {
	if v == nil {
		return "nil:"
	}
	switch val := v.(type) {
	case int64:
		return "i:" + strconv.FormatInt(val, 10)
	case int:
		return "i:" + strconv.Itoa(val)
	case float64:
		return "f:" + strconv.FormatFloat(val, 'g', -1, 64)
	case string:
		return "s:" + val
	case bool:
		if val {
			return "b:1"
		}
		return "b:0"
	default:
		return fmt.Sprintf("%T:%v", val, val)
	}
}
