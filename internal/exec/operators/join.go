package operators

import (
	"context"
	"fmt"

	"github.com/datapunk/lakequery/internal/adapter"
	"github.com/datapunk/lakequery/internal/plan"
	"github.com/datapunk/lakequery/internal/plan/eval"
)

// HashJoinOp builds an in-memory hash table over Right (the smaller
// estimated side, per internal/optimizer/cost's join-reorder choice)
// keyed on Condition's right-hand column, then probes it with each Left
// row — the same build/probe shape as the teacher's hash_join.go,
// generalized from its map[string]domain.Row single-match table to
// map[string][]row to support one-to-many joins.
type HashJoinOp struct {
	Left, Right Operator
	Kind        plan.JoinKind
	Condition   plan.Expr

	schema plan.Schema
	built  Operator
}

func NewHashJoinOp(left, right Operator, kind plan.JoinKind, cond plan.Expr) *HashJoinOp {
	schema := append(append(plan.Schema{}, left.Schema()...), right.Schema()...)
	return &HashJoinOp{Left: left, Right: right, Kind: kind, Condition: cond, schema: schema}
}

func (h *HashJoinOp) Schema() plan.Schema { return h.schema }
func (h *HashJoinOp) Close() error {
	lerr := h.Left.Close()
	rerr := h.Right.Close()
	if lerr != nil {
		return lerr
	}
	return rerr
}

func (h *HashJoinOp) Next(ctx context.Context) (*adapter.Batch, error) {
	if h.built != nil {
		return h.built.Next(ctx)
	}

	leftCond, rightCond, ok := splitEquiJoin(h.Condition)
	if !ok {
		return nil, fmt.Errorf("operators: hash join requires an equi-join condition, got %v", h.Condition)
	}

	rightRows, rightSchema, err := drainAll(ctx, h.Right)
	if err != nil {
		return nil, err
	}
	table := make(map[string][]int, len(rightRows))
	for i, row := range rightRows {
		v, err := eval.Row(rightSchema, row, rightCond)
		if err != nil {
			return nil, err
		}
		k := hashKey(v)
		table[k] = append(table[k], i)
	}

	leftRows, leftSchema, err := drainAll(ctx, h.Left)
	if err != nil {
		return nil, err
	}

	var out [][]interface{}
	rightWidth := len(rightSchema)
	for _, lrow := range leftRows {
		v, err := eval.Row(leftSchema, lrow, leftCond)
		if err != nil {
			return nil, err
		}
		matches := table[hashKey(v)]
		if len(matches) == 0 {
			if h.Kind == plan.JoinLeft || h.Kind == plan.JoinFull {
				out = append(out, append(append([]interface{}{}, lrow...), make([]interface{}, rightWidth)...))
			}
			continue
		}
		for _, idx := range matches {
			merged := append(append([]interface{}{}, lrow...), rightRows[idx]...)
			out = append(out, merged)
		}
	}

	h.built = &sliceIterator{schema: h.schema, rows: out}
	return h.built.Next(ctx)
}

// splitEquiJoin recognizes a top-level "left_col = right_col" condition
// (or an AND of such conditions flattened into a row-key comparison is
// out of scope; multi-column equi-joins should compose keys upstream).
func splitEquiJoin(e plan.Expr) (left, right plan.Expr, ok bool) {
	bin, isBin := e.(*plan.BinOp)
	if !isBin || bin.Op != "=" {
		return nil, nil, false
	}
	return bin.Left, bin.Right, true
}

// TableScanOp wraps an adapter.RowIterator (typically an Adapter.
// Execute result) as an Operator, the seam between the Source Adapter
// Contract and the physical operator tree.
type TableScanOp struct {
	it     adapter.RowIterator
	schema plan.Schema
}

func NewTableScanOp(it adapter.RowIterator, schema plan.Schema) *TableScanOp {
	return &TableScanOp{it: it, schema: schema}
}

func (t *TableScanOp) Schema() plan.Schema                      { return t.schema }
func (t *TableScanOp) Close() error                             { return t.it.Close() }
func (t *TableScanOp) Next(ctx context.Context) (*adapter.Batch, error) { return t.it.Next(ctx) }
