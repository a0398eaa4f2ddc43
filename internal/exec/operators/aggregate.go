package operators

import (
	"context"
	"fmt"
	"math"

	"github.com/datapunk/lakequery/internal/adapter"
	"github.com/datapunk/lakequery/internal/plan"
	"github.com/datapunk/lakequery/internal/plan/eval"
)

// AggregateOp groups Input's rows by GroupKeys and computes Aggs per
// group, non-streaming like the teacher's AggregateOperator (it must
// see every row before it can emit the first group).
//
// Grounded on the teacher's pkg/executor/operators/aggregate.go, which
// switches on a closed types.AggFuncType per group; generalized here to
// the AggFunc.Fn string names internal/plan already uses.
type AggregateOp struct {
	Input     Operator
	GroupKeys []plan.Expr
	Aggs      []plan.AggFunc

	schema plan.Schema
	built  Operator
}

func NewAggregateOp(input Operator, groupKeys []plan.Expr, aggs []plan.AggFunc) *AggregateOp {
	schema := make(plan.Schema, 0, len(groupKeys)+len(aggs))
	for i := range groupKeys {
		schema = append(schema, plan.Column{Name: fmt.Sprintf("group_%d", i), Type: plan.ColumnType{Tag: plan.TUTF8}})
	}
	for _, a := range aggs {
		schema = append(schema, plan.Column{Name: a.Alias, Type: plan.ColumnType{Tag: plan.TFloat64}})
	}
	return &AggregateOp{Input: input, GroupKeys: groupKeys, Aggs: aggs, schema: schema}
}

func (a *AggregateOp) Schema() plan.Schema { return a.schema }
func (a *AggregateOp) Close() error        { return a.Input.Close() }

type aggState struct {
	keys   []interface{}
	sums   []float64
	sumSqs []float64
	counts []int64
	mins   []interface{}
	maxs   []interface{}
	seen   []map[string]bool // for COUNT_DISTINCT
}

func (a *AggregateOp) Next(ctx context.Context) (*adapter.Batch, error) {
	if a.built != nil {
		return a.built.Next(ctx)
	}
	rows, schema, err := drainAll(ctx, a.Input)
	if err != nil {
		return nil, err
	}

	groups := map[string]*aggState{}
	var order []string
	for _, row := range rows {
		keyParts := make([]interface{}, len(a.GroupKeys))
		keyStr := ""
		for i, g := range a.GroupKeys {
			v, err := eval.Row(schema, row, g)
			if err != nil {
				return nil, err
			}
			keyParts[i] = v
			keyStr += fmt.Sprintf("%v|", v)
		}
		st, ok := groups[keyStr]
		if !ok {
			st = &aggState{
				keys:   keyParts,
				sums:   make([]float64, len(a.Aggs)),
				sumSqs: make([]float64, len(a.Aggs)),
				counts: make([]int64, len(a.Aggs)),
				mins:   make([]interface{}, len(a.Aggs)),
				maxs:   make([]interface{}, len(a.Aggs)),
				seen:   make([]map[string]bool, len(a.Aggs)),
			}
			for i := range a.Aggs {
				st.seen[i] = map[string]bool{}
			}
			groups[keyStr] = st
			order = append(order, keyStr)
		}
		for i, agg := range a.Aggs {
			if err := applyAgg(schema, row, agg, st, i); err != nil {
				return nil, err
			}
		}
	}

	out := make([][]interface{}, 0, len(order))
	for _, k := range order {
		st := groups[k]
		row := append([]interface{}{}, st.keys...)
		for i, agg := range a.Aggs {
			row = append(row, finalizeAgg(agg, st, i))
		}
		out = append(out, row)
	}
	a.built = &sliceIterator{schema: a.schema, rows: out}
	return a.built.Next(ctx)
}

func applyAgg(schema plan.Schema, row []interface{}, agg plan.AggFunc, st *aggState, i int) error {
	if agg.Fn == "COUNT" && agg.Arg == nil {
		st.counts[i]++
		return nil
	}
	v, err := eval.Row(schema, row, agg.Arg)
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	if agg.Distinct {
		key := fmt.Sprintf("%v", v)
		if st.seen[i][key] {
			return nil
		}
		st.seen[i][key] = true
	}
	st.counts[i]++
	if f, ok := toFloat(v); ok {
		st.sums[i] += f
		st.sumSqs[i] += f * f
	}
	if st.mins[i] == nil || compareValues(v, st.mins[i]) < 0 {
		st.mins[i] = v
	}
	if st.maxs[i] == nil || compareValues(v, st.maxs[i]) > 0 {
		st.maxs[i] = v
	}
	return nil
}

func finalizeAgg(agg plan.AggFunc, st *aggState, i int) interface{} {
	switch agg.Fn {
	case "COUNT", "COUNT_DISTINCT":
		return st.counts[i]
	case "SUM":
		return st.sums[i]
	case "AVG":
		if st.counts[i] == 0 {
			return nil
		}
		return st.sums[i] / float64(st.counts[i])
	case "MIN":
		return st.mins[i]
	case "MAX":
		return st.maxs[i]
	case "STDDEV", "VARIANCE":
		// population variance via E[x^2] - E[x]^2, accumulated in one pass
		// alongside sums so this never needs to retain raw row values.
		if st.counts[i] == 0 {
			return nil
		}
		n := float64(st.counts[i])
		mean := st.sums[i] / n
		variance := st.sumSqs[i]/n - mean*mean
		if variance < 0 {
			variance = 0 // floating-point underflow guard
		}
		if agg.Fn == "VARIANCE" {
			return variance
		}
		return math.Sqrt(variance)
	default:
		return nil
	}
}
