package operators

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapunk/lakequery/internal/adapter"
	"github.com/datapunk/lakequery/internal/plan"
)

func schemaOf(names ...string) plan.Schema {
	s := make(plan.Schema, len(names))
	for i, n := range names {
		s[i] = plan.Column{Name: n, Type: plan.ColumnType{Tag: plan.TUTF8}}
	}
	return s
}

func source(schema plan.Schema, rows [][]interface{}) Operator {
	return &sliceIterator{schema: schema, rows: rows}
}

func drain(t *testing.T, op Operator) [][]interface{} {
	t.Helper()
	var out [][]interface{}
	for {
		b, err := op.Next(context.Background())
		require.NoError(t, err)
		if b == nil {
			return out
		}
		out = append(out, b.Rows...)
	}
}

func TestFilterOp_DropsNonMatchingRows(t *testing.T) {
	schema := schemaOf("id", "age")
	src := source(schema, [][]interface{}{{int64(1), int64(30)}, {int64(2), int64(10)}})
	f := &FilterOp{Input: src, Predicate: &plan.BinOp{Op: ">", Left: &plan.ColumnRef{Qualified: "age"}, Right: &plan.Literal{Val: int64(18)}}}
	rows := drain(t, f)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0][0])
}

func TestLimitOp_RespectsOffsetAndN(t *testing.T) {
	schema := schemaOf("id")
	rows := make([][]interface{}, 10)
	for i := range rows {
		rows[i] = []interface{}{int64(i)}
	}
	src := source(schema, rows)
	l := &LimitOp{Input: src, N: 3, Offset: 2}
	out := drain(t, l)
	require.Len(t, out, 3)
	assert.Equal(t, int64(2), out[0][0])
	assert.Equal(t, int64(4), out[2][0])
}

func TestSortOp_OrdersDescending(t *testing.T) {
	schema := schemaOf("id")
	src := source(schema, [][]interface{}{{int64(3)}, {int64(1)}, {int64(2)}})
	s := &SortOp{Input: src, Keys: []plan.SortKey{{Expr: &plan.ColumnRef{Qualified: "id"}, Desc: true}}}
	out := drain(t, s)
	require.Len(t, out, 3)
	assert.Equal(t, []interface{}{int64(3)}, out[0])
	assert.Equal(t, []interface{}{int64(1)}, out[2])
}

func TestAggregateOp_GroupsAndSums(t *testing.T) {
	schema := schemaOf("dept", "salary")
	src := source(schema, [][]interface{}{
		{"eng", 100.0}, {"eng", 200.0}, {"sales", 50.0},
	})
	agg := NewAggregateOp(src,
		[]plan.Expr{&plan.ColumnRef{Qualified: "dept"}},
		[]plan.AggFunc{{Fn: "SUM", Arg: &plan.ColumnRef{Qualified: "salary"}, Alias: "total"}},
	)
	out := drain(t, agg)
	require.Len(t, out, 2)
	totals := map[string]float64{}
	for _, row := range out {
		totals[row[0].(string)] = row[1].(float64)
	}
	assert.Equal(t, 300.0, totals["eng"])
	assert.Equal(t, 50.0, totals["sales"])
}

func TestHashJoinOp_InnerJoinMatchesOnEquality(t *testing.T) {
	left := source(schemaOf("order_id", "customer_id"), [][]interface{}{{int64(1), int64(100)}, {int64(2), int64(200)}})
	right := source(schemaOf("id", "name"), [][]interface{}{{int64(100), "alice"}, {int64(300), "zed"}})

	hj := NewHashJoinOp(left, right, plan.JoinInner,
		&plan.BinOp{Op: "=", Left: &plan.ColumnRef{Qualified: "customer_id"}, Right: &plan.ColumnRef{Qualified: "id"}})
	out := drain(t, hj)
	require.Len(t, out, 1)
	assert.Equal(t, int64(1), out[0][0])
	assert.Equal(t, "alice", out[0][3])
}

func TestHashJoinOp_LeftJoinKeepsUnmatched(t *testing.T) {
	left := source(schemaOf("order_id", "customer_id"), [][]interface{}{{int64(1), int64(999)}})
	right := source(schemaOf("id", "name"), [][]interface{}{{int64(100), "alice"}})

	hj := NewHashJoinOp(left, right, plan.JoinLeft,
		&plan.BinOp{Op: "=", Left: &plan.ColumnRef{Qualified: "customer_id"}, Right: &plan.ColumnRef{Qualified: "id"}})
	out := drain(t, hj)
	require.Len(t, out, 1)
	assert.Nil(t, out[0][2])
}

var _ adapter.RowIterator = (*sliceIterator)(nil)
