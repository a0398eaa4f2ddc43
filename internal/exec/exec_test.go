package exec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapunk/lakequery/internal/adapter"
	"github.com/datapunk/lakequery/internal/adapter/memory"
	"github.com/datapunk/lakequery/internal/plan"
)

func newRegistry(t *testing.T) *adapter.Registry {
	t.Helper()
	a := memory.New("mem")
	a.AddTable("users", &memory.Table{
		Schema: plan.Schema{
			{Name: "id", Type: plan.ColumnType{Tag: plan.TInt64}},
			{Name: "name", Type: plan.ColumnType{Tag: plan.TUTF8}},
			{Name: "age", Type: plan.ColumnType{Tag: plan.TInt64}},
		},
		Rows: [][]interface{}{
			{int64(1), "alice", int64(30)},
			{int64(2), "bob", int64(17)},
			{int64(3), "carl", int64(45)},
		},
	})
	require.NoError(t, a.Connect(context.Background()))
	reg := adapter.NewRegistry()
	reg.Register("mem", a)
	return reg
}

func TestEngine_RunsFilterProjectLimit(t *testing.T) {
	reg := newRegistry(t)
	e := New(reg)

	tree := &plan.Limit{
		N: 10,
		Child: &plan.Project{
			Exprs: []plan.NamedExpr{{Expr: &plan.ColumnRef{Qualified: "name"}, Alias: "name"}},
			Child: &plan.Filter{
				Predicate: &plan.BinOp{Op: ">=", Left: &plan.ColumnRef{Qualified: "age"}, Right: &plan.Literal{Val: int64(18)}},
				Child:     &plan.Scan{Source: "mem", Table: "users"},
			},
		},
	}

	res, err := e.Run(context.Background(), tree, ModeStandard)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	names := []string{res.Rows[0][0].(string), res.Rows[1][0].(string)}
	assert.ElementsMatch(t, []string{"alice", "carl"}, names)
}

func TestEngine_AdaptiveModeJoinsConcurrently(t *testing.T) {
	reg := newRegistry(t)
	e := New(reg)

	tree := &plan.Join{
		JoinKind:  plan.JoinInner,
		Left:      &plan.Scan{Source: "mem", Table: "users"},
		Right:     &plan.Scan{Source: "mem", Table: "users"},
		Condition: &plan.BinOp{Op: "=", Left: &plan.ColumnRef{Qualified: "id"}, Right: &plan.ColumnRef{Qualified: "id"}},
	}
	res, err := e.Run(context.Background(), tree, ModeAdaptive)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 3)
}
