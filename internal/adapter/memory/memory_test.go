package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapunk/lakequery/internal/plan"
)

func usersTable() *Table {
	return &Table{
		Schema: plan.Schema{
			{Name: "id", Type: plan.ColumnType{Tag: plan.TInt64}},
			{Name: "name", Type: plan.ColumnType{Tag: plan.TUTF8}},
			{Name: "age", Type: plan.ColumnType{Tag: plan.TInt64}},
		},
		Rows: [][]interface{}{
			{int64(1), "alice", int64(31)},
			{int64(2), "bob", int64(20)},
			{int64(3), "carl", int64(45)},
		},
	}
}

func TestAdapter_ExecuteWithPredicatePushdown(t *testing.T) {
	a := New("R")
	a.AddTable("users", usersTable())
	require.NoError(t, a.Connect(context.Background()))

	sub := &plan.Scan{
		Source:     "R",
		Table:      "users",
		Projection: []string{"id", "name"},
		Predicate: &plan.BinOp{
			Op:    ">",
			Left:  &plan.ColumnRef{Qualified: "age"},
			Right: &plan.Literal{Val: int64(30)},
		},
	}

	it, err := a.Execute(context.Background(), sub)
	require.NoError(t, err)
	batch, err := it.Next(context.Background())
	require.NoError(t, err)
	require.NotNil(t, batch)

	assert.Len(t, batch.Rows, 2)
	assert.Equal(t, []string{"id", "name"}, []string{batch.Schema[0].Name, batch.Schema[1].Name})

	next, err := it.Next(context.Background())
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestAdapter_ExecuteWithoutConnectFails(t *testing.T) {
	a := New("R")
	a.AddTable("users", usersTable())

	_, err := a.Execute(context.Background(), &plan.Scan{Source: "R", Table: "users"})
	assert.Error(t, err)
}

func TestAdapter_SchemaUnknownTable(t *testing.T) {
	a := New("R")
	require.NoError(t, a.Connect(context.Background()))
	_, err := a.Schema(context.Background(), "missing")
	assert.Error(t, err)
}
