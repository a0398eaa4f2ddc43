package relational

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapunk/lakequery/internal/plan"
)

func seedSQLite(t *testing.T) string {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE users (id INTEGER, name TEXT, age INTEGER)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO users VALUES (1, 'alice', 31), (2, 'bob', 20), (3, 'carl', 45)`)
	require.NoError(t, err)
	return dsn
}

func TestAdapter_ExecuteWithPredicatePushdown(t *testing.T) {
	dsn := seedSQLite(t)
	a := New("R", DialectSQLite, dsn)
	require.NoError(t, a.Connect(context.Background()))
	defer a.Disconnect(context.Background())

	sub := &plan.Limit{
		N: 10,
		Child: &plan.Filter{
			Predicate: &plan.BinOp{
				Op:    ">",
				Left:  &plan.ColumnRef{Qualified: "age"},
				Right: &plan.Literal{Val: int64(25)},
			},
			Child: &plan.Scan{Source: "R", Table: "users", Projection: []string{"name"}},
		},
	}

	it, err := a.Execute(context.Background(), sub)
	require.NoError(t, err)
	batch, err := it.Next(context.Background())
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Len(t, batch.Rows, 2)
	require.NoError(t, it.Close())
}

func TestAdapter_ListTablesAndSchema(t *testing.T) {
	dsn := seedSQLite(t)
	a := New("R", DialectSQLite, dsn)
	require.NoError(t, a.Connect(context.Background()))
	defer a.Disconnect(context.Background())

	tables, err := a.ListTables(context.Background())
	require.NoError(t, err)
	assert.Contains(t, tables, "users")

	schema, err := a.Schema(context.Background(), "users")
	require.NoError(t, err)
	assert.Len(t, schema, 3)
}

func TestAdapter_SupportsScanWrappedInFilterProjectLimit(t *testing.T) {
	a := New("R", DialectSQLite, "")
	n := &plan.Limit{Child: &plan.Project{Child: &plan.Filter{Child: &plan.Scan{Table: "t"}}}}
	assert.True(t, a.Supports(n))
	assert.False(t, a.Supports(&plan.Join{}))
}
