package document

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/datapunk/lakequery/internal/plan"
)

func writeFixture(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"id", "name", "age"},
		{1, "alice", 31},
		{2, "bob", 20},
		{3, "carl", 45},
	}
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, v))
		}
	}

	path, err := os.CreateTemp("", "lakequery-doc-*.xlsx")
	require.NoError(t, err)
	path.Close()
	require.NoError(t, f.SaveAs(path.Name()))
	t.Cleanup(func() { os.Remove(path.Name()) })
	return path.Name()
}

func TestAdapter_LoadAndScan(t *testing.T) {
	path := writeFixture(t)
	a := New("D", path, false)
	require.NoError(t, a.Connect(context.Background()))
	defer a.Disconnect(context.Background())

	tables, err := a.ListTables(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 1)
	sheet := tables[0]

	schema, err := a.Schema(context.Background(), sheet)
	require.NoError(t, err)
	require.Len(t, schema, 3)

	sub := &plan.Scan{
		Source:     "D",
		Table:      sheet,
		Projection: []string{"name"},
		Predicate: &plan.BinOp{
			Op:    ">",
			Left:  &plan.ColumnRef{Qualified: "age"},
			Right: &plan.Literal{Val: int64(25)},
		},
	}
	it, err := a.Execute(context.Background(), sub)
	require.NoError(t, err)
	batch, err := it.Next(context.Background())
	require.NoError(t, err)
	assert.Len(t, batch.Rows, 2)
}

func TestAdapter_SchemaUnknownSheet(t *testing.T) {
	path := writeFixture(t)
	a := New("D", path, false)
	require.NoError(t, a.Connect(context.Background()))
	defer a.Disconnect(context.Background())

	_, err := a.Schema(context.Background(), "missing")
	assert.Error(t, err)
}
