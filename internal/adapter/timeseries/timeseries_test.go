package timeseries

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapunk/lakequery/internal/plan"
)

func seedTable() *Table {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &Table{
		Schema:    plan.Schema{{Name: "value", Type: plan.ColumnType{Tag: plan.TFloat64}}},
		TimeField: "ts",
		Points: []Point{
			{Time: base, Row: []interface{}{1.0}},
			{Time: base.Add(30 * time.Second), Row: []interface{}{2.0}},
			{Time: base.Add(90 * time.Second), Row: []interface{}{3.0}},
		},
	}
}

func TestAdapter_ScanReturnsSortedPoints(t *testing.T) {
	a := New("TS")
	a.AddTable("metrics", seedTable())
	require.NoError(t, a.Connect(context.Background()))

	it, err := a.Execute(context.Background(), &plan.Scan{Table: "metrics"})
	require.NoError(t, err)
	batch, err := it.Next(context.Background())
	require.NoError(t, err)
	assert.Len(t, batch.Rows, 3)
}

func TestAdapter_TimeBucket(t *testing.T) {
	a := New("TS")
	a.AddTable("metrics", seedTable())
	require.NoError(t, a.Connect(context.Background()))

	it, err := a.Execute(context.Background(), &Bucket{Table: "metrics", Interval: time.Minute})
	require.NoError(t, err)
	batch, err := it.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Rows, 2)
	assert.Equal(t, int64(2), batch.Rows[0][1])
	assert.Equal(t, int64(1), batch.Rows[1][1])
}

func TestAdapter_UnknownTable(t *testing.T) {
	a := New("TS")
	require.NoError(t, a.Connect(context.Background()))
	_, err := a.Execute(context.Background(), &plan.Scan{Table: "missing"})
	assert.Error(t, err)
}
