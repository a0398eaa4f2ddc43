package vector

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	dir, err := os.MkdirTemp("", "lakequery-vector-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	a := New("V", dir)
	require.NoError(t, a.Connect(context.Background()))
	t.Cleanup(func() { a.Disconnect(context.Background()) })
	return a
}

func TestAdapter_UpsertAndKNN(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.Upsert(ctx, "docs", Record{ID: 1, Vector: []float32{1, 0}}))
	require.NoError(t, a.Upsert(ctx, "docs", Record{ID: 2, Vector: []float32{0, 1}}))
	require.NoError(t, a.Upsert(ctx, "docs", Record{ID: 3, Vector: []float32{0.9, 0.1}}))

	it, err := a.Execute(ctx, &KNN{Table: "docs", Query: []float32{1, 0}, K: 2})
	require.NoError(t, err)
	batch, err := it.Next(ctx)
	require.NoError(t, err)
	require.Len(t, batch.Rows, 2)
	assert.Equal(t, int64(1), batch.Rows[0][0])
	assert.Equal(t, int64(3), batch.Rows[1][0])
}

func TestAdapter_ExecuteUnknownTable(t *testing.T) {
	a := newTestAdapter(t)
	_, err := a.Execute(context.Background(), &KNN{Table: "missing", Query: []float32{1}, K: 1})
	assert.Error(t, err)
}

func TestAdapter_CosineMetric(t *testing.T) {
	dir, err := os.MkdirTemp("", "lakequery-vector-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	a := New("V", dir, WithMetric(MetricCosine))
	require.NoError(t, a.Connect(context.Background()))
	defer a.Disconnect(context.Background())

	require.NoError(t, a.Upsert(context.Background(), "docs", Record{ID: 1, Vector: []float32{1, 0}}))
	require.NoError(t, a.Upsert(context.Background(), "docs", Record{ID: 2, Vector: []float32{2, 0}}))

	it, err := a.Execute(context.Background(), &KNN{Table: "docs", Query: []float32{1, 0}, K: 2})
	require.NoError(t, err)
	batch, err := it.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Rows, 2)
	// Both are parallel to the query under cosine distance, so both score ~0.
	assert.InDelta(t, 0, batch.Rows[0][1].(float64), 1e-4)
}
