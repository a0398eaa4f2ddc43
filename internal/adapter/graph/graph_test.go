package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapunk/lakequery/internal/plan"
)

func seedGraph(a *Adapter) {
	a.AddEdges("follows", []Edge{
		{From: "alice", To: "bob", Label: "follows"},
		{From: "bob", To: "carl", Label: "follows"},
		{From: "alice", To: "dana", Label: "blocks"},
	})
}

func TestAdapter_TraverseRespectsHopsAndLabels(t *testing.T) {
	a := New("G")
	seedGraph(a)
	require.NoError(t, a.Connect(context.Background()))

	it, err := a.Execute(context.Background(), &Traverse{
		Table: "follows", Start: "alice", Labels: []string{"follows"}, Hops: 2,
	})
	require.NoError(t, err)
	batch, err := it.Next(context.Background())
	require.NoError(t, err)

	ids := map[string]int64{}
	for _, row := range batch.Rows {
		ids[row[0].(string)] = row[1].(int64)
	}
	assert.Equal(t, int64(1), ids["bob"])
	assert.Equal(t, int64(2), ids["carl"])
	_, blocked := ids["dana"]
	assert.False(t, blocked)
}

func TestAdapter_ScanReturnsRawEdges(t *testing.T) {
	a := New("G")
	seedGraph(a)
	require.NoError(t, a.Connect(context.Background()))

	it, err := a.Execute(context.Background(), &plan.Scan{Table: "follows"})
	require.NoError(t, err)
	batch, err := it.Next(context.Background())
	require.NoError(t, err)
	assert.Len(t, batch.Rows, 3)
}

func TestAdapter_UnknownTable(t *testing.T) {
	a := New("G")
	require.NoError(t, a.Connect(context.Background()))
	_, err := a.Execute(context.Background(), &plan.Scan{Table: "missing"})
	assert.Error(t, err)
}
