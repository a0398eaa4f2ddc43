package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapunk/lakequery/internal/plan"
)

func TestParse_SimpleSelectFilterProjectLimit(t *testing.T) {
	p := New()
	node, err := p.Parse("SELECT id, name FROM users WHERE age > 30 LIMIT 10 OFFSET 5")
	require.NoError(t, err)

	limit, ok := node.(*plan.Limit)
	require.True(t, ok)
	assert.Equal(t, int64(10), limit.N)
	assert.Equal(t, int64(5), limit.Offset)

	proj, ok := limit.Child.(*plan.Project)
	require.True(t, ok)
	require.Len(t, proj.Exprs, 2)
	assert.Equal(t, "id", proj.Exprs[0].Alias)
	assert.Equal(t, "name", proj.Exprs[1].Alias)

	filter, ok := proj.Child.(*plan.Filter)
	require.True(t, ok)
	bin, ok := filter.Predicate.(*plan.BinOp)
	require.True(t, ok)
	assert.Equal(t, ">", bin.Op)

	scan, ok := filter.Child.(*plan.Scan)
	require.True(t, ok)
	assert.Equal(t, "users", scan.Table)
}

func TestParse_JoinWithCondition(t *testing.T) {
	p := New()
	node, err := p.Parse("SELECT * FROM orders o JOIN customers c ON o.customer_id = c.id")
	require.NoError(t, err)

	join, ok := node.(*plan.Join)
	require.True(t, ok)
	assert.Equal(t, plan.JoinInner, join.JoinKind)
	require.NotNil(t, join.Condition)
}

func TestParse_GroupByAggregate(t *testing.T) {
	p := New()
	node, err := p.Parse("SELECT department, COUNT(*) FROM employees GROUP BY department")
	require.NoError(t, err)

	proj, ok := node.(*plan.Project)
	require.True(t, ok)

	agg, ok := proj.Child.(*plan.Aggregate)
	require.True(t, ok)
	require.Len(t, agg.GroupKeys, 1)
	require.Len(t, agg.Aggs, 1)
	assert.Equal(t, "COUNT", agg.Aggs[0].Fn)
}

func TestParse_RejectsMultipleStatements(t *testing.T) {
	p := New()
	_, err := p.Parse("SELECT 1; SELECT 2;")
	assert.Error(t, err)
}

func TestParse_RejectsNonSelect(t *testing.T) {
	p := New()
	_, err := p.Parse("DELETE FROM users WHERE id = 1")
	assert.Error(t, err)
}

func TestParse_SyntaxError(t *testing.T) {
	p := New()
	_, err := p.Parse("SELEKT * FROM users")
	assert.Error(t, err)
}
