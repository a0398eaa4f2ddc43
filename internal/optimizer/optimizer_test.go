package optimizer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapunk/lakequery/internal/adapter"
	"github.com/datapunk/lakequery/internal/optimizer/cost"
	"github.com/datapunk/lakequery/internal/optimizer/statistics"
	"github.com/datapunk/lakequery/internal/plan"
)

func TestConstantFold_FoldsArithmeticInFilter(t *testing.T) {
	tree := &plan.Filter{
		Predicate: &plan.BinOp{
			Op:    ">",
			Left:  &plan.ColumnRef{Qualified: "age"},
			Right: &plan.BinOp{Op: "+", Left: &plan.Literal{Val: float64(20)}, Right: &plan.Literal{Val: float64(10)}},
		},
		Child: &plan.Scan{Table: "users"},
	}
	out, changed := ConstantFold{}.Apply(tree)
	require.True(t, changed)

	f := out.(*plan.Filter)
	bin := f.Predicate.(*plan.BinOp)
	lit, ok := bin.Right.(*plan.Literal)
	require.True(t, ok)
	assert.Equal(t, float64(30), lit.Val)
}

func TestConstantFold_LeavesColumnReferencesAlone(t *testing.T) {
	tree := &plan.Filter{
		Predicate: &plan.BinOp{Op: ">", Left: &plan.ColumnRef{Qualified: "age"}, Right: &plan.Literal{Val: float64(30)}},
		Child:     &plan.Scan{Table: "users"},
	}
	_, changed := ConstantFold{}.Apply(tree)
	assert.False(t, changed)
}

func TestPredicatePushdown_SplitsJoinConjuncts(t *testing.T) {
	tree := &plan.Filter{
		Predicate: &plan.BinOp{
			Op: "AND",
			Left: &plan.BinOp{Op: "=", Left: &plan.ColumnRef{Qualified: "orders.customer_id"}, Right: &plan.ColumnRef{Qualified: "customers.id"}},
			Right: &plan.BinOp{Op: ">", Left: &plan.ColumnRef{Qualified: "customers.age"}, Right: &plan.Literal{Val: int64(18)}},
		},
		Child: &plan.Join{
			JoinKind: plan.JoinInner,
			Left:     &plan.Scan{Table: "orders"},
			Right:    &plan.Scan{Table: "customers"},
		},
	}

	out, changed := PredicatePushdown{}.Apply(tree)
	require.True(t, changed)

	join, ok := out.(*plan.Join)
	require.True(t, ok)
	rightFilter, ok := join.Right.(*plan.Filter)
	require.True(t, ok, "age predicate should be pushed onto the customers side")
	bin := rightFilter.Predicate.(*plan.BinOp)
	assert.Equal(t, ">", bin.Op)
}

func TestProjectionPrune_CollapsesNestedProjects(t *testing.T) {
	inner := &plan.Project{
		Exprs: []plan.NamedExpr{{Expr: &plan.ColumnRef{Qualified: "id"}, Alias: "id"}, {Expr: &plan.ColumnRef{Qualified: "name"}, Alias: "n"}},
		Child: &plan.Scan{Table: "users"},
	}
	outer := &plan.Project{
		Exprs: []plan.NamedExpr{{Expr: &plan.ColumnRef{Qualified: "n"}, Alias: "n"}},
		Child: inner,
	}
	out, changed := ProjectionPrune{}.Apply(outer)
	require.True(t, changed)

	proj := out.(*plan.Project)
	require.Len(t, proj.Exprs, 1)
	assert.Equal(t, "name", proj.Exprs[0].Expr.(*plan.ColumnRef).Qualified)
	_, isScan := proj.Child.(*plan.Scan)
	assert.True(t, isScan)
}

func TestPipeline_RunsToFixpoint(t *testing.T) {
	tree := &plan.Filter{
		Predicate: &plan.BinOp{Op: ">", Left: &plan.ColumnRef{Qualified: "age"}, Right: &plan.BinOp{Op: "+", Left: &plan.Literal{Val: float64(1)}, Right: &plan.Literal{Val: float64(1)}}},
		Child:     &plan.Scan{Table: "users"},
	}
	p := NewPipeline(DefaultRules()...)
	out := p.Run(tree)
	f := out.(*plan.Filter)
	lit := f.Predicate.(*plan.BinOp).Right.(*plan.Literal)
	assert.Equal(t, float64(2), lit.Val)
}

func TestReorder_ChoosesOrderMinimizingCost(t *testing.T) {
	stats := statistics.NewStore()
	stats.Put("src", "small", &statistics.TableStats{RowCount: 10})
	stats.Put("src", "medium", &statistics.TableStats{RowCount: 1000})
	stats.Put("src", "large", &statistics.TableStats{RowCount: 100000})

	model := cost.NewModel(stats, adapter.NewRegistry())
	r := NewReorder(model, "src")

	tree := &plan.Join{
		JoinKind: plan.JoinInner,
		Left: &plan.Join{
			JoinKind: plan.JoinInner,
			Left:     &plan.Scan{Table: "large"},
			Right:    &plan.Scan{Table: "medium"},
			Condition: &plan.BinOp{Op: "=", Left: &plan.ColumnRef{Qualified: "large.id"}, Right: &plan.ColumnRef{Qualified: "medium.large_id"}},
		},
		Right: &plan.Scan{Table: "small"},
		Condition: &plan.BinOp{Op: "=", Left: &plan.ColumnRef{Qualified: "medium.small_id"}, Right: &plan.ColumnRef{Qualified: "small.id"}},
	}

	out, changed := r.Apply(tree)
	require.True(t, changed)

	before := model.Estimate(tree, "src").Total()
	after := model.Estimate(out, "src").Total()
	assert.LessOrEqual(t, after, before)

	leaves := []string{}
	plan.Traverse(out, func(n plan.Node) {
		if s, ok := n.(*plan.Scan); ok {
			leaves = append(leaves, s.Table)
		}
	})
	assert.ElementsMatch(t, []string{"small", "medium", "large"}, leaves)
}

func TestCapabilityPushdown_FoldsFilterIntoScanWhenSupported(t *testing.T) {
	reg := adapter.NewRegistry()
	reg.Register("src", alwaysSupportsAdapter{})

	tree := &plan.Filter{
		Predicate: &plan.BinOp{Op: "=", Left: &plan.ColumnRef{Qualified: "status"}, Right: &plan.Literal{Val: "active"}},
		Child:     &plan.Scan{Source: "src", Table: "users"},
	}
	out, changed := CapabilityPushdown{Registry: reg}.Apply(tree)
	require.True(t, changed)
	scan, ok := out.(*plan.Scan)
	require.True(t, ok)
	assert.NotNil(t, scan.Predicate)
}

// alwaysSupportsAdapter is a minimal stub that reports support for any
// subplan, used only to exercise CapabilityPushdown's registry lookup.
type alwaysSupportsAdapter struct{}

func (alwaysSupportsAdapter) Connect(ctx context.Context) error    { return nil }
func (alwaysSupportsAdapter) Disconnect(ctx context.Context) error { return nil }
func (alwaysSupportsAdapter) Descriptor() adapter.Descriptor       { return adapter.Descriptor{} }
func (alwaysSupportsAdapter) Capabilities() adapter.CapabilitySet  { return nil }
func (alwaysSupportsAdapter) Schema(ctx context.Context, table string) (plan.Schema, error) {
	return nil, nil
}
func (alwaysSupportsAdapter) ListTables(ctx context.Context) ([]string, error) { return nil, nil }
func (alwaysSupportsAdapter) EstimateCost(ctx context.Context, sub plan.Node) (*adapter.CostEstimate, error) {
	return nil, nil
}
func (alwaysSupportsAdapter) Execute(ctx context.Context, sub plan.Node) (adapter.RowIterator, error) {
	return nil, nil
}
func (alwaysSupportsAdapter) Supports(n plan.Node) bool { return true }
