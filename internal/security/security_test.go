package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapunk/lakequery/internal/plan"
)

func TestEnforcer_DeniesScanWithNoPolicyOnFile(t *testing.T) {
	e := NewEnforcer(nil)
	_, err := e.Enforce(&plan.Scan{Table: "mystery"}, Identity{Subject: "alice", Level: LevelAdmin})
	assert.Error(t, err, "a resource with no policy must fail closed")
}

func TestEnforcer_DeniesBelowRequiredAccessLevel(t *testing.T) {
	e := NewEnforcer(nil)
	e.SetPolicy(&Policy{Resource: "orders", AccessLevelRequired: LevelWrite})
	_, err := e.Enforce(&plan.Scan{Table: "orders"}, Identity{Subject: "bob", Level: LevelRead})
	assert.Error(t, err)
}

func TestEnforcer_InjectsRowPredicate(t *testing.T) {
	e := NewEnforcer(nil)
	e.SetPolicy(&Policy{
		Resource:            "orders",
		AccessLevelRequired: LevelRead,
		RowPredicate: func(id Identity) plan.Expr {
			return &plan.BinOp{Op: "=", Left: &plan.ColumnRef{Qualified: "orders.user_id"}, Right: &plan.Literal{Val: id.Subject}}
		},
	})

	out, err := e.Enforce(&plan.Scan{Table: "orders"}, Identity{Subject: "alice", Level: LevelRead})
	require.NoError(t, err)

	scan := out.(*plan.Scan)
	bin, ok := scan.Predicate.(*plan.BinOp)
	require.True(t, ok)
	assert.Equal(t, "=", bin.Op)
}

func TestEnforcer_ConjoinsRowPredicateWithExistingPushedPredicate(t *testing.T) {
	e := NewEnforcer(nil)
	e.SetPolicy(&Policy{
		Resource:            "orders",
		AccessLevelRequired: LevelRead,
		RowPredicate: func(id Identity) plan.Expr {
			return &plan.BinOp{Op: "=", Left: &plan.ColumnRef{Qualified: "orders.user_id"}, Right: &plan.Literal{Val: id.Subject}}
		},
	})

	existing := &plan.BinOp{Op: ">", Left: &plan.ColumnRef{Qualified: "orders.total"}, Right: &plan.Literal{Val: int64(10)}}
	out, err := e.Enforce(&plan.Scan{Table: "orders", Predicate: existing}, Identity{Subject: "alice", Level: LevelRead})
	require.NoError(t, err)

	scan := out.(*plan.Scan)
	bin := scan.Predicate.(*plan.BinOp)
	assert.Equal(t, "AND", bin.Op)
}

func TestEnforcer_MasksProjectedColumn(t *testing.T) {
	e := NewEnforcer(nil)
	e.SetPolicy(&Policy{
		Resource:            "users",
		AccessLevelRequired: LevelRead,
		MaskingRules:        map[string]string{"ssn": "***"},
	})

	tree := &plan.Project{
		Exprs: []plan.NamedExpr{
			{Expr: &plan.ColumnRef{Qualified: "users.name"}, Alias: "name"},
			{Expr: &plan.ColumnRef{Qualified: "users.ssn"}, Alias: "ssn"},
		},
		Child: &plan.Scan{Table: "users"},
	}

	out, err := e.Enforce(tree, Identity{Subject: "alice", Level: LevelRead})
	require.NoError(t, err)

	proj := out.(*plan.Project)
	assert.IsType(t, &plan.ColumnRef{}, proj.Exprs[0].Expr)
	lit, ok := proj.Exprs[1].Expr.(*plan.Literal)
	require.True(t, ok, "masked column must become a literal replacement")
	assert.Equal(t, "***", lit.Val)
}

func TestEnforcer_RecordsAuditEventsForAllowAndDeny(t *testing.T) {
	sink := NewInMemorySink(10)
	e := NewEnforcer(sink)
	e.SetPolicy(&Policy{Resource: "orders", AccessLevelRequired: LevelRead})

	_, _ = e.Enforce(&plan.Scan{Table: "orders"}, Identity{Subject: "alice", Level: LevelRead})
	_, _ = e.Enforce(&plan.Scan{Table: "secret"}, Identity{Subject: "alice", Level: LevelRead})

	events := sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "allow", events[0].Decision)
	assert.Equal(t, "deny", events[1].Decision)
}

func TestDetectSQLInjection_FlagsUnionSelect(t *testing.T) {
	assert.NotEmpty(t, DetectSQLInjection("1 UNION SELECT password FROM users"))
}

func TestDetectSQLInjection_AllowsOrdinaryQuery(t *testing.T) {
	assert.Empty(t, DetectSQLInjection("name = 'alice'"))
}
