package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intCol(name string) *ColumnRef {
	return &ColumnRef{Qualified: name, Typ: ColumnType{Tag: TInt64}}
}

func lit(v int64) *Literal {
	return &Literal{Val: v, Typ: ColumnType{Tag: TInt64}}
}

func TestFingerprint_CommutativeAndEqual(t *testing.T) {
	scan := &Scan{base: base{id: "n1"}, Source: "R", Table: "users"}

	p1 := &Filter{
		base: base{id: "n2"},
		Child: scan,
		Predicate: &BinOp{
			Op:    "AND",
			Left:  &BinOp{Op: "=", Left: intCol("age"), Right: lit(30)},
			Right: &BinOp{Op: "=", Left: intCol("id"), Right: lit(1)},
		},
	}
	p2 := &Filter{
		base: base{id: "n2"},
		Child: scan,
		Predicate: &BinOp{
			Op:    "AND",
			Left:  &BinOp{Op: "=", Left: intCol("id"), Right: lit(1)},
			Right: &BinOp{Op: "=", Left: intCol("age"), Right: lit(30)},
		},
	}

	require.Equal(t, Fingerprint(p1), Fingerprint(p2))
}

func TestFingerprint_JoinSideOrderingIgnoredForInner(t *testing.T) {
	left := &Scan{base: base{id: "l"}, Source: "R", Table: "a"}
	right := &Scan{base: base{id: "r"}, Source: "R", Table: "b"}

	cond := &BinOp{Op: "=", Left: intCol("a.id"), Right: intCol("b.id")}

	j1 := &Join{base: base{id: "j"}, JoinKind: JoinInner, Condition: cond, Left: left, Right: right}
	j2 := &Join{base: base{id: "j"}, JoinKind: JoinInner, Condition: cond, Left: right, Right: left}

	assert.Equal(t, Fingerprint(j1), Fingerprint(j2))
}

func TestCanonicalize_Idempotent(t *testing.T) {
	scan := &Scan{base: base{id: "n1"}, Source: "R", Table: "t"}
	f := &Filter{base: base{id: "n2"}, Child: scan, Predicate: &BinOp{Op: "OR", Left: intCol("b"), Right: intCol("a")}}

	once := Canonicalize(f)
	twice := Canonicalize(once)

	assert.Equal(t, Fingerprint(once), Fingerprint(twice))
}

func TestTransform_SharesUnchangedSubtree(t *testing.T) {
	scan := &Scan{base: base{id: "n1"}, Source: "R", Table: "t"}
	limit := &Limit{base: base{id: "n2"}, N: 10, Child: scan}

	out := Transform(limit, func(n Node, children []Node) Node {
		if l, ok := n.(*Limit); ok {
			cp := *l
			cp.N = 5
			return &cp
		}
		return n
	})

	outLimit, ok := out.(*Limit)
	require.True(t, ok)
	assert.Equal(t, int64(5), outLimit.N)
	assert.Same(t, scan, outLimit.Child.(*Scan))
}

func TestTraverse_VisitsAllNodes(t *testing.T) {
	scan := &Scan{base: base{id: "n1"}, Source: "R", Table: "t"}
	filt := &Filter{base: base{id: "n2"}, Child: scan}
	limit := &Limit{base: base{id: "n3"}, N: 1, Child: filt}

	var kinds []Type
	Traverse(limit, func(n Node) { kinds = append(kinds, n.Kind()) })

	assert.Equal(t, []Type{TypeLimit, TypeFilter, TypeScan}, kinds)
}
