package plan

import "sort"

// commutativeOps are binary operators whose operands may be reordered
// without changing semantics (used by Canonicalize to give equivalent
// plans like `a AND b` and `b AND a` the same fingerprint).
var commutativeOps = map[string]bool{
	"AND": true,
	"OR":  true,
	"=":   true,
	"+":   true,
	"*":   true,
}

// exprKey is the sort key used to pick a stable ordering of commutative
// operands: the expression's rendered form, which is deterministic for
// a given expression.
func exprKey(e Expr) string { return render(e) }

// Canonicalize returns a deterministically-ordered copy of the plan:
// commutative expression operands are sorted into a stable order and, for
// commutative joins (inner, full), the side with the lexicographically
// smaller rendered form becomes Left. This makes fingerprint() agree for
// semantically equivalent plans, per the spec's cache-key invariant.
func Canonicalize(n Node) Node {
	return Transform(n, func(node Node, children []Node) Node {
		switch t := node.(type) {
		case *Filter:
			cp := *t
			cp.Predicate = canonicalizeExpr(t.Predicate)
			cp.Child = children[0]
			return &cp
		case *Join:
			cp := *t
			cp.Condition = canonicalizeExpr(t.Condition)
			cp.Left, cp.Right = children[0], children[1]
			if t.JoinKind == JoinInner || t.JoinKind == JoinFull {
				lk, rk := renderNode(cp.Left), renderNode(cp.Right)
				if rk < lk {
					cp.Left, cp.Right = cp.Right, cp.Left
				}
			}
			return &cp
		case *Scan:
			cp := *t
			cp.Predicate = canonicalizeExpr(t.Predicate)
			return &cp
		default:
			return node
		}
	})
}

// canonicalizeExpr sorts the operands of commutative BinOps into a
// deterministic order, recursively.
func canonicalizeExpr(e Expr) Expr {
	if e == nil {
		return nil
	}
	b, ok := e.(*BinOp)
	if !ok {
		return e
	}
	cp := *b
	cp.Left = canonicalizeExpr(b.Left)
	cp.Right = canonicalizeExpr(b.Right)
	if commutativeOps[cp.Op] {
		lk, rk := exprKey(cp.Left), exprKey(cp.Right)
		if rk < lk {
			cp.Left, cp.Right = cp.Right, cp.Left
		}
	}
	return &cp
}

// renderNode renders enough of a node (its scan table/source, mainly) to
// compare two join sides deterministically without a full fingerprint.
func renderNode(n Node) string {
	if s, ok := n.(*Scan); ok {
		return s.Source + "." + s.Table
	}
	out := make([]string, 0, 1)
	Traverse(n, func(c Node) {
		if s, ok := c.(*Scan); ok {
			out = append(out, s.Source+"."+s.Table)
		}
	})
	sort.Strings(out)
	if len(out) == 0 {
		return string(n.Kind())
	}
	return out[0]
}
