package optimizer

import (
	"github.com/datapunk/lakequery/internal/plan"
	"github.com/datapunk/lakequery/internal/plan/eval"
)

// ConstantFold evaluates expression subtrees that reference no column,
// replacing them with their Literal result — the teacher's
// constant_folding.go rule, generalized from its SQL-AST-node form to
// operate directly on plan.Expr. It folds Filter predicates and Project
// expressions, descending into the operands of BinOps only.
type ConstantFold struct{}

func (ConstantFold) Name() string { return "constant_fold" }

func (r ConstantFold) Apply(n plan.Node) (plan.Node, bool) {
	changed := false
	out := plan.Transform(n, func(node plan.Node, children []plan.Node) plan.Node {
		switch v := node.(type) {
		case *plan.Filter:
			folded, ok := foldExpr(v.Predicate)
			if ok {
				changed = true
				cp := *v
				cp.Predicate = folded
				return &cp
			}
		case *plan.Project:
			newExprs := make([]plan.NamedExpr, len(v.Exprs))
			any := false
			for i, ne := range v.Exprs {
				folded, ok := foldExpr(ne.Expr)
				if ok {
					any = true
					newExprs[i] = plan.NamedExpr{Expr: folded, Alias: ne.Alias}
				} else {
					newExprs[i] = ne
				}
			}
			if any {
				changed = true
				cp := *v
				cp.Exprs = newExprs
				return &cp
			}
		}
		return node
	})
	return out, changed
}

// foldExpr evaluates expr with no row context (schema is nil, row is
// nil) when it contains no ColumnRef, so eval.Row never dereferences the
// empty row; otherwise it folds a BinOp's operands the same way. It
// reports false when nothing was folded.
func foldExpr(e plan.Expr) (plan.Expr, bool) {
	if containsColumnRef(e) {
		b, ok := e.(*plan.BinOp)
		if !ok {
			return nil, false
		}
		left, lok := foldExpr(b.Left)
		right, rok := foldExpr(b.Right)
		if !lok && !rok {
			return nil, false
		}
		cp := *b
		if lok {
			cp.Left = left
		}
		if rok {
			cp.Right = right
		}
		return &cp, true
	}
	v, err := eval.Row(nil, nil, e)
	if err != nil {
		return nil, false
	}
	if _, already := e.(*plan.Literal); already {
		return nil, false
	}
	return &plan.Literal{Val: v, Typ: e.Type()}, true
}

func containsColumnRef(e plan.Expr) bool {
	switch v := e.(type) {
	case *plan.Literal:
		return false
	case *plan.ColumnRef:
		return true
	case *plan.BinOp:
		return containsColumnRef(v.Left) || containsColumnRef(v.Right)
	case *plan.Call:
		for _, a := range v.Args {
			if containsColumnRef(a) {
				return true
			}
		}
		return false
	case *plan.Cast:
		return containsColumnRef(v.Inner)
	case *plan.Case:
		for _, w := range v.Whens {
			if containsColumnRef(w.When) || containsColumnRef(w.Then) {
				return true
			}
		}
		if v.Else != nil {
			return containsColumnRef(v.Else)
		}
		return false
	default:
		return true // unknown shape: conservatively assume it references a column
	}
}

// PredicatePushdown moves a Filter below an adjacent Project (pushing
// toward the Scan leaf it can prune data fastest at), and splits a
// conjunctive Filter sitting above an inner Join into per-side Filters
// when its conjuncts reference only one side; conjuncts referencing both
// sides become the Join's Condition when it has none, and otherwise stay
// in a Filter above the Join. Grounded on the teacher's
// predicate_pushdown.go PushDownPredicates pass.
type PredicatePushdown struct{}

func (PredicatePushdown) Name() string { return "predicate_pushdown" }

func (r PredicatePushdown) Apply(n plan.Node) (plan.Node, bool) {
	changed := false
	out := plan.Transform(n, func(node plan.Node, children []plan.Node) plan.Node {
		filter, ok := node.(*plan.Filter)
		if !ok {
			return node
		}
		switch child := filter.Child.(type) {
		case *plan.Project:
			// Project never drops rows, so Filter(Project(x)) == Project(Filter(x))
			// as long as the predicate only references columns Project passes
			// through unaliased; conservatively require that here.
			if predicateUsesOnlyPassthrough(filter.Predicate, child.Exprs) {
				changed = true
				newProj := *child
				newProj.Child = &plan.Filter{Predicate: filter.Predicate, Child: child.Child}
				return &newProj
			}
		case *plan.Join:
			if child.JoinKind == plan.JoinInner {
				leftConjuncts, rightConjuncts, rest := splitConjuncts(filter.Predicate, child.Left, child.Right)
				if len(leftConjuncts) > 0 || len(rightConjuncts) > 0 {
					changed = true
					newLeft, newRight := child.Left, child.Right
					if len(leftConjuncts) > 0 {
						newLeft = &plan.Filter{Predicate: conjoin(leftConjuncts), Child: child.Left}
					}
					if len(rightConjuncts) > 0 {
						newRight = &plan.Filter{Predicate: conjoin(rightConjuncts), Child: child.Right}
					}
					newJoinVal := *child
					newJoinVal.Left = newLeft
					newJoinVal.Right = newRight
					newJoin := &newJoinVal
					if rest == nil {
						return newJoin
					}
					if newJoin.Condition == nil {
						newJoin.Condition = rest
						return newJoin
					}
					return &plan.Filter{Predicate: rest, Child: newJoin}
				}
			}
		}
		return node
	})
	return out, changed
}

func predicateUsesOnlyPassthrough(e plan.Expr, exprs []plan.NamedExpr) bool {
	cols := map[string]bool{}
	for _, ne := range exprs {
		if ref, ok := ne.Expr.(*plan.ColumnRef); ok && ref.Qualified == ne.Alias {
			cols[ne.Alias] = true
		}
	}
	ok := true
	var walk func(plan.Expr)
	walk = func(e plan.Expr) {
		switch v := e.(type) {
		case *plan.ColumnRef:
			if !cols[v.Qualified] {
				ok = false
			}
		case *plan.BinOp:
			walk(v.Left)
			walk(v.Right)
		case *plan.Call:
			for _, a := range v.Args {
				walk(a)
			}
		case *plan.Cast:
			walk(v.Inner)
		case *plan.Literal:
			// no column reference
		default:
			ok = false // unhandled shape (e.g. Case): conservatively block the pushdown
		}
	}
	walk(e)
	return ok
}

// splitConjuncts decomposes an AND-chain into conjuncts usable on left's
// schema alone, right's schema alone, and a remainder needing both.
func splitConjuncts(e plan.Expr, left, right plan.Node) (onLeft, onRight []plan.Expr, rest plan.Expr) {
	var conjuncts []plan.Expr
	var flatten func(plan.Expr)
	flatten = func(e plan.Expr) {
		if b, ok := e.(*plan.BinOp); ok && b.Op == "AND" {
			flatten(b.Left)
			flatten(b.Right)
			return
		}
		conjuncts = append(conjuncts, e)
	}
	flatten(e)

	leftTables := tableNamesUnder(left)
	rightTables := tableNamesUnder(right)

	var remaining []plan.Expr
	for _, c := range conjuncts {
		refs := columnRefs(c)
		switch {
		case subsetOf(refs, leftTables):
			onLeft = append(onLeft, c)
		case subsetOf(refs, rightTables):
			onRight = append(onRight, c)
		default:
			remaining = append(remaining, c)
		}
	}
	if len(remaining) > 0 {
		rest = conjoin(remaining)
	}
	return onLeft, onRight, rest
}

// tableNamesUnder collects the Table name of every Scan reachable under
// n. Column membership is then decided by matching a qualified
// reference's table prefix against this set — the plan model has no
// binder pass resolving aliases to schemas yet (an open item), so an
// aliased reference ("o.id" for "orders o") is matched against the
// alias text as written, same as the parser's own ColumnRef qualifiers.
func tableNamesUnder(n plan.Node) map[string]bool {
	set := map[string]bool{}
	plan.Traverse(n, func(node plan.Node) {
		if s, ok := node.(*plan.Scan); ok {
			set[s.Table] = true
		}
	})
	return set
}

func columnRefs(e plan.Expr) []string {
	var out []string
	var walk func(plan.Expr)
	walk = func(e plan.Expr) {
		switch v := e.(type) {
		case *plan.ColumnRef:
			out = append(out, v.Qualified)
		case *plan.BinOp:
			walk(v.Left)
			walk(v.Right)
		case *plan.Call:
			for _, a := range v.Args {
				walk(a)
			}
		case *plan.Cast:
			walk(v.Inner)
		}
	}
	walk(e)
	return out
}

// subsetOf reports whether every qualified reference in refs names a
// table present in tables. An unqualified reference can't be attributed
// to either side and makes the whole set non-matchable.
func subsetOf(refs []string, tables map[string]bool) bool {
	if len(refs) == 0 {
		return false
	}
	for _, r := range refs {
		table, _ := splitQualifiedRef(r)
		if table == "" || !tables[table] {
			return false
		}
	}
	return true
}

func splitQualifiedRef(ref string) (table, column string) {
	for i := len(ref) - 1; i >= 0; i-- {
		if ref[i] == '.' {
			return ref[:i], ref[i+1:]
		}
	}
	return "", ref
}

func conjoin(exprs []plan.Expr) plan.Expr {
	out := exprs[0]
	for _, e := range exprs[1:] {
		out = &plan.BinOp{Op: "AND", Left: out, Right: e}
	}
	return out
}

// ProjectionPrune collapses a Project directly above another Project
// into a single Project over the inner one's child, resolving the
// outer's column references against the inner's aliases. It applies
// only when every outer expression is a bare column naming an inner
// alias; a Project directly above a Scan is left in place. Grounded on
// the teacher's column_pruning.go rule.
type ProjectionPrune struct{}

func (ProjectionPrune) Name() string { return "projection_prune" }

func (r ProjectionPrune) Apply(n plan.Node) (plan.Node, bool) {
	changed := false
	out := plan.Transform(n, func(node plan.Node, children []plan.Node) plan.Node {
		proj, ok := node.(*plan.Project)
		if !ok {
			return node
		}
		inner, ok := proj.Child.(*plan.Project)
		if !ok {
			return node
		}
		// collapse Project(Project(x)) into a single Project composed of the
		// outer's expressions resolved against the inner's aliases.
		composed, ok := composeProjections(proj.Exprs, inner.Exprs)
		if !ok {
			return node
		}
		changed = true
		newProj := *proj
		newProj.Exprs = composed
		newProj.Child = inner.Child
		return &newProj
	})
	return out, changed
}

func composeProjections(outer, inner []plan.NamedExpr) ([]plan.NamedExpr, bool) {
	innerByAlias := make(map[string]plan.Expr, len(inner))
	for _, ne := range inner {
		innerByAlias[ne.Alias] = ne.Expr
	}
	composed := make([]plan.NamedExpr, len(outer))
	for i, ne := range outer {
		ref, ok := ne.Expr.(*plan.ColumnRef)
		if !ok {
			return nil, false
		}
		src, ok := innerByAlias[ref.Qualified]
		if !ok {
			return nil, false
		}
		composed[i] = plan.NamedExpr{Expr: src, Alias: ne.Alias}
	}
	return composed, true
}

// FlattenSingleChildUnion replaces a Union with exactly one Input with
// that Input directly, a small cleanup rule the teacher's rule set
// applies after subquery unnesting leaves degenerate unions behind.
type FlattenSingleChildUnion struct{}

func (FlattenSingleChildUnion) Name() string { return "flatten_single_union" }

func (r FlattenSingleChildUnion) Apply(n plan.Node) (plan.Node, bool) {
	changed := false
	out := plan.Transform(n, func(node plan.Node, children []plan.Node) plan.Node {
		u, ok := node.(*plan.Union)
		if !ok || len(u.Inputs) != 1 {
			return node
		}
		changed = true
		return u.Inputs[0]
	})
	return out, changed
}
