package optimizer

import (
	"github.com/datapunk/lakequery/internal/optimizer/cost"
	"github.com/datapunk/lakequery/internal/plan"
)

// Reorder replaces a tree of inner Joins over N Scan leaves with the
// lowest-estimated-cost left-deep join order (every join's right input
// is a single Scan), using a bitmask dynamic program over leaf subsets —
// condensed from the teacher's pkg/optimizer/join.DPJoinReorder, which
// tracks the same subset-DP table (ReorderCache keyed by table-set) but
// additionally supports bushy trees and bespoke caching; this version
// targets left-deep only, adequate for the table counts a federated
// ad-hoc query realistically joins. A join tree with more than
// maxLeaves leaves is left as written.
type Reorder struct {
	Cost     *cost.Model
	Source   string
	maxLeaves int
}

func NewReorder(m *cost.Model, source string) Reorder {
	return Reorder{Cost: m, Source: source, maxLeaves: 10}
}

func (r Reorder) Name() string { return "join_reorder" }

func (r Reorder) Apply(n plan.Node) (plan.Node, bool) {
	changed := false
	out := plan.Transform(n, func(node plan.Node, children []plan.Node) plan.Node {
		join, ok := node.(*plan.Join)
		if !ok || join.JoinKind != plan.JoinInner {
			return node
		}
		leaves, conjuncts, ok := flattenInnerJoins(join)
		if !ok || len(leaves) < 3 || len(leaves) > r.maxLeaves {
			return node // 2-way joins have only one order; nothing to reorder
		}
		reordered := r.dpReorder(leaves, conjuncts)
		if reordered == nil {
			return node
		}
		changed = true
		return reordered
	})
	return out, changed
}

// flattenInnerJoins collects every Scan leaf and join conjunct under a
// tree of nested inner Joins with AND-composed conditions, returning
// false if the tree contains anything else (an outer join, a non-Scan
// leaf, or a disjunctive condition) that a reorder would need to
// preserve evaluation order for.
func flattenInnerJoins(n plan.Node) (leaves []*plan.Scan, conjuncts []plan.Expr, ok bool) {
	switch v := n.(type) {
	case *plan.Scan:
		return []*plan.Scan{v}, nil, true
	case *plan.Join:
		if v.JoinKind != plan.JoinInner {
			return nil, nil, false
		}
		leftLeaves, leftConj, lok := flattenInnerJoins(v.Left)
		rightLeaves, rightConj, rok := flattenInnerJoins(v.Right)
		if !lok || !rok {
			return nil, nil, false
		}
		leaves = append(leaves, leftLeaves...)
		leaves = append(leaves, rightLeaves...)
		conjuncts = append(conjuncts, leftConj...)
		conjuncts = append(conjuncts, rightConj...)
		if v.Condition != nil {
			conjuncts = append(conjuncts, flattenAnd(v.Condition)...)
		}
		return leaves, conjuncts, true
	default:
		return nil, nil, false
	}
}

func flattenAnd(e plan.Expr) []plan.Expr {
	if b, ok := e.(*plan.BinOp); ok && b.Op == "AND" {
		return append(flattenAnd(b.Left), flattenAnd(b.Right)...)
	}
	return []plan.Expr{e}
}

// dpReorder finds the minimum-cost left-deep join order over leaves
// using a bitmask DP keyed on the subset of leaves already joined,
// mirroring the teacher's subset-indexed ReorderCache/ReorderResult
// shape but computing scan/join cost directly via cost.Model rather
// than a pluggable CostModel interface, since this module has exactly
// one cost model.
func (r Reorder) dpReorder(leaves []*plan.Scan, conjuncts []plan.Expr) plan.Node {
	n := len(leaves)
	leafCost := make([]cost.Estimate, n)
	for i, s := range leaves {
		leafCost[i] = r.Cost.Estimate(s, r.Source)
	}

	type dpEntry struct {
		node plan.Node
		est  cost.Estimate
	}
	best := make(map[uint32]dpEntry, 1<<uint(n))
	for i := 0; i < n; i++ {
		mask := uint32(1) << uint(i)
		best[mask] = dpEntry{node: leaves[i], est: leafCost[i]}
	}

	full := uint32(1)<<uint(n) - 1
	for mask := uint32(1); mask <= full; mask++ {
		if _, ok := best[mask]; ok && popcount(mask) == 1 {
			continue
		}
		if popcount(mask) < 2 {
			continue
		}
		var bestEntry dpEntry
		found := false
		for sub := (mask - 1) & mask; sub > 0; sub = (sub - 1) & mask {
			rest := mask ^ sub
			if popcount(rest) != 1 {
				continue // left-deep: the right input is always a single leaf
			}
			left, lok := best[sub]
			right, rok := best[rest]
			if !lok || !rok {
				continue
			}
			cond := joinConditionFor(left.node, right.node, conjuncts)
			joined := &plan.Join{JoinKind: plan.JoinInner, Condition: cond, Left: left.node, Right: right.node}
			est := cost.Estimate{
				IO:      left.est.IO + right.est.IO,
				CPU:     left.est.CPU + right.est.CPU + float64(left.est.RowsOut+right.est.RowsOut)*0.002,
				Memory:  float64(right.est.RowsOut) * 64,
				RowsOut: estimateJoinRows(left.est.RowsOut, right.est.RowsOut, cond),
			}
			if !found || est.Total() < bestEntry.est.Total() {
				bestEntry = dpEntry{node: joined, est: est}
				found = true
			}
		}
		if found {
			best[mask] = bestEntry
		}
	}

	result, ok := best[full]
	if !ok {
		return nil
	}
	return result.node
}

func popcount(x uint32) int {
	count := 0
	for x != 0 {
		count++
		x &= x - 1
	}
	return count
}

// joinConditionFor reassembles the conjuncts (from the original join
// tree) that reference columns on both sides of this candidate pairing.
func joinConditionFor(left, right plan.Node, conjuncts []plan.Expr) plan.Expr {
	leftTables := tableNamesUnder(left)
	rightTables := tableNamesUnder(right)
	var matched []plan.Expr
	for _, c := range conjuncts {
		refs := columnRefs(c)
		hasLeft, hasRight := false, false
		for _, ref := range refs {
			table, _ := splitQualifiedRef(ref)
			if leftTables[table] {
				hasLeft = true
			}
			if rightTables[table] {
				hasRight = true
			}
		}
		if hasLeft && hasRight {
			matched = append(matched, c)
		}
	}
	if len(matched) == 0 {
		return nil
	}
	return conjoin(matched)
}

func estimateJoinRows(left, right int64, cond plan.Expr) int64 {
	if cond == nil {
		product := left * right
		if product < 1 {
			product = 1
		}
		return product
	}
	product := left * right
	est := int64(float64(product) * 0.1)
	if est < 1 {
		est = 1
	}
	return est
}
