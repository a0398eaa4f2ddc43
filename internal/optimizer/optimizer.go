// Package optimizer implements the Optimizer module of spec.md §4.3: a
// fixpoint rewrite pipeline over internal/plan trees plus a
// join-reordering pass backed by internal/optimizer/cost and
// internal/optimizer/statistics.
//
// Grounded on the teacher's pkg/optimizer tree, but restructured: the
// teacher spreads equivalent logic across a dozen top-level files
// (rule_based_optimizer.go, predicate_pushdown.go, column_pruning.go,
// constant_folding.go, ...) each holding one rule struct with its own
// bespoke driver loop. This package collapses that into one Rule
// interface run by a single fixpoint Pipeline, the way the teacher's own
// pkg/optimizer/physical package composes PhysicalRule implementations —
// the same shape, applied one level up at the logical-plan stage.
package optimizer

import (
	"github.com/datapunk/lakequery/internal/plan"
)

// Rule rewrites a plan tree, returning the rewritten tree and whether it
// made any change. Implementations should be pure functions of their
// input tree.
type Rule interface {
	Name() string
	Apply(n plan.Node) (plan.Node, bool)
}

// Pipeline runs a fixed, ordered list of Rules to a fixpoint: each pass
// runs every rule in order; passes repeat until no rule fires, or
// maxPasses is reached (a runaway-loop backstop, since two rules could
// in principle keep undoing each other).
type Pipeline struct {
	rules     []Rule
	maxPasses int
}

// NewPipeline builds a pipeline that runs rules in the order given.
// Join reordering is run separately via Reorder, since it additionally
// needs a statistics.Store and adapter.Registry the other rules don't.
func NewPipeline(rules ...Rule) *Pipeline {
	return &Pipeline{rules: rules, maxPasses: 8}
}

// DefaultRules returns the four stateless rules: constant folding,
// predicate pushdown, projection pruning and single-child-union
// flattening. CapabilityPushdown (which needs an adapter.Registry) and
// join reordering (see Reorder) are not included.
func DefaultRules() []Rule {
	return []Rule{
		ConstantFold{},
		PredicatePushdown{},
		ProjectionPrune{},
		FlattenSingleChildUnion{},
	}
}

// Run applies the pipeline to n, returning the optimized tree.
func (p *Pipeline) Run(n plan.Node) plan.Node {
	for pass := 0; pass < p.maxPasses; pass++ {
		changed := false
		for _, r := range p.rules {
			var ruleChanged bool
			n, ruleChanged = r.Apply(n)
			changed = changed || ruleChanged
		}
		if !changed {
			break
		}
	}
	return plan.Canonicalize(n)
}
