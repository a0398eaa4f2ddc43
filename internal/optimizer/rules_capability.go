package optimizer

import (
	"github.com/datapunk/lakequery/internal/adapter"
	"github.com/datapunk/lakequery/internal/plan"
)

// CapabilityPushdown folds a Filter directly above a Scan (one that has
// no Predicate yet) into the Scan's own Predicate field, whenever the
// Scan's source adapter advertises support for the resulting shape via
// Adapter.Supports. A Limit above a Scan is left in place. This is the logical-plan half of spec.md §4.3 rule 6;
// internal/federation performs the complementary physical step of
// routing the (now pushed-down) Scan subplan to EstimateCost/Execute.
//
// Grounded on the teacher's capability-aware rewrite in
// pkg/optimizer/physical (PhysicalRule implementations consult the
// storage engine's supported pushdown set before choosing a physical
// shape); this rule runs that same check one stage earlier, against the
// Source Adapter Contract instead of a storage engine.
type CapabilityPushdown struct {
	Registry *adapter.Registry
}

func (r CapabilityPushdown) Name() string { return "capability_pushdown" }

func (r CapabilityPushdown) Apply(n plan.Node) (plan.Node, bool) {
	if r.Registry == nil {
		return n, false
	}
	changed := false
	out := plan.Transform(n, func(node plan.Node, children []plan.Node) plan.Node {
		filter, ok := node.(*plan.Filter)
		if !ok {
			return node
		}
		scan, ok := filter.Child.(*plan.Scan)
		if !ok || scan.Predicate != nil {
			return node
		}
		a, ok := r.Registry.Get(scan.Source)
		if !ok {
			return node
		}
		candidate := *scan
		candidate.Predicate = filter.Predicate
		if !a.Supports(&candidate) {
			return node
		}
		changed = true
		return &candidate
	})
	return out, changed
}
