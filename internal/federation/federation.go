// Package federation implements the Federation Planner (spec.md §4.5):
// it resolves each Scan leaf's Source via a table→source Router, then
// annotates the tree with Federated boundaries so downstream execution
// knows which subtrees belong to a single source and which span
// multiple — without that annotation, the execution engine cannot tell
// a single-source join (which an adapter's own query engine could
// execute server-side) from a genuinely cross-source join it must
// compute itself.
//
// Grounded on the teacher's pkg/dataaccess.Router (table-name-keyed
// routing to a named data source) — generalized from a flat
// table→source map to resolving directly against internal/plan.Scan
// nodes that already carry a Source field once the optimizer/parser
// have run, plus a DAG split step the teacher's router (a pure lookup,
// no planning) has no equivalent of.
package federation

import (
	"fmt"

	"github.com/datapunk/lakequery/internal/adapter"
	"github.com/datapunk/lakequery/internal/plan"
)

// Router resolves unqualified table names to a source ID, mirroring the
// teacher's Router.Route/AddRoute/SetDefaultDataSource surface.
type Router struct {
	routes  map[string]string
	def     string
	regs    *adapter.Registry
}

func NewRouter(regs *adapter.Registry) *Router {
	return &Router{routes: make(map[string]string), regs: regs}
}

func (r *Router) AddRoute(table, source string) { r.routes[table] = source }
func (r *Router) SetDefault(source string)      { r.def = source }

func (r *Router) Resolve(table string) (string, error) {
	if source, ok := r.routes[table]; ok {
		return source, nil
	}
	if r.def != "" {
		return r.def, nil
	}
	return "", fmt.Errorf("federation: no route for table %q and no default source configured", table)
}

// Planner assigns each Scan a Source (if unset) via Router, then wraps
// maximal single-source subtrees in Federated nodes, per spec.md
// invariant (ii): a Federated node's Inner references exactly one
// source.
type Planner struct {
	Router *Router
}

func New(router *Router) *Planner { return &Planner{Router: router} }

// Plan resolves sources and inserts Federated boundaries. It returns an
// error if a Scan names a table with no route and no default source.
func (p *Planner) Plan(n plan.Node) (plan.Node, error) {
	resolved, err := p.resolveSources(n)
	if err != nil {
		return nil, err
	}
	return p.insertBoundaries(resolved), nil
}

func (p *Planner) resolveSources(n plan.Node) (plan.Node, error) {
	var resolveErr error
	out := plan.Transform(n, func(node plan.Node, children []plan.Node) plan.Node {
		scan, ok := node.(*plan.Scan)
		if !ok || scan.Source != "" {
			return node
		}
		source, err := p.Router.Resolve(scan.Table)
		if err != nil {
			resolveErr = err
			return node
		}
		cp := *scan
		cp.Source = source
		return &cp
	})
	if resolveErr != nil {
		return nil, resolveErr
	}
	return out, nil
}

// insertBoundaries wraps the largest subtree whose entire reachable Scan
// set names exactly one source in a Federated node, top-down: once a
// subtree is wrapped its descendants are left alone, so Federated nodes
// never nest; a node spanning several sources is kept and its children
// are examined in turn.
func (p *Planner) insertBoundaries(n plan.Node) plan.Node {
	return rewriteBoundaries(n)
}

func rewriteBoundaries(n plan.Node) plan.Node {
	if _, already := n.(*plan.Federated); already {
		return n
	}
	if sources, deps, single := singleSourceDeps(n); single {
		var source string
		for s := range sources {
			source = s
		}
		return &plan.Federated{Source: source, Inner: n, Dependencies: deps}
	}

	children := n.Children()
	newChildren := make([]plan.Node, len(children))
	changed := false
	for i, c := range children {
		newChildren[i] = rewriteBoundaries(c)
		if newChildren[i] != c {
			changed = true
		}
	}
	if changed {
		n = n.WithChildren(newChildren)
	}
	return n
}

// singleSourceDeps reports whether every Scan reachable under n names
// the same source, returning that source set (size 0 or 1) and the
// TableRefs it depends on for cache-key construction.
func singleSourceDeps(n plan.Node) (sources map[string]bool, deps []plan.TableRef, single bool) {
	sources = map[string]bool{}
	plan.Traverse(n, func(node plan.Node) {
		if s, ok := node.(*plan.Scan); ok {
			sources[s.Source] = true
			deps = append(deps, plan.TableRef{Source: s.Source, Table: s.Table})
		}
	})
	return sources, deps, len(sources) == 1
}
