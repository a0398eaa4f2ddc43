// Package adapter defines the Source Adapter Contract (spec.md §4.4):
// the plugin boundary between the federated query engine and every
// heterogeneous data source (relational, vector, time-series, document,
// graph). It is generalized from the teacher's
// pkg/resource/domain.DataSource interface, which mixed storage-engine
// concerns (Insert/Update/Delete/DDL) into the same interface the
// planner uses for read federation; this package keeps only the surface
// spec.md §4.4 names.
package adapter

import (
	"context"

	"github.com/datapunk/lakequery/internal/plan"
)

// Kind is one of the five source kinds spec.md §3 names.
type Kind string

const (
	KindRelational Kind = "relational"
	KindTimeseries Kind = "timeseries"
	KindVector     Kind = "vector"
	KindDocument   Kind = "document"
	KindGraph      Kind = "graph"
)

// Capability is a named feature an adapter may support.
type Capability string

const (
	CapJoins          Capability = "joins"
	CapSubqueries     Capability = "subqueries"
	CapWindow         Capability = "window"
	CapFullText       Capability = "full_text"
	CapVectorKNN      Capability = "vector_knn"
	CapTimeBucket     Capability = "time_bucket"
	CapTransactions   Capability = "transactions"
	CapCostEstimation Capability = "cost_estimation"
)

// CapabilitySet is the set of Capabilities an adapter supports.
type CapabilitySet map[Capability]bool

// Has reports whether cap is present in the set.
func (c CapabilitySet) Has(cap Capability) bool { return c[cap] }

// CostFactors are the per-row/startup cost coefficients the optimizer
// uses when an adapter cannot provide a concrete EstimateCost (spec.md
// §3 Source Descriptor).
type CostFactors struct {
	IOPerRow    float64
	CPUPerRow   float64
	StartupCost float64
	Parallelism int
}

// Descriptor is the Source Descriptor of spec.md §3.
type Descriptor struct {
	ID           string
	Kind         Kind
	Capabilities CapabilitySet
	CostFactors  CostFactors
}

// CostEstimate is the result of Adapter.EstimateCost.
type CostEstimate struct {
	IO      float64
	CPU     float64
	RowsOut int64
}

// Batch is one chunk of rows returned by Execute, pulled by the Physical
// Operators (spec.md §4.6). Rows is row-major: each element is one row
// whose values follow Schema's column order.
type Batch struct {
	Schema plan.Schema
	Rows   [][]interface{}
}

// RowIterator is a lazy sequence of row batches produced by Execute.
// Next returns (nil, nil) to signal clean exhaustion.
type RowIterator interface {
	Next(ctx context.Context) (*Batch, error)
	Close() error
}

// Adapter is the Source Adapter Contract of spec.md §4.4. Every method
// may fail with a categorised *queryerr.Error (Kind: KindAdapter) whose
// Code further distinguishes connection/schema/query/capability failures.
type Adapter interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	Descriptor() Descriptor
	Capabilities() CapabilitySet

	Schema(ctx context.Context, table string) (plan.Schema, error)
	ListTables(ctx context.Context) ([]string, error)

	// EstimateCost is optional: an adapter that cannot estimate returns
	// (nil, nil) and the planner falls back to heuristics (spec.md §4.4).
	EstimateCost(ctx context.Context, subplan plan.Node) (*CostEstimate, error)

	Execute(ctx context.Context, subplan plan.Node) (RowIterator, error)

	// Supports reports whether this adapter's capability set covers the
	// given plan node, used during capability pushdown (spec.md §4.3
	// rule 6) and federation-planner boundary selection.
	Supports(n plan.Node) bool
}

// Registry maps source names to their live Adapter, used by the
// federation planner and execution engine to dispatch Federated
// subplans, generalized from the teacher's pkg/dataaccess.Router
// (table-name-keyed flat map) into a source-ID-keyed registry;
// table→source routing is kept separately, in internal/federation's
// Router (a table→source map with an optional default source).
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry returns an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds or replaces the adapter for a source ID.
func (r *Registry) Register(sourceID string, a Adapter) {
	r.adapters[sourceID] = a
}

// Get returns the adapter registered for sourceID, or false.
func (r *Registry) Get(sourceID string) (Adapter, bool) {
	a, ok := r.adapters[sourceID]
	return a, ok
}

// Descriptors returns the Descriptor of every registered adapter, used by
// the optimizer for capability pushdown and cardinality estimation.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a.Descriptor())
	}
	return out
}
