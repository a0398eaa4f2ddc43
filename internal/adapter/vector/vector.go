// Package vector implements a vector-kind Adapter backed by
// github.com/dgraph-io/badger/v4 for row storage plus an in-process flat
// index for exact k-nearest-neighbour search, exposed as the vector_knn
// capability. Grounded on the teacher's pkg/resource/memory flat/HNSW
// index family and pkg/resource/badger KV adapter, reduced to a single
// exact-search index — the teacher's product-quantized and
// approximate-graph variants (IVF-PQ, HNSW-PQ/SQ) are storage-engine
// tuning internals out of this engine's scope (spec.md §1 non-goals).
package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/datapunk/lakequery/internal/adapter"
	"github.com/datapunk/lakequery/internal/plan"
)

// Record is one stored row: an opaque row id, its vector, and any
// additional scalar columns carried alongside it.
type Record struct {
	ID     int64             `json:"id"`
	Vector []float32         `json:"vector"`
	Attrs  map[string]interface{} `json:"attrs"`
}

// KNN is a Federated-node-friendly plan shape requesting the nearest K
// vectors to Query, executed by an adapter whose
// Capabilities().Has(adapter.CapVectorKNN) is true. The optimizer's
// capability-pushdown rule does not construct KNN nodes; callers build
// them directly.
type KNN struct {
	Table string
	Query []float32
	K     int
}

func (k *KNN) Kind() plan.Type               { return plan.TypeUnsupported }
func (k *KNN) ID() string                    { return "knn" }
func (k *KNN) Children() []plan.Node         { return nil }
func (k *KNN) Schema() plan.Schema           { return plan.Schema{{Name: "id", Type: plan.ColumnType{Tag: plan.TInt64}}, {Name: "distance", Type: plan.ColumnType{Tag: plan.TFloat64}}} }
func (k *KNN) WithChildren([]plan.Node) plan.Node { cp := *k; return &cp }

// Adapter stores vector rows in an embedded badger KV store, keyed
// "<table>/<id>", and maintains one in-memory flat index per table for
// CapVectorKNN search.
type Adapter struct {
	id  string
	dir string

	metric string

	mu  sync.RWMutex
	db  *badger.DB
	idx map[string]*flatIndex // table -> index
	dim map[string]int
}

// Option configures an Adapter at construction time.
type Option func(*Adapter)

// WithMetric selects the distance function new tables' flat indexes use.
// Accepts MetricEuclidean (default), MetricCosine, or MetricInnerProduct.
func WithMetric(metric string) Option {
	return func(a *Adapter) { a.metric = metric }
}

// New creates a vector adapter backed by a badger database rooted at dir.
func New(sourceID, dir string, opts ...Option) *Adapter {
	a := &Adapter{id: sourceID, dir: dir, idx: make(map[string]*flatIndex), dim: make(map[string]int), metric: MetricEuclidean}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Connect(ctx context.Context) error {
	opts := badger.DefaultOptions(a.dir)
	opts = opts.WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return adapter.ErrConnection("vector.Connect", err, true)
	}
	a.mu.Lock()
	a.db = db
	a.mu.Unlock()
	return nil
}

func (a *Adapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

func (a *Adapter) Descriptor() adapter.Descriptor {
	return adapter.Descriptor{
		ID:   a.id,
		Kind: adapter.KindVector,
		Capabilities: adapter.CapabilitySet{
			adapter.CapVectorKNN: true,
		},
		CostFactors: adapter.CostFactors{IOPerRow: 0.01, CPUPerRow: 0.05, StartupCost: 0.1, Parallelism: 1},
	}
}

func (a *Adapter) Capabilities() adapter.CapabilitySet { return a.Descriptor().Capabilities }

// Upsert stores rec under table, updating the flat index in memory and
// the durable badger row.
func (a *Adapter) Upsert(ctx context.Context, table string, rec Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return adapter.ErrConnection("vector.Upsert", nil, false)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return adapter.ErrQuery("vector.Upsert", err)
	}
	key := fmt.Sprintf("%s/%d", table, rec.ID)
	if err := a.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	}); err != nil {
		return adapter.ErrQuery("vector.Upsert", err)
	}
	idx := a.idx[table]
	if idx == nil {
		idx = newFlatIndex()
		idx.distance = distanceFuncFor(a.metric)
		a.idx[table] = idx
		a.dim[table] = len(rec.Vector)
	}
	idx.put(rec.ID, rec.Vector)
	return nil
}

func (a *Adapter) Schema(ctx context.Context, table string) (plan.Schema, error) {
	return plan.Schema{
		{Name: "id", Type: plan.ColumnType{Tag: plan.TInt64}},
		{Name: "vector", Type: plan.ColumnType{Tag: plan.TVector, Dim: a.dim[table]}},
	}, nil
}

func (a *Adapter) ListTables(ctx context.Context) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.idx))
	for t := range a.idx {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

func (a *Adapter) EstimateCost(ctx context.Context, sub plan.Node) (*adapter.CostEstimate, error) {
	knn, ok := sub.(*KNN)
	if !ok {
		return nil, nil
	}
	a.mu.RLock()
	idx := a.idx[knn.Table]
	a.mu.RUnlock()
	if idx == nil {
		return &adapter.CostEstimate{RowsOut: int64(knn.K)}, nil
	}
	n := int64(idx.size())
	return &adapter.CostEstimate{IO: float64(n) * 0.01, CPU: float64(n) * 0.05, RowsOut: int64(knn.K)}, nil
}

func (a *Adapter) Execute(ctx context.Context, sub plan.Node) (adapter.RowIterator, error) {
	knn, ok := sub.(*KNN)
	if !ok {
		return nil, adapter.ErrCapability("vector.Execute", fmt.Sprintf("unsupported subplan kind %s", sub.Kind()))
	}
	a.mu.RLock()
	idx := a.idx[knn.Table]
	a.mu.RUnlock()
	if idx == nil {
		return nil, adapter.ErrSchema("vector.Execute", fmt.Errorf("table %q has no vectors", knn.Table))
	}
	results := idx.search(knn.Query, knn.K)
	rows := make([][]interface{}, len(results))
	for i, r := range results {
		rows[i] = []interface{}{r.id, float64(r.dist)}
	}
	return &onceIterator{schema: knn.Schema(), rows: rows}, nil
}

func (a *Adapter) Supports(n plan.Node) bool {
	_, ok := n.(*KNN)
	return ok
}

type onceIterator struct {
	schema plan.Schema
	rows   [][]interface{}
	sent   bool
}

func (o *onceIterator) Next(ctx context.Context) (*adapter.Batch, error) {
	if o.sent {
		return nil, nil
	}
	o.sent = true
	return &adapter.Batch{Schema: o.schema, Rows: o.rows}, nil
}

func (o *onceIterator) Close() error { return nil }
