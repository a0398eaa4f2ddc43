// Package plan defines the immutable logical/physical plan node model
// shared by the parser, optimizer, federation planner and executor.
package plan

import "fmt"

// Type is a closed tag identifying a plan node's concrete shape.
type Type string

const (
	TypeScan        Type = "Scan"
	TypeFilter      Type = "Filter"
	TypeProject     Type = "Project"
	TypeJoin        Type = "Join"
	TypeAggregate   Type = "Aggregate"
	TypeWindow      Type = "Window"
	TypeSort        Type = "Sort"
	TypeLimit       Type = "Limit"
	TypeUnion       Type = "Union"
	TypeFederated   Type = "Federated"
	TypeUnsupported Type = "Unsupported"
)

// JoinKind enumerates the supported join semantics.
type JoinKind string

const (
	JoinInner JoinKind = "inner"
	JoinLeft  JoinKind = "left"
	JoinRight JoinKind = "right"
	JoinFull  JoinKind = "full"
	JoinSemi  JoinKind = "semi"
	JoinAnti  JoinKind = "anti"
)

// Node is the closed interface implemented by every plan node variant.
// Nodes are immutable after construction; rewrites build new nodes that
// share unchanged children (structural sharing).
type Node interface {
	Kind() Type
	ID() string
	Children() []Node
	Schema() Schema
	// WithChildren returns a new node of the same kind with the given
	// children, preserving all other attributes. Used by Transform.
	WithChildren(children []Node) Node
}

// base carries the fields common to every node variant.
type base struct {
	id     string
	schema Schema
}

func (b base) ID() string     { return b.id }
func (b base) Schema() Schema { return b.schema }

// Scan reads rows from a single named table at a named source.
type Scan struct {
	base
	Source     string
	Table      string
	Projection []string // nil means all columns
	Predicate  Expr     // nil means no pushed predicate
}

func (s *Scan) Kind() Type        { return TypeScan }
func (s *Scan) Children() []Node  { return nil }
func (s *Scan) WithChildren([]Node) Node {
	cp := *s
	return &cp
}

// Filter evaluates Predicate against each row of its single child.
type Filter struct {
	base
	Predicate Expr
	Child     Node
}

func (f *Filter) Kind() Type       { return TypeFilter }
func (f *Filter) Children() []Node { return []Node{f.Child} }
func (f *Filter) WithChildren(children []Node) Node {
	cp := *f
	cp.Child = children[0]
	return &cp
}

// Project evaluates Exprs against each row of its single child.
type Project struct {
	base
	Exprs []NamedExpr
	Child Node
}

// NamedExpr pairs a projected expression with its output name.
type NamedExpr struct {
	Expr  Expr
	Alias string
}

func (p *Project) Kind() Type       { return TypeProject }
func (p *Project) Children() []Node { return []Node{p.Child} }
func (p *Project) WithChildren(children []Node) Node {
	cp := *p
	cp.Child = children[0]
	return &cp
}

// Join combines rows from Left and Right per Kind and Condition.
// Hint, when non-empty, names a planner-preferred physical algorithm
// ("hash", "merge", "index", "partitioned") that the optimizer or a
// capability-aware rule may attach; the executor may still deviate under
// adaptive execution.
type Join struct {
	base
	JoinKind  JoinKind
	Condition Expr
	Hint      string
	Left      Node
	Right     Node
}

func (j *Join) Kind() Type       { return TypeJoin }
func (j *Join) Children() []Node { return []Node{j.Left, j.Right} }
func (j *Join) WithChildren(children []Node) Node {
	cp := *j
	cp.Left, cp.Right = children[0], children[1]
	return &cp
}

// AggFunc names one aggregate call over an argument expression.
type AggFunc struct {
	Fn       string // SUM, AVG, MIN, MAX, COUNT, COUNT_DISTINCT, STDDEV, VARIANCE, MEDIAN, PERCENTILE, MODE, CORRELATION, MOVING_AVG
	Arg      Expr
	Arg2     Expr // second argument for PERCENTILE(p)/CORRELATION/MOVING_AVG(window)
	Alias    string
	Distinct bool
}

// Aggregate groups rows of Child by GroupKeys and computes Aggs per group.
// Per spec invariant (iv): only group keys and aggregate outputs are
// exposed in the output schema.
type Aggregate struct {
	base
	GroupKeys []Expr
	Aggs      []AggFunc
	Child     Node
}

func (a *Aggregate) Kind() Type       { return TypeAggregate }
func (a *Aggregate) Children() []Node { return []Node{a.Child} }
func (a *Aggregate) WithChildren(children []Node) Node {
	cp := *a
	cp.Child = children[0]
	return &cp
}

// WindowFunc names one window function call.
type WindowFunc struct {
	Fn      string // RANK, DENSE_RANK, ROW_NUMBER, LEAD, LAG, FIRST_VALUE, LAST_VALUE, NTILE
	Arg     Expr
	N       int64       // LEAD(n, default) / LAG(n, default) / NTILE(n)
	Default Expr
	Alias   string
}

// Frame bounds a window function's partition slice. Unbounded values are
// represented as math.MinInt64 / math.MaxInt64 offsets from CurrentRow.
type Frame struct {
	StartOffset int64
	EndOffset   int64
}

// Window computes WindowFuncs over partitions of Child ordered by OrderKeys.
type Window struct {
	base
	PartitionKeys []Expr
	OrderKeys     []SortKey
	FrameSpec     Frame
	Funcs         []WindowFunc
	Child         Node
}

func (w *Window) Kind() Type       { return TypeWindow }
func (w *Window) Children() []Node { return []Node{w.Child} }
func (w *Window) WithChildren(children []Node) Node {
	cp := *w
	cp.Child = children[0]
	return &cp
}

// SortKey is one ORDER BY term.
type SortKey struct {
	Expr Expr
	Desc bool
}

// Sort orders Child's rows by Keys; ties are unspecified but reproducible.
type Sort struct {
	base
	Keys  []SortKey
	Child Node
}

func (s *Sort) Kind() Type       { return TypeSort }
func (s *Sort) Children() []Node { return []Node{s.Child} }
func (s *Sort) WithChildren(children []Node) Node {
	cp := *s
	cp.Child = children[0]
	return &cp
}

// Limit caps Child's output to N rows after skipping Offset rows.
type Limit struct {
	base
	N      int64
	Offset int64
	Child  Node
}

func (l *Limit) Kind() Type       { return TypeLimit }
func (l *Limit) Children() []Node { return []Node{l.Child} }
func (l *Limit) WithChildren(children []Node) Node {
	cp := *l
	cp.Child = children[0]
	return &cp
}

// Union concatenates rows from all Inputs, which must share a schema.
type Union struct {
	base
	Inputs []Node
	All    bool
}

func (u *Union) Kind() Type       { return TypeUnion }
func (u *Union) Children() []Node { return u.Inputs }
func (u *Union) WithChildren(children []Node) Node {
	cp := *u
	cp.Inputs = children
	return &cp
}

// Federated marks a subtree (Inner) dispatched in its entirety to a single
// named Source. Dependencies lists the TableRefs this subtree's result
// depends on, used for cache-key construction. Per invariant (ii), Inner
// must reference exactly one source — the federation planner enforces
// this when constructing Federated nodes.
type Federated struct {
	base
	Source       string
	Inner        Node
	Dependencies []TableRef
}

func (f *Federated) Kind() Type       { return TypeFederated }
func (f *Federated) Children() []Node { return []Node{f.Inner} }
func (f *Federated) WithChildren(children []Node) Node {
	cp := *f
	cp.Inner = children[0]
	return &cp
}

// Unsupported is a catch-all variant preserving forward compatibility with
// plan shapes the optimizer/executor do not yet recognize, per the
// "replace reflection with exhaustive matching + catch-all" design note.
type Unsupported struct {
	base
	Reason string
	Raw    interface{}
}

func (u *Unsupported) Kind() Type       { return TypeUnsupported }
func (u *Unsupported) Children() []Node { return nil }
func (u *Unsupported) WithChildren([]Node) Node {
	cp := *u
	return &cp
}

// TableRef names one table at one source, used as a cache dependency key
// and as a federation-planner boundary-input reference.
type TableRef struct {
	Source string
	Table  string
}

func (t TableRef) String() string { return fmt.Sprintf("%s.%s", t.Source, t.Table) }

// newID produces the node ID from a counter supplied by the caller.
func newID(n int) string { return fmt.Sprintf("n%d", n) }

// NewID exposes the ID formatting scheme to other packages. The parser
// and the optimizer rules build nodes without assigning IDs, so ID()
// returns "" for the nodes they create.
func NewID(n int) string { return newID(n) }
