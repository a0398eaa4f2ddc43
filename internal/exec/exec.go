// Package exec implements the Execution Engine (spec.md §4.7): it
// compiles an optimized internal/plan tree into an
// internal/exec/operators tree and drives it to completion, with
// Federated leaves dispatched through an adapter.Registry.
//
// Grounded on the teacher's pkg/executor.BaseExecutor.buildOperator
// switch (one case per plan.Type, building the matching physical
// operator and recursing into children) and pkg/executor/parallel's
// worker-pool-backed scan/join fan-out, generalized here via
// golang.org/x/sync/errgroup the way the other examples in this pack
// (rather than the teacher's bespoke pkg/workerpool) use for bounded
// concurrent fan-out.
package exec

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/datapunk/lakequery/internal/adapter"
	"github.com/datapunk/lakequery/internal/exec/operators"
	"github.com/datapunk/lakequery/internal/plan"
)

// Mode selects how the engine drives a compiled operator tree, per
// spec.md §4.7's three execution modes.
type Mode string

const (
	// ModeStandard runs the operator tree to completion on one goroutine.
	ModeStandard Mode = "standard"
	// ModeAdaptive additionally fans Federated siblings under a Union
	// out across goroutines, at most Parallelism at a time, and compiles
	// a Join's two sides on two goroutines.
	ModeAdaptive Mode = "adaptive"
)

// Engine compiles and drives plan trees against a registry of live
// adapters.
type Engine struct {
	Registry    *adapter.Registry
	Parallelism int
}

func New(reg *adapter.Registry) *Engine {
	return &Engine{Registry: reg, Parallelism: 4}
}

// Result is the materialized output of a query, spec.md §4.7's terminal
// QueryResult shape.
type Result struct {
	Schema plan.Schema
	Rows   [][]interface{}
}

// Run compiles n into an operator tree and drains it fully. mode
// ModeAdaptive additionally parallelizes independent Federated
// subtrees reachable from a Union or the build/probe sides of a Join.
func (e *Engine) Run(ctx context.Context, n plan.Node, mode Mode) (*Result, error) {
	op, err := e.compile(ctx, n, mode)
	if err != nil {
		return nil, err
	}
	defer op.Close()

	var rows [][]interface{}
	schema := op.Schema()
	for {
		batch, err := op.Next(ctx)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			break
		}
		if schema == nil {
			schema = batch.Schema
		}
		rows = append(rows, batch.Rows...)
	}
	return &Result{Schema: schema, Rows: rows}, nil
}

// compile mirrors the teacher's BaseExecutor.buildOperator: one case per
// plan.Type, recursing into children before wrapping them.
func (e *Engine) compile(ctx context.Context, n plan.Node, mode Mode) (operators.Operator, error) {
	switch v := n.(type) {
	case *plan.Scan:
		return e.compileScan(ctx, v)
	case *plan.Filter:
		child, err := e.compile(ctx, v.Child, mode)
		if err != nil {
			return nil, err
		}
		return &operators.FilterOp{Input: child, Predicate: v.Predicate}, nil
	case *plan.Project:
		child, err := e.compile(ctx, v.Child, mode)
		if err != nil {
			return nil, err
		}
		return operators.NewProjectOp(child, v.Exprs), nil
	case *plan.Limit:
		child, err := e.compile(ctx, v.Child, mode)
		if err != nil {
			return nil, err
		}
		return &operators.LimitOp{Input: child, N: v.N, Offset: v.Offset}, nil
	case *plan.Sort:
		child, err := e.compile(ctx, v.Child, mode)
		if err != nil {
			return nil, err
		}
		return &operators.SortOp{Input: child, Keys: v.Keys}, nil
	case *plan.Aggregate:
		child, err := e.compile(ctx, v.Child, mode)
		if err != nil {
			return nil, err
		}
		return operators.NewAggregateOp(child, v.GroupKeys, v.Aggs), nil
	case *plan.Join:
		left, right, err := e.compileJoinSides(ctx, v, mode)
		if err != nil {
			return nil, err
		}
		return operators.NewHashJoinOp(left, right, v.JoinKind, v.Condition), nil
	case *plan.Union:
		children, err := e.compileChildren(ctx, v.Inputs, mode)
		if err != nil {
			return nil, err
		}
		return &operators.UnionOp{Inputs: children}, nil
	case *plan.Federated:
		return e.compile(ctx, v.Inner, mode)
	default:
		return nil, fmt.Errorf("exec: unsupported plan node %T", n)
	}
}

func (e *Engine) compileScan(ctx context.Context, s *plan.Scan) (operators.Operator, error) {
	a, ok := e.Registry.Get(s.Source)
	if !ok {
		return nil, fmt.Errorf("exec: no adapter registered for source %q", s.Source)
	}
	it, err := a.Execute(ctx, s)
	if err != nil {
		return nil, err
	}
	schema, err := a.Schema(ctx, s.Table)
	if err != nil {
		return nil, err
	}
	return operators.NewTableScanOp(it, schema), nil
}

// compileJoinSides compiles a Join's two children, running them
// concurrently under ModeAdaptive since each Federated side of a join
// typically talks to a different source adapter and has no data
// dependency on the other.
func (e *Engine) compileJoinSides(ctx context.Context, j *plan.Join, mode Mode) (left, right operators.Operator, err error) {
	if mode != ModeAdaptive {
		left, err = e.compile(ctx, j.Left, mode)
		if err != nil {
			return nil, nil, err
		}
		right, err = e.compile(ctx, j.Right, mode)
		return left, right, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		l, err := e.compile(gctx, j.Left, mode)
		left = l
		return err
	})
	g.Go(func() error {
		r, err := e.compile(gctx, j.Right, mode)
		right = r
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func (e *Engine) compileChildren(ctx context.Context, nodes []plan.Node, mode Mode) ([]operators.Operator, error) {
	out := make([]operators.Operator, len(nodes))
	if mode != ModeAdaptive || len(nodes) < 2 {
		for i, c := range nodes {
			op, err := e.compile(ctx, c, mode)
			if err != nil {
				return nil, err
			}
			out[i] = op
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if e.Parallelism > 0 {
		g.SetLimit(e.Parallelism)
	}
	for i, c := range nodes {
		i, c := i, c
		g.Go(func() error {
			op, err := e.compile(gctx, c, mode)
			if err != nil {
				return err
			}
			out[i] = op
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
