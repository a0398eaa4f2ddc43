// Package engine is the Federated Query Engine's external interface
// (spec.md §6): submit/poll/cancel over an asynchronous query handle,
// wiring Parser → Optimizer → Federation Planner → Security Enforcer →
// Resource Manager (admission) → Result Cache (wrapping the Execution
// Engine run) → Monitor, in that order.
//
// Grounded on the teacher's pkg/executor.BaseExecutor, which already
// owns one instance each of the adjacent services (dataAccessService,
// indexManager, runtime) and exposes a single synchronous Execute;
// generalized here into an asynchronous Submit/Poll/Cancel surface
// over a query state machine (Queued → Admitted → Running →
// {Completed, Failed, Cancelled}) since the teacher's Execute blocks
// the caller for the query's full duration with no handle to poll or
// cancel mid-flight.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/datapunk/lakequery/internal/adapter"
	"github.com/datapunk/lakequery/internal/cache"
	"github.com/datapunk/lakequery/internal/config"
	"github.com/datapunk/lakequery/internal/exec"
	"github.com/datapunk/lakequery/internal/federation"
	"github.com/datapunk/lakequery/internal/monitor"
	"github.com/datapunk/lakequery/internal/optimizer"
	"github.com/datapunk/lakequery/internal/parser"
	"github.com/datapunk/lakequery/internal/plan"
	"github.com/datapunk/lakequery/internal/queryerr"
	"github.com/datapunk/lakequery/internal/resource"
	"github.com/datapunk/lakequery/internal/security"
)

// Status is one state in spec.md §4.7's per-query state machine.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusAdmitted  Status = "admitted"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// CachePolicy selects how a query interacts with the result cache, per
// spec.md §5's ExecutionContext.cache_policy field.
type CachePolicy string

const (
	CacheUse           CachePolicy = "use"
	CacheBypass        CachePolicy = "bypass"
	CachePopulateOnly  CachePolicy = "populate-only"
)

// QueryContext is the caller-supplied context for one Submit call, per
// spec.md §5's ExecutionContext (identity, deadline, cache policy).
type QueryContext struct {
	Identity    security.Identity
	Mode        exec.Mode
	CachePolicy CachePolicy
	Deadline    time.Time
}

// query is the engine's internal state for one submitted query.
type query struct {
	mu       sync.Mutex
	status   Status
	result   *exec.Result
	err      error
	cancel   context.CancelFunc
	finished chan struct{}
}

// Handle identifies one submitted query for Poll/Cancel.
type Handle struct {
	ID string
}

// Engine wires the pipeline's stages together behind Submit/Poll/
// Cancel, holding one instance each of the supporting services —
// spec.md §4.7's "owns the execution context" responsibility.
type Engine struct {
	cfg        *config.Config
	parser     *parser.Parser
	optimizer  *optimizer.Pipeline
	federation *federation.Planner
	exec       *exec.Engine
	cache      *cache.Cache
	resources  *resource.Manager
	security   *security.Enforcer
	monitor    *monitor.Monitor

	mu      sync.Mutex
	queries map[string]*query
}

// New builds an Engine from cfg, wiring every supporting service from
// the same configuration the spec's §6 "Configuration" list enumerates.
func New(cfg *config.Config, registry *adapter.Registry, router *federation.Router, enforcer *security.Enforcer, mon *monitor.Monitor) *Engine {
	return &Engine{
		cfg:        cfg,
		parser:     parser.New(),
		optimizer:  optimizer.NewPipeline(optimizer.DefaultRules()...),
		federation: federation.New(router),
		exec:       exec.New(registry),
		cache:      cache.New(cfg.Cache.MaxEntries, cfg.Cache.DefaultTTL),
		resources: resource.New(resource.Config{
			MaxConcurrentQueries: cfg.Admission.MaxConcurrentQueries,
			PerQueryMemoryBytes:  cfg.Admission.PerQueryMemoryBytes,
			PerQueryCPUShare:     cfg.Admission.PerQueryCPUShare,
		}),
		security: enforcer,
		monitor:  mon,
		queries:  make(map[string]*query),
	}
}

// Submit parses, plans, and asynchronously executes sql under qctx,
// returning a Handle immediately (the Queued state) without blocking
// for completion.
func (e *Engine) Submit(ctx context.Context, sql string, qctx QueryContext) (*Handle, error) {
	if reason := security.DetectSQLInjection(sql); reason != "" {
		return nil, queryerr.New(queryerr.KindSecurity, "submit", "suspicious_input",
			fmt.Sprintf("rejected before parsing: input matched %s", reason))
	}

	id := uuid.NewString()
	q := &query{status: StatusQueued, finished: make(chan struct{})}

	e.mu.Lock()
	e.queries[id] = q
	e.mu.Unlock()

	runCtx := ctx
	if !qctx.Deadline.IsZero() {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(ctx, qctx.Deadline)
		q.cancel = cancel
	} else {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithCancel(ctx)
		q.cancel = cancel
	}

	go e.run(runCtx, id, q, sql, qctx)
	return &Handle{ID: id}, nil
}

func (e *Engine) run(ctx context.Context, id string, q *query, sql string, qctx QueryContext) {
	defer close(q.finished)
	start := time.Now()

	logical, err := e.parser.Parse(sql)
	if err != nil {
		e.fail(q, queryerr.New(queryerr.KindParse, "parse", "parse_error", err.Error(), queryerr.WithCause(err)))
		return
	}

	optimized := e.optimizer.Run(logical)

	federated, err := e.federation.Plan(optimized)
	if err != nil {
		e.fail(q, queryerr.New(queryerr.KindPlanning, "federation", "planning_error", err.Error(), queryerr.WithCause(err)))
		return
	}

	secured, err := e.security.Enforce(federated, qctx.Identity)
	if err != nil {
		e.fail(q, err)
		return
	}

	fingerprint := plan.Fingerprint(secured)
	deps := dependenciesOf(secured)

	handle, err := e.resources.Admit(ctx, qctx.Identity.Subject)
	if err != nil {
		e.fail(q, queryerr.New(queryerr.KindResource, "admission", "admission_failed", err.Error(), queryerr.WithCause(err)))
		return
	}
	defer handle.Release()
	e.setStatus(q, StatusAdmitted)
	e.setStatus(q, StatusRunning)

	mode := qctx.Mode
	if mode == "" {
		mode = exec.ModeStandard
	}

	run := func() (*exec.Result, error) {
		return e.exec.Run(ctx, secured, mode)
	}

	var result *exec.Result
	switch qctx.CachePolicy {
	case CacheBypass:
		result, err = run()
	case CachePopulateOnly:
		result, err = run()
		if err == nil {
			e.cache.Put(fingerprint, result, deps)
		}
	default:
		result, err = e.cache.GetOrFill(fingerprint, deps, run)
	}

	duration := time.Since(start)
	if e.monitor != nil {
		e.monitor.RecordQuery(fingerprint, duration, "", rowCount(result), err)
	}

	if err != nil {
		if ctx.Err() != nil {
			e.finish(q, StatusCancelled, nil, queryerr.New(queryerr.KindCancelled, "execution", "cancelled", "query cancelled"))
			return
		}
		e.fail(q, queryerr.New(queryerr.KindExecution, "execution", "execution_error", err.Error(), queryerr.WithCause(err)))
		return
	}
	e.finish(q, StatusCompleted, result, nil)
}

func rowCount(r *exec.Result) int64 {
	if r == nil {
		return 0
	}
	return int64(len(r.Rows))
}

// dependenciesOf collects every plan.TableRef the secured plan
// depends on, for the cache's dependency-set invalidation.
func dependenciesOf(n plan.Node) []plan.TableRef {
	var deps []plan.TableRef
	plan.Traverse(n, func(node plan.Node) {
		if f, ok := node.(*plan.Federated); ok {
			deps = append(deps, f.Dependencies...)
		}
		if s, ok := node.(*plan.Scan); ok {
			deps = append(deps, plan.TableRef{Source: s.Source, Table: s.Table})
		}
	})
	return deps
}

func (e *Engine) setStatus(q *query, status Status) {
	q.mu.Lock()
	q.status = status
	q.mu.Unlock()
}

func (e *Engine) fail(q *query, err error) {
	e.finish(q, StatusFailed, nil, err)
}

func (e *Engine) finish(q *query, status Status, result *exec.Result, err error) {
	q.mu.Lock()
	q.status = status
	q.result = result
	q.err = err
	q.mu.Unlock()
}

// Poll reports a query's current status and, once Completed, its
// result.
func (e *Engine) Poll(h *Handle) (Status, *exec.Result, error) {
	e.mu.Lock()
	q, ok := e.queries[h.ID]
	e.mu.Unlock()
	if !ok {
		return "", nil, queryerr.New(queryerr.KindInternal, "poll", "unknown_handle", "no query with this handle")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.status, q.result, q.err
}

// Wait blocks until the query reaches a terminal state or ctx is
// cancelled, then returns the same triple Poll would.
func (e *Engine) Wait(ctx context.Context, h *Handle) (Status, *exec.Result, error) {
	e.mu.Lock()
	q, ok := e.queries[h.ID]
	e.mu.Unlock()
	if !ok {
		return "", nil, queryerr.New(queryerr.KindInternal, "wait", "unknown_handle", "no query with this handle")
	}
	select {
	case <-q.finished:
	case <-ctx.Done():
		return StatusRunning, nil, ctx.Err()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.status, q.result, q.err
}

// Cancel requests cooperative cancellation of a running query, per
// spec.md §4.9's cancellation contract: the query's context is
// cancelled, which every suspension point in internal/exec and
// internal/resource checks before blocking further.
func (e *Engine) Cancel(h *Handle) error {
	e.mu.Lock()
	q, ok := e.queries[h.ID]
	e.mu.Unlock()
	if !ok {
		return queryerr.New(queryerr.KindInternal, "cancel", "unknown_handle", "no query with this handle")
	}
	q.mu.Lock()
	cancel := q.cancel
	q.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}
