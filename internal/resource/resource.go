// Package resource implements the Resource Manager (spec.md §4.9): it
// tracks per-query memory/CPU/concurrency budgets, gates admission
// through a FIFO semaphore with fair-share grouping by submitter
// identity, and throttles operators cooperatively when global CPU
// pressure crosses a high-water mark.
//
// Grounded on the teacher's pkg/workerpool.Pool (Config-driven
// capacity, atomic counters, context-based cancellation of queued
// work) for the admission-gate shape, and pkg/resource/infrastructure/
// pool.ConnectionPool (acquire/release with a metrics struct) for the
// Manager/Handle acquire-release pattern — generalized from a fixed
// worker count / connection count to spec.md's three budget
// dimensions (memory, CPU share, concurrent-query count) and the
// fair-share-by-submitter queueing pool.ConnectionPool and Pool don't
// have, since neither teacher pool distinguishes callers.
package resource

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/datapunk/lakequery/internal/queryerr"
)

// Config bounds what a Manager will admit, named after spec.md §4's
// enumerated configuration keys (max_concurrent_queries,
// per_query_memory_bytes, per_query_cpu_share). There is no
// admission_queue_size field: the queue of waiting Admit calls is
// unbounded.
type Config struct {
	MaxConcurrentQueries int
	PerQueryMemoryBytes  int64
	PerQueryCPUShare     float64
	CPUHighWaterMark     float64 // 0..1; sampled pressure above this throttles
}

// DefaultConfig mirrors the teacher's workerpool.DefaultConfig of
// sensible, small-scale defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentQueries: 8,
		PerQueryMemoryBytes:  256 << 20, // 256MiB
		PerQueryCPUShare:     1.0,
		CPUHighWaterMark:     0.9,
	}
}

// waiter is one blocked Admit call queued for a submitter.
type waiter struct {
	ready chan struct{}
}

// Manager is the process-wide admission gate and budget tracker.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	inUse    int
	waiters  map[string][]*waiter
	order    *list.List // submitter names with at least one pending waiter
	elems    map[string]*list.Element
	rrCursor *list.Element

	cpuPressure atomic.Value // float64
}

func New(cfg Config) *Manager {
	m := &Manager{
		cfg:     cfg,
		waiters: make(map[string][]*waiter),
		order:   list.New(),
		elems:   make(map[string]*list.Element),
	}
	m.cpuPressure.Store(0.0)
	return m
}

// Handle tracks one admitted query's remaining budget; Release must be
// called exactly once (it is safe to call more than once) to free the
// admission slot for the next queued query.
type Handle struct {
	mgr        *Manager
	submitter  string
	memUsed    int64
	memBudget  int64
	released   sync.Once
}

// Admit blocks until capacity is available or ctx is cancelled,
// subject to FIFO ordering within each submitter and round-robin
// fairness across submitters so one heavy submitter cannot starve
// another's queued queries.
func (m *Manager) Admit(ctx context.Context, submitter string) (*Handle, error) {
	m.mu.Lock()
	if m.inUse < m.cfg.MaxConcurrentQueries {
		m.inUse++
		m.mu.Unlock()
		return m.newHandle(submitter), nil
	}

	w := &waiter{ready: make(chan struct{})}
	m.enqueueLocked(submitter, w)
	m.mu.Unlock()

	select {
	case <-w.ready:
		return m.newHandle(submitter), nil
	case <-ctx.Done():
		m.mu.Lock()
		m.dequeueLocked(submitter, w)
		m.mu.Unlock()
		return nil, queryerr.New(queryerr.KindResource, "admission", "admission_timeout",
			"query cancelled while waiting for admission", queryerr.WithCause(ctx.Err()))
	}
}

func (m *Manager) newHandle(submitter string) *Handle {
	return &Handle{mgr: m, submitter: submitter, memBudget: m.cfg.PerQueryMemoryBytes}
}

func (m *Manager) enqueueLocked(submitter string, w *waiter) {
	if _, ok := m.elems[submitter]; !ok {
		m.elems[submitter] = m.order.PushBack(submitter)
	}
	m.waiters[submitter] = append(m.waiters[submitter], w)
}

func (m *Manager) dequeueLocked(submitter string, w *waiter) {
	ws := m.waiters[submitter]
	for i, x := range ws {
		if x == w {
			m.waiters[submitter] = append(ws[:i], ws[i+1:]...)
			break
		}
	}
	if len(m.waiters[submitter]) == 0 {
		if elem, ok := m.elems[submitter]; ok {
			if m.rrCursor == elem {
				m.rrCursor = nil
			}
			m.order.Remove(elem)
			delete(m.elems, submitter)
		}
		delete(m.waiters, submitter)
	}
}

// release frees one admission slot and wakes the next waiter in
// round-robin submitter order, if any are queued.
func (m *Manager) release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.order.Len() == 0 {
		m.inUse--
		return
	}

	next := m.rrCursor
	if next == nil {
		next = m.order.Front()
	} else {
		next = next.Next()
		if next == nil {
			next = m.order.Front()
		}
	}
	submitter := next.Value.(string)
	ws := m.waiters[submitter]
	w := ws[0]
	m.waiters[submitter] = ws[1:]
	if len(m.waiters[submitter]) == 0 {
		m.order.Remove(next)
		delete(m.elems, submitter)
		delete(m.waiters, submitter)
		next = nil
	}
	m.rrCursor = next
	// inUse is unchanged: the released slot passes directly to the
	// woken waiter rather than being freed and re-admitted.
	close(w.ready)
}

// Release frees the query's admission slot. Safe to call more than
// once.
func (h *Handle) Release() {
	h.released.Do(h.mgr.release)
}

// RequestMemory charges n bytes against the handle's remaining
// per-query budget, returning a queryerr KindResource error with code
// memory_exhausted if it would be exceeded — per spec.md §4.9, the caller (an operator) must
// then either spill or surface the failure.
func (h *Handle) RequestMemory(n int64) error {
	used := atomic.AddInt64(&h.memUsed, n)
	if used > h.memBudget {
		atomic.AddInt64(&h.memUsed, -n)
		return queryerr.New(queryerr.KindResource, "execution", "memory_exhausted",
			"query exceeded its per-query memory budget")
	}
	return nil
}

// ReleaseMemory returns n bytes to the handle's remaining budget, for
// operators that free intermediate buffers before completion.
func (h *Handle) ReleaseMemory(n int64) {
	atomic.AddInt64(&h.memUsed, -n)
}

// MemoryUsed reports bytes currently charged against the handle.
func (h *Handle) MemoryUsed() int64 { return atomic.LoadInt64(&h.memUsed) }

// SetCPUPressure records the latest sampled global CPU pressure
// (0..1), fed by a caller-driven ticker per spec.md §4.9's "periodic
// CPU sampling" — the pack has no shared CPU-sampling library, so the
// sampling loop itself lives in the caller (e.g. internal/engine) and
// only the gauge and throttle decision live here.
func (m *Manager) SetCPUPressure(p float64) { m.cpuPressure.Store(p) }

// ThrottleIfNeeded cooperatively yields when CPU pressure exceeds the
// configured high-water mark, returning early if ctx is cancelled
// first. Operators call this between batches, the same cancellation
// boundary spec.md §4.9 names.
func (m *Manager) ThrottleIfNeeded(ctx context.Context) error {
	if m.cpuPressure.Load().(float64) <= m.cfg.CPUHighWaterMark {
		return nil
	}
	select {
	case <-time.After(5 * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InUse reports the number of currently-admitted queries, for
// diagnostics and tests.
func (m *Manager) InUse() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inUse
}
