// Package monitor implements the Monitor/Profiler (spec.md §4.11):
// rolling per-operator/per-source metrics, slow-query capture, and
// bottleneck ranking by time×downstream-blocked-time, emitted as
// structured events through go.uber.org/zap.
//
// Grounded on the teacher's pkg/monitor package: MetricsCollector
// (query/error/table-access counters under one mutex) and
// SlowQueryAnalyzer (a capped ring of slow-query entries keyed by
// threshold) are generalized here into per-stage Stats keyed by stage
// name rather than the teacher's single flat counter set, since
// spec.md §4.11 asks for per-operator/per-stage granularity the
// teacher's query-level-only collector doesn't have. Structured
// logging via zap is new: the teacher's monitor package itself never
// logs (pkg/monitor has no logging calls at all; only cmd/service/
// main.go uses the bare log package), so the engine's Monitor sink
// adopts zap, the production-grade logging library carried from the
// rest of the retrieval pack (Lychee-Technology-forma and
// theRebelliousNerd-codenerd both depend on it) rather than inventing
// a bespoke event format or falling back to bare log/fmt.
package monitor

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StageStats accumulates rolling timing for one operator/stage name.
type StageStats struct {
	Calls          int64
	TotalDuration  time.Duration
	BlockedOnInput time.Duration // time this stage spent waiting on its child
	RowsOut        int64
	Errors         int64
}

// Bottleneck ranks one stage by its contribution to total query
// latency, per spec.md §4.11's time×downstream-blocked-time metric.
// Score has no physical unit (it's a product of two durations, in
// seconds) — it exists only to order stages relative to each other.
type Bottleneck struct {
	Stage string
	Score float64
}

// SlowQuery is one captured over-threshold query, grounded on the
// teacher's SlowQueryLog.
type SlowQuery struct {
	Fingerprint string
	Duration    time.Duration
	Timestamp   time.Time
	Source      string
	RowCount    int64
	Err         string
}

// Monitor aggregates per-stage stats across queries and captures
// queries slower than Threshold, up to MaxSlowQueries (oldest evicted
// first), per the teacher's SlowQueryAnalyzer capped ring.
type Monitor struct {
	log *zap.SugaredLogger

	mu    sync.Mutex
	stats map[string]*StageStats

	threshold      time.Duration
	maxSlowQueries int
	slowQueries    []SlowQuery
}

func New(log *zap.Logger, threshold time.Duration, maxSlowQueries int) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{
		log:            log.Sugar(),
		stats:          make(map[string]*StageStats),
		threshold:      threshold,
		maxSlowQueries: maxSlowQueries,
	}
}

// RecordStage folds one stage execution's timing into its rolling
// stats and emits a debug-level structured event.
func (m *Monitor) RecordStage(stage string, duration, blockedOnInput time.Duration, rowsOut int64, err error) {
	m.mu.Lock()
	st, ok := m.stats[stage]
	if !ok {
		st = &StageStats{}
		m.stats[stage] = st
	}
	st.Calls++
	st.TotalDuration += duration
	st.BlockedOnInput += blockedOnInput
	st.RowsOut += rowsOut
	if err != nil {
		st.Errors++
	}
	m.mu.Unlock()

	if err != nil {
		m.log.Debugw("stage completed with error", "stage", stage, "duration", duration, "rows_out", rowsOut, "error", err)
		return
	}
	m.log.Debugw("stage completed", "stage", stage, "duration", duration, "rows_out", rowsOut)
}

// RecordQuery captures a slow query if duration meets Threshold, per
// the teacher's SlowQueryAnalyzer.RecordSlowQuery.
func (m *Monitor) RecordQuery(fingerprint string, duration time.Duration, source string, rowCount int64, err error) {
	if duration < m.threshold {
		return
	}
	sq := SlowQuery{Fingerprint: fingerprint, Duration: duration, Timestamp: time.Now(), Source: source, RowCount: rowCount}
	if err != nil {
		sq.Err = err.Error()
	}

	m.mu.Lock()
	m.slowQueries = append(m.slowQueries, sq)
	if len(m.slowQueries) > m.maxSlowQueries {
		m.slowQueries = m.slowQueries[1:]
	}
	m.mu.Unlock()

	m.log.Warnw("slow query", "fingerprint", fingerprint, "duration", duration, "source", source, "row_count", rowCount)
}

// Stats returns a snapshot of every stage's rolling stats.
func (m *Monitor) Stats() map[string]StageStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]StageStats, len(m.stats))
	for name, st := range m.stats {
		out[name] = *st
	}
	return out
}

// SlowQueries returns the currently-retained slow-query ring.
func (m *Monitor) SlowQueries() []SlowQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SlowQuery, len(m.slowQueries))
	copy(out, m.slowQueries)
	return out
}

// Bottlenecks ranks every recorded stage by TotalDuration seconds
// times BlockedOnInput seconds, descending, per spec.md §4.11's
// time×downstream-blocked-time ranking: a stage that is both slow and
// frequently starved waiting on its child outranks one that is merely
// slow or merely starved.
func (m *Monitor) Bottlenecks() []Bottleneck {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Bottleneck, 0, len(m.stats))
	for stage, st := range m.stats {
		out = append(out, Bottleneck{Stage: stage, Score: st.TotalDuration.Seconds() * st.BlockedOnInput.Seconds()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
