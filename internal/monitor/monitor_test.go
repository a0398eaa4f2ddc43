package monitor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_RecordStageAccumulatesStats(t *testing.T) {
	m := New(nil, time.Second, 10)
	m.RecordStage("filter", 10*time.Millisecond, 2*time.Millisecond, 100, nil)
	m.RecordStage("filter", 20*time.Millisecond, 4*time.Millisecond, 50, errors.New("boom"))

	stats := m.Stats()
	st, ok := stats["filter"]
	require.True(t, ok)
	assert.Equal(t, int64(2), st.Calls)
	assert.Equal(t, 30*time.Millisecond, st.TotalDuration)
	assert.Equal(t, int64(150), st.RowsOut)
	assert.Equal(t, int64(1), st.Errors)
}

func TestMonitor_RecordQueryCapturesOnlySlowQueries(t *testing.T) {
	m := New(nil, 50*time.Millisecond, 10)
	m.RecordQuery("fp-fast", 10*time.Millisecond, "mem", 5, nil)
	m.RecordQuery("fp-slow", 100*time.Millisecond, "mem", 5, nil)

	slow := m.SlowQueries()
	require.Len(t, slow, 1)
	assert.Equal(t, "fp-slow", slow[0].Fingerprint)
}

func TestMonitor_RecordQueryEvictsOldestPastMaxSlowQueries(t *testing.T) {
	m := New(nil, 0, 2)
	m.RecordQuery("fp1", time.Millisecond, "mem", 1, nil)
	m.RecordQuery("fp2", time.Millisecond, "mem", 1, nil)
	m.RecordQuery("fp3", time.Millisecond, "mem", 1, nil)

	slow := m.SlowQueries()
	require.Len(t, slow, 2)
	assert.Equal(t, "fp2", slow[0].Fingerprint)
	assert.Equal(t, "fp3", slow[1].Fingerprint)
}

func TestMonitor_BottlenecksRanksByDurationTimesBlocked(t *testing.T) {
	m := New(nil, time.Second, 10)
	m.RecordStage("scan", 100*time.Millisecond, 80*time.Millisecond, 1000, nil)
	m.RecordStage("project", 10*time.Millisecond, time.Millisecond, 1000, nil)

	ranked := m.Bottlenecks()
	require.Len(t, ranked, 2)
	assert.Equal(t, "scan", ranked[0].Stage)
	assert.True(t, ranked[0].Score > ranked[1].Score)
}
