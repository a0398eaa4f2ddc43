package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_AdmitsUpToCapacityThenQueues(t *testing.T) {
	m := New(Config{MaxConcurrentQueries: 2, PerQueryMemoryBytes: 1024})
	ctx := context.Background()

	h1, err := m.Admit(ctx, "alice")
	require.NoError(t, err)
	h2, err := m.Admit(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, m.InUse())

	admitted := make(chan struct{})
	go func() {
		h3, err := m.Admit(ctx, "carol")
		require.NoError(t, err)
		close(admitted)
		h3.Release()
	}()

	select {
	case <-admitted:
		t.Fatal("third query should not be admitted while at capacity")
	case <-time.After(20 * time.Millisecond):
	}

	h1.Release()
	select {
	case <-admitted:
	case <-time.After(time.Second):
		t.Fatal("third query was never admitted after a slot freed")
	}
	h2.Release()
}

func TestManager_AdmitRespectsContextCancellation(t *testing.T) {
	m := New(Config{MaxConcurrentQueries: 1, PerQueryMemoryBytes: 1024})
	h1, err := m.Admit(context.Background(), "alice")
	require.NoError(t, err)
	defer h1.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = m.Admit(ctx, "bob")
	assert.Error(t, err)
}

func TestHandle_RequestMemoryFailsPastBudget(t *testing.T) {
	m := New(Config{MaxConcurrentQueries: 1, PerQueryMemoryBytes: 100})
	h, err := m.Admit(context.Background(), "alice")
	require.NoError(t, err)
	defer h.Release()

	require.NoError(t, h.RequestMemory(60))
	err = h.RequestMemory(60)
	assert.Error(t, err)
	assert.Equal(t, int64(60), h.MemoryUsed(), "a rejected request must not charge the budget")
}

func TestHandle_ReleaseMemoryFreesBudget(t *testing.T) {
	m := New(Config{MaxConcurrentQueries: 1, PerQueryMemoryBytes: 100})
	h, err := m.Admit(context.Background(), "alice")
	require.NoError(t, err)
	defer h.Release()

	require.NoError(t, h.RequestMemory(90))
	h.ReleaseMemory(90)
	require.NoError(t, h.RequestMemory(90))
}

func TestManager_ThrottleIfNeededYieldsAboveHighWaterMark(t *testing.T) {
	m := New(Config{MaxConcurrentQueries: 1, CPUHighWaterMark: 0.5})
	m.SetCPUPressure(0.9)

	start := time.Now()
	err := m.ThrottleIfNeeded(context.Background())
	require.NoError(t, err)
	assert.True(t, time.Since(start) > 0)
}

func TestManager_ThrottleIfNeededReturnsImmediatelyBelowHighWaterMark(t *testing.T) {
	m := New(Config{MaxConcurrentQueries: 1, CPUHighWaterMark: 0.9})
	m.SetCPUPressure(0.1)

	err := m.ThrottleIfNeeded(context.Background())
	require.NoError(t, err)
}

func TestManager_FairShareRoundRobinsAcrossSubmitters(t *testing.T) {
	m := New(Config{MaxConcurrentQueries: 1, PerQueryMemoryBytes: 1024})
	h0, err := m.Admit(context.Background(), "seed")
	require.NoError(t, err)

	order := make(chan string, 2)
	go func() {
		h, _ := m.Admit(context.Background(), "alice")
		order <- "alice"
		h.Release()
	}()
	time.Sleep(10 * time.Millisecond) // ensure alice enqueues first
	go func() {
		h, _ := m.Admit(context.Background(), "bob")
		order <- "bob"
		h.Release()
	}()
	time.Sleep(10 * time.Millisecond)

	h0.Release()
	first := <-order
	assert.Equal(t, "alice", first, "the earlier-queued submitter should be admitted first")
	<-order
}
