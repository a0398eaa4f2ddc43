package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapunk/lakequery/internal/exec"
	"github.com/datapunk/lakequery/internal/plan"
)

func TestCache_GetMissThenPutThenHit(t *testing.T) {
	c := New(10, time.Minute)
	_, ok := c.Get("fp1")
	assert.False(t, ok)

	result := &exec.Result{Rows: [][]interface{}{{int64(1)}}}
	c.Put("fp1", result, []plan.TableRef{{Source: "mem", Table: "users"}})

	got, ok := c.Get("fp1")
	require.True(t, ok)
	assert.Same(t, result, got)
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	c := New(10, time.Millisecond)
	c.Put("fp1", &exec.Result{}, nil)
	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get("fp1")
	assert.False(t, ok)
}

func TestCache_EvictsLeastRecentlyUsedWhenFull(t *testing.T) {
	c := New(2, time.Minute)
	c.Put("fp1", &exec.Result{}, nil)
	c.Put("fp2", &exec.Result{}, nil)
	// touch fp1 so it becomes more-recently-used than fp2
	c.Get("fp1")
	c.Put("fp3", &exec.Result{}, nil)

	_, ok := c.Get("fp2")
	assert.False(t, ok, "fp2 should have been evicted as the LRU entry")
	_, ok = c.Get("fp1")
	assert.True(t, ok)
	_, ok = c.Get("fp3")
	assert.True(t, ok)
}

func TestCache_InvalidateDropsOnlyDependentEntries(t *testing.T) {
	c := New(10, time.Minute)
	c.Put("fp1", &exec.Result{}, []plan.TableRef{{Source: "mem", Table: "users"}})
	c.Put("fp2", &exec.Result{}, []plan.TableRef{{Source: "mem", Table: "orders"}})

	c.Invalidate(plan.TableRef{Source: "mem", Table: "users"})

	_, ok := c.Get("fp1")
	assert.False(t, ok)
	_, ok = c.Get("fp2")
	assert.True(t, ok)
}

func TestCache_InvalidateSourceDropsAllEntriesFromThatSource(t *testing.T) {
	c := New(10, time.Minute)
	c.Put("fp1", &exec.Result{}, []plan.TableRef{{Source: "pg", Table: "users"}})
	c.Put("fp2", &exec.Result{}, []plan.TableRef{{Source: "ts", Table: "events"}})

	c.InvalidateSource("pg")

	_, ok := c.Get("fp1")
	assert.False(t, ok)
	_, ok = c.Get("fp2")
	assert.True(t, ok)
}

func TestCache_GetOrFillCallsFillOnlyOnceConcurrently(t *testing.T) {
	c := New(10, time.Minute)
	var calls int32
	fill := func() (*exec.Result, error) {
		calls++
		return &exec.Result{Rows: [][]interface{}{{calls}}}, nil
	}

	done := make(chan *exec.Result, 8)
	for i := 0; i < 8; i++ {
		go func() {
			r, err := c.GetOrFill("fp1", nil, fill)
			require.NoError(t, err)
			done <- r
		}()
	}
	var first *exec.Result
	for i := 0; i < 8; i++ {
		r := <-done
		if first == nil {
			first = r
		}
		assert.Same(t, first, r)
	}
}

func TestCache_GetOrFillPropagatesFillError(t *testing.T) {
	c := New(10, time.Minute)
	wantErr := errors.New("source unavailable")
	_, err := c.GetOrFill("fp1", nil, func() (*exec.Result, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	_, ok := c.Get("fp1")
	assert.False(t, ok, "a failed fill must not be cached")
}
