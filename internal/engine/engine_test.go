package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapunk/lakequery/internal/adapter"
	"github.com/datapunk/lakequery/internal/adapter/memory"
	"github.com/datapunk/lakequery/internal/config"
	"github.com/datapunk/lakequery/internal/federation"
	"github.com/datapunk/lakequery/internal/monitor"
	"github.com/datapunk/lakequery/internal/plan"
	"github.com/datapunk/lakequery/internal/security"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	a := memory.New("mem")
	a.AddTable("users", &memory.Table{
		Schema: plan.Schema{
			{Name: "id", Type: plan.ColumnType{Tag: plan.TInt64}},
			{Name: "name", Type: plan.ColumnType{Tag: plan.TUTF8}},
			{Name: "age", Type: plan.ColumnType{Tag: plan.TInt64}},
		},
		Rows: [][]interface{}{
			{int64(1), "alice", int64(30)},
			{int64(2), "bob", int64(17)},
			{int64(3), "carl", int64(45)},
		},
	})
	require.NoError(t, a.Connect(context.Background()))

	registry := adapter.NewRegistry()
	registry.Register("mem", a)

	router := federation.NewRouter(registry)
	router.AddRoute("users", "mem")

	enforcer := security.NewEnforcer(nil)
	enforcer.SetPolicy(&security.Policy{Resource: "users", AccessLevelRequired: security.LevelRead})

	return New(config.Default(), registry, router, enforcer, monitor.New(nil, time.Second, 10))
}

func TestEngine_SubmitAndPollReturnsResult(t *testing.T) {
	e := newTestEngine(t)
	h, err := e.Submit(context.Background(), "SELECT name FROM users WHERE age >= 18", QueryContext{
		Identity: security.Identity{Subject: "alice", Level: security.LevelRead},
	})
	require.NoError(t, err)

	status, result, err := e.Wait(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status)
	require.Len(t, result.Rows, 2)
}

func TestEngine_SubmitDeniesUnauthorizedResource(t *testing.T) {
	e := newTestEngine(t)
	h, err := e.Submit(context.Background(), "SELECT name FROM users", QueryContext{
		Identity: security.Identity{Subject: "mallory", Level: security.LevelNone},
	})
	require.NoError(t, err)

	status, _, err := e.Wait(context.Background(), h)
	assert.Equal(t, StatusFailed, status)
	assert.Error(t, err)
}

func TestEngine_SubmitRejectsInjectionLikeInput(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Submit(context.Background(), "1 UNION SELECT password FROM users", QueryContext{
		Identity: security.Identity{Subject: "alice", Level: security.LevelRead},
	})
	assert.Error(t, err)
}

func TestEngine_CancelStopsRunningQuery(t *testing.T) {
	e := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	h, err := e.Submit(ctx, "SELECT name FROM users WHERE age >= 18", QueryContext{
		Identity: security.Identity{Subject: "alice", Level: security.LevelRead},
	})
	require.NoError(t, err)

	require.NoError(t, e.Cancel(h))
	cancel()

	status, _, _ := e.Wait(context.Background(), h)
	assert.Contains(t, []Status{StatusCancelled, StatusCompleted, StatusFailed}, status)
}

func TestEngine_PollUnknownHandleErrors(t *testing.T) {
	e := newTestEngine(t)
	_, _, err := e.Poll(&Handle{ID: "does-not-exist"})
	assert.Error(t, err)
}
