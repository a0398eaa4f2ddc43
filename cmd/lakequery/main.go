// Command lakequery is a small demo entry point for the Federated
// Query Engine: it wires up an in-memory adapter, submits one query
// through internal/engine, and prints the result — grounded on the
// teacher's cmd/service/main.go (load config, build a server, run one
// request loop), trimmed from a standing MySQL wire-protocol listener
// to a single submit/wait/print demonstration of the library surface.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/datapunk/lakequery/internal/adapter"
	"github.com/datapunk/lakequery/internal/adapter/memory"
	"github.com/datapunk/lakequery/internal/config"
	"github.com/datapunk/lakequery/internal/engine"
	"github.com/datapunk/lakequery/internal/federation"
	"github.com/datapunk/lakequery/internal/monitor"
	"github.com/datapunk/lakequery/internal/plan"
	"github.com/datapunk/lakequery/internal/security"
)

func main() {
	cfg := config.LoadOrDefault()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync()

	registry := adapter.NewRegistry()
	registry.Register("mem", seedMemoryAdapter())

	router := federation.NewRouter(registry)
	router.AddRoute("users", "mem")

	enforcer := security.NewEnforcer(nil)
	enforcer.SetPolicy(&security.Policy{Resource: "users", AccessLevelRequired: security.LevelRead})

	mon := monitor.New(logger, 200*time.Millisecond, 100)
	eng := engine.New(cfg, registry, router, enforcer, mon)

	ctx := context.Background()
	handle, err := eng.Submit(ctx, "SELECT name, age FROM users WHERE age >= 18", engine.QueryContext{
		Identity: security.Identity{Subject: "demo-user", Level: security.LevelRead},
	})
	if err != nil {
		logger.Fatal("submit failed", zap.Error(err))
	}

	status, result, err := eng.Wait(ctx, handle)
	if err != nil {
		logger.Fatal("wait failed", zap.Error(err))
	}
	if status != engine.StatusCompleted {
		logger.Fatal("query did not complete", zap.String("status", string(status)))
	}

	fmt.Println("status:", status)
	for _, row := range result.Rows {
		fmt.Println(row)
	}
}

func seedMemoryAdapter() *memory.Adapter {
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
	if err := a.Connect(context.Background()); err != nil {
		log.Fatalf("connect memory adapter: %v", err)
	}
	return a
}
