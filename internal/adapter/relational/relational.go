// Package relational implements a relational-kind Adapter over
// database/sql, grounded on the teacher's pkg/resource/mysql_source.
// Unlike the teacher's source, which dispatches hand-built INSERT/UPDATE
// SQL strings for every write verb, this adapter is read-only (the
// federation engine has no write path, spec.md §1 non-goals) and instead
// compiles pushed-down Scan/Filter/Project/Limit subplans into a single
// parameterized SELECT, executed through the standard sql.DB pool.
//
// Three dialects are wired: github.com/lib/pq for Postgres and
// github.com/go-sql-driver/mysql for MySQL, matching the drivers the
// teacher and the rest of the example pack import, plus
// modernc.org/sqlite for SQLite.
package relational

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/datapunk/lakequery/internal/adapter"
	"github.com/datapunk/lakequery/internal/plan"
)

// Dialect selects the SQL identifier-quoting and placeholder convention
// used to render pushed-down plans.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	// DialectSQLite targets modernc.org/sqlite, the driver this module's
	// own tests use in place of a live Postgres/MySQL server.
	DialectSQLite Dialect = "sqlite"
)

// Adapter wraps a database/sql pool for one relational source.
type Adapter struct {
	id      string
	dialect Dialect
	dsn     string

	db        *sql.DB
	connected bool
}

// New creates a relational adapter for the given dialect and DSN. dialect
// is DialectPostgres, DialectMySQL or DialectSQLite (any other value is
// treated as Postgres); the corresponding driver is imported for its side
// effect of registering with database/sql.
func New(sourceID string, dialect Dialect, dsn string) *Adapter {
	return &Adapter{id: sourceID, dialect: dialect, dsn: dsn}
}

func (a *Adapter) driverName() string {
	switch a.dialect {
	case DialectMySQL:
		return "mysql"
	case DialectSQLite:
		return "sqlite"
	default:
		return "postgres"
	}
}

func (a *Adapter) Connect(ctx context.Context) error {
	db, err := sql.Open(a.driverName(), a.dsn)
	if err != nil {
		return adapter.ErrConnection("relational.Connect", err, false)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return adapter.ErrConnection("relational.Connect", err, true)
	}
	a.db = db
	a.connected = true
	return nil
}

func (a *Adapter) Disconnect(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	a.connected = false
	return err
}

func (a *Adapter) Descriptor() adapter.Descriptor {
	return adapter.Descriptor{
		ID:   a.id,
		Kind: adapter.KindRelational,
		Capabilities: adapter.CapabilitySet{
			adapter.CapJoins:           true,
			adapter.CapSubqueries:      true,
			adapter.CapWindow:          true,
			adapter.CapTransactions:    true,
			adapter.CapCostEstimation:  true,
		},
		CostFactors: adapter.CostFactors{IOPerRow: 0.005, CPUPerRow: 0.001, StartupCost: 1.0, Parallelism: 4},
	}
}

func (a *Adapter) Capabilities() adapter.CapabilitySet { return a.Descriptor().Capabilities }

// Schema introspects table's columns by querying an empty result set and
// reading back driver column metadata, the same technique the teacher's
// MySQLSource.Query uses (rows.ColumnTypes()) rather than a
// dialect-specific information_schema query.
func (a *Adapter) Schema(ctx context.Context, table string) (plan.Schema, error) {
	if !a.connected {
		return nil, adapter.ErrConnection("relational.Schema", nil, false)
	}
	rows, err := a.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s WHERE 1 = 0", quote(table)))
	if err != nil {
		return nil, adapter.ErrSchema("relational.Schema", fmt.Errorf("table %q: %w", table, err))
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, adapter.ErrSchema("relational.Schema", err)
	}
	schema := make(plan.Schema, len(types))
	for i, c := range types {
		nullable, _ := c.Nullable()
		schema[i] = plan.Column{Name: c.Name(), Type: mapColumnType(c.DatabaseTypeName()), Nullable: nullable}
	}
	return schema, nil
}

func (a *Adapter) ListTables(ctx context.Context) ([]string, error) {
	if !a.connected {
		return nil, adapter.ErrConnection("relational.ListTables", nil, false)
	}
	var q string
	switch a.dialect {
	case DialectMySQL:
		q = "SELECT table_name FROM information_schema.tables WHERE table_schema = database()"
	case DialectSQLite:
		q = "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'"
	default:
		q = "SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema()"
	}
	rows, err := a.db.QueryContext(ctx, q)
	if err != nil {
		return nil, adapter.ErrQuery("relational.ListTables", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, adapter.ErrQuery("relational.ListTables", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (a *Adapter) EstimateCost(ctx context.Context, sub plan.Node) (*adapter.CostEstimate, error) {
	factors := a.Descriptor().CostFactors
	rows := int64(1000) // no statistics subsystem wired to this reference adapter; a fixed prior
	return &adapter.CostEstimate{
		IO:      float64(rows) * factors.IOPerRow,
		CPU:     float64(rows) * factors.CPUPerRow,
		RowsOut: rows,
	}, nil
}

// Execute compiles sub (a Scan, optionally wrapped in Filter/Project/
// Limit) into one parameterized SELECT and streams the result.
func (a *Adapter) Execute(ctx context.Context, sub plan.Node) (adapter.RowIterator, error) {
	if !a.connected {
		return nil, adapter.ErrConnection("relational.Execute", nil, false)
	}
	query, args, err := compile(sub, a.dialect)
	if err != nil {
		return nil, adapter.ErrCapability("relational.Execute", err.Error())
	}
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, adapter.ErrQuery("relational.Execute", err)
	}
	return &sqlIterator{rows: rows}, nil
}

func (a *Adapter) Supports(n plan.Node) bool {
	switch v := n.(type) {
	case *plan.Scan:
		return true
	case *plan.Limit:
		return a.Supports(v.Child)
	case *plan.Filter:
		return a.Supports(v.Child)
	case *plan.Project:
		return a.Supports(v.Child)
	default:
		return false
	}
}

type sqlIterator struct {
	rows *sql.Rows
}

func (s *sqlIterator) Next(ctx context.Context) (*adapter.Batch, error) {
	cols, err := s.rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := s.rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	schema := make(plan.Schema, len(cols))
	for i, c := range cols {
		schema[i] = plan.Column{Name: c, Type: mapColumnType(types[i].DatabaseTypeName())}
	}

	var batch [][]interface{}
	for s.rows.Next() {
		values := make([]interface{}, len(cols))
		scanArgs := make([]interface{}, len(cols))
		for i := range scanArgs {
			scanArgs[i] = &values[i]
		}
		if err := s.rows.Scan(scanArgs...); err != nil {
			return nil, err
		}
		batch = append(batch, values)
		if len(batch) >= 1000 {
			break
		}
	}
	if err := s.rows.Err(); err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return nil, nil
	}
	return &adapter.Batch{Schema: schema, Rows: batch}, nil
}

func (s *sqlIterator) Close() error { return s.rows.Close() }

func mapColumnType(dbType string) plan.ColumnType {
	switch strings.ToUpper(dbType) {
	case "INT", "INT4", "INTEGER", "TINYINT", "SMALLINT":
		return plan.ColumnType{Tag: plan.TInt32}
	case "BIGINT", "INT8":
		return plan.ColumnType{Tag: plan.TInt64}
	case "FLOAT", "FLOAT4", "REAL":
		return plan.ColumnType{Tag: plan.TFloat32}
	case "DOUBLE", "FLOAT8", "DOUBLE PRECISION":
		return plan.ColumnType{Tag: plan.TFloat64}
	case "DECIMAL", "NUMERIC":
		return plan.ColumnType{Tag: plan.TDecimal}
	case "BOOL", "BOOLEAN":
		return plan.ColumnType{Tag: plan.TBool}
	case "DATE":
		return plan.ColumnType{Tag: plan.TDate}
	case "TIME":
		return plan.ColumnType{Tag: plan.TTime}
	case "TIMESTAMP", "DATETIME", "TIMESTAMPTZ":
		return plan.ColumnType{Tag: plan.TTimestamp}
	case "JSON", "JSONB":
		return plan.ColumnType{Tag: plan.TJSON}
	case "BYTEA", "BLOB", "VARBINARY":
		return plan.ColumnType{Tag: plan.TBinary}
	default:
		return plan.ColumnType{Tag: plan.TUTF8}
	}
}
