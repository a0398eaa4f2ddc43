package adapter

import "github.com/datapunk/lakequery/internal/queryerr"

// Error codes for the categorised adapter failures spec.md §4.4 names:
// connection, schema, query, capability.
const (
	CodeConnection = "connection"
	CodeSchema     = "schema"
	CodeQuery      = "query"
	CodeCapability = "capability"
)

// ErrConnection wraps a connection-establishment failure. Connection
// resets and timeouts are transient and retriable per spec.md §4.11.
func ErrConnection(stage string, cause error, transient bool) *queryerr.Error {
	return queryerr.New(queryerr.KindAdapter, stage, CodeConnection, "adapter connection failed", queryerr.WithCause(cause), queryerr.WithRetriable(transient))
}

// ErrSchema reports a schema mismatch or introspection failure. Schema
// errors are permanent per spec.md §4.11.
func ErrSchema(stage string, cause error) *queryerr.Error {
	return queryerr.New(queryerr.KindAdapter, stage, CodeSchema, "adapter schema error", queryerr.WithCause(cause), queryerr.WithRetriable(false))
}

// ErrQuery reports a subplan the adapter could not execute.
func ErrQuery(stage string, cause error) *queryerr.Error {
	return queryerr.New(queryerr.KindAdapter, stage, CodeQuery, "adapter query failed", queryerr.WithCause(cause), queryerr.WithRetriable(false))
}

// ErrCapability reports that no capability covers the requested plan
// shape.
func ErrCapability(stage, detail string) *queryerr.Error {
	return queryerr.New(queryerr.KindAdapter, stage, CodeCapability, "adapter capability: "+detail, queryerr.WithRetriable(false))
}
