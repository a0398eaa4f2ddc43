// Package reliability retries transient adapter errors with exponential
// backoff bounded by a per-query deadline (spec.md §4.11 failure
// semantics, §7 propagation policy). Permanent adapter errors and every
// other error kind surface immediately — only KindAdapter errors marked
// Retriable go through this package.
package reliability

import (
	"context"
	"time"

	"github.com/datapunk/lakequery/internal/queryerr"
)

// BackoffPolicy configures the exponential backoff applied between retry
// attempts of a transient adapter operation.
type BackoffPolicy struct {
	InitialInterval time.Duration
	Factor          float64
	MaxInterval     time.Duration
	MaxAttempts     int // 0 = unlimited, bounded only by the deadline
}

// DefaultBackoff starts at 200ms and doubles the interval per attempt
// up to 5s, for at most 5 attempts. It departs from the teacher's
// ErrorRecoveryManager defaults (3 retries, 1s initial interval) and
// adds a growth factor where the teacher's strategy object left
// BackoffFactor at 1.0 (no growth) for most error types.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		InitialInterval: 200 * time.Millisecond,
		Factor:          2.0,
		MaxInterval:     5 * time.Second,
		MaxAttempts:     5,
	}
}

// Operation is a unit of adapter work that may fail transiently.
type Operation func(ctx context.Context) error

// Retry runs op, retrying on transient failures (errors classified as
// KindAdapter with Retriable true) until it succeeds, a non-retriable
// error occurs, attempts are exhausted, or ctx's deadline (the query
// deadline) is reached. Permanent adapter errors and any other error
// kind are returned immediately without retry, per spec.md §7.
func Retry(ctx context.Context, policy BackoffPolicy, op Operation) error {
	interval := policy.InitialInterval
	var lastErr error

	for attempt := 0; policy.MaxAttempts == 0 || attempt < policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return queryerr.New(queryerr.KindTimeout, "adapter-retry", "deadline_exceeded", "query deadline reached during retry", queryerr.WithCause(err))
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		qe, isAdapter := queryerr.As(err, queryerr.KindAdapter)
		if !isAdapter || !qe.Retriable {
			return err
		}

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(interval):
		}

		interval = time.Duration(float64(interval) * policy.Factor)
		if interval > policy.MaxInterval {
			interval = policy.MaxInterval
		}
	}
	return lastErr
}
