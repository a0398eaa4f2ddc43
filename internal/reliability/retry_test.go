package reliability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapunk/lakequery/internal/queryerr"
)

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), BackoffPolicy{InitialInterval: time.Millisecond, Factor: 1, MaxInterval: time.Millisecond, MaxAttempts: 5}, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return queryerr.New(queryerr.KindAdapter, "scan", "connection_reset", "reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_PermanentErrorSurfacesImmediately(t *testing.T) {
	attempts := 0
	permanent := queryerr.New(queryerr.KindAdapter, "scan", "schema_mismatch", "mismatch", queryerr.WithRetriable(false))
	err := Retry(context.Background(), DefaultBackoff(), func(ctx context.Context) error {
		attempts++
		return permanent
	})
	assert.Equal(t, permanent, err)
	assert.Equal(t, 1, attempts)
}

func TestRetry_NonAdapterErrorNeverRetried(t *testing.T) {
	attempts := 0
	validationErr := queryerr.New(queryerr.KindValidation, "plan", "bad_type", "bad type")
	err := Retry(context.Background(), DefaultBackoff(), func(ctx context.Context) error {
		attempts++
		return validationErr
	})
	assert.Equal(t, validationErr, err)
	assert.Equal(t, 1, attempts)
}

func TestRetry_BoundedByDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	attempts := 0
	err := Retry(ctx, BackoffPolicy{InitialInterval: 10 * time.Millisecond, Factor: 2, MaxInterval: time.Second, MaxAttempts: 0}, func(ctx context.Context) error {
		attempts++
		return queryerr.New(queryerr.KindAdapter, "scan", "timeout", "timeout")
	})
	require.Error(t, err)
	assert.Greater(t, attempts, 0)
}
