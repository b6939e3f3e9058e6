package execution

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTransient_ClassifiesByStatusCode(t *testing.T) {
	require.True(t, Transient(&VenueError{StatusCode: http.StatusTooManyRequests, Err: errors.New("rate limited")}))
	require.True(t, Transient(&VenueError{StatusCode: http.StatusInternalServerError, Err: errors.New("boom")}))
	require.False(t, Transient(&VenueError{StatusCode: http.StatusBadRequest, Err: errors.New("bad request")}))
	require.False(t, Transient(&VenueError{StatusCode: http.StatusUnprocessableEntity, Err: errors.New("insufficient balance")}))
	require.True(t, Transient(errors.New("dial tcp: i/o timeout"))) // no status code: transport timeout
}

func TestRetryPolicy_TerminalFailureStopsImmediately(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 5, InitialWait: time.Millisecond, MaxWait: 10 * time.Millisecond}
	attempts := 0

	err := policy.Do(context.Background(), func() error {
		attempts++
		return &VenueError{StatusCode: http.StatusBadRequest, Err: errors.New("symbol unknown")}
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestRetryPolicy_TransientFailureRetriesUpToMax(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond}
	attempts := 0

	err := policy.Do(context.Background(), func() error {
		attempts++
		return &VenueError{StatusCode: http.StatusServiceUnavailable, Err: errors.New("down")}
	})
	require.Error(t, err)
	require.Equal(t, 4, attempts) // initial attempt + 3 retries
}

func TestRetryPolicy_SucceedsAfterTransientFailures(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 5, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond}
	attempts := 0

	err := policy.Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return &VenueError{StatusCode: http.StatusServiceUnavailable, Err: errors.New("down")}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}
