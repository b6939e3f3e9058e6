package execution

import (
	"context"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/SamoraDC/algotrading-core/internal/schema"
)

// VenueError carries the venue's HTTP status alongside the underlying
// error, so the retry policy can classify it as transient or terminal
// without string-matching.
type VenueError struct {
	StatusCode int
	Err error
}

func (e *VenueError) Error() string { return e.Err.Error() }
func (e *VenueError) Unwrap() error { return e.Err }

// Transient reports whether err represents a failure that should retry:
// network timeouts (no status code), 5xx, and 429. 4xx validation errors, insufficient balance and unknown-symbol
// responses are terminal.
func Transient(err error) bool {
	ve, ok := err.(*VenueError)
	if !ok {
		return true // no status code at all: a transport-level timeout
	}
	if ve.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return ve.StatusCode >= 500
}

// RetryPolicy wraps an operation with exponential backoff + jitter: one
// initial attempt plus up to MaxRetries retries, retrying only while
// Transient(err) holds.
type RetryPolicy struct {
	MaxRetries int
	InitialWait time.Duration
	MaxWait time.Duration
}

// Do runs op, retrying transient failures per the configured policy. A
// terminal (non-transient) failure returns immediately without consuming
// further attempts.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialWait
	bo.MaxInterval = p.MaxWait
	bo.MaxElapsedTime = 0

	var attempts int
	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		attempts++
		if !Transient(err) {
			return backoff.Permanent(err)
		}
		if attempts > p.MaxRetries {
			return backoff.Permanent(schema.NewError(schema.ErrOrderRejection, "max retries exceeded", err))
		}
		return err
	}

	return backoff.Retry(wrapped, backoff.WithContext(bo, ctx))
}
