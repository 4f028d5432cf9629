package model

import (
	"context"
	"time"
)

// Retrying re-issues failed generations. Only failures that happen before
// the first response chunk are retried; once output has been forwarded the
// error is passed through.
type Retrying struct {
	inner    Model
	attempts int
	backoff  time.Duration
}

// WithRetry wraps m so that up to attempts calls are made. The delay grows
// linearly with backoff.
func WithRetry(m Model, attempts int, backoff time.Duration) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	return &Retrying{inner: m, attempts: attempts, backoff: backoff}
}

// Generate implements Model.
func (r *Retrying) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	out := make(chan Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		var lastErr error
		for attempt := 1; attempt <= r.attempts; attempt++ {
			if attempt > 1 {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case <-time.After(time.Duration(attempt-1) * r.backoff):
				}
			}

			forwarded := false
			respCh, innerErr := r.inner.Generate(ctx, req)
			for resp := range respCh {
				forwarded = true
				out <- resp
			}

			lastErr = <-innerErr
			if lastErr == nil {
				return
			}
			if forwarded || ctx.Err() != nil {
				break
			}
		}

		errCh <- lastErr
	}()

	return out, errCh
}

// Info implements Model.
func (r *Retrying) Info() Info { return r.inner.Info() }
