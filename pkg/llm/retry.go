package llm

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"verifyscript/pkg/segment"
)

// Retry parameters from spec §7: exponential backoff starting at 1s,
// doubling each attempt, capped at 30s, at most 4 attempts total.
const (
	retryBaseDelay  = time.Second
	retryFactor     = 2
	retryCapDelay   = 30 * time.Second
	retryMaxAttempt = 4
)

// Transient marks an error returned by a Backend call as retryable under the
// backoff policy above. Only errors wrapped with MarkTransient are retried;
// the Google and Ark backends return their errors unwrapped, so RetryBackend
// passes those through without retrying. The backoff loop mirrors the
// teacher's pkg/volc/client.go hand-rolled loop, generalized into a reusable
// decorator instead of being duplicated per caller.
type Transient struct {
	Err error
}

func (t *Transient) Error() string { return t.Err.Error() }
func (t *Transient) Unwrap() error { return t.Err }

// MarkTransient wraps err so RetryBackend's backoff loop will retry it.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &Transient{Err: err}
}

func isTransient(err error) bool {
	var t *Transient
	return errors.As(err, &t)
}

// backoffDelay returns the delay before the given 1-indexed retry attempt.
func backoffDelay(attempt int) time.Duration {
	d := retryBaseDelay
	for i := 1; i < attempt; i++ {
		d *= retryFactor
		if d > retryCapDelay {
			return retryCapDelay
		}
	}
	if d > retryCapDelay {
		d = retryCapDelay
	}
	return d
}

// RetryBackend decorates a Backend with exponential-backoff retry on
// transient errors and optional per-backend rate limiting, grounded on the
// teacher's hand-rolled `1 << uint(attempt-1)` backoff in
// pkg/volc/client/client.go generalized from one call site into a Backend
// decorator usable by every pipeline stage.
type RetryBackend struct {
	inner   Backend
	limiter *rate.Limiter
}

// NewRetryBackend wraps inner with backoff retry. If rps > 0, calls are also
// throttled to that steady rate with a burst of burst (pass 0 for no
// limiting).
func NewRetryBackend(inner Backend, rps float64, burst int) *RetryBackend {
	rb := &RetryBackend{inner: inner}
	if rps > 0 {
		rb.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return rb
}

func (b *RetryBackend) Name() string { return b.inner.Name() }

func (b *RetryBackend) wait(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	return b.limiter.Wait(ctx)
}

// do runs fn up to retryMaxAttempt times, sleeping with exponential backoff
// between attempts as long as the error is marked Transient. The last
// error (transient or not) is returned if every attempt fails.
func do[T any](ctx context.Context, b *RetryBackend, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 1; attempt <= retryMaxAttempt; attempt++ {
		if err := b.wait(ctx); err != nil {
			return zero, err
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !isTransient(err) || attempt == retryMaxAttempt {
			return zero, err
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoffDelay(attempt)):
		}
	}
	return zero, lastErr
}

func (b *RetryBackend) GenerateText(ctx context.Context, req TextRequest) (string, Usage, error) {
	type pair struct {
		text  string
		usage Usage
	}
	p, err := do(ctx, b, func(ctx context.Context) (pair, error) {
		text, usage, err := b.inner.GenerateText(ctx, req)
		return pair{text, usage}, err
	})
	return p.text, p.usage, err
}

func (b *RetryBackend) GenerateStructured(ctx context.Context, req StructuredRequest) (json.RawMessage, Usage, error) {
	type pair struct {
		raw   json.RawMessage
		usage Usage
	}
	p, err := do(ctx, b, func(ctx context.Context) (pair, error) {
		raw, usage, err := b.inner.GenerateStructured(ctx, req)
		return pair{raw, usage}, err
	})
	return p.raw, p.usage, err
}

func (b *RetryBackend) GenerateWithWebSearch(ctx context.Context, req WebSearchRequest) (string, []segment.Source, Usage, error) {
	type triple struct {
		text    string
		sources []segment.Source
		usage   Usage
	}
	p, err := do(ctx, b, func(ctx context.Context) (triple, error) {
		text, sources, usage, err := b.inner.GenerateWithWebSearch(ctx, req)
		return triple{text, sources, usage}, err
	})
	return p.text, p.sources, p.usage, err
}

func (b *RetryBackend) UploadArtifact(ctx context.Context, path string) (ArtifactRef, error) {
	return do(ctx, b, func(ctx context.Context) (ArtifactRef, error) {
		return b.inner.UploadArtifact(ctx, path)
	})
}

func (b *RetryBackend) GenerateWithArtifact(ctx context.Context, req ArtifactRequest) (string, Usage, error) {
	type pair struct {
		text  string
		usage Usage
	}
	p, err := do(ctx, b, func(ctx context.Context) (pair, error) {
		text, usage, err := b.inner.GenerateWithArtifact(ctx, req)
		return pair{text, usage}, err
	})
	return p.text, p.usage, err
}
