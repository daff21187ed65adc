// Package pipelineerr classifies pipeline failures by kind (spec §7), so the
// orchestrator can decide whether to retry, run the single sanctioned
// correction pass, drop a segment, or fail the run outright. Grounded on the
// teacher's use of plain wrapped stdlib errors throughout pkg/workspace and
// pkg/llm — the teacher never reaches for an errors library (pkg/errors,
// multierr), so this package stays on errors.Is/As/wrapping rather than
// introducing one.
package pipelineerr

import (
	"errors"
	"fmt"
)

// Kind classifies why a stage failed.
type Kind string

const (
	// Transient is a retryable failure: rate limit, network blip, 5xx.
	KindTransient Kind = "transient"
	// Validation means the model's structured output failed schema or
	// invariant validation; eligible for exactly one correction retry.
	KindValidation Kind = "validation"
	// Semantic means the model's output parsed and validated but violates
	// a pipeline invariant that validation-retry cannot fix mechanically
	// (e.g. a rebuttal verifier that stays BLOCKED after correction).
	KindSemantic Kind = "semantic"
	// Configuration means the run cannot proceed due to a config or input
	// problem; never retried.
	KindConfiguration Kind = "configuration"
	// Fatal means an unrecoverable error the orchestrator must abort on.
	KindFatal Kind = "fatal"
)

// Error is a typed pipeline failure carrying the stage and segment it
// occurred in, its Kind, and how many correction attempts have already been
// made for this occurrence (spec §7's retry-history context).
type Error struct {
	Stage     string
	SegmentID string
	Kind      Kind
	Attempt   int
	Err       error
}

func (e *Error) Error() string {
	if e.SegmentID != "" {
		return fmt.Sprintf("%s[%s] (%s, attempt %d): %v", e.Stage, e.SegmentID, e.Kind, e.Attempt, e.Err)
	}
	return fmt.Sprintf("%s (%s, attempt %d): %v", e.Stage, e.Kind, e.Attempt, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err as a pipeline Error of the given kind.
func New(stage string, kind Kind, err error) *Error {
	return &Error{Stage: stage, Kind: kind, Err: err}
}

// WithSegment attaches a segment id, returning a new Error value.
func (e *Error) WithSegment(segmentID string) *Error {
	cp := *e
	cp.SegmentID = segmentID
	return &cp
}

// WithAttempt attaches a retry/correction attempt count, returning a new
// Error value.
func (e *Error) WithAttempt(attempt int) *Error {
	cp := *e
	cp.Attempt = attempt
	return &cp
}

// KindOf extracts the Kind of err if it (or something it wraps) is a
// *Error, defaulting to KindFatal for unclassified errors so the
// orchestrator never silently retries something it doesn't understand.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindFatal
}

// IsRetryable reports whether the orchestrator should retry the call that
// produced err under the backoff policy (spec §7: only KindTransient).
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}

// IsCorrectable reports whether err is eligible for the single sanctioned
// correction retry (spec §7: only KindValidation).
func IsCorrectable(err error) bool {
	return KindOf(err) == KindValidation
}
