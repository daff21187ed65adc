package pipelineerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfUnwrapsWrappedError(t *testing.T) {
	base := New("c3verifier", KindTransient, errors.New("rate limited"))
	wrapped := fmt.Errorf("calling backend: %w", base)

	if got := KindOf(wrapped); got != KindTransient {
		t.Errorf("KindOf(wrapped) = %q, want %q", got, KindTransient)
	}
	if !IsRetryable(wrapped) {
		t.Error("expected wrapped transient error to be retryable")
	}
}

func TestKindOfDefaultsToFatalForUnclassified(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != KindFatal {
		t.Errorf("KindOf(plain) = %q, want %q", got, KindFatal)
	}
}

func TestWithSegmentAndAttemptDoNotMutateOriginal(t *testing.T) {
	base := New("c8rebuttal", KindValidation, errors.New("schema mismatch"))
	withSeg := base.WithSegment("seg-1").WithAttempt(1)

	if base.SegmentID != "" || base.Attempt != 0 {
		t.Fatal("expected original Error to remain unmodified")
	}
	if withSeg.SegmentID != "seg-1" || withSeg.Attempt != 1 {
		t.Fatal("expected derived Error to carry segment and attempt")
	}
	if !IsCorrectable(withSeg) {
		t.Error("expected KindValidation error to be correctable")
	}
}
