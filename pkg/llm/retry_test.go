package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"verifyscript/pkg/segment"
)

type fakeBackend struct {
	calls   int
	fail    int // number of leading calls that fail
	permErr error
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) GenerateText(ctx context.Context, req TextRequest) (string, Usage, error) {
	f.calls++
	if f.permErr != nil {
		return "", Usage{}, f.permErr
	}
	if f.calls <= f.fail {
		return "", Usage{}, MarkTransient(errors.New("temporary failure"))
	}
	return "ok", Usage{}, nil
}

func (f *fakeBackend) GenerateStructured(ctx context.Context, req StructuredRequest) (json.RawMessage, Usage, error) {
	return nil, Usage{}, nil
}
func (f *fakeBackend) GenerateWithWebSearch(ctx context.Context, req WebSearchRequest) (string, []segment.Source, Usage, error) {
	return "", nil, Usage{}, nil
}
func (f *fakeBackend) UploadArtifact(ctx context.Context, path string) (ArtifactRef, error) {
	return ArtifactRef{}, nil
}
func (f *fakeBackend) GenerateWithArtifact(ctx context.Context, req ArtifactRequest) (string, Usage, error) {
	return "", Usage{}, nil
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	fb := &fakeBackend{fail: 2}
	rb := NewRetryBackend(fb, 0, 0)

	text, _, err := rb.GenerateText(context.Background(), TextRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if text != "ok" {
		t.Fatalf("expected ok, got %q", text)
	}
	if fb.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", fb.calls)
	}
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	fb := &fakeBackend{fail: retryMaxAttempt + 5}
	rb := NewRetryBackend(fb, 0, 0)

	_, _, err := rb.GenerateText(context.Background(), TextRequest{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if fb.calls != retryMaxAttempt {
		t.Fatalf("expected %d calls, got %d", retryMaxAttempt, fb.calls)
	}
}

func TestRetryDoesNotRetryNonTransient(t *testing.T) {
	fb := &fakeBackend{permErr: errors.New("bad request")}
	rb := NewRetryBackend(fb, 0, 0)

	_, _, err := rb.GenerateText(context.Background(), TextRequest{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if fb.calls != 1 {
		t.Fatalf("expected exactly 1 call for non-transient error, got %d", fb.calls)
	}
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	if backoffDelay(1) != retryBaseDelay {
		t.Fatalf("attempt 1 should be base delay, got %v", backoffDelay(1))
	}
	if backoffDelay(2) != retryBaseDelay*2 {
		t.Fatalf("attempt 2 should double, got %v", backoffDelay(2))
	}
	if backoffDelay(20) != retryCapDelay {
		t.Fatalf("large attempt should cap at %v, got %v", retryCapDelay, backoffDelay(20))
	}
}
