package c8rebuttal

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"verifyscript/pkg/llm"
	"verifyscript/pkg/segment"
)

type fakeBackend struct {
	verifyCalls    int
	passOnAttempt  int // verify call number (1-indexed) that should pass
}

func (f *fakeBackend) Name() string { return "fake" }
func (f *fakeBackend) GenerateText(ctx context.Context, req llm.TextRequest) (string, llm.Usage, error) {
	return "", llm.Usage{}, nil
}
func (f *fakeBackend) GenerateStructured(ctx context.Context, req llm.StructuredRequest) (json.RawMessage, llm.Usage, error) {
	if strings.Contains(req.Prompt, `"gates"`) {
		f.verifyCalls++
		if f.verifyCalls >= f.passOnAttempt {
			return json.RawMessage(`{"gates": [{"gate_id":"grounded","passed":true,"reason":"ok"},{"gate_id":"on_target","passed":true,"reason":"ok"},{"gate_id":"tone_consistent","passed":true,"reason":"ok"},{"gate_id":"safe","passed":true,"reason":"ok"}]}`), llm.Usage{}, nil
		}
		return json.RawMessage(`{"gates": [{"gate_id":"grounded","passed":false,"reason":"bare assertion"},{"gate_id":"on_target","passed":true,"reason":"ok"},{"gate_id":"tone_consistent","passed":true,"reason":"ok"},{"gate_id":"safe","passed":true,"reason":"ok"}]}`), llm.Usage{}, nil
	}
	return json.RawMessage(`{"rebuttal_text": "a 2019 meta-analysis by named author found the opposite"}`), llm.Usage{}, nil
}
func (f *fakeBackend) GenerateWithWebSearch(ctx context.Context, req llm.WebSearchRequest) (string, []segment.Source, llm.Usage, error) {
	return "", nil, llm.Usage{}, nil
}
func (f *fakeBackend) UploadArtifact(ctx context.Context, path string) (llm.ArtifactRef, error) {
	return llm.ArtifactRef{}, nil
}
func (f *fakeBackend) GenerateWithArtifact(ctx context.Context, req llm.ArtifactRequest) (string, llm.Usage, error) {
	return "", llm.Usage{}, nil
}

func mkSelected(id string) segment.SelectedSegment {
	return segment.SelectedSegment{
		Annotated: segment.Annotated{
			Segment: segment.Segment{
				SegmentID: id,
				Title:     "title",
				Quotes:    []segment.Quote{{Timestamp: 1, Quote: "q"}},
			},
		},
	}
}

func TestRunOneAcceptsAfterOneRewrite(t *testing.T) {
	backend := &fakeBackend{passOnAttempt: 2}
	cfg := Config{MaxAttempts: 3, BlockedPolicy: "drop_segment"}

	result, err := RunOne(context.Background(), backend, cfg, "persona text", mkSelected("s1"), "studies show X")
	if err != nil {
		t.Fatalf("RunOne: %v", err)
	}
	if result.State != StateAccepted {
		t.Fatalf("expected StateAccepted, got %s", result.State)
	}
	if len(result.Attempts) != 2 {
		t.Fatalf("expected 2 attempts (1 rewrite), got %d", len(result.Attempts))
	}
	if result.FinalText == "studies show X" {
		t.Errorf("expected final text to be the rewritten draft")
	}
}

func TestRunOneBlocksAfterExhaustingAttempts(t *testing.T) {
	backend := &fakeBackend{passOnAttempt: 1000}
	cfg := Config{MaxAttempts: 2, BlockedPolicy: "drop_segment"}

	result, err := RunOne(context.Background(), backend, cfg, "persona text", mkSelected("s1"), "studies show X")
	if err != nil {
		t.Fatalf("RunOne: %v", err)
	}
	if result.State != StateBlocked {
		t.Fatalf("expected StateBlocked, got %s", result.State)
	}
	if len(result.Attempts) != cfg.MaxAttempts+1 {
		t.Fatalf("expected %d attempts, got %d", cfg.MaxAttempts+1, len(result.Attempts))
	}
}
