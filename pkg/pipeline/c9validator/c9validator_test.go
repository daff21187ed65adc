package c9validator

import (
	"context"
	"encoding/json"
	"testing"

	"verifyscript/pkg/llm"
	"verifyscript/pkg/segment"
)

type fakeBackend struct{}

func (f *fakeBackend) Name() string { return "fake" }
func (f *fakeBackend) GenerateText(ctx context.Context, req llm.TextRequest) (string, llm.Usage, error) {
	return "", llm.Usage{}, nil
}
func (f *fakeBackend) GenerateStructured(ctx context.Context, req llm.StructuredRequest) (json.RawMessage, llm.Usage, error) {
	return json.RawMessage(`{"kind": "confirmed_false", "rationale": "the cited study does not exist"}`), llm.Usage{}, nil
}
func (f *fakeBackend) GenerateWithWebSearch(ctx context.Context, req llm.WebSearchRequest) (string, []segment.Source, llm.Usage, error) {
	return "no such study found", []segment.Source{{URL: "https://example.com", Title: "retraction notice", Snippet: "no record of the cited study"}}, llm.Usage{}, nil
}
func (f *fakeBackend) UploadArtifact(ctx context.Context, path string) (llm.ArtifactRef, error) {
	return llm.ArtifactRef{}, nil
}
func (f *fakeBackend) GenerateWithArtifact(ctx context.Context, req llm.ArtifactRequest) (string, llm.Usage, error) {
	return "", llm.Usage{}, nil
}

func TestValidateAttachesSourcesForNonApplicableVerdict(t *testing.T) {
	v, err := Validate(context.Background(), &fakeBackend{}, 0.1, "s1", "a 2019 study by nobody found X")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if v.Kind != segment.ConfirmedFalse {
		t.Fatalf("expected confirmed_false, got %s", v.Kind)
	}
	if len(v.Sources) == 0 {
		t.Errorf("expected at least one source attached")
	}
}

func TestRunAllPreservesOrder(t *testing.T) {
	targets := []Target{{SegmentID: "a", RebuttalText: "x"}, {SegmentID: "b", RebuttalText: "y"}}
	results, err := RunAll(context.Background(), &fakeBackend{}, 0.1, 2, targets)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if results[0].SegmentID != "a" || results[1].SegmentID != "b" {
		t.Fatalf("expected order preserved, got %+v", results)
	}
}
