package c2filter

import (
	"context"
	"encoding/json"
	"testing"

	"verifyscript/pkg/llm"
	"verifyscript/pkg/segment"
)

type fakeBackend struct {
	response string
}

func (f *fakeBackend) Name() string { return "fake" }
func (f *fakeBackend) GenerateText(ctx context.Context, req llm.TextRequest) (string, llm.Usage, error) {
	return "", llm.Usage{}, nil
}
func (f *fakeBackend) GenerateStructured(ctx context.Context, req llm.StructuredRequest) (json.RawMessage, llm.Usage, error) {
	return json.RawMessage(f.response), llm.Usage{}, nil
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

const allPassResponse = `{"gates":[
	{"gate_id":"rebuttability","passed":true,"reason":"r1"},
	{"gate_id":"verifiability","passed":true,"reason":"r2"},
	{"gate_id":"accuracy_at_risk","passed":true,"uncertain":false,"reason":"r3"},
	{"gate_id":"harm","passed":true,"reason":"r4"},
	{"gate_id":"context_sufficiency","passed":true,"reason":"r5"}
]}`

func TestEvaluateAllGatesPass(t *testing.T) {
	fb := &fakeBackend{response: allPassResponse}
	v, err := Evaluate(context.Background(), fb, 0.2, segment.Segment{SegmentID: "seg-1"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !v.Passed {
		t.Fatal("expected verdict to pass")
	}
	if len(v.Gates) != 5 {
		t.Fatalf("expected 5 gate results, got %d", len(v.Gates))
	}
}

func TestEvaluateRejectsOnFirstFailure(t *testing.T) {
	resp := `{"gates":[
		{"gate_id":"rebuttability","passed":true,"reason":"ok"},
		{"gate_id":"verifiability","passed":false,"reason":"too vague"},
		{"gate_id":"accuracy_at_risk","passed":true,"reason":"ok"},
		{"gate_id":"harm","passed":false,"reason":"also fails but gate2 already failed"},
		{"gate_id":"context_sufficiency","passed":true,"reason":"ok"}
	]}`
	fb := &fakeBackend{response: resp}
	v, err := Evaluate(context.Background(), fb, 0.2, segment.Segment{SegmentID: "seg-1"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v.Passed {
		t.Fatal("expected verdict to fail")
	}
	if v.FailedGate != segment.GateVerifiability {
		t.Fatalf("expected first failure at verifiability, got %s", v.FailedGate)
	}
}

func TestEvaluateMarksUncertainAccuracyForVerification(t *testing.T) {
	resp := `{"gates":[
		{"gate_id":"rebuttability","passed":true,"reason":"ok"},
		{"gate_id":"verifiability","passed":true,"reason":"ok"},
		{"gate_id":"accuracy_at_risk","passed":true,"uncertain":true,"reason":"can't be sure, may be outdated"},
		{"gate_id":"harm","passed":true,"reason":"ok"},
		{"gate_id":"context_sufficiency","passed":true,"reason":"ok"}
	]}`
	fb := &fakeBackend{response: resp}
	v, err := Evaluate(context.Background(), fb, 0.2, segment.Segment{SegmentID: "seg-1"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !v.Passed {
		t.Fatal("uncertain gate 3 must still pass, never reject")
	}
	if !v.RequiresVerification {
		t.Fatal("expected RequiresVerification to be set")
	}
}

func TestRunAllPreservesOrder(t *testing.T) {
	fb := &fakeBackend{response: allPassResponse}
	segments := []segment.Segment{{SegmentID: "a"}, {SegmentID: "b"}, {SegmentID: "c"}}
	verdicts, err := RunAll(context.Background(), fb, 0.2, 2, segments)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	for i, want := range []string{"a", "b", "c"} {
		if verdicts[i].SegmentID != want {
			t.Fatalf("verdicts[%d].SegmentID = %q, want %q", i, verdicts[i].SegmentID, want)
		}
	}
}
