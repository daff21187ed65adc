package c1analyzer

import (
	"context"
	"encoding/json"
	"testing"

	"verifyscript/pkg/episode"
	"verifyscript/pkg/llm"
	"verifyscript/pkg/segment"
	"verifyscript/pkg/transcript"
)

type fakeBackend struct {
	responses []string
	calls     int
}

func (f *fakeBackend) Name() string { return "fake" }
func (f *fakeBackend) GenerateText(ctx context.Context, req llm.TextRequest) (string, llm.Usage, error) {
	return "", llm.Usage{}, nil
}
func (f *fakeBackend) GenerateStructured(ctx context.Context, req llm.StructuredRequest) (json.RawMessage, llm.Usage, error) {
	return nil, llm.Usage{}, nil
}
func (f *fakeBackend) GenerateWithWebSearch(ctx context.Context, req llm.WebSearchRequest) (string, []segment.Source, llm.Usage, error) {
	return "", nil, llm.Usage{}, nil
}
func (f *fakeBackend) UploadArtifact(ctx context.Context, path string) (llm.ArtifactRef, error) {
	return llm.ArtifactRef{URI: "fake://" + path}, nil
}
func (f *fakeBackend) GenerateWithArtifact(ctx context.Context, req llm.ArtifactRequest) (string, llm.Usage, error) {
	resp := f.responses[f.calls]
	f.calls++
	return resp, llm.Usage{}, nil
}

func sampleTranscript() *transcript.Transcript {
	tr, err := transcript.Parse([]byte(`{"segments":[
		{"start":0,"end":10,"speaker":"host","text":"Welcome to the show."},
		{"start":10,"end":20,"speaker":"guest","text":"Charlie Kirk is dead, everyone knows it."}
	]}`))
	if err != nil {
		panic(err)
	}
	return tr
}

const validResponse = `{"segments":[{"segment_id":"seg-1","title":"t","primary_speaker":"guest","severity_hint":"high","harm_category":{"primary":"misinformation"},"confidence":0.9,"reasoning":"r","clip_context_description":"c","quotes":[{"timestamp":10,"speaker":"guest","quote":"Charlie Kirk is dead, everyone knows it."}],"context_range":{"start":10,"end":20},"duration_seconds":10}]}`

func TestRunSucceedsOnFirstValidResponse(t *testing.T) {
	fb := &fakeBackend{responses: []string{validResponse}}
	in := Input{
		Transcript:     sampleTranscript(),
		TranscriptPath: "/tmp/transcript.json",
		Metadata:       episode.Metadata{EpisodeTitle: "Ep 1", HostName: "Host"},
		HostRules:      "rules",
		MaxCandidates:  20,
	}
	result, err := Run(context.Background(), fb, 0.2, in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(result.Segments))
	}
	if fb.calls != 1 {
		t.Fatalf("expected 1 call, got %d", fb.calls)
	}
}

func TestRunRecoversAfterOneCorrection(t *testing.T) {
	badResponse := `{"segments":[{"segment_id":"seg-1","quotes":[{"timestamp":10,"speaker":"guest","quote":"this quote does not exist in the transcript"}],"context_range":{"start":10,"end":20}}]}`
	fb := &fakeBackend{responses: []string{badResponse, validResponse}}
	in := Input{
		Transcript:     sampleTranscript(),
		TranscriptPath: "/tmp/transcript.json",
		Metadata:       episode.Metadata{EpisodeTitle: "Ep 1", HostName: "Host"},
		HostRules:      "rules",
		MaxCandidates:  20,
	}
	result, err := Run(context.Background(), fb, 0.2, in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Segments) != 1 {
		t.Fatalf("expected 1 segment after correction, got %d", len(result.Segments))
	}
	if fb.calls != 2 {
		t.Fatalf("expected 2 calls (original + correction), got %d", fb.calls)
	}
}

func TestRunFailsFatallyAfterSecondValidationFailure(t *testing.T) {
	badResponse := `{"segments":[{"segment_id":"seg-1","quotes":[{"timestamp":10,"speaker":"guest","quote":"nonexistent"}],"context_range":{"start":10,"end":20}}]}`
	fb := &fakeBackend{responses: []string{badResponse, badResponse}}
	in := Input{
		Transcript:     sampleTranscript(),
		TranscriptPath: "/tmp/transcript.json",
		Metadata:       episode.Metadata{EpisodeTitle: "Ep 1", HostName: "Host"},
		HostRules:      "rules",
		MaxCandidates:  20,
	}
	if _, err := Run(context.Background(), fb, 0.2, in); err == nil {
		t.Fatal("expected error after exhausting the single correction retry")
	}
	if fb.calls != 2 {
		t.Fatalf("expected exactly 2 calls, got %d", fb.calls)
	}
}

func TestRunCapsAtMaxCandidates(t *testing.T) {
	two := `{"segments":[
		{"segment_id":"seg-1","quotes":[{"timestamp":10,"speaker":"guest","quote":"Charlie Kirk is dead, everyone knows it."}],"context_range":{"start":10,"end":20}},
		{"segment_id":"seg-2","quotes":[{"timestamp":0,"speaker":"host","quote":"Welcome to the show."}],"context_range":{"start":0,"end":10}}
	]}`
	fb := &fakeBackend{responses: []string{two}}
	in := Input{
		Transcript:     sampleTranscript(),
		TranscriptPath: "/tmp/transcript.json",
		Metadata:       episode.Metadata{EpisodeTitle: "Ep 1", HostName: "Host"},
		HostRules:      "rules",
		MaxCandidates:  1,
	}
	result, err := Run(context.Background(), fb, 0.2, in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Segments) != 1 {
		t.Fatalf("expected cap to 1 segment, got %d", len(result.Segments))
	}
}
