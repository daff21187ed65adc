package llm

import (
	"testing"

	"google.golang.org/genai"
)

func TestUsageOfNilMetadata(t *testing.T) {
	got := usageOf(&genai.GenerateContentResponse{})
	if got != (Usage{}) {
		t.Errorf("usageOf with nil UsageMetadata = %+v, want zero value", got)
	}
}

func TestUsageOfPopulatedMetadata(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     10,
			CandidatesTokenCount: 5,
			ThoughtsTokenCount:   2,
			TotalTokenCount:      17,
		},
	}
	want := Usage{PromptTokens: 10, CompletionTokens: 5, ThoughtsTokens: 2, TotalTokens: 17}
	if got := usageOf(resp); got != want {
		t.Errorf("usageOf = %+v, want %+v", got, want)
	}
}

func TestSourcesOfNilGroundingMetadata(t *testing.T) {
	got := sourcesOf(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}})
	if got != nil {
		t.Errorf("sourcesOf with nil GroundingMetadata = %+v, want nil", got)
	}
}

// TestSourcesOfJoinsSupportSnippet covers the gap a reviewer flagged:
// GroundingChunks alone only carry a URL and title, never a snippet. The
// supporting excerpt lives on GroundingSupports and must be joined back by
// GroundingChunkIndices for a source to satisfy spec §4.3.
func TestSourcesOfJoinsSupportSnippet(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			GroundingMetadata: &genai.GroundingMetadata{
				GroundingChunks: []*genai.GroundingChunk{
					{Web: &genai.GroundingChunkWeb{URI: "https://example.com/a", Title: "A report"}},
					{Web: &genai.GroundingChunkWeb{URI: "https://example.com/b", Title: "B report"}},
				},
				GroundingSupports: []*genai.GroundingSupport{
					{
						Segment:               &genai.Segment{Text: "the claim is false"},
						GroundingChunkIndices: []int32{0},
					},
					{
						Segment:               &genai.Segment{Text: "independent reporting agrees"},
						GroundingChunkIndices: []int32{0, 1},
					},
				},
			},
		}},
	}
	got := sourcesOf(resp)
	if len(got) != 2 {
		t.Fatalf("sourcesOf returned %d sources, want 2: %+v", len(got), got)
	}
	if got[0].Snippet != "the claim is false independent reporting agrees" {
		t.Errorf("sources[0].Snippet = %q", got[0].Snippet)
	}
	if got[1].Snippet != "independent reporting agrees" {
		t.Errorf("sources[1].Snippet = %q", got[1].Snippet)
	}
	for _, s := range got {
		if s.Title == "" || s.Snippet == "" {
			t.Errorf("source %+v missing title or snippet", s)
		}
	}
}

// TestSourcesOfDropsChunksWithoutWeb covers a GroundingChunk whose Web field
// is nil (e.g. a RetrievedContext-only chunk): it must not surface as a
// blank placeholder source.
func TestSourcesOfDropsChunksWithoutWeb(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			GroundingMetadata: &genai.GroundingMetadata{
				GroundingChunks: []*genai.GroundingChunk{
					{Web: &genai.GroundingChunkWeb{URI: "https://example.com/a", Title: "A report"}},
					{},
				},
				GroundingSupports: []*genai.GroundingSupport{
					{Segment: &genai.Segment{Text: "the claim is false"}, GroundingChunkIndices: []int32{0}},
				},
			},
		}},
	}
	got := sourcesOf(resp)
	if len(got) != 1 {
		t.Fatalf("sourcesOf returned %d sources, want 1: %+v", len(got), got)
	}
	if got[0].URL != "https://example.com/a" {
		t.Errorf("sources[0].URL = %q", got[0].URL)
	}
}
