// Package c1analyzer implements C1, the Transcript Analyzer (spec §4.1): a
// single LLM call over the full transcript as an uploaded artifact, emitting
// candidate Segments with verbatim quotes, timestamps, and harm/rhetoric
// metadata. Grounded on the teacher's pkg/evalv2.Generator.GenerateContext,
// which is the teacher's one example of an artifact-backed generation call
// (audio bytes + text prompt, structured JSON response) — generalized here
// from an uploaded audio blob to an uploaded transcript document, and from
// inline ResponseSchema to a backend-agnostic artifact prompt since
// GenerateWithArtifact (§6's upload_artifact/generate_with_artifact pair)
// does not combine with ResponseSchema on every backend.
package c1analyzer

import (
	"context"
	"encoding/json"
	"fmt"

	"verifyscript/pkg/episode"
	"verifyscript/pkg/llm"
	"verifyscript/pkg/pipelineerr"
	"verifyscript/pkg/prompt"
	"verifyscript/pkg/segment"
	"verifyscript/pkg/transcript"
)

const stageName = "c1analyzer"

// Input bundles everything C1 needs to produce candidate segments.
type Input struct {
	Transcript     *transcript.Transcript
	TranscriptPath string // path to the on-disk transcript JSON, for UploadArtifact
	Metadata       episode.Metadata
	HostRules      string // free text, resolved from Metadata.AnalysisRulesRef by the caller
	HostProfile    string // free text, optional
	MaxCandidates  int    // spec §4.1 "cap of ~20 candidates, proportional to duration"
}

// Result is C1's durable artifact: the ordered candidate segments.
type Result struct {
	Segments []segment.Segment `json:"segments"`
}

type responseDoc struct {
	Segments []segment.Segment `json:"segments"`
}

var analysisTemplate = prompt.Must("c1_analysis", `You are analyzing a podcast/interview transcript for {{.Metadata.EpisodeTitle}}, hosted by {{.Metadata.HostName}}{{if .Metadata.GuestName}} with guest {{.Metadata.GuestName}}{{end}}.

### Host analysis rules

{{.HostRules | prefix "> "}}

{{if .HostProfile}}### Host/guest profile

{{.HostProfile | prefix "> "}}

{{end}}### Task

The full diarized transcript is attached as a document. Identify up to {{.MaxCandidates}} candidate segments worth a substantive rebuttal, following the host analysis rules above. For each segment:

1. Extract quotes with exact timestamps drawn VERBATIM from the transcript — never paraphrase a quote.
2. Classify the segment's harm_category (primary + optional subtypes), rhetorical_strategies, and societal_impacts.
3. Set context_range so that context_range.start <= the earliest quote timestamp and context_range.end >= the latest quote timestamp.
4. Give a confidence (0.0-1.0), a severity_hint (a rough label; downstream scoring treats this as a hint, not ground truth), a one-paragraph reasoning, and a clip_context_description a listener would need without having heard the full episode.

Respond with JSON only, matching exactly this shape and no commentary:
{"segments": [{"segment_id": "string", "title": "string", "primary_speaker": "string", "severity_hint": "string", "harm_category": {"primary": "string", "subtypes": ["string"]}, "rhetorical_strategies": ["string"], "societal_impacts": ["string"], "confidence": 0.0, "reasoning": "string", "clip_context_description": "string", "quotes": [{"timestamp": 0.0, "speaker": "string", "quote": "string"}], "context_range": {"start": 0.0, "end": 0.0}, "duration_seconds": 0.0}]}`)

var correctionTemplate = prompt.Must("c1_correction", `Your previous response to the transcript-analysis task failed validation with this error:

{{.Error}}

Your previous response was:
{{.Previous | prefix "> "}}

Produce a corrected response following the exact same instructions and JSON shape as before. Respond with JSON only.`)

// Run executes C1 against the attached transcript artifact, validating every
// candidate segment's quotes and timestamps against the transcript (spec
// §4.1 Contract), retrying once on validation failure before failing fatally.
func Run(ctx context.Context, backend llm.Backend, temperature float32, in Input) (*Result, error) {
	ref, err := backend.UploadArtifact(ctx, in.TranscriptPath)
	if err != nil {
		return nil, pipelineerr.New(stageName, pipelineerr.KindFatal, fmt.Errorf("upload transcript: %w", err))
	}

	basePrompt, err := prompt.Render(analysisTemplate, in)
	if err != nil {
		return nil, pipelineerr.New(stageName, pipelineerr.KindFatal, fmt.Errorf("render prompt: %w", err))
	}

	text, _, err := backend.GenerateWithArtifact(ctx, llm.ArtifactRequest{
		Artifact:    ref,
		Prompt:      basePrompt,
		Temperature: temperature,
	})
	if err != nil {
		return nil, pipelineerr.New(stageName, pipelineerr.KindTransient, err)
	}

	result, verr := parseAndValidate(text, in.Transcript, in.MaxCandidates)
	if verr == nil {
		return result, nil
	}

	correctionPrompt, err := prompt.Render(correctionTemplate, struct {
		Error    string
		Previous string
	}{Error: verr.Error(), Previous: text})
	if err != nil {
		return nil, pipelineerr.New(stageName, pipelineerr.KindFatal, err)
	}

	text, _, err = backend.GenerateWithArtifact(ctx, llm.ArtifactRequest{
		Artifact:    ref,
		Prompt:      correctionPrompt,
		Temperature: temperature,
	})
	if err != nil {
		return nil, pipelineerr.New(stageName, pipelineerr.KindTransient, err)
	}

	result, verr = parseAndValidate(text, in.Transcript, in.MaxCandidates)
	if verr != nil {
		return nil, pipelineerr.New(stageName, pipelineerr.KindFatal, verr).WithAttempt(2)
	}
	return result, nil
}

func parseAndValidate(text string, tr *transcript.Transcript, maxCandidates int) (*Result, error) {
	var doc responseDoc
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("parse analysis response: %w", err)
	}

	for i := range doc.Segments {
		s := &doc.Segments[i]
		if err := s.Validate(); err != nil {
			return nil, err
		}
		for _, q := range s.Quotes {
			if !tr.ContainsVerbatim(q.Quote) {
				return nil, fmt.Errorf("segment %s: quote %q is not a verbatim transcript substring", s.SegmentID, q.Quote)
			}
			if !tr.TimestampValid(q.Timestamp) {
				return nil, fmt.Errorf("segment %s: quote timestamp %.2f does not align with a transcript turn boundary", s.SegmentID, q.Timestamp)
			}
		}
	}

	if maxCandidates > 0 && len(doc.Segments) > maxCandidates {
		doc.Segments = doc.Segments[:maxCandidates]
	}

	return &Result{Segments: doc.Segments}, nil
}
