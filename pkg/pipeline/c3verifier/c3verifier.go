// Package c3verifier implements C3, the Recent-Events Verifier (spec §4.3):
// for date-sensitive segments, a web-grounded LLM call followed by a
// structured call that classifies the grounded text into a
// VerificationVerdict. This is the one stage that must honor §6's hard
// backend constraint directly: GenerateWithWebSearch and GenerateStructured
// are always two separate calls here, never one. Grounded on
// haricheung-agentic-shell's websearch.go tool (the {title, snippet, url}
// result shape segment.Source mirrors) and the teacher's two-call
// generate-then-classify shape in pkg/evalv2 (GenerateContext followed by
// Evaluate against the generated context).
package c3verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"verifyscript/pkg/concurrency"
	"verifyscript/pkg/llm"
	"verifyscript/pkg/pipelineerr"
	"verifyscript/pkg/prompt"
	"verifyscript/pkg/segment"
)

const stageName = "c3verifier"

// IsDateSensitive reports whether any quote in s matches one of the
// configured recent-event keyword families (spec §4.3 Trigger).
func IsDateSensitive(s segment.Segment, keywords []string) bool {
	for _, q := range s.Quotes {
		lower := strings.ToLower(q.Quote)
		for _, kw := range keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				return true
			}
		}
	}
	return false
}

var groundedQueryTemplate = prompt.Must("c3_grounded_query", `A podcast guest or host made the following claim:

"{{.Quote}}"

Using current, retrievable web sources, determine whether this claim is true, false, or cannot be confirmed one way or another. Cite specific sources with URLs. Respond in plain prose, not JSON.`)

type verdictDoc struct {
	Kind      segment.VerdictKind `json:"kind" jsonscheme:"enum:confirmed_false,confirmed_true,unverified"`
	Rationale string              `json:"rationale"`
}

var classifyTemplate = prompt.Must("c3_classify", `A web search was run to check this claim:

"{{.Quote}}"

Search result text:
{{.GroundedText | prefix "> "}}

Classify the claim as exactly one of: "confirmed_false" (the claim contradicts the evidence), "confirmed_true" (the claim is substantially correct), or "unverified" (the evidence is insufficient to decide). Respond with JSON only: {"kind": "...", "rationale": "one or two sentences citing the key evidence"}.`)

// Verify runs C3 for a single segment, using the earliest date-sensitive
// quote as the claim to check. Segments that are not date-sensitive return
// VerdictKind NotApplicable without any LLM call.
func Verify(ctx context.Context, backend llm.Backend, temperature float32, s segment.Segment, keywords []string) (segment.VerificationVerdict, error) {
	if !IsDateSensitive(s, keywords) {
		return segment.VerificationVerdict{Kind: segment.NotApplicable}, nil
	}
	return VerifyForced(ctx, backend, temperature, s, triggeringQuote(s, keywords))
}

// VerifyForced runs C3's grounded-then-classify check unconditionally,
// bypassing the keyword trigger. Spec §4.2 requires this for segments whose
// Gate 3 (accuracy-at-risk) verdict was marked uncertain — those must reach
// C3 even when no date-sensitive keyword matched, rather than being
// rejected or silently passed through as NotApplicable.
func VerifyForced(ctx context.Context, backend llm.Backend, temperature float32, s segment.Segment, quote string) (segment.VerificationVerdict, error) {
	if quote == "" && len(s.Quotes) > 0 {
		quote = s.Quotes[0].Quote
	}

	groundedPrompt, err := prompt.Render(groundedQueryTemplate, struct{ Quote string }{quote})
	if err != nil {
		return segment.VerificationVerdict{}, pipelineerr.New(stageName, pipelineerr.KindFatal, err).WithSegment(s.SegmentID)
	}

	groundedText, sources, _, err := backend.GenerateWithWebSearch(ctx, llm.WebSearchRequest{Prompt: groundedPrompt, Temperature: temperature})
	if err != nil {
		return segment.VerificationVerdict{}, pipelineerr.New(stageName, pipelineerr.KindTransient, err).WithSegment(s.SegmentID)
	}

	classifyPrompt, err := prompt.Render(classifyTemplate, struct {
		Quote        string
		GroundedText string
	}{quote, groundedText})
	if err != nil {
		return segment.VerificationVerdict{}, pipelineerr.New(stageName, pipelineerr.KindFatal, err).WithSegment(s.SegmentID)
	}

	raw, _, err := backend.GenerateStructured(ctx, llm.StructuredRequest{Prompt: classifyPrompt, Temperature: 0, Schema: verdictDoc{}})
	if err != nil {
		return segment.VerificationVerdict{}, pipelineerr.New(stageName, pipelineerr.KindTransient, err).WithSegment(s.SegmentID)
	}

	var doc verdictDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return segment.VerificationVerdict{}, pipelineerr.New(stageName, pipelineerr.KindValidation, fmt.Errorf("parse verdict: %w", err)).WithSegment(s.SegmentID)
	}

	verdict := segment.VerificationVerdict{Kind: doc.Kind, Sources: sources, Rationale: doc.Rationale}
	if verdict.RequiresSources() && len(verdict.Sources) == 0 {
		return segment.VerificationVerdict{}, pipelineerr.New(stageName, pipelineerr.KindValidation,
			fmt.Errorf("verdict %s requires at least one source", verdict.Kind)).WithSegment(s.SegmentID)
	}
	if err := segment.ValidateSourceCompleteness(verdict.Sources); err != nil {
		return segment.VerificationVerdict{}, pipelineerr.New(stageName, pipelineerr.KindValidation,
			fmt.Errorf("verdict %s: %w", verdict.Kind, err)).WithSegment(s.SegmentID)
	}
	return verdict, nil
}

func triggeringQuote(s segment.Segment, keywords []string) string {
	for _, q := range s.Quotes {
		lower := strings.ToLower(q.Quote)
		for _, kw := range keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				return q.Quote
			}
		}
	}
	if len(s.Quotes) > 0 {
		return s.Quotes[0].Quote
	}
	return ""
}

// RunAll verifies every segment concurrently, preserving input order.
func RunAll(ctx context.Context, backend llm.Backend, temperature float32, concurrencyCap int, segments []segment.Segment, keywords []string) ([]segment.VerificationVerdict, error) {
	return concurrency.Map(ctx, segments, concurrencyCap, func(ctx context.Context, i int, s segment.Segment) (segment.VerificationVerdict, error) {
		return Verify(ctx, backend, temperature, s, keywords)
	})
}
