// Package c9validator implements C9, the External Fact Validator (spec
// §4.9): a final grounded-LLM pass that spot-checks specific factual claims
// asserted BY THE REBUTTALS THEMSELVES (numbers, named studies,
// attributions, dates) — not the original segment's claim, which C3 already
// checked. Grounded on the same grounded-then-classify two-call shape as
// c3verifier (spec §6's hard constraint applies here too), reused rather
// than duplicated since both stages share the identical backend contract
// shape.
package c9validator

import (
	"context"
	"encoding/json"
	"fmt"

	"verifyscript/pkg/concurrency"
	"verifyscript/pkg/llm"
	"verifyscript/pkg/pipelineerr"
	"verifyscript/pkg/prompt"
	"verifyscript/pkg/segment"
)

const stageName = "c9validator"

// ClaimVerdict is C9's outcome for one PostClip's rebuttal text.
type ClaimVerdict struct {
	SegmentID   string              `json:"segment_id"`
	Kind        segment.VerdictKind `json:"kind"`
	Rationale   string              `json:"rationale"`
	Sources     []segment.Source    `json:"sources,omitempty"`
	// Degraded marks a rebuttal whose own factual claim was contradicted and
	// for which no rewrite budget remained (spec §4.9: "mark the script as
	// degraded").
	Degraded bool `json:"degraded,omitempty"`
}

var groundedTemplate = prompt.Must("c9_grounded_query", `A fact-checking commentary script contains the following rebuttal to a podcast claim. The rebuttal itself asserts specific facts (numbers, named studies, attributions, dates). Spot-check ONLY the rebuttal's own factual assertions against current, retrievable web sources — not the original podcast claim it is rebutting.

Rebuttal text:
"{{.RebuttalText}}"

Cite specific sources with URLs. Respond in plain prose, not JSON.`)

type verdictDoc struct {
	Kind      segment.VerdictKind `json:"kind" jsonscheme:"enum:confirmed_false,confirmed_true,unverified"`
	Rationale string              `json:"rationale"`
}

var classifyTemplate = prompt.Must("c9_classify", `A web search was run to spot-check a rebuttal's own factual assertions:

"{{.RebuttalText}}"

Search result text:
{{.GroundedText | prefix "> "}}

Classify as exactly one of: "confirmed_false" (the rebuttal's own claim is contradicted by evidence), "confirmed_true" (the rebuttal's claim holds up), or "unverified" (insufficient evidence). Respond with JSON only: {"kind": "...", "rationale": "one or two sentences"}.`)

// Validate spot-checks one rebuttal's own factual assertions.
func Validate(ctx context.Context, backend llm.Backend, temperature float32, segmentID, rebuttalText string) (ClaimVerdict, error) {
	groundedPrompt, err := prompt.Render(groundedTemplate, struct{ RebuttalText string }{rebuttalText})
	if err != nil {
		return ClaimVerdict{}, pipelineerr.New(stageName, pipelineerr.KindFatal, err).WithSegment(segmentID)
	}

	groundedText, sources, _, err := backend.GenerateWithWebSearch(ctx, llm.WebSearchRequest{Prompt: groundedPrompt, Temperature: temperature})
	if err != nil {
		return ClaimVerdict{}, pipelineerr.New(stageName, pipelineerr.KindTransient, err).WithSegment(segmentID)
	}

	classifyPrompt, err := prompt.Render(classifyTemplate, struct {
		RebuttalText string
		GroundedText string
	}{rebuttalText, groundedText})
	if err != nil {
		return ClaimVerdict{}, pipelineerr.New(stageName, pipelineerr.KindFatal, err).WithSegment(segmentID)
	}

	raw, _, err := backend.GenerateStructured(ctx, llm.StructuredRequest{Prompt: classifyPrompt, Temperature: 0, Schema: verdictDoc{}})
	if err != nil {
		return ClaimVerdict{}, pipelineerr.New(stageName, pipelineerr.KindTransient, err).WithSegment(segmentID)
	}

	var doc verdictDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ClaimVerdict{}, pipelineerr.New(stageName, pipelineerr.KindValidation, fmt.Errorf("parse verdict: %w", err)).WithSegment(segmentID)
	}

	if err := segment.ValidateSourceCompleteness(sources); err != nil {
		return ClaimVerdict{}, pipelineerr.New(stageName, pipelineerr.KindValidation,
			fmt.Errorf("verdict %s: %w", doc.Kind, err)).WithSegment(segmentID)
	}

	return ClaimVerdict{SegmentID: segmentID, Kind: doc.Kind, Rationale: doc.Rationale, Sources: sources}, nil
}

// Target is one rebuttal text to spot-check, keyed by its segment id.
type Target struct {
	SegmentID    string
	RebuttalText string
}

// RunAll validates every PostClip's rebuttal concurrently, preserving input
// order (spec §5).
func RunAll(ctx context.Context, backend llm.Backend, temperature float32, concurrencyCap int, targets []Target) ([]ClaimVerdict, error) {
	return concurrency.Map(ctx, targets, concurrencyCap, func(ctx context.Context, i int, t Target) (ClaimVerdict, error) {
		return Validate(ctx, backend, temperature, t.SegmentID, t.RebuttalText)
	})
}
