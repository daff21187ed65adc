// Package c8rebuttal implements C8, the Rebuttal Verifier with
// Self-Correction (spec §4.8): a four-gate structured verification of each
// PostClip rebuttal, with a bounded rewrite loop on failure at escalating
// temperature, terminating in either ACCEPTED or BLOCKED. Grounded on the
// teacher's evalv2 checkpoint-scoring call for the gate structure (one
// composite structured call per item) and on the retry-with-backoff shape
// in pkg/llm/retry.go for the bounded-attempts loop, generalized here from
// network retry to content-quality retry with a rewriter step between
// attempts instead of a sleep.
package c8rebuttal

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

const stageName = "c8rebuttal"

// State is a PostClip's terminal or in-progress self-correction state.
type State string

const (
	StateAccepted State = "accepted"
	StateBlocked  State = "blocked"
)

// GateID identifies one of the four C8 binary gates.
type GateID string

const (
	GateGrounded        GateID = "grounded"
	GateOnTarget        GateID = "on_target"
	GateToneConsistent  GateID = "tone_consistent"
	GateSafe            GateID = "safe"
)

// OrderedGates is the fixed evaluation order for C8's composite call.
var OrderedGates = []GateID{GateGrounded, GateOnTarget, GateToneConsistent, GateSafe}

// GateResult is one gate's binary verdict for one rebuttal attempt.
type GateResult struct {
	GateID GateID `json:"gate_id"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason"`
}

// VerifyResult is the composite four-gate outcome for one rebuttal text.
type VerifyResult struct {
	Gates      []GateResult `json:"gates"`
	Passed     bool         `json:"passed"`
	FailedGate GateID       `json:"failed_gate,omitempty"`
}

// Attempt records one iteration of the verify/rewrite loop for audit.
type Attempt struct {
	AttemptNumber int          `json:"attempt_number"`
	RebuttalText  string       `json:"rebuttal_text"`
	Verify        VerifyResult `json:"verify"`
	Temperature   float32      `json:"temperature"`
}

// PostClipResult is C8's durable per-PostClip outcome.
type PostClipResult struct {
	SegmentID string    `json:"segment_id"`
	FinalText string    `json:"final_text"`
	State     State     `json:"state"`
	Attempts  []Attempt `json:"attempts"`
}

// Config governs the bounded rewrite loop (spec §4.8).
type Config struct {
	MaxAttempts   int     // N_max, default 3
	VerifyTemp    float32 // held low across all attempts
	BlockedPolicy string  // "drop_segment" or "fail_run"
}

// rewriteTemperature escalates with attempt number per spec §4.8 example
// (0.4, 0.55, 0.7), to help the rewriter escape local minima.
func rewriteTemperature(attempt int) float32 {
	base := float32(0.4)
	step := float32(0.15)
	t := base + step*float32(attempt-1)
	if t > 0.9 {
		t = 0.9
	}
	return t
}

type gateOutcome struct {
	GateID GateID `json:"gate_id" jsonscheme:"enum:grounded,on_target,tone_consistent,safe"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason"`
}

type verifyDoc struct {
	Gates []gateOutcome `json:"gates"`
}

var verifyTemplate = prompt.Must("c8_verify", `You are verifying a fact-checking rebuttal against four binary gates, in this fixed order:

1. grounded: every factual claim in the rebuttal is supported by a named source, a cited statistic, or a widely-known fact — never a bare assertion like "studies show X" with no named study.
2. on_target: the rebuttal addresses the segment's actual claim, not a straw man or tangent.
3. tone_consistent: the rebuttal matches the canonical persona below.
4. safe: the rebuttal does not itself introduce new misinformation or defamatory material.

### Persona

{{.Persona | prefix "> "}}

### Segment being rebutted

Title: {{.Segment.Title}}
Harm category: {{.Segment.HarmCategory.Primary}} {{.Segment.HarmCategory.Subtypes}}
All quotes: {{range .Segment.Quotes}}"{{.Quote}}" (t={{.Timestamp}}) {{end}}
Verification verdict: {{.Verdict.Kind}} — {{.Verdict.Rationale}}
Sources: {{range .Verdict.Sources}}{{.Title}} ({{.URL}}); {{end}}

### Rebuttal text under review

{{.RebuttalText}}

Respond with JSON only: {"gates": [{"gate_id": "grounded", "passed": true, "reason": "..."}, {"gate_id": "on_target", ...}, {"gate_id": "tone_consistent", ...}, {"gate_id": "safe", ...}]}. Always include all four gates in this exact order.`)

// Verify runs the composite four-gate call for one rebuttal text.
func Verify(ctx context.Context, backend llm.Backend, temperature float32, persona string, sel segment.SelectedSegment, rebuttalText string) (VerifyResult, error) {
	p, err := prompt.Render(verifyTemplate, struct {
		Persona      string
		Segment      segment.Segment
		Verdict      segment.VerificationVerdict
		RebuttalText string
	}{persona, sel.Segment, sel.Verdict, rebuttalText})
	if err != nil {
		return VerifyResult{}, pipelineerr.New(stageName, pipelineerr.KindFatal, err).WithSegment(sel.Segment.SegmentID)
	}

	raw, _, err := backend.GenerateStructured(ctx, llm.StructuredRequest{
		Prompt:      p,
		Temperature: temperature,
		Schema:      verifyDoc{},
	})
	if err != nil {
		return VerifyResult{}, pipelineerr.New(stageName, pipelineerr.KindTransient, err).WithSegment(sel.Segment.SegmentID)
	}

	var doc verifyDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return VerifyResult{}, pipelineerr.New(stageName, pipelineerr.KindValidation, fmt.Errorf("parse verify response: %w", err)).WithSegment(sel.Segment.SegmentID)
	}

	return toVerifyResult(sel.Segment.SegmentID, doc)
}

func toVerifyResult(segmentID string, doc verifyDoc) (VerifyResult, error) {
	byGate := make(map[GateID]gateOutcome, len(doc.Gates))
	for _, g := range doc.Gates {
		byGate[g.GateID] = g
	}

	result := VerifyResult{Passed: true}
	for _, gateID := range OrderedGates {
		outcome, ok := byGate[gateID]
		if !ok {
			return VerifyResult{}, fmt.Errorf("segment %s: C8 gate response missing %s", segmentID, gateID)
		}
		result.Gates = append(result.Gates, GateResult{GateID: gateID, Passed: outcome.Passed, Reason: outcome.Reason})
		if !outcome.Passed && result.Passed {
			result.Passed = false
			result.FailedGate = gateID
		}
	}
	return result, nil
}

type rewriteDoc struct {
	RebuttalText string `json:"rebuttal_text"`
}

var rewriteTemplate = prompt.Must("c8_rewrite", `Your previous rebuttal draft failed verification at gate "{{.Verify.FailedGate}}" with this reason:

{{.FailReason}}

### Persona (match this voice)

{{.Persona | prefix "> "}}

### Segment being rebutted

Title: {{.Segment.Title}}
All quotes: {{range .Segment.Quotes}}"{{.Quote}}" (t={{.Timestamp}}) {{end}}
Verification verdict: {{.Verdict.Kind}} — {{.Verdict.Rationale}}
Sources: {{range .Verdict.Sources}}{{.Title}} ({{.URL}}); {{end}}

### Previous draft

{{.PreviousText}}

Rewrite the rebuttal to fix the failing gate while keeping everything else that worked. Respond with JSON only: {"rebuttal_text": "..."}`)

func failReason(v VerifyResult) string {
	for _, g := range v.Gates {
		if g.GateID == v.FailedGate {
			return g.Reason
		}
	}
	return ""
}

// Rewrite produces a corrected rebuttal draft at the given (escalating)
// temperature.
func Rewrite(ctx context.Context, backend llm.Backend, temperature float32, persona string, sel segment.SelectedSegment, previousText string, verify VerifyResult) (string, error) {
	p, err := prompt.Render(rewriteTemplate, struct {
		Persona      string
		Segment      segment.Segment
		Verdict      segment.VerificationVerdict
		PreviousText string
		Verify       VerifyResult
		FailReason   string
	}{persona, sel.Segment, sel.Verdict, previousText, verify, failReason(verify)})
	if err != nil {
		return "", pipelineerr.New(stageName, pipelineerr.KindFatal, err).WithSegment(sel.Segment.SegmentID)
	}

	raw, _, err := backend.GenerateStructured(ctx, llm.StructuredRequest{
		Prompt:      p,
		Temperature: temperature,
		Schema:      rewriteDoc{},
	})
	if err != nil {
		return "", pipelineerr.New(stageName, pipelineerr.KindTransient, err).WithSegment(sel.Segment.SegmentID)
	}

	var doc rewriteDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", pipelineerr.New(stageName, pipelineerr.KindValidation, fmt.Errorf("parse rewrite response: %w", err)).WithSegment(sel.Segment.SegmentID)
	}
	return doc.RebuttalText, nil
}

// RunOne drives the verify/rewrite state machine for a single PostClip's
// rebuttal text to ACCEPTED or BLOCKED.
func RunOne(ctx context.Context, backend llm.Backend, cfg Config, persona string, sel segment.SelectedSegment, initialText string) (*PostClipResult, error) {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	text := initialText
	result := &PostClipResult{SegmentID: sel.Segment.SegmentID}

	for attempt := 0; ; attempt++ {
		verify, err := Verify(ctx, backend, cfg.VerifyTemp, persona, sel, text)
		if err != nil {
			return nil, err
		}
		result.Attempts = append(result.Attempts, Attempt{AttemptNumber: attempt, RebuttalText: text, Verify: verify, Temperature: cfg.VerifyTemp})

		if verify.Passed {
			result.State = StateAccepted
			result.FinalText = text
			return result, nil
		}

		if attempt >= maxAttempts {
			result.State = StateBlocked
			result.FinalText = text
			return result, nil
		}

		rewritten, err := Rewrite(ctx, backend, rewriteTemperature(attempt+1), persona, sel, text, verify)
		if err != nil {
			return nil, err
		}
		text = rewritten
	}
}

// Job is one PostClip's rebuttal self-correction unit of work.
type Job struct {
	Segment      segment.SelectedSegment
	InitialText  string
}

// RunAll drives C8 over every PostClip concurrently, preserving input order.
func RunAll(ctx context.Context, backend llm.Backend, cfg Config, concurrencyCap int, persona string, jobs []Job) ([]*PostClipResult, error) {
	return concurrency.Map(ctx, jobs, concurrencyCap, func(ctx context.Context, i int, j Job) (*PostClipResult, error) {
		return RunOne(ctx, backend, cfg, persona, j.Segment, j.InitialText)
	})
}
