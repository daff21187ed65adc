// Package c2filter implements C2, the Binary Segment Filter (spec §4.2): a
// composite five-gate structured LLM call per segment, rejecting on first
// failure, with Gate 1 (rebuttability) non-negotiable and Gate 3
// (accuracy-at-risk) answered conservatively — an uncertain Gate 3 verdict
// passes but routes the segment to C3 rather than rejecting it outright.
// Grounded on the teacher's pkg/evalv2.Evaluator checkpoint-scoring call
// (one structured LLM call returning a per-criterion breakdown), generalized
// from ASR-checkpoint scoring to a fixed five-gate schema, and fanned out
// over segments with pkg/concurrency instead of the teacher's single-case
// call shape.
package c2filter

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

const stageName = "c2filter"

type gateOutcome struct {
	GateID      segment.GateID `json:"gate_id" jsonscheme:"enum:rebuttability,verifiability,accuracy_at_risk,harm,context_sufficiency"`
	Passed      bool           `json:"passed"`
	Uncertain   bool           `json:"uncertain,omitempty"`
	Reason      string         `json:"reason"`
	Evidence    string         `json:"evidence,omitempty"`
}

type responseDoc struct {
	Gates []gateOutcome `json:"gates"`
}

var gatePromptTemplate = prompt.Must("c2_gates", `You are evaluating one candidate segment from a podcast transcript against five binary admission gates, in this fixed order:

1. rebuttability: does the segment contain material worth a substantive rebuttal? Accept BOTH specific factual claims AND non-factual but societally-damaging content (dehumanizing rhetoric, institutional erosion). Rejecting a segment solely because it lacks a specific factual claim is wrong.
2. verifiability: is there enough specificity (named entity, date, numeric claim, or cited source) to anchor a rebuttal?
3. accuracy_at_risk: does independent knowledge indicate the statement is false, misleading, or materially one-sided? Answer conservatively: only fail this gate if the statement is CLEARLY false or misleading. If you are uncertain, set "uncertain": true and "passed": true rather than failing the gate.
4. harm: does propagation of the statement plausibly contribute to concrete harm (health, safety, democratic process, discrimination)?
5. context_sufficiency: are the extracted quotes and context_range enough for a listener to follow the argument without the full episode?

Segment:
{{.Segment | json}}

Respond with JSON only: {"gates": [{"gate_id": "rebuttability", "passed": true, "reason": "..."}, {"gate_id": "verifiability", ...}, {"gate_id": "accuracy_at_risk", "uncertain": false, ...}, {"gate_id": "harm", ...}, {"gate_id": "context_sufficiency", ...}]}. Always include all five gates in this exact order, regardless of earlier failures.`)

// Evaluate runs the composite five-gate call for a single segment.
func Evaluate(ctx context.Context, backend llm.Backend, temperature float32, s segment.Segment) (segment.FilterVerdict, error) {
	p, err := prompt.Render(gatePromptTemplate, struct{ Segment segment.Segment }{s})
	if err != nil {
		return segment.FilterVerdict{}, pipelineerr.New(stageName, pipelineerr.KindFatal, err).WithSegment(s.SegmentID)
	}

	raw, _, err := backend.GenerateStructured(ctx, llm.StructuredRequest{
		Prompt:      p,
		Temperature: temperature,
		Schema:      responseDoc{},
	})
	if err != nil {
		return segment.FilterVerdict{}, pipelineerr.New(stageName, pipelineerr.KindTransient, err).WithSegment(s.SegmentID)
	}

	var doc responseDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return segment.FilterVerdict{}, pipelineerr.New(stageName, pipelineerr.KindValidation, fmt.Errorf("parse gate response: %w", err)).WithSegment(s.SegmentID)
	}

	return toVerdict(s.SegmentID, doc)
}

func toVerdict(segmentID string, doc responseDoc) (segment.FilterVerdict, error) {
	byGate := make(map[segment.GateID]gateOutcome, len(doc.Gates))
	for _, g := range doc.Gates {
		byGate[g.GateID] = g
	}

	verdict := segment.FilterVerdict{SegmentID: segmentID, Passed: true}
	for _, gateID := range segment.OrderedGates {
		outcome, ok := byGate[gateID]
		if !ok {
			return segment.FilterVerdict{}, fmt.Errorf("segment %s: gate response missing %s", segmentID, gateID)
		}

		gr := segment.GateResult{GateID: gateID, Passed: outcome.Passed, Reason: outcome.Reason, Evidence: outcome.Evidence}
		verdict.Gates = append(verdict.Gates, gr)

		if gateID == segment.GateAccuracyAtRisk && outcome.Uncertain {
			verdict.RequiresVerification = true
		}

		if !outcome.Passed && verdict.Passed {
			verdict.Passed = false
			verdict.FailedGate = gateID
		}
	}
	return verdict, nil
}

// RunAll evaluates every segment concurrently (spec §5 bounded fan-out),
// returning verdicts in input order regardless of completion order.
func RunAll(ctx context.Context, backend llm.Backend, temperature float32, concurrencyCap int, segments []segment.Segment) ([]segment.FilterVerdict, error) {
	return concurrency.Map(ctx, segments, concurrencyCap, func(ctx context.Context, i int, s segment.Segment) (segment.FilterVerdict, error) {
		return Evaluate(ctx, backend, temperature, s)
	})
}
