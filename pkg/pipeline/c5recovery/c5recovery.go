// Package c5recovery implements C5, False-Negative Recovery (spec §4.5): a
// bounded re-examination of segments C2 rejected at Gate 2 (verifiability),
// Gate 4 (harm), or Gate 5 (context sufficiency) — never Gate 1
// (rebuttability) or Gate 3 (accuracy-at-risk), which spec §4.2 marks
// non-recoverable. Grounded on the teacher's pkg/evalv2 "second-pass"
// checkpoint re-scoring shape (one structured LLM call per item, same
// schema as the first pass but a different prompt framing), generalized
// here to a relaxed, second-opinion evaluator over a ranked subset rather
// than a full second pass over every item.
package c5recovery

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"verifyscript/pkg/concurrency"
	"verifyscript/pkg/llm"
	"verifyscript/pkg/pipeline/c4selector"
	"verifyscript/pkg/pipelineerr"
	"verifyscript/pkg/prompt"
	"verifyscript/pkg/segment"
)

const stageName = "c5recovery"

// Config holds spec §4.5's M (RecoveryTopM) and K (Budget) sizing knobs.
type Config struct {
	TopM   int
	Budget int
}

// Result is C5's durable artifact.
type Result struct {
	// Selected is the final post-recovery selection: c4selector's output
	// with up to Budget recovered segments inserted and, where a topic cap
	// would otherwise be violated, the lowest-quality original selections
	// displaced to make room (spec §4.5 Insertion).
	Selected  []segment.SelectedSegment `json:"selected"`
	Recovered []segment.SelectedSegment `json:"recovered"`
	Displaced []segment.SelectedSegment `json:"displaced,omitempty"`
	// Examined records every candidate that was re-evaluated, admitted or
	// not, for audit (spec §3 Lifecycle: rejections stay in artifacts).
	Examined []ExaminedCandidate `json:"examined"`
}

// ExaminedCandidate is one rejected segment's recovery re-evaluation.
type ExaminedCandidate struct {
	SegmentID       string  `json:"segment_id"`
	OriginalGate    string  `json:"original_gate"`
	HeuristicScore  float64 `json:"heuristic_score"`
	Admitted        bool    `json:"admitted"`
	Reason          string  `json:"reason"`
}

type recoveryVerdict struct {
	Admit  bool   `json:"admit"`
	Reason string `json:"reason"`
}

var recoveryTemplate = prompt.Must("c5_recovery", `A candidate transcript segment was previously rejected during a fact-checking content review, at gate "{{.Gate}}", with this reason:

{{.OriginalReason}}

You are now giving a SECOND OPINION, deliberately from a perspective distinct from the original reviewer, and applying relaxed admission thresholds — this is a false-negative recovery pass, not a re-run of the original strict criteria. Segments may be admitted here that a strict first pass would reasonably reject.

Segment:
{{.Segment | json}}

Should this segment be admitted for rebuttal after all? Respond with JSON only: {"admit": true or false, "reason": "one or two sentences"}.`)

func heuristicScore(a segment.Annotated) float64 {
	return float64(len(a.Segment.Quotes)) * (1 - a.Segment.Confidence)
}

func failedGateReason(a segment.Annotated) string {
	for _, g := range a.Filter.Gates {
		if g.GateID == a.Filter.FailedGate {
			return g.Reason
		}
	}
	return ""
}

// eligibleForRecovery reports whether a was rejected at a recoverable gate
// (spec §4.5: "never Gate 1 or Gate 3").
func eligibleForRecovery(a segment.Annotated) bool {
	if a.Filter.Passed {
		return false
	}
	switch a.Filter.FailedGate {
	case segment.GateVerifiability, segment.GateHarm, segment.GateContextSufficiency:
		return true
	default:
		return false
	}
}

// candidatePool filters an unselected pool (typically c4selector.Result's
// Unselected) to segments eligible for recovery and ranks them by spec
// §4.5's heuristic (quote count × inverse-rejection-confidence), descending.
func candidatePool(unselected []segment.Annotated) []segment.Annotated {
	pool := make([]segment.Annotated, 0, len(unselected))
	for _, a := range unselected {
		if eligibleForRecovery(a) {
			pool = append(pool, a)
		}
	}
	sort.SliceStable(pool, func(i, j int) bool {
		si, sj := heuristicScore(pool[i]), heuristicScore(pool[j])
		if si != sj {
			return si > sj
		}
		return pool[i].Segment.SegmentID < pool[j].Segment.SegmentID
	})
	return pool
}

// Run executes C5: re-examines the top-M rejected candidates, re-admits up
// to K, and inserts recovered segments into c4Result's selection.
func Run(ctx context.Context, backend llm.Backend, temperature float32, concurrencyCap int, c4Result *c4selector.Result, cfg Config, selectorCfg c4selector.Config, durationHours float64) (*Result, error) {
	pool := candidatePool(c4Result.Unselected)
	m := cfg.TopM
	if m <= 0 || m > len(pool) {
		m = len(pool)
	}
	shortlist := pool[:m]

	type evalOutcome struct {
		candidate segment.Annotated
		verdict   recoveryVerdict
	}

	outcomes, err := concurrency.Map(ctx, shortlist, concurrencyCap, func(ctx context.Context, i int, a segment.Annotated) (evalOutcome, error) {
		v, err := evaluateOne(ctx, backend, temperature, a)
		if err != nil {
			return evalOutcome{}, err
		}
		return evalOutcome{candidate: a, verdict: v}, nil
	})
	if err != nil {
		return nil, err
	}

	examined := make([]ExaminedCandidate, 0, len(outcomes))
	admitted := make([]segment.Annotated, 0)
	for _, o := range outcomes {
		examined = append(examined, ExaminedCandidate{
			SegmentID:      o.candidate.Segment.SegmentID,
			OriginalGate:   string(o.candidate.Filter.FailedGate),
			HeuristicScore: heuristicScore(o.candidate),
			Admitted:       o.verdict.Admit,
			Reason:         o.verdict.Reason,
		})
		if o.verdict.Admit {
			admitted = append(admitted, o.candidate)
		}
	}

	k := cfg.Budget
	if k <= 0 || k > len(admitted) {
		k = len(admitted)
	}
	admitted = admitted[:k]

	selected := append([]segment.SelectedSegment(nil), c4Result.Selected...)
	var recovered, displaced []segment.SelectedSegment

	for _, a := range admitted {
		ss := segment.SelectedSegment{Annotated: a, DiversityTopic: topicOf(a), RecoveryFlag: true}
		var dropped *segment.SelectedSegment
		selected, dropped = insertMaintainingCap(selected, ss, selectorCfg, durationHours)
		recovered = append(recovered, ss)
		if dropped != nil {
			displaced = append(displaced, *dropped)
		}
	}

	for i := range selected {
		selected[i].SelectionRank = i
	}

	return &Result{Selected: selected, Recovered: recovered, Displaced: displaced, Examined: examined}, nil
}

func evaluateOne(ctx context.Context, backend llm.Backend, temperature float32, a segment.Annotated) (recoveryVerdict, error) {
	p, err := prompt.Render(recoveryTemplate, struct {
		Gate           string
		OriginalReason string
		Segment        segment.Segment
	}{string(a.Filter.FailedGate), failedGateReason(a), a.Segment})
	if err != nil {
		return recoveryVerdict{}, pipelineerr.New(stageName, pipelineerr.KindFatal, err).WithSegment(a.Segment.SegmentID)
	}

	raw, _, err := backend.GenerateStructured(ctx, llm.StructuredRequest{
		Prompt:      p,
		Temperature: temperature,
		Schema:      recoveryVerdict{},
	})
	if err != nil {
		return recoveryVerdict{}, pipelineerr.New(stageName, pipelineerr.KindTransient, err).WithSegment(a.Segment.SegmentID)
	}

	var v recoveryVerdict
	if err := json.Unmarshal(raw, &v); err != nil {
		return recoveryVerdict{}, pipelineerr.New(stageName, pipelineerr.KindValidation, fmt.Errorf("parse recovery verdict: %w", err)).WithSegment(a.Segment.SegmentID)
	}
	return v, nil
}

func topicOf(a segment.Annotated) string {
	if primary := strings.ToLower(strings.TrimSpace(a.Segment.HarmCategory.Primary)); primary != "" {
		return primary
	}
	if len(a.Segment.RhetoricalStrategies) > 0 {
		return strings.ToLower(strings.TrimSpace(a.Segment.RhetoricalStrategies[0]))
	}
	return "uncategorized"
}

// insertMaintainingCap inserts ss into selected, displacing the
// lowest-quality original (non-recovered) selection of ss's topic if that topic would
// otherwise exceed spec §4.4's per-topic cap (spec §4.5 Insertion). It
// returns the updated slice and the displaced entry, if any.
func insertMaintainingCap(selected []segment.SelectedSegment, ss segment.SelectedSegment, cfg c4selector.Config, durationHours float64) ([]segment.SelectedSegment, *segment.SelectedSegment) {
	topics := make(map[string]int)
	for _, s := range selected {
		topics[s.DiversityTopic]++
	}
	topics[ss.DiversityTopic]++ // account for the new arrival's topic

	n := cfg.TargetCount(durationHours)
	cap := int(math.Ceil(float64(n)/float64(len(topics)))) + 1

	if topics[ss.DiversityTopic] <= cap {
		return append(selected, ss), nil
	}

	// Find the lowest-quality non-recovered entry of ss's topic to displace.
	lowIdx := -1
	var lowScore float64
	for i, s := range selected {
		if s.RecoveryFlag || s.DiversityTopic != ss.DiversityTopic {
			continue
		}
		score := qualityScoreOf(s.Annotated)
		if lowIdx == -1 || score < lowScore {
			lowIdx, lowScore = i, score
		}
	}
	if lowIdx == -1 {
		// Nothing displaceable; admit anyway rather than silently dropping
		// the recovered segment (spec prefers recovery over a rigid cap).
		return append(selected, ss), nil
	}

	displaced := selected[lowIdx]
	selected = append(selected[:lowIdx], selected[lowIdx+1:]...)
	selected = append(selected, ss)
	return selected, &displaced
}

func qualityScoreOf(a segment.Annotated) float64 {
	score := a.Segment.Confidence * 10
	switch a.Verdict.Kind {
	case segment.ConfirmedFalse:
		score += 6
	case segment.Unverified:
		score += 3
	}
	return score
}
