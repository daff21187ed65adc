// Package segment holds the candidate-segment data model shared by C1
// through C5: Segment (Pass-1 output), GateResult (C2), VerificationVerdict
// (C3), and SelectedSegment (C4/C5), per spec §3.
package segment

import "fmt"

// HarmCategory classifies a segment's primary harm and optional subtypes.
type HarmCategory struct {
	Primary  string   `json:"primary"`
	Subtypes []string `json:"subtypes,omitempty"`
}

// Quote is one verbatim extract with its source timestamp and speaker.
type Quote struct {
	Timestamp float64 `json:"timestamp"`
	Speaker   string  `json:"speaker"`
	Quote     string  `json:"quote"`
}

// Range is an inclusive [Start, End] span in transcript seconds.
type Range struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Segment is the Pass-1 output unit: a candidate excerpt worth rebutting.
type Segment struct {
	SegmentID                string       `json:"segment_id"`
	Title                    string       `json:"title"`
	PrimarySpeaker           string       `json:"primary_speaker"`
	SeverityHint             string       `json:"severity_hint"`
	HarmCategory             HarmCategory `json:"harm_category"`
	RhetoricalStrategies     []string     `json:"rhetorical_strategies,omitempty"`
	SocietalImpacts          []string     `json:"societal_impacts,omitempty"`
	Confidence               float64      `json:"confidence"`
	Reasoning                string       `json:"reasoning"`
	ClipContextDescription   string       `json:"clip_context_description"`
	Quotes                   []Quote      `json:"quotes"`
	ContextRange             Range        `json:"context_range"`
	DurationSeconds          float64      `json:"duration_seconds"`
}

// Validate checks the structural invariants spec §3 requires of a Segment:
// quotes ordered by timestamp, and context_range enclosing every quote.
func (s *Segment) Validate() error {
	if s.SegmentID == "" {
		return fmt.Errorf("segment: missing segment_id")
	}
	if len(s.Quotes) == 0 {
		return fmt.Errorf("segment %s: no quotes", s.SegmentID)
	}
	for i := 1; i < len(s.Quotes); i++ {
		if s.Quotes[i].Timestamp < s.Quotes[i-1].Timestamp {
			return fmt.Errorf("segment %s: quotes not ordered by timestamp", s.SegmentID)
		}
	}
	minTS, maxTS := s.Quotes[0].Timestamp, s.Quotes[0].Timestamp
	for _, q := range s.Quotes {
		if q.Timestamp < minTS {
			minTS = q.Timestamp
		}
		if q.Timestamp > maxTS {
			maxTS = q.Timestamp
		}
	}
	if s.ContextRange.Start > minTS {
		return fmt.Errorf("segment %s: context_range.start %.2f > min quote timestamp %.2f", s.SegmentID, s.ContextRange.Start, minTS)
	}
	if s.ContextRange.End < maxTS {
		return fmt.Errorf("segment %s: context_range.end %.2f < max quote timestamp %.2f", s.SegmentID, s.ContextRange.End, maxTS)
	}
	return nil
}

// GateID identifies one of the five C2 binary gates.
type GateID string

const (
	GateRebuttability      GateID = "rebuttability"
	GateVerifiability      GateID = "verifiability"
	GateAccuracyAtRisk     GateID = "accuracy_at_risk"
	GateHarm               GateID = "harm"
	GateContextSufficiency GateID = "context_sufficiency"
)

// OrderedGates is the fixed evaluation order spec §4.2 mandates.
var OrderedGates = []GateID{
	GateRebuttability,
	GateVerifiability,
	GateAccuracyAtRisk,
	GateHarm,
	GateContextSufficiency,
}

// GateResult is one gate's binary verdict for one segment.
type GateResult struct {
	GateID   GateID `json:"gate_id"`
	Passed   bool   `json:"passed"`
	Reason   string `json:"reason"`
	Evidence string `json:"evidence,omitempty"`
}

// FilterVerdict is C2's full per-segment output: an ordered list of gate
// results plus the derived final admission decision.
type FilterVerdict struct {
	SegmentID string       `json:"segment_id"`
	Gates     []GateResult `json:"gates"`
	Passed    bool         `json:"passed"`
	FailedGate GateID      `json:"failed_gate,omitempty"`
	// RequiresVerification marks a segment whose accuracy_at_risk gate
	// (Gate 3) was answered with uncertainty rather than a clear pass or
	// fail; spec §4.2 requires routing these to C3 instead of rejecting.
	RequiresVerification bool `json:"requires_verification,omitempty"`
}

// FirstFailure returns the first failing gate, or ("", false) if every gate
// passed. C2 rejects on first failure (spec §4.2).
func (v *FilterVerdict) FirstFailure() (GateID, bool) {
	for _, g := range v.Gates {
		if !g.Passed {
			return g.GateID, true
		}
	}
	return "", false
}

// VerdictKind is the outcome of a C3 recent-events verification.
type VerdictKind string

const (
	ConfirmedFalse VerdictKind = "confirmed_false"
	ConfirmedTrue  VerdictKind = "confirmed_true"
	Unverified     VerdictKind = "unverified"
	NotApplicable  VerdictKind = "not_applicable"
)

// Source is a retrievable piece of grounding evidence.
type Source struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// VerificationVerdict is C3's output, attached to a segment.
type VerificationVerdict struct {
	Kind      VerdictKind `json:"kind"`
	Sources   []Source    `json:"sources,omitempty"`
	Rationale string      `json:"rationale"`
}

// RequiresSources reports whether this verdict kind must carry at least one
// source, per spec §4.3 ("at least one retrievable URL ... for any
// non-not_applicable verdict").
func (v VerificationVerdict) RequiresSources() bool {
	return v.Kind != NotApplicable
}

// ValidateSourceCompleteness rejects any source missing its URL, Title, or
// Snippet. Spec §4.3 requires "at least one retrievable URL with title and
// snippet" for any non-not_applicable verdict — a source with an empty
// title or snippet does not satisfy that, even though it carries a URL.
func ValidateSourceCompleteness(sources []Source) error {
	for i, s := range sources {
		if s.URL == "" {
			return fmt.Errorf("source %d: missing url", i)
		}
		if s.Title == "" {
			return fmt.Errorf("source %d (%s): missing title", i, s.URL)
		}
		if s.Snippet == "" {
			return fmt.Errorf("source %d (%s): missing snippet", i, s.URL)
		}
	}
	return nil
}

// Annotated is a Segment plus its C2/C3 annotations, the unit C4 selects
// over. Segments are never mutated in place (spec §3 Lifecycle); each stage
// produces a new Annotated value referencing the original Segment.
type Annotated struct {
	Segment    Segment              `json:"segment"`
	Filter     FilterVerdict        `json:"filter"`
	Verdict    VerificationVerdict  `json:"verdict"`
}

// Eligible reports whether a is eligible to proceed to C4: it survived C2 and
// was not confirmed true by C3. This is the single choke point every caller
// must use before handing a segment to the script generator (spec §4.3 "a
// defect" if a confirmed_true segment silently proceeds).
func (a Annotated) Eligible() bool {
	return a.Filter.Passed && a.Verdict.Kind != ConfirmedTrue
}

// SelectedSegment is a segment chosen by C4/C5, with selection metadata.
type SelectedSegment struct {
	Annotated
	DiversityTopic string `json:"diversity_topic"`
	SelectionRank  int    `json:"selection_rank"`
	RecoveryFlag   bool   `json:"recovery_flag,omitempty"`
}
