package segment

import "testing"

func validSegment() Segment {
	return Segment{
		SegmentID:    "seg-1",
		Title:        "Claim about inflation",
		HarmCategory: HarmCategory{Primary: "misinformation"},
		Confidence:   0.8,
		Quotes: []Quote{
			{Timestamp: 10, Speaker: "host", Quote: "inflation is at zero"},
			{Timestamp: 12, Speaker: "host", Quote: "trust me"},
		},
		ContextRange: Range{Start: 5, End: 20},
	}
}

func TestSegmentValidate(t *testing.T) {
	s := validSegment()
	if err := s.Validate(); err != nil {
		t.Fatalf("expected valid segment, got %v", err)
	}
}

func TestSegmentValidateRangeTooNarrow(t *testing.T) {
	s := validSegment()
	s.ContextRange.End = 11
	if err := s.Validate(); err == nil {
		t.Fatal("expected validation error when context_range excludes a quote")
	}
}

func TestSegmentValidateUnorderedQuotes(t *testing.T) {
	s := validSegment()
	s.Quotes[0], s.Quotes[1] = s.Quotes[1], s.Quotes[0]
	if err := s.Validate(); err == nil {
		t.Fatal("expected validation error for out-of-order quotes")
	}
}

func TestFilterVerdictFirstFailure(t *testing.T) {
	v := FilterVerdict{Gates: []GateResult{
		{GateID: GateRebuttability, Passed: true},
		{GateID: GateVerifiability, Passed: false, Reason: "too vague"},
		{GateID: GateAccuracyAtRisk, Passed: true},
	}}
	gate, failed := v.FirstFailure()
	if !failed || gate != GateVerifiability {
		t.Fatalf("expected failure at %s, got %s (failed=%v)", GateVerifiability, gate, failed)
	}
}

func TestAnnotatedEligible(t *testing.T) {
	a := Annotated{
		Filter:  FilterVerdict{Passed: true},
		Verdict: VerificationVerdict{Kind: ConfirmedTrue},
	}
	if a.Eligible() {
		t.Fatal("a confirmed_true segment must never be eligible")
	}
	a.Verdict.Kind = ConfirmedFalse
	if !a.Eligible() {
		t.Fatal("a passed, confirmed_false segment should be eligible")
	}
	a.Filter.Passed = false
	if a.Eligible() {
		t.Fatal("a filter-rejected segment must never be eligible")
	}
}
