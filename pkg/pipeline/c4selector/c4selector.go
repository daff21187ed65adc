// Package c4selector implements C4, the Diversity Selector (spec §4.4): a
// mechanical, LLM-free pass over C2/C3 survivors that balances topic
// diversity against per-segment quality and caps the result proportionally
// to transcript duration. No LLM call is involved — selection must be
// deterministic given identical input (spec §4.4 Non-goal, §8 invariant 6),
// so topic assignment and ranking are both pure functions of the segment's
// own Pass-1 fields. Grounded on the teacher's pkg/evalv2's deterministic,
// no-randomness scoring aggregation style (score-then-sort, no sampling).
package c4selector

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"verifyscript/pkg/segment"
)

// Config governs sizing and topic-cap behavior (spec §4.4).
type Config struct {
	// TargetSelected is used directly when PerHourCoefficient is zero or
	// DurationHours is zero.
	TargetSelected     int
	PerHourCoefficient float64
	MinSelected        int
	MaxSelected        int
}

// TargetCount derives spec §4.4's N from transcript duration, clamped to
// [MinSelected, MaxSelected].
func (c Config) TargetCount(durationHours float64) int {
	n := c.TargetSelected
	if c.PerHourCoefficient > 0 && durationHours > 0 {
		n = int(math.Round(c.PerHourCoefficient * durationHours))
	}
	if c.MinSelected > 0 && n < c.MinSelected {
		n = c.MinSelected
	}
	if c.MaxSelected > 0 && n > c.MaxSelected {
		n = c.MaxSelected
	}
	return n
}

// Result is C4's durable artifact.
type Result struct {
	Selected []segment.SelectedSegment `json:"selected"`
	// Unselected carries survivors that were not chosen, for C5 to recover
	// into and for auditing. Not part of the spec's data model but required
	// by "retained in artifacts for auditing" (spec §3 Lifecycle).
	Unselected []segment.Annotated `json:"unselected"`
}

// topicOf assigns a deterministic diversity topic from a segment's
// harm_category and rhetorical_strategies (spec §4.4 point 1). No LLM
// classifier refinement is performed: the spec calls that step optional
// ("optionally refined ... if keyword overlap is high"), and invoking an
// LLM here would break the determinism spec §4.4/§8 require.
func topicOf(s segment.Segment) string {
	primary := strings.ToLower(strings.TrimSpace(s.HarmCategory.Primary))
	if primary != "" {
		return primary
	}
	if len(s.RhetoricalStrategies) > 0 {
		return strings.ToLower(strings.TrimSpace(s.RhetoricalStrategies[0]))
	}
	return "uncategorized"
}

var severityWeight = map[string]float64{
	"low":      0,
	"minor":    0,
	"medium":   1,
	"moderate": 1,
	"high":     2,
	"severe":   2,
	"critical": 3,
}

func verdictWeight(v segment.VerdictKind) float64 {
	switch v {
	case segment.ConfirmedFalse:
		return 2
	case segment.Unverified:
		return 1
	default:
		return 0
	}
}

// qualityScore composites C2 gate confidence, C3 verdict strength, and a
// severity weight of at most 3 points that is a ranking hint only (spec §9:
// "Pass 1 severity labels are observed to be unreliable; downstream quality
// scoring should treat them as hints, not ground truth" — it never gates
// selection on its own, only nudges ranking within a topic bucket).
func qualityScore(a segment.Annotated) float64 {
	score := a.Segment.Confidence * 10
	score += verdictWeight(a.Verdict.Kind) * 3
	score += severityWeight[strings.ToLower(strings.TrimSpace(a.Segment.SeverityHint))] * 1
	for _, g := range a.Filter.Gates {
		if g.Passed {
			score += 0.1
		}
	}
	return score
}

// Select runs C4 over every segment that survived C2 and C3 (spec §4.4
// Input: "not confirmed_true"). Segments failing that precondition are
// rejected defensively rather than silently admitted, since spec §4.3
// treats a confirmed_true segment reaching selection as a defect.
func Select(annotated []segment.Annotated, cfg Config, durationHours float64) (*Result, error) {
	eligible := make([]segment.Annotated, 0, len(annotated))
	unselected := make([]segment.Annotated, 0)
	for _, a := range annotated {
		if !a.Eligible() {
			unselected = append(unselected, a)
			continue
		}
		eligible = append(eligible, a)
	}

	n := cfg.TargetCount(durationHours)

	buckets := make(map[string][]segment.Annotated)
	for _, a := range eligible {
		topic := topicOf(a.Segment)
		buckets[topic] = append(buckets[topic], a)
	}

	topics := make([]string, 0, len(buckets))
	for t := range buckets {
		topics = append(topics, t)
		bucket := buckets[t]
		sort.SliceStable(bucket, func(i, j int) bool {
			si, sj := qualityScore(bucket[i]), qualityScore(bucket[j])
			if si != sj {
				return si > sj
			}
			return bucket[i].Segment.SegmentID < bucket[j].Segment.SegmentID
		})
		buckets[t] = bucket
	}
	sort.Strings(topics)

	cap := len(eligible)
	if len(topics) > 0 {
		cap = int(math.Ceil(float64(n)/float64(len(topics)))) + 1
	}

	selected := make([]segment.SelectedSegment, 0, n)
	taken := make(map[string]int, len(topics))
	idx := make(map[string]int, len(topics))

	for len(selected) < n {
		progressed := false
		for _, t := range topics {
			if len(selected) >= n {
				break
			}
			bucket := buckets[t]
			i := idx[t]
			if i >= len(bucket) {
				continue
			}
			if taken[t] >= cap {
				continue
			}
			a := bucket[i]
			idx[t] = i + 1
			taken[t]++
			selected = append(selected, segment.SelectedSegment{
				Annotated:      a,
				DiversityTopic: t,
				SelectionRank:  len(selected),
			})
			progressed = true
		}
		if !progressed {
			break
		}
	}

	selectedIDs := make(map[string]bool, len(selected))
	for _, s := range selected {
		selectedIDs[s.Segment.SegmentID] = true
	}
	for t, bucket := range buckets {
		for i := idx[t]; i < len(bucket); i++ {
			unselected = append(unselected, bucket[i])
		}
	}

	if err := validate(selected); err != nil {
		return nil, err
	}

	return &Result{Selected: selected, Unselected: unselected}, nil
}

func validate(selected []segment.SelectedSegment) error {
	seen := make(map[string]bool, len(selected))
	for _, s := range selected {
		if seen[s.Segment.SegmentID] {
			return fmt.Errorf("c4selector: segment %s selected twice", s.Segment.SegmentID)
		}
		seen[s.Segment.SegmentID] = true
		if s.Verdict.Kind == segment.ConfirmedTrue {
			return fmt.Errorf("c4selector: confirmed_true segment %s must not be selected", s.Segment.SegmentID)
		}
	}
	return nil
}
