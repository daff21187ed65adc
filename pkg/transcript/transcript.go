// Package transcript holds the diarized transcript model. The transcript is
// immutable input: every downstream timestamp and quote is checked against it.
package transcript

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Turn is one diarized utterance.
type Turn struct {
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	SpeakerID    string  `json:"speaker"`
	SpeakerLabel string  `json:"speaker_label,omitempty"`
	Text         string  `json:"text"`
}

// Transcript is the ordered, immutable sequence of turns for one episode.
type Transcript struct {
	Turns []Turn `json:"segments"`
}

// rawDoc mirrors the external JSON contract in spec §6.
type rawDoc struct {
	Segments []Turn                 `json:"segments"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Parse decodes the diarized transcript JSON document described in spec §6.
func Parse(data []byte) (*Transcript, error) {
	var doc rawDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("transcript: decode: %w", err)
	}
	if len(doc.Segments) == 0 {
		return nil, fmt.Errorf("transcript: no segments present")
	}
	t := &Transcript{Turns: doc.Segments}
	sort.SliceStable(t.Turns, func(i, j int) bool { return t.Turns[i].Start < t.Turns[j].Start })
	return t, nil
}

// Duration returns the transcript's total span in seconds.
func (t *Transcript) Duration() float64 {
	if len(t.Turns) == 0 {
		return 0
	}
	return t.Turns[len(t.Turns)-1].End - t.Turns[0].Start
}

// Range returns the transcript's [start, end] bounds.
func (t *Transcript) Range() (start, end float64) {
	if len(t.Turns) == 0 {
		return 0, 0
	}
	start = t.Turns[0].Start
	end = t.Turns[0].End
	for _, turn := range t.Turns[1:] {
		if turn.Start < start {
			start = turn.Start
		}
		if turn.End > end {
			end = turn.End
		}
	}
	return start, end
}

// FullText concatenates every turn's text, used for "uploaded as a large
// document attachment" analysis (spec §4.1) and for verbatim-quote checks.
func (t *Transcript) FullText() string {
	var sb strings.Builder
	for i, turn := range t.Turns {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(turn.Text)
	}
	return sb.String()
}

// ContainsVerbatim reports whether quote is an exact substring of some turn's
// text, or of the full transcript (quotes may span a turn boundary).
func (t *Transcript) ContainsVerbatim(quote string) bool {
	quote = strings.TrimSpace(quote)
	if quote == "" {
		return false
	}
	for _, turn := range t.Turns {
		if strings.Contains(turn.Text, quote) {
			return true
		}
	}
	return strings.Contains(t.FullText(), quote)
}

// NearestTurnBoundary returns the absolute distance in seconds from ts to the
// closest turn start or end boundary. Spec §4.1 requires this to be within
// 0.5s for a Pass-1 quote timestamp to validate.
func (t *Transcript) NearestTurnBoundary(ts float64) float64 {
	best := -1.0
	consider := func(b float64) {
		d := b - ts
		if d < 0 {
			d = -d
		}
		if best < 0 || d < best {
			best = d
		}
	}
	for _, turn := range t.Turns {
		consider(turn.Start)
		consider(turn.End)
	}
	if best < 0 {
		return 0
	}
	return best
}

// TimestampValid reports whether ts aligns with a turn boundary within the
// spec's 0.5s tolerance and lies within the transcript's range.
func (t *Transcript) TimestampValid(ts float64) bool {
	start, end := t.Range()
	if ts < start-0.5 || ts > end+0.5 {
		return false
	}
	return t.NearestTurnBoundary(ts) <= 0.5
}
