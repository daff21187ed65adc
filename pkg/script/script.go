// Package script holds the final Script artifact (spec §3) and the
// structural invariant checks C7 enforces mechanically (no LLM involved).
package script

import (
	"fmt"

	"verifyscript/pkg/segment"
)

// SectionKind discriminates the tagged ScriptSection variant. Go has no sum
// types, so this mirrors the teacher's own enum-plus-struct idiom
// (segment.CheckpointStatus / evalv2's Status field).
type SectionKind string

const (
	KindIntro    SectionKind = "intro"
	KindPreClip  SectionKind = "pre_clip"
	KindClipRef  SectionKind = "clip_ref"
	KindPostClip SectionKind = "post_clip"
	KindOutro    SectionKind = "outro"
)

// Section is one entry in the script's playback-ordered section list. Only
// the fields relevant to Kind are populated; the rest are zero.
type Section struct {
	Kind SectionKind `json:"kind"`

	SegmentID string `json:"segment_id,omitempty"`

	Text          string  `json:"text,omitempty"`
	EstDurationS  float64 `json:"est_duration_s,omitempty"`

	SourceStart float64 `json:"source_start,omitempty"`
	SourceEnd   float64 `json:"source_end,omitempty"`

	RebuttalText string          `json:"rebuttal_text,omitempty"`
	Citations    []segment.Source `json:"citations,omitempty"`
}

// Metadata carries script-level summary fields.
type Metadata struct {
	TotalEstDurationS float64  `json:"total_est_duration_s"`
	TargetAudience    string   `json:"target_audience,omitempty"`
	KeyThemes         []string `json:"key_themes,omitempty"`
}

// Script is the final verified_unified_script artifact (spec §3, §4.9).
type Script struct {
	Metadata Metadata  `json:"metadata"`
	Sections []Section `json:"sections"`
}

// ClipDuration returns source_end - source_start for a clip_ref section.
func (s Section) ClipDuration() float64 {
	return s.SourceEnd - s.SourceStart
}

// TotalEstimatedDuration sums per-section estimated durations plus the
// playback duration of every clip_ref, per spec §4.6/§8 invariant 8.
func (sc *Script) TotalEstimatedDuration() float64 {
	var total float64
	for _, s := range sc.Sections {
		switch s.Kind {
		case KindClipRef:
			total += s.ClipDuration()
		default:
			total += s.EstDurationS
		}
	}
	return total
}

// ValidationOptions controls how strictly Validate enforces verdict-gating
// invariants, since Validate alone does not have access to C3's verdicts.
type ValidationOptions struct {
	// ConfirmedTrueSegments, if non-nil, is consulted to enforce spec §3's
	// "no segment_id with a confirmed_true verdict may appear" invariant.
	ConfirmedTrueSegments map[string]bool
	// BlockedSegments, if non-nil, is consulted to enforce spec §4.8/§8's
	// "no segment with an exhausted, BLOCKED rebuttal may appear" invariant.
	BlockedSegments map[string]bool
}

// Validate enforces every structural invariant spec §3/§8 names. It is
// intentionally mechanical and LLM-free (spec §4.7): a failure here is
// fatal for the run, with no retry.
func (sc *Script) Validate(transcriptStart, transcriptEnd float64, opts ValidationOptions) error {
	seen := map[string]struct {
		pre, clip, post int
	}{}
	order := make([]string, 0)

	for i, s := range sc.Sections {
		switch s.Kind {
		case KindIntro, KindOutro:
			continue
		case KindPreClip:
			if s.SegmentID == "" {
				return fmt.Errorf("script: section %d: pre_clip missing segment_id", i)
			}
			entry := seen[s.SegmentID]
			if entry.pre != 0 {
				return fmt.Errorf("script: segment %s: duplicate pre_clip", s.SegmentID)
			}
			entry.pre = i + 1
			seen[s.SegmentID] = entry
			if _, ok := find(order, s.SegmentID); !ok {
				order = append(order, s.SegmentID)
			}
		case KindClipRef:
			if s.SegmentID == "" {
				return fmt.Errorf("script: section %d: clip_ref missing segment_id", i)
			}
			if s.SourceStart >= s.SourceEnd {
				return fmt.Errorf("script: segment %s: source_start %.2f >= source_end %.2f", s.SegmentID, s.SourceStart, s.SourceEnd)
			}
			if s.SourceStart < transcriptStart || s.SourceEnd > transcriptEnd {
				return fmt.Errorf("script: segment %s: clip range [%.2f,%.2f] outside transcript range [%.2f,%.2f]", s.SegmentID, s.SourceStart, s.SourceEnd, transcriptStart, transcriptEnd)
			}
			entry := seen[s.SegmentID]
			if entry.clip != 0 {
				return fmt.Errorf("script: segment %s: duplicate clip_ref", s.SegmentID)
			}
			entry.clip = i + 1
			seen[s.SegmentID] = entry
		case KindPostClip:
			if s.SegmentID == "" {
				return fmt.Errorf("script: section %d: post_clip missing segment_id", i)
			}
			entry := seen[s.SegmentID]
			if entry.post != 0 {
				return fmt.Errorf("script: segment %s: duplicate post_clip", s.SegmentID)
			}
			entry.post = i + 1
			seen[s.SegmentID] = entry
		default:
			return fmt.Errorf("script: section %d: unknown kind %q", i, s.Kind)
		}

		if s.SegmentID != "" {
			if opts.ConfirmedTrueSegments != nil && opts.ConfirmedTrueSegments[s.SegmentID] {
				return fmt.Errorf("script: segment %s: confirmed_true by C3 must not appear in the script", s.SegmentID)
			}
			if opts.BlockedSegments != nil && opts.BlockedSegments[s.SegmentID] {
				return fmt.Errorf("script: segment %s: BLOCKED rebuttal must not appear in the script", s.SegmentID)
			}
		}
	}

	for _, id := range order {
		entry := seen[id]
		if entry.pre == 0 || entry.clip == 0 || entry.post == 0 {
			return fmt.Errorf("script: segment %s: missing one of pre_clip/clip_ref/post_clip (pre=%d clip=%d post=%d)", id, entry.pre, entry.clip, entry.post)
		}
		if !(entry.pre < entry.clip && entry.clip < entry.post) {
			return fmt.Errorf("script: segment %s: pre_clip/clip_ref/post_clip out of order (pre=%d clip=%d post=%d)", id, entry.pre, entry.clip, entry.post)
		}
	}

	return nil
}

func find(haystack []string, needle string) (int, bool) {
	for i, v := range haystack {
		if v == needle {
			return i, true
		}
	}
	return -1, false
}

// ApplyLenientDefaults fills in optional metadata C7 is permitted to default
// rather than reject, per spec §4.7.
func (sc *Script) ApplyLenientDefaults() {
	if sc.Metadata.TotalEstDurationS == 0 {
		sc.Metadata.TotalEstDurationS = sc.TotalEstimatedDuration()
	}
}
