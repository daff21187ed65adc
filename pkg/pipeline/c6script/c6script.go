// Package c6script implements C6, the Script Generator (spec §4.6): a
// two-step LLM pipeline that first produces a structure plan (ordering,
// section bundles, drop decisions) and then a creative script (speakable
// prose for every section), followed by a mechanical assembly pass that
// derives timestamps and estimated durations from the underlying segments
// rather than trusting the model's numeric output (spec §4.6 "Numeric
// semantics"). Grounded on the teacher's two-call generate-then-evaluate
// shape in pkg/evalv2 (GenerateContext, then Evaluate against that context),
// generalized from one domain object to two sequential structured calls
// plus a deterministic assembly pass the teacher has no equivalent of.
package c6script

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"verifyscript/pkg/llm"
	"verifyscript/pkg/pipelineerr"
	"verifyscript/pkg/prompt"
	"verifyscript/pkg/script"
	"verifyscript/pkg/segment"
)

const stageName = "c6script"

// Input bundles everything both generation steps need.
type Input struct {
	Selected       []segment.SelectedSegment
	Persona        string // resolved text of the single canonical persona resource (spec §9)
	TargetAudience string
	WordsPerMinute int
	ClipPaddingS   float64
	MaxClipSeconds int // 0 disables the cap (spec §9 Open Question)
	TranscriptStart float64
	TranscriptEnd   float64
}

// StructureSection is one segment's placement in the plan (spec §4.6 Step 6a).
type StructureSection struct {
	SegmentID  string `json:"segment_id"`
	Dropped    bool   `json:"dropped,omitempty"`
	DropReason string `json:"drop_reason,omitempty"`
}

// StructurePlan is C6's first artifact.
type StructurePlan struct {
	HookSegmentID string              `json:"hook_segment_id"`
	Order         []StructureSection  `json:"order"`
	IntroStub     string              `json:"intro_stub"`
	OutroStub     string              `json:"outro_stub"`
}

var structureTemplate = prompt.Must("c6_structure", `You are planning the structure of a fact-checking commentary episode covering {{len .Selected}} selected segments from an interview/podcast.

Segments (id, title, harm category, rhetorical strategies, societal impacts, severity hint as a rough signal only):
{{range .Selected}}- {{.Segment.SegmentID}}: "{{.Segment.Title}}" [{{.Segment.HarmCategory.Primary}}] rhetorical: {{.Segment.RhetoricalStrategies}} societal: {{.Segment.SocietalImpacts}} severity_hint: {{.Segment.SeverityHint}}
{{end}}

Task: choose a playback order for these segments, including which one opens as the cold-open "hook" (the most attention-grabbing). You MUST account for every segment listed above: either place it in the order, or explicitly mark it dropped with a one-sentence justification (dropping is allowed here even though every segment already survived prior review). Also draft a short intro stub and outro stub (a sentence or two each, not the full script — the next step writes the full prose).

Respond with JSON only: {"hook_segment_id": "...", "order": [{"segment_id": "...", "dropped": false}, {"segment_id": "...", "dropped": true, "drop_reason": "..."}], "intro_stub": "...", "outro_stub": "..."}`)

// Plan executes C6 Step 6a.
func Plan(ctx context.Context, backend llm.Backend, temperature float32, in Input) (*StructurePlan, error) {
	p, err := prompt.Render(structureTemplate, in)
	if err != nil {
		return nil, pipelineerr.New(stageName, pipelineerr.KindFatal, err)
	}

	raw, _, err := backend.GenerateStructured(ctx, llm.StructuredRequest{
		Prompt:      p,
		Temperature: temperature,
		Schema:      StructurePlan{},
	})
	if err != nil {
		return nil, pipelineerr.New(stageName, pipelineerr.KindTransient, err)
	}

	var plan StructurePlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, pipelineerr.New(stageName, pipelineerr.KindValidation, fmt.Errorf("parse structure plan: %w", err))
	}
	if err := validatePlan(plan, in.Selected); err != nil {
		return nil, pipelineerr.New(stageName, pipelineerr.KindValidation, err)
	}
	return &plan, nil
}

func validatePlan(plan StructurePlan, selected []segment.SelectedSegment) error {
	byID := make(map[string]bool, len(selected))
	for _, s := range selected {
		byID[s.Segment.SegmentID] = true
	}
	seen := make(map[string]bool, len(plan.Order))
	for _, o := range plan.Order {
		if !byID[o.SegmentID] {
			return fmt.Errorf("structure plan: unknown segment_id %q", o.SegmentID)
		}
		if seen[o.SegmentID] {
			return fmt.Errorf("structure plan: segment %q listed twice", o.SegmentID)
		}
		seen[o.SegmentID] = true
	}
	for id := range byID {
		if !seen[id] {
			return fmt.Errorf("structure plan: segment %q missing from order (must appear, dropped or not)", id)
		}
	}
	return nil
}

// creativeSection is one segment's speakable prose (spec §4.6 Step 6b).
type creativeSection struct {
	SegmentID    string `json:"segment_id"`
	PreClipText  string `json:"pre_clip_text"`
	RebuttalText string `json:"rebuttal_text"`
}

// CreativeScript is C6's second artifact: full speakable prose.
type CreativeScript struct {
	IntroText string            `json:"intro_text"`
	Sections  []creativeSection `json:"sections"`
	OutroText string            `json:"outro_text"`
}

var creativeTemplate = prompt.Must("c6_creative", `You are writing the full speakable script for a fact-checking commentary episode, for a target audience of "{{.Input.TargetAudience}}".

### Persona (use this voice consistently throughout — this is the single canonical reference; do not invent a different tone)

{{.Input.Persona | prefix "> "}}

### Structure plan

Hook segment: {{.Plan.HookSegmentID}}
Intro stub: {{.Plan.IntroStub}}
Outro stub: {{.Plan.OutroStub}}
Order: {{range .Plan.Order}}{{if not .Dropped}}{{.SegmentID}} {{end}}{{end}}

### Segment detail (use rhetorical_strategies, societal_impacts, harm_category, and the verification verdict and sources explicitly in your rebuttal prose)

{{range .Ordered}}#### {{.Segment.SegmentID}}: {{.Segment.Title}}
Harm category: {{.Segment.HarmCategory.Primary}} {{.Segment.HarmCategory.Subtypes}}
Rhetorical strategies: {{.Segment.RhetoricalStrategies}}
Societal impacts: {{.Segment.SocietalImpacts}}
Quotes: {{range .Segment.Quotes}}"{{.Quote}}" (speaker: {{.Speaker}}, t={{.Timestamp}}) {{end}}
Verification verdict: {{.Verdict.Kind}} — {{.Verdict.Rationale}}
Sources: {{range .Verdict.Sources}}{{.Title}} ({{.URL}}); {{end}}

{{end}}### Task

Write the full intro (expanding the intro stub), a pre-clip lead-in for each non-dropped segment (building anticipation for the upcoming clip), a post-clip rebuttal for each (grounded in the verdict and sources above, addressing the segment's actual claim, matching the persona, introducing no new misinformation), and the full outro (expanding the outro stub). Do not include stage directions, timestamps, or pronunciation/prosody formatting — plain speakable prose only; that is applied by a separate pass.

Respond with JSON only: {"intro_text": "...", "sections": [{"segment_id": "...", "pre_clip_text": "...", "rebuttal_text": "..."}], "outro_text": "..."}`)

// Creative executes C6 Step 6b.
func Creative(ctx context.Context, backend llm.Backend, temperature float32, in Input, plan *StructurePlan) (*CreativeScript, error) {
	bySegmentID := make(map[string]segment.SelectedSegment, len(in.Selected))
	for _, s := range in.Selected {
		bySegmentID[s.Segment.SegmentID] = s
	}

	ordered := make([]segment.SelectedSegment, 0, len(plan.Order))
	for _, o := range plan.Order {
		if o.Dropped {
			continue
		}
		ordered = append(ordered, bySegmentID[o.SegmentID])
	}

	p, err := prompt.Render(creativeTemplate, struct {
		Input   Input
		Plan    *StructurePlan
		Ordered []segment.SelectedSegment
	}{in, plan, ordered})
	if err != nil {
		return nil, pipelineerr.New(stageName, pipelineerr.KindFatal, err)
	}

	raw, _, err := backend.GenerateStructured(ctx, llm.StructuredRequest{
		Prompt:      p,
		Temperature: temperature,
		Schema:      CreativeScript{},
	})
	if err != nil {
		return nil, pipelineerr.New(stageName, pipelineerr.KindTransient, err)
	}

	var cs CreativeScript
	if err := json.Unmarshal(raw, &cs); err != nil {
		return nil, pipelineerr.New(stageName, pipelineerr.KindValidation, fmt.Errorf("parse creative script: %w", err))
	}

	bySectionID := make(map[string]creativeSection, len(cs.Sections))
	for _, sec := range cs.Sections {
		bySectionID[sec.SegmentID] = sec
	}
	for _, s := range ordered {
		if _, ok := bySectionID[s.Segment.SegmentID]; !ok {
			return nil, pipelineerr.New(stageName, pipelineerr.KindValidation,
				fmt.Errorf("creative script: missing section for segment %s", s.Segment.SegmentID))
		}
	}

	return &cs, nil
}

// ClipClamp records a clip whose source_end was clamped by MaxClipSeconds
// (spec §9 Open Question: "the clamp is logged so it's auditable").
type ClipClamp struct {
	SegmentID    string  `json:"segment_id"`
	OriginalEnd  float64 `json:"original_end"`
	ClampedEnd   float64 `json:"clamped_end"`
}

func wordsToSeconds(text string, wpm int) float64 {
	if wpm <= 0 {
		wpm = 165
	}
	n := len(strings.Fields(text))
	return float64(n) / float64(wpm) * 60
}

// Assemble mechanically combines the plan, the creative prose, and each
// segment's context_range into the final script.Script (spec §4.6
// Outputs/Numeric semantics). No LLM call is involved here: timestamps and
// durations are derived deterministically.
func Assemble(in Input, plan *StructurePlan, creative *CreativeScript) (*script.Script, []ClipClamp, error) {
	bySegmentID := make(map[string]segment.SelectedSegment, len(in.Selected))
	for _, s := range in.Selected {
		bySegmentID[s.Segment.SegmentID] = s
	}
	bySectionID := make(map[string]creativeSection, len(creative.Sections))
	for _, sec := range creative.Sections {
		bySectionID[sec.SegmentID] = sec
	}

	var sections []script.Section
	var clamps []ClipClamp

	sections = append(sections, script.Section{
		Kind:         script.KindIntro,
		Text:         creative.IntroText,
		EstDurationS: wordsToSeconds(creative.IntroText, in.WordsPerMinute),
	})

	for _, o := range plan.Order {
		if o.Dropped {
			continue
		}
		sel, ok := bySegmentID[o.SegmentID]
		if !ok {
			return nil, nil, fmt.Errorf("c6script: assemble: unknown segment %s in plan", o.SegmentID)
		}
		cs, ok := bySectionID[o.SegmentID]
		if !ok {
			return nil, nil, fmt.Errorf("c6script: assemble: no creative prose for segment %s", o.SegmentID)
		}

		start := sel.Segment.ContextRange.Start - in.ClipPaddingS
		end := sel.Segment.ContextRange.End + in.ClipPaddingS
		if start < in.TranscriptStart {
			start = in.TranscriptStart
		}
		if end > in.TranscriptEnd {
			end = in.TranscriptEnd
		}
		if in.MaxClipSeconds > 0 {
			capped := start + float64(in.MaxClipSeconds)
			if end > capped {
				clamps = append(clamps, ClipClamp{SegmentID: o.SegmentID, OriginalEnd: end, ClampedEnd: capped})
				end = capped
			}
		}

		sections = append(sections,
			script.Section{
				Kind:         script.KindPreClip,
				SegmentID:    o.SegmentID,
				Text:         cs.PreClipText,
				EstDurationS: wordsToSeconds(cs.PreClipText, in.WordsPerMinute),
			},
			script.Section{
				Kind:        script.KindClipRef,
				SegmentID:   o.SegmentID,
				SourceStart: start,
				SourceEnd:   end,
			},
			script.Section{
				Kind:         script.KindPostClip,
				SegmentID:    o.SegmentID,
				RebuttalText: cs.RebuttalText,
				EstDurationS: wordsToSeconds(cs.RebuttalText, in.WordsPerMinute),
				Citations:    sel.Verdict.Sources,
			},
		)
	}

	sections = append(sections, script.Section{
		Kind:         script.KindOutro,
		Text:         creative.OutroText,
		EstDurationS: wordsToSeconds(creative.OutroText, in.WordsPerMinute),
	})

	sc := &script.Script{
		Metadata: script.Metadata{TargetAudience: in.TargetAudience},
		Sections: sections,
	}
	sc.ApplyLenientDefaults()
	return sc, clamps, nil
}
