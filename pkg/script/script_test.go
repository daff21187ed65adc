package script

import "testing"

func validScript() *Script {
	return &Script{
		Sections: []Section{
			{Kind: KindIntro, Text: "Welcome back.", EstDurationS: 5},
			{Kind: KindPreClip, SegmentID: "seg-1", Text: "Here's what he said.", EstDurationS: 4},
			{Kind: KindClipRef, SegmentID: "seg-1", SourceStart: 10, SourceEnd: 20},
			{Kind: KindPostClip, SegmentID: "seg-1", RebuttalText: "Actually, no.", EstDurationS: 6},
			{Kind: KindOutro, Text: "See you next time.", EstDurationS: 3},
		},
	}
}

func TestValidateOK(t *testing.T) {
	sc := validScript()
	if err := sc.Validate(0, 100, ValidationOptions{}); err != nil {
		t.Fatalf("expected valid script, got %v", err)
	}
}

func TestValidateBadClipOrder(t *testing.T) {
	sc := &Script{Sections: []Section{
		{Kind: KindClipRef, SegmentID: "seg-1", SourceStart: 10, SourceEnd: 20},
		{Kind: KindPreClip, SegmentID: "seg-1"},
		{Kind: KindPostClip, SegmentID: "seg-1"},
	}}
	if err := sc.Validate(0, 100, ValidationOptions{}); err == nil {
		t.Fatal("expected error when clip_ref precedes pre_clip")
	}
}

func TestValidateClipOutOfRange(t *testing.T) {
	sc := validScript()
	sc.Sections[2].SourceEnd = 200
	if err := sc.Validate(0, 100, ValidationOptions{}); err == nil {
		t.Fatal("expected error for clip range outside transcript bounds")
	}
}

func TestValidateSourceStartNotLessThanEnd(t *testing.T) {
	sc := validScript()
	sc.Sections[2].SourceStart = 20
	sc.Sections[2].SourceEnd = 20
	if err := sc.Validate(0, 100, ValidationOptions{}); err == nil {
		t.Fatal("expected error when source_start == source_end")
	}
}

func TestValidateDuplicateSegmentID(t *testing.T) {
	sc := validScript()
	sc.Sections = append(sc.Sections, Section{Kind: KindPreClip, SegmentID: "seg-1"})
	if err := sc.Validate(0, 100, ValidationOptions{}); err == nil {
		t.Fatal("expected error for duplicate segment_id pre_clip")
	}
}

func TestValidateConfirmedTrueRejected(t *testing.T) {
	sc := validScript()
	opts := ValidationOptions{ConfirmedTrueSegments: map[string]bool{"seg-1": true}}
	if err := sc.Validate(0, 100, opts); err == nil {
		t.Fatal("expected error for confirmed_true segment appearing in script")
	}
}

func TestValidateBlockedRejected(t *testing.T) {
	sc := validScript()
	opts := ValidationOptions{BlockedSegments: map[string]bool{"seg-1": true}}
	if err := sc.Validate(0, 100, opts); err == nil {
		t.Fatal("expected error for BLOCKED segment appearing in script")
	}
}

func TestTotalEstimatedDuration(t *testing.T) {
	sc := validScript()
	// 5 (intro) + 4 (pre) + 10 (clip 10->20) + 6 (post) + 3 (outro) = 28
	if got := sc.TotalEstimatedDuration(); got != 28 {
		t.Fatalf("expected total duration 28, got %v", got)
	}
}

func TestApplyLenientDefaults(t *testing.T) {
	sc := validScript()
	sc.ApplyLenientDefaults()
	if sc.Metadata.TotalEstDurationS != sc.TotalEstimatedDuration() {
		t.Fatalf("expected default total_est_duration_s to be filled in")
	}
}
