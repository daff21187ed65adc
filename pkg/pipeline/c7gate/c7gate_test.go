package c7gate

import (
	"testing"

	"verifyscript/pkg/script"
)

func TestRunRejectsOutOfOrderSections(t *testing.T) {
	sc := &script.Script{
		Sections: []script.Section{
			{Kind: script.KindPostClip, SegmentID: "s1"},
			{Kind: script.KindPreClip, SegmentID: "s1"},
			{Kind: script.KindClipRef, SegmentID: "s1", SourceStart: 1, SourceEnd: 2},
		},
	}
	if err := Run(sc, 0, 10, script.ValidationOptions{}); err == nil {
		t.Fatal("expected validation error for out-of-order sections")
	}
}

func TestRunAppliesLenientDefaultsAndPasses(t *testing.T) {
	sc := &script.Script{
		Sections: []script.Section{
			{Kind: script.KindIntro, Text: "hi", EstDurationS: 1},
			{Kind: script.KindPreClip, SegmentID: "s1", EstDurationS: 1},
			{Kind: script.KindClipRef, SegmentID: "s1", SourceStart: 1, SourceEnd: 2},
			{Kind: script.KindPostClip, SegmentID: "s1", EstDurationS: 1},
			{Kind: script.KindOutro, Text: "bye", EstDurationS: 1},
		},
	}
	if err := Run(sc, 0, 10, script.ValidationOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sc.Metadata.TotalEstDurationS == 0 {
		t.Errorf("expected lenient default to fill total_est_duration_s")
	}
}
