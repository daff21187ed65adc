// Package pipeline sequences C1 through C9 end to end for one episode,
// durably materializing every stage's artifact under the episode's
// Processing/ directory so a crashed or interrupted run can resume without
// repeating already-completed work (spec §3 Lifecycle, §5 "happens-before
// ordering maintained by artifact materialization"). Grounded on the
// teacher's cmd/batch_eval driver loop (sequential stage invocation with a
// per-stage log line and a final summary), generalized here from a single
// scoring pass to nine heterogeneous stages with cross-stage artifact
// dependencies.
package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"verifyscript/pkg/artifact"
	"verifyscript/pkg/concurrency"
	"verifyscript/pkg/config"
	"verifyscript/pkg/episode"
	"verifyscript/pkg/llm"
	"verifyscript/pkg/pipeline/c1analyzer"
	"verifyscript/pkg/pipeline/c2filter"
	"verifyscript/pkg/pipeline/c3verifier"
	"verifyscript/pkg/pipeline/c4selector"
	"verifyscript/pkg/pipeline/c5recovery"
	"verifyscript/pkg/pipeline/c6script"
	"verifyscript/pkg/pipeline/c7gate"
	"verifyscript/pkg/pipeline/c8rebuttal"
	"verifyscript/pkg/pipeline/c9validator"
	"verifyscript/pkg/pipelineerr"
	"verifyscript/pkg/progress"
	"verifyscript/pkg/runlog"
	"verifyscript/pkg/script"
	"verifyscript/pkg/segment"
	"verifyscript/pkg/transcript"
)

// Artifact file names under the episode's Processing/ directory.
const (
	fileC1Segments       = "c1_segments.json"
	fileC2Filter         = "c2_filter.json"
	fileC3Verification   = "c3_verification.json"
	fileC4Selection      = "c4_selection.json"
	fileC5Recovery       = "c5_recovery.json"
	fileC6StructurePlan  = "c6_structure_plan.json"
	fileC6CreativeScript = "c6_creative_script.json"
	fileC8Rebuttal       = "c8_rebuttal.json"
	fileC9Validation     = "c9_validation.json"

	finalScriptName = "verified_unified_script.json"
)

// Options bundles everything one end-to-end run needs.
type Options struct {
	Cfg            *config.Config
	Backend        llm.Backend
	Dir            *episode.Dir
	Log            zerolog.Logger
	Metadata       episode.Metadata
	Transcript     *transcript.Transcript
	TranscriptPath string
	HostRules      string
	HostProfile    string
	Persona        string
	// Hub, if non-nil, receives a progress.Event at the start and end of
	// every stage (spec §3's live-progress requirement). Optional: a CLI
	// run with no attached UI leaves this nil.
	Hub *progress.Hub
}

// RunSummary is the durable, human-facing account of one run, written to
// the episode's Output/run_summary.json (spec §7 "User-visible behavior").
type RunSummary struct {
	EpisodeID              string `json:"episode_id"`
	Backend                string `json:"backend"`
	C1Candidates           int    `json:"c1_candidates"`
	C2Survived             int    `json:"c2_survived"`
	C2Rejected             int    `json:"c2_rejected"`
	C3Checked              int    `json:"c3_checked"`
	C3ConfirmedTrueRemoved int    `json:"c3_confirmed_true_removed"`
	C4Selected             int    `json:"c4_selected"`
	C5Recovered            int    `json:"c5_recovered"`
	C5Displaced            int    `json:"c5_displaced"`
	C6SegmentsDropped      int    `json:"c6_segments_dropped"`
	ClipClamps             int    `json:"clip_clamps"`
	C8Accepted             int    `json:"c8_accepted"`
	C8Blocked              int    `json:"c8_blocked"`
	C8RewriteAttempts      int    `json:"c8_rewrite_attempts"`
	C9Checked              int    `json:"c9_checked"`
	C9Degraded             int    `json:"c9_degraded"`
	FinalSections          int    `json:"final_sections"`
	ScriptPath             string `json:"script_path"`
}

func (o Options) concurrency() int {
	if o.Cfg.Concurrency <= 0 {
		return 4
	}
	return o.Cfg.Concurrency
}

func (o Options) publish(stage, status, detail string) {
	if o.Hub == nil {
		return
	}
	o.Hub.Publish(progress.Event{
		EpisodeID: o.Metadata.EpisodeTitle,
		Stage:     stage,
		Status:    status,
		Detail:    detail,
	})
}

// Run drives the full C1-C9 pipeline for one episode, resuming from
// whichever stage artifacts already exist on disk.
func Run(ctx context.Context, o Options) (*script.Script, *RunSummary, error) {
	if err := o.Dir.Lock(); err != nil {
		return nil, nil, pipelineerr.New("orchestrator", pipelineerr.KindConfiguration, err)
	}
	defer o.Dir.Unlock()

	summary := &RunSummary{EpisodeID: o.Metadata.EpisodeTitle, Backend: o.Backend.Name()}

	c1Result, err := runC1(ctx, o)
	if err != nil {
		return nil, nil, err
	}
	summary.C1Candidates = len(c1Result.Segments)

	filterVerdicts, err := runC2(ctx, o, c1Result.Segments)
	if err != nil {
		return nil, nil, err
	}

	annotated, c3Checked, confirmedTrueRemoved, err := runC3(ctx, o, c1Result.Segments, filterVerdicts)
	if err != nil {
		return nil, nil, err
	}
	summary.C3Checked = c3Checked
	summary.C3ConfirmedTrueRemoved = confirmedTrueRemoved
	for _, a := range annotated {
		if a.Filter.Passed {
			summary.C2Survived++
		} else {
			summary.C2Rejected++
		}
	}

	c4Cfg := c4selector.Config{
		TargetSelected:     o.Cfg.Sizing.TargetSelected,
		PerHourCoefficient: o.Cfg.Sizing.PerHourCoefficient,
		MinSelected:        o.Cfg.Sizing.MinSelected,
		MaxSelected:        o.Cfg.Sizing.MaxSelected,
	}
	durationHours := o.Transcript.Duration() / 3600

	c4Result, err := runC4(ctx, o, annotated, c4Cfg, durationHours)
	if err != nil {
		return nil, nil, err
	}

	c5Result, err := runC5(ctx, o, c4Result, c4Cfg, durationHours)
	if err != nil {
		return nil, nil, err
	}
	summary.C4Selected = len(c4Result.Selected)
	summary.C5Recovered = len(c5Result.Recovered)
	summary.C5Displaced = len(c5Result.Displaced)
	for _, r := range c5Result.Recovered {
		runlog.Recovery(o.Log, r.Segment.SegmentID, true, "admitted by C5 second-opinion review")
	}

	plan, _, sc, clamps, err := runC6(ctx, o, c5Result.Selected)
	if err != nil {
		return nil, nil, err
	}
	summary.ClipClamps = len(clamps)
	for _, c := range clamps {
		o.Log.Warn().Str("segment_id", c.SegmentID).Float64("original_end", c.OriginalEnd).
			Float64("clamped_end", c.ClampedEnd).Msg("c6script: clip_ref source_end clamped by max_clip_seconds")
	}
	droppedBySections := 0
	for _, sec := range plan.Order {
		if sec.Dropped {
			droppedBySections++
		}
	}
	summary.C6SegmentsDropped = droppedBySections

	confirmedTrue := make(map[string]bool)
	for _, a := range annotated {
		if a.Verdict.Kind == segment.ConfirmedTrue {
			confirmedTrue[a.Segment.SegmentID] = true
		}
	}
	transcriptStart, transcriptEnd := o.Transcript.Range()
	if err := c7gate.Run(sc, transcriptStart, transcriptEnd, script.ValidationOptions{ConfirmedTrueSegments: confirmedTrue}); err != nil {
		return nil, nil, err
	}

	selectedByID := make(map[string]segment.SelectedSegment, len(c5Result.Selected))
	for _, s := range c5Result.Selected {
		selectedByID[s.Segment.SegmentID] = s
	}

	postClipResults, err := runC8(ctx, o, sc, selectedByID)
	if err != nil {
		return nil, nil, err
	}

	blocked := applyC8Results(o, sc, postClipResults, summary)

	if len(blocked) > 0 {
		if o.Cfg.Rebuttal.BlockedPolicy == "fail_run" {
			return nil, nil, pipelineerr.New("c8rebuttal", pipelineerr.KindSemantic,
				fmt.Errorf("%d segment(s) BLOCKED after exhausting self-correction, policy is fail_run", len(blocked)))
		}
		for id := range blocked {
			runlog.Blocked(o.Log, id, o.Cfg.Rebuttal.BlockedPolicy)
			dropSegmentFromScript(sc, id)
			delete(selectedByID, id)
		}
		if err := c7gate.Run(sc, transcriptStart, transcriptEnd, script.ValidationOptions{ConfirmedTrueSegments: confirmedTrue}); err != nil {
			return nil, nil, err
		}
	}

	if err := runC9(ctx, o, sc, selectedByID, summary); err != nil {
		return nil, nil, err
	}

	if err := c7gate.Run(sc, transcriptStart, transcriptEnd, script.ValidationOptions{ConfirmedTrueSegments: confirmedTrue}); err != nil {
		return nil, nil, err
	}

	scriptPath := o.Dir.ScriptPath(finalScriptName)
	if err := artifact.Write(scriptPath, sc); err != nil {
		return nil, nil, pipelineerr.New("orchestrator", pipelineerr.KindFatal, err)
	}
	summary.FinalSections = len(sc.Sections)
	summary.ScriptPath = scriptPath

	if err := artifact.Write(o.Dir.RunSummaryPath(), summary); err != nil {
		return nil, nil, pipelineerr.New("orchestrator", pipelineerr.KindFatal, err)
	}

	return sc, summary, nil
}

func runC1(ctx context.Context, o Options) (*c1analyzer.Result, error) {
	path := o.Dir.ProcessingPath(fileC1Segments)
	var result c1analyzer.Result
	if artifact.Exists(path) {
		if err := artifact.Read(path, &result); err != nil {
			return nil, pipelineerr.New("c1analyzer", pipelineerr.KindFatal, err)
		}
		return &result, nil
	}

	o.publish("c1analyzer", "started", "")
	res, err := c1analyzer.Run(ctx, o.Backend, o.Cfg.Stages.C1Analyzer.Temperature, c1analyzer.Input{
		Transcript:     o.Transcript,
		TranscriptPath: o.TranscriptPath,
		Metadata:       o.Metadata,
		HostRules:      o.HostRules,
		HostProfile:    o.HostProfile,
		MaxCandidates:  o.Cfg.Sizing.MaxCandidates,
	})
	if err != nil {
		o.publish("c1analyzer", "failed", err.Error())
		return nil, err
	}
	if err := artifact.Write(path, res); err != nil {
		return nil, pipelineerr.New("c1analyzer", pipelineerr.KindFatal, err)
	}
	o.publish("c1analyzer", "completed", fmt.Sprintf("%d candidates", len(res.Segments)))
	return res, nil
}

func runC2(ctx context.Context, o Options, segments []segment.Segment) ([]segment.FilterVerdict, error) {
	path := o.Dir.ProcessingPath(fileC2Filter)
	var verdicts []segment.FilterVerdict
	if artifact.Exists(path) {
		if err := artifact.Read(path, &verdicts); err != nil {
			return nil, pipelineerr.New("c2filter", pipelineerr.KindFatal, err)
		}
		return verdicts, nil
	}

	o.publish("c2filter", "started", "")
	verdicts, err := c2filter.RunAll(ctx, o.Backend, o.Cfg.Stages.C2Filter.Temperature, o.concurrency(), segments)
	if err != nil {
		o.publish("c2filter", "failed", err.Error())
		return nil, err
	}
	for _, v := range verdicts {
		gate, failed := v.FirstFailure()
		runlog.GateVerdict(o.Log, v.SegmentID, string(gate), !failed, "")
	}
	if err := artifact.Write(path, verdicts); err != nil {
		return nil, pipelineerr.New("c2filter", pipelineerr.KindFatal, err)
	}
	o.publish("c2filter", "completed", "")
	return verdicts, nil
}

// runC3 runs recent-events verification for every segment that either
// tripped a recent-event keyword or whose C2 accuracy_at_risk gate was
// marked uncertain (spec §4.2), and attaches each verdict to a fresh
// Annotated alongside its C2 verdict. Segments needing no check get
// VerdictKind NotApplicable without spending an LLM call.
func runC3(ctx context.Context, o Options, segments []segment.Segment, filterVerdicts []segment.FilterVerdict) ([]segment.Annotated, int, int, error) {
	path := o.Dir.ProcessingPath(fileC3Verification)
	var verdicts []segment.VerificationVerdict
	checked := 0

	if artifact.Exists(path) {
		if err := artifact.Read(path, &verdicts); err != nil {
			return nil, 0, 0, pipelineerr.New("c3verifier", pipelineerr.KindFatal, err)
		}
	} else {
		o.publish("c3verifier", "started", "")
		jobs := make([]verifyJob, len(segments))
		for i, s := range segments {
			jobs[i] = verifyJob{seg: s, forced: filterVerdicts[i].Passed && filterVerdicts[i].RequiresVerification}
		}

		temp := o.Cfg.Stages.C3Verifier.Temperature
		keywords := o.Cfg.RecentTerms
		results, err := concurrency.Map(ctx, jobs, o.concurrency(), func(ctx context.Context, i int, j verifyJob) (segment.VerificationVerdict, error) {
			switch {
			case c3verifier.IsDateSensitive(j.seg, keywords):
				return c3verifier.Verify(ctx, o.Backend, temp, j.seg, keywords)
			case j.forced:
				return c3verifier.VerifyForced(ctx, o.Backend, temp, j.seg, "")
			default:
				return segment.VerificationVerdict{Kind: segment.NotApplicable}, nil
			}
		})
		if err != nil {
			o.publish("c3verifier", "failed", err.Error())
			return nil, 0, 0, err
		}
		verdicts = results
		if err := artifact.Write(path, verdicts); err != nil {
			return nil, 0, 0, pipelineerr.New("c3verifier", pipelineerr.KindFatal, err)
		}
		o.publish("c3verifier", "completed", "")
	}

	confirmedTrueRemoved := 0
	annotated := make([]segment.Annotated, len(segments))
	for i, s := range segments {
		v := verdicts[i]
		if v.Kind != segment.NotApplicable {
			checked++
			runlog.VerificationVerdict(o.Log, s.SegmentID, string(v.Kind), v.Rationale)
			if v.Kind == segment.ConfirmedTrue {
				confirmedTrueRemoved++
			}
		}
		annotated[i] = segment.Annotated{Segment: s, Filter: filterVerdicts[i], Verdict: v}
	}
	return annotated, checked, confirmedTrueRemoved, nil
}

func runC4(ctx context.Context, o Options, annotated []segment.Annotated, cfg c4selector.Config, durationHours float64) (*c4selector.Result, error) {
	path := o.Dir.ProcessingPath(fileC4Selection)
	var result c4selector.Result
	if artifact.Exists(path) {
		if err := artifact.Read(path, &result); err != nil {
			return nil, pipelineerr.New("c4selector", pipelineerr.KindFatal, err)
		}
		return &result, nil
	}

	o.publish("c4selector", "started", "")
	res, err := c4selector.Select(annotated, cfg, durationHours)
	if err != nil {
		o.publish("c4selector", "failed", err.Error())
		return nil, pipelineerr.New("c4selector", pipelineerr.KindFatal, err)
	}
	if err := artifact.Write(path, res); err != nil {
		return nil, pipelineerr.New("c4selector", pipelineerr.KindFatal, err)
	}
	o.publish("c4selector", "completed", fmt.Sprintf("%d selected", len(res.Selected)))
	return res, nil
}

func runC5(ctx context.Context, o Options, c4Result *c4selector.Result, selectorCfg c4selector.Config, durationHours float64) (*c5recovery.Result, error) {
	path := o.Dir.ProcessingPath(fileC5Recovery)
	var result c5recovery.Result
	if artifact.Exists(path) {
		if err := artifact.Read(path, &result); err != nil {
			return nil, pipelineerr.New("c5recovery", pipelineerr.KindFatal, err)
		}
		return &result, nil
	}

	o.publish("c5recovery", "started", "")
	cfg := c5recovery.Config{TopM: o.Cfg.Sizing.RecoveryTopM, Budget: o.Cfg.Sizing.RecoveryBudget}
	res, err := c5recovery.Run(ctx, o.Backend, o.Cfg.Stages.C5Recovery.Temperature, o.concurrency(), c4Result, cfg, selectorCfg, durationHours)
	if err != nil {
		o.publish("c5recovery", "failed", err.Error())
		return nil, err
	}
	if err := artifact.Write(path, res); err != nil {
		return nil, pipelineerr.New("c5recovery", pipelineerr.KindFatal, err)
	}
	o.publish("c5recovery", "completed", fmt.Sprintf("%d recovered", len(res.Recovered)))
	return res, nil
}

func runC6(ctx context.Context, o Options, selected []segment.SelectedSegment) (*c6script.StructurePlan, *c6script.CreativeScript, *script.Script, []c6script.ClipClamp, error) {
	transcriptStart, transcriptEnd := o.Transcript.Range()
	in := c6script.Input{
		Selected:        selected,
		Persona:         o.Persona,
		TargetAudience:  o.Cfg.Script.TargetAudience,
		WordsPerMinute:  o.Cfg.Sizing.WordsPerMinute,
		ClipPaddingS:    o.Cfg.Sizing.ClipPaddingS,
		MaxClipSeconds:  o.Cfg.Sizing.MaxClipSeconds,
		TranscriptStart: transcriptStart,
		TranscriptEnd:   transcriptEnd,
	}

	planPath := o.Dir.ProcessingPath(fileC6StructurePlan)
	var plan c6script.StructurePlan
	if artifact.Exists(planPath) {
		if err := artifact.Read(planPath, &plan); err != nil {
			return nil, nil, nil, nil, pipelineerr.New("c6script", pipelineerr.KindFatal, err)
		}
	} else {
		o.publish("c6script", "started", "planning structure")
		p, err := c6script.Plan(ctx, o.Backend, o.Cfg.Stages.C6Structure.Temperature, in)
		if err != nil {
			o.publish("c6script", "failed", err.Error())
			return nil, nil, nil, nil, err
		}
		plan = *p
		if err := artifact.Write(planPath, plan); err != nil {
			return nil, nil, nil, nil, pipelineerr.New("c6script", pipelineerr.KindFatal, err)
		}
	}

	creativePath := o.Dir.ProcessingPath(fileC6CreativeScript)
	var creative c6script.CreativeScript
	if artifact.Exists(creativePath) {
		if err := artifact.Read(creativePath, &creative); err != nil {
			return nil, nil, nil, nil, pipelineerr.New("c6script", pipelineerr.KindFatal, err)
		}
	} else {
		o.publish("c6script", "started", "writing prose")
		cs, err := c6script.Creative(ctx, o.Backend, o.Cfg.Stages.C6Script.Temperature, in, &plan)
		if err != nil {
			o.publish("c6script", "failed", err.Error())
			return nil, nil, nil, nil, err
		}
		creative = *cs
		if err := artifact.Write(creativePath, creative); err != nil {
			return nil, nil, nil, nil, pipelineerr.New("c6script", pipelineerr.KindFatal, err)
		}
	}

	sc, clamps, err := c6script.Assemble(in, &plan, &creative)
	if err != nil {
		return nil, nil, nil, nil, pipelineerr.New("c6script", pipelineerr.KindFatal, err)
	}
	o.publish("c6script", "completed", fmt.Sprintf("%d sections", len(sc.Sections)))
	return &plan, &creative, sc, clamps, nil
}

func runC8(ctx context.Context, o Options, sc *script.Script, selectedByID map[string]segment.SelectedSegment) ([]*c8rebuttal.PostClipResult, error) {
	path := o.Dir.ProcessingPath(fileC8Rebuttal)
	var results []*c8rebuttal.PostClipResult
	if artifact.Exists(path) {
		if err := artifact.Read(path, &results); err != nil {
			return nil, pipelineerr.New("c8rebuttal", pipelineerr.KindFatal, err)
		}
		return results, nil
	}

	o.publish("c8rebuttal", "started", "")
	var jobs []c8rebuttal.Job
	for _, sec := range sc.Sections {
		if sec.Kind != script.KindPostClip {
			continue
		}
		sel, ok := selectedByID[sec.SegmentID]
		if !ok {
			return nil, pipelineerr.New("c8rebuttal", pipelineerr.KindFatal,
				fmt.Errorf("post_clip section %s has no matching selected segment", sec.SegmentID))
		}
		jobs = append(jobs, c8rebuttal.Job{Segment: sel, InitialText: sec.RebuttalText})
	}

	cfg := c8rebuttal.Config{
		MaxAttempts:   o.Cfg.Rebuttal.MaxCorrectionAttempts,
		VerifyTemp:    o.Cfg.Stages.C8Rebuttal.Temperature,
		BlockedPolicy: o.Cfg.Rebuttal.BlockedPolicy,
	}
	res, err := c8rebuttal.RunAll(ctx, o.Backend, cfg, o.concurrency(), o.Persona, jobs)
	if err != nil {
		o.publish("c8rebuttal", "failed", err.Error())
		return nil, err
	}
	if err := artifact.Write(path, res); err != nil {
		return nil, pipelineerr.New("c8rebuttal", pipelineerr.KindFatal, err)
	}
	o.publish("c8rebuttal", "completed", "")
	return res, nil
}

// applyC8Results writes each PostClip's final rebuttal text back into sc,
// logs every rewrite attempt, and returns the set of segment ids that ended
// BLOCKED (spec §4.8's terminal state the orchestrator must act on).
func applyC8Results(o Options, sc *script.Script, results []*c8rebuttal.PostClipResult, summary *RunSummary) map[string]bool {
	bySegmentID := make(map[string]*c8rebuttal.PostClipResult, len(results))
	for _, r := range results {
		bySegmentID[r.SegmentID] = r
		for _, at := range r.Attempts[1:] {
			summary.C8RewriteAttempts++
			runlog.CorrectionAttempt(o.Log, r.SegmentID, at.AttemptNumber, string(r.State))
		}
		if r.State == c8rebuttal.StateAccepted {
			summary.C8Accepted++
		} else {
			summary.C8Blocked++
		}
	}

	blocked := make(map[string]bool)
	for i := range sc.Sections {
		sec := &sc.Sections[i]
		if sec.Kind != script.KindPostClip {
			continue
		}
		r, ok := bySegmentID[sec.SegmentID]
		if !ok {
			continue
		}
		sec.RebuttalText = r.FinalText
		if r.State == c8rebuttal.StateBlocked {
			blocked[sec.SegmentID] = true
		}
	}
	return blocked
}

// runC9 spot-checks every surviving PostClip's own factual assertions. A
// rebuttal whose own claim is contradicted gets one targeted rewrite
// attempt, reusing C8's rewrite/verify machinery; if that attempt still
// fails, the segment stays in the script but the run is marked degraded
// rather than dropped (spec §4.9: "mark the script as degraded").
func runC9(ctx context.Context, o Options, sc *script.Script, selectedByID map[string]segment.SelectedSegment, summary *RunSummary) error {
	path := o.Dir.ProcessingPath(fileC9Validation)
	var verdicts []c9validator.ClaimVerdict
	if artifact.Exists(path) {
		if err := artifact.Read(path, &verdicts); err != nil {
			return pipelineerr.New("c9validator", pipelineerr.KindFatal, err)
		}
	} else {
		o.publish("c9validator", "started", "")
		var targets []c9validator.Target
		for _, sec := range sc.Sections {
			if sec.Kind == script.KindPostClip {
				targets = append(targets, c9validator.Target{SegmentID: sec.SegmentID, RebuttalText: sec.RebuttalText})
			}
		}
		res, err := c9validator.RunAll(ctx, o.Backend, o.Cfg.Stages.C9Validator.Temperature, o.concurrency(), targets)
		if err != nil {
			o.publish("c9validator", "failed", err.Error())
			return err
		}
		verdicts = res
		if err := artifact.Write(path, verdicts); err != nil {
			return pipelineerr.New("c9validator", pipelineerr.KindFatal, err)
		}
		o.publish("c9validator", "completed", "")
	}

	bySegmentID := make(map[string]int, len(sc.Sections))
	for i, sec := range sc.Sections {
		if sec.Kind == script.KindPostClip {
			bySegmentID[sec.SegmentID] = i
		}
	}

	for idx, v := range verdicts {
		summary.C9Checked++
		runlog.VerificationVerdict(o.Log, v.SegmentID, string(v.Kind), v.Rationale)
		if v.Kind != segment.ConfirmedFalse {
			continue
		}

		sel, ok := selectedByID[v.SegmentID]
		secIdx, hasSec := bySegmentID[v.SegmentID]
		if !ok || !hasSec {
			continue
		}

		verify := c8rebuttal.VerifyResult{
			Passed:     false,
			FailedGate: c8rebuttal.GateGrounded,
			Gates:      []c8rebuttal.GateResult{{GateID: c8rebuttal.GateGrounded, Passed: false, Reason: v.Rationale}},
		}
		currentText := sc.Sections[secIdx].RebuttalText
		rewritten, err := c8rebuttal.Rewrite(ctx, o.Backend, o.Cfg.Stages.C9Validator.Temperature, o.Persona, sel, currentText, verify)
		if err != nil {
			return err
		}
		summary.C8RewriteAttempts++
		runlog.CorrectionAttempt(o.Log, v.SegmentID, -1, "c9_rewrite")

		recheck, err := c9validator.Validate(ctx, o.Backend, o.Cfg.Stages.C9Validator.Temperature, v.SegmentID, rewritten)
		if err != nil {
			return err
		}
		if recheck.Kind != segment.ConfirmedFalse {
			sc.Sections[secIdx].RebuttalText = rewritten
			sc.Sections[secIdx].Citations = recheck.Sources
			continue
		}

		verdicts[idx].Degraded = true
		summary.C9Degraded++
		o.Log.Warn().Str("segment_id", v.SegmentID).Msg("c9validator: rebuttal's own claim remains unconfirmed after rewrite, script marked degraded")
	}

	return artifact.Write(path, verdicts)
}

// dropSegmentFromScript removes segmentID's pre_clip/clip_ref/post_clip
// triple from sc, preserving the order of every remaining section (spec
// §4.8's drop_segment policy).
func dropSegmentFromScript(sc *script.Script, segmentID string) {
	kept := sc.Sections[:0]
	for _, sec := range sc.Sections {
		if sec.SegmentID == segmentID && sec.Kind != script.KindIntro && sec.Kind != script.KindOutro {
			continue
		}
		kept = append(kept, sec)
	}
	sc.Sections = kept
}

// verifyJob is one segment's C3 work item: whether it needs a forced check
// because C2's accuracy_at_risk gate came back uncertain (spec §4.2).
type verifyJob struct {
	seg    segment.Segment
	forced bool
}
