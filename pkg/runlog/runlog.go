// Package runlog is the structured run log for a pipeline execution: gate
// verdicts, verification verdicts, recovery markers, and self-correction
// attempts, all emitted through zerolog so they land in both the console and
// an optional debug session-log file. Grounded on ManuGH-xg2g and
// Agnikulu-WikiSurge's zerolog setup; neither example repo duplicates output
// to a second sink, so the MultiLevelWriter wiring here is built from
// zerolog's own documented composition rather than copied from the pack.
package runlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the base zerolog.Logger for a run. If debugLogPath is non-empty,
// every log event is also appended to that file (spec §3's debug session
// log), in addition to the console writer.
func New(level string, pretty bool, debugLogPath string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var console io.Writer = os.Stderr
	if pretty {
		console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	writer := console
	if debugLogPath != "" {
		f, err := os.OpenFile(debugLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Logger{}, err
		}
		writer = zerolog.MultiLevelWriter(console, f)
	}

	return zerolog.New(writer).With().Timestamp().Logger(), nil
}

// ForEpisode returns a child logger tagged with the episode id, so every
// line from a run can be filtered to one episode.
func ForEpisode(base zerolog.Logger, episodeID string) zerolog.Logger {
	return base.With().Str("episode_id", episodeID).Logger()
}

// ForStage returns a child logger tagged with the pipeline stage name.
func ForStage(base zerolog.Logger, stage string) zerolog.Logger {
	return base.With().Str("stage", stage).Logger()
}

// GateVerdict logs one segment's outcome from C2 or C8's gate checks.
func GateVerdict(log zerolog.Logger, segmentID, gate string, passed bool, reason string) {
	log.Info().
		Str("segment_id", segmentID).
		Str("gate", gate).
		Bool("passed", passed).
		Str("reason", reason).
		Msg("gate verdict")
}

// VerificationVerdict logs C3's or C9's fact-check outcome for a segment.
func VerificationVerdict(log zerolog.Logger, segmentID, kind, rationale string) {
	log.Info().
		Str("segment_id", segmentID).
		Str("verdict", kind).
		Str("rationale", rationale).
		Msg("verification verdict")
}

// Recovery logs a C5 false-negative recovery event.
func Recovery(log zerolog.Logger, segmentID string, admitted bool, reason string) {
	log.Info().
		Str("segment_id", segmentID).
		Bool("admitted", admitted).
		Str("reason", reason).
		Msg("recovery decision")
}

// CorrectionAttempt logs a C8 self-correction retry.
func CorrectionAttempt(log zerolog.Logger, segmentID string, attempt int, state string) {
	log.Warn().
		Str("segment_id", segmentID).
		Int("attempt", attempt).
		Str("state", state).
		Msg("rebuttal self-correction attempt")
}

// Blocked logs a segment entering the terminal BLOCKED state and the policy
// applied to resolve it.
func Blocked(log zerolog.Logger, segmentID, policy string) {
	log.Error().
		Str("segment_id", segmentID).
		Str("policy", policy).
		Msg("segment blocked after exhausting self-correction")
}
