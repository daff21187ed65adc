package runlog

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestGateVerdictLogsExpectedFields(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	GateVerdict(log, "seg-1", "harm", false, "no societal harm identified")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if entry["segment_id"] != "seg-1" || entry["gate"] != "harm" || entry["passed"] != false {
		t.Fatalf("unexpected log entry: %v", entry)
	}
}

func TestForEpisodeAndForStageTagLoggers(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	log := ForStage(ForEpisode(base, "ep-42"), "c3verifier")
	log.Info().Msg("hello")

	out := buf.String()
	if !strings.Contains(out, `"episode_id":"ep-42"`) || !strings.Contains(out, `"stage":"c3verifier"`) {
		t.Fatalf("expected tagged fields in output, got %s", out)
	}
}

func TestBlockedLogsErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	Blocked(log, "seg-9", "drop_segment")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if entry["level"] != "error" || entry["policy"] != "drop_segment" {
		t.Fatalf("unexpected log entry: %v", entry)
	}
}
