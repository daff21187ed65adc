package episode

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenCreatesLayout(t *testing.T) {
	root := t.TempDir()
	d, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, sub := range []string{"Input", "Processing", filepath.Join("Processing", "debug"), filepath.Join("Output", "Scripts")} {
		if info, err := os.Stat(filepath.Join(root, sub)); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s to exist", sub)
		}
	}
	if d.Root != root {
		t.Fatalf("Root = %q, want %q", d.Root, root)
	}
}

func TestLockPreventsSecondAcquisition(t *testing.T) {
	root := t.TempDir()
	d1, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := d1.Lock(); err != nil {
		t.Fatalf("first Lock: %v", err)
	}
	defer d1.Unlock()

	d2, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := d2.Lock(); err == nil {
		t.Fatal("expected second Lock to fail while first holds the lock")
	}
}

func TestPathHelpers(t *testing.T) {
	root := t.TempDir()
	d, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if d.InputPath("transcript.json") != filepath.Join(root, "Input", "transcript.json") {
		t.Errorf("unexpected InputPath: %s", d.InputPath("transcript.json"))
	}
	if d.ScriptPath("final.json") != filepath.Join(root, "Output", "Scripts", "final.json") {
		t.Errorf("unexpected ScriptPath: %s", d.ScriptPath("final.json"))
	}
}

// TestDebugLogPathKeyedBySessionID guards spec §6's "debug logs keyed by
// session id": two different session ids must resolve to two distinct
// files, both under Processing/debug/, never a single fixed path shared
// across runs.
func TestDebugLogPathKeyedBySessionID(t *testing.T) {
	root := t.TempDir()
	d, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	want := filepath.Join(root, "Processing", "debug", "session-a.log")
	if got := d.DebugLogPath("session-a"); got != want {
		t.Errorf("DebugLogPath(%q) = %q, want %q", "session-a", got, want)
	}
	if d.DebugLogPath("session-a") == d.DebugLogPath("session-b") {
		t.Fatal("distinct session ids must not collide on the same debug log path")
	}
}
