// Package episode manages one episode's working directory: the
// Input/Processing/Output/Scripts layout of durable per-stage artifacts
// (spec §3), plus a directory-level lock so two pipeline runs never write
// the same episode concurrently. The lock pattern is grounded on five82-
// spindle's internal/daemon.Daemon (gofrs/flock TryLock/Unlock around a
// single long-running process), adapted here to a per-episode directory
// rather than a single daemon-wide lock file.
package episode

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Dir is one episode's working directory and its fixed subdirectory layout.
type Dir struct {
	Root string
	lock *flock.Flock
}

// Layout subdirectories, fixed by spec §3.
const (
	subInput      = "Input"
	subProcessing = "Processing"
	subOutput     = "Output"
	subScripts    = "Scripts"
	lockFileName  = ".verifyscript.lock"
)

// Open creates (if needed) the episode directory layout under root and
// returns a Dir bound to it. It does not acquire the lock; call Lock
// separately once the caller is ready to begin writing.
func Open(root string) (*Dir, error) {
	for _, sub := range []string{subInput, subProcessing, filepath.Join(subProcessing, subDebug), filepath.Join(subOutput, subScripts)} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("episode: create %s: %w", sub, err)
		}
	}
	return &Dir{
		Root: root,
		lock: flock.New(filepath.Join(root, lockFileName)),
	}, nil
}

// Lock acquires the single-writer lock for this episode directory,
// returning an error if another run already holds it.
func (d *Dir) Lock() error {
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("episode: acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("episode: another run already holds the lock for %s", d.Root)
	}
	return nil
}

// Unlock releases the lock acquired by Lock.
func (d *Dir) Unlock() error {
	return d.lock.Unlock()
}

// InputPath returns the path to a named file under Input/.
func (d *Dir) InputPath(name string) string {
	return filepath.Join(d.Root, subInput, name)
}

// ProcessingPath returns the path to a named stage artifact under
// Processing/, e.g. "c1_segments.json".
func (d *Dir) ProcessingPath(name string) string {
	return filepath.Join(d.Root, subProcessing, name)
}

// ScriptPath returns the path to a named final script under Output/Scripts/.
func (d *Dir) ScriptPath(name string) string {
	return filepath.Join(d.Root, subOutput, subScripts, name)
}

// RunSummaryPath returns the path to the run's summary artifact under
// Output/, recording per-stage timings, token usage, and drop/block counts.
func (d *Dir) RunSummaryPath() string {
	return filepath.Join(d.Root, subOutput, "run_summary.json")
}

// subDebug is the Processing/debug/ subdirectory holding one log file per
// session id (spec §6's "debug logs keyed by session id").
const subDebug = "debug"

// DebugLogPath returns the path to this run's debug session log, under
// Processing/debug/<sessionID>.log, duplicated from the console via
// zerolog.MultiLevelWriter. sessionID is normally a runid.New() value
// generated once per invocation, so concurrent runs over the same episode
// (or repeated runs over time) never collide on the same file.
func (d *Dir) DebugLogPath(sessionID string) string {
	return filepath.Join(d.Root, subProcessing, subDebug, sessionID+".log")
}
