// Package artifact persists and resumes the content-addressed per-stage JSON
// artifacts each pipeline stage reads and writes under an episode's
// Input/Processing/Output directories (spec §3). Grounded on the teacher's
// pkg/workspace/service.go loadReportV2/saveReportV2 pair, generalized from
// one fixed report shape to any stage's output type, and switched from
// encoding/json to bytedance/sonic for the marshal/unmarshal pair (the
// teacher already depends on sonic transitively through its genai stack;
// this wires it directly rather than leaving it unused).
package artifact

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
)

// Write marshals v as indented JSON and writes it to path, creating parent
// directories as needed. It writes to a temp file in the same directory and
// renames into place so a crash mid-write never leaves a truncated artifact
// behind for a resumed run to trip over.
func Write(path string, v interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("artifact: mkdir %s: %w", dir, err)
	}

	data, err := sonic.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact: marshal %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("artifact: create temp for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("artifact: write temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("artifact: close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("artifact: rename temp into %s: %w", path, err)
	}
	return nil
}

// Read unmarshals the JSON artifact at path into v.
func Read(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("artifact: read %s: %w", path, err)
	}
	if err := sonic.Unmarshal(data, v); err != nil {
		return fmt.Errorf("artifact: unmarshal %s: %w", path, err)
	}
	return nil
}

// Exists reports whether an artifact already exists at path, so a stage can
// skip recomputation on a resumed run (spec §3's resumption requirement).
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
