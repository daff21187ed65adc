// Package config loads the pipeline's YAML configuration document, grounded
// on Agnikulu-WikiSurge's internal/config/config.go (yaml.v3 unmarshal,
// setDefaults/overrideWithEnv/validateConfig layering).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the pipeline-wide configuration document: per-stage model
// selection (spec §6), sizing knobs (spec §4), keyword families for recent
// events detection (spec §4.3), concurrency, and the BLOCKED-state policy
// (spec §4.8).
type Config struct {
	Backend     BackendConfig     `yaml:"backend"`
	Stages      StagesConfig      `yaml:"stages"`
	Sizing      SizingConfig      `yaml:"sizing"`
	RecentTerms []string          `yaml:"recent_event_terms"`
	Rebuttal    RebuttalConfig    `yaml:"rebuttal"`
	Script      ScriptConfig      `yaml:"script"`
	Concurrency int               `yaml:"concurrency"`
	Logging     LoggingConfig     `yaml:"logging"`
	Workspace   WorkspaceConfig   `yaml:"workspace"`
}

// BackendConfig selects and authenticates the LLM backend (spec §6).
type BackendConfig struct {
	Provider string `yaml:"provider"` // "google" or "ark"
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"` // resolved from env if empty, see overrideWithEnv
	RPS      float64 `yaml:"rps"`
	Burst    int     `yaml:"burst"`
}

// StageConfig is the per-stage model/temperature override shared by all nine
// stages; zero values fall back to BackendConfig.Model and 0.2.
type StageConfig struct {
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
}

// StagesConfig holds the nine per-stage overrides, keyed the way the spec
// names each pass.
type StagesConfig struct {
	C1Analyzer  StageConfig `yaml:"c1_analyzer"`
	C2Filter    StageConfig `yaml:"c2_filter"`
	C3Verifier  StageConfig `yaml:"c3_verifier"`
	C4Selector  StageConfig `yaml:"c4_selector"`
	C5Recovery  StageConfig `yaml:"c5_recovery"`
	C6Structure StageConfig `yaml:"c6_structure"`
	C6Script    StageConfig `yaml:"c6_script"`
	C8Rebuttal  StageConfig `yaml:"c8_rebuttal"`
	C9Validator StageConfig `yaml:"c9_validator"`
}

// SizingConfig captures the C1 candidate cap, the C4 target-selected
// cardinality and its proportional-to-duration derivation, and the C5
// false-negative recovery budget from spec §4.4/§4.5.
type SizingConfig struct {
	MaxCandidates int `yaml:"max_candidates"` // C1's ~20-candidate cap

	// TargetSelected is C4's fallback/default target N when PerHourCoefficient
	// is zero or the transcript carries no usable duration; otherwise N is
	// derived from duration and clamped to [MinSelected, MaxSelected].
	TargetSelected      int     `yaml:"target_selected"`
	PerHourCoefficient  float64 `yaml:"per_hour_coefficient"` // spec §4.4 "default 5-8 per hour"
	MinSelected         int     `yaml:"min_selected"`         // spec §4.4 clamp floor, default 4
	MaxSelected         int     `yaml:"max_selected"`         // spec §4.4 clamp ceiling, default 20

	RecoveryTopM   int `yaml:"recovery_top_m"` // C5's M: size of the re-examined rejection pool, default 5
	RecoveryBudget int `yaml:"recovery_budget"` // C5's K: max re-admitted segments, default 2

	WordsPerMinute int     `yaml:"words_per_minute"`  // for duration estimation, spec §4.6
	MaxClipSeconds int     `yaml:"max_clip_seconds"`  // 0 disables the cap, spec Open Question
	ClipPaddingS   float64 `yaml:"clip_padding_s"`    // seconds of context padding applied to each clip_ref, spec §4.6
}

// RebuttalConfig governs C8's bounded self-correction loop (spec §4.8).
type RebuttalConfig struct {
	MaxCorrectionAttempts int    `yaml:"max_correction_attempts"`
	BlockedPolicy         string `yaml:"blocked_policy"` // "drop_segment" or "fail_run"
}

// ScriptConfig governs the final assembled script (persona/house style refs
// from spec §4.6, kept freeform since their content is not pipeline logic).
type ScriptConfig struct {
	PersonaRef    string `yaml:"persona_ref"`
	HouseRulesRef string `yaml:"house_rules_ref"`
	TargetAudience string `yaml:"target_audience"`
}

// LoggingConfig controls zerolog output (level, and whether the console
// writer uses zerolog.ConsoleWriter's pretty formatting). The debug
// session-log file itself is not configured here: its path is always
// Processing/debug/<session_id>.log under the episode directory (spec §6),
// keyed by the session id the caller generates per run.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// WorkspaceConfig locates the per-episode working directories (spec §3).
type WorkspaceConfig struct {
	RootDir string `yaml:"root_dir"`
}

// Load reads and validates a config document from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	setDefaults(&cfg)
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return &cfg, nil
}

func setDefaults(c *Config) {
	if c.Backend.Provider == "" {
		c.Backend.Provider = "google"
	}
	if c.Backend.RPS == 0 {
		c.Backend.RPS = 2
	}
	if c.Backend.Burst == 0 {
		c.Backend.Burst = 2
	}
	if c.Sizing.MaxCandidates == 0 {
		c.Sizing.MaxCandidates = 20
	}
	if c.Sizing.TargetSelected == 0 {
		c.Sizing.TargetSelected = 8
	}
	if c.Sizing.PerHourCoefficient == 0 {
		c.Sizing.PerHourCoefficient = 6
	}
	if c.Sizing.MinSelected == 0 {
		c.Sizing.MinSelected = 4
	}
	if c.Sizing.MaxSelected == 0 {
		c.Sizing.MaxSelected = 20
	}
	if c.Sizing.RecoveryTopM == 0 {
		c.Sizing.RecoveryTopM = 5
	}
	if c.Sizing.RecoveryBudget == 0 {
		c.Sizing.RecoveryBudget = 2
	}
	if c.Sizing.WordsPerMinute == 0 {
		c.Sizing.WordsPerMinute = 165
	}
	if c.Rebuttal.MaxCorrectionAttempts == 0 {
		c.Rebuttal.MaxCorrectionAttempts = 3
	}
	if c.Rebuttal.BlockedPolicy == "" {
		c.Rebuttal.BlockedPolicy = "drop_segment"
	}
	if c.Concurrency == 0 {
		c.Concurrency = 4
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if len(c.RecentTerms) == 0 {
		c.RecentTerms = []string{
			"breaking", "this week", "yesterday", "today", "just announced",
			"died", "dead", "passed away", "resigned", "indicted", "arrested",
			"election results", "verdict", "ceasefire", "airstrike",
		}
	}
	for _, sc := range []*StageConfig{
		&c.Stages.C1Analyzer, &c.Stages.C2Filter, &c.Stages.C3Verifier,
		&c.Stages.C4Selector, &c.Stages.C5Recovery, &c.Stages.C6Structure,
		&c.Stages.C6Script, &c.Stages.C8Rebuttal, &c.Stages.C9Validator,
	} {
		if sc.Model == "" {
			sc.Model = c.Backend.Model
		}
		if sc.Temperature == 0 {
			sc.Temperature = 0.2
		}
	}
}

func overrideWithEnv(c *Config) {
	if v := os.Getenv("VERIFYSCRIPT_API_KEY"); v != "" {
		c.Backend.APIKey = v
	}
	if v := os.Getenv("VERIFYSCRIPT_BACKEND"); v != "" {
		c.Backend.Provider = v
	}
	if v := os.Getenv("VERIFYSCRIPT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("VERIFYSCRIPT_WORKSPACE_DIR"); v != "" {
		c.Workspace.RootDir = v
	}
}

// Validate rejects configuration documents that cannot produce a correct
// run, rather than silently clamping them.
func (c *Config) Validate() error {
	if c.Backend.Provider != "google" && c.Backend.Provider != "ark" {
		return fmt.Errorf("backend.provider must be \"google\" or \"ark\", got %q", c.Backend.Provider)
	}
	if c.Backend.Model == "" {
		return fmt.Errorf("backend.model must be set")
	}
	if c.Sizing.TargetSelected > c.Sizing.MaxCandidates {
		return fmt.Errorf("sizing.target_selected (%d) must not exceed sizing.max_candidates (%d)",
			c.Sizing.TargetSelected, c.Sizing.MaxCandidates)
	}
	if c.Rebuttal.BlockedPolicy != "drop_segment" && c.Rebuttal.BlockedPolicy != "fail_run" {
		return fmt.Errorf("rebuttal.blocked_policy must be \"drop_segment\" or \"fail_run\", got %q",
			c.Rebuttal.BlockedPolicy)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.Workspace.RootDir == "" {
		return fmt.Errorf("workspace.root_dir must be set")
	}
	if len(c.RecentTerms) == 0 {
		return fmt.Errorf("recent_event_terms must not be empty (spec §4.3's date-sensitivity trigger needs at least one keyword family)")
	}
	if c.Sizing.MinSelected <= 0 {
		return fmt.Errorf("sizing.min_selected must be positive, got %d", c.Sizing.MinSelected)
	}
	if c.Sizing.MinSelected > c.Sizing.MaxSelected {
		return fmt.Errorf("sizing.min_selected (%d) must not exceed sizing.max_selected (%d)",
			c.Sizing.MinSelected, c.Sizing.MaxSelected)
	}
	if c.Sizing.RecoveryTopM <= 0 {
		return fmt.Errorf("sizing.recovery_top_m must be positive, got %d", c.Sizing.RecoveryTopM)
	}
	if c.Sizing.RecoveryBudget <= 0 {
		return fmt.Errorf("sizing.recovery_budget must be positive, got %d", c.Sizing.RecoveryBudget)
	}
	if c.Sizing.RecoveryBudget > c.Sizing.RecoveryTopM {
		return fmt.Errorf("sizing.recovery_budget (%d) must not exceed sizing.recovery_top_m (%d): C5 cannot re-admit more segments than it re-examines",
			c.Sizing.RecoveryBudget, c.Sizing.RecoveryTopM)
	}
	for _, ref := range []struct{ flag, path string }{
		{"script.persona_ref", c.Script.PersonaRef},
		{"script.house_rules_ref", c.Script.HouseRulesRef},
	} {
		if ref.path == "" {
			continue
		}
		if err := checkReadableFile(ref.path); err != nil {
			return fmt.Errorf("%s: %w", ref.flag, err)
		}
	}
	return nil
}

// checkReadableFile confirms path names a regular, openable file, used by
// Validate to reject persona/host-rules references that cannot be resolved
// at startup rather than failing deep inside a pipeline run.
func checkReadableFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot resolve %q: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%q is a directory, not a file", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open %q: %w", path, err)
	}
	return f.Close()
}

// StageTimeout is a per-call timeout value for stage LLM calls. Nothing in
// this module applies it: the orchestrator and the stages pass their
// caller's context to the backend without a per-call deadline.
const StageTimeout = 180 * time.Second
