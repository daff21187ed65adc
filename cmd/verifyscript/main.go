// Command verifyscript drives one episode through the C1-C9 pipeline from
// the command line. Grounded on five82-spindle's cmd/spindle/main.go
// (a single newRootCommand building a cobra tree, persistent config/flag
// loading in PersistentPreRunE, subcommands resolved from closures over the
// loaded config) — adapted here from a daemon-IPC client to a direct,
// in-process orchestrator invocation since this pipeline has no daemon.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"verifyscript/pkg/config"
	"verifyscript/pkg/episode"
	"verifyscript/pkg/llm"
	"verifyscript/pkg/pipeline"
	"verifyscript/pkg/pipelineerr"
	"verifyscript/pkg/runid"
	"verifyscript/pkg/runlog"
	"verifyscript/pkg/transcript"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// runInputs collects the file paths a "run" invocation needs beyond the
// config document: the episode's Input/ resources (spec §6).
type runInputs struct {
	configPath     string
	episodeDir     string
	transcriptPath string
	metadataPath   string
	hostRulesPath  string
	hostProfilePath string
	personaPath    string
}

func newRootCommand() *cobra.Command {
	var in runInputs

	rootCmd := &cobra.Command{
		Use:           "verifyscript",
		Short:         "Verify and script a fact-checking commentary pass over a diarized transcript",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&in.configPath, "config", "c", "config.yaml", "Pipeline configuration document")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the C1-C9 pipeline for one episode, resuming from whatever stage artifacts already exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), in)
		},
	}
	runCmd.Flags().StringVar(&in.episodeDir, "episode-dir", "", "Episode working directory root (Input/Processing/Output live under it)")
	runCmd.Flags().StringVar(&in.transcriptPath, "transcript", "", "Path to the diarized transcript JSON (spec §6)")
	runCmd.Flags().StringVar(&in.metadataPath, "metadata", "", "Path to the episode metadata JSON (host_name, guest_name, episode_title, ...)")
	runCmd.Flags().StringVar(&in.hostRulesPath, "host-rules", "", "Path to the host-specific analysis rules document (overrides metadata.analysis_rules_ref)")
	runCmd.Flags().StringVar(&in.hostProfilePath, "host-profile", "", "Path to the optional host/guest profile document (overrides metadata.host_profile_ref)")
	runCmd.Flags().StringVar(&in.personaPath, "persona", "", "Path to the canonical persona document (spec §9)")
	_ = runCmd.MarkFlagRequired("episode-dir")
	_ = runCmd.MarkFlagRequired("transcript")
	_ = runCmd.MarkFlagRequired("metadata")

	validateCmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Load and validate the configuration document without running anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(in.configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration valid: backend=%s model=%s workspace=%s\n",
				cfg.Backend.Provider, cfg.Backend.Model, cfg.Workspace.RootDir)
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, validateCmd)
	return rootCmd
}

func runPipeline(ctx context.Context, in runInputs) error {
	_ = godotenv.Load()

	cfg, err := config.Load(in.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dir, err := episode.Open(in.episodeDir)
	if err != nil {
		return fmt.Errorf("open episode directory: %w", err)
	}

	sessionID := runid.New()
	log, err := runlog.New(cfg.Logging.Level, cfg.Logging.Pretty, dir.DebugLogPath(sessionID))
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log = log.With().Str("session_id", sessionID).Logger()

	metadata, err := readMetadata(in.metadataPath)
	if err != nil {
		return fmt.Errorf("read episode metadata: %w", err)
	}
	log = runlog.ForEpisode(log, metadata.EpisodeTitle)

	transcriptBytes, err := os.ReadFile(in.transcriptPath)
	if err != nil {
		return fmt.Errorf("read transcript: %w", err)
	}
	tr, err := transcript.Parse(transcriptBytes)
	if err != nil {
		return fmt.Errorf("parse transcript: %w", err)
	}

	hostRules, err := resolveTextRef(in.hostRulesPath, metadata.AnalysisRulesRef)
	if err != nil {
		return fmt.Errorf("read host rules: %w", err)
	}
	hostProfile, err := resolveTextRef(in.hostProfilePath, metadata.HostProfileRef)
	if err != nil {
		return fmt.Errorf("read host profile: %w", err)
	}
	persona, err := resolveTextRef(in.personaPath, cfg.Script.PersonaRef)
	if err != nil {
		return fmt.Errorf("read persona: %w", err)
	}

	backend, err := newBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init llm backend: %w", err)
	}
	backend = llm.NewRetryBackend(backend, cfg.Backend.RPS, cfg.Backend.Burst)

	sc, summary, err := pipeline.Run(ctx, pipeline.Options{
		Cfg:            cfg,
		Backend:        backend,
		Dir:            dir,
		Log:            log,
		Metadata:       metadata,
		Transcript:     tr,
		TranscriptPath: in.transcriptPath,
		HostRules:      hostRules,
		HostProfile:    hostProfile,
		Persona:        persona,
	})
	if err != nil {
		var pe *pipelineerr.Error
		if errors.As(err, &pe) {
			return fmt.Errorf("pipeline failed at stage %s (%s): %w", pe.Stage, pe.Kind, err)
		}
		return fmt.Errorf("pipeline failed: %w", err)
	}

	fmt.Printf("Wrote %s (%d sections, %d segments selected, %d blocked, %d degraded)\n",
		summary.ScriptPath, len(sc.Sections), summary.C4Selected, summary.C8Blocked, summary.C9Degraded)
	return nil
}

func readMetadata(path string) (episode.Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return episode.Metadata{}, err
	}
	var m episode.Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return episode.Metadata{}, err
	}
	return m, nil
}

// resolveTextRef reads the free-text document at path if non-empty,
// otherwise at fallbackRef (the episode metadata's own reference), and
// returns "" without error if neither is set — host profile and persona are
// both optional inputs (spec §3).
func resolveTextRef(path, fallbackRef string) (string, error) {
	if path == "" {
		path = fallbackRef
	}
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func newBackend(ctx context.Context, cfg *config.Config) (llm.Backend, error) {
	apiKey := cfg.Backend.APIKey
	switch cfg.Backend.Provider {
	case "google":
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		return llm.NewGoogleBackend(ctx, apiKey, cfg.Backend.Model)
	case "ark":
		if apiKey == "" {
			apiKey = os.Getenv("ARK_API_KEY")
		}
		return llm.NewArkBackend(apiKey, cfg.Backend.Model)
	default:
		return nil, fmt.Errorf("unknown backend provider %q", cfg.Backend.Provider)
	}
}
