// Command server exposes the C1-C9 pipeline over a small JSON/HTTP API plus
// a live progress WebSocket, so a long-running episode can be kicked off
// and observed remotely instead of only from a terminal (spec §5 "long runs
// are expected"). Grounded on the teacher's cmd/server/main.go (flag-
// configured http.ServeMux, .env loading, JSON handlers over a workspace of
// per-case artifacts) generalized from ASR-case browsing to per-episode
// pipeline runs, with routing lifted to ManuGH-xg2g's go-chi/chi usage and
// progress streaming to pkg/progress's gorilla/websocket hub.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"verifyscript/pkg/config"
	"verifyscript/pkg/episode"
	"verifyscript/pkg/llm"
	"verifyscript/pkg/pipeline"
	"verifyscript/pkg/pipelineerr"
	"verifyscript/pkg/progress"
	"verifyscript/pkg/runid"
	"verifyscript/pkg/runlog"
	"verifyscript/pkg/transcript"
)

func main() {
	var (
		port       int
		configPath string
		staticDir  string
	)
	flag.IntVar(&port, "port", 8080, "Port to listen on")
	flag.StringVar(&configPath, "config", "config.yaml", "Pipeline configuration document")
	flag.StringVar(&staticDir, "static-dir", "static", "Directory of static UI assets to serve at /, if present")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := runlog.New(cfg.Logging.Level, cfg.Logging.Pretty, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	hub := progress.NewHub(log)
	stop := make(chan struct{})
	go hub.Run(stop)
	defer close(stop)

	srv := &server{cfg: cfg, log: log, hub: hub, runs: make(map[string]*runRecord)}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", srv.handleHealth)
	r.Get("/ws/progress", hub.ServeHTTP)
	r.Post("/api/runs", srv.handleStartRun)
	r.Get("/api/runs/{id}", srv.handleGetRun)

	if info, statErr := os.Stat(staticDir); statErr == nil && info.IsDir() {
		fileServer := http.FileServer(http.Dir(staticDir))
		r.Handle("/*", fileServer)
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Info().Str("addr", addr).Msg("listening")
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

// runRequest is the POST /api/runs body: episode Input/ resource paths
// (spec §6). Episode metadata is read from metadata_path rather than
// inlined, mirroring how the CLI reads it (cmd/verifyscript).
type runRequest struct {
	EpisodeDir      string `json:"episode_dir"`
	TranscriptPath  string `json:"transcript_path"`
	MetadataPath    string `json:"metadata_path"`
	HostRulesPath   string `json:"host_rules_path"`
	HostProfilePath string `json:"host_profile_path"`
	PersonaPath     string `json:"persona_path"`
}

// runRecord is the in-memory status of one dispatched run, keyed by run id.
// The durable account of a completed run lives in the episode's own
// Output/run_summary.json (written by pkg/pipeline); this registry only
// answers "is it done yet" for a caller that isn't polling the filesystem.
type runRecord struct {
	ID         string              `json:"id"`
	EpisodeDir string              `json:"episode_dir"`
	Status     string              `json:"status"` // "running", "completed", "failed"
	Error      string              `json:"error,omitempty"`
	Summary    *pipeline.RunSummary `json:"summary,omitempty"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at,omitzero"`
}

type server struct {
	cfg  *config.Config
	log  zerolog.Logger
	hub  *progress.Hub
	mu   sync.Mutex
	runs map[string]*runRecord
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.EpisodeDir == "" || req.TranscriptPath == "" || req.MetadataPath == "" {
		http.Error(w, "episode_dir, transcript_path, and metadata_path are required", http.StatusBadRequest)
		return
	}

	rec := &runRecord{ID: runid.New(), EpisodeDir: req.EpisodeDir, Status: "running", StartedAt: time.Now()}
	s.mu.Lock()
	s.runs[rec.ID] = rec
	s.mu.Unlock()

	go s.runPipeline(rec, req)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(rec)
}

func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	rec, ok := s.runs[id]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

func (s *server) runPipeline(rec *runRecord, req runRequest) {
	ctx := context.Background()
	log := s.log

	finish := func(status, errMsg string, summary *pipeline.RunSummary) {
		s.mu.Lock()
		rec.Status = status
		rec.Error = errMsg
		rec.Summary = summary
		rec.FinishedAt = time.Now()
		s.mu.Unlock()
	}

	dir, err := episode.Open(req.EpisodeDir)
	if err != nil {
		log.Error().Err(err).Msg("open episode directory")
		finish("failed", err.Error(), nil)
		return
	}

	// rec.ID doubles as this run's debug-log session id, so the file sink
	// lands at Processing/debug/<rec.ID>.log inside the episode directory
	// that was just opened, keyed by the same id the caller polls
	// GET /api/runs/{id} with.
	sessionLog, err := runlog.New(s.cfg.Logging.Level, s.cfg.Logging.Pretty, dir.DebugLogPath(rec.ID))
	if err != nil {
		log.Error().Err(err).Msg("init session debug log")
		finish("failed", err.Error(), nil)
		return
	}
	log = runlog.ForEpisode(sessionLog, rec.ID)

	var metadata episode.Metadata
	if data, readErr := os.ReadFile(req.MetadataPath); readErr != nil {
		finish("failed", readErr.Error(), nil)
		return
	} else if jsonErr := json.Unmarshal(data, &metadata); jsonErr != nil {
		finish("failed", jsonErr.Error(), nil)
		return
	}

	transcriptBytes, err := os.ReadFile(req.TranscriptPath)
	if err != nil {
		finish("failed", err.Error(), nil)
		return
	}
	tr, err := transcript.Parse(transcriptBytes)
	if err != nil {
		finish("failed", err.Error(), nil)
		return
	}

	hostRules, err := readOptional(req.HostRulesPath, metadata.AnalysisRulesRef)
	if err != nil {
		finish("failed", err.Error(), nil)
		return
	}
	hostProfile, err := readOptional(req.HostProfilePath, metadata.HostProfileRef)
	if err != nil {
		finish("failed", err.Error(), nil)
		return
	}
	persona, err := readOptional(req.PersonaPath, s.cfg.Script.PersonaRef)
	if err != nil {
		finish("failed", err.Error(), nil)
		return
	}

	backend, err := newBackend(ctx, s.cfg)
	if err != nil {
		finish("failed", err.Error(), nil)
		return
	}
	backend = llm.NewRetryBackend(backend, s.cfg.Backend.RPS, s.cfg.Backend.Burst)

	_, summary, err := pipeline.Run(ctx, pipeline.Options{
		Cfg:            s.cfg,
		Backend:        backend,
		Dir:            dir,
		Log:            log,
		Metadata:       metadata,
		Transcript:     tr,
		TranscriptPath: req.TranscriptPath,
		HostRules:      hostRules,
		HostProfile:    hostProfile,
		Persona:        persona,
		Hub:            s.hub,
	})
	if err != nil {
		kind := pipelineerr.KindOf(err)
		log.Error().Err(err).Str("kind", string(kind)).Msg("pipeline run failed")
		finish("failed", err.Error(), nil)
		return
	}
	finish("completed", "", summary)
}

func readOptional(path, fallbackRef string) (string, error) {
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
