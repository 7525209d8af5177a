// Package main implements the kg-engine API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"github.com/careerhunt/kg-engine/engine/ingest"
	"github.com/careerhunt/kg-engine/engine/kg"
	"github.com/careerhunt/kg-engine/engine/match"
	"github.com/careerhunt/kg-engine/engine/rebuild"
	"github.com/careerhunt/kg-engine/pkg/mid"
	"github.com/careerhunt/kg-engine/pkg/natsutil"
	"github.com/careerhunt/kg-engine/pkg/ollama"
	"github.com/careerhunt/kg-engine/pkg/resilience"
)

// RebuildTriggerSubject lets operators kick a full rebuild over NATS.
const RebuildTriggerSubject = "engine.kg.rebuild.trigger"

// Config holds all configuration. Values come from an optional YAML file
// (KG_CONFIG_FILE) with environment variables taking precedence.
type Config struct {
	Port           string  `yaml:"port"`
	DataDir        string  `yaml:"data_dir"`
	JobsCSV        string  `yaml:"jobs_csv"`
	RebuildAt      string  `yaml:"rebuild_at"`
	OllamaURL      string  `yaml:"ollama_url"`
	EmbedModel     string  `yaml:"embed_model"`
	GenerateModel  string  `yaml:"generate_model"`
	EncodeRPS      float64 `yaml:"encode_rps"`
	ExplainTimeout string  `yaml:"explain_timeout"`
	NATSURL        string  `yaml:"nats_url"`
	CORSOrigin     string  `yaml:"cors_origin"`
	MutationRPS    float64 `yaml:"mutation_rps"`
	MutationBurst  int     `yaml:"mutation_burst"`
}

func defaultConfig() Config {
	return Config{
		Port:           "8080",
		DataDir:        "./data",
		JobsCSV:        "./data/jobs.csv",
		RebuildAt:      rebuild.DefaultDailyAt,
		OllamaURL:      "http://localhost:11434",
		EmbedModel:     "nomic-embed-text",
		GenerateModel:  "llama3.2",
		EncodeRPS:      20,
		ExplainTimeout: "30s",
		CORSOrigin:     "*",
		MutationRPS:    50,
		MutationBurst:  100,
	}
}

func loadConfig() (Config, error) {
	cfg := defaultConfig()
	if path := os.Getenv("KG_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.Port = envOr("PORT", cfg.Port)
	cfg.DataDir = envOr("KG_DATA_DIR", cfg.DataDir)
	cfg.JobsCSV = envOr("KG_JOBS_CSV", cfg.JobsCSV)
	cfg.RebuildAt = envOr("KG_REBUILD_AT", cfg.RebuildAt)
	cfg.OllamaURL = envOr("OLLAMA_URL", cfg.OllamaURL)
	cfg.EmbedModel = envOr("OLLAMA_EMBED_MODEL", cfg.EmbedModel)
	cfg.GenerateModel = envOr("OLLAMA_GENERATE_MODEL", cfg.GenerateModel)
	cfg.ExplainTimeout = envOr("KG_EXPLAIN_TIMEOUT", cfg.ExplainTimeout)
	cfg.NATSURL = envOr("NATS_URL", cfg.NATSURL)
	cfg.CORSOrigin = envOr("CORS_ORIGIN", cfg.CORSOrigin)
	if v := os.Getenv("KG_ENCODE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.EncodeRPS = f
		}
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- NATS (optional) ---
	var nc *nats.Conn
	if cfg.NATSURL != "" {
		var err error
		nc, err = nats.Connect(cfg.NATSURL, nats.Name("kg-engine-api"))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()
	}
	events := natsutil.NewPublisher(nc, logger)

	// --- Ollama clients ---
	encoder := ollama.NewEncodeClient(cfg.OllamaURL, cfg.EmbedModel, cfg.EncodeRPS)
	generator := ollama.NewGenerateClient(cfg.OllamaURL, cfg.GenerateModel)

	// --- Open the store ---
	store, err := kg.Open(kg.DefaultOptions(cfg.DataDir), encoder, events, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	// --- Services ---
	explainTimeout, err := time.ParseDuration(cfg.ExplainTimeout)
	if err != nil {
		return fmt.Errorf("parse explain timeout: %w", err)
	}
	ingestSvc := ingest.NewService(store, logger)
	matchSvc := match.NewService(store, match.NewExplainer(generator, explainTimeout, logger), logger)
	scheduler := rebuild.NewScheduler(store, cfg.JobsCSV, cfg.RebuildAt, rebuild.DefaultTrainConfig(), logger)
	go scheduler.Run(ctx)

	// --- Broker-driven ingestion and rebuild triggers ---
	if nc != nil {
		subs, err := ingestSvc.StartConsumer(nc)
		if err != nil {
			return fmt.Errorf("start ingest consumer: %w", err)
		}
		defer func() {
			for _, sub := range subs {
				sub.Unsubscribe()
			}
		}()

		rebuildSub, err := nc.Subscribe(RebuildTriggerSubject, func(*nats.Msg) {
			if err := scheduler.Trigger(context.Background()); err != nil {
				logger.Warn("broker-triggered rebuild rejected", "err", err)
			}
		})
		if err != nil {
			return fmt.Errorf("subscribe rebuild trigger: %w", err)
		}
		defer rebuildSub.Unsubscribe()
	}

	// --- HTTP server ---
	api := &apiServer{
		store:     store,
		ingest:    ingestSvc,
		match:     matchSvc,
		scheduler: scheduler,
		encoder:   encoder,
		logger:    logger,
	}

	mutLimiter := resilience.NewLimiter(resilience.LimiterOpts{Rate: cfg.MutationRPS, Burst: cfg.MutationBurst})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", api.handleHealth)
	mux.HandleFunc("GET /api/stats", api.handleStats)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /api/evaluate", api.handleEvaluate)
	mux.HandleFunc("POST /api/rank", api.handleRank)
	mux.HandleFunc("POST /api/search", api.handleSearch)
	mux.HandleFunc("POST /api/anomaly", api.handleAnomaly)

	// Mutations get their own rate limit; reads stay unthrottled.
	limited := func(h http.HandlerFunc) http.Handler {
		return mid.Chain(h, mid.RateLimit(mutLimiter))
	}
	mux.Handle("POST /api/nodes", limited(api.handleAddNode))
	mux.Handle("POST /api/candidates", limited(api.handleIngestCandidate))
	mux.Handle("POST /api/jobs", limited(api.handleIngestJob))
	mux.Handle("POST /api/rebuild", limited(api.handleRebuild))

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.OTel("kg-engine-api"),
		mid.Metrics(),
		mid.CORS(cfg.CORSOrigin),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
