// Command rebuild runs one full offline reconciliation: it loads the
// canonical jobs dataset, rebuilds the knowledge graph and its structural
// embeddings from scratch, and swaps the result into the persisted store.
// The API server picks the new snapshots up on its next start, or keeps
// serving its own copy if it is running against a different data dir.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/careerhunt/kg-engine/engine/kg"
	"github.com/careerhunt/kg-engine/engine/rebuild"
)

func main() {
	dataDir := flag.String("data-dir", envOr("KG_DATA_DIR", "./data"), "directory holding the persisted store")
	source := flag.String("source", envOr("KG_JOBS_CSV", "./data/jobs.csv"), "canonical jobs CSV")
	dim := flag.Int("dim", 0, "embedding dimensionality (0 = default)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, err := kg.Open(kg.DefaultOptions(*dataDir), nil, nil, logger)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	cfg := rebuild.DefaultTrainConfig()
	if *dim > 0 {
		cfg.Dimensions = *dim
	}

	sched := rebuild.NewScheduler(store, *source, "", cfg, logger)
	if err := sched.Trigger(ctx); err != nil {
		logger.Error("rebuild failed", "err", err)
		os.Exit(1)
	}

	st := store.Stats()
	logger.Info("rebuild done", "nodes", st.Nodes, "edges", st.Edges, "vectors", st.Vectors)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
