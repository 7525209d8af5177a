// Package kg owns the engine's consistency unit: the knowledge graph, the
// embedding store, the derived vector index, the persisted snapshots, and the
// incremental-update log. All five move together: mutations take the write
// lock and persist before returning, reads run under the read lock and never
// observe a partially-applied mutation, and a full rebuild swaps the whole
// unit atomically.
package kg

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/careerhunt/kg-engine/engine/domain"
	"github.com/careerhunt/kg-engine/engine/graph"
	"github.com/careerhunt/kg-engine/engine/semantic"
	"github.com/careerhunt/kg-engine/pkg/fn"
	"github.com/careerhunt/kg-engine/pkg/metrics"
	"github.com/careerhunt/kg-engine/pkg/natsutil"
	"github.com/careerhunt/kg-engine/pkg/persistence"
)

// NATS subjects for audit events. Publishing is best-effort.
const (
	SubjectNodeAdded = "engine.kg.node_added"
	SubjectRebuilt   = "engine.kg.rebuilt"
)

// Encoder maps text to a fixed-dimension dense vector. Implementations must
// be deterministic for a fixed input.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

// Options configures the store's on-disk layout.
type Options struct {
	// DataDir is the directory holding the snapshot and log files. Created
	// if missing.
	DataDir string

	// GraphFile, EmbeddingsFile and LogFile name the three persisted files
	// inside DataDir.
	GraphFile      string
	EmbeddingsFile string
	LogFile        string

	// PersistRetry controls how durable-write failures are retried before
	// the failure is recorded and the in-memory mutation left standing.
	PersistRetry fn.RetryOpts
}

// DefaultOptions returns the standard file layout under dataDir.
func DefaultOptions(dataDir string) Options {
	return Options{
		DataDir:        dataDir,
		GraphFile:      "graph.json",
		EmbeddingsFile: "embeddings.json",
		LogFile:        "new_nodes.log",
		PersistRetry: fn.RetryOpts{
			MaxAttempts: 3,
			InitialWait: 50 * time.Millisecond,
			MaxWait:     time.Second,
		},
	}
}

// LogRecord is one incremental-update log entry: a node created since the
// last full rebuild. The log is an audit record consumed by the
// reconciliation scheduler; it is never replayed.
type LogRecord struct {
	RecordID string      `json:"record_id"`
	Node     string      `json:"node"`
	Type     domain.Kind `json:"type"`
	TS       time.Time   `json:"ts"`
}

// NodeAddedEvent is published on SubjectNodeAdded after a successful upsert.
type NodeAddedEvent struct {
	Node      string      `json:"node"`
	Type      domain.Kind `json:"type"`
	Neighbors int         `json:"neighbors"`
}

// RebuiltEvent is published on SubjectRebuilt after a full-rebuild swap.
type RebuiltEvent struct {
	Nodes   int `json:"nodes"`
	Edges   int `json:"edges"`
	Vectors int `json:"vectors"`
}

// Store is the process-wide owner of the consistency unit.
type Store struct {
	mu     sync.RWMutex
	graph  *graph.Graph
	emb    *semantic.EmbeddingStore
	index  *semantic.VectorIndex
	log    *persistence.LogWriter
	opts   Options
	enc    Encoder
	events *natsutil.Publisher
	logger *slog.Logger
}

// Open loads the store from the last persisted snapshot, or starts empty
// when either snapshot file is missing (never a partial load). The vector
// index is always rebuilt in memory from the loaded embedding store.
func Open(opts Options, enc Encoder, events *natsutil.Publisher, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("kg: create data dir: %w", err)
	}

	g := graph.New()
	emb := semantic.NewEmbeddingStore()

	graphPath := filepath.Join(opts.DataDir, opts.GraphFile)
	embPath := filepath.Join(opts.DataDir, opts.EmbeddingsFile)
	if persistence.Exists(graphPath) && persistence.Exists(embPath) {
		var snap graph.Snapshot
		if err := persistence.LoadJSON(graphPath, &snap); err != nil {
			return nil, fmt.Errorf("kg: load graph snapshot: %w", err)
		}
		var vecs map[string][]float32
		if err := persistence.LoadJSON(embPath, &vecs); err != nil {
			return nil, fmt.Errorf("kg: load embeddings: %w", err)
		}
		g = graph.FromSnapshot(snap)
		emb = semantic.FromMap(vecs)
		logger.Info("loaded persisted state",
			"nodes", g.NodeCount(), "edges", g.EdgeCount(), "vectors", emb.Len())
	} else {
		logger.Info("no persisted state found, starting fresh")
	}

	index, err := semantic.BuildIndex(emb)
	if err != nil {
		return nil, fmt.Errorf("kg: rebuild vector index: %w", err)
	}

	lw, err := persistence.NewLogWriter(filepath.Join(opts.DataDir, opts.LogFile))
	if err != nil {
		return nil, fmt.Errorf("kg: open update log: %w", err)
	}

	s := &Store{
		graph:  g,
		emb:    emb,
		index:  index,
		log:    lw,
		opts:   opts,
		enc:    enc,
		events: events,
		logger: logger,
	}
	s.updateGauges()
	return s, nil
}

// Close releases the update log file handle.
func (s *Store) Close() error {
	return s.log.Close()
}

// ReadView is a consistent read-only view of the unit, valid only inside the
// callback passed to View.
type ReadView struct {
	Graph      *graph.Graph
	Embeddings *semantic.EmbeddingStore
	Index      *semantic.VectorIndex
}

// View runs fn under the read lock. The view must not escape fn, and fn must
// not mutate anything it is handed.
func (s *Store) View(fn func(v ReadView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ReadView{Graph: s.graph, Embeddings: s.emb, Index: s.index})
}

// Stats summarizes the unit for the stats endpoint.
type Stats struct {
	Nodes       int                 `json:"nodes"`
	NodesByKind map[domain.Kind]int `json:"nodes_by_kind"`
	Edges       int                 `json:"edges"`
	Vectors     int                 `json:"vectors"`
	Dim         int                 `json:"dim"`
	PendingLog  int                 `json:"pending_log_records"`
}

// Stats returns current counts.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs, _ := persistence.ReadLog[LogRecord](filepath.Join(s.opts.DataDir, s.opts.LogFile))
	return Stats{
		Nodes:       s.graph.NodeCount(),
		NodesByKind: s.graph.CountByKind(),
		Edges:       s.graph.EdgeCount(),
		Vectors:     s.emb.Len(),
		Dim:         s.emb.Dim(),
		PendingLog:  len(recs),
	}
}

// PendingLog returns the update-log records accumulated since the last
// rebuild, oldest first.
func (s *Store) PendingLog() ([]LogRecord, error) {
	return persistence.ReadLog[LogRecord](filepath.Join(s.opts.DataDir, s.opts.LogFile))
}

// Swap atomically replaces the whole consistency unit with a freshly rebuilt
// graph and embedding store, rebuilds the vector index, persists both
// snapshots, and clears the update log. Readers see either the entire old
// state or the entire new state.
func (s *Store) Swap(ctx context.Context, g *graph.Graph, emb *semantic.EmbeddingStore) error {
	index, err := semantic.BuildIndex(emb)
	if err != nil {
		return fmt.Errorf("kg: swap: %w", err)
	}

	s.mu.Lock()
	s.graph = g
	s.emb = emb
	s.index = index
	s.persistLocked()
	if err := s.log.Truncate(); err != nil {
		s.logger.Error("truncate update log failed", "err", err)
		metrics.PersistenceFailuresTotal.Inc()
	}
	s.updateGaugesLocked()
	s.mu.Unlock()

	s.events.Publish(ctx, SubjectRebuilt, RebuiltEvent{
		Nodes:   g.NodeCount(),
		Edges:   g.EdgeCount(),
		Vectors: emb.Len(),
	})
	return nil
}

// persistLocked writes both snapshots, retrying transient failures. A final
// failure is logged and counted; the in-memory mutation stands so readers
// keep serving the freshest state.
func (s *Store) persistLocked() {
	graphPath := filepath.Join(s.opts.DataDir, s.opts.GraphFile)
	embPath := filepath.Join(s.opts.DataDir, s.opts.EmbeddingsFile)
	snap := s.graph.ToSnapshot()
	vecs := s.emb.Map()

	r := fn.Retry(context.Background(), s.opts.PersistRetry, func(context.Context) fn.Result[struct{}] {
		if err := persistence.SaveJSON(graphPath, snap); err != nil {
			return fn.Err[struct{}](err)
		}
		if err := persistence.SaveJSON(embPath, vecs); err != nil {
			return fn.Err[struct{}](err)
		}
		return fn.Ok(struct{}{})
	})
	if _, err := r.Unwrap(); err != nil {
		metrics.PersistenceFailuresTotal.Inc()
		s.logger.Error("snapshot persistence failed, in-memory state stands",
			"err", fmt.Errorf("%w: %v", domain.ErrPersistence, err))
	}
}

func (s *Store) updateGauges() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.updateGaugesLocked()
}

func (s *Store) updateGaugesLocked() {
	for kind, n := range s.graph.CountByKind() {
		metrics.NodesTotal.WithLabelValues(string(kind)).Set(float64(n))
	}
	metrics.EdgesTotal.Set(float64(s.graph.EdgeCount()))
	metrics.VectorsTotal.Set(float64(s.index.Len()))
}
