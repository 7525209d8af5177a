package rebuild

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/careerhunt/kg-engine/engine/kg"
	"github.com/careerhunt/kg-engine/pkg/metrics"
)

// ErrRebuildInProgress is returned when a trigger arrives while a rebuild is
// already running. Rebuilds are exclusive.
var ErrRebuildInProgress = errors.New("rebuild already in progress")

// DefaultDailyAt is the default HH:MM time-of-day trigger.
const DefaultDailyAt = "01:23"

// Scheduler states.
const (
	stateIdle int32 = iota
	stateRebuilding
)

// Scheduler owns the two-state rebuild lifecycle: Idle while serving
// incremental upserts, Rebuilding while the full reconciliation runs. A
// failed rebuild leaves the prior state wholly intact.
type Scheduler struct {
	store      *kg.Store
	sourcePath string
	dailyAt    string
	cfg        TrainConfig
	logger     *slog.Logger

	state atomic.Int32
}

// NewScheduler wires a Scheduler. dailyAt is an HH:MM wall-clock time, and
// an empty string gets the default.
func NewScheduler(store *kg.Store, sourcePath, dailyAt string, cfg TrainConfig, logger *slog.Logger) *Scheduler {
	if dailyAt == "" {
		dailyAt = DefaultDailyAt
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:      store,
		sourcePath: sourcePath,
		dailyAt:    dailyAt,
		cfg:        cfg,
		logger:     logger,
	}
}

// State reports "idle" or "rebuilding".
func (s *Scheduler) State() string {
	if s.state.Load() == stateRebuilding {
		return "rebuilding"
	}
	return "idle"
}

// Run blocks until ctx is cancelled, firing a full rebuild once a day at the
// configured wall-clock minute.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("rebuild scheduler running", "daily_at", s.dailyAt, "source", s.sourcePath)
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	var lastFired string
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("rebuild scheduler stopped")
			return
		case now := <-ticker.C:
			stamp := now.Format("2006-01-02 15:04")
			if now.Format("15:04") != s.dailyAt || stamp == lastFired {
				continue
			}
			lastFired = stamp
			if err := s.Trigger(ctx); err != nil {
				s.logger.Error("scheduled rebuild failed", "err", err)
			}
		}
	}
}

// Trigger runs one full rebuild now. Returns ErrRebuildInProgress if one is
// already running; any other error means the rebuild aborted and the prior
// state is still authoritative.
func (s *Scheduler) Trigger(ctx context.Context) error {
	if !s.state.CompareAndSwap(stateIdle, stateRebuilding) {
		return ErrRebuildInProgress
	}
	defer s.state.Store(stateIdle)

	start := time.Now()
	err := s.rebuild(ctx)
	metrics.RebuildDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RebuildsTotal.WithLabelValues("failed").Inc()
		s.logger.Error("rebuild aborted, prior state retained", "err", err)
		return err
	}
	metrics.RebuildsTotal.WithLabelValues("ok").Inc()
	s.logger.Info("rebuild complete", "took", time.Since(start))
	return nil
}

func (s *Scheduler) rebuild(ctx context.Context) error {
	rows, err := LoadJobsCSV(s.sourcePath)
	if err != nil {
		return err
	}
	s.logger.Info("canonical source loaded", "jobs", len(rows))

	g := BuildGraph(rows)
	s.logger.Info("graph rebuilt", "nodes", g.NodeCount(), "edges", g.EdgeCount())

	emb := TrainEmbeddings(g, s.cfg)

	if err := s.store.Swap(ctx, g, emb); err != nil {
		return fmt.Errorf("swap rebuilt state: %w", err)
	}
	return nil
}
