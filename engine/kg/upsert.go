package kg

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/careerhunt/kg-engine/engine/domain"
	"github.com/careerhunt/kg-engine/pkg/metrics"
)

// Weights for blending a text-derived vector with the mean of the new node's
// neighbor vectors, when both live in the same embedding space.
const (
	blendNeighborWeight = 0.6
	blendTextWeight     = 0.4
)

// UpsertStatus reports what an upsert did.
type UpsertStatus string

const (
	StatusCreated UpsertStatus = "created"
	StatusExists  UpsertStatus = "exists"
)

// UpsertNode inserts a node with its metadata and undirected links to the
// given neighbors, deriving an embedding and appending the node to the
// vector index and the update log. Inserting a node that already exists is a
// complete no-op: no metadata refresh, no edge changes, no new vector.
// Neighbors that do not exist yet are created on the fly with their kind
// inferred from the identifier prefix.
func (s *Store) UpsertNode(ctx context.Context, id domain.NodeID, neighbors []domain.NodeID, meta domain.Metadata) (UpsertStatus, error) {
	if err := domain.ValidateKind(id.Kind); err != nil {
		metrics.UpsertsTotal.WithLabelValues("error").Inc()
		return "", domain.NewError("upsert", id.String(), err)
	}

	// The text vector depends only on the input, so encode before taking
	// the write lock. Encoder failure downgrades the embedding, never the
	// graph mutation.
	textVec := s.encodeText(ctx, id, meta)

	s.mu.Lock()
	if s.graph.Has(id) {
		s.mu.Unlock()
		metrics.UpsertsTotal.WithLabelValues("exists").Inc()
		return StatusExists, nil
	}

	s.graph.Add(id, meta)
	for _, nb := range neighbors {
		if !s.graph.Has(nb) {
			s.graph.Add(nb, domain.Metadata{})
		}
		s.graph.AddEdge(id, nb)
	}

	vec := s.deriveVectorLocked(id, neighbors, textVec)
	s.emb.Put(id, vec)
	if err := s.index.Add(id, vec); err != nil {
		// Unreachable as long as the index dimension tracks the store
		// dimension, but a mismatch must not leave a vector unindexed
		// silently.
		s.logger.Error("vector index append failed", "node", id.String(), "err", err)
	}

	s.appendLogLocked(id)
	s.persistLocked()
	s.updateGaugesLocked()
	s.mu.Unlock()

	metrics.UpsertsTotal.WithLabelValues("created").Inc()
	s.events.Publish(ctx, SubjectNodeAdded, NodeAddedEvent{
		Node:      id.String(),
		Type:      id.Kind,
		Neighbors: len(neighbors),
	})
	s.logger.Info("node added", "node", id.String(), "type", id.Kind, "neighbors", len(neighbors))
	return StatusCreated, nil
}

// EnsureNode creates a node with a purely text-derived embedding and no
// links if it does not exist yet. Unlike UpsertNode it writes no update-log
// record and emits no event: it backs the ingestion paths that materialize
// referenced skills and companies as a side effect.
func (s *Store) EnsureNode(ctx context.Context, id domain.NodeID, meta domain.Metadata) error {
	if err := domain.ValidateKind(id.Kind); err != nil {
		return domain.NewError("ensure", id.String(), err)
	}
	s.mu.RLock()
	exists := s.graph.Has(id)
	s.mu.RUnlock()
	if exists {
		return nil
	}

	textVec := s.encodeText(ctx, id, meta)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.graph.Has(id) {
		return nil
	}
	s.graph.Add(id, meta)
	vec := s.deriveVectorLocked(id, nil, textVec)
	s.emb.Put(id, vec)
	if err := s.index.Add(id, vec); err != nil {
		s.logger.Error("vector index append failed", "node", id.String(), "err", err)
	}
	s.persistLocked()
	s.updateGaugesLocked()
	return nil
}

// encodeText produces the text-derived vector for a node, or nil when no
// encoder is configured or the encoder fails.
func (s *Store) encodeText(ctx context.Context, id domain.NodeID, meta domain.Metadata) []float32 {
	if s.enc == nil {
		return nil
	}
	text := id.String()
	if mt := meta.Text(); mt != "" {
		text += " " + mt
	}
	vec, err := s.enc.Encode(ctx, text)
	if err != nil {
		metrics.EncoderFailuresTotal.Inc()
		s.logger.Warn("text encoding failed, falling back to structural embedding",
			"node", id.String(), "err", err)
		return nil
	}
	return vec
}

// deriveVectorLocked picks the embedding for a new node. When the store's
// space matches the text encoder's dimension the text vector is blended with
// the neighbor mean; when the store holds structural vectors of a different
// dimension the text vector is unusable there, so the node gets the neighbor
// centroid, or a small random vector if it has no embedded neighbors yet.
func (s *Store) deriveVectorLocked(id domain.NodeID, neighbors []domain.NodeID, textVec []float32) []float32 {
	var nbVecs [][]float32
	for _, nb := range neighbors {
		if v, ok := s.emb.Get(nb); ok {
			nbVecs = append(nbVecs, v)
		}
	}
	mean := blendMean(nbVecs)

	storeDim := s.emb.Dim()
	switch {
	case storeDim == 0:
		// First vector defines the space.
		if textVec != nil {
			return textVec
		}
		return randomVector(defaultStructuralDim)
	case textVec != nil && len(textVec) == storeDim:
		if mean != nil {
			return blend(mean, textVec)
		}
		return textVec
	default:
		if mean != nil {
			return mean
		}
		return randomVector(storeDim)
	}
}

// defaultStructuralDim is the dimensionality used for random fallback
// vectors in an empty store with no encoder. It matches the node embedding
// dimension produced by full rebuilds.
const defaultStructuralDim = 32

func blendMean(vecs [][]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}
	dim := len(vecs[0])
	acc := make([]float64, dim)
	n := 0
	for _, v := range vecs {
		if len(v) != dim {
			continue
		}
		for i, x := range v {
			acc[i] += float64(x)
		}
		n++
	}
	if n == 0 {
		return nil
	}
	out := make([]float32, dim)
	for i, x := range acc {
		out[i] = float32(x / float64(n))
	}
	return out
}

func blend(mean, text []float32) []float32 {
	out := make([]float32, len(mean))
	for i := range mean {
		out[i] = blendNeighborWeight*mean[i] + blendTextWeight*text[i]
	}
	return out
}

func randomVector(dim int) []float32 {
	out := make([]float32, dim)
	for i := range out {
		out[i] = float32(rand.NormFloat64() * 0.01)
	}
	return out
}

func (s *Store) appendLogLocked(id domain.NodeID) {
	rec := LogRecord{
		RecordID: uuid.NewString(),
		Node:     id.String(),
		Type:     id.Kind,
		TS:       time.Now().UTC(),
	}
	if err := s.log.Append(rec); err != nil {
		metrics.PersistenceFailuresTotal.Inc()
		s.logger.Error("update log append failed",
			"err", fmt.Errorf("%w: %v", domain.ErrPersistence, err))
	}
}
