// Package semantic holds the embedding store and the flat cosine similarity
// index. Both are plain in-process structures owned and locked by the
// consistency unit in engine/kg: the store is the persisted source of truth
// for vectors, the index is derived in-memory state rebuilt from the store at
// startup and after every full rebuild.
package semantic

import (
	"math"

	"github.com/careerhunt/kg-engine/engine/domain"
)

// EmbeddingStore maps node ids to dense vectors. One vector per node id;
// absence is a valid state. Put overwrites unconditionally. Vectors are
// stored raw; normalization happens at query time in the index.
type EmbeddingStore struct {
	vecs map[string][]float32
}

// NewEmbeddingStore creates an empty store.
func NewEmbeddingStore() *EmbeddingStore {
	return &EmbeddingStore{vecs: make(map[string][]float32)}
}

// FromMap wraps a loaded id→vector mapping.
func FromMap(m map[string][]float32) *EmbeddingStore {
	if m == nil {
		m = make(map[string][]float32)
	}
	return &EmbeddingStore{vecs: m}
}

// Get returns the vector for id.
func (s *EmbeddingStore) Get(id domain.NodeID) ([]float32, bool) {
	v, ok := s.vecs[id.String()]
	return v, ok
}

// Put stores a vector for id, overwriting any existing one.
func (s *EmbeddingStore) Put(id domain.NodeID, vec []float32) {
	s.vecs[id.String()] = vec
}

// Len returns the number of stored vectors.
func (s *EmbeddingStore) Len() int { return len(s.vecs) }

// Dim returns the dimension of the active embedding space, or 0 when empty.
// All vectors in one store share a dimension for its lifetime.
func (s *EmbeddingStore) Dim() int {
	for _, v := range s.vecs {
		return len(v)
	}
	return 0
}

// Map exposes the raw mapping for snapshot writes.
func (s *EmbeddingStore) Map() map[string][]float32 { return s.vecs }

// Mean returns the element-wise mean of vectors, nil when vectors is empty
// or dimensions disagree.
func Mean(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	out := make([]float32, dim)
	for _, v := range vectors {
		if len(v) != dim {
			return nil
		}
		for i, x := range v {
			out[i] += x
		}
	}
	n := float32(len(vectors))
	for i := range out {
		out[i] /= n
	}
	return out
}

// Cosine returns the cosine similarity of a and b: raw dot product over the
// product of norms, with a small epsilon guarding division by zero. Vectors
// of different dimensions score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na)*math.Sqrt(nb) + 1e-9)
}
