package semantic

import (
	"fmt"
	"math"
	"sort"

	"github.com/careerhunt/kg-engine/engine/domain"
)

// SearchResult is a single nearest-neighbor hit.
type SearchResult struct {
	ID    domain.NodeID `json:"id"`
	Score float32       `json:"score"`
}

// VectorIndex is a flat inner-product index over L2-normalized vectors,
// equivalent to exact cosine similarity search. Storage is append-only and
// insertion-ordered: position i always maps to the i-th inserted id.
type VectorIndex struct {
	dim     int
	vectors [][]float32 // normalized at insert
	ids     []domain.NodeID
}

// NewVectorIndex creates an empty index. The dimension is fixed by the first
// vector added.
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{}
}

// Dim returns the index dimension, 0 while empty.
func (ix *VectorIndex) Dim() int { return ix.dim }

// Len returns the number of indexed vectors.
func (ix *VectorIndex) Len() int { return len(ix.ids) }

// Add normalizes vec and appends it with its owning id.
func (ix *VectorIndex) Add(id domain.NodeID, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("semantic: empty vector for %s", id)
	}
	if ix.dim == 0 {
		ix.dim = len(vec)
	} else if len(vec) != ix.dim {
		return fmt.Errorf("semantic: vector for %s has dim %d, index has %d: %w",
			id, len(vec), ix.dim, domain.ErrSpaceMismatch)
	}
	ix.vectors = append(ix.vectors, normalize(vec))
	ix.ids = append(ix.ids, id)
	return nil
}

// Search returns the top-k ids by cosine similarity to query, descending,
// ties broken by insertion order. An empty index returns no results. A query
// of the wrong dimension fails with ErrSpaceMismatch.
func (ix *VectorIndex) Search(query []float32, k int) ([]SearchResult, error) {
	if ix.Len() == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != ix.dim {
		return nil, fmt.Errorf("semantic: query dim %d, index dim %d: %w",
			len(query), ix.dim, domain.ErrSpaceMismatch)
	}
	q := normalize(query)

	results := make([]SearchResult, len(ix.ids))
	for i, v := range ix.vectors {
		var dot float32
		for j := range v {
			dot += v[j] * q[j]
		}
		results[i] = SearchResult{ID: ix.ids[i], Score: dot}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// IDs returns the insertion-ordered id list.
func (ix *VectorIndex) IDs() []domain.NodeID { return ix.ids }

// BuildIndex constructs a fresh index from every vector in the store, in
// sorted id order so the rebuild is deterministic.
func BuildIndex(store *EmbeddingStore) (*VectorIndex, error) {
	ix := NewVectorIndex()
	keys := make([]string, 0, store.Len())
	for k := range store.Map() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := ix.Add(domain.ParseID(k), store.Map()[k]); err != nil {
			return nil, err
		}
	}
	return ix, nil
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(vec))
	if norm == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
