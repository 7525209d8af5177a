package rebuild

import (
	"errors"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/careerhunt/kg-engine/engine/domain"
	"github.com/careerhunt/kg-engine/engine/graph"
	"github.com/careerhunt/kg-engine/engine/semantic"
)

// TrainConfig parameterizes the structural embedding trainer.
type TrainConfig struct {
	Dimensions   int
	WalkLength   int
	NumWalks     int
	Window       int
	Negative     int
	LearningRate float64
	Seed         int64
}

// DefaultTrainConfig matches the production rebuild settings.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Dimensions:   32,
		WalkLength:   20,
		NumWalks:     50,
		Window:       5,
		Negative:     5,
		LearningRate: 0.025,
	}
}

var errDegenerateGraph = errors.New("rebuild: graph has no usable walk pairs")

// TrainEmbeddings learns one structural vector per node: uniform random
// walks over the graph feed a skip-gram model with negative sampling, so
// nodes that co-occur in walks end up close in the embedding space. On a
// degenerate graph (no edges to walk) it falls back to small random vectors
// so the rebuild pipeline never blocks here.
func TrainEmbeddings(g *graph.Graph, cfg TrainConfig) *semantic.EmbeddingStore {
	emb, err := train(g, cfg)
	if err != nil {
		return RandomEmbeddings(g, cfg.Dimensions, cfg.Seed)
	}
	return emb
}

// RandomEmbeddings assigns every node an independent N(0, 0.01) vector.
func RandomEmbeddings(g *graph.Graph, dim int, seed int64) *semantic.EmbeddingStore {
	rng := rand.New(rand.NewSource(seed))
	emb := semantic.NewEmbeddingStore()
	for _, id := range g.IDs() {
		vec := make([]float32, dim)
		for i := range vec {
			vec[i] = float32(rng.NormFloat64() * 0.01)
		}
		emb.Put(id, vec)
	}
	return emb
}

func train(g *graph.Graph, cfg TrainConfig) (*semantic.EmbeddingStore, error) {
	ids := g.IDs()
	n := len(ids)
	if n == 0 {
		return nil, errDegenerateGraph
	}

	idx := make(map[string]int, n)
	for i, id := range ids {
		idx[id.String()] = i
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	walks := randomWalks(g, ids, idx, cfg, rng)
	if !hasPairs(walks) {
		return nil, errDegenerateGraph
	}

	// Frequency table for negative sampling, unigram^0.75 as usual for
	// skip-gram.
	counts := make([]float64, n)
	for _, walk := range walks {
		for _, node := range walk {
			counts[node]++
		}
	}
	sampler := newUnigramSampler(counts)

	in := make([][]float64, n)
	out := make([][]float64, n)
	bound := 0.5 / float64(cfg.Dimensions)
	for i := range in {
		in[i] = make([]float64, cfg.Dimensions)
		out[i] = make([]float64, cfg.Dimensions)
		for d := range in[i] {
			in[i][d] = (rng.Float64()*2 - 1) * bound
		}
	}

	grad := make([]float64, cfg.Dimensions)
	lr := cfg.LearningRate
	for _, walk := range walks {
		for i, center := range walk {
			lo := max(0, i-cfg.Window)
			hi := min(len(walk)-1, i+cfg.Window)
			for j := lo; j <= hi; j++ {
				if j == i {
					continue
				}
				trainPair(in[center], out, walk[j], sampler, cfg.Negative, lr, grad, rng)
			}
		}
	}

	emb := semantic.NewEmbeddingStore()
	for i, id := range ids {
		vec := make([]float32, cfg.Dimensions)
		for d, x := range in[i] {
			vec[d] = float32(x)
		}
		emb.Put(id, vec)
	}
	return emb, nil
}

// trainPair applies one positive and cfg.Negative negative skip-gram updates
// for a (center, context) co-occurrence.
func trainPair(center []float64, out [][]float64, context int, sampler *unigramSampler, negative int, lr float64, grad []float64, rng *rand.Rand) {
	for i := range grad {
		grad[i] = 0
	}
	for k := 0; k <= negative; k++ {
		target, label := context, 1.0
		if k > 0 {
			target = sampler.sample(rng)
			if target == context {
				continue
			}
			label = 0
		}
		score := sigmoid(floats.Dot(center, out[target]))
		g := lr * (label - score)
		floats.AddScaled(grad, g, out[target])
		floats.AddScaled(out[target], g, center)
	}
	floats.Add(center, grad)
}

// randomWalks produces NumWalks uniform walks of WalkLength from every node,
// in index space. Isolated nodes yield single-element walks.
func randomWalks(g *graph.Graph, ids []domain.NodeID, idx map[string]int, cfg TrainConfig, rng *rand.Rand) [][]int {
	walks := make([][]int, 0, len(ids)*cfg.NumWalks)
	for w := 0; w < cfg.NumWalks; w++ {
		for _, start := range ids {
			walk := make([]int, 0, cfg.WalkLength)
			walk = append(walk, idx[start.String()])
			cur := start
			for len(walk) < cfg.WalkLength {
				neighbors := g.Neighbors(cur)
				if len(neighbors) == 0 {
					break
				}
				cur = neighbors[rng.Intn(len(neighbors))]
				walk = append(walk, idx[cur.String()])
			}
			walks = append(walks, walk)
		}
	}
	return walks
}

func hasPairs(walks [][]int) bool {
	for _, w := range walks {
		if len(w) > 1 {
			return true
		}
	}
	return false
}

type unigramSampler struct {
	cdf []float64
}

func newUnigramSampler(counts []float64) *unigramSampler {
	cdf := make([]float64, len(counts))
	total := 0.0
	for i, c := range counts {
		total += math.Pow(c, 0.75)
		cdf[i] = total
	}
	return &unigramSampler{cdf: cdf}
}

func (u *unigramSampler) sample(rng *rand.Rand) int {
	total := u.cdf[len(u.cdf)-1]
	x := rng.Float64() * total
	lo, hi := 0, len(u.cdf)-1
	for lo < hi {
		mid := (lo + hi) / 2
		if u.cdf[mid] < x {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
