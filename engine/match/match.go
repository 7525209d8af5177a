// Package match scores and ranks candidates against job postings by
// combining structural skill overlap in the knowledge graph with cosine
// similarity of node embeddings.
package match

import (
	"context"
	"log/slog"
	"sort"

	"github.com/careerhunt/kg-engine/engine/domain"
	"github.com/careerhunt/kg-engine/engine/kg"
	"github.com/careerhunt/kg-engine/engine/semantic"
	"github.com/careerhunt/kg-engine/pkg/fn"
)

// Equal weighting of the two signals is the contract, not a tunable.
const (
	graphWeight     = 0.5
	embeddingWeight = 0.5
)

// MatchResult is the outcome of evaluating one candidate against one job.
// The skill lists are included so callers can render the comparison without
// a second round-trip.
type MatchResult struct {
	Job             string   `json:"job"`
	Candidate       string   `json:"candidate"`
	GraphScore      float64  `json:"graph_score"`
	EmbeddingScore  float64  `json:"embedding_score"`
	FinalScore      float64  `json:"final_score"`
	JobSkills       []string `json:"job_skills"`
	CandidateSkills []string `json:"candidate_skills"`
	MissingSkills   []string `json:"missing_skills"`
	Explanation     string   `json:"explanation,omitempty"`
}

// RankedCandidate is one entry of a ranking.
type RankedCandidate struct {
	Candidate      string  `json:"candidate"`
	GraphScore     float64 `json:"graph_score"`
	EmbeddingScore float64 `json:"embedding_score"`
	FinalScore     float64 `json:"final_score"`
}

// Ranking is the outcome of ranking a candidate set for a job.
type Ranking struct {
	Job         string            `json:"job"`
	Candidates  []RankedCandidate `json:"candidates"`
	Explanation string            `json:"explanation,omitempty"`
}

// SearchHit is one nearest-neighbor result annotated with the node's type.
type SearchHit struct {
	Node  string      `json:"node"`
	Type  domain.Kind `json:"type"`
	Score float32     `json:"score"`
}

// AnomalyResult reports whether a skill is plausibly connected to a job or
// company, used as an offline data-quality signal.
type AnomalyResult struct {
	Skill      string  `json:"skill"`
	Target     string  `json:"target"`
	PathLength int     `json:"path_length"` // -1 when disconnected
	Similarity float64 `json:"similarity"`
	Connected  bool    `json:"connected"`
	Anomaly    bool    `json:"anomaly"`
}

// Defaults for CheckAnomaly when the caller passes zero values.
const (
	DefaultAnomalyMaxDepth  = 3
	DefaultAnomalyThreshold = 0.25
)

// Service evaluates matches against the shared store. The explanation
// generator is optional and best-effort.
type Service struct {
	store     *kg.Store
	explainer *Explainer
	logger    *slog.Logger
}

// NewService wires a Service. explainer may be nil, in which case no
// explanations are produced.
func NewService(store *kg.Store, explainer *Explainer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, explainer: explainer, logger: logger}
}

// graphOverlapScore measures requirement coverage: the fraction of the job's
// skill neighbors also adjacent to the candidate. Asymmetric on purpose.
func graphOverlapScore(v kg.ReadView, job, cand domain.NodeID) float64 {
	jobSkills := v.Graph.SkillNeighbors(job)
	if len(jobSkills) == 0 {
		return 0
	}
	candSkills := make(map[string]struct{})
	for _, s := range v.Graph.SkillNeighbors(cand) {
		candSkills[s] = struct{}{}
	}
	matched := 0
	for _, s := range jobSkills {
		if _, ok := candSkills[s]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(jobSkills))
}

// embeddingSimilarity is cosine similarity of stored vectors, 0 when either
// node has no embedding.
func embeddingSimilarity(v kg.ReadView, a, b domain.NodeID) float64 {
	va, okA := v.Embeddings.Get(a)
	vb, okB := v.Embeddings.Get(b)
	if !okA || !okB {
		return 0
	}
	return semantic.Cosine(va, vb)
}

func finalScore(graph, embedding float64) float64 {
	return graphWeight*graph + embeddingWeight*embedding
}

// missingSkills returns the job's skill requirements the candidate lacks, in
// the graph's deterministic neighbor order.
func missingSkills(v kg.ReadView, job, cand domain.NodeID) []string {
	candSkills := make(map[string]struct{})
	for _, s := range v.Graph.SkillNeighbors(cand) {
		candSkills[s] = struct{}{}
	}
	var missing []string
	for _, s := range v.Graph.SkillNeighbors(job) {
		if _, ok := candSkills[s]; !ok {
			missing = append(missing, s)
		}
	}
	return missing
}

// EvaluateMatch scores one candidate against one job. All graph and
// embedding access happens under a single read view; the explanation call
// runs afterwards, outside any lock, and degrades to a fallback string.
func (s *Service) EvaluateMatch(ctx context.Context, job, cand domain.NodeID, explain bool) (MatchResult, error) {
	var res MatchResult
	err := s.store.View(func(v kg.ReadView) error {
		if !v.Graph.Has(job) {
			return domain.NewError("evaluate", job.String(), domain.ErrNotFound)
		}
		if !v.Graph.Has(cand) {
			return domain.NewError("evaluate", cand.String(), domain.ErrNotFound)
		}
		g := graphOverlapScore(v, job, cand)
		e := embeddingSimilarity(v, job, cand)
		res = MatchResult{
			Job:             job.String(),
			Candidate:       cand.String(),
			GraphScore:      g,
			EmbeddingScore:  e,
			FinalScore:      finalScore(g, e),
			JobSkills:       v.Graph.SkillNeighbors(job),
			CandidateSkills: v.Graph.SkillNeighbors(cand),
			MissingSkills:   missingSkills(v, job, cand),
		}
		return nil
	})
	if err != nil {
		return MatchResult{}, err
	}

	if explain && s.explainer != nil {
		res.Explanation = s.explainer.ExplainMatch(ctx, res)
	}
	return res, nil
}

// RankCandidates scores every known candidate in ids against the job and
// returns the topN, stably sorted by descending final score so tied
// candidates keep their input order. Unknown candidate ids are skipped, an
// unknown job is an error.
func (s *Service) RankCandidates(ctx context.Context, job domain.NodeID, ids []domain.NodeID, topN int, explain bool) (Ranking, error) {
	var ranked []RankedCandidate
	err := s.store.View(func(v kg.ReadView) error {
		if !v.Graph.Has(job) {
			return domain.NewError("rank", job.String(), domain.ErrNotFound)
		}
		known := fn.Filter(ids, func(id domain.NodeID) bool { return v.Graph.Has(id) })
		ranked = fn.Map(known, func(id domain.NodeID) RankedCandidate {
			g := graphOverlapScore(v, job, id)
			e := embeddingSimilarity(v, job, id)
			return RankedCandidate{
				Candidate:      id.String(),
				GraphScore:     g,
				EmbeddingScore: e,
				FinalScore:     finalScore(g, e),
			}
		})
		return nil
	})
	if err != nil {
		return Ranking{}, err
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].FinalScore > ranked[j].FinalScore
	})
	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}

	out := Ranking{Job: job.String(), Candidates: ranked}
	if explain && s.explainer != nil {
		out.Explanation = s.explainer.ExplainRanking(ctx, out)
	}
	return out, nil
}

// SearchByText encodes the query and returns the k nearest nodes, each
// annotated with its declared type from the graph.
func (s *Service) SearchByText(ctx context.Context, enc kg.Encoder, query string, k int) ([]SearchHit, error) {
	vec, err := enc.Encode(ctx, query)
	if err != nil {
		return nil, domain.NewError("search", "", err)
	}

	var hits []SearchHit
	err = s.store.View(func(v kg.ReadView) error {
		results, err := v.Index.Search(vec, k)
		if err != nil {
			return err
		}
		hits = fn.Map(results, func(r semantic.SearchResult) SearchHit {
			hit := SearchHit{Node: r.ID.String(), Type: r.ID.Kind, Score: r.Score}
			if n, ok := v.Graph.Node(r.ID); ok {
				hit.Type = n.ID.Kind
			}
			return hit
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hits, nil
}

// CheckAnomaly reports whether skill and target look structurally and
// semantically connected. Target resolves to a job node first, then a
// company node.
func (s *Service) CheckAnomaly(ctx context.Context, skill, target string, maxDepth int, simThreshold float64) (AnomalyResult, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultAnomalyMaxDepth
	}
	if simThreshold <= 0 {
		simThreshold = DefaultAnomalyThreshold
	}

	var res AnomalyResult
	err := s.store.View(func(v kg.ReadView) error {
		skillID := domain.SkillID(skill)
		if !v.Graph.Has(skillID) {
			return domain.NewError("anomaly", skillID.String(), domain.ErrNotFound)
		}
		targetID := domain.JobID(target)
		if !v.Graph.Has(targetID) {
			targetID = domain.CompanyID(target)
			if !v.Graph.Has(targetID) {
				return domain.NewError("anomaly", target, domain.ErrNotFound)
			}
		}

		pathLen, connected := v.Graph.ShortestPathLength(skillID, targetID)
		sim := embeddingSimilarity(v, skillID, targetID)
		withinDepth := connected && pathLen <= maxDepth

		res = AnomalyResult{
			Skill:      skillID.String(),
			Target:     targetID.String(),
			PathLength: pathLen,
			Similarity: sim,
			Connected:  withinDepth && sim >= simThreshold,
		}
		if !connected {
			res.PathLength = -1
		}
		res.Anomaly = !res.Connected
		return nil
	})
	if err != nil {
		return AnomalyResult{}, err
	}
	return res, nil
}
