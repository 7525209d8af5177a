package match

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/careerhunt/kg-engine/pkg/metrics"
	"github.com/careerhunt/kg-engine/pkg/resilience"
)

// FallbackExplanation is returned whenever the generator fails or times out.
// Explanations are best-effort; they never fail a request.
const FallbackExplanation = "explanation unavailable"

// DefaultExplainTimeout bounds a single generator call. The generator is a
// slow external collaborator, so the bound is generous but firm.
const DefaultExplainTimeout = 30 * time.Second

// Generator produces natural-language text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Explainer wraps the generator with a timeout and a circuit breaker so a
// flapping generator stops being called at all for a while.
type Explainer struct {
	gen     Generator
	breaker *resilience.Breaker
	timeout time.Duration
	logger  *slog.Logger
}

// NewExplainer wires an Explainer. A zero timeout gets the default.
func NewExplainer(gen Generator, timeout time.Duration, logger *slog.Logger) *Explainer {
	if timeout <= 0 {
		timeout = DefaultExplainTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Explainer{
		gen:     gen,
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
		timeout: timeout,
		logger:  logger,
	}
}

// ExplainMatch asks the generator to explain one evaluation. The prompt
// carries the skill lists and numeric scores; the result is the fallback
// string on any failure.
func (e *Explainer) ExplainMatch(ctx context.Context, res MatchResult) string {
	prompt := fmt.Sprintf(
		"Explain briefly why candidate %s does or does not fit job %s. "+
			"Required skills: %s. Candidate skills: %s. Missing skills: %s. "+
			"Graph overlap score: %.2f. Embedding similarity: %.2f. Final score: %.2f.",
		res.Candidate, res.Job,
		strings.Join(res.JobSkills, ", "), strings.Join(res.CandidateSkills, ", "),
		strings.Join(res.MissingSkills, ", "),
		res.GraphScore, res.EmbeddingScore, res.FinalScore,
	)
	return e.generate(ctx, prompt)
}

// ExplainRanking asks the generator to summarize a ranked list.
func (e *Explainer) ExplainRanking(ctx context.Context, r Ranking) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Summarize this candidate ranking for job %s:", r.Job)
	for i, c := range r.Candidates {
		fmt.Fprintf(&sb, " %d. %s (score %.2f)", i+1, c.Candidate, c.FinalScore)
	}
	return e.generate(ctx, sb.String())
}

func (e *Explainer) generate(ctx context.Context, prompt string) string {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var out string
	err := e.breaker.Call(ctx, func(ctx context.Context) error {
		text, err := e.gen.Generate(ctx, prompt)
		if err != nil {
			return err
		}
		out = text
		return nil
	})
	if err != nil {
		metrics.GeneratorFailuresTotal.Inc()
		e.logger.Warn("explanation generator failed, using fallback", "err", err)
		return FallbackExplanation
	}
	if strings.TrimSpace(out) == "" {
		return FallbackExplanation
	}
	return out
}
