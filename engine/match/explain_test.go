package match

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type stubGenerator struct {
	text   string
	err    error
	prompt string
	delay  time.Duration
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompt = prompt
	if g.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(g.delay):
		}
	}
	return g.text, g.err
}

func TestExplainMatchPromptAndPassthrough(t *testing.T) {
	gen := &stubGenerator{text: "strong fit apart from Go"}
	e := NewExplainer(gen, time.Second, nil)

	res := MatchResult{
		Job:             "job_1",
		Candidate:       "candidate_A1",
		GraphScore:      0.5,
		FinalScore:      0.75,
		JobSkills:       []string{"Python", "Go"},
		CandidateSkills: []string{"Python", "SQL"},
		MissingSkills:   []string{"Go"},
	}
	got := e.ExplainMatch(context.Background(), res)
	if got != "strong fit apart from Go" {
		t.Errorf("explanation = %q", got)
	}
	wants := []string{
		"job_1", "candidate_A1",
		"Required skills: Python, Go",
		"Candidate skills: Python, SQL",
		"Missing skills: Go",
	}
	for _, want := range wants {
		if !strings.Contains(gen.prompt, want) {
			t.Errorf("prompt missing %q: %q", want, gen.prompt)
		}
	}
}

func TestExplainFallsBackOnError(t *testing.T) {
	e := NewExplainer(&stubGenerator{err: errors.New("model offline")}, time.Second, nil)
	if got := e.ExplainMatch(context.Background(), MatchResult{}); got != FallbackExplanation {
		t.Errorf("explanation = %q, want fallback", got)
	}
}

func TestExplainFallsBackOnTimeout(t *testing.T) {
	e := NewExplainer(&stubGenerator{text: "late", delay: 200 * time.Millisecond}, 10*time.Millisecond, nil)
	if got := e.ExplainRanking(context.Background(), Ranking{Job: "job_1"}); got != FallbackExplanation {
		t.Errorf("explanation = %q, want fallback", got)
	}
}

func TestExplainFallsBackOnBlankOutput(t *testing.T) {
	e := NewExplainer(&stubGenerator{text: "   "}, time.Second, nil)
	if got := e.ExplainMatch(context.Background(), MatchResult{}); got != FallbackExplanation {
		t.Errorf("explanation = %q, want fallback", got)
	}
}
