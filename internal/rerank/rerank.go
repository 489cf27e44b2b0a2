package rerank

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"document-qa/internal/config"
	"document-qa/internal/helper"
	"document-qa/internal/models"
)

// Scorer assigns a relevance score to every text for the query; higher is
// more relevant. The result is index-aligned with texts.
type Scorer interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// Reranker narrows retrieved candidates to the most relevant ones.
type Reranker struct {
	scorer *helper.Lazy[Scorer]
}

func New(scorer *helper.Lazy[Scorer]) *Reranker {
	return &Reranker{scorer: scorer}
}

// NewFromConfig picks the scorer named by cfg.Type. The TEI scorer is
// connected on first use; a failed connection is reported to that call and
// retried on the next.
func NewFromConfig(cfg *config.RerankerConfig) *Reranker {
	if cfg.Type == "lexical" {
		return New(helper.Of[Scorer](Lexical{}))
	}
	return New(helper.NewLazy(func() (Scorer, error) {
		return NewTEI(context.Background(), cfg)
	}))
}

// Rerank scores every candidate against query, stable-sorts by descending
// score and returns the first topK. topK <= 0 keeps all. Empty input is
// returned as is without touching the scorer.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []models.Entry, topK int) ([]models.Entry, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}

	scorer, err := r.scorer.Get()
	if err != nil {
		return nil, fmt.Errorf("reranker init: %w", err)
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Content
	}

	start := time.Now()
	scores, err := scorer.Score(ctx, query, texts)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	if len(scores) != len(candidates) {
		return nil, fmt.Errorf("rerank: got %d scores for %d candidates", len(scores), len(candidates))
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	if topK <= 0 || topK > len(order) {
		topK = len(order)
	}
	out := make([]models.Entry, topK)
	for i := range out {
		out[i] = candidates[order[i]]
	}

	log.Debug().Int("candidates", len(candidates)).Int("kept", topK).Dur("took", time.Since(start)).Msg("Reranked")
	return out, nil
}
