package rerank

import (
	"context"
	"math"
	"regexp"
	"strings"
)

var wordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

// Lexical scores by word-set overlap (Ochiai coefficient). It needs no model
// server and serves as the offline reranker.
type Lexical struct{}

func (Lexical) Score(_ context.Context, query string, texts []string) ([]float64, error) {
	q := tokenSet(query)
	scores := make([]float64, len(texts))
	for i, text := range texts {
		scores[i] = ochiai(q, tokenSet(text))
	}
	return scores, nil
}

func tokenSet(s string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(s), -1)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// |A∩B| / sqrt(|A||B|)
func ochiai(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range b {
		if _, ok := a[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(a))*float64(len(b)))
}
