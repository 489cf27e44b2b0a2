package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"document-qa/internal/config"
)

// TEI scores pairs with a cross-encoder served by Hugging Face
// text-embeddings-inference (POST /rerank).
type TEI struct {
	baseURL string
	client  *http.Client
}

type teiRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type teiScore struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// NewTEI checks the server through GET /info before returning.
func NewTEI(ctx context.Context, cfg *config.RerankerConfig) (*TEI, error) {
	t := &TEI{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/info", nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reranker %s unreachable: %w", t.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("reranker info failed: %d, %s", resp.StatusCode, string(body))
	}

	var info struct {
		ModelID string `json:"model_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("reranker info: %w", err)
	}
	if cfg.Model != "" && info.ModelID != cfg.Model {
		log.Warn().Str("configured", cfg.Model).Str("served", info.ModelID).Msg("Reranker serves a different model")
	}
	log.Info().Str("model", info.ModelID).Str("url", t.baseURL).Msg("Reranker ready")
	return t, nil
}

func (t *TEI) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	payload, err := json.Marshal(teiRequest{Query: query, Texts: texts})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("request failed: %d, %s", resp.StatusCode, string(body))
	}

	var ranked []teiScore
	if err := json.NewDecoder(resp.Body).Decode(&ranked); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	// The server returns pairs sorted by score; put them back in input order.
	scores := make([]float64, len(texts))
	seen := make([]bool, len(texts))
	for _, r := range ranked {
		if r.Index < 0 || r.Index >= len(texts) {
			return nil, fmt.Errorf("rerank response index %d out of range", r.Index)
		}
		scores[r.Index] = r.Score
		seen[r.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("rerank response missing text %d", i)
		}
	}
	return scores, nil
}
