package llmservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"document-qa/internal/config"
	"document-qa/internal/helper"
	"document-qa/internal/models"
)

// ChatClient synthesizes answers through Ollama's /api/chat endpoint.
type ChatClient struct {
	baseURL     string
	model       string
	temperature float64
	timeout     time.Duration
	client      *http.Client
}

type chatRequest struct {
	Model    string           `json:"model"`
	Messages []models.Message `json:"messages"`
	Stream   bool             `json:"stream"`
	Options  map[string]any   `json:"options,omitempty"`
}

// chatChunk is one response object; a streamed reply is several of them.
type chatChunk struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

func NewChatClient(cfg *config.OllamaConfig) *ChatClient {
	return &ChatClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.ChatModel,
		temperature: cfg.Temperature,
		timeout:     cfg.ChatTimeout,
		client:      &http.Client{},
	}
}

// Synthesize sends messages and returns the concatenated reply. A reply
// without any content yields models.FallbackAnswer. Non-2xx statuses and
// transport failures are models.ErrSynthesis.
func (c *ChatClient) Synthesize(ctx context.Context, messages []models.Message) (string, error) {
	payload := chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
		Options:  map[string]any{"temperature": c.temperature},
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", c.callError(ctx, callCtx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: request failed: %d, %s", models.ErrSynthesis, resp.StatusCode, string(body))
	}

	var answer strings.Builder
	err = helper.DecodeLines(resp.Body, func(chunk chatChunk) {
		answer.WriteString(chunk.Message.Content)
	})
	if err != nil {
		return "", c.callError(ctx, callCtx, err)
	}

	text := strings.TrimSpace(answer.String())
	log.Debug().Str("model", c.model).Int("chars", len(text)).Dur("took", time.Since(start)).Msg("Synthesized answer")
	if text == "" {
		log.Warn().Str("model", c.model).Msg("Chat model returned no content")
		return models.FallbackAnswer, nil
	}
	return text, nil
}

func (c *ChatClient) callError(ctx, callCtx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil {
		return fmt.Errorf("%w: %w: no reply after %s", models.ErrSynthesis, models.ErrProviderTimeout, c.timeout)
	}
	return fmt.Errorf("%w: %v", models.ErrSynthesis, err)
}
