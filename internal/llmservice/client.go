package llmservice

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"document-qa/internal/config"
	"document-qa/internal/helper"
	"document-qa/internal/models"
)

// FactExtractor asks the chat model for facts the user stated about
// themselves. It is best effort: every failure yields an empty list.
type FactExtractor struct {
	llm     *helper.Lazy[llms.Model]
	timeout time.Duration
}

func NewFactExtractor(llm *helper.Lazy[llms.Model], timeout time.Duration) *FactExtractor {
	return &FactExtractor{llm: llm, timeout: timeout}
}

// NewOllamaFactExtractor builds the langchaingo Ollama model on first use.
func NewOllamaFactExtractor(cfg *config.OllamaConfig) *FactExtractor {
	llm := helper.NewLazy(func() (llms.Model, error) {
		log.Debug().Str("base_url", cfg.BaseURL).Str("model", cfg.ChatModel).Msg("Initializing fact extraction model")
		return ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.ChatModel),
		)
	})
	return NewFactExtractor(llm, cfg.FactTimeout)
}

// Extract returns the facts found in the question/answer pair. It never fails;
// problems are logged and produce an empty, non-nil slice.
func (f *FactExtractor) Extract(ctx context.Context, question, answer string) []string {
	raw, err := f.generate(ctx, fmt.Sprintf(models.FactPromptTemplate, question, answer))
	if err != nil {
		log.Warn().Err(err).Msg("Fact extraction failed")
		return []string{}
	}
	facts := helper.StringArray(raw)
	log.Debug().Int("facts", len(facts)).Msg("Extracted facts")
	return facts
}

func (f *FactExtractor) generate(ctx context.Context, prompt string) (string, error) {
	llm, err := f.llm.Get()
	if err != nil {
		return "", err
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	return llms.GenerateFromSinglePrompt(ctx, llm, prompt, llms.WithTemperature(0))
}
