package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/sync/errgroup"

	"document-qa/internal/config"
	"document-qa/internal/helper"
	"document-qa/internal/models"
)

const defaultConcurrency = 10

// Client is the model runtime behind the provider. *embeddings.EmbedderImpl
// satisfies it.
type Client interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Provider maps text to fixed-dimension vectors. It is safe for concurrent use.
type Provider struct {
	client      *helper.Lazy[Client]
	timeout     time.Duration
	concurrency int
	dimension   int
}

type Options struct {
	// Timeout bounds every single embedding call.
	Timeout time.Duration
	// Concurrency caps in-flight calls of one EmbedBatch.
	Concurrency int
	// Dimension, when set, is enforced on every returned vector.
	Dimension int
}

func NewProvider(client *helper.Lazy[Client], opts Options) *Provider {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	return &Provider{
		client:      client,
		timeout:     opts.Timeout,
		concurrency: opts.Concurrency,
		dimension:   opts.Dimension,
	}
}

// NewFromConfig picks the embedding backend named by
// ollama.embedding_provider. The model client is created on first use.
func NewFromConfig(cfg *config.Config) *Provider {
	opts := Options{
		Timeout:     cfg.Ollama.EmbedTimeout,
		Concurrency: cfg.RAG.EmbedConcurrency,
		Dimension:   cfg.VectorStore.Dimension,
	}
	if cfg.Ollama.EmbeddingProvider == "openai" {
		return NewProvider(helper.NewLazy(func() (Client, error) {
			return NewOpenAIEmbedder(cfg.Ollama.EmbeddingAPIKey, cfg.Ollama.EmbeddingBaseURL, cfg.Ollama.EmbeddingModel)
		}), opts)
	}
	return NewProvider(helper.NewLazy(func() (Client, error) {
		return NewOllamaEmbedder(cfg.Ollama.EmbeddingBaseURL, cfg.Ollama.EmbeddingModel)
	}), opts)
}

func NewOllamaEmbedder(baseURL, model string) (*embeddings.EmbedderImpl, error) {
	log.Debug().Str("base_url", baseURL).Str("embedding_model", model).Msg("Initializing ollama embedder")
	llm, err := ollama.New(
		ollama.WithServerURL(baseURL),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, err
	}
	return embeddings.NewEmbedder(llm)
}

// NewOpenAIEmbedder talks to an OpenAI compatible /embeddings endpoint.
func NewOpenAIEmbedder(apiKey, baseURL, model string) (*embeddings.EmbedderImpl, error) {
	log.Debug().Str("base_url", baseURL).Str("embedding_model", model).Msg("Initializing openai embedder")
	llm, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken(strings.TrimPrefix(apiKey, "Bearer ")),
		openai.WithEmbeddingModel(model),
	)
	if err != nil {
		return nil, err
	}
	return embeddings.NewEmbedder(llm)
}

// Embed returns the embedding of a single text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	client, err := p.client.Get()
	if err != nil {
		return nil, fmt.Errorf("%w: initializing model: %v", models.ErrEmbeddingProvider, err)
	}

	callCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	vec, err := client.EmbedQuery(callCtx, text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil {
			return nil, fmt.Errorf("%w: %w: embedding after %s", models.ErrEmbeddingProvider, models.ErrProviderTimeout, p.timeout)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingProvider, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty embedding returned", models.ErrEmbeddingProvider)
	}
	if p.dimension > 0 && len(vec) != p.dimension {
		return nil, fmt.Errorf("%w: model returned %d, expected %d", models.ErrDimensionMismatch, len(vec), p.dimension)
	}
	return vec, nil
}

// EmbedBatch embeds texts with at most Concurrency calls in flight; extra
// texts wait for a free slot. The output order matches the input. Any failed
// call fails the whole batch and no partial result is returned.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, text := range texts {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			vec, err := p.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			out[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.Debug().Int("texts", len(texts)).Dur("took", time.Since(start)).Msg("Embedded batch")
	return out, nil
}
