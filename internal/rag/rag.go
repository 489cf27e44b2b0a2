package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"document-qa/internal/config"
	"document-qa/internal/models"
	"document-qa/internal/parser"
	"document-qa/internal/vectorstore"
	"document-qa/internal/workerpool"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []models.Entry, topK int) ([]models.Entry, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, messages []models.Message) (string, error)
}

type FactExtractor interface {
	Extract(ctx context.Context, question, answer string) []string
}

// History is the conversation and memory persistence collaborator. Reads
// return newest first.
type History interface {
	RecentTurns(ctx context.Context, tenantID int64, limit int) ([]models.Turn, error)
	RecentFacts(ctx context.Context, tenantID int64, limit int) ([]string, error)
	AppendTurn(ctx context.Context, tenantID int64, question, answer string) error
	AppendFact(ctx context.Context, tenantID int64, fact string) error
}

// Deps are the collaborators of a Service. History may be nil, in which case
// conversations are not remembered.
type Deps struct {
	Extractor   parser.Extractor
	Embedder    Embedder
	Store       vectorstore.Store
	Reranker    Reranker
	Synthesizer Synthesizer
	Facts       FactExtractor
	History     History
	Pool        *workerpool.Pool
}

// Service runs the ingestion and question answering pipelines.
type Service struct {
	Deps
	chunker *parser.Chunker
	cfg     config.RAGConfig
}

func NewService(cfg config.RAGConfig, deps Deps) (*Service, error) {
	chunker, err := parser.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	if deps.Pool == nil {
		deps.Pool = workerpool.New(0)
	}
	return &Service{Deps: deps, chunker: chunker, cfg: cfg}, nil
}

// Ingest extracts, chunks, embeds and stores a document for the tenant.
// Nothing is written unless every chunk was embedded.
func (s *Service) Ingest(ctx context.Context, tenantID int64, filename string, data []byte) (models.IngestResult, error) {
	result := models.IngestResult{Filename: filename}
	if len(data) == 0 {
		return result, models.ErrEmptyUpload
	}
	start := time.Now()

	pages, err := workerpool.Run(ctx, s.Pool, func(context.Context) ([]models.Page, error) {
		return s.Extractor.Extract(filename, data)
	})
	if err != nil {
		return result, err
	}
	if len(pages) == 0 {
		return result, fmt.Errorf("%w: %s", models.ErrEmptyContent, filename)
	}
	result.Pages = len(pages)

	chunks := s.chunker.Chunk(pages)
	if len(chunks) == 0 {
		return result, fmt.Errorf("%w: %s", models.ErrEmptyContent, filename)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	embeddings, err := s.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return result, err
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	stored, err := workerpool.Run(ctx, s.Pool, func(ctx context.Context) (int, error) {
		return s.Store.Store(ctx, tenantID, filename, chunks, embeddings)
	})
	if err != nil {
		return result, err
	}
	result.ChunksStored = stored

	log.Info().
		Int64("tenant_id", tenantID).
		Str("filename", filename).
		Int("pages", len(pages)).
		Int("chunks", stored).
		Dur("took", time.Since(start)).
		Msg("Ingested document")
	return result, nil
}

// Ask answers question from the tenant's documents. It fails with
// models.ErrNoDocuments before any model call when the tenant has none.
func (s *Service) Ask(ctx context.Context, tenantID int64, question string) (models.Answer, error) {
	question = strings.TrimSpace(question)
	answer := models.Answer{Question: question}
	if question == "" {
		return answer, fmt.Errorf("%w: question is empty", models.ErrInvalidArgument)
	}
	start := time.Now()

	has, err := workerpool.Run(ctx, s.Pool, func(ctx context.Context) (bool, error) {
		return s.Store.HasDocuments(ctx, tenantID)
	})
	if err != nil {
		return answer, err
	}
	if !has {
		return answer, models.ErrNoDocuments
	}

	queryVec, err := s.Embedder.Embed(ctx, question)
	if err != nil {
		return answer, err
	}

	candidates, err := workerpool.Run(ctx, s.Pool, func(ctx context.Context) ([]models.Entry, error) {
		return s.Store.Query(ctx, tenantID, queryVec, s.cfg.Candidates)
	})
	if err != nil {
		return answer, err
	}

	top, err := workerpool.Run(ctx, s.Pool, func(ctx context.Context) ([]models.Entry, error) {
		return s.Reranker.Rerank(ctx, question, candidates, s.cfg.TopK)
	})
	if err != nil {
		return answer, err
	}

	turns, facts := s.recall(ctx, tenantID)
	if err := ctx.Err(); err != nil {
		return answer, err
	}
	messages := BuildMessages(question, top, turns, facts, s.cfg.MaxHistory)

	text, err := s.Synthesizer.Synthesize(ctx, messages)
	if err != nil {
		return answer, err
	}
	answer.Text = text
	answer.Sources = sources(top)

	s.remember(ctx, tenantID, question, text)

	log.Info().
		Int64("tenant_id", tenantID).
		Int("candidates", len(candidates)).
		Int("sources", len(top)).
		Dur("took", time.Since(start)).
		Msg("Answered question")
	return answer, nil
}

// recall loads history and facts. Failures degrade to an empty memory.
func (s *Service) recall(ctx context.Context, tenantID int64) ([]models.Turn, []string) {
	if s.History == nil {
		return nil, nil
	}
	turns, err := s.History.RecentTurns(ctx, tenantID, s.cfg.MaxHistory)
	if err != nil {
		log.Warn().Err(err).Int64("tenant_id", tenantID).Msg("Could not load conversation history")
		turns = nil
	}
	facts, err := s.History.RecentFacts(ctx, tenantID, s.cfg.MaxFacts)
	if err != nil {
		log.Warn().Err(err).Int64("tenant_id", tenantID).Msg("Could not load memory facts")
		facts = nil
	}
	return turns, facts
}

// remember persists the turn and any facts the user stated. It never fails
// the request.
func (s *Service) remember(ctx context.Context, tenantID int64, question, answer string) {
	if s.History == nil {
		return
	}
	if err := s.History.AppendTurn(ctx, tenantID, question, answer); err != nil {
		log.Warn().Err(err).Int64("tenant_id", tenantID).Msg("Could not save conversation turn")
	}
	if answer == models.FallbackAnswer || s.Facts == nil || ctx.Err() != nil {
		return
	}
	for _, fact := range s.Facts.Extract(ctx, question, answer) {
		if err := s.History.AppendFact(ctx, tenantID, fact); err != nil {
			log.Warn().Err(err).Int64("tenant_id", tenantID).Msg("Could not save memory fact")
		}
	}
}

func (s *Service) ListDocuments(ctx context.Context, tenantID int64) ([]string, error) {
	return workerpool.Run(ctx, s.Pool, func(ctx context.Context) ([]string, error) {
		return s.Store.ListFilenames(ctx, tenantID)
	})
}

func (s *Service) Delete(ctx context.Context, tenantID int64, filename string) error {
	return s.Pool.Do(ctx, func(ctx context.Context) error {
		return s.Store.DeleteDocument(ctx, tenantID, filename)
	})
}

func (s *Service) Clear(ctx context.Context, tenantID int64) error {
	return s.Pool.Do(ctx, func(ctx context.Context) error {
		return s.Store.Clear(ctx, tenantID)
	})
}

func sources(entries []models.Entry) []models.Source {
	out := make([]models.Source, len(entries))
	for i, e := range entries {
		out[i] = models.Source{Filename: e.Filename, PageNumber: e.PageNumber, Content: e.Content}
	}
	return out
}
