package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"document-qa/internal/config"
	"document-qa/internal/helper"
	"document-qa/internal/models"
	"document-qa/internal/parser"
	"document-qa/internal/rerank"
	"document-qa/internal/vectorstore/chromemdb"
	"document-qa/internal/workerpool"
)

const dim = 4

// vowelEmbedder maps text to vowel counts so similar texts land close.
type vowelEmbedder struct {
	mu     sync.Mutex
	calls  int
	failOn string
}

func (e *vowelEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.failOn != "" && strings.Contains(text, e.failOn) {
		return nil, models.ErrEmbeddingProvider
	}
	v := make([]float32, dim)
	for _, r := range strings.ToLower(text) {
		switch r {
		case 'a':
			v[0]++
		case 'e':
			v[1]++
		case 'i', 'o':
			v[2]++
		default:
			v[3] += 0.1
		}
	}
	v[3]++
	return v, nil
}

func (e *vowelEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type fakeSynth struct {
	reply    string
	err      error
	calls    int
	messages []models.Message
}

func (s *fakeSynth) Synthesize(_ context.Context, msgs []models.Message) (string, error) {
	s.calls++
	s.messages = msgs
	return s.reply, s.err
}

type fakeFacts struct {
	facts []string
	calls int
}

func (f *fakeFacts) Extract(context.Context, string, string) []string {
	f.calls++
	return f.facts
}

type memHistory struct {
	turns   map[int64][]models.Turn
	facts   map[int64][]string
	failing bool
}

func newMemHistory() *memHistory {
	return &memHistory{turns: map[int64][]models.Turn{}, facts: map[int64][]string{}}
}

func (h *memHistory) RecentTurns(_ context.Context, tenantID int64, limit int) ([]models.Turn, error) {
	if h.failing {
		return nil, errors.New("db down")
	}
	all := h.turns[tenantID]
	var out []models.Turn
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (h *memHistory) RecentFacts(_ context.Context, tenantID int64, limit int) ([]string, error) {
	if h.failing {
		return nil, errors.New("db down")
	}
	all := h.facts[tenantID]
	var out []string
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (h *memHistory) AppendTurn(_ context.Context, tenantID int64, q, a string) error {
	if h.failing {
		return errors.New("db down")
	}
	h.turns[tenantID] = append(h.turns[tenantID], models.Turn{Question: q, Answer: a})
	return nil
}

func (h *memHistory) AppendFact(_ context.Context, tenantID int64, fact string) error {
	if h.failing {
		return errors.New("db down")
	}
	h.facts[tenantID] = append(h.facts[tenantID], fact)
	return nil
}

type fixture struct {
	svc     *Service
	emb     *vowelEmbedder
	synth   *fakeSynth
	facts   *fakeFacts
	history *memHistory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := chromemdb.NewVectorDBManager(&config.VectorStoreConfig{Collection: "documents", InMemory: true, Dimension: dim})
	if err != nil {
		t.Fatalf("NewVectorDBManager failed: %v", err)
	}
	f := &fixture{
		emb:     &vowelEmbedder{},
		synth:   &fakeSynth{reply: "According to page 1, the pump runs at 6 bar."},
		facts:   &fakeFacts{facts: []string{"My name is Ana"}},
		history: newMemHistory(),
	}
	cfg := config.Default().RAG
	cfg.ChunkSize, cfg.ChunkOverlap = 100, 20
	f.svc, err = NewService(cfg, Deps{
		Extractor:   parser.New(),
		Embedder:    f.emb,
		Store:       store,
		Reranker:    rerank.New(helper.Of[rerank.Scorer](rerank.Lexical{})),
		Synthesizer: f.synth,
		Facts:       f.facts,
		History:     f.history,
		Pool:        workerpool.New(2),
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return f
}

const manual = `The pump operates at a maximum pressure of six bar.
Maintenance of the pump is required every twelve months.
The valve housing is made of brass and must be inspected yearly.`

func TestIngest(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Ingest(context.Background(), 1, "manual.txt", []byte(manual))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if res.Pages != 1 || res.ChunksStored < 2 || res.Filename != "manual.txt" {
		t.Errorf("Ingest = %+v", res)
	}
	names, err := f.svc.ListDocuments(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListDocuments failed: %v", err)
	}
	if len(names) != 1 || names[0] != "manual.txt" {
		t.Errorf("ListDocuments = %v", names)
	}
}

func TestIngest_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tests := []struct {
		name     string
		filename string
		data     []byte
		want     error
	}{
		{"empty upload", "a.txt", nil, models.ErrEmptyUpload},
		{"blank text", "a.txt", []byte("   \n\t  "), models.ErrEmptyContent},
		{"unsupported", "a.exe", []byte("MZ"), models.ErrUnsupportedFormat},
		{"corrupt pdf", "a.pdf", []byte("%PDF-1.4 garbage"), models.ErrDocumentParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Ingest(ctx, 1, tt.filename, tt.data); !errors.Is(err, tt.want) {
				t.Errorf("Ingest error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestIngest_EmbeddingFailureStoresNothing(t *testing.T) {
	f := newFixture(t)
	f.emb.failOn = "brass"
	_, err := f.svc.Ingest(context.Background(), 1, "manual.txt", []byte(manual))
	if !errors.Is(err, models.ErrEmbeddingProvider) {
		t.Fatalf("Ingest error = %v, want ErrEmbeddingProvider", err)
	}
	if has, _ := f.svc.Store.HasDocuments(context.Background(), 1); has {
		t.Errorf("partial ingest left entries behind")
	}
}

func TestAsk_NoDocumentsBeforeAnyModelCall(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Ask(context.Background(), 9, "What is the pressure?")
	if !errors.Is(err, models.ErrNoDocuments) || !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("Ask error = %v, want ErrNoDocuments", err)
	}
	if f.emb.calls != 0 || f.synth.calls != 0 {
		t.Errorf("model called: embed=%d synth=%d", f.emb.calls, f.synth.calls)
	}
}

func TestAsk_BlankQuestion(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Ask(context.Background(), 1, "  "); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("Ask error = %v, want ErrInvalidArgument", err)
	}
}

func TestAsk(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Ingest(ctx, 1, "manual.txt", []byte(manual)); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	f.history.turns[1] = []models.Turn{{Question: "earlier q", Answer: "earlier a"}}

	ans, err := f.svc.Ask(ctx, 1, "What pressure does the pump run at?")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if ans.Text != f.synth.reply {
		t.Errorf("answer = %q", ans.Text)
	}
	if len(ans.Sources) == 0 || len(ans.Sources) > f.svc.cfg.TopK {
		t.Fatalf("got %d sources, want 1..%d", len(ans.Sources), f.svc.cfg.TopK)
	}
	if !strings.Contains(ans.Sources[0].Content, "pump") {
		t.Errorf("top source = %q, want the pump passage", ans.Sources[0].Content)
	}

	msgs := f.synth.messages
	if msgs[0].Role != models.RoleSystem || !strings.Contains(msgs[0].Content, "Source: manual.txt | Page: 1") {
		t.Errorf("system message = %+v", msgs[0])
	}
	if msgs[1].Content != "earlier q" || msgs[2].Content != "earlier a" {
		t.Errorf("history not injected: %+v", msgs[1:3])
	}
	if last := msgs[len(msgs)-1]; last.Role != models.RoleUser || last.Content != "What pressure does the pump run at?" {
		t.Errorf("last message = %+v", last)
	}

	if got := len(f.history.turns[1]); got != 2 {
		t.Errorf("turns stored = %d, want 2", got)
	}
	if got := f.history.facts[1]; len(got) != 1 || got[0] != "My name is Ana" {
		t.Errorf("facts stored = %v", got)
	}

	// The stored fact reaches the next prompt.
	if _, err := f.svc.Ask(ctx, 1, "And the valve?"); err != nil {
		t.Fatalf("second Ask failed: %v", err)
	}
	if !strings.Contains(f.synth.messages[0].Content, "- My name is Ana") {
		t.Errorf("memory fact missing from system prompt")
	}
}

func TestAsk_SynthesisErrorPersistsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Ingest(ctx, 1, "manual.txt", []byte(manual)); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	f.synth.err = models.ErrSynthesis
	if _, err := f.svc.Ask(ctx, 1, "pressure?"); !errors.Is(err, models.ErrSynthesis) {
		t.Fatalf("Ask error = %v, want ErrSynthesis", err)
	}
	if len(f.history.turns[1]) != 0 || f.facts.calls != 0 {
		t.Errorf("failed answer persisted: turns=%d factCalls=%d", len(f.history.turns[1]), f.facts.calls)
	}
}

func TestAsk_FallbackSkipsFactExtraction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Ingest(ctx, 1, "manual.txt", []byte(manual)); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	f.synth.reply = models.FallbackAnswer
	ans, err := f.svc.Ask(ctx, 1, "pressure?")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if ans.Text != models.FallbackAnswer || f.facts.calls != 0 {
		t.Errorf("answer=%q factCalls=%d", ans.Text, f.facts.calls)
	}
}

func TestAsk_HistoryFailureDegrades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Ingest(ctx, 1, "manual.txt", []byte(manual)); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	f.history.failing = true
	if _, err := f.svc.Ask(ctx, 1, "pressure?"); err != nil {
		t.Fatalf("Ask failed with broken history: %v", err)
	}
	if len(f.synth.messages) != 2 {
		t.Errorf("got %d messages, want system and question only", len(f.synth.messages))
	}
}

func TestAsk_Cancelled(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Ingest(context.Background(), 1, "manual.txt", []byte(manual)); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.svc.Ask(ctx, 1, "pressure?"); !errors.Is(err, context.Canceled) {
		t.Errorf("Ask error = %v, want context.Canceled", err)
	}
	if f.synth.calls != 0 {
		t.Errorf("synthesizer called after cancellation")
	}
}

func TestTenantIsolationAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Ingest(ctx, 1, "manual.txt", []byte(manual)); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if _, err := f.svc.Ask(ctx, 2, "pressure?"); !errors.Is(err, models.ErrNoDocuments) {
		t.Errorf("tenant 2 Ask = %v, want ErrNoDocuments", err)
	}
	if err := f.svc.Delete(ctx, 2, "manual.txt"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("tenant 2 Delete = %v, want ErrNotFound", err)
	}
	if err := f.svc.Delete(ctx, 1, "manual.txt"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := f.svc.Clear(ctx, 1); err != nil {
		t.Errorf("Clear on emptied tenant failed: %v", err)
	}
	if _, err := f.svc.Ask(ctx, 1, "pressure?"); !errors.Is(err, models.ErrNoDocuments) {
		t.Errorf("Ask after delete = %v, want ErrNoDocuments", err)
	}
}
