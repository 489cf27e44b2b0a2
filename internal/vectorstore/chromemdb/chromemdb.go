package chromemdb

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"document-qa/internal/config"
	"document-qa/internal/helper"
	"document-qa/internal/models"
	"document-qa/internal/vectorstore"
)

// VectorDBManager keeps every tenant's chunks in a single chromem collection,
// partitioned by the tenant_id metadata field. chromem ranks by cosine
// similarity; vectors are normalised on insert.
type VectorDBManager struct {
	db         *chromem.DB
	collection *chromem.Collection
	dbPath     string
	compress   bool
	dimension  int

	// mu makes check-then-delete atomic and keeps queries from observing a
	// half-written upsert.
	mu sync.RWMutex
}

var _ vectorstore.Store = (*VectorDBManager)(nil)

// NewVectorDBManager opens (or creates) the persistent database at cfg.Path,
// or an in-memory one when cfg.InMemory is set.
func NewVectorDBManager(cfg *config.VectorStoreConfig) (*VectorDBManager, error) {
	var (
		db  *chromem.DB
		err error
	)
	if cfg.InMemory {
		db = chromem.NewDB()
	} else {
		if err := helper.CreateFolder(cfg.Path); err != nil {
			return nil, err
		}
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	// Embeddings are always supplied by the caller, so no embedding func.
	c, err := db.GetOrCreateCollection(cfg.Collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}

	log.Debug().
		Str("path", cfg.Path).
		Str("collection", cfg.Collection).
		Bool("in_memory", cfg.InMemory).
		Int("documents", c.Count()).
		Msg("Opened chromem store")

	return &VectorDBManager{
		db:         db,
		collection: c,
		dbPath:     cfg.Path,
		compress:   cfg.Compress,
		dimension:  cfg.Dimension,
	}, nil
}

func (m *VectorDBManager) Store(ctx context.Context, tenantID int64, filename string, chunks []models.Chunk, embeddings [][]float32) (int, error) {
	if err := vectorstore.ValidateBatch(chunks, embeddings, m.dimension); err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	docs := make([]chromem.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = chromem.Document{
			ID:        vectorstore.EntryID(tenantID, filename, chunk.PageNumber, chunk.ChunkIndex),
			Content:   chunk.Content,
			Metadata:  metadata(tenantID, filename, chunk),
			Embedding: embeddings[i],
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return 0, fmt.Errorf("failed to add documents: %w", err)
	}
	return len(docs), nil
}

func (m *VectorDBManager) Query(ctx context.Context, tenantID int64, embedding []float32, nResults int) ([]models.Entry, error) {
	if err := vectorstore.CheckDimension(embedding, m.dimension); err != nil {
		return nil, err
	}
	if nResults <= 0 {
		return []models.Entry{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	results, err := m.search(ctx, embedding, nResults, tenantWhere(tenantID))
	if err != nil {
		return nil, err
	}

	entries := make([]models.Entry, 0, len(results))
	for _, r := range results {
		entries = append(entries, toEntry(r))
	}
	return entries, nil
}

func (m *VectorDBManager) HasDocuments(ctx context.Context, tenantID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results, err := m.all(ctx, tenantWhere(tenantID))
	if err != nil {
		return false, err
	}
	return len(results) > 0, nil
}

func (m *VectorDBManager) ListFilenames(ctx context.Context, tenantID int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results, err := m.all(ctx, tenantWhere(tenantID))
	if err != nil {
		return nil, err
	}
	names := make(map[string]struct{})
	for _, r := range results {
		names[r.Metadata[vectorstore.KeyFilename]] = struct{}{}
	}
	return vectorstore.SortedKeys(names), nil
}

func (m *VectorDBManager) DeleteDocument(ctx context.Context, tenantID int64, filename string) error {
	where := tenantWhere(tenantID)
	where[vectorstore.KeyFilename] = filename

	m.mu.Lock()
	defer m.mu.Unlock()
	matches, err := m.all(ctx, where)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("%w: document %q", models.ErrNotFound, filename)
	}
	if err := m.collection.Delete(ctx, where, nil); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	log.Debug().Int64("tenant_id", tenantID).Str("filename", filename).Int("chunks", len(matches)).Msg("Deleted document")
	return nil
}

func (m *VectorDBManager) Clear(ctx context.Context, tenantID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.collection.Count() == 0 {
		return nil
	}
	if err := m.collection.Delete(ctx, tenantWhere(tenantID), nil); err != nil {
		return fmt.Errorf("failed to clear tenant: %w", err)
	}
	return nil
}

// Close is a no-op; the persistent DB writes through on every change.
func (m *VectorDBManager) Close() error { return nil }

// Export writes the collection to a single gob file. A non-empty
// encryptionKey must be 32 bytes.
func (m *VectorDBManager) Export(path, encryptionKey string) error {
	if path == "" {
		path = filepath.Join(m.dbPath, m.collection.Name+".chromem")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	log.Debug().Str("collection", m.collection.Name).Str("file", path).Bool("compress", m.compress).Msg("Exporting collection")
	if err := m.db.ExportToFile(path, m.compress, encryptionKey, m.collection.Name); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import merges a file written by Export into the collection. Entries with
// equal ids are overwritten, every other entry is kept. chromem's own import
// would swap the collection for the snapshot, so the file is read into a
// scratch in-memory DB and its documents are upserted from there.
func (m *VectorDBManager) Import(path, encryptionKey string) error {
	ctx := context.Background()
	name := m.collection.Name

	scratch := chromem.NewDB()
	if err := scratch.ImportFromFile(path, encryptionKey, name); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	src := scratch.GetCollection(name, nil)
	if src == nil {
		return fmt.Errorf("%w: collection %s in %s", models.ErrNotFound, name, path)
	}
	n := src.Count()
	if n == 0 {
		return nil
	}
	results, err := src.QueryEmbedding(ctx, m.probe(), n, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	docs := make([]chromem.Document, len(results))
	for i, r := range results {
		if len(r.Embedding) != m.dimension {
			return fmt.Errorf("%w: snapshot entry %s has %d, expected %d", models.ErrDimensionMismatch, r.ID, len(r.Embedding), m.dimension)
		}
		docs[i] = chromem.Document{ID: r.ID, Metadata: r.Metadata, Embedding: r.Embedding, Content: r.Content}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add imported documents: %w", err)
	}
	log.Debug().Str("collection", name).Str("file", path).Int("documents", len(docs)).Msg("Imported collection")
	return nil
}

// search clamps nResults to the collection size, which chromem requires
// even when the where filter narrows the candidates further.
func (m *VectorDBManager) search(ctx context.Context, embedding []float32, nResults int, where map[string]string) ([]chromem.Result, error) {
	total := m.collection.Count()
	if total == 0 {
		return nil, nil
	}
	results, err := m.collection.QueryEmbedding(ctx, embedding, min(nResults, total), where, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}
	return results, nil
}

// all returns every entry matching where. chromem has no listing call, so
// it ranks the whole collection against a unit probe vector.
func (m *VectorDBManager) all(ctx context.Context, where map[string]string) ([]chromem.Result, error) {
	return m.search(ctx, m.probe(), m.collection.Count(), where)
}

func (m *VectorDBManager) probe() []float32 {
	dim := m.dimension
	if dim <= 0 {
		dim = 1
	}
	v := make([]float32, dim)
	v[0] = 1
	return v
}

func tenantWhere(tenantID int64) map[string]string {
	return map[string]string{vectorstore.KeyTenant: strconv.FormatInt(tenantID, 10)}
}

func metadata(tenantID int64, filename string, chunk models.Chunk) map[string]string {
	return map[string]string{
		vectorstore.KeyTenant:   strconv.FormatInt(tenantID, 10),
		vectorstore.KeyFilename: filename,
		vectorstore.KeyPage:     strconv.Itoa(chunk.PageNumber),
		vectorstore.KeyChunk:    strconv.Itoa(chunk.ChunkIndex),
	}
}

func toEntry(r chromem.Result) models.Entry {
	tenantID, _ := strconv.ParseInt(r.Metadata[vectorstore.KeyTenant], 10, 64)
	page, _ := strconv.Atoi(r.Metadata[vectorstore.KeyPage])
	chunk, _ := strconv.Atoi(r.Metadata[vectorstore.KeyChunk])
	return models.Entry{
		ID:         r.ID,
		TenantID:   tenantID,
		Filename:   r.Metadata[vectorstore.KeyFilename],
		PageNumber: page,
		ChunkIndex: chunk,
		Content:    r.Content,
		Similarity: r.Similarity,
	}
}
