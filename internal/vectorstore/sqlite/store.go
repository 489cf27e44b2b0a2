// Package sqlite is an embedded vector store on modernc.org/sqlite. Vectors
// are kept as blobs and ranked by an exact cosine scan over the tenant's rows.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"document-qa/internal/config"
	"document-qa/internal/models"
	"document-qa/internal/vectorstore"
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type Store struct {
	db        *sql.DB
	table     string
	dimension int

	// SQLite allows one writer; the lock also keeps check-then-delete atomic.
	mu sync.RWMutex
}

var _ vectorstore.Store = (*Store)(nil)

// Open opens the database file at cfg.Path (":memory:" works) and ensures the
// collection table exists.
func Open(cfg *config.VectorStoreConfig) (*Store, error) {
	path := cfg.Path
	if cfg.InMemory {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}
	// An in-memory database lives and dies with its connection.
	db.SetMaxOpenConns(1)

	s, err := New(db, cfg.Collection, cfg.Dimension)
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Debug().Str("path", path).Str("table", cfg.Collection).Msg("Opened sqlite store")
	return s, nil
}

// New wraps an open database handle.
func New(db *sql.DB, table string, dimension int) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite store: db is nil")
	}
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("sqlite store: invalid collection name %q", table)
	}
	s := &Store{db: db, table: table, dimension: dimension}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			tenant_id INTEGER NOT NULL,
			filename TEXT NOT NULL,
			page_number INTEGER NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding BLOB NOT NULL
		)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_tenant_file ON %s(tenant_id, filename)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("sqlite store: schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Store(ctx context.Context, tenantID int64, filename string, chunks []models.Chunk, embeddings [][]float32) (int, error) {
	if err := vectorstore.ValidateBatch(chunks, embeddings, s.dimension); err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s(id, tenant_id, filename, page_number, chunk_index, content, embedding)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content, embedding = excluded.embedding`, s.table))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for i, chunk := range chunks {
		id := vectorstore.EntryID(tenantID, filename, chunk.PageNumber, chunk.ChunkIndex)
		if _, err := stmt.ExecContext(ctx, id, tenantID, filename, chunk.PageNumber, chunk.ChunkIndex,
			chunk.Content, encodeEmbedding(embeddings[i])); err != nil {
			return 0, fmt.Errorf("sqlite store: insert %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

func (s *Store) Query(ctx context.Context, tenantID int64, embedding []float32, nResults int) ([]models.Entry, error) {
	if err := vectorstore.CheckDimension(embedding, s.dimension); err != nil {
		return nil, err
	}
	entries := []models.Entry{}
	if nResults <= 0 {
		return entries, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT id, filename, page_number, chunk_index, content, embedding
		FROM %s WHERE tenant_id = ?`, s.table), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		e := models.Entry{TenantID: tenantID}
		var blob []byte
		if err := rows.Scan(&e.ID, &e.Filename, &e.PageNumber, &e.ChunkIndex, &e.Content, &blob); err != nil {
			return nil, err
		}
		vec, err := decodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: entry %s: %w", e.ID, err)
		}
		e.Similarity = cosine(embedding, vec)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Ties keep id order so ranking is reproducible.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Similarity != entries[j].Similarity {
			return entries[i].Similarity > entries[j].Similarity
		}
		return entries[i].ID < entries[j].ID
	})
	if len(entries) > nResults {
		entries = entries[:nResults]
	}
	return entries, nil
}

func (s *Store) HasDocuments(ctx context.Context, tenantID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var one int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT 1 FROM %s WHERE tenant_id = ? LIMIT 1`, s.table), tenantID).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

func (s *Store) ListFilenames(ctx context.Context, tenantID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT DISTINCT filename FROM %s WHERE tenant_id = ? ORDER BY filename`, s.table), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) DeleteDocument(ctx context.Context, tenantID int64, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE tenant_id = ? AND filename = ?`, s.table), tenantID, filename)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: document %q", models.ErrNotFound, filename)
	}
	log.Debug().Int64("tenant_id", tenantID).Str("filename", filename).Int64("chunks", n).Msg("Deleted document")
	return nil
}

func (s *Store) Clear(ctx context.Context, tenantID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE tenant_id = ?`, s.table), tenantID)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}
