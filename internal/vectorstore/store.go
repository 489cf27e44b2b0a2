// Package vectorstore defines the tenant-scoped storage contract shared by
// the chromem, SQLite and Qdrant backends.
package vectorstore

import (
	"context"
	"fmt"
	"sort"

	"document-qa/internal/models"
)

// Metadata keys attached to every stored entry.
const (
	KeyTenant   = "tenant_id"
	KeyFilename = "filename"
	KeyPage     = "page_number"
	KeyChunk    = "chunk_index"
	KeyText     = "text"
)

// Store persists chunk embeddings in one logical collection partitioned by
// tenant. No call made for one tenant reads, ranks or removes another
// tenant's entries. Implementations are safe for concurrent use.
type Store interface {
	// Store upserts one entry per chunk and returns the number written.
	Store(ctx context.Context, tenantID int64, filename string, chunks []models.Chunk, embeddings [][]float32) (int, error)
	// Query returns up to nResults entries of the tenant, most similar first.
	// A tenant without entries yields an empty result, not an error.
	Query(ctx context.Context, tenantID int64, embedding []float32, nResults int) ([]models.Entry, error)
	HasDocuments(ctx context.Context, tenantID int64) (bool, error)
	// ListFilenames returns the distinct filenames of the tenant, sorted.
	ListFilenames(ctx context.Context, tenantID int64) ([]string, error)
	// DeleteDocument fails with models.ErrNotFound when nothing matches.
	DeleteDocument(ctx context.Context, tenantID int64, filename string) error
	// Clear removes every entry of the tenant. Clearing an empty tenant is a no-op.
	Clear(ctx context.Context, tenantID int64) error
	Close() error
}

// EntryID is the deterministic identifier of a chunk, so re-ingesting the
// same document overwrites instead of duplicating.
func EntryID(tenantID int64, filename string, pageNumber, chunkIndex int) string {
	return fmt.Sprintf("%d:%s:%d:%d", tenantID, filename, pageNumber, chunkIndex)
}

// ValidateBatch checks a Store call before anything is written.
func ValidateBatch(chunks []models.Chunk, embeddings [][]float32, dimension int) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("%w: %d chunks but %d embeddings", models.ErrInvalidArgument, len(chunks), len(embeddings))
	}
	for i, emb := range embeddings {
		if err := CheckDimension(emb, dimension); err != nil {
			return fmt.Errorf("embedding %d: %w", i, err)
		}
	}
	return nil
}

// CheckDimension rejects a vector whose length differs from dimension.
// A non-positive dimension disables the check.
func CheckDimension(vec []float32, dimension int) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty embedding", models.ErrInvalidArgument)
	}
	if dimension > 0 && len(vec) != dimension {
		return fmt.Errorf("%w: got %d, store expects %d", models.ErrDimensionMismatch, len(vec), dimension)
	}
	return nil
}

// SortedKeys returns the keys of a set in ascending order.
func SortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
