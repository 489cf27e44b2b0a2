// Package storetest holds the behaviour checks every vectorstore.Store
// backend must pass. Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"document-qa/internal/models"
	"document-qa/internal/vectorstore"
)

// Dimension is the vector size stores under test must be opened with.
const Dimension = 4

// Run executes the contract suite. open must return a fresh, empty store
// configured with Dimension and register its own cleanup.
func Run(t *testing.T, open func(t *testing.T) vectorstore.Store) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(t *testing.T, s vectorstore.Store)
	}{
		{"RoundTrip", testRoundTrip},
		{"QueryEmptyTenant", testQueryEmptyTenant},
		{"QueryFewerThanRequested", testQueryFewerThanRequested},
		{"TenantIsolation", testTenantIsolation},
		{"IdempotentClear", testIdempotentClear},
		{"Upsert", testUpsert},
		{"DeleteDocument", testDeleteDocument},
		{"ListFilenames", testListFilenames},
		{"RejectsBadBatches", testRejectsBadBatches},
		{"ConcurrentTenants", testConcurrentTenants},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

// axis returns a unit vector along dimension i.
func axis(i int) []float32 {
	v := make([]float32, Dimension)
	v[i%Dimension] = 1
	return v
}

func chunks(page int, texts ...string) []models.Chunk {
	out := make([]models.Chunk, len(texts))
	for i, text := range texts {
		out[i] = models.Chunk{Content: text, PageNumber: page, ChunkIndex: i}
	}
	return out
}

func mustStore(t *testing.T, s vectorstore.Store, tenant int64, filename string, cs []models.Chunk) {
	t.Helper()
	embs := make([][]float32, len(cs))
	for i := range cs {
		embs[i] = axis(i)
	}
	n, err := s.Store(context.Background(), tenant, filename, cs, embs)
	if err != nil {
		t.Fatalf("Store(%d, %s) failed: %v", tenant, filename, err)
	}
	if n != len(cs) {
		t.Fatalf("Store(%d, %s) = %d, want %d", tenant, filename, n, len(cs))
	}
}

func mustQuery(t *testing.T, s vectorstore.Store, tenant int64, emb []float32, n int) []models.Entry {
	t.Helper()
	out, err := s.Query(context.Background(), tenant, emb, n)
	if err != nil {
		t.Fatalf("Query(%d) failed: %v", tenant, err)
	}
	return out
}

func mustHas(t *testing.T, s vectorstore.Store, tenant int64) bool {
	t.Helper()
	ok, err := s.HasDocuments(context.Background(), tenant)
	if err != nil {
		t.Fatalf("HasDocuments(%d) failed: %v", tenant, err)
	}
	return ok
}

func testRoundTrip(t *testing.T, s vectorstore.Store) {
	mustStore(t, s, 1, "guide.pdf", chunks(3, "alpha", "beta", "gamma", "delta"))

	out := mustQuery(t, s, 1, axis(2), 2)
	if len(out) != 2 {
		t.Fatalf("Query returned %d entries, want 2", len(out))
	}
	top := out[0]
	if top.Content != "gamma" || top.Filename != "guide.pdf" || top.PageNumber != 3 || top.ChunkIndex != 2 {
		t.Errorf("top entry = %+v, want gamma from guide.pdf page 3 chunk 2", top)
	}
	if top.TenantID != 1 {
		t.Errorf("top entry tenant = %d, want 1", top.TenantID)
	}
	if want := vectorstore.EntryID(1, "guide.pdf", 3, 2); top.ID != want {
		t.Errorf("top entry id = %q, want %q", top.ID, want)
	}
	if out[0].Similarity < out[1].Similarity {
		t.Errorf("entries not ranked: %v < %v", out[0].Similarity, out[1].Similarity)
	}
}

func testQueryEmptyTenant(t *testing.T, s vectorstore.Store) {
	out := mustQuery(t, s, 42, axis(0), 5)
	if len(out) != 0 {
		t.Errorf("Query on empty store returned %d entries", len(out))
	}
	mustStore(t, s, 1, "a.pdf", chunks(1, "x"))
	out = mustQuery(t, s, 42, axis(0), 5)
	if len(out) != 0 {
		t.Errorf("Query on empty tenant returned %d entries", len(out))
	}
}

func testQueryFewerThanRequested(t *testing.T, s vectorstore.Store) {
	mustStore(t, s, 1, "a.pdf", chunks(1, "one", "two", "three"))
	if out := mustQuery(t, s, 1, axis(0), 10); len(out) != 3 {
		t.Errorf("Query(n=10) returned %d entries, want all 3", len(out))
	}
}

func testTenantIsolation(t *testing.T, s vectorstore.Store) {
	mustStore(t, s, 1, "a.pdf", chunks(1, "a0", "a1", "a2"))
	mustStore(t, s, 2, "b.pdf", chunks(1, "b0", "b1"))

	for _, e := range mustQuery(t, s, 2, axis(0), 10) {
		if e.Filename != "b.pdf" {
			t.Errorf("tenant 2 query returned %s/%s", e.Filename, e.Content)
		}
	}
	names, err := s.ListFilenames(context.Background(), 2)
	if err != nil {
		t.Fatalf("ListFilenames failed: %v", err)
	}
	if len(names) != 1 || names[0] != "b.pdf" {
		t.Errorf("tenant 2 filenames = %v, want [b.pdf]", names)
	}
	if mustHas(t, s, 3) {
		t.Errorf("tenant 3 reports documents it never stored")
	}

	if err := s.Clear(context.Background(), 1); err != nil {
		t.Fatalf("Clear(1) failed: %v", err)
	}
	if out := mustQuery(t, s, 2, axis(0), 10); len(out) != 2 {
		t.Errorf("clearing tenant 1 changed tenant 2 to %d entries", len(out))
	}
	if err := s.DeleteDocument(context.Background(), 1, "b.pdf"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("tenant 1 deleting tenant 2's file = %v, want ErrNotFound", err)
	}
	if !mustHas(t, s, 2) {
		t.Errorf("tenant 2 lost its documents")
	}
}

func testIdempotentClear(t *testing.T, s vectorstore.Store) {
	mustStore(t, s, 1, "a.pdf", chunks(1, "x", "y"))
	if err := s.Clear(context.Background(), 1); err != nil {
		t.Fatalf("first Clear failed: %v", err)
	}
	if mustHas(t, s, 1) {
		t.Errorf("HasDocuments after Clear = true")
	}
	if err := s.Clear(context.Background(), 1); err != nil {
		t.Errorf("second Clear failed: %v", err)
	}
	if err := s.Clear(context.Background(), 99); err != nil {
		t.Errorf("Clear on never-used tenant failed: %v", err)
	}
}

func testUpsert(t *testing.T, s vectorstore.Store) {
	mustStore(t, s, 1, "a.pdf", chunks(1, "old0", "old1"))
	mustStore(t, s, 1, "a.pdf", chunks(1, "new0", "new1"))

	out := mustQuery(t, s, 1, axis(0), 10)
	if len(out) != 2 {
		t.Fatalf("re-store produced %d entries, want 2", len(out))
	}
	for _, e := range out {
		if e.Content != "new0" && e.Content != "new1" {
			t.Errorf("stale content %q survived re-store", e.Content)
		}
	}
}

func testDeleteDocument(t *testing.T, s vectorstore.Store) {
	mustStore(t, s, 1, "keep.pdf", chunks(1, "k0"))
	mustStore(t, s, 1, "drop.pdf", chunks(1, "d0", "d1"))

	if err := s.DeleteDocument(context.Background(), 1, "drop.pdf"); err != nil {
		t.Fatalf("DeleteDocument failed: %v", err)
	}
	for _, e := range mustQuery(t, s, 1, axis(0), 10) {
		if e.Filename == "drop.pdf" {
			t.Errorf("deleted entry %q still returned", e.Content)
		}
	}
	if err := s.DeleteDocument(context.Background(), 1, "drop.pdf"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
	if err := s.DeleteDocument(context.Background(), 7, "keep.pdf"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("delete under empty tenant = %v, want ErrNotFound", err)
	}
}

func testListFilenames(t *testing.T, s vectorstore.Store) {
	mustStore(t, s, 1, "b.pdf", chunks(1, "b0", "b1"))
	mustStore(t, s, 1, "a.pdf", chunks(2, "a0"))

	names, err := s.ListFilenames(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListFilenames failed: %v", err)
	}
	if fmt.Sprint(names) != "[a.pdf b.pdf]" {
		t.Errorf("ListFilenames = %v, want [a.pdf b.pdf]", names)
	}
	empty, err := s.ListFilenames(context.Background(), 2)
	if err != nil {
		t.Fatalf("ListFilenames(empty) failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("ListFilenames(empty) = %v", empty)
	}
}

func testRejectsBadBatches(t *testing.T, s vectorstore.Store) {
	ctx := context.Background()
	cs := chunks(1, "a", "b")

	if _, err := s.Store(ctx, 1, "a.pdf", cs, [][]float32{axis(0)}); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("length mismatch = %v, want ErrInvalidArgument", err)
	}
	if _, err := s.Store(ctx, 1, "a.pdf", cs, [][]float32{axis(0), {1, 2}}); !errors.Is(err, models.ErrDimensionMismatch) {
		t.Errorf("short vector = %v, want ErrDimensionMismatch", err)
	}
	if mustHas(t, s, 1) {
		t.Errorf("rejected batch was partially written")
	}
	if _, err := s.Query(ctx, 1, []float32{1, 0, 0, 0, 0}, 3); !errors.Is(err, models.ErrDimensionMismatch) {
		t.Errorf("query with wrong dimension = %v, want ErrDimensionMismatch", err)
	}
}

func testConcurrentTenants(t *testing.T, s vectorstore.Store) {
	const tenants = 6
	var wg sync.WaitGroup
	errs := make(chan error, tenants*2)
	for tenant := int64(1); tenant <= tenants; tenant++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := context.Background()
			cs := chunks(1, fmt.Sprintf("t%d-0", tenant), fmt.Sprintf("t%d-1", tenant))
			if _, err := s.Store(ctx, tenant, "shared.pdf", cs, [][]float32{axis(0), axis(1)}); err != nil {
				errs <- err
				return
			}
			// Odd tenants clear themselves while even ones keep their data.
			if tenant%2 == 1 {
				if err := s.Clear(ctx, tenant); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent call failed: %v", err)
	}

	for tenant := int64(1); tenant <= tenants; tenant++ {
		out := mustQuery(t, s, tenant, axis(0), 10)
		want := 2
		if tenant%2 == 1 {
			want = 0
		}
		if len(out) != want {
			t.Errorf("tenant %d has %d entries, want %d", tenant, len(out), want)
		}
		for _, e := range out {
			if e.TenantID != tenant {
				t.Errorf("tenant %d saw entry of tenant %d", tenant, e.TenantID)
			}
		}
	}
}
