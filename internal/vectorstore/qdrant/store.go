// Package qdrant is the networked vector store backend. All tenants share one
// collection; every request carries a tenant_id payload filter.
package qdrant

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"

	qdrantclient "github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"document-qa/internal/config"
	"document-qa/internal/helper"
	"document-qa/internal/models"
	"document-qa/internal/vectorstore"
)

const scrollPage = 256

type Store struct {
	conn        *grpc.ClientConn
	collections qdrantclient.CollectionsClient
	points      qdrantclient.PointsClient
	collection  string
	dimension   int
	apiKey      string

	// serialises check-then-delete for DeleteDocument
	mu sync.Mutex
}

var _ vectorstore.Store = (*Store)(nil)

// Open connects over gRPC and creates the collection (cosine distance) when
// it does not exist yet.
func Open(ctx context.Context, cfg *config.VectorStoreConfig) (*Store, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Qdrant.Host, cfg.Qdrant.Port)
	creds := insecure.NewCredentials()
	if cfg.Qdrant.UseTLS {
		creds = credentials.NewTLS(&tls.Config{})
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s: %w", addr, err)
	}

	s := &Store{
		conn:        conn,
		collections: qdrantclient.NewCollectionsClient(conn),
		points:      qdrantclient.NewPointsClient(conn),
		collection:  cfg.Collection,
		dimension:   cfg.Dimension,
		apiKey:      cfg.Qdrant.APIKey,
	}
	if err := s.setupCollection(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	log.Debug().Str("addr", addr).Str("collection", cfg.Collection).Msg("Connected to Qdrant")
	return s, nil
}

func (s *Store) setupCollection(ctx context.Context) error {
	ctx = s.auth(ctx)
	resp, err := s.collections.List(ctx, &qdrantclient.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	for _, c := range resp.GetCollections() {
		if c.GetName() == s.collection {
			return nil
		}
	}

	_, err = s.collections.Create(ctx, &qdrantclient.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &qdrantclient.VectorsConfig{
			Config: &qdrantclient.VectorsConfig_Params{
				Params: &qdrantclient.VectorParams{
					Size:     uint64(s.dimension),
					Distance: qdrantclient.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", s.collection, err)
	}

	wait := true
	_, err = s.points.CreateFieldIndex(ctx, &qdrantclient.CreateFieldIndexCollection{
		CollectionName: s.collection,
		Wait:           &wait,
		FieldName:      vectorstore.KeyTenant,
		FieldType:      qdrantclient.FieldType_FieldTypeInteger.Enum(),
	})
	if err != nil {
		log.Warn().Err(err).Msg("Could not index tenant_id payload field")
	}
	log.Info().Str("collection", s.collection).Int("dimension", s.dimension).Msg("Created Qdrant collection")
	return nil
}

func (s *Store) Store(ctx context.Context, tenantID int64, filename string, chunks []models.Chunk, embeddings [][]float32) (int, error) {
	if err := vectorstore.ValidateBatch(chunks, embeddings, s.dimension); err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	points := make([]*qdrantclient.PointStruct, len(chunks))
	for i, chunk := range chunks {
		points[i] = toPoint(tenantID, filename, chunk, embeddings[i])
	}

	wait := true
	_, err := s.points.Upsert(s.auth(ctx), &qdrantclient.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upsert points: %w", err)
	}
	return len(points), nil
}

func (s *Store) Query(ctx context.Context, tenantID int64, embedding []float32, nResults int) ([]models.Entry, error) {
	if err := vectorstore.CheckDimension(embedding, s.dimension); err != nil {
		return nil, err
	}
	entries := []models.Entry{}
	if nResults <= 0 {
		return entries, nil
	}

	resp, err := s.points.Search(s.auth(ctx), &qdrantclient.SearchPoints{
		CollectionName: s.collection,
		Vector:         embedding,
		Filter:         tenantFilter(tenantID),
		Limit:          uint64(nResults),
		WithPayload:    payloadAll(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search in Qdrant: %w", err)
	}
	for _, p := range resp.GetResult() {
		e := fromPayload(p.GetPayload())
		e.Similarity = p.GetScore()
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *Store) HasDocuments(ctx context.Context, tenantID int64) (bool, error) {
	n, err := s.count(ctx, tenantFilter(tenantID))
	return n > 0, err
}

func (s *Store) ListFilenames(ctx context.Context, tenantID int64) ([]string, error) {
	names := make(map[string]struct{})
	limit := uint32(scrollPage)
	var offset *qdrantclient.PointId
	for {
		resp, err := s.points.Scroll(s.auth(ctx), &qdrantclient.ScrollPoints{
			CollectionName: s.collection,
			Filter:         tenantFilter(tenantID),
			Offset:         offset,
			Limit:          &limit,
			WithPayload: &qdrantclient.WithPayloadSelector{
				SelectorOptions: &qdrantclient.WithPayloadSelector_Include{
					Include: &qdrantclient.PayloadIncludeSelector{Fields: []string{vectorstore.KeyFilename}},
				},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll points: %w", err)
		}
		for _, p := range resp.GetResult() {
			names[p.GetPayload()[vectorstore.KeyFilename].GetStringValue()] = struct{}{}
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			break
		}
	}
	return vectorstore.SortedKeys(names), nil
}

func (s *Store) DeleteDocument(ctx context.Context, tenantID int64, filename string) error {
	filter := documentFilter(tenantID, filename)

	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.count(ctx, filter)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: document %q", models.ErrNotFound, filename)
	}
	return s.delete(ctx, filter)
}

func (s *Store) Clear(ctx context.Context, tenantID int64) error {
	return s.delete(ctx, tenantFilter(tenantID))
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) count(ctx context.Context, filter *qdrantclient.Filter) (uint64, error) {
	exact := true
	resp, err := s.points.Count(s.auth(ctx), &qdrantclient.CountPoints{
		CollectionName: s.collection,
		Filter:         filter,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return resp.GetResult().GetCount(), nil
}

func (s *Store) delete(ctx context.Context, filter *qdrantclient.Filter) error {
	wait := true
	_, err := s.points.Delete(s.auth(ctx), &qdrantclient.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: &qdrantclient.PointsSelector{
			PointsSelectorOneOf: &qdrantclient.PointsSelector_Filter{Filter: filter},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}
	return nil
}

func (s *Store) auth(ctx context.Context) context.Context {
	if s.apiKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "api-key", s.apiKey)
}

// Qdrant point ids must be UUIDs or integers.
func pointID(tenantID int64, filename string, chunk models.Chunk) string {
	return helper.StableUUID(vectorstore.EntryID(tenantID, filename, chunk.PageNumber, chunk.ChunkIndex))
}

func toPoint(tenantID int64, filename string, chunk models.Chunk, embedding []float32) *qdrantclient.PointStruct {
	return &qdrantclient.PointStruct{
		Id: &qdrantclient.PointId{
			PointIdOptions: &qdrantclient.PointId_Uuid{Uuid: pointID(tenantID, filename, chunk)},
		},
		Vectors: &qdrantclient.Vectors{
			VectorsOptions: &qdrantclient.Vectors_Vector{
				Vector: &qdrantclient.Vector{Data: embedding},
			},
		},
		Payload: map[string]*qdrantclient.Value{
			vectorstore.KeyTenant:   intValue(tenantID),
			vectorstore.KeyFilename: stringValue(filename),
			vectorstore.KeyPage:     intValue(int64(chunk.PageNumber)),
			vectorstore.KeyChunk:    intValue(int64(chunk.ChunkIndex)),
			vectorstore.KeyText:     stringValue(chunk.Content),
		},
	}
}

// fromPayload rebuilds the entry, including its EntryID; the point uuid is
// only a Qdrant-side key.
func fromPayload(p map[string]*qdrantclient.Value) models.Entry {
	e := models.Entry{
		TenantID:   p[vectorstore.KeyTenant].GetIntegerValue(),
		Filename:   p[vectorstore.KeyFilename].GetStringValue(),
		PageNumber: int(p[vectorstore.KeyPage].GetIntegerValue()),
		ChunkIndex: int(p[vectorstore.KeyChunk].GetIntegerValue()),
		Content:    p[vectorstore.KeyText].GetStringValue(),
	}
	e.ID = vectorstore.EntryID(e.TenantID, e.Filename, e.PageNumber, e.ChunkIndex)
	return e
}

func tenantFilter(tenantID int64) *qdrantclient.Filter {
	return &qdrantclient.Filter{Must: []*qdrantclient.Condition{matchInt(vectorstore.KeyTenant, tenantID)}}
}

func documentFilter(tenantID int64, filename string) *qdrantclient.Filter {
	return &qdrantclient.Filter{Must: []*qdrantclient.Condition{
		matchInt(vectorstore.KeyTenant, tenantID),
		matchKeyword(vectorstore.KeyFilename, filename),
	}}
}

func matchInt(key string, v int64) *qdrantclient.Condition {
	return fieldCondition(key, &qdrantclient.Match{MatchValue: &qdrantclient.Match_Integer{Integer: v}})
}

func matchKeyword(key, v string) *qdrantclient.Condition {
	return fieldCondition(key, &qdrantclient.Match{MatchValue: &qdrantclient.Match_Keyword{Keyword: v}})
}

func fieldCondition(key string, m *qdrantclient.Match) *qdrantclient.Condition {
	return &qdrantclient.Condition{
		ConditionOneOf: &qdrantclient.Condition_Field{
			Field: &qdrantclient.FieldCondition{Key: key, Match: m},
		},
	}
}

func payloadAll() *qdrantclient.WithPayloadSelector {
	return &qdrantclient.WithPayloadSelector{
		SelectorOptions: &qdrantclient.WithPayloadSelector_Enable{Enable: true},
	}
}

func intValue(v int64) *qdrantclient.Value {
	return &qdrantclient.Value{Kind: &qdrantclient.Value_IntegerValue{IntegerValue: v}}
}

func stringValue(v string) *qdrantclient.Value {
	return &qdrantclient.Value{Kind: &qdrantclient.Value_StringValue{StringValue: v}}
}
