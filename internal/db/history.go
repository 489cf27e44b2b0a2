package db

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"document-qa/internal/models"
)

type ConversationTurn struct {
	bun.BaseModel `bun:"table:conversation_turns,alias:ct"`
	ID            int64     `bun:"id,pk,autoincrement"`
	TenantID      int64     `bun:"tenant_id,notnull"`
	Question      string    `bun:"question,notnull"`
	Answer        string    `bun:"answer,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
}

type MemoryFact struct {
	bun.BaseModel `bun:"table:memory_facts,alias:mf"`
	ID            int64     `bun:"id,pk,autoincrement"`
	TenantID      int64     `bun:"tenant_id,notnull"`
	Fact          string    `bun:"fact,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
}

// HistoryRepo stores conversation turns and long-term memory facts per tenant.
// Rows are append-only.
type HistoryRepo struct {
	db *bun.DB
}

func NewHistoryRepo(db *bun.DB) *HistoryRepo {
	return &HistoryRepo{db: db}
}

// RecentTurns returns up to limit turns of the tenant, newest first.
func (r *HistoryRepo) RecentTurns(ctx context.Context, tenantID int64, limit int) ([]models.Turn, error) {
	var rows []ConversationTurn
	err := r.db.NewSelect().
		Model(&rows).
		Where("tenant_id = ?", tenantID).
		OrderExpr("id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	turns := make([]models.Turn, len(rows))
	for i, row := range rows {
		turns[i] = models.Turn{Question: row.Question, Answer: row.Answer, CreatedAt: row.CreatedAt}
	}
	return turns, nil
}

// RecentFacts returns up to limit facts of the tenant, newest first.
func (r *HistoryRepo) RecentFacts(ctx context.Context, tenantID int64, limit int) ([]string, error) {
	var facts []string
	err := r.db.NewSelect().
		Model((*MemoryFact)(nil)).
		Column("fact").
		Where("tenant_id = ?", tenantID).
		OrderExpr("id DESC").
		Limit(limit).
		Scan(ctx, &facts)
	if err != nil {
		return nil, err
	}
	return facts, nil
}

func (r *HistoryRepo) AppendTurn(ctx context.Context, tenantID int64, question, answer string) error {
	row := &ConversationTurn{
		TenantID:  tenantID,
		Question:  question,
		Answer:    answer,
		CreatedAt: time.Now().UTC(),
	}
	_, err := r.db.NewInsert().Model(row).Exec(ctx)
	return err
}

func (r *HistoryRepo) AppendFact(ctx context.Context, tenantID int64, fact string) error {
	row := &MemoryFact{TenantID: tenantID, Fact: fact, CreatedAt: time.Now().UTC()}
	_, err := r.db.NewInsert().Model(row).Exec(ctx)
	return err
}
