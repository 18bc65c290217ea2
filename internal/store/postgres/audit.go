package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/congo-pay/escrowledger/internal/domain"
)

type auditRepo struct {
	tx pgx.Tx
}

func (r auditRepo) Insert(ctx context.Context, rec domain.AuditRecord) error {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, `INSERT INTO audit_records (id, actor_id, request_id, action, entity, entity_id,
        balance_before, balance_after, status_before, status_after, entry_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		id, rec.ActorID, rec.RequestID, rec.Action, string(rec.Entity), rec.EntityID,
		rec.BalanceBefore, rec.BalanceAfter, rec.StatusBefore, rec.StatusAfter, rec.EntryID, rec.CreatedAt.UTC())
	return translate(err)
}

func (r auditRepo) List(ctx context.Context, entity domain.Entity, entityID string, limit int) ([]domain.AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.tx.Query(ctx, `SELECT id::text, actor_id, request_id, action, entity, entity_id, balance_before,
            balance_after, status_before, status_after, entry_id, created_at
        FROM audit_records WHERE entity = $1 AND entity_id = $2
        ORDER BY created_at LIMIT $3`, string(entity), entityID, limit)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []domain.AuditRecord
	for rows.Next() {
		var (
			rec  domain.AuditRecord
			kind string
		)
		if err := rows.Scan(&rec.ID, &rec.ActorID, &rec.RequestID, &rec.Action, &kind, &rec.EntityID,
			&rec.BalanceBefore, &rec.BalanceAfter, &rec.StatusBefore, &rec.StatusAfter, &rec.EntryID, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Entity = domain.Entity(kind)
		rec.CreatedAt = rec.CreatedAt.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}
