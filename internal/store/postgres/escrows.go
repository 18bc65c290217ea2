package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/congo-pay/escrowledger/internal/domain"
	"github.com/congo-pay/escrowledger/internal/store"
)

const escrowColumns = `id::text, idempotency_key, sender_id, recipient_id, amount, currency, reference_id,
        release_condition, status, refund_reason, verified_by, held_amount, payout_amount, commission_amount,
        commission_tier, hold_operation_id::text, created_at, expires_at, released_at, refunded_at`

type escrowRepo struct {
	tx pgx.Tx
}

func (r escrowRepo) Insert(ctx context.Context, e domain.Escrow) error {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return err
	}
	opID, err := uuid.Parse(e.HoldOperationID)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, `INSERT INTO escrows (id, idempotency_key, sender_id, recipient_id, amount, currency,
            reference_id, release_condition, status, refund_reason, verified_by, held_amount, payout_amount,
            commission_amount, commission_tier, hold_operation_id, created_at, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		id, e.IdempotencyKey, e.SenderID, e.RecipientID, e.Amount, e.Currency, e.ReferenceID, e.ReleaseCondition,
		string(e.Status), e.RefundReason, e.VerifiedBy, e.HeldAmount, e.PayoutAmount, e.CommissionAmount,
		e.CommissionTier, opID, e.CreatedAt.UTC(), e.ExpiresAt.UTC())
	return translate(err)
}

func (r escrowRepo) Get(ctx context.Context, id string) (domain.Escrow, error) {
	escrowID, err := uuid.Parse(id)
	if err != nil {
		return domain.Escrow{}, notFound(pgx.ErrNoRows, "escrow "+id)
	}
	e, err := scanEscrow(r.tx.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE id = $1`, escrowID))
	if err != nil {
		return domain.Escrow{}, notFound(err, "escrow "+id)
	}
	return e, nil
}

func (r escrowRepo) GetByKey(ctx context.Context, key string) (domain.Escrow, error) {
	e, err := scanEscrow(r.tx.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE idempotency_key = $1`, key))
	if err != nil {
		return domain.Escrow{}, notFound(err, "escrow key "+key)
	}
	return e, nil
}

func (r escrowRepo) FindPending(ctx context.Context, senderID, recipientID, referenceID string) (domain.Escrow, error) {
	e, err := scanEscrow(r.tx.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows
        WHERE sender_id = $1 AND recipient_id = $2 AND reference_id = $3 AND status = $4`,
		senderID, recipientID, referenceID, string(domain.EscrowPending)))
	if err != nil {
		return domain.Escrow{}, notFound(err, "pending escrow for reference "+referenceID)
	}
	return e, nil
}

func (r escrowRepo) LockNoWait(ctx context.Context, id string) (domain.Escrow, error) {
	escrowID, err := uuid.Parse(id)
	if err != nil {
		return domain.Escrow{}, notFound(pgx.ErrNoRows, "escrow "+id)
	}
	e, err := scanEscrow(r.tx.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE id = $1 FOR UPDATE NOWAIT`, escrowID))
	if err != nil {
		return domain.Escrow{}, notFound(err, "escrow "+id)
	}
	return e, nil
}

func (r escrowRepo) Update(ctx context.Context, e domain.Escrow) error {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, `UPDATE escrows SET status = $1, refund_reason = $2, verified_by = $3,
        released_at = $4, refunded_at = $5 WHERE id = $6`,
		string(e.Status), e.RefundReason, e.VerifiedBy, e.ReleasedAt, e.RefundedAt, id)
	return translate(err)
}

func (r escrowRepo) ListExpired(ctx context.Context, before time.Time, after store.ExpiryCursor, limit int) ([]domain.Escrow, error) {
	if limit <= 0 {
		limit = 100
	}
	afterID := uuid.Nil
	if after.ID != "" {
		id, err := uuid.Parse(after.ID)
		if err != nil {
			return nil, err
		}
		afterID = id
	}
	rows, err := r.tx.Query(ctx, `SELECT `+escrowColumns+` FROM escrows
        WHERE status = $1 AND expires_at < $2 AND (expires_at, id) > ($3, $4)
        ORDER BY expires_at, id LIMIT $5`, string(domain.EscrowPending), before.UTC(), after.ExpiresAt.UTC(), afterID, limit)
	if err != nil {
		return nil, translate(err)
	}
	return collectEscrows(rows)
}

func (r escrowRepo) ListByParty(ctx context.Context, userID string, limit int) ([]domain.Escrow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.tx.Query(ctx, `SELECT `+escrowColumns+` FROM escrows
        WHERE sender_id = $1 OR recipient_id = $1
        ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, translate(err)
	}
	return collectEscrows(rows)
}

func collectEscrows(rows pgx.Rows) ([]domain.Escrow, error) {
	defer rows.Close()
	var out []domain.Escrow
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEscrow(row pgx.Row) (domain.Escrow, error) {
	var (
		e      domain.Escrow
		status string
	)
	if err := row.Scan(&e.ID, &e.IdempotencyKey, &e.SenderID, &e.RecipientID, &e.Amount, &e.Currency,
		&e.ReferenceID, &e.ReleaseCondition, &status, &e.RefundReason, &e.VerifiedBy, &e.HeldAmount,
		&e.PayoutAmount, &e.CommissionAmount, &e.CommissionTier, &e.HoldOperationID, &e.CreatedAt,
		&e.ExpiresAt, &e.ReleasedAt, &e.RefundedAt); err != nil {
		return domain.Escrow{}, err
	}
	e.Status = domain.EscrowStatus(status)
	e.CreatedAt = e.CreatedAt.UTC()
	e.ExpiresAt = e.ExpiresAt.UTC()
	return e, nil
}
