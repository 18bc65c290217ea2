package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/congo-pay/escrowledger/internal/domain"
)

const entryColumns = `id::text, idempotency_key, operation_id::text, account_code, sender_id, recipient_id,
        amount, currency, type, status, reference_id, metadata, created_at`

type entryRepo struct {
	tx pgx.Tx
}

func (r entryRepo) Insert(ctx context.Context, e domain.Entry) error {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return err
	}
	opID, err := uuid.Parse(e.OperationID)
	if err != nil {
		return err
	}
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	_, err = r.tx.Exec(ctx, `INSERT INTO ledger_entries (id, idempotency_key, operation_id, account_code, sender_id,
        recipient_id, amount, currency, type, status, reference_id, metadata, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		id, e.IdempotencyKey, opID, e.Account, e.SenderID, e.RecipientID, e.Amount, e.Currency,
		string(e.Type), string(e.Status), e.ReferenceID, metadata, e.CreatedAt.UTC())
	return translate(err)
}

func (r entryRepo) GetByKey(ctx context.Context, key string) (domain.Entry, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE idempotency_key = $1`, key)
	e, err := scanEntry(row)
	if err != nil {
		return domain.Entry{}, notFound(err, "entry "+key)
	}
	return e, nil
}

func (r entryRepo) ListByOperation(ctx context.Context, operationID string) ([]domain.Entry, error) {
	opID, err := uuid.Parse(operationID)
	if err != nil {
		return nil, err
	}
	rows, err := r.tx.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE operation_id = $1 ORDER BY created_at, idempotency_key`, opID)
	if err != nil {
		return nil, translate(err)
	}
	return collectEntries(rows)
}

func (r entryRepo) ListByAccount(ctx context.Context, account string, limit int) ([]domain.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.tx.Query(ctx, `SELECT * FROM (
            SELECT `+entryColumns+` FROM ledger_entries WHERE account_code = $1
            ORDER BY created_at DESC, idempotency_key DESC LIMIT $2
        ) recent ORDER BY created_at, idempotency_key`, account, limit)
	if err != nil {
		return nil, translate(err)
	}
	return collectEntries(rows)
}

func (r entryRepo) SumCompleted(ctx context.Context, account string) (int64, error) {
	var total int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
        WHERE account_code = $1 AND status = $2`, account, string(domain.EntryCompleted)).Scan(&total)
	return total, translate(err)
}

func collectEntries(rows pgx.Rows) ([]domain.Entry, error) {
	defer rows.Close()
	var out []domain.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(row pgx.Row) (domain.Entry, error) {
	var (
		e         domain.Entry
		entryType string
		status    string
	)
	if err := row.Scan(&e.ID, &e.IdempotencyKey, &e.OperationID, &e.Account, &e.SenderID, &e.RecipientID,
		&e.Amount, &e.Currency, &entryType, &status, &e.ReferenceID, &e.Metadata, &e.CreatedAt); err != nil {
		return domain.Entry{}, err
	}
	e.Type = domain.EntryType(entryType)
	e.Status = domain.EntryStatus(status)
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}
