package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/congo-pay/escrowledger/internal/domain"
)

const walletColumns = `owner_id, currency, balance, status, created_at, updated_at`

type walletRepo struct {
	tx pgx.Tx
}

func (r walletRepo) Ensure(ctx context.Context, key domain.WalletKey, now time.Time) (domain.Wallet, error) {
	_, err := r.tx.Exec(ctx, `INSERT INTO wallets (owner_id, currency, balance, status, created_at, updated_at)
        VALUES ($1, $2, 0, $3, $4, $4)
        ON CONFLICT (owner_id, currency) DO NOTHING`, key.OwnerID, key.Currency, string(domain.WalletActive), now.UTC())
	if err != nil {
		return domain.Wallet{}, translate(err)
	}
	return r.Get(ctx, key)
}

func (r walletRepo) Get(ctx context.Context, key domain.WalletKey) (domain.Wallet, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1 AND currency = $2`, key.OwnerID, key.Currency)
	w, err := scanWallet(row)
	if err != nil {
		return domain.Wallet{}, notFound(err, "wallet "+key.Account())
	}
	return w, nil
}

func (r walletRepo) LockNoWait(ctx context.Context, key domain.WalletKey) (domain.Wallet, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1 AND currency = $2 FOR UPDATE NOWAIT`, key.OwnerID, key.Currency)
	w, err := scanWallet(row)
	if err != nil {
		return domain.Wallet{}, notFound(err, "wallet "+key.Account())
	}
	return w, nil
}

func (r walletRepo) Update(ctx context.Context, w domain.Wallet) error {
	_, err := r.tx.Exec(ctx, `UPDATE wallets SET balance = $1, status = $2, updated_at = $3
        WHERE owner_id = $4 AND currency = $5`, w.Balance, string(w.Status), w.UpdatedAt.UTC(), w.OwnerID, w.Currency)
	return translate(err)
}

func scanWallet(row pgx.Row) (domain.Wallet, error) {
	var (
		w      domain.Wallet
		status string
	)
	if err := row.Scan(&w.OwnerID, &w.Currency, &w.Balance, &status, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return domain.Wallet{}, err
	}
	w.Status = domain.WalletStatus(status)
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}
