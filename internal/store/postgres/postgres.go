// Package postgres implements store.Store on PostgreSQL using pgx. Row locks are
// taken with SELECT ... FOR UPDATE NOWAIT so contention surfaces immediately as
// domain.ErrLockContention.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/escrowledger/internal/domain"
	"github.com/congo-pay/escrowledger/internal/store"
)

//go:embed schema.sql
var schema string

const (
	codeLockNotAvailable = "55P03"
	codeUniqueViolation  = "23505"
	codeCheckViolation   = "23514"
)

// Store persists ledger state in PostgreSQL.
type Store struct {
	db *pgxpool.Pool
}

// New constructs a Postgres-backed store.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

var _ store.Store = (*Store)(nil)

// Migrate applies the idempotent schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// WithTx runs fn inside a read-committed transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	pgTx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer pgTx.Rollback(ctx) // nolint:errcheck

	if err := fn(ctx, &tx{tx: pgTx}); err != nil {
		return translate(err)
	}
	if err := pgTx.Commit(ctx); err != nil {
		return translate(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

type tx struct {
	tx pgx.Tx
}

func (t *tx) Wallets() store.WalletRepository  { return walletRepo{t.tx} }
func (t *tx) Entries() store.EntryRepository   { return entryRepo{t.tx} }
func (t *tx) Escrows() store.EscrowRepository  { return escrowRepo{t.tx} }
func (t *tx) Audit() store.AuditRepository     { return auditRepo{t.tx} }
func (t *tx) Policies() store.PolicyRepository { return policyRepo{t.tx} }

// translate maps driver errors onto the domain taxonomy.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeLockNotAvailable:
		return fmt.Errorf("%s: %w", pgErr.Message, domain.ErrLockContention)
	case codeUniqueViolation:
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, domain.ErrDuplicate)
	case codeCheckViolation:
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, domain.ErrInsufficientFunds)
	default:
		return err
	}
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return translate(err)
}
