// Package store defines the transactional persistence contract shared by the
// wallet, ledger, escrow, commission and audit components. Every public
// operation runs inside exactly one WithTx call; row locks taken through the
// LockNoWait methods are held until the transaction ends and fail immediately
// with domain.ErrLockContention when another transaction holds them.
package store

import (
	"context"
	"time"

	"github.com/congo-pay/escrowledger/internal/domain"
)

// Store opens atomic units of work.
type Store interface {
	// WithTx runs fn in a transaction. The transaction commits when fn returns
	// nil and rolls back otherwise. Errors raised at commit time (for example a
	// unique key taken by a concurrent transaction) are returned as-is.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
}

// Tx exposes one typed repository per entity.
type Tx interface {
	Wallets() WalletRepository
	Entries() EntryRepository
	Escrows() EscrowRepository
	Audit() AuditRepository
	Policies() PolicyRepository
}

// WalletRepository persists wallet rows.
type WalletRepository interface {
	// Ensure creates an active zero-balance wallet when none exists.
	Ensure(ctx context.Context, key domain.WalletKey, now time.Time) (domain.Wallet, error)
	Get(ctx context.Context, key domain.WalletKey) (domain.Wallet, error)
	LockNoWait(ctx context.Context, key domain.WalletKey) (domain.Wallet, error)
	// Update persists balance and status of a wallet locked by this transaction.
	Update(ctx context.Context, wallet domain.Wallet) error
}

// EntryRepository is the append-only ledger journal.
type EntryRepository interface {
	// Insert fails with domain.ErrDuplicate when the idempotency key exists.
	Insert(ctx context.Context, entry domain.Entry) error
	GetByKey(ctx context.Context, key string) (domain.Entry, error)
	ListByOperation(ctx context.Context, operationID string) ([]domain.Entry, error)
	ListByAccount(ctx context.Context, account string, limit int) ([]domain.Entry, error)
	SumCompleted(ctx context.Context, account string) (int64, error)
}

// EscrowRepository persists escrows.
type EscrowRepository interface {
	// Insert fails with domain.ErrDuplicate when the idempotency key or the
	// pending (sender, recipient, reference) tuple is taken.
	Insert(ctx context.Context, escrow domain.Escrow) error
	Get(ctx context.Context, id string) (domain.Escrow, error)
	GetByKey(ctx context.Context, key string) (domain.Escrow, error)
	FindPending(ctx context.Context, senderID, recipientID, referenceID string) (domain.Escrow, error)
	LockNoWait(ctx context.Context, id string) (domain.Escrow, error)
	// Update persists an escrow locked by this transaction.
	Update(ctx context.Context, escrow domain.Escrow) error
	// ListExpired returns pending escrows with expires_at before the cutoff
	// that sort after the cursor, ordered by (expires_at, id).
	ListExpired(ctx context.Context, before time.Time, after ExpiryCursor, limit int) ([]domain.Escrow, error)
	ListByParty(ctx context.Context, userID string, limit int) ([]domain.Escrow, error)
}

// AuditRepository stores audit records.
type AuditRepository interface {
	Insert(ctx context.Context, record domain.AuditRecord) error
	List(ctx context.Context, entity domain.Entity, entityID string, limit int) ([]domain.AuditRecord, error)
}

// PolicyRepository stores recipient commission policies.
type PolicyRepository interface {
	// Get returns domain.ErrNotFound when the user has no policy.
	Get(ctx context.Context, userID string) (domain.RecipientPolicy, error)
	Upsert(ctx context.Context, policy domain.RecipientPolicy) error
}

// ExpiryCursor pages ListExpired past escrows already returned. The zero value
// starts at the oldest deadline.
type ExpiryCursor struct {
	ExpiresAt time.Time
	ID        string
}

// CursorAt positions a cursor on e.
func CursorAt(e domain.Escrow) ExpiryCursor {
	return ExpiryCursor{ExpiresAt: e.ExpiresAt, ID: e.ID}
}

// Less reports whether the cursor sorts before e.
func (c ExpiryCursor) Less(e domain.Escrow) bool {
	if !c.ExpiresAt.Equal(e.ExpiresAt) {
		return c.ExpiresAt.Before(e.ExpiresAt)
	}
	return c.ID < e.ID
}
