// Package audit records who changed which wallet or escrow. Records are written
// inside the mutation's own transaction, so a change and its trace commit or
// roll back together.
package audit

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/escrowledger/internal/domain"
	"github.com/congo-pay/escrowledger/internal/store"
)

// Actions recorded by the wallet and escrow components.
const (
	ActionDebit        = "wallet.debit"
	ActionCredit       = "wallet.credit"
	ActionStatus       = "wallet.status"
	ActionEscrowCreate = "escrow.create"
	ActionRelease      = "escrow.release"
	ActionRefund       = "escrow.refund"
)

// Write stores rec in tx, assigning an id and timestamp when missing.
func Write(ctx context.Context, tx store.Tx, rec domain.AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return tx.Audit().Insert(ctx, rec)
}

// WalletChange builds the record for a balance or status change.
func WalletChange(actor domain.Actor, action string, before, after domain.Wallet, entryID string, at time.Time) domain.AuditRecord {
	b, a := before.Balance, after.Balance
	return domain.AuditRecord{
		ActorID:       actor.ID,
		RequestID:     actor.RequestID,
		Action:        action,
		Entity:        domain.EntityWallet,
		EntityID:      after.Account(),
		BalanceBefore: &b,
		BalanceAfter:  &a,
		StatusBefore:  string(before.Status),
		StatusAfter:   string(after.Status),
		EntryID:       entryID,
		CreatedAt:     at,
	}
}

// EscrowChange builds the record for an escrow state transition. A zero before
// value marks creation.
func EscrowChange(actor domain.Actor, action string, before, after domain.Escrow, entryID string, at time.Time) domain.AuditRecord {
	return domain.AuditRecord{
		ActorID:      actor.ID,
		RequestID:    actor.RequestID,
		Action:       action,
		Entity:       domain.EntityEscrow,
		EntityID:     after.ID,
		StatusBefore: string(before.Status),
		StatusAfter:  string(after.Status),
		EntryID:      entryID,
		CreatedAt:    at,
	}
}

// Service answers audit queries.
type Service struct {
	store store.Store
}

// NewService builds an audit query service.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// List returns the most recent records for an entity. The selector is
// validated against the closed entity set.
func (s *Service) List(ctx context.Context, entity, entityID string, limit int) ([]domain.AuditRecord, error) {
	kind, err := domain.ParseEntity(strings.ToLower(strings.TrimSpace(entity)))
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []domain.AuditRecord
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Audit().List(ctx, kind, entityID, limit)
		return err
	})
	return out, err
}
