package domain

import (
	"fmt"
	"time"
)

// Entity is the closed set of audited entity kinds. Selectors coming from the
// outside world must go through ParseEntity.
type Entity string

const (
	EntityWallet Entity = "wallet"
	EntityEscrow Entity = "escrow"
)

// ParseEntity validates an entity selector.
func ParseEntity(s string) (Entity, error) {
	switch Entity(s) {
	case EntityWallet, EntityEscrow:
		return Entity(s), nil
	default:
		return "", fmt.Errorf("unknown entity %q: %w", s, ErrValidation)
	}
}

// AuditRecord is the immutable trace of one wallet or escrow mutation.
type AuditRecord struct {
	ID            string
	ActorID       string
	RequestID     string
	Action        string
	Entity        Entity
	EntityID      string
	BalanceBefore *int64
	BalanceAfter  *int64
	StatusBefore  string
	StatusAfter   string
	EntryID       string
	CreatedAt     time.Time
}
