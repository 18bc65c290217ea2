package domain

import "time"

// EscrowStatus is the state of an escrow. Released and refunded are terminal.
type EscrowStatus string

const (
	EscrowPending  EscrowStatus = "pending"
	EscrowReleased EscrowStatus = "released"
	EscrowRefunded EscrowStatus = "refunded"
)

// RefundReasonExpired marks refunds issued by the expiry reaper.
const RefundReasonExpired = "expired"

// Escrow holds funds debited from a sender until a release condition is met.
type Escrow struct {
	ID               string
	IdempotencyKey   string
	SenderID         string
	RecipientID      string
	Amount           int64
	Currency         string
	ReferenceID      string
	ReleaseCondition string
	Status           EscrowStatus
	RefundReason     string
	VerifiedBy       string

	// HeldAmount is what was debited from the sender: Amount plus the sender
	// share of commission when the escrow charges commission.
	HeldAmount       int64
	PayoutAmount     int64
	CommissionAmount int64
	CommissionTier   string

	HoldOperationID string
	CreatedAt       time.Time
	ExpiresAt       time.Time
	ReleasedAt      *time.Time
	RefundedAt      *time.Time
}

// IsTerminal reports whether the escrow can no longer change.
func (e Escrow) IsTerminal() bool {
	return e.Status == EscrowReleased || e.Status == EscrowRefunded
}

// ExpiredAt reports whether the deadline passed at now.
func (e Escrow) ExpiredAt(now time.Time) bool {
	return e.ExpiresAt.Before(now)
}
