package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecipientPolicy carries per-recipient commission treatment.
type RecipientPolicy struct {
	UserID       string
	VIP          bool
	VIPExpiresAt *time.Time

	// SenderShare, when set, replaces the tier's sender share for this recipient.
	SenderShare *decimal.Decimal
	UpdatedAt   time.Time
}

// VIPActive reports whether the VIP override applies at now.
func (p RecipientPolicy) VIPActive(now time.Time) bool {
	if !p.VIP {
		return false
	}
	return p.VIPExpiresAt == nil || p.VIPExpiresAt.After(now)
}
