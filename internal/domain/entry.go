package domain

import "time"

// EntryType classifies a ledger posting.
type EntryType string

const (
	EntryTransfer      EntryType = "transfer"
	EntryEscrowHold    EntryType = "escrow_hold"
	EntryEscrowRelease EntryType = "escrow_release"
	EntryEscrowRefund  EntryType = "escrow_refund"
	EntryCommission    EntryType = "commission"
	EntryReward        EntryType = "reward"
	EntryWithdrawal    EntryType = "withdrawal"
)

// EntryStatus is the processing state of a ledger posting.
type EntryStatus string

const (
	EntryPending   EntryStatus = "pending"
	EntryCompleted EntryStatus = "completed"
	EntryFailed    EntryStatus = "failed"
	EntryRefunded  EntryStatus = "refunded"
)

// Entry is one leg of a balance-affecting operation. The legs sharing an
// OperationID sum to zero.
type Entry struct {
	ID             string
	IdempotencyKey string
	OperationID    string
	Account        string
	SenderID       *string
	RecipientID    *string
	Amount         int64
	Currency       string
	Type           EntryType
	Status         EntryStatus
	ReferenceID    string
	Metadata       map[string]string
	CreatedAt      time.Time
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
