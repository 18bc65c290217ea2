// Package ledger is the append-only double-entry journal. Every balance change
// is recorded as a set of legs sharing an operation id whose amounts sum to
// zero; wallet legs move wallet balances, system legs (escrow, platform
// revenue, external) exist only as postings.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/escrowledger/internal/domain"
	"github.com/congo-pay/escrowledger/internal/store"
)

// Metadata keys written on wallet legs.
const (
	MetaBalanceAfter = "balance_after"
	MetaOriginalKey  = "original_key"
	MetaError        = "error"
	MetaOperation    = "operation"
	MetaReason       = "reason"
)

// Append stores entry unless its idempotency key is already taken, in which
// case the stored entry is returned with applied=false.
func Append(ctx context.Context, tx store.Tx, entry domain.Entry) (domain.Entry, bool, error) {
	if entry.IdempotencyKey == "" {
		return domain.Entry{}, false, fmt.Errorf("entry idempotency key is required: %w", domain.ErrValidation)
	}
	existing, err := tx.Entries().GetByKey(ctx, entry.IdempotencyKey)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Entry{}, false, err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Status == "" {
		entry.Status = domain.EntryCompleted
	}
	if err := tx.Entries().Insert(ctx, entry); err != nil {
		return domain.Entry{}, false, err
	}
	return entry, true, nil
}

// Leg is one posting of an Operation.
type Leg struct {
	ID          string
	Key         string
	Account     string
	Amount      int64
	Type        domain.EntryType
	SenderID    string
	RecipientID string
	Metadata    map[string]string
}

// Operation groups balanced legs.
type Operation struct {
	ID          string
	Currency    string
	ReferenceID string
	Legs        []Leg
	At          time.Time
}

// NewLegID returns an id for a leg that must be referenced before it is posted,
// for example from an audit record.
func NewLegID() string {
	return uuid.NewString()
}

// Post appends every leg of op. The legs must sum to zero, and none of their
// keys may exist yet: a taken key surfaces as domain.ErrDuplicate so the caller
// can switch to its replay path.
func Post(ctx context.Context, tx store.Tx, op Operation) ([]domain.Entry, error) {
	var sum int64
	for _, leg := range op.Legs {
		sum += leg.Amount
	}
	if sum != 0 {
		return nil, fmt.Errorf("operation %s is unbalanced by %d", op.ID, sum)
	}
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	out := make([]domain.Entry, 0, len(op.Legs))
	for _, leg := range op.Legs {
		if leg.Amount == 0 {
			continue
		}
		entry, applied, err := Append(ctx, tx, domain.Entry{
			ID:             leg.ID,
			IdempotencyKey: leg.Key,
			OperationID:    op.ID,
			Account:        leg.Account,
			SenderID:       domain.StringPtr(leg.SenderID),
			RecipientID:    domain.StringPtr(leg.RecipientID),
			Amount:         leg.Amount,
			Currency:       op.Currency,
			Type:           leg.Type,
			Status:         domain.EntryCompleted,
			ReferenceID:    op.ReferenceID,
			Metadata:       leg.Metadata,
			CreatedAt:      op.At,
		})
		if err != nil {
			return nil, err
		}
		if !applied {
			return nil, fmt.Errorf("entry %s already posted: %w", leg.Key, domain.ErrDuplicate)
		}
		out = append(out, entry)
	}
	return out, nil
}

// LegKey derives the idempotency key of a secondary leg.
func LegKey(key, suffix string) string {
	return key + domain.KeySeparator + suffix
}

// WithBalance copies md and records the wallet balance after the posting.
func WithBalance(md map[string]string, balance int64) map[string]string {
	out := make(map[string]string, len(md)+1)
	for k, v := range md {
		out[k] = v
	}
	out[MetaBalanceAfter] = strconv.FormatInt(balance, 10)
	return out
}

// BalanceAfter reads the balance recorded by WithBalance.
func BalanceAfter(e domain.Entry) int64 {
	v, _ := strconv.ParseInt(e.Metadata[MetaBalanceAfter], 10, 64)
	return v
}

// ByKey indexes entries by idempotency key.
func ByKey(entries []domain.Entry) map[string]domain.Entry {
	out := make(map[string]domain.Entry, len(entries))
	for _, e := range entries {
		out[e.IdempotencyKey] = e
	}
	return out
}
