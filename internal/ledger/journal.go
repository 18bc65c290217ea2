package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/escrowledger/internal/domain"
	"github.com/congo-pay/escrowledger/internal/events"
	"github.com/congo-pay/escrowledger/internal/store"
)

// Failure describes an operation that aborted for an unexpected reason.
type Failure struct {
	Operation   string
	Key         string
	Account     string
	SenderID    string
	RecipientID string
	Amount      int64
	Currency    string
	Type        domain.EntryType
	ReferenceID string
}

// Journal writes failed entries for unexpected errors in their own
// transaction, after the failing one has rolled back.
type Journal struct {
	store  store.Store
	events events.Publisher
	logger *slog.Logger
	now    func() time.Time
}

// NewJournal builds a failure journal.
func NewJournal(st store.Store, publisher events.Publisher, logger *slog.Logger) *Journal {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{store: st, events: publisher, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Guard passes expected errors through unchanged. Anything else is journaled
// and replaced with a generic internal error.
func (j *Journal) Guard(ctx context.Context, actor domain.Actor, f Failure, err error) error {
	if err == nil || domain.IsExpected(err) {
		return err
	}
	if errors.Is(err, domain.ErrInternal) {
		return err
	}
	id := j.Record(ctx, actor, f, err)
	return fmt.Errorf("%s failed (ref %s): %w", f.Operation, id, domain.ErrInternal)
}

// Record writes the failed entry and returns its id, or an empty string when
// the journal itself could not be written.
func (j *Journal) Record(ctx context.Context, actor domain.Actor, f Failure, cause error) string {
	ctx = context.WithoutCancel(ctx)
	entry := domain.Entry{
		ID:             uuid.NewString(),
		IdempotencyKey: "failed" + domain.KeySeparator + uuid.NewString(),
		OperationID:    uuid.NewString(),
		Account:        f.Account,
		SenderID:       domain.StringPtr(f.SenderID),
		RecipientID:    domain.StringPtr(f.RecipientID),
		Currency:       f.Currency,
		Type:           f.Type,
		Status:         domain.EntryFailed,
		ReferenceID:    f.ReferenceID,
		Metadata: map[string]string{
			MetaOriginalKey:    f.Key,
			MetaOperation:      f.Operation,
			MetaError:          cause.Error(),
			"attempted_amount": strconv.FormatInt(f.Amount, 10),
			"actor_id":         actor.ID,
		},
		CreatedAt: j.now(),
	}
	if entry.Currency == "" {
		entry.Currency = domain.DefaultCurrency
	}
	if entry.Type == "" {
		entry.Type = domain.EntryTransfer
	}

	err := j.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Entries().Insert(ctx, entry)
	})
	if err != nil {
		j.logger.Error("failure journal write failed", "operation", f.Operation, "key", f.Key, "cause", cause, "error", err)
		return ""
	}
	j.logger.Error("operation failed", "operation", f.Operation, "key", f.Key, "failed_entry", entry.ID, "error", cause, "request_id", actor.RequestID)
	j.events.Publish(ctx, events.Event{
		Kind:        events.OperationFailed,
		OperationID: entry.OperationID,
		EntityID:    entry.ID,
		ActorID:     actor.ID,
		RequestID:   actor.RequestID,
		SenderID:    f.SenderID,
		RecipientID: f.RecipientID,
		Amount:      f.Amount,
		Currency:    entry.Currency,
		Reason:      f.Operation,
	})
	return entry.ID
}
