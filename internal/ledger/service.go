package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/escrowledger/internal/commission"
	"github.com/congo-pay/escrowledger/internal/domain"
	"github.com/congo-pay/escrowledger/internal/events"
	"github.com/congo-pay/escrowledger/internal/store"
	"github.com/congo-pay/escrowledger/internal/wallet"
)

// Service runs transfers, rewards and withdrawals.
type Service struct {
	store      store.Store
	commission *commission.Service
	journal    *Journal
	events     events.Publisher
	logger     *slog.Logger
	now        func() time.Time
}

// NewService wires the ledger service.
func NewService(st store.Store, comm *commission.Service, journal *Journal, publisher events.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if journal == nil {
		journal = NewJournal(st, publisher, logger)
	}
	return &Service{
		store:      st,
		commission: comm,
		journal:    journal,
		events:     publisher,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// TransferInput describes a peer-to-peer transfer.
type TransferInput struct {
	IdempotencyKey string
	SenderID       string
	RecipientID    string
	Amount         int64
	Currency       string
	Metadata       map[string]string
}

// TransferResult is the outcome of a transfer. Replays return the stored one.
type TransferResult struct {
	OperationID      string
	IdempotencyKey   string
	SenderID         string
	RecipientID      string
	Amount           int64
	Currency         string
	Commission       commission.Record
	SenderBalance    int64
	RecipientBalance int64
	Entries          []domain.Entry
	Replayed         bool
	CompletedAt      time.Time
}

func (in *TransferInput) normalize() error {
	key, err := domain.NormalizeIdempotencyKey(in.IdempotencyKey)
	if err != nil {
		return err
	}
	in.IdempotencyKey = key
	in.SenderID = strings.TrimSpace(in.SenderID)
	in.RecipientID = strings.TrimSpace(in.RecipientID)
	in.Currency = domain.NormalizeCurrency(in.Currency)
	switch {
	case in.SenderID == "" || in.RecipientID == "":
		return fmt.Errorf("sender and recipient are required: %w", domain.ErrValidation)
	case in.SenderID == in.RecipientID:
		return fmt.Errorf("sender and recipient must differ: %w", domain.ErrValidation)
	}
	return domain.ValidateAmount(in.Amount)
}

// Transfer moves amount from sender to recipient with commission applied, in
// one transaction. The sender pays amount plus the sender commission, the
// recipient gets amount minus the recipient commission and platform revenue
// receives the total commission. A repeated key returns the original result.
func (s *Service) Transfer(ctx context.Context, actor domain.Actor, in TransferInput) (TransferResult, error) {
	if err := actor.Validate(); err != nil {
		return TransferResult{}, err
	}
	if err := in.normalize(); err != nil {
		return TransferResult{}, err
	}

	var res TransferResult
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		replay, found, err := s.replayTransfer(ctx, tx, in)
		if err != nil || found {
			res = replay
			return err
		}
		res, err = s.transfer(ctx, tx, actor, in)
		return err
	})
	if errors.Is(err, domain.ErrDuplicate) {
		// A concurrent call with the same key won the commit race.
		err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			replay, found, err := s.replayTransfer(ctx, tx, in)
			if err == nil && !found {
				err = fmt.Errorf("transfer %s: %w", in.IdempotencyKey, domain.ErrDuplicate)
			}
			res = replay
			return err
		})
	}
	if err != nil {
		return TransferResult{}, s.journal.Guard(ctx, actor, Failure{
			Operation:   "transfer",
			Key:         in.IdempotencyKey,
			Account:     domain.WalletAccount(in.SenderID, in.Currency),
			SenderID:    in.SenderID,
			RecipientID: in.RecipientID,
			Amount:      in.Amount,
			Currency:    in.Currency,
			Type:        domain.EntryTransfer,
		}, err)
	}
	if !res.Replayed {
		s.events.Publish(ctx, events.Event{
			Kind:        events.TransferCompleted,
			OperationID: res.OperationID,
			ActorID:     actor.ID,
			RequestID:   actor.RequestID,
			SenderID:    res.SenderID,
			RecipientID: res.RecipientID,
			Amount:      res.Amount,
			Currency:    res.Currency,
		})
	}
	return res, nil
}

func (s *Service) transfer(ctx context.Context, tx store.Tx, actor domain.Actor, in TransferInput) (TransferResult, error) {
	now := s.now()
	rec, err := s.commission.QuoteTx(ctx, tx, in.RecipientID, in.Amount, now)
	if err != nil {
		return TransferResult{}, err
	}

	senderKey := domain.WalletKey{OwnerID: in.SenderID, Currency: in.Currency}
	recipientKey := domain.WalletKey{OwnerID: in.RecipientID, Currency: in.Currency}
	sw, rw, err := wallet.LockPair(ctx, tx, senderKey, recipientKey, now)
	if err != nil {
		return TransferResult{}, err
	}

	debitID, creditID := NewLegID(), NewLegID()
	sw, err = wallet.Debit(ctx, tx, actor, sw, rec.SenderPays, debitID, now)
	if err != nil {
		return TransferResult{}, err
	}
	rw, err = wallet.Credit(ctx, tx, actor, rw, rec.RecipientGets, creditID, now)
	if err != nil {
		return TransferResult{}, err
	}

	md := rec.Metadata()
	for k, v := range in.Metadata {
		if _, reserved := md[k]; !reserved {
			md[k] = v
		}
	}
	op := Operation{
		ID:       uuid.NewString(),
		Currency: in.Currency,
		At:       now,
		Legs: []Leg{
			{ID: debitID, Key: in.IdempotencyKey, Account: sw.Account(), Amount: -rec.SenderPays, Type: domain.EntryTransfer,
				SenderID: in.SenderID, RecipientID: in.RecipientID, Metadata: WithBalance(md, sw.Balance)},
			{ID: creditID, Key: LegKey(in.IdempotencyKey, "credit"), Account: rw.Account(), Amount: rec.RecipientGets, Type: domain.EntryTransfer,
				SenderID: in.SenderID, RecipientID: in.RecipientID, Metadata: WithBalance(nil, rw.Balance)},
			{Key: LegKey(in.IdempotencyKey, "commission"), Account: domain.RevenueAccount(in.Currency), Amount: rec.TotalCommission,
				Type: domain.EntryCommission, SenderID: in.SenderID, RecipientID: in.RecipientID},
		},
	}
	entries, err := Post(ctx, tx, op)
	if err != nil {
		return TransferResult{}, err
	}
	return TransferResult{
		OperationID:      op.ID,
		IdempotencyKey:   in.IdempotencyKey,
		SenderID:         in.SenderID,
		RecipientID:      in.RecipientID,
		Amount:           in.Amount,
		Currency:         in.Currency,
		Commission:       rec,
		SenderBalance:    sw.Balance,
		RecipientBalance: rw.Balance,
		Entries:          entries,
		CompletedAt:      now,
	}, nil
}

func (s *Service) replayTransfer(ctx context.Context, tx store.Tx, in TransferInput) (TransferResult, bool, error) {
	primary, err := tx.Entries().GetByKey(ctx, in.IdempotencyKey)
	if errors.Is(err, domain.ErrNotFound) {
		return TransferResult{}, false, nil
	}
	if err != nil {
		return TransferResult{}, false, err
	}
	if primary.Type != domain.EntryTransfer || primary.Status != domain.EntryCompleted {
		return TransferResult{}, true, fmt.Errorf("idempotency key %s belongs to another operation: %w", in.IdempotencyKey, domain.ErrValidation)
	}
	rec, err := commission.FromMetadata(primary.Metadata)
	if err != nil {
		return TransferResult{}, true, err
	}
	if deref(primary.SenderID) != in.SenderID || deref(primary.RecipientID) != in.RecipientID ||
		rec.BaseAmount != in.Amount || primary.Currency != in.Currency {
		return TransferResult{}, true, fmt.Errorf("idempotency key %s reused with different parameters: %w", in.IdempotencyKey, domain.ErrValidation)
	}
	legs, err := tx.Entries().ListByOperation(ctx, primary.OperationID)
	if err != nil {
		return TransferResult{}, true, err
	}
	res := TransferResult{
		OperationID:    primary.OperationID,
		IdempotencyKey: in.IdempotencyKey,
		SenderID:       in.SenderID,
		RecipientID:    in.RecipientID,
		Amount:         rec.BaseAmount,
		Currency:       primary.Currency,
		Commission:     rec,
		SenderBalance:  BalanceAfter(primary),
		Entries:        legs,
		Replayed:       true,
		CompletedAt:    primary.CreatedAt,
	}
	if credit, ok := ByKey(legs)[LegKey(in.IdempotencyKey, "credit")]; ok {
		res.RecipientBalance = BalanceAfter(credit)
	}
	return res, true, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
