// Package escrow holds funds between a sender and a recipient until an
// external verifier confirms the release condition, or refunds them on request
// or expiry. Each transition runs in one transaction under a no-wait row lock
// on the escrow, so concurrent release, refund and expiry attempts resolve to
// exactly one terminal state.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/escrowledger/internal/audit"
	"github.com/congo-pay/escrowledger/internal/commission"
	"github.com/congo-pay/escrowledger/internal/domain"
	"github.com/congo-pay/escrowledger/internal/events"
	"github.com/congo-pay/escrowledger/internal/ledger"
	"github.com/congo-pay/escrowledger/internal/store"
	"github.com/congo-pay/escrowledger/internal/wallet"
)

// DefaultTTL applies when neither the caller nor the configuration sets one.
const DefaultTTL = 7 * 24 * time.Hour

// RefundReasonRequested is used when a refund carries no reason.
const RefundReasonRequested = "requested"

// Manager runs escrow transitions.
type Manager struct {
	store      store.Store
	commission *commission.Service
	journal    *ledger.Journal
	events     events.Publisher
	logger     *slog.Logger
	defaultTTL time.Duration
	now        func() time.Time
}

// NewManager wires an escrow manager.
func NewManager(st store.Store, comm *commission.Service, journal *ledger.Journal, publisher events.Publisher, logger *slog.Logger, defaultTTL time.Duration) *Manager {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if journal == nil {
		journal = ledger.NewJournal(st, publisher, logger)
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Manager{
		store:      st,
		commission: comm,
		journal:    journal,
		events:     publisher,
		logger:     logger,
		defaultTTL: defaultTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the manager clock.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// CreateInput describes a new escrow. A zero TTL uses the configured default.
// An empty ReferenceID defaults to the idempotency key.
type CreateInput struct {
	IdempotencyKey   string
	SenderID         string
	RecipientID      string
	Amount           int64
	Currency         string
	ReferenceID      string
	ReleaseCondition string
	TTL              time.Duration
	ChargeCommission bool
}

// Verification is the outcome supplied by the proof service.
type Verification struct {
	Verified   bool
	VerifiedBy string
}

// Result is the outcome of an escrow operation.
type Result struct {
	Escrow     domain.Escrow
	Commission commission.Record
	Entries    []domain.Entry
	Replayed   bool
}

func (m *Manager) normalize(in *CreateInput) error {
	key, err := domain.NormalizeIdempotencyKey(in.IdempotencyKey)
	if err != nil {
		return err
	}
	in.IdempotencyKey = key
	in.SenderID = strings.TrimSpace(in.SenderID)
	in.RecipientID = strings.TrimSpace(in.RecipientID)
	in.Currency = domain.NormalizeCurrency(in.Currency)
	in.ReferenceID = strings.TrimSpace(in.ReferenceID)
	if in.ReferenceID == "" {
		in.ReferenceID = in.IdempotencyKey
	}
	switch {
	case in.SenderID == "" || in.RecipientID == "":
		return fmt.Errorf("sender and recipient are required: %w", domain.ErrValidation)
	case in.SenderID == in.RecipientID:
		return fmt.Errorf("sender and recipient must differ: %w", domain.ErrValidation)
	case in.TTL < 0:
		return fmt.Errorf("ttl must be positive: %w", domain.ErrValidation)
	}
	if in.TTL == 0 {
		in.TTL = m.defaultTTL
	}
	return domain.ValidateAmount(in.Amount)
}

// Create debits the sender and opens a pending escrow. Repeating the key, or
// creating another escrow for the same pending (sender, recipient, reference),
// returns the existing escrow unchanged.
func (m *Manager) Create(ctx context.Context, actor domain.Actor, in CreateInput) (Result, error) {
	if err := actor.Validate(); err != nil {
		return Result{}, err
	}
	if err := m.normalize(&in); err != nil {
		return Result{}, err
	}

	var res Result
	run := func(ctx context.Context, tx store.Tx) error {
		existing, found, err := m.existing(ctx, tx, in)
		if err != nil || found {
			res = existing
			return err
		}
		res, err = m.create(ctx, tx, actor, in)
		return err
	}
	err := m.store.WithTx(ctx, run)
	if errors.Is(err, domain.ErrDuplicate) {
		err = m.store.WithTx(ctx, run)
	}
	if err != nil {
		return Result{}, m.journal.Guard(ctx, actor, ledger.Failure{
			Operation:   "escrow.create",
			Key:         in.IdempotencyKey,
			Account:     domain.WalletAccount(in.SenderID, in.Currency),
			SenderID:    in.SenderID,
			RecipientID: in.RecipientID,
			Amount:      in.Amount,
			Currency:    in.Currency,
			Type:        domain.EntryEscrowHold,
			ReferenceID: in.ReferenceID,
		}, err)
	}
	if !res.Replayed {
		m.publish(ctx, events.EscrowCreated, actor, res.Escrow, res.Escrow.HeldAmount, "")
	}
	return res, nil
}

func (m *Manager) existing(ctx context.Context, tx store.Tx, in CreateInput) (Result, bool, error) {
	e, err := tx.Escrows().GetByKey(ctx, in.IdempotencyKey)
	if errors.Is(err, domain.ErrNotFound) {
		e, err = tx.Escrows().FindPending(ctx, in.SenderID, in.RecipientID, in.ReferenceID)
	}
	if errors.Is(err, domain.ErrNotFound) {
		// The key may already name a transfer or another ledger posting.
		_, err = tx.Entries().GetByKey(ctx, in.IdempotencyKey)
		switch {
		case err == nil:
			return Result{}, true, fmt.Errorf("idempotency key %s belongs to another operation: %w", in.IdempotencyKey, domain.ErrValidation)
		case !errors.Is(err, domain.ErrNotFound):
			return Result{}, false, err
		}
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, err
	}
	if e.SenderID != in.SenderID || e.RecipientID != in.RecipientID || e.Amount != in.Amount || e.Currency != in.Currency {
		return Result{}, true, fmt.Errorf("escrow %s exists with different parameters: %w", e.ID, domain.ErrValidation)
	}
	return Result{Escrow: e, Commission: snapshot(e), Replayed: true}, true, nil
}

func (m *Manager) create(ctx context.Context, tx store.Tx, actor domain.Actor, in CreateInput) (Result, error) {
	now := m.now()
	rec := commission.None(in.Amount)
	if in.ChargeCommission {
		var err error
		if rec, err = m.commission.QuoteTx(ctx, tx, in.RecipientID, in.Amount, now); err != nil {
			return Result{}, err
		}
	}

	sw, err := wallet.GetOrCreate(ctx, tx, domain.WalletKey{OwnerID: in.SenderID, Currency: in.Currency}, now)
	if err != nil {
		return Result{}, err
	}
	debitID := ledger.NewLegID()
	sw, err = wallet.Debit(ctx, tx, actor, sw, rec.SenderPays, debitID, now)
	if err != nil {
		return Result{}, err
	}

	e := domain.Escrow{
		ID:               uuid.NewString(),
		IdempotencyKey:   in.IdempotencyKey,
		SenderID:         in.SenderID,
		RecipientID:      in.RecipientID,
		Amount:           in.Amount,
		Currency:         in.Currency,
		ReferenceID:      in.ReferenceID,
		ReleaseCondition: in.ReleaseCondition,
		Status:           domain.EscrowPending,
		HeldAmount:       rec.SenderPays,
		PayoutAmount:     rec.RecipientGets,
		CommissionAmount: rec.TotalCommission,
		CommissionTier:   rec.Tier,
		HoldOperationID:  uuid.NewString(),
		CreatedAt:        now,
		ExpiresAt:        now.Add(in.TTL),
	}
	if err := tx.Escrows().Insert(ctx, e); err != nil {
		return Result{}, err
	}

	md := map[string]string{"escrow_id": e.ID}
	if in.ChargeCommission {
		for k, v := range rec.Metadata() {
			md[k] = v
		}
	}
	entries, err := ledger.Post(ctx, tx, ledger.Operation{
		ID:          e.HoldOperationID,
		Currency:    e.Currency,
		ReferenceID: e.ReferenceID,
		At:          now,
		Legs: []ledger.Leg{
			{ID: debitID, Key: in.IdempotencyKey, Account: sw.Account(), Amount: -e.HeldAmount, Type: domain.EntryEscrowHold,
				SenderID: e.SenderID, RecipientID: e.RecipientID, Metadata: ledger.WithBalance(md, sw.Balance)},
			{Key: ledger.LegKey(in.IdempotencyKey, "hold"), Account: domain.EscrowAccount(e.ID), Amount: e.HeldAmount, Type: domain.EntryEscrowHold,
				SenderID: e.SenderID, RecipientID: e.RecipientID, Metadata: md},
		},
	})
	if err != nil {
		return Result{}, err
	}
	if err := audit.Write(ctx, tx, audit.EscrowChange(actor, audit.ActionEscrowCreate, domain.Escrow{}, e, debitID, now)); err != nil {
		return Result{}, err
	}
	return Result{Escrow: e, Commission: rec, Entries: entries}, nil
}

// Release pays a pending escrow out to its recipient once the verifier has
// confirmed the condition. Releasing an already released escrow is a no-op.
func (m *Manager) Release(ctx context.Context, actor domain.Actor, escrowID string, v Verification) (Result, error) {
	if err := actor.Validate(); err != nil {
		return Result{}, err
	}
	if !v.Verified {
		return Result{}, fmt.Errorf("release condition not verified: %w", domain.ErrValidation)
	}
	if strings.TrimSpace(v.VerifiedBy) == "" {
		return Result{}, fmt.Errorf("verifier id is required: %w", domain.ErrValidation)
	}

	var res Result
	err := m.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = m.release(ctx, tx, actor, escrowID, v)
		return err
	})
	if err != nil {
		return Result{}, m.journal.Guard(ctx, actor, ledger.Failure{
			Operation:   "escrow.release",
			Key:         releaseKey(escrowID),
			Account:     domain.EscrowAccount(escrowID),
			Type:        domain.EntryEscrowRelease,
			ReferenceID: escrowID,
		}, err)
	}
	if !res.Replayed {
		m.publish(ctx, events.EscrowReleased, actor, res.Escrow, res.Escrow.PayoutAmount, "")
	}
	return res, nil
}

func (m *Manager) release(ctx context.Context, tx store.Tx, actor domain.Actor, escrowID string, v Verification) (Result, error) {
	e, err := tx.Escrows().LockNoWait(ctx, escrowID)
	if err != nil {
		return Result{}, err
	}
	switch {
	case e.Status == domain.EscrowReleased:
		return Result{Escrow: e, Commission: snapshot(e), Replayed: true}, nil
	case e.Status != domain.EscrowPending:
		return Result{}, fmt.Errorf("escrow %s is %s: %w", e.ID, e.Status, domain.ErrInvalidState)
	}
	now := m.now()
	if e.ExpiredAt(now) {
		return Result{}, fmt.Errorf("escrow %s expired at %s: %w", e.ID, e.ExpiresAt.Format(time.RFC3339), domain.ErrExpired)
	}

	rw, err := wallet.GetOrCreate(ctx, tx, domain.WalletKey{OwnerID: e.RecipientID, Currency: e.Currency}, now)
	if err != nil {
		return Result{}, err
	}
	creditID := ledger.NewLegID()
	rw, err = wallet.Credit(ctx, tx, actor, rw, e.PayoutAmount, creditID, now)
	if err != nil {
		return Result{}, err
	}

	key := releaseKey(e.ID)
	md := map[string]string{"escrow_id": e.ID, "verified_by": v.VerifiedBy}
	entries, err := ledger.Post(ctx, tx, ledger.Operation{
		Currency:    e.Currency,
		ReferenceID: e.ReferenceID,
		At:          now,
		Legs: []ledger.Leg{
			{Key: key, Account: domain.EscrowAccount(e.ID), Amount: -e.HeldAmount, Type: domain.EntryEscrowRelease,
				SenderID: e.SenderID, RecipientID: e.RecipientID, Metadata: md},
			{ID: creditID, Key: ledger.LegKey(key, "credit"), Account: rw.Account(), Amount: e.PayoutAmount, Type: domain.EntryEscrowRelease,
				SenderID: e.SenderID, RecipientID: e.RecipientID, Metadata: ledger.WithBalance(md, rw.Balance)},
			{Key: ledger.LegKey(key, "commission"), Account: domain.RevenueAccount(e.Currency), Amount: e.HeldAmount - e.PayoutAmount,
				Type: domain.EntryCommission, SenderID: e.SenderID, RecipientID: e.RecipientID, Metadata: md},
		},
	})
	if err != nil {
		return Result{}, err
	}

	before := e
	e.Status = domain.EscrowReleased
	e.VerifiedBy = v.VerifiedBy
	e.ReleasedAt = &now
	if err := tx.Escrows().Update(ctx, e); err != nil {
		return Result{}, err
	}
	if err := audit.Write(ctx, tx, audit.EscrowChange(actor, audit.ActionRelease, before, e, creditID, now)); err != nil {
		return Result{}, err
	}
	return Result{Escrow: e, Commission: snapshot(e), Entries: entries}, nil
}

// Refund returns the full held amount of a pending escrow to its sender.
// Refunding an already refunded escrow is a no-op.
func (m *Manager) Refund(ctx context.Context, actor domain.Actor, escrowID, reason string) (Result, error) {
	if err := actor.Validate(); err != nil {
		return Result{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = RefundReasonRequested
	}

	var res Result
	err := m.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = m.refund(ctx, tx, actor, escrowID, reason)
		return err
	})
	if err != nil {
		return Result{}, m.journal.Guard(ctx, actor, ledger.Failure{
			Operation:   "escrow.refund",
			Key:         refundKey(escrowID),
			Account:     domain.EscrowAccount(escrowID),
			Type:        domain.EntryEscrowRefund,
			ReferenceID: escrowID,
		}, err)
	}
	if !res.Replayed {
		m.publish(ctx, events.EscrowRefunded, actor, res.Escrow, res.Escrow.HeldAmount, reason)
	}
	return res, nil
}

func (m *Manager) refund(ctx context.Context, tx store.Tx, actor domain.Actor, escrowID, reason string) (Result, error) {
	e, err := tx.Escrows().LockNoWait(ctx, escrowID)
	if err != nil {
		return Result{}, err
	}
	switch {
	case e.Status == domain.EscrowRefunded:
		return Result{Escrow: e, Commission: snapshot(e), Replayed: true}, nil
	case e.Status != domain.EscrowPending:
		return Result{}, fmt.Errorf("escrow %s is %s: %w", e.ID, e.Status, domain.ErrInvalidState)
	}
	now := m.now()

	sw, err := wallet.GetOrCreate(ctx, tx, domain.WalletKey{OwnerID: e.SenderID, Currency: e.Currency}, now)
	if err != nil {
		return Result{}, err
	}
	creditID := ledger.NewLegID()
	sw, err = wallet.Credit(ctx, tx, actor, sw, e.HeldAmount, creditID, now)
	if err != nil {
		return Result{}, err
	}

	key := refundKey(e.ID)
	md := map[string]string{"escrow_id": e.ID, ledger.MetaReason: reason}
	entries, err := ledger.Post(ctx, tx, ledger.Operation{
		Currency:    e.Currency,
		ReferenceID: e.ReferenceID,
		At:          now,
		Legs: []ledger.Leg{
			{Key: key, Account: domain.EscrowAccount(e.ID), Amount: -e.HeldAmount, Type: domain.EntryEscrowRefund,
				SenderID: e.SenderID, RecipientID: e.RecipientID, Metadata: md},
			{ID: creditID, Key: ledger.LegKey(key, "credit"), Account: sw.Account(), Amount: e.HeldAmount, Type: domain.EntryEscrowRefund,
				SenderID: e.SenderID, RecipientID: e.RecipientID, Metadata: ledger.WithBalance(md, sw.Balance)},
		},
	})
	if err != nil {
		return Result{}, err
	}

	before := e
	e.Status = domain.EscrowRefunded
	e.RefundReason = reason
	e.RefundedAt = &now
	if err := tx.Escrows().Update(ctx, e); err != nil {
		return Result{}, err
	}
	if err := audit.Write(ctx, tx, audit.EscrowChange(actor, audit.ActionRefund, before, e, creditID, now)); err != nil {
		return Result{}, err
	}
	return Result{Escrow: e, Commission: snapshot(e), Entries: entries}, nil
}

// Get reads an escrow.
func (m *Manager) Get(ctx context.Context, escrowID string) (domain.Escrow, error) {
	var e domain.Escrow
	err := m.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		e, err = tx.Escrows().Get(ctx, escrowID)
		return err
	})
	return e, err
}

// List returns escrows where userID is sender or recipient, newest first.
func (m *Manager) List(ctx context.Context, userID string, limit int) ([]domain.Escrow, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required: %w", domain.ErrValidation)
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var out []domain.Escrow
	err := m.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Escrows().ListByParty(ctx, userID, limit)
		return err
	})
	return out, err
}

func (m *Manager) publish(ctx context.Context, kind events.Kind, actor domain.Actor, e domain.Escrow, amount int64, reason string) {
	m.events.Publish(ctx, events.Event{
		Kind:        kind,
		OperationID: e.HoldOperationID,
		EntityID:    e.ID,
		ActorID:     actor.ID,
		RequestID:   actor.RequestID,
		SenderID:    e.SenderID,
		RecipientID: e.RecipientID,
		Amount:      amount,
		Currency:    e.Currency,
		Reason:      reason,
	})
}

func releaseKey(escrowID string) string { return ledger.LegKey(domain.EscrowAccount(escrowID), "release") }
func refundKey(escrowID string) string  { return ledger.LegKey(domain.EscrowAccount(escrowID), "refund") }

// snapshot rebuilds the commission view stored on the escrow.
func snapshot(e domain.Escrow) commission.Record {
	sender := e.HeldAmount - e.Amount
	return commission.Record{
		BaseAmount:          e.Amount,
		TotalCommission:     e.CommissionAmount,
		SenderCommission:    sender,
		RecipientCommission: e.CommissionAmount - sender,
		PlatformRevenue:     e.CommissionAmount,
		Tier:                e.CommissionTier,
		SenderPays:          e.HeldAmount,
		RecipientGets:       e.PayoutAmount,
	}
}
