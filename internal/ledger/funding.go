package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/congo-pay/escrowledger/internal/domain"
	"github.com/congo-pay/escrowledger/internal/events"
	"github.com/congo-pay/escrowledger/internal/store"
	"github.com/congo-pay/escrowledger/internal/wallet"
)

// ExternalInput moves money between a wallet and the outside world.
type ExternalInput struct {
	IdempotencyKey string
	OwnerID        string
	Amount         int64
	Currency       string
	ReferenceID    string
	Reason         string
	Metadata       map[string]string
}

// ExternalResult is the outcome of a reward or withdrawal.
type ExternalResult struct {
	OperationID    string
	IdempotencyKey string
	OwnerID        string
	Account        string
	Amount         int64
	Currency       string
	Balance        int64
	Type           domain.EntryType
	Replayed       bool
	Entries        []domain.Entry
}

func (in *ExternalInput) normalize() error {
	key, err := domain.NormalizeIdempotencyKey(in.IdempotencyKey)
	if err != nil {
		return err
	}
	in.IdempotencyKey = key
	in.OwnerID = strings.TrimSpace(in.OwnerID)
	in.Currency = domain.NormalizeCurrency(in.Currency)
	if in.OwnerID == "" {
		return fmt.Errorf("owner id is required: %w", domain.ErrValidation)
	}
	return domain.ValidateAmount(in.Amount)
}

// Reward credits a wallet from the external account, for example a gift or a
// promotional bonus.
func (s *Service) Reward(ctx context.Context, actor domain.Actor, in ExternalInput) (ExternalResult, error) {
	return s.external(ctx, actor, in, domain.EntryReward)
}

// Withdraw debits an active wallet towards the external account.
func (s *Service) Withdraw(ctx context.Context, actor domain.Actor, in ExternalInput) (ExternalResult, error) {
	return s.external(ctx, actor, in, domain.EntryWithdrawal)
}

func (s *Service) external(ctx context.Context, actor domain.Actor, in ExternalInput, typ domain.EntryType) (ExternalResult, error) {
	if err := actor.Validate(); err != nil {
		return ExternalResult{}, err
	}
	if err := in.normalize(); err != nil {
		return ExternalResult{}, err
	}

	var res ExternalResult
	run := func(ctx context.Context, tx store.Tx) error {
		replay, found, err := replayExternal(ctx, tx, in, typ)
		if err != nil || found {
			res = replay
			return err
		}
		res, err = s.postExternal(ctx, tx, actor, in, typ)
		return err
	}
	err := s.store.WithTx(ctx, run)
	if errors.Is(err, domain.ErrDuplicate) {
		err = s.store.WithTx(ctx, run)
	}
	if err != nil {
		return ExternalResult{}, s.journal.Guard(ctx, actor, Failure{
			Operation:   string(typ),
			Key:         in.IdempotencyKey,
			Account:     domain.WalletAccount(in.OwnerID, in.Currency),
			RecipientID: in.OwnerID,
			Amount:      in.Amount,
			Currency:    in.Currency,
			Type:        typ,
			ReferenceID: in.ReferenceID,
		}, err)
	}
	if !res.Replayed {
		kind := events.RewardCredited
		if typ == domain.EntryWithdrawal {
			kind = events.WithdrawalCompleted
		}
		s.events.Publish(ctx, events.Event{
			Kind:        kind,
			OperationID: res.OperationID,
			EntityID:    res.Account,
			ActorID:     actor.ID,
			RequestID:   actor.RequestID,
			RecipientID: in.OwnerID,
			Amount:      in.Amount,
			Currency:    in.Currency,
			Reason:      in.Reason,
		})
	}
	return res, nil
}

func (s *Service) postExternal(ctx context.Context, tx store.Tx, actor domain.Actor, in ExternalInput, typ domain.EntryType) (ExternalResult, error) {
	now := s.now()
	w, err := wallet.GetOrCreate(ctx, tx, domain.WalletKey{OwnerID: in.OwnerID, Currency: in.Currency}, now)
	if err != nil {
		return ExternalResult{}, err
	}
	legID := NewLegID()
	sign := int64(1)
	if typ == domain.EntryWithdrawal {
		sign = -1
		w, err = wallet.Debit(ctx, tx, actor, w, in.Amount, legID, now)
	} else {
		w, err = wallet.Credit(ctx, tx, actor, w, in.Amount, legID, now)
	}
	if err != nil {
		return ExternalResult{}, err
	}

	md := map[string]string{}
	for k, v := range in.Metadata {
		md[k] = v
	}
	if in.Reason != "" {
		md[MetaReason] = in.Reason
	}
	walletLeg := Leg{ID: legID, Key: in.IdempotencyKey, Account: w.Account(), Amount: sign * in.Amount, Type: typ, Metadata: WithBalance(md, w.Balance)}
	externalLeg := Leg{Key: LegKey(in.IdempotencyKey, "external"), Account: domain.ExternalAccount(in.Currency), Amount: -sign * in.Amount, Type: typ}
	if typ == domain.EntryWithdrawal {
		walletLeg.SenderID, externalLeg.SenderID = in.OwnerID, in.OwnerID
	} else {
		walletLeg.RecipientID, externalLeg.RecipientID = in.OwnerID, in.OwnerID
	}
	op := Operation{ID: uuid.NewString(), Currency: in.Currency, ReferenceID: in.ReferenceID, At: now, Legs: []Leg{externalLeg, walletLeg}}
	entries, err := Post(ctx, tx, op)
	if err != nil {
		return ExternalResult{}, err
	}
	return ExternalResult{
		OperationID:    op.ID,
		IdempotencyKey: in.IdempotencyKey,
		OwnerID:        in.OwnerID,
		Account:        w.Account(),
		Amount:         in.Amount,
		Currency:       in.Currency,
		Balance:        w.Balance,
		Type:           typ,
		Entries:        entries,
	}, nil
}

func replayExternal(ctx context.Context, tx store.Tx, in ExternalInput, typ domain.EntryType) (ExternalResult, bool, error) {
	primary, err := tx.Entries().GetByKey(ctx, in.IdempotencyKey)
	if errors.Is(err, domain.ErrNotFound) {
		return ExternalResult{}, false, nil
	}
	if err != nil {
		return ExternalResult{}, false, err
	}
	amount := primary.Amount
	if amount < 0 {
		amount = -amount
	}
	if primary.Type != typ || primary.Account != domain.WalletAccount(in.OwnerID, in.Currency) || amount != in.Amount {
		return ExternalResult{}, true, fmt.Errorf("idempotency key %s reused with different parameters: %w", in.IdempotencyKey, domain.ErrValidation)
	}
	legs, err := tx.Entries().ListByOperation(ctx, primary.OperationID)
	if err != nil {
		return ExternalResult{}, true, err
	}
	return ExternalResult{
		OperationID:    primary.OperationID,
		IdempotencyKey: in.IdempotencyKey,
		OwnerID:        in.OwnerID,
		Account:        primary.Account,
		Amount:         amount,
		Currency:       primary.Currency,
		Balance:        BalanceAfter(primary),
		Type:           typ,
		Replayed:       true,
		Entries:        legs,
	}, true, nil
}
