package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/congo-pay/escrowledger/internal/audit"
	"github.com/congo-pay/escrowledger/internal/domain"
	"github.com/congo-pay/escrowledger/internal/events"
	"github.com/congo-pay/escrowledger/internal/store"
)

// Service exposes wallet reads and status administration.
type Service struct {
	store  store.Store
	events events.Publisher
	now    func() time.Time
}

// NewService builds a wallet service instance.
func NewService(st store.Store, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{store: st, events: publisher, now: func() time.Time { return time.Now().UTC() }}
}

// GetBalance reads the committed balance. An unknown wallet reads as an empty
// active one; nothing is created.
func (s *Service) GetBalance(ctx context.Context, ownerID, currency string) (Balance, error) {
	key, err := keyFor(ownerID, currency)
	if err != nil {
		return Balance{}, err
	}
	bal := Balance{OwnerID: key.OwnerID, Currency: key.Currency, Account: key.Account(), Status: domain.WalletActive, AsOf: s.now()}
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		w, err := tx.Wallets().Get(ctx, key)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		bal.Amount = w.Balance
		bal.Status = w.Status
		return nil
	})
	if err != nil {
		return Balance{}, err
	}
	return bal, nil
}

// SetStatus transitions a wallet's status, creating the wallet if needed.
func (s *Service) SetStatus(ctx context.Context, actor domain.Actor, ownerID, currency string, status domain.WalletStatus) (domain.Wallet, error) {
	if err := actor.Validate(); err != nil {
		return domain.Wallet{}, err
	}
	key, err := keyFor(ownerID, currency)
	if err != nil {
		return domain.Wallet{}, err
	}
	if _, err := domain.ParseWalletStatus(string(status)); err != nil {
		return domain.Wallet{}, err
	}

	now := s.now()
	var updated domain.Wallet
	changed := false
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		w, err := GetOrCreate(ctx, tx, key, now)
		if err != nil {
			return err
		}
		if w.Status == status {
			updated = w
			return nil
		}
		updated = w
		updated.Status = status
		updated.UpdatedAt = now
		if err := tx.Wallets().Update(ctx, updated); err != nil {
			return err
		}
		changed = true
		return audit.Write(ctx, tx, audit.WalletChange(actor, audit.ActionStatus, w, updated, "", now))
	})
	if err != nil {
		return domain.Wallet{}, err
	}
	if changed {
		s.events.Publish(ctx, events.Event{
			Kind:      events.WalletStatusChanged,
			EntityID:  key.Account(),
			ActorID:   actor.ID,
			RequestID: actor.RequestID,
			Currency:  key.Currency,
			Reason:    string(status),
		})
	}
	return updated, nil
}

func keyFor(ownerID, currency string) (domain.WalletKey, error) {
	owner := strings.TrimSpace(ownerID)
	if owner == "" {
		return domain.WalletKey{}, fmt.Errorf("owner id is required: %w", domain.ErrValidation)
	}
	return domain.WalletKey{OwnerID: owner, Currency: domain.NormalizeCurrency(currency)}, nil
}
