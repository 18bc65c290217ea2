package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/congo-pay/escrowledger/internal/domain"
	"github.com/congo-pay/escrowledger/internal/store"
)

// Reconciliation compares a wallet balance against its journal.
type Reconciliation struct {
	Account     string
	Balance     int64
	LedgerSum   int64
	Consistent  bool
	NonNegative bool
}

// Reconcile checks balance == Σ completed entries and balance >= 0 for a wallet.
func (s *Service) Reconcile(ctx context.Context, ownerID, currency string) (Reconciliation, error) {
	key, err := walletKey(ownerID, currency)
	if err != nil {
		return Reconciliation{}, err
	}
	out := Reconciliation{Account: key.Account()}
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		w, err := tx.Wallets().Get(ctx, key)
		if err != nil {
			return err
		}
		sum, err := tx.Entries().SumCompleted(ctx, key.Account())
		if err != nil {
			return err
		}
		out.Balance = w.Balance
		out.LedgerSum = sum
		return nil
	})
	if err != nil {
		return Reconciliation{}, err
	}
	out.Consistent = out.Balance == out.LedgerSum
	out.NonNegative = out.Balance >= 0
	if !out.Consistent {
		s.logger.Error("wallet out of balance", "account", out.Account, "balance", out.Balance, "ledger_sum", out.LedgerSum)
	}
	return out, nil
}

// Entries returns the most recent postings on a wallet, oldest first.
func (s *Service) Entries(ctx context.Context, ownerID, currency string, limit int) ([]domain.Entry, error) {
	key, err := walletKey(ownerID, currency)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []domain.Entry
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Entries().ListByAccount(ctx, key.Account(), limit)
		return err
	})
	return out, err
}

func walletKey(ownerID, currency string) (domain.WalletKey, error) {
	owner := strings.TrimSpace(ownerID)
	if owner == "" {
		return domain.WalletKey{}, fmt.Errorf("owner id is required: %w", domain.ErrValidation)
	}
	return domain.WalletKey{OwnerID: owner, Currency: domain.NormalizeCurrency(currency)}, nil
}
