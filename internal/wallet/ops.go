package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/congo-pay/escrowledger/internal/audit"
	"github.com/congo-pay/escrowledger/internal/domain"
	"github.com/congo-pay/escrowledger/internal/store"
)

// GetOrCreate lazily creates the wallet for key and takes its row lock.
func GetOrCreate(ctx context.Context, tx store.Tx, key domain.WalletKey, now time.Time) (domain.Wallet, error) {
	if _, err := tx.Wallets().Ensure(ctx, key, now); err != nil {
		return domain.Wallet{}, fmt.Errorf("ensure wallet %s: %w", key.Account(), err)
	}
	return tx.Wallets().LockNoWait(ctx, key)
}

// LockPair locks two distinct wallets in ascending account order, whichever
// direction the money flows, and returns them in argument order.
func LockPair(ctx context.Context, tx store.Tx, a, b domain.WalletKey, now time.Time) (domain.Wallet, domain.Wallet, error) {
	if a == b {
		return domain.Wallet{}, domain.Wallet{}, fmt.Errorf("cannot lock wallet %s twice: %w", a.Account(), domain.ErrValidation)
	}
	first, second := a, b
	swapped := false
	if second.Account() < first.Account() {
		first, second = second, first
		swapped = true
	}
	wf, err := GetOrCreate(ctx, tx, first, now)
	if err != nil {
		return domain.Wallet{}, domain.Wallet{}, err
	}
	ws, err := GetOrCreate(ctx, tx, second, now)
	if err != nil {
		return domain.Wallet{}, domain.Wallet{}, err
	}
	if swapped {
		return ws, wf, nil
	}
	return wf, ws, nil
}

// Debit removes amount from a locked wallet and writes the audit record. The
// wallet must be active and hold at least amount.
func Debit(ctx context.Context, tx store.Tx, actor domain.Actor, w domain.Wallet, amount int64, entryID string, now time.Time) (domain.Wallet, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return domain.Wallet{}, err
	}
	if w.Status != domain.WalletActive {
		return domain.Wallet{}, fmt.Errorf("wallet %s is %s: %w", w.Account(), w.Status, domain.ErrInvalidState)
	}
	if w.Balance < amount {
		return domain.Wallet{}, fmt.Errorf("wallet %s has %d, needs %d: %w", w.Account(), w.Balance, amount, domain.ErrInsufficientFunds)
	}
	return apply(ctx, tx, actor, audit.ActionDebit, w, -amount, entryID, now)
}

// Credit adds amount to a locked wallet. Credits land whatever the status.
func Credit(ctx context.Context, tx store.Tx, actor domain.Actor, w domain.Wallet, amount int64, entryID string, now time.Time) (domain.Wallet, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return domain.Wallet{}, err
	}
	return apply(ctx, tx, actor, audit.ActionCredit, w, amount, entryID, now)
}

func apply(ctx context.Context, tx store.Tx, actor domain.Actor, action string, w domain.Wallet, delta int64, entryID string, now time.Time) (domain.Wallet, error) {
	after := w
	after.Balance += delta
	after.UpdatedAt = now
	if err := tx.Wallets().Update(ctx, after); err != nil {
		return domain.Wallet{}, err
	}
	if err := audit.Write(ctx, tx, audit.WalletChange(actor, action, w, after, entryID, now)); err != nil {
		return domain.Wallet{}, err
	}
	return after, nil
}
