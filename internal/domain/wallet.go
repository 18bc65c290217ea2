package domain

import (
	"fmt"
	"time"
)

// WalletStatus is the lifecycle state of a wallet.
type WalletStatus string

const (
	WalletActive    WalletStatus = "active"
	WalletFrozen    WalletStatus = "frozen"
	WalletSuspended WalletStatus = "suspended"
)

// ParseWalletStatus validates a status string against the closed set.
func ParseWalletStatus(s string) (WalletStatus, error) {
	switch WalletStatus(s) {
	case WalletActive, WalletFrozen, WalletSuspended:
		return WalletStatus(s), nil
	default:
		return "", fmt.Errorf("unknown wallet status %q: %w", s, ErrValidation)
	}
}

// Wallet is the per-user, per-currency balance record.
type Wallet struct {
	OwnerID   string
	Currency  string
	Balance   int64
	Status    WalletStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Account returns the ledger account code of the wallet.
func (w Wallet) Account() string {
	return WalletAccount(w.OwnerID, w.Currency)
}

// WalletKey identifies a wallet row.
type WalletKey struct {
	OwnerID  string
	Currency string
}

// Account returns the ledger account code for the key.
func (k WalletKey) Account() string {
	return WalletAccount(k.OwnerID, k.Currency)
}
