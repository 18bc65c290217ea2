package domain

import (
	"fmt"
	"strings"
)

// DefaultCurrency is used when callers omit the currency. It is set once at
// startup from configuration.
var DefaultCurrency = "XAF"

// NormalizeCurrency upper-cases the ISO code and applies the default.
func NormalizeCurrency(currency string) string {
	c := strings.ToUpper(strings.TrimSpace(currency))
	if c == "" {
		return DefaultCurrency
	}
	return c
}

// ValidateAmount rejects non-positive minor-unit amounts.
func ValidateAmount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive: %w", ErrValidation)
	}
	return nil
}

// WalletAccount is the ledger account code backing a user wallet.
func WalletAccount(ownerID, currency string) string {
	return fmt.Sprintf("wallet:%s:%s", ownerID, currency)
}

// EscrowAccount is the holding account for funds locked in an escrow.
func EscrowAccount(escrowID string) string {
	return "escrow:" + escrowID
}

// RevenueAccount collects platform commission for a currency.
func RevenueAccount(currency string) string {
	return "platform:revenue:" + currency
}

// ExternalAccount is the counterparty for funds entering or leaving the system.
func ExternalAccount(currency string) string {
	return "external:" + currency
}
