package domain

import (
	"fmt"
	"strings"
)

// MaxIdempotencyKeyLength bounds client supplied keys.
const MaxIdempotencyKeyLength = 128

// KeySeparator joins the segments of keys derived by the ledger, such as
// escrow leg keys and failure journal keys. Client keys may not contain it, so
// a client can never claim a key the ledger will need later.
const KeySeparator = ":"

// NormalizeIdempotencyKey trims a client key and rejects empty, oversized or
// reserved keys.
func NormalizeIdempotencyKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	switch {
	case key == "":
		return "", fmt.Errorf("idempotency key is required: %w", ErrValidation)
	case len(key) > MaxIdempotencyKeyLength:
		return "", fmt.Errorf("idempotency key exceeds %d bytes: %w", MaxIdempotencyKeyLength, ErrValidation)
	case strings.Contains(key, KeySeparator):
		return "", fmt.Errorf("idempotency key may not contain %q: %w", KeySeparator, ErrValidation)
	}
	return key, nil
}
