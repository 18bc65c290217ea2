package domain

import "errors"

var (
	// ErrValidation covers malformed requests: non-positive amounts, self transfers,
	// missing idempotency keys and unknown selectors.
	ErrValidation = errors.New("validation error")

	// ErrInsufficientFunds occurs when the source wallet lacks available balance
	// to cover a requested debit.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrLockContention is returned when a no-wait row lock could not be acquired.
	// It is the only retryable class; callers retry with bounded backoff.
	ErrLockContention = errors.New("lock contention")

	// ErrNotFound indicates an unknown wallet or escrow.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState indicates an operation on an escrow or wallet whose status
	// does not allow it.
	ErrInvalidState = errors.New("invalid state")

	// ErrExpired indicates a release attempted after the escrow deadline.
	ErrExpired = errors.New("expired")

	// ErrDuplicate is raised by repositories when a unique key already exists.
	// Services translate it into an idempotent replay.
	ErrDuplicate = errors.New("duplicate key")

	// ErrInternal is the generic failure surfaced for unexpected errors.
	ErrInternal = errors.New("internal error")
)

// IsRetryable reports whether err may succeed when retried unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockContention)
}

// IsExpected reports whether err belongs to the documented taxonomy. Anything
// else is treated as an unexpected internal failure.
func IsExpected(err error) bool {
	for _, target := range []error{ErrValidation, ErrInsufficientFunds, ErrLockContention, ErrNotFound, ErrInvalidState, ErrExpired} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
