// Package apierror translates domain errors into fiber errors with the status
// codes clients rely on.
package apierror

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/escrowledger/internal/domain"
)

// RetryAfterSeconds is advertised on lock contention responses.
const RetryAfterSeconds = "1"

// Status returns the HTTP status and public message for err.
func Status(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "insufficient funds"
	case errors.Is(err, domain.ErrLockContention):
		return http.StatusConflict, "resource busy, retry"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrExpired):
		return http.StatusGone, "escrow expired"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// From maps err onto a *fiber.Error, setting Retry-After for retryable errors.
func From(c *fiber.Ctx, err error) error {
	if domain.IsRetryable(err) {
		c.Set(fiber.HeaderRetryAfter, RetryAfterSeconds)
	}
	code, msg := Status(err)
	return fiber.NewError(code, msg)
}
