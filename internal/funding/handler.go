package funding

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/escrowledger/internal/apierror"
	"github.com/congo-pay/escrowledger/internal/middleware"
)

// Handler exposes HTTP endpoints for rewards and withdrawals.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RewardRequest credits a wallet.
type RewardRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	OwnerID        string `json:"owner_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Reason         string `json:"reason"`
	ReferenceID    string `json:"reference_id"`
}

// WithdrawalRequest pushes funds out of a wallet.
type WithdrawalRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	OwnerID        string `json:"owner_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Destination    string `json:"destination"`
}

// Response represents the API response for funding actions.
type Response struct {
	OperationID      string    `json:"operation_id"`
	IdempotencyKey   string    `json:"idempotency_key"`
	OwnerID          string    `json:"owner_id"`
	Type             string    `json:"type"`
	Amount           int64     `json:"amount"`
	Currency         string    `json:"currency"`
	WalletBalance    int64     `json:"wallet_balance"`
	GatewayReference string    `json:"gateway_reference,omitempty"`
	Replayed         bool      `json:"replayed"`
	CompletedAt      time.Time `json:"completed_at"`
}

// Reward handles POST /rewards.
func (h *Handler) Reward(c *fiber.Ctx) error {
	var req RewardRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	key := middleware.IdempotencyKeyFrom(c)
	if key == "" {
		key = req.IdempotencyKey
	}

	res, err := h.service.Reward(c.UserContext(), middleware.ActorFrom(c), RewardInput{
		IdempotencyKey: key,
		OwnerID:        req.OwnerID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Reason:         req.Reason,
		ReferenceID:    req.ReferenceID,
	})
	if err != nil {
		return apierror.From(c, err)
	}
	return c.Status(statusFor(res)).JSON(toResponse(res))
}

// Withdraw handles POST /withdrawals.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	var req WithdrawalRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	key := middleware.IdempotencyKeyFrom(c)
	if key == "" {
		key = req.IdempotencyKey
	}

	res, err := h.service.Withdraw(c.UserContext(), middleware.ActorFrom(c), WithdrawalInput{
		IdempotencyKey: key,
		OwnerID:        req.OwnerID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Destination:    req.Destination,
	})
	if err != nil {
		return apierror.From(c, err)
	}
	return c.Status(statusFor(res)).JSON(toResponse(res))
}

func statusFor(res Result) int {
	if res.Replayed {
		return http.StatusOK
	}
	return http.StatusCreated
}

func toResponse(res Result) Response {
	return Response{
		OperationID:      res.OperationID,
		IdempotencyKey:   res.IdempotencyKey,
		OwnerID:          res.OwnerID,
		Type:             string(res.Type),
		Amount:           res.Amount,
		Currency:         res.Currency,
		WalletBalance:    res.WalletBalance,
		GatewayReference: res.GatewayReference,
		Replayed:         res.Replayed,
		CompletedAt:      res.CompletedAt,
	}
}
