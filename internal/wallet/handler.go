package wallet

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/escrowledger/internal/apierror"
	"github.com/congo-pay/escrowledger/internal/domain"
	"github.com/congo-pay/escrowledger/internal/middleware"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type statusRequest struct {
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type walletResponse struct {
	OwnerID     string `json:"owner_id"`
	AccountCode string `json:"account_code"`
	Currency    string `json:"currency"`
	Balance     int64  `json:"balance"`
	Status      string `json:"status"`
}

// Balance returns the wallet balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	bal, err := h.service.GetBalance(c.UserContext(), c.Params("owner"), c.Query("currency"))
	if err != nil {
		return apierror.From(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"owner_id":     bal.OwnerID,
		"account_code": bal.Account,
		"currency":     bal.Currency,
		"balance":      bal.Amount,
		"status":       bal.Status,
		"timestamp":    bal.AsOf,
	})
}

// SetStatus freezes, suspends or reactivates a wallet.
func (h *Handler) SetStatus(c *fiber.Ctx) error {
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	status, err := domain.ParseWalletStatus(req.Status)
	if err != nil {
		return apierror.From(c, err)
	}
	w, err := h.service.SetStatus(c.UserContext(), middleware.ActorFrom(c), c.Params("owner"), req.Currency, status)
	if err != nil {
		return apierror.From(c, err)
	}
	return c.Status(http.StatusOK).JSON(walletResponse{
		OwnerID:     w.OwnerID,
		AccountCode: w.Account(),
		Currency:    w.Currency,
		Balance:     w.Balance,
		Status:      string(w.Status),
	})
}
