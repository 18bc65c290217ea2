// Package payments exposes peer-to-peer transfers over HTTP.
package payments

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/escrowledger/internal/apierror"
	"github.com/congo-pay/escrowledger/internal/commission"
	"github.com/congo-pay/escrowledger/internal/ledger"
	"github.com/congo-pay/escrowledger/internal/middleware"
)

// Handler exposes payment endpoints.
type Handler struct {
	ledger *ledger.Service
}

// NewHandler constructs a payment handler.
func NewHandler(ledgerSvc *ledger.Service) *Handler {
	return &Handler{ledger: ledgerSvc}
}

type transferRequest struct {
	IdempotencyKey string            `json:"idempotency_key"`
	SenderID       string            `json:"sender_id"`
	RecipientID    string            `json:"recipient_id"`
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Metadata       map[string]string `json:"metadata"`
}

type transferResponse struct {
	OperationID      string                 `json:"operation_id"`
	IdempotencyKey   string                 `json:"idempotency_key"`
	SenderID         string                 `json:"sender_id"`
	RecipientID      string                 `json:"recipient_id"`
	Amount           int64                  `json:"amount"`
	Currency         string                 `json:"currency"`
	Commission       commission.Response    `json:"commission"`
	SenderBalance    int64                  `json:"sender_balance"`
	RecipientBalance int64                  `json:"recipient_balance"`
	Entries          []ledger.EntryResponse `json:"entries"`
	Replayed         bool                   `json:"replayed"`
	CompletedAt      time.Time              `json:"completed_at"`
}

// Transfer processes a wallet-to-wallet transfer. The key comes from the
// Idempotency-Key header or the body.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	key := middleware.IdempotencyKeyFrom(c)
	if key == "" {
		key = req.IdempotencyKey
	}

	res, err := h.ledger.Transfer(c.UserContext(), middleware.ActorFrom(c), ledger.TransferInput{
		IdempotencyKey: key,
		SenderID:       req.SenderID,
		RecipientID:    req.RecipientID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Metadata:       req.Metadata,
	})
	if err != nil {
		return apierror.From(c, err)
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	return c.Status(status).JSON(transferResponse{
		OperationID:      res.OperationID,
		IdempotencyKey:   res.IdempotencyKey,
		SenderID:         res.SenderID,
		RecipientID:      res.RecipientID,
		Amount:           res.Amount,
		Currency:         res.Currency,
		Commission:       commission.NewResponse(res.Commission),
		SenderBalance:    res.SenderBalance,
		RecipientBalance: res.RecipientBalance,
		Entries:          ledger.NewEntryResponses(res.Entries),
		Replayed:         res.Replayed,
		CompletedAt:      res.CompletedAt,
	})
}
