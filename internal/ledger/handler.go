package ledger

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/escrowledger/internal/apierror"
	"github.com/congo-pay/escrowledger/internal/domain"
)

// Handler exposes journal reads.
type Handler struct {
	service *Service
}

// NewHandler constructs a ledger handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// EntryResponse is the JSON rendering of a ledger entry.
type EntryResponse struct {
	ID             string            `json:"id"`
	IdempotencyKey string            `json:"idempotency_key"`
	OperationID    string            `json:"operation_id"`
	Account        string            `json:"account"`
	SenderID       *string           `json:"sender_id,omitempty"`
	RecipientID    *string           `json:"recipient_id,omitempty"`
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Type           string            `json:"type"`
	Status         string            `json:"status"`
	ReferenceID    string            `json:"reference_id,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// NewEntryResponses renders entries.
func NewEntryResponses(entries []domain.Entry) []EntryResponse {
	out := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, EntryResponse{
			ID:             e.ID,
			IdempotencyKey: e.IdempotencyKey,
			OperationID:    e.OperationID,
			Account:        e.Account,
			SenderID:       e.SenderID,
			RecipientID:    e.RecipientID,
			Amount:         e.Amount,
			Currency:       e.Currency,
			Type:           string(e.Type),
			Status:         string(e.Status),
			ReferenceID:    e.ReferenceID,
			Metadata:       e.Metadata,
			CreatedAt:      e.CreatedAt,
		})
	}
	return out
}

// Entries lists wallet postings.
func (h *Handler) Entries(c *fiber.Ctx) error {
	entries, err := h.service.Entries(c.UserContext(), c.Params("owner"), c.Query("currency"), c.QueryInt("limit", 100))
	if err != nil {
		return apierror.From(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"entries": NewEntryResponses(entries)})
}

// Reconcile reports whether a wallet matches its journal.
func (h *Handler) Reconcile(c *fiber.Ctx) error {
	rec, err := h.service.Reconcile(c.UserContext(), c.Params("owner"), c.Query("currency"))
	if err != nil {
		return apierror.From(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"account":      rec.Account,
		"balance":      rec.Balance,
		"ledger_sum":   rec.LedgerSum,
		"consistent":   rec.Consistent,
		"non_negative": rec.NonNegative,
	})
}
