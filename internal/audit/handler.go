package audit

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/escrowledger/internal/apierror"
)

// Handler exposes audit queries.
type Handler struct {
	service *Service
}

// NewHandler builds an audit HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type recordResponse struct {
	ID            string    `json:"id"`
	ActorID       string    `json:"actor_id"`
	RequestID     string    `json:"request_id,omitempty"`
	Action        string    `json:"action"`
	Entity        string    `json:"entity"`
	EntityID      string    `json:"entity_id"`
	BalanceBefore *int64    `json:"balance_before,omitempty"`
	BalanceAfter  *int64    `json:"balance_after,omitempty"`
	StatusBefore  string    `json:"status_before,omitempty"`
	StatusAfter   string    `json:"status_after,omitempty"`
	EntryID       string    `json:"entry_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// List handles GET /audit/:entity/:id.
func (h *Handler) List(c *fiber.Ctx) error {
	records, err := h.service.List(c.UserContext(), c.Params("entity"), c.Params("id"), c.QueryInt("limit", 100))
	if err != nil {
		return apierror.From(c, err)
	}
	out := make([]recordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, recordResponse{
			ID:            r.ID,
			ActorID:       r.ActorID,
			RequestID:     r.RequestID,
			Action:        r.Action,
			Entity:        string(r.Entity),
			EntityID:      r.EntityID,
			BalanceBefore: r.BalanceBefore,
			BalanceAfter:  r.BalanceAfter,
			StatusBefore:  r.StatusBefore,
			StatusAfter:   r.StatusAfter,
			EntryID:       r.EntryID,
			CreatedAt:     r.CreatedAt,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"records": out})
}
