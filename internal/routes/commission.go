package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/escrowledger/internal/audit"
	"github.com/congo-pay/escrowledger/internal/commission"
)

// RegisterCommissionRoutes wires commission quotes and recipient policies.
func RegisterCommissionRoutes(r fiber.Router, h *commission.Handler) {
	r.Get("/commission/quote", h.Quote)
	r.Put("/commission/policies/:user_id", h.SetPolicy)
}

// RegisterAuditRoutes wires audit trail reads.
func RegisterAuditRoutes(r fiber.Router, h *audit.Handler) {
	r.Get("/audit/:entity/:id", h.List)
}
