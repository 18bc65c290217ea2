package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/escrowledger/internal/escrow"
)

// RegisterEscrowRoutes wires escrow endpoints.
func RegisterEscrowRoutes(r fiber.Router, h *escrow.Handler) {
	r.Post("/escrows", h.Create)
	r.Get("/escrows", h.List)
	r.Get("/escrows/:id", h.Get)
	r.Post("/escrows/:id/release", h.Release)
	r.Post("/escrows/:id/refund", h.Refund)
}
