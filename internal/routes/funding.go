package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/escrowledger/internal/funding"
)

// RegisterFundingRoutes wires reward and withdrawal endpoints.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler) {
	r.Post("/rewards", h.Reward)
	r.Post("/withdrawals", h.Withdraw)
}
