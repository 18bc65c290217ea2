package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/escrowledger/internal/ledger"
	"github.com/congo-pay/escrowledger/internal/wallet"
)

// RegisterWalletRoutes wires wallet-related endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler, lh *ledger.Handler) {
	r.Get("/wallets/:owner/balance", h.Balance)
	r.Put("/wallets/:owner/status", h.SetStatus)
	r.Get("/wallets/:owner/entries", lh.Entries)
	r.Get("/wallets/:owner/reconcile", lh.Reconcile)
}
