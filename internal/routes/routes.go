package routes

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/congo-pay/escrowledger/internal/audit"
	"github.com/congo-pay/escrowledger/internal/commission"
	"github.com/congo-pay/escrowledger/internal/escrow"
	"github.com/congo-pay/escrowledger/internal/funding"
	"github.com/congo-pay/escrowledger/internal/ledger"
	"github.com/congo-pay/escrowledger/internal/middleware"
	"github.com/congo-pay/escrowledger/internal/payments"
	"github.com/congo-pay/escrowledger/internal/wallet"
)

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps, svc *Services) {
	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))

	// Health
	RegisterHealthRoutes(app, d, svc)

	api := app.Group("/api/v1", middleware.Audit(d.Logger), middleware.Actor())
	if d.Cache != nil {
		api.Use(middleware.MutationRateLimit(d.Cache, d.Cfg.MutationRatePerMin))
		api.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterPaymentRoutes(api, payments.NewHandler(svc.Ledger))
	RegisterEscrowRoutes(api, escrow.NewHandler(svc.Escrow))
	RegisterWalletRoutes(api, wallet.NewHandler(svc.Wallets), ledger.NewHandler(svc.Ledger))
	RegisterCommissionRoutes(api, commission.NewHandler(svc.Commission))
	RegisterFundingRoutes(api, funding.NewHandler(svc.Funding))
	RegisterAuditRoutes(api, audit.NewHandler(svc.Audit))
}
