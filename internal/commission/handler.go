package commission

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/escrowledger/internal/apierror"
	"github.com/congo-pay/escrowledger/internal/middleware"
)

// Handler exposes commission quotes over HTTP.
type Handler struct {
	service *Service
}

// NewHandler builds a commission HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Response is the JSON rendering of a Record.
type Response struct {
	BaseAmount          int64  `json:"base_amount"`
	TotalCommission     int64  `json:"total_commission"`
	SenderCommission    int64  `json:"sender_commission"`
	RecipientCommission int64  `json:"recipient_commission"`
	PlatformRevenue     int64  `json:"platform_revenue"`
	SenderPays          int64  `json:"sender_pays"`
	RecipientGets       int64  `json:"recipient_gets"`
	Tier                string `json:"tier,omitempty"`
	ScheduleVersion     string `json:"schedule_version,omitempty"`
	VIPApplied          bool   `json:"vip_applied"`
}

// NewResponse renders r.
func NewResponse(r Record) Response {
	return Response{
		BaseAmount:          r.BaseAmount,
		TotalCommission:     r.TotalCommission,
		SenderCommission:    r.SenderCommission,
		RecipientCommission: r.RecipientCommission,
		PlatformRevenue:     r.PlatformRevenue,
		SenderPays:          r.SenderPays,
		RecipientGets:       r.RecipientGets,
		Tier:                r.Tier,
		ScheduleVersion:     r.ScheduleVersion,
		VIPApplied:          r.VIPApplied,
	}
}

// Quote handles GET /commission/quote?recipient_id=&amount=.
func (h *Handler) Quote(c *fiber.Ctx) error {
	amount, err := strconv.ParseInt(c.Query("amount"), 10, 64)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "amount must be an integer in minor units")
	}
	rec, err := h.service.Quote(c.UserContext(), c.Query("recipient_id"), amount)
	if err != nil {
		return apierror.From(c, err)
	}
	return c.Status(http.StatusOK).JSON(NewResponse(rec))
}

type policyRequest struct {
	VIP          bool       `json:"vip"`
	VIPExpiresAt *time.Time `json:"vip_expires_at"`
	SenderShare  *string    `json:"sender_share"`
}

// SetPolicy handles PUT /commission/policies/:user_id.
func (h *Handler) SetPolicy(c *fiber.Ctx) error {
	var req policyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	input := PolicyInput{UserID: c.Params("user_id"), VIP: req.VIP, VIPExpiresAt: req.VIPExpiresAt}
	if req.SenderShare != nil {
		share, err := decimal.NewFromString(*req.SenderShare)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "sender_share must be a decimal")
		}
		input.SenderShare = &share
	}

	p, err := h.service.SetPolicy(c.UserContext(), middleware.ActorFrom(c), input)
	if err != nil {
		return apierror.From(c, err)
	}
	out := fiber.Map{
		"user_id":        p.UserID,
		"vip":            p.VIP,
		"vip_expires_at": p.VIPExpiresAt,
		"updated_at":     p.UpdatedAt,
	}
	if p.SenderShare != nil {
		out["sender_share"] = p.SenderShare.String()
	}
	return c.Status(http.StatusOK).JSON(out)
}
