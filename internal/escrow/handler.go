package escrow

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/escrowledger/internal/apierror"
	"github.com/congo-pay/escrowledger/internal/commission"
	"github.com/congo-pay/escrowledger/internal/domain"
	"github.com/congo-pay/escrowledger/internal/ledger"
	"github.com/congo-pay/escrowledger/internal/middleware"
)

// Handler exposes escrow HTTP endpoints.
type Handler struct {
	manager *Manager
}

// NewHandler builds an escrow HTTP handler.
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

type createRequest struct {
	IdempotencyKey   string `json:"idempotency_key"`
	SenderID         string `json:"sender_id"`
	RecipientID      string `json:"recipient_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	ReferenceID      string `json:"reference_id"`
	ReleaseCondition string `json:"release_condition"`
	TTLSeconds       int64  `json:"ttl_seconds"`
	ChargeCommission bool   `json:"charge_commission"`
}

type releaseRequest struct {
	Verified   bool   `json:"verified"`
	VerifiedBy string `json:"verified_by"`
}

type refundRequest struct {
	Reason string `json:"reason"`
}

// Response is the JSON rendering of an escrow.
type Response struct {
	ID               string     `json:"id"`
	SenderID         string     `json:"sender_id"`
	RecipientID      string     `json:"recipient_id"`
	Amount           int64      `json:"amount"`
	Currency         string     `json:"currency"`
	ReferenceID      string     `json:"reference_id"`
	ReleaseCondition string     `json:"release_condition,omitempty"`
	Status           string     `json:"status"`
	HeldAmount       int64      `json:"held_amount"`
	PayoutAmount     int64      `json:"payout_amount"`
	CommissionAmount int64      `json:"commission_amount"`
	CommissionTier   string     `json:"commission_tier,omitempty"`
	VerifiedBy       string     `json:"verified_by,omitempty"`
	RefundReason     string     `json:"refund_reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
	ReleasedAt       *time.Time `json:"released_at,omitempty"`
	RefundedAt       *time.Time `json:"refunded_at,omitempty"`
}

// NewResponse renders e.
func NewResponse(e domain.Escrow) Response {
	return Response{
		ID:               e.ID,
		SenderID:         e.SenderID,
		RecipientID:      e.RecipientID,
		Amount:           e.Amount,
		Currency:         e.Currency,
		ReferenceID:      e.ReferenceID,
		ReleaseCondition: e.ReleaseCondition,
		Status:           string(e.Status),
		HeldAmount:       e.HeldAmount,
		PayoutAmount:     e.PayoutAmount,
		CommissionAmount: e.CommissionAmount,
		CommissionTier:   e.CommissionTier,
		VerifiedBy:       e.VerifiedBy,
		RefundReason:     e.RefundReason,
		CreatedAt:        e.CreatedAt,
		ExpiresAt:        e.ExpiresAt,
		ReleasedAt:       e.ReleasedAt,
		RefundedAt:       e.RefundedAt,
	}
}

func render(c *fiber.Ctx, status int, res Result) error {
	return c.Status(status).JSON(fiber.Map{
		"escrow":     NewResponse(res.Escrow),
		"commission": commission.NewResponse(res.Commission),
		"entries":    ledger.NewEntryResponses(res.Entries),
		"replayed":   res.Replayed,
	})
}

// Create opens an escrow. The key comes from the Idempotency-Key header or the body.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	key := middleware.IdempotencyKeyFrom(c)
	if key == "" {
		key = req.IdempotencyKey
	}
	if req.TTLSeconds < 0 {
		return fiber.NewError(http.StatusBadRequest, "ttl_seconds must be positive")
	}

	res, err := h.manager.Create(c.UserContext(), middleware.ActorFrom(c), CreateInput{
		IdempotencyKey:   key,
		SenderID:         req.SenderID,
		RecipientID:      req.RecipientID,
		Amount:           req.Amount,
		Currency:         req.Currency,
		ReferenceID:      req.ReferenceID,
		ReleaseCondition: req.ReleaseCondition,
		TTL:              time.Duration(req.TTLSeconds) * time.Second,
		ChargeCommission: req.ChargeCommission,
	})
	if err != nil {
		return apierror.From(c, err)
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	return render(c, status, res)
}

// Release pays out a verified escrow.
func (h *Handler) Release(c *fiber.Ctx) error {
	var req releaseRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.manager.Release(c.UserContext(), middleware.ActorFrom(c), c.Params("id"), Verification{
		Verified:   req.Verified,
		VerifiedBy: req.VerifiedBy,
	})
	if err != nil {
		return apierror.From(c, err)
	}
	return render(c, http.StatusOK, res)
}

// Refund returns the held funds to the sender.
func (h *Handler) Refund(c *fiber.Ctx) error {
	var req refundRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	res, err := h.manager.Refund(c.UserContext(), middleware.ActorFrom(c), c.Params("id"), req.Reason)
	if err != nil {
		return apierror.From(c, err)
	}
	return render(c, http.StatusOK, res)
}

// Get returns one escrow.
func (h *Handler) Get(c *fiber.Ctx) error {
	e, err := h.manager.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return apierror.From(c, err)
	}
	return c.Status(http.StatusOK).JSON(NewResponse(e))
}

// List returns escrows for ?party=<user id>.
func (h *Handler) List(c *fiber.Ctx) error {
	list, err := h.manager.List(c.UserContext(), strings.TrimSpace(c.Query("party")), c.QueryInt("limit", 50))
	if err != nil {
		return apierror.From(c, err)
	}
	out := make([]Response, 0, len(list))
	for _, e := range list {
		out = append(out, NewResponse(e))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"escrows": out})
}
