// Package events fans committed ledger operations out to subscribers. Events
// are published only after the transaction that produced them commits, so a
// subscriber never observes a rolled-back change. Delivery is fire-and-forget:
// subscriber failures are logged and never reach the caller.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Kind names an event.
type Kind string

const (
	TransferCompleted   Kind = "transfer.completed"
	EscrowCreated       Kind = "escrow.created"
	EscrowReleased      Kind = "escrow.released"
	EscrowRefunded      Kind = "escrow.refunded"
	RewardCredited      Kind = "reward.credited"
	WithdrawalCompleted Kind = "withdrawal.completed"
	WalletStatusChanged Kind = "wallet.status_changed"
	OperationFailed     Kind = "operation.failed"
)

// Event describes a committed change.
type Event struct {
	Kind        Kind      `json:"kind"`
	OperationID string    `json:"operation_id,omitempty"`
	EntityID    string    `json:"entity_id,omitempty"`
	ActorID     string    `json:"actor_id,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	SenderID    string    `json:"sender_id,omitempty"`
	RecipientID string    `json:"recipient_id,omitempty"`
	Amount      int64     `json:"amount,omitempty"`
	Currency    string    `json:"currency,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher accepts committed events.
type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

// Handler consumes events.
type Handler interface {
	Handle(ctx context.Context, evt Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, evt Event) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, evt Event) error { return f(ctx, evt) }

// Nop discards events.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, Event) {}

// Bus delivers each event to every subscriber in subscription order.
type Bus struct {
	mu       sync.RWMutex
	handlers []namedHandler
	logger   *slog.Logger
}

type namedHandler struct {
	name string
	h    Handler
}

// NewBus constructs an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// Subscribe registers h under name, used in failure logs.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, namedHandler{name: name, h: h})
}

// Publish delivers evt synchronously. Handler errors and panics are logged.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	if b == nil {
		return
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	b.mu.RLock()
	handlers := append([]namedHandler(nil), b.handlers...)
	b.mu.RUnlock()

	for _, nh := range handlers {
		b.deliver(ctx, nh, evt)
	}
}

func (b *Bus) deliver(ctx context.Context, nh namedHandler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked", "subscriber", nh.name, "kind", evt.Kind, "panic", r)
		}
	}()
	if err := nh.h.Handle(ctx, evt); err != nil {
		b.logger.Warn("event subscriber failed", "subscriber", nh.name, "kind", evt.Kind, "error", err)
	}
}

// LogHandler writes every event to logger as a structured record.
func LogHandler(logger *slog.Logger) Handler {
	return HandlerFunc(func(ctx context.Context, evt Event) error {
		logger.InfoContext(ctx, "ledger event",
			"kind", evt.Kind,
			"operation_id", evt.OperationID,
			"entity_id", evt.EntityID,
			"actor_id", evt.ActorID,
			"request_id", evt.RequestID,
			"amount", evt.Amount,
			"currency", evt.Currency,
		)
		return nil
	})
}
