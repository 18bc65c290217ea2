package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/escrowledger/internal/events"
)

// DefaultChannel is the Redis channel notifications are published on.
const DefaultChannel = "escrowledger:notifications"

// Message describes a notification payload.
type Message struct {
	Kind        string `json:"kind"`
	Destination string `json:"destination"`
	Body        string `json:"body"`
	Reference   string `json:"reference,omitempty"`
	Amount      int64  `json:"amount,omitempty"`
	Currency    string `json:"currency,omitempty"`
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.InfoContext(ctx, "notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}

// RedisNotifier publishes JSON-encoded messages on a Redis pub/sub channel
// for the delivery workers.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// NewRedisNotifier constructs a notifier publishing on channel.
func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{client: client, channel: channel}
}

// Send publishes the message.
func (n *RedisNotifier) Send(ctx context.Context, message Message) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Multi fans a message out to every notifier and returns the first error.
type Multi []Notifier

// Send delivers to each notifier in order.
func (m Multi) Send(ctx context.Context, message Message) error {
	var first error
	for _, n := range m {
		if err := n.Send(ctx, message); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Subscriber turns committed ledger events into user notifications.
func Subscriber(n Notifier) events.Handler {
	return events.HandlerFunc(func(ctx context.Context, evt events.Event) error {
		msg, ok := FromEvent(evt)
		if !ok {
			return nil
		}
		return n.Send(ctx, msg)
	})
}

// FromEvent builds the message for evt. Events nobody is told about return false.
func FromEvent(evt events.Event) (Message, bool) {
	msg := Message{Kind: string(evt.Kind), Reference: evt.EntityID, Amount: evt.Amount, Currency: evt.Currency}
	switch evt.Kind {
	case events.TransferCompleted:
		msg.Destination = evt.RecipientID
		msg.Body = fmt.Sprintf("You received %d %s from %s", evt.Amount, evt.Currency, evt.SenderID)
	case events.EscrowCreated:
		msg.Destination = evt.RecipientID
		msg.Body = fmt.Sprintf("%s sent you %d %s, held until the gift is confirmed", evt.SenderID, evt.Amount, evt.Currency)
	case events.EscrowReleased:
		msg.Destination = evt.RecipientID
		msg.Body = fmt.Sprintf("%d %s from %s is now in your wallet", evt.Amount, evt.Currency, evt.SenderID)
	case events.EscrowRefunded:
		msg.Destination = evt.SenderID
		msg.Body = fmt.Sprintf("%d %s was returned to your wallet (%s)", evt.Amount, evt.Currency, evt.Reason)
	case events.RewardCredited:
		msg.Destination = evt.RecipientID
		msg.Body = fmt.Sprintf("You earned a reward of %d %s", evt.Amount, evt.Currency)
	case events.WithdrawalCompleted:
		msg.Destination = evt.RecipientID
		msg.Body = fmt.Sprintf("Your withdrawal of %d %s was sent", evt.Amount, evt.Currency)
	default:
		return Message{}, false
	}
	if msg.Destination == "" {
		return Message{}, false
	}
	return msg, true
}
