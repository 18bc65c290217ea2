package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/escrowledger/internal/events"
	"github.com/congo-pay/escrowledger/internal/logging"
)

type recorder struct {
	sent []Message
	err  error
}

func (r *recorder) Send(_ context.Context, m Message) error {
	r.sent = append(r.sent, m)
	return r.err
}

func TestFromEvent(t *testing.T) {
	msg, ok := FromEvent(events.Event{Kind: events.EscrowRefunded, SenderID: "alice", RecipientID: "bob", Amount: 30, Currency: "XAF", Reason: "expired"})
	if !ok || msg.Destination != "alice" {
		t.Fatalf("refunds notify the sender, got %+v", msg)
	}
	msg, ok = FromEvent(events.Event{Kind: events.TransferCompleted, SenderID: "alice", RecipientID: "bob", Amount: 1940, Currency: "XAF"})
	if !ok || msg.Destination != "bob" || msg.Body != "You received 1940 XAF from alice" {
		t.Fatalf("unexpected transfer message %+v", msg)
	}
	if _, ok := FromEvent(events.Event{Kind: events.WalletStatusChanged, RecipientID: "bob"}); ok {
		t.Fatalf("status changes are not notified")
	}
}

func TestRedisNotifierPublishes(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	sub := client.Subscribe(ctx, "notify-test")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	n := NewRedisNotifier(client, "notify-test")
	if err := n.Send(ctx, Message{Kind: "transfer.completed", Destination: "bob", Body: "hello"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case m := <-sub.Channel():
		var got Message
		if err := json.Unmarshal([]byte(m.Payload), &got); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if got.Destination != "bob" || got.Body != "hello" {
			t.Fatalf("unexpected payload %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no message received")
	}
}

func TestSubscriberAndMulti(t *testing.T) {
	a, b := &recorder{err: errors.New("down")}, &recorder{}
	bus := events.NewBus(logging.Discard())
	bus.Subscribe("notify", Subscriber(Multi{a, b, NewLoggerNotifier(logging.Discard())}))

	bus.Publish(context.Background(), events.Event{Kind: events.RewardCredited, RecipientID: "bob", Amount: 10, Currency: "XAF"})
	bus.Publish(context.Background(), events.Event{Kind: events.OperationFailed})

	if len(a.sent) != 1 || len(b.sent) != 1 {
		t.Fatalf("expected one delivery per notifier despite errors, got %d and %d", len(a.sent), len(b.sent))
	}
}
