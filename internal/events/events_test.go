package events

import (
	"context"
	"errors"
	"testing"

	"github.com/congo-pay/escrowledger/internal/logging"
)

func TestBusDeliversInOrderAndSurvivesFailures(t *testing.T) {
	bus := NewBus(logging.Discard())
	var got []string
	bus.Subscribe("first", HandlerFunc(func(_ context.Context, evt Event) error {
		got = append(got, "first:"+string(evt.Kind))
		return errors.New("boom")
	}))
	bus.Subscribe("panics", HandlerFunc(func(context.Context, Event) error {
		panic("subscriber bug")
	}))
	bus.Subscribe("last", HandlerFunc(func(_ context.Context, evt Event) error {
		got = append(got, "last:"+string(evt.Kind))
		if evt.OccurredAt.IsZero() {
			t.Errorf("expected occurred_at to be stamped")
		}
		return nil
	}))

	bus.Publish(context.Background(), Event{Kind: EscrowCreated})

	if len(got) != 2 || got[0] != "first:escrow.created" || got[1] != "last:escrow.created" {
		t.Fatalf("unexpected deliveries: %v", got)
	}
}

func TestNilBusIsSafe(t *testing.T) {
	var bus *Bus
	bus.Publish(context.Background(), Event{Kind: TransferCompleted})
}
