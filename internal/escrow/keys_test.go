package escrow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/congo-pay/escrowledger/internal/commission"
	"github.com/congo-pay/escrowledger/internal/domain"
	"github.com/congo-pay/escrowledger/internal/ledger"
	"github.com/congo-pay/escrowledger/internal/logging"
	"github.com/congo-pay/escrowledger/internal/store/memory"
)

func newLedger(st *memory.Store) *ledger.Service {
	comm := commission.NewService(st, commission.DefaultSchedule())
	return ledger.NewService(st, comm, nil, nil, logging.Discard())
}

func TestPartyCannotBlockEscrowSettlement(t *testing.T) {
	st := memory.New()
	memory.Seed(st, "alice", "XAF", 5_000)
	memory.Seed(st, "bob", "XAF", 5_000)
	clk := newClock()
	m := newManager(st, clk)
	payments := newLedger(st)
	reaper := NewReaper(m, st, logging.Discard(), 10, time.Second)
	ctx := context.Background()
	bob := domain.Actor{ID: "bob", RequestID: "req-2"}

	short := newInput("gift-short", 3_000)
	short.TTL = time.Second
	expiring, err := m.Create(ctx, actor, short)
	if err != nil {
		t.Fatalf("create expiring: %v", err)
	}
	long := newInput("gift-long", 1_000)
	long.TTL = time.Hour
	releasable, err := m.Create(ctx, actor, long)
	if err != nil {
		t.Fatalf("create releasable: %v", err)
	}

	for _, id := range []string{expiring.Escrow.ID, releasable.Escrow.ID} {
		for _, key := range []string{refundKey(id), releaseKey(id)} {
			_, err := payments.Transfer(ctx, bob, ledger.TransferInput{IdempotencyKey: key, SenderID: "bob", RecipientID: "alice", Amount: 1})
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("transfer keyed %q: expected validation error, got %v", key, err)
			}
		}
	}

	clk.Advance(2 * time.Second)
	res, err := reaper.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Refunded != 1 || res.Failed != 0 {
		t.Fatalf("expected the expired escrow to be refunded, got %+v", res)
	}

	released, err := m.Release(ctx, actor, releasable.Escrow.ID, verified)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released.Escrow.Status != domain.EscrowReleased {
		t.Fatalf("unexpected status %s", released.Escrow.Status)
	}
	if got := memory.Balance(st, "alice", "XAF"); got != 4_000 {
		t.Fatalf("expected alice 4000 after refund and release, got %d", got)
	}
	if got := memory.Balance(st, "bob", "XAF"); got != 6_000 {
		t.Fatalf("expected bob 6000, got %d", got)
	}
}

func TestCreateRejectsKeyOfAnotherOperation(t *testing.T) {
	st := memory.New()
	memory.Seed(st, "alice", "XAF", 5_000)
	m := newManager(st, nil)
	ctx := context.Background()

	if _, err := newLedger(st).Transfer(ctx, actor, ledger.TransferInput{IdempotencyKey: "pay-1", SenderID: "alice", RecipientID: "bob", Amount: 100}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	before := memory.Balance(st, "alice", "XAF")

	_, err := m.Create(ctx, actor, newInput("pay-1", 1_000))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := memory.Balance(st, "alice", "XAF"); got != before {
		t.Fatalf("rejected create moved money: %d -> %d", before, got)
	}

	if _, err := m.Create(ctx, actor, newInput("escrow:x:hold", 10)); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected reserved key to be rejected, got %v", err)
	}
}
