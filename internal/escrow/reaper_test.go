package escrow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/congo-pay/escrowledger/internal/domain"
	"github.com/congo-pay/escrowledger/internal/logging"
	"github.com/congo-pay/escrowledger/internal/retry"
	"github.com/congo-pay/escrowledger/internal/store"
	"github.com/congo-pay/escrowledger/internal/store/memory"
)

func TestReaperRefundsExpiredEscrow(t *testing.T) {
	st := memory.New()
	memory.Seed(st, "alice", "XAF", 50)
	clk := newClock()
	m := newManager(st, clk)
	reaper := NewReaper(m, st, logging.Discard(), 10, time.Second)
	ctx := context.Background()

	in := newInput("gift-1", 30)
	in.TTL = time.Second
	created, err := m.Create(ctx, actor, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := reaper.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Scanned != 0 {
		t.Fatalf("expected nothing to sweep before expiry, got %+v", res)
	}

	clk.Advance(2 * time.Second)
	if _, err := m.Release(ctx, actor, created.Escrow.ID, verified); !errors.Is(err, domain.ErrExpired) {
		t.Fatalf("expected expired, got %v", err)
	}

	res, err = reaper.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Refunded != 1 || res.Failed != 0 {
		t.Fatalf("unexpected sweep result: %+v", res)
	}
	e, err := m.Get(ctx, created.Escrow.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if e.Status != domain.EscrowRefunded || e.RefundReason != domain.RefundReasonExpired {
		t.Fatalf("unexpected escrow after sweep: %+v", e)
	}
	if got := memory.Balance(st, "alice", "XAF"); got != 50 {
		t.Fatalf("expected alice restored to 50, got %d", got)
	}

	res, err = reaper.Sweep(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if res.Scanned != 0 {
		t.Fatalf("expected refunded escrow to be ignored, got %+v", res)
	}
}

func TestReaperSweepsInBatches(t *testing.T) {
	st := memory.New()
	memory.Seed(st, "alice", "XAF", 100)
	clk := newClock()
	m := newManager(st, clk)
	reaper := NewReaper(m, st, logging.Discard(), 2, time.Second)
	ctx := context.Background()

	for _, key := range []string{"g-1", "g-2", "g-3", "g-4", "g-5"} {
		in := newInput(key, 10)
		in.TTL = time.Minute
		if _, err := m.Create(ctx, actor, in); err != nil {
			t.Fatalf("create %s: %v", key, err)
		}
	}
	clk.Advance(time.Hour)

	res, err := reaper.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Refunded != 5 {
		t.Fatalf("expected 5 refunds, got %+v", res)
	}
	if got := memory.Balance(st, "alice", "XAF"); got != 100 {
		t.Fatalf("expected alice restored to 100, got %d", got)
	}
}

func TestReaperCountsContentionAsFailure(t *testing.T) {
	st := memory.New()
	memory.Seed(st, "alice", "XAF", 50)
	clk := newClock()
	m := newManager(st, clk)
	reaper := NewReaper(m, st, logging.Discard(), 10, time.Second).WithPolicy(retry.Policy{
		MaxAttempts:     2,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		MaxElapsed:      time.Second,
	})
	ctx := context.Background()

	in := newInput("gift-1", 30)
	in.TTL = time.Second
	created, err := m.Create(ctx, actor, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	clk.Advance(2 * time.Second)

	err = st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Escrows().LockNoWait(ctx, created.Escrow.ID); err != nil {
			return err
		}
		res, err := reaper.Sweep(ctx)
		if err != nil {
			return err
		}
		if res.Failed != 1 || res.Refunded != 0 {
			t.Errorf("expected one failure while the row is locked, got %+v", res)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("locked sweep: %v", err)
	}

	res, err := reaper.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Refunded != 1 {
		t.Fatalf("expected refund once the lock is gone, got %+v", res)
	}
}

func TestReaperPagesPastFailedEscrows(t *testing.T) {
	st := memory.New()
	memory.Seed(st, "alice", "XAF", 100)
	clk := newClock()
	m := newManager(st, clk)
	reaper := NewReaper(m, st, logging.Discard(), 2, time.Second).WithPolicy(retry.Policy{
		MaxAttempts:     1,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		MaxElapsed:      time.Second,
	})
	ctx := context.Background()

	ids := make([]string, 0, 3)
	for i, key := range []string{"g-1", "g-2", "g-3"} {
		in := newInput(key, 10)
		in.TTL = time.Duration(i+1) * time.Minute
		created, err := m.Create(ctx, actor, in)
		if err != nil {
			t.Fatalf("create %s: %v", key, err)
		}
		ids = append(ids, created.Escrow.ID)
	}
	clk.Advance(time.Hour)

	err := st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, id := range ids[:2] {
			if _, err := tx.Escrows().LockNoWait(ctx, id); err != nil {
				return err
			}
		}
		res, err := reaper.Sweep(ctx)
		if err != nil {
			return err
		}
		if res.Scanned != 3 || res.Failed != 2 || res.Refunded != 1 {
			t.Errorf("expected the newest escrow refunded behind two failures, got %+v", res)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("locked sweep: %v", err)
	}

	e, err := m.Get(ctx, ids[2])
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if e.Status != domain.EscrowRefunded {
		t.Fatalf("expected newest escrow refunded, got %s", e.Status)
	}
}

func TestReaperRunStopsOnCancel(t *testing.T) {
	st := memory.New()
	m := newManager(st, nil)
	reaper := NewReaper(m, st, logging.Discard(), 10, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reaper.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("reaper did not stop")
	}
}
