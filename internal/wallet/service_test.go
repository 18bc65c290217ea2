package wallet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/congo-pay/escrowledger/internal/domain"
	"github.com/congo-pay/escrowledger/internal/store"
	"github.com/congo-pay/escrowledger/internal/store/memory"
)

var actor = domain.Actor{ID: "tester", RequestID: "req-1"}

func key(owner string) domain.WalletKey {
	return domain.WalletKey{OwnerID: owner, Currency: "XAF"}
}

func TestGetBalanceDoesNotCreate(t *testing.T) {
	st := memory.New()
	svc := NewService(st, nil)
	ctx := context.Background()

	bal, err := svc.GetBalance(ctx, "alice", "")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Amount != 0 || bal.Currency != "XAF" || bal.Status != domain.WalletActive {
		t.Fatalf("unexpected empty balance: %+v", bal)
	}
	err = st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Wallets().Get(ctx, key("alice"))
		return err
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected no wallet row, got %v", err)
	}

	memory.Seed(st, "alice", "XAF", 2_500)
	bal, err = svc.GetBalance(ctx, "alice", "xaf")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Amount != 2_500 {
		t.Fatalf("expected balance 2500, got %d", bal.Amount)
	}
}

func TestDebitInsufficientFundsLeavesBalance(t *testing.T) {
	st := memory.New()
	memory.Seed(st, "alice", "XAF", 1_000)
	ctx := context.Background()

	err := st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		w, err := GetOrCreate(ctx, tx, key("alice"), time.Now())
		if err != nil {
			return err
		}
		_, err = Debit(ctx, tx, actor, w, 3_000, "", time.Now())
		return err
	})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if got := memory.Balance(st, "alice", "XAF"); got != 1_000 {
		t.Fatalf("balance changed to %d", got)
	}
	if memory.AuditCount(st) != 0 {
		t.Fatalf("failed debit must not leave audit records")
	}
}

func TestDebitAndCreditWriteAudit(t *testing.T) {
	st := memory.New()
	memory.Seed(st, "alice", "XAF", 1_000)
	ctx := context.Background()

	err := st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		a, b, err := LockPair(ctx, tx, key("alice"), key("bob"), time.Now())
		if err != nil {
			return err
		}
		if _, err := Debit(ctx, tx, actor, a, 400, "e-1", time.Now()); err != nil {
			return err
		}
		_, err = Credit(ctx, tx, actor, b, 400, "e-2", time.Now())
		return err
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	if memory.Balance(st, "alice", "XAF") != 600 || memory.Balance(st, "bob", "XAF") != 400 {
		t.Fatalf("unexpected balances")
	}
	if memory.AuditCount(st) != 2 {
		t.Fatalf("expected 2 audit records, got %d", memory.AuditCount(st))
	}
}

func TestLockNoWaitFailsFastOnContention(t *testing.T) {
	st := memory.New()
	memory.Seed(st, "alice", "XAF", 1_000)
	ctx := context.Background()

	err := st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := GetOrCreate(ctx, tx, key("alice"), time.Now()); err != nil {
			return err
		}
		inner := st.WithTx(ctx, func(ctx context.Context, tx2 store.Tx) error {
			_, _, err := LockPair(ctx, tx2, key("bob"), key("alice"), time.Now())
			return err
		})
		if !errors.Is(inner, domain.ErrLockContention) {
			t.Errorf("expected lock contention, got %v", inner)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("outer tx: %v", err)
	}

	// Locks are released after the outer transaction ends.
	err = st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := GetOrCreate(ctx, tx, key("alice"), time.Now())
		return err
	})
	if err != nil {
		t.Fatalf("lock should be free: %v", err)
	}
}

func TestLockPairRejectsSameWallet(t *testing.T) {
	st := memory.New()
	err := st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, _, err := LockPair(ctx, tx, key("alice"), key("alice"), time.Now())
		return err
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFrozenWalletRejectsDebitsButAcceptsCredits(t *testing.T) {
	st := memory.New()
	memory.Seed(st, "alice", "XAF", 1_000)
	svc := NewService(st, nil)
	ctx := context.Background()

	if _, err := svc.SetStatus(ctx, actor, "alice", "XAF", domain.WalletFrozen); err != nil {
		t.Fatalf("freeze: %v", err)
	}

	err := st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		w, err := GetOrCreate(ctx, tx, key("alice"), time.Now())
		if err != nil {
			return err
		}
		_, err = Debit(ctx, tx, actor, w, 100, "", time.Now())
		return err
	})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}

	err = st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		w, err := GetOrCreate(ctx, tx, key("alice"), time.Now())
		if err != nil {
			return err
		}
		_, err = Credit(ctx, tx, actor, w, 100, "", time.Now())
		return err
	})
	if err != nil {
		t.Fatalf("credit on frozen wallet: %v", err)
	}
	if got := memory.Balance(st, "alice", "XAF"); got != 1_100 {
		t.Fatalf("expected 1100, got %d", got)
	}
}

func TestSetStatusValidation(t *testing.T) {
	svc := NewService(memory.New(), nil)
	ctx := context.Background()
	if _, err := svc.SetStatus(ctx, domain.Actor{}, "alice", "XAF", domain.WalletFrozen); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected missing actor to fail, got %v", err)
	}
	if _, err := svc.SetStatus(ctx, actor, "alice", "XAF", domain.WalletStatus("closed")); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected unknown status to fail, got %v", err)
	}
}
