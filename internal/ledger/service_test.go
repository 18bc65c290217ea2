package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/congo-pay/escrowledger/internal/commission"
	"github.com/congo-pay/escrowledger/internal/domain"
	"github.com/congo-pay/escrowledger/internal/logging"
	"github.com/congo-pay/escrowledger/internal/store"
	"github.com/congo-pay/escrowledger/internal/store/memory"
)

var actor = domain.Actor{ID: "user-1", RequestID: "req-1"}

func newService(st store.Store) *Service {
	comm := commission.NewService(st, commission.DefaultSchedule())
	return NewService(st, comm, nil, nil, logging.Discard())
}

func assertReconciled(t *testing.T, svc *Service, owners ...string) {
	t.Helper()
	for _, owner := range owners {
		rec, err := svc.Reconcile(context.Background(), owner, "XAF")
		if err != nil {
			t.Fatalf("reconcile %s: %v", owner, err)
		}
		if !rec.Consistent || !rec.NonNegative {
			t.Fatalf("wallet %s out of balance: %+v", owner, rec)
		}
	}
}

func TestTransferAppliesCommission(t *testing.T) {
	st := memory.New()
	memory.Seed(st, "alice", "XAF", 10_000)
	svc := newService(st)

	res, err := svc.Transfer(context.Background(), actor, TransferInput{
		IdempotencyKey: "t-1", SenderID: "alice", RecipientID: "bob", Amount: 2_000,
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if res.Commission.TotalCommission != 200 || res.Commission.SenderPays != 2_140 || res.Commission.RecipientGets != 1_940 {
		t.Fatalf("unexpected commission: %+v", res.Commission)
	}
	if res.SenderBalance != 7_860 || res.RecipientBalance != 1_940 {
		t.Fatalf("unexpected balances: %+v", res)
	}
	if got := memory.AccountSum(st, domain.RevenueAccount("XAF")); got != 200 {
		t.Fatalf("expected revenue 200, got %d", got)
	}

	var sum int64
	for _, e := range res.Entries {
		sum += e.Amount
		if e.OperationID != res.OperationID {
			t.Fatalf("leg %s has operation %s", e.IdempotencyKey, e.OperationID)
		}
	}
	if sum != 0 || len(res.Entries) != 3 {
		t.Fatalf("expected 3 balanced legs, got %d legs summing to %d", len(res.Entries), sum)
	}
	assertReconciled(t, svc, "alice", "bob")
}

func TestTransferIsIdempotent(t *testing.T) {
	st := memory.New()
	memory.Seed(st, "alice", "XAF", 10_000)
	svc := newService(st)
	ctx := context.Background()
	in := TransferInput{IdempotencyKey: "same", SenderID: "alice", RecipientID: "bob", Amount: 1_000}

	first, err := svc.Transfer(ctx, actor, in)
	if err != nil {
		t.Fatalf("first transfer: %v", err)
	}
	second, err := svc.Transfer(ctx, actor, in)
	if err != nil {
		t.Fatalf("replayed transfer: %v", err)
	}
	if !second.Replayed {
		t.Fatalf("expected replay")
	}
	if first.OperationID != second.OperationID || first.Commission != second.Commission ||
		first.SenderBalance != second.SenderBalance || first.RecipientBalance != second.RecipientBalance {
		t.Fatalf("replay differs:\n%+v\n%+v", first, second)
	}
	if got := memory.Balance(st, "alice", "XAF"); got != first.SenderBalance {
		t.Fatalf("replay moved money: alice=%d", got)
	}
	assertReconciled(t, svc, "alice", "bob")
}

func TestTransferConcurrentSameKeyAppliesOnce(t *testing.T) {
	st := memory.New()
	memory.Seed(st, "alice", "XAF", 100_000)
	svc := newService(st)
	in := TransferInput{IdempotencyKey: "race", SenderID: "alice", RecipientID: "bob", Amount: 1_000}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				_, err := svc.Transfer(context.Background(), actor, in)
				if errors.Is(err, domain.ErrLockContention) {
					time.Sleep(time.Millisecond)
					continue
				}
				if err != nil {
					t.Errorf("transfer: %v", err)
				}
				return
			}
		}()
	}
	wg.Wait()

	if got := memory.Balance(st, "bob", "XAF"); got != 970 {
		t.Fatalf("expected single credit of 970, got %d", got)
	}
	assertReconciled(t, svc, "alice", "bob")
}

func TestTransferKeyReuseWithDifferentAmount(t *testing.T) {
	st := memory.New()
	memory.Seed(st, "alice", "XAF", 10_000)
	svc := newService(st)
	ctx := context.Background()

	if _, err := svc.Transfer(ctx, actor, TransferInput{IdempotencyKey: "k", SenderID: "alice", RecipientID: "bob", Amount: 100}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	_, err := svc.Transfer(ctx, actor, TransferInput{IdempotencyKey: "k", SenderID: "alice", RecipientID: "bob", Amount: 200})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTransferInsufficientFundsChangesNothing(t *testing.T) {
	st := memory.New()
	memory.Seed(st, "alice", "XAF", 10)
	svc := newService(st)

	_, err := svc.Transfer(context.Background(), actor, TransferInput{IdempotencyKey: "poor", SenderID: "alice", RecipientID: "bob", Amount: 30})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if got := memory.Balance(st, "alice", "XAF"); got != 10 {
		t.Fatalf("alice balance changed to %d", got)
	}
	entries, err := svc.Entries(context.Background(), "bob", "XAF", 0)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no postings for bob, got %d", len(entries))
	}
}

func TestTransferValidation(t *testing.T) {
	svc := newService(memory.New())
	ctx := context.Background()
	cases := []TransferInput{
		{IdempotencyKey: "", SenderID: "a", RecipientID: "b", Amount: 10},
		{IdempotencyKey: "k", SenderID: "a", RecipientID: "a", Amount: 10},
		{IdempotencyKey: "k", SenderID: "a", RecipientID: "b", Amount: 0},
		{IdempotencyKey: "k", SenderID: "a", RecipientID: "b", Amount: -5},
	}
	for i, in := range cases {
		if _, err := svc.Transfer(ctx, actor, in); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
	if _, err := svc.Transfer(ctx, domain.Actor{}, TransferInput{IdempotencyKey: "k", SenderID: "a", RecipientID: "b", Amount: 1}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected missing actor to fail, got %v", err)
	}
}

func TestClientKeysCannotTakeDerivedKeys(t *testing.T) {
	st := memory.New()
	memory.Seed(st, "alice", "XAF", 10_000)
	svc := newService(st)
	ctx := context.Background()

	reserved := []string{
		"escrow:0b6f2f6e-2d7e-4c55-9e0c-8a3f6f2a1b10:refund",
		"escrow:0b6f2f6e-2d7e-4c55-9e0c-8a3f6f2a1b10:release",
		"pay-1:credit",
		"pay-1:commission",
		"failed:x",
		strings.Repeat("k", domain.MaxIdempotencyKeyLength+1),
	}
	for _, key := range reserved {
		_, err := svc.Transfer(ctx, actor, TransferInput{IdempotencyKey: key, SenderID: "alice", RecipientID: "bob", Amount: 100})
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("key %q: expected validation error, got %v", key, err)
		}
		if _, err := svc.Reward(ctx, actor, ExternalInput{IdempotencyKey: key, OwnerID: "bob", Amount: 100}); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("reward key %q: expected validation error, got %v", key, err)
		}
	}
	if got := memory.Balance(st, "alice", "XAF"); got != 10_000 {
		t.Fatalf("rejected keys must not move money, alice has %d", got)
	}

	res, err := svc.Transfer(ctx, actor, TransferInput{IdempotencyKey: " pay-1 ", SenderID: "alice", RecipientID: "bob", Amount: 100})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if res.IdempotencyKey != "pay-1" {
		t.Fatalf("expected trimmed key, got %q", res.IdempotencyKey)
	}
	keys := ByKey(res.Entries)
	if _, ok := keys[LegKey("pay-1", "credit")]; !ok {
		t.Fatalf("expected derived credit leg in %v", keys)
	}
}

func TestOppositeTransfersDoNotDeadlock(t *testing.T) {
	st := memory.New()
	memory.Seed(st, "alice", "XAF", 1_000_000)
	memory.Seed(st, "bob", "XAF", 1_000_000)
	svc := newService(st)

	const perSide = 25
	var wg sync.WaitGroup
	for i := 0; i < perSide; i++ {
		for _, dir := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
			wg.Add(1)
			go func(i int, from, to string) {
				defer wg.Done()
				in := TransferInput{IdempotencyKey: fmt.Sprintf("%s-%s-%d", from, to, i), SenderID: from, RecipientID: to, Amount: 1_000}
				for attempt := 0; attempt < 10_000; attempt++ {
					_, err := svc.Transfer(context.Background(), actor, in)
					if errors.Is(err, domain.ErrLockContention) {
						time.Sleep(time.Duration(attempt%5) * time.Microsecond)
						continue
					}
					if err != nil {
						t.Errorf("transfer %s: %v", in.IdempotencyKey, err)
					}
					return
				}
				t.Errorf("transfer %s never acquired its locks", in.IdempotencyKey)
			}(i, dir[0], dir[1])
		}
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("transfers did not finish")
	}

	total := memory.Balance(st, "alice", "XAF") + memory.Balance(st, "bob", "XAF") + memory.AccountSum(st, domain.RevenueAccount("XAF"))
	if total != 2_000_000 {
		t.Fatalf("money not conserved: %d", total)
	}
	assertReconciled(t, svc, "alice", "bob")
}

// brokenStore fails every completed ledger insert to simulate an unexpected
// storage fault.
type brokenStore struct {
	*memory.Store
}

func (b brokenStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return b.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, brokenTx{tx})
	})
}

type brokenTx struct{ store.Tx }

func (t brokenTx) Entries() store.EntryRepository { return brokenEntries{t.Tx.Entries()} }

type brokenEntries struct{ store.EntryRepository }

func (e brokenEntries) Insert(ctx context.Context, entry domain.Entry) error {
	if entry.Status == domain.EntryFailed {
		return e.EntryRepository.Insert(ctx, entry)
	}
	return errors.New("disk on fire")
}

func TestUnexpectedFailureIsJournaled(t *testing.T) {
	mem := memory.New()
	memory.Seed(mem, "alice", "XAF", 5_000)
	svc := newService(brokenStore{mem})

	_, err := svc.Transfer(context.Background(), actor, TransferInput{IdempotencyKey: "boom", SenderID: "alice", RecipientID: "bob", Amount: 1_000})
	if !errors.Is(err, domain.ErrInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if got := memory.Balance(mem, "alice", "XAF"); got != 5_000 {
		t.Fatalf("failed transfer moved money: %d", got)
	}

	entries, err := newService(mem).Entries(context.Background(), "alice", "XAF", 0)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	var failed *domain.Entry
	for i := range entries {
		if entries[i].Status == domain.EntryFailed {
			failed = &entries[i]
		}
	}
	if failed == nil {
		t.Fatalf("expected a failed journal entry, got %+v", entries)
	}
	if failed.Metadata[MetaOriginalKey] != "boom" || failed.Metadata[MetaError] != "disk on fire" {
		t.Fatalf("unexpected failure metadata: %v", failed.Metadata)
	}
	assertReconciled(t, newService(mem), "alice")
}
