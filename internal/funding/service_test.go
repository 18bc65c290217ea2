package funding

import (
	"context"
	"errors"
	"testing"

	"github.com/congo-pay/escrowledger/internal/commission"
	"github.com/congo-pay/escrowledger/internal/domain"
	"github.com/congo-pay/escrowledger/internal/ledger"
	"github.com/congo-pay/escrowledger/internal/logging"
	"github.com/congo-pay/escrowledger/internal/store/memory"
)

var actor = domain.Actor{ID: "ops-1"}

type declineGateway struct{ calls int }

func (g *declineGateway) AuthorizePayout(context.Context, PayoutAuthorization) (AuthorizationDecision, error) {
	g.calls++
	return AuthorizationDecision{Reference: "ref-declined", Status: "declined"}, nil
}

func newService(st *memory.Store, gw Gateway) *Service {
	comm := commission.NewService(st, commission.DefaultSchedule())
	return NewService(ledger.NewService(st, comm, nil, nil, logging.Discard()), gw)
}

func TestServiceReward(t *testing.T) {
	st := memory.New()
	service := newService(st, nil)
	ctx := context.Background()

	res, err := service.Reward(ctx, actor, RewardInput{IdempotencyKey: "bonus-1", OwnerID: "bob", Amount: 500})
	if err != nil {
		t.Fatalf("reward: %v", err)
	}
	if res.WalletBalance != 500 || res.Type != domain.EntryReward {
		t.Fatalf("unexpected result: %+v", res)
	}

	again, err := service.Reward(ctx, actor, RewardInput{IdempotencyKey: "bonus-1", OwnerID: "bob", Amount: 500})
	if err != nil {
		t.Fatalf("repeat reward: %v", err)
	}
	if !again.Replayed || again.WalletBalance != 500 {
		t.Fatalf("expected replay, got %+v", again)
	}
	if got := memory.Balance(st, "bob", "XAF"); got != 500 {
		t.Fatalf("expected a single credit, got %d", got)
	}
}

func TestServiceWithdraw(t *testing.T) {
	st := memory.New()
	memory.Seed(st, "alice", "XAF", 5_000)
	service := newService(st, StaticGateway{})
	ctx := context.Background()

	res, err := service.Withdraw(ctx, actor, WithdrawalInput{
		IdempotencyKey: "w-1",
		OwnerID:        "alice",
		Amount:         2_000,
		Destination:    "+242 06 123 4567",
	})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if res.WalletBalance != 3_000 || res.GatewayReference == "" {
		t.Fatalf("unexpected result: %+v", res)
	}

	again, err := service.Withdraw(ctx, actor, WithdrawalInput{
		IdempotencyKey: "w-1",
		OwnerID:        "alice",
		Amount:         2_000,
		Destination:    "+242 06 123 4567",
	})
	if err != nil {
		t.Fatalf("repeat withdraw: %v", err)
	}
	if again.GatewayReference != res.GatewayReference {
		t.Fatalf("replay should report the original gateway reference")
	}

	_, err = service.Withdraw(ctx, actor, WithdrawalInput{
		IdempotencyKey: "excess",
		OwnerID:        "alice",
		Amount:         10_000,
		Destination:    "4111111111111111",
	})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if got := memory.Balance(st, "alice", "XAF"); got != 3_000 {
		t.Fatalf("expected balance 3000, got %d", got)
	}
}

func TestServiceWithdrawRejected(t *testing.T) {
	st := memory.New()
	memory.Seed(st, "alice", "XAF", 5_000)
	gw := &declineGateway{}
	service := newService(st, gw)

	if _, err := service.Withdraw(context.Background(), actor, WithdrawalInput{
		IdempotencyKey: "w-1", OwnerID: "alice", Amount: 100, Destination: "12ab",
	}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for a bad destination, got %v", err)
	}
	if gw.calls != 0 {
		t.Fatalf("gateway must not be called for invalid input")
	}

	if _, err := service.Withdraw(context.Background(), actor, WithdrawalInput{
		IdempotencyKey: "w-1", OwnerID: "alice", Amount: 100, Destination: "4111111111111111",
	}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for a declined payout, got %v", err)
	}
	if got := memory.Balance(st, "alice", "XAF"); got != 5_000 {
		t.Fatalf("declined payout must not debit, got %d", got)
	}
}
