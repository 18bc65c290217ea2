package funding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/congo-pay/escrowledger/internal/domain"
	"github.com/congo-pay/escrowledger/internal/ledger"
)

// Service moves money between wallets and the outside world: rewards in,
// withdrawals out through the payout gateway.
type Service struct {
	ledger  *ledger.Service
	gateway Gateway
}

// NewService prepares a funding service.
func NewService(ledgerSvc *ledger.Service, gateway Gateway) *Service {
	if gateway == nil {
		gateway = StaticGateway{}
	}
	return &Service{ledger: ledgerSvc, gateway: gateway}
}

// RewardInput credits a wallet, for example a gift bonus or a promotion.
type RewardInput struct {
	IdempotencyKey string
	OwnerID        string
	Amount         int64
	Currency       string
	Reason         string
	ReferenceID    string
}

// WithdrawalInput pushes funds from a wallet to an external destination.
type WithdrawalInput struct {
	IdempotencyKey string
	OwnerID        string
	Amount         int64
	Currency       string
	Destination    string
}

// Result represents the domain outcome of a funding operation.
type Result struct {
	OperationID      string
	IdempotencyKey   string
	OwnerID          string
	Type             domain.EntryType
	Amount           int64
	Currency         string
	WalletBalance    int64
	GatewayReference string
	Replayed         bool
	CompletedAt      time.Time
}

// Reward credits the wallet from the external account.
func (s *Service) Reward(ctx context.Context, actor domain.Actor, in RewardInput) (Result, error) {
	if strings.TrimSpace(in.Reason) == "" {
		in.Reason = "reward"
	}
	res, err := s.ledger.Reward(ctx, actor, ledger.ExternalInput{
		IdempotencyKey: in.IdempotencyKey,
		OwnerID:        in.OwnerID,
		Amount:         in.Amount,
		Currency:       in.Currency,
		ReferenceID:    in.ReferenceID,
		Reason:         in.Reason,
	})
	if err != nil {
		return Result{}, err
	}
	return toResult(res, ""), nil
}

// Withdraw authorizes the payout with the gateway, then debits the wallet.
func (s *Service) Withdraw(ctx context.Context, actor domain.Actor, in WithdrawalInput) (Result, error) {
	if err := validateDestination(in.Destination); err != nil {
		return Result{}, err
	}
	if err := domain.ValidateAmount(in.Amount); err != nil {
		return Result{}, err
	}

	decision, err := s.gateway.AuthorizePayout(ctx, PayoutAuthorization{
		OwnerID:     in.OwnerID,
		Destination: in.Destination,
		Amount:      in.Amount,
		Currency:    domain.NormalizeCurrency(in.Currency),
	})
	if err != nil {
		return Result{}, fmt.Errorf("authorize payout: %w", err)
	}
	if decision.Status != DecisionApproved {
		return Result{}, fmt.Errorf("payout %s by gateway: %w", decision.Status, domain.ErrValidation)
	}

	res, err := s.ledger.Withdraw(ctx, actor, ledger.ExternalInput{
		IdempotencyKey: in.IdempotencyKey,
		OwnerID:        in.OwnerID,
		Amount:         in.Amount,
		Currency:       in.Currency,
		ReferenceID:    decision.Reference,
		Reason:         "withdrawal",
		Metadata:       map[string]string{"destination": maskDestination(in.Destination)},
	})
	if err != nil {
		return Result{}, err
	}
	ref := decision.Reference
	if res.Replayed && len(res.Entries) > 0 {
		ref = res.Entries[0].ReferenceID
	}
	return toResult(res, ref), nil
}

func toResult(res ledger.ExternalResult, ref string) Result {
	return Result{
		OperationID:      res.OperationID,
		IdempotencyKey:   res.IdempotencyKey,
		OwnerID:          res.OwnerID,
		Type:             res.Type,
		Amount:           res.Amount,
		Currency:         res.Currency,
		WalletBalance:    res.Balance,
		GatewayReference: ref,
		Replayed:         res.Replayed,
		CompletedAt:      time.Now().UTC(),
	}
}

// validateDestination accepts card and mobile money numbers.
func validateDestination(dest string) error {
	digits := strings.TrimPrefix(strings.ReplaceAll(dest, " ", ""), "+")
	if len(digits) < 8 || len(digits) > 19 {
		return fmt.Errorf("destination must be between 8 and 19 digits: %w", domain.ErrValidation)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return fmt.Errorf("destination must be numeric: %w", domain.ErrValidation)
		}
	}
	return nil
}

func maskDestination(dest string) string {
	digits := strings.ReplaceAll(dest, " ", "")
	if len(digits) <= 4 {
		return digits
	}
	return strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
}
