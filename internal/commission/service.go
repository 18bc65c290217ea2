package commission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/escrowledger/internal/domain"
	"github.com/congo-pay/escrowledger/internal/store"
)

// Service applies the active schedule to recipient policies held in the store.
type Service struct {
	store    store.Store
	schedule Schedule
	now      func() time.Time
}

// NewService builds a commission service. The schedule must already be valid.
func NewService(st store.Store, schedule Schedule) *Service {
	return &Service{store: st, schedule: schedule, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the clock used to evaluate VIP expiry.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Schedule returns the active schedule.
func (s *Service) Schedule() Schedule {
	return s.schedule
}

// Quote computes the commission a transfer of amount to recipientID would carry.
func (s *Service) Quote(ctx context.Context, recipientID string, amount int64) (Record, error) {
	if strings.TrimSpace(recipientID) == "" {
		return Record{}, fmt.Errorf("recipient id is required: %w", domain.ErrValidation)
	}
	var rec Record
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		rec, err = s.QuoteTx(ctx, tx, recipientID, amount, s.now())
		return err
	})
	return rec, err
}

// QuoteTx computes inside an existing transaction so the policy read is part of
// the same unit of work as the postings it prices.
func (s *Service) QuoteTx(ctx context.Context, tx store.Tx, recipientID string, amount int64, now time.Time) (Record, error) {
	policy, err := PolicyFor(ctx, tx, recipientID)
	if err != nil {
		return Record{}, err
	}
	return Compute(amount, policy, s.schedule, now)
}

// PolicyFor returns the stored policy or the zero policy when none exists.
func PolicyFor(ctx context.Context, tx store.Tx, userID string) (domain.RecipientPolicy, error) {
	p, err := tx.Policies().Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.RecipientPolicy{UserID: userID}, nil
	}
	if err != nil {
		return domain.RecipientPolicy{}, err
	}
	return p, nil
}

// PolicyInput describes an admin update of a recipient policy.
type PolicyInput struct {
	UserID       string
	VIP          bool
	VIPExpiresAt *time.Time
	SenderShare  *decimal.Decimal
}

// SetPolicy stores a recipient policy.
func (s *Service) SetPolicy(ctx context.Context, actor domain.Actor, input PolicyInput) (domain.RecipientPolicy, error) {
	if err := actor.Validate(); err != nil {
		return domain.RecipientPolicy{}, err
	}
	if strings.TrimSpace(input.UserID) == "" {
		return domain.RecipientPolicy{}, fmt.Errorf("user id is required: %w", domain.ErrValidation)
	}
	if share := input.SenderShare; share != nil && (share.IsNegative() || share.GreaterThan(one)) {
		return domain.RecipientPolicy{}, fmt.Errorf("sender share %s out of range: %w", share, domain.ErrValidation)
	}
	policy := domain.RecipientPolicy{
		UserID:       input.UserID,
		VIP:          input.VIP,
		VIPExpiresAt: input.VIPExpiresAt,
		SenderShare:  input.SenderShare,
		UpdatedAt:    s.now(),
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Policies().Upsert(ctx, policy)
	})
	if err != nil {
		return domain.RecipientPolicy{}, err
	}
	return policy, nil
}
