package escrow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/congo-pay/escrowledger/internal/domain"
	"github.com/congo-pay/escrowledger/internal/retry"
	"github.com/congo-pay/escrowledger/internal/store"
)

// SweepResult counts the outcome of one sweep.
type SweepResult struct {
	Scanned  int
	Refunded int
	Skipped  int
	Failed   int
}

// Reaper refunds pending escrows whose deadline has passed.
type Reaper struct {
	manager   *Manager
	store     store.Store
	logger    *slog.Logger
	policy    retry.Policy
	batchSize int
	interval  time.Duration
}

// NewReaper builds a reaper. Non-positive batch sizes and intervals fall back
// to 100 and one minute.
func NewReaper(m *Manager, st store.Store, logger *slog.Logger, batchSize int, interval time.Duration) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{
		manager:   m,
		store:     st,
		logger:    logger,
		policy:    retry.DefaultPolicy(),
		batchSize: batchSize,
		interval:  interval,
	}
}

// WithPolicy overrides the contention retry policy.
func (r *Reaper) WithPolicy(p retry.Policy) *Reaper {
	r.policy = p
	return r
}

// Sweep refunds every escrow that was pending and expired when the sweep
// started. An escrow released or refunded concurrently is counted as skipped.
// Batches are paged by (expires_at, id), so escrows that fail stay behind the
// cursor and never hide newer ones.
func (r *Reaper) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	cutoff := r.manager.now()
	var cursor store.ExpiryCursor

	for {
		var batch []domain.Escrow
		err := r.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			var err error
			batch, err = tx.Escrows().ListExpired(ctx, cutoff, cursor, r.batchSize)
			return err
		})
		if err != nil {
			return res, err
		}

		for _, e := range batch {
			res.Scanned++
			r.refund(ctx, e, &res)
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
		}
		if len(batch) < r.batchSize {
			break
		}
		cursor = store.CursorAt(batch[len(batch)-1])
	}

	if res.Scanned > 0 {
		r.logger.Info("escrow sweep finished",
			slog.Int("scanned", res.Scanned),
			slog.Int("refunded", res.Refunded),
			slog.Int("skipped", res.Skipped),
			slog.Int("failed", res.Failed),
		)
	}
	return res, nil
}

func (r *Reaper) refund(ctx context.Context, e domain.Escrow, res *SweepResult) {
	out, err := retry.OnContention(ctx, r.policy, func(ctx context.Context) (Result, error) {
		return r.manager.Refund(ctx, domain.SystemActor(), e.ID, domain.RefundReasonExpired)
	})
	switch {
	case err == nil && out.Replayed:
		res.Skipped++
	case err == nil:
		res.Refunded++
	case errors.Is(err, domain.ErrInvalidState):
		res.Skipped++
	default:
		res.Failed++
		r.logger.Warn("escrow expiry refund failed",
			slog.String("escrow_id", e.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("escrow reaper started", slog.Duration("interval", r.interval))
	for {
		if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("escrow sweep failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			r.logger.Info("escrow reaper stopped")
			return nil
		case <-ticker.C:
		}
	}
}
