package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/escrowledger/internal/domain"
)

type policyRepo struct {
	tx pgx.Tx
}

func (r policyRepo) Get(ctx context.Context, userID string) (domain.RecipientPolicy, error) {
	var (
		p     domain.RecipientPolicy
		share *string
	)
	err := r.tx.QueryRow(ctx, `SELECT user_id, vip, vip_expires_at, sender_share::text, updated_at
        FROM recipient_policies WHERE user_id = $1`, userID).Scan(&p.UserID, &p.VIP, &p.VIPExpiresAt, &share, &p.UpdatedAt)
	if err != nil {
		return domain.RecipientPolicy{}, notFound(err, "policy "+userID)
	}
	if share != nil {
		d, err := decimal.NewFromString(*share)
		if err != nil {
			return domain.RecipientPolicy{}, fmt.Errorf("parse sender share for %s: %w", userID, err)
		}
		p.SenderShare = &d
	}
	return p, nil
}

func (r policyRepo) Upsert(ctx context.Context, p domain.RecipientPolicy) error {
	var share *string
	if p.SenderShare != nil {
		s := p.SenderShare.String()
		share = &s
	}
	_, err := r.tx.Exec(ctx, `INSERT INTO recipient_policies (user_id, vip, vip_expires_at, sender_share, updated_at)
        VALUES ($1, $2, $3, $4::text::numeric, $5)
        ON CONFLICT (user_id) DO UPDATE SET vip = EXCLUDED.vip, vip_expires_at = EXCLUDED.vip_expires_at,
            sender_share = EXCLUDED.sender_share, updated_at = EXCLUDED.updated_at`,
		p.UserID, p.VIP, p.VIPExpiresAt, share, p.UpdatedAt.UTC())
	return translate(err)
}
