// Package commission computes fee splits for transfers and escrow payouts.
// Compute is pure; the Service wraps it with policy lookups.
package commission

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/escrowledger/internal/domain"
)

// Record is the computed fee breakdown for one amount, in minor units.
type Record struct {
	BaseAmount          int64
	TotalCommission     int64
	SenderCommission    int64
	RecipientCommission int64
	PlatformRevenue     int64
	Tier                string
	ScheduleVersion     string
	SenderPays          int64
	RecipientGets       int64
	VIPApplied          bool
}

// None is the zero-fee record for amount.
func None(amount int64) Record {
	return Record{BaseAmount: amount, SenderPays: amount, RecipientGets: amount}
}

// Compute selects the tier for amount and splits its commission between sender
// and recipient. An active VIP policy moves the whole fee to the sender; a custom
// sender share replaces the tier share. Amounts are rounded half up to the minor
// unit and the recipient share takes the residual so the parts always add up.
func Compute(amount int64, policy domain.RecipientPolicy, schedule Schedule, now time.Time) (Record, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return Record{}, err
	}
	tier, ok := schedule.Find(amount)
	if !ok {
		return Record{}, fmt.Errorf("no commission tier for amount %d: %w", amount, domain.ErrValidation)
	}

	share := tier.SenderShare
	vip := policy.VIPActive(now)
	switch {
	case vip:
		share = one
	case policy.SenderShare != nil:
		share = *policy.SenderShare
	}

	total := decimal.NewFromInt(amount).Mul(tier.Rate).Round(0)
	sender := total.Mul(share).Round(0)
	recipient := total.Sub(sender)

	rec := Record{
		BaseAmount:          amount,
		TotalCommission:     total.IntPart(),
		SenderCommission:    sender.IntPart(),
		RecipientCommission: recipient.IntPart(),
		Tier:                tier.Name,
		ScheduleVersion:     schedule.Version,
		VIPApplied:          vip,
	}
	rec.PlatformRevenue = rec.TotalCommission
	rec.SenderPays = amount + rec.SenderCommission
	rec.RecipientGets = amount - rec.RecipientCommission
	return rec, nil
}

const (
	mdBase      = "commission.base_amount"
	mdTotal     = "commission.total"
	mdSender    = "commission.sender"
	mdRecipient = "commission.recipient"
	mdTier      = "commission.tier"
	mdVersion   = "commission.schedule_version"
	mdVIP       = "commission.vip"
)

// Metadata flattens the record for storage on a ledger entry.
func (r Record) Metadata() map[string]string {
	return map[string]string{
		mdBase:      strconv.FormatInt(r.BaseAmount, 10),
		mdTotal:     strconv.FormatInt(r.TotalCommission, 10),
		mdSender:    strconv.FormatInt(r.SenderCommission, 10),
		mdRecipient: strconv.FormatInt(r.RecipientCommission, 10),
		mdTier:      r.Tier,
		mdVersion:   r.ScheduleVersion,
		mdVIP:       strconv.FormatBool(r.VIPApplied),
	}
}

// FromMetadata rebuilds a record logged with Metadata.
func FromMetadata(md map[string]string) (Record, error) {
	var (
		r   Record
		err error
	)
	ints := []struct {
		key string
		dst *int64
	}{
		{mdBase, &r.BaseAmount},
		{mdTotal, &r.TotalCommission},
		{mdSender, &r.SenderCommission},
		{mdRecipient, &r.RecipientCommission},
	}
	for _, f := range ints {
		if *f.dst, err = strconv.ParseInt(md[f.key], 10, 64); err != nil {
			return Record{}, fmt.Errorf("commission metadata %s: %w", f.key, err)
		}
	}
	r.Tier = md[mdTier]
	r.ScheduleVersion = md[mdVersion]
	r.VIPApplied, _ = strconv.ParseBool(md[mdVIP])
	r.PlatformRevenue = r.TotalCommission
	r.SenderPays = r.BaseAmount + r.SenderCommission
	r.RecipientGets = r.BaseAmount - r.RecipientCommission
	return r, nil
}
