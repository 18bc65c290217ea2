package commission

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/escrowledger/internal/domain"
)

func flatSchedule(rate, share string) Schedule {
	return Schedule{
		Version: "test",
		Tiers: []Tier{
			{Name: "all", Min: 0, Rate: decimal.RequireFromString(rate), SenderShare: decimal.RequireFromString(share)},
		},
	}
}

func TestComputeSplitsBetweenSenderAndRecipient(t *testing.T) {
	now := time.Now()
	rec, err := Compute(2_000, domain.RecipientPolicy{UserID: "r"}, flatSchedule("0.10", "0.70"), now)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if rec.TotalCommission != 200 || rec.SenderCommission != 140 || rec.RecipientCommission != 60 {
		t.Fatalf("unexpected split: %+v", rec)
	}
	if rec.SenderPays != 2_140 || rec.RecipientGets != 1_940 {
		t.Fatalf("unexpected totals: pays=%d gets=%d", rec.SenderPays, rec.RecipientGets)
	}
	if rec.PlatformRevenue != rec.TotalCommission {
		t.Fatalf("platform revenue %d != total %d", rec.PlatformRevenue, rec.TotalCommission)
	}
}

func TestComputeVIPSenderBearsAll(t *testing.T) {
	now := time.Now()
	policy := domain.RecipientPolicy{UserID: "vip", VIP: true}
	rec, err := Compute(10_000, policy, flatSchedule("0.08", "0.50"), now)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if rec.SenderPays != 10_800 || rec.RecipientGets != 10_000 {
		t.Fatalf("unexpected VIP totals: %+v", rec)
	}
	if !rec.VIPApplied {
		t.Fatalf("expected vip flag")
	}
}

func TestComputeExpiredVIPFallsBackToTier(t *testing.T) {
	now := time.Now()
	expired := now.Add(-time.Hour)
	policy := domain.RecipientPolicy{UserID: "vip", VIP: true, VIPExpiresAt: &expired}
	rec, err := Compute(10_000, policy, flatSchedule("0.08", "0.50"), now)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if rec.VIPApplied || rec.SenderCommission != 400 || rec.RecipientCommission != 400 {
		t.Fatalf("expired vip should use tier share: %+v", rec)
	}
}

func TestComputeCustomShareOverridesTier(t *testing.T) {
	share := decimal.RequireFromString("0.25")
	policy := domain.RecipientPolicy{UserID: "r", SenderShare: &share}
	rec, err := Compute(2_000, policy, flatSchedule("0.10", "0.70"), time.Now())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if rec.SenderCommission != 50 || rec.RecipientCommission != 150 {
		t.Fatalf("override not applied: %+v", rec)
	}
}

func TestComputeRoundsHalfUp(t *testing.T) {
	// 25 * 0.10 = 2.5 -> 3; 3 * 0.5 = 1.5 -> 2; recipient takes the residual.
	rec, err := Compute(25, domain.RecipientPolicy{}, flatSchedule("0.10", "0.50"), time.Now())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if rec.TotalCommission != 3 || rec.SenderCommission != 2 || rec.RecipientCommission != 1 {
		t.Fatalf("unexpected rounding: %+v", rec)
	}
}

func TestComputeSelectsTierByAmount(t *testing.T) {
	s := DefaultSchedule()
	cases := []struct {
		amount int64
		tier   string
	}{
		{1, "small"},
		{2_999, "small"},
		{3_000, "medium"},
		{9_999, "medium"},
		{10_000, "large"},
		{5_000_000, "large"},
	}
	for _, tc := range cases {
		rec, err := Compute(tc.amount, domain.RecipientPolicy{}, s, time.Now())
		if err != nil {
			t.Fatalf("compute %d: %v", tc.amount, err)
		}
		if rec.Tier != tc.tier {
			t.Fatalf("amount %d: expected tier %s, got %s", tc.amount, tc.tier, rec.Tier)
		}
	}
}

func TestComputeRejectsNonPositiveAmount(t *testing.T) {
	if _, err := Compute(0, domain.RecipientPolicy{}, DefaultSchedule(), time.Now()); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMetadataRoundTripPreservesRecord(t *testing.T) {
	rec, err := Compute(2_000, domain.RecipientPolicy{}, flatSchedule("0.10", "0.70"), time.Now())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	back, err := FromMetadata(rec.Metadata())
	if err != nil {
		t.Fatalf("from metadata: %v", err)
	}
	if back != rec {
		t.Fatalf("record changed: %+v vs %+v", back, rec)
	}
}
