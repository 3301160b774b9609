package services

import (
	"context"
	"testing"
	"time"

	"github.com/polyrelay/go-translate-backend/internal/domain"
	"github.com/polyrelay/go-translate-backend/internal/repo"
)

func fixedNow() time.Time {
	return time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
}

func newQuotaService(t *testing.T) *QuotaService {
	t.Helper()
	return &QuotaService{
		DB:        newTestDB(t),
		FreeLimit: 3,
		ProLimit:  10,
		Now:       fixedNow,
	}
}

func TestPeriodKeyForFreeGroup(t *testing.T) {
	s := newQuotaService(t)

	plan, key, err := s.PeriodKeyFor(context.Background(), "G1")
	if err != nil {
		t.Fatalf("PeriodKeyFor: %v", err)
	}
	if plan != domain.PlanFree {
		t.Errorf("plan = %q, want free", plan)
	}
	if key != "2026-08" {
		t.Errorf("key = %q, want 2026-08", key)
	}
}

func TestPeriodKeyForPaidGroup(t *testing.T) {
	s := newQuotaService(t)
	ctx := context.Background()
	start := time.Date(2026, 8, 3, 9, 30, 0, 0, time.UTC)

	if err := repo.UpsertSubscription(ctx, s.DB, &domain.Subscription{
		GroupID:            "G1",
		CustomerRef:        "cus_1",
		SubscriptionRef:    "sub_1",
		Status:             domain.SubStatusActive,
		CurrentPeriodStart: &start,
	}); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}

	plan, key, err := s.PeriodKeyFor(ctx, "G1")
	if err != nil {
		t.Fatalf("PeriodKeyFor: %v", err)
	}
	if plan != domain.PlanPro {
		t.Errorf("plan = %q, want pro", plan)
	}
	if key != "2026-08-03" {
		t.Errorf("key = %q, want 2026-08-03", key)
	}
}

func TestPeriodKeyForPaidGroupFallbackFromEnd(t *testing.T) {
	s := newQuotaService(t)
	ctx := context.Background()
	end := time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC)

	if err := repo.UpsertSubscription(ctx, s.DB, &domain.Subscription{
		GroupID:          "G1",
		CustomerRef:      "cus_1",
		SubscriptionRef:  "sub_1",
		Status:           domain.SubStatusTrialing,
		CurrentPeriodEnd: &end,
	}); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}

	plan, key, err := s.PeriodKeyFor(ctx, "G1")
	if err != nil {
		t.Fatalf("PeriodKeyFor: %v", err)
	}
	if plan != domain.PlanPro {
		t.Errorf("plan = %q, want pro", plan)
	}
	if key != "2026-08-03" {
		t.Errorf("key = %q, want 2026-08-03 (end minus 31 days)", key)
	}
}

func TestPeriodKeyForLapsedSubscriptionIsFree(t *testing.T) {
	s := newQuotaService(t)
	ctx := context.Background()

	if err := repo.UpsertSubscription(ctx, s.DB, &domain.Subscription{
		GroupID:         "G1",
		CustomerRef:     "cus_1",
		SubscriptionRef: "sub_1",
		Status:          domain.SubStatusPastDue,
	}); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}

	plan, key, err := s.PeriodKeyFor(ctx, "G1")
	if err != nil {
		t.Fatalf("PeriodKeyFor: %v", err)
	}
	if plan != domain.PlanFree || key != "2026-08" {
		t.Errorf("plan=%q key=%q, want free 2026-08", plan, key)
	}
}

func TestCheckAndReserveEnforcesLimit(t *testing.T) {
	s := newQuotaService(t)
	ctx := context.Background()

	for i := 0; i < int(s.FreeLimit); i++ {
		dec, err := s.CheckAndReserve(ctx, "G1")
		if err != nil {
			t.Fatalf("CheckAndReserve #%d: %v", i, err)
		}
		if !dec.Allowed {
			t.Fatalf("check #%d should be allowed (used %d of %d)", i, dec.Used, dec.Limit)
		}
		if err := s.Commit(ctx, "G1", dec.PeriodKey); err != nil {
			t.Fatalf("Commit #%d: %v", i, err)
		}
	}

	dec, err := s.CheckAndReserve(ctx, "G1")
	if err != nil {
		t.Fatalf("CheckAndReserve over limit: %v", err)
	}
	if dec.Allowed {
		t.Errorf("check beyond limit should be denied, used=%d limit=%d", dec.Used, dec.Limit)
	}
	if dec.Plan != domain.PlanFree {
		t.Errorf("plan = %q, want free", dec.Plan)
	}
}

func TestCheckAndReserveIsReadOnly(t *testing.T) {
	s := newQuotaService(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		dec, err := s.CheckAndReserve(ctx, "G1")
		if err != nil {
			t.Fatalf("CheckAndReserve: %v", err)
		}
		if !dec.Allowed {
			t.Fatal("repeated checks without commit must stay allowed")
		}
		if dec.Used != 0 {
			t.Fatalf("Used = %d, want 0 (check must not consume)", dec.Used)
		}
	}
}

func TestCommitCountsArePerPeriod(t *testing.T) {
	s := newQuotaService(t)
	ctx := context.Background()

	if err := s.Commit(ctx, "G1", "2026-07"); err != nil {
		t.Fatalf("Commit old period: %v", err)
	}

	dec, err := s.CheckAndReserve(ctx, "G1")
	if err != nil {
		t.Fatalf("CheckAndReserve: %v", err)
	}
	if dec.Used != 0 {
		t.Errorf("Used = %d, want 0 (old period must not bleed in)", dec.Used)
	}
}

func TestMarkNoticeSentOnlyOnce(t *testing.T) {
	s := newQuotaService(t)
	ctx := context.Background()

	first, err := s.MarkNoticeSent(ctx, "G1", "2026-08", domain.PlanFree)
	if err != nil {
		t.Fatalf("MarkNoticeSent: %v", err)
	}
	if !first {
		t.Fatal("first mark should report first=true")
	}

	again, err := s.MarkNoticeSent(ctx, "G1", "2026-08", domain.PlanFree)
	if err != nil {
		t.Fatalf("MarkNoticeSent repeat: %v", err)
	}
	if again {
		t.Error("repeat mark should report first=false")
	}

	// A different plan tier in the same period may notify once more, which
	// covers the free-to-pro upgrade mid-period.
	pro, err := s.MarkNoticeSent(ctx, "G1", "2026-08", domain.PlanPro)
	if err != nil {
		t.Fatalf("MarkNoticeSent pro: %v", err)
	}
	if !pro {
		t.Error("plan change should allow one more notice")
	}
}
