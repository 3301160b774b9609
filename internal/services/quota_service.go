// Package services – QuotaService
//
// This file implements the metered-usage ledger: plan resolution, billing
// period derivation, the read-only admission check, and the post-success
// commit. The check and the commit are deliberately separate so a failed
// translation never consumes quota; under concurrency this admits brief
// overshoot of at most the number of in-flight deliveries, which is the
// accepted trade-off.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/polyrelay/go-translate-backend/internal/domain"
	"github.com/polyrelay/go-translate-backend/internal/repo"
)

// fallbackPeriodSpan approximates one billing cycle when the processor sent
// only the period end.
const fallbackPeriodSpan = 31 * 24 * time.Hour

// QuotaDecision is the outcome of an admission check.
type QuotaDecision struct {
	Allowed   bool
	Plan      string // PlanFree or PlanPro
	PeriodKey string
	Used      int64
	Limit     int64
}

// QuotaService gates translations on the per-period usage counter. All
// state lives in the database; the service itself is stateless.
type QuotaService struct {
	DB        *gorm.DB
	FreeLimit int64
	ProLimit  int64

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func (s *QuotaService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// PeriodKeyFor derives the billing-period key for a group. Paid groups key
// on the subscription's current period start date, so the counter resets
// exactly when the processor rolls the period. Free groups key on the
// calendar month in UTC.
func (s *QuotaService) PeriodKeyFor(ctx context.Context, groupID string) (plan, periodKey string, err error) {
	sub, err := repo.GetSubscription(ctx, s.DB, groupID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return "", "", err
	}
	if sub.Paid() {
		switch {
		case sub.CurrentPeriodStart != nil:
			return domain.PlanPro, sub.CurrentPeriodStart.UTC().Format("2006-01-02"), nil
		case sub.CurrentPeriodEnd != nil:
			start := sub.CurrentPeriodEnd.Add(-fallbackPeriodSpan)
			return domain.PlanPro, start.UTC().Format("2006-01-02"), nil
		default:
			return domain.PlanPro, s.now().UTC().Format("2006-01"), nil
		}
	}
	return domain.PlanFree, s.now().UTC().Format("2006-01"), nil
}

// CheckAndReserve decides whether one more translation is admitted. It is
// read-only: quota is consumed by Commit only after the translated reply
// was actually delivered. Ledger errors fail closed.
func (s *QuotaService) CheckAndReserve(ctx context.Context, groupID string) (*QuotaDecision, error) {
	tr := otel.Tracer("services/QuotaService")
	ctx, span := tr.Start(ctx, "CheckAndReserve",
		trace.WithAttributes(attribute.String("group.id", groupID)),
	)
	defer span.End()

	plan, periodKey, err := s.PeriodKeyFor(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("resolve period: %w", err)
	}

	uc, err := repo.GetUsage(ctx, s.DB, groupID, periodKey)
	if err != nil {
		return nil, fmt.Errorf("read usage: %w", err)
	}

	limit := s.FreeLimit
	if plan == domain.PlanPro {
		limit = s.ProLimit
	}

	dec := &QuotaDecision{
		Plan:      plan,
		PeriodKey: periodKey,
		Used:      uc.TranslationCount,
		Limit:     limit,
	}
	dec.Allowed = uc.TranslationCount < limit
	span.SetAttributes(
		attribute.String("quota.plan", plan),
		attribute.Bool("quota.allowed", dec.Allowed),
		attribute.Int64("quota.used", dec.Used),
	)
	return dec, nil
}

// Commit consumes one unit of quota. Called only after the translated
// reply has been handed to the messaging API, so delivery failures leave
// the counter untouched.
func (s *QuotaService) Commit(ctx context.Context, groupID, periodKey string) error {
	tr := otel.Tracer("services/QuotaService")
	ctx, span := tr.Start(ctx, "Commit",
		trace.WithAttributes(
			attribute.String("group.id", groupID),
			attribute.String("quota.period", periodKey),
		),
	)
	defer span.End()

	return repo.IncrementUsage(ctx, s.DB, groupID, periodKey)
}

// MarkNoticeSent records that the quota-exceeded notice for the plan went
// out this period, returning true only for the caller that should actually
// send it.
func (s *QuotaService) MarkNoticeSent(ctx context.Context, groupID, periodKey, plan string) (bool, error) {
	return repo.MarkNoticeSent(ctx, s.DB, groupID, periodKey, plan)
}
