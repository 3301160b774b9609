package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/polyrelay/go-translate-backend/internal/domain"
	"github.com/polyrelay/go-translate-backend/internal/repo"
)

func paymentEvent(id, group string) domain.BillingEvent {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	return domain.BillingEvent{
		EventID:            id,
		Kind:               domain.BillingEventPaymentSucceeded,
		GroupID:            group,
		CustomerRef:        "cus_1",
		SubscriptionRef:    "sub_1",
		Status:             domain.SubStatusActive,
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
	}
}

func TestApplyEventPaymentSucceeded(t *testing.T) {
	db := newTestDB(t)
	seedGroup(t, db, "G1",
		domain.LanguageChoice{Code: "en", Name: "English"},
		domain.LanguageChoice{Code: "ja", Name: "Japanese"},
	)
	// Simulate a quota-suspended group.
	if err := repo.SetTranslationEnabled(context.Background(), db, "G1", false); err != nil {
		t.Fatalf("disable group: %v", err)
	}

	messenger := &fakeMessenger{}
	s := &SubscriptionService{DB: db, Messenger: messenger, Notices: &fakeNotices{}}
	ctx := context.Background()

	if err := s.ApplyEvent(ctx, paymentEvent("evt_1", "G1")); err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}

	sub, err := repo.GetSubscription(ctx, db, "G1")
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if sub.Status != domain.SubStatusActive || sub.SubscriptionRef != "sub_1" {
		t.Errorf("unexpected subscription: %+v", sub)
	}
	if sub.CurrentPeriodStart == nil {
		t.Error("period start should be stored")
	}

	enabled, _ := repo.IsTranslationEnabled(ctx, db, "G1")
	if !enabled {
		t.Error("payment should re-enable translation")
	}

	if len(messenger.pushes) != 1 {
		t.Fatalf("got %d pushes, want the confirmation", len(messenger.pushes))
	}
	text := messenger.pushes[0].Messages[0].Text
	if !strings.Contains(text, "Payment confirmed") || !strings.Contains(text, "[ja]") {
		t.Errorf("confirmation should be multilingual: %q", text)
	}
}

func TestApplyEventReplayIsAbsorbed(t *testing.T) {
	db := newTestDB(t)
	messenger := &fakeMessenger{}
	s := &SubscriptionService{DB: db, Messenger: messenger, Notices: &fakeNotices{}}
	ctx := context.Background()

	if err := s.ApplyEvent(ctx, paymentEvent("evt_1", "G1")); err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}
	err := s.ApplyEvent(ctx, paymentEvent("evt_1", "G1"))
	if !errors.Is(err, ErrEventReplayed) {
		t.Fatalf("err = %v, want ErrEventReplayed", err)
	}
	if len(messenger.pushes) != 1 {
		t.Errorf("replay must not push again, got %d pushes", len(messenger.pushes))
	}
}

func TestApplyEventFailureLeavesEventRetryable(t *testing.T) {
	db := newTestDB(t)
	seedGroup(t, db, "G1", domain.LanguageChoice{Code: "en", Name: "English"})
	if err := repo.SetTranslationEnabled(context.Background(), db, "G1", false); err != nil {
		t.Fatalf("disable group: %v", err)
	}

	messenger := &fakeMessenger{}
	s := &SubscriptionService{DB: db, Messenger: messenger, Notices: &fakeNotices{}}
	ctx := context.Background()

	// Break the apply mid-flight; the event id must roll back with it.
	if err := db.Migrator().DropTable(&domain.Subscription{}); err != nil {
		t.Fatalf("drop table: %v", err)
	}
	err := s.ApplyEvent(ctx, paymentEvent("evt_1", "G1"))
	if err == nil {
		t.Fatal("expected the apply to fail")
	}
	if errors.Is(err, ErrEventReplayed) || errors.Is(err, ErrUnresolvableEvent) {
		t.Fatalf("a transient failure must surface as retryable, got %v", err)
	}

	// The processor redelivers the same event id; it must apply cleanly
	// instead of being absorbed as a replay of work that never happened.
	if err := db.AutoMigrate(&domain.Subscription{}); err != nil {
		t.Fatalf("restore table: %v", err)
	}
	if err := s.ApplyEvent(ctx, paymentEvent("evt_1", "G1")); err != nil {
		t.Fatalf("redelivery after failure: %v", err)
	}

	sub, err := repo.GetSubscription(ctx, db, "G1")
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if sub.Status != domain.SubStatusActive {
		t.Errorf("status = %q, want active", sub.Status)
	}
	enabled, _ := repo.IsTranslationEnabled(ctx, db, "G1")
	if !enabled {
		t.Error("redelivered payment should re-enable translation")
	}
	if len(messenger.pushes) != 1 {
		t.Errorf("got %d pushes, want one confirmation", len(messenger.pushes))
	}
}

func TestApplyEventSubscriptionDeleted(t *testing.T) {
	db := newTestDB(t)
	s := &SubscriptionService{DB: db}
	ctx := context.Background()

	if err := s.ApplyEvent(ctx, paymentEvent("evt_1", "G1")); err != nil {
		t.Fatalf("seed via payment: %v", err)
	}
	if err := s.ApplyEvent(ctx, domain.BillingEvent{
		EventID:         "evt_2",
		Kind:            domain.BillingEventSubscriptionDeleted,
		GroupID:         "G1",
		CustomerRef:     "cus_1",
		SubscriptionRef: "sub_1",
	}); err != nil {
		t.Fatalf("ApplyEvent deleted: %v", err)
	}

	sub, _ := repo.GetSubscription(ctx, db, "G1")
	if sub.Status != domain.SubStatusCanceled {
		t.Errorf("status = %q, want canceled", sub.Status)
	}
	if sub.Paid() {
		t.Error("canceled subscription must not count as paid")
	}
}

func TestApplyEventPaymentFailed(t *testing.T) {
	db := newTestDB(t)
	s := &SubscriptionService{DB: db}
	ctx := context.Background()

	if err := s.ApplyEvent(ctx, paymentEvent("evt_1", "G1")); err != nil {
		t.Fatalf("seed via payment: %v", err)
	}
	if err := s.ApplyEvent(ctx, domain.BillingEvent{
		EventID:         "evt_2",
		Kind:            domain.BillingEventPaymentFailed,
		GroupID:         "G1",
		CustomerRef:     "cus_1",
		SubscriptionRef: "sub_1",
	}); err != nil {
		t.Fatalf("ApplyEvent failed payment: %v", err)
	}

	sub, _ := repo.GetSubscription(ctx, db, "G1")
	if sub.Status != domain.SubStatusPastDue {
		t.Errorf("status = %q, want past_due", sub.Status)
	}
	if sub.Paid() {
		t.Error("past_due subscription must not count as paid")
	}
}

func TestApplyEventUnresolvableIsDropped(t *testing.T) {
	db := newTestDB(t)
	s := &SubscriptionService{DB: db}
	ctx := context.Background()

	ev := paymentEvent("evt_orphan", "")
	err := s.ApplyEvent(ctx, ev)
	if !errors.Is(err, ErrUnresolvableEvent) {
		t.Fatalf("err = %v, want ErrUnresolvableEvent", err)
	}

	// Redelivery of the same broken event reads as a replay, not a retry.
	err = s.ApplyEvent(ctx, ev)
	if !errors.Is(err, ErrEventReplayed) {
		t.Fatalf("redelivery err = %v, want ErrEventReplayed", err)
	}
}

func TestApplyEventPushFailureDoesNotFailEvent(t *testing.T) {
	db := newTestDB(t)
	seedGroup(t, db, "G1", domain.LanguageChoice{Code: "en", Name: "English"})
	messenger := &fakeMessenger{err: errors.New("push quota exhausted")}
	s := &SubscriptionService{DB: db, Messenger: messenger, Notices: &fakeNotices{}}

	if err := s.ApplyEvent(context.Background(), paymentEvent("evt_1", "G1")); err != nil {
		t.Fatalf("push failure must not fail the event: %v", err)
	}
	sub, _ := repo.GetSubscription(context.Background(), db, "G1")
	if sub.Status != domain.SubStatusActive {
		t.Errorf("subscription state must still be applied, got %q", sub.Status)
	}
}
