// Package services – SubscriptionService
//
// This file implements the webhook synchronizer for payment-processor
// events. The event id and the state it produces commit in one
// transaction, so the at-least-once delivery contract degrades to
// exactly-once application: a failed apply leaves the id unrecorded and
// the redelivery gets a clean retry. Events that cannot be mapped to a
// group are logged and dropped with only the id recorded; they are never
// retried because redelivery would carry the same missing mapping.
package services

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/polyrelay/go-translate-backend/internal/domain"
	"github.com/polyrelay/go-translate-backend/internal/lineapi"
	"github.com/polyrelay/go-translate-backend/internal/repo"
)

// Messenger sends outbound messages to the chat platform.
type Messenger interface {
	Reply(ctx context.Context, replyToken string, messages ...lineapi.Message) error
	Push(ctx context.Context, to string, messages ...lineapi.Message) error
}

// NoticeTranslator renders a canonical English notice into target languages.
type NoticeTranslator interface {
	TranslateNotice(ctx context.Context, baseText string, targets []string) (map[string]string, error)
}

// paymentConfirmedNotice is the canonical text pushed to a group after a
// successful payment, translated into the group's registered languages.
const paymentConfirmedNotice = "Payment confirmed. Translation is now active with the expanded quota. Thank you!"

// SubscriptionService applies payment-processor events to local
// subscription state.
type SubscriptionService struct {
	DB        *gorm.DB
	Messenger Messenger
	Notices   NoticeTranslator
}

// ApplyEvent applies one billing event. Replayed event ids return
// ErrEventReplayed and callers acknowledge without side effects; events
// with no group mapping return ErrUnresolvableEvent after being recorded,
// so redeliveries of the same broken event are absorbed too.
func (s *SubscriptionService) ApplyEvent(ctx context.Context, ev domain.BillingEvent) error {
	tr := otel.Tracer("services/SubscriptionService")
	ctx, span := tr.Start(ctx, "ApplyEvent",
		trace.WithAttributes(
			attribute.String("billing.event_id", ev.EventID),
			attribute.String("billing.kind", ev.Kind),
		),
	)
	defer span.End()

	if ev.GroupID == "" {
		// The mapping is missing on the event itself, so only the id is
		// recorded; a redelivery carries the same gap and reads as a replay.
		if err := repo.MarkEventProcessed(ctx, s.DB, ev.EventID, ev.Kind); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				log.Info().Str("event_id", ev.EventID).Msg("billing event replayed, skipping")
				return ErrEventReplayed
			}
			return err
		}
		log.Warn().Str("event_id", ev.EventID).Str("kind", ev.Kind).
			Str("subscription_ref", ev.SubscriptionRef).
			Msg("billing event has no group mapping, dropping")
		return ErrUnresolvableEvent
	}

	// The id record and the state it stands for commit together: a failed
	// apply rolls both back, so the processor's redelivery retries cleanly
	// instead of being absorbed as a replay.
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.MarkEventProcessed(ctx, tx, ev.EventID, ev.Kind); err != nil {
			return err
		}
		switch ev.Kind {
		case domain.BillingEventPaymentSucceeded:
			return s.applyPaymentSucceeded(ctx, tx, ev)
		case domain.BillingEventSubscriptionDeleted:
			return s.writeStatus(ctx, tx, ev, domain.SubStatusCanceled)
		case domain.BillingEventPaymentFailed:
			return s.writeStatus(ctx, tx, ev, domain.SubStatusPastDue)
		default:
			log.Info().Str("event_id", ev.EventID).Str("kind", ev.Kind).
				Msg("billing event kind ignored")
			return nil
		}
	})
	if errors.Is(err, repo.ErrDuplicate) {
		log.Info().Str("event_id", ev.EventID).Msg("billing event replayed, skipping")
		return ErrEventReplayed
	}
	if err != nil {
		return err
	}

	if ev.Kind == domain.BillingEventPaymentSucceeded {
		// After commit. A lost push costs one courtesy message, not state.
		s.pushConfirmation(ctx, ev.GroupID)
	}
	return nil
}

func (s *SubscriptionService) applyPaymentSucceeded(ctx context.Context, tx *gorm.DB, ev domain.BillingEvent) error {
	status := ev.Status
	if status != domain.SubStatusActive && status != domain.SubStatusTrialing {
		status = domain.SubStatusActive
	}
	if err := repo.UpsertSubscription(ctx, tx, &domain.Subscription{
		GroupID:            ev.GroupID,
		CustomerRef:        ev.CustomerRef,
		SubscriptionRef:    ev.SubscriptionRef,
		Status:             status,
		CurrentPeriodStart: ev.CurrentPeriodStart,
		CurrentPeriodEnd:   ev.CurrentPeriodEnd,
	}); err != nil {
		return err
	}

	// Payment lifts a quota suspension, so the switch goes back on.
	return repo.SetTranslationEnabled(ctx, tx, ev.GroupID, true)
}

func (s *SubscriptionService) writeStatus(ctx context.Context, tx *gorm.DB, ev domain.BillingEvent, status string) error {
	return repo.UpsertSubscription(ctx, tx, &domain.Subscription{
		GroupID:            ev.GroupID,
		CustomerRef:        ev.CustomerRef,
		SubscriptionRef:    ev.SubscriptionRef,
		Status:             status,
		CurrentPeriodStart: ev.CurrentPeriodStart,
		CurrentPeriodEnd:   ev.CurrentPeriodEnd,
	})
}

// pushConfirmation announces the payment in every registered language of
// the group. Delivery is best effort: the subscription state is already
// durable and a lost push costs one courtesy message, not correctness.
func (s *SubscriptionService) pushConfirmation(ctx context.Context, groupID string) {
	if s.Messenger == nil {
		return
	}
	lines := []string{paymentConfirmedNotice}
	langs, err := repo.ListGroupLanguages(ctx, s.DB, groupID)
	if err == nil && len(langs) > 0 && s.Notices != nil {
		targets := make([]string, 0, len(langs))
		for _, l := range langs {
			if l.LangCode != "en" {
				targets = append(targets, l.LangCode)
			}
		}
		if translated, terr := s.Notices.TranslateNotice(ctx, paymentConfirmedNotice, targets); terr == nil {
			for _, l := range langs {
				if text := translated[l.LangCode]; text != "" {
					lines = append(lines, text)
				}
			}
		} else {
			log.Warn().Err(terr).Str("group_id", groupID).Msg("confirmation notice translation failed")
		}
	}

	msg := lineapi.TextMessage(strings.Join(lines, "\n\n"))
	if err := s.Messenger.Push(ctx, groupID, msg); err != nil {
		log.Warn().Err(err).Str("group_id", groupID).Msg("payment confirmation push failed")
	}
}
