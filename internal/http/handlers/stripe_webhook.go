// Payment-processor webhook handler.
//
// Deliveries are verified and reduced to a domain billing event by the
// billing package, then applied through the subscription synchronizer. The
// status code drives the processor's retry behavior: 400 for rejected
// signatures (no retry fixes those), 200 for anything idempotently settled
// (applied, replayed, ignored, dropped), and 500 only for transient
// failures worth redelivering.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/polyrelay/go-translate-backend/internal/billing"
	"github.com/polyrelay/go-translate-backend/internal/domain"
	"github.com/polyrelay/go-translate-backend/internal/http/middleware"
	"github.com/polyrelay/go-translate-backend/internal/services"
)

// BillingParser verifies and decodes a processor delivery. Satisfied by
// *billing.WebhookParser.
type BillingParser interface {
	Parse(ctx context.Context, payload []byte, sigHeader string) (*domain.BillingEvent, error)
}

// SubscriptionApplier applies a billing event to local subscription state.
// Satisfied by *services.SubscriptionService.
type SubscriptionApplier interface {
	ApplyEvent(ctx context.Context, ev domain.BillingEvent) error
}

// BillingWebhook handles POST deliveries from the payment processor.
type BillingWebhook struct {
	Parser BillingParser
	Subs   SubscriptionApplier
}

// NewBillingWebhook constructs the handler.
func NewBillingWebhook(parser BillingParser, subs SubscriptionApplier) *BillingWebhook {
	return &BillingWebhook{Parser: parser, Subs: subs}
}

// Handle verifies, decodes, and applies one delivery.
func (h *BillingWebhook) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable request body")
		return
	}

	ctx := c.Request.Context()
	ev, err := h.Parser.Parse(ctx, body, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, billing.ErrBadSignature) {
			middleware.WebhookEvents.WithLabelValues("billing", "delivery", "bad_signature").Inc()
			fail(c, http.StatusBadRequest, ErrCodeBadSignature, "signature verification failed")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "malformed webhook payload")
		return
	}
	if ev == nil {
		// Verified but unhandled event type.
		middleware.WebhookEvents.WithLabelValues("billing", "other", "ignored").Inc()
		ok(c, http.StatusOK, gin.H{"received": true})
		return
	}

	switch err := h.Subs.ApplyEvent(ctx, *ev); {
	case err == nil:
		middleware.WebhookEvents.WithLabelValues("billing", ev.Kind, "ok").Inc()
	case errors.Is(err, services.ErrEventReplayed):
		middleware.WebhookEvents.WithLabelValues("billing", ev.Kind, "replayed").Inc()
	case errors.Is(err, services.ErrUnresolvableEvent):
		middleware.WebhookEvents.WithLabelValues("billing", ev.Kind, "dropped").Inc()
	default:
		middleware.WebhookEvents.WithLabelValues("billing", ev.Kind, "error").Inc()
		middleware.LoggerFrom(c).Error().Err(err).
			Str("event_id", ev.EventID).
			Str("kind", ev.Kind).
			Msg("billing event apply failed")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "event processing failed")
		return
	}

	ok(c, http.StatusOK, gin.H{"received": true})
}
