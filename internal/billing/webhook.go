package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/polyrelay/go-translate-backend/internal/domain"
)

// ErrBadSignature indicates the delivery failed signature verification and
// must be rejected without processing.
var ErrBadSignature = errors.New("bad webhook signature")

// SubscriptionLookup resolves a subscription reference to processor state.
// Satisfied by *Gateway; tests substitute a stub.
type SubscriptionLookup interface {
	LookupSubscription(ctx context.Context, subscriptionRef string) (*SubscriptionInfo, error)
}

// WebhookParser verifies processor webhook deliveries and reduces the
// handled event kinds to domain billing events.
type WebhookParser struct {
	secret string
	lookup SubscriptionLookup
}

// NewWebhookParser builds a parser for the given signing secret.
func NewWebhookParser(secret string, lookup SubscriptionLookup) *WebhookParser {
	return &WebhookParser{secret: secret, lookup: lookup}
}

// invoicePayload is a minimal representation of a Stripe invoice event.
// The subscription reference moved under parent.subscription_details in
// current API versions; both shapes are read.
type invoicePayload struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (p invoicePayload) subscriptionRef() string {
	if p.Subscription != "" {
		return p.Subscription
	}
	return p.Parent.SubscriptionDetails.Subscription
}

// subscriptionPayload is a minimal representation of a Stripe subscription
// event.
type subscriptionPayload struct {
	ID       string            `json:"id"`
	Customer string            `json:"customer"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

// Parse verifies the signature and maps the delivery to a billing event.
// Event kinds outside the handled set return (nil, nil) and are
// acknowledged without side effects.
func (p *WebhookParser) Parse(ctx context.Context, payload []byte, sigHeader string) (*domain.BillingEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, p.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	switch event.Type {
	case "invoice.payment_succeeded":
		return p.fromInvoice(ctx, &event, domain.BillingEventPaymentSucceeded)
	case "invoice.payment_failed":
		return p.fromInvoice(ctx, &event, domain.BillingEventPaymentFailed)
	case "customer.subscription.deleted":
		var sub subscriptionPayload
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription payload: %w", err)
		}
		return &domain.BillingEvent{
			EventID:         event.ID,
			Kind:            domain.BillingEventSubscriptionDeleted,
			GroupID:         sub.Metadata[metadataGroupKey],
			CustomerRef:     sub.Customer,
			SubscriptionRef: sub.ID,
			Status:          sub.Status,
		}, nil
	default:
		log.Debug().Str("type", string(event.Type)).Str("event_id", event.ID).
			Msg("billing webhook ignored (unhandled type)")
		return nil, nil
	}
}

// fromInvoice builds a billing event from an invoice delivery. Invoices do
// not carry the group metadata themselves, so the referenced subscription
// is fetched to resolve the group and the current period bounds.
func (p *WebhookParser) fromInvoice(ctx context.Context, event *stripelib.Event, kind string) (*domain.BillingEvent, error) {
	var inv invoicePayload
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return nil, fmt.Errorf("decode invoice payload: %w", err)
	}

	ev := &domain.BillingEvent{
		EventID:         event.ID,
		Kind:            kind,
		CustomerRef:     inv.Customer,
		SubscriptionRef: inv.subscriptionRef(),
	}
	if ev.SubscriptionRef == "" {
		// One-off invoice with no subscription; nothing to route.
		return ev, nil
	}

	info, err := p.lookup.LookupSubscription(ctx, ev.SubscriptionRef)
	if err != nil {
		// The event stays unresolvable; the synchronizer logs and drops it.
		log.Warn().Err(err).Str("event_id", event.ID).
			Str("subscription_ref", ev.SubscriptionRef).
			Msg("billing webhook subscription lookup failed")
		return ev, nil
	}
	ev.GroupID = info.GroupID
	ev.Status = info.Status
	ev.CurrentPeriodStart = info.PeriodStart
	ev.CurrentPeriodEnd = info.PeriodEnd
	if info.CustomerRef != "" {
		ev.CustomerRef = info.CustomerRef
	}
	return ev, nil
}
