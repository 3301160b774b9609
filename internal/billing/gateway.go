// Package billing is the payment-processor boundary. It wraps the Stripe
// SDK behind a small gateway (subscription lookup, checkout links) and
// translates verified webhook deliveries into domain billing events.
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// metadataGroupKey is the subscription metadata key carrying the chat group
// a subscription pays for. Set at checkout, read back on webhook events.
const metadataGroupKey = "group_id"

// SubscriptionInfo is the slice of processor subscription state the
// synchronizer consumes.
type SubscriptionInfo struct {
	GroupID     string
	CustomerRef string
	Status      string
	PeriodStart *time.Time
	PeriodEnd   *time.Time
}

// Gateway issues outbound calls to the payment processor.
type Gateway struct {
	api     *client.API
	priceID string
	siteURL string // landing pages for checkout redirects
}

// NewGateway builds a gateway around the processor SDK.
func NewGateway(secretKey, priceID, siteURL string) *Gateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &Gateway{api: api, priceID: priceID, siteURL: siteURL}
}

// LookupSubscription fetches a subscription and reduces it to the fields
// the synchronizer needs. The billing period lives on the subscription
// item in current API versions.
func (g *Gateway) LookupSubscription(ctx context.Context, subscriptionRef string) (*SubscriptionInfo, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := g.api.Subscriptions.Get(subscriptionRef, params)
	if err != nil {
		return nil, fmt.Errorf("fetch subscription %s: %w", subscriptionRef, err)
	}

	info := &SubscriptionInfo{
		GroupID: sub.Metadata[metadataGroupKey],
		Status:  string(sub.Status),
	}
	if sub.Customer != nil {
		info.CustomerRef = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.CurrentPeriodStart > 0 {
			t := time.Unix(item.CurrentPeriodStart, 0).UTC()
			info.PeriodStart = &t
		}
		if item.CurrentPeriodEnd > 0 {
			t := time.Unix(item.CurrentPeriodEnd, 0).UTC()
			info.PeriodEnd = &t
		}
	}
	return info, nil
}

// CheckoutURL creates a subscription checkout session bound to a group and
// returns its hosted payment page. The group id travels in the
// subscription metadata so webhook events can be routed back.
func (g *Gateway) CheckoutURL(ctx context.Context, groupID string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(g.priceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(g.siteURL + "/checkout/success"),
		CancelURL:  stripe.String(g.siteURL + "/checkout/cancel"),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{metadataGroupKey: groupID},
		},
		Metadata: map[string]string{metadataGroupKey: groupID},
	}
	params.Context = ctx

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}
