// Package domain defines the core models shared across the repository and
// service layers. This file holds the inbound event types produced by the
// two webhook boundaries (chat platform and payment processor) after
// transport-level parsing.
package domain

import "time"

// Chat platform event types.
const (
	EventTypeMessage      = "message"
	EventTypePostback     = "postback"
	EventTypeFollow       = "follow"
	EventTypeJoin         = "join"
	EventTypeMemberJoined = "memberJoined"
	EventTypeLeave        = "leave"
)

// Sender source types on the chat platform.
const (
	SourceGroup = "group"
	SourceRoom  = "room"
	SourceUser  = "user"
)

// InboundEvent is one parsed chat-platform webhook event. Exactly one of
// Text (message) or PostbackData (postback) is meaningful, selected by Type.
type InboundEvent struct {
	Type         string
	ReplyToken   string
	GroupID      string
	UserID       string
	SourceType   string
	Text         string
	PostbackData string
	Timestamp    time.Time
}

// IsGroupScoped reports whether the event happened inside a group or room
// conversation, as opposed to a 1:1 chat with the bot.
func (e InboundEvent) IsGroupScoped() bool {
	return e.GroupID != "" && (e.SourceType == SourceGroup || e.SourceType == SourceRoom)
}

// Payment-processor event kinds the synchronizer handles. Other kinds are
// acknowledged and ignored.
const (
	BillingEventPaymentSucceeded    = "payment_succeeded"
	BillingEventPaymentFailed       = "payment_failed"
	BillingEventSubscriptionDeleted = "subscription_deleted"
)

// BillingEvent is one payment-processor webhook event reduced to the fields
// the synchronizer needs. EventID is the provider-assigned unique id used
// as the idempotency key; GroupID is resolved from subscription metadata by
// the transport layer and may be empty when the mapping is missing.
type BillingEvent struct {
	EventID            string
	Kind               string
	GroupID            string
	CustomerRef        string
	SubscriptionRef    string
	Status             string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
}
