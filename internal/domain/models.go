// Package domain defines the persistence models for group translation
// state: language registrations, usage counters, subscriptions, pending
// language confirmations, and the context-message log. These types are
// mapped with GORM and form the core data layer of the application.
package domain

import "time"

// Subscription status values as reported by the payment processor.
// Transitions happen only through the webhook synchronizer.
const (
	SubStatusActive            = "active"
	SubStatusTrialing          = "trialing"
	SubStatusPastDue           = "past_due"
	SubStatusCanceled          = "canceled"
	SubStatusUnpaid            = "unpaid"
	SubStatusIncomplete        = "incomplete"
	SubStatusIncompleteExpired = "incomplete_expired"
)

// Plan tiers used for quota gating and notice bookkeeping.
const (
	PlanFree = "free"
	PlanPro  = "pro"

	// NoticePlanNone marks a usage counter for which no quota notice has
	// been sent this period.
	NoticePlanNone = "none"
)

// PendingConfirmation states. Confirmed and Canceled are terminal.
const (
	ConfirmationPrompted  = "prompted"
	ConfirmationConfirmed = "confirmed"
	ConfirmationCanceled  = "canceled"
)

// GroupSettings holds per-group switches. A group exists implicitly once
// first referenced; it is never deleted, only disabled.
//
// TranslationEnabled gates the translation pipeline: it is switched off
// while a language confirmation is pending, when the free quota is
// exhausted, or when the user pauses the bot, and switched back on by a
// confirmed language set, a successful payment, or an explicit resume.
type GroupSettings struct {
	GroupID            string    `json:"group_id" gorm:"type:varchar(64);primaryKey"`
	TranslationEnabled bool      `json:"translation_enabled" gorm:"not null;default:false"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TableName returns the database table name for GroupSettings.
func (GroupSettings) TableName() string { return "group_settings" }

// GroupLanguage is one registered target language for a group.
//
// Position preserves registration order, which also fixes the ordering of
// translated lines in replies. The set size is bounded by configuration
// (default 5) and (group_id, lang_code) is unique.
type GroupLanguage struct {
	ID        uint      `json:"-"         gorm:"primaryKey;autoIncrement"`
	GroupID   string    `json:"group_id"  gorm:"type:varchar(64);not null;uniqueIndex:ux_group_lang,priority:1"`
	LangCode  string    `json:"lang_code" gorm:"type:varchar(16);not null;uniqueIndex:ux_group_lang,priority:2"`
	LangName  string    `json:"lang_name" gorm:"type:varchar(64);not null"`
	Position  int       `json:"position"  gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for GroupLanguage.
func (GroupLanguage) TableName() string { return "group_languages" }

// UsageCounter tracks translation volume for one billing period.
//
// Invariants:
//   - exactly one row per (group_id, period_key), enforced by unique index;
//   - TranslationCount is monotonically non-decreasing within a period and
//     is only ever advanced by an atomic upsert increment;
//   - NoticePlan records the plan tier for which the quota-exceeded notice
//     was already sent this period, so the notice goes out at most once.
type UsageCounter struct {
	ID               uint      `json:"-"                 gorm:"primaryKey;autoIncrement"`
	GroupID          string    `json:"group_id"          gorm:"type:varchar(64);not null;uniqueIndex:ux_usage_period,priority:1"`
	PeriodKey        string    `json:"period_key"        gorm:"type:varchar(16);not null;uniqueIndex:ux_usage_period,priority:2"`
	TranslationCount int64     `json:"translation_count" gorm:"not null;default:0"`
	NoticePlan       string    `json:"notice_plan"       gorm:"type:varchar(8);not null;default:'none'"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName returns the database table name for UsageCounter.
func (UsageCounter) TableName() string { return "usage_counters" }

// Subscription is the payment-processor-derived billing state of a group.
// Status transitions only via the webhook synchronizer; SubscriptionRef is
// unique across groups so a processor event resolves to exactly one group.
type Subscription struct {
	GroupID            string     `json:"group_id"             gorm:"type:varchar(64);primaryKey"`
	CustomerRef        string     `json:"customer_ref"         gorm:"type:varchar(64);not null"`
	SubscriptionRef    string     `json:"subscription_ref"     gorm:"type:varchar(64);not null;uniqueIndex"`
	Status             string     `json:"status"               gorm:"type:varchar(32);not null"`
	CurrentPeriodStart *time.Time `json:"current_period_start"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Subscription.
func (Subscription) TableName() string { return "subscriptions" }

// Paid reports whether the subscription currently entitles the group to the
// pro quota.
func (s *Subscription) Paid() bool {
	if s == nil {
		return false
	}
	return s.Status == SubStatusActive || s.Status == SubStatusTrialing
}

// PendingConfirmation is an in-flight language-settings confirmation.
//
// Token is a single-use opaque identifier carried by the interactive
// prompt's postback actions. The prompted→confirmed and prompted→canceled
// transitions are conditional updates that only the first writer wins, so
// duplicate postbacks (redelivery, double taps) are absorbed silently.
type PendingConfirmation struct {
	Token      string     `json:"token"      gorm:"type:char(36);primaryKey"`
	GroupID    string     `json:"group_id"   gorm:"type:varchar(64);not null;index"`
	UserID     string     `json:"user_id"    gorm:"type:varchar(64);not null"`
	Languages  string     `json:"languages"  gorm:"type:text;not null"` // JSON-encoded []LanguageChoice
	State      string     `json:"state"      gorm:"type:varchar(16);not null;default:'prompted'"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at"`
}

// TableName returns the database table name for PendingConfirmation.
func (PendingConfirmation) TableName() string { return "pending_confirmations" }

// ContextMessage is one recent chat message kept for translation context.
// Rows are append-only: written once per inbound message (and once per bot
// reply, flagged FromBot so the pipeline can exclude it from context).
type ContextMessage struct {
	ID         uint      `json:"-"           gorm:"primaryKey;autoIncrement"`
	GroupID    string    `json:"group_id"    gorm:"type:varchar(64);not null;index:idx_group_msgs,priority:1"`
	UserID     string    `json:"user_id"     gorm:"type:varchar(64);not null"`
	SenderName string    `json:"sender_name" gorm:"type:varchar(128);not null"`
	Text       string    `json:"text"        gorm:"type:text;not null"`
	FromBot    bool      `json:"from_bot"    gorm:"not null;default:false"`
	Timestamp  time.Time `json:"timestamp"   gorm:"index:idx_group_msgs,priority:2"`
}

// TableName returns the database table name for ContextMessage.
func (ContextMessage) TableName() string { return "context_messages" }

// ProcessedWebhookEvent records a payment-processor event id that has been
// applied. Inserting an existing id fails the unique constraint, which is
// how replayed deliveries are detected and absorbed.
type ProcessedWebhookEvent struct {
	EventID    string    `json:"event_id" gorm:"type:varchar(64);primaryKey"`
	Kind       string    `json:"kind"     gorm:"type:varchar(64);not null"`
	ReceivedAt time.Time `json:"received_at"`
}

// TableName returns the database table name for ProcessedWebhookEvent.
func (ProcessedWebhookEvent) TableName() string { return "processed_webhook_events" }

// LanguageChoice is a (code, display name) pair used in candidate lists and
// confirmation payloads.
type LanguageChoice struct {
	Code string `json:"code"`
	Name string `json:"name"`
}
