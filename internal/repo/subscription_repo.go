// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for Subscription
// rows and for the processed-event log that makes the webhook synchronizer
// idempotent under at-least-once delivery.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/polyrelay/go-translate-backend/internal/domain"
)

// GetSubscription returns the subscription row for a group or ErrNotFound.
func GetSubscription(ctx context.Context, db *gorm.DB, groupID string) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := db.WithContext(ctx).Where("group_id = ?", groupID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// UpsertSubscription writes the processor-derived state for a group. The
// upsert keys on group_id; subscription_ref stays unique across groups via
// its own index.
func UpsertSubscription(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	now := time.Now().UTC()
	sub.UpdatedAt = now
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "group_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"customer_ref", "subscription_ref", "status",
			"current_period_start", "current_period_end", "updated_at",
		}),
	}).Create(sub).Error
}

// MarkEventProcessed inserts the provider-assigned event id and returns
// ErrDuplicate when the id was seen before. Callers use the duplicate as
// the replay signal and skip all side effects.
func MarkEventProcessed(ctx context.Context, db *gorm.DB, eventID, kind string) error {
	rec := &domain.ProcessedWebhookEvent{
		EventID:    eventID,
		Kind:       kind,
		ReceivedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return ErrDuplicate
		}
		return err
	}
	return nil
}
