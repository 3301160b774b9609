// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// append-only ContextMessage log.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/polyrelay/go-translate-backend/internal/domain"
)

// AppendMessage writes one message row. Rows are never updated afterwards.
func AppendMessage(ctx context.Context, db *gorm.DB, msg *domain.ContextMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(msg).Error
}

// RecentMessages returns up to limit of the latest user-authored messages
// for a group, ordered oldest→newest so they read as a transcript.
// Bot-authored rows are excluded: the bot's own replies would only teach
// the translation model to echo itself.
func RecentMessages(ctx context.Context, db *gorm.DB, groupID string, limit int) ([]domain.ContextMessage, error) {
	var newestFirst []domain.ContextMessage
	q := db.WithContext(ctx).
		Where("group_id = ? AND from_bot = ?", groupID, false).
		Order("timestamp DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&newestFirst).Error; err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	out := make([]domain.ContextMessage, len(newestFirst))
	for i, m := range newestFirst {
		out[len(newestFirst)-1-i] = m
	}
	return out, nil
}

// LastBotMessage returns the most recent bot-authored message text for a
// group, or "" when the bot has not spoken yet. Used to de-duplicate
// consecutive identical system notices.
func LastBotMessage(ctx context.Context, db *gorm.DB, groupID string) (string, error) {
	var m domain.ContextMessage
	err := db.WithContext(ctx).
		Where("group_id = ? AND from_bot = ?", groupID, true).
		Order("timestamp DESC, id DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return m.Text, nil
}
