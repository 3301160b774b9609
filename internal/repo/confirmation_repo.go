// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// PendingConfirmation model, whose state transitions must be single-writer
// under duplicate postback delivery.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/polyrelay/go-translate-backend/internal/domain"
)

// CreateConfirmation inserts a fresh prompted confirmation.
func CreateConfirmation(ctx context.Context, db *gorm.DB, rec *domain.PendingConfirmation) error {
	rec.State = domain.ConfirmationPrompted
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(rec).Error
}

// GetConfirmation fetches a confirmation by token or ErrNotFound.
func GetConfirmation(ctx context.Context, db *gorm.DB, token string) (*domain.PendingConfirmation, error) {
	var rec domain.PendingConfirmation
	err := db.WithContext(ctx).Where("token = ?", token).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ResolveConfirmation transitions a token from prompted to the given
// terminal state. The WHERE clause restricts the update to rows still in
// the prompted state, so only the first of two concurrent postbacks wins;
// the loser gets ErrDuplicate and must treat the token as spent.
func ResolveConfirmation(ctx context.Context, db *gorm.DB, token, toState string) (*domain.PendingConfirmation, error) {
	now := time.Now().UTC()
	res := db.WithContext(ctx).Model(&domain.PendingConfirmation{}).
		Where("token = ? AND state = ?", token, domain.ConfirmationPrompted).
		Updates(map[string]interface{}{"state": toState, "resolved_at": now})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Either an unknown token or one already resolved.
		if _, err := GetConfirmation(ctx, db, token); err != nil {
			return nil, err
		}
		return nil, ErrDuplicate
	}
	return GetConfirmation(ctx, db, token)
}
