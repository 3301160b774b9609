// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for GroupSettings.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/polyrelay/go-translate-backend/internal/domain"
)

// IsTranslationEnabled reports the per-group translation switch. An unknown
// group reads as disabled, matching the implicit-creation model where a
// group only becomes active after its language set is confirmed.
func IsTranslationEnabled(ctx context.Context, db *gorm.DB, groupID string) (bool, error) {
	var gs domain.GroupSettings
	err := db.WithContext(ctx).Where("group_id = ?", groupID).First(&gs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return gs.TranslationEnabled, nil
}

// SetTranslationEnabled upserts the per-group translation switch.
func SetTranslationEnabled(ctx context.Context, db *gorm.DB, groupID string, enabled bool) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "group_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"translation_enabled": enabled,
			"updated_at":          now,
		}),
	}).Create(&domain.GroupSettings{
		GroupID:            groupID,
		TranslationEnabled: enabled,
		CreatedAt:          now,
		UpdatedAt:          now,
	}).Error
}
