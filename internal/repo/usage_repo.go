// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// UsageCounter model. All mutations are single atomic statements so
// concurrent invocations for the same group cannot race.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/polyrelay/go-translate-backend/internal/domain"
)

// GetUsage returns the counter row for (groupID, periodKey). A missing row
// reads as a zero counter, which is what a fresh period looks like.
func GetUsage(ctx context.Context, db *gorm.DB, groupID, periodKey string) (*domain.UsageCounter, error) {
	var uc domain.UsageCounter
	err := db.WithContext(ctx).
		Where("group_id = ? AND period_key = ?", groupID, periodKey).
		First(&uc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.UsageCounter{
			GroupID:    groupID,
			PeriodKey:  periodKey,
			NoticePlan: domain.NoticePlanNone,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &uc, nil
}

// IncrementUsage advances the translation count by one using an upsert, so
// the read-modify-write happens inside the database. In ON CONFLICT DO
// UPDATE the unqualified column refers to the existing row, which is the
// atomicity the usage invariant depends on.
func IncrementUsage(ctx context.Context, db *gorm.DB, groupID, periodKey string) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "group_id"}, {Name: "period_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"translation_count": gorm.Expr("translation_count + 1"),
			"updated_at":        now,
		}),
	}).Create(&domain.UsageCounter{
		GroupID:          groupID,
		PeriodKey:        periodKey,
		TranslationCount: 1,
		NoticePlan:       domain.NoticePlanNone,
		CreatedAt:        now,
		UpdatedAt:        now,
	}).Error
}

// MarkNoticeSent records that the quota-exceeded notice for the given plan
// tier went out this period. It reports first=true only for the writer that
// actually flipped the column, so callers can send the notice at most once
// per (group, period, plan) no matter how many over-quota messages arrive.
func MarkNoticeSent(ctx context.Context, db *gorm.DB, groupID, periodKey, plan string) (first bool, err error) {
	now := time.Now().UTC()

	// Make sure the row exists; a no-op when the counter was already created.
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "group_id"}, {Name: "period_key"}},
		DoNothing: true,
	}).Create(&domain.UsageCounter{
		GroupID:    groupID,
		PeriodKey:  periodKey,
		NoticePlan: domain.NoticePlanNone,
		CreatedAt:  now,
		UpdatedAt:  now,
	}).Error; err != nil {
		return false, err
	}

	res := db.WithContext(ctx).Model(&domain.UsageCounter{}).
		Where("group_id = ? AND period_key = ? AND notice_plan <> ?", groupID, periodKey, plan).
		Updates(map[string]interface{}{"notice_plan": plan, "updated_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
