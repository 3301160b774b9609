// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// GroupLanguage model.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/polyrelay/go-translate-backend/internal/domain"
)

// ListGroupLanguages returns the registered languages of a group in
// registration order, which is also the ordering of reply lines.
func ListGroupLanguages(ctx context.Context, db *gorm.DB, groupID string) ([]domain.GroupLanguage, error) {
	var out []domain.GroupLanguage
	err := db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("position ASC, id ASC").
		Find(&out).Error
	return out, err
}

// ReplaceGroupLanguages swaps the whole language set of a group in one
// transaction, assigning positions by the order of langs.
func ReplaceGroupLanguages(ctx context.Context, db *gorm.DB, groupID string, langs []domain.LanguageChoice) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", groupID).Delete(&domain.GroupLanguage{}).Error; err != nil {
			return err
		}
		for i, l := range langs {
			row := domain.GroupLanguage{
				GroupID:   groupID,
				LangCode:  l.Code,
				LangName:  l.Name,
				Position:  i,
				CreatedAt: now,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
