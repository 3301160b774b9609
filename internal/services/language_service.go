// Package services – LanguageService
//
// This file implements the language-settings workflow: a free-text request
// is analyzed into candidate languages, sanitized against the supported
// registry, capped, and held in a single-use pending confirmation until the
// requester taps confirm or cancel. Translation is suspended for the group
// while a confirmation is pending.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/polyrelay/go-translate-backend/internal/domain"
	"github.com/polyrelay/go-translate-backend/internal/langcodes"
	"github.com/polyrelay/go-translate-backend/internal/repo"
)

// LanguageAnalyzer extracts language preferences from free text.
type LanguageAnalyzer interface {
	AnalyzeLanguages(ctx context.Context, text string) (*domain.LanguagePreference, error)
}

// Proposal is a prepared language change awaiting user confirmation. The
// token rides inside the prompt's postback actions.
type Proposal struct {
	Token           string
	Languages       []domain.LanguageChoice
	Rejected        []domain.LanguageChoice
	PrimaryLanguage string
}

// LanguageService owns the propose/confirm/cancel lifecycle of a group's
// target-language set.
type LanguageService struct {
	DB       *gorm.DB
	Analyzer LanguageAnalyzer
	MaxLangs int
}

// Propose analyzes a free-text language request and opens a pending
// confirmation. The group's translation switch goes off until the proposal
// is resolved, so half-configured groups never translate.
func (s *LanguageService) Propose(ctx context.Context, groupID, userID, text string) (*Proposal, error) {
	tr := otel.Tracer("services/LanguageService")
	ctx, span := tr.Start(ctx, "Propose",
		trace.WithAttributes(
			attribute.String("group.id", groupID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	pref, err := s.Analyzer.AnalyzeLanguages(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("analyze languages: %w", err)
	}

	ok, rejected := langcodes.Sanitize(pref.Supported)
	if len(ok) == 0 {
		return nil, ErrNoSupportedLanguages
	}
	if s.MaxLangs > 0 && len(ok) > s.MaxLangs {
		return nil, ErrTooManyLanguages
	}

	encoded, err := json.Marshal(ok)
	if err != nil {
		return nil, err
	}
	rec := &domain.PendingConfirmation{
		Token:     uuid.NewString(),
		GroupID:   groupID,
		UserID:    userID,
		Languages: string(encoded),
	}

	// Suspend translation first; a crash between the two writes leaves the
	// group paused, which a fresh proposal or resume command recovers.
	if err := repo.SetTranslationEnabled(ctx, s.DB, groupID, false); err != nil {
		return nil, err
	}
	if err := repo.CreateConfirmation(ctx, s.DB, rec); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("languages.count", len(ok)))
	return &Proposal{
		Token:           rec.Token,
		Languages:       ok,
		Rejected:        rejected,
		PrimaryLanguage: pref.PrimaryLanguage,
	}, nil
}

// Confirm resolves a token to its terminal confirmed state, replaces the
// group's language set, and re-enables translation. Duplicate postbacks
// get ErrConfirmationSpent; the first delivery already did the work.
func (s *LanguageService) Confirm(ctx context.Context, token string) ([]domain.LanguageChoice, error) {
	tr := otel.Tracer("services/LanguageService")
	ctx, span := tr.Start(ctx, "Confirm")
	defer span.End()

	rec, err := repo.GetConfirmation(ctx, s.DB, token)
	if err != nil {
		return nil, mapConfirmationErr(err)
	}

	var langs []domain.LanguageChoice
	if err := json.Unmarshal([]byte(rec.Languages), &langs); err != nil {
		return nil, fmt.Errorf("decode confirmation languages: %w", err)
	}

	// The cap may have shrunk while the prompt sat unanswered; the stored
	// set is re-checked before it can take effect. The token stays pending.
	if s.MaxLangs > 0 && len(langs) > s.MaxLangs {
		return nil, ErrTooManyLanguages
	}

	if _, err := repo.ResolveConfirmation(ctx, s.DB, token, domain.ConfirmationConfirmed); err != nil {
		return nil, mapConfirmationErr(err)
	}

	if err := repo.ReplaceGroupLanguages(ctx, s.DB, rec.GroupID, langs); err != nil {
		return nil, err
	}
	if err := repo.SetTranslationEnabled(ctx, s.DB, rec.GroupID, true); err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("group.id", rec.GroupID),
		attribute.Int("languages.count", len(langs)),
	)
	return langs, nil
}

// Cancel resolves a token to its terminal canceled state. The group keeps
// its previous language set; translation stays off until a new proposal is
// confirmed or the user resumes explicitly.
func (s *LanguageService) Cancel(ctx context.Context, token string) (groupID string, err error) {
	tr := otel.Tracer("services/LanguageService")
	ctx, span := tr.Start(ctx, "Cancel")
	defer span.End()

	rec, err := repo.ResolveConfirmation(ctx, s.DB, token, domain.ConfirmationCanceled)
	if err != nil {
		return "", mapConfirmationErr(err)
	}
	return rec.GroupID, nil
}

func mapConfirmationErr(err error) error {
	switch {
	case errors.Is(err, repo.ErrDuplicate):
		return ErrConfirmationSpent
	case errors.Is(err, repo.ErrNotFound):
		return ErrConfirmationNotFound
	default:
		return err
	}
}
