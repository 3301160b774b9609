// Package services – TranslationService
//
// This file implements the translation pipeline for inbound group
// messages: context capture, admission against the quota ledger, the
// provider call under a bounded retry policy, reply assembly, and the
// post-delivery quota commit. Rate limits from the provider are never
// retried; the group gets a de-duplicated busy notice instead.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/polyrelay/go-translate-backend/internal/domain"
	"github.com/polyrelay/go-translate-backend/internal/langcodes"
	"github.com/polyrelay/go-translate-backend/internal/lineapi"
	"github.com/polyrelay/go-translate-backend/internal/provider"
	"github.com/polyrelay/go-translate-backend/internal/reply"
	"github.com/polyrelay/go-translate-backend/internal/repo"
	"github.com/polyrelay/go-translate-backend/internal/retry"
)

// Translator performs one structured translation call.
type Translator interface {
	Translate(ctx context.Context, req domain.TranslationRequest) (*domain.TranslationResponse, error)
}

// CheckoutLinker produces a hosted checkout URL for a group upgrade.
type CheckoutLinker interface {
	CheckoutURL(ctx context.Context, groupID string) (string, error)
}

// rateLimitNotice is sent when the provider is rate limited. Consecutive
// identical notices are suppressed so a burst of messages during a busy
// window yields one notice, not one per message.
const rateLimitNotice = "Translation is temporarily busy. Please try again in a moment."

// TranslationService runs the per-message translation pipeline.
type TranslationService struct {
	DB         *gorm.DB
	Translator Translator
	Messenger  Messenger
	Notices    NoticeTranslator
	Quota      *QuotaService
	Checkout   CheckoutLinker

	ContextWindow int
	Retry         retry.Policy
}

// HandleMessage processes one inbound text message in a group. The message
// is always captured for context; whether it gets translated depends on
// the group switch, the language set, and the quota ledger.
func (s *TranslationService) HandleMessage(ctx context.Context, ev domain.InboundEvent, senderName string) error {
	tr := otel.Tracer("services/TranslationService")
	ctx, span := tr.Start(ctx, "HandleMessage",
		trace.WithAttributes(
			attribute.String("group.id", ev.GroupID),
			attribute.String("user.id", ev.UserID),
		),
	)
	defer span.End()

	// Context is read before the source message lands in the log, so the
	// provider sees the conversation leading up to it, not including it.
	history, err := repo.RecentMessages(ctx, s.DB, ev.GroupID, s.ContextWindow)
	if err != nil {
		return fmt.Errorf("load context: %w", err)
	}

	if err := repo.AppendMessage(ctx, s.DB, &domain.ContextMessage{
		GroupID:    ev.GroupID,
		UserID:     ev.UserID,
		SenderName: senderName,
		Text:       ev.Text,
		Timestamp:  ev.Timestamp,
	}); err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	enabled, err := repo.IsTranslationEnabled(ctx, s.DB, ev.GroupID)
	if err != nil {
		return err
	}
	if !enabled {
		return nil
	}

	langs, err := repo.ListGroupLanguages(ctx, s.DB, ev.GroupID)
	if err != nil {
		return err
	}
	if len(langs) == 0 {
		return nil
	}

	dec, err := s.Quota.CheckAndReserve(ctx, ev.GroupID)
	if err != nil {
		// Fail closed: an unreadable ledger admits nothing.
		return fmt.Errorf("quota check: %w", err)
	}
	if !dec.Allowed {
		span.SetAttributes(attribute.Bool("quota.exceeded", true))
		return s.handleQuotaExceeded(ctx, ev, dec, langs)
	}

	targets := make([]string, 0, len(langs))
	for _, l := range langs {
		targets = append(targets, l.LangCode)
	}

	var resp *domain.TranslationResponse
	err = s.Retry.Do(ctx, func() error {
		r, terr := s.Translator.Translate(ctx, domain.TranslationRequest{
			SenderName:      senderName,
			MessageText:     ev.Text,
			Timestamp:       ev.Timestamp,
			TargetLanguages: targets,
			Context:         history,
		})
		if terr != nil {
			if errors.Is(terr, provider.ErrRateLimited) {
				return retry.Permanent(terr)
			}
			return terr
		}
		resp = r
		return nil
	})
	if err != nil {
		if errors.Is(err, provider.ErrRateLimited) {
			return s.sendRateLimitNotice(ctx, ev)
		}
		return fmt.Errorf("translate: %w", err)
	}

	text := s.buildReply(ev.Text, resp, langs)
	if text == "" {
		// Everything filtered out (single-language group chatting in its
		// own language, or the provider echoed the source). No reply, no
		// quota consumed.
		return nil
	}

	if err := s.Messenger.Reply(ctx, ev.ReplyToken, lineapi.TextMessage(text)); err != nil {
		return fmt.Errorf("deliver reply: %w", err)
	}
	s.recordBotReply(ctx, ev.GroupID, text)

	// Quota is consumed only after delivery, so failed translations stay
	// free. The increment is atomic in the store.
	if err := s.Quota.Commit(ctx, ev.GroupID, dec.PeriodKey); err != nil {
		log.Error().Err(err).Str("group_id", ev.GroupID).Msg("quota commit failed after delivery")
	}
	return nil
}

// buildReply assembles the outbound text: translations in registration
// order, the detected source language dropped, source echoes stripped,
// each line bidi-stabilized.
func (s *TranslationService) buildReply(sourceText string, resp *domain.TranslationResponse, langs []domain.GroupLanguage) string {
	srcLang := langcodes.Normalize(resp.SourceLang)
	byLang := make(map[string]string, len(resp.Translations))
	for _, t := range resp.Translations {
		byLang[langcodes.Normalize(t.Lang)] = t.Text
	}

	ordered := make([]reply.Translation, 0, len(langs))
	for _, l := range langs {
		code := langcodes.Normalize(l.LangCode)
		if code == srcLang {
			continue
		}
		if text := byLang[code]; text != "" {
			ordered = append(ordered, reply.Translation{Lang: code, Text: text})
		}
	}
	return reply.Build(sourceText, ordered)
}

// handleQuotaExceeded sends the over-quota notice at most once per
// (group, period, plan). Free groups additionally get their translation
// switch turned off and an upgrade link; payment turns it back on.
func (s *TranslationService) handleQuotaExceeded(ctx context.Context, ev domain.InboundEvent, dec *QuotaDecision, langs []domain.GroupLanguage) error {
	first, err := s.Quota.MarkNoticeSent(ctx, ev.GroupID, dec.PeriodKey, dec.Plan)
	if err != nil {
		return fmt.Errorf("mark notice: %w", err)
	}

	if dec.Plan == domain.PlanFree {
		if err := repo.SetTranslationEnabled(ctx, s.DB, ev.GroupID, false); err != nil {
			return err
		}
	}
	if !first {
		return nil
	}

	base := fmt.Sprintf("This group has reached its translation limit for the current billing period (%d messages).", dec.Limit)
	if dec.Plan == domain.PlanFree {
		base = fmt.Sprintf("This group has used all %d free translations for this month.", dec.Limit)
	}

	lines := []string{base}
	targets := make([]string, 0, len(langs))
	for _, l := range langs {
		if langcodes.Normalize(l.LangCode) != "en" {
			targets = append(targets, l.LangCode)
		}
	}
	if s.Notices != nil && len(targets) > 0 {
		if translated, terr := s.Notices.TranslateNotice(ctx, base, targets); terr == nil {
			for _, l := range langs {
				if text := translated[l.LangCode]; text != "" {
					lines = append(lines, text)
				}
			}
		} else {
			log.Warn().Err(terr).Str("group_id", ev.GroupID).Msg("quota notice translation failed")
		}
	}

	if dec.Plan == domain.PlanFree && s.Checkout != nil {
		if url, cerr := s.Checkout.CheckoutURL(ctx, ev.GroupID); cerr == nil && url != "" {
			lines = append(lines, "Upgrade to keep translating: "+url)
		} else if cerr != nil {
			log.Warn().Err(cerr).Str("group_id", ev.GroupID).Msg("checkout link creation failed")
		}
	}

	text := strings.Join(lines, "\n\n")
	if err := s.Messenger.Reply(ctx, ev.ReplyToken, lineapi.TextMessage(text)); err != nil {
		return fmt.Errorf("deliver quota notice: %w", err)
	}
	s.recordBotReply(ctx, ev.GroupID, text)
	return nil
}

// sendRateLimitNotice replies with the busy notice unless it was also the
// bot's previous message in this group.
func (s *TranslationService) sendRateLimitNotice(ctx context.Context, ev domain.InboundEvent) error {
	last, err := repo.LastBotMessage(ctx, s.DB, ev.GroupID)
	if err != nil {
		return err
	}
	if last == rateLimitNotice {
		return nil
	}
	if err := s.Messenger.Reply(ctx, ev.ReplyToken, lineapi.TextMessage(rateLimitNotice)); err != nil {
		return fmt.Errorf("deliver rate limit notice: %w", err)
	}
	s.recordBotReply(ctx, ev.GroupID, rateLimitNotice)
	return nil
}

// recordBotReply appends the bot's own message to the log, flagged so it
// never feeds back into translation context. Used both for the notice
// de-duplication read and as an audit trail.
func (s *TranslationService) recordBotReply(ctx context.Context, groupID, text string) {
	if err := repo.AppendMessage(ctx, s.DB, &domain.ContextMessage{
		GroupID:    groupID,
		UserID:     "bot",
		SenderName: "bot",
		Text:       text,
		FromBot:    true,
	}); err != nil {
		log.Warn().Err(err).Str("group_id", groupID).Msg("record bot reply failed")
	}
}
