// Package services – Orchestrator
//
// This file implements the inbound event dispatcher. It owns the routing
// decisions: which events reach the translation pipeline, which are bot
// commands, and how postback confirmations resolve. Handlers stay
// transport-thin; everything stateful happens here and below.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/polyrelay/go-translate-backend/internal/domain"
	"github.com/polyrelay/go-translate-backend/internal/lineapi"
	"github.com/polyrelay/go-translate-backend/internal/repo"
)

// Postback action values carried in confirmation prompts.
const (
	postbackConfirm = "langs_confirm"
	postbackCancel  = "langs_cancel"
)

const welcomeText = "Hello! I translate messages in this group.\n" +
	"Tell me which languages to use by mentioning me, for example:\n" +
	"\"%s English, 日本語, ไทย\""

const howToText = "Mention me with a list of languages to set up translation, " +
	"for example \"%s English, Español\". I will then translate every message " +
	"into the group's languages. Mention me with \"pause\" or \"resume\" to " +
	"switch translation off and on."

// CommandClassifier maps a bot mention to a command suggestion.
type CommandClassifier interface {
	ClassifyCommand(ctx context.Context, text string) (*domain.CommandDecision, error)
}

// ProfileResolver looks up a member's display name.
type ProfileResolver interface {
	MemberName(ctx context.Context, groupID, userID string) (string, error)
}

// Orchestrator routes inbound chat events to the right workflow.
type Orchestrator struct {
	DB          *gorm.DB
	Messenger   Messenger
	Classifier  CommandClassifier
	Profiles    ProfileResolver
	Notices     NoticeTranslator
	Languages   *LanguageService
	Translation *TranslationService

	// BotName is the mention string users address the bot with.
	BotName string
}

// Dispatch handles one inbound event. Errors are returned for logging;
// the webhook handler acknowledges the delivery either way, because the
// platform's redelivery would replay the same input.
func (o *Orchestrator) Dispatch(ctx context.Context, ev domain.InboundEvent) error {
	tr := otel.Tracer("services/Orchestrator")
	ctx, span := tr.Start(ctx, "Dispatch",
		trace.WithAttributes(
			attribute.String("event.type", ev.Type),
			attribute.String("group.id", ev.GroupID),
		),
	)
	defer span.End()

	switch ev.Type {
	case domain.EventTypeMessage:
		return o.dispatchMessage(ctx, ev)
	case domain.EventTypePostback:
		return o.dispatchPostback(ctx, ev)
	case domain.EventTypeJoin, domain.EventTypeMemberJoined:
		return o.sendWelcome(ctx, ev)
	case domain.EventTypeFollow:
		return o.Messenger.Reply(ctx, ev.ReplyToken,
			lineapi.TextMessage("Thanks for adding me! Invite me to a group and I will translate its messages."))
	case domain.EventTypeLeave:
		// Group state is kept; re-joining picks up where the group left off.
		return nil
	default:
		log.Debug().Str("type", ev.Type).Msg("inbound event ignored")
		return nil
	}
}

func (o *Orchestrator) dispatchMessage(ctx context.Context, ev domain.InboundEvent) error {
	if !ev.IsGroupScoped() || ev.Text == "" {
		return nil
	}

	if o.mentionsBot(ev.Text) {
		return o.handleCommand(ctx, ev)
	}

	senderName := o.resolveSenderName(ctx, ev)
	return o.Translation.HandleMessage(ctx, ev, senderName)
}

func (o *Orchestrator) mentionsBot(text string) bool {
	return o.BotName != "" && strings.Contains(text, o.BotName)
}

func (o *Orchestrator) resolveSenderName(ctx context.Context, ev domain.InboundEvent) string {
	if o.Profiles == nil || ev.UserID == "" {
		return "member"
	}
	name, err := o.Profiles.MemberName(ctx, ev.GroupID, ev.UserID)
	if err != nil || name == "" {
		return "member"
	}
	return name
}

// handleCommand classifies a bot mention and executes the resulting
// action. The classifier's output is a suggestion; anything outside the
// known action set falls through to the usage hint.
func (o *Orchestrator) handleCommand(ctx context.Context, ev domain.InboundEvent) error {
	dec, err := o.Classifier.ClassifyCommand(ctx, ev.Text)
	if err != nil {
		log.Warn().Err(err).Str("group_id", ev.GroupID).Msg("command classification failed")
		return o.Messenger.Reply(ctx, ev.ReplyToken,
			lineapi.TextMessage(fmt.Sprintf(howToText, o.BotName)))
	}

	switch dec.Action {
	case domain.ActionLanguageSettings:
		return o.handleLanguageSettings(ctx, ev, dec)
	case domain.ActionPause:
		if err := repo.SetTranslationEnabled(ctx, o.DB, ev.GroupID, false); err != nil {
			return err
		}
		return o.replyAck(ctx, ev, dec, "Translation paused. Mention me with \"resume\" to continue.")
	case domain.ActionResume:
		if err := repo.SetTranslationEnabled(ctx, o.DB, ev.GroupID, true); err != nil {
			return err
		}
		return o.replyAck(ctx, ev, dec, "Translation resumed.")
	case domain.ActionHowTo:
		return o.Messenger.Reply(ctx, ev.ReplyToken,
			lineapi.TextMessage(fmt.Sprintf(howToText, o.BotName)))
	default:
		return o.Messenger.Reply(ctx, ev.ReplyToken,
			lineapi.TextMessage(fmt.Sprintf(howToText, o.BotName)))
	}
}

// replyAck prefers the classifier's acknowledgment, which is phrased in
// the language the instruction was given in.
func (o *Orchestrator) replyAck(ctx context.Context, ev domain.InboundEvent, dec *domain.CommandDecision, fallback string) error {
	text := strings.TrimSpace(dec.AckText)
	if text == "" {
		text = fallback
	}
	return o.Messenger.Reply(ctx, ev.ReplyToken, lineapi.TextMessage(text))
}

func (o *Orchestrator) handleLanguageSettings(ctx context.Context, ev domain.InboundEvent, dec *domain.CommandDecision) error {
	proposal, err := o.Languages.Propose(ctx, ev.GroupID, ev.UserID, ev.Text)
	switch {
	case err == nil:
	case errors.Is(err, ErrNoSupportedLanguages):
		return o.Messenger.Reply(ctx, ev.ReplyToken,
			lineapi.TextMessage("I could not find any supported languages in that request. "+
				fmt.Sprintf(howToText, o.BotName)))
	case errors.Is(err, ErrTooManyLanguages):
		return o.Messenger.Reply(ctx, ev.ReplyToken,
			lineapi.TextMessage(fmt.Sprintf("That is more languages than I can handle at once (limit %d).", o.Languages.MaxLangs)))
	default:
		return err
	}

	names := make([]string, 0, len(proposal.Languages))
	for _, l := range proposal.Languages {
		names = append(names, l.Name)
	}
	prompt := fmt.Sprintf("Translate this group's messages into: %s?", strings.Join(names, ", "))
	if len(proposal.Rejected) > 0 {
		skipped := make([]string, 0, len(proposal.Rejected))
		for _, l := range proposal.Rejected {
			label := l.Name
			if label == "" {
				label = l.Code
			}
			skipped = append(skipped, label)
		}
		prompt += fmt.Sprintf("\n(Not supported, skipped: %s)", strings.Join(skipped, ", "))
	}

	confirm := lineapi.ConfirmMessage(
		"Confirm translation languages",
		prompt,
		"OK", postbackData(postbackConfirm, proposal.Token),
		"Cancel", postbackData(postbackCancel, proposal.Token),
	)
	return o.Messenger.Reply(ctx, ev.ReplyToken, confirm)
}

func postbackData(action, token string) string {
	v := url.Values{}
	v.Set("action", action)
	v.Set("token", token)
	return v.Encode()
}

// dispatchPostback resolves confirmation taps. Spent or unknown tokens are
// absorbed without a reply: the first delivery already answered, and a
// stale prompt should not produce fresh chatter.
func (o *Orchestrator) dispatchPostback(ctx context.Context, ev domain.InboundEvent) error {
	values, err := url.ParseQuery(ev.PostbackData)
	if err != nil {
		log.Warn().Err(err).Str("data", ev.PostbackData).Msg("malformed postback data")
		return nil
	}
	token := values.Get("token")
	if token == "" {
		return nil
	}

	switch values.Get("action") {
	case postbackConfirm:
		langs, err := o.Languages.Confirm(ctx, token)
		if err != nil {
			if errors.Is(err, ErrConfirmationSpent) || errors.Is(err, ErrConfirmationNotFound) {
				return nil
			}
			return err
		}
		names := make([]string, 0, len(langs))
		for _, l := range langs {
			names = append(names, l.Name)
		}
		base := fmt.Sprintf("Done! I will translate into: %s.", strings.Join(names, ", "))
		return o.Messenger.Reply(ctx, ev.ReplyToken,
			lineapi.TextMessage(o.multilingualNotice(ctx, base, langs)))
	case postbackCancel:
		if _, err := o.Languages.Cancel(ctx, token); err != nil {
			if errors.Is(err, ErrConfirmationSpent) || errors.Is(err, ErrConfirmationNotFound) {
				return nil
			}
			return err
		}
		return o.Messenger.Reply(ctx, ev.ReplyToken,
			lineapi.TextMessage("Canceled. Your previous settings are unchanged."))
	default:
		return nil
	}
}

// multilingualNotice renders a notice in English plus the given languages,
// in their confirmed order. Translation is best effort; on failure the
// English text goes out alone.
func (o *Orchestrator) multilingualNotice(ctx context.Context, base string, langs []domain.LanguageChoice) string {
	if o.Notices == nil {
		return base
	}
	targets := make([]string, 0, len(langs))
	for _, l := range langs {
		if l.Code != "en" {
			targets = append(targets, l.Code)
		}
	}
	if len(targets) == 0 {
		return base
	}
	translated, err := o.Notices.TranslateNotice(ctx, base, targets)
	if err != nil {
		log.Warn().Err(err).Msg("notice translation failed")
		return base
	}
	lines := []string{base}
	for _, l := range langs {
		if text := translated[l.Code]; text != "" {
			lines = append(lines, text)
		}
	}
	return strings.Join(lines, "\n\n")
}

func (o *Orchestrator) sendWelcome(ctx context.Context, ev domain.InboundEvent) error {
	if !ev.IsGroupScoped() || ev.ReplyToken == "" {
		return nil
	}
	return o.Messenger.Reply(ctx, ev.ReplyToken,
		lineapi.TextMessage(fmt.Sprintf(welcomeText, o.BotName)))
}
