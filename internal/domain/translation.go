// Package domain defines the core models shared across the repository and
// service layers. This file holds the DTOs exchanged with the generative
// translation provider.
package domain

import "time"

// TranslationRequest is one structured provider call covering all target
// languages at once, with recent conversation context for disambiguation.
type TranslationRequest struct {
	SenderName      string
	MessageText     string
	Timestamp       time.Time
	TargetLanguages []string
	Context         []ContextMessage
}

// TranslationResult is one per-language output of the provider.
type TranslationResult struct {
	Lang string `json:"lang"`
	Text string `json:"text"`
}

// TranslationResponse is the validated provider output. SourceLang is the
// provider's detection of the message's own language; the pipeline drops
// that language from the reply.
type TranslationResponse struct {
	SourceLang   string
	Translations []TranslationResult
}

// LanguagePreference is the provider's reading of a free-text language
// request ("English, 日本語, ไทย please"). Both slices are untrusted until
// sanitized against the supported-language registry.
type LanguagePreference struct {
	Supported       []LanguageChoice
	Unsupported     []LanguageChoice
	PrimaryLanguage string
}

// Command actions the bot recognizes in mentions. Anything the classifier
// returns outside this set is treated as ActionUnknown.
const (
	ActionLanguageSettings = "language_settings"
	ActionHowTo            = "howto"
	ActionPause            = "pause"
	ActionResume           = "resume"
	ActionUnknown          = "unknown"
)

// CommandDecision is the classifier's suggestion for a bot mention. The
// orchestrator validates Action against the known enum before acting.
type CommandDecision struct {
	Action              string           `json:"action"`
	Languages           []LanguageChoice `json:"languages"`
	InstructionLanguage string           `json:"instruction_language"`
	AckText             string           `json:"ack_text"`
}
