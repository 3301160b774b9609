// Package provider implements the generative-translation provider boundary
// as a thin HTTP adapter around the Gemini generateContent API. Every call
// is a single structured request with a JSON response schema, a deadline
// shorter than the webhook delivery timeout, and a typed rate-limit error
// so the pipeline can suppress retries on 429.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/polyrelay/go-translate-backend/internal/domain"
)

// ErrRateLimited is returned when the provider answers 429. Rate limits are
// never retried; the pipeline sends a de-duplicated notice instead.
var ErrRateLimited = errors.New("translation provider rate limited")

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

const translateInstruction = `You are an interpreting engine for a multilingual chat group.

You receive a JSON object containing:
* "source_message": the message to be translated
* "context_messages": recent messages in the same group
* "target_languages": an array of language codes to translate into

Requirements:
* Use "source_message.text" as the text to translate.
* Use "context_messages" to understand the context and who is speaking to whom.
* Preserve user names (sender_name) exactly as they are; do NOT translate them.
* Preserve mention strings (e.g., "@John") in their original form.
* Detect the language of "source_message.text" and return it as "source_lang".
* Produce natural interpretations that match each user's tone and the conversational context.
* Do not copy, quote, or directly reproduce the source_message.text in the translation output; return only the translated text for each target language.
* Output only a JSON object that conforms to the specified JSON Schema.`

const analyzeInstruction = `You extract language preferences from a free-form request sent to a translation bot.

Input: a message listing the languages a chat group wants translations in, written in any language.
Output: a JSON object with:
* "languages": the requested languages, each with "code" (ISO 639-1) and "name" (English display name)
* "primary_language": the ISO 639-1 code of the language the request itself is written in

Only list languages the user explicitly asked for. Do not invent languages.`

const classifyInstruction = `You are a command classifier for a multilingual translation bot.

Input: a free-form message that mentions the bot and contains an instruction.
Goal: decide which operation the bot should perform.

Actions:
- "language_settings": user wants to change translation languages; include them in "languages".
- "howto": user asks how to use the bot.
- "pause": temporarily pause translation until resumed.
- "resume": resume translation.
- "unknown": anything else.

Constraints:
- Detect the language of the instruction and return it as "instruction_language" (ISO 639-1).
- Produce "ack_text" in the same language as the instruction, concise, confirming the action.
- Do NOT echo the entire user message.`

// GeminiClient talks to the Gemini REST API. The zero value is not usable;
// construct with NewGeminiClient.
type GeminiClient struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

// Option customizes a GeminiClient.
type Option func(*GeminiClient)

// WithBaseURL overrides the API endpoint (tests point this at a local server).
func WithBaseURL(u string) Option {
	return func(c *GeminiClient) { c.baseURL = u }
}

// NewGeminiClient builds a client with the given credentials and a hard
// per-call timeout.
func NewGeminiClient(apiKey, model string, timeout time.Duration, opts ...Option) *GeminiClient {
	c := &GeminiClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: timeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Translate performs one structured call covering all target languages.
func (c *GeminiClient) Translate(ctx context.Context, req domain.TranslationRequest) (*domain.TranslationResponse, error) {
	if len(req.TargetLanguages) == 0 {
		return &domain.TranslationResponse{}, nil
	}

	type srcMsg struct {
		SenderName string `json:"sender_name"`
		Text       string `json:"text"`
		Timestamp  string `json:"timestamp"`
	}
	type ctxMsg struct {
		SenderName string `json:"sender_name"`
		Text       string `json:"text"`
		Timestamp  string `json:"timestamp"`
	}
	payload := map[string]any{
		"source_message": srcMsg{
			SenderName: req.SenderName,
			Text:       req.MessageText,
			Timestamp:  req.Timestamp.UTC().Format(time.RFC3339),
		},
		"context_messages": func() []ctxMsg {
			out := make([]ctxMsg, 0, len(req.Context))
			for _, m := range req.Context {
				out = append(out, ctxMsg{
					SenderName: m.SenderName,
					Text:       m.Text,
					Timestamp:  m.Timestamp.UTC().Format(time.RFC3339),
				})
			}
			return out
		}(),
		"target_languages": req.TargetLanguages,
	}

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"source_lang": map[string]any{"type": "string"},
			"translations": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"lang": map[string]any{"type": "string"},
						"text": map[string]any{"type": "string"},
					},
					"required": []string{"lang", "text"},
				},
			},
		},
		"required": []string{"source_lang", "translations"},
	}

	raw, err := c.generate(ctx, translateInstruction, payload, schema)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		SourceLang   string                     `json:"source_lang"`
		Translations []domain.TranslationResult `json:"translations"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode translation payload: %w", err)
	}

	// Keep only requested languages with non-empty text; the model may
	// return extras or blanks despite the schema.
	allowed := make(map[string]struct{}, len(req.TargetLanguages))
	for _, l := range req.TargetLanguages {
		allowed[l] = struct{}{}
	}
	out := make([]domain.TranslationResult, 0, len(parsed.Translations))
	for _, t := range parsed.Translations {
		if t.Lang == "" || t.Text == "" {
			continue
		}
		if _, ok := allowed[t.Lang]; !ok {
			continue
		}
		out = append(out, t)
	}
	return &domain.TranslationResponse{SourceLang: parsed.SourceLang, Translations: out}, nil
}

// AnalyzeLanguages reads a free-text language request into candidate
// choices. The result is untrusted until sanitized by the caller.
func (c *GeminiClient) AnalyzeLanguages(ctx context.Context, text string) (*domain.LanguagePreference, error) {
	payload := map[string]any{"message": text}
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"languages": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"code": map[string]any{"type": "string"},
						"name": map[string]any{"type": "string"},
					},
					"required": []string{"code"},
				},
			},
			"primary_language": map[string]any{"type": "string"},
		},
		"required": []string{"languages"},
	}

	raw, err := c.generate(ctx, analyzeInstruction, payload, schema)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Languages       []domain.LanguageChoice `json:"languages"`
		PrimaryLanguage string                  `json:"primary_language"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode language payload: %w", err)
	}
	return &domain.LanguagePreference{
		Supported:       parsed.Languages,
		PrimaryLanguage: parsed.PrimaryLanguage,
	}, nil
}

// ClassifyCommand maps a bot mention to a command suggestion. Callers must
// validate Action against the known enum before acting on it.
func (c *GeminiClient) ClassifyCommand(ctx context.Context, text string) (*domain.CommandDecision, error) {
	payload := map[string]any{"message": text}
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type": "string",
				"enum": []string{
					domain.ActionLanguageSettings, domain.ActionHowTo,
					domain.ActionPause, domain.ActionResume, domain.ActionUnknown,
				},
			},
			"languages": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"code": map[string]any{"type": "string"},
						"name": map[string]any{"type": "string"},
					},
					"required": []string{"code"},
				},
			},
			"instruction_language": map[string]any{"type": "string"},
			"ack_text":             map[string]any{"type": "string"},
		},
		"required": []string{"action"},
	}

	raw, err := c.generate(ctx, classifyInstruction, payload, schema)
	if err != nil {
		return nil, err
	}

	var parsed domain.CommandDecision
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode command payload: %w", err)
	}
	return &parsed, nil
}

// TranslateNotice renders a canonical English notice into each target
// language. Failures degrade to the English text at the call site, so the
// error is worth logging but rarely fatal.
func (c *GeminiClient) TranslateNotice(ctx context.Context, baseText string, targets []string) (map[string]string, error) {
	if len(targets) == 0 {
		return map[string]string{}, nil
	}
	resp, err := c.Translate(ctx, domain.TranslationRequest{
		SenderName:      "system",
		MessageText:     baseText,
		Timestamp:       time.Now().UTC(),
		TargetLanguages: targets,
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(resp.Translations))
	for _, t := range resp.Translations {
		if t.Text != "" {
			out[t.Lang] = t.Text
		}
	}
	return out, nil
}

// generate posts one generateContent request and returns the JSON text of
// the first candidate part.
func (c *GeminiClient) generate(ctx context.Context, instruction string, payload any, schema map[string]any) (json.RawMessage, error) {
	userText, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"system_instruction": map[string]any{
			"parts": []map[string]any{{"text": instruction}},
		},
		"contents": []map[string]any{
			{"role": "user", "parts": []map[string]any{{"text": string(userText)}}},
		},
		"generationConfig": map[string]any{
			"response_mime_type": "application/json",
			"response_schema":    schema,
		},
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Warn().Int("status", resp.StatusCode).Str("body", string(excerpt)).Msg("provider call failed")
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var envelope struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode provider response: %w", err)
	}
	if len(envelope.Candidates) == 0 || len(envelope.Candidates[0].Content.Parts) == 0 {
		return nil, errors.New("provider response has no candidates")
	}
	return json.RawMessage(envelope.Candidates[0].Content.Parts[0].Text), nil
}
