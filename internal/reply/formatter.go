// Package reply assembles outbound reply text from translation results.
// It strips source-language echoes, stabilizes bidirectional text per line,
// and enforces the chat platform's per-message character cap.
package reply

import (
	"regexp"
	"strings"
)

// MaxReplyLength is the chat platform's per-message character cap.
const MaxReplyLength = 5000

// Translation is one per-language output of the provider.
type Translation struct {
	Lang string
	Text string
}

// rtlPrefixes lists language-code prefixes rendered right-to-left.
var rtlPrefixes = []string{"ar", "he", "fa", "ur", "ps", "ku", "sd", "ug", "yi"}

// StripSourceEcho removes a verbatim or near-verbatim copy of the source
// text from a translation. Providers are instructed not to echo the source,
// but occasionally return "<source> - <translation>" or the source alone.
func StripSourceEcho(source, translated string) string {
	if source == "" || translated == "" {
		return strings.TrimSpace(translated)
	}

	src := strings.TrimSpace(source)
	candidate := strings.TrimSpace(translated)

	// Verbatim echo.
	if strings.EqualFold(candidate, src) {
		return ""
	}

	// "<source> - <translation>" and similar prefixes.
	prefixPattern := regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(src) + `\s*[-:：、，,。\x{3000}]*`)
	candidate = prefixPattern.ReplaceAllString(candidate, "")

	// "(<translation>)" left over after a plain prefix match.
	if strings.HasPrefix(candidate, src) {
		candidate = strings.TrimLeft(candidate[len(src):], " ()[]-—–:：、，,。　")
	}

	return strings.TrimSpace(candidate)
}

// wrapBidi stabilizes a line of text for mixed-direction rendering. Some
// chat clients ignore the isolate controls (LRI/RLI), so the more widely
// supported embedding controls (LRE/RLE) are used, with a trailing mark to
// keep punctuation from leaking into the neighboring line's direction.
func wrapBidi(text, lang string) string {
	if text == "" {
		return text
	}
	lowered := strings.ToLower(lang)
	for _, p := range rtlPrefixes {
		if strings.HasPrefix(lowered, p) {
			// RLM + RLE ... PDF + RLM
			return "\u200F\u202B" + text + "\u202C\u200F"
		}
	}
	// LRM + LRE ... PDF + LRM
	return "\u200E\u202A" + text + "\u202C\u200E"
}

// Format joins translated lines in the given order, one per language,
// skipping empties and truncating to the platform cap. No language-code
// labels are emitted.
func Format(translations []Translation) string {
	lines := make([]string, 0, len(translations))
	for _, t := range translations {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		lines = append(lines, wrapBidi(text, t.Lang))
	}
	joined := strings.Join(lines, "\n\n")
	return truncate(joined, MaxReplyLength)
}

// Build strips source echoes from every translation and formats the result.
func Build(sourceText string, translations []Translation) string {
	cleaned := make([]Translation, 0, len(translations))
	for _, t := range translations {
		cleaned = append(cleaned, Translation{Lang: t.Lang, Text: StripSourceEcho(sourceText, t.Text)})
	}
	return Format(cleaned)
}

// truncate cuts s to at most max runes.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
