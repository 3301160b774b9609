// Package langcodes is the registry of languages the service can translate
// between. Candidate language lists always come from a generative model and
// are treated as untrusted suggestions: every code is normalized and checked
// against this registry before it can reach a confirmation prompt or the
// group's stored language set.
package langcodes

import (
	"strings"

	"golang.org/x/text/language"

	"github.com/polyrelay/go-translate-backend/internal/domain"
)

// supported maps the base language code to its English display name.
// The set mirrors what the translation provider handles reliably.
var supported = map[string]string{
	"ar": "Arabic",
	"de": "German",
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"he": "Hebrew",
	"hi": "Hindi",
	"id": "Indonesian",
	"it": "Italian",
	"ja": "Japanese",
	"ko": "Korean",
	"ms": "Malay",
	"my": "Burmese",
	"nl": "Dutch",
	"pl": "Polish",
	"pt": "Portuguese",
	"ru": "Russian",
	"sv": "Swedish",
	"th": "Thai",
	"tl": "Filipino",
	"tr": "Turkish",
	"uk": "Ukrainian",
	"vi": "Vietnamese",
	"zh": "Chinese",
}

// Normalize parses a (possibly sloppy) language code and reduces it to the
// base subtag in lowercase, e.g. "EN-us" → "en", "zh-TW" → "zh". It returns
// "" when the input is not a parseable BCP-47 tag.
func Normalize(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return ""
	}
	base, conf := tag.Base()
	if conf == language.No {
		return ""
	}
	return base.String()
}

// IsSupported reports whether the normalized code is in the registry.
func IsSupported(code string) bool {
	_, ok := supported[Normalize(code)]
	return ok
}

// Name returns the English display name for a supported code, or "".
func Name(code string) string {
	return supported[Normalize(code)]
}

// Sanitize splits a candidate list into registry-backed choices (normalized
// and de-duplicated, original order kept) and the rejects. A provider that
// hallucinates an unsupported language lands in the second slice and never
// reaches a confirmation prompt.
func Sanitize(candidates []domain.LanguageChoice) (ok, rejected []domain.LanguageChoice) {
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		norm := Normalize(c.Code)
		if norm == "" {
			rejected = append(rejected, c)
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		name, found := supported[norm]
		if !found {
			rejected = append(rejected, c)
			continue
		}
		seen[norm] = struct{}{}
		if c.Name != "" {
			name = c.Name
		}
		ok = append(ok, domain.LanguageChoice{Code: norm, Name: name})
	}
	return ok, rejected
}
