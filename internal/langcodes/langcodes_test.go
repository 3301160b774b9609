package langcodes

import (
	"testing"

	"github.com/polyrelay/go-translate-backend/internal/domain"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"en", "en"},
		{"EN-us", "en"},
		{"zh-TW", "zh"},
		{"  ja  ", "ja"},
		{"pt-BR", "pt"},
		{"", ""},
		{"???", ""},
		{"x-", ""},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestIsSupportedAndName(t *testing.T) {
	if !IsSupported("TH") {
		t.Error("th should be supported")
	}
	if IsSupported("tlh") {
		t.Error("Klingon should not be supported")
	}
	if got := Name("ja-JP"); got != "Japanese" {
		t.Errorf("Name(ja-JP) = %q", got)
	}
	if got := Name("xx"); got != "" {
		t.Errorf("Name(xx) = %q, want empty", got)
	}
}

func TestSanitize(t *testing.T) {
	ok, rejected := Sanitize([]domain.LanguageChoice{
		{Code: "EN-us", Name: "English"},
		{Code: "th"},
		{Code: "en"}, // duplicate after normalization
		{Code: "tlh", Name: "Klingon"},
		{Code: "???"},
	})

	if len(ok) != 2 {
		t.Fatalf("ok = %+v, want 2 entries", ok)
	}
	if ok[0].Code != "en" || ok[1].Code != "th" {
		t.Errorf("order = [%s, %s], want [en, th]", ok[0].Code, ok[1].Code)
	}
	if ok[1].Name != "Thai" {
		t.Errorf("missing display name fallback: %q", ok[1].Name)
	}
	if len(rejected) != 2 {
		t.Errorf("rejected = %+v, want 2 entries", rejected)
	}
}
