package reply

import (
	"strings"
	"testing"
)

func TestStripSourceEcho(t *testing.T) {
	cases := []struct {
		name       string
		source     string
		translated string
		want       string
	}{
		{"verbatim echo", "Hello", "Hello", ""},
		{"case-insensitive echo", "Hello", "hello", ""},
		{"dash prefix", "Hello", "Hello - Bonjour", "Bonjour"},
		{"colon prefix", "Hello", "Hello: Bonjour", "Bonjour"},
		{"no echo", "Hello", "Bonjour", "Bonjour"},
		{"empty translation", "Hello", "", ""},
		{"empty source", "", "Bonjour", "Bonjour"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := StripSourceEcho(c.source, c.translated); got != c.want {
				t.Errorf("got %q, want %q", got, c.want)
			}
		})
	}
}

func TestFormatSkipsEmptyAndKeepsOrder(t *testing.T) {
	out := Format([]Translation{
		{Lang: "th", Text: "สวัสดี"},
		{Lang: "ja", Text: ""},
		{Lang: "en", Text: "Hello"},
	})

	if !strings.Contains(out, "สวัสดี") || !strings.Contains(out, "Hello") {
		t.Fatalf("output = %q", out)
	}
	if strings.Index(out, "สวัสดี") > strings.Index(out, "Hello") {
		t.Error("lines out of order")
	}
	if strings.Count(out, "\n\n") != 1 {
		t.Errorf("separator count = %d, want 1", strings.Count(out, "\n\n"))
	}
}

func TestFormatWrapsRTL(t *testing.T) {
	out := Format([]Translation{{Lang: "ar", Text: "مرحبا"}})
	if !strings.HasPrefix(out, "\u200F\u202B") {
		t.Error("missing RTL embedding prefix")
	}
	if !strings.HasSuffix(out, "\u202C\u200F") {
		t.Error("missing RTL embedding suffix")
	}
}

func TestFormatTruncatesAtCap(t *testing.T) {
	long := strings.Repeat("あ", MaxReplyLength+100)
	out := Format([]Translation{{Lang: "ja", Text: long}})
	if n := len([]rune(out)); n > MaxReplyLength {
		t.Errorf("len = %d runes, cap is %d", n, MaxReplyLength)
	}
}

func TestBuildStripsEchoPerLine(t *testing.T) {
	out := Build("Hello", []Translation{
		{Lang: "fr", Text: "Hello - Bonjour"},
		{Lang: "en", Text: "Hello"},
	})
	if strings.Contains(out, "Hello") {
		t.Errorf("source echo survived: %q", out)
	}
	if !strings.Contains(out, "Bonjour") {
		t.Errorf("translation missing: %q", out)
	}
}
