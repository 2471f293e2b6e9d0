package extractor

import (
	"testing"

	"github.com/curator-ai/curator/internal/intents"
)

func TestMatchPatternsQuoted(t *testing.T) {
	got := matchPatterns(`find "exact phrase" somewhere`)
	if len(got) != 1 {
		t.Fatalf("intents = %+v", got)
	}
	if got[0].Type != intents.TypeSearch || got[0].Query != "exact phrase" {
		t.Errorf("got = %+v", got[0])
	}
}

func TestMatchPatternsCurlyQuotes(t *testing.T) {
	got := matchPatterns(`find “curly phrase” please`)
	if len(got) != 1 || got[0].Query != "curly phrase" {
		t.Errorf("got = %+v", got)
	}
}

func TestMatchPatternsTags(t *testing.T) {
	got := matchPatterns("show me #cooking and #projets/maison notes")
	if len(got) != 2 {
		t.Fatalf("intents = %+v", got)
	}
	if got[0].Query != "#cooking" {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[1].Query != "#projets/maison" {
		t.Errorf("got[1] = %+v", got[1])
	}
}

func TestMatchPatternsMixedOrdered(t *testing.T) {
	got := matchPatterns(`look for "alpha" and #beta`)
	if len(got) != 2 {
		t.Fatalf("intents = %+v", got)
	}
	if got[0].Query != "alpha" || got[1].Query != "#beta" {
		t.Errorf("got = %+v", got)
	}
}

func TestMatchPatternsNone(t *testing.T) {
	if got := matchPatterns("just a plain sentence"); got != nil {
		t.Errorf("got = %+v, want nil", got)
	}
	// A # inside a word is not a tag.
	if got := matchPatterns("C# is a language"); got != nil {
		t.Errorf("got = %+v, want nil", got)
	}
}

func TestMatchPatternsEmptyQuotes(t *testing.T) {
	if got := matchPatterns(`say "" nothing`); got != nil {
		t.Errorf("got = %+v, want nil", got)
	}
}
