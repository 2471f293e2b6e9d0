package models

import (
	"errors"
	"strings"
	"testing"

	"github.com/curator-ai/curator/internal/config"
)

func TestResolveAuthDirectValues(t *testing.T) {
	got, err := ResolveAuth(config.ProviderConfig{
		Driver: "anthropic",
		Auth:   config.AuthConfig{APIKey: "sk-direct"},
	})
	if err != nil {
		t.Fatalf("ResolveAuth: %v", err)
	}
	if got.Kind != AuthAPIKey || got.Value != "sk-direct" {
		t.Errorf("got = %+v", got)
	}

	// Token wins over api_key when both are set.
	got, err = ResolveAuth(config.ProviderConfig{
		Driver: "openai",
		Auth:   config.AuthConfig{Token: "tok-1", APIKey: "sk-ignored"},
	})
	if err != nil {
		t.Fatalf("ResolveAuth: %v", err)
	}
	if got.Kind != AuthBearerToken || got.Value != "tok-1" {
		t.Errorf("got = %+v", got)
	}
}

func TestResolveAuthEnvExpansion(t *testing.T) {
	t.Setenv("MY_PROVIDER_KEY", "sk-from-env")

	got, err := ResolveAuth(config.ProviderConfig{
		Driver: "anthropic",
		Auth:   config.AuthConfig{APIKey: "${MY_PROVIDER_KEY}"},
	})
	if err != nil {
		t.Fatalf("ResolveAuth: %v", err)
	}
	if got.Value != "sk-from-env" {
		t.Errorf("value = %q", got.Value)
	}
}

func TestResolveAuthDriverDefaultEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-default")

	got, err := ResolveAuth(config.ProviderConfig{Driver: "anthropic"})
	if err != nil {
		t.Fatalf("ResolveAuth: %v", err)
	}
	if got.Kind != AuthAPIKey || got.Value != "sk-default" {
		t.Errorf("got = %+v", got)
	}
}

func TestResolveAuthMissing(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := ResolveAuth(config.ProviderConfig{Driver: "openai"}); err == nil {
		t.Error("expected error for missing credentials")
	}
	if _, err := ResolveAuth(config.ProviderConfig{Driver: "mystery"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestHandleErrorClassification(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"HTTP 401 Unauthorized", "authentication failed"},
		{"invalid api key provided", "authentication failed"},
		{"429 Too Many Requests", "rate limited"},
		{"monthly quota exceeded", "rate limited"},
		{"prompt exceeds context length", "context too long"},
		{"model not found: gpt-99", "model not found"},
		{"dial tcp 127.0.0.1:11434: connection refused", "connection error"},
	}

	for _, tt := range tests {
		inner := errors.New(tt.in)
		got := HandleError(inner)
		if got == nil || !strings.Contains(got.Error(), tt.want) {
			t.Errorf("HandleError(%q) = %v, want prefix %q", tt.in, got, tt.want)
		}
		if !errors.Is(got, inner) {
			t.Errorf("HandleError(%q) does not wrap the cause", tt.in)
		}
	}
}

func TestHandleErrorPassthrough(t *testing.T) {
	if HandleError(nil) != nil {
		t.Error("nil should stay nil")
	}

	plain := errors.New("something else entirely")
	if got := HandleError(plain); got != plain {
		t.Errorf("unclassified error rewritten: %v", got)
	}
}
