package translate_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/MrWong99/redub/pkg/provider/translate"
)

func TestStatusErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		rateLimited bool
		serverErr   bool
	}{
		{"rate limit", &translate.StatusError{StatusCode: 429}, true, false},
		{"server error", &translate.StatusError{StatusCode: 503}, false, true},
		{"bad request", &translate.StatusError{StatusCode: 400}, false, false},
		{"wrapped rate limit", fmt.Errorf("batch 3: %w", &translate.StatusError{StatusCode: 429}), true, false},
		{"plain error", errors.New("connection refused"), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := translate.IsRateLimited(tt.err); got != tt.rateLimited {
				t.Errorf("IsRateLimited = %v, want %v", got, tt.rateLimited)
			}
			if got := translate.IsServerErr(tt.err); got != tt.serverErr {
				t.Errorf("IsServerErr = %v, want %v", got, tt.serverErr)
			}
		})
	}
}

func TestStatusErrorMessage(t *testing.T) {
	err := &translate.StatusError{StatusCode: 502, Body: "bad gateway"}
	if !strings.Contains(err.Error(), "502") || !strings.Contains(err.Error(), "bad gateway") {
		t.Errorf("error %q should contain status and body", err)
	}
}

func TestLanguageName(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"de", "German"},
		{"pt-BR", "Brazilian Portuguese"},
		{"fr-CA", "French"},
		{"xx", "xx"},
	}
	for _, tt := range tests {
		if got := translate.LanguageName(tt.code); got != tt.want {
			t.Errorf("LanguageName(%q) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestSystemPrompt(t *testing.T) {
	prompt := translate.SystemPrompt(translate.Batch{
		SourceLang: "en",
		TargetLang: "es",
		Context:    "movie dialogue",
	})
	for _, want := range []string{"English", "Spanish", "movie dialogue"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt should mention %q:\n%s", want, prompt)
		}
	}
}

func TestSystemPrompt_DefaultContext(t *testing.T) {
	prompt := translate.SystemPrompt(translate.Batch{SourceLang: "en", TargetLang: "de"})
	if !strings.Contains(prompt, "spoken dialogue") {
		t.Errorf("prompt should fall back to a generic material hint:\n%s", prompt)
	}
}
