package domain

import (
	"testing"
	"time"
)

func TestProfileFallbacks(t *testing.T) {
	t.Parallel()

	// A nil profile must degrade to the global constants.
	var p *ModelProfile

	if got := p.TokensPerCard(CardTypeBasic); got != FallbackTokensPerCard {
		t.Errorf("Expected %d tokens per basic card, got %d", FallbackTokensPerCard, got)
	}
	if got := p.TokensPerCard(CardTypeMCQ); got != FallbackTokensPerCardMCQ {
		t.Errorf("Expected %d tokens per mcq card, got %d", FallbackTokensPerCardMCQ, got)
	}
	if got := p.MaxOutputTokens(); got != DefaultMaxOutputTokens {
		t.Errorf("Expected %d max output tokens, got %d", DefaultMaxOutputTokens, got)
	}
	if got := p.Context(); got != DefaultContextLength {
		t.Errorf("Expected %d context length, got %d", DefaultContextLength, got)
	}
}

func TestMaxOutputTokensCaps(t *testing.T) {
	t.Parallel()

	// Profile default above the global cap is clamped down.
	p := &ModelProfile{MaxOutputDefault: 8000}
	if got := p.MaxOutputTokens(); got != DefaultMaxOutputTokens {
		t.Errorf("Expected clamp to %d, got %d", DefaultMaxOutputTokens, got)
	}

	// Profile maximum caps the default.
	p = &ModelProfile{MaxOutputDefault: 4000, MaxOutputMaximum: 2000}
	if got := p.MaxOutputTokens(); got != 2000 {
		t.Errorf("Expected profile maximum 2000, got %d", got)
	}
}

func TestEstimateDuration(t *testing.T) {
	t.Parallel()

	p := &ModelProfile{
		CardMetrics: map[CardType]CardTypeMetrics{
			CardTypeBasic: {SecondsPerCard: 4},
		},
	}

	if got := p.EstimateDuration(CardTypeBasic, 5); got != 20*time.Second {
		t.Errorf("Expected 20s, got %v", got)
	}

	// Unprofiled type falls back to the mcq constant.
	want := time.Duration(FallbackSecondsPerCardMCQ * 2 * float64(time.Second))
	if got := p.EstimateDuration(CardTypeMCQ, 2); got != want {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestProfileTableLookup(t *testing.T) {
	t.Parallel()

	table := DefaultProfiles()

	p := table.Lookup("openai", "gpt-4o-mini")
	if p == nil {
		t.Fatal("Expected built-in profile for openai/gpt-4o-mini")
	}
	if p.Model != "gpt-4o-mini" {
		t.Errorf("Expected model gpt-4o-mini, got %q", p.Model)
	}

	if got := table.Lookup("openai", "no-such-model"); got != nil {
		t.Errorf("Expected nil for unknown model, got %+v", got)
	}

	var empty ProfileTable
	if got := empty.Lookup("openai", "gpt-4o-mini"); got != nil {
		t.Errorf("Expected nil from nil table, got %+v", got)
	}
}

func TestProfileTableOverlay(t *testing.T) {
	t.Parallel()

	table := DefaultProfiles().Overlay(map[string]*ModelProfile{
		"openai/gpt-4o-mini": {
			Provider:         "openai",
			Model:            "gpt-4o-mini",
			MaxOutputDefault: 1000,
		},
		"ollama/llama3": {
			Provider:      "ollama",
			Model:         "llama3",
			ContextLength: 8192,
		},
		"openai/skip-me": nil,
	})

	// Override replaces the built-in wholesale.
	p := table.Lookup("openai", "gpt-4o-mini")
	if p == nil {
		t.Fatal("Expected overridden profile")
	}
	if got := p.MaxOutputTokens(); got != 1000 {
		t.Errorf("Expected overridden max output 1000, got %d", got)
	}

	// New entries become visible alongside the built-ins.
	if p = table.Lookup("ollama", "llama3"); p == nil || p.ContextLength != 8192 {
		t.Errorf("Expected added ollama profile, got %+v", p)
	}
	if table.Lookup("gemini", "gemini-2.0-flash") == nil {
		t.Error("Expected untouched built-in to survive overlay")
	}

	if table.Lookup("openai", "skip-me") != nil {
		t.Error("Expected nil override entry to be skipped")
	}
}
