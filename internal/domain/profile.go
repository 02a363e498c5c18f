package domain

import "time"

// Global fallback calibration constants, used whenever a model profile is
// missing a per-card-type metric. The values come from empirical
// measurements of chat models generating cards and are tunable, not
// contractual.
const (
	FallbackTokensPerCard    = 150
	FallbackTokensPerCardMCQ = 500

	FallbackSecondsPerCard    = 5.0
	FallbackSecondsPerCardMCQ = 15.0

	// DefaultMaxOutputTokens balances generation quality against per-call
	// latency when a profile does not narrow it further.
	DefaultMaxOutputTokens = 4000

	// DefaultContextLength is assumed for models without a declared
	// context window.
	DefaultContextLength = 128000
)

// CardTypeMetrics holds the empirical per-card cost of one card type on
// a specific model.
type CardTypeMetrics struct {
	TokensPerCard  int     `mapstructure:"tokens_per_card"`
	SecondsPerCard float64 `mapstructure:"seconds_per_card"`
}

// ModelProfile is the static calibration record for one (provider, model)
// pair. Profiles are loaded once at process start and read-only afterwards.
type ModelProfile struct {
	Provider         string                       `mapstructure:"provider"`
	Model            string                       `mapstructure:"model"`
	ContextLength    int                          `mapstructure:"context_length"`
	MaxOutputDefault int                          `mapstructure:"max_output_default"`
	MaxOutputMaximum int                          `mapstructure:"max_output_maximum"`
	TokensPerSecond  float64                      `mapstructure:"tokens_per_second"`
	CardMetrics      map[CardType]CardTypeMetrics `mapstructure:"card_metrics"`
}

// TokensPerCard returns the calibrated token cost of one card of the
// given type, falling back to the global constants when the profile has
// no metric for it.
func (p *ModelProfile) TokensPerCard(cardType CardType) int {
	if p != nil {
		if m, ok := p.CardMetrics[cardType]; ok && m.TokensPerCard > 0 {
			return m.TokensPerCard
		}
	}
	if cardType == CardTypeMCQ {
		return FallbackTokensPerCardMCQ
	}
	return FallbackTokensPerCard
}

// SecondsPerCard returns the calibrated wall-clock cost of one card of
// the given type, with the same fallback behavior as TokensPerCard.
func (p *ModelProfile) SecondsPerCard(cardType CardType) float64 {
	if p != nil {
		if m, ok := p.CardMetrics[cardType]; ok && m.SecondsPerCard > 0 {
			return m.SecondsPerCard
		}
	}
	if cardType == CardTypeMCQ {
		return FallbackSecondsPerCardMCQ
	}
	return FallbackSecondsPerCard
}

// MaxOutputTokens resolves the per-call output token budget for this
// profile: the profile default capped by the profile maximum, itself
// capped by DefaultMaxOutputTokens.
func (p *ModelProfile) MaxOutputTokens() int {
	if p == nil {
		return DefaultMaxOutputTokens
	}
	max := p.MaxOutputDefault
	if max <= 0 {
		max = DefaultMaxOutputTokens
	}
	if p.MaxOutputMaximum > 0 && max > p.MaxOutputMaximum {
		max = p.MaxOutputMaximum
	}
	if max > DefaultMaxOutputTokens {
		max = DefaultMaxOutputTokens
	}
	return max
}

// Context returns the usable context length of the model.
func (p *ModelProfile) Context() int {
	if p == nil || p.ContextLength <= 0 {
		return DefaultContextLength
	}
	return p.ContextLength
}

// EstimateDuration converts a card count into an expected wall-clock
// duration for the given card type.
func (p *ModelProfile) EstimateDuration(cardType CardType, count int) time.Duration {
	return time.Duration(p.SecondsPerCard(cardType) * float64(count) * float64(time.Second))
}

// ProfileTable maps "provider/model" identifiers to calibration profiles.
type ProfileTable map[string]*ModelProfile

// Lookup returns the profile for the given provider and model, or nil if
// none is registered. Callers must treat a nil profile as "use fallback
// constants", never as an error.
func (t ProfileTable) Lookup(provider, model string) *ModelProfile {
	if t == nil {
		return nil
	}
	if p, ok := t[provider+"/"+model]; ok {
		return p
	}
	return nil
}

// Overlay merges override entries into the table, replacing built-ins
// with the same "provider/model" key. Nil overrides are ignored.
func (t ProfileTable) Overlay(overrides map[string]*ModelProfile) ProfileTable {
	for key, p := range overrides {
		if p == nil {
			continue
		}
		t[key] = p
	}
	return t
}

// DefaultProfiles returns the built-in calibration table. Config may
// overlay additional entries on top of these at load time.
func DefaultProfiles() ProfileTable {
	return ProfileTable{
		"openai/gpt-4o-mini": {
			Provider:         "openai",
			Model:            "gpt-4o-mini",
			ContextLength:    128000,
			MaxOutputDefault: 4000,
			MaxOutputMaximum: 16384,
			TokensPerSecond:  60,
			CardMetrics: map[CardType]CardTypeMetrics{
				CardTypeBasic: {TokensPerCard: 150, SecondsPerCard: 4},
				CardTypeCloze: {TokensPerCard: 150, SecondsPerCard: 4},
				CardTypeMCQ:   {TokensPerCard: 500, SecondsPerCard: 12},
			},
		},
		"deepseek/deepseek-chat": {
			Provider:         "deepseek",
			Model:            "deepseek-chat",
			ContextLength:    128000,
			MaxOutputDefault: 4000,
			MaxOutputMaximum: 8000,
			TokensPerSecond:  30,
			CardMetrics: map[CardType]CardTypeMetrics{
				CardTypeBasic: {TokensPerCard: 150, SecondsPerCard: 5},
				CardTypeCloze: {TokensPerCard: 150, SecondsPerCard: 5},
				CardTypeMCQ:   {TokensPerCard: 500, SecondsPerCard: 15},
			},
		},
		"gemini/gemini-2.0-flash": {
			Provider:         "gemini",
			Model:            "gemini-2.0-flash",
			ContextLength:    1000000,
			MaxOutputDefault: 4000,
			MaxOutputMaximum: 8192,
			TokensPerSecond:  80,
			CardMetrics: map[CardType]CardTypeMetrics{
				CardTypeBasic: {TokensPerCard: 150, SecondsPerCard: 3},
				CardTypeCloze: {TokensPerCard: 150, SecondsPerCard: 3},
				CardTypeMCQ:   {TokensPerCard: 500, SecondsPerCard: 10},
			},
		},
	}
}
