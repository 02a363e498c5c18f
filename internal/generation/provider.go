package generation

import (
	"context"

	"github.com/tomhalloin/cardgen/internal/domain"
)

// Params carries the per-call generation parameters a provider needs.
// MaxOutputTokens is always resolved against the profile of the provider
// actually handling the call, so a failover target receives a budget
// computed from its own limits rather than the primary's.
type Params struct {
	Temperature     float64
	MaxOutputTokens int
}

// Response is the result of a single provider call.
type Response struct {
	// Text is the raw model output.
	Text string

	// InputTokens and OutputTokens are the provider-reported token counts.
	// Zero values mean the provider did not report usage; callers fall
	// back to heuristic estimation.
	InputTokens  int
	OutputTokens int

	// Model is the concrete model that produced the response.
	Model string
}

// Provider defines the capability interface between the pipeline and an
// LLM backend. Implementations live under internal/platform and must
// return *ProviderError for call failures so the invoker can classify
// them as transient or fatal.
type Provider interface {
	// Name returns the provider identifier (openai, deepseek, ollama,
	// custom, gemini).
	Name() string

	// Model returns the model identifier this provider is configured with.
	Model() string

	// Profile returns the calibration profile for this provider's model,
	// or nil if none is registered. A nil profile means callers use the
	// global fallback constants.
	Profile() *domain.ModelProfile

	// Send executes one completion request. The context carries the
	// per-call timeout; cancellation must abort the underlying transport.
	Send(ctx context.Context, prompt string, params Params) (*Response, error)
}
