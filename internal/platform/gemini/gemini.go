// Package gemini implements the generation.Provider interface on top of
// Google's Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/tomhalloin/cardgen/internal/domain"
	"github.com/tomhalloin/cardgen/internal/generation"
)

// Provider sends prompts to the Gemini API.
type Provider struct {
	// logger is used for structured logging
	logger *slog.Logger

	// client is the Gemini API client for making requests
	client *genai.Client

	// model is the name of the Gemini model to use
	model string

	// profile describes the model's throughput and limits
	profile *domain.ModelProfile
}

// New creates a Gemini-backed provider.
//
// Parameters:
//   - ctx: Context for the operation, which can be used for cancellation
//   - logger: A structured logger for operation logging
//   - apiKey: The Gemini API key
//   - model: The Gemini model name, e.g. "gemini-2.0-flash"
//   - profile: The model profile; nil selects conservative defaults
//
// Returns:
//   - A properly initialized Provider or an error if initialization fails
func New(ctx context.Context, logger *slog.Logger, apiKey, model string, profile *domain.ModelProfile) (*Provider, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if model == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			generation.ErrInvalidConfig, err)
	}

	return &Provider{
		logger:  logger,
		client:  client,
		model:   model,
		profile: profile,
	}, nil
}

// Name implements generation.Provider.
func (p *Provider) Name() string { return "gemini" }

// Model implements generation.Provider.
func (p *Provider) Model() string { return p.model }

// Profile implements generation.Provider.
func (p *Provider) Profile() *domain.ModelProfile { return p.profile }

// Send makes a single Gemini API call. Transport errors are reported as
// transient; safety blocks and empty responses are permanent.
func (p *Provider) Send(ctx context.Context, prompt string, params generation.Params) (*generation.Response, error) {
	cfg := &genai.GenerateContentConfig{}
	if params.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(params.Temperature))
	}
	if params.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(params.MaxOutputTokens)
	}

	p.logger.DebugContext(ctx, "Making Gemini API call",
		"model", p.model,
		"prompt_length", len(prompt))

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), cfg)
	if err != nil {
		return nil, &generation.ProviderError{
			Provider:  p.Name(),
			Transient: true,
			Err:       fmt.Errorf("gemini API call error: %w", err),
		}
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("%w: content blocked by safety filters", generation.ErrContentBlocked)
	}
	if candidate.Content == nil {
		return nil, fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("%w: empty response text", generation.ErrInvalidResponse)
	}

	out := &generation.Response{
		Text:  text,
		Model: p.model,
	}
	if usage := resp.UsageMetadata; usage != nil {
		out.InputTokens = int(usage.PromptTokenCount)
		out.OutputTokens = int(usage.CandidatesTokenCount)
	}

	p.logger.DebugContext(ctx, "Gemini API call successful",
		"model", p.model,
		"response_length", len(text),
		"output_tokens", out.OutputTokens)

	return out, nil
}
