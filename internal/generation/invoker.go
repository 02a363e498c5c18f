package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// InvokerConfig tunes the retry and failover behavior of provider calls.
type InvokerConfig struct {
	// MaxRetries is the number of additional attempts after the first
	// failed call, per provider.
	MaxRetries int

	// BaseDelay is the backoff base; attempt n waits roughly
	// BaseDelay * 2^n, scaled by jitter.
	BaseDelay time.Duration

	// CallTimeout bounds each individual provider call. Zero disables
	// the per-call timeout and leaves only the run-level deadline.
	CallTimeout time.Duration
}

// DefaultInvokerConfig returns an InvokerConfig with reasonable defaults.
func DefaultInvokerConfig() InvokerConfig {
	return InvokerConfig{
		MaxRetries:  3,
		BaseDelay:   2 * time.Second,
		CallTimeout: 120 * time.Second,
	}
}

// InvokeResult carries the raw response of a successful invocation plus
// the telemetry the orchestrator folds into RunStats.
type InvokeResult struct {
	Text         string
	OutputTokens int
	Provider     string
	Model        string
	Retries      int
	Failovers    int
}

// Invoker executes one work unit's request against the configured
// provider chain. The first provider is the primary; the rest are tried
// in order after the primary exhausts its retries on transient errors.
// Fatal errors (auth, malformed request, content policy) surface
// immediately without failover: replaying a rejected request against
// another backend cannot fix the request.
type Invoker struct {
	providers []Provider
	config    InvokerConfig
	logger    *slog.Logger
}

// NewInvoker creates an Invoker over the given provider chain.
func NewInvoker(providers []Provider, config InvokerConfig, logger *slog.Logger) (*Invoker, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("%w: at least one provider is required", ErrInvalidConfig)
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if config.MaxRetries < 0 {
		logger.Warn("invalid max retries value, using default", "max_retries", 3)
		config.MaxRetries = 3
	}
	if config.BaseDelay <= 0 {
		logger.Warn("invalid retry base delay, using default", "base_delay", "2s")
		config.BaseDelay = 2 * time.Second
	}

	return &Invoker{
		providers: providers,
		config:    config,
		logger:    logger,
	}, nil
}

// Primary returns the first provider in the chain, whose profile drives
// chunk planning.
func (iv *Invoker) Primary() Provider {
	return iv.providers[0]
}

// Invoke sends the prompt through the provider chain. The output token
// budget is recomputed against each provider's own profile, so failover
// never carries the primary's limits onto a backend with different ones.
// maxOutputTokens is an explicit override; zero means each profile's
// default.
func (iv *Invoker) Invoke(
	ctx context.Context,
	prompt string,
	temperature float64,
	maxOutputTokens int,
) (*InvokeResult, error) {
	result := &InvokeResult{}
	var lastErr error

	for i, provider := range iv.providers {
		if i > 0 {
			result.Failovers++
			iv.logger.WarnContext(ctx, "failing over to next provider",
				"provider", provider.Name(),
				"model", provider.Model(),
				"previous_error", lastErr)
		}

		budget := maxOutputTokens
		if budget <= 0 || budget > provider.Profile().MaxOutputTokens() {
			budget = provider.Profile().MaxOutputTokens()
		}

		resp, retries, err := iv.callWithRetry(ctx, provider, prompt, Params{
			Temperature:     temperature,
			MaxOutputTokens: budget,
		})
		result.Retries += retries
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				// Run cancelled; no point trying the rest of the chain.
				return result, fmt.Errorf("%w: %v", ErrTransientFailure, ctx.Err())
			}
			if !errors.Is(err, ErrTransientFailure) {
				// Fatal: the request itself was rejected, so no other
				// backend gets to see it.
				return result, err
			}
			continue
		}

		result.Text = resp.Text
		result.OutputTokens = resp.OutputTokens
		if result.OutputTokens == 0 {
			result.OutputTokens = EstimateTextTokens(resp.Text)
		}
		result.Provider = provider.Name()
		result.Model = resp.Model
		if result.Model == "" {
			result.Model = provider.Model()
		}
		return result, nil
	}

	return result, lastErr
}

// callWithRetry makes calls to a single provider with exponential
// backoff and jitter between attempts. Transient failures are retried up
// to the configured cap; fatal failures return immediately. The returned
// retry count is the number of re-attempts actually performed.
func (iv *Invoker) callWithRetry(
	ctx context.Context,
	provider Provider,
	prompt string,
	params Params,
) (*Response, int, error) {
	maxRetries := iv.config.MaxRetries
	retries := 0

	for attempt := 0; ; attempt++ {
		attemptNum := attempt + 1
		iv.logger.DebugContext(ctx, "making provider call",
			"provider", provider.Name(),
			"attempt", attemptNum,
			"max_attempts", maxRetries+1)

		resp, err := iv.call(ctx, provider, prompt, params)
		if err == nil {
			return resp, retries, nil
		}

		iv.logger.ErrorContext(ctx, "provider call failed",
			"provider", provider.Name(),
			"attempt", attemptNum,
			"error", err)

		if !IsTransient(err) {
			iv.logger.WarnContext(ctx, "fatal provider error, not retrying",
				"provider", provider.Name())
			return nil, retries, err
		}

		if attempt >= maxRetries {
			iv.logger.WarnContext(ctx, "maximum retry attempts reached",
				"provider", provider.Name(),
				"max_retries", maxRetries)
			return nil, retries, fmt.Errorf("%w: exceeded maximum retry attempts (%d): %v",
				ErrTransientFailure, maxRetries, err)
		}

		// delay = baseDelay * 2^attempt * (0.5 + rand(0, 0.5)). The
		// top-level rand source is safe for the concurrent dispatchers
		// that share this Invoker.
		backoff := float64(iv.config.BaseDelay) * math.Pow(2, float64(attempt))
		jitter := 0.5 + rand.Float64()*0.5
		delay := time.Duration(backoff * jitter)

		iv.logger.InfoContext(ctx, "retrying after delay",
			"provider", provider.Name(),
			"attempt", attemptNum,
			"delay", delay)

		select {
		case <-time.After(delay):
			retries++
		case <-ctx.Done():
			iv.logger.WarnContext(ctx, "call cancelled during retry delay",
				"provider", provider.Name(),
				"ctx_err", ctx.Err())
			return nil, retries, fmt.Errorf("%w: %v", ErrTransientFailure, ctx.Err())
		}
	}
}

// call performs one provider request under the per-call timeout.
func (iv *Invoker) call(
	ctx context.Context,
	provider Provider,
	prompt string,
	params Params,
) (*Response, error) {
	if iv.config.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, iv.config.CallTimeout)
		defer cancel()
	}
	return provider.Send(ctx, prompt, params)
}
