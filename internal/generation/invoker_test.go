package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomhalloin/cardgen/internal/domain"
)

// fakeProvider scripts a sequence of responses and errors and records
// every call it receives.
type fakeProvider struct {
	name    string
	model   string
	profile *domain.ModelProfile

	script []func() (*Response, error)
	calls  int
	params []Params
}

func (f *fakeProvider) Name() string                  { return f.name }
func (f *fakeProvider) Model() string                 { return f.model }
func (f *fakeProvider) Profile() *domain.ModelProfile { return f.profile }

func (f *fakeProvider) Send(ctx context.Context, prompt string, params Params) (*Response, error) {
	f.params = append(f.params, params)
	idx := f.calls
	f.calls++
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	return f.script[idx]()
}

func succeed(text string) func() (*Response, error) {
	return func() (*Response, error) {
		return &Response{Text: text, OutputTokens: 42}, nil
	}
}

func failTransient() func() (*Response, error) {
	return func() (*Response, error) {
		return nil, &ProviderError{Provider: "fake", StatusCode: 503, Transient: true, Err: errors.New("upstream unavailable")}
	}
}

func failFatal() func() (*Response, error) {
	return func() (*Response, error) {
		return nil, &ProviderError{Provider: "fake", StatusCode: 401, Transient: false, Err: errors.New("bad credentials")}
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastConfig() InvokerConfig {
	return InvokerConfig{MaxRetries: 3, BaseDelay: time.Millisecond, CallTimeout: time.Second}
}

func TestInvokeSuccessFirstAttempt(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{name: "openai", model: "gpt-4o-mini", script: []func() (*Response, error){succeed("response text")}}
	iv, err := NewInvoker([]Provider{p}, fastConfig(), testLogger())
	require.NoError(t, err)

	result, err := iv.Invoke(context.Background(), "prompt", 0.7, 0)
	require.NoError(t, err)
	assert.Equal(t, "response text", result.Text)
	assert.Equal(t, 42, result.OutputTokens)
	assert.Equal(t, "openai", result.Provider)
	assert.Equal(t, "gpt-4o-mini", result.Model)
	assert.Equal(t, 0, result.Retries)
	assert.Equal(t, 0, result.Failovers)
	assert.Equal(t, 1, p.calls)
}

func TestInvokeRetriesTransientErrors(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{name: "openai", model: "gpt-4o-mini", script: []func() (*Response, error){
		failTransient(),
		failTransient(),
		succeed("third time lucky"),
	}}
	iv, err := NewInvoker([]Provider{p}, fastConfig(), testLogger())
	require.NoError(t, err)

	result, err := iv.Invoke(context.Background(), "prompt", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "third time lucky", result.Text)
	assert.Equal(t, 2, result.Retries)
	assert.Equal(t, 0, result.Failovers)
	assert.Equal(t, 3, p.calls)
}

func TestInvokeExhaustsRetriesThenFails(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{name: "openai", model: "gpt-4o-mini", script: []func() (*Response, error){failTransient()}}
	cfg := fastConfig()
	cfg.MaxRetries = 2
	iv, err := NewInvoker([]Provider{p}, cfg, testLogger())
	require.NoError(t, err)

	_, err = iv.Invoke(context.Background(), "prompt", 0, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransientFailure)
	assert.Equal(t, 3, p.calls, "initial attempt plus two retries")
}

func TestInvokeFatalErrorFailsImmediately(t *testing.T) {
	t.Parallel()

	primary := &fakeProvider{name: "openai", model: "gpt-4o-mini", script: []func() (*Response, error){failFatal()}}
	backup := &fakeProvider{name: "deepseek", model: "deepseek-chat", script: []func() (*Response, error){succeed("from backup")}}

	iv, err := NewInvoker([]Provider{primary, backup}, fastConfig(), testLogger())
	require.NoError(t, err)

	result, err := iv.Invoke(context.Background(), "prompt", 0, 0)
	require.Error(t, err, "a rejected request must not be replayed against other backends")

	var pe *ProviderError
	assert.ErrorAs(t, err, &pe)
	assert.NotErrorIs(t, err, ErrTransientFailure)

	// Fatal errors skip both the retry schedule and the failover chain.
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, backup.calls)
	assert.Equal(t, 0, result.Retries)
	assert.Equal(t, 0, result.Failovers)
}

func TestInvokeFailsOverAfterRetryExhaustion(t *testing.T) {
	t.Parallel()

	primary := &fakeProvider{name: "openai", model: "gpt-4o-mini", script: []func() (*Response, error){failTransient()}}
	backup := &fakeProvider{name: "deepseek", model: "deepseek-chat", script: []func() (*Response, error){succeed("from backup")}}

	cfg := fastConfig()
	cfg.MaxRetries = 1
	iv, err := NewInvoker([]Provider{primary, backup}, cfg, testLogger())
	require.NoError(t, err)

	result, err := iv.Invoke(context.Background(), "prompt", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "from backup", result.Text)
	assert.Equal(t, "deepseek", result.Provider)
	assert.Equal(t, 1, result.Failovers)
	assert.Equal(t, 2, primary.calls, "initial attempt plus one retry before failing over")
}

func TestInvokeAllProvidersFail(t *testing.T) {
	t.Parallel()

	primary := &fakeProvider{name: "openai", model: "a", script: []func() (*Response, error){failTransient()}}
	backup := &fakeProvider{name: "deepseek", model: "b", script: []func() (*Response, error){failTransient()}}

	cfg := fastConfig()
	cfg.MaxRetries = 0
	iv, err := NewInvoker([]Provider{primary, backup}, cfg, testLogger())
	require.NoError(t, err)

	result, err := iv.Invoke(context.Background(), "prompt", 0, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransientFailure)
	assert.Equal(t, 1, result.Failovers)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, backup.calls)
}

func TestInvokeRecomputesBudgetPerProvider(t *testing.T) {
	t.Parallel()

	small := &domain.ModelProfile{MaxOutputDefault: 1000}
	primary := &fakeProvider{name: "openai", model: "a", profile: small, script: []func() (*Response, error){failTransient()}}
	backup := &fakeProvider{name: "deepseek", model: "b", script: []func() (*Response, error){succeed("ok")}}

	cfg := fastConfig()
	cfg.MaxRetries = 0
	iv, err := NewInvoker([]Provider{primary, backup}, cfg, testLogger())
	require.NoError(t, err)

	_, err = iv.Invoke(context.Background(), "prompt", 0, 4000)
	require.NoError(t, err)

	// The primary's profile caps the requested budget; the backup, with
	// no profile, accepts the request as-is.
	require.Len(t, primary.params, 1)
	assert.Equal(t, 1000, primary.params[0].MaxOutputTokens)
	require.Len(t, backup.params, 1)
	assert.Equal(t, 4000, backup.params[0].MaxOutputTokens)
}

func TestInvokeEstimatesMissingTokenUsage(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{name: "openai", model: "a", script: []func() (*Response, error){
		func() (*Response, error) {
			return &Response{Text: "some response text without usage"}, nil
		},
	}}
	iv, err := NewInvoker([]Provider{p}, fastConfig(), testLogger())
	require.NoError(t, err)

	result, err := iv.Invoke(context.Background(), "prompt", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, EstimateTextTokens("some response text without usage"), result.OutputTokens)
}

func TestInvokeConcurrentBackoff(t *testing.T) {
	t.Parallel()

	// One Invoker is shared by every dispatched work unit, so the jitter
	// computation must tolerate many goroutines backing off at once.
	// Exercised under the race detector.
	const goroutines = 32

	// Every prompt fails transiently on first sight, so all goroutines
	// sit in the backoff wait together before their retry succeeds.
	var seen sync.Map
	provider := &funcProvider{name: "openai", model: "a"}
	provider.send = func(ctx context.Context, prompt string, params Params) (*Response, error) {
		if _, loaded := seen.LoadOrStore(prompt, true); !loaded {
			return nil, &ProviderError{Provider: "openai", StatusCode: 503, Transient: true, Err: errors.New("warming up")}
		}
		return &Response{Text: "ok", OutputTokens: 1}, nil
	}

	iv, err := NewInvoker([]Provider{provider}, fastConfig(), testLogger())
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*InvokeResult, goroutines)
	errs := make([]error, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = iv.Invoke(context.Background(), fmt.Sprintf("prompt-%d", i), 0, 0)
		}(i)
	}
	wg.Wait()

	for i := 0; i < goroutines; i++ {
		require.NoError(t, errs[i], "goroutine %d", i)
		assert.Equal(t, 1, results[i].Retries, "goroutine %d", i)
	}
}

func TestInvokeCancelledContext(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{name: "openai", model: "a", script: []func() (*Response, error){failTransient()}}
	cfg := fastConfig()
	cfg.BaseDelay = time.Minute // force cancellation during the backoff wait
	iv, err := NewInvoker([]Provider{p}, cfg, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = iv.Invoke(ctx, "prompt", 0, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransientFailure)
	assert.Equal(t, 1, p.calls)
}

func TestNewInvokerValidation(t *testing.T) {
	t.Parallel()

	_, err := NewInvoker(nil, fastConfig(), testLogger())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	p := &fakeProvider{name: "openai", model: "a", script: []func() (*Response, error){succeed("x")}}
	_, err = NewInvoker([]Provider{p}, fastConfig(), nil)
	assert.Error(t, err)
}
