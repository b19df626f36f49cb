// internal/underwriting/llm/llm.go
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"mortgage-underwriting/internal/common/config"
	"mortgage-underwriting/internal/common/logger"
)

var (
	ErrLLMTimeout          = errors.New("LLM_TIMEOUT")
	ErrLLMGenerationFailed = errors.New("LLM_GENERATION_FAILED")
	ErrUnknownProvider     = errors.New("unknown llm provider")
)

// Generator produces free text from a system and a user prompt. Callers
// treat the result as opaque.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f(ctx, systemPrompt, userPrompt)
}

// Options are the settings shared by every provider.
type Options struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
}

func optionsFromConfig(cfg config.LLMConfig) Options {
	return Options{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     config.GetDuration(cfg.Timeout),
		MaxRetries:  cfg.MaxRetries,
	}
}

// NewFromConfig builds the generator selected by cfg.Provider.
func NewFromConfig(ctx context.Context, cfg config.LLMConfig, log logger.Logger) (Generator, error) {
	opts := optionsFromConfig(cfg)
	switch cfg.Provider {
	case config.ProviderAzureOpenAI:
		az := cfg.AzureOpenAI
		return NewAzureOpenAIClient(az.Endpoint, az.APIKey, az.ChatDeployment, az.APIVersion, opts, log), nil
	case config.ProviderGenAI:
		return NewGenAIClient(cfg.GenAI.BaseURL, cfg.GenAI.APIKey, opts, log), nil
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, opts, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// retryable reports whether an HTTP status is worth another attempt.
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// backoff returns the wait before the given attempt (1-based retries).
func backoff(attempt int) time.Duration {
	return time.Duration(100*(1<<(attempt-1))) * time.Millisecond
}

// statusError is a non-2xx provider response.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("status %d", e.status)
	}
	return fmt.Sprintf("status %d: %s", e.status, e.body)
}

// withRetry runs call up to maxRetries+1 times, backing off between attempts.
// Only transport errors and retryable statuses are retried.
func withRetry(ctx context.Context, maxRetries int, call func(ctx context.Context) (string, error)) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff(attempt)):
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", ErrLLMTimeout, ctx.Err())
			}
		}

		text, err := call(ctx)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", ErrLLMTimeout, ctx.Err())
		}
		var se *statusError
		if errors.As(err, &se) && !retryable(se.status) {
			break
		}
	}
	return "", fmt.Errorf("%w: %v", ErrLLMGenerationFailed, lastErr)
}

// Recorder receives one observation per generation call.
type Recorder interface {
	RecordLLMRequest(provider, result string, duration time.Duration)
}

type instrumented struct {
	next     Generator
	provider string
	rec      Recorder
}

// WithRecorder reports the outcome and latency of every call on g to rec.
func WithRecorder(g Generator, provider string, rec Recorder) Generator {
	if rec == nil {
		return g
	}
	return &instrumented{next: g, provider: provider, rec: rec}
}

func (i *instrumented) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()
	text, err := i.next.Generate(ctx, systemPrompt, userPrompt)

	result := "success"
	switch {
	case errors.Is(err, ErrLLMTimeout):
		result = "timeout"
	case err != nil:
		result = "error"
	}
	i.rec.RecordLLMRequest(i.provider, result, time.Since(start))
	return text, err
}
