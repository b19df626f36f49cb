// internal/underwriting/llm/gemini.go
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"mortgage-underwriting/internal/common/logger"
)

const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiClient generates text through the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
	opts   Options
	logger logger.Logger
}

// GeminiOption customizes the SDK client.
type GeminiOption func(*genai.ClientConfig)

// WithGeminiBaseURL points the client at another API host.
func WithGeminiBaseURL(baseURL string) GeminiOption {
	return func(cc *genai.ClientConfig) {
		cc.HTTPOptions.BaseURL = baseURL
	}
}

// WithGeminiHTTPClient sets the HTTP client used by the SDK.
func WithGeminiHTTPClient(hc *http.Client) GeminiOption {
	return func(cc *genai.ClientConfig) {
		cc.HTTPClient = hc
	}
}

func NewGeminiClient(ctx context.Context, apiKey, model string, opts Options, log logger.Logger, options ...GeminiOption) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY is not set", ErrLLMGenerationFailed)
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, o := range options {
		o(cc)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiClient{
		client: client,
		model:  model,
		opts:   opts,
		logger: log.With(map[string]interface{}{"provider": "gemini", "model": model}),
	}, nil
}

func (c *GeminiClient) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(c.opts.Temperature)),
	}
	if c.opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(c.opts.MaxTokens)
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		}
	}

	text, err := withRetry(ctx, c.opts.MaxRetries, func(ctx context.Context) (string, error) {
		result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(userPrompt), cfg)
		if err != nil {
			return "", fromAPIError(err)
		}
		return result.Text(), nil
	})
	if err != nil {
		c.logger.Error("gemini generation failed", map[string]interface{}{"error": err.Error()})
		return "", err
	}
	return text, nil
}

// fromAPIError maps SDK API errors onto statusError so withRetry can tell
// retryable statuses apart.
func fromAPIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &statusError{status: apiErr.Code, body: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &statusError{status: apiErrPtr.Code, body: apiErrPtr.Message}
	}
	return err
}
