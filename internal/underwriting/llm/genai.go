// internal/underwriting/llm/genai.go
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	commonhttp "mortgage-underwriting/internal/common/http"
	"mortgage-underwriting/internal/common/logger"
)

// GenAIClient calls the internal generation gateway
// (POST {baseURL}/api/ai/generate).
type GenAIClient struct {
	baseURL string
	apiKey  string
	opts    Options
	client  *commonhttp.Client
	logger  logger.Logger
}

func NewGenAIClient(baseURL, apiKey string, opts Options, log logger.Logger) *GenAIClient {
	return &GenAIClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		opts:    opts,
		client:  commonhttp.NewClient(0),
		logger:  log.With(map[string]interface{}{"provider": "genai"}),
	}
}

type genAIRequest struct {
	Prompt       string  `json:"prompt"`
	SystemPrompt string  `json:"system_prompt"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	Temperature  float64 `json:"temperature"`
}

type genAIResponse struct {
	Text       string   `json:"text"`
	Confidence float64  `json:"confidence"`
	Sources    []string `json:"sources"`
}

func (c *GenAIClient) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(genAIRequest{
		Prompt:       userPrompt,
		SystemPrompt: systemPrompt,
		MaxTokens:    c.opts.MaxTokens,
		Temperature:  c.opts.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLLMGenerationFailed, err)
	}

	text, err := withRetry(ctx, c.opts.MaxRetries, func(ctx context.Context) (string, error) {
		return c.post(ctx, body)
	})
	if err != nil {
		c.logger.Error("generation failed", map[string]interface{}{"error": err.Error()})
		return "", err
	}
	return text, nil
}

func (c *GenAIClient) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/ai/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &statusError{status: resp.StatusCode, body: string(msg)}
	}

	var out genAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode error: %w", err)
	}

	c.logger.Debug("generation completed", map[string]interface{}{
		"confidence":  out.Confidence,
		"sourceCount": len(out.Sources),
	})
	return out.Text, nil
}
