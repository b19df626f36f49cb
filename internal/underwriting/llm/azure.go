// internal/underwriting/llm/azure.go
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	commonhttp "mortgage-underwriting/internal/common/http"
	"mortgage-underwriting/internal/common/logger"
)

// AzureOpenAIClient calls the chat completions endpoint of an Azure OpenAI
// deployment.
type AzureOpenAIClient struct {
	endpoint   string
	apiKey     string
	deployment string
	apiVersion string
	opts       Options
	client     *commonhttp.Client
	logger     logger.Logger
}

func NewAzureOpenAIClient(endpoint, apiKey, deployment, apiVersion string, opts Options, log logger.Logger) *AzureOpenAIClient {
	return &AzureOpenAIClient{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		deployment: deployment,
		apiVersion: apiVersion,
		opts:       opts,
		client:     commonhttp.NewClient(0),
		logger: log.With(map[string]interface{}{
			"provider":   "azure_openai",
			"deployment": deployment,
		}),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *AzureOpenAIClient) url() string {
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		c.endpoint, url.PathEscape(c.deployment), url.QueryEscape(c.apiVersion))
}

func (c *AzureOpenAIClient) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLLMGenerationFailed, err)
	}

	text, err := withRetry(ctx, c.opts.MaxRetries, func(ctx context.Context) (string, error) {
		return c.post(ctx, body)
	})
	if err != nil {
		c.logger.Error("chat completion failed", map[string]interface{}{"error": err.Error()})
		return "", err
	}
	return text, nil
}

func (c *AzureOpenAIClient) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if len(raw) > 512 {
			raw = raw[:512]
		}
		return "", &statusError{status: resp.StatusCode, body: string(raw)}
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode error: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return out.Choices[0].Message.Content, nil
}
