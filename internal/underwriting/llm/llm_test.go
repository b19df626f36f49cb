// internal/underwriting/llm/llm_test.go
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mortgage-underwriting/internal/common/config"
	"mortgage-underwriting/internal/common/logger"
)

func testOptions() Options {
	return Options{Temperature: 1, MaxTokens: 256, Timeout: 5 * time.Second, MaxRetries: 2}
}

// ==========================
// GenAI gateway
// ==========================

func TestGenAIClient_Generate_Success(t *testing.T) {
	var got genAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ai/generate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(genAIResponse{Text: "### Credit Analysis", Confidence: 0.9})
	}))
	defer server.Close()

	c := NewGenAIClient(server.URL, "key", testOptions(), logger.NewTestLogger(t))
	text, err := c.Generate(context.Background(), "system", "user")

	require.NoError(t, err)
	assert.Equal(t, "### Credit Analysis", text)
	assert.Equal(t, "system", got.SystemPrompt)
	assert.Equal(t, "user", got.Prompt)
	assert.Equal(t, 256, got.MaxTokens)
	assert.Equal(t, 1.0, got.Temperature)
}

func TestGenAIClient_RetriesServerErrorsWithFullBody(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req genAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "user", req.Prompt, "every attempt must carry the full body")

		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(genAIResponse{Text: "ok"})
	}))
	defer server.Close()

	c := NewGenAIClient(server.URL, "", testOptions(), logger.NewNoOpLogger())
	text, err := c.Generate(context.Background(), "system", "user")

	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGenAIClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad prompt", http.StatusBadRequest)
	}))
	defer server.Close()

	c := NewGenAIClient(server.URL, "", testOptions(), logger.NewNoOpLogger())
	_, err := c.Generate(context.Background(), "system", "user")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLLMGenerationFailed)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGenAIClient_ExhaustsRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewGenAIClient(server.URL, "", testOptions(), logger.NewNoOpLogger())
	_, err := c.Generate(context.Background(), "system", "user")

	assert.ErrorIs(t, err, ErrLLMGenerationFailed)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGenAIClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	opts := testOptions()
	opts.Timeout = 50 * time.Millisecond
	c := NewGenAIClient(server.URL, "", opts, logger.NewNoOpLogger())

	_, err := c.Generate(context.Background(), "system", "user")
	assert.ErrorIs(t, err, ErrLLMTimeout)
}

// ==========================
// Azure OpenAI
// ==========================

func TestAzureOpenAIClient_Generate(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/deployments/gpt-4o/chat/completions", r.URL.Path)
		assert.Equal(t, "2024-02-15-preview", r.URL.Query().Get("api-version"))
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"memo text"}}]}`))
	}))
	defer server.Close()

	c := NewAzureOpenAIClient(server.URL+"/", "secret", "gpt-4o", "2024-02-15-preview", testOptions(), logger.NewNoOpLogger())
	text, err := c.Generate(context.Background(), "sys", "usr")

	require.NoError(t, err)
	assert.Equal(t, "memo text", text)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, chatMessage{Role: "system", Content: "sys"}, got.Messages[0])
	assert.Equal(t, chatMessage{Role: "user", Content: "usr"}, got.Messages[1])
}

func TestAzureOpenAIClient_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCalls int32
	}{
		{name: "unauthorized is final", status: http.StatusUnauthorized, body: `{"error":"denied"}`, wantCalls: 1},
		{name: "rate limit is retried", status: http.StatusTooManyRequests, body: `{}`, wantCalls: 3},
		{name: "empty choices", status: http.StatusOK, body: `{"choices":[]}`, wantCalls: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := NewAzureOpenAIClient(server.URL, "k", "d", "v", testOptions(), logger.NewNoOpLogger())
			_, err := c.Generate(context.Background(), "s", "u")

			assert.ErrorIs(t, err, ErrLLMGenerationFailed)
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
		})
	}
}

// ==========================
// Gemini
// ==========================

func TestNewGeminiClient_RequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), "", "", testOptions(), logger.NewNoOpLogger())
	assert.Error(t, err)
}

func TestGeminiClient_Generate(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"gemini memo"}]}}]}`))
	}))
	defer server.Close()

	c, err := NewGeminiClient(context.Background(), "key", "", testOptions(), logger.NewNoOpLogger(),
		WithGeminiBaseURL(server.URL+"/"), WithGeminiHTTPClient(server.Client()))
	require.NoError(t, err)
	assert.Equal(t, DefaultGeminiModel, c.model)

	text, err := c.Generate(context.Background(), "sys", "usr")
	require.NoError(t, err)
	assert.Equal(t, "gemini memo", text)
	assert.True(t, strings.HasSuffix(path, ":generateContent"), path)
}

// ==========================
// Factory and instrumentation
// ==========================

func TestNewFromConfig(t *testing.T) {
	base := config.LLMConfig{Temperature: 1, Timeout: 1000, MaxRetries: 1}

	az := base
	az.Provider = config.ProviderAzureOpenAI
	g, err := NewFromConfig(context.Background(), az, logger.NewNoOpLogger())
	require.NoError(t, err)
	assert.IsType(t, &AzureOpenAIClient{}, g)

	ga := base
	ga.Provider = config.ProviderGenAI
	g, err = NewFromConfig(context.Background(), ga, logger.NewNoOpLogger())
	require.NoError(t, err)
	assert.IsType(t, &GenAIClient{}, g)

	bad := base
	bad.Provider = "parrot"
	_, err = NewFromConfig(context.Background(), bad, logger.NewNoOpLogger())
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

type fakeRecorder struct {
	results []string
}

func (f *fakeRecorder) RecordLLMRequest(provider, result string, _ time.Duration) {
	f.results = append(f.results, provider+":"+result)
}

func TestWithRecorder(t *testing.T) {
	rec := &fakeRecorder{}
	calls := 0
	g := WithRecorder(GeneratorFunc(func(ctx context.Context, s, u string) (string, error) {
		calls++
		switch calls {
		case 1:
			return "ok", nil
		case 2:
			return "", ErrLLMTimeout
		default:
			return "", errors.New("boom")
		}
	}), "genai", rec)

	for i := 0; i < 3; i++ {
		g.Generate(context.Background(), "s", "u")
	}

	assert.Equal(t, []string{"genai:success", "genai:timeout", "genai:error"}, rec.results)

	plain := GeneratorFunc(func(ctx context.Context, s, u string) (string, error) { return "", nil })
	assert.NotNil(t, WithRecorder(plain, "x", nil))
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, backoff(1))
	assert.Equal(t, 200*time.Millisecond, backoff(2))
	assert.Equal(t, 400*time.Millisecond, backoff(3))
}
