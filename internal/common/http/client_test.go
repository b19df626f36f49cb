// internal/common/http/client_test.go
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostJSON(t *testing.T) {
	var gotUA, gotAuth, gotType string
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	c := NewClient(5 * time.Second)
	resp, err := c.PostJSON(context.Background(), server.URL, map[string]string{"Authorization": "Bearer t"}, map[string]string{"case_id": "MTG-1"})
	require.NoError(t, err)

	assert.True(t, resp.OK())
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, DefaultUserAgent, gotUA)
	assert.Equal(t, "Bearer t", gotAuth)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "MTG-1", gotBody["case_id"])
}

func TestPostJSON_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	resp, err := NewClient(0, WithUserAgent("custom")).PostJSON(context.Background(), server.URL, nil, struct{}{})
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Contains(t, string(resp.Body), "overloaded")
}

func TestPostJSON_UnmarshalablePayload(t *testing.T) {
	_, err := NewClient(0).PostJSON(context.Background(), "http://127.0.0.1:0", nil, make(chan int))
	assert.Error(t, err)
}

func TestPostJSON_Canceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(0).PostJSON(ctx, server.URL, nil, map[string]string{})
	assert.ErrorIs(t, err, context.Canceled)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestWithTransport_KeepsExplicitUserAgent(t *testing.T) {
	var seen string
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		seen = r.Header.Get("User-Agent")
		return httptest.NewRecorder().Result(), nil
	})

	req, err := http.NewRequest(http.MethodGet, "http://example.invalid", nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "probe")

	_, err = NewClient(0, WithTransport(rt)).Do(req)
	require.NoError(t, err)
	assert.Equal(t, "probe", seen)
}
