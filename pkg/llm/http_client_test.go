package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatCompleteSendsOpenAIRequest(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "hello"}}]}`))
	}))
	defer server.Close()

	c := NewHTTPClient(server.URL, "test-model", "secret")
	text, err := c.ChatComplete(context.Background(), []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "usr"},
	}, 256, 0.3)

	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, 256, got.MaxTokens)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 2)
}

func TestChatCompleteErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
	}{
		{"http error status", http.StatusBadGateway, "upstream down", ErrCallFailed},
		{"error envelope", http.StatusOK, `{"error": {"message": "model not loaded"}}`, ErrCallFailed},
		{"no choices", http.StatusOK, `{"choices": []}`, ErrEmptyResponse},
		{"garbage body", http.StatusOK, "<html>", ErrCallFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			c := NewHTTPClient(server.URL, "m", "")
			_, err := c.ChatComplete(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, 10, 0)
			assert.True(t, errors.Is(err, tc.sentinel), "got %v", err)
		})
	}
}

func TestCheckHealthCachesProbe(t *testing.T) {
	var probes atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/models", r.URL.Path)
		probes.Add(1)
		_, _ = w.Write([]byte(`{"data": [{"id": "local-model"}]}`))
	}))
	defer server.Close()

	c := NewHTTPClient(server.URL, "", "")
	ctx := context.Background()

	status := c.CheckHealth(ctx, false)
	assert.True(t, status.Healthy)
	// The model name falls back to the first served model.
	assert.Equal(t, "local-model", status.LoadedModel)

	c.CheckHealth(ctx, false)
	assert.Equal(t, int32(1), probes.Load())

	c.CheckHealth(ctx, true)
	assert.Equal(t, int32(2), probes.Load())
}

func TestCheckHealthUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	c := NewHTTPClient(server.URL, "m", "")
	status := c.CheckHealth(context.Background(), true)
	assert.False(t, status.Healthy)
	assert.NotEmpty(t, status.Error)
}

func TestMockProviderScriptExhaustionRepeatsLast(t *testing.T) {
	m := NewMockProvider(MockResponse{Text: "first"}, MockResponse{Text: "second"})
	ctx := context.Background()

	for _, want := range []string{"first", "second", "second"} {
		text, err := m.ChatComplete(ctx, nil, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, want, text)
	}
	assert.Equal(t, 3, m.CallCount())
}
