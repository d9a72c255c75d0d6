package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// healthCacheTTL bounds how long a health probe result is reused when
// force=false.
const healthCacheTTL = 30 * time.Second

// HTTPClient is a Provider backed by an OpenAI-compatible HTTP endpoint
// (LM Studio, Ollama, vLLM, or any /v1/chat/completions server).
type HTTPClient struct {
	baseURL string
	model   string
	apiKey  string
	httpc   *http.Client

	mu         sync.Mutex
	lastProbe  time.Time
	lastHealth HealthStatus
	probedOnce bool
}

// NewHTTPClient creates a provider client. baseURL is the server root
// (e.g. "http://localhost:1234"); apiKey may be empty for local servers.
func NewHTTPClient(baseURL, model, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: 120 * time.Second},
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ChatComplete implements Provider.
func (c *HTTPClient) ChatComplete(ctx context.Context, messages []Message, maxTokens int, temperature float64) (string, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Stream:      false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCallFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", ErrCallFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrCallFailed, resp.StatusCode, truncateForLog(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrCallFailed, err)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return "", fmt.Errorf("%w: %s", ErrCallFailed, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	return parsed.Choices[0].Message.Content, nil
}

type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// CheckHealth implements Provider. Results are cached for healthCacheTTL
// unless force is set.
func (c *HTTPClient) CheckHealth(ctx context.Context, force bool) HealthStatus {
	c.mu.Lock()
	if !force && c.probedOnce && time.Since(c.lastProbe) < healthCacheTTL {
		cached := c.lastHealth
		c.mu.Unlock()
		return cached
	}
	c.mu.Unlock()

	status := c.probe(ctx)

	c.mu.Lock()
	c.lastProbe = time.Now()
	c.lastHealth = status
	c.probedOnce = true
	c.mu.Unlock()

	if !status.Healthy {
		slog.Warn("LLM health probe failed", "base_url", c.baseURL, "error", status.Error)
	}
	return status
}

func (c *HTTPClient) probe(ctx context.Context) HealthStatus {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return HealthStatus{Healthy: false, Error: err.Error()}
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return HealthStatus{Healthy: false, Error: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return HealthStatus{Healthy: false, Error: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	var parsed modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return HealthStatus{Healthy: false, Error: fmt.Sprintf("decoding models list: %v", err)}
	}

	loaded := c.model
	if loaded == "" && len(parsed.Data) > 0 {
		loaded = parsed.Data[0].ID
	}
	return HealthStatus{Healthy: true, LoadedModel: loaded}
}

func truncateForLog(body []byte) string {
	const max = 500
	s := string(body)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
