// Package llm defines the LLM provider interface consumed by the note
// generation pipeline, an OpenAI-compatible HTTP implementation, and the
// defensive JSON coercion helpers used to parse model responses.
package llm

import (
	"context"
	"errors"
)

// Message roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is a single conversation message sent to the provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HealthStatus is the result of a provider health probe.
type HealthStatus struct {
	Healthy     bool   `json:"healthy"`
	LoadedModel string `json:"loaded_model,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Sentinel errors for provider failures.
var (
	// ErrUnavailable indicates no healthy provider is reachable.
	// Fatal to session start.
	ErrUnavailable = errors.New("llm provider unavailable")

	// ErrCallFailed indicates a transient completion failure.
	// Recoverable per chunk.
	ErrCallFailed = errors.New("llm call failed")

	// ErrEmptyResponse indicates the provider returned no choices.
	ErrEmptyResponse = errors.New("llm returned empty response")
)

// Provider is the opaque chat-completion capability the pipeline depends
// on. Implementations own their timeout policy; the pipeline treats any
// returned error as a per-call failure per the chunk retry semantics.
type Provider interface {
	// CheckHealth probes the provider. Implementations may cache the
	// result; force bypasses the cache.
	CheckHealth(ctx context.Context, force bool) HealthStatus

	// ChatComplete sends an ordered message list and returns the text of
	// the first choice.
	ChatComplete(ctx context.Context, messages []Message, maxTokens int, temperature float64) (string, error)
}
