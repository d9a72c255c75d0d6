// Package config holds the note generation service configuration:
// pipeline tuning knobs, LLM provider settings, and service-level
// options, loaded from the environment with typed defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/scribeworks/notegen/pkg/models"
)

// Pipeline contains the tuning knobs of the note generation core.
type Pipeline struct {
	// Chunking
	MinChunkWindowMs    int64 // minimum chunk window duration
	MaxChunkWindowMs    int64 // maximum chunk window duration
	BatchIntervalMs     int64 // minimum gap between chunk completions
	MinSegmentsPerChunk int
	MaxSegmentsPerChunk int

	// Subject estimation
	MinScopeKeywords int
	MaxScopeKeywords int

	// Filtering
	StrictnessMode models.StrictnessMode

	// LLM call parameters
	MaxTokens   int
	Temperature float64

	// Debug data retention: persist non-final candidates and draft
	// relevance labels for live-pass observability.
	StoreDebugData bool
}

// LLM contains provider connection settings.
type LLM struct {
	BaseURL string
	Model   string
	APIKey  string
}

// Config is the umbrella configuration object for the service.
type Config struct {
	HTTPPort     string
	StoreBackend string // "postgres" or "memory"
	Pipeline     Pipeline
	LLM          LLM

	// TickInterval drives the session controller's readiness checks.
	// Shortened in tests; 5s in production.
	TickInterval time.Duration
}

// DefaultPipeline returns the pipeline defaults.
func DefaultPipeline() Pipeline {
	return Pipeline{
		MinChunkWindowMs:    20000,
		MaxChunkWindowMs:    60000,
		BatchIntervalMs:     30000,
		MinSegmentsPerChunk: 2,
		MaxSegmentsPerChunk: 30,
		MinScopeKeywords:    5,
		MaxScopeKeywords:    15,
		StrictnessMode:      models.StrictnessStrict,
		MaxTokens:           4096,
		Temperature:         0.3,
		StoreDebugData:      true,
	}
}

// Load builds the configuration from the environment, applying defaults
// for anything unset.
func Load() (*Config, error) {
	pipeline := DefaultPipeline()

	var err error
	if pipeline.MinChunkWindowMs, err = envInt64("MIN_CHUNK_WINDOW_MS", pipeline.MinChunkWindowMs); err != nil {
		return nil, err
	}
	if pipeline.MaxChunkWindowMs, err = envInt64("MAX_CHUNK_WINDOW_MS", pipeline.MaxChunkWindowMs); err != nil {
		return nil, err
	}
	if pipeline.BatchIntervalMs, err = envInt64("BATCH_INTERVAL_MS", pipeline.BatchIntervalMs); err != nil {
		return nil, err
	}
	if pipeline.MinSegmentsPerChunk, err = envInt("MIN_SEGMENTS_PER_CHUNK", pipeline.MinSegmentsPerChunk); err != nil {
		return nil, err
	}
	if pipeline.MaxSegmentsPerChunk, err = envInt("MAX_SEGMENTS_PER_CHUNK", pipeline.MaxSegmentsPerChunk); err != nil {
		return nil, err
	}
	if pipeline.MinScopeKeywords, err = envInt("MIN_SCOPE_KEYWORDS", pipeline.MinScopeKeywords); err != nil {
		return nil, err
	}
	if pipeline.MaxScopeKeywords, err = envInt("MAX_SCOPE_KEYWORDS", pipeline.MaxScopeKeywords); err != nil {
		return nil, err
	}
	if pipeline.MaxTokens, err = envInt("LLM_MAX_TOKENS", pipeline.MaxTokens); err != nil {
		return nil, err
	}
	if pipeline.Temperature, err = envFloat("LLM_TEMPERATURE", pipeline.Temperature); err != nil {
		return nil, err
	}
	if v := os.Getenv("STORE_DEBUG_DATA"); v != "" {
		parsed, parseErr := strconv.ParseBool(v)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid STORE_DEBUG_DATA %q: %w", v, parseErr)
		}
		pipeline.StoreDebugData = parsed
	}
	if v := os.Getenv("STRICTNESS_MODE"); v != "" {
		mode, parseErr := models.ParseStrictnessMode(v)
		if parseErr != nil {
			return nil, parseErr
		}
		pipeline.StrictnessMode = mode
	}

	cfg := &Config{
		HTTPPort:     envString("HTTP_PORT", "8080"),
		StoreBackend: envString("STORE_BACKEND", "postgres"),
		Pipeline:     pipeline,
		LLM: LLM{
			BaseURL: envString("LLM_BASE_URL", "http://localhost:1234"),
			Model:   envString("LLM_MODEL", ""),
			APIKey:  os.Getenv("LLM_API_KEY"),
		},
		TickInterval: 5 * time.Second,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	p := c.Pipeline
	if p.MinChunkWindowMs <= 0 || p.MaxChunkWindowMs <= 0 {
		return fmt.Errorf("chunk window durations must be positive")
	}
	if p.MinChunkWindowMs > p.MaxChunkWindowMs {
		return fmt.Errorf("min chunk window (%d) exceeds max (%d)", p.MinChunkWindowMs, p.MaxChunkWindowMs)
	}
	if p.MinSegmentsPerChunk < 1 {
		return fmt.Errorf("min segments per chunk must be at least 1")
	}
	if p.MinSegmentsPerChunk > p.MaxSegmentsPerChunk {
		return fmt.Errorf("min segments per chunk (%d) exceeds max (%d)", p.MinSegmentsPerChunk, p.MaxSegmentsPerChunk)
	}
	if p.MinScopeKeywords < 1 || p.MinScopeKeywords > p.MaxScopeKeywords {
		return fmt.Errorf("invalid scope keyword bounds [%d, %d]", p.MinScopeKeywords, p.MaxScopeKeywords)
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		return fmt.Errorf("temperature %v out of range [0, 2]", p.Temperature)
	}
	switch c.StoreBackend {
	case "postgres", "memory":
	default:
		return fmt.Errorf("invalid store backend: %q", c.StoreBackend)
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return parsed, nil
}

func envInt64(key string, def int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return parsed, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return parsed, nil
}
