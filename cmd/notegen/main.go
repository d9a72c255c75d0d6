// Notegen server provides the HTTP session control surface and runs
// the subject-aware meeting note generation pipeline.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/scribeworks/notegen/pkg/api"
	"github.com/scribeworks/notegen/pkg/config"
	"github.com/scribeworks/notegen/pkg/database"
	"github.com/scribeworks/notegen/pkg/events"
	"github.com/scribeworks/notegen/pkg/llm"
	"github.com/scribeworks/notegen/pkg/session"
	"github.com/scribeworks/notegen/pkg/store"
)

func main() {
	envPath := flag.String("env-file", ".env", "Path to environment file")
	flag.Parse()

	// Load .env, continuing with the existing environment when absent
	if err := godotenv.Load(*envPath); err != nil {
		slog.Warn("Could not load env file, continuing with existing environment",
			"path", *envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", *envPath)
	}

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("Starting notegen",
		"http_port", cfg.HTTPPort,
		"store_backend", cfg.StoreBackend,
		"strictness", cfg.Pipeline.StrictnessMode)

	// 2. Storage backend and event sink
	var stores store.Stores
	var sink events.Sink
	var dbClient *database.Client

	switch cfg.StoreBackend {
	case "postgres":
		dbConfig, err := database.LoadConfigFromEnv()
		if err != nil {
			slog.Error("Failed to load database config", "error", err)
			os.Exit(1)
		}
		dbClient, err = database.NewClient(ctx, dbConfig)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				slog.Error("Error closing database client", "error", err)
			}
		}()
		stores = store.NewPostgres(dbClient.DB()).Stores()
		sink = events.NewPublisher(dbClient.DB())
		slog.Info("Connected to PostgreSQL database")
	case "memory":
		stores = store.NewMemory().Stores()
		sink = events.LogSink{}
		slog.Info("Using in-memory store")
	}

	// 3. LLM provider; an unreachable provider is fatal at startup
	provider := llm.NewHTTPClient(cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.APIKey)
	health := provider.CheckHealth(ctx, true)
	if !health.Healthy {
		slog.Error("LLM provider unavailable", "base_url", cfg.LLM.BaseURL, "error", health.Error)
		os.Exit(1)
	}
	slog.Info("LLM provider healthy", "model", health.LoadedModel)

	// 4. Session registry
	registry := session.NewRegistry(session.Deps{
		Provider:     provider,
		Stores:       stores,
		Sink:         sink,
		Pipeline:     cfg.Pipeline,
		TickInterval: cfg.TickInterval,
	})

	// 5. HTTP server (non-blocking)
	var apiServer *api.Server
	if dbClient != nil {
		apiServer = api.NewServer(registry, provider, dbClient.DB())
	} else {
		apiServer = api.NewServer(registry, provider, nil)
	}
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: apiServer.Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	// 6. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 7. Graceful shutdown: finalize running sessions so their notes are
	// persisted, then stop the HTTP server
	shutdownCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		registry.StopAll(shutdownCtx)
		close(done)
	}()
	select {
	case <-done:
		slog.Info("All sessions finalized")
	case <-shutdownCtx.Done():
		slog.Warn("Session shutdown timeout exceeded")
	}

	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
