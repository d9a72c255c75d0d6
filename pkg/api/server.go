// Package api exposes the session control surface over HTTP: start,
// feed, pause, resume and stop a note generation session per meeting.
package api

import (
	"database/sql"

	"github.com/gin-gonic/gin"
	"github.com/scribeworks/notegen/pkg/llm"
	"github.com/scribeworks/notegen/pkg/session"
)

// Server represents the API server.
type Server struct {
	registry *session.Registry
	provider llm.Provider
	db       *sql.DB // nil with the in-memory backend
}

// NewServer creates a new API server. db may be nil when running without
// PostgreSQL.
func NewServer(registry *session.Registry, provider llm.Provider, db *sql.DB) *Server {
	return &Server{
		registry: registry,
		provider: provider,
		db:       db,
	}
}

// Routes builds the gin engine with all endpoints registered.
func (s *Server) Routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.Health)

	meetings := router.Group("/api/meetings/:meetingId/session")
	{
		meetings.POST("/start", s.StartSession)
		meetings.POST("/segments", s.AddSegments)
		meetings.POST("/pause", s.PauseSession)
		meetings.POST("/resume", s.ResumeSession)
		meetings.POST("/stop", s.StopSession)
		meetings.GET("/status", s.SessionStatus)
	}

	return router
}
