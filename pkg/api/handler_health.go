package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/scribeworks/notegen/pkg/database"
)

// Health handles GET /health: LLM provider health, database health when
// a database is configured, and the active session count.
func (s *Server) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	body := gin.H{
		"status":          "healthy",
		"active_sessions": s.registry.Active(),
	}
	healthy := true

	llmHealth := s.provider.CheckHealth(ctx, false)
	body["llm"] = llmHealth
	if !llmHealth.Healthy {
		healthy = false
	}

	if s.db != nil {
		dbHealth, err := database.Health(ctx, s.db)
		body["database"] = dbHealth
		if err != nil {
			healthy = false
		}
	}

	if !healthy {
		body["status"] = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}
