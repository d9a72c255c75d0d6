package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/scribeworks/notegen/pkg/models"
	"github.com/scribeworks/notegen/pkg/session"
)

// AddSegmentsRequest carries a batch of transcript segments.
type AddSegmentsRequest struct {
	Segments []models.Segment `json:"segments" binding:"required"`
}

// StartSession handles POST /api/meetings/:meetingId/session/start
func (s *Server) StartSession(c *gin.Context) {
	meetingID := c.Param("meetingId")

	controller, err := s.registry.Start(c.Request.Context(), meetingID)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, controller.Snapshot())
}

// AddSegments handles POST /api/meetings/:meetingId/session/segments
func (s *Server) AddSegments(c *gin.Context) {
	var req AddSegmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	controller, err := s.lookup(c)
	if err != nil {
		return
	}
	accepted, err := controller.AddSegments(c.Request.Context(), req.Segments)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": accepted})
}

// PauseSession handles POST /api/meetings/:meetingId/session/pause
func (s *Server) PauseSession(c *gin.Context) {
	controller, err := s.lookup(c)
	if err != nil {
		return
	}
	if err := controller.Pause(c.Request.Context()); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, controller.Snapshot())
}

// ResumeSession handles POST /api/meetings/:meetingId/session/resume
func (s *Server) ResumeSession(c *gin.Context) {
	controller, err := s.lookup(c)
	if err != nil {
		return
	}
	if err := controller.Resume(c.Request.Context()); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, controller.Snapshot())
}

// StopSession handles POST /api/meetings/:meetingId/session/stop.
// Finalization runs synchronously; the response carries the structured
// output and audit trail.
func (s *Server) StopSession(c *gin.Context) {
	meetingID := c.Param("meetingId")

	outcome, err := s.registry.Stop(c.Request.Context(), meetingID)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNoSession):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, session.ErrSessionInactive):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// SessionStatus handles GET /api/meetings/:meetingId/session/status
func (s *Server) SessionStatus(c *gin.Context) {
	controller, err := s.lookup(c)
	if err != nil {
		return
	}
	c.JSON(http.StatusOK, controller.Snapshot())
}

// lookup resolves the meeting's running controller, writing the 404
// response itself when there is none.
func (s *Server) lookup(c *gin.Context) (*session.Controller, error) {
	meetingID := c.Param("meetingId")
	controller, err := s.registry.Get(meetingID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return nil, err
	}
	return controller, nil
}
