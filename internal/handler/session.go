package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"storefront/internal/service"
)

const keepAliveInterval = 15 * time.Second

// SessionHandler opens and closes tab sessions and streams their events
type SessionHandler struct {
	sessions *service.SessionManager
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *service.SessionManager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type createSessionRequest struct {
	BrowserID string `json:"browser_id" validate:"omitempty,max=128"`
	UserID    string `json:"user_id" validate:"omitempty,max=128"`
}

// Create handles POST /api/v1/sessions
func (h *SessionHandler) Create(c *gin.Context) {
	var req createSessionRequest
	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, &req); err != nil {
			respondError(c, err)
			return
		}
	}

	s := h.sessions.Create(req.BrowserID, req.UserID)
	c.JSON(http.StatusCreated, s.SessionInfo)
}

// Get handles GET /api/v1/sessions/:id
func (h *SessionHandler) Get(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.SessionInfo)
}

// Delete handles DELETE /api/v1/sessions/:id
func (h *SessionHandler) Delete(c *gin.Context) {
	if !h.sessions.Delete(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found", "kind": "not_found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Events handles GET /api/v1/sessions/:id/events - SSE stream of session updates
func (h *SessionHandler) Events(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}

	events, cancel := s.Events.Subscribe()
	defer cancel()

	flusher, ok := startSSE(c)
	if !ok {
		return
	}
	sendSSE(c, "ready", s.SessionInfo)
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(c.Writer, ": ping\n\n")
			flusher.Flush()
		case event, open := <-events:
			if !open {
				sendSSE(c, "closed", nil)
				flusher.Flush()
				return
			}
			sendSSE(c, string(event.Type), event.Data)
			flusher.Flush()
		}
	}
}
