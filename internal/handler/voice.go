package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/apperr"
	"storefront/internal/service"
)

// maxChunkBytes bounds a single uploaded audio chunk
const maxChunkBytes = 1 << 20

// VoiceHandler drives the voice recorder of a session
type VoiceHandler struct {
	sessions *service.SessionManager
}

// NewVoiceHandler creates a new voice handler
func NewVoiceHandler(sessions *service.SessionManager) *VoiceHandler {
	return &VoiceHandler{sessions: sessions}
}

type startVoiceRequest struct {
	ContentType      string `json:"content_type" validate:"omitempty,startswith=audio/"`
	PermissionDenied bool   `json:"permission_denied"`
}

// Status handles GET /api/v1/sessions/:id/voice
func (h *VoiceHandler) Status(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Voice.Status())
}

// Start handles POST /api/v1/sessions/:id/voice/start
func (h *VoiceHandler) Start(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	var req startVoiceRequest
	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, &req); err != nil {
			respondError(c, err)
			return
		}
	}

	err := s.Voice.Start(service.CaptureRequest{
		ContentType:      req.ContentType,
		PermissionDenied: req.PermissionDenied,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Voice.Status())
}

// Chunk handles POST /api/v1/sessions/:id/voice/chunk with raw audio as the body
func (h *VoiceHandler) Chunk(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}

	chunk, err := io.ReadAll(io.LimitReader(c.Request.Body, maxChunkBytes+1))
	if err != nil {
		respondError(c, apperr.Validation("failed to read audio chunk"))
		return
	}
	if len(chunk) > maxChunkBytes {
		respondError(c, apperr.Validation("audio chunk is too large"))
		return
	}

	if err := s.Voice.Write(chunk); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// Stop handles POST /api/v1/sessions/:id/voice/stop. The transcript is
// submitted as a search and the results are returned.
func (h *VoiceHandler) Stop(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	if err := s.Voice.Stop(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"voice":   s.Voice.Status(),
		"results": results(c, s),
	})
}

// Cancel handles POST /api/v1/sessions/:id/voice/cancel
func (h *VoiceHandler) Cancel(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	s.Voice.Cancel()
	c.JSON(http.StatusOK, s.Voice.Status())
}
