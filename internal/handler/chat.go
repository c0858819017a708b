package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/service"
)

// ChatHandler handles the shopping assistant transcript
type ChatHandler struct {
	sessions *service.SessionManager
}

// NewChatHandler creates a new chat handler
func NewChatHandler(sessions *service.SessionManager) *ChatHandler {
	return &ChatHandler{sessions: sessions}
}

// History handles GET /api/v1/sessions/:id/chat
func (h *ChatHandler) History(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	messages, err := s.Chat.History(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": s.Chat.SessionID(), "messages": messages})
}

type chatRequest struct {
	Message string `json:"message" validate:"required,max=2000"`
}

// Send handles POST /api/v1/sessions/:id/chat - SSE stream of the reply
func (h *ChatHandler) Send(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	var req chatRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	flusher, ok := startSSE(c)
	if !ok {
		return
	}

	reply, err := s.Chat.Send(c.Request.Context(), req.Message, func(delta string) {
		sendSSE(c, "delta", gin.H{"delta": delta})
		flusher.Flush()
	})
	if err != nil {
		sendSSE(c, "error", gin.H{"error": service.NewViewError(err)})
		flusher.Flush()
		return
	}

	s.Events.Publish(service.Event{Type: service.EventChat, Data: reply})
	sendSSE(c, "message", reply)
	sendSSE(c, "done", nil)
	flusher.Flush()
}
