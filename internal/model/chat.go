package model

import "time"

// Chat roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one append-only transcript entry
type ChatMessage struct {
	ID        string                `json:"id"`
	Role      string                `json:"role"`
	Content   string                `json:"content"`
	Products  []ProductSearchResult `json:"products,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}

// ChatTranscript is the backend-held history of a chat session
type ChatTranscript struct {
	SessionID string        `json:"session_id"`
	Messages  []ChatMessage `json:"messages"`
}
