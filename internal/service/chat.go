package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"storefront/internal/apperr"
	"storefront/internal/model"
	"storefront/internal/utils"
)

// ChatService is the local view of one backend-held chat transcript.
// The backend owns the history; messages are appended here as they are sent
// and replaced wholesale by the next History fetch.
type ChatService struct {
	backend   ChatBackend
	sessionID string
	clock     Clock
	log       *slog.Logger

	mu       sync.Mutex
	messages []model.ChatMessage
}

// NewChatService creates a chat view for sessionID
func NewChatService(backend ChatBackend, sessionID string, clock Clock, log *slog.Logger) *ChatService {
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &ChatService{backend: backend, sessionID: sessionID, clock: clock, log: log}
}

// SessionID returns the backend chat session id
func (s *ChatService) SessionID() string { return s.sessionID }

// History fetches the transcript from the backend
func (s *ChatService) History(ctx context.Context) ([]model.ChatMessage, error) {
	messages, err := s.backend.ChatHistory(ctx, s.sessionID)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		messages[i] = withEmbeddedProducts(messages[i])
	}

	s.mu.Lock()
	s.messages = append([]model.ChatMessage(nil), messages...)
	s.mu.Unlock()
	return messages, nil
}

// Messages returns the local transcript
func (s *ChatService) Messages() []model.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Send appends the user message, streams the assistant reply and appends it
// once complete. onDelta, when set, receives each streamed piece of text.
func (s *ChatService) Send(ctx context.Context, text string, onDelta func(string)) (model.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.ChatMessage{}, apperr.Validation("message is empty").WithOp("chat.Send")
	}

	s.append(model.ChatMessage{
		ID:        uuid.NewString(),
		Role:      model.RoleUser,
		Content:   text,
		CreatedAt: s.clock.Now().UTC(),
	})

	var (
		content  strings.Builder
		products []model.ProductSearchResult
	)
	err := s.backend.ChatStream(ctx, s.sessionID, text, func(chunk ChatChunk) error {
		content.WriteString(chunk.Delta)
		if len(chunk.Products) > 0 {
			products = append(products, chunk.Products...)
		}
		if onDelta != nil && chunk.Delta != "" {
			onDelta(chunk.Delta)
		}
		return nil
	})
	if err != nil {
		s.log.Warn("chat reply failed", "session_id", s.sessionID, "error", err)
		return model.ChatMessage{}, err
	}

	reply := withEmbeddedProducts(model.ChatMessage{
		ID:        uuid.NewString(),
		Role:      model.RoleAssistant,
		Content:   content.String(),
		Products:  products,
		CreatedAt: s.clock.Now().UTC(),
	})
	s.append(reply)
	return reply, nil
}

func (s *ChatService) append(msg model.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// withEmbeddedProducts lifts a product block out of an assistant reply that
// has no structured products
func withEmbeddedProducts(msg model.ChatMessage) model.ChatMessage {
	if msg.Role != model.RoleAssistant || len(msg.Products) > 0 {
		return msg
	}

	var wrapped struct {
		Products []model.ProductSearchResult `json:"products"`
	}
	if utils.ParseEmbeddedJSON(msg.Content, &wrapped) == nil && len(wrapped.Products) > 0 {
		msg.Products = wrapped.Products
	} else {
		var list []model.ProductSearchResult
		if utils.ParseEmbeddedJSON(msg.Content, &list) != nil || len(list) == 0 || list[0].ID == "" {
			return msg
		}
		msg.Products = list
	}

	if prose := utils.StripJSONBlocks(msg.Content); prose != "" {
		msg.Content = prose
	}
	return msg
}
