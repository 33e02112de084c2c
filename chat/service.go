// Package chat implements the conversation turn orchestration pipeline:
// conversation resolution, context assembly, completion invocation and turn
// persistence.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/chatbot/apperr"
	"github.com/example/chatbot/config"
	"github.com/example/chatbot/domain"
	"github.com/example/chatbot/logger"
	"github.com/example/chatbot/openai"
	"github.com/example/chatbot/store"
)

// titleMaxLength bounds the conversation title derived from the first user
// message.
const titleMaxLength = 50

// CompletionClient invokes the external completion provider.
type CompletionClient interface {
	Complete(ctx context.Context, messages []domain.PromptMessage) (string, error)
	Stream(ctx context.Context, messages []domain.PromptMessage) (<-chan openai.StreamEvent, error)
}

// Service orchestrates chat turns.
type Service struct {
	store  store.Store
	llm    CompletionClient
	window int
}

// NewService creates the chat service.
func NewService(st store.Store, llm CompletionClient, cfg config.ChatConfig) *Service {
	window := cfg.ContextSize
	if window < 1 {
		window = 1
	}
	return &Service{store: st, llm: llm, window: window}
}

// CreateCompletion runs one blocking chat turn for the given caller: resolve
// or create the conversation, persist the user turn, assemble the trailing
// context window, invoke the completion API and persist the assistant turn.
// The user turn is persisted before the upstream call so it survives an
// upstream failure; no assistant turn is persisted for a failed call.
func (s *Service) CreateCompletion(ctx context.Context, userID string, req domain.ChatCompletionRequest) (*domain.ChatCompletionResponse, error) {
	t := newTurn()

	conv, err := s.resolveConversation(ctx, userID, req)
	if err != nil {
		t.fail()
		return nil, err
	}

	userMsg := newMessage(conv.ConversationID, domain.RoleUser, req.Message)
	if err := s.store.CreateMessage(ctx, userMsg); err != nil {
		t.fail()
		return nil, fmt.Errorf("failed to persist user turn: %w", err)
	}

	prompt, err := s.buildContext(ctx, conv.ConversationID)
	if err != nil {
		t.fail()
		return nil, err
	}
	t.advance(triggerContextAssembled)

	t.advance(triggerInvoke)
	reply, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		t.fail()
		return nil, err
	}
	t.advance(triggerUpstreamReplied)

	assistantMsg := newMessage(conv.ConversationID, domain.RoleAssistant, reply)
	if err := s.store.CreateMessage(ctx, assistantMsg); err != nil {
		t.fail()
		return nil, fmt.Errorf("failed to persist assistant turn: %w", err)
	}
	t.advance(triggerPersisted)

	logger.L.Info("chat completion",
		"user_id", userID,
		"conversation_id", conv.ConversationID,
		"message_id", assistantMsg.MessageID)

	return &domain.ChatCompletionResponse{
		ConversationID: conv.ConversationID,
		Message:        *assistantMsg,
	}, nil
}

// resolveConversation validates the request and returns the conversation the
// turn belongs to, creating one when no id was supplied. All validation and
// ownership failures happen here, before anything is persisted.
func (s *Service) resolveConversation(ctx context.Context, userID string, req domain.ChatCompletionRequest) (*domain.Conversation, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, apperr.InvalidInput("message must not be blank")
	}

	if req.ConversationID == "" {
		now := time.Now()
		conv := &domain.Conversation{
			ConversationID: domain.NewConversationID(),
			UserID:         userID,
			Title:          titleFromMessage(req.Message),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.store.CreateConversation(ctx, conv); err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
		logger.L.Info("conversation created", "conversation_id", conv.ConversationID, "user_id", userID)
		return conv, nil
	}

	if !domain.ValidConversationID(req.ConversationID) {
		return nil, apperr.InvalidInput("conversation_id is not a valid identifier")
	}

	conv, err := s.store.GetConversation(ctx, req.ConversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv == nil {
		return nil, apperr.ConversationNotFound()
	}
	return conv, nil
}

// buildContext renders the trailing window of a conversation into the
// ordered prompt the completion API expects, oldest first. Read-only.
func (s *Service) buildContext(ctx context.Context, conversationID string) ([]domain.PromptMessage, error) {
	messages, err := s.store.GetMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation history: %w", err)
	}
	if len(messages) > s.window {
		messages = messages[len(messages)-s.window:]
	}

	prompt := make([]domain.PromptMessage, 0, len(messages))
	for _, m := range messages {
		prompt = append(prompt, domain.PromptMessage{Role: string(m.Role), Content: m.Content})
	}
	return prompt, nil
}

func newMessage(conversationID string, role domain.Role, content string) *domain.Message {
	return &domain.Message{
		MessageID:      domain.NewMessageID(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now(),
	}
}

// titleFromMessage derives a conversation title from the first user message,
// truncated to 50 characters.
func titleFromMessage(message string) string {
	runes := []rune(message)
	if len(runes) > titleMaxLength {
		return string(runes[:titleMaxLength])
	}
	return message
}
