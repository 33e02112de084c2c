package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/chatbot/apperr"
	"github.com/example/chatbot/domain"
	"github.com/example/chatbot/logger"
)

// ListConversations returns the caller's conversations, most recently
// updated first.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	conversations, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return conversations, nil
}

// GetConversationDetail returns a conversation and its full message history,
// scoped to the caller.
func (s *Service) GetConversationDetail(ctx context.Context, userID, conversationID string) (*domain.Conversation, []domain.Message, error) {
	conv, err := s.ownedConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, nil, err
	}
	messages, err := s.store.GetMessages(ctx, conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load conversation messages: %w", err)
	}
	return conv, messages, nil
}

// GetConversationMessages returns the full ordered message history of a
// conversation, scoped to the caller.
func (s *Service) GetConversationMessages(ctx context.Context, userID, conversationID string) ([]domain.Message, error) {
	if _, err := s.ownedConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	messages, err := s.store.GetMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation messages: %w", err)
	}
	return messages, nil
}

// RenameConversation updates a conversation's title.
func (s *Service) RenameConversation(ctx context.Context, userID, conversationID, title string) (*domain.Conversation, error) {
	if strings.TrimSpace(title) == "" {
		return nil, apperr.InvalidInput("title must not be blank")
	}
	conv, err := s.ownedConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateConversationTitle(ctx, conversationID, title); err != nil {
		return nil, fmt.Errorf("failed to rename conversation: %w", err)
	}
	conv.Title = title
	logger.L.Info("conversation renamed", "conversation_id", conversationID, "user_id", userID)
	return conv, nil
}

// DeleteConversation removes a conversation and its messages.
func (s *Service) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	if _, err := s.ownedConversation(ctx, userID, conversationID); err != nil {
		return err
	}
	if err := s.store.DeleteConversation(ctx, conversationID); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	logger.L.Info("conversation deleted", "conversation_id", conversationID, "user_id", userID)
	return nil
}

// ownedConversation loads a conversation scoped to the caller, mapping a miss
// (unknown id or someone else's conversation) to CONVERSATION_NOT_FOUND.
func (s *Service) ownedConversation(ctx context.Context, userID, conversationID string) (*domain.Conversation, error) {
	if !domain.ValidConversationID(conversationID) {
		return nil, apperr.InvalidInput("conversation id is not a valid identifier")
	}
	conv, err := s.store.GetConversation(ctx, conversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv == nil {
		return nil, apperr.ConversationNotFound()
	}
	return conv, nil
}
