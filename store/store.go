// Package store defines the storage interface and implementations.
package store

import (
	"context"

	"github.com/example/chatbot/domain"
)

// Store defines the interface for data persistence.
type Store interface {
	// User operations
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	GetUserByAPIKey(ctx context.Context, apiKey string) (*domain.User, error)

	// Conversation operations. Lookups are scoped to the owning user; a
	// conversation owned by someone else is indistinguishable from a missing
	// one.
	CreateConversation(ctx context.Context, conv *domain.Conversation) error
	GetConversation(ctx context.Context, conversationID, userID string) (*domain.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error)
	UpdateConversationTitle(ctx context.Context, conversationID, title string) error
	DeleteConversation(ctx context.Context, conversationID string) error

	// Message operations. CreateMessage also bumps the owning conversation's
	// updated_at in the same transaction.
	CreateMessage(ctx context.Context, message *domain.Message) error
	GetMessages(ctx context.Context, conversationID string) ([]domain.Message, error)

	// Lifecycle
	Close() error
}
