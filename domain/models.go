// Package domain defines the core domain models for the chat backend.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// User is a registered API consumer, identified at the boundary by API key.
type User struct {
	UserID    string    `json:"user_id"`
	APIKey    string    `json:"-"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation is a sequence of chat turns owned by exactly one user.
type Conversation struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Title          string    `json:"title"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Message is one turn within a conversation. Immutable once persisted.
type Message struct {
	MessageID      string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// PromptMessage is one entry of the outbound prompt sent to the completion API.
type PromptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the inbound chat request body.
type ChatCompletionRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ChatCompletionResponse pairs the conversation with the new assistant turn.
type ChatCompletionResponse struct {
	ConversationID string  `json:"conversation_id"`
	Message        Message `json:"message"`
}

// TokenEvent is the data payload of one SSE token event.
type TokenEvent struct {
	Text string `json:"text"`
}

const idSuffixLen = 8

// NewConversationID returns a fresh conversation identifier.
func NewConversationID() string {
	return "conv_" + uuid.New().String()[:idSuffixLen]
}

// NewMessageID returns a fresh message identifier.
func NewMessageID() string {
	return "msg_" + uuid.New().String()[:idSuffixLen]
}

// NewUserID returns a fresh user identifier.
func NewUserID() string {
	return "user_" + uuid.New().String()[:idSuffixLen]
}

// ValidConversationID reports whether s has the shape of a conversation
// identifier. Malformed ids are rejected at the boundary, before any lookup.
func ValidConversationID(s string) bool {
	rest, ok := strings.CutPrefix(s, "conv_")
	if !ok || len(rest) != idSuffixLen {
		return false
	}
	for _, r := range rest {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
