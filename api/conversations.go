package api

import (
	"github.com/labstack/echo/v4"

	"github.com/example/chatbot/apperr"
	"github.com/example/chatbot/domain"
)

// conversationDetail is the detail response body: the conversation plus its
// full message history.
type conversationDetail struct {
	Conversation domain.Conversation `json:"conversation"`
	Messages     []domain.Message    `json:"messages"`
}

// conversationUpdateRequest is the rename request body.
type conversationUpdateRequest struct {
	Title string `json:"title"`
}

// ListConversations returns the caller's conversations, newest activity
// first.
// GET /api/conversations
func (h *Handler) ListConversations(c echo.Context) error {
	conversations, err := h.chat.ListConversations(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	if conversations == nil {
		conversations = []domain.Conversation{}
	}
	return ok(c, conversations)
}

// GetConversation returns one conversation with its message history.
// GET /api/conversations/:id
func (h *Handler) GetConversation(c echo.Context) error {
	conv, messages, err := h.chat.GetConversationDetail(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return err
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return ok(c, conversationDetail{Conversation: *conv, Messages: messages})
}

// GetConversationMessages returns the ordered messages of one conversation.
// GET /api/conversations/:id/messages
func (h *Handler) GetConversationMessages(c echo.Context) error {
	messages, err := h.chat.GetConversationMessages(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return err
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return ok(c, messages)
}

// UpdateConversation renames a conversation.
// PATCH /api/conversations/:id
func (h *Handler) UpdateConversation(c echo.Context) error {
	var req conversationUpdateRequest
	if err := c.Bind(&req); err != nil {
		return apperr.InvalidInput("invalid request body")
	}

	conv, err := h.chat.RenameConversation(c.Request().Context(), userID(c), c.Param("id"), req.Title)
	if err != nil {
		return err
	}
	return ok(c, conv)
}

// DeleteConversation deletes a conversation and its messages.
// DELETE /api/conversations/:id
func (h *Handler) DeleteConversation(c echo.Context) error {
	if err := h.chat.DeleteConversation(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return err
	}
	return ok(c, nil)
}
