package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/example/chatbot/apperr"
	"github.com/example/chatbot/chat"
	"github.com/example/chatbot/domain"
	"github.com/example/chatbot/logger"
)

// CreateChatCompletion handles a blocking chat turn.
// POST /api/chat/completions
func (h *Handler) CreateChatCompletion(c echo.Context) error {
	var req domain.ChatCompletionRequest
	if err := c.Bind(&req); err != nil {
		return apperr.InvalidInput("invalid request body")
	}

	resp, err := h.chat.CreateCompletion(c.Request().Context(), userID(c), req)
	if err != nil {
		return err
	}
	return ok(c, resp)
}

// StreamChatCompletion handles a streamed chat turn, relaying fragments as
// named SSE events: repeated token events followed by one terminal done
// event, or an error event if the upstream stream fails.
// POST /api/chat/completions/stream
func (h *Handler) StreamChatCompletion(c echo.Context) error {
	var req domain.ChatCompletionRequest
	if err := c.Bind(&req); err != nil {
		return apperr.InvalidInput("invalid request body")
	}

	flusher, canFlush := c.Response().Writer.(http.Flusher)
	if !canFlush {
		return apperr.Internal(errors.New("response writer does not support streaming"))
	}

	// Resolution, validation and user-turn persistence happen before any
	// bytes go out, so their errors still map to plain JSON error responses.
	ctx := c.Request().Context()
	events, err := h.chat.StreamCompletion(ctx, userID(c), req)
	if err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		switch ev.Type {
		case chat.TurnEventToken:
			data, err := json.Marshal(domain.TokenEvent{Text: ev.Text})
			if err != nil {
				continue
			}
			if writeSSE(c.Response().Writer, "token", data) != nil {
				// Client is gone; the request context cancels the relay.
				return nil
			}
			flusher.Flush()

		case chat.TurnEventDone:
			if writeSSE(c.Response().Writer, "done", []byte("{}")) != nil {
				return nil
			}
			flusher.Flush()

		case chat.TurnEventError:
			ae := apperr.From(ev.Err)
			data, err := json.Marshal(errorBody{Code: ae.Code, Message: ae.Message})
			if err != nil {
				data = []byte(`{"code":"` + apperr.CodeUpstreamError + `"}`)
			}
			if writeSSE(c.Response().Writer, "error", data) != nil {
				return nil
			}
			flusher.Flush()
			logger.L.Error("chat stream terminated with error", "conversation_id", ev.ConversationID, "error", ev.Err)
		}
	}
	return nil
}

// writeSSE writes one named SSE event frame.
func writeSSE(w io.Writer, event string, data []byte) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
