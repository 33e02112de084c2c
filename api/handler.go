// Package api exposes the HTTP transport for the chat backend.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/example/chatbot/apperr"
	"github.com/example/chatbot/chat"
	"github.com/example/chatbot/logger"
	"github.com/example/chatbot/ratelimit"
	"github.com/example/chatbot/store"
)

// Handler handles chat backend HTTP requests.
type Handler struct {
	chat    *chat.Service
	store   store.Store
	limiter *ratelimit.Limiter
}

// NewHandler creates a new HTTP handler.
func NewHandler(chatSvc *chat.Service, st store.Store, limiter *ratelimit.Limiter) *Handler {
	return &Handler{chat: chatSvc, store: st, limiter: limiter}
}

// RegisterRoutes registers all routes. Everything under /api requires an API
// key and is rate limited; /health is open.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api", h.AuthMiddleware, h.RateLimitMiddleware)
	g.POST("/chat/completions", h.CreateChatCompletion)
	g.POST("/chat/completions/stream", h.StreamChatCompletion)
	g.GET("/conversations", h.ListConversations)
	g.GET("/conversations/:id", h.GetConversation)
	g.GET("/conversations/:id/messages", h.GetConversationMessages)
	g.PATCH("/conversations/:id", h.UpdateConversation)
	g.DELETE("/conversations/:id", h.DeleteConversation)
}

// Health reports service liveness.
// GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// envelope is the uniform response body.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *errorBody  `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, envelope{Success: true, Data: data})
}

func fail(c echo.Context, e *apperr.Error) error {
	if e.RetryAfter > 0 {
		c.Response().Header().Set("Retry-After", strconv.Itoa(e.RetryAfter))
	}
	return c.JSON(e.Status, envelope{Success: false, Error: &errorBody{Code: e.Code, Message: e.Message}})
}

// ErrorHandler maps errors escaping handlers onto the stable error envelope.
// Registered as the echo HTTPErrorHandler.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var ae *apperr.Error
	if errors.As(err, &ae) {
		if ae.Code == apperr.CodeInternal || ae.Code == apperr.CodeUpstreamError {
			logger.L.Error("request failed", "path", c.Path(), "code", ae.Code, "error", err)
		}
		_ = fail(c, ae)
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code := apperr.CodeInternal
		switch he.Code {
		case http.StatusBadRequest:
			code = apperr.CodeInvalidInput
		case http.StatusNotFound:
			code = "NOT_FOUND"
		case http.StatusMethodNotAllowed:
			code = "METHOD_NOT_ALLOWED"
		}
		_ = c.JSON(he.Code, envelope{Success: false, Error: &errorBody{Code: code, Message: fmt.Sprintf("%v", he.Message)}})
		return
	}

	logger.L.Error("unhandled error", "path", c.Path(), "error", err)
	_ = fail(c, apperr.Internal(err))
}
