package api

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/example/chatbot/apperr"
	"github.com/example/chatbot/logger"
)

const (
	apiKeyHeader = "X-API-Key"

	userIDContextKey = "authenticatedUserID"
	apiKeyContextKey = "authenticatedAPIKey"
)

// AuthMiddleware resolves the caller from the X-API-Key header and stores the
// user id in the request context. Handlers thread that identity explicitly
// into every service call; there is no ambient current user.
func (h *Handler) AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		apiKey := c.Request().Header.Get(apiKeyHeader)
		if strings.TrimSpace(apiKey) == "" {
			logger.L.Warn("auth failed", "path", c.Request().RequestURI, "reason", "missing_api_key")
			return apperr.Unauthorized()
		}

		user, err := h.store.GetUserByAPIKey(c.Request().Context(), apiKey)
		if err != nil {
			return fmt.Errorf("failed to look up api key: %w", err)
		}
		if user == nil {
			logger.L.Warn("auth failed", "path", c.Request().RequestURI,
				"reason", "invalid_api_key", "api_key", maskAPIKey(apiKey))
			return apperr.InvalidAPIKey()
		}

		c.Set(userIDContextKey, user.UserID)
		c.Set(apiKeyContextKey, apiKey)
		return next(c)
	}
}

// RateLimitMiddleware counts the request against the caller's fixed window.
// Runs after auth, so the key is always present.
func (h *Handler) RateLimitMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		apiKey, _ := c.Get(apiKeyContextKey).(string)
		if err := h.limiter.Check(c.Request().Context(), "key:"+apiKey); err != nil {
			return err
		}
		return next(c)
	}
}

// userID returns the authenticated caller set by AuthMiddleware.
func userID(c echo.Context) string {
	id, _ := c.Get(userIDContextKey).(string)
	return id
}

func maskAPIKey(apiKey string) string {
	n := len(apiKey)
	if n > 4 {
		n = 4
	}
	return apiKey[:n] + "****"
}
