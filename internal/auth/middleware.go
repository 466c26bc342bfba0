package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"eventpay/internal/models"
)

const contextKey = "auth.session"

// FromContext returns the session attached by RequireSession.
func FromContext(c echo.Context) (*Context, bool) {
	sess, ok := c.Get(contextKey).(*Context)
	return sess, ok
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// RequireSession validates the bearer token on every request.
func RequireSession(store SessionStore, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := BearerToken(c.Request())
			if token == "" {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{Message: "Session token is required"})
			}

			sess, err := store.Validate(c.Request().Context(), token)
			if err != nil {
				if !errors.Is(err, ErrInvalidSession) {
					logger.Error("Session validation failed", zap.Error(err))
				}
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{Message: "Invalid session"})
			}

			c.Set(contextKey, sess)
			return next(c)
		}
	}
}

// Handler exposes session issue and revoke endpoints.
type Handler struct {
	store  SessionStore
	apiKey string
	logger *zap.Logger
}

func NewHandler(store SessionStore, apiKey string, logger *zap.Logger) *Handler {
	return &Handler{store: store, apiKey: apiKey, logger: logger}
}

// Login exchanges the admin API key for a session token.
// POST /api/admin/session
func (h *Handler) Login(c echo.Context) error {
	var req models.SessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if h.apiKey == "" || subtle.ConstantTimeCompare([]byte(req.APIKey), []byte(h.apiKey)) != 1 {
		return c.JSON(http.StatusUnauthorized, models.ErrorResponse{Message: "Invalid API key"})
	}

	sess, err := h.store.Issue(c.Request().Context(), "admin")
	if err != nil {
		h.logger.Error("Failed to issue session", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to create session"})
	}

	h.logger.Info("Admin session issued", zap.String("ip", c.RealIP()))
	return c.JSON(http.StatusOK, models.SessionResponse{Token: sess.Token, ExpiresAt: sess.ExpiresAt})
}

// Logout revokes the caller's session.
// DELETE /api/admin/session
func (h *Handler) Logout(c echo.Context) error {
	sess, ok := FromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, models.ErrorResponse{Message: "Invalid session"})
	}
	if err := h.store.Revoke(c.Request().Context(), sess.Token); err != nil {
		h.logger.Error("Failed to revoke session", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to revoke session"})
	}
	return c.NoContent(http.StatusNoContent)
}
