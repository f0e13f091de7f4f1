package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/213020aumc/matcha/internal/core/domain"
	"github.com/213020aumc/matcha/internal/infra/logger"
	"github.com/213020aumc/matcha/internal/usecase"
)

const principalKey = "principal"

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error      string `json:"error"`
	Permission string `json:"permission,omitempty"`
	TraceID    string `json:"trace_id,omitempty"`
}

func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// SessionResolver turns a session token into the current state of its user.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*domain.User, error)
}

// RequireAuth reads the session token from the cookie or a Bearer header and
// loads the user it belongs to. Role and status are read fresh on every request.
func RequireAuth(sessions SessionResolver, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := sessionToken(c, cookieName)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "authentication required"))
			return
		}

		user, err := sessions.ResolveSession(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrExpiredSessionToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "session expired"))
			case errors.Is(err, domain.ErrInvalidSessionToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "invalid session"))
			default:
				_ = c.Error(err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, newErrorResponse(c, "authentication failed"))
			}
			return
		}

		c.Set(UserIDKey, user.ID)
		c.Set(principalKey, user)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), logger.UserIDKey{}, user.ID))
		GetRequestContext(c).UserID = user.ID

		c.Next()
	}
}

// RequirePermission rejects principals whose role lacks slug. It must run after RequireAuth.
func RequirePermission(slug string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := GetPrincipal(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "authentication required"))
			return
		}
		if err := usecase.RequirePermission(principal, slug); err != nil {
			resp := newErrorResponse(c, "insufficient permissions")
			resp.Permission = slug
			c.AbortWithStatusJSON(http.StatusForbidden, resp)
			return
		}
		c.Next()
	}
}

func sessionToken(c *gin.Context, cookieName string) string {
	if cookieName != "" {
		if token, err := c.Cookie(cookieName); err == nil && token != "" {
			return token
		}
	}

	scheme, token, found := strings.Cut(c.GetHeader("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// GetAuthenticatedUserID retrieves the user ID from context (helper for handlers)
func GetAuthenticatedUserID(c *gin.Context) (string, bool) {
	id := c.GetString(UserIDKey)
	return id, id != ""
}

// GetPrincipal returns the user resolved by RequireAuth, role and permissions included.
func GetPrincipal(c *gin.Context) (*domain.User, bool) {
	value, exists := c.Get(principalKey)
	if !exists {
		return nil, false
	}
	user, ok := value.(*domain.User)
	return user, ok && user != nil
}
