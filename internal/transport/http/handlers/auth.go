package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/213020aumc/matcha/internal/core/domain"
	"github.com/213020aumc/matcha/internal/infra/logger"
	"github.com/213020aumc/matcha/internal/transport/http/middleware"
	"github.com/213020aumc/matcha/internal/usecase"
)

// AuthUsecase is the sign-in surface used by AuthHandler.
type AuthUsecase interface {
	IssueChallenge(ctx context.Context, email string) (*usecase.Challenge, error)
	Login(ctx context.Context, email, code string) (*usecase.Session, error)
}

// CookieSettings controls the session cookie written on sign-in.
type CookieSettings struct {
	Name   string
	Secure bool
}

type AuthHandler struct {
	auth   AuthUsecase
	cookie CookieSettings
	now    func() time.Time
}

func NewAuthHandler(auth AuthUsecase, cookie CookieSettings) *AuthHandler {
	if cookie.Name == "" {
		cookie.Name = "jwt"
	}
	return &AuthHandler{auth: auth, cookie: cookie, now: time.Now}
}

// RegisterRoutes mounts the sign-in endpoints. limiters guard the code issuing and verification routes.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, requireAuth gin.HandlerFunc, limiters ...gin.HandlerFunc) {
	r.POST("/login", chain(limiters, h.Login)...)
	r.POST("/verify-otp", chain(limiters, h.VerifyOTP)...)
	r.POST("/logout", h.Logout)
	r.GET("/me", requireAuth, h.Me)
}

// Login handles POST /api/v1/auth/login.
// Creates the account on first contact and emails a one-time code.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	challenge, err := h.auth.IssueChallenge(c.Request.Context(), req.Email)
	if err != nil {
		RespondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "OTP sent to " + logger.MaskEmail(challenge.User.Email)})
}

// VerifyOTP handles POST /api/v1/auth/verify-otp.
// Consumes the code, sets the session cookie and returns where the client should go next.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	session, err := h.auth.Login(c.Request.Context(), req.Email, req.OTP)
	if err != nil {
		// Unknown accounts and never-issued codes read the same so addresses cannot be probed.
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: domain.ErrOTPUserNotFound, Status: http.StatusUnauthorized, Message: "invalid or expired code"},
			{Err: domain.ErrOTPNoChallenge, Status: http.StatusUnauthorized, Message: "invalid or expired code"},
		})
		return
	}

	maxAge := int(session.ExpiresAt.Sub(h.now()).Seconds())
	h.setCookie(c, session.Token, maxAge)

	c.JSON(http.StatusOK, SessionResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		User:      session.User,
		Redirect:  session.Redirect,
	})
}

// Logout handles POST /api/v1/auth/logout.
// Clears the session cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.setCookie(c, "", -1)
	c.JSON(http.StatusOK, MessageResponse{Message: "logged out"})
}

// Me handles GET /api/v1/auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	permissions := []string{}
	if user.AccessRole != nil {
		permissions = user.AccessRole.PermissionSlugs()
	}

	c.JSON(http.StatusOK, MeResponse{
		User:        *user,
		Permissions: permissions,
		Redirect:    usecase.RedirectFor(*user),
	})
}

func (h *AuthHandler) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.cookie.Name, value, maxAge, "/", "", h.cookie.Secure, true)
}

func chain(middlewares []gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(middlewares)+1)
	out = append(out, middlewares...)
	return append(out, handler)
}
