package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/213020aumc/matcha/internal/core/domain"
)

// ReviewUsecase is the moderation surface used by AdminHandler.
type ReviewUsecase interface {
	TransitionStatus(ctx context.Context, actorID, userID string, target domain.ProfileStatus, reason string) (*domain.User, error)
	ListPending(ctx context.Context, actorID string) ([]domain.ProfileAggregate, error)
}

// AdminHandler serves the profile review queue.
type AdminHandler struct {
	review ReviewUsecase
}

func NewAdminHandler(review ReviewUsecase) *AdminHandler {
	return &AdminHandler{review: review}
}

// RegisterRoutes mounts the review endpoints behind their permission guards.
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup, viewGuard, approveGuard gin.HandlerFunc) {
	r.GET("/pending", viewGuard, h.ListPending)
	r.PATCH("/approve/:userId", approveGuard, h.Review)
}

// ListPending handles GET /api/v1/admin/profile/pending.
// Oldest submission first, with every sub-record.
func (h *AdminHandler) ListPending(c *gin.Context) {
	actorID, ok := requireUserID(c)
	if !ok {
		return
	}

	profiles, err := h.review.ListPending(c.Request.Context(), actorID)
	if err != nil {
		RespondWithDomainError(c, err)
		return
	}
	if profiles == nil {
		profiles = []domain.ProfileAggregate{}
	}
	c.JSON(http.StatusOK, PendingProfilesResponse{Results: len(profiles), Profiles: profiles})
}

// Review handles PATCH /api/v1/admin/profile/approve/{userId}.
func (h *AdminHandler) Review(c *gin.Context) {
	actorID, ok := requireUserID(c)
	if !ok {
		return
	}

	userID, ok := pathID(c, "userId", domain.ErrUserNotFound)
	if !ok {
		return
	}

	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	user, err := h.review.TransitionStatus(c.Request.Context(), actorID, userID, req.Status, req.Reason)
	if err != nil {
		RespondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, ReviewResponse{
		Message:       "profile " + string(user.ProfileStatus),
		ID:            user.ID,
		ProfileStatus: user.ProfileStatus,
	})
}
