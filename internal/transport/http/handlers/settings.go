package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/213020aumc/matcha/internal/core/domain"
)

// SettingsUsecase is the settings administration surface.
type SettingsUsecase interface {
	List(ctx context.Context, actorID string) ([]domain.Setting, error)
	Update(ctx context.Context, actorID string, values map[string]string) ([]domain.Setting, error)
	Delete(ctx context.Context, actorID, key string) error
}

type SettingsHandler struct {
	settings SettingsUsecase
}

func NewSettingsHandler(settings SettingsUsecase) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

func (h *SettingsHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("", h.List)
	r.PUT("", h.Update)
	r.DELETE("/:key", h.Delete)
}

// List handles GET /api/v1/admin/settings.
func (h *SettingsHandler) List(c *gin.Context) {
	actorID, ok := requireUserID(c)
	if !ok {
		return
	}
	settings, err := h.settings.List(c.Request.Context(), actorID)
	if err != nil {
		RespondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, SettingsResponse{Settings: settings})
}

// Update handles PUT /api/v1/admin/settings.
// All keys are written in one transaction.
func (h *SettingsHandler) Update(c *gin.Context) {
	actorID, ok := requireUserID(c)
	if !ok {
		return
	}
	var req SettingsUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	settings, err := h.settings.Update(c.Request.Context(), actorID, req.Settings)
	if err != nil {
		RespondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, SettingsResponse{Settings: settings})
}

// Delete handles DELETE /api/v1/admin/settings/{key}.
func (h *SettingsHandler) Delete(c *gin.Context) {
	actorID, ok := requireUserID(c)
	if !ok {
		return
	}
	if err := h.settings.Delete(c.Request.Context(), actorID, c.Param("key")); err != nil {
		RespondWithDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
