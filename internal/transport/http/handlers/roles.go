package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/213020aumc/matcha/internal/core/domain"
	"github.com/213020aumc/matcha/internal/usecase"
)

// RBACUsecase is the role management surface used by RoleHandler.
type RBACUsecase interface {
	CreateRole(ctx context.Context, actorID string, input usecase.RoleInput) (*domain.Role, error)
	AssignRole(ctx context.Context, actorID, userID, roleName string) (*domain.User, error)
	ListRoles(ctx context.Context, actorID string) ([]domain.Role, error)
	ListPermissions(ctx context.Context, actorID string) ([]domain.Permission, error)
	DeleteRole(ctx context.Context, actorID, roleID string) error
}

type RoleHandler struct {
	rbac RBACUsecase
}

func NewRoleHandler(rbac RBACUsecase) *RoleHandler {
	return &RoleHandler{rbac: rbac}
}

func (h *RoleHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/roles", h.ListRoles)
	r.POST("/roles", h.CreateRole)
	r.DELETE("/roles/:roleId", h.DeleteRole)
	r.GET("/permissions", h.ListPermissions)
	r.POST("/assign", h.AssignRole)
}

// CreateRole handles POST /api/v1/admin/rbac/roles.
// Creates a custom role with the given permission slugs.
func (h *RoleHandler) CreateRole(c *gin.Context) {
	actorID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req RoleCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	role, err := h.rbac.CreateRole(c.Request.Context(), actorID, usecase.RoleInput{
		Name:        req.Name,
		Description: req.Description,
		Permissions: req.Permissions,
	})
	if err != nil {
		RespondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, role)
}

// AssignRole handles POST /api/v1/admin/rbac/assign.
func (h *RoleHandler) AssignRole(c *gin.Context) {
	actorID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req RoleAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	user, err := h.rbac.AssignRole(c.Request.Context(), actorID, req.UserID, req.RoleName)
	if err != nil {
		RespondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// ListRoles handles GET /api/v1/admin/rbac/roles.
func (h *RoleHandler) ListRoles(c *gin.Context) {
	actorID, ok := requireUserID(c)
	if !ok {
		return
	}
	roles, err := h.rbac.ListRoles(c.Request.Context(), actorID)
	if err != nil {
		RespondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, RolesResponse{Roles: roles})
}

// ListPermissions handles GET /api/v1/admin/rbac/permissions.
func (h *RoleHandler) ListPermissions(c *gin.Context) {
	actorID, ok := requireUserID(c)
	if !ok {
		return
	}
	permissions, err := h.rbac.ListPermissions(c.Request.Context(), actorID)
	if err != nil {
		RespondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, PermissionsResponse{Permissions: permissions})
}

// DeleteRole handles DELETE /api/v1/admin/rbac/roles/{roleId}.
// Holders of the role are left without one. System roles cannot be deleted.
func (h *RoleHandler) DeleteRole(c *gin.Context) {
	actorID, ok := requireUserID(c)
	if !ok {
		return
	}
	roleID, ok := pathID(c, "roleId", domain.ErrRoleNotFound)
	if !ok {
		return
	}
	if err := h.rbac.DeleteRole(c.Request.Context(), actorID, roleID); err != nil {
		RespondWithDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
