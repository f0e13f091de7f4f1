package port

import (
	"context"

	"github.com/213020aumc/matcha/internal/core/domain"
)

// RoleRepository handles role CRUD. Returned roles carry their permissions.
type RoleRepository interface {
	Create(ctx context.Context, role domain.Role) error
	GetByID(ctx context.Context, id string) (*domain.Role, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Role, error)
	List(ctx context.Context) ([]domain.Role, error)
	Delete(ctx context.Context, id string) error
	// SetPermissions replaces the role's permission set.
	SetPermissions(ctx context.Context, roleID string, permissionIDs []string) error
}
