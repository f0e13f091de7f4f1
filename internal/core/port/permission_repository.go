package port

import (
	"context"

	"github.com/213020aumc/matcha/internal/core/domain"
)

// PermissionRepository exposes permission catalog lookups.
type PermissionRepository interface {
	List(ctx context.Context) ([]domain.Permission, error)
	GetBySlugs(ctx context.Context, slugs []string) ([]domain.Permission, error)
	// Ensure inserts the slug if missing and returns the stored permission.
	Ensure(ctx context.Context, spec domain.PermissionSpec) (*domain.Permission, error)
}
