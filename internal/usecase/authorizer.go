package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/213020aumc/matcha/internal/core/domain"
	"github.com/213020aumc/matcha/internal/core/port"
	"github.com/213020aumc/matcha/internal/repository"
)

// Authorizer resolves principals and gates operations on permission slugs.
// Nothing is cached: every call reads the user and role as they are now.
type Authorizer struct {
	users port.UserRepository
	roles port.RoleRepository
}

// NewAuthorizer constructs an Authorizer.
func NewAuthorizer(users port.UserRepository, roles port.RoleRepository) *Authorizer {
	return &Authorizer{users: users, roles: roles}
}

// ResolvePrincipal loads the user with its access role and permissions attached.
// A dangling role reference leaves AccessRole nil.
func (a *Authorizer) ResolvePrincipal(ctx context.Context, userID string) (*domain.User, error) {
	user, err := a.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup principal: %w", err)
	}

	if user.AccessRoleID == nil {
		return user, nil
	}

	role, err := a.roles.GetByID(ctx, *user.AccessRoleID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return user, nil
	case err != nil:
		return nil, fmt.Errorf("lookup principal role: %w", err)
	}
	user.AccessRole = role
	return user, nil
}

// RequirePermission fails with an authorization error unless principal's role grants slug.
// It has no side effects.
func RequirePermission(principal *domain.User, slug string) error {
	if principal == nil || principal.AccessRoleID == nil {
		return domain.NewForbiddenError(slug)
	}
	if principal.AccessRole == nil {
		return domain.NewForbiddenError(slug)
	}
	if !principal.AccessRole.HasPermission(slug) {
		return domain.NewForbiddenError(slug)
	}
	return nil
}

// Authorize resolves actorID fresh and checks slug against it.
func (a *Authorizer) Authorize(ctx context.Context, actorID, slug string) (*domain.User, error) {
	principal, err := a.ResolvePrincipal(ctx, actorID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.NewForbiddenError(slug)
		}
		return nil, err
	}
	if err := RequirePermission(principal, slug); err != nil {
		return nil, err
	}
	return principal, nil
}
