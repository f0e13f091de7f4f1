package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/213020aumc/matcha/internal/core/domain"
	"github.com/213020aumc/matcha/internal/core/port"
	"github.com/213020aumc/matcha/internal/infra/logger"
	"github.com/213020aumc/matcha/internal/repository"
)

// RoleInput describes a role to create.
type RoleInput struct {
	Name        string
	Description string
	Permissions []string
}

// RBACService manages roles, permissions and role assignment.
type RBACService struct {
	tx         port.Transactor
	repos      port.Repositories
	authorizer *Authorizer
	events     port.EventPublisher
	// strict rejects unknown permission slugs instead of dropping them.
	strict bool
	logger *zap.Logger
	now    func() time.Time
}

// NewRBACService constructs an RBACService.
func NewRBACService(
	tx port.Transactor,
	repos port.Repositories,
	authorizer *Authorizer,
	events port.EventPublisher,
	strictSlugs bool,
	log *zap.Logger,
) *RBACService {
	return &RBACService{
		tx:         tx,
		repos:      repos,
		authorizer: authorizer,
		events:     events,
		strict:     strictSlugs,
		logger:     log,
		now:        utcNow,
	}
}

// RoleSlug is the normalized key a role name is stored and looked up under.
func RoleSlug(name string) string {
	return slug.Make(strings.TrimSpace(name))
}

// CreateRole creates a role with the permissions named by input.Permissions.
func (s *RBACService) CreateRole(ctx context.Context, actorID string, input RoleInput) (_ *domain.Role, err error) {
	ctx, span := startSpan(ctx, "rbac.CreateRole")
	defer func() { endSpan(span, err) }()

	if _, err := s.authorizer.Authorize(ctx, actorID, domain.PermUsersManage); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	key := RoleSlug(name)
	if key == "" {
		return nil, domain.NewValidationError("invalid_role_name", "role name is required", "name")
	}

	if _, err := s.repos.Roles.GetBySlug(ctx, key); err == nil {
		return nil, domain.ErrRoleNameTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup role: %w", err)
	}

	requested := uniqueSlugs(input.Permissions)
	permissions, err := s.repos.Permissions.GetBySlugs(ctx, requested)
	if err != nil {
		return nil, fmt.Errorf("resolve permissions: %w", err)
	}
	if unknown := unknownSlugs(requested, permissions); len(unknown) > 0 {
		if s.strict {
			return nil, domain.ErrUnknownPermissions.WithFields(unknown...)
		}
		logger.WithContext(ctx).Warn("Dropping unknown permission slugs",
			zap.String("role", key),
			zap.Strings("slugs", unknown),
		)
	}

	role := domain.Role{
		ID:          uuid.NewString(),
		Name:        name,
		Slug:        key,
		Permissions: permissions,
		CreatedAt:   s.now(),
	}
	if d := strings.TrimSpace(input.Description); d != "" {
		role.Description = &d
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		if err := repos.Roles.Create(ctx, role); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return domain.ErrRoleNameTaken
			}
			return fmt.Errorf("create role: %w", err)
		}
		return repos.Roles.SetPermissions(ctx, role.ID, permissionIDs(permissions))
	})
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx).Info("Role created",
		zap.String("role_id", role.ID),
		zap.String("role", key),
		zap.String("created_by", actorID),
	)
	return &role, nil
}

// AssignRole points userID at the role named roleName.
func (s *RBACService) AssignRole(ctx context.Context, actorID, userID, roleName string) (_ *domain.User, err error) {
	ctx, span := startSpan(ctx, "rbac.AssignRole", attribute.String("user.id", userID))
	defer func() { endSpan(span, err) }()

	if _, err := s.authorizer.Authorize(ctx, actorID, domain.PermUsersManage); err != nil {
		return nil, err
	}

	role, err := s.repos.Roles.GetBySlug(ctx, RoleSlug(roleName))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrRoleNotFound
		}
		return nil, fmt.Errorf("lookup role: %w", err)
	}

	if err := s.repos.Users.SetAccessRole(ctx, userID, &role.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("assign role: %w", err)
	}

	now := s.now()
	log := logger.WithContext(ctx)
	log.Info("Role assigned",
		zap.String("user_id", userID),
		zap.String("role", role.Slug),
		zap.String("assigned_by", actorID),
	)
	if err := s.events.PublishRoleAssigned(ctx, domain.RoleAssignedEvent{
		EventID:    uuid.NewString(),
		UserID:     userID,
		RoleID:     role.ID,
		RoleName:   role.Name,
		AssignedBy: actorID,
		AssignedAt: now,
	}); err != nil {
		log.Warn("Failed to publish role assigned event", zap.String("user_id", userID), zap.Error(err))
	}

	return s.authorizer.ResolvePrincipal(ctx, userID)
}

// ListRoles returns every role with its permissions.
func (s *RBACService) ListRoles(ctx context.Context, actorID string) ([]domain.Role, error) {
	if _, err := s.authorizer.Authorize(ctx, actorID, domain.PermUsersManage); err != nil {
		return nil, err
	}
	roles, err := s.repos.Roles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// ListPermissions returns the permission catalog as stored.
func (s *RBACService) ListPermissions(ctx context.Context, actorID string) ([]domain.Permission, error) {
	if _, err := s.authorizer.Authorize(ctx, actorID, domain.PermUsersManage); err != nil {
		return nil, err
	}
	permissions, err := s.repos.Permissions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	return permissions, nil
}

// DeleteRole removes a non-system role. Holders are left without a role.
func (s *RBACService) DeleteRole(ctx context.Context, actorID, roleID string) error {
	if _, err := s.authorizer.Authorize(ctx, actorID, domain.PermUsersManage); err != nil {
		return err
	}

	return s.tx.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		role, err := repos.Roles.GetByID(ctx, roleID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.ErrRoleNotFound
			}
			return fmt.Errorf("lookup role: %w", err)
		}
		if role.IsSystem {
			return domain.ErrSystemRole
		}
		if err := repos.Roles.Delete(ctx, roleID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.ErrRoleNotFound
			}
			return fmt.Errorf("delete role: %w", err)
		}
		return nil
	})
}

// SyncCatalog reconciles the permission and role catalogs. Roles that grant every permission are
// re-synced on each run; other catalog roles only receive their permissions when first created.
// When bootstrapEmail is set, that user is created if needed and made a Super Admin.
func (s *RBACService) SyncCatalog(ctx context.Context, bootstrapEmail string) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		bySlug := make(map[string]string, len(domain.PermissionCatalog))
		all := make([]string, 0, len(domain.PermissionCatalog))
		for _, spec := range domain.PermissionCatalog {
			p, err := repos.Permissions.Ensure(ctx, spec)
			if err != nil {
				return fmt.Errorf("ensure permission %s: %w", spec.Slug, err)
			}
			bySlug[p.Slug] = p.ID
			all = append(all, p.ID)
		}

		roleIDs := make(map[string]string, len(domain.RoleCatalog))
		for _, spec := range domain.RoleCatalog {
			id, err := s.syncRole(ctx, repos, spec, bySlug, all)
			if err != nil {
				return err
			}
			roleIDs[spec.Name] = id
		}

		email := domain.NormalizeEmail(bootstrapEmail)
		if email == "" {
			return nil
		}
		user, _, err := repos.Users.FindOrCreateByEmail(ctx, email)
		if err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		adminRole := roleIDs[domain.RoleSuperAdmin]
		if err := repos.Users.SetAccessRole(ctx, user.ID, &adminRole); err != nil {
			return fmt.Errorf("bootstrap admin role: %w", err)
		}
		s.logger.Info("Bootstrap admin ensured", zap.String("email", logger.MaskEmail(email)))
		return nil
	})
}

func (s *RBACService) syncRole(ctx context.Context, repos port.Repositories, spec domain.RoleSpec, bySlug map[string]string, all []string) (string, error) {
	grant := all
	if !spec.AllPermissions {
		grant = make([]string, 0, len(spec.Permissions))
		for _, p := range spec.Permissions {
			if id, ok := bySlug[p]; ok {
				grant = append(grant, id)
			}
		}
	}

	key := RoleSlug(spec.Name)
	existing, err := repos.Roles.GetBySlug(ctx, key)
	switch {
	case err == nil:
		if spec.AllPermissions {
			if err := repos.Roles.SetPermissions(ctx, existing.ID, grant); err != nil {
				return "", fmt.Errorf("sync role %s: %w", key, err)
			}
		}
		return existing.ID, nil
	case !errors.Is(err, repository.ErrNotFound):
		return "", fmt.Errorf("lookup role %s: %w", key, err)
	}

	role := domain.Role{
		ID:        uuid.NewString(),
		Name:      spec.Name,
		Slug:      key,
		IsSystem:  spec.IsSystem,
		CreatedAt: s.now(),
	}
	if spec.Description != "" {
		d := spec.Description
		role.Description = &d
	}
	if err := repos.Roles.Create(ctx, role); err != nil {
		return "", fmt.Errorf("create role %s: %w", key, err)
	}
	if err := repos.Roles.SetPermissions(ctx, role.ID, grant); err != nil {
		return "", fmt.Errorf("grant role %s: %w", key, err)
	}
	s.logger.Info("Catalog role created", zap.String("role", key), zap.Int("permissions", len(grant)))
	return role.ID, nil
}

func uniqueSlugs(slugs []string) []string {
	seen := make(map[string]struct{}, len(slugs))
	out := make([]string, 0, len(slugs))
	for _, s := range slugs {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func unknownSlugs(requested []string, found []domain.Permission) []string {
	known := make(map[string]struct{}, len(found))
	for _, p := range found {
		known[p.Slug] = struct{}{}
	}
	var unknown []string
	for _, s := range requested {
		if _, ok := known[s]; !ok {
			unknown = append(unknown, s)
		}
	}
	return unknown
}

func permissionIDs(permissions []domain.Permission) []string {
	ids := make([]string, 0, len(permissions))
	for _, p := range permissions {
		ids = append(ids, p.ID)
	}
	return ids
}
