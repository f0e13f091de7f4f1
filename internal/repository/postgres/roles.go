package postgres

import (
	"context"
	"database/sql"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/213020aumc/matcha/internal/core/domain"
	"github.com/213020aumc/matcha/internal/core/port"
	"github.com/213020aumc/matcha/internal/repository"
)

const (
	rolesTable           = "roles"
	rolePermissionsTable = "role_permissions"
)

var roleColumns = []string{"id", "name", "slug", "description", "is_system", "created_at"}

// RoleRepository implements role persistence operations.
type RoleRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewRoleRepository constructs a PostgreSQL-backed role repository.
func NewRoleRepository(exec pgExecutor) *RoleRepository {
	return &RoleRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository configured to execute within the provided transaction.
func (r *RoleRepository) WithTx(tx pgx.Tx) *RoleRepository {
	if tx == nil {
		return r
	}
	return &RoleRepository{exec: tx, builder: r.builder}
}

// Create inserts a new role. A taken slug surfaces as repository.ErrConflict.
func (r *RoleRepository) Create(ctx context.Context, role domain.Role) error {
	stmt, args, err := r.builder.Insert(rolesTable).
		Columns("id", "name", "slug", "description", "is_system", "created_at").
		Values(role.ID, role.Name, role.Slug, role.Description, role.IsSystem, role.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert role sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return translate(err, "insert role")
	}
	return nil
}

// List retrieves all roles sorted by name.
func (r *RoleRepository) List(ctx context.Context) ([]domain.Role, error) {
	stmt, args, err := r.builder.Select(roleColumns...).
		From(rolesTable).
		OrderBy("name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list roles sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}

	roles := make([]domain.Role, 0)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, *role)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}

	if err := r.attachPermissions(ctx, roles); err != nil {
		return nil, err
	}
	return roles, nil
}

// GetByID retrieves a role by its ID.
func (r *RoleRepository) GetByID(ctx context.Context, id string) (*domain.Role, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetBySlug retrieves a role by its unique slug.
func (r *RoleRepository) GetBySlug(ctx context.Context, slug string) (*domain.Role, error) {
	return r.getOne(ctx, squirrel.Eq{"slug": slug})
}

func (r *RoleRepository) getOne(ctx context.Context, where squirrel.Sqlizer) (*domain.Role, error) {
	stmt, args, err := r.builder.Select(roleColumns...).
		From(rolesTable).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select role sql: %w", err)
	}

	role, err := scanRole(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return nil, translate(err, "select role")
	}

	roles := []domain.Role{*role}
	if err := r.attachPermissions(ctx, roles); err != nil {
		return nil, err
	}
	return &roles[0], nil
}

// Delete removes a role by ID. Users holding it fall back to no role via the FK.
func (r *RoleRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete(rolesTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete role sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return translate(err, "delete role")
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SetPermissions replaces the role's permission links with permissionIDs.
func (r *RoleRepository) SetPermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	stmt, args, err := r.builder.Delete(rolePermissionsTable).
		Where(squirrel.Eq{"role_id": roleID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build clear role permissions sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("clear role permissions: %w", err)
	}

	if len(permissionIDs) == 0 {
		return nil
	}

	query := r.builder.Insert(rolePermissionsTable).
		Columns("role_id", "permission_id")
	for _, permissionID := range permissionIDs {
		query = query.Values(roleID, permissionID)
	}

	stmt, args, err = query.Suffix("ON CONFLICT DO NOTHING").ToSql()
	if err != nil {
		return fmt.Errorf("build assign role permissions sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("assign role permissions: %w", err)
	}
	return nil
}

// attachPermissions fills Permissions on every role with a single join query.
func (r *RoleRepository) attachPermissions(ctx context.Context, roles []domain.Role) error {
	if len(roles) == 0 {
		return nil
	}

	ids := make([]string, len(roles))
	index := make(map[string]int, len(roles))
	for i := range roles {
		ids[i] = roles[i].ID
		index[roles[i].ID] = i
		roles[i].Permissions = []domain.Permission{}
	}

	stmt, args, err := r.builder.Select("rp.role_id", "p.id", "p.slug", "p.description").
		From("permissions p").
		Join("role_permissions rp ON rp.permission_id = p.id").
		Where(squirrel.Eq{"rp.role_id": ids}).
		OrderBy("p.slug ASC").
		ToSql()
	if err != nil {
		return fmt.Errorf("build role permissions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("query role permissions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			roleID      string
			permission  domain.Permission
			description sql.NullString
		)
		if err := rows.Scan(&roleID, &permission.ID, &permission.Slug, &description); err != nil {
			return fmt.Errorf("scan role permission: %w", err)
		}
		permission.Description = stringPtr(description)
		if i, ok := index[roleID]; ok {
			roles[i].Permissions = append(roles[i].Permissions, permission)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate role permissions: %w", err)
	}
	return nil
}

func scanRole(row pgx.Row) (*domain.Role, error) {
	var (
		role        domain.Role
		description sql.NullString
	)
	if err := row.Scan(&role.ID, &role.Name, &role.Slug, &description, &role.IsSystem, &role.CreatedAt); err != nil {
		return nil, err
	}
	role.Description = stringPtr(description)
	return &role, nil
}

var _ port.RoleRepository = (*RoleRepository)(nil)
