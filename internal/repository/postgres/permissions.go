package postgres

import (
	"context"
	"database/sql"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/213020aumc/matcha/internal/core/domain"
	"github.com/213020aumc/matcha/internal/core/port"
)

const permissionsTable = "permissions"

// PermissionRepository implements port.PermissionRepository over PostgreSQL.
type PermissionRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	newID   func() string
}

// NewPermissionRepository constructs a permission repository instance.
func NewPermissionRepository(exec pgExecutor) *PermissionRepository {
	return &PermissionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		newID:   uuid.NewString,
	}
}

// WithTx returns a repository configured to execute within the provided transaction.
func (r *PermissionRepository) WithTx(tx pgx.Tx) *PermissionRepository {
	if tx == nil {
		return r
	}
	return &PermissionRepository{exec: tx, builder: r.builder, newID: r.newID}
}

// List returns the whole catalog ordered by slug.
func (r *PermissionRepository) List(ctx context.Context) ([]domain.Permission, error) {
	return r.query(ctx, nil)
}

// GetBySlugs returns the permissions whose slug is in slugs. Unknown slugs are simply absent.
func (r *PermissionRepository) GetBySlugs(ctx context.Context, slugs []string) ([]domain.Permission, error) {
	if len(slugs) == 0 {
		return []domain.Permission{}, nil
	}
	return r.query(ctx, squirrel.Eq{"slug": slugs})
}

func (r *PermissionRepository) query(ctx context.Context, where squirrel.Sqlizer) ([]domain.Permission, error) {
	builder := r.builder.Select("id", "slug", "description").
		From(permissionsTable).
		OrderBy("slug ASC")
	if where != nil {
		builder = builder.Where(where)
	}

	stmt, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select permissions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query permissions: %w", err)
	}
	defer rows.Close()

	permissions := make([]domain.Permission, 0)
	for rows.Next() {
		permission, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		permissions = append(permissions, *permission)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permissions: %w", err)
	}
	return permissions, nil
}

// Ensure inserts the catalog entry when its slug is missing and refreshes the description otherwise.
func (r *PermissionRepository) Ensure(ctx context.Context, spec domain.PermissionSpec) (*domain.Permission, error) {
	stmt, args, err := r.builder.Insert(permissionsTable).
		Columns("id", "slug", "description").
		Values(r.newID(), spec.Slug, spec.Description).
		Suffix("ON CONFLICT (slug) DO UPDATE SET description = EXCLUDED.description RETURNING id, slug, description").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ensure permission sql: %w", err)
	}

	permission, err := scanPermission(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return nil, translate(err, "ensure permission")
	}
	return permission, nil
}

func scanPermission(row pgx.Row) (*domain.Permission, error) {
	var (
		permission  domain.Permission
		description sql.NullString
	)
	if err := row.Scan(&permission.ID, &permission.Slug, &description); err != nil {
		return nil, err
	}
	permission.Description = stringPtr(description)
	return &permission, nil
}

var _ port.PermissionRepository = (*PermissionRepository)(nil)
