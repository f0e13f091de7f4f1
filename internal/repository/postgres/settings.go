package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/213020aumc/matcha/internal/core/domain"
	"github.com/213020aumc/matcha/internal/core/port"
	"github.com/213020aumc/matcha/internal/repository"
)

const settingsTable = "settings"

// SettingsRepository stores key/value settings.
type SettingsRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSettingsRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewSettingsRepository(exec pgExecutor) *SettingsRepository {
	return &SettingsRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository configured to execute within the provided transaction.
func (r *SettingsRepository) WithTx(tx pgx.Tx) *SettingsRepository {
	if tx == nil {
		return r
	}
	return &SettingsRepository{exec: tx, builder: r.builder}
}

// List returns every setting ordered by key.
func (r *SettingsRepository) List(ctx context.Context) ([]domain.Setting, error) {
	stmt, args, err := r.builder.Select("key", "value", "updated_at").
		From(settingsTable).
		OrderBy("key ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list settings sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	settings := make([]domain.Setting, 0)
	for rows.Next() {
		var s domain.Setting
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings = append(settings, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settings: %w", err)
	}
	return settings, nil
}

// Get returns a single setting.
func (r *SettingsRepository) Get(ctx context.Context, key string) (*domain.Setting, error) {
	stmt, args, err := r.builder.Select("key", "value", "updated_at").
		From(settingsTable).
		Where(squirrel.Eq{"key": key}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select setting sql: %w", err)
	}

	var s domain.Setting
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&s.Key, &s.Value, &s.UpdatedAt); err != nil {
		return nil, translate(err, "select setting")
	}
	return &s, nil
}

// Upsert writes value under key.
func (r *SettingsRepository) Upsert(ctx context.Context, key, value string) error {
	stmt, args, err := r.builder.Insert(settingsTable).
		Columns("key", "value").
		Values(key, value).
		Suffix("ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert setting sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert setting: %w", err)
	}
	return nil
}

// InsertMissing stores value only when key is absent, leaving operator edits untouched.
func (r *SettingsRepository) InsertMissing(ctx context.Context, key, value string) error {
	stmt, args, err := r.builder.Insert(settingsTable).
		Columns("key", "value").
		Values(key, value).
		Suffix("ON CONFLICT (key) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert setting sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert setting: %w", err)
	}
	return nil
}

// Delete removes key.
func (r *SettingsRepository) Delete(ctx context.Context, key string) error {
	stmt, args, err := r.builder.Delete(settingsTable).
		Where(squirrel.Eq{"key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete setting sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete setting: %w", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

var _ port.SettingsRepository = (*SettingsRepository)(nil)
