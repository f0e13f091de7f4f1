package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/213020aumc/matcha/internal/core/domain"
	"github.com/213020aumc/matcha/internal/core/port"
)

const challengesTable = "otp_challenges"

// OTPRepository persists login challenges.
type OTPRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewOTPRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewOTPRepository(exec pgExecutor) *OTPRepository {
	return &OTPRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository configured to execute within the provided transaction.
func (r *OTPRepository) WithTx(tx pgx.Tx) *OTPRepository {
	if tx == nil {
		return r
	}
	return &OTPRepository{exec: tx, builder: r.builder}
}

// Create inserts a new challenge.
func (r *OTPRepository) Create(ctx context.Context, c domain.OtpChallenge) error {
	stmt, args, err := r.builder.Insert(challengesTable).
		Columns("id", "user_id", "code_hash", "expires_at", "created_at").
		Values(c.ID, c.UserID, c.CodeHash, c.ExpiresAt, c.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert challenge sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert challenge: %w", err)
	}
	return nil
}

// LatestForUpdate returns the newest challenge for the user and row-locks it, so a concurrent
// verification of the same challenge waits until this transaction commits.
func (r *OTPRepository) LatestForUpdate(ctx context.Context, userID string) (*domain.OtpChallenge, error) {
	stmt, args, err := r.builder.Select("id", "user_id", "code_hash", "expires_at", "consumed_at", "created_at").
		From(challengesTable).
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(1).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build latest challenge sql: %w", err)
	}

	var (
		c          domain.OtpChallenge
		consumedAt sql.NullTime
	)
	err = r.exec.QueryRow(ctx, stmt, args...).Scan(&c.ID, &c.UserID, &c.CodeHash, &c.ExpiresAt, &consumedAt, &c.CreatedAt)
	if err != nil {
		return nil, translate(err, "select latest challenge")
	}
	c.ConsumedAt = timePtr(consumedAt)
	return &c, nil
}

// MarkConsumed is the conditional write that makes each challenge single-use.
func (r *OTPRepository) MarkConsumed(ctx context.Context, id string, at time.Time) (bool, error) {
	stmt, args, err := r.builder.Update(challengesTable).
		Set("consumed_at", at).
		Where(squirrel.Eq{"id": id, "consumed_at": nil}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build consume challenge sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("consume challenge: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

var _ port.OTPRepository = (*OTPRepository)(nil)
