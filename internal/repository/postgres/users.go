package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/213020aumc/matcha/internal/core/domain"
	"github.com/213020aumc/matcha/internal/core/port"
	"github.com/213020aumc/matcha/internal/repository"
)

const usersTable = "users"

var userColumns = []string{
	"id",
	"email",
	"gender",
	"role",
	"service_type",
	"interested_in",
	"pairing_types",
	"terms_accepted",
	"onboarding_step",
	"profile_status",
	"access_role_id",
	"submitted_at",
	"reviewed_at",
	"reviewed_by",
	"rejection_reason",
	"created_at",
	"updated_at",
}

// UserRepository implements port.UserRepository backed by PostgreSQL.
type UserRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	newID   func() string
}

// NewUserRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		newID:   uuid.NewString,
	}
}

// WithTx returns a repository configured to execute within the provided transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	if tx == nil {
		return r
	}
	return &UserRepository{exec: tx, builder: r.builder, newID: r.newID}
}

// FindOrCreateByEmail inserts a fresh DRAFT user or returns the existing one. The no-op update on
// conflict makes RETURNING yield the existing row, and xmax = 0 only for rows this statement inserted.
func (r *UserRepository) FindOrCreateByEmail(ctx context.Context, email string) (*domain.User, bool, error) {
	stmt, args, err := r.builder.Insert(usersTable).
		Columns("id", "email", "onboarding_step", "profile_status").
		Values(r.newID(), email, domain.OnboardingStepInitial, string(domain.ProfileStatusDraft)).
		Suffix("ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email RETURNING " + joinColumns(userColumns) + ", (xmax = 0) AS inserted").
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build upsert user sql: %w", err)
	}

	var inserted bool
	user, err := scanUser(r.exec.QueryRow(ctx, stmt, args...), &inserted)
	if err != nil {
		return nil, false, translate(err, "find or create user")
	}
	return user, inserted, nil
}

// GetByID fetches a user by primary key.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"email": email})
}

func (r *UserRepository) getOne(ctx context.Context, where squirrel.Sqlizer) (*domain.User, error) {
	stmt, args, err := r.builder.Select(userColumns...).
		From(usersTable).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	user, err := scanUser(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return nil, translate(err, "select user")
	}
	return user, nil
}

// UpdateOnboarding records the step-0 declarations.
func (r *UserRepository) UpdateOnboarding(ctx context.Context, id string, decl domain.OnboardingDeclaration) (*domain.User, error) {
	pairing := decl.PairingTypes
	if pairing == nil {
		pairing = []string{}
	}

	stmt, args, err := r.builder.Update(usersTable).
		Set("gender", string(decl.Gender)).
		Set("role", string(decl.Role)).
		Set("service_type", string(decl.ServiceType)).
		Set("interested_in", string(decl.InterestedIn)).
		Set("pairing_types", pairing).
		Set("terms_accepted", decl.TermsAccepted).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING " + joinColumns(userColumns)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update onboarding sql: %w", err)
	}

	user, err := scanUser(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return nil, translate(err, "update onboarding")
	}
	return user, nil
}

// AdvanceOnboardingStep is a conditional max-write: concurrent or out-of-order calls can never lower the step.
func (r *UserRepository) AdvanceOnboardingStep(ctx context.Context, id string, step int) (bool, error) {
	stmt, args, err := r.builder.Update(usersTable).
		Set("onboarding_step", step).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Lt{"onboarding_step": step}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build advance step sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("advance onboarding step: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkSubmitted moves the user into the review queue regardless of the current status.
func (r *UserRepository) MarkSubmitted(ctx context.Context, id string, at time.Time) (*domain.User, error) {
	stmt, args, err := r.builder.Update(usersTable).
		Set("profile_status", string(domain.ProfileStatusPendingReview)).
		Set("onboarding_step", squirrel.Expr("GREATEST(onboarding_step, ?)", domain.OnboardingStepFinal)).
		Set("submitted_at", at).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING " + joinColumns(userColumns)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build mark submitted sql: %w", err)
	}

	user, err := scanUser(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return nil, translate(err, "mark submitted")
	}
	return user, nil
}

// TransitionReview applies a review decision only while the user is still in from.
func (r *UserRepository) TransitionReview(ctx context.Context, id string, from, to domain.ProfileStatus, review port.ReviewRecord) (*domain.User, error) {
	stmt, args, err := r.builder.Update(usersTable).
		Set("profile_status", string(to)).
		Set("reviewed_at", review.ReviewedAt).
		Set("reviewed_by", review.ReviewedBy).
		Set("rejection_reason", review.Reason).
		Set("updated_at", review.ReviewedAt).
		Where(squirrel.Eq{"id": id, "profile_status": string(from)}).
		Suffix("RETURNING " + joinColumns(userColumns)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build review transition sql: %w", err)
	}

	user, err := scanUser(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return nil, translate(err, "review transition")
	}
	return user, nil
}

// ListByStatus returns users in status, oldest submission first.
func (r *UserRepository) ListByStatus(ctx context.Context, status domain.ProfileStatus) ([]domain.User, error) {
	stmt, args, err := r.builder.Select(userColumns...).
		From(usersTable).
		Where(squirrel.Eq{"profile_status": string(status)}).
		OrderBy("submitted_at ASC NULLS LAST", "created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list users sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// SetAccessRole points the user at roleID, or clears the reference when roleID is nil.
func (r *UserRepository) SetAccessRole(ctx context.Context, id string, roleID *string) error {
	stmt, args, err := r.builder.Update(usersTable).
		Set("access_role_id", roleID).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set access role sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("set access role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row, extra ...any) (*domain.User, error) {
	var (
		user            domain.User
		gender          sql.NullString
		role            sql.NullString
		serviceType     sql.NullString
		interestedIn    sql.NullString
		status          string
		accessRoleID    sql.NullString
		submittedAt     sql.NullTime
		reviewedAt      sql.NullTime
		reviewedBy      sql.NullString
		rejectionReason sql.NullString
	)

	dest := []any{
		&user.ID,
		&user.Email,
		&gender,
		&role,
		&serviceType,
		&interestedIn,
		&user.PairingTypes,
		&user.TermsAccepted,
		&user.OnboardingStep,
		&status,
		&accessRoleID,
		&submittedAt,
		&reviewedAt,
		&reviewedBy,
		&rejectionReason,
		&user.CreatedAt,
		&user.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	user.Gender = enumPtr[domain.Gender](gender)
	user.Role = enumPtr[domain.MemberRole](role)
	user.ServiceType = enumPtr[domain.ServiceType](serviceType)
	user.InterestedIn = enumPtr[domain.GameteType](interestedIn)
	user.ProfileStatus = domain.ProfileStatus(status)
	user.AccessRoleID = stringPtr(accessRoleID)
	user.SubmittedAt = timePtr(submittedAt)
	user.ReviewedAt = timePtr(reviewedAt)
	user.ReviewedBy = stringPtr(reviewedBy)
	user.RejectionReason = stringPtr(rejectionReason)
	if user.PairingTypes == nil {
		user.PairingTypes = []string{}
	}

	return &user, nil
}

var _ port.UserRepository = (*UserRepository)(nil)
