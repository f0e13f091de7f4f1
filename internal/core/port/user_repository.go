package port

import (
	"context"
	"time"

	"github.com/213020aumc/matcha/internal/core/domain"
)

// UserRepository exposes persistence behavior for users.
type UserRepository interface {
	// FindOrCreateByEmail returns the user owning email, creating a DRAFT user at step 0 when none exists.
	FindOrCreateByEmail(ctx context.Context, email string) (user *domain.User, created bool, err error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateOnboarding(ctx context.Context, id string, decl domain.OnboardingDeclaration) (*domain.User, error)
	// AdvanceOnboardingStep sets the step only when step is greater than the stored one.
	AdvanceOnboardingStep(ctx context.Context, id string, step int) (advanced bool, err error)
	// MarkSubmitted forces PENDING_REVIEW and the final step.
	MarkSubmitted(ctx context.Context, id string, at time.Time) (*domain.User, error)
	// TransitionReview moves a user from one status to another, failing with repository.ErrNotFound when
	// the user is absent or no longer in from.
	TransitionReview(ctx context.Context, id string, from, to domain.ProfileStatus, review ReviewRecord) (*domain.User, error)
	ListByStatus(ctx context.Context, status domain.ProfileStatus) ([]domain.User, error)
	SetAccessRole(ctx context.Context, id string, roleID *string) error
}

// ReviewRecord is the audit trail persisted with a review decision.
type ReviewRecord struct {
	ReviewedBy string
	ReviewedAt time.Time
	Reason     *string
}
