package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/213020aumc/matcha/internal/core/domain"
	"github.com/213020aumc/matcha/internal/core/port"
	"github.com/213020aumc/matcha/internal/repository"
)

// stage is one wizard step: how its payload is saved, what must be on file before it may be
// marked complete, and how completion is recorded.
type stage[P any, R any] struct {
	step int
	name string
	// missing lists mandatory fields absent from the payload merged with what is already stored.
	missing func(ctx context.Context, repos port.Repositories, user *domain.User, patch P) ([]string, error)
	save    func(ctx context.Context, profiles port.ProfileRepository, userID string, patch P) (*R, error)
	// complete records the stage as done. Nil means a monotonic advance to step.
	complete func(ctx context.Context, users port.UserRepository, userID string, step int, now time.Time) (*domain.User, bool, error)
}

type stageResult[R any] struct {
	Record   *R
	User     domain.User
	Advanced bool
}

// runStage saves patch and, when isComplete, checks preconditions and records completion in the
// same transaction. A failed precondition rejects the call before anything is written.
func runStage[P, R any](ctx context.Context, s *ProfileService, st stage[P, R], userID string, patch P, isComplete bool) (_ *stageResult[R], err error) {
	ctx, span := startSpan(ctx, "profile."+st.name,
		attribute.Int("stage", st.step),
		attribute.Bool("complete", isComplete),
	)
	defer func() { endSpan(span, err) }()

	result := &stageResult[R]{}
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		user, err := repos.Users.GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.ErrUserNotFound
			}
			return fmt.Errorf("lookup user: %w", err)
		}

		if isComplete && st.missing != nil {
			missing, err := st.missing(ctx, repos, user, patch)
			if err != nil {
				return err
			}
			if len(missing) > 0 {
				return domain.ErrIncompleteStage.WithFields(missing...)
			}
		}

		record, err := st.save(ctx, repos.Profiles, userID, patch)
		if err != nil {
			return fmt.Errorf("save %s: %w", st.name, err)
		}
		result.Record = record
		result.User = *user

		if !isComplete {
			return nil
		}

		complete := st.complete
		if complete == nil {
			complete = advanceTo
		}
		updated, advanced, err := complete(ctx, repos.Users, userID, st.step, s.now())
		if err != nil {
			return fmt.Errorf("complete %s: %w", st.name, err)
		}
		if updated != nil {
			result.User = *updated
		} else if advanced {
			result.User.OnboardingStep = st.step
		}
		result.Advanced = advanced
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Advanced {
		s.metrics.StageAdvanced(st.step)
	}
	return result, nil
}

// advanceTo moves the user forward to step. Repeating or lowering the step is a silent no-op.
func advanceTo(ctx context.Context, users port.UserRepository, userID string, step int, _ time.Time) (*domain.User, bool, error) {
	if step < domain.OnboardingStepInitial || step > domain.OnboardingStepFinal {
		return nil, false, domain.ErrInvalidStep
	}
	advanced, err := users.AdvanceOnboardingStep(ctx, userID, step)
	return nil, advanced, err
}

// submitForReview completes the final stage. It always moves the profile into the review queue.
func submitForReview(ctx context.Context, users port.UserRepository, userID string, _ int, now time.Time) (*domain.User, bool, error) {
	user, err := users.MarkSubmitted(ctx, userID, now)
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

var basicsStage = stage[domain.BasicsPatch, domain.BasicProfile]{
	step: 1,
	name: "basics",
	missing: func(ctx context.Context, repos port.Repositories, user *domain.User, patch domain.BasicsPatch) ([]string, error) {
		current, err := loadBasics(ctx, repos.Profiles, user.ID)
		if err != nil {
			return nil, err
		}

		var missing []string
		if blank(patch.LegalName.Merge(current.LegalName)) {
			missing = append(missing, "legalName")
		}
		if !hasDOB(patch.DOB, current) {
			missing = append(missing, "dob")
		}
		return missing, nil
	},
	save: func(ctx context.Context, profiles port.ProfileRepository, userID string, patch domain.BasicsPatch) (*domain.BasicProfile, error) {
		return profiles.UpsertBasics(ctx, userID, patch)
	},
}

var photosStage = stage[domain.PhotosPatch, domain.BasicProfile]{
	step: 1,
	name: "photos",
	save: func(ctx context.Context, profiles port.ProfileRepository, userID string, patch domain.PhotosPatch) (*domain.BasicProfile, error) {
		return profiles.UpsertPhotos(ctx, userID, patch)
	},
}

var backgroundStage = stage[domain.BackgroundPatch, domain.BasicProfile]{
	step: 2,
	name: "background",
	missing: func(ctx context.Context, repos port.Repositories, user *domain.User, patch domain.BackgroundPatch) ([]string, error) {
		if !user.IsSurrogacyCandidate() {
			return nil, nil
		}
		current, err := loadBasics(ctx, repos.Profiles, user.ID)
		if err != nil {
			return nil, err
		}

		var missing []string
		if current.DOB == nil {
			missing = append(missing, "dob")
		}
		if patch.Height.Merge(current.Height) == nil {
			missing = append(missing, "height")
		}
		if patch.Weight.Merge(current.Weight) == nil {
			missing = append(missing, "weight")
		}
		return missing, nil
	},
	save: func(ctx context.Context, profiles port.ProfileRepository, userID string, patch domain.BackgroundPatch) (*domain.BasicProfile, error) {
		return profiles.UpsertBackground(ctx, userID, patch)
	},
}

var healthStage = stage[domain.HealthPatch, domain.HealthRecord]{
	step: 3,
	name: "health",
	missing: func(ctx context.Context, repos port.Repositories, user *domain.User, patch domain.HealthPatch) ([]string, error) {
		if !user.IsSurrogacyCandidate() {
			return nil, nil
		}
		current, err := repos.Profiles.GetHealth(ctx, user.ID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("load health record: %w", err)
		}
		if current == nil {
			current = &domain.HealthRecord{}
		}

		var missing []string
		if patch.PregnancyHistory.Merge(current.PregnancyHistory) == nil {
			missing = append(missing, "pregnancyHistory")
		}
		if patch.MenstrualRegularity.Merge(current.MenstrualRegularity) == nil {
			missing = append(missing, "menstrualRegularity")
		}
		return missing, nil
	},
	save: func(ctx context.Context, profiles port.ProfileRepository, userID string, patch domain.HealthPatch) (*domain.HealthRecord, error) {
		return profiles.UpsertHealth(ctx, userID, patch)
	},
}

var geneticStage = stage[domain.GeneticPatch, domain.GeneticRecord]{
	step: 4,
	name: "genetic",
	save: func(ctx context.Context, profiles port.ProfileRepository, userID string, patch domain.GeneticPatch) (*domain.GeneticRecord, error) {
		return profiles.UpsertGenetic(ctx, userID, patch)
	},
}

var compensationStage = stage[domain.CompensationPatch, domain.CompensationRecord]{
	step: 5,
	name: "compensation",
	missing: func(ctx context.Context, repos port.Repositories, user *domain.User, patch domain.CompensationPatch) ([]string, error) {
		current, err := repos.Profiles.GetCompensation(ctx, user.ID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("load compensation record: %w", err)
		}
		if current == nil {
			current = &domain.CompensationRecord{}
		}

		bidding := patch.AllowBidding.Merge(current.AllowBidding)
		if bidding == nil || !*bidding {
			return nil, nil
		}

		hasMin := current.MinAcceptedPrice.Valid
		if patch.MinAcceptedPrice.Set {
			hasMin = patch.MinAcceptedPrice.Value != nil
		}
		if !hasMin {
			return []string{"minAcceptedPrice"}, nil
		}
		return nil, nil
	},
	save: func(ctx context.Context, profiles port.ProfileRepository, userID string, patch domain.CompensationPatch) (*domain.CompensationRecord, error) {
		return profiles.UpsertCompensation(ctx, userID, patch)
	},
}

var legalStage = stage[domain.LegalSubmission, domain.LegalRecord]{
	step: 6,
	name: "legal",
	missing: func(_ context.Context, _ port.Repositories, _ *domain.User, legal domain.LegalSubmission) ([]string, error) {
		if !legal.ConsentAgreed {
			return []string{"consentAgreed"}, nil
		}
		return nil, nil
	},
	save: func(ctx context.Context, profiles port.ProfileRepository, userID string, legal domain.LegalSubmission) (*domain.LegalRecord, error) {
		return profiles.UpsertLegal(ctx, userID, legal)
	},
	complete: submitForReview,
}

// loadBasics returns the stored basics, or an empty profile when none exists yet.
func loadBasics(ctx context.Context, profiles port.ProfileRepository, userID string) (*domain.BasicProfile, error) {
	current, err := profiles.GetBasics(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load basic profile: %w", err)
	}
	if current == nil {
		current = &domain.BasicProfile{}
	}
	return current, nil
}

func hasDOB(patch domain.Field[domain.Date], current *domain.BasicProfile) bool {
	if patch.Set {
		return patch.Value != nil
	}
	return current.DOB != nil
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}
