package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/213020aumc/matcha/internal/core/domain"
	"github.com/213020aumc/matcha/internal/core/port"
	"github.com/213020aumc/matcha/internal/infra/logger"
	"github.com/213020aumc/matcha/internal/repository"
)

// ReviewService runs the administrator review of submitted profiles.
type ReviewService struct {
	tx         port.Transactor
	repos      port.Repositories
	authorizer *Authorizer
	notifier   port.Notifier
	events     port.EventPublisher
	metrics    port.DomainMetrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewReviewService constructs a ReviewService.
func NewReviewService(
	tx port.Transactor,
	repos port.Repositories,
	authorizer *Authorizer,
	notifier port.Notifier,
	events port.EventPublisher,
	metrics port.DomainMetrics,
	log *zap.Logger,
) *ReviewService {
	return &ReviewService{
		tx:         tx,
		repos:      repos,
		authorizer: authorizer,
		notifier:   notifier,
		events:     events,
		metrics:    metrics,
		logger:     log,
		now:        utcNow,
	}
}

// TransitionStatus approves or rejects a profile awaiting review.
// Nothing is written unless the actor holds profiles.approve and the input is valid.
func (s *ReviewService) TransitionStatus(ctx context.Context, actorID, userID string, target domain.ProfileStatus, reason string) (_ *domain.User, err error) {
	ctx, span := startSpan(ctx, "review.TransitionStatus",
		attribute.String("user.id", userID),
		attribute.String("review.target", string(target)),
	)
	defer func() { endSpan(span, err) }()

	if _, err := s.authorizer.Authorize(ctx, actorID, domain.PermProfilesApprove); err != nil {
		return nil, err
	}

	if target != domain.ProfileStatusActive && target != domain.ProfileStatusRejected {
		return nil, domain.ErrInvalidReviewState
	}
	reason = strings.TrimSpace(reason)
	if target == domain.ProfileStatusRejected && reason == "" {
		return nil, domain.ErrRejectionReason
	}

	record := port.ReviewRecord{ReviewedBy: actorID, ReviewedAt: s.now()}
	if target == domain.ProfileStatusRejected {
		record.Reason = &reason
	}

	var updated *domain.User
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		current, err := repos.Users.GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.ErrUserNotFound
			}
			return fmt.Errorf("lookup user: %w", err)
		}
		if current.ProfileStatus != domain.ProfileStatusPendingReview {
			return domain.ErrInvalidTransition
		}

		updated, err = repos.Users.TransitionReview(ctx, userID, domain.ProfileStatusPendingReview, target, record)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.ErrInvalidTransition
			}
			return fmt.Errorf("transition review: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ReviewDecided(target)
	log := logger.WithContext(ctx)
	log.Info("Profile reviewed",
		zap.String("user_id", userID),
		zap.String("reviewed_by", actorID),
		zap.String("status", string(target)),
	)

	s.announce(ctx, updated, target, reason)

	if err := s.events.PublishProfileStatusChanged(ctx, domain.ProfileStatusChangedEvent{
		EventID:    uuid.NewString(),
		UserID:     userID,
		From:       domain.ProfileStatusPendingReview,
		To:         target,
		Reason:     record.Reason,
		ReviewedBy: actorID,
		ReviewedAt: record.ReviewedAt,
	}); err != nil {
		log.Warn("Failed to publish profile status event", zap.String("user_id", userID), zap.Error(err))
	}

	return updated, nil
}

// announce mails the decision to the user. Failures are logged only; the decision already committed.
func (s *ReviewService) announce(ctx context.Context, user *domain.User, status domain.ProfileStatus, reason string) {
	log := logger.WithContext(ctx)

	basics, err := s.repos.Profiles.GetBasics(ctx, user.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		log.Warn("Failed to load name for review email", zap.String("user_id", user.ID), zap.Error(err))
	}

	kind := port.NotifyProfileActive
	data := map[string]string{"FirstName": basics.FirstName("User")}
	if status == domain.ProfileStatusRejected {
		kind = port.NotifyProfileRejected
		data["Reason"] = reason
	}

	if err := s.notifier.Notify(ctx, user.Email, kind, data); err != nil {
		log.Warn("Failed to send review email",
			zap.String("user_id", user.ID),
			zap.String("email", logger.MaskEmail(user.Email)),
			zap.Error(err),
		)
	}
}

// ListPending returns the review queue oldest submission first, with every sub-record attached.
func (s *ReviewService) ListPending(ctx context.Context, actorID string) (_ []domain.ProfileAggregate, err error) {
	ctx, span := startSpan(ctx, "review.ListPending")
	defer func() { endSpan(span, err) }()

	if _, err := s.authorizer.Authorize(ctx, actorID, domain.PermProfilesViewPending); err != nil {
		return nil, err
	}

	users, err := s.repos.Users.ListByStatus(ctx, domain.ProfileStatusPendingReview)
	if err != nil {
		return nil, fmt.Errorf("list pending users: %w", err)
	}
	span.SetAttributes(attribute.Int("review.queue_length", len(users)))

	aggregates, err := s.repos.Profiles.LoadAggregates(ctx, users)
	if err != nil {
		return nil, fmt.Errorf("load pending profiles: %w", err)
	}
	return aggregates, nil
}
