package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/213020aumc/matcha/internal/core/domain"
	"github.com/213020aumc/matcha/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Used when no brokers are configured.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

func (p *StubPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	p.logEvent(EventUserRegistered, event.UserID, event.RegisteredAt, map[string]any{
		"user_id": event.UserID,
	})
	return nil
}

func (p *StubPublisher) PublishProfileSubmitted(_ context.Context, event domain.ProfileSubmittedEvent) error {
	p.logEvent(EventProfileSubmitted, event.UserID, event.SubmittedAt, map[string]any{
		"service_type": event.ServiceType,
		"role":         event.Role,
	})
	return nil
}

func (p *StubPublisher) PublishProfileStatusChanged(_ context.Context, event domain.ProfileStatusChangedEvent) error {
	p.logEvent(EventProfileStatusChanged, event.UserID, event.ReviewedAt, map[string]any{
		"from":        event.From,
		"to":          event.To,
		"reviewed_by": event.ReviewedBy,
	})
	return nil
}

func (p *StubPublisher) PublishRoleAssigned(_ context.Context, event domain.RoleAssignedEvent) error {
	p.logEvent(EventRoleAssigned, event.UserID, event.AssignedAt, map[string]any{
		"role_id":     event.RoleID,
		"role_name":   event.RoleName,
		"assigned_by": event.AssignedBy,
	})
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
