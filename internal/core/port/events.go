package port

import (
	"context"

	"github.com/213020aumc/matcha/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error
	PublishProfileSubmitted(ctx context.Context, event domain.ProfileSubmittedEvent) error
	PublishProfileStatusChanged(ctx context.Context, event domain.ProfileStatusChangedEvent) error
	PublishRoleAssigned(ctx context.Context, event domain.RoleAssignedEvent) error
}
