package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/213020aumc/matcha/internal/core/domain"
	"github.com/213020aumc/matcha/internal/core/port"
	"github.com/213020aumc/matcha/internal/infra/config"
)

const schemaVersion = "1.0"

// Event types. The producer prefixes them with the configured topic prefix.
const (
	EventUserRegistered       = "user.registered"
	EventProfileSubmitted     = "profile.submitted"
	EventProfileStatusChanged = "profile.status_changed"
	EventRoleAssigned         = "user.role.assigned"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(userID),
		Value: sarama.ByteEncoder(bytes),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(eventType)},
		},
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishUserRegistered publishes user.registered events.
func (p *EventPublisher) PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error {
	payload := struct {
		UserID       string    `json:"user_id"`
		Email        string    `json:"email"`
		RegisteredAt time.Time `json:"registered_at"`
	}{
		UserID:       event.UserID,
		Email:        event.Email,
		RegisteredAt: event.RegisteredAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventUserRegistered, event.UserID, event.RegisteredAt, payload)
}

// PublishProfileSubmitted publishes profile.submitted events.
func (p *EventPublisher) PublishProfileSubmitted(ctx context.Context, event domain.ProfileSubmittedEvent) error {
	payload := struct {
		UserID      string              `json:"user_id"`
		ServiceType *domain.ServiceType `json:"service_type,omitempty"`
		Role        *domain.MemberRole  `json:"role,omitempty"`
		SubmittedAt time.Time           `json:"submitted_at"`
	}{
		UserID:      event.UserID,
		ServiceType: event.ServiceType,
		Role:        event.Role,
		SubmittedAt: event.SubmittedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventProfileSubmitted, event.UserID, event.SubmittedAt, payload)
}

// PublishProfileStatusChanged publishes profile.status_changed events.
func (p *EventPublisher) PublishProfileStatusChanged(ctx context.Context, event domain.ProfileStatusChangedEvent) error {
	payload := struct {
		UserID     string               `json:"user_id"`
		From       domain.ProfileStatus `json:"from"`
		To         domain.ProfileStatus `json:"to"`
		Reason     *string              `json:"reason,omitempty"`
		ReviewedBy string               `json:"reviewed_by"`
		ReviewedAt time.Time            `json:"reviewed_at"`
	}{
		UserID:     event.UserID,
		From:       event.From,
		To:         event.To,
		Reason:     event.Reason,
		ReviewedBy: event.ReviewedBy,
		ReviewedAt: event.ReviewedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventProfileStatusChanged, event.UserID, event.ReviewedAt, payload)
}

// PublishRoleAssigned publishes user.role.assigned events.
func (p *EventPublisher) PublishRoleAssigned(ctx context.Context, event domain.RoleAssignedEvent) error {
	payload := struct {
		UserID     string    `json:"user_id"`
		RoleID     string    `json:"role_id"`
		RoleName   string    `json:"role_name"`
		AssignedBy string    `json:"assigned_by"`
		AssignedAt time.Time `json:"assigned_at"`
	}{
		UserID:     event.UserID,
		RoleID:     event.RoleID,
		RoleName:   event.RoleName,
		AssignedBy: event.AssignedBy,
		AssignedAt: event.AssignedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventRoleAssigned, event.UserID, event.AssignedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
