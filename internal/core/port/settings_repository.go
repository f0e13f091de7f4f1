package port

import (
	"context"

	"github.com/213020aumc/matcha/internal/core/domain"
)

// SettingsRepository stores plain key/value settings.
type SettingsRepository interface {
	List(ctx context.Context) ([]domain.Setting, error)
	Get(ctx context.Context, key string) (*domain.Setting, error)
	Upsert(ctx context.Context, key, value string) error
	// InsertMissing stores value only when the key does not exist yet.
	InsertMissing(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// SettingsProvider is the narrow read view consulted at call time by mail composition.
type SettingsProvider interface {
	Get(ctx context.Context, key, fallback string) string
}
