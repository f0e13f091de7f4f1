package port

import (
	"context"
	"time"

	"github.com/213020aumc/matcha/internal/core/domain"
)

// OTPRepository persists issued login codes.
type OTPRepository interface {
	Create(ctx context.Context, challenge domain.OtpChallenge) error
	// LatestForUpdate returns the most recently issued challenge for the user and locks it until the
	// surrounding transaction ends.
	LatestForUpdate(ctx context.Context, userID string) (*domain.OtpChallenge, error)
	// MarkConsumed sets consumed_at only if it is still unset, reporting whether this call consumed it.
	MarkConsumed(ctx context.Context, id string, at time.Time) (bool, error)
}
