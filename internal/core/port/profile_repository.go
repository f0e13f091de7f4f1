package port

import (
	"context"

	"github.com/213020aumc/matcha/internal/core/domain"
)

// ProfileRepository upserts and loads the per-user profile sub-records.
// Every upsert is keyed by user id and applies only the fields marked as set.
type ProfileRepository interface {
	GetBasics(ctx context.Context, userID string) (*domain.BasicProfile, error)
	UpsertBasics(ctx context.Context, userID string, patch domain.BasicsPatch) (*domain.BasicProfile, error)
	UpsertPhotos(ctx context.Context, userID string, patch domain.PhotosPatch) (*domain.BasicProfile, error)
	UpsertBackground(ctx context.Context, userID string, patch domain.BackgroundPatch) (*domain.BasicProfile, error)

	AddIdentityDocument(ctx context.Context, doc domain.IdentityDocument) (*domain.IdentityDocument, error)
	ListIdentityDocuments(ctx context.Context, userID string) ([]domain.IdentityDocument, error)

	GetHealth(ctx context.Context, userID string) (*domain.HealthRecord, error)
	UpsertHealth(ctx context.Context, userID string, patch domain.HealthPatch) (*domain.HealthRecord, error)

	GetGenetic(ctx context.Context, userID string) (*domain.GeneticRecord, error)
	UpsertGenetic(ctx context.Context, userID string, patch domain.GeneticPatch) (*domain.GeneticRecord, error)

	GetCompensation(ctx context.Context, userID string) (*domain.CompensationRecord, error)
	UpsertCompensation(ctx context.Context, userID string, patch domain.CompensationPatch) (*domain.CompensationRecord, error)

	GetLegal(ctx context.Context, userID string) (*domain.LegalRecord, error)
	UpsertLegal(ctx context.Context, userID string, legal domain.LegalSubmission) (*domain.LegalRecord, error)

	// LoadAggregates attaches every existing sub-record to the given users, preserving order.
	LoadAggregates(ctx context.Context, users []domain.User) ([]domain.ProfileAggregate, error)
}
