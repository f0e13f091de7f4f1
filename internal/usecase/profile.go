package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/213020aumc/matcha/internal/core/domain"
	"github.com/213020aumc/matcha/internal/core/port"
	"github.com/213020aumc/matcha/internal/infra/logger"
	"github.com/213020aumc/matcha/internal/infra/storage"
	"github.com/213020aumc/matcha/internal/repository"
)

// Upload is a file received from the client, not yet stored.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// CurrentProfile is the full aggregate with resume hints for the wizard.
type CurrentProfile struct {
	domain.ProfileAggregate
	SuggestedStage int  `json:"suggestedStage"`
	IsComplete     bool `json:"isComplete"`
}

// Submission is the outcome of the final stage.
type Submission struct {
	Legal *domain.LegalRecord `json:"legal"`
	User  domain.User         `json:"user"`
}

// ProfileService writes the onboarding declarations and the per-stage profile records.
type ProfileService struct {
	tx             port.Transactor
	repos          port.Repositories
	sanitizer      port.TextSanitizer
	store          port.ObjectStore
	events         port.EventPublisher
	metrics        port.DomainMetrics
	maxUploadBytes int64
	logger         *zap.Logger
	now            func() time.Time
}

// NewProfileService constructs a ProfileService.
func NewProfileService(
	tx port.Transactor,
	repos port.Repositories,
	sanitizer port.TextSanitizer,
	store port.ObjectStore,
	events port.EventPublisher,
	metrics port.DomainMetrics,
	maxUploadBytes int64,
	log *zap.Logger,
) *ProfileService {
	return &ProfileService{
		tx:             tx,
		repos:          repos,
		sanitizer:      sanitizer,
		store:          store,
		events:         events,
		metrics:        metrics,
		maxUploadBytes: maxUploadBytes,
		logger:         log,
		now:            utcNow,
	}
}

// UpdateOnboarding records the step-0 declarations. It never moves the onboarding step.
func (s *ProfileService) UpdateOnboarding(ctx context.Context, userID string, decl domain.OnboardingDeclaration) (_ *domain.User, err error) {
	ctx, span := startSpan(ctx, "profile.onboarding")
	defer func() { endSpan(span, err) }()

	var invalid []string
	if !decl.Gender.Valid() {
		invalid = append(invalid, "gender")
	}
	if !decl.Role.Valid() {
		invalid = append(invalid, "role")
	}
	if !decl.ServiceType.Valid() {
		invalid = append(invalid, "serviceType")
	}
	if !decl.InterestedIn.Valid() {
		invalid = append(invalid, "interestedIn")
	}
	if !decl.TermsAccepted {
		if len(invalid) == 0 {
			return nil, domain.ErrTermsRequired
		}
		invalid = append(invalid, "termsAccepted")
	}
	if len(invalid) > 0 {
		return nil, domain.NewValidationError("invalid_onboarding", "onboarding data is invalid", invalid...)
	}

	pairing := make([]string, 0, len(decl.PairingTypes))
	for _, p := range decl.PairingTypes {
		if p = s.sanitizer.Sanitize(p); p != "" {
			pairing = append(pairing, p)
		}
	}
	decl.PairingTypes = pairing

	user, err := s.repos.Users.UpdateOnboarding(ctx, userID, decl)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("update onboarding: %w", err)
	}
	return user, nil
}

// SaveBasics writes stage 1 basic information.
func (s *ProfileService) SaveBasics(ctx context.Context, userID string, patch domain.BasicsPatch, isComplete bool) (*domain.BasicProfile, error) {
	patch.LegalName = s.clean(patch.LegalName)
	patch.PhoneNumber = s.clean(patch.PhoneNumber)
	patch.Address = s.clean(patch.Address)

	res, err := runStage(ctx, s, basicsStage, userID, patch, isComplete)
	if err != nil {
		return nil, err
	}
	return res.Record, nil
}

// UploadPhotos stores the baby and current photos and records their URLs. At least one is required.
func (s *ProfileService) UploadPhotos(ctx context.Context, userID string, baby, current *Upload) (*domain.BasicProfile, error) {
	if baby == nil && current == nil {
		return nil, domain.ErrFileRequired.WithFields("babyPhoto", "currentPhoto")
	}
	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}

	var patch domain.PhotosPatch
	if baby != nil {
		url, err := s.storeUpload(ctx, userID, "photos", "babyPhoto", *baby)
		if err != nil {
			return nil, err
		}
		patch.BabyPhotoURL = domain.Some(url)
	}
	if current != nil {
		url, err := s.storeUpload(ctx, userID, "photos", "currentPhoto", *current)
		if err != nil {
			return nil, err
		}
		patch.CurrentPhotoURL = domain.Some(url)
	}

	res, err := runStage(ctx, s, photosStage, userID, patch, false)
	if err != nil {
		return nil, err
	}
	return res.Record, nil
}

// UploadIdentityDocument stores a proof of identity. It does not affect the onboarding step.
func (s *ProfileService) UploadIdentityDocument(ctx context.Context, userID string, docType domain.IdentityDocumentType, file *Upload) (_ *domain.IdentityDocument, err error) {
	ctx, span := startSpan(ctx, "profile.identity")
	defer func() { endSpan(span, err) }()

	docType = domain.IdentityDocumentType(strings.ToUpper(strings.TrimSpace(string(docType))))
	if !docType.Valid() {
		return nil, domain.NewValidationError("invalid_document_type", "document type must be DRIVER_LICENSE, PASSPORT or NATIONAL_ID", "type")
	}
	if file == nil {
		return nil, domain.ErrFileRequired.WithFields("document")
	}
	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}

	url, err := s.storeUpload(ctx, userID, "documents", "document", *file)
	if err != nil {
		return nil, err
	}

	doc, err := s.repos.Profiles.AddIdentityDocument(ctx, domain.IdentityDocument{
		ID:         uuid.NewString(),
		UserID:     userID,
		Type:       docType,
		FileURL:    url,
		UploadedAt: s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("add identity document: %w", err)
	}
	return doc, nil
}

// SaveBackground writes stage 2.
func (s *ProfileService) SaveBackground(ctx context.Context, userID string, patch domain.BackgroundPatch, isComplete bool) (*domain.BasicProfile, error) {
	var invalid []string
	if v := patch.Height.Value; v != nil && *v <= 0 {
		invalid = append(invalid, "height")
	}
	if v := patch.Weight.Value; v != nil && *v <= 0 {
		invalid = append(invalid, "weight")
	}
	if len(invalid) > 0 {
		return nil, domain.NewValidationError("invalid_measurement", "height and weight must be positive", invalid...)
	}

	for _, f := range []*domain.Field[string]{
		&patch.Education, &patch.Occupation, &patch.Nationality, &patch.Diet, &patch.BodyBuild,
		&patch.HairColor, &patch.EyeColor, &patch.Race, &patch.Orientation, &patch.Bio,
	} {
		*f = s.clean(*f)
	}

	res, err := runStage(ctx, s, backgroundStage, userID, patch, isComplete)
	if err != nil {
		return nil, err
	}
	return res.Record, nil
}

// SaveHealth writes stage 3.
func (s *ProfileService) SaveHealth(ctx context.Context, userID string, patch domain.HealthPatch, isComplete bool) (*domain.HealthRecord, error) {
	for _, f := range []*domain.Field[string]{
		&patch.MentalHealthHistory, &patch.OtherConditions, &patch.MajorSurgeries,
		&patch.AllergiesDetails, &patch.CMVStatus,
	} {
		*f = s.clean(*f)
	}

	res, err := runStage(ctx, s, healthStage, userID, patch, isComplete)
	if err != nil {
		return nil, err
	}
	return res.Record, nil
}

// SaveGenetic writes stage 4. A report, when given, is stored first and its URL replaces any in patch.
func (s *ProfileService) SaveGenetic(ctx context.Context, userID string, patch domain.GeneticPatch, report *Upload, isComplete bool) (*domain.GeneticRecord, error) {
	if patch.CarrierConditions.Value != nil {
		conditions := make(domain.StringList, 0, len(*patch.CarrierConditions.Value))
		for _, c := range *patch.CarrierConditions.Value {
			if c = s.sanitizer.Sanitize(c); c != "" {
				conditions = append(conditions, c)
			}
		}
		patch.CarrierConditions = domain.Some(conditions)
	}

	if report != nil {
		if err := s.ensureUser(ctx, userID); err != nil {
			return nil, err
		}
		url, err := s.storeUpload(ctx, userID, "genetics", "report", *report)
		if err != nil {
			return nil, err
		}
		patch.ReportFileURL = domain.Some(url)
	}

	res, err := runStage(ctx, s, geneticStage, userID, patch, isComplete)
	if err != nil {
		return nil, err
	}
	return res.Record, nil
}

// SaveCompensation writes stage 5.
func (s *ProfileService) SaveCompensation(ctx context.Context, userID string, patch domain.CompensationPatch, isComplete bool) (*domain.CompensationRecord, error) {
	var invalid []string
	for name, f := range map[string]domain.Field[decimal.Decimal]{
		"askingPrice":      patch.AskingPrice,
		"minAcceptedPrice": patch.MinAcceptedPrice,
		"buyNowPrice":      patch.BuyNowPrice,
	} {
		if f.Value != nil && f.Value.IsNegative() {
			invalid = append(invalid, name)
		}
	}
	if len(invalid) > 0 {
		slices.Sort(invalid)
		return nil, domain.NewValidationError("invalid_price", "prices cannot be negative", invalid...)
	}

	res, err := runStage(ctx, s, compensationStage, userID, patch, isComplete)
	if err != nil {
		return nil, err
	}
	return res.Record, nil
}

// SubmitLegal writes stage 6 and moves the profile into the review queue.
func (s *ProfileService) SubmitLegal(ctx context.Context, userID string, legal domain.LegalSubmission) (*Submission, error) {
	if !legal.ConsentAgreed {
		return nil, domain.ErrConsentRequired
	}
	if legal.AnonymityPreference != nil {
		pref := s.sanitizer.Sanitize(*legal.AnonymityPreference)
		legal.AnonymityPreference = &pref
	}

	res, err := runStage(ctx, s, legalStage, userID, legal, true)
	if err != nil {
		return nil, err
	}

	submittedAt := s.now()
	if res.User.SubmittedAt != nil {
		submittedAt = *res.User.SubmittedAt
	}
	if err := s.events.PublishProfileSubmitted(ctx, domain.ProfileSubmittedEvent{
		EventID:     uuid.NewString(),
		UserID:      userID,
		ServiceType: res.User.ServiceType,
		Role:        res.User.Role,
		SubmittedAt: submittedAt,
	}); err != nil {
		logger.WithContext(ctx).Warn("Failed to publish profile submitted event", zap.String("user_id", userID), zap.Error(err))
	}
	logger.WithContext(ctx).Info("Profile submitted for review", zap.String("user_id", userID))

	return &Submission{Legal: res.Record, User: res.User}, nil
}

// Current returns the user's aggregate with the next stage to show.
func (s *ProfileService) Current(ctx context.Context, userID string) (*CurrentProfile, error) {
	user, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	aggregates, err := s.repos.Profiles.LoadAggregates(ctx, []domain.User{*user})
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if len(aggregates) != 1 {
		return nil, fmt.Errorf("load profile: expected one aggregate, got %d", len(aggregates))
	}

	return &CurrentProfile{
		ProfileAggregate: aggregates[0],
		SuggestedStage:   SuggestedStage(*user),
		IsComplete:       user.OnboardingComplete(),
	}, nil
}

// Basics returns stage 1 and 2 data, or nil when nothing was saved yet.
func (s *ProfileService) Basics(ctx context.Context, userID string) (*domain.BasicProfile, error) {
	return optional(s.repos.Profiles.GetBasics(ctx, userID))
}

// IdentityDocuments lists every uploaded proof of identity.
func (s *ProfileService) IdentityDocuments(ctx context.Context, userID string) ([]domain.IdentityDocument, error) {
	docs, err := s.repos.Profiles.ListIdentityDocuments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list identity documents: %w", err)
	}
	return docs, nil
}

func (s *ProfileService) Health(ctx context.Context, userID string) (*domain.HealthRecord, error) {
	return optional(s.repos.Profiles.GetHealth(ctx, userID))
}

func (s *ProfileService) Genetic(ctx context.Context, userID string) (*domain.GeneticRecord, error) {
	return optional(s.repos.Profiles.GetGenetic(ctx, userID))
}

func (s *ProfileService) Compensation(ctx context.Context, userID string) (*domain.CompensationRecord, error) {
	return optional(s.repos.Profiles.GetCompensation(ctx, userID))
}

func (s *ProfileService) Legal(ctx context.Context, userID string) (*domain.LegalRecord, error) {
	return optional(s.repos.Profiles.GetLegal(ctx, userID))
}

func optional[T any](record *T, err error) (*T, error) {
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load profile record: %w", err)
	}
	return record, nil
}

func (s *ProfileService) ensureUser(ctx context.Context, userID string) error {
	if _, err := s.repos.Users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	return nil
}

// storeUpload validates file and writes it under users/<id>/<folder>/.
func (s *ProfileService) storeUpload(ctx context.Context, userID, folder, field string, file Upload) (string, error) {
	if err := storage.Validate(file.ContentType, file.Size, s.maxUploadBytes); err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			return "", de.WithFields(field)
		}
		return "", err
	}

	key := fmt.Sprintf("users/%s/%s/%s%s", userID, folder, uuid.NewString(), storage.Extension(file.ContentType))
	url, err := s.store.Put(ctx, port.UploadedObject{
		Key:         key,
		ContentType: file.ContentType,
		Size:        file.Size,
		Body:        file.Body,
	})
	if err != nil {
		return "", fmt.Errorf("store %s: %w", field, err)
	}
	return url, nil
}

// clean sanitizes a set text field. Text that sanitizes to nothing clears the field.
func (s *ProfileService) clean(f domain.Field[string]) domain.Field[string] {
	if f.Value == nil {
		return f
	}
	v := s.sanitizer.Sanitize(*f.Value)
	if v == "" {
		return domain.Null[string]()
	}
	return domain.Some(v)
}
