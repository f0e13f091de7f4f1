package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/213020aumc/matcha/internal/core/domain"
	"github.com/213020aumc/matcha/internal/transport/http/middleware"
	"github.com/213020aumc/matcha/internal/usecase"
)

// multipartOverhead is the allowance for form fields and part headers on top of the file limit.
const multipartOverhead = 1 << 20

// ProfileUsecase is the onboarding wizard surface used by ProfileHandler.
type ProfileUsecase interface {
	UpdateOnboarding(ctx context.Context, userID string, decl domain.OnboardingDeclaration) (*domain.User, error)
	SaveBasics(ctx context.Context, userID string, patch domain.BasicsPatch, isComplete bool) (*domain.BasicProfile, error)
	UploadPhotos(ctx context.Context, userID string, baby, current *usecase.Upload) (*domain.BasicProfile, error)
	UploadIdentityDocument(ctx context.Context, userID string, docType domain.IdentityDocumentType, file *usecase.Upload) (*domain.IdentityDocument, error)
	SaveBackground(ctx context.Context, userID string, patch domain.BackgroundPatch, isComplete bool) (*domain.BasicProfile, error)
	SaveHealth(ctx context.Context, userID string, patch domain.HealthPatch, isComplete bool) (*domain.HealthRecord, error)
	SaveGenetic(ctx context.Context, userID string, patch domain.GeneticPatch, report *usecase.Upload, isComplete bool) (*domain.GeneticRecord, error)
	SaveCompensation(ctx context.Context, userID string, patch domain.CompensationPatch, isComplete bool) (*domain.CompensationRecord, error)
	SubmitLegal(ctx context.Context, userID string, legal domain.LegalSubmission) (*usecase.Submission, error)
	Current(ctx context.Context, userID string) (*usecase.CurrentProfile, error)
	Basics(ctx context.Context, userID string) (*domain.BasicProfile, error)
	IdentityDocuments(ctx context.Context, userID string) ([]domain.IdentityDocument, error)
	Health(ctx context.Context, userID string) (*domain.HealthRecord, error)
	Genetic(ctx context.Context, userID string) (*domain.GeneticRecord, error)
	Compensation(ctx context.Context, userID string) (*domain.CompensationRecord, error)
	Legal(ctx context.Context, userID string) (*domain.LegalRecord, error)
}

// ProfileHandler serves the onboarding wizard for the signed-in user.
type ProfileHandler struct {
	profiles     ProfileUsecase
	maxBodyBytes int64
}

func NewProfileHandler(profiles ProfileUsecase, maxUploadBytes int64) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, maxBodyBytes: maxUploadBytes + multipartOverhead}
}

// RegisterRoutes mounts the wizard. The group must already require authentication.
func (h *ProfileHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.PUT("/onboarding", h.UpdateOnboarding)
	r.GET("/current", h.Current)

	r.POST("/stage-1/basic", h.SaveBasics)
	r.GET("/stage-1/basic", h.GetBasics)
	r.POST("/stage-1/identity", h.UploadIdentity)
	r.GET("/stage-1/identity", h.GetIdentity)
	r.POST("/stage-1/photos", h.UploadPhotos)
	r.GET("/stage-1/photos", h.GetBasics)
	r.POST("/stage-2/background", h.SaveBackground)
	r.GET("/stage-2/background", h.GetBasics)
	r.POST("/stage-3/health", h.SaveHealth)
	r.GET("/stage-3/health", h.GetHealth)
	r.POST("/stage-4/genetic", h.SaveGenetic)
	r.GET("/stage-4/genetic", h.GetGenetic)
	r.POST("/stage-5/compensation", h.SaveCompensation)
	r.GET("/stage-5/compensation", h.GetCompensation)
	r.POST("/stage-6/complete", h.SubmitLegal)
	r.GET("/stage-6/complete", h.GetLegal)
}

// UpdateOnboarding handles PUT /api/v1/profile/onboarding.
func (h *ProfileHandler) UpdateOnboarding(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req OnboardingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	user, err := h.profiles.UpdateOnboarding(c.Request.Context(), userID, domain.OnboardingDeclaration{
		Gender:        req.Gender,
		Role:          req.Role,
		ServiceType:   req.ServiceType,
		InterestedIn:  req.InterestedIn,
		PairingTypes:  req.PairingTypes,
		TermsAccepted: isTrue(req.TermsAccepted),
	})
	respondStage(c, "onboarding saved", user, err)
}

// SaveBasics handles POST /api/v1/profile/stage-1/basic.
func (h *ProfileHandler) SaveBasics(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var req BasicsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	record, err := h.profiles.SaveBasics(c.Request.Context(), userID, req.BasicsPatch, isTrue(req.IsComplete))
	respondStage(c, "basic information saved", record, err)
}

// UploadIdentity handles POST /api/v1/profile/stage-1/identity.
func (h *ProfileHandler) UploadIdentity(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	h.limitBody(c)

	file, closeFile, err := formUpload(c, "document")
	if err != nil {
		RespondWithDomainError(c, err)
		return
	}
	defer closeFile()

	docType := domain.IdentityDocumentType(c.PostForm("type"))
	doc, err := h.profiles.UploadIdentityDocument(c.Request.Context(), userID, docType, file)
	if err != nil {
		RespondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, StageResponse[*domain.IdentityDocument]{Message: "document uploaded", Data: doc})
}

// UploadPhotos handles POST /api/v1/profile/stage-1/photos.
func (h *ProfileHandler) UploadPhotos(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	h.limitBody(c)

	baby, closeBaby, err := formUpload(c, "babyPhoto")
	if err != nil {
		RespondWithDomainError(c, err)
		return
	}
	defer closeBaby()
	current, closeCurrent, err := formUpload(c, "currentPhoto")
	if err != nil {
		RespondWithDomainError(c, err)
		return
	}
	defer closeCurrent()

	record, err := h.profiles.UploadPhotos(c.Request.Context(), userID, baby, current)
	respondStage(c, "photos uploaded", record, err)
}

// SaveBackground handles POST /api/v1/profile/stage-2/background.
func (h *ProfileHandler) SaveBackground(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var req BackgroundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	record, err := h.profiles.SaveBackground(c.Request.Context(), userID, req.BackgroundPatch, isTrue(req.IsComplete))
	respondStage(c, "background saved", record, err)
}

// SaveHealth handles POST /api/v1/profile/stage-3/health.
func (h *ProfileHandler) SaveHealth(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var req HealthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	record, err := h.profiles.SaveHealth(c.Request.Context(), userID, req.HealthPatch, isTrue(req.IsComplete))
	respondStage(c, "health history saved", record, err)
}

// SaveGenetic handles POST /api/v1/profile/stage-4/genetic.
// Accepts JSON, or multipart with an optional report file and conditions as a JSON-encoded array.
func (h *ProfileHandler) SaveGenetic(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var (
		req    GeneticRequest
		report *usecase.Upload
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		h.limitBody(c)
		upload, closeReport, err := formUpload(c, "report")
		if err != nil {
			RespondWithDomainError(c, err)
			return
		}
		defer closeReport()
		report = upload

		if err := geneticFromForm(c, &req); err != nil {
			RespondWithDomainError(c, err)
			return
		}
	} else {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		// Report URLs are only ever written by the upload path; clients may clear them.
		if req.ReportFileURL.Present() {
			req.ReportFileURL = domain.Field[string]{}
		}
	}

	record, err := h.profiles.SaveGenetic(c.Request.Context(), userID, req.GeneticPatch, report, isTrue(req.IsComplete))
	respondStage(c, "genetic screening saved", record, err)
}

func geneticFromForm(c *gin.Context, req *GeneticRequest) error {
	if values, ok := c.GetPostFormArray("conditions"); ok {
		var conditions domain.StringList
		if len(values) == 1 {
			conditions = domain.ParseStringList(values[0])
		} else {
			conditions = values
		}
		req.CarrierConditions = domain.Some(conditions)
	}
	if raw, ok := c.GetPostForm("isComplete"); ok {
		complete, err := strconv.ParseBool(raw)
		if err != nil {
			return domain.NewValidationError("invalid_value", "isComplete must be a boolean", "isComplete")
		}
		req.IsComplete = domain.Some(complete)
	}
	return nil
}

// SaveCompensation handles POST /api/v1/profile/stage-5/compensation.
func (h *ProfileHandler) SaveCompensation(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var req CompensationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	record, err := h.profiles.SaveCompensation(c.Request.Context(), userID, req.CompensationPatch, isTrue(req.IsComplete))
	respondStage(c, "compensation saved", record, err)
}

// SubmitLegal handles POST /api/v1/profile/stage-6/complete.
func (h *ProfileHandler) SubmitLegal(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var req LegalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	submission, err := h.profiles.SubmitLegal(c.Request.Context(), userID, domain.LegalSubmission{
		ConsentAgreed:       isTrue(req.ConsentAgreed),
		AnonymityPreference: req.AnonymityPreference.Value,
	})
	respondStage(c, "profile submitted for review", submission, err)
}

// Current handles GET /api/v1/profile/current.
func (h *ProfileHandler) Current(c *gin.Context) {
	respondRead(c, h.profiles.Current)
}

func (h *ProfileHandler) GetBasics(c *gin.Context)       { respondRead(c, h.profiles.Basics) }
func (h *ProfileHandler) GetIdentity(c *gin.Context)     { respondRead(c, h.profiles.IdentityDocuments) }
func (h *ProfileHandler) GetHealth(c *gin.Context)       { respondRead(c, h.profiles.Health) }
func (h *ProfileHandler) GetGenetic(c *gin.Context)      { respondRead(c, h.profiles.Genetic) }
func (h *ProfileHandler) GetCompensation(c *gin.Context) { respondRead(c, h.profiles.Compensation) }
func (h *ProfileHandler) GetLegal(c *gin.Context)        { respondRead(c, h.profiles.Legal) }

func (h *ProfileHandler) limitBody(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
}

// respondRead answers with the record as-is; a record that does not exist yet is null.
func respondRead[T any](c *gin.Context, load func(context.Context, string) (T, error)) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	record, err := load(c.Request.Context(), userID)
	if err != nil {
		RespondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": record})
}

func respondStage[T any](c *gin.Context, message string, record T, err error) {
	if err != nil {
		RespondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, StageResponse[T]{Message: message, Data: record})
}

func requireUserID(c *gin.Context) (string, bool) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
	}
	return userID, ok
}

// pathID reads a UUID path parameter. Anything that cannot be an id is reported as missingErr.
func pathID(c *gin.Context, name string, missingErr error) (string, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		RespondWithDomainError(c, missingErr)
		return "", false
	}
	return id.String(), true
}

// formUpload opens the named file part. A missing part yields a nil upload.
func formUpload(c *gin.Context, field string) (*usecase.Upload, func(), error) {
	noop := func() {}

	header, err := c.FormFile(field)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return nil, noop, domain.ErrFileTooLarge.WithFields(field)
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			return nil, noop, nil
		default:
			return nil, noop, domain.NewValidationError("invalid_multipart", "malformed multipart body", field)
		}
	}

	file, err := header.Open()
	if err != nil {
		return nil, noop, err
	}
	return &usecase.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}, func() { _ = file.Close() }, nil
}
