package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/213020aumc/matcha/internal/core/domain"
	"github.com/213020aumc/matcha/internal/usecase"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error      string   `json:"error"`
	Code       string   `json:"code,omitempty"`
	Fields     []string `json:"fields,omitempty"`
	Permission string   `json:"permission,omitempty"`
	TraceID    string   `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: c.GetString("trace_id"),
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// LoginRequest starts an OTP sign-in.
type LoginRequest struct {
	Email string `json:"email" binding:"required"`
}

// VerifyOTPRequest completes an OTP sign-in.
type VerifyOTPRequest struct {
	Email string `json:"email" binding:"required"`
	OTP   string `json:"otp" binding:"required,len=6,numeric"`
}

// SessionResponse is returned after a successful OTP verification.
type SessionResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expiresAt"`
	User      domain.User      `json:"user"`
	Redirect  usecase.Redirect `json:"redirect"`
}

// MeResponse describes the signed-in user.
type MeResponse struct {
	User        domain.User      `json:"user"`
	Permissions []string         `json:"permissions"`
	Redirect    usecase.Redirect `json:"redirect"`
}

// OnboardingRequest is the step 0 declaration.
type OnboardingRequest struct {
	Gender        domain.Gender      `json:"gender"`
	Role          domain.MemberRole  `json:"role"`
	ServiceType   domain.ServiceType `json:"serviceType"`
	InterestedIn  domain.GameteType  `json:"interestedIn"`
	PairingTypes  domain.StringList  `json:"pairingTypes"`
	TermsAccepted domain.Field[bool] `json:"termsAccepted"`
}

// Stage payloads embed the domain patch so unknown keys are ignored and known ones keep tri-state semantics.

type BasicsRequest struct {
	domain.BasicsPatch
	IsComplete domain.Field[bool] `json:"isComplete"`
}

type BackgroundRequest struct {
	domain.BackgroundPatch
	IsComplete domain.Field[bool] `json:"isComplete"`
}

type HealthRequest struct {
	domain.HealthPatch
	IsComplete domain.Field[bool] `json:"isComplete"`
}

type GeneticRequest struct {
	domain.GeneticPatch
	IsComplete domain.Field[bool] `json:"isComplete"`
}

type CompensationRequest struct {
	domain.CompensationPatch
	IsComplete domain.Field[bool] `json:"isComplete"`
}

// LegalRequest is the final stage payload.
type LegalRequest struct {
	ConsentAgreed       domain.Field[bool]   `json:"consentAgreed"`
	AnonymityPreference domain.Field[string] `json:"anonymityPreference"`
}

// StageResponse wraps the record saved by a stage.
type StageResponse[T any] struct {
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// ReviewRequest records a moderator decision.
type ReviewRequest struct {
	Status domain.ProfileStatus `json:"status" binding:"required"`
	Reason string               `json:"reason"`
}

// ReviewResponse reports the outcome of a moderator decision.
type ReviewResponse struct {
	Message       string               `json:"message"`
	ID            string               `json:"id"`
	ProfileStatus domain.ProfileStatus `json:"profileStatus"`
}

// PendingProfilesResponse is the review queue.
type PendingProfilesResponse struct {
	Results  int                       `json:"results"`
	Profiles []domain.ProfileAggregate `json:"data"`
}

// RoleCreateRequest defines a custom role.
type RoleCreateRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// RoleAssignRequest grants a role to a user by role name.
type RoleAssignRequest struct {
	UserID   string `json:"userId" binding:"required,uuid"`
	RoleName string `json:"roleName" binding:"required"`
}

// RolesResponse lists roles with their permissions.
type RolesResponse struct {
	Roles []domain.Role `json:"roles"`
}

// PermissionsResponse lists the permission catalog.
type PermissionsResponse struct {
	Permissions []domain.Permission `json:"permissions"`
}

// SettingsUpdateRequest upserts several settings atomically.
type SettingsUpdateRequest struct {
	Settings map[string]string `json:"settings" binding:"required"`
}

// SettingsResponse lists stored settings.
type SettingsResponse struct {
	Settings []domain.Setting `json:"settings"`
}

// HealthResponse is returned by the liveness probe.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse is returned by the readiness probe.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func isTrue(f domain.Field[bool]) bool {
	return f.Value != nil && *f.Value
}
