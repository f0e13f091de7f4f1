package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures so transports can map them without inspecting messages.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindAuthentication ErrorKind = "authentication"
	KindAuthorization  ErrorKind = "authorization"
	KindNotFound       ErrorKind = "not_found"
	KindConflict       ErrorKind = "conflict"
	KindUnexpected     ErrorKind = "unexpected"
)

// Error is the typed failure returned by every core operation.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	// Fields lists every offending input field for validation failures.
	Fields []string
	// Permission is the slug that was required when Kind is authorization.
	Permission string
	cause      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Fields) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(e.Fields, ", "))
	}
	if e.Permission != "" {
		fmt.Fprintf(&b, " (requires %s)", e.Permission)
	}
	if e.cause != nil {
		fmt.Fprintf(&b, ": %v", e.cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches on kind and code so sentinel values work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// WithFields returns a copy of e carrying the given field list.
func (e *Error) WithFields(fields ...string) *Error {
	cp := *e
	cp.Fields = append([]string(nil), fields...)
	return &cp
}

// Wrap returns a copy of e with cause attached.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.cause = cause
	return &cp
}

// NewValidationError builds a validation failure listing every missing or invalid field.
func NewValidationError(code, message string, fields ...string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message, Fields: fields}
}

// NewForbiddenError builds an authorization failure naming the required slug.
func NewForbiddenError(slug string) *Error {
	return &Error{
		Kind:       KindAuthorization,
		Code:       "forbidden",
		Message:    "insufficient permissions",
		Permission: slug,
	}
}

// NewUnexpectedError hides err behind a generic message; the cause stays available for logging.
func NewUnexpectedError(err error) *Error {
	return &Error{Kind: KindUnexpected, Code: "unexpected", Message: "internal error", cause: err}
}

// KindOf reports the kind of err, treating anything untyped as unexpected.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnexpected
}

var (
	ErrInvalidEmail = &Error{Kind: KindValidation, Code: "invalid_email", Message: "email is required", Fields: []string{"email"}}

	ErrOTPUserNotFound     = &Error{Kind: KindAuthentication, Code: "otp_user_not_found", Message: "user not found"}
	ErrOTPNoChallenge      = &Error{Kind: KindAuthentication, Code: "otp_no_challenge", Message: "no code has been issued"}
	ErrOTPExpired          = &Error{Kind: KindAuthentication, Code: "otp_expired", Message: "code has expired"}
	ErrOTPAlreadyConsumed  = &Error{Kind: KindAuthentication, Code: "otp_already_consumed", Message: "code has already been used"}
	ErrOTPMismatch         = &Error{Kind: KindAuthentication, Code: "otp_mismatch", Message: "invalid code"}
	ErrInvalidSessionToken = &Error{Kind: KindAuthentication, Code: "invalid_session", Message: "invalid session token"}
	ErrExpiredSessionToken = &Error{Kind: KindAuthentication, Code: "expired_session", Message: "session token expired"}

	ErrUserNotFound       = &Error{Kind: KindNotFound, Code: "user_not_found", Message: "user not found"}
	ErrRoleNotFound       = &Error{Kind: KindNotFound, Code: "role_not_found", Message: "role not found"}
	ErrSettingNotFound    = &Error{Kind: KindNotFound, Code: "setting_not_found", Message: "setting not found"}
	ErrDocumentNotFound   = &Error{Kind: KindNotFound, Code: "document_not_found", Message: "document not found"}
	ErrRoleNameTaken      = &Error{Kind: KindConflict, Code: "role_exists", Message: "role already exists"}
	ErrSystemRole         = &Error{Kind: KindConflict, Code: "system_role", Message: "system roles cannot be deleted"}
	ErrProtectedSetting   = &Error{Kind: KindConflict, Code: "protected_setting", Message: "setting is protected and cannot be deleted"}
	ErrInvalidTransition  = &Error{Kind: KindConflict, Code: "invalid_transition", Message: "profile is not awaiting review"}
	ErrInvalidReviewState = &Error{Kind: KindValidation, Code: "invalid_status", Message: "status must be ACTIVE or REJECTED", Fields: []string{"status"}}
	ErrRejectionReason    = &Error{Kind: KindValidation, Code: "rejection_reason_required", Message: "a reason is required when rejecting a profile", Fields: []string{"reason"}}
	ErrIncompleteStage    = &Error{Kind: KindValidation, Code: "stage_incomplete", Message: "required fields are missing"}
	ErrInvalidStep        = &Error{Kind: KindValidation, Code: "invalid_step", Message: "onboarding step out of range", Fields: []string{"step"}}
	ErrConsentRequired    = &Error{Kind: KindValidation, Code: "consent_required", Message: "consent must be given to submit the profile", Fields: []string{"consentAgreed"}}
	ErrTermsRequired      = &Error{Kind: KindValidation, Code: "terms_required", Message: "terms must be accepted", Fields: []string{"termsAccepted"}}
	ErrUnknownPermissions = &Error{Kind: KindValidation, Code: "unknown_permissions", Message: "unknown permission slugs"}
	ErrUnsupportedFile    = &Error{Kind: KindValidation, Code: "unsupported_file", Message: "only jpeg, png, webp and pdf files are accepted"}
	ErrFileTooLarge       = &Error{Kind: KindValidation, Code: "file_too_large", Message: "file exceeds the upload size limit"}
	ErrFileRequired       = &Error{Kind: KindValidation, Code: "file_required", Message: "a file is required"}
)
