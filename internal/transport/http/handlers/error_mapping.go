package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/213020aumc/matcha/internal/core/domain"
	"github.com/213020aumc/matcha/internal/infra/logger"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// RespondWithMappedError resolves err against the given cases first and falls back to its domain kind.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase) {
	for _, cs := range cases {
		if cs.Err != nil && errors.Is(err, cs.Err) {
			c.JSON(cs.Status, NewErrorResponse(c, cs.Message))
			return
		}
	}
	RespondWithDomainError(c, err)
}

// RespondWithDomainError writes the status matching the error kind. Unexpected failures are logged
// and answered with a generic message.
func RespondWithDomainError(c *gin.Context, err error) {
	var de *domain.Error
	if errors.As(err, &de) && de.Kind != domain.KindUnexpected {
		resp := NewErrorResponse(c, de.Message)
		resp.Code = de.Code
		resp.Fields = de.Fields
		resp.Permission = de.Permission
		c.JSON(statusForKind(de.Kind), resp)
		return
	}

	_ = c.Error(err)
	logger.WithContext(c.Request.Context()).Error("Request failed",
		zap.String("route", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "internal server error"))
}

func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuthentication:
		return http.StatusUnauthorized
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondBindError reports every offending field of a rejected payload in one response.
func respondBindError(c *gin.Context, err error) {
	var (
		verrs   validator.ValidationErrors
		typeErr *json.UnmarshalTypeError
		syntax  *json.SyntaxError
	)

	switch {
	case errors.As(err, &verrs):
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
		RespondWithDomainError(c, domain.NewValidationError("invalid_payload", "request payload failed validation", fields...))
	case errors.As(err, &typeErr):
		var fields []string
		if typeErr.Field != "" {
			fields = append(fields, typeErr.Field)
		}
		RespondWithDomainError(c, domain.NewValidationError("invalid_value", "field has the wrong type", fields...))
	case errors.As(err, &syntax):
		RespondWithDomainError(c, domain.NewValidationError("malformed_json", "request body is not valid JSON"))
	default:
		RespondWithDomainError(c, domain.NewValidationError("invalid_payload", "malformed request payload"))
	}
}

var registerTagNames sync.Once

// UseJSONFieldNames makes validation failures report fields by their JSON names.
func UseJSONFieldNames() {
	registerTagNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return field.Name
			}
			return name
		})
	})
}
