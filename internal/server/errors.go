package server

import (
	"errors"
	"net/http"
	"strings"

	identitydomain "github.com/PresidentofMexico/openai-usage-metrics/internal/identity/domain"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/ingest/format"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/ingest/normalize"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/ingest/period"
	usagedomain "github.com/PresidentofMexico/openai-usage-metrics/internal/usage/domain"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrInternal       = errors.New("internal_error")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, format.ErrUnrecognizedFormat):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "unrecognized_format",
			Message: "no known export layout matched this file",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, format.ErrEmptyFile),
		errors.Is(err, normalize.ErrUnsupportedLayout),
		errors.Is(err, period.ErrUnparseablePeriod),
		errors.Is(err, usagedomain.ErrEmptyBatch),
		errors.Is(err, usagedomain.ErrInvalidToolSource),
		errors.Is(err, usagedomain.ErrInvalidUserKey),
		errors.Is(err, usagedomain.ErrInvalidFeature),
		errors.Is(err, usagedomain.ErrNegativeUsage),
		errors.Is(err, usagedomain.ErrMixedToolSource),
		errors.Is(err, identitydomain.ErrEmptyRoster),
		errors.Is(err, identitydomain.ErrInvalidRoster),
		errors.Is(err, identitydomain.ErrDuplicateEmail):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, identitydomain.ErrDuplicateEmail):
		return "duplicate_email"
	case errors.Is(err, normalize.ErrUnsupportedLayout):
		return "unsupported_layout"
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "empty_batch":
		return "no records to ingest"
	case "empty_file":
		return "file has no rows"
	case "empty_roster":
		return "roster has no entries"
	case "duplicate_email":
		return "roster lists the same email more than once"
	default:
		return "invalid value"
	}
}

// classifyErrorForLog buckets errors for the request log.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	switch {
	case asValidationErrors(err) != nil, isValidationError(err):
		return "validation_error", validationErrorCode(err)
	case errors.Is(err, format.ErrUnrecognizedFormat):
		return "unrecognized_format", "unrecognized_format"
	case isNotFoundError(err):
		return "not_found", "not_found"
	default:
		return "internal_error", "internal_error"
	}
}
