package errors

import (
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/Aidin1998/teammatch/pkg/errors"
)

// ProblemDetails represents RFC 7807 compliant error response
// RFC 7807: Problem Details for HTTP APIs
type ProblemDetails struct {
	// Type is a URI reference that identifies the problem type
	Type string `json:"type"`
	// Title is a short, human-readable summary of the problem type
	Title string `json:"title"`
	// Status is the HTTP status code
	Status int `json:"status"`
	// Detail is a human-readable explanation specific to this occurrence of the problem
	Detail string `json:"detail"`
	// Instance is a URI reference that identifies the specific occurrence of the problem
	Instance string `json:"instance,omitempty"`
	// Timestamp when the error occurred
	Timestamp time.Time `json:"timestamp"`
	// TraceID for request tracing and debugging
	TraceID string `json:"traceId,omitempty"`
	// Errors contains field-specific validation errors
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents field-specific validation errors
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Standard error types with URIs
const (
	TypeValidationError  = "https://api.teammatch.io/errors/validation-error"
	TypeUnauthorized     = "https://api.teammatch.io/errors/unauthorized"
	TypeForbidden        = "https://api.teammatch.io/errors/forbidden"
	TypeNotFound         = "https://api.teammatch.io/errors/not-found"
	TypeInvalidState     = "https://api.teammatch.io/errors/invalid-state"
	TypeDuplicate        = "https://api.teammatch.io/errors/duplicate"
	TypeStoreUnavailable = "https://api.teammatch.io/errors/store-unavailable"
	TypeInternalError    = "https://api.teammatch.io/errors/internal-error"
)

// Standard error titles
const (
	TitleValidationError  = "Validation Error"
	TitleUnauthorized     = "Unauthorized"
	TitleForbidden        = "Forbidden"
	TitleNotFound         = "Not Found"
	TitleInvalidState     = "Invalid Match State"
	TitleDuplicate        = "Duplicate"
	TitleStoreUnavailable = "Store Unavailable"
	TitleInternalError    = "Internal Server Error"
)

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(problemType, title string, status int, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:      problemType,
		Title:     title,
		Status:    status,
		Detail:    detail,
		Instance:  instance,
		Timestamp: time.Now().UTC(),
	}
}

// WithTraceID adds a trace ID to the problem details
func (p *ProblemDetails) WithTraceID(traceID string) *ProblemDetails {
	p.TraceID = traceID
	return p
}

// AddValidationError adds a single validation error
func (p *ProblemDetails) AddValidationError(field, message, code string) *ProblemDetails {
	p.Errors = append(p.Errors, ValidationError{
		Field:   field,
		Message: message,
		Code:    code,
	})
	return p
}

// Error implements the error interface
func (p *ProblemDetails) Error() string {
	return fmt.Sprintf("[%d] %s: %s", p.Status, p.Title, p.Detail)
}

// NewValidationError creates a validation error
func NewValidationError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeValidationError, TitleValidationError, http.StatusBadRequest, detail, instance)
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeUnauthorized, TitleUnauthorized, http.StatusUnauthorized, detail, instance)
}

// NewInternalError creates an internal server error
func NewInternalError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeInternalError, TitleInternalError, http.StatusInternalServerError, detail, instance)
}

// FromError converts a classified domain error to RFC 7807 ProblemDetails
func FromError(e *apperrors.Error, instance string) *ProblemDetails {
	var problemType, title string
	var status int

	switch e.Kind {
	case apperrors.KindValidation:
		problemType, title, status = TypeValidationError, TitleValidationError, http.StatusBadRequest
	case apperrors.KindForbidden:
		problemType, title, status = TypeForbidden, TitleForbidden, http.StatusForbidden
	case apperrors.KindNotFound:
		problemType, title, status = TypeNotFound, TitleNotFound, http.StatusNotFound
	case apperrors.KindInvalidState:
		problemType, title, status = TypeInvalidState, TitleInvalidState, http.StatusConflict
	case apperrors.KindDuplicate:
		problemType, title, status = TypeDuplicate, TitleDuplicate, http.StatusConflict
	case apperrors.KindStoreUnavailable:
		problemType, title, status = TypeStoreUnavailable, TitleStoreUnavailable, http.StatusServiceUnavailable
	default:
		problemType, title, status = TypeInternalError, TitleInternalError, http.StatusInternalServerError
	}

	pd := NewProblemDetails(problemType, title, status, e.Message, instance)
	for _, field := range e.Fields {
		pd.AddValidationError(field.Field, field.Message, string(e.Kind))
	}
	return pd
}
