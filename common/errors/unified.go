package errors

import (
	"errors"

	apperrors "github.com/Aidin1998/teammatch/pkg/errors"
	"github.com/gin-gonic/gin"
)

// UnifiedErrorHandler renders every handler error as an RFC 7807 document
type UnifiedErrorHandler struct{}

// NewUnifiedErrorHandler creates a new unified error handler
func NewUnifiedErrorHandler() *UnifiedErrorHandler {
	return &UnifiedErrorHandler{}
}

// HandleError processes any error type and converts it to RFC 7807 format
func (h *UnifiedErrorHandler) HandleError(c *gin.Context, err error) {
	instance := c.Request.URL.Path
	var problemDetails *ProblemDetails

	var pd *ProblemDetails
	var appErr *apperrors.Error
	switch {
	case errors.As(err, &pd):
		problemDetails = pd
	case errors.As(err, &appErr):
		problemDetails = FromError(appErr, instance)
	default:
		// Unclassified errors never leak their message
		problemDetails = NewInternalError("internal server error", instance)
	}

	h.writeResponse(c, problemDetails)
}

// Middleware renders the last error attached to the context via c.Error
func (h *UnifiedErrorHandler) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			h.HandleError(c, c.Errors.Last().Err)
			c.Abort()
		}
	}
}

// BadRequest creates a validation error response
func (h *UnifiedErrorHandler) BadRequest(c *gin.Context, detail string, fieldErrors ...ValidationError) {
	problemDetails := NewValidationError(detail, c.Request.URL.Path)
	problemDetails.Errors = fieldErrors
	h.writeResponse(c, problemDetails)
}

// Unauthorized creates an unauthorized error response
func (h *UnifiedErrorHandler) Unauthorized(c *gin.Context, detail string) {
	h.writeResponse(c, NewUnauthorizedError(detail, c.Request.URL.Path))
}

func (h *UnifiedErrorHandler) getTraceID(c *gin.Context) string {
	if traceID, exists := c.Get("trace_id"); exists {
		if id, ok := traceID.(string); ok {
			return id
		}
	}
	return c.GetHeader("X-Trace-ID")
}

func (h *UnifiedErrorHandler) writeResponse(c *gin.Context, problemDetails *ProblemDetails) {
	if traceID := h.getTraceID(c); traceID != "" {
		problemDetails.WithTraceID(traceID)
	}

	c.Header("Content-Type", "application/problem+json")
	c.AbortWithStatusJSON(problemDetails.Status, problemDetails)
}

// Global unified error handler instance
var DefaultHandler = NewUnifiedErrorHandler()

// HandleError processes any error using the default handler
func HandleError(c *gin.Context, err error) {
	DefaultHandler.HandleError(c, err)
}

// UnifiedErrorMiddleware creates a middleware using the default handler
func UnifiedErrorMiddleware() gin.HandlerFunc {
	return DefaultHandler.Middleware()
}

func BadRequest(c *gin.Context, detail string, fieldErrors ...ValidationError) {
	DefaultHandler.BadRequest(c, detail, fieldErrors...)
}

func Unauthorized(c *gin.Context, detail string) {
	DefaultHandler.Unauthorized(c, detail)
}
