// Package responses renders the success envelope shared by every API handler.
// Failures are rendered as RFC 7807 documents by common/errors.
package responses

import (
	"net/http"
	"time"

	commonerrors "github.com/Aidin1998/teammatch/common/errors"
	"github.com/gin-gonic/gin"
)

// StandardResponse represents a standard API response format
type StandardResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	StandardResponse
	Pagination *PaginationMeta `json:"pagination,omitempty"`
}

// PaginationMeta describes the page that was returned. Listings are not counted,
// so HasNext is a hint derived from a full page.
type PaginationMeta struct {
	Page    int  `json:"page"`
	Size    int  `json:"size"`
	Count   int  `json:"count"`
	HasNext bool `json:"has_next"`
	HasPrev bool `json:"has_prev"`
}

func write(c *gin.Context, status int, data interface{}, msg string) {
	c.JSON(status, StandardResponse{
		Success:   true,
		Data:      data,
		Message:   msg,
		Timestamp: time.Now().UTC(),
		TraceID:   getTraceID(c),
	})
}

func pick(fallback string, message []string) string {
	if len(message) > 0 && message[0] != "" {
		return message[0]
	}
	return fallback
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}, message ...string) {
	write(c, http.StatusOK, data, pick("Operation successful", message))
}

// Created sends a 201 Created response
func Created(c *gin.Context, data interface{}, message ...string) {
	write(c, http.StatusCreated, data, pick("Resource created successfully", message))
}

// Accepted sends a 202 Accepted response
func Accepted(c *gin.Context, data interface{}, message ...string) {
	write(c, http.StatusAccepted, data, pick("Request accepted for processing", message))
}

// NoContent sends a 204 No Content response
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Paginated sends a page of results
func Paginated(c *gin.Context, data interface{}, pagination *PaginationMeta, message ...string) {
	c.JSON(http.StatusOK, PaginatedResponse{
		StandardResponse: StandardResponse{
			Success:   true,
			Data:      data,
			Message:   pick("Data retrieved successfully", message),
			Timestamp: time.Now().UTC(),
			TraceID:   getTraceID(c),
		},
		Pagination: pagination,
	})
}

// Error renders err as a problem document
func Error(c *gin.Context, err error) {
	commonerrors.HandleError(c, err)
}

// getTraceID extracts trace ID from context
func getTraceID(c *gin.Context) string {
	if traceID, exists := c.Get("trace_id"); exists {
		if id, ok := traceID.(string); ok {
			return id
		}
	}
	return c.GetHeader("X-Trace-ID")
}

// CreatePaginationMeta creates pagination metadata for a zero-based page
func CreatePaginationMeta(page, size, count int) *PaginationMeta {
	return &PaginationMeta{
		Page:    page,
		Size:    size,
		Count:   count,
		HasNext: size > 0 && count == size,
		HasPrev: page > 0,
	}
}
