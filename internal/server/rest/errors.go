package rest

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/vaultbox/internal/common"
	"github.com/gin-gonic/gin"
)

// APIError is the error body sent to clients, wrapped as {"error": {...}}.
type APIError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewBadRequestError(message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Message: message}
}

func NewUnauthorizedError(message string) *APIError {
	return &APIError{Status: http.StatusUnauthorized, Message: message}
}

func NewForbiddenError(message string) *APIError {
	return &APIError{Status: http.StatusForbidden, Message: message}
}

func NewNotFoundError(message string) *APIError {
	return &APIError{Status: http.StatusNotFound, Message: message}
}

func NewConflictError(message string) *APIError {
	return &APIError{Status: http.StatusConflict, Message: message}
}

func NewTooLargeError(message string) *APIError {
	return &APIError{Status: http.StatusRequestEntityTooLarge, Message: message}
}

// NewInternalServerError carries a fixed message so internals never leak.
func NewInternalServerError(message string) *APIError {
	return &APIError{Status: http.StatusInternalServerError, Message: message}
}

// FromServiceError translates service and store errors into an APIError.
// fallback is the message used for 500s.
func FromServiceError(err error, fallback string) *APIError {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, common.ErrValidation):
		return NewBadRequestError(validationMessage(err))
	case errors.Is(err, common.ErrTooManyFiles):
		return NewBadRequestError("Too many files in one upload")
	case errors.Is(err, common.ErrFileTooLarge):
		return NewTooLargeError("File too large")
	case errors.Is(err, common.ErrAuthRequired):
		return NewUnauthorizedError("Access token required")
	case errors.Is(err, common.ErrTokenExpired):
		return NewForbiddenError("Token expired")
	case errors.Is(err, common.ErrTokenFileMismatch):
		return NewForbiddenError("Token not valid for this file")
	case errors.Is(err, common.ErrInvalidToken):
		return NewForbiddenError("Invalid token")
	case errors.Is(err, common.ErrNotFound):
		return NewNotFoundError("File not found")
	case errors.Is(err, common.ErrConflict):
		return NewConflictError("Conflict with the current state of the file")
	default:
		return NewInternalServerError(fallback)
	}
}

// validationMessage strips the sentinel prefix, so "validation error: fileIds
// is required" is reported as "fileIds is required".
func validationMessage(err error) string {
	return strings.TrimPrefix(err.Error(), common.ErrValidation.Error()+": ")
}

// abortWithError writes the error body and stops the handler chain.
func abortWithError(c *gin.Context, apiErr *APIError) {
	c.AbortWithStatusJSON(apiErr.Status, gin.H{"error": apiErr})
}
