// Package errors classifies failures of the analytics service so that callers
// can tell a bad request from a missing record or a degraded upstream.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/token-analytics/internal/types"
)

// ErrNotFound marks lookups of identifiers that were never analyzed or stored
var ErrNotFound = stderrors.New("not found")

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	CategoryUserInput  ErrorCategory = "user_input"
	CategoryValidation ErrorCategory = "validation"
	CategoryNotFound   ErrorCategory = "not_found"
	// CategoryProvider covers market data reads (RPC, fallback)
	CategoryProvider ErrorCategory = "provider"
	// CategoryCache covers the analysis and signal stores
	CategoryCache  ErrorCategory = "cache"
	CategorySystem ErrorCategory = "system"
)

// CategorizedError carries a category, an HTTP status and a stable code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

func newError(cat ErrorCategory, status int, code, message string, details map[string]interface{}, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   cat,
		StatusCode: status,
		Code:       code,
		Message:    message,
		Details:    details,
		Cause:      cause,
	}
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to the API error body
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewInvalidAddressError reports a token address that is not 20 bytes of hex
func NewInvalidAddressError(address string) *CategorizedError {
	return newError(CategoryUserInput, http.StatusBadRequest, "INVALID_ADDRESS",
		fmt.Sprintf("invalid token address: %s", address),
		map[string]interface{}{"address": address}, nil)
}

// NewInvalidParameterError reports a query or body parameter out of range
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return newError(CategoryValidation, http.StatusBadRequest, "INVALID_PARAMETER",
		fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		map[string]interface{}{"parameter": param, "reason": reason}, nil)
}

// NewNotFoundError reports a missing token, analysis, signal or job.
// It wraps ErrNotFound.
func NewNotFoundError(resource string, id string) *CategorizedError {
	return newError(CategoryNotFound, http.StatusNotFound, "NOT_FOUND",
		fmt.Sprintf("%s not found: %s", resource, id),
		map[string]interface{}{"resource": resource, "id": id}, ErrNotFound)
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return newError(CategorySystem, http.StatusInternalServerError, "INTERNAL_ERROR", message, nil, cause)
}

// NewCacheError reports a failed read or write of a store
func NewCacheError(operation string, cause error) *CategorizedError {
	return newError(CategoryCache, http.StatusServiceUnavailable, "CACHE_ERROR",
		fmt.Sprintf("store operation failed: %s", operation),
		map[string]interface{}{"operation": operation}, cause)
}

// NewServiceUnavailableError reports a dependency that is not configured or down
func NewServiceUnavailableError(service string) *CategorizedError {
	return newError(CategorySystem, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE",
		fmt.Sprintf("service unavailable: %s", service),
		map[string]interface{}{"service": service}, nil)
}

// NewProviderError reports a failed market data read
func NewProviderError(provider string, cause error) *CategorizedError {
	return newError(CategoryProvider, http.StatusBadGateway, "PROVIDER_ERROR",
		fmt.Sprintf("market data provider error: %s", provider),
		map[string]interface{}{"provider": provider}, cause)
}

// NewProviderTimeoutError reports a market data read that hit its deadline
func NewProviderTimeoutError(provider string) *CategorizedError {
	return newError(CategoryProvider, http.StatusGatewayTimeout, "PROVIDER_TIMEOUT",
		fmt.Sprintf("market data provider timeout: %s", provider),
		map[string]interface{}{"provider": provider}, context.DeadlineExceeded)
}

// Categorize maps any error onto a CategorizedError. Unknown errors become
// INTERNAL_ERROR.
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	switch {
	case stderrors.Is(err, ErrNotFound):
		return newError(CategoryNotFound, http.StatusNotFound, "NOT_FOUND", err.Error(), nil, err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return newError(CategoryProvider, http.StatusGatewayTimeout, "TIMEOUT", "operation timed out", nil, err)
	}

	var svcErr *types.ServiceError
	if stderrors.As(err, &svcErr) {
		return newError(CategorySystem, http.StatusInternalServerError, svcErr.Code, svcErr.Message, svcErr.Details, nil)
	}

	return NewInternalError("unexpected error", err)
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsNotFound reports whether err denotes a missing resource
func IsNotFound(err error) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Category == CategoryNotFound
}

// IsRetryable reports whether repeating the operation may succeed
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryProvider, CategoryCache:
		return true
	case CategorySystem:
		return catErr.StatusCode == http.StatusServiceUnavailable ||
			catErr.StatusCode == http.StatusGatewayTimeout
	default:
		return false
	}
}
