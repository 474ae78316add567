package errors

import (
	"errors"
	"net/http"
)

// Error codes returned to API clients
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeAuthRequired     = "AUTH_REQUIRED"
	CodeInvalidToken     = "INVALID_TOKEN"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeQuotaExceeded    = "QUOTA_EXCEEDED"
	CodeRateLimited      = "RATE_LIMIT_EXCEEDED"
	CodeUpstreamFailed   = "UPSTREAM_FAILED"
	CodeUpstreamTimeout  = "UPSTREAM_TIMEOUT"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
	CodeInternal         = "INTERNAL_ERROR"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeServerError      = "SERVER_ERROR"

	CodeMessageNotFound    = "MESSAGE_NOT_FOUND"
	CodePersistFailed      = "PERSIST_FAILED"
	CodeGatewayTimeout     = "GATEWAY_TIMEOUT"
	CodeGatewayUnreachable = "GATEWAY_UNREACHABLE"
	CodeGatewayFailed      = "GATEWAY_FAILED"
	CodeNoOperations       = "NO_EXECUTABLE_OPERATIONS"
)

// BadRequestWithDetails creates a 400 Bad Request error with details
func BadRequestWithDetails(code string, message string, details any) *AppError {
	return NewBadRequestError(code, message).WithDetails(details)
}

// FromError converts a standard error to an AppError. An AppError anywhere
// in the chain is returned as-is; anything else becomes an internal error
// whose message does not leak the cause.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return &AppError{
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternal,
		Message:    "An unexpected error occurred",
	}
}

// GetStatusCode extracts the HTTP status code from an AppError, returns 500 if not an AppError
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
