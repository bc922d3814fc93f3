package errors

import (
	"fmt"
)

// ErrorCode represents a specific error type for gateway operations.
type ErrorCode string

const (
	// ErrCodeProviderFailed indicates the generation provider call failed.
	ErrCodeProviderFailed ErrorCode = "PROVIDER_FAILED"
	// ErrCodeStoreUnavailable indicates the session store is unavailable or a write failed.
	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	// ErrCodeRetrievalFailed indicates a document index query failed.
	ErrCodeRetrievalFailed ErrorCode = "RETRIEVAL_FAILED"
	// ErrCodeRateLimitExceeded indicates a client exceeded its request quota.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrCodeMalformedHistory indicates a stored history record could not be decoded.
	ErrCodeMalformedHistory ErrorCode = "MALFORMED_HISTORY"
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
)

// GatewayError represents a structured error for gateway operations.
type GatewayError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// GetCode returns the error code.
func (e *GatewayError) GetCode() ErrorCode {
	return e.Code
}

// Convenience constructors for common error types.

// ProviderFailed creates a generation-provider failure error.
func ProviderFailed(msg string, cause error) *GatewayError {
	return &GatewayError{Code: ErrCodeProviderFailed, Message: msg, Cause: cause}
}

// StoreUnavailable creates a session-store failure error.
func StoreUnavailable(msg string, cause error) *GatewayError {
	return &GatewayError{Code: ErrCodeStoreUnavailable, Message: msg, Cause: cause}
}

// RetrievalFailed creates a retrieval failure error.
func RetrievalFailed(msg string, cause error) *GatewayError {
	return &GatewayError{Code: ErrCodeRetrievalFailed, Message: msg, Cause: cause}
}

// RateLimitExceeded creates a rate limit exceeded error.
func RateLimitExceeded(msg string) *GatewayError {
	return &GatewayError{Code: ErrCodeRateLimitExceeded, Message: msg}
}

// MalformedHistory creates a malformed stored-history error.
func MalformedHistory(msg string, cause error) *GatewayError {
	return &GatewayError{Code: ErrCodeMalformedHistory, Message: msg, Cause: cause}
}

// InvalidArgument creates an invalid argument error.
func InvalidArgument(msg string) *GatewayError {
	return &GatewayError{Code: ErrCodeInvalidArgument, Message: msg}
}

// Wrap wraps an existing error with a gateway error code.
func Wrap(cause error, code ErrorCode, msg string) *GatewayError {
	return &GatewayError{Code: code, Message: msg, Cause: cause}
}

// IsCode checks if an error is of a specific code.
func IsCode(err error, code ErrorCode) bool {
	if gwErr, ok := err.(*GatewayError); ok {
		return gwErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not a GatewayError.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	if gwErr, ok := err.(*GatewayError); ok {
		return gwErr.Code
	}
	return defaultCode
}
