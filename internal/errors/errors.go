package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeConfigUnavailable indicates the client configuration could not be loaded.
	// Callers treat the feature as disabled.
	ErrCodeConfigUnavailable ErrorCode = "configuration_unavailable"
	// ErrCodeTokenExchange indicates the token endpoint returned an error or a malformed response.
	ErrCodeTokenExchange ErrorCode = "token_exchange_failed"
	// ErrCodeGraphRequest indicates a Microsoft Graph or Azure AD HTTP call failed.
	ErrCodeGraphRequest ErrorCode = "graph_request_failed"
	// ErrCodeUnresolvableRule indicates a mapping rule referenced an unknown role.
	ErrCodeUnresolvableRule ErrorCode = "unresolvable_mapping_rule"
	// ErrCodeRoleApplication indicates the role store failed to add or remove a role.
	ErrCodeRoleApplication ErrorCode = "role_application_failed"
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a conflict with existing data (e.g., unique constraint violation).
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeForbidden indicates the caller may not perform the operation (e.g., a blocked account).
	ErrCodeForbidden ErrorCode = "forbidden"
	// ErrCodeForeignKey indicates a foreign key constraint violation.
	ErrCodeForeignKey ErrorCode = "foreign_key"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
	// Endpoint is the remote URL involved in the failure (optional, for HTTP errors)
	Endpoint string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// ConfigUnavailable wraps a configuration load failure.
func ConfigUnavailable(cause error, origin string) *AppError {
	return &AppError{
		Code:    ErrCodeConfigUnavailable,
		Message: "client configuration unavailable",
		Cause:   cause,
		Field:   origin,
	}
}

// TokenExchangeFailed creates a token exchange error preserving the underlying cause for logging.
func TokenExchangeFailed(message string, cause error) *AppError {
	return &AppError{
		Code:    ErrCodeTokenExchange,
		Message: message,
		Cause:   cause,
	}
}

// GraphRequestFailed creates an HTTP failure error bound to the given endpoint.
func GraphRequestFailed(endpoint, message string, cause error) *AppError {
	return &AppError{
		Code:     ErrCodeGraphRequest,
		Message:  message,
		Cause:    cause,
		Endpoint: endpoint,
	}
}

// UnresolvableRule describes a mapping rule whose role key matched no known role.
func UnresolvableRule(roleKey string) *AppError {
	return &AppError{
		Code:    ErrCodeUnresolvableRule,
		Message: fmt.Sprintf("mapping rule references unknown role %q", roleKey),
		Field:   roleKey,
	}
}

// RoleApplicationFailed wraps a role store failure for a single role change.
func RoleApplicationFailed(roleID string, cause error) *AppError {
	return &AppError{
		Code:    ErrCodeRoleApplication,
		Message: "apply role " + roleID,
		Cause:   cause,
		Field:   roleID,
	}
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: message,
	}
}

// Conflict creates a new Conflict error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    ErrCodeConflict,
		Message: message,
	}
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
	}
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
		Field:   field,
	}
}

// Forbidden creates a new Forbidden error.
func Forbidden(message string) *AppError {
	return &AppError{
		Code:    ErrCodeForbidden,
		Message: message,
	}
}

// Internalf creates a new Internal error with formatted message.
func Internalf(format string, args ...any) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	for err != nil {
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// IsConfigUnavailable checks if an error is a ConfigurationUnavailable error.
func IsConfigUnavailable(err error) bool {
	return isCode(err, ErrCodeConfigUnavailable)
}

// IsTokenExchange checks if an error is a TokenExchangeFailed error.
func IsTokenExchange(err error) bool {
	return isCode(err, ErrCodeTokenExchange)
}

// IsGraphRequest checks if an error is (or wraps) a GraphRequestFailed error.
func IsGraphRequest(err error) bool {
	return isCode(err, ErrCodeGraphRequest)
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool {
	return isCode(err, ErrCodeNotFound)
}

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool {
	return isCode(err, ErrCodeConflict)
}

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool {
	return isCode(err, ErrCodeValidation)
}

// IsForbidden checks if an error is a Forbidden error.
func IsForbidden(err error) bool {
	return isCode(err, ErrCodeForbidden)
}

// GetCode returns the outermost ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetEndpoint returns the first Endpoint found in the AppError chain.
func GetEndpoint(err error) string {
	var appErr *AppError
	for err != nil {
		if !errors.As(err, &appErr) {
			return ""
		}
		if appErr.Endpoint != "" {
			return appErr.Endpoint
		}
		err = appErr.Cause
	}
	return ""
}
