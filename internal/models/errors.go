package models

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Error codes carried by AppError. The set is closed; handlers switch on it.
const (
	CodeUnauthenticated      = "UNAUTHENTICATED"
	CodeInvalidCredential    = "INVALID_CREDENTIAL"
	CodeUnknownSubject       = "UNKNOWN_SUBJECT"
	CodeForbidden            = "FORBIDDEN"
	CodeNotFound             = "NOT_FOUND"
	CodeInvalidTransition    = "INVALID_TRANSITION"
	CodeTargetUnavailable    = "TARGET_UNAVAILABLE"
	CodeDuplicateOpenRequest = "DUPLICATE_OPEN_REQUEST"
	CodeSelfReference        = "SELF_REFERENCE"
	CodeChatNotActive        = "CHAT_NOT_ACTIVE"
	CodeEmptyMessage         = "EMPTY_MESSAGE"
	CodeValidation           = "VALIDATION_ERROR"
	CodeConflict             = "CONFLICT"
	CodeRateLimited          = "RATE_LIMITED"
	CodeInternal             = "INTERNAL_ERROR"
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so callers can write
// errors.Is(err, models.ErrForbidden) against a constructed error.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is comparisons.
var (
	ErrUnauthenticated      = &AppError{Code: CodeUnauthenticated, Message: "authentication required"}
	ErrInvalidCredential    = &AppError{Code: CodeInvalidCredential, Message: "invalid credential"}
	ErrUnknownSubject       = &AppError{Code: CodeUnknownSubject, Message: "unknown subject"}
	ErrForbidden            = &AppError{Code: CodeForbidden, Message: "forbidden"}
	ErrNotFound             = &AppError{Code: CodeNotFound, Message: "not found"}
	ErrInvalidTransition    = &AppError{Code: CodeInvalidTransition, Message: "invalid status transition"}
	ErrTargetUnavailable    = &AppError{Code: CodeTargetUnavailable, Message: "item is not available"}
	ErrDuplicateOpenRequest = &AppError{Code: CodeDuplicateOpenRequest, Message: "an open request already exists for this item"}
	ErrSelfReference        = &AppError{Code: CodeSelfReference, Message: "cannot request your own item"}
	ErrChatNotActive        = &AppError{Code: CodeChatNotActive, Message: "chat is only available for approved requests"}
	ErrEmptyMessage         = &AppError{Code: CodeEmptyMessage, Message: "message text cannot be empty"}
	ErrValidation           = &AppError{Code: CodeValidation, Message: "validation failed"}
	ErrConflict             = &AppError{Code: CodeConflict, Message: "conflict"}
	ErrRateLimited          = &AppError{Code: CodeRateLimited, Message: "rate limit exceeded"}
	ErrInternal             = &AppError{Code: CodeInternal, Message: "Internal server error"}
)

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthenticated,
		Message: message,
	}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{
		Code:    CodeForbidden,
		Message: message,
	}
}

func NewConflictError(message string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
	}
}

// NewInvalidTransitionError reports a status edge outside the lifecycle graph.
func NewInvalidTransitionError(from, to RequestStatus) *AppError {
	return &AppError{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("cannot move request from %s to %s", from, to),
	}
}

// NewCredentialError wraps a token parse failure.
func NewCredentialError(err error) *AppError {
	return &AppError{
		Code:    CodeInvalidCredential,
		Message: "invalid or expired token",
		Err:     err,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "Internal server error",
		Err:     err,
	}
}

// AsAppError returns err as an AppError, wrapping unknown errors as internal.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError(err)
}

// HTTPStatus maps an error to the status code the API answers with.
func HTTPStatus(err error) int {
	switch AsAppError(err).Code {
	case CodeUnauthenticated, CodeInvalidCredential, CodeUnknownSubject:
		return fiber.StatusUnauthorized
	case CodeForbidden:
		return fiber.StatusForbidden
	case CodeNotFound:
		return fiber.StatusNotFound
	case CodeInvalidTransition, CodeTargetUnavailable, CodeDuplicateOpenRequest,
		CodeChatNotActive, CodeConflict:
		return fiber.StatusConflict
	case CodeSelfReference, CodeEmptyMessage, CodeValidation:
		return fiber.StatusBadRequest
	case CodeRateLimited:
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}

// RespondWithError creates a standardized error response
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	var response ErrorResponse

	var appErr *AppError
	if errors.As(err, &appErr) {
		response = ErrorResponse{
			Error: appErr.Message,
			Code:  appErr.Code,
		}
		// internal causes stay in the logs
		if appErr.Err != nil && appErr.Code != CodeInternal {
			response.Details = appErr.Err.Error()
		}
	} else {
		response = ErrorResponse{
			Error: err.Error(),
		}
	}

	return c.Status(status).JSON(response)
}

// RespondWithAppError answers with the status mapped from the error code.
func RespondWithAppError(c *fiber.Ctx, err error) error {
	return RespondWithError(c, HTTPStatus(err), AsAppError(err))
}
