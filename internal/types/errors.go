package types

import (
	"errors"
	"net/http"
	"time"
)

// ErrorCode is the fixed error taxonomy shared between the service layer
// and the transport. Codes propagate unchanged from where the error is
// classified to the HTTP response.
type ErrorCode string

const (
	CodeValidation           ErrorCode = "VALIDATION_ERROR"
	CodeModelNotFound        ErrorCode = "MODEL_NOT_FOUND"
	CodeConversationNotFound ErrorCode = "CONVERSATION_NOT_FOUND"
	CodeRateLimitExceeded    ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeExternalAPI          ErrorCode = "EXTERNAL_API_ERROR"
	CodeStorage              ErrorCode = "STORAGE_ERROR"
	CodeInternal             ErrorCode = "INTERNAL_SERVER_ERROR"
)

// AppError carries a machine-readable code, a human message and optional
// structured details. When wrapping an underlying error its text is kept
// in Details under "originalError".
type AppError struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func (e *AppError) Error() string {
	return string(e.Code) + ": " + e.Message
}

// NewAppError builds an AppError with the current timestamp.
func NewAppError(code ErrorCode, message string, details map[string]any) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}

// WrapError builds an AppError preserving the underlying error text.
func WrapError(code ErrorCode, message string, err error) *AppError {
	details := map[string]any{}
	if err != nil {
		details["originalError"] = err.Error()
	}
	return NewAppError(code, message, details)
}

// AsAppError extracts an AppError from an error chain. The second return
// is false when the error is unclassified.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HTTPStatus maps an error code to the status the transport emits.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeModelNotFound, CodeConversationNotFound:
		return http.StatusNotFound
	case CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case CodeExternalAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
