package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/saludmunicipal/farmacia-backend/pkg/i18n"
)

// Standard error types
var (
	ErrNotFound           = errors.New("resource not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrBadRequest         = errors.New("bad request")
	ErrConflict           = errors.New("resource conflict")
	ErrInternal           = errors.New("internal server error")
	ErrValidation         = errors.New("validation error")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrContendedResource  = errors.New("contended resource")
	ErrInvariantViolation = errors.New("invariant violation")
)

// Error codes exposed to clients
const (
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeBadRequest         = "BAD_REQUEST"
	CodeConflict           = "CONFLICT"
	CodeInternal           = "INTERNAL_ERROR"
	CodeValidation         = "VALIDATION_ERROR"
	CodeInsufficientStock  = "INSUFFICIENT_STOCK"
	CodeContendedResource  = "CONTENDED_RESOURCE"
	CodeInvariantViolation = "INVARIANT_VIOLATION"
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	MessageKey string            `json:"-"` // i18n key for localization
	Params     map[string]string `json:"-"` // Parameters for i18n interpolation
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
	Retryable  bool              `json:"retryable,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Localize returns the message in the locale carried by ctx
func (e *AppError) Localize(ctx context.Context) string {
	if e.MessageKey == "" {
		return e.Message
	}
	l := i18n.LocalizerFromContext(ctx)
	params := e.Params
	if resource, ok := params["resource"]; ok {
		if name, found := l.Lookup("resources." + resource); found {
			params = map[string]string{"resource": name}
		}
	}
	return l.T(e.MessageKey, params)
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithCause attaches the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// WithMessageKey sets the i18n key used by Localize
func (e *AppError) WithMessageKey(key string) *AppError {
	e.MessageKey = key
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		MessageKey: "errors.not_found",
		Params:     map[string]string{"resource": resource},
		StatusCode: http.StatusNotFound,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Code:       CodeUnauthorized,
		Message:    message,
		MessageKey: "errors.unauthorized",
		StatusCode: http.StatusUnauthorized,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       CodeBadRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       CodeConflict,
		Message:    message,
		MessageKey: "errors.conflict",
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       CodeInternal,
		Message:    message,
		MessageKey: "errors.internal",
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       CodeValidation,
		Message:    "validation failed",
		MessageKey: "errors.validation_failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// ValidationField is a Validation error for a single field
func ValidationField(field, problem string) *AppError {
	return Validation(map[string]string{field: problem})
}

// InsufficientStock reports that the eligible lots of a medication cannot
// cover the requested quantity.
func InsufficientStock(medicationID string, missing int) *AppError {
	return &AppError{
		Err:        ErrInsufficientStock,
		Code:       CodeInsufficientStock,
		Message:    fmt.Sprintf("insufficient stock for %s (missing %d)", medicationID, missing),
		MessageKey: "errors.insufficient_stock",
		Params: map[string]string{
			"medication_id": medicationID,
			"missing":       strconv.Itoa(missing),
		},
		StatusCode: http.StatusBadRequest,
		Details: map[string]string{
			"medication_id": medicationID,
			"missing":       strconv.Itoa(missing),
		},
	}
}

// ContendedResource reports a lock timeout, deadlock or serialization
// failure. The caller may retry the whole request.
func ContendedResource(cause error) *AppError {
	return &AppError{
		Err:        fmt.Errorf("%w: %v", ErrContendedResource, cause),
		Code:       CodeContendedResource,
		Message:    "resource busy, retry the operation",
		MessageKey: "errors.contended_resource",
		StatusCode: http.StatusConflict,
		Retryable:  true,
	}
}

// InvariantViolation reports a broken ledger invariant. The detail stays in
// the logs; callers only see a generic message.
func InvariantViolation(detail string) *AppError {
	return &AppError{
		Err:        fmt.Errorf("%w: %s", ErrInvariantViolation, detail),
		Code:       CodeInvariantViolation,
		Message:    "internal inventory inconsistency",
		MessageKey: "errors.internal",
		StatusCode: http.StatusInternalServerError,
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}

// CodeOf returns the AppError code of err, or "" when err is not an AppError
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
