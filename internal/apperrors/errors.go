package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Every error returned by the core wraps exactly one of these.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrTransient    = errors.New("temporarily unavailable")
	ErrCacheBackend = errors.New("cache backend failure")
)

// Validation codes that map to 422 instead of 400.
const (
	CodeInvalidStatus = "invalid_status"
	CodeInvalidArea   = "invalid_area"
)

// Error carries a kind, a machine-readable code for clients and an optional cause.
type Error struct {
	Kind    error
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func Validation(code, format string, args ...any) error {
	return &Error{Kind: ErrValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Code: "not_found", Message: fmt.Sprintf(format, args...)}
}

func Conflict(err error, format string, args ...any) error {
	return &Error{Kind: ErrConflict, Code: "conflict", Message: fmt.Sprintf(format, args...), Err: err}
}

func Transient(err error, format string, args ...any) error {
	return &Error{Kind: ErrTransient, Code: "unavailable", Message: fmt.Sprintf(format, args...), Err: err}
}

func CacheBackend(err error, op string) error {
	return &Error{Kind: ErrCacheBackend, Code: "cache_backend", Message: "cache " + op, Err: err}
}

// DataQualityWarning describes a stored row that could not be turned into a feature.
// It is logged, never returned to a client.
type DataQualityWarning struct {
	Layer  string
	RowID  any
	Reason string
}

func (w DataQualityWarning) Error() string {
	return fmt.Sprintf("data quality: layer=%s row=%v: %s", w.Layer, w.RowID, w.Reason)
}

// Code returns the client-facing code for err, or "internal".
func Code(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Code != "" {
		return ae.Code
	}
	return "internal"
}

// HTTPStatus maps an error to the status code the HTTP layer should answer with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		switch Code(err) {
		case CodeInvalidStatus, CodeInvalidArea:
			return http.StatusUnprocessableEntity
		}
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrTransient):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Retryable reports whether the caller may retry the same request with backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
