package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of tulog failure.
type ErrorCode string

const (
	ErrNetworkUnavailable  ErrorCode = "NETWORK_UNAVAILABLE"   // 503, retryable
	ErrServerError         ErrorCode = "SERVER_ERROR"          // 502, retryable
	ErrRateLimited         ErrorCode = "RATE_LIMITED"          // 429, retryable with longer backoff
	ErrClientError         ErrorCode = "CLIENT_ERROR"          // 400
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"       // 400
	ErrNotFound            ErrorCode = "NOT_FOUND"             // 404
	ErrNameAlreadyExists   ErrorCode = "NAME_ALREADY_EXISTS"   // 409
	ErrAuthExpired         ErrorCode = "AUTH_EXPIRED"          // 401
	ErrStorageUnavailable  ErrorCode = "STORAGE_UNAVAILABLE"   // 503, retryable
	ErrStorageCorrupt      ErrorCode = "STORAGE_CORRUPT"       // recovered locally
	ErrAudioPlaybackFailed ErrorCode = "AUDIO_PLAYBACK_FAILED" // logged only
	ErrConfiguration       ErrorCode = "CONFIGURATION"         // 500
	ErrInternal            ErrorCode = "INTERNAL"              // 500
)

// TrackerError is a structured error with a code, HTTP status and optional cause.
type TrackerError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *TrackerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *TrackerError) Unwrap() error {
	return e.Err
}

// NewNetworkUnavailable wraps a transport failure reaching an upstream.
func NewNetworkUnavailable(target string, err error) *TrackerError {
	return &TrackerError{
		Code:    ErrNetworkUnavailable,
		Status:  http.StatusServiceUnavailable,
		Message: fmt.Sprintf("cannot reach %s", target),
		Details: map[string]any{"target": target},
		Err:     err,
	}
}

// NewServerError reports a 5xx answer from an upstream.
func NewServerError(target string, status int, body string) *TrackerError {
	return &TrackerError{
		Code:    ErrServerError,
		Status:  http.StatusBadGateway,
		Message: fmt.Sprintf("%s returned %d: %s", target, status, body),
		Details: map[string]any{"target": target, "upstream_status": status},
	}
}

// NewRateLimited reports an upstream 429.
func NewRateLimited(target string) *TrackerError {
	return &TrackerError{
		Code:    ErrRateLimited,
		Status:  http.StatusTooManyRequests,
		Message: fmt.Sprintf("%s rate limited the request", target),
		Details: map[string]any{"target": target},
	}
}

// NewClientError reports a 4xx answer from an upstream.
func NewClientError(target string, status int, body string) *TrackerError {
	return &TrackerError{
		Code:    ErrClientError,
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("%s returned %d: %s", target, status, body),
		Details: map[string]any{"target": target, "upstream_status": status},
	}
}

// NewAuthExpired reports rejected upstream or datastore credentials.
func NewAuthExpired(target string) *TrackerError {
	return &TrackerError{
		Code:    ErrAuthExpired,
		Status:  http.StatusUnauthorized,
		Message: fmt.Sprintf("credentials for %s were rejected", target),
		Details: map[string]any{"target": target},
	}
}

// NewInvalidRequest creates a 400 error for bad input.
func NewInvalidRequest(msg string) *TrackerError {
	return &TrackerError{
		Code:    ErrInvalidRequest,
		Status:  http.StatusBadRequest,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing exercise.
func NewNotFound(name string) *TrackerError {
	return &TrackerError{
		Code:    ErrNotFound,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("exercise not found: %s", name),
		Details: map[string]any{"name": name},
	}
}

// NewNameAlreadyExists creates a 409 error for a duplicate exercise name.
func NewNameAlreadyExists(name string) *TrackerError {
	return &TrackerError{
		Code:    ErrNameAlreadyExists,
		Status:  http.StatusConflict,
		Message: fmt.Sprintf("exercise %q already exists", name),
		Details: map[string]any{"name": name},
	}
}

// NewStorageUnavailable wraps a backend that could not be reached.
func NewStorageUnavailable(backend string, err error) *TrackerError {
	return &TrackerError{
		Code:    ErrStorageUnavailable,
		Status:  http.StatusServiceUnavailable,
		Message: fmt.Sprintf("%s storage unavailable", backend),
		Details: map[string]any{"backend": backend},
		Err:     err,
	}
}

// NewStorageCorrupt reports a persisted record that could not be parsed.
func NewStorageCorrupt(key string, err error) *TrackerError {
	return &TrackerError{
		Code:    ErrStorageCorrupt,
		Status:  http.StatusInternalServerError,
		Message: fmt.Sprintf("corrupt record %q", key),
		Details: map[string]any{"key": key},
		Err:     err,
	}
}

// NewAudioPlaybackFailed wraps a cue that could not be played.
func NewAudioPlaybackFailed(err error) *TrackerError {
	return &TrackerError{
		Code:    ErrAudioPlaybackFailed,
		Status:  http.StatusInternalServerError,
		Message: "audio playback failed",
		Err:     err,
	}
}

// NewConfiguration reports a required setting that is missing or invalid.
func NewConfiguration(setting, msg string) *TrackerError {
	return &TrackerError{
		Code:    ErrConfiguration,
		Status:  http.StatusInternalServerError,
		Message: fmt.Sprintf("%s: %s", setting, msg),
		Details: map[string]any{"setting": setting},
	}
}

// NewInternal creates a 500 error for unexpected failures.
func NewInternal(err error) *TrackerError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &TrackerError{
		Code:    ErrInternal,
		Status:  http.StatusInternalServerError,
		Message: msg,
		Err:     err,
	}
}

// As returns the first TrackerError in err's chain.
func As(err error) (*TrackerError, bool) {
	var tErr *TrackerError
	if stderrors.As(err, &tErr) {
		return tErr, true
	}
	return nil, false
}

// Is checks if err's chain holds a TrackerError with the given code.
func Is(err error, code ErrorCode) bool {
	if tErr, ok := As(err); ok {
		return tErr.Code == code
	}
	return false
}

// Retryable reports whether repeating the operation may succeed.
func Retryable(err error) bool {
	tErr, ok := As(err)
	if !ok {
		return false
	}
	switch tErr.Code {
	case ErrNetworkUnavailable, ErrServerError, ErrRateLimited, ErrStorageUnavailable:
		return true
	}
	return false
}

// FromHTTPStatus classifies a non-2xx upstream response.
func FromHTTPStatus(target string, status int, body string) *TrackerError {
	switch {
	case status == http.StatusTooManyRequests:
		return NewRateLimited(target)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewAuthExpired(target)
	case status >= 500:
		return NewServerError(target, status, body)
	default:
		return NewClientError(target, status, body)
	}
}
