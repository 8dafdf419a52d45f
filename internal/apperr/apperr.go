package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	CodeProviderMismatch = "PROVIDER_MISMATCH"
	CodeInvalidModel     = "INVALID_MODEL"
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeSessionNotFound  = "SESSION_NOT_FOUND"
	CodeSessionExpired   = "SESSION_EXPIRED"
	CodeProviderNotFound = "PROVIDER_NOT_FOUND"
	CodeProviderError    = "PROVIDER_ERROR"
	CodeProviderTimeout  = "PROVIDER_TIMEOUT"
	CodeTokenExpired     = "TOKEN_EXPIRED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeInternal         = "INTERNAL_ERROR"
)

// Error is a domain failure carrying a stable code for the HTTP layer.
type Error struct {
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(code, message string, details map[string]any) *Error {
	if details == nil {
		details = map[string]any{}
	}
	return &Error{Code: code, Message: message, Details: details}
}

func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func CodeOf(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}

func HTTPStatus(code string) int {
	switch code {
	case CodeProviderMismatch, CodeInvalidModel, CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeTokenExpired:
		return http.StatusUnauthorized
	case CodeSessionNotFound, CodeProviderNotFound:
		return http.StatusNotFound
	case CodeSessionExpired:
		return http.StatusGone
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeProviderError:
		return http.StatusBadGateway
	case CodeProviderTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func ProviderMismatch(sessionProvider, requested string) *Error {
	return New(CodeProviderMismatch,
		fmt.Sprintf("Session belongs to provider %q, cannot use %q", sessionProvider, requested),
		map[string]any{"session_provider": sessionProvider, "requested_provider": requested})
}

func InvalidModel(model, provider string, supported []string) *Error {
	return New(CodeInvalidModel,
		fmt.Sprintf("Model %q is not supported by provider %q", model, provider),
		map[string]any{"model": model, "provider": provider, "supported_models": supported})
}

func InvalidRequest(message string) *Error {
	return New(CodeInvalidRequest, message, nil)
}

func SessionNotFound(id string) *Error {
	return New(CodeSessionNotFound, fmt.Sprintf("Session %s not found", id), map[string]any{"session_id": id})
}

func SessionExpired(id string) *Error {
	return New(CodeSessionExpired, fmt.Sprintf("Session %s has expired", id), map[string]any{"session_id": id})
}

func ProviderNotFound(name string) *Error {
	return New(CodeProviderNotFound, fmt.Sprintf("Provider %q not found", name), map[string]any{"provider": name})
}

func ProviderError(provider, message string, err error) *Error {
	e := New(CodeProviderError, message, map[string]any{"provider": provider})
	e.Err = err
	return e
}

func ProviderTimeout(provider string, timeout time.Duration) *Error {
	return New(CodeProviderTimeout,
		fmt.Sprintf("Provider %s timed out after %s", provider, timeout),
		map[string]any{"provider": provider, "timeout_seconds": int(timeout.Seconds())})
}

func TokenExpired(provider string) *Error {
	return New(CodeTokenExpired, fmt.Sprintf("Token for provider %s is expired or invalid", provider),
		map[string]any{"provider": provider})
}

func RateLimited(resetAt time.Time) *Error {
	return New(CodeRateLimited, "Rate limit exceeded",
		map[string]any{"reset_at": resetAt.UTC().Format(time.RFC3339)})
}
