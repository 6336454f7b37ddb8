package unifiedllm

import (
	"errors"
	"fmt"
	"strings"
)

// SDKError is the base error type for all completion client errors.
type SDKError struct {
	Message string
	Cause   error
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SDKError) Unwrap() error {
	return e.Cause
}

// ProviderError represents an error returned by a completion provider.
type ProviderError struct {
	SDKError
	Provider   string
	StatusCode int
	Retryable  bool
	RetryAfter *float64
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
}

// Concrete provider error types.

type AuthenticationError struct{ ProviderError }
type AccessDeniedError struct{ ProviderError }
type NotFoundError struct{ ProviderError }
type InvalidRequestError struct{ ProviderError }
type RateLimitError struct{ ProviderError }
type ServerError struct{ ProviderError }
type ContentFilterError struct{ ProviderError }
type ContextLengthError struct{ ProviderError }

// Non-provider errors.

type RequestTimeoutError struct{ SDKError }
type AbortError struct{ SDKError }
type NetworkError struct{ SDKError }
type ConfigurationError struct{ SDKError }

// ErrorFromStatusCode maps an HTTP status code to the appropriate error type.
func ErrorFromStatusCode(statusCode int, message, provider string, retryAfter *float64) error {
	pe := ProviderError{
		SDKError:   SDKError{Message: message},
		Provider:   provider,
		StatusCode: statusCode,
		RetryAfter: retryAfter,
	}

	switch statusCode {
	case 400, 422:
		return &InvalidRequestError{ProviderError: pe}
	case 401:
		return &AuthenticationError{ProviderError: pe}
	case 403:
		return &AccessDeniedError{ProviderError: pe}
	case 404:
		return &NotFoundError{ProviderError: pe}
	case 408:
		return &RequestTimeoutError{SDKError: SDKError{Message: message}}
	case 413:
		return &ContextLengthError{ProviderError: pe}
	case 429:
		pe.Retryable = true
		return &RateLimitError{ProviderError: pe}
	case 500, 502, 503, 504:
		pe.Retryable = true
		return &ServerError{ProviderError: pe}
	default:
		pe.Retryable = true
		return &pe
	}
}

// ClassifyProviderError converts a raw backend error into the error
// hierarchy by inspecting its message. Adapters whose SDKs do not expose
// typed status codes share this mapping.
func ClassifyProviderError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var already interface{ providerError() }
	if errors.As(err, &already) {
		return err
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	base := func(status int, retryable bool) ProviderError {
		return ProviderError{
			SDKError:   SDKError{Message: msg, Cause: err},
			Provider:   provider,
			StatusCode: status,
			Retryable:  retryable,
		}
	}

	switch {
	case containsAny(lower, "429", "rate limit", "ratelimit", "resource_exhausted", "too many requests", "quota"):
		return &RateLimitError{ProviderError: base(429, true)}
	case containsAny(lower, "401", "unauthorized", "invalid key", "invalid api key", "api key not valid"):
		return &AuthenticationError{ProviderError: base(401, false)}
	case containsAny(lower, "403", "forbidden", "permission_denied"):
		return &AccessDeniedError{ProviderError: base(403, false)}
	case containsAny(lower, "context length", "too many tokens", "maximum context"):
		return &ContextLengthError{ProviderError: base(413, false)}
	case containsAny(lower, "404", "not found"):
		return &NotFoundError{ProviderError: base(404, false)}
	case containsAny(lower, "500", "502", "503", "internal server", "unavailable", "overloaded"):
		return &ServerError{ProviderError: base(500, true)}
	case containsAny(lower, "timeout", "deadline exceeded"):
		return &RequestTimeoutError{SDKError: SDKError{Message: msg, Cause: err}}
	case containsAny(lower, "connection refused", "no such host", "connection reset"):
		return &NetworkError{SDKError: SDKError{Message: msg, Cause: err}}
	case containsAny(lower, "content filter", "safety"):
		return &ContentFilterError{ProviderError: base(0, false)}
	default:
		pe := base(0, true)
		return &pe
	}
}

func (e *ProviderError) providerError()      {}
func (e *RequestTimeoutError) providerError() {}
func (e *NetworkError) providerError()        {}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// IsRateLimit reports whether err is, or wraps, a RateLimitError.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsRetryable returns true if the error is safe to retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch e := err.(type) {
	case *ProviderError:
		return e.Retryable
	case *AuthenticationError, *AccessDeniedError, *NotFoundError,
		*InvalidRequestError, *ContextLengthError, *ContentFilterError,
		*ConfigurationError, *AbortError:
		return false
	case *RateLimitError, *ServerError, *NetworkError, *RequestTimeoutError:
		return true
	default:
		return true
	}
}
