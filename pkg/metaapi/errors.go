package metaapi

import (
	"errors"
	"fmt"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a call without
// invoking the remote API. It is terminal for the current attempt; callers
// must wait and re-invoke later.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ValidationError reports malformed input. Never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
	}
	return "validation failed: " + e.Message
}

// AuthenticationError reports an invalid token or credentials. Surfaced
// immediately, never retried.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	return "authentication failed: " + e.Message
}

// RateLimitError reports that the local limiter (or the remote API) refused
// the call. RetryAfter hints when the caller may try again.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// ConnectionError reports an unreachable network, broker or server. Eligible
// for retry with backoff.
type ConnectionError struct {
	Message string
	Err     error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connection failed: %s: %v", e.Message, e.Err)
	}
	return "connection failed: " + e.Message
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// APIError reports an unexpected remote failure after retries are exhausted.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// translateError maps remote error shapes onto the local taxonomy so no
// caller depends on the vendor's error names. Already-local errors pass
// through untouched.
func translateError(status int, code, message string) error {
	switch {
	case status == 400 || code == "ValidationError":
		return &ValidationError{Message: message}
	case status == 401 || status == 403 || code == "UnauthorizedError" || code == "ForbiddenError":
		return &AuthenticationError{Message: message}
	case status == 429 || code == "TooManyRequestsError":
		return &RateLimitError{RetryAfter: 30 * time.Second}
	case status == 502 || status == 503 || status == 504 || code == "InternalError" && message == "":
		return &ConnectionError{Message: message}
	default:
		return &APIError{Status: status, Code: code, Message: message}
	}
}

// retryable reports whether err is worth another attempt: only connection
// level failures qualify. Validation, auth, rate-limit and circuit-open
// errors all propagate to the caller unchanged.
func retryable(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}
