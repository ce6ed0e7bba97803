package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind classifies a provider failure.
type ErrorKind string

const (
	// KindAuth means the API key was rejected or lacks permission.
	KindAuth ErrorKind = "auth"

	// KindRateLimited means the vendor throttled the request.
	KindRateLimited ErrorKind = "rate_limited"

	// KindTimeout means the call exceeded its deadline.
	KindTimeout ErrorKind = "timeout"

	// KindBadResponse means the vendor answered with an unusable payload
	// (empty completion, malformed body, rejected request shape).
	KindBadResponse ErrorKind = "bad_response"

	// KindTransport covers connection failures and vendor 5xx errors.
	KindTransport ErrorKind = "transport"
)

// ProviderError is the uniform error surfaced by every adapter.
type ProviderError struct {
	Kind     ErrorKind
	Provider string
	Model    string
	Status   int
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "provider %s", e.Provider)
	if e.Model != "" {
		fmt.Fprintf(&b, " (%s)", e.Model)
	}
	fmt.Fprintf(&b, ": %s", e.Kind)
	if e.Status != 0 {
		fmt.Fprintf(&b, " [status %d]", e.Status)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the adapter should retry the call.
// Only transient transport failures and timeouts retry in-adapter;
// rate limits and auth failures surface immediately.
func (e *ProviderError) Retryable() bool {
	return e.Kind == KindTimeout || e.Kind == KindTransport
}

// WithModel attaches the model identifier.
func (e *ProviderError) WithModel(model string) *ProviderError {
	e.Model = model
	return e
}

// NewProviderError builds an error with an explicit kind.
func NewProviderError(provider string, kind ErrorKind, message string, cause error) *ProviderError {
	return &ProviderError{
		Kind:     kind,
		Provider: provider,
		Message:  message,
		Cause:    cause,
	}
}

// ClassifyError wraps an arbitrary adapter failure into a ProviderError.
// Already-classified errors pass through unchanged.
func ClassifyError(provider string, status int, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}

	kind := classifyStatus(status)
	if kind == "" {
		kind = classifyCause(err)
	}

	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &ProviderError{
		Kind:     kind,
		Provider: provider,
		Status:   status,
		Message:  msg,
		Cause:    err,
	}
}

func classifyStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 429:
		return KindRateLimited
	case status == 408:
		return KindTimeout
	case status >= 500:
		return KindTransport
	case status >= 400:
		return KindBadResponse
	default:
		return ""
	}
}

func classifyCause(err error) ErrorKind {
	if err == nil {
		return KindBadResponse
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindTransport
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return KindTimeout
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		return KindRateLimited
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "api key") || strings.Contains(msg, "forbidden"):
		return KindAuth
	case strings.Contains(msg, "connection") || strings.Contains(msg, "eof") || strings.Contains(msg, "reset by peer"):
		return KindTransport
	default:
		return KindBadResponse
	}
}

// IsProviderError extracts a ProviderError from an error chain.
func IsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
