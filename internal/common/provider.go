package common

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// FailureKind classifies a provider failure for the retry policy.
type FailureKind int

const (
	// FailureTransient covers rate limits, overload, 5xx and network hiccups.
	FailureTransient FailureKind = iota
	// FailureRejected covers content-policy refusals and hard 4xx errors.
	FailureRejected
)

func (k FailureKind) String() string {
	if k == FailureTransient {
		return "transient"
	}
	return "rejected"
}

// ProviderError is returned by LLM completers so the scoring client can decide
// whether an attempt may be repeated.
type ProviderError struct {
	Provider   string
	StatusCode int
	Kind       FailureKind
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s failure (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s failure: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// KindForStatus maps an HTTP status code onto a failure kind.
// 408/425/429, 5xx and the Anthropic-specific 529 are retryable.
func KindForStatus(status int) FailureKind {
	switch {
	case status == http.StatusRequestTimeout,
		status == http.StatusTooEarly,
		status == http.StatusTooManyRequests,
		status >= 500:
		return FailureTransient
	default:
		return FailureRejected
	}
}

// NewProviderError builds a ProviderError whose kind is derived from the status code.
func NewProviderError(provider string, status int, err error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		StatusCode: status,
		Kind:       KindForStatus(status),
		Err:        err,
	}
}

var transientPatterns = []string{
	"rate limit",
	"rate_limit",
	"resource_exhausted",
	"too many requests",
	"overloaded",
	"service unavailable",
	"connection refused",
	"connection reset",
	"temporary failure",
	"timed out",
	"unexpected eof",
}

// IsTransient is the retry predicate for provider calls.
// Classified ProviderErrors win; otherwise network timeouts and a short list of
// well-known transient messages are retried. Everything else is treated as hard.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pErr *ProviderError
	if errors.As(err, &pErr) {
		return pErr.Kind == FailureTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
