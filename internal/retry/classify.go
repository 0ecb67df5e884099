package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Class decides how a failed remote call is handled.
type Class int

const (
	// ClassRetryable covers rate limits, transient network failures and
	// transient server errors.
	ClassRetryable Class = iota
	// ClassPermanent covers bad requests, authentication failures and
	// content rejections. Never retried.
	ClassPermanent
)

func (c Class) String() string {
	switch c {
	case ClassRetryable:
		return "retryable"
	case ClassPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Retryable marks an error as retryable regardless of its shape.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// AsRetryable wraps err so Classify treats it as transient.
func AsRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// Permanent marks an error as non-retryable regardless of its shape.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// AsPermanent wraps err so Classify never retries it.
func AsPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Classify sorts an error into a retry class. API errors are classified by
// HTTP status, everything network-shaped is transient, unknown errors default
// to permanent so a broken request is not hammered.
func Classify(err error) Class {
	if err == nil {
		return ClassPermanent
	}

	var forced *retryableError
	if errors.As(err, &forced) {
		return ClassRetryable
	}
	var pinned *permanentError
	if errors.As(err, &pinned) {
		return ClassPermanent
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassRetryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassRetryable
	}
	if isNetworkErrorMessage(err) {
		return ClassRetryable
	}
	return ClassPermanent
}

func classifyStatus(status int) Class {
	switch {
	case status == http.StatusTooManyRequests:
		return ClassRetryable
	case status == http.StatusRequestTimeout:
		return ClassRetryable
	case status >= 500:
		return ClassRetryable
	default:
		return ClassPermanent
	}
}

func isNetworkErrorMessage(err error) bool {
	msg := strings.ToLower(err.Error())
	patterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"i/o timeout",
		"temporary failure",
		"eof",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
