package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// TransientError marks a failure that may succeed on retry: throttling,
// 5xx answers, dropped connections, a kernel gateway that is still starting.
type TransientError struct {
	Err        error
	Message    string
	StatusCode int
	// RetryAfter comes from the upstream Retry-After header.
	RetryAfter time.Duration
}

func (e *TransientError) Error() string { return describe(e.Message, "transient", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure that retrying cannot fix, such as a 4xx.
type PermanentError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *PermanentError) Error() string { return describe(e.Message, "permanent", e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

// DegradedError reports an upstream that is short-circuited on purpose,
// usually by an open circuit breaker.
type DegradedError struct {
	Err     error
	Message string
}

func (e *DegradedError) Error() string { return describe(e.Message, "degraded", e.Err) }
func (e *DegradedError) Unwrap() error { return e.Err }

func describe(message, kind string, err error) string {
	if message != "" {
		return message
	}
	return fmt.Sprintf("%s error: %v", kind, err)
}

func NewTransientError(err error, message string) *TransientError {
	return &TransientError{Err: err, Message: message}
}

func NewPermanentError(err error, message string) *PermanentError {
	return &PermanentError{Err: err, Message: message}
}

func NewDegradedError(err error, message string) *DegradedError {
	return &DegradedError{Err: err, Message: message}
}

// IsTransient reports whether err is worth retrying. Typed errors decide
// for themselves; cancellation never retries; otherwise network and socket
// failures count as transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}
	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return false
	}
	return isNetworkError(err) || isSocketErrno(err)
}

// IsPermanent reports errors that are neither transient nor degraded.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return true
	}
	return !IsTransient(err) && !IsDegraded(err)
}

func IsDegraded(err error) bool {
	var degraded *DegradedError
	return errors.As(err, &degraded)
}

const maxBodySnippet = 512

// MapHTTPError turns a non-2xx response into a TransientError (429, 500,
// 502, 503, 504) or a PermanentError (everything else).
func MapHTTPError(statusCode int, body []byte, header http.Header) error {
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > maxBodySnippet {
		snippet = snippet[:maxBodySnippet] + "..."
	}
	cause := fmt.Errorf("status %d: %s", statusCode, snippet)

	switch statusCode {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return &TransientError{
			Err:        cause,
			Message:    fmt.Sprintf("upstream returned %d (retryable): %s", statusCode, snippet),
			StatusCode: statusCode,
			RetryAfter: retryAfter(header),
		}
	}
	return &PermanentError{
		Err:        cause,
		Message:    fmt.Sprintf("upstream returned %d: %s", statusCode, snippet),
		StatusCode: statusCode,
	}
}

// retryAfter understands the delay-seconds form of Retry-After only.
func retryAfter(header http.Header) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(header.Get("Retry-After")))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

var networkFailureText = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"deadline exceeded",
	"unexpected eof",
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary
	}
	text := strings.ToLower(err.Error())
	for _, fragment := range networkFailureText {
		if strings.Contains(text, fragment) {
			return true
		}
	}
	return false
}

func isSocketErrno(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	switch errno {
	case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE,
		syscall.ETIMEDOUT, syscall.ENETUNREACH, syscall.EHOSTUNREACH:
		return true
	}
	return false
}
