// Package errors provides error types and handling for the portal mirror.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrorType categorizes errors for skip-versus-abort decisions.
type ErrorType int

const (
	// Unknown is an uncategorized error.
	Unknown ErrorType = iota
	// Config represents a missing or malformed manifest or configuration.
	Config
	// Scope represents an attempt to map or save a URL outside the content path.
	Scope
	// Network represents network-related errors (DNS, connection).
	Network
	// Timeout represents timeout errors.
	Timeout
	// Status represents a non-2xx HTTP response.
	Status
	// Parse represents markup or URL parsing errors.
	Parse
	// IO represents local filesystem failures.
	IO
	// Auth represents a failed login.
	Auth
	// Cancelled represents context cancellation.
	Cancelled
)

// String returns the string representation of ErrorType.
func (t ErrorType) String() string {
	switch t {
	case Config:
		return "config"
	case Scope:
		return "scope"
	case Network:
		return "network"
	case Timeout:
		return "timeout"
	case Status:
		return "status"
	case Parse:
		return "parse"
	case IO:
		return "io"
	case Auth:
		return "auth"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsFetchFailure reports whether errors of this type come from retrieving a URL.
func (t ErrorType) IsFetchFailure() bool {
	switch t {
	case Network, Timeout, Status:
		return true
	default:
		return false
	}
}

// CrawlError represents a categorized mirror error.
type CrawlError struct {
	Type       ErrorType
	URL        string
	Operation  string
	Message    string
	Cause      error
	StatusCode int
	Attempts   int
}

// Error implements the error interface.
func (e *CrawlError) Error() string {
	target := e.URL
	if target == "" {
		target = "-"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s error during %s on %s: %s (caused by: %v)",
			e.Type.String(), e.Operation, target, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error during %s on %s: %s",
		e.Type.String(), e.Operation, target, e.Message)
}

// Unwrap returns the underlying error.
func (e *CrawlError) Unwrap() error {
	return e.Cause
}

// Is matches another CrawlError of the same type.
func (e *CrawlError) Is(target error) bool {
	t, ok := target.(*CrawlError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// NewCrawlError creates a new CrawlError.
func NewCrawlError(errType ErrorType, url, operation, message string, cause error) *CrawlError {
	return &CrawlError{
		Type:      errType,
		URL:       url,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// NewConfigError creates a configuration error for a manifest or config file.
func NewConfigError(path, message string, cause error) *CrawlError {
	return NewCrawlError(Config, path, "load", message, cause)
}

// NewScopeError creates a scope error.
func NewScopeError(url, reason string) *CrawlError {
	return NewCrawlError(Scope, url, "scope_check", reason, nil)
}

// NewNetworkError creates a network error.
func NewNetworkError(url, operation string, cause error) *CrawlError {
	return NewCrawlError(Network, url, operation, "network failure", cause)
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(url, operation string, cause error) *CrawlError {
	return NewCrawlError(Timeout, url, operation, "request timed out", cause)
}

// NewStatusError creates an error for a non-2xx response.
func NewStatusError(url string, statusCode int) *CrawlError {
	err := NewCrawlError(Status, url, "request", fmt.Sprintf("server returned %d", statusCode), nil)
	err.StatusCode = statusCode
	return err
}

// NewParseError creates a parse error.
func NewParseError(url, operation string, cause error) *CrawlError {
	return NewCrawlError(Parse, url, operation, "parsing failed", cause)
}

// NewIOError creates a filesystem error.
func NewIOError(path, operation string, cause error) *CrawlError {
	return NewCrawlError(IO, path, operation, "filesystem failure", cause)
}

// NewAuthError creates an authentication error.
func NewAuthError(url, message string, cause error) *CrawlError {
	return NewCrawlError(Auth, url, "login", message, cause)
}

// NewCancelledError creates a cancelled error.
func NewCancelledError(url, operation string) *CrawlError {
	return NewCrawlError(Cancelled, url, operation, "operation cancelled", nil)
}

// Categorize determines the error type from a transport error.
func Categorize(err error, url string) *CrawlError {
	if err == nil {
		return nil
	}

	var crawlErr *CrawlError
	if errors.As(err, &crawlErr) {
		return crawlErr
	}

	if errors.Is(err, context.Canceled) {
		return NewCancelledError(url, "request")
	}

	if isTimeout(err) {
		return NewTimeoutError(url, "request", err)
	}

	if isNetworkError(err) {
		return NewNetworkError(url, "request", err)
	}

	return NewCrawlError(Unknown, url, "request", err.Error(), err)
}

// CategorizeHTTPStatus returns a Status error for any non-2xx code, nil otherwise.
func CategorizeHTTPStatus(statusCode int, url string) *CrawlError {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	return NewStatusError(url, statusCode)
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "dial tcp")
}

// IsRetryable reports whether a fetch should be attempted again.
// Every non-2xx status is retried, as are transport failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var crawlErr *CrawlError
	if errors.As(err, &crawlErr) {
		return crawlErr.Type.IsFetchFailure()
	}

	return isTimeout(err) || isNetworkError(err)
}

// IsConfigError checks if an error is a configuration error.
func IsConfigError(err error) bool {
	return GetErrorType(err) == Config
}

// IsScopeError checks if an error is a scope violation.
func IsScopeError(err error) bool {
	return GetErrorType(err) == Scope
}

// IsFetchError checks if an error came from retrieving a URL.
func IsFetchError(err error) bool {
	return GetErrorType(err).IsFetchFailure()
}

// GetStatusCode extracts the status code from an error.
func GetStatusCode(err error) int {
	var crawlErr *CrawlError
	if errors.As(err, &crawlErr) {
		return crawlErr.StatusCode
	}
	return 0
}

// GetErrorType extracts the error type from an error.
func GetErrorType(err error) ErrorType {
	var crawlErr *CrawlError
	if errors.As(err, &crawlErr) {
		return crawlErr.Type
	}
	return Unknown
}
