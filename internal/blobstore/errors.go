package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"syscall"

	"github.com/aws/smithy-go"
)

// Sentinel kinds for classifying storage failures. Use errors.Is against a
// *StorageError to test for one.
var (
	ErrNotFound     = errors.New("object not found")
	ErrTimeout      = errors.New("operation timed out")
	ErrThrottled    = errors.New("rate limited")
	ErrAuth         = errors.New("authentication failed")
	ErrAccessDenied = errors.New("access denied")
	ErrNetwork      = errors.New("network error")
	ErrUnavailable  = errors.New("backend unavailable")
	ErrInvalidKey   = errors.New("invalid key")
)

// StorageError wraps a backend error with its classification.
type StorageError struct {
	Kind error
	Op   string
	Key  string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Key, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is matches the classification kind as well as the wrapped chain.
func (e *StorageError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// WrapError classifies err for operation op on key. It returns nil for a nil
// err and leaves already-classified errors untouched.
func WrapError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var existing *StorageError
	if errors.As(err, &existing) {
		return err
	}
	return &StorageError{Kind: classify(err), Op: op, Key: key, Err: err}
}

// Reason renders a short caller-facing summary of a storage failure.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var se *StorageError
	if errors.As(err, &se) && se.Kind != nil {
		return "storage error: " + se.Kind.Error()
	}
	return "storage error: " + classify(err).Error()
}

// Retryable reports whether a failed operation may succeed when repeated.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	for _, permanent := range []error{ErrNotFound, ErrAuth, ErrAccessDenied, ErrInvalidKey} {
		if errors.Is(err, permanent) {
			return false
		}
	}
	return true
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if errors.Is(err, fs.ErrPermission) {
		return ErrAccessDenied
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return ErrNotFound
		case "SlowDown", "Throttling", "ThrottlingException", "RequestLimitExceeded", "TooManyRequests":
			return ErrThrottled
		case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "InvalidToken":
			return ErrAuth
		case "AccessDenied", "Forbidden", "AllAccessDisabled":
			return ErrAccessDenied
		case "RequestTimeout", "RequestTimeTooSkewed":
			return ErrTimeout
		case "ServiceUnavailable", "InternalError", "InternalServerError":
			return ErrUnavailable
		}
	}

	var statusErr interface{ HTTPStatusCode() int }
	if errors.As(err, &statusErr) {
		if kind := kindForStatus(statusErr.HTTPStatusCode()); kind != nil {
			return kind
		}
	}

	for _, errno := range []error{syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ENETUNREACH, syscall.EHOSTUNREACH, syscall.EPIPE} {
		if errors.Is(err, errno) {
			return ErrNetwork
		}
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrTimeout
		}
		return ErrNetwork
	}
	return ErrUnavailable
}

// kindForStatus maps an HTTP response status from a typed SDK error.
func kindForStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return ErrAuth
	case status == http.StatusForbidden:
		return ErrAccessDenied
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusRequestTimeout:
		return ErrTimeout
	case status == http.StatusTooManyRequests:
		return ErrThrottled
	case status >= 500:
		return ErrUnavailable
	default:
		return nil
	}
}
