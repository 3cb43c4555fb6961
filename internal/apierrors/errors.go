// Package apierrors provides shared error types for the PDO engine.
package apierrors

import (
	"errors"
	"fmt"
	"os"
)

// Sentinel errors for errors.Is() checks
var (
	// ErrMissingAPIKey is returned when no API key is provided.
	ErrMissingAPIKey = errors.New("API key is required")

	// ErrUnauthorized is returned when the key service rejects the API key.
	ErrUnauthorized = errors.New("invalid or expired API key")

	// ErrFileNotFound is returned when a source or carrier file does not exist.
	ErrFileNotFound = errors.New("file does not exist")

	// ErrPermissionDenied is returned when the OS denies access to a file or directory.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrOSWriteFailure is returned for any other file system failure.
	ErrOSWriteFailure = errors.New("OS error writing file to system")

	// ErrNetworkUnavailable covers timeouts, refused connections and redirect loops.
	ErrNetworkUnavailable = errors.New("network error occurred")

	// ErrTLSFailure is returned when the TLS handshake or certificate verification fails.
	ErrTLSFailure = errors.New("SSL error; certificate verify failed")

	// ErrHTTPStatus is returned when the key service answers with a non-2xx status.
	ErrHTTPStatus = errors.New("HTTP error occurred")

	// ErrMalformedResponse is returned when the key service response cannot be decoded.
	ErrMalformedResponse = errors.New("invalid response from service")

	// ErrRequestIDMismatch is returned when a response does not correlate with its request.
	ErrRequestIDMismatch = errors.New("an error was encountered processing request")

	// ErrChecksumMismatch is returned when a required response checksum does not verify.
	ErrChecksumMismatch = errors.New("response checksum mismatch")

	// ErrServiceError is returned when the key service reports error=true.
	ErrServiceError = errors.New("key service reported an error")

	// ErrKeyMissing is returned when the key service returns no crypto key.
	ErrKeyMissing = errors.New("no crypto key was returned by the service")

	// ErrDecryptionFailed is returned when authenticated decryption fails.
	ErrDecryptionFailed = errors.New("decryption failed: authentication tag mismatch")

	// ErrCodecCapacityExceeded is returned when a certificate does not fit the carrier image.
	ErrCodecCapacityExceeded = errors.New("image is too small to embed certificate")

	// ErrUnsupportedImageFormat is returned for unreadable or non-RGB images.
	ErrUnsupportedImageFormat = errors.New("unsupported image format")

	// ErrInvalidPolicy is returned when a smart policy cannot be built from the given input.
	ErrInvalidPolicy = errors.New("invalid smart policy")

	// ErrFingerprintMismatch is returned when a stored fingerprint does not match its artifact.
	ErrFingerprintMismatch = errors.New("fingerprint mismatch")

	// ErrNoProtectedData is returned when a carrier holds no protected payload or metadata.
	ErrNoProtectedData = errors.New("file does not contain protected file information")
)

// APIError represents a non-2xx HTTP answer from the key service.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		if e.Message != "" {
			return fmt.Sprintf("HTTP error %d: %s (request_id: %s)", e.StatusCode, e.Message, e.RequestID)
		}
		return fmt.Sprintf("HTTP error %d (request_id: %s)", e.StatusCode, e.RequestID)
	}
	if e.Message != "" {
		return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("HTTP error %d", e.StatusCode)
}

// Is implements errors.Is for sentinel error matching.
func (e *APIError) Is(target error) bool {
	if target == ErrHTTPStatus {
		return true
	}
	switch e.StatusCode {
	case 401, 403:
		return target == ErrUnauthorized
	}
	return false
}

// NetworkError represents a network-level failure.
type NetworkError struct {
	Err error
	URL string
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *NetworkError) Is(target error) bool {
	return target == ErrNetworkUnavailable
}

// TLSError represents a TLS handshake or certificate verification failure.
type TLSError struct {
	Err error
	URL string
}

func (e *TLSError) Error() string {
	return fmt.Sprintf("SSL error; certificate verify failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *TLSError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *TLSError) Is(target error) bool {
	return target == ErrTLSFailure
}

// ResponseError indicates a response body that could not be decoded.
type ResponseError struct {
	Reason string
	Err    error
}

func (e *ResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid response from service: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid response from service: %s", e.Reason)
}

// Unwrap returns the underlying error.
func (e *ResponseError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *ResponseError) Is(target error) bool {
	return target == ErrMalformedResponse
}

// ServiceError carries a response whose error flag was set. Its message is
// the service's status_message, verbatim.
type ServiceError struct {
	StatusType string
	StatusCode int
	Message    string
	RequestID  string
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("key service error %d", e.StatusCode)
}

// Is implements errors.Is for sentinel error matching.
func (e *ServiceError) Is(target error) bool {
	return target == ErrServiceError
}

// MismatchError indicates a response whose management.request_id differs
// from the id that was sent.
type MismatchError struct {
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return ErrRequestIDMismatch.Error()
}

// Is implements errors.Is for sentinel error matching.
func (e *MismatchError) Is(target error) bool {
	return target == ErrRequestIDMismatch
}

// FileError represents a file system failure classified into one of
// ErrFileNotFound, ErrPermissionDenied or ErrOSWriteFailure.
type FileError struct {
	Op   string
	Path string
	Kind error
	Err  error
}

func (e *FileError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s %s", e.Kind, e.Op, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Op)
}

// Unwrap returns the underlying error.
func (e *FileError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *FileError) Is(target error) bool {
	return target == e.Kind
}

// NewFileError classifies a file system error. A nil err yields nil.
func NewFileError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FileError
	if errors.As(err, &fe) {
		return err
	}
	kind := ErrOSWriteFailure
	switch {
	case errors.Is(err, os.ErrNotExist):
		kind = ErrFileNotFound
	case errors.Is(err, os.ErrPermission):
		kind = ErrPermissionDenied
	}
	return &FileError{Op: op, Path: path, Kind: kind, Err: err}
}
