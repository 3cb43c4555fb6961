package pdo

import (
	"errors"
	"fmt"

	"github.com/redaqt/pdo-go/internal/apierrors"
	"github.com/redaqt/pdo-go/internal/crypto"
)

// Sentinel errors for errors.Is() checks
var (
	// ErrMissingAPIKey is returned when the account has no API key.
	ErrMissingAPIKey = apierrors.ErrMissingAPIKey

	// ErrUnauthorized is returned when the key service rejects the API key.
	ErrUnauthorized = apierrors.ErrUnauthorized

	// ErrFileNotFound is returned when a source or carrier file does not exist.
	ErrFileNotFound = apierrors.ErrFileNotFound

	// ErrPermissionDenied is returned when the OS denies access to a file.
	ErrPermissionDenied = apierrors.ErrPermissionDenied

	// ErrOSWriteFailure is returned for other file system failures.
	ErrOSWriteFailure = apierrors.ErrOSWriteFailure

	// ErrNetworkUnavailable covers timeouts, refused connections and redirect loops.
	ErrNetworkUnavailable = apierrors.ErrNetworkUnavailable

	// ErrTLSFailure is returned when the TLS handshake or certificate check fails.
	ErrTLSFailure = apierrors.ErrTLSFailure

	// ErrHTTPStatus is returned when the key service answers with a non-2xx status.
	ErrHTTPStatus = apierrors.ErrHTTPStatus

	// ErrMalformedResponse is returned when a key service response cannot be used.
	ErrMalformedResponse = apierrors.ErrMalformedResponse

	// ErrRequestIDMismatch is returned when a response belongs to another request.
	ErrRequestIDMismatch = apierrors.ErrRequestIDMismatch

	// ErrChecksumMismatch is returned when a required response checksum fails.
	ErrChecksumMismatch = apierrors.ErrChecksumMismatch

	// ErrServiceError is returned when the key service reports error=true.
	ErrServiceError = apierrors.ErrServiceError

	// ErrKeyMissing is returned when the key service returns no crypto key.
	ErrKeyMissing = apierrors.ErrKeyMissing

	// ErrDecryptionFailed is returned when an authentication tag does not match.
	ErrDecryptionFailed = apierrors.ErrDecryptionFailed

	// ErrCodecCapacityExceeded is returned when a certificate does not fit the image.
	ErrCodecCapacityExceeded = apierrors.ErrCodecCapacityExceeded

	// ErrUnsupportedImageFormat is returned for unreadable or grayscale images.
	ErrUnsupportedImageFormat = apierrors.ErrUnsupportedImageFormat

	// ErrInvalidPolicy is returned when a smart policy cannot be built or read.
	ErrInvalidPolicy = apierrors.ErrInvalidPolicy

	// ErrFingerprintMismatch is returned when a carrier artifact was altered.
	ErrFingerprintMismatch = apierrors.ErrFingerprintMismatch

	// ErrNoProtectedData is returned for files that are not carriers.
	ErrNoProtectedData = apierrors.ErrNoProtectedData

	// ErrServerKeyMismatch is returned when a sealed key was signed by a
	// server key other than the pinned one.
	ErrServerKeyMismatch = crypto.ErrServerKeyMismatch

	// ErrNoFiles is returned by Protect when the request names no files.
	ErrNoFiles = errors.New("no files to protect")
)

// Error types shared with the key exchange and container layers.
type (
	// APIError represents a non-2xx answer from the key service.
	APIError = apierrors.APIError
	// NetworkError represents a network-level failure.
	NetworkError = apierrors.NetworkError
	// TLSError represents a TLS failure.
	TLSError = apierrors.TLSError
	// ResponseError represents a response that could not be decoded or trusted.
	ResponseError = apierrors.ResponseError
	// ServiceError carries the status_message of a response with error=true.
	ServiceError = apierrors.ServiceError
	// MismatchError represents a response for another request id.
	MismatchError = apierrors.MismatchError
	// FileError represents a classified file system failure.
	FileError = apierrors.FileError
)

// FingerprintError names the carrier artifact whose fingerprint did not
// match the one recorded in the smart policy block.
type FingerprintError struct {
	Artifact string // "certificate", "audit", "pdo" or "signature"
}

func (e *FingerprintError) Error() string {
	return fmt.Sprintf("fingerprint mismatch: %s", e.Artifact)
}

// Is implements errors.Is for sentinel error matching.
func (e *FingerprintError) Is(target error) bool {
	return target == ErrFingerprintMismatch
}

// outcome maps an operation error to a metrics label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrServiceError):
		return "service_error"
	case errors.Is(err, ErrNetworkUnavailable), errors.Is(err, ErrTLSFailure):
		return "network"
	case errors.Is(err, ErrHTTPStatus), errors.Is(err, ErrMalformedResponse),
		errors.Is(err, ErrRequestIDMismatch), errors.Is(err, ErrChecksumMismatch),
		errors.Is(err, ErrKeyMissing):
		return "key_exchange"
	case errors.Is(err, ErrFileNotFound), errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrOSWriteFailure):
		return "file"
	case errors.Is(err, ErrInvalidPolicy):
		return "policy"
	case errors.Is(err, ErrDecryptionFailed):
		return "decryption"
	case errors.Is(err, ErrFingerprintMismatch):
		return "fingerprint"
	case errors.Is(err, ErrNoProtectedData):
		return "not_carrier"
	}
	return "error"
}
