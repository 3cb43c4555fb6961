package crypto

import (
	"errors"

	"github.com/redaqt/pdo-go/internal/apierrors"
)

var (
	// ErrInvalidSecretKeySize is returned when the secret key size is invalid.
	ErrInvalidSecretKeySize = errors.New("invalid secret key size")

	// ErrInvalidPublicKeySize is returned when the public key size is invalid.
	ErrInvalidPublicKeySize = errors.New("invalid public key size")

	// ErrInvalidCiphertextSize is returned when the ciphertext size is invalid.
	ErrInvalidCiphertextSize = errors.New("invalid ciphertext size")

	// ErrSignatureVerificationFailed is returned when signature verification fails.
	ErrSignatureVerificationFailed = errors.New("signature verification failed")

	// ErrServerKeyMismatch is returned when a sealed key was signed by a
	// server key other than the pinned one.
	ErrServerKeyMismatch = errors.New("server public key mismatch: payload key differs from pinned key")

	// ErrDecryptionFailed is returned when authenticated decryption fails.
	// It matches the engine-wide sentinel so callers need only one check.
	ErrDecryptionFailed = apierrors.ErrDecryptionFailed

	// ErrInvalidKeySize is returned when the AES key size is invalid.
	ErrInvalidKeySize = errors.New("invalid key size")

	// ErrInvalidNonceSize is returned when the nonce size is invalid.
	ErrInvalidNonceSize = errors.New("invalid nonce size")

	// ErrCiphertextTooShort is returned when a payload cannot hold a nonce and a tag.
	ErrCiphertextTooShort = errors.New("ciphertext too short")

	// ErrMessageTooLarge is returned for files longer than MaxGCMMessageSize.
	ErrMessageTooLarge = errors.New("message too large for AES-GCM")

	// ErrUnsupportedMode is returned by GenerateIV for modes other than AES-256-GCM.
	ErrUnsupportedMode = errors.New("unsupported encryption mode")

	// ErrInvalidPayload is returned when the sealed key structure is invalid.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrInvalidAlgorithm is returned when a sealed key names an
	// unsupported algorithm suite.
	ErrInvalidAlgorithm = errors.New("invalid algorithm")
)
