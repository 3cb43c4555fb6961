package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// decryptAESGCM decrypts data using AES-256-GCM.
func decryptAESGCM(key, nonce, aad, ciphertext []byte) ([]byte, error) {
	if len(key) != AESKeySize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidKeySize, len(key), AESKeySize)
	}

	if len(nonce) != AESNonceSize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidNonceSize, len(nonce), AESNonceSize)
	}

	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

// DecryptAES decrypts data using AES-256-GCM.
// The ciphertext format is: nonce (12 bytes) || ciphertext || tag (16 bytes)
func DecryptAES(key, ciphertext []byte) ([]byte, error) {
	if len(key) != AESKeySize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidKeySize, len(key), AESKeySize)
	}

	if len(ciphertext) < AESNonceSize+AESTagSize {
		return nil, ErrCiphertextTooShort
	}

	nonce := ciphertext[:AESNonceSize]
	ciphertextWithTag := ciphertext[AESNonceSize:]

	return decryptAESGCM(key, nonce, nil, ciphertextWithTag)
}

// EncryptAES encrypts data using AES-256-GCM.
// Returns: nonce (12 bytes) || ciphertext || tag (16 bytes)
func EncryptAES(key, plaintext, nonce []byte) ([]byte, error) {
	if len(key) != AESKeySize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidKeySize, len(key), AESKeySize)
	}

	if len(nonce) != AESNonceSize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidNonceSize, len(nonce), AESNonceSize)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, AESNonceSize, AESNonceSize+len(plaintext)+AESTagSize)
	copy(out, nonce)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// EncryptObject encrypts plaintext under SHA-256(key) with a fresh random
// nonce and returns the standard base64 encoding of nonce || ciphertext || tag.
func EncryptObject(key, plaintext []byte) (string, error) {
	aesKey := DeriveAESKey(key)
	defer Wipe(aesKey)

	nonce := make([]byte, AESNonceSize)
	defer Wipe(nonce)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed, err := EncryptAES(aesKey, plaintext, nonce)
	if err != nil {
		return "", err
	}
	return ToBase64(sealed), nil
}

// DecryptObject reverses EncryptObject. Any tampering yields ErrDecryptionFailed.
func DecryptObject(key []byte, ciphertextB64 string) ([]byte, error) {
	sealed, err := FromBase64(ciphertextB64)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext is not base64", ErrDecryptionFailed)
	}

	aesKey := DeriveAESKey(key)
	defer Wipe(aesKey)

	plaintext, err := DecryptAES(aesKey, sealed)
	if err != nil {
		if errors.Is(err, ErrCiphertextTooShort) {
			return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
		}
		return nil, err
	}
	return plaintext, nil
}
