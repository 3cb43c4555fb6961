package crypto

import "encoding/base64"

// ToBase64URL encodes bytes to URL-safe base64 without padding.
// Used for sealed key fields.
func ToBase64URL(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// FromBase64URL decodes URL-safe base64 without padding.
func FromBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

// ToBase64 encodes bytes to standard base64 with padding.
// Used for object ciphertexts and IVs stored in carrier metadata.
func ToBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// FromBase64 decodes standard base64 (with padding) to bytes.
func FromBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
