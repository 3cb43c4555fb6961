package crypto

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// GenerateIV returns a fresh random IV for the given encryption mode, both
// base64-encoded (as stored in carrier metadata) and raw.
func GenerateIV(mode string) (string, []byte, error) {
	size, err := ivSize(mode)
	if err != nil {
		return "", nil, err
	}

	iv := make([]byte, size)
	if _, err := rand.Read(iv); err != nil {
		return "", nil, fmt.Errorf("generate iv: %w", err)
	}
	return ToBase64(iv), iv, nil
}

func ivSize(mode string) (int, error) {
	normalized := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToUpper(mode))
	switch normalized {
	case "AES256GCM", "GCM":
		return AESNonceSize, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedMode, mode)
}
