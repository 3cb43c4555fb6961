package crypto

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// DeriveAESKey returns SHA-256(key). The key material issued by the key
// service is treated as high entropy already, so no stretching is applied.
// The caller owns the returned slice and should Wipe it.
func DeriveAESKey(key []byte) []byte {
	sum := sha256.Sum256(key)
	out := make([]byte, AESKeySize)
	copy(out, sum[:])
	clear(sum[:])
	return out
}

// SHA256Hex returns the lower-case hex SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SHA512Hex returns the lower-case hex SHA-512 digest of data.
func SHA512Hex(data []byte) string {
	sum := sha512.Sum512(data)
	return hex.EncodeToString(sum[:])
}

// HashFileSHA512 streams the file at path through SHA-512.
func HashFileSHA512(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha512.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
