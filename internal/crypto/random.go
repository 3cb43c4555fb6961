package crypto

import (
	"crypto/rand"
	"fmt"
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// RandomString returns n characters drawn uniformly from [A-Za-z0-9] using
// crypto/rand. Non-positive n yields a single character.
func RandomString(n int) (string, error) {
	if n <= 0 {
		n = 1
	}

	// 248 is the largest multiple of 62 below 256; bytes above it are rejected
	// so every character is equally likely.
	const limit = 248
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("random string: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, alphanumeric[int(b)%len(alphanumeric)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
