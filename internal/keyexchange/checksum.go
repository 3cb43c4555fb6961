package keyexchange

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/redaqt/pdo-go/internal/apierrors"
)

// ChecksumPolicy selects how the response checksum field is treated.
type ChecksumPolicy int

const (
	// ChecksumIgnore keeps the checksum outside the trust boundary. Integrity
	// then rests on request id correlation and transport TLS.
	ChecksumIgnore ChecksumPolicy = iota
	// ChecksumRequire rejects responses whose checksum does not verify.
	ChecksumRequire
)

// ComputeChecksum returns the hex SHA-256 of a response body re-encoded as
// compact JSON with sorted keys and without the checksum member.
func ComputeChecksum(body []byte) (string, error) {
	canonical, err := canonicalJSON(body)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyChecksum checks the checksum member of body.
func VerifyChecksum(body []byte, got string) error {
	want, err := ComputeChecksum(body)
	if err != nil {
		return &apierrors.ResponseError{Reason: "checksum", Err: err}
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return fmt.Errorf("%w: got %q", apierrors.ErrChecksumMismatch, got)
	}
	return nil
}

func canonicalJSON(body []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	delete(doc, "checksum")

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
