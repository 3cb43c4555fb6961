package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redaqt/pdo-go/internal/crypto"
)

// IDLength is the length of a block id.
const IDLength = 256

var (
	// ErrFingerprintSet is returned when a fingerprint is written twice.
	ErrFingerprintSet = errors.New("fingerprint already set")

	// ErrFingerprintOrder is returned when fingerprints are set out of order.
	// The order is certificate, audit, pdo.
	ErrFingerprintOrder = errors.New("fingerprints must be set in order certificate, audit, pdo")
)

// Block is the smart policy block of one protect operation. It is only ever
// persisted encrypted.
type Block struct {
	ID       string      `json:"id"`
	DateTime string      `json:"date_time"`
	Service  ServiceForm `json:"service"`
	Policy   []Item      `json:"policy"`
	Receipt  Receipt     `json:"receipt"`

	CertificateFingerprint *string `json:"certificate_fingerprint"`
	PDOFingerprint         *string `json:"pdo_fingerprint"`
	AuditFingerprint       *string `json:"audit_fingerprint"`
}

// NewBlock creates a block with a fresh 256-character id.
func NewBlock(items []Item, receipt Receipt, now time.Time) (*Block, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: policy list is empty", ErrInvalidPolicy)
	}
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return nil, err
		}
	}

	id, err := crypto.RandomString(IDLength)
	if err != nil {
		return nil, err
	}

	if receipt.Target == nil {
		receipt.Target = []string{}
	}

	return &Block{
		ID:       id,
		DateTime: now.Format(time.RFC3339Nano),
		Service:  DefaultServiceForm,
		Policy:   append([]Item(nil), items...),
		Receipt:  receipt,
	}, nil
}

// Signature is the SHA-512 hex digest of the block id, stored in carrier
// metadata so the block can be matched after decryption.
func (b *Block) Signature() string {
	return crypto.SHA512Hex([]byte(b.ID))
}

// SetCertificateFingerprint records the certificate fingerprint.
func (b *Block) SetCertificateFingerprint(fp string) error {
	if b.CertificateFingerprint != nil {
		return fmt.Errorf("certificate %w", ErrFingerprintSet)
	}
	b.CertificateFingerprint = ptr(fp)
	return nil
}

// SetAuditFingerprint records the audit fingerprint. The certificate
// fingerprint must already be set.
func (b *Block) SetAuditFingerprint(fp string) error {
	if b.AuditFingerprint != nil {
		return fmt.Errorf("audit %w", ErrFingerprintSet)
	}
	if b.CertificateFingerprint == nil {
		return ErrFingerprintOrder
	}
	b.AuditFingerprint = ptr(fp)
	return nil
}

// SetPDOFingerprint records the fingerprint of the encrypted payload. The
// audit fingerprint must already be set.
func (b *Block) SetPDOFingerprint(fp string) error {
	if b.PDOFingerprint != nil {
		return fmt.Errorf("pdo %w", ErrFingerprintSet)
	}
	if b.AuditFingerprint == nil {
		return ErrFingerprintOrder
	}
	b.PDOFingerprint = ptr(fp)
	return nil
}

// Complete reports whether all three fingerprints are set.
func (b *Block) Complete() bool {
	return b.CertificateFingerprint != nil && b.AuditFingerprint != nil && b.PDOFingerprint != nil
}

// Protocol returns the protocol of the first policy item.
func (b *Block) Protocol() Protocol {
	if len(b.Policy) == 0 {
		return ""
	}
	return b.Policy[0].Protocol
}

// Marshal encodes the block as JSON.
func (b *Block) Marshal() ([]byte, error) {
	return json.Marshal(b)
}

// Parse decodes a block and checks that it carries at least one valid item.
func Parse(data []byte) (*Block, error) {
	var b Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if b.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidPolicy)
	}
	if len(b.Policy) == 0 {
		return nil, fmt.Errorf("%w: policy list is empty", ErrInvalidPolicy)
	}
	for _, it := range b.Policy {
		if err := it.Validate(); err != nil {
			return nil, err
		}
	}
	return &b, nil
}
