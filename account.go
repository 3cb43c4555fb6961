package pdo

import (
	"fmt"
	"strings"

	"github.com/redaqt/pdo-go/internal/crypto"
	"github.com/redaqt/pdo-go/internal/keyexchange"
	"github.com/redaqt/pdo-go/internal/policy"
)

// Account is the user profile an operation runs for.
type Account struct {
	APIKey          string
	GrantToken      string
	GrantExpiration string // YYYY-MM-DD
	Alias           string
	Email           string
}

func (a Account) credentials() keyexchange.Credentials {
	return keyexchange.Credentials{
		APIKey:          a.APIKey,
		GrantToken:      a.GrantToken,
		GrantExpiration: a.GrantExpiration,
	}
}

func (a Account) identity() policy.Identity {
	return policy.Identity{Alias: a.Alias, Email: a.Email}
}

// CryptoConfig names the algorithms recorded in carrier metadata.
type CryptoConfig struct {
	Algorithm     string
	KeyLength     int
	Mode          string
	HashAlgorithm string
}

// DefaultCrypto is the only configuration the engine implements.
var DefaultCrypto = CryptoConfig{
	Algorithm:     "AES",
	KeyLength:     256,
	Mode:          crypto.ModeAES256GCM,
	HashAlgorithm: "SHA-512",
}

func (c CryptoConfig) validate() error {
	if !strings.EqualFold(c.Algorithm, "AES") || c.KeyLength != 256 {
		return fmt.Errorf("unsupported algorithm %s-%d", c.Algorithm, c.KeyLength)
	}
	if _, _, err := crypto.GenerateIV(c.Mode); err != nil {
		return err
	}
	switch strings.ToUpper(strings.ReplaceAll(c.HashAlgorithm, "-", "")) {
	case "SHA512":
		return nil
	}
	return fmt.Errorf("unsupported hash algorithm %q", c.HashAlgorithm)
}

// ProductInfo describes the product stamped on carriers.
type ProductInfo struct {
	Name      string
	Service   string
	Version   string
	Author    string
	Copyright string
	Extension string
}

// DefaultProduct is the RedaQt product descriptor.
var DefaultProduct = ProductInfo{
	Name:      "RedaQt",
	Service:   "PDO",
	Version:   "1.0.0",
	Author:    "Arcane Cyber, LLC",
	Copyright: "Copyright 2025 Arcane Cyber, LLC",
	Extension: "pdf",
}

// Banner is the text shown on the carrier page.
func (p ProductInfo) Banner() string {
	return fmt.Sprintf("Protected by %s %s %s", p.Name, p.Service, p.Version)
}

// Protocol names a smart policy mode.
type Protocol = policy.Protocol

// Smart policy protocols.
const (
	NoPolicy        = policy.NoPolicy
	LockToUser      = policy.LockToUser
	DoNotOpenBefore = policy.DoNotOpenBefore
	DoNotOpenAfter  = policy.DoNotOpenAfter
	OpenWithKeyword = policy.OpenWithKeyword
	OpenWithPIN     = policy.OpenWithPIN
	LockToDevice    = policy.LockToDevice
)

// ReceiptResource is the channel a receipt is delivered through.
type ReceiptResource = policy.ResourceKind

// Receipt channels.
const (
	ReceiptNone    = policy.ResourceNone
	ReceiptMessage = policy.ResourceMessage
	ReceiptEmail   = policy.ResourceEmail
	ReceiptSMS     = policy.ResourceSMS
	ReceiptDevice  = policy.ResourceDevice
)

// ReceiptTiming selects when receipts are sent.
type ReceiptTiming = policy.ReceiptTiming

// ReceiptSettings selects if, when and how the owner is notified of access.
type ReceiptSettings struct {
	Timing   ReceiptTiming
	Resource ReceiptResource
}

// Policy is a decrypted smart policy block.
type Policy = policy.Block

// PolicyItem is one rule of a smart policy.
type PolicyItem = policy.Item

// Certificate is a structured certificate.
type Certificate = keyexchange.Certificate

// Settings are the user's protect defaults.
type Settings struct {
	// DefaultPolicy applies when a request names none.
	DefaultPolicy Protocol
	// CertificateImage is the image a certificate is hidden in.
	// DefaultImage is tried when it is unset or missing.
	CertificateImage string
	DefaultImage     string
	// RequestCertificate asks the key service for a certificate.
	RequestCertificate bool
	// Receipt applies when a request sets no receipt.
	Receipt ReceiptSettings
}

// Config is the engine configuration.
type Config struct {
	Product  ProductInfo
	Crypto   CryptoConfig
	Settings Settings

	// Key service endpoints. The production endpoints are used when empty.
	EncryptURL string
	DecryptURL string
}
