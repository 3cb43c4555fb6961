package crypto

import (
	"io"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
)

// randReader is the random source used for key generation.
// It defaults to nil (which uses crypto/rand) but can be overridden for testing.
var randReader io.Reader

// Keypair is a per-request ML-KEM-768 keypair. The public half is sent with a
// key request; the secret half opens the sealed key in the response and is
// wiped afterwards.
type Keypair struct {
	// PublicKey is the raw ML-KEM-768 public key bytes.
	PublicKey []byte
	// SecretKey is the raw ML-KEM-768 secret key bytes.
	SecretKey []byte
	// PublicKeyB64 is the public key encoded as URL-safe base64.
	PublicKeyB64 string
}

// GenerateKeypair creates a new ML-KEM-768 keypair.
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := mlkem768.GenerateKeyPair(randReader)
	if err != nil {
		return nil, err
	}

	// MarshalBinary never fails for valid keys from GenerateKeyPair
	pubBytes, _ := pub.MarshalBinary()
	privBytes, _ := priv.MarshalBinary()

	return &Keypair{
		PublicKey:    pubBytes,
		SecretKey:    privBytes,
		PublicKeyB64: ToBase64URL(pubBytes),
	}, nil
}

// KeypairFromSecretKey reconstructs a keypair from the secret key.
// The public key is embedded in the secret key at offset 1152.
func KeypairFromSecretKey(secretKey []byte) (*Keypair, error) {
	if len(secretKey) != MLKEMSecretKeySize {
		return nil, ErrInvalidSecretKeySize
	}

	publicKey := make([]byte, MLKEMPublicKeySize)
	copy(publicKey, secretKey[PublicKeyOffset:PublicKeyOffset+MLKEMPublicKeySize])

	return &Keypair{
		PublicKey:    publicKey,
		SecretKey:    secretKey,
		PublicKeyB64: ToBase64URL(publicKey),
	}, nil
}

// Decapsulate decapsulates a shared secret from the encapsulated key.
func (k *Keypair) Decapsulate(encapsulatedKey []byte) ([]byte, error) {
	if len(encapsulatedKey) != MLKEMCiphertextSize {
		return nil, ErrInvalidCiphertextSize
	}

	var privKey mlkem768.PrivateKey
	if err := privKey.Unpack(k.SecretKey); err != nil {
		return nil, err
	}

	sharedSecret := make([]byte, MLKEMSharedKeySize)
	privKey.DecapsulateTo(sharedSecret, encapsulatedKey)

	return sharedSecret, nil
}

// Wipe zeroes the secret key.
func (k *Keypair) Wipe() {
	if k != nil {
		Wipe(k.SecretKey)
	}
}

// SigningKey is a key service's ML-DSA-65 identity used to sign sealed keys.
type SigningKey struct {
	private *mldsa65.PrivateKey
	// PublicKey is the raw ML-DSA-65 public key, suitable for pinning.
	PublicKey []byte
}

// GenerateSigningKey creates a new ML-DSA-65 signing key.
func GenerateSigningKey() (*SigningKey, error) {
	pub, priv, err := mldsa65.GenerateKey(randReader)
	if err != nil {
		return nil, err
	}
	pubBytes, err := pub.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &SigningKey{private: priv, PublicKey: pubBytes}, nil
}

// PublicKeyB64 returns the public key as URL-safe base64.
func (s *SigningKey) PublicKeyB64() string {
	return ToBase64URL(s.PublicKey)
}
