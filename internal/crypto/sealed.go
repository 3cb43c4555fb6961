package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"golang.org/x/crypto/hkdf"
)

// SealedKey is a crypto key encrypted to a requester's ML-KEM-768 public key
// and signed by the key service.
type SealedKey struct {
	// V is the protocol version number.
	V int `json:"v"`
	// Algs specifies the cryptographic algorithm suite used.
	Algs AlgorithmSuite `json:"algs"`
	// CtKem is the ML-KEM-768 ciphertext (base64url-encoded).
	CtKem string `json:"ct_kem"`
	// Nonce is the AES-GCM nonce (base64url-encoded).
	Nonce string `json:"nonce"`
	// AAD is the additional authenticated data (base64url-encoded).
	AAD string `json:"aad"`
	// Ciphertext is the AES-GCM encrypted crypto key (base64url-encoded).
	Ciphertext string `json:"ciphertext"`
	// Sig is the ML-DSA-65 signature over the transcript (base64url-encoded).
	Sig string `json:"sig"`
	// ServerSigPk is the service's ML-DSA-65 public key (base64url-encoded).
	ServerSigPk string `json:"server_sig_pk"`
}

// AlgorithmSuite represents the cryptographic algorithm suite.
type AlgorithmSuite struct {
	KEM  string `json:"kem"`
	Sig  string `json:"sig"`
	AEAD string `json:"aead"`
	KDF  string `json:"kdf"`
}

func (a AlgorithmSuite) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", a.KEM, a.Sig, a.AEAD, a.KDF)
}

// SealKey encrypts keyMaterial to recipientPublicKey and signs the result.
// The aad binds the sealed key to its request (the request id).
func SealKey(signer *SigningKey, recipientPublicKey, keyMaterial, aad []byte) (*SealedKey, error) {
	if len(recipientPublicKey) != MLKEMPublicKeySize {
		return nil, ErrInvalidPublicKeySize
	}

	var pubKey mlkem768.PublicKey
	if err := pubKey.Unpack(recipientPublicKey); err != nil {
		return nil, fmt.Errorf("unmarshal public key: %w", err)
	}

	ctKem := make([]byte, MLKEMCiphertextSize)
	sharedSecret := make([]byte, MLKEMSharedKeySize)
	defer Wipe(sharedSecret)
	pubKey.EncapsulateTo(ctKem, sharedSecret, nil)

	aesKey, err := deriveKey(sharedSecret, aad, ctKem)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	defer Wipe(aesKey)

	nonce := make([]byte, AESNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	gcm, err := newGCM(aesKey)
	if err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, nonce, keyMaterial, aad)

	transcript := buildTranscript(SealedKeyVersion, DefaultAlgorithms, ctKem, nonce, aad, ciphertext, signer.PublicKey)
	sig := make([]byte, mldsa65.SignatureSize)
	if err := mldsa65.SignTo(signer.private, transcript, nil, false, sig); err != nil {
		return nil, fmt.Errorf("sign sealed key: %w", err)
	}

	return &SealedKey{
		V:           SealedKeyVersion,
		Algs:        DefaultAlgorithms,
		CtKem:       ToBase64URL(ctKem),
		Nonce:       ToBase64URL(nonce),
		AAD:         ToBase64URL(aad),
		Ciphertext:  ToBase64URL(ciphertext),
		Sig:         ToBase64URL(sig),
		ServerSigPk: signer.PublicKeyB64(),
	}, nil
}

// VerifySealedKey verifies the ML-DSA-65 signature on a sealed key. When
// pinnedServerKey is non-empty the payload's signing key must equal it.
// CRITICAL: This MUST be called BEFORE OpenSealedKey.
func VerifySealedKey(payload *SealedKey, pinnedServerKey []byte) error {
	if payload == nil {
		return ErrInvalidPayload
	}
	if payload.V != SealedKeyVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidPayload, payload.V)
	}
	if payload.Algs != DefaultAlgorithms {
		return fmt.Errorf("%w: %s", ErrInvalidAlgorithm, payload.Algs)
	}

	parts, err := decodeSealedKey(payload)
	if err != nil {
		return err
	}

	if len(pinnedServerKey) > 0 && subtle.ConstantTimeCompare(parts.serverSigPk, pinnedServerKey) != 1 {
		return ErrServerKeyMismatch
	}

	transcript := buildTranscript(payload.V, payload.Algs, parts.ctKem, parts.nonce, parts.aad, parts.ciphertext, parts.serverSigPk)

	var pubKey mldsa65.PublicKey
	if err := pubKey.UnmarshalBinary(parts.serverSigPk); err != nil {
		return fmt.Errorf("unmarshal public key: %w", err)
	}

	if !mldsa65.Verify(&pubKey, transcript, nil, parts.sig) {
		return ErrSignatureVerificationFailed
	}

	return nil
}

// OpenSealedKey decrypts a sealed key with the requester's keypair.
//
// The process:
//  1. ML-KEM-768 decapsulation to recover the shared secret
//  2. HKDF-SHA-512 key derivation using the shared secret, AAD, and KEM ciphertext
//  3. AES-256-GCM decryption of the key material
//
// Security: This function does NOT verify signatures. Callers MUST call
// [VerifySealedKey] first.
func OpenSealedKey(payload *SealedKey, keypair *Keypair) ([]byte, error) {
	parts, err := decodeSealedKey(payload)
	if err != nil {
		return nil, err
	}

	sharedSecret, err := keypair.Decapsulate(parts.ctKem)
	if err != nil {
		return nil, fmt.Errorf("decapsulate: %w", err)
	}
	defer Wipe(sharedSecret)

	aesKey, err := deriveKey(sharedSecret, parts.aad, parts.ctKem)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	defer Wipe(aesKey)

	plaintext, err := decryptAESGCM(aesKey, parts.nonce, parts.aad, parts.ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}

	return plaintext, nil
}

type sealedParts struct {
	ctKem, nonce, aad, ciphertext, sig, serverSigPk []byte
}

func decodeSealedKey(payload *SealedKey) (*sealedParts, error) {
	var p sealedParts
	fields := []struct {
		name string
		in   string
		out  *[]byte
	}{
		{"ct_kem", payload.CtKem, &p.ctKem},
		{"nonce", payload.Nonce, &p.nonce},
		{"aad", payload.AAD, &p.aad},
		{"ciphertext", payload.Ciphertext, &p.ciphertext},
		{"sig", payload.Sig, &p.sig},
		{"server_sig_pk", payload.ServerSigPk, &p.serverSigPk},
	}
	for _, f := range fields {
		b, err := FromBase64URL(f.in)
		if err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidPayload, f.name, err)
		}
		*f.out = b
	}

	if len(p.ctKem) != MLKEMCiphertextSize {
		return nil, fmt.Errorf("%w: ct_kem", ErrInvalidCiphertextSize)
	}
	if len(p.nonce) != AESNonceSize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidNonceSize, len(p.nonce), AESNonceSize)
	}
	if len(p.serverSigPk) != MLDSAPublicKeySize {
		return nil, fmt.Errorf("%w: server_sig_pk", ErrInvalidPublicKeySize)
	}
	return &p, nil
}

// buildTranscript constructs the signature transcript.
func buildTranscript(version int, algs AlgorithmSuite, ctKem, nonce, aad, ciphertext, serverSigPk []byte) []byte {
	transcript := []byte{byte(version)}
	transcript = append(transcript, []byte(algs.String())...)
	transcript = append(transcript, []byte(HKDFContext)...)
	transcript = append(transcript, ctKem...)
	transcript = append(transcript, nonce...)
	transcript = append(transcript, aad...)
	transcript = append(transcript, ciphertext...)
	transcript = append(transcript, serverSigPk...)
	return transcript
}

// deriveKey performs HKDF-SHA-512 key derivation for sealed keys.
//
// The key derivation uses:
//   - IKM (input key material): the KEM shared secret
//   - Salt: SHA-256 hash of the KEM ciphertext
//   - Info: context string || AAD length (4 bytes BE) || AAD
func deriveKey(sharedSecret, aad, ctKem []byte) ([]byte, error) {
	saltHash := sha256.Sum256(ctKem)

	contextBytes := []byte(HKDFContext)
	aadLength := make([]byte, 4)
	binary.BigEndian.PutUint32(aadLength, uint32(len(aad)))

	info := make([]byte, 0, len(contextBytes)+4+len(aad))
	info = append(info, contextBytes...)
	info = append(info, aadLength...)
	info = append(info, aad...)

	reader := hkdf.New(sha512.New, sharedSecret, saltHash[:], info)
	key := make([]byte, AESKeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}

	return key, nil
}
