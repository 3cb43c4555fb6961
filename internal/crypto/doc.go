// Package crypto provides the cryptographic primitives of the PDO engine.
//
// # Objects and files
//
// Objects (policy blocks, audit notes, certificates, file names) are sealed
// with AES-256-GCM under SHA-256 of the key material issued by the key service.
// Each call draws a fresh 96-bit nonce; the wire format is
// nonce (12 bytes) || ciphertext || tag (16 bytes), standard base64 encoded.
//
// Files use the same layout as raw bytes. [EncryptFile] and [DecryptFile]
// stream in [FileChunkSize] pieces through an incremental GCM that produces
// output identical to a one-shot seal. Decryption is two-pass: the whole
// ciphertext is authenticated before any plaintext is written, and the
// output only appears on disk after a second verification succeeds.
//
// All derived keys and nonce copies are zeroed with [Wipe] on every exit path.
//
// # Sealed keys
//
// A key request may carry a per-request ML-KEM-768 public key. The service
// then returns the crypto key as a [SealedKey]: encapsulated with ML-KEM-768,
// derived with HKDF-SHA-512, encrypted with AES-256-GCM, and signed with
// ML-DSA-65. Signature verification MUST be performed BEFORE opening:
//
//	if err := crypto.VerifySealedKey(payload, pinnedKey); err != nil {
//	    return nil, err
//	}
//	key, err := crypto.OpenSealedKey(payload, keypair)
//
// A pinned service key gives application-level pinning independent of the
// TLS trust store.
package crypto
