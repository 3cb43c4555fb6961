package keyexchange

import (
	"encoding/json"

	"github.com/redaqt/pdo-go/internal/crypto"
)

// Message types.
const (
	MessageRequestEncrypt = "request_encrypt"
	MessageRequestDecrypt = "request_decrypt"
)

// Management carries request correlation.
type Management struct {
	RequestID string `json:"request_id"`
}

// Request is the envelope sent to the key service.
type Request struct {
	MessageType string      `json:"message_type"`
	Auth        string      `json:"auth"`
	Management  Management  `json:"management"`
	Data        RequestData `json:"data"`
}

// RequestData is the data member of a request.
type RequestData struct {
	EFObjectData     *EFObjectData       `json:"ef_object_data"`
	SmartPolicy      *SmartPolicyRequest `json:"smart_policy"`
	FileSpecs        *json.RawMessage    `json:"file_specs"`
	Certificate      CertificateRequest  `json:"certificate"`
	KeyEncapsulation *KeyEncapsulation   `json:"key_encapsulation,omitempty"`
}

// CertificateRequest asks for a certificate (encrypt) or returns the stored
// one (decrypt).
type CertificateRequest struct {
	Request bool    `json:"request"`
	Cert    *string `json:"cert,omitempty"`
}

// KeyEncapsulation asks the service to seal the crypto key to PublicKey.
type KeyEncapsulation struct {
	KEM       string `json:"kem"`
	PublicKey string `json:"public_key"`
}

// EFObjectData identifies the key object a carrier was protected with.
type EFObjectData struct {
	Service      ServiceRef   `json:"service"`
	Protocol     ProtocolRef  `json:"protocol"`
	Model        Model        `json:"model"`
	PQProperties PQProperties `json:"pq_properties"`
}

// ServiceRef names a service component and version.
type ServiceRef struct {
	Type    string `json:"type"`
	Version string `json:"version"`
}

// ProtocolRef names a key protocol and version.
type ProtocolRef struct {
	Method  string `json:"method"`
	Version string `json:"version"`
}

// Model carries the model and feature ids.
type Model struct {
	MID string `json:"mid"`
	FID string `json:"fid"`
}

// PQProperties carries the PQC type and point.
type PQProperties struct {
	Type  string `json:"type"`
	Point Point  `json:"point"`
}

// Point is a 3-D point with a radius.
type Point struct {
	I      float64 `json:"i"`
	J      float64 `json:"j"`
	K      float64 `json:"k"`
	Radius float64 `json:"radius"`
}

// SmartPolicyRequest carries the encrypted policy block and its crypto
// parameters on decrypt.
type SmartPolicyRequest struct {
	PolicyEncrypted string         `json:"policy_encrypted"`
	Protocol        PolicyProtocol `json:"protocol"`
	Response        PolicyResponse `json:"response"`
}

// PolicyProtocol lists the crypto parameters of a carrier.
type PolicyProtocol struct {
	EncryptionAlgorithm string `json:"encryption_algorithm"`
	EncryptionKeyLength int    `json:"encryption_key_length"`
	EncryptionMode      string `json:"encryption_mode"`
	IV                  string `json:"iv"`
	HashAlgorithm       string `json:"hash_algorithm"`
	Signature           string `json:"signature"`
}

// PolicyResponse is the placeholder the service fills when a policy needs
// interactive input.
type PolicyResponse struct {
	ID       string  `json:"id"`
	DateTime string  `json:"date_time"`
	Key      *string `json:"key"`
	Value    *string `json:"value"`
}

// Envelope holds the fields common to all responses.
type Envelope struct {
	Management    Management `json:"management"`
	Error         bool       `json:"error"`
	StatusType    string     `json:"status_type"`
	StatusCode    int        `json:"status_code"`
	StatusMessage string     `json:"status_message"`
	Checksum      string     `json:"checksum"`
}

// IncomingEncrypt is the response to a request_encrypt.
type IncomingEncrypt struct {
	Envelope
	Data EncryptData `json:"data"`
}

// EncryptData is the data member of an encrypt response.
type EncryptData struct {
	MOSVersion      string           `json:"mos_version"`
	Protocol        string           `json:"protocol"`
	ProtocolVersion string           `json:"protocol_version"`
	PQC             PQC              `json:"pqc"`
	Certificate     *Certificate     `json:"certificate"`
	CryptoKey       KeyMaterial      `json:"crypto_key"`
	SealedKey       *crypto.SealedKey `json:"sealed_key,omitempty"`
}

// IncomingDecrypt is the response to a request_decrypt.
type IncomingDecrypt struct {
	Envelope
	Data DecryptData `json:"data"`
}

// DecryptData is the data member of a decrypt response.
type DecryptData struct {
	CryptoKey KeyMaterial       `json:"crypto_key"`
	SealedKey *crypto.SealedKey `json:"sealed_key,omitempty"`
}

// PQC is the post-quantum positional block returned with a key.
type PQC struct {
	MID    string `json:"mid"`
	FID    string `json:"fid"`
	PQType string `json:"pq_type"`
	Point  Point  `json:"point"`
}

// Certificate is a structured certificate issued with a key.
type Certificate struct {
	ChildCertificateID string    `json:"child_certificate_id"`
	CertificateType    string    `json:"certificate_type"`
	Trace              string    `json:"trace"`
	Issuer             Issuer    `json:"issuer"`
	Authority          Authority `json:"authority"`
}

// Issuer describes who signed a certificate.
type Issuer struct {
	ParentCertificateID string `json:"parent_certificate_id"`
	Name                string `json:"name"`
	Organization        string `json:"organization"`
	SigningTime         string `json:"signing_time"`
	ExpiresAfter        string `json:"expires_after"`
}

// Authority describes the issuing certificate authority.
type Authority struct {
	IssuerName  string `json:"issuer_name"`
	IssuerEmail string `json:"issuer_email"`
	IssuerURI   string `json:"issuer_uri"`
}

// KeyMaterial holds key bytes decoded from a JSON string. Callers Wipe it
// once the operation that needed it is done.
type KeyMaterial []byte

// UnmarshalJSON decodes a JSON string or null.
func (k *KeyMaterial) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*k = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*k = KeyMaterial(s)
	return nil
}

// MarshalJSON encodes the key as a JSON string, or null when empty.
func (k KeyMaterial) MarshalJSON() ([]byte, error) {
	if len(k) == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(string(k))
}

// Wipe zeroes the key bytes.
func (k KeyMaterial) Wipe() {
	crypto.Wipe(k)
}
