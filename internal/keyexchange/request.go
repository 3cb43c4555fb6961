package keyexchange

import (
	"fmt"
	"strconv"
	"time"
)

// Lower-cased carrier metadata keys read when building a decrypt request.
const (
	mdMOSVersion          = "mos_version"
	mdProtocol            = "protocol"
	mdProtocolVersion     = "protocol_version"
	mdMID                 = "mid"
	mdFID                 = "fid"
	mdPQType              = "pq_type"
	mdPQCI                = "pqc_i"
	mdPQCJ                = "pqc_j"
	mdPQCK                = "pqc_k"
	mdPQCR                = "pqc_r"
	mdSmartPolicy         = "smart_policy"
	mdEncryptionAlgorithm = "encryption_algorithm"
	mdEncryptionKeyLength = "encryption_key_length"
	mdEncryptionMode      = "encryption_mode"
	mdIV                  = "iv"
	mdHashAlgorithm       = "hash_algorithm"
	mdSignature           = "signature"
	mdCertificate         = "davinci_certificate"
)

// mosServiceType is the service type reported for the key object.
const mosServiceType = "mm"

// responseIDPlaceholder fills smart_policy.response.id until the service
// asks for interactive input.
const responseIDPlaceholder = "UUID4"

// BuildDecryptData builds the data member of a request_decrypt from carrier
// metadata (lower-cased keys). PQC coordinates and the key length must be
// numeric.
func BuildDecryptData(md map[string]string, now time.Time) (RequestData, error) {
	get := func(key string) (string, error) {
		v, ok := md[key]
		if !ok {
			return "", fmt.Errorf("carrier metadata is missing %q", key)
		}
		return v, nil
	}
	var firstErr error
	str := func(key string) string {
		v, err := get(key)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return v
	}
	num := func(key string) float64 {
		v := str(key)
		f, err := strconv.ParseFloat(v, 64)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("carrier metadata %q is not a number: %q", key, v)
		}
		return f
	}

	ef := &EFObjectData{
		Service:  ServiceRef{Type: mosServiceType, Version: str(mdMOSVersion)},
		Protocol: ProtocolRef{Method: str(mdProtocol), Version: str(mdProtocolVersion)},
		Model:    Model{MID: str(mdMID), FID: str(mdFID)},
		PQProperties: PQProperties{
			Type: str(mdPQType),
			Point: Point{
				I:      num(mdPQCI),
				J:      num(mdPQCJ),
				K:      num(mdPQCK),
				Radius: num(mdPQCR),
			},
		},
	}

	keyLen := str(mdEncryptionKeyLength)
	n, err := strconv.Atoi(keyLen)
	if err != nil && firstErr == nil {
		firstErr = fmt.Errorf("carrier metadata %q is not an integer: %q", mdEncryptionKeyLength, keyLen)
	}

	sp := &SmartPolicyRequest{
		PolicyEncrypted: str(mdSmartPolicy),
		Protocol: PolicyProtocol{
			EncryptionAlgorithm: str(mdEncryptionAlgorithm),
			EncryptionKeyLength: n,
			EncryptionMode:      str(mdEncryptionMode),
			IV:                  str(mdIV),
			HashAlgorithm:       str(mdHashAlgorithm),
			Signature:           str(mdSignature),
		},
		Response: PolicyResponse{
			ID:       responseIDPlaceholder,
			DateTime: now.Format("2006-01-02 15:04:05"),
		},
	}

	cert := str(mdCertificate)

	if firstErr != nil {
		return RequestData{}, firstErr
	}

	return RequestData{
		EFObjectData: ef,
		SmartPolicy:  sp,
		Certificate:  CertificateRequest{Request: false, Cert: &cert},
	}, nil
}
