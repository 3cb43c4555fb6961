package container

import (
	"fmt"
	"strconv"
	"strings"
)

// Metadata keys as written to the carrier.
const (
	KeyProducer            = "Producer"
	KeyAuthor              = "Author"
	KeyCopyright           = "Copyright"
	KeyProduct             = "Product"
	KeyProductVersion      = "Product_Version"
	KeyEncryptorVersion    = "Encryptor_Version"
	KeyEncryptionAlgorithm = "Encryption_Algorithm"
	KeyEncryptionKeyLength = "Encryption_Key_Length"
	KeyEncryptionMode      = "Encryption_Mode"
	KeyHashAlgorithm       = "Hash_Algorithm"
	KeyMOSVersion          = "MOS_Version"
	KeyProtocol            = "Protocol"
	KeyProtocolVersion     = "Protocol_Version"
	KeyMID                 = "MID"
	KeyFID                 = "FID"
	KeyPQType              = "PQ_Type"
	KeyPQCI                = "PQC_i"
	KeyPQCJ                = "PQC_j"
	KeyPQCK                = "PQC_k"
	KeyPQCR                = "PQC_r"
	KeyIV                  = "IV"
	KeySignature           = "Signature"
	KeySmartPolicy         = "Smart_Policy"
	KeyCertificate         = "DaVinci_Certificate"
	KeyEncryptedFilename   = "Encrypted_filename"
	KeyEncryptedData       = "Encrypted_data"
)

// NoCertificate is stored under KeyCertificate when the certificate lives
// in the carrier image, or when there is none.
const NoCertificate = "None"

// requiredKeys must be present for a carrier to be opened.
var requiredKeys = []string{
	KeyEncryptionAlgorithm,
	KeyEncryptionKeyLength,
	KeyEncryptionMode,
	KeyHashAlgorithm,
	KeyMOSVersion,
	KeyProtocol,
	KeyProtocolVersion,
	KeyMID,
	KeyFID,
	KeyPQType,
	KeyPQCI,
	KeyPQCJ,
	KeyPQCK,
	KeyPQCR,
	KeyIV,
	KeySignature,
	KeySmartPolicy,
	KeyEncryptedFilename,
	KeyEncryptedData,
}

// Metadata is the typed carrier metadata shared by writer and reader.
type Metadata struct {
	Producer         string
	Author           string
	Copyright        string
	Product          string
	ProductVersion   string
	EncryptorVersion string

	EncryptionAlgorithm string
	EncryptionKeyLength int
	EncryptionMode      string
	HashAlgorithm       string

	MOSVersion      string
	Protocol        string
	ProtocolVersion string
	MID             string
	FID             string
	PQType          string
	PQCI            float64
	PQCJ            float64
	PQCK            float64
	PQCR            float64

	IV                string
	Signature         string
	SmartPolicy       string
	Certificate       string
	EncryptedFilename string
	EncryptedData     string
}

// Fields returns m as carrier metadata. An empty Certificate is written as
// NoCertificate.
func (m Metadata) Fields() map[string]string {
	cert := m.Certificate
	if cert == "" {
		cert = NoCertificate
	}
	return map[string]string{
		KeyProducer:            m.Producer,
		KeyAuthor:              m.Author,
		KeyCopyright:           m.Copyright,
		KeyProduct:             m.Product,
		KeyProductVersion:      m.ProductVersion,
		KeyEncryptorVersion:    m.EncryptorVersion,
		KeyEncryptionAlgorithm: m.EncryptionAlgorithm,
		KeyEncryptionKeyLength: strconv.Itoa(m.EncryptionKeyLength),
		KeyEncryptionMode:      m.EncryptionMode,
		KeyHashAlgorithm:       m.HashAlgorithm,
		KeyMOSVersion:          m.MOSVersion,
		KeyProtocol:            m.Protocol,
		KeyProtocolVersion:     m.ProtocolVersion,
		KeyMID:                 m.MID,
		KeyFID:                 m.FID,
		KeyPQType:              m.PQType,
		KeyPQCI:                formatFloat(m.PQCI),
		KeyPQCJ:                formatFloat(m.PQCJ),
		KeyPQCK:                formatFloat(m.PQCK),
		KeyPQCR:                formatFloat(m.PQCR),
		KeyIV:                  m.IV,
		KeySignature:           m.Signature,
		KeySmartPolicy:         m.SmartPolicy,
		KeyCertificate:         cert,
		KeyEncryptedFilename:   m.EncryptedFilename,
		KeyEncryptedData:       m.EncryptedData,
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ParseMetadata builds Metadata from fields keyed as ReadMetadata returns
// them (lower case). The first missing or malformed key is reported by name.
func ParseMetadata(fields map[string]string) (Metadata, error) {
	for _, k := range requiredKeys {
		if _, ok := fields[strings.ToLower(k)]; !ok {
			return Metadata{}, fmt.Errorf("%w: missing %s", ErrInvalidMetadata, k)
		}
	}

	get := func(k string) string { return fields[strings.ToLower(k)] }

	m := Metadata{
		Producer:            get(KeyProducer),
		Author:              get(KeyAuthor),
		Copyright:           get(KeyCopyright),
		Product:             get(KeyProduct),
		ProductVersion:      get(KeyProductVersion),
		EncryptorVersion:    get(KeyEncryptorVersion),
		EncryptionAlgorithm: get(KeyEncryptionAlgorithm),
		EncryptionMode:      get(KeyEncryptionMode),
		HashAlgorithm:       get(KeyHashAlgorithm),
		MOSVersion:          get(KeyMOSVersion),
		Protocol:            get(KeyProtocol),
		ProtocolVersion:     get(KeyProtocolVersion),
		MID:                 get(KeyMID),
		FID:                 get(KeyFID),
		PQType:              get(KeyPQType),
		IV:                  get(KeyIV),
		Signature:           get(KeySignature),
		SmartPolicy:         get(KeySmartPolicy),
		Certificate:         get(KeyCertificate),
		EncryptedFilename:   get(KeyEncryptedFilename),
		EncryptedData:       get(KeyEncryptedData),
	}
	if m.Certificate == NoCertificate {
		m.Certificate = ""
	}

	n, err := strconv.Atoi(get(KeyEncryptionKeyLength))
	if err != nil || n <= 0 {
		return Metadata{}, fmt.Errorf("%w: %s is not a positive integer", ErrInvalidMetadata, KeyEncryptionKeyLength)
	}
	m.EncryptionKeyLength = n

	for _, c := range []struct {
		key string
		dst *float64
	}{
		{KeyPQCI, &m.PQCI},
		{KeyPQCJ, &m.PQCJ},
		{KeyPQCK, &m.PQCK},
		{KeyPQCR, &m.PQCR},
	} {
		v, err := strconv.ParseFloat(get(c.key), 64)
		if err != nil {
			return Metadata{}, fmt.Errorf("%w: %s is not a number", ErrInvalidMetadata, c.key)
		}
		*c.dst = v
	}

	if m.IV == "" || m.SmartPolicy == "" || m.Signature == "" {
		return Metadata{}, fmt.Errorf("%w: empty crypto parameters", ErrInvalidMetadata)
	}
	return m, nil
}
