package pdo

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/redaqt/pdo-go/internal/crypto"
	"github.com/redaqt/pdo-go/internal/keyexchange"
	"github.com/redaqt/pdo-go/internal/stego"
)

const (
	defaultCertificateType     = "document"
	defaultCertificateValidity = 365 * 24 * time.Hour
	selfIssuedParentID         = "self"
	traceMarkerLength          = 32
)

// CertificateIssuer issues certificates locally. Zero Type and Validity
// default to "document" and one year.
type CertificateIssuer struct {
	Name         string
	Organization string
	Email        string
	URI          string
	Type         string
	Validity     time.Duration
}

// Issue returns a new self-issued certificate signed at now.
func (i CertificateIssuer) Issue(now time.Time) (*Certificate, error) {
	certType := i.Type
	if certType == "" {
		certType = defaultCertificateType
	}
	validity := i.Validity
	if validity <= 0 {
		validity = defaultCertificateValidity
	}

	marker, err := crypto.RandomString(traceMarkerLength)
	if err != nil {
		return nil, err
	}
	id := uuid.New().String()
	signed := now.UTC().Format(time.RFC3339)
	expires := now.Add(validity).UTC().Format(time.RFC3339)

	return &Certificate{
		ChildCertificateID: id,
		CertificateType:    certType,
		Trace:              crypto.SHA512Hex([]byte(id + marker + signed + expires)),
		Issuer: keyexchange.Issuer{
			ParentCertificateID: selfIssuedParentID,
			Name:                i.Name,
			Organization:        i.Organization,
			SigningTime:         signed,
			ExpiresAfter:        expires,
		},
		Authority: keyexchange.Authority{
			IssuerName:  i.Name,
			IssuerEmail: i.Email,
			IssuerURI:   i.URI,
		},
	}, nil
}

// Certificate fallback reasons.
const (
	fallbackNoImage     = "no_image"
	fallbackImageError  = "image_error"
	fallbackUnsupported = "unsupported_image"
	fallbackCapacity    = "capacity"
)

// certificateImage hides cert in the configured carrier image. When that is
// not possible it returns nil and the reason, and the caller stores the
// certificate as an encrypted string instead.
func (e *Engine) certificateImage(cert []byte) (*image.NRGBA, string) {
	src, err := e.loadImage()
	if err != nil {
		reason := fallbackImageError
		switch {
		case errors.Is(err, errNoImage):
			reason = fallbackNoImage
		case errors.Is(err, ErrUnsupportedImageFormat):
			reason = fallbackUnsupported
		}
		e.logger.Info("certificate image unavailable", zap.String("reason", reason), zap.Error(err))
		return nil, reason
	}

	img, err := stego.Encode(src, stego.BuildDocument(crypto.ToBase64(cert)))
	if err != nil {
		reason := fallbackImageError
		if errors.Is(err, ErrCodecCapacityExceeded) {
			reason = fallbackCapacity
		}
		e.logger.Info("certificate does not fit image", zap.String("reason", reason), zap.Error(err))
		return nil, reason
	}
	return img, ""
}

var errNoImage = errors.New("no certificate image configured")

// loadImage loads the certificate image, falling back to the default image
// when the configured one is unset or missing.
func (e *Engine) loadImage() (*image.NRGBA, error) {
	var firstErr error
	for _, path := range []string{e.settings.CertificateImage, e.settings.DefaultImage} {
		if path == "" {
			continue
		}
		img, _, err := stego.Load(path)
		if err == nil {
			return img, nil
		}
		if !errors.Is(err, ErrFileNotFound) {
			return nil, err
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return nil, errNoImage
}

// certificateFromImage recovers a certificate hidden by certificateImage.
func certificateFromImage(img image.Image) (*Certificate, error) {
	payload, err := stego.ParseDocument(stego.Extract(img))
	if err != nil {
		return nil, err
	}
	raw, err := crypto.FromBase64(payload)
	if err != nil {
		return nil, fmt.Errorf("certificate payload: %w", err)
	}
	return decodeCertificate(raw)
}

func decodeCertificate(raw []byte) (*Certificate, error) {
	var cert Certificate
	if err := json.Unmarshal(raw, &cert); err != nil {
		return nil, fmt.Errorf("decode certificate: %w", err)
	}
	return &cert, nil
}
