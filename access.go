package pdo

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/redaqt/pdo-go/internal/apierrors"
	"github.com/redaqt/pdo-go/internal/container"
	"github.com/redaqt/pdo-go/internal/crypto"
	"github.com/redaqt/pdo-go/internal/fileutil"
	"github.com/redaqt/pdo-go/internal/keyexchange"
	"github.com/redaqt/pdo-go/internal/policy"
	"github.com/redaqt/pdo-go/internal/stego"
)

// AccessResult is the outcome of opening a carrier.
type AccessResult struct {
	// Path is where the decrypted file was written.
	Path string
	// Certificate is nil when the carrier has none or it could not be read.
	Certificate *Certificate
	Policy      *Policy
	Audit       *AuditNote
}

// Access opens carrier and writes the decrypted file beside it.
func (e *Engine) Access(ctx context.Context, acct Account, carrier string) (*AccessResult, error) {
	return e.AccessTo(ctx, acct, carrier, filepath.Dir(carrier))
}

// AccessTo opens carrier and writes the decrypted file into dir under its
// original name, or a timestamped name if that is taken. Every fingerprint
// is checked before anything is decrypted to disk.
func (e *Engine) AccessTo(ctx context.Context, acct Account, carrier, dir string) (res *AccessResult, err error) {
	ctx, end := e.span(ctx, "pdo.Access", carrier)
	defer func() {
		end(err)
		e.metrics.ObserveAccess(outcome(err))
		if err != nil {
			e.logger.Error("access failed", zap.String("path", carrier), zap.Error(err))
		}
	}()

	if err := fileutil.ValidateReadable(carrier); err != nil {
		return nil, err
	}
	fields, err := container.ReadMetadata(carrier)
	if err != nil {
		return nil, err
	}
	md, err := container.ParseMetadata(fields)
	if err != nil {
		return nil, err
	}
	img, err := container.ExtractEmbeddedImage(carrier)
	if err != nil {
		return nil, err
	}

	now := e.now()
	data, err := keyexchange.BuildDecryptData(fields, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoProtectedData, err)
	}
	resp, err := e.keys.RequestDecryptKey(ctx, acct.credentials(), data)
	if err != nil {
		return nil, err
	}
	defer resp.Data.CryptoKey.Wipe()
	key := []byte(resp.Data.CryptoKey)

	block, err := openPolicy(key, md)
	if err != nil {
		return nil, err
	}
	if err := verifyArtifacts(block, img, md); err != nil {
		return nil, err
	}

	scratch, err := os.MkdirTemp(e.tempDir, "pdo-access-")
	if err != nil {
		return nil, apierrors.NewFileError("create scratch directory", e.tempDir, err)
	}
	defer fileutil.RemoveBestEffort(e.logger, scratch)

	paths, err := container.ExtractAttachments(carrier, scratch, e.logger)
	if err != nil {
		return nil, err
	}
	defer fileutil.RemoveBestEffort(e.logger, paths...)
	if len(paths) != 1 {
		return nil, fmt.Errorf("%w: %d payloads", ErrNoProtectedData, len(paths))
	}

	payloadFP, err := crypto.HashFileSHA512(paths[0])
	if err != nil {
		return nil, apierrors.NewFileError("hash payload", paths[0], err)
	}
	if payloadFP != *block.PDOFingerprint {
		return nil, &FingerprintError{Artifact: "pdo"}
	}

	name, err := crypto.DecryptObject(key, md.EncryptedFilename)
	if err != nil {
		return nil, err
	}
	base := filepath.Base(filepath.Clean("/" + string(name)))
	if base == "/" || base == "." {
		return nil, fmt.Errorf("%w: invalid file name", ErrNoProtectedData)
	}

	rawNote, err := crypto.DecryptObject(key, md.EncryptedData)
	if err != nil {
		return nil, err
	}
	note, err := parseAuditNote(rawNote)
	if err != nil {
		return nil, err
	}

	out, err := fileutil.NonCollidingPath(filepath.Join(dir, base), now)
	if err != nil {
		return nil, err
	}
	if err := crypto.DecryptFile(key, paths[0], out); err != nil {
		if errors.Is(err, ErrDecryptionFailed) {
			return nil, err
		}
		return nil, apierrors.NewFileError("decrypt", out, err)
	}

	e.logger.Info("file accessed", zap.String("carrier", carrier), zap.String("path", out))
	return &AccessResult{
		Path:        out,
		Certificate: e.readCertificate(key, img, md),
		Policy:      block,
		Audit:       note,
	}, nil
}

// openPolicy decrypts the smart policy block and matches it against the
// carrier signature.
func openPolicy(key []byte, md container.Metadata) (*policy.Block, error) {
	raw, err := crypto.DecryptObject(key, md.SmartPolicy)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(raw)

	block, err := policy.Parse(raw)
	if err != nil {
		return nil, err
	}
	if block.Signature() != md.Signature {
		return nil, &FingerprintError{Artifact: "signature"}
	}
	if !block.Complete() {
		return nil, fmt.Errorf("%w: missing fingerprints", ErrInvalidPolicy)
	}
	return block, nil
}

// verifyArtifacts checks the certificate and audit fingerprints.
func verifyArtifacts(block *policy.Block, img *image.NRGBA, md container.Metadata) error {
	certFP := crypto.SHA512Hex([]byte(container.NoCertificate))
	switch {
	case img != nil:
		certFP = crypto.SHA512Hex(stego.RGBBytes(img))
	case md.Certificate != "":
		certFP = crypto.SHA512Hex([]byte(md.Certificate))
	}
	if certFP != *block.CertificateFingerprint {
		return &FingerprintError{Artifact: "certificate"}
	}
	if crypto.SHA512Hex([]byte(md.EncryptedData)) != *block.AuditFingerprint {
		return &FingerprintError{Artifact: "audit"}
	}
	return nil
}

// readCertificate recovers the certificate for display. A certificate that
// cannot be read does not fail the access; its artifact was already
// verified.
func (e *Engine) readCertificate(key []byte, img *image.NRGBA, md container.Metadata) *Certificate {
	var (
		cert *Certificate
		err  error
	)
	switch {
	case img != nil:
		cert, err = certificateFromImage(img)
	case md.Certificate != "":
		var raw []byte
		raw, err = crypto.DecryptObject(key, md.Certificate)
		if err == nil {
			cert, err = decodeCertificate(raw)
		}
	default:
		return nil
	}
	if err != nil {
		e.logger.Warn("certificate unreadable", zap.Error(err))
		return nil
	}
	return cert
}
