package pdo

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/redaqt/pdo-go/internal/apierrors"
	"github.com/redaqt/pdo-go/internal/container"
	"github.com/redaqt/pdo-go/internal/crypto"
	"github.com/redaqt/pdo-go/internal/fileutil"
	"github.com/redaqt/pdo-go/internal/policy"
	"github.com/redaqt/pdo-go/internal/stego"
)

// producer is written to the Producer metadata key.
const producer = "github.com/redaqt/pdo-go"

// ProtectRequest selects the files and the policy of a protect operation.
type ProtectRequest struct {
	Files []string

	// Policy defaults to Settings.DefaultPolicy. Condition is the alias,
	// date or passphrase the policy needs.
	Policy    Protocol
	Condition string

	// Receipt defaults to Settings.Receipt.
	Receipt *ReceiptSettings

	// OutputDir receives the carriers. Each carrier is written beside its
	// source when empty.
	OutputDir string
}

// ProtectResult is the outcome for one file.
type ProtectResult struct {
	Source  string
	Carrier string
	Err     error
}

// Protect wraps every file of req in its own carrier, named
// <name>.<extension> and never overwriting an existing file. A failing file
// does not stop the others; its error is reported in its result and joined
// into the returned error.
func (e *Engine) Protect(ctx context.Context, acct Account, req ProtectRequest) ([]ProtectResult, error) {
	if len(req.Files) == 0 {
		return nil, ErrNoFiles
	}

	results := make([]ProtectResult, 0, len(req.Files))
	var errs []error
	for _, src := range req.Files {
		carrier, err := e.protectFile(ctx, acct, src, req)
		results = append(results, ProtectResult{Source: src, Carrier: carrier, Err: err})
		if err != nil {
			e.logger.Error("protect failed", zap.String("path", src), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		e.logger.Info("file protected", zap.String("path", src), zap.String("carrier", carrier))
	}
	return results, errors.Join(errs...)
}

func (e *Engine) protectFile(ctx context.Context, acct Account, src string, req ProtectRequest) (carrier string, err error) {
	ctx, end := e.span(ctx, "pdo.Protect", src)
	defer func() {
		end(err)
		e.metrics.ObserveProtect(outcome(err))
	}()

	if err := fileutil.ValidateReadable(src); err != nil {
		return "", err
	}

	now := e.now()
	protocol := req.Policy
	if protocol == "" {
		protocol = e.settings.DefaultPolicy
	}
	receipt := e.settings.Receipt
	if req.Receipt != nil {
		receipt = *req.Receipt
	}
	item, err := policy.BuildItem(protocol, req.Condition, now)
	if err != nil {
		return "", err
	}
	block, err := policy.NewBlock([]policy.Item{item}, policy.BuildReceipt(receipt.Timing, receipt.Resource, acct.identity()), now)
	if err != nil {
		return "", err
	}

	resp, err := e.keys.RequestEncryptKey(ctx, acct.credentials(), e.settings.RequestCertificate)
	if err != nil {
		return "", err
	}
	defer resp.Data.CryptoKey.Wipe()
	key := []byte(resp.Data.CryptoKey)

	outDir := req.OutputDir
	if outDir == "" {
		outDir = filepath.Dir(src)
	}
	scratch, err := os.MkdirTemp(outDir, ".pdo-")
	if err != nil {
		return "", apierrors.NewFileError("create scratch directory", outDir, err)
	}
	defer func() {
		if rmErr := os.RemoveAll(scratch); rmErr != nil {
			e.logger.Warn("failed to remove scratch directory", zap.String("path", scratch), zap.Error(rmErr))
		}
	}()

	// Fingerprints are taken in order: certificate, audit note, payload.
	img, certField, err := e.buildCertificate(resp.Data.Certificate, key, now)
	if err != nil {
		return "", err
	}
	certFP := crypto.SHA512Hex([]byte(container.NoCertificate))
	switch {
	case img != nil:
		certFP = crypto.SHA512Hex(stego.RGBBytes(img))
	case certField != "":
		certFP = crypto.SHA512Hex([]byte(certField))
	}
	if err := block.SetCertificateFingerprint(certFP); err != nil {
		return "", err
	}

	note, err := json.Marshal(newAuditNote(protocol, acct.Alias, filepath.Base(src), now))
	if err != nil {
		return "", err
	}
	encAudit, err := crypto.EncryptObject(key, note)
	if err != nil {
		return "", err
	}
	if err := block.SetAuditFingerprint(crypto.SHA512Hex([]byte(encAudit))); err != nil {
		return "", err
	}

	ivB64, iv, err := crypto.GenerateIV(e.crypto.Mode)
	if err != nil {
		return "", err
	}
	defer crypto.Wipe(iv)
	encPath, err := crypto.EncryptFile(key, iv, src, scratch)
	if err != nil {
		return "", apierrors.NewFileError("encrypt", src, err)
	}
	payloadFP, err := crypto.HashFileSHA512(encPath)
	if err != nil {
		return "", apierrors.NewFileError("hash payload", encPath, err)
	}
	if err := block.SetPDOFingerprint(payloadFP); err != nil {
		return "", err
	}

	blockJSON, err := block.Marshal()
	if err != nil {
		return "", err
	}
	encPolicy, err := crypto.EncryptObject(key, blockJSON)
	crypto.Wipe(blockJSON)
	if err != nil {
		return "", err
	}
	encName, err := crypto.EncryptObject(key, []byte(filepath.Base(src)))
	if err != nil {
		return "", err
	}

	md := container.Metadata{
		Producer:            producer,
		Author:              e.product.Author,
		Copyright:           e.product.Copyright,
		Product:             e.product.Name,
		ProductVersion:      e.product.Version,
		EncryptorVersion:    e.product.Version,
		EncryptionAlgorithm: e.crypto.Algorithm,
		EncryptionKeyLength: e.crypto.KeyLength,
		EncryptionMode:      e.crypto.Mode,
		HashAlgorithm:       e.crypto.HashAlgorithm,
		MOSVersion:          resp.Data.MOSVersion,
		Protocol:            resp.Data.Protocol,
		ProtocolVersion:     resp.Data.ProtocolVersion,
		MID:                 resp.Data.PQC.MID,
		FID:                 resp.Data.PQC.FID,
		PQType:              resp.Data.PQC.PQType,
		PQCI:                resp.Data.PQC.Point.I,
		PQCJ:                resp.Data.PQC.Point.J,
		PQCK:                resp.Data.PQC.Point.K,
		PQCR:                resp.Data.PQC.Point.Radius,
		IV:                  ivB64,
		Signature:           block.Signature(),
		SmartPolicy:         encPolicy,
		Certificate:         certField,
		EncryptedFilename:   encName,
		EncryptedData:       encAudit,
	}

	name := filepath.Base(src) + "." + e.product.Extension
	work := filepath.Join(scratch, name)
	if err := e.assemble(work, img, md, encPath); err != nil {
		return "", err
	}

	dest, err := fileutil.NonCollidingPath(filepath.Join(outDir, name), now)
	if err != nil {
		return "", err
	}
	if err := os.Rename(work, dest); err != nil {
		return "", apierrors.NewFileError("rename", dest, err)
	}
	return dest, nil
}

// buildCertificate returns the certificate as a carrier image or, when no
// image can hold it, as an encrypted string. Both are empty when there is no
// certificate.
func (e *Engine) buildCertificate(cert *Certificate, key []byte, now time.Time) (*image.NRGBA, string, error) {
	if cert == nil && e.settings.RequestCertificate && e.issuer != nil {
		issued, err := e.issuer.Issue(now)
		if err != nil {
			return nil, "", err
		}
		cert = issued
	}
	if cert == nil {
		return nil, "", nil
	}

	raw, err := json.Marshal(cert)
	if err != nil {
		return nil, "", err
	}
	img, reason := e.certificateImage(raw)
	if img != nil {
		return img, "", nil
	}

	e.metrics.ObserveCertificateFallback(reason)
	field, err := crypto.EncryptObject(key, raw)
	if err != nil {
		return nil, "", err
	}
	return nil, field, nil
}

// assemble builds the carrier at path: base page, image, metadata and the
// encrypted payload, written in one commit.
func (e *Engine) assemble(path string, img *image.NRGBA, md container.Metadata, encPath string) error {
	return container.Assemble(path, container.Parts{
		Text:        e.product.Banner(),
		Image:       img,
		Fields:      md.Fields(),
		PayloadPath: encPath,
	}, e.logger)
}
