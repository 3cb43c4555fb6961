package container

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/redaqt/pdo-go/internal/apierrors"
	"github.com/redaqt/pdo-go/internal/fileutil"
	"github.com/redaqt/pdo-go/internal/pdf"
	"github.com/redaqt/pdo-go/internal/stego"
)

var (
	// ErrNotCarrier is returned for files that are not readable carriers.
	ErrNotCarrier = apierrors.ErrNoProtectedData

	// ErrInvalidMetadata is returned when carrier metadata is incomplete.
	ErrInvalidMetadata = fmt.Errorf("%w: invalid metadata", apierrors.ErrNoProtectedData)

	// ErrNoAttachments is returned by ExtractAttachments for carriers without
	// an embedded payload.
	ErrNoAttachments = fmt.Errorf("%w: no attachments", apierrors.ErrNoProtectedData)
)

// ImageBox is where the certificate image is drawn on the page, in points.
var ImageBox = pdf.Rect{X: 36, Y: 36, W: 144, H: 144}

// Parts is the content of a new carrier.
type Parts struct {
	// Text is the line shown on the page.
	Text string
	// Image is drawn at ImageBox when set.
	Image  *image.NRGBA
	Fields map[string]string
	// PayloadPath names the encrypted file to attach under its base name.
	PayloadPath string
}

// Assemble writes a complete carrier at path in one commit. The payload is
// read once and the file is written once, so memory peaks at about twice
// the payload size while the document is serialized.
func Assemble(path string, parts Parts, logger *zap.Logger) error {
	doc := &pdf.Document{Info: make(map[string]string, len(parts.Fields)), Text: parts.Text}
	for k, v := range parts.Fields {
		doc.Info[k] = v
	}
	if parts.Image != nil {
		setImage(doc, parts.Image)
	}
	if parts.PayloadPath != "" {
		a, err := payloadAttachment(parts.PayloadPath)
		if err != nil {
			return err
		}
		doc.Attachments = append(doc.Attachments, a)
	}
	return commit(path, doc, logger)
}

// CreateBase writes a fresh carrier at path showing text.
func CreateBase(path, text string, logger *zap.Logger) error {
	return commit(path, &pdf.Document{Info: map[string]string{}, Text: text}, logger)
}

// WriteMetadata merges fields into the carrier's metadata. Pages, images
// and attachments are kept.
func WriteMetadata(path string, fields map[string]string, logger *zap.Logger) error {
	return update(path, logger, func(doc *pdf.Document) error {
		for k, v := range fields {
			doc.Info[k] = v
		}
		return nil
	})
}

// EmbedImage draws img on the carrier page at ImageBox. Samples are stored
// unfiltered.
func EmbedImage(path string, img *image.NRGBA, logger *zap.Logger) error {
	return update(path, logger, func(doc *pdf.Document) error {
		setImage(doc, img)
		return nil
	})
}

func setImage(doc *pdf.Document, img *image.NRGBA) {
	b := img.Bounds()
	doc.Image = &pdf.Image{Width: b.Dx(), Height: b.Dy(), RGB: stego.RGBBytes(img)}
	doc.ImageRect = pdf.FitRect(ImageBox, doc.Image.Width, doc.Image.Height)
}

// AttachEncryptedPayload embeds the file at encPath under its base name.
func AttachEncryptedPayload(path, encPath string, logger *zap.Logger) error {
	a, err := payloadAttachment(encPath)
	if err != nil {
		return err
	}
	return update(path, logger, func(doc *pdf.Document) error {
		doc.Attachments = append(doc.Attachments, a)
		return nil
	})
}

func payloadAttachment(encPath string) (pdf.Attachment, error) {
	data, err := os.ReadFile(encPath)
	if err != nil {
		return pdf.Attachment{}, apierrors.NewFileError("read payload", encPath, err)
	}
	return pdf.Attachment{Name: filepath.Base(encPath), Data: data}, nil
}

// ReadMetadata returns the carrier metadata with lower-cased keys.
func ReadMetadata(path string) (map[string]string, error) {
	doc, err := load(path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(doc.Info))
	for k, v := range doc.Info {
		out[strings.ToLower(strings.TrimPrefix(k, "/"))] = v
	}
	return out, nil
}

// ReadSchema returns the carrier metadata as Metadata.
func ReadSchema(path string) (Metadata, error) {
	fields, err := ReadMetadata(path)
	if err != nil {
		return Metadata{}, err
	}
	return ParseMetadata(fields)
}

// ExtractAttachments writes every attachment into dir (the system temp
// directory when empty) under its base name and returns the paths written.
// On failure the files already written are removed.
func ExtractAttachments(path, dir string, logger *zap.Logger) ([]string, error) {
	doc, err := load(path)
	if err != nil {
		return nil, err
	}
	if len(doc.Attachments) == 0 {
		return nil, ErrNoAttachments
	}
	if dir == "" {
		dir = os.TempDir()
	}

	var written []string
	for _, a := range doc.Attachments {
		name := filepath.Base(filepath.Clean("/" + a.Name))
		if name == "/" || name == "." {
			fileutil.RemoveBestEffort(logger, written...)
			return nil, fmt.Errorf("%w: attachment name %q", ErrNotCarrier, a.Name)
		}
		out := filepath.Join(dir, name)
		if err := os.WriteFile(out, a.Data, 0o600); err != nil {
			fileutil.RemoveBestEffort(logger, written...)
			return nil, apierrors.NewFileError("write attachment", out, err)
		}
		written = append(written, out)
	}
	return written, nil
}

// ExtractEmbeddedImage returns the carrier image, or nil when there is none.
func ExtractEmbeddedImage(path string) (*image.NRGBA, error) {
	doc, err := load(path)
	if err != nil {
		return nil, err
	}
	if doc.Image == nil {
		return nil, nil
	}
	return stego.FromRGB(doc.Image.Width, doc.Image.Height, doc.Image.RGB)
}

// Read returns the parsed carrier.
func Read(path string) (*pdf.Document, error) {
	return load(path)
}

func load(path string) (*pdf.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apierrors.NewFileError("read carrier", path, err)
	}
	doc, err := pdf.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotCarrier, err)
	}
	if doc.Info == nil {
		doc.Info = map[string]string{}
	}
	if doc.Image != nil {
		doc.ImageRect = pdf.FitRect(ImageBox, doc.Image.Width, doc.Image.Height)
	}
	return doc, nil
}

func update(path string, logger *zap.Logger, mutate func(*pdf.Document) error) error {
	doc, err := load(path)
	if err != nil {
		return err
	}
	if err := mutate(doc); err != nil {
		return err
	}
	return commit(path, doc, logger)
}

// commit writes doc to ~<name>.tmp beside path and renames it over path.
func commit(path string, doc *pdf.Document, logger *zap.Logger) (err error) {
	data, err := doc.Bytes()
	if err != nil {
		return err
	}

	tmp := filepath.Join(filepath.Dir(path), "~"+filepath.Base(path)+".tmp")
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return apierrors.NewFileError("create", tmp, err)
	}
	defer func() {
		if err != nil {
			fileutil.RemoveBestEffort(logger, tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		f.Close()
		return apierrors.NewFileError("write", tmp, err)
	}
	if err = f.Sync(); err != nil {
		f.Close()
		return apierrors.NewFileError("sync", tmp, err)
	}
	if err = f.Close(); err != nil {
		return apierrors.NewFileError("close", tmp, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return apierrors.NewFileError("rename", path, err)
	}
	return nil
}

