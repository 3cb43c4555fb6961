package pdo

import (
	"sort"
	"strings"

	"github.com/redaqt/pdo-go/internal/container"
	"github.com/redaqt/pdo-go/internal/fileutil"
	"github.com/redaqt/pdo-go/internal/stego"
)

// secretKeys are never reported by Inspect.
var secretKeys = map[string]bool{
	strings.ToLower(container.KeySmartPolicy):       true,
	strings.ToLower(container.KeyEncryptedFilename): true,
	strings.ToLower(container.KeyEncryptedData):     true,
	strings.ToLower(container.KeyCertificate):       true,
}

// Inspection describes a carrier without opening it.
type Inspection struct {
	Path   string
	Banner string
	// Metadata holds the non-secret metadata, keys lower-cased.
	Metadata    map[string]string
	Attachments []string
	HasImage    bool
	// Certificate is read from the carrier image. An encrypted certificate
	// needs the key and is only flagged.
	Certificate          *Certificate
	CertificateEncrypted bool
}

// Inspect reads the public parts of a carrier. No key is requested.
func Inspect(path string) (*Inspection, error) {
	if err := fileutil.ValidateReadable(path); err != nil {
		return nil, err
	}
	doc, err := container.Read(path)
	if err != nil {
		return nil, err
	}

	in := &Inspection{
		Path:     path,
		Banner:   doc.Text,
		Metadata: make(map[string]string, len(doc.Info)),
		HasImage: doc.Image != nil,
	}
	var cert string
	for k, v := range doc.Info {
		k = strings.ToLower(k)
		if k == strings.ToLower(container.KeyCertificate) {
			cert = v
		}
		if !secretKeys[k] {
			in.Metadata[k] = v
		}
	}
	for _, a := range doc.Attachments {
		in.Attachments = append(in.Attachments, a.Name)
	}
	sort.Strings(in.Attachments)

	in.CertificateEncrypted = cert != "" && cert != container.NoCertificate

	if doc.Image != nil {
		img, err := stego.FromRGB(doc.Image.Width, doc.Image.Height, doc.Image.RGB)
		if err != nil {
			return nil, err
		}
		// A carrier image without a readable certificate is reported as is.
		if c, err := certificateFromImage(img); err == nil {
			in.Certificate = c
		}
	}
	return in, nil
}
