package container

import (
	"bytes"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/redaqt/pdo-go/internal/apierrors"
	"github.com/redaqt/pdo-go/internal/pdf"
	"github.com/redaqt/pdo-go/internal/stego"
)

func sampleMetadata() Metadata {
	return Metadata{
		Producer:            "RedaQt",
		Author:              "alice",
		Copyright:           "(c) RedaQt",
		Product:             "PDO",
		ProductVersion:      "2.1.0",
		EncryptorVersion:    "2.1.0",
		EncryptionAlgorithm: "AES-256",
		EncryptionKeyLength: 256,
		EncryptionMode:      "GCM",
		HashAlgorithm:       "SHA-512",
		MOSVersion:          "1.0.0",
		Protocol:            "pdo",
		ProtocolVersion:     "2.1.0",
		MID:                 "m-1",
		FID:                 "f-1",
		PQType:              "sphere",
		PQCI:                1.5,
		PQCJ:                -2.25,
		PQCK:                3,
		PQCR:                0.75,
		IV:                  "AAAAAAAAAAAAAAAA",
		Signature:           strings.Repeat("ab", 64),
		SmartPolicy:         "cGxhY2Vob2xkZXI=",
		EncryptedFilename:   "ZmlsZQ==",
		EncryptedData:       "YXVkaXQ=",
	}
}

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = byte(i)
		img.Pix[i+1] = byte(i / 3)
		img.Pix[i+2] = byte(i / 7)
		img.Pix[i+3] = 0xff
	}
	return img
}

func TestCarrierLifecycle(t *testing.T) {
	dir := t.TempDir()
	carrier := filepath.Join(dir, "report.pdf")

	if err := CreateBase(carrier, "Protected by RedaQt PDO 2.1.0", zap.NewNop()); err != nil {
		t.Fatalf("CreateBase() error = %v", err)
	}

	img, err := stego.Encode(gradient(80, 60), stego.BuildDocument("certificate"))
	if err != nil {
		t.Fatalf("stego.Encode() error = %v", err)
	}
	if err := EmbedImage(carrier, img, zap.NewNop()); err != nil {
		t.Fatalf("EmbedImage() error = %v", err)
	}

	md := sampleMetadata()
	if err := WriteMetadata(carrier, md.Fields(), zap.NewNop()); err != nil {
		t.Fatalf("WriteMetadata() error = %v", err)
	}

	payload := filepath.Join(dir, "~report.txt.tmp")
	if err := os.WriteFile(payload, []byte("ciphertext\x00\x01"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := AttachEncryptedPayload(carrier, payload, zap.NewNop()); err != nil {
		t.Fatalf("AttachEncryptedPayload() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "~report.pdf.tmp")); !os.IsNotExist(err) {
		t.Error("scratch file left behind")
	}

	fields, err := ReadMetadata(carrier)
	if err != nil {
		t.Fatalf("ReadMetadata() error = %v", err)
	}
	if fields["davinci_certificate"] != NoCertificate {
		t.Errorf("davinci_certificate = %q", fields["davinci_certificate"])
	}
	if fields["pqc_j"] != "-2.25" {
		t.Errorf("pqc_j = %q", fields["pqc_j"])
	}
	for k := range fields {
		if k != strings.ToLower(k) {
			t.Errorf("key %q is not lower case", k)
		}
	}

	got, err := ReadSchema(carrier)
	if err != nil {
		t.Fatalf("ReadSchema() error = %v", err)
	}
	if got != md {
		t.Errorf("ReadSchema() = %+v, want %+v", got, md)
	}

	out, err := ExtractEmbeddedImage(carrier)
	if err != nil {
		t.Fatalf("ExtractEmbeddedImage() error = %v", err)
	}
	if out == nil || !bytes.Equal(stego.RGBBytes(out), stego.RGBBytes(img)) {
		t.Fatal("extracted image differs from embedded image")
	}
	text, err := stego.ParseDocument(stego.Extract(out))
	if err != nil || text != "certificate" {
		t.Errorf("certificate = %q, %v", text, err)
	}

	extractDir := t.TempDir()
	paths, err := ExtractAttachments(carrier, extractDir, zap.NewNop())
	if err != nil {
		t.Fatalf("ExtractAttachments() error = %v", err)
	}
	if len(paths) != 1 || paths[0] != filepath.Join(extractDir, "~report.txt.tmp") {
		t.Fatalf("paths = %v", paths)
	}
	data, err := os.ReadFile(paths[0])
	if err != nil || string(data) != "ciphertext\x00\x01" {
		t.Errorf("attachment = %q, %v", data, err)
	}

	doc, err := Read(carrier)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if doc.Text != "Protected by RedaQt PDO 2.1.0" {
		t.Errorf("Text = %q", doc.Text)
	}
}

func TestWriteMetadata_Merges(t *testing.T) {
	carrier := filepath.Join(t.TempDir(), "c.pdf")
	if err := CreateBase(carrier, "x", zap.NewNop()); err != nil {
		t.Fatal(err)
	}
	if err := WriteMetadata(carrier, map[string]string{"Producer": "a", "IV": "1"}, zap.NewNop()); err != nil {
		t.Fatal(err)
	}
	if err := WriteMetadata(carrier, map[string]string{"IV": "2"}, zap.NewNop()); err != nil {
		t.Fatal(err)
	}

	fields, err := ReadMetadata(carrier)
	if err != nil {
		t.Fatal(err)
	}
	if fields["producer"] != "a" || fields["iv"] != "2" {
		t.Errorf("fields = %v", fields)
	}
}

func TestCarrierWithoutContent(t *testing.T) {
	carrier := filepath.Join(t.TempDir(), "c.pdf")
	if err := CreateBase(carrier, "x", zap.NewNop()); err != nil {
		t.Fatal(err)
	}

	img, err := ExtractEmbeddedImage(carrier)
	if err != nil || img != nil {
		t.Errorf("ExtractEmbeddedImage() = %v, %v; want nil, nil", img, err)
	}
	if _, err := ExtractAttachments(carrier, t.TempDir(), zap.NewNop()); !errors.Is(err, ErrNoAttachments) {
		t.Errorf("ExtractAttachments() error = %v, want ErrNoAttachments", err)
	}
	if _, err := ReadSchema(carrier); !errors.Is(err, ErrInvalidMetadata) {
		t.Errorf("ReadSchema() error = %v, want ErrInvalidMetadata", err)
	}
}

func TestRead_Errors(t *testing.T) {
	dir := t.TempDir()
	notPDF := filepath.Join(dir, "plain.txt")
	if err := os.WriteFile(notPDF, []byte("hello"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadMetadata(notPDF); !errors.Is(err, apierrors.ErrNoProtectedData) {
		t.Errorf("ReadMetadata(plain) error = %v, want ErrNoProtectedData", err)
	}
	if _, err := ReadMetadata(filepath.Join(dir, "missing.pdf")); !errors.Is(err, apierrors.ErrFileNotFound) {
		t.Errorf("ReadMetadata(missing) error = %v, want ErrFileNotFound", err)
	}
	if err := WriteMetadata(notPDF, map[string]string{"a": "b"}, zap.NewNop()); err == nil {
		t.Error("WriteMetadata(plain) expected error")
	}
	data, _ := os.ReadFile(notPDF)
	if string(data) != "hello" {
		t.Error("failed update modified the file")
	}
}

func TestParseMetadata(t *testing.T) {
	lower := func(m map[string]string) map[string]string {
		out := map[string]string{}
		for k, v := range m {
			out[strings.ToLower(k)] = v
		}
		return out
	}

	tests := []struct {
		name   string
		mutate func(map[string]string)
		want   string
	}{
		{"missing iv", func(m map[string]string) { delete(m, "iv") }, KeyIV},
		{"missing data", func(m map[string]string) { delete(m, "encrypted_data") }, KeyEncryptedData},
		{"bad key length", func(m map[string]string) { m["encryption_key_length"] = "big" }, KeyEncryptionKeyLength},
		{"bad coordinate", func(m map[string]string) { m["pqc_r"] = "wide" }, KeyPQCR},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := lower(sampleMetadata().Fields())
			tt.mutate(fields)
			_, err := ParseMetadata(fields)
			if !errors.Is(err, ErrInvalidMetadata) || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("ParseMetadata() error = %v, want mention of %s", err, tt.want)
			}
		})
	}

	fields := lower(sampleMetadata().Fields())
	fields["davinci_certificate"] = "cert-ciphertext"
	m, err := ParseMetadata(fields)
	if err != nil || m.Certificate != "cert-ciphertext" {
		t.Errorf("ParseMetadata() = %q, %v", m.Certificate, err)
	}
}

func TestExtractAttachments_BaseNameOnly(t *testing.T) {
	dir := t.TempDir()
	carrier := filepath.Join(dir, "c.pdf")
	if err := CreateBase(carrier, "x", zap.NewNop()); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "deep", "path")
	if err := os.MkdirAll(sub, 0o700); err != nil {
		t.Fatal(err)
	}
	payload := filepath.Join(sub, "secret.bin")
	if err := os.WriteFile(payload, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := AttachEncryptedPayload(carrier, payload, zap.NewNop()); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(carrier)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(raw, []byte("deep")) {
		t.Error("carrier leaks the source directory")
	}
}

func TestAssemble(t *testing.T) {
	dir := t.TempDir()
	carrier := filepath.Join(dir, "report.pdf")
	payload := filepath.Join(dir, "~report.txt.tmp")
	if err := os.WriteFile(payload, []byte("ciphertext"), 0o600); err != nil {
		t.Fatal(err)
	}
	img, err := stego.Encode(gradient(64, 48), stego.BuildDocument("certificate"))
	if err != nil {
		t.Fatalf("stego.Encode() error = %v", err)
	}
	md := sampleMetadata()

	err = Assemble(carrier, Parts{
		Text:        "Protected by RedaQt PDO 2.1.0",
		Image:       img,
		Fields:      md.Fields(),
		PayloadPath: payload,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "~report.pdf.tmp")); !os.IsNotExist(err) {
		t.Error("scratch file left behind")
	}

	got, err := ReadSchema(carrier)
	if err != nil {
		t.Fatalf("ReadSchema() error = %v", err)
	}
	if got != md {
		t.Errorf("ReadSchema() = %+v, want %+v", got, md)
	}

	doc, err := Read(carrier)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if doc.Text != "Protected by RedaQt PDO 2.1.0" {
		t.Errorf("Text = %q", doc.Text)
	}
	if doc.Image == nil || !bytes.Equal(doc.Image.RGB, stego.RGBBytes(img)) {
		t.Error("image differs")
	}
	if want := (pdf.Rect{X: 36, Y: 36, W: 144, H: 108}); doc.ImageRect != want {
		t.Errorf("ImageRect = %+v, want %+v", doc.ImageRect, want)
	}
	if len(doc.Attachments) != 1 || doc.Attachments[0].Name != "~report.txt.tmp" || string(doc.Attachments[0].Data) != "ciphertext" {
		t.Errorf("Attachments = %+v", doc.Attachments)
	}
}

func TestAssemble_MissingPayloadWritesNothing(t *testing.T) {
	carrier := filepath.Join(t.TempDir(), "c.pdf")
	err := Assemble(carrier, Parts{Text: "x", PayloadPath: filepath.Join(t.TempDir(), "gone")}, zap.NewNop())
	if !errors.Is(err, apierrors.ErrFileNotFound) {
		t.Fatalf("Assemble() error = %v, want ErrFileNotFound", err)
	}
	if _, err := os.Stat(carrier); !os.IsNotExist(err) {
		t.Error("carrier written despite the missing payload")
	}
}

func TestAssemble_FailedRenameRemovesScratch(t *testing.T) {
	dir := t.TempDir()
	// A non-empty directory at the carrier path makes the final rename fail.
	carrier := filepath.Join(dir, "c.pdf")
	if err := os.MkdirAll(filepath.Join(carrier, "keep"), 0o700); err != nil {
		t.Fatal(err)
	}

	core, logs := observer.New(zap.WarnLevel)
	if err := Assemble(carrier, Parts{Text: "x"}, zap.New(core)); err == nil {
		t.Fatal("Assemble() expected error")
	}
	if _, err := os.Stat(filepath.Join(dir, "~c.pdf.tmp")); !os.IsNotExist(err) {
		t.Error("scratch file left behind")
	}
	if logs.Len() != 0 {
		t.Errorf("unexpected warnings: %v", logs.All())
	}
}

func TestExtractAttachments_FailureRemovesWritten(t *testing.T) {
	dir := t.TempDir()
	carrier := filepath.Join(dir, "c.pdf")
	first := filepath.Join(dir, "a.bin")
	if err := os.WriteFile(first, []byte("a"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := Assemble(carrier, Parts{Text: "x", PayloadPath: first}, zap.NewNop()); err != nil {
		t.Fatal(err)
	}
	second := filepath.Join(t.TempDir(), "sub")
	if err := os.WriteFile(second, []byte("b"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := AttachEncryptedPayload(carrier, second, zap.NewNop()); err != nil {
		t.Fatal(err)
	}

	// "sub" already exists as a directory, so the second write fails.
	out := t.TempDir()
	if err := os.Mkdir(filepath.Join(out, "sub"), 0o700); err != nil {
		t.Fatal(err)
	}
	core, logs := observer.New(zap.WarnLevel)
	if _, err := ExtractAttachments(carrier, out, zap.New(core)); err == nil {
		t.Fatal("ExtractAttachments() expected error")
	}
	if _, err := os.Stat(filepath.Join(out, "a.bin")); !os.IsNotExist(err) {
		t.Error("a.bin left behind after the failed extraction")
	}
	if logs.Len() != 0 {
		t.Errorf("unexpected warnings: %v", logs.All())
	}
}

func TestRead_CraftedCarriers(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"huge stream length", "1 0 obj << /Type /Catalog /Pages 2 0 R /Names << /EmbeddedFiles 4 0 R >> >> endobj\n" +
			"2 0 obj << /Type /Pages /Kids [3 0 R] /Count 1 >> endobj\n" +
			"3 0 obj << /Type /Page /Parent 2 0 R >> endobj\n" +
			"4 0 obj << /Names [(a) << /EF << /F 5 0 R >> >>] >> endobj\n" +
			"5 0 obj << /Length 9223372036854775807 >>\nstream\npayload\nendstream\nendobj\n"},
		{"huge image", "1 0 obj << /Type /Catalog /Pages 2 0 R >> endobj\n" +
			"2 0 obj << /Type /Pages /Kids [3 0 R] /Count 1 >> endobj\n" +
			"3 0 obj << /Type /Page /Parent 2 0 R /Resources << /XObject << /Im1 4 0 R >> >> >> endobj\n" +
			"4 0 obj << /Subtype /Image /Width 6148914691236517206 /Height 1 /ColorSpace /DeviceRGB /BitsPerComponent 8 /Length 2 >>\nstream\nAB\nendstream\nendobj\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			carrier := filepath.Join(t.TempDir(), "c.pdf")
			data := "%PDF-1.7\n" + tt.body + "trailer << /Root 1 0 R >>\n%%EOF\n"
			if err := os.WriteFile(carrier, []byte(data), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := ReadMetadata(carrier); err != nil && !errors.Is(err, apierrors.ErrNoProtectedData) {
				t.Errorf("ReadMetadata() error = %v, want nil or ErrNoProtectedData", err)
			}
			if img, err := ExtractEmbeddedImage(carrier); err != nil && !errors.Is(err, apierrors.ErrNoProtectedData) {
				t.Errorf("ExtractEmbeddedImage() error = %v, want nil or ErrNoProtectedData", err)
			} else if err == nil && img != nil {
				t.Errorf("ExtractEmbeddedImage() = %v, want an error", img.Bounds())
			}
		})
	}
}
