package pdf

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func sampleImage(w, h int) *Image {
	rgb := make([]byte, w*h*3)
	for i := range rgb {
		rgb[i] = byte(i * 7)
	}
	return &Image{Width: w, Height: h, RGB: rgb}
}

func TestDocumentRoundTrip(t *testing.T) {
	img := sampleImage(5, 3)
	doc := &Document{
		Info: map[string]string{
			"Producer":     "RedaQt",
			"Smart_Policy": "abc+/=",
			"Odd_Value":    "line\nbreak \\ (paren) \x00\xff",
			"Empty":        "",
		},
		Text:        "Protected by RedaQt (PDO) 2.1",
		Image:       img,
		ImageRect:   FitRect(Rect{X: 36, Y: 36, W: 144, H: 144}, img.Width, img.Height),
		Attachments: []Attachment{{Name: "~report.pdf.tmp", Data: []byte("endstream\nendobj\x00binary")}, {Name: "b.bin", Data: nil}},
	}

	data, err := doc.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-1.7")) || !bytes.HasSuffix(data, []byte("%%EOF\n")) {
		t.Error("missing header or trailer marker")
	}

	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !reflect.DeepEqual(got.Info, doc.Info) {
		t.Errorf("Info = %q, want %q", got.Info, doc.Info)
	}
	if got.Text != doc.Text {
		t.Errorf("Text = %q, want %q", got.Text, doc.Text)
	}
	if got.Image == nil || !bytes.Equal(got.Image.RGB, img.RGB) || got.Image.Width != 5 || got.Image.Height != 3 {
		t.Errorf("Image = %+v", got.Image)
	}
	if len(got.Attachments) != 2 {
		t.Fatalf("Attachments = %d, want 2", len(got.Attachments))
	}
	if got.Attachments[0].Name != "~report.pdf.tmp" || !bytes.Equal(got.Attachments[0].Data, doc.Attachments[0].Data) {
		t.Errorf("Attachments[0] = %q %q", got.Attachments[0].Name, got.Attachments[0].Data)
	}
	if got.Attachments[1].Name != "b.bin" || len(got.Attachments[1].Data) != 0 {
		t.Errorf("Attachments[1] = %+v", got.Attachments[1])
	}

	got.ImageRect = doc.ImageRect
	again, err := got.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	if !bytes.Equal(again, data) {
		t.Error("rewriting a parsed document changed its bytes")
	}
}

func TestDocumentMinimal(t *testing.T) {
	data, err := (&Document{}).Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got.Image != nil || len(got.Attachments) != 0 || len(got.Info) != 0 || got.Text != "" {
		t.Errorf("Parse() = %+v, want empty document", got)
	}
}

func TestDocumentInvalidImage(t *testing.T) {
	doc := &Document{Image: &Image{Width: 2, Height: 2, RGB: make([]byte, 5)}}
	if _, err := doc.Bytes(); err == nil {
		t.Fatal("Bytes() expected error for short image data")
	}
}

func TestParse_Malformed(t *testing.T) {
	valid, err := (&Document{Text: "x"}).Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"not a pdf", []byte("hello world")},
		{"empty", nil},
		{"truncated", valid[:24]},
		{"no catalog", rawPDF("<< /Type /Pages /Kids [] /Count 0 >>")},
		{"no page", rawPDF("<< /Type /Catalog /Pages 2 0 R >>", "<< /Type /Pages /Kids [] /Count 0 >>")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.data); !errors.Is(err, ErrMalformed) {
				t.Errorf("Parse() error = %v, want ErrMalformed", err)
			}
		})
	}
}

// rawPDF lays out objects 1..n with a correct cross-reference table.
// Object 1 is the root.
func rawPDF(objects ...string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")
	offsets := make([]int, len(objects))
	for i, o := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func onePage(resources string) []string {
	return []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources " + resources + " >>",
	}
}

func TestParse_HugeStreamLength(t *testing.T) {
	data := rawPDF(
		"<< /Type /Catalog /Pages 2 0 R /Names << /EmbeddedFiles 4 0 R >> >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
		"<< /Names [(a.bin) 5 0 R] >>",
		"<< /Type /Filespec /F (a.bin) /EF << /F 6 0 R >> >>",
		"<< /Length 9223372036854775807 >>\nstream\npayload!!\nendstream",
	)

	doc, err := Parse(data)
	if err != nil {
		if !errors.Is(err, ErrMalformed) {
			t.Fatalf("Parse() error = %v, want ErrMalformed", err)
		}
		return
	}
	for _, a := range doc.Attachments {
		if len(a.Data) > len(data) {
			t.Errorf("attachment %q is %d bytes, file is %d", a.Name, len(a.Data), len(data))
		}
	}
}

func TestParse_HugeImageDimensions(t *testing.T) {
	tests := []struct {
		name string
		dims string
	}{
		// Width*Height*3 wraps to 2.
		{"wrapping width", "/Width 6148914691236517206 /Height 1"},
		{"wrapping height", "/Width 1 /Height 6148914691236517206"},
		{"negative", "/Width -2 /Height -1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			objs := append(onePage("<< /XObject << /Im1 4 0 R >> >>"),
				"<< /Type /XObject /Subtype /Image "+tt.dims+" /ColorSpace /DeviceRGB /BitsPerComponent 8 /Length 2 >>\nstream\nAB\nendstream")
			if _, err := Parse(rawPDF(objs...)); !errors.Is(err, ErrMalformed) {
				t.Errorf("Parse() error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestParse_FlateImage(t *testing.T) {
	rgb := []byte{0, 1, 2, 253, 254, 255}
	var z bytes.Buffer
	zw := zlib.NewWriter(&z)
	zw.Write(rgb)
	zw.Close()

	objs := append(onePage("<< /XObject << /Im1 4 0 R >> >>"),
		fmt.Sprintf("<< /Type /XObject /Subtype /Image /Width 2 /Height 1 /ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /FlateDecode /Length %d >>\nstream\n%s\nendstream", z.Len(), z.Bytes()))

	doc, err := Parse(rawPDF(objs...))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if doc.Image == nil || !bytes.Equal(doc.Image.RGB, rgb) {
		t.Errorf("Image = %+v, want samples %v", doc.Image, rgb)
	}
}

func TestParse_UnsupportedImage(t *testing.T) {
	objs := append(onePage("<< /XObject << /Im1 4 0 R >> >>"),
		"<< /Type /XObject /Subtype /Image /Width 1 /Height 1 /ColorSpace /DeviceGray /BitsPerComponent 8 /Length 1 >>\nstream\nA\nendstream")
	if _, err := Parse(rawPDF(objs...)); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Parse() error = %v, want ErrUnsupported", err)
	}
}

func TestShownText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"BT /F1 14 Tf 10 20 Td (Hello) Tj ET", "Hello"},
		{"BT (a\\(b\\)c\\\\) Tj ET", "a(b)c\\"},
		{"BT (nested (paren) ok) Tj ET", "nested (paren) ok"},
		{"BT (\\101\\060\\012) Tj ET", "A0\n"},
		{"(label) Tz (shown)Tj", "shown"},
		{"q 1 0 0 1 0 0 cm /Im1 Do Q", ""},
		{"BT (unterminated Tj", ""},
	}
	for _, tt := range tests {
		if got := shownText([]byte(tt.in)); got != tt.want {
			t.Errorf("shownText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDocumentInvalidImageDimensions(t *testing.T) {
	doc := &Document{Image: &Image{Width: 6148914691236517206, Height: 1, RGB: []byte{1, 2}}}
	if _, err := doc.Bytes(); err == nil {
		t.Fatal("Bytes() expected error for wrapping image dimensions")
	}
}

func TestFitRect(t *testing.T) {
	box := Rect{X: 36, Y: 36, W: 144, H: 144}
	tests := []struct {
		w, h int
		want Rect
	}{
		{100, 100, Rect{36, 36, 144, 144}},
		{200, 100, Rect{36, 36, 144, 72}},
		{100, 400, Rect{36, 36, 36, 144}},
	}
	for _, tt := range tests {
		if got := FitRect(box, tt.w, tt.h); got != tt.want {
			t.Errorf("FitRect(%d, %d) = %+v, want %+v", tt.w, tt.h, got, tt.want)
		}
	}
}
