package pdf

import (
	"errors"
	"fmt"
)

// Letter page size in points.
const (
	PageWidth  = 612.0
	PageHeight = 792.0
)

var (
	// ErrMalformed is returned for input the reader cannot parse.
	ErrMalformed = errors.New("pdf: malformed file")

	// ErrUnsupported is returned for images the carrier cannot hold.
	ErrUnsupported = errors.New("pdf: unsupported feature")
)

// Rect is a rectangle in page space.
type Rect struct {
	X, Y, W, H float64
}

// Image is an 8-bit DeviceRGB raster.
type Image struct {
	Width  int
	Height int
	RGB    []byte
}

func (img *Image) validate() error {
	if img.Width <= 0 || img.Height <= 0 || img.Width > len(img.RGB)/3/img.Height {
		return fmt.Errorf("pdf: image size %dx%d for %d bytes", img.Width, img.Height, len(img.RGB))
	}
	if len(img.RGB) != img.Width*img.Height*3 {
		return fmt.Errorf("pdf: image data is %d bytes, want %d", len(img.RGB), img.Width*img.Height*3)
	}
	return nil
}

// Attachment is an embedded file.
type Attachment struct {
	Name string
	Data []byte
}

// Document is the content of a carrier file.
type Document struct {
	// Info holds the Document Information dictionary. Keys are written as
	// names, values as strings.
	Info map[string]string
	// Text is the line drawn centred on the page.
	Text string
	// Image is drawn at ImageRect when set. Parse leaves ImageRect zero.
	Image     *Image
	ImageRect Rect
	// Attachments are stored in the EmbeddedFiles name tree in order.
	Attachments []Attachment
}

// FitRect returns the largest rectangle with the aspect ratio of w x h that
// fits in box, anchored at the box origin.
func FitRect(box Rect, w, h int) Rect {
	if w <= 0 || h <= 0 {
		return Rect{X: box.X, Y: box.Y}
	}
	scale := box.W / float64(w)
	if s := box.H / float64(h); s < scale {
		scale = s
	}
	return Rect{X: box.X, Y: box.Y, W: float64(w) * scale, H: float64(h) * scale}
}
