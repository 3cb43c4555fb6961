package stego

import (
	"fmt"
	"image"
	"os"

	// Decoders for carrier images.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/redaqt/pdo-go/internal/apierrors"
)

// Load decodes the image at path and returns it as NRGBA. Missing or
// unreadable files report a file error; undecodable or grayscale content
// reports ErrUnsupportedImage.
func Load(path string) (*image.NRGBA, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", apierrors.NewFileError("open image", path, err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	out, err := ToNRGBA(img)
	if err != nil {
		return nil, format, err
	}
	return out, format, nil
}
