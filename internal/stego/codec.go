package stego

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
)

// ToNRGBA returns an NRGBA copy of img. The source is never modified.
// Grayscale images are rejected since they carry no independent blue channel.
func ToNRGBA(img image.Image) (*image.NRGBA, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrUnsupportedImage)
	}
	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model, color.AlphaModel, color.Alpha16Model:
		return nil, fmt.Errorf("%w: grayscale image", ErrUnsupportedImage)
	}

	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrUnsupportedImage)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst, nil
}

// Normalize applies the blue-channel normalization in place. It is
// idempotent and leaves every blue value even and within [2,254].
func Normalize(img *image.NRGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			px := row[x*4 : x*4+4]
			blue := min(max(px[2], 1), 254)
			parity := (px[0] & 1) ^ (px[1] & 1)
			carrier := parity ^ ((blue + parity) & 1)
			px[2] = blue + carrier
		}
	}
}

// Capacity reports whether a document of n characters fits an image of the
// given size. 20% of the pixels are held back as a safety margin.
func Capacity(width, height, n int) bool {
	// 0.8*w*h >= 8*n, kept in integers.
	return 4*width*height >= 5*8*n
}

// Encode returns a copy of img with document hidden in its blue channel.
// The capacity check runs before any pixel is touched.
func Encode(img image.Image, document string) (*image.NRGBA, error) {
	bits, err := toBits(document)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	if !Capacity(b.Dx(), b.Dy(), len(bits)/8) {
		return nil, fmt.Errorf("%w: %d bits, %dx%d image", ErrCapacityExceeded, len(bits), b.Dx(), b.Dy())
	}

	out, err := ToNRGBA(img)
	if err != nil {
		return nil, err
	}
	Normalize(out)

	// Bits run row-major; the remainder of the final row stays at the
	// normalized baseline, which reads back as zero.
	width := out.Bounds().Dx()
	for i, bit := range bits {
		x, y := i%width, i/width
		px := out.Pix[y*out.Stride+x*4:]
		blue := px[2]
		px[2] = blue - (bit ^ (blue % 2))
	}
	return out, nil
}

// Extract reads blue-channel LSBs row-major and decodes them eight at a
// time. It stops after EndMarker or at the end of the image and returns what
// it could read; codes outside the character set are skipped.
func Extract(img image.Image) string {
	b := img.Bounds()
	var sb strings.Builder
	var code byte
	n := 0

	nrgba, direct := img.(*image.NRGBA)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var blue uint8
			if direct {
				blue = nrgba.Pix[nrgba.PixOffset(x, y)+2]
			} else {
				blue = color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA).B
			}
			code = code<<1 | blue&1
			n++
			if n < 8 {
				continue
			}
			if r, ok := codeToChar[code]; ok {
				sb.WriteRune(r)
				if strings.HasSuffix(sb.String(), EndMarker) {
					return sb.String()
				}
			}
			code, n = 0, 0
		}
	}
	return sb.String()
}

// RGBBytes returns the packed 8-bit RGB samples of img, row-major, with
// alpha dropped.
func RGBBytes(img *image.NRGBA) []byte {
	b := img.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			out = append(out, row[x*4], row[x*4+1], row[x*4+2])
		}
	}
	return out
}

// FromRGB builds an opaque NRGBA image from packed 8-bit RGB samples.
func FromRGB(width, height int, rgb []byte) (*image.NRGBA, error) {
	// Bound the dimensions by the buffer before multiplying them.
	if width <= 0 || height <= 0 || width > len(rgb)/3/height || len(rgb) != width*height*3 {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d RGB", ErrUnsupportedImage, len(rgb), width, height)
	}
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		copy(img.Pix[i*4:i*4+3], rgb[i*3:i*3+3])
		img.Pix[i*4+3] = 0xff
	}
	return img, nil
}
