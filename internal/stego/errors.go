package stego

import (
	"errors"

	"github.com/redaqt/pdo-go/internal/apierrors"
)

var (
	// ErrCapacityExceeded is returned when the document does not fit the image.
	ErrCapacityExceeded = apierrors.ErrCodecCapacityExceeded

	// ErrUnsupportedImage is returned for undecodable or grayscale images.
	ErrUnsupportedImage = apierrors.ErrUnsupportedImageFormat

	// ErrUnsupportedCharacter is returned when a document contains a character
	// outside the codec's character set.
	ErrUnsupportedCharacter = errors.New("character not supported by certificate codec")

	// ErrMalformedDocument is returned when extracted text is not a certificate document.
	ErrMalformedDocument = errors.New("malformed certificate document")
)
