package stego

import (
	"fmt"
	"strconv"
	"strings"
)

// Document tags.
const (
	TagData        = "data"
	TagLength      = "length"
	TagHeader      = "header"
	TagDoctype     = "doctype"
	TagEncoding    = "encoding"
	TagBody        = "body"
	TagMetadata    = "metadata"
	TagCertificate = "certificate"
)

const (
	docTypeImage   = "image"
	encodingBase64 = "b64"
)

func openTag(tag string) string { return "<" + tag + ">" }
func closeTag(tag string) string { return "</" + tag + ">" }

func wrap(tag, value string) string {
	return openTag(tag) + value + closeTag(tag)
}

// EndMarker is the closing certificate tag; extraction stops after it.
var EndMarker = closeTag(TagCertificate)

// BuildDocument wraps payload in the tagged certificate document:
// data{length, header{doctype, encoding}, body{metadata, certificate}}. The
// length tag records the combined length of the header and body.
func BuildDocument(payload string) string {
	header := wrap(TagHeader, wrap(TagDoctype, docTypeImage)+wrap(TagEncoding, encodingBase64))
	body := wrap(TagBody, wrap(TagMetadata, "")+wrap(TagCertificate, payload))
	length := wrap(TagLength, strconv.Itoa(len(header)+len(body)))
	return openTag(TagData) + length + header + body + closeTag(TagData)
}

// ParseDocument returns the certificate payload of an extracted document.
// Text may be truncated after the closing certificate tag. When a length tag
// is present and the header and body are complete, their length must match it.
func ParseDocument(text string) (string, error) {
	start := strings.Index(text, openTag(TagCertificate))
	if start < 0 {
		return "", fmt.Errorf("%w: no certificate tag", ErrMalformedDocument)
	}
	start += len(openTag(TagCertificate))
	end := strings.Index(text[start:], EndMarker)
	if end < 0 {
		return "", fmt.Errorf("%w: unterminated certificate", ErrMalformedDocument)
	}
	payload := text[start : start+end]

	if want, ok := declaredLength(text); ok {
		hStart := strings.Index(text, openTag(TagHeader))
		bEnd := strings.Index(text, closeTag(TagBody))
		if hStart >= 0 && bEnd >= 0 {
			if got := bEnd + len(closeTag(TagBody)) - hStart; got != want {
				return "", fmt.Errorf("%w: length %d, declared %d", ErrMalformedDocument, got, want)
			}
		}
	}
	return payload, nil
}

func declaredLength(text string) (int, bool) {
	start := strings.Index(text, openTag(TagLength))
	if start < 0 {
		return 0, false
	}
	start += len(openTag(TagLength))
	end := strings.Index(text[start:], closeTag(TagLength))
	if end < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(text[start : start+end])
	if err != nil {
		return 0, false
	}
	return n, true
}
