// Package pdf reads and writes the single-page PDF files used as carriers.
//
// The writer emits plain PDF 1.7: one Letter page with a line of Helvetica
// text, an optional DeviceRGB image, a Document Information dictionary and
// an EmbeddedFiles name tree. Files are read with pdfcpu, so any filters the
// streams declare are decoded and malformed input is reported as
// ErrMalformed.
package pdf
