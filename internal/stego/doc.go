// Package stego hides a certificate document in the blue channel of an RGB
// image and recovers it.
//
// Before embedding, every pixel is normalized: blue is clamped to [1,254] and
// then raised by a carrier bit derived from the red and green parities, which
// leaves the blue least-significant bit at a known baseline of 0. Embedding
// lowers blue by one for every 1 bit; extraction reads blue mod 2 row-major,
// eight bits per character, until the closing certificate tag.
package stego
