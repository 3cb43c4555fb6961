// Package container reads and writes PDO carrier files.
//
// A carrier is a single-page PDF whose Document Information dictionary holds
// the protection metadata, whose page shows an optional certificate image,
// and whose EmbeddedFiles tree holds the encrypted payload. Every mutation
// rewrites the whole file beside the original and renames it into place, so
// a failed write never leaves a half-written carrier.
package container
