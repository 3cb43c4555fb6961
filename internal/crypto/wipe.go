package crypto

// Wipe zeroes b in place. Every derived key, nonce copy and GHASH subkey
// passes through it before release.
func Wipe(b []byte) {
	clear(b)
}
