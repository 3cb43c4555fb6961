package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
)

// gcmStream processes one GCM message incrementally. It produces the same
// ciphertext and tag as cipher.AEAD.Seal with empty additional data, but lets
// callers feed the message in chunks and verify a tag without emitting
// plaintext. GHASH follows NIST SP 800-38D, Algorithm 1.
type gcmStream struct {
	block cipher.Block

	h       fieldElement
	y       fieldElement
	pending [16]byte
	npend   int
	length  uint64

	counter   [16]byte
	keystream [16]byte
	used      int

	tagMask [16]byte
}

type fieldElement struct {
	hi, lo uint64
}

func newGCMStream(key, nonce []byte) (*gcmStream, error) {
	if len(key) != AESKeySize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidKeySize, len(key), AESKeySize)
	}
	if len(nonce) != AESNonceSize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidNonceSize, len(nonce), AESNonceSize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	s := &gcmStream{block: block, used: 16}

	var zero [16]byte
	var hBytes [16]byte
	block.Encrypt(hBytes[:], zero[:])
	s.h = loadElement(hBytes[:])
	clear(hBytes[:])

	// J0 = nonce || 0^31 || 1. Its encryption masks the tag; data starts at inc32(J0).
	copy(s.counter[:], nonce)
	binary.BigEndian.PutUint32(s.counter[12:], 1)
	block.Encrypt(s.tagMask[:], s.counter[:])
	s.incCounter()

	return s, nil
}

func loadElement(b []byte) fieldElement {
	return fieldElement{
		hi: binary.BigEndian.Uint64(b[:8]),
		lo: binary.BigEndian.Uint64(b[8:16]),
	}
}

// gfMul multiplies x and y in GF(2^128) with the GCM bit ordering.
func gfMul(x, y fieldElement) fieldElement {
	var z fieldElement
	v := y
	for i := 0; i < 128; i++ {
		var bit uint64
		if i < 64 {
			bit = (x.hi >> (63 - i)) & 1
		} else {
			bit = (x.lo >> (127 - i)) & 1
		}
		mask := -bit
		z.hi ^= v.hi & mask
		z.lo ^= v.lo & mask

		carry := v.lo & 1
		v.lo = v.lo>>1 | v.hi<<63
		v.hi >>= 1
		v.hi ^= (0xe1 << 56) & -carry
	}
	return z
}

func (s *gcmStream) ghashBlock(b []byte) {
	e := loadElement(b)
	s.y.hi ^= e.hi
	s.y.lo ^= e.lo
	s.y = gfMul(s.y, s.h)
}

// authenticate feeds ciphertext bytes into GHASH.
func (s *gcmStream) authenticate(p []byte) {
	s.length += uint64(len(p))

	if s.npend > 0 {
		n := copy(s.pending[s.npend:], p)
		s.npend += n
		p = p[n:]
		if s.npend < 16 {
			return
		}
		s.ghashBlock(s.pending[:])
		s.npend = 0
	}

	for len(p) >= 16 {
		s.ghashBlock(p[:16])
		p = p[16:]
	}

	if len(p) > 0 {
		s.npend = copy(s.pending[:], p)
	}
}

// incCounter wraps after 2^32 blocks; callers stay within MaxGCMMessageSize.
func (s *gcmStream) incCounter() {
	c := binary.BigEndian.Uint32(s.counter[12:])
	binary.BigEndian.PutUint32(s.counter[12:], c+1)
}

// xorKeyStream applies the CTR keystream. dst and src may overlap exactly.
func (s *gcmStream) xorKeyStream(dst, src []byte) {
	for i := range src {
		if s.used == 16 {
			s.block.Encrypt(s.keystream[:], s.counter[:])
			s.incCounter()
			s.used = 0
		}
		dst[i] = src[i] ^ s.keystream[s.used]
		s.used++
	}
}

// seal encrypts src into dst and authenticates the ciphertext.
func (s *gcmStream) seal(dst, src []byte) {
	s.xorKeyStream(dst, src)
	s.authenticate(dst[:len(src)])
}

// open authenticates src and decrypts it into dst.
func (s *gcmStream) open(dst, src []byte) {
	s.authenticate(src)
	s.xorKeyStream(dst, src)
}

// sum finalizes GHASH over the length block and returns the tag.
func (s *gcmStream) sum() []byte {
	if s.npend > 0 {
		clear(s.pending[s.npend:])
		s.ghashBlock(s.pending[:])
		s.npend = 0
	}

	var lengths [16]byte
	binary.BigEndian.PutUint64(lengths[8:], s.length*8)
	s.ghashBlock(lengths[:])

	tag := make([]byte, 16)
	binary.BigEndian.PutUint64(tag[:8], s.y.hi)
	binary.BigEndian.PutUint64(tag[8:], s.y.lo)
	subtle.XORBytes(tag, tag, s.tagMask[:])
	return tag
}

// verify reports whether the finalized tag equals expected in constant time.
func (s *gcmStream) verify(expected []byte) bool {
	tag := s.sum()
	defer Wipe(tag)
	return subtle.ConstantTimeCompare(tag, expected) == 1
}

func (s *gcmStream) wipe() {
	s.h = fieldElement{}
	s.y = fieldElement{}
	clear(s.pending[:])
	clear(s.counter[:])
	clear(s.keystream[:])
	clear(s.tagMask[:])
}
