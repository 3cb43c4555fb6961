package stego

import "fmt"

// The codec maps each supported character to a fixed 8-bit code. Supported
// characters are printable ASCII plus tab, newline and carriage return; the
// codes are the ASCII values so the table stays stable across versions.
var (
	charToCode = map[rune]byte{}
	codeToChar = map[byte]rune{}
)

func init() {
	add := func(r rune) {
		charToCode[r] = byte(r)
		codeToChar[byte(r)] = r
	}
	for r := rune(0x20); r <= 0x7e; r++ {
		add(r)
	}
	add('\t')
	add('\n')
	add('\r')
}

// toBits converts s to its bit sequence, most significant bit first.
func toBits(s string) ([]byte, error) {
	bits := make([]byte, 0, len(s)*8)
	for i, r := range s {
		code, ok := charToCode[r]
		if !ok {
			return nil, fmt.Errorf("%w: %q at offset %d", ErrUnsupportedCharacter, r, i)
		}
		for shift := 7; shift >= 0; shift-- {
			bits = append(bits, (code>>shift)&1)
		}
	}
	return bits, nil
}
