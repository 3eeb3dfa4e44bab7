package hexutil

import (
	"encoding/hex"
	"errors"
	"strings"
)

var ErrOddLength = errors.New("hex string has odd length")

// DecodeHex accepts input with or without the 0x prefix. Odd-length input is rejected:
// map keys are always produced by EncodeNo0x, so an odd length means a corrupted key.
func DecodeHex(in string) ([]byte, error) {
	if len(in) >= 2 && in[0] == '0' && (in[1] == 'x' || in[1] == 'X') {
		in = in[2:]
	}
	if len(in)%2 == 1 {
		return nil, ErrOddLength
	}
	return hex.DecodeString(in)
}

// Encode renders b with the 0x prefix, the form used for byte values shown to users.
func Encode(b []byte) string {
	var sb strings.Builder
	sb.Grow(2 + hex.EncodedLen(len(b)))
	sb.WriteString("0x")
	sb.WriteString(hex.EncodeToString(b))
	return sb.String()
}

func EncodeNo0x(b []byte) string {
	return hex.EncodeToString(b)
}
