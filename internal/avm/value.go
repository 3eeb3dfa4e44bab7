package avm

import (
	"bytes"
	"fmt"
	"strconv"
	"unicode"

	"github.com/avmdbg/avmdbg/common/hexutil"
)

type ValueType uint64

const (
	TypeBytes ValueType = 1
	TypeUint  ValueType = 2
)

func (t ValueType) String() string {
	switch t {
	case TypeBytes:
		return "byte[]"
	case TypeUint:
		return "uint64"
	default:
		return fmt.Sprintf("unknown(%d)", uint64(t))
	}
}

// Value is a single AVM stack, scratch or state cell.
type Value struct {
	Type  ValueType `json:"type"`
	Bytes []byte    `json:"bytes,omitempty"`
	Uint  uint64    `json:"uint,omitempty"`
}

func NewUint(v uint64) Value {
	return Value{Type: TypeUint, Uint: v}
}

func NewBytes(b []byte) Value {
	if b == nil {
		b = []byte{}
	}
	return Value{Type: TypeBytes, Bytes: b}
}

func NewString(s string) Value {
	return NewBytes([]byte(s))
}

func (v Value) IsUint() bool {
	return v.Type == TypeUint
}

func (v Value) IsBytes() bool {
	return v.Type == TypeBytes
}

// IsZeroUint reports whether v is the unsigned integer 0, the implicit value of an untouched scratch slot.
func (v Value) IsZeroUint() bool {
	return v.Type == TypeUint && v.Uint == 0
}

func (v Value) Clone() Value {
	if v.Bytes != nil {
		v.Bytes = bytes.Clone(v.Bytes)
	}
	return v
}

func (v Value) Equal(other Value) bool {
	if v.Type != other.Type {
		return false
	}
	if v.Type == TypeUint {
		return v.Uint == other.Uint
	}
	return bytes.Equal(v.Bytes, other.Bytes)
}

// String renders integers in decimal and byte strings in hex, followed by the text when it is printable.
func (v Value) String() string {
	switch v.Type {
	case TypeUint:
		return strconv.FormatUint(v.Uint, 10)
	case TypeBytes:
		encoded := hexutil.Encode(v.Bytes)
		if len(v.Bytes) > 0 && isPrintable(v.Bytes) {
			return encoded + " (" + strconv.Quote(string(v.Bytes)) + ")"
		}
		return encoded
	default:
		return "<invalid>"
	}
}

func isPrintable(b []byte) bool {
	for _, r := range string(b) {
		if r == unicode.ReplacementChar || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
