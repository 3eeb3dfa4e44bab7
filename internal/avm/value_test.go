package avm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValue_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "3735928559", NewUint(0xdeadbeef).String())
	assert.Equal(t, `0x78716c4c ("xqcL")`, NewString("xqcL").String())
	assert.Equal(t, "0x00ff", NewBytes([]byte{0x00, 0xff}).String())
	assert.Equal(t, "0x", NewBytes(nil).String())
	assert.Equal(t, "uint64", TypeUint.String())
	assert.Equal(t, "byte[]", TypeBytes.String())
}

func TestValue_Equal(t *testing.T) {
	t.Parallel()

	assert.True(t, NewUint(0).IsZeroUint())
	assert.False(t, NewBytes(nil).IsZeroUint())
	assert.True(t, NewBytes(nil).Equal(NewString("")))
	assert.False(t, NewUint(1).Equal(NewBytes([]byte{1})))
}
