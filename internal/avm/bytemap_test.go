package avm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteArrayMap_RawAndHexAccessors(t *testing.T) {
	t.Parallel()

	m := NewByteArrayMap()
	m.Set([]byte("global-int-key"), NewUint(0xdeadbeef))

	v, ok := m.Get([]byte("global-int-key"))
	require.True(t, ok)
	assert.Equal(t, NewUint(0xdeadbeef), v)

	v, ok = m.GetHex("676c6f62616c2d696e742d6b6579")
	require.True(t, ok)
	assert.Equal(t, uint64(0xdeadbeef), v.Uint)

	require.NoError(t, m.SetHex("00ff", NewString("raw")))
	assert.True(t, m.Has([]byte{0x00, 0xff}))
	require.Error(t, m.SetHex("0", NewUint(1)))

	assert.True(t, m.Delete([]byte{0x00, 0xff}))
	assert.False(t, m.DeleteHex("00ff"))
	assert.Equal(t, 1, m.Len())
}

func TestByteArrayMap_EntriesAreKeyOrdered(t *testing.T) {
	t.Parallel()

	m := NewByteArrayMap()
	m.Set([]byte("b"), NewUint(2))
	m.Set([]byte("ab"), NewUint(1))
	m.Set([]byte{}, NewUint(0))
	m.Set([]byte("a"), NewUint(3))

	var keys []string
	for _, e := range m.Entries() {
		keys = append(keys, string(e.Key))
	}
	assert.Equal(t, []string{"", "a", "ab", "b"}, keys)
}

func TestByteArrayMap_KeyIsCopied(t *testing.T) {
	t.Parallel()

	key := []byte("box-key-1")
	m := NewByteArrayMap()
	m.Set(key, NewString("box-value-1"))
	key[0] = 'X'

	_, ok := m.Get([]byte("box-key-1"))
	assert.True(t, ok)
}

func TestByteArrayMap_CloneIsDeep(t *testing.T) {
	t.Parallel()

	m := NewByteArrayMap()
	m.Set([]byte("k"), NewString("value"))

	cloned := m.Clone()
	cloned.Set([]byte("k"), NewUint(1))
	cloned.Set([]byte("other"), NewUint(2))

	v, _ := m.Get([]byte("k"))
	assert.Equal(t, NewString("value"), v)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 2, cloned.Len())
}
