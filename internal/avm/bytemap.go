package avm

import (
	"bytes"

	"github.com/avmdbg/avmdbg/common/hexutil"
	"github.com/google/btree"
)

const byteMapDegree = 8

type byteMapEntry struct {
	hexKey string
	key    []byte
	value  Value
}

func lessByteMapEntry(a, b byteMapEntry) bool {
	return a.hexKey < b.hexKey
}

// Entry is a key/value pair of a ByteArrayMap.
type Entry struct {
	Key   []byte
	Value Value
}

// ByteArrayMap maps raw byte keys to AVM values. Keys are stored under their lowercase hex
// encoding, so iteration order equals the lexicographic order of the raw keys.
type ByteArrayMap struct {
	tree *btree.BTreeG[byteMapEntry]
}

func NewByteArrayMap() *ByteArrayMap {
	return &ByteArrayMap{
		tree: btree.NewG(byteMapDegree, lessByteMapEntry),
	}
}

func (m *ByteArrayMap) Len() int {
	return m.tree.Len()
}

func (m *ByteArrayMap) Get(key []byte) (Value, bool) {
	return m.GetHex(hexutil.EncodeNo0x(key))
}

// GetHex looks a value up by the pre-encoded key (hex without 0x prefix).
func (m *ByteArrayMap) GetHex(hexKey string) (Value, bool) {
	e, ok := m.tree.Get(byteMapEntry{hexKey: hexKey})
	return e.value, ok
}

func (m *ByteArrayMap) Has(key []byte) bool {
	return m.tree.Has(byteMapEntry{hexKey: hexutil.EncodeNo0x(key)})
}

func (m *ByteArrayMap) Set(key []byte, value Value) {
	m.tree.ReplaceOrInsert(byteMapEntry{
		hexKey: hexutil.EncodeNo0x(key),
		key:    bytes.Clone(key),
		value:  value,
	})
}

// SetHex stores a value under a pre-encoded key.
func (m *ByteArrayMap) SetHex(hexKey string, value Value) error {
	key, err := hexutil.DecodeHex(hexKey)
	if err != nil {
		return err
	}
	m.Set(key, value)
	return nil
}

func (m *ByteArrayMap) Delete(key []byte) bool {
	return m.DeleteHex(hexutil.EncodeNo0x(key))
}

func (m *ByteArrayMap) DeleteHex(hexKey string) bool {
	_, found := m.tree.Delete(byteMapEntry{hexKey: hexKey})
	return found
}

// Ascend iterates entries in key order until fn returns false.
func (m *ByteArrayMap) Ascend(fn func(key []byte, value Value) bool) {
	m.tree.Ascend(func(e byteMapEntry) bool {
		return fn(e.key, e.value)
	})
}

func (m *ByteArrayMap) Entries() []Entry {
	entries := make([]Entry, 0, m.Len())
	m.Ascend(func(key []byte, value Value) bool {
		entries = append(entries, Entry{Key: key, Value: value})
		return true
	})
	return entries
}

// Clone returns a deep copy: neither keys nor values are shared with the receiver.
func (m *ByteArrayMap) Clone() *ByteArrayMap {
	cloned := NewByteArrayMap()
	m.tree.Ascend(func(e byteMapEntry) bool {
		cloned.tree.ReplaceOrInsert(byteMapEntry{
			hexKey: e.hexKey,
			key:    bytes.Clone(e.key),
			value:  e.value.Clone(),
		})
		return true
	})
	return cloned
}
