package codec

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Kind is the wire type of a field value.
type Kind byte

const (
	KindString Kind = 's'
	KindInt    Kind = 'i'
	KindBytes  Kind = 'b'
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindBytes:
		return "bytes"
	default:
		return fmt.Sprintf("kind(%#x)", byte(k))
	}
}

// Value holds one typed field value.
type Value struct {
	Kind  Kind
	Str   string
	Int   int64
	Bytes []byte
}

type field struct {
	key string
	val Value
}

// Map is an insertion ordered collection of typed fields with unique keys.
// Setting an existing key replaces its value in place.
type Map struct {
	fields []field
}

func NewMap() *Map {
	return &Map{}
}

func (m *Map) Len() int {
	return len(m.fields)
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	keys := make([]string, len(m.fields))
	for i, f := range m.fields {
		keys[i] = f.key
	}
	return keys
}

func (m *Map) Get(key string) (Value, bool) {
	for _, f := range m.fields {
		if f.key == key {
			return f.val, true
		}
	}
	return Value{}, false
}

func (m *Map) Set(key string, v Value) *Map {
	for i := range m.fields {
		if m.fields[i].key == key {
			m.fields[i].val = v
			return m
		}
	}
	m.fields = append(m.fields, field{key: key, val: v})
	return m
}

func (m *Map) SetString(key, v string) *Map {
	return m.Set(key, Value{Kind: KindString, Str: v})
}

func (m *Map) SetInt(key string, v int64) *Map {
	return m.Set(key, Value{Kind: KindInt, Int: v})
}

// SetBytes stores a copy of v.
func (m *Map) SetBytes(key string, v []byte) *Map {
	return m.Set(key, Value{Kind: KindBytes, Bytes: append([]byte{}, v...)})
}

// GetString returns the value of a string field. ok is false when the key is
// missing or holds another kind.
func (m *Map) GetString(key string) (string, bool) {
	v, ok := m.Get(key)
	if !ok || v.Kind != KindString {
		return "", false
	}
	return v.Str, true
}

func (m *Map) GetInt(key string) (int64, bool) {
	v, ok := m.Get(key)
	if !ok || v.Kind != KindInt {
		return 0, false
	}
	return v.Int, true
}

func (m *Map) GetBytes(key string) ([]byte, bool) {
	v, ok := m.Get(key)
	if !ok || v.Kind != KindBytes {
		return nil, false
	}
	return v.Bytes, true
}

// Debug renders the map for diagnostics, buffers as hex.
func (m *Map) Debug() string {
	var b strings.Builder
	b.WriteString("{")
	for i, f := range m.fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.key)
		b.WriteString(":")
		switch f.val.Kind {
		case KindString:
			fmt.Fprintf(&b, "%q", f.val.Str)
		case KindInt:
			fmt.Fprintf(&b, "%d", f.val.Int)
		case KindBytes:
			b.WriteString("0x")
			b.WriteString(hex.EncodeToString(f.val.Bytes))
		}
	}
	b.WriteString("}")
	return b.String()
}
