package value

import (
	"bytes"
	"iter"
	"maps"
	"slices"
	"sync/atomic"
	"unicode/utf16"
)

// Kind identifies a Value variant.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindDouble
	KindI64
	KindBinary
	KindString
	KindList
	KindMap
	KindContainer
)

var kindNames = [...]string{
	KindNull:      "null",
	KindBool:      "bool",
	KindDouble:    "double",
	KindI64:       "i64",
	KindBinary:    "binary",
	KindString:    "string",
	KindList:      "list",
	KindMap:       "map",
	KindContainer: "container",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Value is the closed union of content and container-reference values.
// Only types in this package implement it.
type Value interface {
	Kind() Kind
	isValue()
}

// Null is the absent value.
type Null struct{}

// Bool is a boolean value.
type Bool bool

// Double is a 64-bit float value.
type Double float64

// I64 is a 64-bit signed integer value.
type I64 int64

// ContainerID is an opaque container identifier.
type ContainerID string

// ContainerRef refers to a container by identifier, never by content.
type ContainerRef struct {
	ID ContainerID
}

func (Null) Kind() Kind         { return KindNull }
func (Bool) Kind() Kind         { return KindBool }
func (Double) Kind() Kind       { return KindDouble }
func (I64) Kind() Kind          { return KindI64 }
func (Binary) Kind() Kind       { return KindBinary }
func (String) Kind() Kind       { return KindString }
func (List) Kind() Kind         { return KindList }
func (Map) Kind() Kind          { return KindMap }
func (ContainerRef) Kind() Kind { return KindContainer }

func (Null) isValue()         {}
func (Bool) isValue()         {}
func (Double) isValue()       {}
func (I64) isValue()          {}
func (Binary) isValue()       {}
func (String) isValue()       {}
func (List) isValue()         {}
func (Map) isValue()          {}
func (ContainerRef) isValue() {}

// shared is an immutable payload with a compute-once hash cell.
// The payload is never written after construction.
type shared[T any] struct {
	data T
	hash atomic.Pointer[uint64]
}

func newShared[T any](data T) *shared[T] {
	return &shared[T]{data: data}
}

// cachedHash returns the published hash, computing it if absent. Racing
// callers compute the same value; the first CompareAndSwap wins.
func (s *shared[T]) cachedHash(compute func() uint64) uint64 {
	if h := s.hash.Load(); h != nil {
		return *h
	}
	h := compute()
	if !s.hash.CompareAndSwap(nil, &h) {
		return *s.hash.Load()
	}
	return h
}

// Binary is an immutable byte blob.
type Binary struct {
	p *shared[[]byte]
}

// NewBinary copies b into a new blob.
func NewBinary(b []byte) Binary {
	return Binary{p: newShared(bytes.Clone(b))}
}

// Bytes returns a copy of the blob.
func (b Binary) Bytes() []byte {
	if b.p == nil {
		return []byte{}
	}
	return bytes.Clone(b.p.data)
}

// Len returns the blob length.
func (b Binary) Len() int {
	if b.p == nil {
		return 0
	}
	return len(b.p.data)
}

func (b Binary) raw() []byte {
	if b.p == nil {
		return nil
	}
	return b.p.data
}

// String is an immutable UTF-8 string.
type String struct {
	p *shared[string]
}

// NewString wraps s.
func NewString(s string) String {
	return String{p: newShared(s)}
}

// Str returns the underlying string.
func (s String) Str() string {
	if s.p == nil {
		return ""
	}
	return s.p.data
}

// String implements fmt.Stringer.
func (s String) String() string {
	return s.Str()
}

// List is an immutable ordered list of values.
type List struct {
	p *shared[[]Value]
}

// NewList copies items into a new list. Nil items become Null.
func NewList(items ...Value) List {
	data := make([]Value, len(items))
	for i, v := range items {
		data[i] = orNull(v)
	}
	return List{p: newShared(data)}
}

func (l List) raw() []Value {
	if l.p == nil {
		return nil
	}
	return l.p.data
}

// Len returns the number of items.
func (l List) Len() int {
	return len(l.raw())
}

// At returns item i, or Null if i is out of range.
func (l List) At(i int) Value {
	items := l.raw()
	if i < 0 || i >= len(items) {
		return Null{}
	}
	return items[i]
}

// Items returns a copy of the items.
func (l List) Items() []Value {
	return slices.Clone(l.raw())
}

// All iterates over index/item pairs.
func (l List) All() iter.Seq2[int, Value] {
	return slices.All(l.raw())
}

// Append returns a new list with vals appended.
func (l List) Append(vals ...Value) List {
	return NewList(append(l.Items(), vals...)...)
}

// Set returns a new list with item i replaced. It panics if i is out of range.
func (l List) Set(i int, v Value) List {
	items := l.Items()
	items[i] = orNull(v)
	return List{p: newShared(items)}
}

// Map is an immutable string-keyed mapping. Key order is irrelevant.
type Map struct {
	p *shared[map[string]Value]
}

// NewMap copies m into a new map. Nil values become Null.
func NewMap(m map[string]Value) Map {
	data := make(map[string]Value, len(m))
	for k, v := range m {
		data[k] = orNull(v)
	}
	return Map{p: newShared(data)}
}

func (m Map) raw() map[string]Value {
	if m.p == nil {
		return nil
	}
	return m.p.data
}

// Len returns the number of entries.
func (m Map) Len() int {
	return len(m.raw())
}

// Get returns the value stored under key.
func (m Map) Get(key string) (Value, bool) {
	v, ok := m.raw()[key]
	return v, ok
}

// Keys returns the keys in RFC 8785 order (UTF-16 code units).
func (m Map) Keys() []string {
	keys := slices.Collect(maps.Keys(m.raw()))
	slices.SortFunc(keys, compareKeysUTF16)
	return keys
}

// All iterates over entries in key order.
func (m Map) All() iter.Seq2[string, Value] {
	return func(yield func(string, Value) bool) {
		data := m.raw()
		for _, k := range m.Keys() {
			if !yield(k, data[k]) {
				return
			}
		}
	}
}

// With returns a new map with key set to v.
func (m Map) With(key string, v Value) Map {
	data := maps.Clone(m.raw())
	if data == nil {
		data = make(map[string]Value, 1)
	}
	data[key] = orNull(v)
	return Map{p: newShared(data)}
}

// Without returns a new map with key removed.
func (m Map) Without(key string) Map {
	data := maps.Clone(m.raw())
	delete(data, key)
	if data == nil {
		data = map[string]Value{}
	}
	return Map{p: newShared(data)}
}

func orNull(v Value) Value {
	if v == nil {
		return Null{}
	}
	return v
}

// compareKeysUTF16 orders strings by UTF-16 code units as RFC 8785 requires.
// Byte order differs for characters above the BMP.
func compareKeysUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}
