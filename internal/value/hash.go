package value

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"hash"
	"math"
)

// domainValue separates value hashes from any other SHA-256 use.
const domainValue = "weft/value/v1"

// Hash returns the structural hash of v. It agrees with Equal: equal values
// hash equally. Container references hash by identifier only.
func Hash(v Value) uint64 {
	switch val := orNull(v).(type) {
	case Binary:
		if val.p == nil {
			return hashScalar(KindBinary, nil)
		}
		return val.p.cachedHash(func() uint64 { return hashScalar(KindBinary, val.p.data) })
	case String:
		if val.p == nil {
			return hashScalar(KindString, nil)
		}
		return val.p.cachedHash(func() uint64 { return hashScalar(KindString, []byte(val.p.data)) })
	case List:
		if val.p == nil {
			return hashList(nil)
		}
		return val.p.cachedHash(func() uint64 { return hashList(val.p.data) })
	case Map:
		if val.p == nil {
			return hashMap(Map{})
		}
		return val.p.cachedHash(func() uint64 { return hashMap(val) })
	case Null:
		return hashScalar(KindNull, nil)
	case Bool:
		if val {
			return hashScalar(KindBool, []byte{1})
		}
		return hashScalar(KindBool, []byte{0})
	case Double:
		return hashScalar(KindDouble, binary.BigEndian.AppendUint64(nil, math.Float64bits(float64(val))))
	case I64:
		return hashScalar(KindI64, binary.BigEndian.AppendUint64(nil, uint64(val)))
	case ContainerRef:
		return hashScalar(KindContainer, []byte(val.ID))
	}
	panic("value: unknown variant")
}

func newDigest(k Kind) hash.Hash {
	h := sha256.New()
	h.Write([]byte(domainValue))
	h.Write([]byte{0x00, byte(k)})
	return h
}

func sum64(h hash.Hash) uint64 {
	return binary.BigEndian.Uint64(h.Sum(nil)[:8])
}

func writeLen(h hash.Hash, n int) {
	h.Write(binary.BigEndian.AppendUint64(nil, uint64(n)))
}

func hashScalar(k Kind, data []byte) uint64 {
	h := newDigest(k)
	writeLen(h, len(data))
	h.Write(data)
	return sum64(h)
}

func hashList(items []Value) uint64 {
	h := newDigest(KindList)
	writeLen(h, len(items))
	for _, item := range items {
		h.Write(binary.BigEndian.AppendUint64(nil, Hash(item)))
	}
	return sum64(h)
}

func hashMap(m Map) uint64 {
	h := newDigest(KindMap)
	writeLen(h, m.Len())
	for k, v := range m.All() {
		writeLen(h, len(k))
		h.Write([]byte(k))
		h.Write(binary.BigEndian.AppendUint64(nil, Hash(v)))
	}
	return sum64(h)
}

// Equal reports structural equality. Doubles compare by bit pattern so
// that equality agrees with Hash.
func Equal(a, b Value) bool {
	a, b = orNull(a), orNull(b)
	if a.Kind() != b.Kind() {
		return false
	}
	switch av := a.(type) {
	case Null:
		return true
	case Bool:
		return av == b.(Bool)
	case Double:
		return math.Float64bits(float64(av)) == math.Float64bits(float64(b.(Double)))
	case I64:
		return av == b.(I64)
	case ContainerRef:
		return av.ID == b.(ContainerRef).ID
	case Binary:
		bv := b.(Binary)
		return av.p == bv.p || bytes.Equal(av.raw(), bv.raw())
	case String:
		return av.Str() == b.(String).Str()
	case List:
		bv := b.(List)
		if av.p == bv.p {
			return true
		}
		if av.Len() != bv.Len() || !cachedHashesAgree(av.p, bv.p) {
			return false
		}
		for i, item := range av.raw() {
			if !Equal(item, bv.raw()[i]) {
				return false
			}
		}
		return true
	case Map:
		bv := b.(Map)
		if av.p == bv.p {
			return true
		}
		if av.Len() != bv.Len() || !cachedHashesAgree(av.p, bv.p) {
			return false
		}
		for k, v := range av.raw() {
			ov, ok := bv.raw()[k]
			if !ok || !Equal(v, ov) {
				return false
			}
		}
		return true
	}
	return false
}

// cachedHashesAgree is false only when both hashes are already published
// and differ.
func cachedHashesAgree[T any](a, b *shared[T]) bool {
	if a == nil || b == nil {
		return true
	}
	ha, hb := a.hash.Load(), b.hash.Load()
	return ha == nil || hb == nil || *ha == *hb
}
