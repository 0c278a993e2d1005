package value

import (
	"fmt"
	"math"
	"sort"

	"github.com/roach88/weft/internal/crdterr"
)

// MaxDepth bounds list/map nesting. Scalars have depth 0; a list of
// scalars has depth 1.
const MaxDepth = 128

// Depth returns the nesting depth of v.
func Depth(v Value) int {
	type frame struct {
		v     Value
		depth int
	}
	maxDepth := 0
	stack := []frame{{orNull(v), 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		switch val := f.v.(type) {
		case List:
			maxDepth = max(maxDepth, f.depth+1)
			for _, item := range val.raw() {
				stack = append(stack, frame{item, f.depth + 1})
			}
		case Map:
			maxDepth = max(maxDepth, f.depth+1)
			for _, item := range val.raw() {
				stack = append(stack, frame{item, f.depth + 1})
			}
		}
	}
	return maxDepth
}

// Validate rejects values nested deeper than MaxDepth.
func Validate(v Value) error {
	if d := Depth(v); d > MaxDepth {
		return crdterr.New(crdterr.CodeDepthExceeded,
			"value nesting depth %d exceeds maximum %d", d, MaxDepth).
			With("depth", fmt.Sprint(d))
	}
	return nil
}

func wrongKind(want Kind, got Value) error {
	return crdterr.New(crdterr.CodeWrongKind, "expected %s, got %s", want, orNull(got).Kind()).
		With("want", want.String()).
		With("got", orNull(got).Kind().String())
}

// AsBool converts a Bool value.
func AsBool(v Value) (bool, error) {
	if b, ok := v.(Bool); ok {
		return bool(b), nil
	}
	return false, wrongKind(KindBool, v)
}

// AsDouble converts a Double value.
func AsDouble(v Value) (float64, error) {
	if d, ok := v.(Double); ok {
		return float64(d), nil
	}
	return 0, wrongKind(KindDouble, v)
}

// AsI64 converts an I64 value.
func AsI64(v Value) (int64, error) {
	if i, ok := v.(I64); ok {
		return int64(i), nil
	}
	return 0, wrongKind(KindI64, v)
}

// AsBinary converts a Binary value. The returned slice is a copy.
func AsBinary(v Value) ([]byte, error) {
	if b, ok := v.(Binary); ok {
		return b.Bytes(), nil
	}
	return nil, wrongKind(KindBinary, v)
}

// AsString converts a String value.
func AsString(v Value) (string, error) {
	if s, ok := v.(String); ok {
		return s.Str(), nil
	}
	return "", wrongKind(KindString, v)
}

// AsList converts a List value.
func AsList(v Value) (List, error) {
	if l, ok := v.(List); ok {
		return l, nil
	}
	return List{}, wrongKind(KindList, v)
}

// AsMap converts a Map value.
func AsMap(v Value) (Map, error) {
	if m, ok := v.(Map); ok {
		return m, nil
	}
	return Map{}, wrongKind(KindMap, v)
}

// AsContainer converts a ContainerRef value.
func AsContainer(v Value) (ContainerID, error) {
	if c, ok := v.(ContainerRef); ok {
		return c.ID, nil
	}
	return "", wrongKind(KindContainer, v)
}

// Index returns m[key] if v is a map holding key, otherwise Null.
func Index(v Value, key string) Value {
	if m, ok := v.(Map); ok {
		if item, ok := m.Get(key); ok {
			return item
		}
	}
	return Null{}
}

// At returns l[i] if v is a list long enough, otherwise Null.
func At(v Value, i int) Value {
	if l, ok := v.(List); ok {
		return l.At(i)
	}
	return Null{}
}

// GetByPath walks nested maps (string segments) and lists (int segments).
// Missing segments yield Null.
func GetByPath(v Value, path ...any) Value {
	cur := orNull(v)
	for _, seg := range path {
		switch s := seg.(type) {
		case string:
			cur = Index(cur, s)
		case int:
			cur = At(cur, s)
		default:
			return Null{}
		}
	}
	return cur
}

// FromGo converts a host value into a Value and validates its depth.
// Supported inputs: nil, bool, signed and unsigned integers, floats,
// string, []byte, ContainerID, Value, []any, []Value, map[string]any and
// map[string]Value.
func FromGo(x any) (Value, error) {
	v, err := fromGo(x, 0)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func fromGo(x any, depth int) (Value, error) {
	switch val := x.(type) {
	case nil:
		return Null{}, nil
	case Value:
		if d := Depth(val); depth+d > MaxDepth {
			return nil, crdterr.New(crdterr.CodeDepthExceeded,
				"value nesting depth %d exceeds maximum %d", depth+d, MaxDepth)
		}
		return val, nil
	case bool:
		return Bool(val), nil
	case int:
		return I64(val), nil
	case int8:
		return I64(val), nil
	case int16:
		return I64(val), nil
	case int32:
		return I64(val), nil
	case int64:
		return I64(val), nil
	case uint8:
		return I64(val), nil
	case uint16:
		return I64(val), nil
	case uint32:
		return I64(val), nil
	case uint:
		return fromUint(uint64(val))
	case uint64:
		return fromUint(val)
	case float32:
		return Double(val), nil
	case float64:
		return Double(val), nil
	case string:
		return NewString(val), nil
	case []byte:
		return NewBinary(val), nil
	case ContainerID:
		return ContainerRef{ID: val}, nil
	case []Value:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = item
		}
		return fromGoList(items, depth)
	case []any:
		return fromGoList(val, depth)
	case map[string]Value:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[k] = item
		}
		return fromGoMap(m, depth)
	case map[string]any:
		return fromGoMap(val, depth)
	default:
		return nil, crdterr.New(crdterr.CodeWrongKind, "unsupported host type %T", x)
	}
}

func fromUint(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return nil, crdterr.New(crdterr.CodeWrongKind, "integer %d overflows i64", u)
	}
	return I64(u), nil
}

func fromGoList(items []any, depth int) (Value, error) {
	if depth+1 > MaxDepth {
		return nil, crdterr.New(crdterr.CodeDepthExceeded,
			"value nesting depth exceeds maximum %d", MaxDepth)
	}
	out := make([]Value, len(items))
	for i, item := range items {
		v, err := fromGo(item, depth+1)
		if err != nil {
			return nil, fmt.Errorf("list[%d]: %w", i, err)
		}
		out[i] = v
	}
	return List{p: newShared(out)}, nil
}

func fromGoMap(m map[string]any, depth int) (Value, error) {
	if depth+1 > MaxDepth {
		return nil, crdterr.New(crdterr.CodeDepthExceeded,
			"value nesting depth exceeds maximum %d", MaxDepth)
	}
	// Sorted iteration makes the first reported error deterministic.
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]Value, len(m))
	for _, k := range keys {
		v, err := fromGo(m[k], depth+1)
		if err != nil {
			return nil, fmt.Errorf("map[%q]: %w", k, err)
		}
		out[k] = v
	}
	return Map{p: newShared(out)}, nil
}

// ToGo converts v into plain host values: nil, bool, float64, int64,
// []byte, string, []any, map[string]any and ContainerID.
func ToGo(v Value) any {
	switch val := orNull(v).(type) {
	case Null:
		return nil
	case Bool:
		return bool(val)
	case Double:
		return float64(val)
	case I64:
		return int64(val)
	case Binary:
		return val.Bytes()
	case String:
		return val.Str()
	case List:
		out := make([]any, 0, val.Len())
		for _, item := range val.raw() {
			out = append(out, ToGo(item))
		}
		return out
	case Map:
		out := make(map[string]any, val.Len())
		for k, item := range val.raw() {
			out[k] = ToGo(item)
		}
		return out
	case ContainerRef:
		return val.ID
	}
	return nil
}
