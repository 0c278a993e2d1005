package value

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Tagged object keys for the variants JSON cannot express directly.
const (
	tagBinary    = "$binary"
	tagContainer = "$container"
)

// MarshalCanonical encodes v as canonical JSON:
//   - map keys sorted by UTF-16 code units (RFC 8785)
//   - strings NFC-normalized, no HTML escaping
//   - doubles always carry a fraction or exponent; NaN and Inf are rejected
//   - Binary as {"$binary":"<base64>"}, ContainerRef as {"$container":"<id>"}
//   - user keys beginning with '$' are escaped by doubling the '$'
func MarshalCanonical(v Value) ([]byte, error) {
	return marshal(v, true)
}

// MarshalVerbatim encodes v like MarshalCanonical but writes strings and
// map keys exactly as stored. UnmarshalCanonical reads the result back to
// an Equal value, which NFC output does not guarantee.
func MarshalVerbatim(v Value) ([]byte, error) {
	return marshal(v, false)
}

func marshal(v Value, nfc bool) ([]byte, error) {
	var buf bytes.Buffer
	w := canonicalWriter{buf: &buf, nfc: nfc}
	if err := w.write(orNull(v)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type canonicalWriter struct {
	buf *bytes.Buffer
	nfc bool
}

func (w canonicalWriter) write(v Value) error {
	buf := w.buf
	switch val := v.(type) {
	case Null:
		buf.WriteString("null")
	case Bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case I64:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case Double:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("double %v has no JSON representation", f)
		}
		s := strconv.FormatFloat(f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".e") {
			s += ".0"
		}
		buf.WriteString(s)
	case String:
		return w.writeString(val.Str())
	case Binary:
		buf.WriteString(`{"` + tagBinary + `":"`)
		buf.WriteString(base64.StdEncoding.EncodeToString(val.raw()))
		buf.WriteString(`"}`)
	case ContainerRef:
		buf.WriteString(`{"` + tagContainer + `":`)
		if err := w.writeString(string(val.ID)); err != nil {
			return err
		}
		buf.WriteByte('}')
	case List:
		buf.WriteByte('[')
		for i, item := range val.raw() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := w.write(item); err != nil {
				return fmt.Errorf("list[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case Map:
		buf.WriteByte('{')
		i := 0
		for k, item := range val.All() {
			if i > 0 {
				buf.WriteByte(',')
			}
			i++
			if err := w.writeString(escapeKey(k)); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := w.write(item); err != nil {
				return fmt.Errorf("map[%q]: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported value %T", v)
	}
	return nil
}

func escapeKey(k string) string {
	if strings.HasPrefix(k, "$") {
		return "$" + k
	}
	return k
}

func unescapeKey(k string) string {
	if strings.HasPrefix(k, "$$") {
		return k[1:]
	}
	return k
}

// writeString writes s as a JSON string, NFC-normalized unless the writer
// is verbatim. Only control characters, backslash and quote are escaped.
func (w canonicalWriter) writeString(s string) error {
	if w.nfc {
		s = norm.NFC.String(s)
	}
	buf := w.buf
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	out := bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'})

	// encoding/json escapes U+2028 and U+2029; RFC 8785 does not.
	for i := 0; i < len(out); i++ {
		if out[i] != '\\' || i+1 >= len(out) {
			buf.WriteByte(out[i])
			continue
		}
		if out[i+1] == 'u' && i+6 <= len(out) {
			switch string(out[i+2 : i+6]) {
			case "2028":
				buf.WriteString("\u2028")
				i += 5
				continue
			case "2029":
				buf.WriteString("\u2029")
				i += 5
				continue
			}
		}
		buf.Write(out[i : i+2])
		i++
	}
	return nil
}

// UnmarshalCanonical decodes JSON produced by MarshalCanonical and
// validates the depth bound.
func UnmarshalCanonical(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode value: trailing data")
	}

	v, err := fromJSON(raw)
	if err != nil {
		return nil, err
	}
	if err := Validate(v); err != nil {
		return nil, err
	}
	return v, nil
}

func fromJSON(raw any) (Value, error) {
	switch val := raw.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(val), nil
	case string:
		return NewString(val), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			f, err := val.Float64()
			if err != nil {
				return nil, fmt.Errorf("decode double %s: %w", s, err)
			}
			return Double(f), nil
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of i64 range: %s", s)
		}
		return I64(n), nil
	case []any:
		items := make([]Value, len(val))
		for i, item := range val {
			v, err := fromJSON(item)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			items[i] = v
		}
		return List{p: newShared(items)}, nil
	case map[string]any:
		if len(val) == 1 {
			if s, ok := val[tagBinary].(string); ok {
				b, err := base64.StdEncoding.DecodeString(s)
				if err != nil {
					return nil, fmt.Errorf("decode binary: %w", err)
				}
				return Binary{p: newShared(b)}, nil
			}
			if s, ok := val[tagContainer].(string); ok {
				return ContainerRef{ID: ContainerID(s)}, nil
			}
		}
		m := make(map[string]Value, len(val))
		for k, item := range val {
			v, err := fromJSON(item)
			if err != nil {
				return nil, fmt.Errorf("map[%q]: %w", k, err)
			}
			m[unescapeKey(k)] = v
		}
		return Map{p: newShared(m)}, nil
	}
	return nil, fmt.Errorf("unsupported JSON value %T", raw)
}
