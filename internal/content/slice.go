package content

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/weft/internal/value"
)

// Slice is a run of sequence content addressed by element offset.
// Implementations are immutable once handed to the store.
type Slice interface {
	Len() int
	// Slice returns elements [from, to).
	Slice(from, to int) Slice
	// ToValue returns the content as a value: String for text, List for values.
	ToValue() value.Value
}

// Text is content of a text container: one element per rune.
type Text []rune

// NewText converts s to Text.
func NewText(s string) Text {
	return Text([]rune(s))
}

func (t Text) Len() int { return len(t) }

func (t Text) Slice(from, to int) Slice { return t[from:to:to] }

func (t Text) ToValue() value.Value { return value.NewString(string(t)) }

func (t Text) String() string { return string(t) }

// Values is content of a list container: one element per value.
type Values []value.Value

func (v Values) Len() int { return len(v) }

func (v Values) Slice(from, to int) Slice { return v[from:to:to] }

func (v Values) ToValue() value.Value { return value.NewList(v...) }

// FromValue converts a String into Text and a List into Values. Lists
// are depth-checked since they carry user-supplied content.
func FromValue(v value.Value) (Slice, error) {
	switch val := v.(type) {
	case value.String:
		return NewText(val.Str()), nil
	case value.List:
		if err := value.Validate(val); err != nil {
			return nil, err
		}
		return Values(val.Items()), nil
	}
	return nil, fmt.Errorf("content from %T: want string or list value", v)
}

// Concat joins slices of the same kind. It returns nil for no input.
func Concat(parts ...Slice) Slice {
	if len(parts) == 0 {
		return nil
	}
	switch parts[0].(type) {
	case Text:
		var b strings.Builder
		for _, p := range parts {
			b.WriteString(string(p.(Text)))
		}
		return NewText(b.String())
	case Values:
		var out Values
		for _, p := range parts {
			out = append(out, p.(Values)...)
		}
		return slices.Clip(out)
	}
	panic(fmt.Sprintf("content: unknown slice type %T", parts[0]))
}

// Equal compares two slices element-wise.
func Equal(a, b Slice) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case Text:
		bv, ok := b.(Text)
		return ok && slices.Equal(av, bv)
	case Values:
		bv, ok := b.(Values)
		return ok && slices.EqualFunc(av, bv, value.Equal)
	}
	return false
}
