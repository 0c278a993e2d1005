package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/weft/internal/content"
	"github.com/roach88/weft/internal/id"
	"github.com/roach88/weft/internal/value"
)

// storedSpan is the JSON form of one delete target.
type storedSpan struct {
	Client string     `json:"client"`
	Start  id.Counter `json:"start"`
	End    id.Counter `json:"end"`
}

// marshalJSON encodes v with HTML escaping disabled and no trailing newline.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// marshalParents encodes parents as a JSON array of counter@client strings.
func marshalParents(parents []id.ID) (string, error) {
	out := make([]string, len(parents))
	for i, p := range parents {
		out[i] = p.String()
	}
	s, err := marshalJSON(out)
	if err != nil {
		return "", fmt.Errorf("marshal parents: %w", err)
	}
	return s, nil
}

func unmarshalParents(data string) ([]id.ID, error) {
	var raw []string
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("unmarshal parents: %w", err)
	}
	out := make([]id.ID, 0, len(raw))
	for _, s := range raw {
		p, err := id.ParseID(s)
		if err != nil {
			return nil, fmt.Errorf("unmarshal parents: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

func marshalOrigin(origin *id.ID) sql.NullString {
	if origin == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: origin.String(), Valid: true}
}

func unmarshalOrigin(data sql.NullString) (*id.ID, error) {
	if !data.Valid {
		return nil, nil
	}
	o, err := id.ParseID(data.String)
	if err != nil {
		return nil, fmt.Errorf("unmarshal origin: %w", err)
	}
	return &o, nil
}

// marshalContent encodes insert content. Text is stored as a plain JSON
// string so its rune count survives the round trip. Lists use verbatim
// value JSON; NFC would merge strings and keys that differ only in
// normalization.
func marshalContent(c content.Slice) (sql.NullString, error) {
	switch body := c.(type) {
	case nil:
		return sql.NullString{}, nil
	case content.Text:
		s, err := marshalJSON(body.String())
		if err != nil {
			return sql.NullString{}, fmt.Errorf("marshal content: %w", err)
		}
		return sql.NullString{String: s, Valid: true}, nil
	case content.Values:
		data, err := value.MarshalVerbatim(body.ToValue())
		if err != nil {
			return sql.NullString{}, fmt.Errorf("marshal content: %w", err)
		}
		return sql.NullString{String: string(data), Valid: true}, nil
	}
	return sql.NullString{}, fmt.Errorf("marshal content: unsupported %T", c)
}

func unmarshalContent(data sql.NullString) (content.Slice, error) {
	if !data.Valid {
		return nil, nil
	}
	if strings.HasPrefix(data.String, `"`) {
		var s string
		if err := json.Unmarshal([]byte(data.String), &s); err != nil {
			return nil, fmt.Errorf("unmarshal content: %w", err)
		}
		return content.NewText(s), nil
	}
	v, err := value.UnmarshalCanonical([]byte(data.String))
	if err != nil {
		return nil, fmt.Errorf("unmarshal content: %w", err)
	}
	c, err := content.FromValue(v)
	if err != nil {
		return nil, fmt.Errorf("unmarshal content: %w", err)
	}
	return c, nil
}

func marshalTargets(targets []id.IDSpan) (sql.NullString, error) {
	if targets == nil {
		return sql.NullString{}, nil
	}
	out := make([]storedSpan, len(targets))
	for i, t := range targets {
		out[i] = storedSpan{
			Client: strconv.FormatUint(uint64(t.Client), 10),
			Start:  t.Start,
			End:    t.End,
		}
	}
	s, err := marshalJSON(out)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal targets: %w", err)
	}
	return sql.NullString{String: s, Valid: true}, nil
}

func unmarshalTargets(data sql.NullString) ([]id.IDSpan, error) {
	if !data.Valid {
		return nil, nil
	}
	var raw []storedSpan
	if err := json.Unmarshal([]byte(data.String), &raw); err != nil {
		return nil, fmt.Errorf("unmarshal targets: %w", err)
	}
	out := make([]id.IDSpan, 0, len(raw))
	for _, r := range raw {
		c, err := id.ParseClientID(r.Client)
		if err != nil {
			return nil, fmt.Errorf("unmarshal targets: %w", err)
		}
		if r.Start > r.End {
			return nil, fmt.Errorf("unmarshal targets: span start %d after end %d", r.Start, r.End)
		}
		out = append(out, id.IDSpan{Client: c, Start: r.Start, End: r.End})
	}
	return out, nil
}
