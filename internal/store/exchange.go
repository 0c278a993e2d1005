package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/weft/internal/id"
	"github.com/roach88/weft/internal/op"
)

// Batch is a set of ops for one container, as exchanged between replicas.
type Batch struct {
	Container string
	Kind      string
	Ops       []op.Op
}

// wireBatch and wireOp are the JSON form of a Batch. Columns use the same
// encodings as the ops table.
type wireBatch struct {
	Container string   `json:"container"`
	Kind      string   `json:"kind"`
	Ops       []wireOp `json:"ops"`
}

type wireOp struct {
	ID      string          `json:"id"`
	Len     int             `json:"len"`
	Kind    string          `json:"kind"`
	Parents json.RawMessage `json:"parents"`
	Origin  *string         `json:"origin,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
	Targets json.RawMessage `json:"targets,omitempty"`
}

// MarshalBatch encodes b as JSON.
func MarshalBatch(b Batch) ([]byte, error) {
	w := wireBatch{Container: b.Container, Kind: b.Kind, Ops: make([]wireOp, 0, len(b.Ops))}
	for _, o := range b.Ops {
		parents, err := marshalParents(o.Parents)
		if err != nil {
			return nil, fmt.Errorf("marshal op %s: %w", o.ID, err)
		}
		body, err := marshalContent(o.Content)
		if err != nil {
			return nil, fmt.Errorf("marshal op %s: %w", o.ID, err)
		}
		targets, err := marshalTargets(o.Targets)
		if err != nil {
			return nil, fmt.Errorf("marshal op %s: %w", o.ID, err)
		}
		wo := wireOp{
			ID:      o.ID.String(),
			Len:     o.Len,
			Kind:    o.Kind.String(),
			Parents: json.RawMessage(parents),
			Content: rawColumn(body),
			Targets: rawColumn(targets),
		}
		if origin := marshalOrigin(o.Origin); origin.Valid {
			wo.Origin = &origin.String
		}
		w.Ops = append(w.Ops, wo)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(w); err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBatch decodes JSON written by MarshalBatch. Every op is
// validated; unknown fields are rejected.
func UnmarshalBatch(data []byte) (Batch, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var w wireBatch
	if err := dec.Decode(&w); err != nil {
		return Batch{}, fmt.Errorf("unmarshal batch: %w", err)
	}

	b := Batch{Container: w.Container, Kind: w.Kind, Ops: make([]op.Op, 0, len(w.Ops))}
	for i, wo := range w.Ops {
		o, err := decodeWireOp(wo)
		if err != nil {
			return Batch{}, fmt.Errorf("unmarshal batch: ops[%d]: %w", i, err)
		}
		b.Ops = append(b.Ops, o)
	}
	return b, nil
}

func decodeWireOp(wo wireOp) (op.Op, error) {
	opID, err := id.ParseID(wo.ID)
	if err != nil {
		return op.Op{}, err
	}
	kind, err := op.ParseKind(wo.Kind)
	if err != nil {
		return op.Op{}, err
	}
	o := op.Op{ID: opID, Len: wo.Len, Kind: kind}

	if len(wo.Parents) > 0 {
		if o.Parents, err = unmarshalParents(string(wo.Parents)); err != nil {
			return op.Op{}, err
		}
	}
	origin := sql.NullString{}
	if wo.Origin != nil {
		origin = sql.NullString{String: *wo.Origin, Valid: true}
	}
	if o.Origin, err = unmarshalOrigin(origin); err != nil {
		return op.Op{}, err
	}
	if o.Content, err = unmarshalContent(columnOf(wo.Content)); err != nil {
		return op.Op{}, err
	}
	if o.Targets, err = unmarshalTargets(columnOf(wo.Targets)); err != nil {
		return op.Op{}, err
	}
	if err := o.Validate(); err != nil {
		return op.Op{}, err
	}
	return o, nil
}

func rawColumn(col sql.NullString) json.RawMessage {
	if !col.Valid {
		return nil
	}
	return json.RawMessage(col.String)
}

func columnOf(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 || string(raw) == "null" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}
