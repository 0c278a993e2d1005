package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/weft/internal/id"
	"github.com/roach88/weft/internal/op"
)

// ReadOps returns every record of a container.
// Results are ordered deterministically: ORDER BY seq, client, counter.
//
// Returns an empty slice (not nil) if the container has no ops.
func (s *Store) ReadOps(ctx context.Context, containerID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT client, counter, len, kind, lamport, parents, origin, content, targets, seq
		FROM ops
		WHERE container_id = ?
		ORDER BY seq ASC, client COLLATE BINARY ASC, counter ASC
	`, containerID)
	if err != nil {
		return nil, fmt.Errorf("query ops: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ops: %w", err)
	}
	return records, nil
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		r                        Record
		client, kind, parents    string
		counter                  int64
		origin, body, targetsCol sql.NullString
	)
	err := rows.Scan(&client, &counter, &r.Op.Len, &kind, &r.Lamport, &parents, &origin, &body, &targetsCol, &r.Seq)
	if err != nil {
		return Record{}, fmt.Errorf("scan op: %w", err)
	}

	c, err := id.ParseClientID(client)
	if err != nil {
		return Record{}, fmt.Errorf("scan op: %w", err)
	}
	r.Op.ID = id.New(c, id.Counter(counter))
	if r.Op.Kind, err = op.ParseKind(kind); err != nil {
		return Record{}, fmt.Errorf("scan op %s: %w", r.Op.ID, err)
	}
	if r.Op.Parents, err = unmarshalParents(parents); err != nil {
		return Record{}, fmt.Errorf("scan op %s: %w", r.Op.ID, err)
	}
	if r.Op.Origin, err = unmarshalOrigin(origin); err != nil {
		return Record{}, fmt.Errorf("scan op %s: %w", r.Op.ID, err)
	}
	if r.Op.Content, err = unmarshalContent(body); err != nil {
		return Record{}, fmt.Errorf("scan op %s: %w", r.Op.ID, err)
	}
	if r.Op.Targets, err = unmarshalTargets(targetsCol); err != nil {
		return Record{}, fmt.Errorf("scan op %s: %w", r.Op.ID, err)
	}
	return r, nil
}

// ReadContainers returns every registered container ordered by id.
func (s *Store) ReadContainers(ctx context.Context) ([]ContainerRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind FROM containers ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query containers: %w", err)
	}
	defer rows.Close()

	out := []ContainerRow{}
	for rows.Next() {
		var c ContainerRow
		if err := rows.Scan(&c.ID, &c.Kind); err != nil {
			return nil, fmt.Errorf("scan container: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate containers: %w", err)
	}
	return out, nil
}

// ReadContainer returns one container, or false if it is not registered.
func (s *Store) ReadContainer(ctx context.Context, containerID string) (ContainerRow, bool, error) {
	c := ContainerRow{ID: containerID}
	err := s.db.QueryRowContext(ctx, `SELECT kind FROM containers WHERE id = ?`, containerID).Scan(&c.Kind)
	if err == sql.ErrNoRows {
		return ContainerRow{}, false, nil
	}
	if err != nil {
		return ContainerRow{}, false, fmt.Errorf("read container %s: %w", containerID, err)
	}
	return c, true, nil
}

// MaxSeq returns the highest seq in the log, or 0 for an empty log.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM ops`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq.Int64, nil
}
