package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/roach88/weft/internal/op"
)

// Record is one persisted operation.
type Record struct {
	Op      op.Op
	Lamport int64
	Seq     int64
}

// ContainerRow describes a stored container.
type ContainerRow struct {
	ID   string
	Kind string
}

// WriteContainer registers a container. Re-registering an existing id is
// a no-op, even with a different kind; the first kind wins.
func (s *Store) WriteContainer(ctx context.Context, c ContainerRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO containers (id, kind)
		VALUES (?, ?)
		ON CONFLICT(id) DO NOTHING
	`, c.ID, c.Kind)
	if err != nil {
		return fmt.Errorf("write container: %w", err)
	}
	return nil
}

// WriteOps appends records for a container in one transaction.
// Uses ON CONFLICT DO NOTHING for idempotency - an op already stored under
// the same (client, counter) is silently kept as it was.
//
// Note: The container must already exist (foreign key constraint).
func (s *Store) WriteOps(ctx context.Context, containerID string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write ops: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ops
		(container_id, client, counter, len, kind, lamport, parents, origin, content, targets, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write ops: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		o := r.Op
		parents, err := marshalParents(o.Parents)
		if err != nil {
			return fmt.Errorf("write op %s: %w", o.ID, err)
		}
		body, err := marshalContent(o.Content)
		if err != nil {
			return fmt.Errorf("write op %s: %w", o.ID, err)
		}
		targets, err := marshalTargets(o.Targets)
		if err != nil {
			return fmt.Errorf("write op %s: %w", o.ID, err)
		}
		_, err = stmt.ExecContext(ctx,
			containerID,
			strconv.FormatUint(uint64(o.ID.Client), 10),
			int64(o.ID.Counter),
			o.Len,
			o.Kind.String(),
			r.Lamport,
			parents,
			marshalOrigin(o.Origin),
			body,
			targets,
			r.Seq,
		)
		if err != nil {
			return fmt.Errorf("write op %s: %w", o.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write ops: commit: %w", err)
	}
	return nil
}
