package engine

import (
	"context"
	"fmt"

	"github.com/roach88/weft/internal/id"
	"github.com/roach88/weft/internal/op"
	"github.com/roach88/weft/internal/sequence"
	"github.com/roach88/weft/internal/store"
	"github.com/roach88/weft/internal/value"
)

// Replay rebuilds a container from the op log. Local edits made on the
// result are issued by client.
//
// Records are imported in seq order. The stored Lamport of every op must
// match the one the rebuilt graph assigns; a mismatch means the log was
// written by a different placement history and is reported as an error.
func Replay(ctx context.Context, st *store.Store, cid value.ContainerID, client id.ClientID) (*sequence.Container, error) {
	row, ok, err := st.ReadContainer(ctx, string(cid))
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", cid, err)
	}
	if !ok {
		return nil, fmt.Errorf("replay %s: container not found", cid)
	}
	kind, err := sequence.ParseKind(row.Kind)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", cid, err)
	}

	records, err := st.ReadOps(ctx, string(cid))
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", cid, err)
	}
	ops := make([]op.Op, len(records))
	for i, r := range records {
		ops[i] = r.Op
	}

	c := sequence.New(cid, kind, client)
	if _, err := c.Import(ops...); err != nil {
		return nil, fmt.Errorf("replay %s: %w", cid, err)
	}
	for _, r := range records {
		got, _ := c.Graph().Lamport(r.Op.ID)
		if int64(got) != r.Lamport {
			return nil, fmt.Errorf("replay %s: op %s has lamport %d in the log, %d rebuilt",
				cid, r.Op.ID, r.Lamport, got)
		}
	}
	return c, nil
}

// Restore replays every container in the store into the engine and moves
// the clock past the log's last seq when it supports AdvanceTo. Call it
// before Run.
func (e *Engine) Restore(ctx context.Context) error {
	if e.store == nil {
		return fmt.Errorf("restore: engine has no store")
	}
	rows, err := e.store.ReadContainers(ctx)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	for _, row := range rows {
		cid := value.ContainerID(row.ID)
		if _, ok := e.replicas[cid]; ok {
			continue
		}
		c, err := Replay(ctx, e.store, cid, e.clientIDs.Next())
		if err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		e.replicas[cid] = &replica{c: c}
		e.logger.Info("container restored",
			"container", cid,
			"kind", c.Kind(),
			"version", c.Version().String(),
		)
	}

	seq, err := e.store.MaxSeq(ctx)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	if a, ok := e.clock.(advancer); ok {
		a.AdvanceTo(seq)
	}
	return nil
}
