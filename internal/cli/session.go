package cli

import (
	"context"
	"errors"
	"io"

	"github.com/roach88/weft/internal/config"
	"github.com/roach88/weft/internal/engine"
	"github.com/roach88/weft/internal/store"
)

// session is an engine restored from an op log with its loop running.
// Events go through submit; stop must be called before reading containers.
type session struct {
	eng    *engine.Engine
	cancel context.CancelFunc
	done   chan error
}

// startSession restores every container in st and starts the Run loop.
func (o *RootOptions) startSession(ctx context.Context, st *store.Store, cfg config.Config, diag io.Writer) (*session, error) {
	eng := engine.New(
		engine.WithStore(st),
		engine.WithLogger(o.logger(cfg, diag)),
		engine.WithClientIDs(clientIDs(cfg)),
	)
	if err := eng.Restore(ctx); err != nil {
		return nil, usageError(CodeDatabase, err, "failed to restore existing containers")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &session{eng: eng, cancel: cancel, done: make(chan error, 1)}
	go func() { s.done <- eng.Run(runCtx) }()
	return s, nil
}

// submit enqueues ev and waits for its result.
func (s *session) submit(ev engine.Event) engine.Result {
	reply := make(chan engine.Result, 1)
	ev.Reply = reply
	if !s.eng.Enqueue(ev) {
		return engine.Result{Err: errors.New("engine stopped")}
	}
	return <-reply
}

// stop drains the loop and returns its error.
func (s *session) stop() error {
	s.eng.Stop()
	err := <-s.done
	s.cancel()
	return err
}
