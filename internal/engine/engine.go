package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/weft/internal/crdterr"
	"github.com/roach88/weft/internal/id"
	"github.com/roach88/weft/internal/metrics"
	"github.com/roach88/weft/internal/op"
	"github.com/roach88/weft/internal/sequence"
	"github.com/roach88/weft/internal/store"
	"github.com/roach88/weft/internal/tracker"
	"github.com/roach88/weft/internal/value"
)

// ClientIDSource hands out the client id of each new container.
// Implemented by RandomClientIDs (production), StaticClientID (configured
// replicas) and testutil.FixedClientIDs (tests).
type ClientIDSource interface {
	Next() id.ClientID
}

// RandomClientIDs draws a fresh random id per container.
type RandomClientIDs struct{}

func (RandomClientIDs) Next() id.ClientID { return id.NewClientID() }

// StaticClientID gives every container the same client id.
type StaticClientID id.ClientID

func (c StaticClientID) Next() id.ClientID { return id.ClientID(c) }

// SeqSource stamps persisted ops. Implemented by *Clock and
// testutil.SeqRecorder.
type SeqSource interface {
	Next() int64
	Current() int64
}

// EffectSink receives the effects of each processed event in order.
// It is called on the Run goroutine and must not call back into the Engine
// except for read-only Container access.
type EffectSink func(container value.ContainerID, effects []tracker.Effect)

// replica is one container plus the ops parked until their dependencies
// arrive.
type replica struct {
	c        *sequence.Container
	pending  []op.Op
	reported bool
}

// Engine is the single-writer replica event loop.
//
// The engine owns a set of containers and processes events (remote imports
// and local edits) in FIFO order. Integrated ops are persisted to the op
// log when a store is configured and their effects go to the sink.
//
// CRITICAL: All mutations happen in the single-writer Run loop goroutine.
// External callers use Enqueue() to submit events for processing.
//
// Thread-safety model:
//   - Enqueue(), QueueLen(), Stop(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Restore(), Container(), Pending(): only before Run, after it returns,
//     or from the sink
type Engine struct {
	store     *store.Store
	clock     SeqSource
	queue     *eventQueue
	metrics   *metrics.Metrics
	logger    *slog.Logger
	sink      EffectSink
	clientIDs ClientIDSource
	replicas  map[value.ContainerID]*replica
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore persists integrated ops to s.
func WithStore(s *store.Store) Option {
	return func(e *Engine) { e.store = s }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger replaces slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithSink(sink EffectSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithClock replaces the logical clock. Restore advances sources that
// implement AdvanceTo(int64) to the log's MaxSeq.
func WithClock(c SeqSource) Option {
	return func(e *Engine) { e.clock = c }
}

// WithClientIDs sets where new containers get their client id.
// Default: RandomClientIDs.
func WithClientIDs(src ClientIDSource) Option {
	return func(e *Engine) { e.clientIDs = src }
}

// New creates an Engine. Without WithStore, nothing is persisted.
func New(opts ...Option) *Engine {
	e := &Engine{
		clock:     NewClock(),
		queue:     newEventQueue(),
		logger:    slog.Default(),
		clientIDs: RandomClientIDs{},
		replicas:  make(map[value.ContainerID]*replica),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enqueue submits an event for processing by the Run loop.
// Thread-safe: may be called from any goroutine.
//
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ev Event) bool {
	return e.queue.push(ev)
}

// QueueLen returns the current number of queued events.
// Useful for monitoring and testing.
func (e *Engine) QueueLen() int {
	return e.queue.len()
}

// Container returns a container by id.
func (e *Engine) Container(cid value.ContainerID) (*sequence.Container, bool) {
	r, ok := e.replicas[cid]
	if !ok {
		return nil, false
	}
	return r.c, true
}

// Pending returns the number of ops parked for a container.
func (e *Engine) Pending(cid value.ContainerID) int {
	if r, ok := e.replicas[cid]; ok {
		return len(r.pending)
	}
	return 0
}

// Run starts the single-writer event loop.
// Blocks until context is cancelled or Stop() is called.
//
// CRITICAL: Must be called from exactly ONE goroutine.
//
// ERROR HANDLING: On event processing failure, the error is logged with the
// event context and processing continues. A poisoned container keeps
// rejecting its own events while the others carry on. Nothing is retried.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", "containers", len(e.replicas))

	var batch []Event
	for {
		var closed bool
		batch, closed = e.queue.take(batch)
		for i, event := range batch {
			if err := e.processEvent(ctx, event); err != nil {
				e.logEventError(event, err)
			}
			batch[i] = Event{} // drop op content before the array is reused
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			e.logger.Info("engine stopping: queue closed")
			return nil
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.close()
			return ctx.Err()
		case <-e.queue.wait():
		}
	}
}

// Stop gracefully shuts down the engine.
// Closes the event queue; Run returns after draining queued events.
func (e *Engine) Stop() {
	e.queue.close()
}

// processEvent routes an event to its handler and answers Reply.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) processEvent(ctx context.Context, event Event) error {
	var res Result
	switch event.Type {
	case EventTypeImport:
		start := time.Now()
		res = e.processImport(ctx, event)
		e.metrics.ObserveImport(start)

	case EventTypeLocal:
		if event.Edit == nil {
			res.Err = fmt.Errorf("local event missing edit data")
			break
		}
		res = e.processLocal(ctx, event)

	default:
		res.Err = fmt.Errorf("unknown event type: %d", event.Type)
	}

	if event.Reply != nil {
		select {
		case event.Reply <- res:
		case <-ctx.Done():
		}
	}
	return res.Err
}

// replicaFor returns the event's container, creating it on first use.
func (e *Engine) replicaFor(ctx context.Context, event Event) (*replica, error) {
	if r, ok := e.replicas[event.Container]; ok {
		if event.Kind != 0 && event.Kind != r.c.Kind() {
			return nil, crdterr.New(crdterr.CodeWrongKind,
				"container %s is %s, event names %s", event.Container, r.c.Kind(), event.Kind)
		}
		return r, nil
	}
	if event.Container == "" {
		return nil, fmt.Errorf("event missing container id")
	}
	if event.Kind == 0 {
		return nil, fmt.Errorf("container %s: first event must name a kind", event.Container)
	}
	return e.addReplica(ctx, sequence.New(event.Container, event.Kind, e.clientIDs.Next()))
}

func (e *Engine) addReplica(ctx context.Context, c *sequence.Container) (*replica, error) {
	if e.store != nil {
		err := e.store.WriteContainer(ctx, store.ContainerRow{ID: string(c.ID()), Kind: c.Kind().String()})
		if err != nil {
			return nil, fmt.Errorf("register container %s: %w", c.ID(), err)
		}
	}
	r := &replica{c: c}
	e.replicas[c.ID()] = r
	e.logger.Info("container opened",
		"container", c.ID(),
		"kind", c.Kind(),
		"client", c.Client(),
	)
	return r, nil
}

// processImport parks the event's ops and integrates every pending op whose
// dependencies are now present, repeating until no more progress is made.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) processImport(ctx context.Context, event Event) Result {
	r, err := e.replicaFor(ctx, event)
	if err != nil {
		return Result{Err: err}
	}
	r.pending = append(r.pending, event.Ops...)

	var (
		res    Result
		failed []error
	)
	for progress := true; progress && len(r.pending) > 0; {
		progress = false
		kept := r.pending[:0]
		for _, o := range r.pending {
			if r.c.Version().IncludesSpan(o.Span()) {
				e.metrics.Duplicate()
				e.logger.Debug("duplicate op skipped", "container", r.c.ID(), "op", o.Span())
				continue
			}
			before := r.c.Version().Get(o.ID.Client)
			effects, err := r.c.Import(o)
			switch {
			case err == nil:
			case sequence.IsMissingDependency(err):
				kept = append(kept, o)
				continue
			case crdterr.Is(err, crdterr.CodeContainerPoisoned):
				e.reportPoisoned(r, err)
				r.pending = nil
				e.metrics.SetPending(string(r.c.ID()), 0)
				res.Err = err
				return res
			default:
				e.logger.Warn("op rejected", "container", r.c.ID(), "op", o.Span(), "error", err)
				failed = append(failed, fmt.Errorf("op %s: %w", o.ID, err))
				continue
			}

			progress = true
			rest, _ := o.Trim(before)
			res.Ops = append(res.Ops, rest)
			res.Effects = append(res.Effects, effects...)
			e.metrics.OpIntegrated(o.Kind.String())
			e.logger.Debug("op integrated",
				"container", r.c.ID(),
				"op", rest.Span(),
				"kind", rest.Kind,
				"effects", len(effects),
			)
		}
		clear(r.pending[len(kept):])
		r.pending = kept
	}

	res.Pending = len(r.pending)
	e.metrics.SetPending(string(r.c.ID()), res.Pending)
	res.Effects = tracker.Coalesce(res.Effects)

	if err := e.persist(ctx, r, res.Ops); err != nil {
		failed = append(failed, err)
	}
	e.deliver(r, res.Effects)
	res.Err = errors.Join(failed...)
	return res
}

// processLocal applies a local edit.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) processLocal(ctx context.Context, event Event) Result {
	r, err := e.replicaFor(ctx, event)
	if err != nil {
		return Result{Err: err}
	}

	var (
		o       op.Op
		effects []tracker.Effect
	)
	edit := event.Edit
	switch edit.Kind {
	case EditInsertText:
		o, effects, err = r.c.InsertText(edit.Pos, edit.Text)
	case EditInsertValues:
		o, effects, err = r.c.InsertValues(edit.Pos, edit.Values...)
	case EditDelete:
		o, effects, err = r.c.Delete(edit.Pos, edit.Len)
	default:
		err = fmt.Errorf("unknown edit kind: %d", edit.Kind)
	}
	if err != nil {
		if crdterr.Is(err, crdterr.CodeContainerPoisoned) {
			e.reportPoisoned(r, err)
		}
		return Result{Err: err, Pending: len(r.pending)}
	}

	e.metrics.OpIntegrated(o.Kind.String())
	e.logger.Debug("local op", "container", r.c.ID(), "op", o.Span(), "kind", o.Kind)

	res := Result{Ops: []op.Op{o}, Effects: effects, Pending: len(r.pending)}
	res.Err = e.persist(ctx, r, res.Ops)
	e.deliver(r, effects)
	return res
}

// persist writes integrated ops to the log, one seq per op.
func (e *Engine) persist(ctx context.Context, r *replica, ops []op.Op) error {
	if e.store == nil || len(ops) == 0 {
		return nil
	}
	records := make([]store.Record, 0, len(ops))
	for _, o := range ops {
		lamport, ok := r.c.Graph().Lamport(o.ID)
		if !ok {
			return fmt.Errorf("persist op %s: not in the causal graph", o.ID)
		}
		records = append(records, store.Record{Op: o, Lamport: int64(lamport), Seq: e.clock.Next()})
	}
	if err := e.store.WriteOps(ctx, string(r.c.ID()), records); err != nil {
		return fmt.Errorf("persist ops for %s: %w", r.c.ID(), err)
	}
	return nil
}

func (e *Engine) deliver(r *replica, effects []tracker.Effect) {
	if len(effects) == 0 {
		return
	}
	for _, eff := range effects {
		e.metrics.Effect(eff.Kind.String())
	}
	if e.sink != nil {
		e.sink(r.c.ID(), effects)
	}
}

// reportPoisoned logs and counts a poisoned container once.
func (e *Engine) reportPoisoned(r *replica, err error) {
	if r.reported {
		return
	}
	r.reported = true
	e.metrics.Poisoned()
	e.logger.Error("container poisoned",
		"container", r.c.ID(),
		"error", err,
		"version", r.c.Version().String(),
	)
}

// logEventError logs a failed event with enough context for manual replay.
func (e *Engine) logEventError(event Event, err error) {
	switch event.Type {
	case EventTypeImport:
		e.logger.Error("import processing failed",
			"error", err,
			"container", event.Container,
			"ops", len(event.Ops),
		)

	case EventTypeLocal:
		attrs := []any{"error", err, "container", event.Container}
		if event.Edit != nil {
			attrs = append(attrs, "edit", event.Edit.Kind, "pos", event.Edit.Pos)
		} else {
			attrs = append(attrs, "note", "edit data was nil")
		}
		e.logger.Error("local edit failed", attrs...)

	default:
		e.logger.Error("event processing failed",
			"error", err,
			"event_type", event.Type,
		)
	}
}
