package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/weft/internal/content"
	"github.com/roach88/weft/internal/crdterr"
	"github.com/roach88/weft/internal/engine"
	"github.com/roach88/weft/internal/id"
	"github.com/roach88/weft/internal/metrics"
	"github.com/roach88/weft/internal/op"
	"github.com/roach88/weft/internal/sequence"
	"github.com/roach88/weft/internal/store"
	"github.com/roach88/weft/internal/testutil"
	"github.com/roach88/weft/internal/tracker"
	"github.com/roach88/weft/internal/value"
)

// Replica is one running engine in a scenario.
//
// The engine's Run goroutine only touches the container while an event is
// in flight. The harness waits for every Reply before reading, so reads
// from the harness goroutine never overlap a write.
type Replica struct {
	Client id.ClientID
	Engine *engine.Engine
	Store  *store.Store

	// View is the rendered content built from delivered effects only.
	View content.Slice

	done chan error
}

// Container returns the replica's container.
func (r *Replica) Container(cid value.ContainerID) *sequence.Container {
	c, _ := r.Engine.Container(cid)
	return c
}

// Harness is the test execution engine.
// It runs scenarios with deterministic clocks and fixed client ids.
type Harness struct {
	container value.ContainerID
	kind      sequence.Kind
	replicas  map[uint64]*Replica
	order     []uint64
	logger    *slog.Logger
	cancel    context.CancelFunc
}

// Run executes a test scenario and returns the result.
//
// Each replica runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
//  1. Start one engine per replica and open the container on each
//  2. Execute steps in order, checking the rendered view after each one
//  3. Evaluate assertions against the final state
//  4. Stop the engines
func Run(scenario *Scenario) (*Result, error) {
	kind, err := sequence.ParseKind(scenario.Kind)
	if err != nil {
		return nil, err
	}
	cid := scenario.Container
	if cid == "" {
		cid = "doc"
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Harness{
		container: value.ContainerID(cid),
		kind:      kind,
		replicas:  make(map[uint64]*Replica, len(scenario.Replicas)),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
		cancel:    cancel,
	}
	defer h.shutdown()

	for _, c := range scenario.Replicas {
		if err := h.start(ctx, c); err != nil {
			return nil, fmt.Errorf("failed to start replica %d: %w", c, err)
		}
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			result.AddError(fmt.Sprintf("step %d: %v", i, err))
		}
	}

	actx := &AssertionContext{Ctx: ctx, Harness: h}
	for _, errMsg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

// start opens a store and an engine for client and creates the container.
func (h *Harness) start(ctx context.Context, client uint64) error {
	st, err := store.Open(":memory:")
	if err != nil {
		return fmt.Errorf("failed to create in-memory store: %w", err)
	}
	eng := engine.New(
		engine.WithStore(st),
		engine.WithClock(testutil.NewSeqRecorder()),
		engine.WithClientIDs(engine.StaticClientID(client)),
		engine.WithMetrics(metrics.New(prometheus.NewRegistry())),
		engine.WithLogger(h.logger),
	)

	r := &Replica{
		Client: id.ClientID(client),
		Engine: eng,
		Store:  st,
		View:   emptyView(h.kind),
		done:   make(chan error, 1),
	}
	h.replicas[client] = r
	h.order = append(h.order, client)
	go func() { r.done <- eng.Run(ctx) }()

	res := h.submit(ctx, r, engine.Event{Type: engine.EventTypeImport})
	return res.Err
}

// shutdown stops every engine, waits for its Run loop and closes its store.
func (h *Harness) shutdown() {
	for _, c := range h.order {
		h.replicas[c].Engine.Stop()
	}
	for _, c := range h.order {
		r := h.replicas[c]
		<-r.done
		if err := r.Store.Close(); err != nil {
			h.logger.Warn("failed to close store", "replica", c, "error", err)
		}
	}
	h.cancel()
}

// submit sends one event to r and waits for its reply.
func (h *Harness) submit(ctx context.Context, r *Replica, ev engine.Event) engine.Result {
	reply := make(chan engine.Result, 1)
	ev.Container = h.container
	ev.Kind = h.kind
	ev.Reply = reply
	if !r.Engine.Enqueue(ev) {
		return engine.Result{Err: fmt.Errorf("replica %d: engine stopped", r.Client)}
	}
	select {
	case res := <-reply:
		return res
	case <-ctx.Done():
		return engine.Result{Err: ctx.Err()}
	}
}

// executeStep runs one step and records it in the trace.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	var (
		target  *Replica
		action  string
		results []engine.Result
	)

	switch {
	case step.Insert != nil:
		target = h.replicas[step.Replica]
		edit, err := h.insertEdit(step.Insert)
		if err != nil {
			return err
		}
		action = fmt.Sprintf("insert(%d)", step.Insert.Pos)
		results = append(results, h.submit(ctx, target, engine.Event{Type: engine.EventTypeLocal, Edit: edit}))

	case step.Delete != nil:
		target = h.replicas[step.Replica]
		action = fmt.Sprintf("delete(%d, %d)", step.Delete.Pos, step.Delete.Len)
		edit := &engine.Edit{Kind: engine.EditDelete, Pos: step.Delete.Pos, Len: step.Delete.Len}
		results = append(results, h.submit(ctx, target, engine.Event{Type: engine.EventTypeLocal, Edit: edit}))

	case step.Sync != nil:
		src := h.replicas[step.Sync.From]
		target = h.replicas[step.Sync.To]
		order := step.Sync.Order
		if order == "" {
			order = OrderCausal
		}
		action = fmt.Sprintf("sync(%d->%d, %s)", step.Sync.From, step.Sync.To, order)
		ops := src.Container(h.container).Export(target.Container(h.container).Version())
		for _, batch := range deliveryBatches(ops, order, step.Sync.Seed) {
			results = append(results, h.submit(ctx, target, engine.Event{Type: engine.EventTypeImport, Ops: batch}))
		}
	}

	ev := TraceEvent{Step: i, Replica: uint64(target.Client), Action: action}
	var errs []error
	for _, res := range results {
		for _, o := range res.Ops {
			ev.Ops = append(ev.Ops, formatOp(o))
		}
		for _, eff := range res.Effects {
			ev.Effects = append(ev.Effects, formatEffect(eff))
			if err := applyEffect(&target.View, eff); err != nil {
				errs = append(errs, err)
			}
		}
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
		ev.Pending = res.Pending
	}
	result.AddTrace(ev)

	failure := checkError(errors.Join(errs...), step.ExpectError)
	if err := h.checkView(target); err != nil {
		return errors.Join(failure, err)
	}
	return failure
}

// checkError compares a step's error against the expected code.
func checkError(err error, expect string) error {
	switch {
	case expect == "" && err != nil:
		return err
	case expect == "":
		return nil
	case err == nil:
		return fmt.Errorf("expected error %s, step succeeded", expect)
	case !crdterr.Is(err, crdterr.Code(expect)):
		return fmt.Errorf("expected error %s, got: %w", expect, err)
	}
	return nil
}

// checkView verifies the effect-built view matches the container.
func (h *Harness) checkView(r *Replica) error {
	got := r.Container(h.container).Store().Content()
	if sameContent(r.View, got) {
		return nil
	}
	return fmt.Errorf("replica %d: rendered view %s, container holds %s",
		r.Client, renderContent(r.View), renderContent(got))
}

func (h *Harness) insertEdit(s *InsertStep) (*engine.Edit, error) {
	if h.kind == sequence.Text {
		return &engine.Edit{Kind: engine.EditInsertText, Pos: s.Pos, Text: s.Text}, nil
	}
	vals := make([]value.Value, len(s.Values))
	for i, raw := range s.Values {
		v, err := value.FromGo(raw)
		if err != nil {
			return nil, fmt.Errorf("insert values[%d]: %w", i, err)
		}
		vals[i] = v
	}
	return &engine.Edit{Kind: engine.EditInsertValues, Pos: s.Pos, Values: vals}, nil
}

// deliveryBatches splits exported ops into import events for order.
func deliveryBatches(ops []op.Op, order string, seed uint64) [][]op.Op {
	if len(ops) == 0 {
		return [][]op.Op{nil}
	}
	switch order {
	case OrderShuffle:
		out := slices.Clone(ops)
		r := rand.New(rand.NewPCG(seed, seed))
		r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		return [][]op.Op{out}
	case OrderReverse:
		batches := make([][]op.Op, 0, len(ops))
		for _, o := range slices.Backward(ops) {
			batches = append(batches, []op.Op{o})
		}
		return batches
	}
	return [][]op.Op{ops}
}

func emptyView(kind sequence.Kind) content.Slice {
	if kind == sequence.List {
		return content.Values{}
	}
	return content.Text{}
}

// applyEffect edits view the way a renderer would.
func applyEffect(view *content.Slice, eff tracker.Effect) error {
	n := (*view).Len()
	switch eff.Kind {
	case tracker.Ins:
		if eff.Pos < 0 || eff.Pos > n || eff.Content == nil {
			return fmt.Errorf("effect %s outside view of length %d", formatEffect(eff), n)
		}
		*view = content.Concat((*view).Slice(0, eff.Pos), eff.Content, (*view).Slice(eff.Pos, n))
	case tracker.Del:
		if eff.Pos < 0 || eff.Len <= 0 || eff.Pos+eff.Len > n {
			return fmt.Errorf("effect %s outside view of length %d", formatEffect(eff), n)
		}
		*view = content.Concat((*view).Slice(0, eff.Pos), (*view).Slice(eff.Pos+eff.Len, n))
	default:
		return fmt.Errorf("unknown effect %s", eff.Kind)
	}
	return nil
}

func sameContent(a, b content.Slice) bool {
	if a == nil || b == nil || a.Len() == 0 || b.Len() == 0 {
		return lenOf(a) == lenOf(b)
	}
	return content.Equal(a, b)
}

func lenOf(s content.Slice) int {
	if s == nil {
		return 0
	}
	return s.Len()
}

// renderContent formats content as canonical JSON.
func renderContent(s content.Slice) string {
	if s == nil {
		return `""`
	}
	data, err := value.MarshalCanonical(s.ToValue())
	if err != nil {
		return fmt.Sprintf("%v", s)
	}
	return string(data)
}

// formatOp renders an op for the trace: kind, span, then origin and
// content for inserts or targets for deletes.
func formatOp(o op.Op) string {
	if o.Kind == op.Delete {
		targets := make([]string, len(o.Targets))
		for i, t := range o.Targets {
			targets[i] = t.String()
		}
		return fmt.Sprintf("delete %s of %s", o.Span(), strings.Join(targets, " "))
	}
	origin := "start"
	if o.Origin != nil {
		origin = o.Origin.String()
	}
	return fmt.Sprintf("insert %s after %s: %s", o.Span(), origin, renderContent(o.Content))
}

func formatEffect(eff tracker.Effect) string {
	if eff.Kind == tracker.Ins {
		return fmt.Sprintf("ins(%d, %s)", eff.Pos, renderContent(eff.Content))
	}
	return fmt.Sprintf("del(%d, %d)", eff.Pos, eff.Len)
}
