package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/weft/internal/content"
	"github.com/roach88/weft/internal/crdterr"
	"github.com/roach88/weft/internal/id"
	"github.com/roach88/weft/internal/metrics"
	"github.com/roach88/weft/internal/op"
	"github.com/roach88/weft/internal/sequence"
	"github.com/roach88/weft/internal/store"
	"github.com/roach88/weft/internal/testutil"
	"github.com/roach88/weft/internal/tracker"
	"github.com/roach88/weft/internal/value"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(dir + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// recorder is an EffectSink that keeps everything it receives.
type recorder struct {
	effects map[value.ContainerID][]tracker.Effect
}

func newRecorder() *recorder {
	return &recorder{effects: make(map[value.ContainerID][]tracker.Effect)}
}

func (r *recorder) sink(cid value.ContainerID, effects []tracker.Effect) {
	r.effects[cid] = append(r.effects[cid], effects...)
}

func importOps(cid string, ops ...op.Op) Event {
	return Event{Type: EventTypeImport, Container: value.ContainerID(cid), Kind: sequence.Text, Ops: ops}
}

func insertText(cid string, pos int, s string) Event {
	return Event{
		Type:      EventTypeLocal,
		Container: value.ContainerID(cid),
		Kind:      sequence.Text,
		Edit:      &Edit{Kind: EditInsertText, Pos: pos, Text: s},
	}
}

func textOf(t *testing.T, e *Engine, cid string) string {
	t.Helper()
	c, ok := e.Container(value.ContainerID(cid))
	require.True(t, ok, "container %s", cid)
	return c.Text()
}

func TestEngine_New(t *testing.T) {
	e := New()

	assert.NotNil(t, e.clock)
	assert.NotNil(t, e.queue)
	assert.NotNil(t, e.logger)
	assert.IsType(t, RandomClientIDs{}, e.clientIDs)
	assert.Nil(t, e.store)
}

func TestEngine_Enqueue(t *testing.T) {
	e := New()

	ok := e.Enqueue(importOps("doc"))
	assert.True(t, ok)
	assert.Equal(t, 1, e.QueueLen())

	e.Stop()
	assert.False(t, e.Enqueue(importOps("doc")), "enqueue after stop should fail")
}

func TestEngine_Run_ContextCancel(t *testing.T) {
	e := New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestEngine_Run_ProcessesAndReplies(t *testing.T) {
	rec := newRecorder()
	e := New(WithSink(rec.sink), WithClientIDs(testutil.NewFixedClientIDs(1)))

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	reply := make(chan Result, 1)
	ev := insertText("doc", 0, "hi")
	ev.Reply = reply
	require.True(t, e.Enqueue(ev))

	select {
	case res := <-reply:
		require.NoError(t, res.Err)
		require.Len(t, res.Ops, 1)
		assert.Equal(t, id.New(1, 0), res.Ops[0].ID)
		assert.Equal(t, []tracker.Effect{{Kind: tracker.Ins, Pos: 0, Len: 2, Content: content.NewText("hi")}}, res.Effects)
	case <-time.After(time.Second):
		t.Fatal("no reply")
	}

	e.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.Equal(t, "hi", textOf(t, e, "doc"))
	assert.Len(t, rec.effects["doc"], 1)
}

func TestEngine_Stop_DrainsQueuedEvents(t *testing.T) {
	e := New()
	e.Enqueue(insertText("doc", 0, "a"))
	e.Enqueue(insertText("doc", 1, "b"))
	e.Stop()

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, "ab", textOf(t, e, "doc"))
}

func TestEngine_OutOfOrderDelivery(t *testing.T) {
	ctx := context.Background()
	rec := newRecorder()
	e := New(WithSink(rec.sink))

	a := testutil.Insert(id.New(5, 0), "ab", nil)
	b := testutil.Insert(id.New(5, 2), "c", testutil.Ptr(id.New(5, 1)), id.New(5, 1))
	d := testutil.Delete(id.New(6, 0), []id.IDSpan{id.NewIDSpan(5, 0, 1)}, id.New(5, 2))

	// d depends on b, b depends on a
	res := e.processImport(ctx, importOps("doc", d))
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Pending)
	assert.Empty(t, res.Effects)

	res = e.processImport(ctx, importOps("doc", b))
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Pending)

	res = e.processImport(ctx, importOps("doc", a))
	require.NoError(t, res.Err)
	assert.Equal(t, 0, res.Pending)
	assert.Len(t, res.Ops, 3)
	assert.Equal(t, "bc", textOf(t, e, "doc"))
	assert.Equal(t, 0, e.Pending("doc"))

	c, _ := e.Container("doc")
	assert.NoError(t, c.CheckInvariants())
	assert.Equal(t, "bc", renderEffects(rec.effects["doc"]))
}

func renderEffects(effects []tracker.Effect) string {
	var r []rune
	for _, eff := range effects {
		switch eff.Kind {
		case tracker.Ins:
			body := []rune(eff.Content.(content.Text))
			r = append(r[:eff.Pos], append(body, r[eff.Pos:]...)...)
		case tracker.Del:
			r = append(r[:eff.Pos], r[eff.Pos+eff.Len:]...)
		}
	}
	return string(r)
}

func TestEngine_DuplicatesAreCounted(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	e := New(WithMetrics(m))

	a := testutil.Insert(id.New(5, 0), "abc", nil)
	res := e.processImport(ctx, importOps("doc", a))
	require.NoError(t, res.Err)

	res = e.processImport(ctx, importOps("doc", a, a))
	require.NoError(t, res.Err)
	assert.Empty(t, res.Effects)
	assert.Empty(t, res.Ops)

	n, err := promtest.GatherAndCount(reg, "weft_duplicate_ops_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	expected := `
# HELP weft_duplicate_ops_total Operations skipped because they were already integrated
# TYPE weft_duplicate_ops_total counter
weft_duplicate_ops_total 2
`
	assert.NoError(t, promtest.GatherAndCompare(reg, strings.NewReader(expected), "weft_duplicate_ops_total"))
}

func TestEngine_OverlappingImportIsTrimmed(t *testing.T) {
	ctx := context.Background()
	e := New()

	require.NoError(t, e.processImport(ctx, importOps("doc", testutil.Insert(id.New(5, 0), "abc", nil))).Err)
	res := e.processImport(ctx, importOps("doc", testutil.Insert(id.New(5, 0), "abcde", nil)))
	require.NoError(t, res.Err)
	require.Len(t, res.Ops, 1)
	assert.Equal(t, id.New(5, 3), res.Ops[0].ID)
	assert.Equal(t, "abcde", textOf(t, e, "doc"))
}

func TestEngine_RejectedOpIsDropped(t *testing.T) {
	ctx := context.Background()
	e := New()

	bad := testutil.Insert(id.New(5, 0), "ab", nil)
	bad.Len = 3
	res := e.processImport(ctx, importOps("doc", bad))
	assert.True(t, crdterr.IsContractViolation(res.Err), "got %v", res.Err)
	assert.Equal(t, 0, e.Pending("doc"))
}

func TestEngine_KindMismatch(t *testing.T) {
	ctx := context.Background()
	e := New()

	require.NoError(t, e.processEvent(ctx, insertText("doc", 0, "a")))
	ev := importOps("doc")
	ev.Kind = sequence.List
	assert.True(t, crdterr.Is(e.processEvent(ctx, ev), crdterr.CodeWrongKind))

	assert.Error(t, e.processEvent(ctx, Event{Type: EventTypeImport, Container: "fresh"}), "first event needs a kind")
	assert.Error(t, e.processEvent(ctx, Event{Type: EventTypeLocal, Container: "doc"}), "local event needs an edit")
	assert.Error(t, e.processEvent(ctx, Event{Type: EventType(42)}))
}

func TestEngine_LocalListEdits(t *testing.T) {
	ctx := context.Background()
	e := New()

	ev := Event{
		Type:      EventTypeLocal,
		Container: "items",
		Kind:      sequence.List,
		Edit:      &Edit{Kind: EditInsertValues, Pos: 0, Values: []value.Value{value.I64(1), value.I64(2), value.I64(3)}},
	}
	require.NoError(t, e.processEvent(ctx, ev))
	ev.Edit = &Edit{Kind: EditDelete, Pos: 1, Len: 1}
	require.NoError(t, e.processEvent(ctx, ev))

	c, ok := e.Container("items")
	require.True(t, ok)
	assert.True(t, value.Equal(value.NewList(value.I64(1), value.I64(3)), c.Value()))
}

func TestEngine_PoisonedContainer(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	e := New(WithMetrics(metrics.New(reg)))

	require.NoError(t, e.processEvent(ctx, insertText("doc", 0, "abc")))
	require.NoError(t, e.processEvent(ctx, insertText("other", 0, "xyz")))

	c, _ := e.Container("doc")
	require.NoError(t, c.Store().IntegrateDelete(id.NewIDSpan(9, 0, 1), []id.IDSpan{id.SpanOf(id.New(c.Client(), 2), 1)}))
	require.Error(t, c.CheckInvariants())

	for range 2 {
		err := e.processEvent(ctx, insertText("doc", 0, "q"))
		assert.True(t, crdterr.Is(err, crdterr.CodeContainerPoisoned), "got %v", err)
	}
	expected := `
# HELP weft_poisoned_containers_total Containers disabled by an invariant violation
# TYPE weft_poisoned_containers_total counter
weft_poisoned_containers_total 1
`
	assert.NoError(t, promtest.GatherAndCompare(reg, strings.NewReader(expected), "weft_poisoned_containers_total"))

	// Other containers keep working.
	require.NoError(t, e.processEvent(ctx, insertText("other", 3, "!")))
	assert.Equal(t, "xyz!", textOf(t, e, "other"))
}

func TestEngine_PersistAndReplay(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	e := New(WithStore(s), WithClientIDs(testutil.NewFixedClientIDs(1)))

	require.NoError(t, e.processEvent(ctx, insertText("doc", 0, "hello")))
	require.NoError(t, e.processEvent(ctx, importOps("doc",
		testutil.Insert(id.New(7, 0), "!", testutil.Ptr(id.New(1, 4)), id.New(1, 4)))))
	del := Event{Type: EventTypeLocal, Container: "doc", Edit: &Edit{Kind: EditDelete, Pos: 0, Len: 1}}
	require.NoError(t, e.processEvent(ctx, del))
	require.Equal(t, "ello!", textOf(t, e, "doc"))

	records, err := s.ReadOps(ctx, "doc")
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, r := range records {
		assert.Equal(t, int64(i+1), r.Seq)
	}

	c, err := Replay(ctx, s, "doc", 1)
	require.NoError(t, err)
	assert.Equal(t, "ello!", c.Text())
	live, _ := e.Container("doc")
	assert.True(t, live.Version().Equal(c.Version()))
	assert.NoError(t, c.CheckInvariants())

	_, err = Replay(ctx, s, "missing", 1)
	assert.Error(t, err)
}

func TestEngine_Restore(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	first := New(WithStore(s), WithClientIDs(StaticClientID(3)))
	require.NoError(t, first.processEvent(ctx, insertText("doc", 0, "ab")))
	require.NoError(t, first.processEvent(ctx, insertText("notes", 0, "z")))

	second := New(WithStore(s), WithClientIDs(StaticClientID(3)))
	require.NoError(t, second.Restore(ctx))
	assert.Equal(t, "ab", textOf(t, second, "doc"))
	assert.Equal(t, "z", textOf(t, second, "notes"))
	assert.Equal(t, int64(2), second.clock.Current())

	// New local ops continue the client's counters and the log's seqs.
	require.NoError(t, second.processEvent(ctx, insertText("doc", 2, "c")))
	records, err := s.ReadOps(ctx, "doc")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, id.New(3, 2), records[1].Op.ID)
	assert.Equal(t, int64(3), records[1].Seq)

	assert.Error(t, New().Restore(ctx), "restore needs a store")
}

func TestEngine_SeqSource(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	first := New(WithStore(s), WithClientIDs(StaticClientID(1)))
	require.NoError(t, first.processEvent(ctx, insertText("doc", 0, "a")))
	require.NoError(t, first.processEvent(ctx, insertText("doc", 1, "b")))

	seqs := testutil.NewSeqRecorder()
	second := New(WithStore(s), WithClock(seqs), WithClientIDs(StaticClientID(1)))
	require.NoError(t, second.Restore(ctx))
	assert.Equal(t, int64(2), seqs.Current(), "restore advances past the log")
	assert.Empty(t, seqs.Issued())

	require.NoError(t, second.processEvent(ctx, insertText("doc", 2, "c")))
	records, err := s.ReadOps(ctx, "doc")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, int64(3), records[2].Seq)
	assert.Equal(t, []int64{3}, seqs.Issued())
}
