package quiver

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/quiver-dev/quiver/pkg/scheduler"
)

func TestRuntimesAreIndependent(t *testing.T) {
	rt1 := New()
	rt2 := New()
	raw := map[string]any{"n": 1}

	m1 := rt1.ReactiveMap(raw)
	m2 := rt2.ReactiveMap(raw)
	if any(m1) == any(m2) {
		t.Fatal("two runtimes shared a wrapper")
	}

	runs := 0
	rt1.NewEffect(func() any {
		_ = m1.Get("n")
		runs++
		return nil
	})

	// A write through the other runtime's wrapper mutates the shared raw
	// map but cannot reach rt1's dependency store.
	m2.Set("n", 2)
	if runs != 1 {
		t.Errorf("cross-runtime trigger leaked, got %d runs", runs)
	}
}

func TestStatsCounters(t *testing.T) {
	rt := New()
	count := NewRef(rt, 0)

	e := rt.NewEffect(func() any {
		_ = count.Value()
		return nil
	})

	s := rt.Stats()
	if s.EffectRuns != 1 || s.Tracks != 1 || s.ActiveEffects != 1 {
		t.Errorf("after effect: %+v", s)
	}
	if s.TrackedTargets != 1 || s.TrackedDeps != 1 {
		t.Errorf("store gauges: %+v", s)
	}

	count.Set(1)
	s = rt.Stats()
	if s.Triggers != 1 || s.EffectRuns != 2 {
		t.Errorf("after trigger: %+v", s)
	}

	e.Stop()
	s = rt.Stats()
	if s.ActiveEffects != 0 || s.TrackedDeps != 0 || s.TrackedTargets != 0 {
		t.Errorf("after stop: %+v", s)
	}

	double := NewComputed(rt, func() int { return count.Value() * 2 })
	_ = double.Value()
	if got := rt.Stats().ComputedRecomputes; got != 1 {
		t.Errorf("ComputedRecomputes = %d, want 1", got)
	}

	rt.Watch(count, func(_, _ any, _ func(func())) {})
	count.Set(2)
	rt.Flush()
	if got := rt.Stats().WatchJobs; got != 1 {
		t.Errorf("WatchJobs = %d, want 1", got)
	}
}

func TestErrorHandlerReceivesOrigins(t *testing.T) {
	var errs []error
	var origins []ErrorOrigin
	rt := New(WithErrorHandler(func(err error, origin ErrorOrigin) {
		errs = append(errs, err)
		origins = append(origins, origin)
	}))
	count := NewRef(rt, 0)

	// Getter panic.
	rt.Watch(func() any {
		if count.Value() > 0 {
			panic(errors.New("getter failure"))
		}
		return count.Value()
	}, func(_, _ any, _ func(func())) {}, WithFlush(FlushSync))

	count.Set(1)
	if len(origins) == 0 || origins[0] != OriginWatchGetter {
		t.Fatalf("origins = %v, want getter first", origins)
	}
	if errs[0] == nil || errs[0].Error() != "getter failure" {
		t.Errorf("err = %v", errs[0])
	}

	// Callback panic.
	origins = origins[:0]
	other := NewRef(rt, 0)
	rt.Watch(other, func(_, _ any, _ func(func())) {
		panic("callback failure")
	}, WithFlush(FlushSync))
	other.Set(1)
	if len(origins) != 1 || origins[0] != OriginWatchCallback {
		t.Fatalf("origins = %v, want callback", origins)
	}

	// Cleanup panic.
	origins = origins[:0]
	third := NewRef(rt, 0)
	stop := rt.Watch(third, func(_, _ any, onCleanup func(func())) {
		onCleanup(func() { panic("cleanup failure") })
	}, WithFlush(FlushSync))
	third.Set(1)
	stop()
	if len(origins) != 1 || origins[0] != OriginWatchCleanup {
		t.Fatalf("origins = %v, want cleanup", origins)
	}

	if rt.Stats().Errors != 3 {
		t.Errorf("Errors stat = %d, want 3", rt.Stats().Errors)
	}
}

func TestErrorOriginStrings(t *testing.T) {
	cases := map[ErrorOrigin]string{
		OriginWatchGetter:   "watch getter",
		OriginWatchCallback: "watch callback",
		OriginWatchCleanup:  "watch cleanup",
		OriginSchedulerJob:  "scheduler job",
		OriginScopeCleanup:  "scope cleanup",
	}
	for origin, want := range cases {
		if got := origin.String(); got != want {
			t.Errorf("String(%d) = %q, want %q", uint8(origin), got, want)
		}
	}
}

func TestReadonlyWriteWarnsInDevMode(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	rt := New(WithLogger(zap.New(core)), WithDevMode())

	rt.ReadonlyMap(map[string]any{"n": 1}).Set("n", 2)
	if logs.FilterMessageSnippet("readonly map").Len() != 1 {
		t.Error("expected a readonly-map warning")
	}

	rt.ReadonlyList([]any{1}).Push(2)
	if logs.FilterMessageSnippet("readonly list").Len() != 1 {
		t.Error("expected a readonly-list warning")
	}
}

func TestReadonlyWriteSilentWithoutDevMode(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	rt := New(WithLogger(zap.New(core)))

	rt.ReadonlyMap(map[string]any{"n": 1}).Set("n", 2)
	if logs.Len() != 0 {
		t.Errorf("expected silence outside dev mode, got %d entries", logs.Len())
	}
}

func TestForeignGoroutineWarnsOnce(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	rt := New(WithLogger(zap.New(core)), WithDevMode())
	m := rt.ReactiveMap(map[string]any{"n": 1})

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Set("n", 2)
		m.Set("n", 3)
	}()
	<-done

	if got := logs.FilterMessageSnippet("foreign goroutine").Len(); got != 1 {
		t.Errorf("expected exactly one affinity warning, got %d", got)
	}
}

func TestRuntimeTrackHook(t *testing.T) {
	rt := New()
	var events []TrackEvent
	rt.AddTrackHook(func(ev TrackEvent) { events = append(events, ev) })

	m := rt.ReactiveMap(map[string]any{"a": 1})
	rt.NewEffect(func() any {
		_ = m.Get("a")
		return nil
	})

	if len(events) != 1 {
		t.Fatalf("expected 1 track event, got %d", len(events))
	}
	if events[0].Key != "a" || events[0].Op != OpGet || events[0].Effect == nil {
		t.Errorf("event = %+v", events[0])
	}
}

func TestRuntimeTriggerHook(t *testing.T) {
	rt := New()
	var events []TriggerEvent
	rt.AddTriggerHook(func(ev TriggerEvent) { events = append(events, ev) })

	m := rt.ReactiveMap(map[string]any{"a": 1})
	rt.NewEffect(func() any {
		_ = m.Get("a")
		return nil
	})
	rt.NewEffect(func() any {
		_ = m.Get("a")
		return nil
	})

	m.Set("a", 2)
	if len(events) != 1 {
		t.Fatalf("expected one event per trigger call, got %d", len(events))
	}
	ev := events[0]
	if ev.Effect != nil {
		t.Error("runtime-level event should not name an effect")
	}
	if ev.Scheduled != 2 {
		t.Errorf("Scheduled = %d, want 2", ev.Scheduled)
	}
	if ev.Op != OpSet || ev.Key != "a" || ev.NewValue != 2 || ev.OldValue != 1 {
		t.Errorf("event = %+v", ev)
	}
}

// recordingQueue captures jobs instead of running them, standing in for a
// host that owns its own loop.
type recordingQueue struct {
	pre  []scheduler.Job
	post []scheduler.Job
}

func (q *recordingQueue) QueuePre(j scheduler.Job)  { q.pre = append(q.pre, j) }
func (q *recordingQueue) QueuePost(j scheduler.Job) { q.post = append(q.post, j) }
func (q *recordingQueue) Flush() {
	for _, j := range q.pre {
		j.Invoke()
	}
	for _, j := range q.post {
		j.Invoke()
	}
	q.pre, q.post = nil, nil
}

func TestCustomJobQueue(t *testing.T) {
	q := &recordingQueue{}
	rt := New(WithJobQueue(q))
	count := NewRef(rt, 0)

	fired := 0
	rt.Watch(count, func(_, _ any, _ func(func())) { fired++ })

	count.Set(1)
	if len(q.pre) != 1 {
		t.Fatalf("expected the watch job on the custom queue, got %d", len(q.pre))
	}
	if fired != 0 {
		t.Fatal("job ran before the host drained it")
	}

	rt.Flush()
	if fired != 1 {
		t.Errorf("expected 1 call after drain, got %d", fired)
	}
}

func TestTrackOutsideEffectIsNoop(t *testing.T) {
	rt := New()
	m := rt.ReactiveMap(map[string]any{"a": 1})

	_ = m.Get("a")
	if s := rt.Stats(); s.Tracks != 0 || s.TrackedTargets != 0 {
		t.Errorf("untracked read created store entries: %+v", s)
	}
}

func TestOperationStrings(t *testing.T) {
	if OpGet.String() != "get" || OpHas.String() != "has" || OpIterate.String() != "iterate" {
		t.Error("TrackOp strings wrong")
	}
	if OpSet.String() != "set" || OpAdd.String() != "add" ||
		OpDelete.String() != "delete" || OpClear.String() != "clear" {
		t.Error("TriggerOp strings wrong")
	}
}
