package quiver

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/quiver-dev/quiver/pkg/scheduler"
)

// FlushMode controls when a watcher's callback runs relative to the
// mutation that invalidated it.
type FlushMode uint8

const (
	// FlushPre (the default) defers the callback to the pre stage of the
	// next queue flush. A watcher owned by a scope that has not been
	// marked mounted yet runs synchronously instead, so it observes
	// setup-time mutations in order.
	FlushPre FlushMode = iota
	// FlushSync runs the callback inline with the triggering mutation.
	FlushSync
	// FlushPost defers the callback to the post stage of the next flush.
	FlushPost
)

func (m FlushMode) String() string {
	switch m {
	case FlushPre:
		return "pre"
	case FlushSync:
		return "sync"
	case FlushPost:
		return "post"
	default:
		return fmt.Sprintf("FlushMode(%d)", uint8(m))
	}
}

// WatchCallback receives the new and previous values of a watched source.
// On the first invocation oldValue is nil. onCleanup registers a function
// that runs before the next callback and when the watcher stops; it is
// how a callback tears down whatever it started (timers, subscriptions)
// when the source moves on.
type WatchCallback func(newValue, oldValue any, onCleanup func(func()))

// StopHandle stops a watcher. Calling it more than once is harmless.
type StopHandle func()

// =============================================================================
// options
// =============================================================================

type watchConfig struct {
	deep      bool
	immediate bool
	flush     FlushMode
	scope     *Scope
}

// WatchOption configures Watch and WatchEffect.
type WatchOption interface {
	isWatchOption()
	applyWatch(*watchConfig)
}

type watchOptionFunc func(*watchConfig)

func (watchOptionFunc) isWatchOption()              {}
func (f watchOptionFunc) applyWatch(c *watchConfig) { f(c) }

// Deep makes the watcher visit the watched value recursively on every
// run, so mutations anywhere inside nested collections fire the callback.
// Watching a Map or List source implies Deep.
func Deep() WatchOption {
	return watchOptionFunc(func(c *watchConfig) { c.deep = true })
}

// Immediate fires the callback once right away, with a nil old value,
// instead of waiting for the first change.
func Immediate() WatchOption {
	return watchOptionFunc(func(c *watchConfig) { c.immediate = true })
}

// WithFlush selects when the callback runs. See FlushMode.
func WithFlush(mode FlushMode) WatchOption {
	return watchOptionFunc(func(c *watchConfig) { c.flush = mode })
}

// WithScope attaches the watcher to a scope other than the ambient one,
// so disposing that scope stops the watcher.
func WithScope(s *Scope) WatchOption {
	return watchOptionFunc(func(c *watchConfig) { c.scope = s })
}

// =============================================================================
// watch
// =============================================================================

// neverValue marks a watcher that has not produced a value yet, so the
// first callback can receive nil where a previous value would go even if
// the source legitimately produced nil later.
type neverValue struct{ _ byte }

var initialWatch any = &neverValue{}

// Watch observes a source and calls cb when its value changes.
//
// The source may be a Cell (watch its value), a *Map or *List (deep-watch
// the collection, callback on any nested mutation), a func() any (watch
// the function's tracked result), or a []any combining several of those,
// in which case the callback receives []any new and old values, changed
// element-wise. Any other source warns in dev mode and never fires.
//
// Example:
//
//	name := quiver.NewRef(rt, "ada")
//	stop := rt.Watch(name, func(newV, oldV any, _ func(func())) {
//	    fmt.Println(oldV, "->", newV)
//	}, quiver.WithFlush(quiver.FlushSync))
//	name.Set("grace") // prints: ada -> grace
//	stop()
func (rt *Runtime) Watch(source any, cb WatchCallback, opts ...WatchOption) StopHandle {
	if cb == nil {
		rt.devWarn("Watch requires a callback; use WatchEffect to run a function for its side effects")
		return func() {}
	}
	cfg := watchConfig{flush: FlushPre}
	for _, opt := range opts {
		opt.applyWatch(&cfg)
	}
	return rt.doWatch(source, cb, cfg)
}

// WatchEffect runs fn immediately, tracks everything it reads, and runs
// it again whenever any of that changes. fn receives an onCleanup
// registrar with WatchCallback's semantics.
func (rt *Runtime) WatchEffect(fn func(onCleanup func(func())), opts ...WatchOption) StopHandle {
	if fn == nil {
		rt.devWarn("WatchEffect requires a function")
		return func() {}
	}
	cfg := watchConfig{flush: FlushPre}
	for _, opt := range opts {
		opt.applyWatch(&cfg)
	}
	return rt.doWatch(fn, nil, cfg)
}

func (rt *Runtime) doWatch(source any, cb WatchCallback, cfg watchConfig) StopHandle {
	scope := cfg.scope
	if scope == nil {
		scope = rt.currentScope
	}

	var cleanup func()
	registerCleanup := func(fn func()) {
		cleanup = fn
	}
	runCleanup := func() {
		if cleanup == nil {
			return
		}
		fn := cleanup
		cleanup = nil
		rt.guard(OriginWatchCleanup, fn)
	}

	var getter func() any
	forceTrigger := false
	multi := false

	if cb == nil {
		// Watch-effect: the source is the callback. Pending cleanup runs
		// before each re-run.
		fn := source.(func(onCleanup func(func())))
		getter = func() any {
			runCleanup()
			rt.guard(OriginWatchCallback, func() { fn(registerCleanup) })
			return nil
		}
	} else {
		getter, forceTrigger, multi = rt.watchGetter(source, &cfg)
		if cfg.deep {
			base := getter
			getter = func() any { return traverse(base()) }
		}
	}

	var oldValue any = initialWatch
	if multi {
		n := len(source.([]any))
		olds := make([]any, n)
		for i := range olds {
			olds[i] = initialWatch
		}
		oldValue = olds
	}

	wjob := &watchJob{recurse: cb != nil}

	var sched func(*Effect)
	switch cfg.flush {
	case FlushSync:
		sched = func(*Effect) { wjob.Invoke() }
	case FlushPost:
		sched = func(*Effect) { rt.queue.QueuePost(wjob) }
	default:
		sched = func(*Effect) {
			if scope != nil && !scope.Mounted() {
				wjob.Invoke()
				return
			}
			rt.queue.QueuePre(wjob)
		}
	}

	opts := []EffectOption{Lazy(), WithScheduler(sched), OnStop(runCleanup)}
	if cb != nil {
		opts = append(opts, AllowRecurse())
	}
	makeRunner := func() *Effect { return rt.NewEffect(getter, opts...) }

	var runner *Effect
	if cfg.scope != nil && cfg.scope != rt.currentScope {
		rt.RunInScope(cfg.scope, func() { runner = makeRunner() })
	} else {
		runner = makeRunner()
	}
	wjob.id = runner.ID()

	job := func() {
		if !runner.Active() {
			return
		}
		rt.stats.watchJobs.Add(1)
		if cb == nil {
			runner.Run()
			return
		}
		newValue := runner.Run()
		if !cfg.deep && !forceTrigger && !watchChanged(newValue, oldValue, multi) {
			return
		}
		runCleanup()
		prev := previousValue(oldValue, multi)
		rt.guard(OriginWatchCallback, func() { cb(newValue, prev, registerCleanup) })
		oldValue = newValue
	}
	wjob.fn = job

	if cb != nil && cfg.immediate {
		job()
	} else {
		oldValue = runner.Run()
	}

	return func() {
		runner.Stop()
		if scope != nil {
			scope.forget(runner)
		}
	}
}

// watchGetter normalizes a watch source into a tracked reader.
func (rt *Runtime) watchGetter(source any, cfg *watchConfig) (getter func() any, forceTrigger, multi bool) {
	switch s := source.(type) {
	case Cell:
		return func() any { return rt.guardValue(OriginWatchGetter, s.GetAny) }, false, false
	case *Map:
		cfg.deep = true
		return func() any { return s }, true, false
	case *List:
		cfg.deep = true
		return func() any { return s }, true, false
	case func() any:
		return func() any { return rt.guardValue(OriginWatchGetter, s) }, false, false
	case []any:
		getters := make([]func() any, len(s))
		for i, elem := range s {
			switch e := elem.(type) {
			case Cell:
				getters[i] = e.GetAny
			case *Map:
				forceTrigger = true
				getters[i] = func() any { return traverse(e) }
			case *List:
				forceTrigger = true
				getters[i] = func() any { return traverse(e) }
			case func() any:
				getters[i] = e
			default:
				rt.warnInvalidSource(elem)
				getters[i] = func() any { return nil }
			}
		}
		getter = func() any {
			return rt.guardValue(OriginWatchGetter, func() any {
				values := make([]any, len(getters))
				for i, g := range getters {
					values[i] = g()
				}
				return values
			})
		}
		return getter, forceTrigger, true
	default:
		rt.warnInvalidSource(source)
		return func() any { return nil }, false, false
	}
}

func (rt *Runtime) warnInvalidSource(source any) {
	rt.devWarn("invalid watch source: want a Cell, *Map, *List, func() any, or []any of those",
		zap.String("got", fmt.Sprintf("%T", source)),
	)
}

func watchChanged(newValue, oldValue any, multi bool) bool {
	if multi {
		nv, _ := newValue.([]any)
		ov, _ := oldValue.([]any)
		if len(nv) != len(ov) {
			return true
		}
		for i := range nv {
			if !sameValue(nv[i], ov[i]) {
				return true
			}
		}
		return false
	}
	return !sameValue(newValue, oldValue)
}

// previousValue maps the never-ran sentinel to nil for the callback.
func previousValue(oldValue any, multi bool) any {
	if multi {
		ov, ok := oldValue.([]any)
		if !ok {
			return nil
		}
		out := make([]any, len(ov))
		for i, v := range ov {
			if v != initialWatch {
				out[i] = v
			}
		}
		return out
	}
	if oldValue == initialWatch {
		return nil
	}
	return oldValue
}

// watchJob adapts a watcher run to the flush queue.
type watchJob struct {
	id      uint64
	recurse bool
	fn      func()
}

func (j *watchJob) JobID() uint64      { return j.id }
func (j *watchJob) AllowRecurse() bool { return j.recurse }
func (j *watchJob) Invoke()            { j.fn() }

var _ scheduler.Job = (*watchJob)(nil)

// =============================================================================
// deep traversal
// =============================================================================

// traverse reads v recursively so the active effect subscribes to every
// reachable key, index, and cell. Wrappers and cells are visited at most
// once per walk, which keeps cyclic graphs from looping.
func traverse(v any) any {
	traverseInto(v, map[uintptr]struct{}{})
	return v
}

func traverseInto(v any, seen map[uintptr]struct{}) {
	if v == nil {
		return
	}
	if key, ok := traverseKey(v); ok {
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
	}
	switch x := v.(type) {
	case Cell:
		traverseInto(x.GetAny(), seen)
	case *Map:
		x.ForEach(func(_ string, val any) { traverseInto(val, seen) })
	case *List:
		x.ForEach(func(_ int, val any) { traverseInto(val, seen) })
	case map[string]any:
		for _, val := range x {
			traverseInto(val, seen)
		}
	case []any:
		for _, val := range x {
			traverseInto(val, seen)
		}
	}
}

// traverseKey produces a cycle-guard identity for values that can form
// cycles. Scalars cannot, and need none.
func traverseKey(v any) (uintptr, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map:
		return rv.Pointer(), true
	case reflect.Slice:
		if rv.Cap() > 0 {
			return rv.Pointer(), true
		}
	}
	return 0, false
}
