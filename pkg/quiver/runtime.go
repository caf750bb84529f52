package quiver

import (
	"sync/atomic"

	"github.com/petermattis/goid"
	"go.uber.org/zap"

	"github.com/quiver-dev/quiver/pkg/scheduler"
)

// Runtime owns every piece of reactive state: the dependency store, the
// active-effect and tracking stacks, the wrapper registries, the job queue
// for deferred watches, and the diagnostics hooks. Nothing in this package
// is global; two Runtimes never observe each other.
//
// A Runtime is confined to a single goroutine, the one that services its
// host (a session loop, a simulation tick, a test). It is not locked
// internally. In development mode it remembers the goroutine that created
// it and logs a warning when another goroutine touches it.
type Runtime struct {
	logger  *zap.Logger
	onError ErrorHandler
	queue   scheduler.Queue
	devMode bool

	// deps is the dependency store: target -> key -> effects.
	// Targets are interned collection records or cell pointers; entries
	// are pruned as soon as their last effect unlinks.
	deps map[any]map[any]*depSet

	// effectStack holds the effects currently running, innermost last.
	effectStack []*Effect

	// tracking is the current dependency-collection switch; trackStack
	// holds the states shadowed by PauseTracking/EnableTracking.
	tracking   bool
	trackStack []bool

	// currentScope receives effects and watches created while it is
	// ambient (see RunInScope).
	currentScope *Scope

	// wrapper registries, keyed by raw collection identity.
	mapTargets  map[uintptr]*mapTarget
	listTargets map[uintptr]*listTarget

	// runtime-level debug hooks (per-effect hooks live on the Effect).
	trackHooks   []func(TrackEvent)
	triggerHooks []func(TriggerEvent)

	stats runtimeStats

	home           int64 // goroutine that created the runtime
	affinityWarned atomic.Bool
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the structured logger. The default is a no-op logger;
// pass a real one to see development warnings and recovered errors.
func WithLogger(l *zap.Logger) Option {
	return func(rt *Runtime) {
		if l != nil {
			rt.logger = l
		}
	}
}

// WithErrorHandler replaces the default log-and-continue handling of
// failures recovered at user-code boundaries.
func WithErrorHandler(h ErrorHandler) Option {
	return func(rt *Runtime) {
		rt.onError = h
	}
}

// WithJobQueue replaces the built-in flush queue for deferred watch jobs.
// Hosts that already run a job loop implement scheduler.Queue and pass it
// here; Flush then delegates to that queue.
func WithJobQueue(q scheduler.Queue) Option {
	return func(rt *Runtime) {
		if q != nil {
			rt.queue = q
		}
	}
}

// WithDevMode enables development-time diagnostics: readonly-write and
// invalid-source warnings, goroutine-affinity checks, and collection
// snapshots on Clear for trigger hooks.
func WithDevMode() Option {
	return func(rt *Runtime) {
		rt.devMode = true
	}
}

// WithTrackHook adds a runtime-level hook observing every new dependency
// edge. Used by the inspector and telemetry; per-effect hooks are the
// OnTrack effect option.
func WithTrackHook(fn func(TrackEvent)) Option {
	return func(rt *Runtime) {
		rt.AddTrackHook(fn)
	}
}

// WithTriggerHook adds a runtime-level hook observing every trigger.
// The hook receives one event per Trigger call with Effect == nil and
// Scheduled set to the number of effects notified.
func WithTriggerHook(fn func(TriggerEvent)) Option {
	return func(rt *Runtime) {
		rt.AddTriggerHook(fn)
	}
}

// New creates a Runtime bound to the calling goroutine.
func New(opts ...Option) *Runtime {
	rt := &Runtime{
		logger:      zap.NewNop(),
		deps:        make(map[any]map[any]*depSet),
		mapTargets:  make(map[uintptr]*mapTarget),
		listTargets: make(map[uintptr]*listTarget),
		tracking:    true,
		home:        goid.Get(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.queue == nil {
		rt.queue = scheduler.New(scheduler.WithErrorHandler(func(err error) {
			rt.handleError(err, OriginSchedulerJob)
		}))
	}
	return rt
}

// Logger returns the runtime's logger.
func (rt *Runtime) Logger() *zap.Logger { return rt.logger }

// Queue returns the job queue deferred watches are enqueued on.
func (rt *Runtime) Queue() scheduler.Queue { return rt.queue }

// Flush drains the job queue: pre-flush watch jobs, then post-flush ones,
// repeating until quiet. Hosts call this at the point in their loop where
// deferred reactions should run, typically right after handling an event.
func (rt *Runtime) Flush() { rt.queue.Flush() }

// ActiveEffect returns the innermost running effect, or nil.
func (rt *Runtime) ActiveEffect() *Effect {
	if n := len(rt.effectStack); n > 0 {
		return rt.effectStack[n-1]
	}
	return nil
}

// AddTrackHook registers a runtime-level track hook.
func (rt *Runtime) AddTrackHook(fn func(TrackEvent)) {
	if fn != nil {
		rt.trackHooks = append(rt.trackHooks, fn)
	}
}

// AddTriggerHook registers a runtime-level trigger hook.
func (rt *Runtime) AddTriggerHook(fn func(TriggerEvent)) {
	if fn != nil {
		rt.triggerHooks = append(rt.triggerHooks, fn)
	}
}

// Release evicts a wrapper (or any target) from the runtime: its registry
// entries and all dependency-store entries are dropped, and effects that
// tracked it forget the dangling edges. The raw collection itself is
// untouched. Use it when a long-lived Runtime wraps short-lived state.
func (rt *Runtime) Release(v any) {
	switch x := v.(type) {
	case *Map:
		delete(rt.mapTargets, x.t.regKey)
		x.t.dropWrappers()
		rt.dropTargetDeps(x.t)
	case *List:
		if x.t.hasKey {
			delete(rt.listTargets, x.t.regKey)
		}
		x.t.dropWrappers()
		rt.dropTargetDeps(x.t)
	default:
		rt.dropTargetDeps(v)
	}
}

// dropTargetDeps removes every dependency edge touching target.
func (rt *Runtime) dropTargetDeps(target any) {
	keyDeps, ok := rt.deps[target]
	if !ok {
		return
	}
	for _, d := range keyDeps {
		for e := range d.effects {
			e.forgetDep(d)
		}
		rt.stats.trackedDeps.Add(-1)
	}
	delete(rt.deps, target)
	rt.stats.trackedTargets.Add(-1)
}

// devWarn logs a development-mode diagnostic.
func (rt *Runtime) devWarn(msg string, fields ...zap.Field) {
	if rt.devMode {
		rt.logger.Warn(msg, fields...)
	}
}

// checkAffinity verifies the calling goroutine in development mode.
// The warning fires once per runtime; misuse after that stays silent
// rather than flooding the log.
func (rt *Runtime) checkAffinity(op string) {
	if !rt.devMode {
		return
	}
	if g := goid.Get(); g != rt.home && rt.affinityWarned.CompareAndSwap(false, true) {
		rt.logger.Warn("runtime accessed from foreign goroutine",
			zap.String("op", op),
			zap.Int64("home", rt.home),
			zap.Int64("caller", g),
		)
	}
}

// =============================================================================
// Stats
// =============================================================================

// runtimeStats holds internal counters. They are atomics only so that a
// metrics scrape from another goroutine reads them safely; the runtime
// itself writes them from its home goroutine.
type runtimeStats struct {
	tracks             atomic.Uint64
	triggers           atomic.Uint64
	effectRuns         atomic.Uint64
	computedRecomputes atomic.Uint64
	watchJobs          atomic.Uint64
	errors             atomic.Uint64
	activeEffects      atomic.Int64
	trackedTargets     atomic.Int64
	trackedDeps        atomic.Int64
}

// Stats is a point-in-time snapshot of runtime counters.
type Stats struct {
	Tracks             uint64 // dependency edges established
	Triggers           uint64 // trigger fan-outs with at least one candidate target
	EffectRuns         uint64 // effect function executions
	ComputedRecomputes uint64 // computed getter executions
	WatchJobs          uint64 // watch jobs invoked
	Errors             uint64 // failures recovered at user-code boundaries
	ActiveEffects      int64  // effects created and not yet stopped
	TrackedTargets     int64  // targets with at least one dependency
	TrackedDeps        int64  // (target, key) entries in the store
}

// Stats returns a snapshot of the runtime counters. Safe to call from any
// goroutine; this is the surface the telemetry collector scrapes.
func (rt *Runtime) Stats() Stats {
	return Stats{
		Tracks:             rt.stats.tracks.Load(),
		Triggers:           rt.stats.triggers.Load(),
		EffectRuns:         rt.stats.effectRuns.Load(),
		ComputedRecomputes: rt.stats.computedRecomputes.Load(),
		WatchJobs:          rt.stats.watchJobs.Load(),
		Errors:             rt.stats.errors.Load(),
		ActiveEffects:      rt.stats.activeEffects.Load(),
		TrackedTargets:     rt.stats.trackedTargets.Load(),
		TrackedDeps:        rt.stats.trackedDeps.Load(),
	}
}
