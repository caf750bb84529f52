package quiver

// Effect is a computation that records which state it reads and re-runs
// when any of it changes. Effects are created with Runtime.NewEffect and
// re-run either directly from a trigger or through their scheduler.
//
// Every run starts from a clean slate: the effect unlinks from all of its
// previous dependencies and relinks only what the current run actually
// reads. A branch that was not taken this time therefore cannot re-run
// the effect anymore.
type Effect struct {
	rt *Runtime
	id uint64

	// fn is the tracked function. Its return value is passed through by
	// Run; the watch and computed layers use it to read getter results.
	fn func() any

	// active is cleared by Stop. An inactive effect never tracks; Run
	// degrades to a plain call of fn.
	active bool

	// deps are the dependency sets this effect is currently a member of,
	// maintained bidirectionally with the store.
	deps []*depSet

	// lazy suppresses the initial run on creation.
	lazy bool

	// scheduler, when set, is invoked by triggers instead of Run.
	scheduler func(*Effect)

	// allowRecurse lets the effect's own triggers re-notify it.
	allowRecurse bool

	onTrack   func(TrackEvent)
	onTrigger func(TriggerEvent)
	onStop    func()
}

// NewEffect creates an effect and, unless the Lazy option is given, runs
// it once immediately. The effect registers with the ambient scope, if
// any, and is stopped when that scope is disposed.
//
// Example:
//
//	count := quiver.NewRef(rt, 0)
//	rt.NewEffect(func() any {
//	    fmt.Println("count is", count.Value())
//	    return nil
//	})
//	count.Set(1) // prints again
func (rt *Runtime) NewEffect(fn func() any, opts ...EffectOption) *Effect {
	e := &Effect{
		rt:     rt,
		id:     nextID(),
		fn:     fn,
		active: true,
	}
	for _, opt := range opts {
		opt.applyEffect(e)
	}
	rt.stats.activeEffects.Add(1)
	if s := rt.currentScope; s != nil {
		s.registerEffect(e)
	}
	if !e.lazy {
		e.Run()
	}
	return e
}

// ID returns the unique identifier for this effect.
func (e *Effect) ID() uint64 { return e.id }

// Active reports whether the effect still reacts to triggers.
func (e *Effect) Active() bool { return e.active }

// Run executes the effect function with tracking enabled and returns its
// result.
//
// A stopped effect just calls the function, with no tracking. A re-entrant
// call (the effect is already running further up the stack) returns nil
// without executing, which keeps accidental self-recursion from looping.
func (e *Effect) Run() any {
	if !e.active {
		return e.fn()
	}
	rt := e.rt
	for _, running := range rt.effectStack {
		if running == e {
			return nil
		}
	}

	e.unlink()
	rt.effectStack = append(rt.effectStack, e)
	rt.pushTracking(true)
	rt.stats.effectRuns.Add(1)
	defer func() {
		rt.effectStack = rt.effectStack[:len(rt.effectStack)-1]
		rt.ResetTracking()
	}()
	return e.fn()
}

// Stop unlinks the effect from every dependency and deactivates it. The
// OnStop hook fires once; later Stop calls are no-ops, and later Run calls
// are plain untracked calls of the function.
func (e *Effect) Stop() {
	if !e.active {
		return
	}
	e.unlink()
	if e.onStop != nil {
		e.onStop()
	}
	e.active = false
	e.rt.stats.activeEffects.Add(-1)
}

// unlink removes the effect from all of its dependency sets.
func (e *Effect) unlink() {
	for _, d := range e.deps {
		e.rt.unlinkDep(d, e)
	}
	e.deps = e.deps[:0]
}

// forgetDep drops a single back-pointer; used when a whole target is
// released from the store.
func (e *Effect) forgetDep(d *depSet) {
	for i, x := range e.deps {
		if x == d {
			e.deps = append(e.deps[:i], e.deps[i+1:]...)
			return
		}
	}
}

// EffectOption is an option for configuring an Effect.
type EffectOption interface {
	isEffectOption()
	applyEffect(e *Effect)
}

type effectOptionFunc func(*Effect)

func (f effectOptionFunc) isEffectOption()       {}
func (f effectOptionFunc) applyEffect(e *Effect) { f(e) }

// Lazy suppresses the initial run. The effect tracks nothing until the
// first explicit Run; computed cells and watches are built on this.
func Lazy() EffectOption {
	return effectOptionFunc(func(e *Effect) {
		e.lazy = true
	})
}

// WithScheduler diverts triggers: instead of running the effect inline,
// the trigger calls s with the effect. The scheduler decides when (and
// whether) to call Run.
//
// Example, deferring to a job queue:
//
//	e := rt.NewEffect(read, quiver.WithScheduler(func(e *quiver.Effect) {
//	    jobs = append(jobs, e)
//	}))
func WithScheduler(s func(*Effect)) EffectOption {
	return effectOptionFunc(func(e *Effect) {
		e.scheduler = s
	})
}

// AllowRecurse lets triggers caused by the effect's own run notify the
// effect again. Without it the running effect is excluded from its own
// fan-out. Use together with a scheduler that bounds the recursion.
func AllowRecurse() EffectOption {
	return effectOptionFunc(func(e *Effect) {
		e.allowRecurse = true
	})
}

// OnTrack installs a debug hook observing every dependency the effect
// establishes.
func OnTrack(fn func(TrackEvent)) EffectOption {
	return effectOptionFunc(func(e *Effect) {
		e.onTrack = fn
	})
}

// OnTrigger installs a debug hook observing every trigger that notifies
// the effect.
func OnTrigger(fn func(TriggerEvent)) EffectOption {
	return effectOptionFunc(func(e *Effect) {
		e.onTrigger = fn
	})
}

// OnStop installs a hook that fires once when the effect is stopped.
func OnStop(fn func()) EffectOption {
	return effectOptionFunc(func(e *Effect) {
		e.onStop = fn
	})
}
