package quiver

import "reflect"

// depSet is one entry of the dependency store: the set of effects that
// depend on (target, key). The set is shared with each member effect,
// which keeps a back-pointer in its deps list, so membership updates on
// either side are O(1) and unlinking an effect touches only its own sets.
type depSet struct {
	target  any
	key     any
	effects map[*Effect]struct{}
}

// TrackEvent describes a dependency edge being established. Delivered to
// the effect's OnTrack hook and the runtime's track hooks.
type TrackEvent struct {
	Effect *Effect
	Target any
	Op     TrackOp
	Key    any
}

// Track records that the active effect depends on (target, key). It is a
// no-op when tracking is paused or no effect is running.
//
// The observation layer calls this internally; call it directly only when
// integrating foreign state, and then with a comparable target.
func (rt *Runtime) Track(target, key any) {
	rt.track(target, OpGet, key)
}

func (rt *Runtime) track(target any, op TrackOp, key any) {
	if !rt.tracking || len(rt.effectStack) == 0 {
		return
	}
	rt.checkAffinity("track")
	if rt.devMode && !comparableTarget(target) {
		rt.devWarn("track target is not comparable; dependency dropped")
		return
	}

	e := rt.effectStack[len(rt.effectStack)-1]
	keyDeps, ok := rt.deps[target]
	if !ok {
		keyDeps = make(map[any]*depSet)
		rt.deps[target] = keyDeps
		rt.stats.trackedTargets.Add(1)
	}
	d, ok := keyDeps[key]
	if !ok {
		d = &depSet{target: target, key: key, effects: make(map[*Effect]struct{})}
		keyDeps[key] = d
		rt.stats.trackedDeps.Add(1)
	}
	if _, dup := d.effects[e]; dup {
		return
	}
	d.effects[e] = struct{}{}
	e.deps = append(e.deps, d)
	rt.stats.tracks.Add(1)

	if e.onTrack != nil || len(rt.trackHooks) > 0 {
		ev := TrackEvent{Effect: e, Target: target, Op: op, Key: key}
		if e.onTrack != nil {
			e.onTrack(ev)
		}
		for _, h := range rt.trackHooks {
			h(ev)
		}
	}
}

// unlinkDep removes e from d, pruning the store entry when d empties.
func (rt *Runtime) unlinkDep(d *depSet, e *Effect) {
	delete(d.effects, e)
	if len(d.effects) > 0 {
		return
	}
	keyDeps, ok := rt.deps[d.target]
	if !ok {
		return
	}
	if keyDeps[d.key] == d {
		delete(keyDeps, d.key)
		rt.stats.trackedDeps.Add(-1)
		if len(keyDeps) == 0 {
			delete(rt.deps, d.target)
			rt.stats.trackedTargets.Add(-1)
		}
	}
}

// =============================================================================
// Tracking toggle stack
// =============================================================================

// PauseTracking disables dependency collection until the matching
// ResetTracking. Pairs nest; each push shadows the previous state.
func (rt *Runtime) PauseTracking() {
	rt.pushTracking(false)
}

// EnableTracking enables dependency collection until the matching
// ResetTracking, even inside a paused region.
func (rt *Runtime) EnableTracking() {
	rt.pushTracking(true)
}

// ResetTracking restores the state shadowed by the most recent
// PauseTracking or EnableTracking. With nothing to restore, tracking
// returns to its default enabled state.
func (rt *Runtime) ResetTracking() {
	if n := len(rt.trackStack); n > 0 {
		rt.tracking = rt.trackStack[n-1]
		rt.trackStack = rt.trackStack[:n-1]
		return
	}
	rt.tracking = true
}

// TrackingEnabled reports whether reads currently establish dependencies.
func (rt *Runtime) TrackingEnabled() bool { return rt.tracking }

func (rt *Runtime) pushTracking(v bool) {
	rt.trackStack = append(rt.trackStack, rt.tracking)
	rt.tracking = v
}

// Untracked runs fn with tracking paused and returns its result. Reads
// inside fn do not become dependencies of the surrounding effect.
//
// Example:
//
//	rt.NewEffect(func() any {
//	    current := counter.Value() // tracked
//	    limit := quiver.Untracked(rt, maxValue.Value) // not tracked
//	    if current > limit {
//	        overflowed.Set(true)
//	    }
//	    return nil
//	})
func Untracked[T any](rt *Runtime, fn func() T) T {
	rt.PauseTracking()
	defer rt.ResetTracking()
	return fn()
}

// comparableTarget reports whether v can be used as a dependency-store
// key. Only consulted in development mode; the wrappers always pass
// interned pointers.
func comparableTarget(v any) bool {
	if v == nil {
		return false
	}
	return reflect.TypeOf(v).Comparable()
}
