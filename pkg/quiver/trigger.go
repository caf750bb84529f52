package quiver

import "sort"

// TriggerEvent describes a mutation fan-out. Per-effect OnTrigger hooks
// receive one event per notified effect; runtime-level trigger hooks
// receive a single event per Trigger call with Effect == nil and Scheduled
// set to the number of effects notified.
type TriggerEvent struct {
	Effect    *Effect
	Target    any
	Op        TriggerOp
	Key       any
	NewValue  any
	OldValue  any
	Scheduled int
}

// Trigger notifies the effects depending on (target, key) that a mutation
// of kind op happened, widening the set according to the op:
//
//   - OpClear notifies every tracked key of the target.
//   - A length change (key == KeyLength on a list target, with the new
//     length in newValue) notifies KeyLength plus every index at or past
//     the new length.
//   - OpAdd additionally notifies KeyIterate and KeyMapIterate on maps,
//     and KeyLength on lists when the key is an index.
//   - OpDelete additionally notifies KeyIterate and KeyMapIterate on maps.
//   - OpSet additionally notifies KeyIterate on maps.
//
// The currently running effect is excluded unless it was created with
// AllowRecurse. Each effect is notified at most once per call, in creation
// order, through its scheduler when it has one.
func (rt *Runtime) Trigger(target any, op TriggerOp, key, newValue, oldValue any) {
	rt.checkAffinity("trigger")

	keyDeps := rt.deps[target]

	var (
		ordered []*Effect
		seen    map[*Effect]struct{}
	)
	active := rt.ActiveEffect()
	collect := func(d *depSet) {
		if d == nil {
			return
		}
		for e := range d.effects {
			if e == active && !e.allowRecurse {
				continue
			}
			if _, dup := seen[e]; dup {
				continue
			}
			seen[e] = struct{}{}
			ordered = append(ordered, e)
		}
	}

	if keyDeps != nil {
		seen = make(map[*Effect]struct{})
		switch {
		case op == OpClear:
			for _, d := range keyDeps {
				collect(d)
			}
		case key == KeyLength && isListTarget(target):
			newLen, ok := newValue.(int)
			if !ok {
				newLen = 0 // unknown new length: over-invalidate
			}
			for k, d := range keyDeps {
				if k == KeyLength {
					collect(d)
					continue
				}
				if i, isIndex := k.(int); isIndex && i >= newLen {
					collect(d)
				}
			}
		default:
			if key != nil {
				collect(keyDeps[key])
			}
			switch op {
			case OpAdd:
				if isListTarget(target) {
					if _, isIndex := key.(int); isIndex {
						collect(keyDeps[KeyLength])
					}
				} else {
					collect(keyDeps[KeyIterate])
					if isMapTarget(target) {
						collect(keyDeps[KeyMapIterate])
					}
				}
			case OpDelete:
				if !isListTarget(target) {
					collect(keyDeps[KeyIterate])
					if isMapTarget(target) {
						collect(keyDeps[KeyMapIterate])
					}
				}
			case OpSet:
				if isMapTarget(target) {
					collect(keyDeps[KeyIterate])
				}
			}
		}
		rt.stats.triggers.Add(1)
	}

	// Creation order: lower IDs first, so derivations run before the
	// effects that read them.
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].id < ordered[j].id })

	if len(rt.triggerHooks) > 0 {
		ev := TriggerEvent{Target: target, Op: op, Key: key, NewValue: newValue, OldValue: oldValue, Scheduled: len(ordered)}
		for _, h := range rt.triggerHooks {
			h(ev)
		}
	}

	for _, e := range ordered {
		if e.onTrigger != nil {
			e.onTrigger(TriggerEvent{Effect: e, Target: target, Op: op, Key: key, NewValue: newValue, OldValue: oldValue})
		}
		if e.scheduler != nil {
			e.scheduler(e)
			continue
		}
		e.Run()
	}
}

func isListTarget(target any) bool {
	_, ok := target.(*listTarget)
	return ok
}

func isMapTarget(target any) bool {
	_, ok := target.(*mapTarget)
	return ok
}
