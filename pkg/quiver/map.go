package quiver

import (
	"maps"
	"sort"

	"go.uber.org/zap"
)

// Map is an observed view over a raw map[string]any. Reads establish
// per-key dependencies for the running effect; writes trigger exactly the
// dependencies the mutation can have affected. The four wrapper modes
// share one underlying target, so dependencies recorded through one
// wrapper are triggered by writes through any mutable one.
//
// A Map (like every wrapper) is confined to its Runtime's goroutine.
type Map struct {
	rt   *Runtime
	t    *mapTarget
	mode wrapMode
}

// MapEntry is one key/value pair returned by Entries.
type MapEntry struct {
	Key   string
	Value any
}

// Get returns the value under key. The read is tracked per key (readonly
// wrappers track nothing). In deep modes, stored cells are unwrapped with
// a tracked read and nested collections come back wrapped in the same
// mode.
func (m *Map) Get(key string) any {
	v := m.t.raw[key]
	if !m.mode.readonly() {
		m.rt.track(m.t, OpGet, key)
	}
	if m.mode.shallow() {
		return v
	}
	if c, ok := v.(Cell); ok {
		return c.GetAny()
	}
	return m.rt.wrapValue(v, m.mode)
}

// Set writes value under key.
//
// Deep modes store values raw (wrappers are unwrapped first) and redirect
// the write into a stored cell when the old value is a cell and the new
// one is not, so `m.Set("count", 2)` updates a counter ref in place
// instead of displacing it.
//
// A new key triggers an add (which also wakes iteration dependents); an
// existing key triggers an update only when the value actually changed.
// On a readonly wrapper the write is swallowed with a development-mode
// warning.
func (m *Map) Set(key string, value any) {
	if m.mode.readonly() {
		m.warnReadonly("Set", key)
		return
	}
	old, had := m.t.raw[key]
	if !m.mode.shallow() {
		value = ToRaw(value)
		if oc, ok := old.(Cell); ok {
			if _, incoming := value.(Cell); !incoming {
				if err := oc.SetAny(value); err != nil {
					m.rt.devWarn("cell write through map rejected",
						zap.String("key", key), zap.Error(err))
				}
				return
			}
		}
	}
	m.t.raw[key] = value
	if !had {
		m.rt.Trigger(m.t, OpAdd, key, value, nil)
		return
	}
	if !sameValue(value, old) {
		m.rt.Trigger(m.t, OpSet, key, value, old)
	}
}

// Delete removes key, reporting whether it existed. Only an existing key
// triggers.
func (m *Map) Delete(key string) bool {
	if m.mode.readonly() {
		m.warnReadonly("Delete", key)
		return false
	}
	old, had := m.t.raw[key]
	if !had {
		return false
	}
	delete(m.t.raw, key)
	m.rt.Trigger(m.t, OpDelete, key, nil, old)
	return true
}

// Has reports whether key exists. Tracked per key, so adding or removing
// that key re-runs the effect even though it never read the value.
func (m *Map) Has(key string) bool {
	if !m.mode.readonly() {
		m.rt.track(m.t, OpHas, key)
	}
	_, ok := m.t.raw[key]
	return ok
}

// Len returns the number of entries. Tracked against iteration, which
// adds, deletes, and clears notify.
func (m *Map) Len() int {
	if !m.mode.readonly() {
		m.rt.track(m.t, OpIterate, KeyIterate)
	}
	return len(m.t.raw)
}

// Keys returns the keys in sorted order. Tracked against key iteration
// only: adds and deletes notify it, value updates do not.
func (m *Map) Keys() []string {
	if !m.mode.readonly() {
		m.rt.track(m.t, OpIterate, KeyMapIterate)
	}
	keys := make([]string, 0, len(m.t.raw))
	for k := range m.t.raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Values returns the values in sorted-key order, converted per Get's deep
// rules. Tracked against iteration.
func (m *Map) Values() []any {
	if !m.mode.readonly() {
		m.rt.track(m.t, OpIterate, KeyIterate)
	}
	out := make([]any, 0, len(m.t.raw))
	for _, k := range m.sortedKeys() {
		out = append(out, m.outValue(m.t.raw[k]))
	}
	return out
}

// Entries returns key/value pairs in sorted-key order, values converted
// per Get's deep rules. Tracked against iteration.
func (m *Map) Entries() []MapEntry {
	if !m.mode.readonly() {
		m.rt.track(m.t, OpIterate, KeyIterate)
	}
	out := make([]MapEntry, 0, len(m.t.raw))
	for _, k := range m.sortedKeys() {
		out = append(out, MapEntry{Key: k, Value: m.outValue(m.t.raw[k])})
	}
	return out
}

// ForEach calls fn for every entry in sorted-key order, values converted
// per Get's deep rules. Tracked against iteration.
func (m *Map) ForEach(fn func(key string, value any)) {
	if !m.mode.readonly() {
		m.rt.track(m.t, OpIterate, KeyIterate)
	}
	for _, k := range m.sortedKeys() {
		fn(k, m.outValue(m.t.raw[k]))
	}
}

// Clear removes every entry in one trigger: all tracked keys of the map
// are notified. An already-empty map does not trigger. In development
// mode the trigger event carries a snapshot of the old contents.
func (m *Map) Clear() {
	if m.mode.readonly() {
		m.warnReadonly("Clear", "")
		return
	}
	if len(m.t.raw) == 0 {
		return
	}
	var snapshot map[string]any
	if m.rt.devMode {
		snapshot = maps.Clone(m.t.raw)
	}
	clear(m.t.raw)
	m.rt.Trigger(m.t, OpClear, nil, nil, snapshot)
}

// Raw returns the underlying map. Mutations through it bypass tracking.
func (m *Map) Raw() map[string]any { return m.t.raw }

// outValue applies the deep-mode read conversion without tracking the
// key; callers have already tracked iteration.
func (m *Map) outValue(v any) any {
	if m.mode.shallow() {
		return v
	}
	if c, ok := v.(Cell); ok {
		return c.GetAny()
	}
	return m.rt.wrapValue(v, m.mode)
}

func (m *Map) sortedKeys() []string {
	keys := make([]string, 0, len(m.t.raw))
	for k := range m.t.raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Map) warnReadonly(op, key string) {
	m.rt.devWarn("write through readonly map ignored",
		zap.String("op", op),
		zap.String("key", key),
	)
}
