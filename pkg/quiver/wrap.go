package quiver

import (
	"math"
	"reflect"
)

// wrapMode selects one of the four observation behaviors for a wrapper:
// {deep, shallow} x {mutable, readonly}.
type wrapMode uint8

const (
	modeReactive wrapMode = iota
	modeShallow
	modeReadonly
	modeShallowReadonly
	modeCount
)

func (m wrapMode) readonly() bool { return m == modeReadonly || m == modeShallowReadonly }
func (m wrapMode) shallow() bool  { return m == modeShallow || m == modeShallowReadonly }

func (m wrapMode) String() string {
	switch m {
	case modeReactive:
		return "reactive"
	case modeShallow:
		return "shallow"
	case modeReadonly:
		return "readonly"
	case modeShallowReadonly:
		return "shallow-readonly"
	default:
		return "unknown"
	}
}

// mapTarget is the interned identity of one raw map. All four wrapper
// modes over the same raw share it, so a write through any mutable
// wrapper reaches the dependencies recorded through any other.
type mapTarget struct {
	raw      map[string]any
	wrappers [modeCount]*Map
	regKey   uintptr
}

func (t *mapTarget) dropWrappers() { t.wrappers = [modeCount]*Map{} }

// listTarget is the interned identity of one raw slice. The current
// backing lives in items and moves when structural methods grow it; raw
// pins the slice the registry key was derived from, so re-wrapping the
// original value keeps resolving to this target.
type listTarget struct {
	raw      []any
	items    []any
	wrappers [modeCount]*List
	regKey   uintptr
	hasKey   bool
}

func (t *listTarget) dropWrappers() { t.wrappers = [modeCount]*List{} }

// =============================================================================
// Wrapping entry points
// =============================================================================

// ReactiveMap wraps a raw map for deep observation: reads are tracked
// per key, nested maps and slices come back wrapped in the same mode,
// stored cells are unwrapped, and writes trigger. Wrapping the same raw
// map again returns the same wrapper. A nil map is replaced by an empty
// one.
func (rt *Runtime) ReactiveMap(raw map[string]any) *Map { return rt.wrapMap(raw, modeReactive) }

// ShallowMap wraps a raw map tracking only its own keys: nested values
// are returned as-is, never wrapped or unwrapped.
func (rt *Runtime) ShallowMap(raw map[string]any) *Map { return rt.wrapMap(raw, modeShallow) }

// ReadonlyMap wraps a raw map for deep read-only access: reads are not
// tracked (the view itself offers no writes to react to), nested values
// come back readonly-wrapped, and writes are swallowed with a
// development-mode warning.
func (rt *Runtime) ReadonlyMap(raw map[string]any) *Map { return rt.wrapMap(raw, modeReadonly) }

// ShallowReadonlyMap combines ShallowMap and ReadonlyMap: top-level
// writes are swallowed, nested values are returned untouched.
func (rt *Runtime) ShallowReadonlyMap(raw map[string]any) *Map {
	return rt.wrapMap(raw, modeShallowReadonly)
}

// ReactiveList wraps a raw slice for deep observation, the sequence
// counterpart of ReactiveMap. Indices are tracked individually and the
// length is a dependency of its own.
//
// Identity caveat: a slice with no backing array (nil, or zero capacity)
// has no address to intern, so every wrap of such a value creates an
// independent list.
func (rt *Runtime) ReactiveList(raw []any) *List { return rt.wrapList(raw, modeReactive) }

// ShallowList wraps a raw slice tracking only indices and length;
// elements are returned as-is.
func (rt *Runtime) ShallowList(raw []any) *List { return rt.wrapList(raw, modeShallow) }

// ReadonlyList wraps a raw slice for deep read-only access.
func (rt *Runtime) ReadonlyList(raw []any) *List { return rt.wrapList(raw, modeReadonly) }

// ShallowReadonlyList combines ShallowList and ReadonlyList.
func (rt *Runtime) ShallowReadonlyList(raw []any) *List {
	return rt.wrapList(raw, modeShallowReadonly)
}

func (rt *Runtime) wrapMap(raw map[string]any, mode wrapMode) *Map {
	rt.checkAffinity("wrap")
	t := rt.mapTargetFor(raw)
	return rt.mapWrapperFor(t, mode)
}

func (rt *Runtime) mapTargetFor(raw map[string]any) *mapTarget {
	if raw == nil {
		raw = make(map[string]any)
	}
	key := reflect.ValueOf(raw).Pointer()
	if t, ok := rt.mapTargets[key]; ok {
		return t
	}
	t := &mapTarget{raw: raw, regKey: key}
	rt.mapTargets[key] = t
	return t
}

func (rt *Runtime) mapWrapperFor(t *mapTarget, mode wrapMode) *Map {
	if w := t.wrappers[mode]; w != nil {
		return w
	}
	w := &Map{rt: rt, t: t, mode: mode}
	t.wrappers[mode] = w
	return w
}

func (rt *Runtime) wrapList(raw []any, mode wrapMode) *List {
	rt.checkAffinity("wrap")
	t := rt.listTargetFor(raw)
	return rt.listWrapperFor(t, mode)
}

func (rt *Runtime) listTargetFor(raw []any) *listTarget {
	if len(raw) == 0 && cap(raw) == 0 {
		return &listTarget{raw: raw, items: raw}
	}
	key := reflect.ValueOf(raw).Pointer()
	if t, ok := rt.listTargets[key]; ok {
		return t
	}
	t := &listTarget{raw: raw, items: raw, regKey: key, hasKey: true}
	rt.listTargets[key] = t
	return t
}

func (rt *Runtime) listWrapperFor(t *listTarget, mode wrapMode) *List {
	if w := t.wrappers[mode]; w != nil {
		return w
	}
	w := &List{rt: rt, t: t, mode: mode}
	t.wrappers[mode] = w
	return w
}

// wrapValue applies deep-mode conversion to a value read out of a
// container: raw collections are wrapped in the reader's mode, existing
// wrappers are re-resolved through their raw so mode conversions stay
// canonical, everything else passes through.
func (rt *Runtime) wrapValue(v any, mode wrapMode) any {
	switch x := v.(type) {
	case *Map:
		if x.rt != rt {
			return x
		}
		return rt.mapWrapperFor(x.t, mode)
	case *List:
		if x.rt != rt {
			return x
		}
		return rt.listWrapperFor(x.t, mode)
	case map[string]any:
		return rt.wrapMap(x, mode)
	case []any:
		return rt.wrapList(x, mode)
	default:
		return v
	}
}

// =============================================================================
// Sentinel reads
// =============================================================================

// IsReactive reports whether v is a mutable wrapper (deep or shallow).
func IsReactive(v any) bool {
	switch x := v.(type) {
	case *Map:
		return !x.mode.readonly()
	case *List:
		return !x.mode.readonly()
	default:
		return false
	}
}

// IsReadonly reports whether v is a readonly wrapper (deep or shallow).
func IsReadonly(v any) bool {
	switch x := v.(type) {
	case *Map:
		return x.mode.readonly()
	case *List:
		return x.mode.readonly()
	default:
		return false
	}
}

// IsWrapped reports whether v is any observation wrapper.
func IsWrapped(v any) bool { return IsReactive(v) || IsReadonly(v) }

// ToRaw returns the raw collection behind a wrapper, or v itself when it
// is not a wrapper. For lists this is the current backing, which may have
// moved away from the originally wrapped slice after growth.
func ToRaw(v any) any {
	switch x := v.(type) {
	case *Map:
		return x.t.raw
	case *List:
		return x.t.items
	default:
		return v
	}
}

// ToRawDeep exports v as detached plain data: wrappers become fresh maps
// and slices, cells are replaced by their current values, and nested
// containers are copied recursively. Reads are not tracked. Cycles are cut
// with nil.
func ToRawDeep(v any) any {
	return toRawDeep(v, make(map[uintptr]bool))
}

func toRawDeep(v any, seen map[uintptr]bool) any {
	switch x := v.(type) {
	case nil:
		return nil
	case Cell:
		return toRawDeep(x.PeekAny(), seen)
	case *Map:
		return toRawDeep(x.t.raw, seen)
	case *List:
		return toRawDeep(x.t.items, seen)
	case map[string]any:
		key := reflect.ValueOf(x).Pointer()
		if seen[key] {
			return nil
		}
		seen[key] = true
		defer delete(seen, key)
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = toRawDeep(val, seen)
		}
		return out
	case []any:
		if len(x) == 0 {
			return []any{}
		}
		key := reflect.ValueOf(x).Pointer()
		if seen[key] {
			return nil
		}
		seen[key] = true
		defer delete(seen, key)
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = toRawDeep(val, seen)
		}
		return out
	default:
		return v
	}
}

// rawDeep strips wrappers and cells without copying, for identity
// comparisons. Cell reads use Peek, so nothing is tracked.
func rawDeep(v any) any {
	for {
		switch x := v.(type) {
		case Cell:
			v = x.PeekAny()
		case *Map:
			return x.t.raw
		case *List:
			return x.t.items
		default:
			return v
		}
	}
}

// =============================================================================
// Change detection
// =============================================================================

// sameValue reports whether old and new count as the same value for
// trigger suppression. NaN is equal to itself (a NaN cell would otherwise
// re-trigger forever), uncomparable kinds fall back to identity, and
// anything else uses plain equality.
func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		if !ok {
			return false
		}
		if math.IsNaN(x) && math.IsNaN(y) {
			return true
		}
		return x == y
	case float32:
		y, ok := b.(float32)
		if !ok {
			return false
		}
		if math.IsNaN(float64(x)) && math.IsNaN(float64(y)) {
			return true
		}
		return x == y
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Type() != rb.Type() {
		return false
	}
	switch ra.Kind() {
	case reflect.Map:
		return ra.Pointer() == rb.Pointer()
	case reflect.Slice:
		return ra.Pointer() == rb.Pointer() && ra.Len() == rb.Len()
	case reflect.Func:
		return ra.Pointer() == rb.Pointer()
	default:
		if ra.Comparable() {
			return a == b
		}
		return false
	}
}
