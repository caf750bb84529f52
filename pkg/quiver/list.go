package quiver

import "go.uber.org/zap"

// List is an observed view over a raw []any. Indices are tracked
// individually and the length is a dependency of its own: shrinking the
// list notifies exactly the length dependents and the indices that fell
// off the end.
//
// Unlike maps, cells stored in a list are not unwrapped by index reads;
// a list of refs keeps handing out the refs, so positions can be rebound
// without losing the cell. Structural methods (Push, Pop, Shift, Unshift,
// Splice) run with tracking paused: calling them inside an effect does
// not make the effect depend on the whole list, but dependents of the
// touched indices and the length are still triggered.
type List struct {
	rt   *Runtime
	t    *listTarget
	mode wrapMode
}

// Get returns the element at index i, or nil when out of range. The read
// is tracked per index, including not-yet-existing indices, so an effect
// reading past the end re-runs when that slot appears. Deep modes wrap
// nested collections; cells are returned as-is.
func (l *List) Get(i int) any {
	if i < 0 {
		return nil
	}
	var v any
	if i < len(l.t.items) {
		v = l.t.items[i]
	}
	if !l.mode.readonly() {
		l.rt.track(l.t, OpGet, i)
	}
	return l.outValue(v)
}

// Set writes the element at index i. Writing past the end grows the list
// (intervening slots become nil) and triggers an add, which also wakes
// length dependents; writing in range triggers an update only when the
// value changed.
func (l *List) Set(i int, value any) {
	if l.mode.readonly() {
		l.warnReadonly("Set", i)
		return
	}
	if i < 0 {
		l.rt.devWarn("negative list index ignored", zap.Int("index", i))
		return
	}
	l.setIndex(i, l.inValue(value))
}

// Len returns the current length, tracked against the length key.
func (l *List) Len() int {
	if !l.mode.readonly() {
		l.rt.track(l.t, OpGet, KeyLength)
	}
	return len(l.t.items)
}

// SetLen resizes the list. Shrinking notifies length dependents and every
// index at or past the new length; growing pads with nil and notifies
// length dependents only.
func (l *List) SetLen(n int) {
	if l.mode.readonly() {
		l.warnReadonly("SetLen", n)
		return
	}
	if n < 0 {
		l.rt.devWarn("negative list length ignored", zap.Int("length", n))
		return
	}
	l.setLength(n)
}

// Push appends values and returns the new length.
func (l *List) Push(values ...any) int {
	if l.mode.readonly() {
		l.warnReadonly("Push", len(l.t.items))
		return len(l.t.items)
	}
	l.rt.PauseTracking()
	defer l.rt.ResetTracking()
	for _, v := range values {
		l.setIndex(len(l.t.items), l.inValue(v))
	}
	return len(l.t.items)
}

// Pop removes and returns the last element, or nil on an empty list.
func (l *List) Pop() any {
	if l.mode.readonly() {
		l.warnReadonly("Pop", len(l.t.items))
		return nil
	}
	l.rt.PauseTracking()
	defer l.rt.ResetTracking()
	n := len(l.t.items)
	if n == 0 {
		return nil
	}
	out := l.outValue(l.t.items[n-1])
	l.deleteIndex(n - 1)
	l.setLength(n - 1)
	return out
}

// Shift removes and returns the first element, or nil on an empty list.
// Surviving elements move down one index each, triggering per moved slot.
func (l *List) Shift() any {
	if l.mode.readonly() {
		l.warnReadonly("Shift", len(l.t.items))
		return nil
	}
	l.rt.PauseTracking()
	defer l.rt.ResetTracking()
	n := len(l.t.items)
	if n == 0 {
		return nil
	}
	out := l.outValue(l.t.items[0])
	for i := 1; i < n; i++ {
		l.setIndex(i-1, l.t.items[i])
	}
	l.deleteIndex(n - 1)
	l.setLength(n - 1)
	return out
}

// Unshift prepends values and returns the new length. Existing elements
// move up, triggering per moved slot.
func (l *List) Unshift(values ...any) int {
	if l.mode.readonly() {
		l.warnReadonly("Unshift", len(l.t.items))
		return len(l.t.items)
	}
	l.rt.PauseTracking()
	defer l.rt.ResetTracking()
	k := len(values)
	if k == 0 {
		return len(l.t.items)
	}
	n := len(l.t.items)
	for i := n + k - 1; i >= k; i-- {
		l.setIndex(i, l.t.items[i-k])
	}
	for i, v := range values {
		l.setIndex(i, l.inValue(v))
	}
	return len(l.t.items)
}

// Splice removes deleteCount elements starting at start (negative start
// counts from the end), inserts the given values in their place, and
// returns the removed elements. Moved, added, and dropped slots trigger
// individually; a net shrink additionally triggers length dependents.
func (l *List) Splice(start, deleteCount int, insert ...any) []any {
	if l.mode.readonly() {
		l.warnReadonly("Splice", start)
		return nil
	}
	l.rt.PauseTracking()
	defer l.rt.ResetTracking()

	n := len(l.t.items)
	if start < 0 {
		start = n + start
		if start < 0 {
			start = 0
		}
	}
	if start > n {
		start = n
	}
	if deleteCount < 0 {
		deleteCount = 0
	}
	if deleteCount > n-start {
		deleteCount = n - start
	}

	removed := make([]any, deleteCount)
	for i := 0; i < deleteCount; i++ {
		removed[i] = l.outValue(l.t.items[start+i])
	}

	k := len(insert)
	switch {
	case k < deleteCount:
		newLen := n - deleteCount + k
		for i := start + deleteCount; i < n; i++ {
			l.setIndex(i-deleteCount+k, l.t.items[i])
		}
		for i := newLen; i < n; i++ {
			l.deleteIndex(i)
		}
		defer l.setLength(newLen)
	case k > deleteCount:
		for i := n - 1; i >= start+deleteCount; i-- {
			l.setIndex(i+k-deleteCount, l.t.items[i])
		}
	}
	for i, v := range insert {
		l.setIndex(start+i, l.inValue(v))
	}
	return removed
}

// IndexOf returns the first index holding v, or -1. The search depends on
// the whole list, so every index and the length are tracked. Comparison
// is by identity-aware equality; when nothing matches, the search retries
// with the argument and the elements unwrapped to their raw forms, so a
// raw value finds its wrapper and a wrapper finds its raw value.
func (l *List) IndexOf(v any) int {
	l.trackAll()
	items := l.t.items
	for i, item := range items {
		if sameValue(item, v) {
			return i
		}
	}
	rv := rawDeep(v)
	for i, item := range items {
		if sameValue(rawDeep(item), rv) {
			return i
		}
	}
	return -1
}

// LastIndexOf returns the last index holding v, or -1, with IndexOf's
// tracking and unwrap-retry semantics.
func (l *List) LastIndexOf(v any) int {
	l.trackAll()
	items := l.t.items
	for i := len(items) - 1; i >= 0; i-- {
		if sameValue(items[i], v) {
			return i
		}
	}
	rv := rawDeep(v)
	for i := len(items) - 1; i >= 0; i-- {
		if sameValue(rawDeep(items[i]), rv) {
			return i
		}
	}
	return -1
}

// Contains reports whether the list holds v, with IndexOf's semantics.
func (l *List) Contains(v any) bool {
	return l.IndexOf(v) >= 0
}

// Values returns a copy of the elements converted per Get's deep rules.
// Tracked like a full read: every index plus the length.
func (l *List) Values() []any {
	l.trackAll()
	out := make([]any, len(l.t.items))
	for i, v := range l.t.items {
		out[i] = l.outValue(v)
	}
	return out
}

// ForEach calls fn for every element in order, converted per Get's deep
// rules. Tracked like a full read.
func (l *List) ForEach(fn func(i int, v any)) {
	l.trackAll()
	for i, v := range l.t.items {
		fn(i, l.outValue(v))
	}
}

// Raw returns the current backing slice. Mutations through it bypass
// tracking, and the backing moves when the list grows.
func (l *List) Raw() []any { return l.t.items }

// =============================================================================
// internals
// =============================================================================

// setIndex is the untyped write core: in-range writes update and trigger
// on change, out-of-range writes grow and trigger an add. Values arrive
// already converted.
func (l *List) setIndex(i int, v any) {
	items := l.t.items
	if i < len(items) {
		old := items[i]
		items[i] = v
		if !sameValue(v, old) {
			l.rt.Trigger(l.t, OpSet, i, v, old)
		}
		return
	}
	l.t.grow(i + 1)
	l.t.items[i] = v
	l.rt.Trigger(l.t, OpAdd, i, v, nil)
}

// deleteIndex empties a slot without resizing, the sequence counterpart
// of a key delete. Length adjustments are separate triggers.
func (l *List) deleteIndex(i int) {
	items := l.t.items
	if i < 0 || i >= len(items) {
		return
	}
	old := items[i]
	items[i] = nil
	l.rt.Trigger(l.t, OpDelete, i, nil, old)
}

func (l *List) setLength(n int) {
	old := len(l.t.items)
	if n == old {
		return
	}
	if n < old {
		items := l.t.items
		for i := n; i < old; i++ {
			items[i] = nil
		}
		l.t.items = items[:n]
	} else {
		l.t.grow(n)
	}
	l.rt.Trigger(l.t, OpSet, KeyLength, n, old)
}

func (t *listTarget) grow(n int) {
	for len(t.items) < n {
		t.items = append(t.items, nil)
	}
}

func (l *List) trackAll() {
	if l.mode.readonly() {
		return
	}
	l.rt.track(l.t, OpGet, KeyLength)
	for i := range l.t.items {
		l.rt.track(l.t, OpGet, i)
	}
}

// inValue converts an incoming value for storage: deep modes store raw.
func (l *List) inValue(v any) any {
	if l.mode.shallow() {
		return v
	}
	return ToRaw(v)
}

// outValue converts a stored value for the reader: deep modes wrap nested
// collections. Cells pass through either way.
func (l *List) outValue(v any) any {
	if l.mode.shallow() {
		return v
	}
	return l.rt.wrapValue(v, l.mode)
}

func (l *List) warnReadonly(op string, detail int) {
	l.rt.devWarn("write through readonly list ignored",
		zap.String("op", op),
		zap.Int("at", detail),
	)
}
