package quiver

import (
	"reflect"
	"testing"
)

func TestListGetSet(t *testing.T) {
	rt := New()
	l := rt.ReactiveList([]any{"a", "b", "c"})

	if got := l.Get(1); got != "b" {
		t.Errorf("Get(1) = %v, want b", got)
	}
	if got := l.Get(10); got != nil {
		t.Errorf("Get(10) = %v, want nil", got)
	}
	if got := l.Get(-1); got != nil {
		t.Errorf("Get(-1) = %v, want nil", got)
	}

	l.Set(1, "B")
	if got := l.Get(1); got != "B" {
		t.Errorf("Get(1) after Set = %v, want B", got)
	}

	// Negative writes are ignored.
	l.Set(-1, "x")
	if l.Len() != 3 {
		t.Errorf("negative Set changed the list, len = %d", l.Len())
	}
}

func TestListIndexGranularity(t *testing.T) {
	rt := New()
	l := rt.ReactiveList([]any{1, 2, 3})

	runs := 0
	rt.NewEffect(func() any {
		_ = l.Get(0)
		runs++
		return nil
	})

	l.Set(1, 20)
	if runs != 1 {
		t.Errorf("write to unrelated index triggered, got %d runs", runs)
	}
	l.Set(0, 10)
	if runs != 2 {
		t.Errorf("write to read index did not trigger, got %d runs", runs)
	}
	l.Set(0, 10)
	if runs != 2 {
		t.Errorf("unchanged write triggered, got %d runs", runs)
	}
}

func TestListOutOfRangeReadSubscribes(t *testing.T) {
	rt := New()
	l := rt.ReactiveList([]any{"only"})

	var seen any
	rt.NewEffect(func() any {
		seen = l.Get(3)
		return nil
	})
	if seen != nil {
		t.Fatalf("expected nil past the end, got %v", seen)
	}

	// Writing past the end grows the list and wakes the index reader.
	l.Set(3, "later")
	if seen != "later" {
		t.Errorf("out-of-range read did not subscribe, seen = %v", seen)
	}
	if l.Len() != 4 {
		t.Errorf("Len after grow = %d, want 4", l.Len())
	}
	if got := l.Get(2); got != nil {
		t.Errorf("intervening slot = %v, want nil", got)
	}
}

func TestListLengthDependency(t *testing.T) {
	rt := New()
	l := rt.ReactiveList([]any{1, 2, 3})

	lens := 0
	rt.NewEffect(func() any {
		_ = l.Len()
		lens++
		return nil
	})

	// In-range updates do not change the length.
	l.Set(0, 100)
	if lens != 1 {
		t.Errorf("in-range update woke the length watcher, got %d runs", lens)
	}

	// Appending does.
	l.Push("x")
	if lens != 2 {
		t.Errorf("append did not wake the length watcher, got %d runs", lens)
	}

	// So does resizing.
	l.SetLen(2)
	if lens != 3 {
		t.Errorf("SetLen did not wake the length watcher, got %d runs", lens)
	}
}

func TestListShrinkWakesTruncatedIndices(t *testing.T) {
	rt := New()
	l := rt.ReactiveList([]any{"a", "b", "c", "d", "e"})

	high, low := 0, 0
	rt.NewEffect(func() any {
		_ = l.Get(4)
		high++
		return nil
	})
	rt.NewEffect(func() any {
		_ = l.Get(1)
		low++
		return nil
	})

	l.SetLen(3)
	if high != 2 {
		t.Errorf("index past the new length must wake, got %d runs", high)
	}
	if low != 1 {
		t.Errorf("surviving index must not wake, got %d runs", low)
	}
	if got := l.Get(4); got != nil {
		t.Errorf("truncated slot = %v, want nil", got)
	}
}

func TestListPushPop(t *testing.T) {
	rt := New()
	l := rt.ReactiveList([]any{})

	if n := l.Push("a", "b"); n != 2 {
		t.Errorf("Push returned %d, want 2", n)
	}
	if got := l.Pop(); got != "b" {
		t.Errorf("Pop = %v, want b", got)
	}
	if got := l.Pop(); got != "a" {
		t.Errorf("Pop = %v, want a", got)
	}
	if got := l.Pop(); got != nil {
		t.Errorf("Pop on empty = %v, want nil", got)
	}
	if l.Len() != 0 {
		t.Errorf("Len = %d, want 0", l.Len())
	}
}

func TestListShiftUnshift(t *testing.T) {
	rt := New()
	l := rt.ReactiveList([]any{"b", "c"})

	if n := l.Unshift("a"); n != 3 {
		t.Errorf("Unshift returned %d, want 3", n)
	}
	if got := l.Values(); !reflect.DeepEqual(got, []any{"a", "b", "c"}) {
		t.Fatalf("after Unshift = %v", got)
	}

	if got := l.Shift(); got != "a" {
		t.Errorf("Shift = %v, want a", got)
	}
	if got := l.Values(); !reflect.DeepEqual(got, []any{"b", "c"}) {
		t.Errorf("after Shift = %v", got)
	}

	// A watcher on index 0 sees the moved element.
	var head any
	rt.NewEffect(func() any {
		head = l.Get(0)
		return nil
	})
	l.Shift()
	if head != "c" {
		t.Errorf("index 0 watcher saw %v after Shift, want c", head)
	}
}

func TestListSplice(t *testing.T) {
	rt := New()
	l := rt.ReactiveList([]any{"a", "b", "c", "d", "e"})

	removed := l.Splice(1, 2, "X")
	if !reflect.DeepEqual(removed, []any{"b", "c"}) {
		t.Errorf("removed = %v, want [b c]", removed)
	}
	if got := l.Values(); !reflect.DeepEqual(got, []any{"a", "X", "d", "e"}) {
		t.Errorf("after Splice = %v", got)
	}

	// Negative start counts from the end.
	removed = l.Splice(-1, 1)
	if !reflect.DeepEqual(removed, []any{"e"}) {
		t.Errorf("removed = %v, want [e]", removed)
	}

	// Pure insertion.
	l.Splice(1, 0, "y", "z")
	if got := l.Values(); !reflect.DeepEqual(got, []any{"a", "y", "z", "X", "d"}) {
		t.Errorf("after insert Splice = %v", got)
	}

	// Out-of-range deleteCount is clamped.
	removed = l.Splice(3, 99)
	if !reflect.DeepEqual(removed, []any{"X", "d"}) {
		t.Errorf("removed = %v, want [X d]", removed)
	}
	if l.Len() != 3 {
		t.Errorf("Len = %d, want 3", l.Len())
	}
}

func TestListSpliceWakesLength(t *testing.T) {
	rt := New()
	l := rt.ReactiveList([]any{1, 2, 3})

	lens := 0
	rt.NewEffect(func() any {
		_ = l.Len()
		lens++
		return nil
	})

	// Replacement without a size change leaves length dependents alone.
	l.Splice(0, 1, "one")
	if lens != 1 {
		t.Errorf("same-size splice woke the length watcher, got %d runs", lens)
	}

	l.Splice(0, 2)
	if lens != 2 {
		t.Errorf("shrinking splice did not wake the length watcher, got %d runs", lens)
	}
}

func TestListStructuralMethodsDoNotSubscribe(t *testing.T) {
	rt := New()
	l := rt.ReactiveList([]any{})

	runs := 0
	rt.NewEffect(func() any {
		runs++
		if runs == 1 {
			l.Push("from-effect")
		}
		return nil
	})

	// The push read and wrote the list, but under paused tracking, so the
	// effect must not have subscribed to anything.
	l.Push("outside")
	l.Set(0, "rewrite")
	l.SetLen(0)
	if runs != 1 {
		t.Errorf("structural method leaked a subscription, got %d runs", runs)
	}
}

func TestListIdentitySearch(t *testing.T) {
	rt := New()
	child := map[string]any{"x": 1}
	l := rt.ReactiveList([]any{"a", child, "c"})

	if got := l.IndexOf("c"); got != 2 {
		t.Errorf("IndexOf(c) = %d, want 2", got)
	}
	if got := l.IndexOf("missing"); got != -1 {
		t.Errorf("IndexOf(missing) = %d, want -1", got)
	}

	// The stored value is the raw map; searching for its wrapper must
	// still find it.
	wrapper := rt.ReactiveMap(child)
	if got := l.IndexOf(wrapper); got != 1 {
		t.Errorf("IndexOf(wrapper) = %d, want 1", got)
	}
	if !l.Contains(wrapper) {
		t.Error("Contains(wrapper) = false")
	}

	// And the reverse: a shallow list holds the wrapper, searching for the
	// raw map finds it.
	sl := rt.ShallowList([]any{wrapper})
	if got := sl.IndexOf(child); got != 0 {
		t.Errorf("shallow IndexOf(raw) = %d, want 0", got)
	}
}

func TestListLastIndexOf(t *testing.T) {
	rt := New()
	l := rt.ReactiveList([]any{"x", "y", "x"})

	if got := l.LastIndexOf("x"); got != 2 {
		t.Errorf("LastIndexOf(x) = %d, want 2", got)
	}
	if got := l.IndexOf("x"); got != 0 {
		t.Errorf("IndexOf(x) = %d, want 0", got)
	}
	if got := l.LastIndexOf("z"); got != -1 {
		t.Errorf("LastIndexOf(z) = %d, want -1", got)
	}
}

func TestListSearchSubscribesToAll(t *testing.T) {
	rt := New()
	l := rt.ReactiveList([]any{1, 2, 3})

	var found bool
	rt.NewEffect(func() any {
		found = l.Contains(9)
		return nil
	})
	if found {
		t.Fatal("9 should be absent")
	}

	l.Push(9)
	if !found {
		t.Error("append did not re-run the search watcher")
	}
	l.Pop()
	if found {
		t.Error("removal did not re-run the search watcher")
	}
}

func TestListDeepConversion(t *testing.T) {
	rt := New()
	l := rt.ReactiveList([]any{map[string]any{"n": 1}})

	child, ok := l.Get(0).(*Map)
	if !ok {
		t.Fatalf("deep index read should wrap nested map, got %T", l.Get(0))
	}
	if v := l.Values()[0]; v != any(child) {
		t.Errorf("Values should convert like Get, got %T", v)
	}

	// Cells stored in a list are handed out as cells, not unwrapped.
	r := NewRef(rt, 5)
	l.Push(r)
	if got := l.Get(1); got != any(r) {
		t.Errorf("index read unwrapped a cell: %T", got)
	}
}

func TestListReadonlySwallowsWrites(t *testing.T) {
	rt := New()
	raw := []any{1, 2, 3}
	ro := rt.ReadonlyList(raw)

	ro.Set(0, 9)
	ro.Push(4)
	ro.Pop()
	ro.SetLen(1)
	if got := ro.Values(); !reflect.DeepEqual(got, []any{1, 2, 3}) {
		t.Errorf("readonly writes leaked through: %v", got)
	}

	// Readonly views still see mutations made through a mutable view.
	rt.ReactiveList(raw).Set(0, 10)
	if got := ro.Get(0); got != 10 {
		t.Errorf("readonly view out of sync, got %v", got)
	}
}

func TestListForEach(t *testing.T) {
	rt := New()
	l := rt.ReactiveList([]any{"a", "b"})

	var idx []int
	var vals []any
	l.ForEach(func(i int, v any) {
		idx = append(idx, i)
		vals = append(vals, v)
	})
	if !reflect.DeepEqual(idx, []int{0, 1}) || !reflect.DeepEqual(vals, []any{"a", "b"}) {
		t.Errorf("ForEach visited %v %v", idx, vals)
	}
}
