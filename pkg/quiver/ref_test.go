package quiver

import (
	"math"
	"testing"
)

func TestRefBasic(t *testing.T) {
	rt := New()
	count := NewRef(rt, 0)

	if count.Value() != 0 {
		t.Errorf("expected initial value 0, got %d", count.Value())
	}

	count.Set(5)
	if count.Value() != 5 {
		t.Errorf("expected value 5, got %d", count.Value())
	}
}

func TestRefSubscription(t *testing.T) {
	rt := New()
	count := NewRef(rt, 0)

	runs := 0
	rt.NewEffect(func() any {
		_ = count.Value()
		runs++
		return nil
	})
	if runs != 1 {
		t.Fatalf("expected 1 initial run, got %d", runs)
	}

	count.Set(1)
	if runs != 2 {
		t.Errorf("expected 2 runs after set, got %d", runs)
	}

	// Same value should not notify.
	count.Set(1)
	if runs != 2 {
		t.Errorf("same value should not notify, got %d runs", runs)
	}

	count.Set(2)
	if runs != 3 {
		t.Errorf("expected 3 runs, got %d", runs)
	}
}

func TestRefPeekDoesNotSubscribe(t *testing.T) {
	rt := New()
	count := NewRef(rt, 42)

	runs := 0
	rt.NewEffect(func() any {
		_ = count.Peek()
		runs++
		return nil
	})

	count.Set(100)
	if runs != 1 {
		t.Errorf("Peek should not subscribe, got %d runs", runs)
	}
}

func TestRefNaNDoesNotReTrigger(t *testing.T) {
	rt := New()
	r := NewRef(rt, math.NaN())

	runs := 0
	rt.NewEffect(func() any {
		_ = r.Value()
		runs++
		return nil
	})

	// NaN -> NaN counts as the same value.
	r.Set(math.NaN())
	if runs != 1 {
		t.Errorf("NaN write over NaN should not notify, got %d runs", runs)
	}

	r.Set(1.5)
	if runs != 2 {
		t.Errorf("expected run after real change, got %d runs", runs)
	}
}

func TestRefSetAny(t *testing.T) {
	rt := New()
	r := NewRef(rt, "hello")

	if err := r.SetAny("world"); err != nil {
		t.Fatalf("SetAny with matching type: %v", err)
	}
	if r.Value() != "world" {
		t.Errorf("expected %q, got %q", "world", r.Value())
	}

	err := r.SetAny(12)
	if err == nil {
		t.Fatal("SetAny with mismatched type should fail")
	}
	if _, ok := err.(*TypeMismatchError); !ok {
		t.Errorf("expected *TypeMismatchError, got %T", err)
	}
	if r.Value() != "world" {
		t.Errorf("failed SetAny must not change the value, got %q", r.Value())
	}

	// nil resets to the zero value.
	if err := r.SetAny(nil); err != nil {
		t.Fatalf("SetAny(nil): %v", err)
	}
	if r.Value() != "" {
		t.Errorf("expected zero value after SetAny(nil), got %q", r.Value())
	}
}

func TestRefCellInterface(t *testing.T) {
	rt := New()
	r := NewRef(rt, 7)

	var c Cell = r
	if !IsCell(r) {
		t.Error("IsCell(ref) = false")
	}
	if IsCell(7) {
		t.Error("IsCell(plain int) = true")
	}
	if got := c.GetAny(); got != 7 {
		t.Errorf("GetAny = %v, want 7", got)
	}
	if got := c.PeekAny(); got != 7 {
		t.Errorf("PeekAny = %v, want 7", got)
	}
}

func TestUnref(t *testing.T) {
	rt := New()
	r := NewRef(rt, "inner")

	if got := Unref(r); got != "inner" {
		t.Errorf("Unref(ref) = %v, want inner", got)
	}
	if got := Unref("plain"); got != "plain" {
		t.Errorf("Unref(plain) = %v, want plain", got)
	}

	// Unref inside an effect subscribes to the cell.
	runs := 0
	rt.NewEffect(func() any {
		_ = Unref(any(r))
		runs++
		return nil
	})
	r.Set("changed")
	if runs != 2 {
		t.Errorf("Unref should track the cell read, got %d runs", runs)
	}
}
