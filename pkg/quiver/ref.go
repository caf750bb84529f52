package quiver

import "fmt"

// Cell is the type-erased surface of a single reactive value, implemented
// by Ref and Computed. The observation layer uses it to unwrap cells
// stored in containers and to redirect writes into them; persistence
// layers use it to move values without knowing the type parameter.
type Cell interface {
	// GetAny returns the current value, tracked like a typed read.
	GetAny() any

	// PeekAny returns the current value without tracking. For a computed
	// cell it still recomputes when stale.
	PeekAny() any

	// SetAny writes the value, returning *TypeMismatchError when the
	// dynamic type does not fit and ErrReadonlyWrite when the cell has
	// no setter.
	SetAny(v any) error
}

// IsCell reports whether v is a reactive cell.
func IsCell(v any) bool {
	_, ok := v.(Cell)
	return ok
}

// Unref returns the cell's value when v is a cell (a tracked read), and v
// itself otherwise.
func Unref(v any) any {
	if c, ok := v.(Cell); ok {
		return c.GetAny()
	}
	return v
}

// Ref is a single reactive value of type T. Reads through Value are
// tracked against the ref; writes through Set trigger the effects that
// read it, unless the value is unchanged (NaN counts as unchanged
// against NaN).
//
// A Ref holds its value as given: container values are not wrapped on
// read. Store a wrapper in the ref when nested observation is wanted:
//
//	user := quiver.NewRef[any](rt, rt.ReactiveMap(map[string]any{"name": "ada"}))
type Ref[T any] struct {
	rt    *Runtime
	value T
}

// NewRef creates a reactive cell holding initial.
func NewRef[T any](rt *Runtime, initial T) *Ref[T] {
	return &Ref[T]{rt: rt, value: initial}
}

// Value returns the current value and records the read as a dependency of
// the running effect.
func (r *Ref[T]) Value() T {
	r.rt.track(r, OpGet, KeyValue)
	return r.value
}

// Peek returns the current value without tracking.
func (r *Ref[T]) Peek() T {
	return r.value
}

// Set stores a new value and triggers dependents when it differs from the
// current one.
func (r *Ref[T]) Set(v T) {
	old := r.value
	if sameValue(v, old) {
		return
	}
	r.value = v
	r.rt.Trigger(r, OpSet, KeyValue, v, old)
}

// GetAny implements Cell.
func (r *Ref[T]) GetAny() any { return r.Value() }

// PeekAny implements Cell.
func (r *Ref[T]) PeekAny() any { return r.value }

// SetAny implements Cell. A nil value resets to the zero value of T.
func (r *Ref[T]) SetAny(v any) error {
	if v == nil {
		var zero T
		r.Set(zero)
		return nil
	}
	typed, ok := v.(T)
	if !ok {
		return &TypeMismatchError{
			Expected: fmt.Sprintf("%T", r.value),
			Actual:   fmt.Sprintf("%T", v),
		}
	}
	r.Set(typed)
	return nil
}
