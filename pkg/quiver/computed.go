package quiver

import "fmt"

// Computed is a lazily memoized derivation. The getter does not run at
// creation; the first read computes and caches, and later reads serve the
// cache until a dependency changes.
//
// Invalidation is deliberately cheap: when a dependency triggers, the
// computed only flips to dirty and propagates a change notification for
// its own value. Nothing recomputes until someone actually reads it, so a
// chain of computeds collapses any burst of upstream writes into at most
// one recomputation per member, each at read time.
type Computed[T any] struct {
	rt     *Runtime
	getter func() T
	setter func(T)

	// runner is the lazy inner effect that tracks the getter's reads.
	// Its scheduler implements the invalidate-and-propagate step.
	runner *Effect

	value     T
	dirty     bool
	computing bool // guards circular reads during recompute
}

// NewComputed creates a read-only computed cell over getter.
//
// Example:
//
//	first := quiver.NewRef(rt, "Ada")
//	last := quiver.NewRef(rt, "Lovelace")
//	full := quiver.NewComputed(rt, func() string {
//	    return first.Value() + " " + last.Value()
//	})
//	_ = full.Value() // computes once; further reads are cached
func NewComputed[T any](rt *Runtime, getter func() T) *Computed[T] {
	return NewWritableComputed(rt, getter, nil)
}

// NewWritableComputed creates a computed cell whose writes are forwarded
// to setter. The setter conventionally writes through to the sources the
// getter derives from.
func NewWritableComputed[T any](rt *Runtime, getter func() T, setter func(T)) *Computed[T] {
	c := &Computed[T]{
		rt:     rt,
		getter: getter,
		setter: setter,
		dirty:  true,
	}
	c.runner = rt.NewEffect(
		func() any { return c.getter() },
		Lazy(),
		WithScheduler(func(*Effect) {
			if !c.dirty {
				c.dirty = true
				rt.Trigger(c, OpSet, KeyValue, nil, nil)
			}
		}),
	)
	return c
}

// Value returns the computed value, recomputing first when a dependency
// has changed since the last read. The read itself is tracked, so effects
// reading a computed re-run when it invalidates.
func (c *Computed[T]) Value() T {
	if c.dirty {
		c.recompute()
	}
	c.rt.track(c, OpGet, KeyValue)
	return c.value
}

// Peek returns the value without tracking. It still recomputes when
// stale.
func (c *Computed[T]) Peek() T {
	if c.dirty {
		c.recompute()
	}
	return c.value
}

// Dirty reports whether the next read will recompute.
func (c *Computed[T]) Dirty() bool { return c.dirty }

// Set forwards to the setter. Without one, the write is swallowed with a
// development-mode warning.
func (c *Computed[T]) Set(v T) {
	if c.setter == nil {
		c.rt.devWarn("write to readonly computed ignored")
		return
	}
	c.setter(v)
}

// Release stops the inner effect: the computed detaches from its
// dependencies and no longer invalidates. Reads keep returning the last
// cached value (or compute untracked when released while dirty).
func (c *Computed[T]) Release() {
	c.runner.Stop()
}

// GetAny implements Cell.
func (c *Computed[T]) GetAny() any { return c.Value() }

// PeekAny implements Cell.
func (c *Computed[T]) PeekAny() any { return c.Peek() }

// SetAny implements Cell.
func (c *Computed[T]) SetAny(v any) error {
	if c.setter == nil {
		return ErrReadonlyWrite
	}
	if v == nil {
		var zero T
		c.Set(zero)
		return nil
	}
	typed, ok := v.(T)
	if !ok {
		return &TypeMismatchError{
			Expected: fmt.Sprintf("%T", c.value),
			Actual:   fmt.Sprintf("%T", v),
		}
	}
	c.Set(typed)
	return nil
}

func (c *Computed[T]) recompute() {
	if c.computing {
		c.rt.devWarn("circular computed read; returning stale value")
		return
	}
	c.computing = true
	defer func() { c.computing = false }()

	v := c.runner.Run()
	if typed, ok := v.(T); ok {
		c.value = typed
	} else {
		var zero T
		c.value = zero
	}
	c.dirty = false
	c.rt.stats.computedRecomputes.Add(1)
}
