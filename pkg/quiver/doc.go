// Package quiver provides a fine-grained reactive dependency-tracking
// runtime: effects record exactly which values they read, and mutating a
// value re-runs exactly the effects that read it.
//
// All state hangs off a Runtime, so independent graphs never interfere:
//
//	rt := quiver.New()
//
// # Core Types
//
// Ref[T] is a reactive value container:
//
//	count := quiver.NewRef(rt, 0)
//	value := count.Value() // Read (subscribes the active effect)
//	count.Set(5)           // Write (notifies subscribers)
//
// Computed[T] is a cached derived value, recomputed lazily when a
// dependency changed:
//
//	doubled := quiver.NewComputed(rt, func() int { return count.Value() * 2 })
//	value := doubled.Value()
//
// Effect runs a function and re-runs it when anything it read changes:
//
//	rt.NewEffect(func() any {
//	    fmt.Println("count is", count.Value())
//	    return nil
//	})
//
// # Collections
//
// Map and List observe a raw map[string]any or []any per key and per
// index. Four views exist over the same raw data: deep or shallow,
// mutable or readonly; wrapping the same raw value twice in the same
// mode returns the same wrapper:
//
//	m := rt.ReactiveMap(map[string]any{"n": 1})
//	rt.NewEffect(func() any { fmt.Println(m.Get("n")); return nil })
//	m.Set("n", 2) // prints 2
//
// # Watchers
//
// Watch observes a Cell, Map, List, getter function, or a slice of those
// and calls back with new and old values. Callbacks default to running on
// the next queue flush; WithFlush selects synchronous or post-flush
// delivery:
//
//	rt.Watch(count, func(newV, oldV any, _ func(func())) {
//	    fmt.Println(oldV, "->", newV)
//	})
//	count.Set(6)
//	rt.Flush()
//
// # Scopes
//
// A Scope collects the effects and watchers created while it is ambient
// and stops them all on Dispose:
//
//	s := rt.NewScope()
//	rt.RunInScope(s, func() { /* effects created here */ })
//	s.Dispose()
//
// # Concurrency
//
// A Runtime is confined to the goroutine that created it. Reads, writes,
// effects, and flushes must all happen there; in dev mode cross-goroutine
// use logs a warning. Stats is the one exception and may be called from
// anywhere.
package quiver
