package quiver

// Scope collects effects and watchers so they can be stopped together.
// Scopes nest: a scope created while another is ambient becomes its
// child, and disposing a parent disposes the whole subtree. The runtime
// tracks one ambient scope at a time (see RunInScope); NewEffect, Watch,
// and WatchEffect register with it automatically.
type Scope struct {
	rt       *Runtime
	parent   *Scope
	children []*Scope
	effects  []*Effect
	cleanups []func()
	disposed bool
	mounted  bool
}

// NewScope creates a scope attached to the ambient scope, if any.
func (rt *Runtime) NewScope() *Scope {
	s := &Scope{rt: rt}
	if p := rt.currentScope; p != nil {
		s.parent = p
		p.children = append(p.children, s)
	}
	return s
}

// NewDetachedScope creates a scope with no parent, so it survives the
// disposal of whatever scope was ambient at creation. The caller owns
// its disposal.
func (rt *Runtime) NewDetachedScope() *Scope {
	return &Scope{rt: rt}
}

// CurrentScope returns the ambient scope, or nil outside RunInScope.
func (rt *Runtime) CurrentScope() *Scope { return rt.currentScope }

// RunInScope makes s the ambient scope for the duration of fn, restoring
// the previous one after. Running inside a disposed scope would leak
// whatever fn creates, so it warns in dev mode and does not run fn.
func (rt *Runtime) RunInScope(s *Scope, fn func()) {
	if s != nil && s.disposed {
		rt.devWarn("cannot run in a disposed scope")
		return
	}
	prev := rt.currentScope
	rt.currentScope = s
	defer func() { rt.currentScope = prev }()
	fn()
}

// OnCleanup registers fn with the ambient scope, to run when that scope
// is disposed. With no ambient scope it warns in dev mode and drops fn.
func (rt *Runtime) OnCleanup(fn func()) {
	s := rt.currentScope
	if s == nil {
		rt.devWarn("OnCleanup called outside a scope; the cleanup will never run")
		return
	}
	s.OnCleanup(fn)
}

// Run makes the scope ambient for the duration of fn. See RunInScope.
func (s *Scope) Run(fn func()) { s.rt.RunInScope(s, fn) }

// OnCleanup registers fn to run when the scope is disposed. Cleanups run
// in reverse registration order. Registering on an already disposed scope
// runs fn immediately, so teardown logic cannot be lost to a race with
// disposal.
func (s *Scope) OnCleanup(fn func()) {
	if s.disposed {
		s.rt.guard(OriginScopeCleanup, fn)
		return
	}
	s.cleanups = append(s.cleanups, fn)
}

// MarkMounted records that the scope's owner finished setting up. Pre
// watchers owned by an unmounted scope run synchronously so they observe
// setup-time mutations in order; after MarkMounted they defer to the
// queue like everything else.
func (s *Scope) MarkMounted() { s.mounted = true }

// Mounted reports whether MarkMounted has been called.
func (s *Scope) Mounted() bool { return s.mounted }

// Disposed reports whether the scope has been disposed.
func (s *Scope) Disposed() bool { return s.disposed }

// Dispose stops everything the scope owns: child scopes in reverse
// creation order, then effects in creation order, then cleanups in
// reverse registration order. A cleanup panic is routed to the error
// handler and the remaining cleanups still run. Dispose is idempotent.
func (s *Scope) Dispose() {
	if s.disposed {
		return
	}
	s.disposed = true

	if s.parent != nil {
		s.parent.removeChild(s)
		s.parent = nil
	}
	for i := len(s.children) - 1; i >= 0; i-- {
		s.children[i].parent = nil
		s.children[i].Dispose()
	}
	s.children = nil

	effects := s.effects
	s.effects = nil
	for _, e := range effects {
		e.Stop()
	}

	cleanups := s.cleanups
	s.cleanups = nil
	for i := len(cleanups) - 1; i >= 0; i-- {
		s.rt.guard(OriginScopeCleanup, cleanups[i])
	}
}

func (s *Scope) registerEffect(e *Effect) {
	s.effects = append(s.effects, e)
}

// forget drops a stopped effect so the scope does not pin it until
// disposal.
func (s *Scope) forget(e *Effect) {
	for i, have := range s.effects {
		if have == e {
			s.effects = append(s.effects[:i], s.effects[i+1:]...)
			return
		}
	}
}

func (s *Scope) removeChild(c *Scope) {
	for i, have := range s.children {
		if have == c {
			s.children = append(s.children[:i], s.children[i+1:]...)
			return
		}
	}
}
