package quiver

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrReadonlyWrite is returned by SetAny on read-only values (a Computed
// without a setter). Writes through readonly collection wrappers do not
// return it; those are swallowed with a development-mode warning, since
// the writer usually does not know it was handed the readonly view.
var ErrReadonlyWrite = errors.New("quiver: write to readonly value")

// TypeMismatchError is returned by SetAny when the dynamic type of the
// value does not match the cell's type parameter.
type TypeMismatchError struct {
	Expected string // the cell's value type
	Actual   string // the type that was passed
}

// Error implements the error interface.
func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("quiver: type mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// ErrorOrigin tags which user-code boundary a recovered failure came from.
// The runtime never lets user panics propagate into the tracking machinery;
// they are converted to errors and reported with their origin.
type ErrorOrigin uint8

const (
	// OriginWatchGetter is a failure in a watch source getter.
	OriginWatchGetter ErrorOrigin = iota + 1

	// OriginWatchCallback is a failure in a watch callback.
	OriginWatchCallback

	// OriginWatchCleanup is a failure in a cleanup registered via
	// a watch callback's onCleanup argument.
	OriginWatchCleanup

	// OriginSchedulerJob is a failure in a deferred watch job invoked
	// from a flush cycle.
	OriginSchedulerJob

	// OriginScopeCleanup is a failure in a cleanup registered on a Scope.
	OriginScopeCleanup
)

// String returns a human-readable name for the origin.
func (o ErrorOrigin) String() string {
	switch o {
	case OriginWatchGetter:
		return "watch getter"
	case OriginWatchCallback:
		return "watch callback"
	case OriginWatchCleanup:
		return "watch cleanup"
	case OriginSchedulerJob:
		return "scheduler job"
	case OriginScopeCleanup:
		return "scope cleanup"
	default:
		return "unknown"
	}
}

// ErrorHandler receives failures recovered at user-code boundaries.
// The default handler logs and continues; replace it with WithErrorHandler
// to surface failures to the host application.
type ErrorHandler func(err error, origin ErrorOrigin)

// handleError routes a recovered failure to the configured handler.
func (rt *Runtime) handleError(err error, origin ErrorOrigin) {
	rt.stats.errors.Add(1)
	if rt.onError != nil {
		rt.onError(err, origin)
		return
	}
	rt.logger.Error("recovered failure in reactive user code",
		zap.Stringer("origin", origin),
		zap.Error(err),
	)
}

// guard runs fn, converting a panic into a handled error. It is applied at
// the boundaries listed on ErrorOrigin, never around tracking internals.
func (rt *Runtime) guard(origin ErrorOrigin, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			rt.handleError(recoveredError(r), origin)
		}
	}()
	fn()
}

// guardValue is guard for functions producing a value; a recovered panic
// yields the zero value.
func (rt *Runtime) guardValue(origin ErrorOrigin, fn func() any) (v any) {
	defer func() {
		if r := recover(); r != nil {
			rt.handleError(recoveredError(r), origin)
		}
	}()
	return fn()
}

func recoveredError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", r)
}
