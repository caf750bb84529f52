package quiver

import "sync/atomic"

// globalIDCounter generates unique IDs for effects, scopes, and cells.
var globalIDCounter uint64

// nextID returns a process-wide unique, monotonically increasing ID.
// Creation order therefore matches ID order, which the trigger fan-out
// and the job queue rely on for deterministic scheduling.
func nextID() uint64 {
	return atomic.AddUint64(&globalIDCounter, 1)
}
