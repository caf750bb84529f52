package quiver

// TrackOp identifies the kind of read that establishes a dependency.
// It is carried on TrackEvent for debug hooks; the dependency store itself
// only cares about (target, key).
type TrackOp uint8

const (
	// OpGet is a single-key read (map value, list index, cell value).
	OpGet TrackOp = iota + 1

	// OpHas is a key-presence check.
	OpHas

	// OpIterate is a whole-collection read (length, keys, iteration).
	OpIterate
)

// String returns a human-readable name for the track operation.
func (op TrackOp) String() string {
	switch op {
	case OpGet:
		return "get"
	case OpHas:
		return "has"
	case OpIterate:
		return "iterate"
	default:
		return "unknown"
	}
}

// TriggerOp identifies the kind of mutation driving a trigger fan-out.
// The op decides which sentinel-key dependencies are notified in addition
// to the mutated key itself.
type TriggerOp uint8

const (
	// OpSet is an in-place update of an existing key.
	OpSet TriggerOp = iota + 1

	// OpAdd introduces a key that did not exist before.
	OpAdd

	// OpDelete removes an existing key.
	OpDelete

	// OpClear empties a collection; every tracked key is notified.
	OpClear
)

// String returns a human-readable name for the trigger operation.
func (op TriggerOp) String() string {
	switch op {
	case OpSet:
		return "set"
	case OpAdd:
		return "add"
	case OpDelete:
		return "delete"
	case OpClear:
		return "clear"
	default:
		return "unknown"
	}
}

// sentinelKey is the type of the well-known dependency keys below. It is
// deliberately distinct from string so user map keys can never collide
// with a sentinel.
type sentinelKey string

const (
	// KeyIterate is tracked by whole-collection reads on maps (Len,
	// Values, Entries, ForEach). Adds and deletes notify it; so do value
	// updates, since iteration observes values.
	KeyIterate sentinelKey = "iterate"

	// KeyMapIterate is tracked by key-only iteration on maps (Keys).
	// Only adds and deletes notify it: replacing a value leaves the key
	// set untouched.
	KeyMapIterate sentinelKey = "map-key-iterate"

	// KeyLength is tracked by list length reads. Length changes notify
	// it along with every index at or beyond the new length.
	KeyLength sentinelKey = "length"

	// KeyValue is the single key cells (Ref, Computed) track and trigger.
	KeyValue sentinelKey = "value"
)
