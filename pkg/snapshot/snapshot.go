package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/quiver-dev/quiver/pkg/quiver"
)

// FormatVersion is the current snapshot wire format version. Increment
// when making breaking changes to the format.
const FormatVersion = 1

// ErrChecksum is returned by Decode when the state bytes do not match
// the recorded checksum.
var ErrChecksum = errors.New("snapshot: checksum mismatch")

// Snapshot is one captured state record.
type Snapshot struct {
	// Version is the wire format version.
	Version int `json:"version"`

	// TakenAt is when the state was captured.
	TakenAt time.Time `json:"taken_at"`

	// Checksum is the xxhash of State.
	Checksum uint64 `json:"checksum"`

	// State is the captured value as plain JSON.
	State json.RawMessage `json:"state"`
}

// Capture exports src as a detached Snapshot. src may be a reactive Map
// or List, a cell, or plain JSON-shaped data; wrappers and cells are
// resolved recursively and nothing is tracked.
//
// encoding/json sorts map keys, so equal state always produces equal
// bytes and an equal checksum.
func Capture(src any) (*Snapshot, error) {
	raw := quiver.ToRawDeep(src)
	state, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal state: %w", err)
	}
	return &Snapshot{
		Version:  FormatVersion,
		TakenAt:  time.Now().UTC(),
		Checksum: xxhash.Sum64(state),
		State:    state,
	}, nil
}

// Restore writes the snapshot's state back into dst through the reactive
// API, so subscribers see the restoration as ordinary mutations.
//
//   - *quiver.Map: every snapshot key is set, keys absent from the
//     snapshot are deleted.
//   - *quiver.List: the contents are replaced in one splice.
//   - quiver.Cell: the value is written with SetAny.
//
// Readonly wrappers are rejected.
func Restore(dst any, snap *Snapshot) error {
	if quiver.IsReadonly(dst) {
		return fmt.Errorf("snapshot: cannot restore into a readonly %T", dst)
	}

	switch d := dst.(type) {
	case *quiver.Map:
		var state map[string]any
		if err := json.Unmarshal(snap.State, &state); err != nil {
			return fmt.Errorf("snapshot: state is not a map: %w", err)
		}
		for k, v := range state {
			d.Set(k, v)
		}
		for k := range d.Raw() {
			if _, keep := state[k]; !keep {
				d.Delete(k)
			}
		}
		return nil

	case *quiver.List:
		var state []any
		if err := json.Unmarshal(snap.State, &state); err != nil {
			return fmt.Errorf("snapshot: state is not a list: %w", err)
		}
		d.Splice(0, d.Len(), state...)
		return nil

	case quiver.Cell:
		var state any
		if err := json.Unmarshal(snap.State, &state); err != nil {
			return fmt.Errorf("snapshot: decode state: %w", err)
		}
		if err := d.SetAny(state); err != nil {
			return fmt.Errorf("snapshot: restore cell: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("snapshot: cannot restore into %T", dst)
	}
}

// Encode converts a Snapshot to bytes, stamping the format version.
func Encode(snap *Snapshot) ([]byte, error) {
	snap.Version = FormatVersion
	return json.Marshal(snap)
}

// Decode converts bytes back to a Snapshot and verifies the checksum.
func Decode(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("snapshot: decode: %w", err)
	}
	if xxhash.Sum64(snap.State) != snap.Checksum {
		return nil, ErrChecksum
	}
	return &snap, nil
}
