package snapshot

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a named snapshot doesn't exist.
var ErrNotFound = errors.New("snapshot: not found")

// Store is the interface for snapshot persistence backends.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save persists encoded snapshot bytes under name.
	// If name already exists, it is overwritten.
	Save(ctx context.Context, name string, data []byte) error

	// Load retrieves snapshot bytes by name.
	// Returns ErrNotFound when the name doesn't exist.
	Load(ctx context.Context, name string) ([]byte, error)

	// Delete removes a named snapshot. Deleting a name that doesn't
	// exist is not an error.
	Delete(ctx context.Context, name string) error

	// List returns the stored snapshot names.
	List(ctx context.Context) ([]string, error)
}

// SaveTo captures src and persists it under name in one shot.
func SaveTo(ctx context.Context, store Store, name string, src any) (*Snapshot, error) {
	snap, err := Capture(src)
	if err != nil {
		return nil, err
	}
	data, err := Encode(snap)
	if err != nil {
		return nil, err
	}
	if err := store.Save(ctx, name, data); err != nil {
		return nil, err
	}
	return snap, nil
}

// LoadInto loads the named snapshot and restores it into dst.
func LoadInto(ctx context.Context, store Store, name string, dst any) error {
	data, err := store.Load(ctx, name)
	if err != nil {
		return err
	}
	snap, err := Decode(data)
	if err != nil {
		return err
	}
	return Restore(dst, snap)
}
