// Package snapshot persists reactive state as JSON and restores it.
//
// Reactive wrappers and cells hold live, tracked data; a process restart
// loses all of it. This package exports that data as detached plain JSON,
// stores it through a pluggable Store, and writes it back through the
// reactive API so restoration triggers subscribers like any other
// mutation.
//
// # Layers
//
//   - Capture / Restore move state between reactive values and Snapshot
//     records in memory.
//   - Encode / Decode move Snapshot records to and from bytes, guarding
//     content with an xxhash checksum.
//   - SaveTo / LoadInto are one-shot helpers over a Store.
//   - AutoSave keeps a Store up to date from a deep watch, skipping
//     writes whose checksum is unchanged.
//
// # Usage
//
//	state := rt.ReactiveMap(map[string]any{"count": 0.0})
//	store, _ := snapshot.NewDiskStore("var/snapshots")
//
//	saver, err := snapshot.AutoSave(ctx, rt, store, "app-state", state)
//	if err != nil {
//	    return err
//	}
//	defer saver.Stop()
//
// # JSON caveats
//
// State crosses encoding/json, so numbers come back as float64 and maps
// as map[string]any. Restoring into a typed cell fails with a type
// mismatch unless the cell holds JSON-shaped values (float64, string,
// bool, map[string]any, []any).
package snapshot
