package snapshot

import (
	"context"
	"testing"

	"github.com/quiver-dev/quiver/pkg/quiver"
)

// countingStore wraps an in-memory store and counts writes.
type countingStore struct {
	objects map[string][]byte
	saves   int
}

func newCountingStore() *countingStore {
	return &countingStore{objects: make(map[string][]byte)}
}

func (s *countingStore) Save(_ context.Context, name string, data []byte) error {
	s.saves++
	s.objects[name] = append([]byte(nil), data...)
	return nil
}

func (s *countingStore) Load(_ context.Context, name string) ([]byte, error) {
	data, ok := s.objects[name]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (s *countingStore) Delete(_ context.Context, name string) error {
	delete(s.objects, name)
	return nil
}

func (s *countingStore) List(_ context.Context) ([]string, error) {
	names := make([]string, 0, len(s.objects))
	for n := range s.objects {
		names = append(names, n)
	}
	return names, nil
}

func TestAutoSaveLifecycle(t *testing.T) {
	ctx := context.Background()
	rt := quiver.New()
	store := newCountingStore()
	state := rt.ReactiveMap(map[string]any{"n": 1.0})

	saver, err := AutoSave(ctx, rt, store, "app", state)
	if err != nil {
		t.Fatalf("autosave: %v", err)
	}
	defer saver.Stop()

	if store.saves != 1 {
		t.Fatalf("initial save count = %d, want 1", store.saves)
	}
	baseline := saver.LastChecksum()

	state.Set("n", 2.0)
	rt.Flush()
	if store.saves != 2 {
		t.Fatalf("save count after change = %d, want 2", store.saves)
	}
	if saver.LastChecksum() == baseline {
		t.Error("checksum unchanged after a real change")
	}

	// A cycle that lands back on the stored state writes nothing.
	state.Set("n", 3.0)
	state.Set("n", 2.0)
	rt.Flush()
	if store.saves != 2 {
		t.Errorf("save count after no-op cycle = %d, want 2", store.saves)
	}

	dst := rt.ReactiveMap(map[string]any{})
	if err := LoadInto(ctx, store, "app", dst); err != nil {
		t.Fatalf("load into: %v", err)
	}
	if got := dst.Get("n"); got != 2.0 {
		t.Errorf("restored n = %v, want 2", got)
	}
}

func TestAutoSaveCellSource(t *testing.T) {
	ctx := context.Background()
	rt := quiver.New()
	store := newCountingStore()
	ref := quiver.NewRef(rt, 1.0)

	saver, err := AutoSave(ctx, rt, store, "counter", ref)
	if err != nil {
		t.Fatalf("autosave: %v", err)
	}
	defer saver.Stop()

	ref.Set(2.0)
	rt.Flush()
	if store.saves != 2 {
		t.Fatalf("save count = %d, want 2", store.saves)
	}

	dst := quiver.NewRef(rt, 0.0)
	if err := LoadInto(ctx, store, "counter", dst); err != nil {
		t.Fatalf("load into: %v", err)
	}
	if dst.Value() != 2.0 {
		t.Errorf("restored ref = %v, want 2", dst.Value())
	}
}

func TestAutoSaveStopDetaches(t *testing.T) {
	ctx := context.Background()
	rt := quiver.New()
	store := newCountingStore()
	state := rt.ReactiveMap(map[string]any{"n": 1.0})

	saver, err := AutoSave(ctx, rt, store, "app", state)
	if err != nil {
		t.Fatalf("autosave: %v", err)
	}
	saver.Stop()

	state.Set("n", 9.0)
	rt.Flush()
	if store.saves != 1 {
		t.Errorf("stopped saver still wrote, saves = %d", store.saves)
	}
}

func TestAutoSaveRejectsPlainSource(t *testing.T) {
	rt := quiver.New()
	if _, err := AutoSave(context.Background(), rt, newCountingStore(), "x", map[string]any{"n": 1}); err == nil {
		t.Error("autosave accepted a non-reactive source")
	}
}
