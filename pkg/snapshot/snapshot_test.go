package snapshot

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/quiver-dev/quiver/pkg/quiver"
)

func TestCaptureAndRestoreMap(t *testing.T) {
	rt := quiver.New()
	src := rt.ReactiveMap(map[string]any{"count": 1.0, "tags": []any{"a", "b"}})

	snap, err := Capture(src)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if snap.Version != FormatVersion {
		t.Errorf("version = %d, want %d", snap.Version, FormatVersion)
	}

	dst := rt.ReactiveMap(map[string]any{"count": 0.0, "stale": true})
	runs := 0
	rt.NewEffect(func() any {
		_ = dst.Get("count")
		runs++
		return nil
	})

	if err := Restore(dst, snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := dst.Get("count"); got != 1.0 {
		t.Errorf("count = %v, want 1", got)
	}
	if dst.Has("stale") {
		t.Error("restore kept a key absent from the snapshot")
	}
	if runs != 2 {
		t.Errorf("restore should trigger subscribers, runs = %d", runs)
	}
}

func TestCaptureUnwrapsNestedState(t *testing.T) {
	rt := quiver.New()
	ref := quiver.NewRef(rt, 5.0)
	src := rt.ReactiveMap(map[string]any{"r": ref, "inner": map[string]any{"x": 1.0}})

	snap, err := Capture(src)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if !strings.Contains(string(snap.State), `"r":5`) {
		t.Errorf("cell not resolved to its value: %s", snap.State)
	}
	if !strings.Contains(string(snap.State), `"x":1`) {
		t.Errorf("nested map missing: %s", snap.State)
	}
}

func TestCaptureChecksumIsContentBased(t *testing.T) {
	rt := quiver.New()
	a := rt.ReactiveMap(map[string]any{"x": 1.0, "y": 2.0})
	b := rt.ReactiveMap(map[string]any{"y": 2.0})
	b.Set("x", 1.0)

	snapA, _ := Capture(a)
	snapB, _ := Capture(b)
	if snapA.Checksum != snapB.Checksum {
		t.Error("equal state produced different checksums")
	}

	b.Set("x", 3.0)
	snapB2, _ := Capture(b)
	if snapB2.Checksum == snapB.Checksum {
		t.Error("different state produced the same checksum")
	}
}

func TestRestoreList(t *testing.T) {
	rt := quiver.New()
	src := rt.ReactiveList([]any{1.0, 2.0, 3.0})
	snap, err := Capture(src)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	dst := rt.ReactiveList([]any{9.0})
	if err := Restore(dst, snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if dst.Len() != 3 || dst.Get(0) != 1.0 || dst.Get(2) != 3.0 {
		t.Errorf("restored list = %v", dst.Values())
	}
}

func TestRestoreCell(t *testing.T) {
	rt := quiver.New()
	src := quiver.NewRef(rt, 42.0)
	snap, err := Capture(src)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	dst := quiver.NewRef(rt, 0.0)
	if err := Restore(dst, snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if dst.Value() != 42.0 {
		t.Errorf("restored ref = %v, want 42", dst.Value())
	}

	// JSON numbers decode as float64; a string ref cannot absorb one.
	wrong := quiver.NewRef(rt, "text")
	if err := Restore(wrong, snap); err == nil {
		t.Error("restoring a number into a string ref should fail")
	}
}

func TestRestoreRejectsReadonly(t *testing.T) {
	rt := quiver.New()
	snap, _ := Capture(rt.ReactiveMap(map[string]any{"a": 1.0}))

	ro := rt.ReadonlyMap(map[string]any{"a": 0.0})
	if err := Restore(ro, snap); err == nil {
		t.Error("restore into readonly map should fail")
	}
}

func TestRestoreRejectsUnsupported(t *testing.T) {
	rt := quiver.New()
	snap, _ := Capture(rt.ReactiveMap(map[string]any{"a": 1.0}))
	if err := Restore(map[string]any{}, snap); err == nil {
		t.Error("restore into a plain map should fail")
	}
}

func TestEncodeDecodeVerifiesChecksum(t *testing.T) {
	rt := quiver.New()
	snap, _ := Capture(rt.ReactiveMap(map[string]any{"count": 1.0}))

	data, err := Encode(snap)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.Checksum != snap.Checksum || !bytes.Equal(back.State, snap.State) {
		t.Error("round-trip changed the snapshot")
	}

	tampered := bytes.Replace(data, []byte(`"count":1`), []byte(`"count":2`), 1)
	if bytes.Equal(tampered, data) {
		t.Fatal("tamper target not found in encoding")
	}
	if _, err := Decode(tampered); !errors.Is(err, ErrChecksum) {
		t.Errorf("decode of tampered data = %v, want ErrChecksum", err)
	}
}
