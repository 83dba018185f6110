package statefile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := New(path)

	in := payload{Name: "breaker", Count: 3}
	if err := store.Save(in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var out payload
	if err := store.Load(&out); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out != in {
		t.Fatalf("round trip: got %+v, want %+v", out, in)
	}
}

func TestLoadMissingFile(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "absent.json"))

	var out payload
	err := store.Load(&out)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("want os.ErrNotExist, got %v", err)
	}
}

func TestLoadCorruptedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	var out payload
	if err := New(path).Load(&out); err == nil {
		t.Fatal("expected parse error for corrupted file")
	}
}

func TestSaveCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "state.json")
	store := New(path)

	if err := store.Save(payload{Name: "x"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("state file not created: %v", err)
	}
}

func TestSaveSkipsWhenLockHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	holder := New(path)
	if err := holder.Save(payload{Name: "first", Count: 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Hold the advisory lock and confirm a second writer skips without error.
	locked, err := holder.lock.TryLock()
	if err != nil || !locked {
		t.Fatalf("could not take lock: locked=%v err=%v", locked, err)
	}
	defer func() { _ = holder.lock.Unlock() }()

	other := New(path)
	if err := other.Save(payload{Name: "second", Count: 2}); err != nil {
		t.Fatalf("Save under contention should skip, got %v", err)
	}

	var out payload
	if err := holder.Load(&out); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.Name != "first" {
		t.Fatalf("contended save overwrote state: %+v", out)
	}
}

func TestSaveReplacesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := New(path)

	if err := store.Save(payload{Name: "v1", Count: 1}); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(payload{Name: "v2", Count: 2}); err != nil {
		t.Fatal(err)
	}

	var out payload
	if err := store.Load(&out); err != nil {
		t.Fatal(err)
	}
	if out.Name != "v2" || out.Count != 2 {
		t.Fatalf("got %+v, want v2", out)
	}

	// No temp files should survive a completed save.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != "state.json" && e.Name() != "state.json.lock" {
			t.Fatalf("leftover file %s", e.Name())
		}
	}
}
