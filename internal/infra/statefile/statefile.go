// Package statefile persists small JSON state documents with atomic replace
// semantics. Writers take a non-blocking advisory lock; a losing writer skips
// its update instead of blocking, so persistence is best-effort while the
// in-memory state stays authoritative for the running invocation.
package statefile

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Store persists a single JSON document at a fixed path.
type Store struct {
	path string
	lock *flock.Flock
}

// New creates a store for the given path. The parent directory is created
// lazily on first save.
func New(path string) *Store {
	return &Store{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Save marshals v and atomically replaces the backing file (temp file in the
// same directory, then rename). If the advisory lock is held by another
// invocation the update is skipped silently.
func (s *Store) Save(v any) error {
	locked, err := s.lock.TryLock()
	if err != nil || !locked {
		slog.Debug("State file locked by another writer, skipping save", "path", s.path)
		return nil
	}
	defer func() {
		_ = s.lock.Unlock()
	}()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// Load unmarshals the backing file into v. Returns os.ErrNotExist (wrapped)
// when the file is absent; callers degrade to safe defaults on any error.
func (s *Store) Load(v any) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read state file: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse state file %s: %w", s.path, err)
	}
	return nil
}
