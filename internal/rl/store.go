package rl

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Snapshot is the persisted form of a manager's learning state.
type Snapshot struct {
	// Values is the Q-table as {state_key: {tool_name: value}}.
	Values map[string]map[string]float64
	// Vectors holds the founding vector of each semantic state key.
	Vectors map[string][]float64
}

// Store loads and saves snapshots.
type Store interface {
	// Load returns the stored snapshot, or an empty one when nothing has been saved yet.
	Load() (Snapshot, error)
	// Save replaces the stored snapshot.
	Save(Snapshot) error
	// Location describes where the snapshot lives, for logs and errors.
	Location() string
	Close() error
}

// PersistenceError reports a failed load, save or export.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("q-table %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// OpenStore picks a store implementation from the path's extension:
// .db, .sqlite and .sqlite3 open a SQLiteStore scoped to manager, anything
// else is a JSON FileStore.
func OpenStore(path, manager string) (Store, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return OpenSQLiteStore(path, manager)
	default:
		return NewFileStore(path), nil
	}
}

// FileStore keeps the Q-table in a JSON file and semantic state vectors in a
// sidecar file next to it.
type FileStore struct {
	path string
}

// NewFileStore returns a store for the JSON file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Location returns the Q-table file path.
func (s *FileStore) Location() string {
	return s.path
}

func (s *FileStore) vectorsPath() string {
	return s.path + ".vectors.json"
}

// Load reads both files. Missing files yield empty maps.
func (s *FileStore) Load() (Snapshot, error) {
	snap := Snapshot{
		Values:  make(map[string]map[string]float64),
		Vectors: make(map[string][]float64),
	}

	if err := readJSON(s.path, &snap.Values); err != nil {
		return Snapshot{}, &PersistenceError{Op: "load", Path: s.path, Err: err}
	}
	if err := readJSON(s.vectorsPath(), &snap.Vectors); err != nil {
		return Snapshot{}, &PersistenceError{Op: "load", Path: s.vectorsPath(), Err: err}
	}
	if snap.Values == nil {
		snap.Values = make(map[string]map[string]float64)
	}
	if snap.Vectors == nil {
		snap.Vectors = make(map[string][]float64)
	}
	return snap, nil
}

// Save writes the Q-table and the state vectors. Each file is replaced
// atomically so an interrupted save leaves the previous version intact. A
// snapshot without vectors removes the vectors file.
func (s *FileStore) Save(snap Snapshot) error {
	values := snap.Values
	if values == nil {
		values = map[string]map[string]float64{}
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}

	if len(snap.Vectors) == 0 {
		if err := os.Remove(s.vectorsPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return &PersistenceError{Op: "save", Path: s.vectorsPath(), Err: err}
		}
		return nil
	}
	data, err = json.Marshal(snap.Vectors)
	if err != nil {
		return &PersistenceError{Op: "save", Path: s.vectorsPath(), Err: err}
	}
	if err := writeFileAtomic(s.vectorsPath(), data); err != nil {
		return &PersistenceError{Op: "save", Path: s.vectorsPath(), Err: err}
	}
	return nil
}

// Close is a no-op; files are opened per call.
func (s *FileStore) Close() error {
	return nil
}

func readJSON(path string, target any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}

// writeFileAtomic writes data to a temp file in the target directory, syncs
// it, then renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace file: %w", err)
	}
	return nil
}
