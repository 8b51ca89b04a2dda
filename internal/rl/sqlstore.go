package rl

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps Q-tables for any number of managers in one SQLite
// database, keyed by manager name.
type SQLiteStore struct {
	conn    *sql.DB
	path    string
	manager string
	mu      sync.Mutex
}

// OpenSQLiteStore opens (creating if needed) the database at path and
// applies pending migrations. The store reads and writes only rows
// belonging to manager.
func OpenSQLiteStore(path, manager string) (*SQLiteStore, error) {
	if manager == "" {
		return nil, fmt.Errorf("sqlite q-table store requires a manager name")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL lets several processes read the table while one saves.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &SQLiteStore{conn: conn, path: path, manager: manager}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Location returns the database path and manager scope.
func (s *SQLiteStore) Location() string {
	return s.path + "#" + s.manager
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

func (s *SQLiteStore) migrate() error {
	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var current int
	if err := s.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1QValues},
		{2, migrationV2StateVectors},
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := s.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}
	return nil
}

const migrationV1QValues = `
CREATE TABLE IF NOT EXISTS q_values (
	manager TEXT NOT NULL,
	state_key TEXT NOT NULL,
	tool_name TEXT NOT NULL,
	value REAL NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (manager, state_key, tool_name)
);
`

const migrationV2StateVectors = `
CREATE TABLE IF NOT EXISTS state_vectors (
	manager TEXT NOT NULL,
	state_key TEXT NOT NULL,
	vector TEXT NOT NULL,
	PRIMARY KEY (manager, state_key)
);
`

// Load reads the manager's Q-values and state vectors.
func (s *SQLiteStore) Load() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Values:  make(map[string]map[string]float64),
		Vectors: make(map[string][]float64),
	}

	rows, err := s.conn.Query("SELECT state_key, tool_name, value FROM q_values WHERE manager = ?", s.manager)
	if err != nil {
		return Snapshot{}, &PersistenceError{Op: "load", Path: s.Location(), Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var state, tool string
		var value float64
		if err := rows.Scan(&state, &tool, &value); err != nil {
			return Snapshot{}, &PersistenceError{Op: "load", Path: s.Location(), Err: err}
		}
		row, ok := snap.Values[state]
		if !ok {
			row = make(map[string]float64)
			snap.Values[state] = row
		}
		row[tool] = value
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, &PersistenceError{Op: "load", Path: s.Location(), Err: err}
	}

	vrows, err := s.conn.Query("SELECT state_key, vector FROM state_vectors WHERE manager = ?", s.manager)
	if err != nil {
		return Snapshot{}, &PersistenceError{Op: "load", Path: s.Location(), Err: err}
	}
	defer vrows.Close()

	for vrows.Next() {
		var state, raw string
		if err := vrows.Scan(&state, &raw); err != nil {
			return Snapshot{}, &PersistenceError{Op: "load", Path: s.Location(), Err: err}
		}
		var vec []float64
		if err := json.Unmarshal([]byte(raw), &vec); err != nil {
			return Snapshot{}, &PersistenceError{Op: "load", Path: s.Location(), Err: fmt.Errorf("decode vector %s: %w", state, err)}
		}
		snap.Vectors[state] = vec
	}
	if err := vrows.Err(); err != nil {
		return Snapshot{}, &PersistenceError{Op: "load", Path: s.Location(), Err: err}
	}

	return snap, nil
}

// Save replaces the manager's rows in one transaction.
func (s *SQLiteStore) Save(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.save(snap); err != nil {
		return &PersistenceError{Op: "save", Path: s.Location(), Err: err}
	}
	return nil
}

func (s *SQLiteStore) save(snap Snapshot) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM q_values WHERE manager = ?", s.manager); err != nil {
		return fmt.Errorf("clear q_values: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM state_vectors WHERE manager = ?", s.manager); err != nil {
		return fmt.Errorf("clear state_vectors: %w", err)
	}

	insertValue, err := tx.Prepare("INSERT INTO q_values (manager, state_key, tool_name, value, updated_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer insertValue.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for state, row := range snap.Values {
		for tool, value := range row {
			if _, err := insertValue.Exec(s.manager, state, tool, value, now); err != nil {
				return fmt.Errorf("insert %s/%s: %w", state, tool, err)
			}
		}
	}

	for state, vec := range snap.Vectors {
		raw, err := json.Marshal(vec)
		if err != nil {
			return fmt.Errorf("encode vector %s: %w", state, err)
		}
		if _, err := tx.Exec("INSERT INTO state_vectors (manager, state_key, vector) VALUES (?, ?, ?)", s.manager, state, string(raw)); err != nil {
			return fmt.Errorf("insert vector %s: %w", state, err)
		}
	}

	return tx.Commit()
}

// Managers lists the manager names that have saved rows.
func (s *SQLiteStore) Managers() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.Query("SELECT DISTINCT manager FROM q_values ORDER BY manager")
	if err != nil {
		return nil, fmt.Errorf("list managers: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan manager: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
