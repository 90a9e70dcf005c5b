package manifest

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite runtime manifest database.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the manifest database in dir.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dbPath := filepath.Join(dir, "runtime.db")
	sqlDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	// Enable WAL mode for better concurrent access
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	m := &DB{db: sqlDB, path: dbPath}
	if err := m.migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return m, nil
}

// Close closes the database.
func (m *DB) Close() error {
	return m.db.Close()
}

// Path returns the path to the manifest database file.
func (m *DB) Path() string {
	return m.path
}

func (m *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runtimes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL DEFAULT '',
		target_path TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		sha256 TEXT NOT NULL DEFAULT '',
		installed_at DATETIME NOT NULL,
		UNIQUE(target_path)
	);

	CREATE INDEX IF NOT EXISTS idx_runtimes_name ON runtimes(name);
	`
	if _, err := m.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
