package manifest

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Entry records the content last written to a provisioned target path.
type Entry struct {
	ID          int64
	Name        string
	TargetPath  string
	Size        int64
	SHA256      string
	InstalledAt time.Time
}

// Matches reports whether the entry describes content of the given size and digest.
func (e Entry) Matches(size int64, sha string) bool {
	return e.Size == size && e.SHA256 == sha
}

// Lookup returns the marker recorded for a target path.
func (m *DB) Lookup(targetPath string) (Entry, bool, error) {
	var e Entry
	err := m.db.QueryRow(
		`SELECT id, name, target_path, size, sha256, installed_at FROM runtimes WHERE target_path = ?`,
		targetPath,
	).Scan(&e.ID, &e.Name, &e.TargetPath, &e.Size, &e.SHA256, &e.InstalledAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("lookup runtime: %w", err)
	}
	return e, true, nil
}

// Record inserts or updates the marker for a target path.
func (m *DB) Record(name, targetPath string, size int64, sha string) error {
	_, err := m.db.Exec(
		`INSERT INTO runtimes (name, target_path, size, sha256, installed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(target_path) DO UPDATE SET
		   name = excluded.name,
		   size = excluded.size,
		   sha256 = excluded.sha256,
		   installed_at = excluded.installed_at`,
		name, targetPath, size, sha, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record runtime: %w", err)
	}
	return nil
}

// Forget removes the marker for a target path.
func (m *DB) Forget(targetPath string) error {
	if _, err := m.db.Exec(`DELETE FROM runtimes WHERE target_path = ?`, targetPath); err != nil {
		return fmt.Errorf("forget runtime: %w", err)
	}
	return nil
}

// List returns every recorded marker ordered by name.
func (m *DB) List() ([]Entry, error) {
	rows, err := m.db.Query(
		`SELECT id, name, target_path, size, sha256, installed_at FROM runtimes ORDER BY name, target_path`,
	)
	if err != nil {
		return nil, fmt.Errorf("list runtimes: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Name, &e.TargetPath, &e.Size, &e.SHA256, &e.InstalledAt); err != nil {
			return nil, fmt.Errorf("scan runtime: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
