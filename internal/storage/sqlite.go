// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// SQLITE SLOT
// =============================================================================

// SQLiteSlot keeps the store document in a key/value table. One row per
// slot key; writes are upserts.
type SQLiteSlot struct {
	db            *sql.DB
	key           string
	schemaVersion int
}

// NewSQLiteSlot opens (or creates) the database at path and ensures the
// slots table exists.
func NewSQLiteSlot(path, key string, schemaVersion int) (*SQLiteSlot, error) {
	if key == "" {
		key = DefaultKey
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The slot is accessed from a single goroutine per service, but a
	// second process may hold the file; keep busy handling polite.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS slots (
		key            TEXT PRIMARY KEY,
		schema_version INTEGER NOT NULL,
		payload        BLOB NOT NULL,
		updated_at     INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create slots table: %w", err)
	}

	return &SQLiteSlot{db: db, key: key, schemaVersion: schemaVersion}, nil
}

// Key returns the slot key.
func (s *SQLiteSlot) Key() string {
	return s.key
}

// Read returns the stored payload, or ErrSlotEmpty when the row is absent.
func (s *SQLiteSlot) Read() ([]byte, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM slots WHERE key = ?", s.key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSlotEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read slot row: %w", err)
	}
	if len(payload) == 0 {
		return nil, ErrSlotEmpty
	}
	return payload, nil
}

// Write upserts the payload for the slot key.
func (s *SQLiteSlot) Write(data []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO slots (key, schema_version, payload, updated_at)
		VALUES (?, ?, ?, unixepoch('subsec') * 1000)
		ON CONFLICT(key) DO UPDATE SET
			schema_version = excluded.schema_version,
			payload        = excluded.payload,
			updated_at     = excluded.updated_at
	`, s.key, s.schemaVersion, data)
	if err != nil {
		return fmt.Errorf("failed to write slot row: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteSlot) Close() error {
	return s.db.Close()
}
