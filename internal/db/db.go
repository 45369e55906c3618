// Package db owns the SQLite connection and schema migrations for the
// compliance archive. Repository implementations live in
// internal/vision/storage/sqlite; this package only opens the database
// and keeps its schema current.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// NewDB opens (creating if necessary) the archive database at path and
// applies the connection pragmas. Schema setup is the caller's job via
// MigrateUp.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}

	// WAL keeps the write-behind archiver from blocking report readers;
	// busy_timeout covers the brief writer overlap that remains.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}

	return &DB{db}, nil
}
