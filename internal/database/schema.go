package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
)

//go:embed schemas/*.sql
var schemaFS embed.FS

// schemaVersions is bumped whenever a schema file changes. Migrate records
// it in PRAGMA user_version.
var schemaVersions = map[string]int{
	"orders":      1,
	"rates":       1,
	"client_data": 1,
}

// Migrate applies the schema named after the database. Schemas only use
// IF NOT EXISTS statements, so re-applying is harmless. Databases without a
// schema file are left alone.
func (db *DB) Migrate() error {
	content, err := fs.ReadFile(schemaFS, "schemas/"+db.name+"_schema.sql")
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read schema for %s: %w", db.name, err)
	}

	return WithTransaction(db.conn, func(tx *sql.Tx) error {
		if _, err := tx.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to apply schema to %s: %w", db.name, err)
		}
		// PRAGMA does not take bind parameters
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersions[db.name])); err != nil {
			return fmt.Errorf("failed to record schema version of %s: %w", db.name, err)
		}
		return nil
	})
}

// SchemaVersion returns the recorded PRAGMA user_version
func (db *DB) SchemaVersion() (int, error) {
	var v int
	if err := db.conn.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema version of %s: %w", db.name, err)
	}
	return v, nil
}
