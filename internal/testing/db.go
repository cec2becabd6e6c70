// Package testing provides database helpers shared by package tests.
package testing

import (
	"path/filepath"
	"testing"

	"github.com/aristath/atelier/internal/database"
)

// NewTestDB opens a migrated database named name ("orders", "rates" or
// "client_data") in a per-test temp dir. Other names get an empty database.
// The cleanup func closes it; t.Cleanup closes it too if the test forgets.
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()
	return NewTestDBWithSchema(t, name, "")
}

// NewTestDBWithSchema is NewTestDB plus fixtures, an SQL script run after
// the schema.
func NewTestDBWithSchema(t *testing.T, name string, fixtures string) (*database.DB, func()) {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("open test database %s: %v", name, err)
	}

	closed := false
	cleanup := func() {
		if closed {
			return
		}
		closed = true
		if err := db.Close(); err != nil {
			t.Logf("close test database %s: %v", name, err)
		}
	}
	t.Cleanup(cleanup)

	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate test database %s: %v", name, err)
	}
	if fixtures != "" {
		if _, err := db.Conn().Exec(fixtures); err != nil {
			t.Fatalf("load fixtures into %s: %v", name, err)
		}
	}
	return db, cleanup
}
