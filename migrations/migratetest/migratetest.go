// Package migratetest gives tests a migrated SQLite database.
package migratetest

import (
	"database/sql"
	"path/filepath"
	"testing"

	"task-manager/driver"
	"task-manager/migrations"
)

// NewDB migrates a fresh SQLite file in t.TempDir and returns an open
// connection to it. The path is returned for tests that need a second
// connection.
func NewDB(t testing.TB) (*sql.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.sqlite3")

	r, err := migrations.New("sqlite3", path)
	if err != nil {
		t.Fatalf("migration runner: %v", err)
	}
	if _, err := r.Up(); err != nil {
		r.Close()
		t.Fatalf("migrate up: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close runner: %v", err)
	}

	db, err := driver.ConnectDB("sqlite3", path)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, path
}
