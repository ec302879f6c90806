package database

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenCreatesFileAndDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pknx.db")

	db, err := Open(Config{Path: path, WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}

func TestOpenWALMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pknx.db")

	db, err := Open(Config{Path: path, WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	var mode string
	if err := db.QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode query: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestCloseIdempotentOnNil(t *testing.T) {
	var db DB
	if err := db.Close(); err != nil {
		t.Errorf("Close on zero DB = %v, want nil", err)
	}
}
