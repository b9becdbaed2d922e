package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// openTestDB opens a private in-memory database closed at test cleanup.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(context.Background(), Config{Path: ":memory:", BusyTimeout: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	return db
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("creates directory and file", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "nested", "devicelink.db")

		db, err := Open(ctx, Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		if _, err := db.ExecContext(ctx, "CREATE TABLE t (id INTEGER)"); err != nil {
			t.Fatalf("ExecContext() error = %v", err)
		}
		if _, err := os.Stat(dbPath); err != nil {
			t.Errorf("database file not created: %v", err)
		}
		if db.Path() != dbPath {
			t.Errorf("Path() = %q, want %q", db.Path(), dbPath)
		}
	})

	t.Run("empty path rejected", func(t *testing.T) {
		if _, err := Open(ctx, Config{}); err == nil {
			t.Error("Open() expected error for empty path")
		}
	})

	t.Run("in memory", func(t *testing.T) {
		db := openTestDB(t)
		if err := db.HealthCheck(ctx); err != nil {
			t.Errorf("HealthCheck() error = %v", err)
		}
	})
}

func TestOpen_ReadOnly(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "shared.db")

	rw, err := Open(ctx, Config{Path: dbPath, BusyTimeout: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := rw.ExecContext(ctx, "CREATE TABLE t (id INTEGER)"); err != nil {
		t.Fatalf("ExecContext() error = %v", err)
	}
	rw.Close() //nolint:errcheck // Test cleanup

	ro, err := Open(ctx, Config{Path: dbPath, BusyTimeout: 1, ReadOnly: true})
	if err != nil {
		t.Fatalf("Open(ReadOnly) error = %v", err)
	}
	defer ro.Close() //nolint:errcheck // Test cleanup

	if _, err := ro.ExecContext(ctx, "INSERT INTO t (id) VALUES (1)"); err == nil {
		t.Error("write through read-only handle should fail")
	}
}

func TestConnectionString(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		contains []string
		excludes []string
	}{
		{
			name:     "memory",
			cfg:      Config{Path: ":memory:", BusyTimeout: 2},
			contains: []string{"file::memory:", "_busy_timeout=2000"},
		},
		{
			name:     "wal",
			cfg:      Config{Path: "/tmp/x.db", WALMode: true, BusyTimeout: 1},
			contains: []string{"file:/tmp/x.db", "_journal_mode=WAL"},
		},
		{
			name:     "read only skips wal",
			cfg:      Config{Path: "/tmp/x.db", WALMode: true, ReadOnly: true},
			contains: []string{"mode=ro"},
			excludes: []string{"_journal_mode"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := connectionString(tt.cfg)
			for _, s := range tt.contains {
				if !strings.Contains(got, s) {
					t.Errorf("connectionString() = %q, want it to contain %q", got, s)
				}
			}
			for _, s := range tt.excludes {
				if strings.Contains(got, s) {
					t.Errorf("connectionString() = %q, should not contain %q", got, s)
				}
			}
		})
	}
}

func TestClose_Nil(t *testing.T) {
	db := &DB{}
	if err := db.Close(); err != nil {
		t.Errorf("Close() on nil handle error = %v", err)
	}
}

func TestBeginTxx(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE t (id INTEGER)"); err != nil {
		t.Fatalf("ExecContext() error = %v", err)
	}

	t.Run("commit", func(t *testing.T) {
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			t.Fatalf("BeginTxx() error = %v", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO t (id) VALUES (1)"); err != nil {
			t.Fatalf("insert error = %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("Commit() error = %v", err)
		}

		var count int
		if err := db.GetContext(ctx, &count, "SELECT COUNT(*) FROM t"); err != nil {
			t.Fatalf("count error = %v", err)
		}
		if count != 1 {
			t.Errorf("count = %d, want 1", count)
		}
	})

	t.Run("rollback", func(t *testing.T) {
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			t.Fatalf("BeginTxx() error = %v", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO t (id) VALUES (2)"); err != nil {
			t.Fatalf("insert error = %v", err)
		}
		if err := tx.Rollback(); err != nil {
			t.Fatalf("Rollback() error = %v", err)
		}

		var count int
		if err := db.GetContext(ctx, &count, "SELECT COUNT(*) FROM t WHERE id = 2"); err != nil {
			t.Fatalf("count error = %v", err)
		}
		if count != 0 {
			t.Errorf("count = %d, want 0 after rollback", count)
		}
	})
}

func TestStats(t *testing.T) {
	db := openTestDB(t)
	if got := db.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1", got)
	}
}
