package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{Path: MemoryPath})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	return db
}

func TestConfigDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"memory", Config{Path: MemoryPath, WALMode: true}, "file::memory:?_foreign_keys=on"},
		{"file", Config{Path: "/var/lib/lp/perms.db", BusyTimeout: 5}, "file:/var/lib/lp/perms.db?_busy_timeout=5000&_foreign_keys=on"},
		{"wal", Config{Path: "perms.db", WALMode: true}, "file:perms.db?_busy_timeout=0&_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.dsn(); got != tt.want {
				t.Errorf("dsn() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	t.Run("creates nested directory and file", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "perms.db")

		db, err := Open(context.Background(), Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != dbPath {
			t.Errorf("Path() = %v, want %v", db.Path(), dbPath)
		}
	})

	t.Run("in-memory survives idle periods", func(t *testing.T) {
		db := openTestDB(t)
		ctx := context.Background()

		if _, err := db.ExecContext(ctx, "CREATE TABLE t (v INTEGER)"); err != nil {
			t.Fatalf("ExecContext() error = %v", err)
		}
		time.Sleep(10 * time.Millisecond)

		var n int
		if err := db.QueryRowContext(ctx, "SELECT count(*) FROM t").Scan(&n); err != nil {
			t.Fatalf("table lost between queries: %v", err)
		}
	})
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestClose(t *testing.T) {
	db, err := Open(context.Background(), Config{Path: MemoryPath})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	db.DB = nil
	if err := db.Close(); err != nil {
		t.Errorf("Close() on nil DB error = %v", err)
	}
}

func TestWithTx(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE t (v INTEGER)"); err != nil {
		t.Fatalf("ExecContext() error = %v", err)
	}

	t.Run("commits on success", func(t *testing.T) {
		err := db.WithTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "INSERT INTO t (v) VALUES (1)")
			return err
		})
		if err != nil {
			t.Fatalf("WithTx() error = %v", err)
		}
		assertCount(t, db, 1)
	})

	t.Run("rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := db.WithTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, "INSERT INTO t (v) VALUES (2)"); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("WithTx() error = %v, want %v", err, boom)
		}
		assertCount(t, db, 1)
	})
}

func assertCount(t *testing.T, db *DB, want int) {
	t.Helper()
	var n int
	if err := db.QueryRowContext(context.Background(), "SELECT count(*) FROM t").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != want {
		t.Errorf("row count = %d, want %d", n, want)
	}
}
