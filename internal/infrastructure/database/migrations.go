package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"time"
)

// migrationFile matches YYYYMMDD_HHMMSS_name.up.sql.
var migrationFile = regexp.MustCompile(`^(\d{8}_\d{6})_(.+)\.up\.sql$`)

// Migration is one forward schema step.
type Migration struct {
	Version string // YYYYMMDD_HHMMSS
	Name    string
	SQL     string
}

// MigrationRecord is a row of schema_migrations.
type MigrationRecord struct {
	Version   string
	AppliedAt time.Time
}

// Migrate applies every migration in fsys not yet recorded in
// schema_migrations, oldest first, one transaction each. After a failure the
// next run resumes at the failed step.
func (db *DB) Migrate(ctx context.Context, fsys fs.FS) error {
	_, pending, err := db.MigrationStatus(ctx, fsys)
	if err != nil {
		return err
	}
	for _, m := range pending {
		if err := db.apply(ctx, m); err != nil {
			return fmt.Errorf("migration %s (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// MigrationStatus splits the migrations of fsys into applied and pending.
func (db *DB) MigrationStatus(ctx context.Context, fsys fs.FS) (applied []MigrationRecord, pending []Migration, err error) {
	applied, err = db.appliedMigrations(ctx)
	if err != nil {
		return nil, nil, err
	}
	all, err := LoadMigrations(fsys)
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[string]struct{}, len(applied))
	for _, r := range applied {
		seen[r.Version] = struct{}{}
	}
	for _, m := range all {
		if _, ok := seen[m.Version]; !ok {
			pending = append(pending, m)
		}
	}
	return applied, pending, nil
}

func (db *DB) appliedMigrations(ctx context.Context) ([]MigrationRecord, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("creating schema_migrations: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("reading schema_migrations: %w", err)
	}
	defer rows.Close()

	var out []MigrationRecord
	for rows.Next() {
		var (
			r  MigrationRecord
			at string
		)
		if err := rows.Scan(&r.Version, &at); err != nil {
			return nil, fmt.Errorf("reading schema_migrations: %w", err)
		}
		r.AppliedAt, _ = time.Parse(time.RFC3339, at) //nolint:errcheck // written by apply
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) apply(ctx context.Context, m Migration) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			m.Version, time.Now().UTC().Format(time.RFC3339),
		)
		return err
	})
}

// LoadMigrations reads the *.up.sql files at the root of fsys, sorted by
// version. Other files are ignored.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	if fsys == nil {
		return nil, nil
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading migrations: %w", err)
	}

	var out []Migration
	for _, e := range entries {
		m, ok := parseMigration(e.Name())
		if e.IsDir() || !ok {
			continue
		}
		body, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		m.SQL = string(body)
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// parseMigration reads version and name from a migration filename.
func parseMigration(filename string) (Migration, bool) {
	match := migrationFile.FindStringSubmatch(filename)
	if match == nil {
		return Migration{}, false
	}
	return Migration{Version: match[1], Name: match[2]}, true
}
