// Package database provides the SQLite connection behind the reference
// permission engine.
//
// This package manages:
//   - Connection setup (WAL mode, busy timeout, foreign keys)
//   - In-memory stores for tests and throwaway runs
//   - Schema migrations read from any fs.FS
//   - Transaction helpers
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are named YYYYMMDD_HHMMSS_description.up.sql with an optional
// matching .down.sql. They are additive: new columns must be NULLABLE or
// carry a DEFAULT.
package database
