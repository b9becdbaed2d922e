// Package database provides SQLite connectivity for the device registry.
//
// This package manages:
//   - Opening the registry file (or ":memory:") through sqlx and go-sqlite3
//   - Schema migrations embedded from the migrations package
//   - Read-only handles for clients that resolve peers from a shared registry
//
// SQLite allows a single writer, so the pool is capped at one connection.
// Registry operations rely on this to serialise writes.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.(up|down).sql.
package database
