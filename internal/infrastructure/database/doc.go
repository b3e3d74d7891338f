// Package database provides SQLite connectivity for the coop bridge.
//
// This package manages:
//   - Database connection with WAL mode and a busy timeout
//   - Schema migrations read from an fs.FS (normally the embedded
//     migrations package)
//   - A single-connection pool, which also keeps ":memory:" databases alive
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.Source()); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive: each file pair is
// YYYYMMDD_HHMMSS_description.up.sql and .down.sql.
package database
