// Package database provides the embedded SQLite store used for robot
// telemetry when no PostgreSQL server is configured.
//
// This package manages:
//   - The SQLite connection (WAL mode, busy timeout, single writer)
//   - Versioned schema migrations read from any fs.FS
//   - Health checks for startup and the API health route
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql. The migrations package at the repository
// root embeds the gateway's own schema.
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
package database
