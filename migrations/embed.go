// Package migrations embeds the SQLite schema of the telemetry store and
// the command audit log.
package migrations

import "embed"

// FS holds the migration files, at the root of the filesystem.
//
//go:embed *.sql
var FS embed.FS
