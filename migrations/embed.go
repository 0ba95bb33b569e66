// Package migrations embeds the permission store schema into the binary.
package migrations

import "embed"

// FS holds every migration at its root, for database.DB.Migrate.
//
//go:embed *.sql
var FS embed.FS
