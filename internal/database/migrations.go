package database

import "embed"

// EmbeddedMigrations contains the platform-compatible schema used by local
// and integration environments. Production sites already have these tables.
//
//go:embed migrations/*.sql
var EmbeddedMigrations embed.FS
