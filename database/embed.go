package database

import "embed"

// EmbeddedMigrations holds the schema files compiled into the binary.
// Use Migrations() for the directory itself.
//
//go:embed migrations/*.sql
var EmbeddedMigrations embed.FS
