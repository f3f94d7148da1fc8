// Package db provides the embedded migration files.
package db

import "embed"

// Migrations holds the versioned schema migrations, applied in order by
// golang-migrate.
//
//go:embed migrations/*.sql
var Migrations embed.FS
