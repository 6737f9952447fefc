// Package migrations embeds the PostgreSQL schema migrations.
package migrations

import "embed"

// FS holds all .sql migration files of this directory.
//
//go:embed *.sql
var FS embed.FS
