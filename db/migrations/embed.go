// Package migrations embeds the SQL schema migrations. The statements are
// portable between PostgreSQL and SQLite.
package migrations

import "embed"

// FS holds the *.up.sql and *.down.sql files.
//
//go:embed *.sql
var FS embed.FS
