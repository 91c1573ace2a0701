// Package migrations embeds the SQL schema and seed files.
package migrations

import "embed"

// FS holds sql/*.up.sql, sql/*.down.sql and seeds/*.sql.
//
//go:embed sql/*.sql seeds/*.sql
var FS embed.FS

const (
	SQLDir   = "sql"
	SeedsDir = "seeds"
)
