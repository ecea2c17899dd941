// Package migrations embeds the goose SQL migrations for each supported
// database. Directory names match the goose dialect subfolders used by the
// repository managers.
package migrations

import "embed"

//go:embed postgres/*.sql sqlite/*.sql
var Migrations embed.FS

const (
	PostgresDir = "postgres"
	SQLiteDir   = "sqlite"
)
