// Package assets embeds the SQL migrations of the datastores.
package assets

import "embed"

const (
	PostgresMigrationDir = "migrations/postgres"
	MySQLMigrationDir    = "migrations/mysql"
	SqliteMigrationDir   = "migrations/sqlite"
)

//go:embed migrations/*
var EmbedMigrations embed.FS
