package storage

import "embed"

// Migrations holds the goose migrations applied at startup.
//
//go:embed migrations/*.sql
var Migrations embed.FS

const MigrationsDir = "migrations"
