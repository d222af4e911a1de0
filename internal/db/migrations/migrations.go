package migrations

import (
	"database/sql"
	_ "embed"

	"github.com/octopus-project/ipcm-indexer/internal/db"
	"github.com/octopus-project/ipcm-indexer/internal/logger"
	"github.com/octopus-project/ipcm-indexer/pkg/config"
)

//go:embed 001_initial.sql
var mig0001 string

//go:embed 002_token_events.sql
var mig0002 string

func all() []db.Migration {
	return []db.Migration{
		{
			ID:  "001_initial.sql",
			SQL: mig0001,
		},
		{
			ID:  "002_token_events.sql",
			SQL: mig0002,
		},
	}
}

// RunMigrations runs all migrations for the indexer database.
func RunMigrations(cfg config.DatabaseConfig) error {
	return db.RunMigrations(cfg.Path, all())
}

// RunMigrationsDB runs all migrations on an already open database.
func RunMigrationsDB(log *logger.Logger, database *sql.DB) error {
	return db.RunMigrationsDB(log, database, all())
}
