// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"fmt"

	"codeberg.org/truepet/adopet/internal/config"
	"codeberg.org/truepet/adopet/internal/database"
	"codeberg.org/truepet/adopet/internal/server"
	"github.com/urfave/cli/v3"
	"github.com/vinovest/sqlx"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Inspect or roll back database migrations",
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show applied and pending migrations",
				Action: withDatabase(migrateStatus),
			},
			{
				Name:   "down",
				Usage:  "Roll back the most recent migration",
				Action: withDatabase(migrateDown),
			},
			{
				Name:   "reset",
				Usage:  "Roll back all migrations and apply them again",
				Action: withDatabase(migrateReset),
			},
		},
	}
}

// withDatabase connects to the configured database without migrating it
// and passes it to fn.
func withDatabase(fn func(ctx context.Context, db *sqlx.DB, dialect database.Dialect) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg := config.NewFromCLI(cmd)
		server.SetupLogger(cfg.Log.Level, cfg.Log.Format)

		db, err := database.Connect(cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("failed to connect database: %w", err)
		}
		defer db.Close()

		return fn(ctx, db, database.DialectFor(cfg.Database.DSN))
	}
}

func migrateStatus(_ context.Context, db *sqlx.DB, dialect database.Dialect) error {
	return database.MigrateStatus(db.DB, dialect)
}

func migrateDown(_ context.Context, db *sqlx.DB, dialect database.Dialect) error {
	if err := database.MigrateDown(db.DB, dialect); err != nil {
		return err
	}
	version, err := database.CurrentVersion(db.DB, dialect)
	if err != nil {
		return err
	}
	fmt.Printf("Database now at version %d\n", version)
	return nil
}

func migrateReset(_ context.Context, db *sqlx.DB, dialect database.Dialect) error {
	if err := database.MigrateReset(db.DB, dialect); err != nil {
		return err
	}
	if err := database.RunMigrations(db.DB, dialect); err != nil {
		return err
	}
	fmt.Println("Database reset and migrated")
	return nil
}
