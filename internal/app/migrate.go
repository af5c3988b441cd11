// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package app

import (
	"context"
	"fmt"
	"log/slog"

	"codeberg.org/oliverandrich/go-otp-auth/internal/database"
	"github.com/urfave/cli/v3"
)

// MigrateCommand inspects and rolls back the schema. Opening the database
// always applies pending migrations first.
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Inspect or roll back database migrations",
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Print the current schema version",
				Action: migrateStatus,
			},
			{
				Name:   "down",
				Usage:  "Roll back the most recent migration",
				Action: migrateDown,
			},
		},
	}
}

func migrateStatus(ctx context.Context, cmd *cli.Command) error {
	_, db, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeDB(db)

	version, err := database.Version(db.DB)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	_, err = fmt.Fprintf(cmd.Root().Writer, "schema version %d\n", version)
	return err
}

func migrateDown(ctx context.Context, cmd *cli.Command) error {
	_, db, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeDB(db)

	if err := database.MigrateDown(db.DB); err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	version, err := database.Version(db.DB)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	slog.Info("migration rolled back", "version", version)
	_, err = fmt.Fprintf(cmd.Root().Writer, "schema version %d\n", version)
	return err
}
