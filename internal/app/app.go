// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package app wires configuration, storage and services into the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/oliverandrich/go-otp-auth/internal/config"
	"codeberg.org/oliverandrich/go-otp-auth/internal/console"
	"codeberg.org/oliverandrich/go-otp-auth/internal/database"
	"codeberg.org/oliverandrich/go-otp-auth/internal/i18n"
	"codeberg.org/oliverandrich/go-otp-auth/internal/repository"
	"codeberg.org/oliverandrich/go-otp-auth/internal/services/auth"
	"codeberg.org/oliverandrich/go-otp-auth/internal/services/notify"
	"codeberg.org/oliverandrich/go-otp-auth/internal/services/otp"
	"github.com/urfave/cli/v3"
	"github.com/vinovest/sqlx"
)

// Run starts the interactive console with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg, db, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeDB(db)

	ctx = i18n.WithLocale(ctx, i18n.MatchLanguage(cfg.Locale))
	root := cmd.Root()
	notifier, err := notify.New(cfg, root.Writer, otp.TTL)
	if err != nil {
		return err
	}
	svc := auth.NewService(repository.New(db), &cfg.Auth, notifier)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("console started", "notify_mode", cfg.Notify.Mode, "locale", i18n.GetLocale(ctx))

	// Reading the terminal blocks, so the console runs on its own goroutine
	// and an interrupt returns without waiting for it.
	done := make(chan error, 1)
	go func() {
		done <- console.New(svc, root.Reader, root.Writer).Run(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		slog.Info("interrupted")
		return nil
	}
}

// setup loads and validates the configuration, configures logging and
// i18n, and opens the migrated database.
func setup(ctx context.Context, cmd *cli.Command) (*config.Config, *sqlx.DB, error) {
	cfg := config.NewFromCLI(cmd)
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	setupLogger(cmd.Root().ErrWriter, cfg.Log.Level, cfg.Log.Format)

	if err := i18n.Init(); err != nil {
		return nil, nil, fmt.Errorf("failed to init i18n: %w", err)
	}

	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return cfg, db, nil
}

func closeDB(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}
}
