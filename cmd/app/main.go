// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"log"
	"os"

	"codeberg.org/oliverandrich/go-otp-auth/internal/app"
	"codeberg.org/oliverandrich/go-otp-auth/internal/config"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:     "app",
		Usage:    "Password and one-time code authentication console",
		Flags:    config.Flags(),
		Action:   app.Run,
		Commands: []*cli.Command{app.MigrateCommand()},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
