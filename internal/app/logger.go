// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package app

import (
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// setupLogger configures the global slog logger to write to w.
func setupLogger(w io.Writer, level, format string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel})
	} else {
		noColor := true
		if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			w = colorable.NewColorable(f)
			noColor = false
		}
		handler = tint.NewHandler(w, &tint.Options{Level: logLevel, NoColor: noColor})
	}

	slog.SetDefault(slog.New(handler))
}
