// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
	"golang.org/x/crypto/bcrypt"
)

var configFile = altsrc.StringSourcer("config.toml")

// Notification modes.
const (
	NotifyConsole = "console"
	NotifySMTP    = "smtp"
)

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Log      LogConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Notify   NotifyConfig
	SMTP     SMTPConfig
	Locale   string // preferred language, e.g. "de" or "de_DE.UTF-8"
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

type AuthConfig struct { //nolint:govet // fieldalignment not critical
	BcryptCost        int
	PasswordMinLength int
	PasswordStrict    bool // numeric, common-password and similarity checks
	HistoryLimit      int  // attempts shown when no limit is given
}

type NotifyConfig struct {
	Mode string // console, smtp
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		Auth: AuthConfig{
			BcryptCost:        int(cmd.Int("bcrypt-cost")),
			PasswordMinLength: int(cmd.Int("password-min-length")),
			PasswordStrict:    cmd.Bool("password-strict"),
			HistoryLimit:      int(cmd.Int("history-limit")),
		},
		Notify: NotifyConfig{
			Mode: strings.ToLower(cmd.String("notify-mode")),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
		},
		Locale: cmd.String("locale"),
	}

	// Local relays (mailpit, mailhog) rarely speak TLS.
	if !cmd.IsSet("smtp-tls") && IsLocalhost(cfg.SMTP.Host) {
		cfg.SMTP.TLS = false
	}

	return cfg
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Log.Level)) {
		errs = append(errs, fmt.Errorf("invalid log level %q", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("invalid log format %q", c.Log.Format))
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.Auth.PasswordMinLength < 1 {
		errs = append(errs, errors.New("password minimum length must be positive"))
	}
	if c.Auth.HistoryLimit < 1 {
		errs = append(errs, errors.New("history limit must be positive"))
	}

	switch c.Notify.Mode {
	case NotifyConsole:
	case NotifySMTP:
		if c.SMTP.Host == "" {
			errs = append(errs, errors.New("SMTP host is required"))
		}
		if c.SMTP.From == "" {
			errs = append(errs, errors.New("SMTP from address is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid notify mode %q", c.Notify.Mode))
	}

	return errors.Join(errs...)
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	// Check for *.localhost subdomains (e.g., mail.localhost)
	return strings.HasSuffix(host, ".localhost")
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_LEVEL"), toml.TOML("log.level", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_FORMAT"), toml.TOML("log.format", configFile)),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/auth.db",
			Usage:   "Database DSN",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_DSN"), toml.TOML("database.dsn", configFile)),
		},
		// Auth flags
		&cli.IntFlag{
			Name:    "bcrypt-cost",
			Value:   10,
			Usage:   "bcrypt cost factor for password hashes",
			Sources: cli.NewValueSourceChain(cli.EnvVar("AUTH_BCRYPT_COST"), toml.TOML("auth.bcrypt_cost", configFile)),
		},
		&cli.IntFlag{
			Name:    "password-min-length",
			Value:   6,
			Usage:   "Minimum password length",
			Sources: cli.NewValueSourceChain(cli.EnvVar("AUTH_PASSWORD_MIN_LENGTH"), toml.TOML("auth.password_min_length", configFile)),
		},
		&cli.BoolFlag{
			Name:    "password-strict",
			Usage:   "Reject numeric, common and username-like passwords",
			Sources: cli.NewValueSourceChain(cli.EnvVar("AUTH_PASSWORD_STRICT"), toml.TOML("auth.password_strict", configFile)),
		},
		&cli.IntFlag{
			Name:    "history-limit",
			Value:   10,
			Usage:   "Number of login attempts shown in the history",
			Sources: cli.NewValueSourceChain(cli.EnvVar("AUTH_HISTORY_LIMIT"), toml.TOML("auth.history_limit", configFile)),
		},
		// Notification flags
		&cli.StringFlag{
			Name:    "notify-mode",
			Value:   NotifyConsole,
			Usage:   "How login codes are delivered (console, smtp)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("NOTIFY_MODE"), toml.TOML("notify.mode", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP server host",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_HOST"), toml.TOML("smtp.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP server port",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PORT"), toml.TOML("smtp.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_USERNAME"), toml.TOML("smtp.username", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PASSWORD"), toml.TOML("smtp.password", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "Sender address of login code e-mails",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM"), toml.TOML("smtp.from", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Usage:   "Sender display name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM_NAME"), toml.TOML("smtp.from_name", configFile)),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS (implicit on port 465, STARTTLS otherwise)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_TLS"), toml.TOML("smtp.tls", configFile)),
		},
		&cli.StringFlag{
			Name:    "locale",
			Value:   "en",
			Usage:   "Language of console and e-mail messages (en, de)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("APP_LOCALE"), toml.TOML("app.locale", configFile)),
		},
	}
}
