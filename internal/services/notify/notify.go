// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package notify delivers login codes to account holders.
package notify

import (
	"context"
	"fmt"
	"io"
	"time"

	"codeberg.org/oliverandrich/go-otp-auth/internal/config"
	"codeberg.org/oliverandrich/go-otp-auth/internal/i18n"
)

// Notifier sends a code to a destination address.
type Notifier interface {
	Deliver(ctx context.Context, destination, code string) error
}

// New returns the notifier selected by cfg.Notify.Mode. Console output goes
// to out.
func New(cfg *config.Config, out io.Writer, ttl time.Duration) (Notifier, error) {
	switch cfg.Notify.Mode {
	case config.NotifyConsole, "":
		return NewConsole(out, ttl), nil
	case config.NotifySMTP:
		return NewSMTP(&cfg.SMTP, ttl)
	default:
		return nil, fmt.Errorf("unknown notify mode %q", cfg.Notify.Mode)
	}
}

// message is the localized content of a code e-mail.
type message struct {
	Subject string
	Body    string
}

func compose(ctx context.Context, code string, ttl time.Duration) message {
	return message{
		Subject: i18n.T(ctx, "otp_email_subject"),
		Body: i18n.TData(ctx, "otp_email_body", map[string]any{
			"Code":    code,
			"Minutes": int(ttl.Minutes()),
		}),
	}
}
