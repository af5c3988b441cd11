// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/oliverandrich/go-otp-auth/internal/config"
	"github.com/sethvargo/go-retry"
	"github.com/wneessen/go-mail"
)

const (
	sendRetries = 2
	sendBackoff = 200 * time.Millisecond
)

// SMTP sends code e-mails through an SMTP relay.
type SMTP struct {
	cfg *config.SMTPConfig
	ttl time.Duration
}

// NewSMTP creates an SMTP notifier.
func NewSMTP(cfg *config.SMTPConfig, ttl time.Duration) (*SMTP, error) {
	if cfg.Host == "" {
		return nil, errors.New("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("SMTP from address is required")
	}

	return &SMTP{cfg: cfg, ttl: ttl}, nil
}

// Deliver sends the code to destination.
func (s *SMTP) Deliver(ctx context.Context, destination, code string) error {
	msg, err := s.buildMessage(ctx, destination, code)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	attempts := 0
	backoff := retry.WithMaxRetries(sendRetries, retry.NewExponential(sendBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		if err := client.DialAndSendWithContext(ctx, msg); err != nil {
			if permanent(err) {
				return err
			}
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sending email after %d attempts: %w", attempts, err)
	}

	slog.Debug("otp_delivered", "channel", "smtp", "destination", destination)
	return nil
}

func (s *SMTP) buildMessage(ctx context.Context, to, code string) (*mail.Msg, error) {
	content := compose(ctx, code, s.ttl)
	msg := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(content.Subject)
	msg.SetBodyString(mail.TypeTextPlain, content.Body)
	return msg, nil
}

func (s *SMTP) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(10 * time.Second),
	}

	// Implicit TLS on 465, STARTTLS elsewhere
	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	return opts
}

// permanent reports whether the relay rejected the message for good.
func permanent(err error) bool {
	var sendErr *mail.SendError
	return errors.As(err, &sendErr) && !sendErr.IsTemp()
}
