// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Console prints code e-mails instead of sending them.
type Console struct {
	mu  sync.Mutex
	out io.Writer
	ttl time.Duration
}

// NewConsole creates a console notifier writing to out.
func NewConsole(out io.Writer, ttl time.Duration) *Console {
	return &Console{out: out, ttl: ttl}
}

// Deliver writes the e-mail that would have been sent.
func (c *Console) Deliver(ctx context.Context, destination, code string) error {
	msg := compose(ctx, code, c.ttl)
	rule := strings.Repeat("-", 40)

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := fmt.Fprintf(c.out, "\n%s\nTo: %s\nSubject: %s\n\n%s\n%s\n", rule, destination, msg.Subject, msg.Body, rule)
	if err != nil {
		return fmt.Errorf("writing message: %w", err)
	}

	slog.Debug("otp_delivered", "channel", "console", "destination", destination)
	return nil
}
