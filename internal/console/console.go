// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package console is the interactive terminal front end of the auth service.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"codeberg.org/oliverandrich/go-otp-auth/internal/i18n"
	"codeberg.org/oliverandrich/go-otp-auth/internal/models"
	"codeberg.org/oliverandrich/go-otp-auth/internal/services/accounts"
	"codeberg.org/oliverandrich/go-otp-auth/internal/services/auth"
	"github.com/dustin/go-humanize"
)

// Service is the part of auth.Service the console drives.
type Service interface {
	Register(ctx context.Context, params auth.RegisterParams) (*models.Account, error)
	BeginLogin(ctx context.Context, email, password string) (*auth.Login, error)
	IssueChallenge(ctx context.Context, login *auth.Login) error
	SubmitOTP(ctx context.Context, login *auth.Login, code string) error
	Logout(login *auth.Login)
	Profile(ctx context.Context, login *auth.Login) (*models.Account, error)
	UpdateProfile(ctx context.Context, login *auth.Login, update auth.ProfileUpdate) (*models.Account, error)
	DeleteAccount(ctx context.Context, login *auth.Login) error
	GetHistory(ctx context.Context, login *auth.Login, limit int) ([]models.LoginAttempt, error)
	ClearHistory(ctx context.Context, login *auth.Login) (int64, error)
}

const (
	timeLayout = "2006-01-02 15:04:05"
	wideRule   = 40
	narrowRule = 30
)

// Console reads menu choices from in and writes to out.
type Console struct {
	svc Service
	in  *bufio.Reader
	out io.Writer
}

func New(svc Service, in io.Reader, out io.Writer) *Console {
	return &Console{
		svc: svc,
		in:  bufio.NewReader(in),
		out: out,
	}
}

// Run shows the main menu until the user exits, the input ends or ctx is
// cancelled.
func (c *Console) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.banner(ctx, "menu_title", wideRule)
		c.println(ctx, "menu_register")
		c.println(ctx, "menu_login")
		c.println(ctx, "menu_exit")
		c.rule(wideRule)

		choice, err := c.prompt(ctx, "prompt_choice")
		if err != nil {
			return endOfInput(err)
		}

		switch choice {
		case "1":
			err = c.register(ctx)
		case "2":
			err = c.login(ctx)
		case "3":
			c.println(ctx, "goodbye")
			return nil
		default:
			c.println(ctx, "invalid_choice")
		}
		if err != nil {
			return endOfInput(err)
		}
	}
}

func (c *Console) register(ctx context.Context) error {
	c.title(ctx, "register_title")

	username, err := c.prompt(ctx, "prompt_username")
	if err != nil {
		return err
	}
	email, err := c.prompt(ctx, "prompt_email")
	if err != nil {
		return err
	}
	password, err := c.prompt(ctx, "prompt_password")
	if err != nil {
		return err
	}

	account, err := c.svc.Register(ctx, auth.RegisterParams{Username: username, Email: email, Password: password})
	if err != nil {
		c.report(ctx, err)
		return nil
	}
	c.printf(ctx, "register_success", map[string]any{"Username": account.Username})
	return nil
}

func (c *Console) login(ctx context.Context) error {
	c.title(ctx, "login_title")

	email, err := c.prompt(ctx, "prompt_email")
	if err != nil {
		return err
	}
	password, err := c.prompt(ctx, "prompt_password")
	if err != nil {
		return err
	}

	login, err := c.svc.BeginLogin(ctx, email, password)
	if err != nil {
		c.report(ctx, err)
		return nil
	}
	c.println(ctx, "credentials_ok")

	// A failed delivery still leaves a valid code behind.
	if err := c.svc.IssueChallenge(ctx, login); err != nil {
		c.report(ctx, err)
		if !errors.Is(err, auth.ErrDeliveryFailed) {
			return nil
		}
	} else {
		c.printf(ctx, "otp_sent", map[string]any{"Email": login.Account.Email})
	}

	c.banner(ctx, "otp_title", 0)
	for login.State == auth.AwaitingOTP {
		code, err := c.promptPlural(ctx, "prompt_otp", login.Remaining)
		if err != nil {
			return err
		}
		if err := c.svc.SubmitOTP(ctx, login, code); err != nil {
			c.report(ctx, err)
		}
	}

	if login.State != auth.Authenticated {
		return nil
	}
	c.println(ctx, "login_success")
	return c.dashboard(ctx, login)
}

func (c *Console) dashboard(ctx context.Context, login *auth.Login) error {
	for login.Authenticated() {
		c.rule(wideRule)
		fmt.Fprintln(c.out, " "+i18n.TData(ctx, "dashboard_welcome", map[string]any{
			"Username": strings.ToUpper(login.Account.Username),
		}))
		c.rule(wideRule)
		for _, key := range []string{
			"dashboard_profile", "dashboard_update", "dashboard_history",
			"dashboard_clear", "dashboard_delete", "dashboard_logout",
		} {
			c.println(ctx, key)
		}
		c.rule(wideRule)

		choice, err := c.prompt(ctx, "prompt_choice")
		if err != nil {
			return err
		}

		switch choice {
		case "1":
			c.showProfile(ctx, login)
		case "2":
			err = c.updateProfile(ctx, login)
		case "3":
			c.showHistory(ctx, login)
		case "4":
			err = c.clearHistory(ctx, login)
		case "5":
			err = c.deleteAccount(ctx, login)
		case "6":
			c.svc.Logout(login)
			c.println(ctx, "logged_out")
		default:
			c.println(ctx, "invalid_choice")
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Console) showProfile(ctx context.Context, login *auth.Login) {
	account, err := c.svc.Profile(ctx, login)
	if err != nil {
		c.report(ctx, err)
		return
	}

	c.title(ctx, "profile_title")
	c.printf(ctx, "profile_username", map[string]any{"Username": account.Username})
	c.printf(ctx, "profile_email", map[string]any{"Email": account.Email})
	c.println(ctx, "profile_password")
	c.printf(ctx, "profile_created", map[string]any{"Created": account.CreatedAt.Local().Format(timeLayout)})
}

func (c *Console) updateProfile(ctx context.Context, login *auth.Login) error {
	c.title(ctx, "update_title")
	c.println(ctx, "update_hint")

	var update auth.ProfileUpdate
	username, err := c.promptf(ctx, "prompt_new_username", map[string]any{"Username": login.Account.Username})
	if err != nil {
		return err
	}
	email, err := c.promptf(ctx, "prompt_new_email", map[string]any{"Email": login.Account.Email})
	if err != nil {
		return err
	}
	password, err := c.prompt(ctx, "prompt_new_password")
	if err != nil {
		return err
	}

	// Blank keeps the current value.
	if username != "" {
		update.Username = &username
	}
	if email != "" {
		update.Email = &email
	}
	if password != "" {
		update.Password = &password
	}

	_, err = c.svc.UpdateProfile(ctx, login, update)
	if err == nil {
		c.println(ctx, "update_success")
		return nil
	}
	for _, reason := range reasons(err) {
		c.printf(ctx, "update_rejected", map[string]any{"Reason": reason})
	}
	return nil
}

func (c *Console) showHistory(ctx context.Context, login *auth.Login) {
	attempts, err := c.svc.GetHistory(ctx, login, 0)
	if err != nil {
		c.report(ctx, err)
		return
	}

	c.banner(ctx, "history_title", wideRule)
	if len(attempts) == 0 {
		c.println(ctx, "history_empty")
		return
	}

	for _, attempt := range attempts {
		status := i18n.T(ctx, "history_failed")
		if attempt.Success {
			status = i18n.T(ctx, "history_success")
		}
		fmt.Fprintf(c.out, "%s (%s) - %s\n",
			attempt.AttemptedAt.Local().Format(timeLayout),
			humanize.Time(attempt.AttemptedAt),
			status)
	}
}

func (c *Console) clearHistory(ctx context.Context, login *auth.Login) error {
	answer, err := c.prompt(ctx, "clear_confirm")
	if err != nil {
		return err
	}
	if !confirmed(answer) {
		c.println(ctx, "cancelled")
		return nil
	}

	n, err := c.svc.ClearHistory(ctx, login)
	if err != nil {
		c.report(ctx, err)
		return nil
	}
	fmt.Fprintln(c.out, i18n.TPlural(ctx, "clear_done", int(n)))
	return nil
}

func (c *Console) deleteAccount(ctx context.Context, login *auth.Login) error {
	c.title(ctx, "delete_title")

	answer, err := c.prompt(ctx, "delete_confirm")
	if err != nil {
		return err
	}
	if answer != "DELETE" {
		c.println(ctx, "cancelled")
		return nil
	}

	if err := c.svc.DeleteAccount(ctx, login); err != nil {
		c.report(ctx, err)
		return nil
	}
	c.println(ctx, "delete_done")
	return nil
}

// report prints the user-facing form of err.
func (c *Console) report(ctx context.Context, err error) {
	var conflict *accounts.ConflictError
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.println(ctx, "login_failed")
	case errors.Is(err, auth.ErrChallengeExhausted):
		c.println(ctx, "otp_exhausted")
	case errors.Is(err, auth.ErrChallengeExpired):
		c.println(ctx, "otp_expired")
	case errors.Is(err, auth.ErrChallengeInvalid):
		c.println(ctx, "otp_wrong")
	case errors.Is(err, auth.ErrDeliveryFailed):
		c.println(ctx, "otp_delivery_failed")
	case errors.As(err, &conflict):
		c.println(ctx, "register_conflict")
	default:
		for _, reason := range reasons(err) {
			c.printf(ctx, "error", map[string]any{"Message": reason})
		}
	}
}

// reasons flattens joined errors into one message each.
func reasons(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, reasons(e)...)
		}
		return out
	}
	return []string{err.Error()}
}

func confirmed(answer string) bool {
	switch strings.ToLower(answer) {
	case "y", "yes", "j", "ja":
		return true
	}
	return false
}

func endOfInput(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (c *Console) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (c *Console) prompt(ctx context.Context, key string) (string, error) {
	fmt.Fprint(c.out, i18n.T(ctx, key))
	return c.readLine()
}

func (c *Console) promptf(ctx context.Context, key string, data map[string]any) (string, error) {
	fmt.Fprint(c.out, i18n.TData(ctx, key, data))
	return c.readLine()
}

func (c *Console) promptPlural(ctx context.Context, key string, count int) (string, error) {
	fmt.Fprint(c.out, i18n.TPlural(ctx, key, count))
	return c.readLine()
}

func (c *Console) println(ctx context.Context, key string) {
	fmt.Fprintln(c.out, i18n.T(ctx, key))
}

func (c *Console) printf(ctx context.Context, key string, data map[string]any) {
	fmt.Fprintln(c.out, i18n.TData(ctx, key, data))
}

func (c *Console) rule(width int) {
	fmt.Fprintln(c.out, strings.Repeat("-", width))
}

func (c *Console) banner(ctx context.Context, key string, width int) {
	fmt.Fprintln(c.out)
	if width > 0 {
		fmt.Fprintln(c.out, strings.Repeat("=", width))
	}
	c.println(ctx, key)
	if width > 0 {
		fmt.Fprintln(c.out, strings.Repeat("=", width))
	}
}

func (c *Console) title(ctx context.Context, key string) {
	fmt.Fprintln(c.out)
	c.println(ctx, key)
	c.rule(narrowRule)
}
