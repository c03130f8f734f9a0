package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"assay-backoffice/internal/auth"
	"assay-backoffice/internal/notify"
)

// IssueToken signs a bearer token for an existing, active user.
func (a *App) IssueToken(ctx context.Context, userID string) (string, error) {
	tokens, err := a.newTokens()
	if err != nil {
		return "", err
	}

	store, closeStore, err := a.requireStore(ctx, "issue tokens")
	if err != nil {
		return "", err
	}
	defer closeStore()

	user, err := store.GetUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load user %s: %w", userID, err)
	}
	if !user.IsActive {
		return "", fmt.Errorf("user %s is not active", userID)
	}

	token, err := tokens.Issue(user.ID, user.Role)
	if err != nil {
		return "", err
	}
	a.Logger.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Dur("ttl", a.Config.Auth.TokenTTL).Msg("issued token")
	return token, nil
}

// SMSCheck prints SMS reachability for roles.
func (a *App) SMSCheck(ctx context.Context, roles auth.RoleSet) error {
	store, closeStore, err := a.requireStore(ctx, "check sms readiness")
	if err != nil {
		return err
	}
	defer closeStore()

	readiness, err := a.newNotifier(store).CheckSMSReadiness(ctx, roles)
	if err != nil {
		return err
	}
	return printReadiness(os.Stdout, readiness)
}

func printReadiness(out io.Writer, r notify.Readiness) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "User\tName\tRole\tPhone\tState")
	for _, u := range r.Users {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n", u.UserID, u.Name, u.Role, orDash(u.Phone), u.State)
	}
	fmt.Fprintf(writer, "\nroles=%v total=%d valid=%d invalid=%d missing=%d\n", r.Roles, r.Total, r.ValidPhone, r.InvalidPhone, r.NoPhone)
	return writer.Flush()
}

// NotifyTest sends one SMS and/or email through the configured providers.
func (a *App) NotifyTest(ctx context.Context, opts NotifyTestOptions) error {
	if opts.Phone == "" && opts.Email == "" {
		return errors.New("at least one of --phone or --email must be provided")
	}
	if opts.Message == "" {
		opts.Message = "Test notification from the assay back office."
	}

	notifier := a.newNotifier(nil)
	var failed []string
	if opts.Phone != "" && !notifier.SendSMS(ctx, opts.Phone, opts.Message) {
		failed = append(failed, "sms")
	}
	if opts.Email != "" && !notifier.SendEmail(ctx, opts.Email, "Test notification", opts.Message) {
		failed = append(failed, "email")
	}
	if len(failed) > 0 {
		return fmt.Errorf("delivery failed for %v", failed)
	}
	return nil
}
