package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"assay-backoffice/internal/app"
	"assay-backoffice/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue a bearer token for an active user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := getApp().IssueToken(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var smsCheckRoles []string

var smsCheckCmd = &cobra.Command{
	Use:   "sms-check",
	Short: "Report which users in the given roles can receive SMS",
	RunE: func(cmd *cobra.Command, args []string) error {
		roles := make([]auth.Role, 0, len(smsCheckRoles))
		for _, name := range smsCheckRoles {
			role, err := auth.ParseRole(name)
			if err != nil {
				return err
			}
			roles = append(roles, role)
		}
		return getApp().SMSCheck(cmd.Context(), auth.NewRoleSet(roles...))
	},
}

var (
	notifyPhone   string
	notifyEmail   string
	notifyMessage string
)

var notifyTestCmd = &cobra.Command{
	Use:   "notify-test",
	Short: "Send a single test SMS and/or email",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().NotifyTest(cmd.Context(), app.NotifyTestOptions{
			Phone:   strings.TrimSpace(notifyPhone),
			Email:   strings.TrimSpace(notifyEmail),
			Message: notifyMessage,
		})
	},
}

func init() {
	smsCheckCmd.Flags().StringSliceVar(&smsCheckRoles, "role", auth.RateSubmissionRecipients.Strings(), "Roles to check (repeatable or comma separated)")

	notifyTestCmd.Flags().StringVar(&notifyPhone, "phone", "", "Phone number to text")
	notifyTestCmd.Flags().StringVar(&notifyEmail, "email", "", "Address to email")
	notifyTestCmd.Flags().StringVar(&notifyMessage, "message", "", "Message body")
}
