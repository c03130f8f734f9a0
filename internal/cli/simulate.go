package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"assay-backoffice/internal/app"
)

var (
	simulateExchange     string
	simulatePrice        string
	simulateDelay        time.Duration
	simulateApproveAfter time.Duration
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-escalation",
	Short: "Run a submission through the approval workflow in memory",
	RunE: func(cmd *cobra.Command, args []string) error {
		price, err := decimal.NewFromString(simulatePrice)
		if err != nil {
			return fmt.Errorf("invalid --price value: %w", err)
		}
		if simulateDelay <= 0 {
			return errors.New("--delay must be greater than zero")
		}

		out, err := getApp().SimulateEscalation(cmd.Context(), app.SimulateOptions{
			Exchange:     simulateExchange,
			Price:        price,
			Delay:        simulateDelay,
			ApproveAfter: simulateApproveAfter,
		})
		if err != nil {
			return err
		}
		if out == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "approved before the escalation fired")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "escalation %s for %s\n", out.Result, out.RateID)
		return nil
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateExchange, "exchange", "USD", "Exchange name used in messages")
	simulateCmd.Flags().StringVar(&simulatePrice, "price", "12.5", "Submitted rate")
	simulateCmd.Flags().DurationVar(&simulateDelay, "delay", 5*time.Second, "Escalation delay")
	simulateCmd.Flags().DurationVar(&simulateApproveAfter, "approve-after", 0, "Approve after this long (0 lets the escalation fire)")
}
