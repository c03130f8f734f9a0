package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"assay-backoffice/internal/app"
)

var (
	showLimit  int
	showType   string
	showItemID string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent rate records",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit:  showLimit,
			Type:   showType,
			ItemID: showItemID,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of records to display")
	showCmd.Flags().StringVar(&showType, "type", "", "Filter by type (COMMODITY or EXCHANGE)")
	showCmd.Flags().StringVar(&showItemID, "item", "", "Filter by exchange or commodity id")
}
