package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"assay-backoffice/internal/app"
	"assay-backoffice/internal/service"
)

var (
	exportType     string
	exportItemID   string
	exportFrom     string
	exportTo       string
	exportCSVPath  string
	exportXLSXPath string
	exportPNGPath  string
	exportMaxRows  int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export rate history as CSV, XLSX and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			Type:     exportType,
			ItemID:   exportItemID,
			CSVPath:  exportCSVPath,
			XLSXPath: exportXLSXPath,
			PNGPath:  exportPNGPath,
			MaxRows:  exportMaxRows,
		}

		if exportFrom != "" {
			from, err := time.Parse(service.DateLayout, exportFrom)
			if err != nil {
				return fmt.Errorf("invalid --from value: %w", err)
			}
			opts.From = &from
		}

		if exportTo != "" {
			to, err := time.Parse(service.DateLayout, exportTo)
			if err != nil {
				return fmt.Errorf("invalid --to value: %w", err)
			}
			opts.To = &to
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportType, "type", "", "Filter by type (COMMODITY or EXCHANGE)")
	exportCmd.Flags().StringVar(&exportItemID, "item", "", "Filter by exchange or commodity id")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "First week start (YYYY-MM-DD, inclusive)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "Last week start (YYYY-MM-DD, exclusive)")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().StringVar(&exportXLSXPath, "xlsx", "", "Path to write an Excel workbook")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG price chart")
	exportCmd.Flags().IntVar(&exportMaxRows, "max-rows", 0, "Maximum records to export (defaults to config)")
}
