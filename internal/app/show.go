package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"assay-backoffice/internal/storage"
)

// Show prints recent rate records.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.requireStore(ctx, "show rates")
	if err != nil {
		return err
	}
	defer closeStore()

	filter := storage.RateFilter{ItemID: opts.ItemID, Limit: opts.Limit}
	if opts.Type != "" {
		typ, err := storage.ParseRateType(opts.Type)
		if err != nil {
			return err
		}
		filter.Type = typ
	}

	recs, err := store.ListRates(ctx, filter)
	if err != nil {
		return err
	}
	return printRates(os.Stdout, recs)
}

func printRates(out io.Writer, recs []storage.RateRecord) error {
	if len(recs) == 0 {
		_, err := fmt.Fprintln(out, "no rates found")
		return err
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Week\tType\tItem\tPrice\tStatus\tSubmitted By\tDecided By\tReason")
	for _, rec := range recs {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.WeekStartDate.Format("2006-01-02"),
			rec.Type,
			itemLabel(rec),
			rec.Price.StringFixed(4),
			rec.Status,
			orDash(rec.SubmittedByName),
			orDash(deref(rec.ApprovedByName)),
			sanitizeInline(deref(rec.RejectionReason)),
		)
	}
	return writer.Flush()
}

func itemLabel(rec storage.RateRecord) string {
	if rec.ItemName != "" {
		return rec.ItemName
	}
	return rec.ItemID
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
