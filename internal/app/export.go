package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/xuri/excelize/v2"

	"assay-backoffice/internal/storage"
)

const xlsxSheet = "Sheet1"

var exportHeader = []string{"week_start", "week_end", "type", "item_id", "item", "price", "status", "submitted_by", "decided_by", "decided_at", "rejection_reason"}

// Export writes rate history as CSV, XLSX and/or a PNG price chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.XLSXPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv, --xlsx or --png must be provided")
	}
	if opts.From != nil && opts.To != nil && !opts.From.Before(*opts.To) {
		return errors.New("from must be before to")
	}

	store, closeStore, err := a.requireStore(ctx, "export")
	if err != nil {
		return err
	}
	defer closeStore()

	filter := storage.RateFilter{ItemID: opts.ItemID, Limit: a.Config.ResolveMaxRows(opts.MaxRows)}
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
	recs = withinWeeks(recs, opts.From, opts.To)
	if len(recs) == 0 {
		a.Logger.Info().Msg("no rates found for export window")
		return nil
	}
	a.Logger.Info().Int("rows", len(recs)).Msg("exporting rates")

	if opts.CSVPath != "" {
		if err := writeRatesCSV(opts.CSVPath, recs); err != nil {
			return err
		}
	}
	if opts.XLSXPath != "" {
		if err := writeRatesXLSX(opts.XLSXPath, recs); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeRatesPNG(opts.PNGPath, recs); err != nil {
			return err
		}
	}
	return nil
}

// withinWeeks keeps records whose week starts in [from, to) and orders them oldest first.
func withinWeeks(recs []storage.RateRecord, from, to *time.Time) []storage.RateRecord {
	out := make([]storage.RateRecord, 0, len(recs))
	for _, rec := range recs {
		if from != nil && rec.WeekStartDate.Before(*from) {
			continue
		}
		if to != nil && !rec.WeekStartDate.Before(*to) {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].WeekStartDate.Equal(out[j].WeekStartDate) {
			return out[i].WeekStartDate.Before(out[j].WeekStartDate)
		}
		return itemLabel(out[i]) < itemLabel(out[j])
	})
	return out
}

func exportRow(rec storage.RateRecord) []string {
	decidedAt := ""
	if rec.ApprovedAt != nil {
		decidedAt = rec.ApprovedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		rec.WeekStartDate.Format("2006-01-02"),
		rec.WeekEndDate.Format("2006-01-02"),
		string(rec.Type),
		rec.ItemID,
		rec.ItemName,
		rec.Price.String(),
		string(rec.Status),
		rec.SubmittedByName,
		deref(rec.ApprovedByName),
		decidedAt,
		deref(rec.RejectionReason),
	}
}

func writeRatesCSV(path string, recs []storage.RateRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(exportHeader); err != nil {
		return err
	}
	for _, rec := range recs {
		if err := writer.Write(exportRow(rec)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeRatesXLSX(path string, recs []storage.RateRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	header := make([]any, len(exportHeader))
	for i, h := range exportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(xlsxSheet, "A1", &header); err != nil {
		return fmt.Errorf("write xlsx header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create xlsx style: %w", err)
	}
	if err := f.SetRowStyle(xlsxSheet, 1, 1, bold); err != nil {
		return fmt.Errorf("style xlsx header: %w", err)
	}

	for i, rec := range recs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := exportRow(rec)
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		// Prices go in as numbers so spreadsheets can chart them.
		values[5] = rec.Price.InexactFloat64()
		if err := f.SetSheetRow(xlsxSheet, cell, &values); err != nil {
			return fmt.Errorf("write xlsx row %d: %w", i+2, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save xlsx: %w", err)
	}
	return nil
}

func writeRatesPNG(path string, recs []storage.RateRecord) error {
	series := make(map[string]*chart.TimeSeries)
	names := make([]string, 0)
	for _, rec := range recs {
		name := itemLabel(rec)
		ts, ok := series[name]
		if !ok {
			ts = &chart.TimeSeries{Name: name}
			series[name] = ts
			names = append(names, name)
		}
		ts.XValues = append(ts.XValues, rec.WeekStartDate)
		ts.YValues = append(ts.YValues, rec.Price.InexactFloat64())
	}

	weeks := make(map[time.Time]struct{})
	for _, rec := range recs {
		weeks[rec.WeekStartDate] = struct{}{}
	}
	if len(weeks) < 2 {
		return errors.New("png export needs rates from at least two weeks")
	}

	if err := ensureDir(path); err != nil {
		return err
	}

	sort.Strings(names)
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Price",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.2f")
			},
		},
	}
	for _, name := range names {
		graph.Series = append(graph.Series, *series[name])
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
