package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"assay-backoffice/internal/config"
	"assay-backoffice/internal/escalation"
	"assay-backoffice/internal/notify"
	"assay-backoffice/internal/storage"
)

func testApp() *App {
	return NewApp(&config.Config{
		Escalation: config.EscalationConfig{Delay: time.Minute, FireTimeout: time.Second},
		Export:     config.ExportConfig{MaxRows: 100},
	}, zerolog.Nop())
}

func sampleRates() []storage.RateRecord {
	reason := "too high"
	approver := "Ama"
	decided := time.Date(2024, 1, 9, 10, 0, 0, 0, time.UTC)
	return []storage.RateRecord{
		{
			Type: storage.RateTypeExchange, ItemID: "ex-1", ItemName: "X",
			Price:         decimal.RequireFromString("13.1"),
			WeekStartDate: time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC),
			WeekEndDate:   time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC),
			Status:        storage.StatusRejected, SubmittedByName: "Kofi",
			ApprovedByName: &approver, ApprovedAt: &decided, RejectionReason: &reason,
		},
		{
			Type: storage.RateTypeExchange, ItemID: "ex-1", ItemName: "X",
			Price:         decimal.RequireFromString("12.5"),
			WeekStartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			WeekEndDate:   time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC),
			Status:        storage.StatusApproved, SubmittedByName: "Kofi",
		},
	}
}

func TestWithinWeeksFiltersAndOrders(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)

	all := withinWeeks(sampleRates(), nil, nil)
	if len(all) != 2 || !all[0].WeekStartDate.Before(all[1].WeekStartDate) {
		t.Fatalf("expected oldest first, got %+v", all)
	}
	window := withinWeeks(sampleRates(), &from, &to)
	if len(window) != 1 || window[0].Price.String() != "12.5" {
		t.Fatalf("unexpected window %+v", window)
	}
}

func TestWriteRatesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "rates.csv")
	if err := writeRatesCSV(path, withinWeeks(sampleRates(), nil, nil)); err != nil {
		t.Fatalf("writeRatesCSV: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 || rows[0][0] != "week_start" {
		t.Fatalf("unexpected rows %v", rows)
	}
	if rows[2][6] != "REJECTED" || rows[2][10] != "too high" || rows[2][8] != "Ama" {
		t.Fatalf("unexpected rejected row %v", rows[2])
	}
}

func TestWriteRatesXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.xlsx")
	if err := writeRatesXLSX(path, withinWeeks(sampleRates(), nil, nil)); err != nil {
		t.Fatalf("writeRatesXLSX: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()

	header, err := f.GetCellValue(xlsxSheet, "F1")
	if err != nil || header != "price" {
		t.Fatalf("header F1 = %q, %v", header, err)
	}
	price, err := f.GetCellValue(xlsxSheet, "F2")
	if err != nil || price != "12.5" {
		t.Fatalf("price F2 = %q, %v", price, err)
	}
}

func TestWriteRatesPNG(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rates.png")
	if err := writeRatesPNG(path, sampleRates()); err != nil {
		t.Fatalf("writeRatesPNG: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		t.Fatalf("png not written: %v", err)
	}

	if err := writeRatesPNG(filepath.Join(dir, "single.png"), sampleRates()[:1]); err == nil {
		t.Fatal("a single week cannot be charted")
	}
}

func TestPrintRates(t *testing.T) {
	var buf bytes.Buffer
	if err := printRates(&buf, sampleRates()); err != nil {
		t.Fatalf("printRates: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "13.1000") || !strings.Contains(out, "too high") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	buf.Reset()
	if err := printRates(&buf, nil); err != nil || !strings.Contains(buf.String(), "no rates found") {
		t.Fatalf("empty output %q, %v", buf.String(), err)
	}
}

func TestPrintReadiness(t *testing.T) {
	var buf bytes.Buffer
	err := printReadiness(&buf, notify.Readiness{
		Roles: []string{"CEO"}, Total: 1, ValidPhone: 1,
		Users: []notify.RecipientReadiness{{UserID: "u1", Name: "Ama", Role: "CEO", Phone: "0244000001", State: notify.PhoneValid}},
	})
	if err != nil || !strings.Contains(buf.String(), "valid=1") {
		t.Fatalf("unexpected output %q, %v", buf.String(), err)
	}
}

func TestExportRequiresAnOutput(t *testing.T) {
	if err := testApp().Export(context.Background(), ExportOptions{}); err == nil {
		t.Fatal("expected error without outputs")
	}
}

func TestSimulateEscalationFires(t *testing.T) {
	out, err := testApp().SimulateEscalation(context.Background(), SimulateOptions{
		Exchange: "X",
		Price:    decimal.RequireFromString("12.5"),
		Delay:    20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("SimulateEscalation: %v", err)
	}
	if out == nil || out.Result != escalation.ResultSent {
		t.Fatalf("expected a sent escalation, got %+v", out)
	}
}

func TestSimulateApprovalBeatsEscalation(t *testing.T) {
	out, err := testApp().SimulateEscalation(context.Background(), SimulateOptions{
		Exchange:     "X",
		Price:        decimal.RequireFromString("12.5"),
		Delay:        time.Minute,
		ApproveAfter: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("SimulateEscalation: %v", err)
	}
	if out != nil {
		t.Fatalf("escalation should not fire, got %+v", out)
	}
}
