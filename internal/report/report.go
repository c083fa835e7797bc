// Package report writes the side reports of a run: orders that could not be
// booked for lack of a payout, the per-processor settlement audit and the
// cross-processor conflicts. Reports are CSV by default or XLSX.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/ecofemme/gst-tally/internal/orders"
	"github.com/ecofemme/gst-tally/internal/settlement"
)

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"

	dateLayout = "2006-01-02"
)

// Table is a report ready to be written. Cells hold strings, ints or
// decimals.
type Table struct {
	Sheet   string
	Headers []string
	Rows    [][]interface{}
}

// MissingPayoutTable lists foreign-currency orders with no settled amount.
func MissingPayoutTable(missing []orders.MissingPayout) Table {
	t := Table{
		Sheet:   "Missing Payouts",
		Headers: []string{"Order ID", "Date", "Currency", "Stated Total", "Customer", "Phone", "Email", "Reason"},
	}
	for _, m := range missing {
		t.Rows = append(t.Rows, []interface{}{
			m.OrderID, formatDate(m.Date), m.Currency, m.StatedTotal,
			m.Customer.Name, m.Customer.Phone, m.Customer.Email, m.Reason,
		})
	}
	return t
}

// AuditTable lists every queued payment of one processor's statements with
// its final state.
func AuditTable(processor string, sources []settlement.Source) Table {
	t := Table{
		Sheet: "Settlement Audit",
		Headers: []string{"Order ID", "Currency", "Gross", "Settled", "Rate",
			"Transaction ID", "Date", "Status", "Source File", "Row"},
	}
	for _, src := range sources {
		if src.Processor != processor || src.Result == nil {
			continue
		}
		file := filepath.Base(src.File)
		for _, a := range src.Result.Audit {
			var settled, rate interface{} = "", ""
			if a.IsSettled() {
				settled, rate = a.Settled, a.Rate.Round(6)
			}
			t.Rows = append(t.Rows, []interface{}{
				a.OrderID, a.Currency, a.Gross, settled, rate,
				a.TransactionID, formatDate(a.Date), a.Status.String(), file, a.Row,
			})
		}
	}
	return t
}

// ConflictTable lists orders settled by more than one processor.
func ConflictTable(conflicts []settlement.Conflict) Table {
	t := Table{
		Sheet:   "Conflicts",
		Headers: []string{"Order ID", "Kept Processor", "Kept Amount", "Rejected Processor", "Rejected Amount", "Rejected File"},
	}
	for _, c := range conflicts {
		t.Rows = append(t.Rows, []interface{}{
			c.OrderID, c.KeptProcessor, c.Kept, c.RejectedProcessor, c.Rejected, filepath.Base(c.RejectedFile),
		})
	}
	return t
}

// =============================================================================
// WRITING
// =============================================================================

// FileName appends the extension for format to base.
func FileName(base, format string) string {
	if strings.EqualFold(format, FormatXLSX) {
		return base + ".xlsx"
	}
	return base + ".csv"
}

// Write writes the table to path in the given format. An existing file is
// left alone unless force is set; written reports whether the file was
// (re)created.
func Write(path, format string, t Table, force bool) (written bool, err error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	switch strings.ToLower(format) {
	case FormatXLSX:
		err = writeXLSX(path, t)
	case FormatCSV, "":
		err = writeCSV(path, t)
	default:
		return false, fmt.Errorf("unsupported report format %q", format)
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func writeCSV(path string, t Table) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(t.Headers); err != nil {
		return err
	}
	record := make([]string, len(t.Headers))
	for _, row := range t.Rows {
		for i, cell := range row {
			record[i] = cellString(cell)
		}
		if err := w.Write(record[:len(row)]); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}

func writeXLSX(path string, t Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := t.Sheet
	if sheet == "" {
		sheet = "Report"
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	for col, h := range t.Headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for r, row := range t.Rows {
		for col, value := range row {
			cell, _ := excelize.CoordinatesToCellName(col+1, r+2)
			_ = f.SetCellValue(sheet, cell, cellValue(value))
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save report %s: %w", path, err)
	}
	return nil
}

// cellValue converts decimals to numbers so spreadsheets can sum them.
func cellValue(v interface{}) interface{} {
	if d, ok := v.(decimal.Decimal); ok {
		return d.InexactFloat64()
	}
	return v
}

func cellString(v interface{}) string {
	switch x := v.(type) {
	case decimal.Decimal:
		if x.Exponent() >= -2 {
			return x.StringFixed(2)
		}
		return x.String()
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}
