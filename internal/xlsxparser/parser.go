// =============================================================================
// gst-tally - XLSX Table Parser
// =============================================================================
//
// This module reads reference tables kept as Excel workbooks (product
// catalog, SKU mapping, price list). A worksheet is read into the same
// header-keyed row shape the CSV parser produces, so callers never care
// which format a table was saved in.
//
// SHEET SELECTION:
//   An empty sheet name reads the first sheet that does not start with "_".
//   Sheets starting with "_" are treated as notes and never read implicitly.
//
// =============================================================================

package xlsxparser

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ecofemme/gst-tally/internal/csvparser"
)

// ReadTable reads one worksheet of a workbook into a table.
func ReadTable(path, sheet string, settings csvparser.Settings) (*csvparser.CSVData, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheetName, err := selectSheet(f, sheet)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows of sheet %q: %w", sheetName, err)
	}

	return csvparser.FromRecords(rows, settings, path)
}

func selectSheet(f *excelize.File, sheet string) (string, error) {
	sheets := f.GetSheetList()
	if sheet != "" {
		for _, name := range sheets {
			if strings.EqualFold(name, sheet) {
				return name, nil
			}
		}
		return "", fmt.Errorf("sheet %q not found", sheet)
	}
	for _, name := range sheets {
		if !strings.HasPrefix(name, "_") {
			return name, nil
		}
	}
	return "", fmt.Errorf("workbook has no sheets")
}

// IsWorkbook reports whether a path names an Excel workbook.
func IsWorkbook(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".xlsx") || strings.HasSuffix(lower, ".xlsm")
}
