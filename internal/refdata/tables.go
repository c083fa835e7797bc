// =============================================================================
// gst-tally - Reference Data Tables
// =============================================================================
//
// This module loads the static reference data every voucher depends on:
//   - Ledger products: name, GST percentage, godown (warehouse)
//   - Standalone prices: used to split a bundled SKU across its products
//
// Tables may be CSV or XLSX. Any malformed table is a ReferenceDataError,
// which is fatal for the run: every monetary computation downstream depends
// on these values.
//
// =============================================================================

package refdata

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ecofemme/gst-tally/internal/csvparser"
	"github.com/ecofemme/gst-tally/internal/types"
	"github.com/ecofemme/gst-tally/internal/xlsxparser"
)

// Column names of the reference tables.
const (
	ColTallyName   = "Tally Name"
	ColGSTPercent  = "GST Percentage"
	ColGodown      = "Godown Name"
	ColNormalPrice = "Normal Price"
	ColSKU         = "SKU"
)

var hundred = decimal.NewFromInt(100)

// ReferenceDataError describes a malformed reference table.
type ReferenceDataError struct {
	File    string
	Row     int
	Message string
	Err     error
}

func (e *ReferenceDataError) Error() string {
	msg := e.File
	if e.Row > 0 {
		msg += fmt.Sprintf(" row %d", e.Row)
	}
	msg += ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ReferenceDataError) Unwrap() error { return e.Err }

// Product is a ledger product as configured in the accounting system.
type Product struct {
	Name string

	// TaxRate is a fraction, 0.18 for 18%.
	TaxRate decimal.Decimal

	// Warehouse is the godown name. Products without one are posted as flat
	// ledger entries rather than inventory lines.
	Warehouse string
}

// IsInventory reports whether the product is stock-tracked.
func (p Product) IsInventory() bool {
	return p.Warehouse != ""
}

// loadTable reads a CSV or XLSX reference table and checks its columns.
func loadTable(path string, required ...string) (*csvparser.CSVData, error) {
	settings := csvparser.Settings{RequiredHeaders: required}

	var (
		data *csvparser.CSVData
		err  error
	)
	if xlsxparser.IsWorkbook(path) {
		data, err = xlsxparser.ReadTable(path, "", settings)
	} else {
		data, err = csvparser.Parse(path, settings)
	}
	if err != nil {
		return nil, &ReferenceDataError{File: path, Message: "cannot read table", Err: err}
	}
	if len(data.Rows) == 0 {
		return nil, &ReferenceDataError{File: path, Message: "table has no rows"}
	}
	return data, nil
}

// LoadProducts loads the ledger product table.
func LoadProducts(path string) (map[string]Product, error) {
	data, err := loadTable(path, ColTallyName, ColGSTPercent, ColGodown)
	if err != nil {
		return nil, err
	}

	products := make(map[string]Product, len(data.Rows))
	for _, row := range data.Rows {
		name := row.Get(ColTallyName)
		if name == "" {
			return nil, &ReferenceDataError{File: path, Row: row.Number, Message: "empty Tally Name"}
		}
		rate, err := ParsePercentage(row.Get(ColGSTPercent))
		if err != nil {
			return nil, &ReferenceDataError{File: path, Row: row.Number, Message: fmt.Sprintf("bad GST percentage for %q", name), Err: err}
		}
		products[name] = Product{
			Name:      name,
			TaxRate:   rate,
			Warehouse: row.Get(ColGodown),
		}
	}
	return products, nil
}

// LoadPrices loads the standalone price table. Every price must be positive.
func LoadPrices(path string) (map[string]decimal.Decimal, error) {
	data, err := loadTable(path, ColTallyName, ColNormalPrice)
	if err != nil {
		return nil, err
	}

	prices := make(map[string]decimal.Decimal, len(data.Rows))
	for _, row := range data.Rows {
		name := row.Get(ColTallyName)
		if name == "" {
			return nil, &ReferenceDataError{File: path, Row: row.Number, Message: "empty Tally Name"}
		}
		price, err := types.ParseAmount(row.Get(ColNormalPrice))
		if err != nil {
			return nil, &ReferenceDataError{File: path, Row: row.Number, Message: fmt.Sprintf("bad price for %q", name), Err: err}
		}
		if !price.IsPositive() {
			return nil, &ReferenceDataError{File: path, Row: row.Number, Message: fmt.Sprintf("price for %q must be positive", name)}
		}
		prices[name] = price
	}
	return prices, nil
}

// ParsePercentage turns "18%" or "18" into 0.18. Values outside 0..100 are
// rejected.
func ParsePercentage(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("empty percentage")
	}
	pct, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid percentage %q", raw)
	}
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return decimal.Zero, fmt.Errorf("percentage %q out of range", raw)
	}
	return pct.Div(hundred), nil
}
