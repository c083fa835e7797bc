// =============================================================================
// gst-tally - Shared Types
// =============================================================================
//
// This package contains types shared across the pipeline packages to avoid
// import cycles. Types defined here are used by:
//   - statement
//   - settlement
//   - orders
//   - voucher
//   - report
//
// All money is carried as shopspring/decimal values. Floats never touch an
// amount between parsing and XML generation.
//
// =============================================================================

package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// MoneyPlaces is the number of decimal places every posted amount carries.
const MoneyPlaces = 2

// Cent is the smallest representable currency unit.
var Cent = decimal.New(1, -MoneyPlaces)

// ErrEmptyAmount is returned by ParseAmount for a blank cell.
var ErrEmptyAmount = errors.New("empty amount")

// ParseAmount parses a monetary cell. Thousands separators and surrounding
// whitespace are accepted; anything else non-numeric is an error.
func ParseAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	if cleaned == "" {
		return decimal.Zero, ErrEmptyAmount
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return d, nil
}

// ParseOptionalAmount is ParseAmount with blank cells read as zero.
func ParseOptionalAmount(raw string) (decimal.Decimal, error) {
	d, err := ParseAmount(raw)
	if errors.Is(err, ErrEmptyAmount) {
		return decimal.Zero, nil
	}
	return d, err
}

// RoundMoney rounds half away from zero to MoneyPlaces. For the positive
// amounts settlement works with this is round-half-up.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// FormatMoney renders an amount with exactly two decimals.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(MoneyPlaces)
}

// =============================================================================
// DIAGNOSTICS
// =============================================================================

// DiagnosticKind classifies a non-fatal problem found while processing.
type DiagnosticKind string

const (
	// KindParseError is a row that could not be parsed and was skipped.
	KindParseError DiagnosticKind = "parse_error"

	// KindUnresolved is a payment that was never converted in its statement.
	KindUnresolved DiagnosticKind = "unresolved"

	// KindConflict is an order id seen with two different settled amounts.
	KindConflict DiagnosticKind = "conflict"

	// KindMissingPayout is a foreign-currency order with no settled amount.
	KindMissingPayout DiagnosticKind = "missing_payout"

	// KindSkippedLine is an order line left out of its voucher.
	KindSkippedLine DiagnosticKind = "skipped_line"
)

// Diagnostic is a recoverable problem tied to a file, row or order.
type Diagnostic struct {
	Kind    DiagnosticKind
	File    string
	Row     int
	OrderID string
	Message string
}

// String formats the diagnostic for logs and error files.
func (d Diagnostic) String() string {
	var b strings.Builder
	b.WriteString(string(d.Kind))
	if d.File != "" {
		b.WriteString(" ")
		b.WriteString(d.File)
	}
	if d.Row > 0 {
		fmt.Fprintf(&b, " row %d", d.Row)
	}
	if d.OrderID != "" {
		fmt.Fprintf(&b, " order %s", d.OrderID)
	}
	b.WriteString(": ")
	b.WriteString(d.Message)
	return b.String()
}
