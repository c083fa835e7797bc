// =============================================================================
// gst-tally - Voucher Validation
// =============================================================================
//
// Integrity checks run on assembled vouchers before any XML is written.
//
// CHECKS:
//   - balance:        entries must net to exactly 0.00                (error)
//   - rounding_off:   rounding-off entry within the tolerance         (error)
//   - party_ledger:   party ledger must be named                      (error)
//   - quantity:       inventory quantities must be positive           (error)
//   - sales_lines:    at least one product line                       (warning)
//
// Errors are collected, not returned on the first failure. A voucher with
// any "error" severity finding is not exported.
//
// =============================================================================

package validation

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ecofemme/gst-tally/internal/voucher"
)

const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// =============================================================================
// VALIDATION ERROR TYPES
// =============================================================================

// ValidationError represents a single integrity finding.
type ValidationError struct {
	// Severity is "error" (voucher rejected) or "warning".
	Severity string

	// Rule is the check that failed.
	Rule string

	// OrderID is the order the voucher was built from.
	OrderID string

	// Ledger is the entry's ledger, when the finding concerns one entry.
	Ledger string

	// Value is the offending value.
	Value string

	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	s := fmt.Sprintf("[%s] Order %s, rule '%s': %s", strings.ToUpper(e.Severity), e.OrderID, e.Rule, e.Message)
	if e.Ledger != "" {
		s += fmt.Sprintf(" (ledger: '%s')", e.Ledger)
	}
	if e.Value != "" {
		s += fmt.Sprintf(" (value: '%s')", e.Value)
	}
	return s
}

// IsFatal reports whether the finding rejects the voucher.
func (e *ValidationError) IsFatal() bool {
	return e.Severity == SeverityError
}

// =============================================================================
// VALIDATION RESULT
// =============================================================================

// ValidationResult contains the results of validation.
type ValidationResult struct {
	// IsValid is true if there are no fatal errors.
	IsValid bool

	Errors       []*ValidationError
	ErrorCount   int
	WarningCount int

	VouchersValidated int

	// Rejected holds the ids of vouchers with at least one fatal finding.
	Rejected map[string]bool
}

// =============================================================================
// VALIDATOR
// =============================================================================

// Options controls validation.
type Options struct {
	// TreatWarningsAsErrors makes warnings reject their voucher too.
	TreatWarningsAsErrors bool
}

// Validator runs the integrity checks.
type Validator struct {
	options Options
}

// NewValidator creates a Validator with the given options.
func NewValidator(options Options) *Validator {
	return &Validator{options: options}
}

// Validate checks every voucher and returns the findings.
func Validate(vouchers []*voucher.Voucher, options Options) []*ValidationError {
	return NewValidator(options).ValidateAll(vouchers).Errors
}

// ValidateAll checks every voucher and returns a detailed result.
func (v *Validator) ValidateAll(vouchers []*voucher.Voucher) *ValidationResult {
	result := &ValidationResult{
		IsValid:           true,
		Errors:            make([]*ValidationError, 0),
		VouchersValidated: len(vouchers),
		Rejected:          make(map[string]bool),
	}

	for _, vch := range vouchers {
		for _, err := range v.ValidateVoucher(vch) {
			result.Errors = append(result.Errors, err)

			if err.IsFatal() {
				result.ErrorCount++
				result.IsValid = false
				result.Rejected[vch.OrderID] = true
			} else {
				result.WarningCount++

				if v.options.TreatWarningsAsErrors {
					result.IsValid = false
					result.Rejected[vch.OrderID] = true
				}
			}
		}
	}

	return result
}

// ValidateVoucher runs every check on one voucher.
func (v *Validator) ValidateVoucher(vch *voucher.Voucher) []*ValidationError {
	var errors []*ValidationError
	add := func(severity, rule, ledger, value, msg string) {
		errors = append(errors, &ValidationError{
			Severity: severity,
			Rule:     rule,
			OrderID:  vch.OrderID,
			Ledger:   ledger,
			Value:    value,
			Message:  msg,
		})
	}

	if net := vch.Net(); !net.IsZero() {
		add(SeverityError, "balance", "", net.StringFixed(2), "voucher entries do not net to zero")
	}
	if vch.ExceedsTolerance {
		add(SeverityError, "rounding_off", "", vch.RoundingOff.StringFixed(2), "rounding off exceeds tolerance")
	}
	if strings.TrimSpace(vch.PartyLedger) == "" {
		add(SeverityError, "party_ledger", "", "", "party ledger is empty")
	}
	if vch.SalesLines() == 0 {
		add(SeverityWarning, "sales_lines", "", "", "voucher has no product lines")
	}

	for _, e := range vch.Entries {
		if e.Inventory != nil && e.Inventory.Quantity <= 0 {
			add(SeverityError, "quantity", e.Ledger, fmt.Sprintf("%d", e.Inventory.Quantity),
				fmt.Sprintf("stock item %q has non-positive quantity", e.Inventory.StockItem))
		}
	}

	return errors
}

// =============================================================================
// ERROR FORMATTING
// =============================================================================

// FormatErrors formats validation errors for display or logging.
func FormatErrors(errors []*ValidationError) string {
	if len(errors) == 0 {
		return "No validation errors."
	}

	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("Validation completed with %d finding(s):\n\n", len(errors)))

	for i, err := range errors {
		builder.WriteString(fmt.Sprintf("%d. %s\n", i+1, err.Error()))
	}

	return builder.String()
}

// WriteErrorLog writes validation errors for one source file to a log file.
func WriteErrorLog(errors []*ValidationError, source, filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create validation log: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	fmt.Fprintf(writer, "Validation log for %s\n", source)
	fmt.Fprintf(writer, "Generated: %s\n\n", time.Now().Format(time.RFC3339))
	writer.WriteString(FormatErrors(errors))
	return writer.Flush()
}
