// =============================================================================
// gst-tally - Transaction Classifier
// =============================================================================
//
// This module turns one raw processor statement row into a tagged Event.
// Classification depends only on the row and the processor's vocabulary
// (type names, status names, invoice prefix, column names), so the same row
// always yields the same event.
//
// CLASSIFICATION RULES:
//   - Pending status                        -> Ignored
//   - Payment type with completed status    -> Payment
//   - Withdrawal type                       -> Withdrawal
//   - Conversion type                       -> CurrencyConversion
//   - Reversal type                         -> Reversal
//   - Anything else                         -> Ignored
//
// A relevant row whose amount or date cannot be parsed is Ignored and a
// parse-error Diagnostic is returned with it.
//
// =============================================================================

package statement

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ecofemme/gst-tally/internal/config"
	"github.com/ecofemme/gst-tally/internal/csvparser"
	"github.com/ecofemme/gst-tally/internal/types"
)

// EventType tags a classified statement row.
type EventType int

const (
	Ignored EventType = iota
	Payment
	Withdrawal
	CurrencyConversion
	Reversal
)

func (t EventType) String() string {
	switch t {
	case Payment:
		return "Payment"
	case Withdrawal:
		return "Withdrawal"
	case CurrencyConversion:
		return "CurrencyConversion"
	case Reversal:
		return "Reversal"
	default:
		return "Ignored"
	}
}

// Event is one classified statement row. Events are values and are never
// modified after classification.
type Event struct {
	Type           EventType
	Currency       string
	Status         string
	Gross          decimal.Decimal
	OrderRef       string
	TransactionID  string
	ReferenceTxnID string
	Timestamp      time.Time

	// Row is the source line number.
	Row int
}

// Classifier classifies rows of one processor's statements.
type Classifier struct {
	cfg         config.ProcessorConfig
	payments    map[string]bool
	withdrawals map[string]bool
	conversions map[string]bool
	reversals   map[string]bool
}

// NewClassifier builds a classifier for a processor's vocabulary.
func NewClassifier(cfg config.ProcessorConfig) *Classifier {
	return &Classifier{
		cfg:         cfg,
		payments:    vocabulary(cfg.PaymentTypes),
		withdrawals: vocabulary(cfg.WithdrawalTypes),
		conversions: vocabulary(cfg.ConversionTypes),
		reversals:   vocabulary(cfg.ReversalTypes),
	}
}

func vocabulary(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.ToLower(strings.TrimSpace(n))] = true
	}
	return set
}

// Classify tags one row. The returned diagnostic is non-nil only when a
// relevant row had to be ignored because it could not be parsed.
func (c *Classifier) Classify(row csvparser.Row) (Event, *types.Diagnostic) {
	cols := c.cfg.Columns
	status := row.Get(cols.Status)
	event := Event{
		Type:           Ignored,
		Currency:       strings.ToUpper(row.Get(cols.Currency)),
		Status:         status,
		TransactionID:  row.Get(cols.TransactionID),
		ReferenceTxnID: row.Get(cols.ReferenceTxnID),
		OrderRef:       c.orderRef(row),
		Row:            row.Number,
	}

	if strings.EqualFold(status, c.cfg.PendingStatus) {
		return event, nil
	}

	kind := strings.ToLower(row.Get(cols.Type))
	var candidate EventType
	switch {
	case c.payments[kind]:
		if !strings.EqualFold(status, c.cfg.CompletedStatus) {
			return event, nil
		}
		candidate = Payment
	case c.withdrawals[kind]:
		candidate = Withdrawal
	case c.conversions[kind]:
		candidate = CurrencyConversion
	case c.reversals[kind]:
		candidate = Reversal
	default:
		return event, nil
	}

	gross, err := types.ParseAmount(row.Get(cols.Gross))
	if err != nil {
		return event, c.diagnostic(row, event.OrderRef, fmt.Sprintf("%s: bad gross amount %q", candidate, row.Get(cols.Gross)))
	}

	ts, err := c.parseTimestamp(row)
	if err != nil {
		return event, c.diagnostic(row, event.OrderRef, fmt.Sprintf("%s: %v", candidate, err))
	}

	event.Type = candidate
	event.Gross = gross
	event.Timestamp = ts
	return event, nil
}

// orderRef extracts the order id: the invoice number with the invoice
// prefix removed, falling back to the custom number.
func (c *Classifier) orderRef(row csvparser.Row) string {
	invoice := row.Get(c.cfg.Columns.InvoiceNumber)
	prefix := c.cfg.InvoicePrefix
	if invoice != "" && (prefix == "" || strings.HasPrefix(invoice, prefix)) {
		return strings.TrimPrefix(invoice, prefix)
	}
	return row.Get(c.cfg.Columns.CustomNumber)
}

func (c *Classifier) parseTimestamp(row csvparser.Row) (time.Time, error) {
	date := row.Get(c.cfg.Columns.Date)
	clock := row.Get(c.cfg.Columns.Time)
	layout := c.cfg.DateLayout

	if clock != "" {
		if ts, err := time.Parse(layout, date+" "+clock); err == nil {
			return ts, nil
		}
	}
	if ts, err := time.Parse(layout, date); err == nil {
		return ts, nil
	}
	dateLayout := layout
	if i := strings.Index(layout, " "); i > 0 {
		dateLayout = layout[:i]
	}
	ts, err := time.Parse(dateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q", strings.TrimSpace(date+" "+clock))
	}
	return ts, nil
}

func (c *Classifier) diagnostic(row csvparser.Row, orderRef, msg string) *types.Diagnostic {
	return &types.Diagnostic{
		Kind:    types.KindParseError,
		Row:     row.Number,
		OrderID: orderRef,
		Message: msg,
	}
}
