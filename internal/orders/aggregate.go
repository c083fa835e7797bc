// =============================================================================
// gst-tally - Order Line Aggregator
// =============================================================================
//
// This module groups order export rows (one row per order line) into
// per-order records ready for voucher assembly:
//
//   1. Keep only rows with the completed status
//   2. Group by order id, in order of first appearance
//   3. Take date, customer, country, total, currency, shipping and fee
//      from the first row of each order
//   4. Resolve each line's SKU to its ledger products
//   5. For a foreign-currency order, rescale every amount to the settled
//      local amount, or defer the order to the missing-payout report
//
// A row that cannot be parsed skips its whole order: a voucher built from a
// partial order would not balance against the order total.
//
// =============================================================================

package orders

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ecofemme/gst-tally/internal/config"
	"github.com/ecofemme/gst-tally/internal/csvparser"
	"github.com/ecofemme/gst-tally/internal/types"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// SkuLookup resolves a SKU to ledger product names.
type SkuLookup interface {
	Resolve(sku string) ([]string, bool)
}

// suggester is implemented by lookups that can propose a near-miss SKU.
type suggester interface {
	Suggest(sku string) (string, bool)
}

// SettlementLookup returns the settled local amount of an order, and
// whether the processor refunded it.
type SettlementLookup interface {
	Lookup(orderID string) (decimal.Decimal, bool)
	Refunded(orderID string) bool
}

// Missing-payout reasons.
const (
	ReasonNoSettlement = "no settled amount"
	ReasonRefunded     = "refunded at processor"
	ReasonBadTotal     = "order total is not positive"
)

// =============================================================================
// ORDER STRUCTURES
// =============================================================================

// Line is one order line.
type Line struct {
	SKU      string
	Products []string
	Quantity int

	// ItemCost is the tax-inclusive unit cost, in local currency once the
	// order has been rescaled.
	ItemCost decimal.Decimal

	Row int
}

// Customer is the billing contact used in narrations and reports.
type Customer struct {
	Name  string
	Phone string
	Email string
}

// Order is one completed order ready for voucher assembly.
type Order struct {
	ID          string
	Date        time.Time
	Customer    Customer
	Country     string
	Domestic    bool
	PartyLedger string

	// Currency is the currency the order was placed in.
	Currency string

	// StatedTotal is the order total as exported, in Currency.
	StatedTotal decimal.Decimal

	// Amount is the total the voucher posts: the settled local amount for a
	// foreign-currency order, otherwise StatedTotal.
	Amount decimal.Decimal

	Shipping decimal.Decimal
	Fee      decimal.Decimal

	// Ratio is settled / stated for a rescaled order, zero otherwise.
	Ratio decimal.Decimal

	Narration string
	Lines     []Line
}

// Rescaled reports whether the order was converted to local currency.
func (o Order) Rescaled() bool {
	return !o.Ratio.IsZero()
}

// MissingPayout is a foreign-currency order with no settled amount.
type MissingPayout struct {
	OrderID     string
	Date        time.Time
	Currency    string
	StatedTotal decimal.Decimal
	Customer    Customer
	Reason      string
}

// Result is the outcome of aggregating one order export.
type Result struct {
	Orders      []Order
	Missing     []MissingPayout
	Diagnostics []types.Diagnostic

	// Skipped counts orders dropped for row-level parse errors.
	Skipped int
}

// =============================================================================
// AGGREGATOR
// =============================================================================

// Aggregator builds orders from order export rows.
type Aggregator struct {
	Columns         config.OrderColumns
	Ledgers         config.LedgerNames
	LocalCurrency   string
	DomesticCountry string
	Skus            SkuLookup
	Settlements     SettlementLookup
}

// NewAggregator builds an aggregator from the main configuration.
func NewAggregator(cfg *config.MainConfig, skus SkuLookup, settlements SettlementLookup) *Aggregator {
	return &Aggregator{
		Columns:         cfg.OrderColumns,
		Ledgers:         cfg.Ledgers,
		LocalCurrency:   cfg.LocalCurrency,
		DomesticCountry: cfg.DomesticCountry,
		Skus:            skus,
		Settlements:     settlements,
	}
}

type pending struct {
	order  Order
	failed bool
}

// Aggregate groups the rows of an order export into orders.
func (a *Aggregator) Aggregate(data *csvparser.CSVData, log *logrus.Entry) *Result {
	file := filepath.Base(data.SourceFile)
	res := &Result{}

	byID := make(map[string]*pending)
	var sequence []*pending

	fail := func(p *pending, row int, msg string) {
		if !p.failed {
			p.failed = true
			res.Skipped++
		}
		log.WithFields(logrus.Fields{"order_id": p.order.ID, "row": row}).Warn(msg)
		res.Diagnostics = append(res.Diagnostics, types.Diagnostic{
			Kind: types.KindParseError, File: file, Row: row, OrderID: p.order.ID, Message: msg,
		})
	}

	completed := csvparser.FilterRows(data, func(r csvparser.Row) bool {
		return strings.EqualFold(r.Get(a.Columns.Status), a.Columns.CompletedStatus)
	})

	for _, row := range completed {
		id := row.Get(a.Columns.OrderID)
		if id == "" {
			res.Diagnostics = append(res.Diagnostics, types.Diagnostic{
				Kind: types.KindParseError, File: file, Row: row.Number, Message: "row without order id",
			})
			continue
		}

		p, ok := byID[id]
		if !ok {
			p = &pending{order: Order{ID: id}}
			byID[id] = p
			sequence = append(sequence, p)
			if err := a.readHeader(&p.order, row); err != nil {
				fail(p, row.Number, err.Error())
			}
		}
		if p.failed {
			continue
		}

		line, err := a.readLine(row)
		if err != nil {
			fail(p, row.Number, err.Error())
			continue
		}

		products, found := a.Skus.Resolve(line.SKU)
		if !found {
			msg := fmt.Sprintf("SKU %q not found in mapping, line skipped", line.SKU)
			if s, ok := a.Skus.(suggester); ok && line.SKU != "" {
				if near, ok := s.Suggest(line.SKU); ok {
					msg += fmt.Sprintf(" (did you mean %q?)", near)
				}
			}
			log.WithFields(logrus.Fields{"order_id": id, "row": row.Number}).Warn(msg)
			res.Diagnostics = append(res.Diagnostics, types.Diagnostic{
				Kind: types.KindSkippedLine, File: file, Row: row.Number, OrderID: id, Message: msg,
			})
			continue
		}
		line.Products = products
		p.order.Lines = append(p.order.Lines, line)
	}

	for _, p := range sequence {
		if p.failed {
			continue
		}
		order := p.order
		if order.Currency == a.LocalCurrency {
			order.Amount = order.StatedTotal
			res.Orders = append(res.Orders, order)
			continue
		}

		settled, ok := a.Settlements.Lookup(order.ID)
		if !ok {
			reason := ReasonNoSettlement
			if a.Settlements.Refunded(order.ID) {
				reason = ReasonRefunded
			}
			res.Missing = append(res.Missing, missing(order, reason))
			res.Diagnostics = append(res.Diagnostics, types.Diagnostic{
				Kind: types.KindMissingPayout, File: file, OrderID: order.ID,
				Message: fmt.Sprintf("%s %s order: %s", types.FormatMoney(order.StatedTotal), order.Currency, reason),
			})
			continue
		}
		if !order.StatedTotal.IsPositive() {
			res.Missing = append(res.Missing, missing(order, ReasonBadTotal))
			continue
		}
		rescale(&order, settled)
		res.Orders = append(res.Orders, order)
	}

	return res
}

// readHeader fills order-level fields from an order's first row.
func (a *Aggregator) readHeader(o *Order, row csvparser.Row) error {
	cols := a.Columns

	date, err := time.Parse(cols.DateLayout, row.Get(cols.Date))
	if err != nil {
		return fmt.Errorf("bad order date %q", row.Get(cols.Date))
	}
	o.Date = date

	total, err := types.ParseAmount(row.Get(cols.Total))
	if err != nil {
		return fmt.Errorf("bad order total: %v", err)
	}
	o.StatedTotal = total

	if o.Shipping, err = types.ParseOptionalAmount(row.Get(cols.Shipping)); err != nil {
		return fmt.Errorf("bad shipping amount: %v", err)
	}
	if o.Fee, err = types.ParseOptionalAmount(row.Get(cols.Fee)); err != nil {
		return fmt.Errorf("bad fee amount: %v", err)
	}

	o.Currency = strings.ToUpper(row.Get(cols.Currency))
	if o.Currency == "" {
		o.Currency = a.LocalCurrency
	}

	o.Customer = Customer{
		Name:  orDefault(strings.TrimSpace(row.Get(cols.FirstName)+" "+row.Get(cols.LastName)), "Unknown Customer"),
		Phone: orDefault(row.Get(cols.Phone), "N/A"),
		Email: orDefault(row.Get(cols.Email), "N/A"),
	}
	o.Narration = fmt.Sprintf("Customer: %s, Phone: %s, Email: %s", o.Customer.Name, o.Customer.Phone, o.Customer.Email)

	o.Country = row.Get(cols.Country)
	o.Domestic = strings.EqualFold(o.Country, a.DomesticCountry)
	if o.Domestic {
		o.PartyLedger = a.Ledgers.DomesticParty
	} else {
		o.PartyLedger = a.Ledgers.ExportParty
	}
	return nil
}

func (a *Aggregator) readLine(row csvparser.Row) (Line, error) {
	cols := a.Columns
	line := Line{SKU: row.Get(cols.SKU), Row: row.Number}

	qty, err := ParseQuantity(row.Get(cols.Quantity))
	if err != nil {
		return line, err
	}
	line.Quantity = qty

	cost, err := types.ParseOptionalAmount(row.Get(cols.ItemCost))
	if err != nil {
		return line, fmt.Errorf("bad item cost: %v", err)
	}
	if cost.IsNegative() {
		return line, fmt.Errorf("negative item cost %s", cost)
	}
	line.ItemCost = cost
	return line, nil
}

// ParseQuantity parses a positive whole quantity. "2" and "2.0" are
// accepted; a blank cell is one unit.
func ParseQuantity(raw string) (int, error) {
	d, err := types.ParseAmount(raw)
	if err != nil {
		if raw == "" {
			return 1, nil
		}
		return 0, fmt.Errorf("bad quantity %q", raw)
	}
	if !d.IsInteger() || !d.IsPositive() {
		return 0, fmt.Errorf("quantity %q must be a positive whole number", raw)
	}
	return int(d.IntPart()), nil
}

// rescale converts a foreign-currency order to its settled local amount.
func rescale(o *Order, settled decimal.Decimal) {
	ratio := settled.Div(o.StatedTotal)
	o.Ratio = ratio
	o.Amount = settled
	o.Shipping = o.Shipping.Mul(ratio)
	o.Fee = o.Fee.Mul(ratio)
	for i := range o.Lines {
		o.Lines[i].ItemCost = o.Lines[i].ItemCost.Mul(ratio)
	}
	o.Narration += fmt.Sprintf(", Paid: %s %s, Settled: %s at %s",
		o.Currency, types.FormatMoney(o.StatedTotal), types.FormatMoney(settled), ratio.StringFixed(4))
}

func missing(o Order, reason string) MissingPayout {
	return MissingPayout{
		OrderID:     o.ID,
		Date:        o.Date,
		Currency:    o.Currency,
		StatedTotal: o.StatedTotal,
		Customer:    o.Customer,
		Reason:      reason,
	}
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
