// =============================================================================
// gst-tally - Voucher Assembler
// =============================================================================
//
// This module turns an aggregated order into a balanced sales voucher:
//
//   party ledger        -orderAmount
//   shipping / fee      +amount            (when non-zero)
//   product lines       +base amount       (inventory or flat ledger)
//   CGST / SGST         +half of bucket    (one pair per tax rate)
//   rounding off        +/-difference      (when |difference| >= 0.01)
//
// Every amount is rounded to two places as it is placed. The rounding-off
// entry is the difference between the order amount and the sum of all other
// entries, so the voucher nets to exactly zero. A rounding-off entry larger
// than the configured tolerance means the computation went wrong somewhere
// upstream and the voucher is flagged for validation.
//
// =============================================================================

package voucher

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ecofemme/gst-tally/internal/config"
	"github.com/ecofemme/gst-tally/internal/orders"
	"github.com/ecofemme/gst-tally/internal/refdata"
	"github.com/ecofemme/gst-tally/internal/types"
)

// EntryKind classifies a ledger entry.
type EntryKind int

const (
	PartyEntry EntryKind = iota
	ShippingEntry
	FeeEntry
	SalesEntry
	TaxEntry
	RoundingEntry
)

// InventoryDetail carries stock metadata for an inventory line.
type InventoryDetail struct {
	StockItem string
	Rate      decimal.Decimal
	Quantity  int
	Warehouse string
}

// LedgerEntry is one signed entry. Negative amounts are debits to the
// party; positive amounts are credits.
type LedgerEntry struct {
	Kind   EntryKind
	Ledger string
	Amount decimal.Decimal

	// Inventory is set for stock-tracked products. Ledger is then the sales
	// ledger the line is allocated to.
	Inventory *InventoryDetail
}

// IsDeemedPositive reports the accounting-system flag for the entry.
func (e LedgerEntry) IsDeemedPositive() bool {
	return e.Amount.IsNegative()
}

// Voucher is one balanced sales voucher.
type Voucher struct {
	OrderID     string
	Number      string
	Type        string
	Date        time.Time
	PartyLedger string
	Narration   string
	Domestic    bool
	Entries     []LedgerEntry

	// RoundingOff is the adjustment added to balance the voucher.
	RoundingOff decimal.Decimal

	// ExceedsTolerance is set when RoundingOff is larger than allowed.
	ExceedsTolerance bool
}

// Net sums every entry. A balanced voucher nets to zero.
func (v *Voucher) Net() decimal.Decimal {
	net := decimal.Zero
	for _, e := range v.Entries {
		net = net.Add(e.Amount)
	}
	return net
}

// SalesLines counts product entries.
func (v *Voucher) SalesLines() int {
	n := 0
	for _, e := range v.Entries {
		if e.Kind == SalesEntry {
			n++
		}
	}
	return n
}

// =============================================================================
// ASSEMBLER
// =============================================================================

// Catalog is the reference data the assembler reads.
type Catalog interface {
	PriceLookup
	Product(name string) (refdata.Product, bool)
}

// Assembler builds vouchers. It is read-only after construction and safe for
// concurrent use.
type Assembler struct {
	Namer     Namer
	Catalog   Catalog
	Tolerance decimal.Decimal
}

// NewAssembler builds an assembler from the main configuration.
func NewAssembler(cfg *config.MainConfig, catalog Catalog) *Assembler {
	return &Assembler{
		Namer:     Namer{Ledgers: cfg.Ledgers},
		Catalog:   catalog,
		Tolerance: cfg.RoundingTolerance(),
	}
}

// Assemble builds the voucher for an order. Lines that cannot be posted are
// left out and reported as diagnostics; the rounding-off entry then shows
// the gap.
func (a *Assembler) Assemble(o orders.Order, file string, log *logrus.Entry) (*Voucher, []types.Diagnostic) {
	var diags []types.Diagnostic
	skip := func(row int, msg string) {
		log.WithFields(logrus.Fields{"order_id": o.ID, "row": row}).Warn(msg)
		diags = append(diags, types.Diagnostic{
			Kind: types.KindSkippedLine, File: filepath.Base(file), Row: row, OrderID: o.ID, Message: msg,
		})
	}

	ledgers := a.Namer.Ledgers
	amount := types.RoundMoney(o.Amount)
	v := &Voucher{
		OrderID:     o.ID,
		Number:      o.ID,
		Type:        ledgers.VoucherType,
		Date:        o.Date,
		PartyLedger: o.PartyLedger,
		Narration:   o.Narration,
		Domestic:    o.Domestic,
	}
	v.Entries = append(v.Entries, LedgerEntry{Kind: PartyEntry, Ledger: o.PartyLedger, Amount: amount.Neg()})

	if shipping := types.RoundMoney(o.Shipping); !shipping.IsZero() {
		v.Entries = append(v.Entries, LedgerEntry{Kind: ShippingEntry, Ledger: ledgers.Shipping, Amount: shipping})
	}
	if fee := types.RoundMoney(o.Fee); !fee.IsZero() {
		v.Entries = append(v.Entries, LedgerEntry{Kind: FeeEntry, Ledger: ledgers.Fee, Amount: fee})
	}

	var buckets TaxBuckets
	for _, line := range o.Lines {
		shares, err := Allocate(line.ItemCost, line.Products, a.Catalog)
		if err != nil {
			skip(line.Row, fmt.Sprintf("SKU %q: %v, line skipped", line.SKU, err))
			continue
		}

		for i, name := range line.Products {
			product, ok := a.Catalog.Product(name)
			if !ok {
				skip(line.Row, fmt.Sprintf("ledger product %q not in product table, skipped", name))
				continue
			}

			rate := product.TaxRate
			if !o.Domestic {
				rate = decimal.Zero
			}
			split := ComputeTax(shares[i], rate, line.Quantity)
			buckets.Add(rate, split.Tax)

			entry := LedgerEntry{Kind: SalesEntry, Amount: types.RoundMoney(split.BaseAmount)}
			if product.IsInventory() {
				entry.Ledger = a.Namer.SalesLedger(o.Domestic, rate)
				entry.Inventory = &InventoryDetail{
					StockItem: name,
					Rate:      types.RoundMoney(split.Base),
					Quantity:  line.Quantity,
					Warehouse: product.Warehouse,
				}
			} else {
				entry.Ledger = name
			}
			v.Entries = append(v.Entries, entry)
		}
	}

	for _, bucket := range buckets.Buckets() {
		half := types.RoundMoney(bucket.Half())
		if half.IsZero() {
			continue
		}
		cgst, sgst := a.Namer.TaxLedgers(bucket.Rate)
		v.Entries = append(v.Entries,
			LedgerEntry{Kind: TaxEntry, Ledger: cgst, Amount: half},
			LedgerEntry{Kind: TaxEntry, Ledger: sgst, Amount: half},
		)
	}

	posted := decimal.Zero
	for _, e := range v.Entries[1:] {
		posted = posted.Add(e.Amount)
	}
	diff := amount.Sub(posted)
	if diff.Abs().GreaterThanOrEqual(types.Cent) {
		v.RoundingOff = diff
		v.Entries = append(v.Entries, LedgerEntry{Kind: RoundingEntry, Ledger: ledgers.RoundingOff, Amount: diff})
	}
	if diff.Abs().GreaterThan(a.Tolerance) {
		v.ExceedsTolerance = true
		log.WithFields(logrus.Fields{"order_id": o.ID, "rounding_off": diff.StringFixed(2)}).
			Error("rounding off exceeds tolerance")
	}

	return v, diags
}
