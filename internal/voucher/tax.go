package voucher

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ecofemme/gst-tally/internal/config"
)

var (
	one     = decimal.NewFromInt(1)
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
)

// TaxSplit is a tax-inclusive line split into base and tax.
type TaxSplit struct {
	// Base is the pre-tax unit cost.
	Base decimal.Decimal

	// BaseAmount is Base × quantity.
	BaseAmount decimal.Decimal

	// Tax is the total tax for the line.
	Tax decimal.Decimal
}

// ComputeTax splits a tax-inclusive unit cost at rate r:
// base = cost / (1 + r), tax = (cost − base) × qty. A zero rate yields no tax.
func ComputeTax(cost, rate decimal.Decimal, qty int) TaxSplit {
	q := decimal.NewFromInt(int64(qty))
	if !rate.IsPositive() {
		return TaxSplit{Base: cost, BaseAmount: cost.Mul(q), Tax: decimal.Zero}
	}
	base := cost.Div(one.Add(rate))
	return TaxSplit{
		Base:       base,
		BaseAmount: base.Mul(q),
		Tax:        cost.Sub(base).Mul(q),
	}
}

// TaxBucket is the tax collected at one rate in one order.
type TaxBucket struct {
	Rate  decimal.Decimal
	Total decimal.Decimal
}

// Half is the amount posted to each of the two collector ledgers.
func (b TaxBucket) Half() decimal.Decimal {
	return b.Total.Div(two)
}

// TaxBuckets accumulates tax per distinct rate, in order of first use.
type TaxBuckets struct {
	order  []string
	byRate map[string]*TaxBucket
}

// Add accumulates tax at a rate. Zero rates are ignored.
func (b *TaxBuckets) Add(rate, tax decimal.Decimal) {
	if !rate.IsPositive() {
		return
	}
	if b.byRate == nil {
		b.byRate = make(map[string]*TaxBucket)
	}
	key := rate.String()
	bucket, ok := b.byRate[key]
	if !ok {
		bucket = &TaxBucket{Rate: rate, Total: decimal.Zero}
		b.byRate[key] = bucket
		b.order = append(b.order, key)
	}
	bucket.Total = bucket.Total.Add(tax)
}

// Buckets returns the buckets in order of first use.
func (b *TaxBuckets) Buckets() []TaxBucket {
	out := make([]TaxBucket, 0, len(b.order))
	for _, key := range b.order {
		out = append(out, *b.byRate[key])
	}
	return out
}

// =============================================================================
// LEDGER NAMING
// =============================================================================

// PercentLabel renders a rate fraction as the shortest exact percentage:
// 0.18 → "18", 0.025 → "2.5".
func PercentLabel(rate decimal.Decimal) string {
	return rate.Mul(hundred).String()
}

// Namer derives rate-bearing ledger names.
type Namer struct {
	Ledgers config.LedgerNames
}

// SalesLedger names the sales ledger for a line.
func (n Namer) SalesLedger(domestic bool, rate decimal.Decimal) string {
	switch {
	case !domestic:
		return n.Ledgers.ExportSales
	case rate.IsPositive():
		return fmt.Sprintf(n.Ledgers.SalesFormat, PercentLabel(rate))
	default:
		return n.Ledgers.ExemptSales
	}
}

// TaxLedgers names the CGST and SGST ledgers for a rate. Each carries half
// the rate.
func (n Namer) TaxLedgers(rate decimal.Decimal) (cgst, sgst string) {
	half := PercentLabel(rate.Div(two))
	return fmt.Sprintf(n.Ledgers.CGSTFormat, half), fmt.Sprintf(n.Ledgers.SGSTFormat, half)
}
