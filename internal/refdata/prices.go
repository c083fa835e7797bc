package refdata

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ecofemme/gst-tally/internal/csvparser"
	"github.com/ecofemme/gst-tally/internal/types"
)

// Storefront product export columns.
const (
	ColStoreName    = "Name"
	ColRegularPrice = "Regular price"
)

// StorefrontProduct is one SKU from a storefront product export.
type StorefrontProduct struct {
	SKU          string
	Name         string
	RegularPrice decimal.Decimal
}

// PriceGeneration is the outcome of deriving standalone ledger prices.
type PriceGeneration struct {
	// Prices holds ledger products reached by exactly one priced SKU.
	Prices map[string]decimal.Decimal

	// Ambiguous holds ledger products reached by several SKUs. They need
	// manual pricing.
	Ambiguous map[string][]string

	// Unpriced holds ledger products whose only SKU is absent from the
	// storefront export.
	Unpriced map[string]string
}

// LoadStorefrontProducts reads a storefront product export. Rows without a
// SKU are ignored; rows with an unreadable price are returned as warnings.
func LoadStorefrontProducts(path string) (map[string]StorefrontProduct, []string, error) {
	data, err := csvparser.Parse(path, csvparser.Settings{RequiredHeaders: []string{ColSKU, ColRegularPrice}})
	if err != nil {
		return nil, nil, &ReferenceDataError{File: path, Message: "cannot read product export", Err: err}
	}

	products := make(map[string]StorefrontProduct)
	var warnings []string
	for _, row := range data.Rows {
		sku := row.Get(ColSKU)
		if sku == "" {
			continue
		}
		price, err := types.ParseOptionalAmount(row.Get(ColRegularPrice))
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("row %d: invalid price for SKU %q", row.Number, sku))
			continue
		}
		products[sku] = StorefrontProduct{SKU: sku, Name: row.Get(ColStoreName), RegularPrice: price}
	}
	return products, warnings, nil
}

// GeneratePrices derives standalone ledger prices through the reverse SKU
// mapping: a ledger product reached by a single SKU takes that SKU's
// regular price.
func GeneratePrices(skus SkuResolver, storefront map[string]StorefrontProduct) PriceGeneration {
	gen := PriceGeneration{
		Prices:    make(map[string]decimal.Decimal),
		Ambiguous: make(map[string][]string),
		Unpriced:  make(map[string]string),
	}
	for name, reaching := range Reverse(skus) {
		if len(reaching) > 1 {
			gen.Ambiguous[name] = reaching
			continue
		}
		product, ok := storefront[reaching[0]]
		if !ok {
			gen.Unpriced[name] = reaching[0]
			continue
		}
		gen.Prices[name] = product.RegularPrice
	}
	return gen
}

// WritePrices writes a price table that LoadPrices can read back, sorted by
// ledger product name.
func WritePrices(path string, prices map[string]decimal.Decimal) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create price file: %w", err)
	}
	defer file.Close()

	names := make([]string, 0, len(prices))
	for name := range prices {
		names = append(names, name)
	}
	sort.Strings(names)

	w := csv.NewWriter(file)
	if err := w.Write([]string{ColTallyName, ColNormalPrice}); err != nil {
		return err
	}
	for _, name := range names {
		if err := w.Write([]string{name, types.FormatMoney(prices[name])}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write price file: %w", err)
	}
	return file.Close()
}
