package refdata

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// maxSuggestionDistance bounds how far a "did you mean" SKU may be.
const maxSuggestionDistance = 3

// Catalog bundles the reference data a voucher run reads. It is read-only
// after loading and safe to share between goroutines.
type Catalog struct {
	Products map[string]Product
	Prices   map[string]decimal.Decimal
	Skus     SkuResolver
}

// LoadCatalog loads the product table, SKU mapping and price table.
func LoadCatalog(productsPath, mappingPath, pricesPath string) (*Catalog, error) {
	products, err := LoadProducts(productsPath)
	if err != nil {
		return nil, err
	}
	skus, err := LoadSkuMapping(mappingPath)
	if err != nil {
		return nil, err
	}
	prices, err := LoadPrices(pricesPath)
	if err != nil {
		return nil, err
	}
	return &Catalog{Products: products, Prices: prices, Skus: skus}, nil
}

// Resolve returns the ledger products a SKU maps to.
func (c *Catalog) Resolve(sku string) ([]string, bool) {
	return c.Skus.Resolve(sku)
}

// Product looks up a ledger product.
func (c *Catalog) Product(name string) (Product, bool) {
	p, ok := c.Products[name]
	return p, ok
}

// Price looks up a standalone price.
func (c *Catalog) Price(name string) (decimal.Decimal, bool) {
	p, ok := c.Prices[name]
	return p, ok
}

// Suggest returns the closest known SKU to an unknown one, if any is within
// a small edit distance.
func (c *Catalog) Suggest(sku string) (string, bool) {
	best, bestDistance := "", maxSuggestionDistance+1
	for _, known := range c.Skus.SKUs() {
		d := levenshtein.DistanceForStrings([]rune(sku), []rune(known), levenshtein.DefaultOptions)
		if d < bestDistance {
			best, bestDistance = known, d
		}
	}
	return best, best != ""
}

// UnknownProducts lists ledger products named by the SKU mapping that the
// product table does not define. Lines resolving to them are skipped.
func (c *Catalog) UnknownProducts() []string {
	seen := make(map[string]bool)
	var unknown []string
	for _, sku := range c.Skus.SKUs() {
		names, _ := c.Skus.Resolve(sku)
		for _, name := range names {
			if _, ok := c.Products[name]; !ok && !seen[name] {
				seen[name] = true
				unknown = append(unknown, name)
			}
		}
	}
	sort.Strings(unknown)
	return unknown
}

// UnpricedBundles lists bundle SKUs with at least one product missing a
// standalone price. Such lines cannot be allocated.
func (c *Catalog) UnpricedBundles() []string {
	var bundles []string
	for _, sku := range c.Skus.SKUs() {
		names, _ := c.Skus.Resolve(sku)
		if len(names) < 2 {
			continue
		}
		for _, name := range names {
			if _, ok := c.Prices[name]; !ok {
				bundles = append(bundles, sku)
				break
			}
		}
	}
	return bundles
}
