package voucher

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrMissingPrice is returned when a bundle product has no standalone price.
var ErrMissingPrice = errors.New("missing standalone price")

// PriceLookup returns a ledger product's standalone price.
type PriceLookup interface {
	Price(name string) (decimal.Decimal, bool)
}

// Allocate splits a bundle line's unit cost across its products in
// proportion to their standalone prices. Every product must be priced;
// otherwise nothing is allocated. The last share absorbs the division
// remainder so shares always sum exactly to cost.
func Allocate(cost decimal.Decimal, products []string, prices PriceLookup) ([]decimal.Decimal, error) {
	switch len(products) {
	case 0:
		return nil, nil
	case 1:
		return []decimal.Decimal{cost}, nil
	}

	standalone := make([]decimal.Decimal, len(products))
	total := decimal.Zero
	var missing []string
	for i, name := range products {
		price, ok := prices.Price(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		standalone[i] = price
		total = total.Add(price)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w for %s", ErrMissingPrice, strings.Join(missing, ", "))
	}
	if !total.IsPositive() {
		return nil, fmt.Errorf("standalone prices sum to %s", total)
	}

	ratio := cost.Div(total)
	shares := make([]decimal.Decimal, len(products))
	allocated := decimal.Zero
	last := len(products) - 1
	for i := 0; i < last; i++ {
		shares[i] = standalone[i].Mul(ratio)
		allocated = allocated.Add(shares[i])
	}
	shares[last] = cost.Sub(allocated)
	return shares, nil
}
