package refdata

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadProducts(t *testing.T) {
	path := writeFile(t, "products.csv", "\ufeffTally Name,GST Percentage,Godown Name\n"+
		"Pad Regular,12%,Main Location\n"+
		"Cup Small,18,Main Location\n"+
		"Booklet,0%,\n")

	products, err := LoadProducts(path)
	require.NoError(t, err)
	require.Len(t, products, 3)

	assert.True(t, products["Pad Regular"].TaxRate.Equal(decimal.RequireFromString("0.12")))
	assert.True(t, products["Cup Small"].TaxRate.Equal(decimal.RequireFromString("0.18")))
	assert.True(t, products["Cup Small"].IsInventory())
	assert.False(t, products["Booklet"].IsInventory())
	assert.True(t, products["Booklet"].TaxRate.IsZero())
}

func TestLoadProductsErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing column", "Tally Name,Godown Name\nA,B\n"},
		{"bad percentage", "Tally Name,GST Percentage,Godown Name\nA,twelve,B\n"},
		{"out of range", "Tally Name,GST Percentage,Godown Name\nA,180%,B\n"},
		{"empty table", "Tally Name,GST Percentage,Godown Name\n"},
		{"empty name", "Tally Name,GST Percentage,Godown Name\n,12%,B\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadProducts(writeFile(t, "products.csv", tt.body))
			require.Error(t, err)
			var refErr *ReferenceDataError
			assert.True(t, errors.As(err, &refErr))
		})
	}
}

func TestLoadPrices(t *testing.T) {
	prices, err := LoadPrices(writeFile(t, "prices.csv", "Tally Name,Normal Price\nA,\"1,250.00\"\nB,300\n"))
	require.NoError(t, err)
	assert.True(t, prices["A"].Equal(decimal.NewFromInt(1250)))
	assert.True(t, prices["B"].Equal(decimal.NewFromInt(300)))

	_, err = LoadPrices(writeFile(t, "prices.csv", "Tally Name,Normal Price\nA,0\n"))
	assert.Error(t, err)

	_, err = LoadPrices(writeFile(t, "prices.csv", "Tally Name,Normal Price\nA,abc\n"))
	assert.Error(t, err)
}

func TestParsePercentage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"18%", "0.18"},
		{" 5 % ", "0.05"},
		{"12", "0.12"},
		{"0", "0"},
		{"2.5%", "0.025"},
	}
	for _, tt := range tests {
		got, err := ParsePercentage(tt.in)
		require.NoError(t, err, tt.in)
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "%s -> %s", tt.in, got)
	}

	for _, bad := range []string{"", "%", "-1", "abc", "101%"} {
		_, err := ParsePercentage(bad)
		assert.Error(t, err, bad)
	}
}

func TestLoadSkuMappingFormats(t *testing.T) {
	jsonPath := writeFile(t, "map.json", `{"PAD-1": ["Pad Regular"], "KIT-1": ["Pad Regular", "Cup Small"]}`)
	yamlPath := writeFile(t, "map.yaml", "PAD-1:\n  - Pad Regular\nKIT-1:\n  - Pad Regular\n  - Cup Small\n")
	csvPath := writeFile(t, "map.csv", "SKU,Tally Name\nPAD-1,Pad Regular\nKIT-1,Pad Regular\nKIT-1,Cup Small\n")

	for _, path := range []string{jsonPath, yamlPath, csvPath} {
		t.Run(filepath.Ext(path), func(t *testing.T) {
			r, err := LoadSkuMapping(path)
			require.NoError(t, err)

			names, ok := r.Resolve(" KIT-1 ")
			require.True(t, ok)
			assert.Equal(t, []string{"Pad Regular", "Cup Small"}, names)

			_, ok = r.Resolve("NOPE")
			assert.False(t, ok)
			assert.Equal(t, []string{"KIT-1", "PAD-1"}, r.SKUs())
		})
	}
}

func TestLoadSkuMappingInvalid(t *testing.T) {
	_, err := LoadSkuMapping(writeFile(t, "map.json", `{"PAD-1": `))
	assert.Error(t, err)

	_, err = LoadSkuMapping(writeFile(t, "map.json", `{}`))
	assert.Error(t, err)
}

func TestLoadProductsFromWorkbook(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"Tally Name", "GST Percentage", "Godown Name"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"Pad Regular", "12%", "Main Location"}))
	path := filepath.Join(t.TempDir(), "products.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	products, err := LoadProducts(path)
	require.NoError(t, err)
	assert.Equal(t, "Main Location", products["Pad Regular"].Warehouse)
}

func testCatalog() *Catalog {
	return &Catalog{
		Products: map[string]Product{
			"Pad Regular": {Name: "Pad Regular", TaxRate: decimal.RequireFromString("0.12"), Warehouse: "Main"},
			"Cup Small":   {Name: "Cup Small", TaxRate: decimal.RequireFromString("0.18"), Warehouse: "Main"},
		},
		Prices: map[string]decimal.Decimal{"Pad Regular": decimal.NewFromInt(100)},
		Skus: NewMapResolver(map[string][]string{
			"PAD-REG-1": {"Pad Regular"},
			"KIT-1":     {"Pad Regular", "Cup Small"},
			"GHOST":     {"Ghost Product"},
		}),
	}
}

func TestCatalogSuggest(t *testing.T) {
	c := testCatalog()

	got, ok := c.Suggest("PAD-REG-2")
	require.True(t, ok)
	assert.Equal(t, "PAD-REG-1", got)

	_, ok = c.Suggest("COMPLETELY-DIFFERENT")
	assert.False(t, ok)
}

func TestCatalogChecks(t *testing.T) {
	c := testCatalog()
	assert.Equal(t, []string{"Ghost Product"}, c.UnknownProducts())
	assert.Equal(t, []string{"KIT-1"}, c.UnpricedBundles())
}

func TestGeneratePrices(t *testing.T) {
	skus := NewMapResolver(map[string][]string{
		"PAD-1": {"Pad Regular"},
		"KIT-1": {"Pad Regular", "Cup Small"},
		"BK-1":  {"Booklet"},
		"MUG-1": {"Mug"},
	})
	storefront := map[string]StorefrontProduct{
		"PAD-1": {SKU: "PAD-1", RegularPrice: decimal.NewFromInt(100)},
		"KIT-1": {SKU: "KIT-1", RegularPrice: decimal.NewFromInt(350)},
		"BK-1":  {SKU: "BK-1", RegularPrice: decimal.NewFromInt(40)},
	}

	gen := GeneratePrices(skus, storefront)

	assert.Len(t, gen.Prices, 2)
	assert.True(t, gen.Prices["Cup Small"].Equal(decimal.NewFromInt(350)))
	assert.True(t, gen.Prices["Booklet"].Equal(decimal.NewFromInt(40)))
	assert.Equal(t, []string{"KIT-1", "PAD-1"}, gen.Ambiguous["Pad Regular"])
	assert.Equal(t, "MUG-1", gen.Unpriced["Mug"])
}

func TestWritePricesRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.csv")
	require.NoError(t, WritePrices(path, map[string]decimal.Decimal{
		"B": decimal.NewFromInt(300),
		"A": decimal.RequireFromString("99.5"),
	}))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Tally Name,Normal Price\nA,99.50\nB,300.00\n", string(body))

	prices, err := LoadPrices(path)
	require.NoError(t, err)
	assert.True(t, prices["A"].Equal(decimal.RequireFromString("99.5")))
}

func TestLoadStorefrontProducts(t *testing.T) {
	path := writeFile(t, "woo.csv", "ID,Name,SKU,Regular price\n1,Pad,PAD-1,\"1,100\"\n2,Gift card,,50\n3,Broken,BR-1,n/a\n4,Free,FREE-1,\n")

	products, warnings, err := LoadStorefrontProducts(path)
	require.NoError(t, err)
	assert.Len(t, products, 2)
	assert.True(t, products["PAD-1"].RegularPrice.Equal(decimal.NewFromInt(1100)))
	assert.True(t, products["FREE-1"].RegularPrice.IsZero())
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "BR-1")
}
