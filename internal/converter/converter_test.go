package converter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecofemme/gst-tally/internal/config"
	"github.com/ecofemme/gst-tally/internal/refdata"
	"github.com/ecofemme/gst-tally/internal/settlement"
	"github.com/ecofemme/gst-tally/internal/validation"
)

const orderHeader = "Order ID,Order Status,Order Date,Billing First Name,Billing Last Name,Billing Phone,Billing Email Address,Billing Country,Order Total,Order Currency,Order Shipping Amount,SKU,Quantity,Item Cost\n"

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	dir     string
	cfg     *config.MainConfig
	catalog *refdata.Catalog
	merged  *settlement.Merged
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"products.csv", "mapping.json", "prices.csv"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(
		"data_folder: "+dir+"\n"+
			"woo_prefix: woo_orders\n"+
			"tally_prefix: tally_sales\n"+
			"tally_products_file: "+filepath.Join(dir, "products.csv")+"\n"+
			"sku_mapping_file: "+filepath.Join(dir, "mapping.json")+"\n"+
			"product_prices_file: "+filepath.Join(dir, "prices.csv")+"\n"), 0o644))

	cfg, err := config.LoadMainConfig(cfgPath)
	require.NoError(t, err)

	return &fixture{
		dir: dir,
		cfg: cfg,
		catalog: &refdata.Catalog{
			Products: map[string]refdata.Product{
				"Pad Regular": {Name: "Pad Regular", TaxRate: dec("0.18"), Warehouse: "Main Location"},
				"Cup Small":   {Name: "Cup Small", TaxRate: dec("0.12"), Warehouse: "Main Location"},
			},
			Prices: map[string]decimal.Decimal{"Pad Regular": dec("100"), "Cup Small": dec("300")},
			Skus: refdata.NewMapResolver(map[string][]string{
				"PAD-1": {"Pad Regular"},
				"KIT-1": {"Pad Regular", "Cup Small"},
				"GHOST": {"Discontinued Item"},
			}),
		},
		merged: &settlement.Merged{Amounts: map[string]decimal.Decimal{"2001": dec("960")}},
	}
}

func (f *fixture) writeOrders(t *testing.T, name, rows string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(orderHeader+rows), 0o644))
	return path
}

const aprilRows = "" +
	"1001,wc-completed,2024-04-01 10:00:00,Asha,Rao,98450,asha@example.com,IN,318.00,INR,0,PAD-1,1,118\n" +
	"1001,wc-completed,2024-04-01 10:00:00,Asha,Rao,98450,asha@example.com,IN,318.00,INR,0,KIT-1,1,200\n" +
	"2001,wc-completed,2024-04-02 09:30:00,Sam,Hill,,,US,12.00,USD,2.00,PAD-1,1,10.00\n" +
	"3001,wc-completed,2024-04-03 09:00:00,Jo,Lee,,,GB,20.00,GBP,0,PAD-1,1,20.00\n"

func TestRunWritesVouchersAndMissingReport(t *testing.T) {
	f := newFixture(t)
	path := f.writeOrders(t, "woo_orders_apr.csv", aprilRows)

	res := New(path, f.cfg, f.catalog, f.merged, Options{}).Run()
	require.NoError(t, res.Error)
	assert.True(t, res.Success)
	assert.False(t, res.Skipped)
	assert.False(t, res.IntegrityErrors())

	assert.Equal(t, filepath.Join(f.dir, "tally_sales_apr.xml"), res.OutputFile)
	assert.Equal(t, filepath.Join(f.dir, "missing_payouts_apr.csv"), res.MissingReport)
	assert.Equal(t, 4, res.Stats.RowsProcessed)
	assert.Equal(t, 2, res.Stats.Orders)
	assert.Equal(t, 2, res.Stats.Vouchers)
	assert.Equal(t, 1, res.Stats.MissingPayouts)

	xml, err := os.ReadFile(res.OutputFile)
	require.NoError(t, err)
	out := string(xml)
	assert.Equal(t, 2, strings.Count(out, "<TALLYMESSAGE"))
	assert.Contains(t, out, "<VOUCHERNUMBER>1001</VOUCHERNUMBER>")
	assert.Contains(t, out, "<AMOUNT>-318.00</AMOUNT>")
	assert.Contains(t, out, "<PARTYLEDGERNAME>ONLINE SHOP INTERNATIONAL</PARTYLEDGERNAME>")
	assert.Contains(t, out, "<AMOUNT>-960.00</AMOUNT>")
	assert.NotContains(t, out, "3001")

	missing, err := os.ReadFile(res.MissingReport)
	require.NoError(t, err)
	assert.Contains(t, string(missing), "3001,2024-04-03,GBP,20.00,Jo Lee")
}

func TestRunSkipsExistingOutput(t *testing.T) {
	f := newFixture(t)
	path := f.writeOrders(t, "woo_orders_apr.csv", aprilRows)
	existing := filepath.Join(f.dir, "tally_sales_apr.xml")
	require.NoError(t, os.WriteFile(existing, []byte("imported"), 0o644))

	res := New(path, f.cfg, f.catalog, f.merged, Options{}).Run()
	assert.True(t, res.Skipped)
	assert.True(t, res.Success)
	data, _ := os.ReadFile(existing)
	assert.Equal(t, "imported", string(data))

	res = New(path, f.cfg, f.catalog, f.merged, Options{Force: true}).Run()
	require.NoError(t, res.Error)
	assert.False(t, res.Skipped)
	data, _ = os.ReadFile(existing)
	assert.Contains(t, string(data), "<ENVELOPE>")
}

func TestRunDryRunWritesNothing(t *testing.T) {
	f := newFixture(t)
	path := f.writeOrders(t, "woo_orders_apr.csv", aprilRows)

	res := New(path, f.cfg, f.catalog, f.merged, Options{DryRun: true}).Run()
	require.NoError(t, res.Error)
	assert.Equal(t, 2, res.Stats.Vouchers)
	assert.NoFileExists(t, res.OutputFile)
	assert.NoFileExists(t, res.MissingReport)
}

func TestRunHoldsBackRejectedVouchers(t *testing.T) {
	f := newFixture(t)
	path := f.writeOrders(t, "woo_orders_may.csv", ""+
		"1101,wc-completed,2024-05-01 10:00:00,A,B,,,IN,118.00,INR,0,PAD-1,1,118\n"+
		"1102,wc-completed,2024-05-01 11:00:00,A,B,,,IN,500.00,INR,0,GHOST,1,500\n")

	res := New(path, f.cfg, f.catalog, f.merged, Options{}).Run()
	require.NoError(t, res.Error)
	assert.True(t, res.IntegrityErrors())
	assert.Equal(t, 1, res.Stats.Rejected)
	assert.Equal(t, 1, res.Stats.Vouchers)
	assert.NotEmpty(t, res.Diagnostics)

	xml, err := os.ReadFile(res.OutputFile)
	require.NoError(t, err)
	assert.Contains(t, string(xml), "1101")
	assert.NotContains(t, string(xml), "1102")

	log, err := os.ReadFile(res.ValidationLog)
	require.NoError(t, err)
	assert.Contains(t, string(log), "Order 1102")
}

func TestRunStrictValidationRejectsWarnings(t *testing.T) {
	f := newFixture(t)
	path := f.writeOrders(t, "woo_orders_jun.csv",
		"1201,wc-completed,2024-05-02 10:00:00,A,B,,,IN,0.00,INR,0,NOPE,1,0\n")

	res := New(path, f.cfg, f.catalog, f.merged, Options{DryRun: true}).Run()
	require.NoError(t, res.Error)
	assert.Equal(t, 1, res.Stats.ValidationWarnings)
	assert.Equal(t, 0, res.Stats.Rejected)
	assert.Equal(t, 1, res.Stats.Vouchers)

	strictOpts := Options{DryRun: true, Validation: validation.Options{TreatWarningsAsErrors: true}}
	res = New(path, f.cfg, f.catalog, f.merged, strictOpts).Run()
	assert.Equal(t, 1, res.Stats.Rejected)
	assert.Equal(t, 0, res.Stats.Vouchers)

	f.cfg.StrictValidation = true
	res = New(path, f.cfg, f.catalog, f.merged, Options{DryRun: true}).Run()
	assert.True(t, res.IntegrityErrors())
}

func TestRunReportsParseFailure(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.dir, "woo_orders_bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("just,some,columns\n1,2,3\n"), 0o644))

	res := New(path, f.cfg, f.catalog, f.merged, Options{}).Run()
	assert.False(t, res.Success)
	assert.Error(t, res.Error)
}
