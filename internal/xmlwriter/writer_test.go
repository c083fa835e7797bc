package xmlwriter

import (
	"bytes"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecofemme/gst-tally/internal/voucher"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleVoucher() *voucher.Voucher {
	return &voucher.Voucher{
		OrderID:     "1001",
		Number:      "1001",
		Type:        "Sales",
		Date:        time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC),
		PartyLedger: "Online Shop Domestic",
		Narration:   "Customer: Asha & Co <retail>",
		Domestic:    true,
		Entries: []voucher.LedgerEntry{
			{Kind: voucher.PartyEntry, Ledger: "Online Shop Domestic", Amount: dec("-236")},
			{Kind: voucher.SalesEntry, Ledger: "Local GST Sales @ 18%", Amount: dec("200"), Inventory: &voucher.InventoryDetail{
				StockItem: "Pad Regular", Rate: dec("100"), Quantity: 2, Warehouse: "Main Location",
			}},
			{Kind: voucher.TaxEntry, Ledger: "CGST Collected @ 9%", Amount: dec("18")},
			{Kind: voucher.TaxEntry, Ledger: "SGST Collected @ 9%", Amount: dec("18")},
		},
	}
}

// wellFormed walks every token so a malformed document fails the test.
func wellFormed(t *testing.T, data []byte) {
	t.Helper()
	d := xml.NewDecoder(bytes.NewReader(data))
	for {
		_, err := d.Token()
		if err == io.EOF {
			return
		}
		require.NoError(t, err)
	}
}

func TestGenerateEnvelope(t *testing.T) {
	data, err := Generate([]*voucher.Voucher{sampleVoucher()})
	require.NoError(t, err)
	wellFormed(t, data)

	out := string(data)
	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, out, "<TALLYREQUEST>Import Data</TALLYREQUEST>")
	assert.Contains(t, out, "<REPORTNAME>All Vouchers</REPORTNAME>")
	assert.Contains(t, out, "<STATICVARIABLES/>")
	assert.Contains(t, out, `<TALLYMESSAGE xmlns="TallyDeveloper">`)
	assert.Contains(t, out, `<VOUCHER VCHTYPE="Sales" ACTION="Create" OBJVIEW="Invoice Voucher View">`)
	assert.Contains(t, out, "<DATE>20240401</DATE>")
	assert.Contains(t, out, "<EFFECTIVEDATE>20240401</EFFECTIVEDATE>")
	assert.Contains(t, out, "<VOUCHERNUMBER>1001</VOUCHERNUMBER>")
	assert.Contains(t, out, "<NARRATION>Customer: Asha &amp; Co &lt;retail&gt;</NARRATION>")
}

func TestGenerateEntries(t *testing.T) {
	data, err := Generate([]*voucher.Voucher{sampleVoucher()})
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, "<LEDGERNAME>Online Shop Domestic</LEDGERNAME>\n              <ISDEEMEDPOSITIVE>Yes</ISDEEMEDPOSITIVE>\n              <AMOUNT>-236.00</AMOUNT>")
	assert.Contains(t, out, "<STOCKITEMNAME>Pad Regular</STOCKITEMNAME>")
	assert.Contains(t, out, "<RATE>100.00/Nos</RATE>")
	assert.Contains(t, out, "<ACTUALQTY>2 Nos</ACTUALQTY>")
	assert.Contains(t, out, "<BILLEDQTY>2 Nos</BILLEDQTY>")
	assert.Contains(t, out, "<GODOWNNAME>Main Location</GODOWNNAME>")
	assert.Contains(t, out, "<ACCOUNTINGALLOCATIONS.LIST>\n                <LEDGERNAME>Local GST Sales @ 18%</LEDGERNAME>")
	assert.Contains(t, out, "<LEDGERNAME>CGST Collected @ 9%</LEDGERNAME>\n              <ISDEEMEDPOSITIVE>No</ISDEEMEDPOSITIVE>\n              <AMOUNT>18.00</AMOUNT>")

	assert.Equal(t, 1, strings.Count(out, "<ALLINVENTORYENTRIES.LIST>"))
	assert.Equal(t, 3, strings.Count(out, "<LEDGERENTRIES.LIST>"))
}

func TestGenerateOneMessagePerVoucher(t *testing.T) {
	second := sampleVoucher()
	second.OrderID, second.Number = "1002", "1002"

	data, err := GenerateWithOptions([]*voucher.Voucher{sampleVoucher(), second}, GenerateOptions{Indent: "\t", Encoding: "UTF-8", Company: "Eco Femme"})
	require.NoError(t, err)
	wellFormed(t, data)

	out := string(data)
	assert.False(t, strings.HasPrefix(out, "<?xml"))
	assert.Equal(t, 2, strings.Count(out, "<TALLYMESSAGE"))
	assert.Contains(t, out, "<SVCURRENTCOMPANY>Eco Femme</SVCURRENTCOMPANY>")
}

func TestGenerateDropsControlCharacters(t *testing.T) {
	v := sampleVoucher()
	v.Narration = "Customer: Asha\x0bRao, Phone: 98450\x1f12\x00, Note: line one\tline two\r\n"

	data, err := Generate([]*voucher.Voucher{v})
	require.NoError(t, err)
	wellFormed(t, data)

	assert.Contains(t, string(data), "<NARRATION>Customer: AshaRao, Phone: 9845012, Note: line one\tline two\r\n</NARRATION>")
}

func TestLegalXMLChar(t *testing.T) {
	for _, r := range []rune{'\t', '\n', '\r', 'a', 'é', '₹', 0x1F600} {
		assert.True(t, legalXMLChar(r), "%U", r)
	}
	for _, r := range []rune{0x00, 0x0B, 0x1F, 0x7F, 0x85, 0xFFFE, 0xFFFF} {
		assert.False(t, legalXMLChar(r), "%U", r)
	}
}

func TestGenerateRejectsUndatedVoucher(t *testing.T) {
	v := sampleVoucher()
	v.Date = time.Time{}
	_, err := Generate([]*voucher.Voucher{v})
	assert.Error(t, err)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tally_apr.xml")
	require.NoError(t, WriteFile(path, []*voucher.Voucher{sampleVoucher()}, DefaultGenerateOptions()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	wellFormed(t, data)
}
