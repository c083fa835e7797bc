package csvparser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statementFixture = "\ufeffAccount,merchant@example.com\n" +
	"Period,01/04/2024 - 30/04/2024\n" +
	"\n" +
	"Date,Time,Type,Gross,Invoice Number\n" +
	"01/04/2024,10:00:00,Express Checkout Payment,\"1,010.00\",WC-1001\n" +
	",,,,\n" +
	"02/04/2024,11:00:00,User Initiated Withdrawal,-800.00\n"

func writeFixture(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestParseLocatesHeaderAfterPreamble(t *testing.T) {
	path := writeFixture(t, statementFixture)

	data, err := Parse(path, Settings{RequiredHeaders: []string{"Type", "Gross"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"Date", "Time", "Type", "Gross", "Invoice Number"}, data.Headers)
	assert.Equal(t, "merchant@example.com", data.Metadata["Account"])
	assert.Contains(t, data.Metadata, "Period")

	require.Len(t, data.Rows, 2)
	assert.Equal(t, 5, data.Rows[0].Number)
	assert.Equal(t, "1,010.00", data.Rows[0].Get("Gross"))
	assert.Equal(t, "WC-1001", data.Rows[0].Get("Invoice Number"))

	// Short rows read missing columns as empty.
	assert.Equal(t, 7, data.Rows[1].Number)
	assert.True(t, data.Rows[1].Has("Invoice Number"))
	assert.Equal(t, "", data.Rows[1].Get("Invoice Number"))
}

func TestParseHeaderNotFound(t *testing.T) {
	path := writeFixture(t, "a,b\n1,2\n")
	_, err := Parse(path, Settings{RequiredHeaders: []string{"Type"}})
	assert.ErrorIs(t, err, ErrHeaderNotFound)
}

func TestParseStripsBOMAndAppliesAliases(t *testing.T) {
	path := writeFixture(t, "\ufeffOrder Number,SKU\n42,PAD-1\n")

	data, err := Parse(path, Settings{Aliases: map[string]string{"Order Number": "Order ID"}})
	require.NoError(t, err)
	assert.True(t, data.HasHeader("Order ID"))
	assert.Equal(t, "42", data.Rows[0].Get("Order ID"))
}

func TestBOMBeforeQuotedHeader(t *testing.T) {
	path := writeFixture(t, "\ufeff\"Order ID\",\"SKU\"\n\"42\",\"PAD-1\"\n")
	settings := Settings{RequiredHeaders: []string{"Order ID", "SKU"}}

	data, err := Parse(path, settings)
	require.NoError(t, err)
	assert.Equal(t, []string{"Order ID", "SKU"}, data.Headers)
	require.Len(t, data.Rows, 1)
	assert.Equal(t, "42", data.Rows[0].Get("Order ID"))
	assert.Equal(t, 2, data.Rows[0].Number)

	parser, err := NewStreamingParser(path, settings)
	require.NoError(t, err)
	defer parser.Close()
	assert.Equal(t, []string{"Order ID", "SKU"}, parser.Headers())
	require.True(t, parser.Next())
	assert.Equal(t, "PAD-1", parser.Row().Get("SKU"))
}

func TestParseMultiRowHeader(t *testing.T) {
	path := writeFixture(t, "Billing,Billing,\nFirst Name,Country,SKU\nAsha,IN,PAD-1\n")

	data, err := Parse(path, Settings{HeaderRows: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"Billing First Name", "Billing Country", "SKU"}, data.Headers)
	assert.Equal(t, 3, data.Rows[0].Number)
}

func TestStreamingParserMatchesParse(t *testing.T) {
	path := writeFixture(t, statementFixture)
	settings := Settings{RequiredHeaders: []string{"Type", "Gross"}}

	parser, err := NewStreamingParser(path, settings)
	require.NoError(t, err)
	defer parser.Close()

	var rows []Row
	for parser.Next() {
		rows = append(rows, parser.Row())
	}
	require.NoError(t, parser.Err())

	data, err := Parse(path, settings)
	require.NoError(t, err)
	assert.Equal(t, data.Rows, rows)
	assert.Equal(t, data.Metadata, parser.Metadata())
	assert.Equal(t, data.Headers, parser.Headers())
}

func TestFilterRows(t *testing.T) {
	path := writeFixture(t, "Order ID,Order Status\n1,wc-completed\n2,wc-cancelled\n3,WC-COMPLETED\n")
	data, err := Parse(path, Settings{})
	require.NoError(t, err)

	completed := FilterRows(data, func(r Row) bool { return r.Get("Order Status") != "wc-cancelled" })
	assert.Len(t, completed, 2)
}
