package statement

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecofemme/gst-tally/internal/config"
	"github.com/ecofemme/gst-tally/internal/csvparser"
	"github.com/ecofemme/gst-tally/internal/types"
)

func paypal() config.ProcessorConfig {
	p := config.ProcessorConfig{Name: "paypal", Prefix: "Download"}
	config.ApplyProcessorDefaults(&p)
	return p
}

func row(fields map[string]string) csvparser.Row {
	base := map[string]string{
		"Date":     "04/01/2024",
		"Time":     "10:15:00",
		"Status":   "Completed",
		"Currency": "USD",
	}
	for k, v := range fields {
		base[k] = v
	}
	return csvparser.Row{Number: 7, Fields: base}
}

func TestClassify(t *testing.T) {
	c := NewClassifier(paypal())

	tests := []struct {
		name     string
		fields   map[string]string
		want     EventType
		orderRef string
	}{
		{"payment", map[string]string{"Type": "Express Checkout Payment", "Gross": "10.00", "Invoice Number": "WC-1001"}, Payment, "1001"},
		{"payment case-insensitive type", map[string]string{"Type": "express checkout payment", "Gross": "10.00", "Invoice Number": "WC-1001"}, Payment, "1001"},
		{"payment not completed", map[string]string{"Type": "Express Checkout Payment", "Status": "Denied", "Gross": "10.00"}, Ignored, ""},
		{"pending", map[string]string{"Type": "Express Checkout Payment", "Status": "Pending", "Gross": "10.00"}, Ignored, ""},
		{"withdrawal", map[string]string{"Type": "User Initiated Withdrawal", "Currency": "INR", "Gross": "-800.00"}, Withdrawal, ""},
		{"conversion", map[string]string{"Type": "General Currency Conversion", "Gross": "-10.00", "Reference Txn ID": "W1"}, CurrencyConversion, ""},
		{"reversal", map[string]string{"Type": "Payment Reversal", "Gross": "-10.00", "Invoice Number": "WC-1001"}, Reversal, "1001"},
		{"custom number fallback", map[string]string{"Type": "Express Checkout Payment", "Gross": "5", "Custom Number": "2002"}, Payment, "2002"},
		{"unknown type", map[string]string{"Type": "Mobile Payment", "Gross": "5"}, Ignored, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, diag := c.Classify(row(tt.fields))
			assert.Nil(t, diag)
			assert.Equal(t, tt.want, event.Type)
			assert.Equal(t, tt.orderRef, event.OrderRef)
			assert.Equal(t, 7, event.Row)
		})
	}
}

func TestClassifyParsesAmountAndTimestamp(t *testing.T) {
	c := NewClassifier(paypal())

	event, diag := c.Classify(row(map[string]string{
		"Type": "Express Checkout Payment", "Gross": "1,010.50", "Currency": "usd", "Transaction ID": "T1",
	}))
	require.Nil(t, diag)
	assert.True(t, event.Gross.Equal(decimal.RequireFromString("1010.50")))
	assert.Equal(t, "USD", event.Currency)
	assert.Equal(t, "T1", event.TransactionID)
	assert.Equal(t, time.Date(2024, 4, 1, 10, 15, 0, 0, time.UTC), event.Timestamp)
}

func TestClassifyBadRowsAreIgnoredWithDiagnostic(t *testing.T) {
	c := NewClassifier(paypal())

	event, diag := c.Classify(row(map[string]string{"Type": "Express Checkout Payment", "Gross": "ten", "Invoice Number": "WC-9"}))
	assert.Equal(t, Ignored, event.Type)
	require.NotNil(t, diag)
	assert.Equal(t, types.KindParseError, diag.Kind)
	assert.Equal(t, "9", diag.OrderID)

	event, diag = c.Classify(row(map[string]string{"Type": "User Initiated Withdrawal", "Gross": "-5", "Date": "yesterday", "Time": ""}))
	assert.Equal(t, Ignored, event.Type)
	require.NotNil(t, diag)
	assert.Contains(t, diag.Message, "bad date")
}

func TestClassifyIsPure(t *testing.T) {
	c := NewClassifier(paypal())
	r := row(map[string]string{"Type": "Express Checkout Payment", "Gross": "10", "Invoice Number": "WC-1"})

	first, _ := c.Classify(r)
	second, _ := c.Classify(r)
	assert.Equal(t, first, second)
}

func TestLoad(t *testing.T) {
	body := "\ufeffMerchant,Example Shop\n" +
		"\n" +
		"Date,Time,Type,Status,Currency,Gross,Transaction ID,Reference Txn ID,Invoice Number\n" +
		"04/01/2024,10:00:00,Express Checkout Payment,Completed,USD,10.00,P1,,WC-1001\n" +
		"04/02/2024,09:00:00,User Initiated Withdrawal,Completed,INR,-800.00,W1,,\n" +
		"04/02/2024,09:00:01,General Currency Conversion,Completed,USD,-10.00,C1,W1,\n" +
		"04/02/2024,09:00:02,General Currency Conversion,Completed,INR,oops,C2,W1,\n"
	path := filepath.Join(t.TempDir(), "Download.CSV")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	st, err := Load(path, paypal(), logrus.NewEntry(logrus.New()))
	require.NoError(t, err)

	assert.Equal(t, "Example Shop", st.Metadata["Merchant"])
	require.Len(t, st.Events, 4)
	assert.Equal(t, []EventType{Payment, Withdrawal, CurrencyConversion, Ignored},
		[]EventType{st.Events[0].Type, st.Events[1].Type, st.Events[2].Type, st.Events[3].Type})
	require.Len(t, st.Diagnostics, 1)
	assert.Equal(t, "Download.CSV", st.Diagnostics[0].File)
	assert.Equal(t, 7, st.Diagnostics[0].Row)

	counts := st.Counts()
	assert.Equal(t, 1, counts[Payment])
	assert.Equal(t, 1, counts[Ignored])
}

func TestLoadQuotedHeaderAfterBOM(t *testing.T) {
	body := "\ufeff\"Date\",\"Time\",\"Type\",\"Status\",\"Currency\",\"Gross\",\"Transaction ID\",\"Reference Txn ID\",\"Invoice Number\"\n" +
		"\"04/01/2024\",\"10:00:00\",\"Express Checkout Payment\",\"Completed\",\"USD\",\"10.00\",\"P1\",\"\",\"WC-1001\"\n" +
		"\"04/02/2024\",\"09:00:00\",\"User Initiated Withdrawal\",\"Completed\",\"INR\",\"-800.00\",\"W1\",\"\",\"\"\n" +
		"\"04/02/2024\",\"09:00:01\",\"General Currency Conversion\",\"Completed\",\"USD\",\"-10.00\",\"C1\",\"W1\",\"\"\n"
	path := filepath.Join(t.TempDir(), "Download.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	st, err := Load(path, paypal(), logrus.NewEntry(logrus.New()))
	require.NoError(t, err)

	assert.Empty(t, st.Diagnostics)
	require.Len(t, st.Events, 3)
	assert.Equal(t, []EventType{Payment, Withdrawal, CurrencyConversion},
		[]EventType{st.Events[0].Type, st.Events[1].Type, st.Events[2].Type})
	assert.Equal(t, time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC), st.Events[0].Timestamp)
}

func TestLoadMissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Download.csv")
	require.NoError(t, os.WriteFile(path, []byte("Date,Name\n1,2\n"), 0o644))

	_, err := Load(path, paypal(), logrus.NewEntry(logrus.New()))
	assert.ErrorIs(t, err, csvparser.ErrHeaderNotFound)
}
