package settlement

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(amounts map[string]string, refunded ...string) *Result {
	res := &Result{Settlements: make(map[string]decimal.Decimal), RefundedOrders: refunded}
	for id, a := range amounts {
		res.Settlements[id] = dec(a)
	}
	return res
}

func nullLog() (*logrus.Entry, *test.Hook) {
	logger, hook := test.NewNullLogger()
	return logrus.NewEntry(logger), hook
}

func TestMergeSameProcessorLaterFileWins(t *testing.T) {
	log, hook := nullLog()
	m := Merge([]Source{
		{Processor: "paypal", File: "a.csv", Result: result(map[string]string{"1": "800.00", "2": "100.00"})},
		{Processor: "paypal", File: "b.csv", Result: result(map[string]string{"1": "805.00", "2": "100.00"})},
	}, log)

	amount, ok := m.Lookup("1")
	require.True(t, ok)
	assert.True(t, amount.Equal(dec("805")))
	assert.Empty(t, m.Conflicts)

	require.Len(t, m.Diagnostics, 1)
	assert.Equal(t, "1", m.Diagnostics[0].OrderID)
	assert.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestMergeLaterRefundRemovesOrder(t *testing.T) {
	log, _ := nullLog()
	m := Merge([]Source{
		{Processor: "paypal", File: "a.csv", Result: result(map[string]string{"1": "800.00"})},
		{Processor: "paypal", File: "b.csv", Result: result(nil, "1")},
	}, log)

	_, ok := m.Lookup("1")
	assert.False(t, ok)
	assert.True(t, m.Refunded("1"))
}

func TestMergeLaterSettlementClearsRefund(t *testing.T) {
	log, _ := nullLog()
	m := Merge([]Source{
		{Processor: "paypal", File: "a.csv", Result: result(nil, "1")},
		{Processor: "paypal", File: "b.csv", Result: result(map[string]string{"1": "90.00"})},
	}, log)

	_, ok := m.Lookup("1")
	assert.True(t, ok)
	assert.False(t, m.Refunded("1"))
}

func TestMergeAcrossProcessorsFirstWins(t *testing.T) {
	log, _ := nullLog()
	m := Merge([]Source{
		{Processor: "paypal", File: "pp.csv", Result: result(map[string]string{"1": "800.00"})},
		{Processor: "ccavenue", File: "cc.csv", Result: result(map[string]string{"1": "810.00", "2": "50.00"})},
	}, log)

	amount, _ := m.Lookup("1")
	assert.True(t, amount.Equal(dec("800")), "amounts must never be summed")
	assert.Equal(t, "paypal", m.Processor["1"])
	assert.Equal(t, "ccavenue", m.Processor["2"])

	require.Len(t, m.Conflicts, 1)
	c := m.Conflicts[0]
	assert.Equal(t, "paypal", c.KeptProcessor)
	assert.Equal(t, "ccavenue", c.RejectedProcessor)
	assert.True(t, c.Rejected.Equal(dec("810")))
	assert.Equal(t, "cc.csv", c.RejectedFile)
}

func TestMergeOtherProcessorRefundDoesNotTouchAmount(t *testing.T) {
	log, _ := nullLog()
	m := Merge([]Source{
		{Processor: "paypal", File: "pp.csv", Result: result(map[string]string{"1": "800.00"})},
		{Processor: "ccavenue", File: "cc.csv", Result: result(nil, "1")},
	}, log)

	_, ok := m.Lookup("1")
	assert.True(t, ok)
}

func TestLookupOnNilMerged(t *testing.T) {
	var m *Merged
	_, ok := m.Lookup("1")
	assert.False(t, ok)
}
