package settlement

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ecofemme/gst-tally/internal/types"
)

// Source is one reconciled statement file.
type Source struct {
	Processor string
	File      string
	Result    *Result
}

// Conflict is an order settled by two different processors.
type Conflict struct {
	OrderID           string
	KeptProcessor     string
	Kept              decimal.Decimal
	RejectedProcessor string
	Rejected          decimal.Decimal
	RejectedFile      string
}

// Merged is the unified settlement map for a run. It is read-only once
// built and shared by every order-file worker.
type Merged struct {
	Amounts map[string]decimal.Decimal

	// Processor records which processor each amount came from.
	Processor map[string]string

	// RefundedOrders holds orders whose final state is a refund.
	RefundedOrders map[string]bool

	Conflicts   []Conflict
	Diagnostics []types.Diagnostic
}

// Lookup returns the settled amount for an order.
func (m *Merged) Lookup(orderID string) (decimal.Decimal, bool) {
	if m == nil {
		return decimal.Zero, false
	}
	amount, ok := m.Amounts[orderID]
	return amount, ok
}

// Refunded reports whether the order's final state is a processor refund.
func (m *Merged) Refunded(orderID string) bool {
	return m != nil && m.RefundedOrders[orderID]
}

// Total sums the merged amounts.
func (m *Merged) Total() decimal.Decimal {
	total := decimal.Zero
	if m == nil {
		return total
	}
	for _, amount := range m.Amounts {
		total = total.Add(amount)
	}
	return total
}

// Merge combines per-file results. Sources must be in load order:
// processors in configuration order, each processor's files in name order.
//
// Within one processor a later file overwrites an earlier amount and a later
// refund removes the order. Across processors the first processor's amount
// is kept and the disagreement is recorded as a Conflict; amounts are never
// summed.
func Merge(sources []Source, log *logrus.Entry) *Merged {
	m := &Merged{
		Amounts:        make(map[string]decimal.Decimal),
		Processor:      make(map[string]string),
		RefundedOrders: make(map[string]bool),
	}

	for _, src := range sources {
		file := filepath.Base(src.File)
		srcLog := log.WithFields(logrus.Fields{"processor": src.Processor, "file": file})

		for _, id := range src.Result.RefundedOrders {
			if owner, ok := m.Processor[id]; ok && owner != src.Processor {
				continue
			}
			if _, ok := m.Amounts[id]; ok {
				srcLog.WithField("order_id", id).Info("order refunded in later statement, removing settlement")
			}
			delete(m.Amounts, id)
			delete(m.Processor, id)
			m.RefundedOrders[id] = true
		}

		ids := make([]string, 0, len(src.Result.Settlements))
		for id := range src.Result.Settlements {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			amount := src.Result.Settlements[id]
			owner, seen := m.Processor[id]

			switch {
			case !seen:
				m.Amounts[id] = amount
				m.Processor[id] = src.Processor
				delete(m.RefundedOrders, id)

			case owner == src.Processor:
				if previous := m.Amounts[id]; !previous.Equal(amount) {
					msg := fmt.Sprintf("amount changed from %s to %s", types.FormatMoney(previous), types.FormatMoney(amount))
					srcLog.WithField("order_id", id).Warn(msg)
					m.Diagnostics = append(m.Diagnostics, types.Diagnostic{
						Kind: types.KindConflict, File: file, OrderID: id, Message: msg,
					})
				}
				m.Amounts[id] = amount

			default:
				c := Conflict{
					OrderID:           id,
					KeptProcessor:     owner,
					Kept:              m.Amounts[id],
					RejectedProcessor: src.Processor,
					Rejected:          amount,
					RejectedFile:      file,
				}
				m.Conflicts = append(m.Conflicts, c)
				msg := fmt.Sprintf("settled by %s (%s) and %s (%s), keeping %s",
					owner, types.FormatMoney(c.Kept), src.Processor, types.FormatMoney(amount), owner)
				srcLog.WithField("order_id", id).Warn(msg)
				m.Diagnostics = append(m.Diagnostics, types.Diagnostic{
					Kind: types.KindConflict, File: file, OrderID: id, Message: msg,
				})
			}
		}
	}

	return m
}
