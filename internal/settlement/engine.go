// =============================================================================
// gst-tally - Settlement Reconciliation Engine
// =============================================================================
//
// This module replays one processor statement, in file order, to find the
// local-currency amount each foreign-currency order was settled for.
//
// The processor converts currency only when the merchant withdraws. A
// statement therefore reads like:
//
//   Payment     USD  +10.00  WC-1001     queued under USD
//   Payment     USD  +25.00  WC-1002     queued under USD
//   Withdrawal  INR  -2800   W1          becomes the active withdrawal
//   Conversion  USD  -35.00  ref W1      rate = 2800 / 35, USD queue settles
//
// The replay is a fold over the ordered events with an explicit state value
// scoped to one statement. It must not be reordered or parallelised: the
// pairing of a withdrawal with its conversion depends on adjacency in the
// file. Different statements are independent.
//
// =============================================================================

package settlement

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ecofemme/gst-tally/internal/statement"
	"github.com/ecofemme/gst-tally/internal/types"
)

// Status is the lifecycle state of an order within one statement.
type Status int

const (
	PendingConversion Status = iota
	Converted
	Refunded
)

func (s Status) String() string {
	switch s {
	case Converted:
		return "Converted"
	case Refunded:
		return "Refunded"
	default:
		return "Pending Conversion"
	}
}

// Options tune the replay.
type Options struct {
	// LocalCurrency is the payout currency, e.g. "INR".
	LocalCurrency string

	// KeepPendingOnReversal leaves a reversed order's queued payments in
	// their queue. A later conversion then settles the order again.
	// By default a reversal also purges them.
	KeepPendingOnReversal bool
}

// OrderSettlement is the final state of one order in a statement.
type OrderSettlement struct {
	OrderID     string
	LocalAmount decimal.Decimal
	Status      Status
}

// AuditRecord is one queued payment and what became of it, for manual
// cross-checking against the processor's own reports.
type AuditRecord struct {
	OrderID       string
	Currency      string
	Gross         decimal.Decimal
	Settled       decimal.Decimal
	Rate          decimal.Decimal
	TransactionID string
	Date          time.Time
	Status        Status
	Row           int
}

// IsSettled reports whether the record carries a settled amount.
func (a AuditRecord) IsSettled() bool {
	return a.Status == Converted
}

// Result is the outcome of replaying one statement.
type Result struct {
	// Settlements maps order id to settled local amount. Refunded orders
	// are never present.
	Settlements map[string]decimal.Decimal

	// Orders holds the final state of every order seen as a payment or
	// reversal.
	Orders map[string]OrderSettlement

	// RefundedOrders lists orders whose final state is Refunded, sorted.
	RefundedOrders []string

	Audit []AuditRecord

	// Unresolved counts payments never converted in this statement.
	Unresolved int

	Diagnostics []types.Diagnostic
}

// =============================================================================
// REPLAY STATE
// =============================================================================

type pendingPayment struct {
	orderID string
	gross   decimal.Decimal
	audit   int
}

type withdrawal struct {
	local         decimal.Decimal
	transactionID string
}

// state is the fold accumulator. It is created per statement and discarded
// once the Result is built.
type state struct {
	opts Options

	queues        map[string][]pendingPayment
	currencyOrder []string
	active        *withdrawal

	settled map[string]decimal.Decimal
	orders  map[string]OrderSettlement
	audit   []AuditRecord
}

func newState(opts Options) *state {
	return &state{
		opts:    opts,
		queues:  make(map[string][]pendingPayment),
		settled: make(map[string]decimal.Decimal),
		orders:  make(map[string]OrderSettlement),
	}
}

// Reconcile replays a statement's events in order.
func Reconcile(events []statement.Event, opts Options) *Result {
	st := newState(opts)
	for _, e := range events {
		st.apply(e)
	}
	return st.result()
}

func (s *state) apply(e statement.Event) {
	switch e.Type {
	case statement.Payment:
		s.onPayment(e)
	case statement.Withdrawal:
		s.onWithdrawal(e)
	case statement.CurrencyConversion:
		s.onConversion(e)
	case statement.Reversal:
		s.onReversal(e)
	}
}

func (s *state) onPayment(e statement.Event) {
	if e.OrderRef == "" || !e.Gross.IsPositive() || e.Currency == s.opts.LocalCurrency {
		return
	}

	s.audit = append(s.audit, AuditRecord{
		OrderID:       e.OrderRef,
		Currency:      e.Currency,
		Gross:         e.Gross,
		TransactionID: e.TransactionID,
		Date:          e.Timestamp,
		Status:        PendingConversion,
		Row:           e.Row,
	})

	if _, ok := s.queues[e.Currency]; !ok {
		s.currencyOrder = append(s.currencyOrder, e.Currency)
	}
	s.queues[e.Currency] = append(s.queues[e.Currency], pendingPayment{
		orderID: e.OrderRef,
		gross:   e.Gross,
		audit:   len(s.audit) - 1,
	})

	// A payment after a reversal starts a new lifecycle for the order.
	if o, ok := s.orders[e.OrderRef]; !ok || o.Status == Refunded {
		s.orders[e.OrderRef] = OrderSettlement{OrderID: e.OrderRef, Status: PendingConversion}
	}
}

func (s *state) onWithdrawal(e statement.Event) {
	if e.Currency != s.opts.LocalCurrency || e.Gross.IsZero() {
		return
	}
	// Replaces any withdrawal still waiting for its conversion.
	s.active = &withdrawal{local: e.Gross.Abs(), transactionID: e.TransactionID}
}

func (s *state) onConversion(e statement.Event) {
	if s.active == nil || e.Currency == s.opts.LocalCurrency || !e.Gross.IsNegative() {
		return
	}
	if e.ReferenceTxnID != s.active.transactionID {
		return
	}

	foreign := e.Gross.Abs()
	rate := s.active.local.Div(foreign)
	for _, p := range s.queues[e.Currency] {
		amount := types.RoundMoney(p.gross.Mul(s.active.local).Div(foreign))
		s.settled[p.orderID] = amount
		s.orders[p.orderID] = OrderSettlement{OrderID: p.orderID, LocalAmount: amount, Status: Converted}

		rec := &s.audit[p.audit]
		rec.Settled = amount
		rec.Rate = rate
		rec.Status = Converted
	}
	s.queues[e.Currency] = nil
	s.active = nil
}

func (s *state) onReversal(e statement.Event) {
	if e.OrderRef == "" {
		return
	}
	delete(s.settled, e.OrderRef)
	s.orders[e.OrderRef] = OrderSettlement{OrderID: e.OrderRef, Status: Refunded}

	for i := range s.audit {
		if s.audit[i].OrderID == e.OrderRef {
			s.audit[i].Status = Refunded
		}
	}

	if s.opts.KeepPendingOnReversal {
		return
	}
	for currency, queue := range s.queues {
		kept := queue[:0]
		for _, p := range queue {
			if p.orderID != e.OrderRef {
				kept = append(kept, p)
			}
		}
		s.queues[currency] = kept
	}
}

func (s *state) result() *Result {
	res := &Result{
		Settlements: s.settled,
		Orders:      s.orders,
		Audit:       s.audit,
	}

	for id, o := range s.orders {
		if o.Status == Refunded {
			res.RefundedOrders = append(res.RefundedOrders, id)
		}
	}
	sort.Strings(res.RefundedOrders)

	for _, currency := range s.currencyOrder {
		for _, p := range s.queues[currency] {
			res.Unresolved++
			res.Diagnostics = append(res.Diagnostics, types.Diagnostic{
				Kind:    types.KindUnresolved,
				Row:     s.audit[p.audit].Row,
				OrderID: p.orderID,
				Message: fmt.Sprintf("%s %s payment never converted", p.gross.StringFixed(2), currency),
			})
		}
	}
	return res
}

// TotalSettled sums the settled amounts.
func (r *Result) TotalSettled() decimal.Decimal {
	total := decimal.Zero
	for _, amount := range r.Settlements {
		total = total.Add(amount)
	}
	return total
}
