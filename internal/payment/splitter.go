package payment

import (
	"errors"

	"github.com/aziz-dev/backend-kassa/internal/pricing"
)

var (
	// ErrNothingTendered is returned when a non-free sale carries no payment at all.
	ErrNothingTendered = errors.New("payment: nothing tendered")
	// ErrDebtRequiresCustomer is returned when an underpaid sale has no customer attached.
	ErrDebtRequiresCustomer = errors.New("payment: debt requires an identified customer")
)

// Method labels how a receipt was paid.
type Method string

const (
	MethodCash  Method = "cash"
	MethodCard  Method = "card"
	MethodMixed Method = "mixed"
)

// Tender holds the amounts offered per payment channel. Negative values are
// treated as zero; rejecting them is the caller's concern.
type Tender struct {
	Cash  pricing.Money
	Card  pricing.Money
	Click pricing.Money
}

// Split is the computed division of a sale across payment, change, and debt.
type Split struct {
	CashAmount   pricing.Money
	CardAmount   pricing.Money
	ClickAmount  pricing.Money
	TotalPaid    pricing.Money
	Discount     pricing.Money
	NetTotal     pricing.Money
	DebtAmount   pricing.Money
	ChangeAmount pricing.Money
	CustomerID   string
}

// Compute derives the payment split for a sale total, a flat checkout discount,
// and the tendered amounts. The discount is deliberately uncapped against the
// total; netTotal is floored at zero. Exactly one of DebtAmount/ChangeAmount is
// positive, or both are zero on exact payment.
func Compute(total, discount pricing.Money, tender Tender, customerID string) Split {
	cash := clamp(tender.Cash)
	card := clamp(tender.Card)
	click := clamp(tender.Click)
	if discount < 0 {
		discount = 0
	}
	paid := cash + card + click
	net := total - discount
	if net < 0 {
		net = 0
	}
	split := Split{
		CashAmount:  cash,
		CardAmount:  card,
		ClickAmount: click,
		TotalPaid:   paid,
		Discount:    discount,
		NetTotal:    net,
		CustomerID:  customerID,
	}
	if paid < net {
		split.DebtAmount = net - paid
	} else {
		split.ChangeAmount = paid - net
	}
	return split
}

// Validate applies the hard stops that guard financial integrity. Failures
// here must block settlement entirely.
func (s Split) Validate() error {
	if s.TotalPaid <= 0 && s.NetTotal > 0 {
		return ErrNothingTendered
	}
	if s.DebtAmount > 0 && s.CustomerID == "" {
		return ErrDebtRequiresCustomer
	}
	return nil
}

// Method derives the receipt's payment method label from the used channels.
// CLICK counts as a card-style channel; the receipt enum only knows
// cash, card, and mixed.
func (s Split) Method() Method {
	cash := s.CashAmount > 0
	card := s.CardAmount > 0 || s.ClickAmount > 0
	switch {
	case cash && card:
		return MethodMixed
	case card:
		return MethodCard
	default:
		return MethodCash
	}
}

func clamp(v pricing.Money) pricing.Money {
	if v < 0 {
		return 0
	}
	return v
}
