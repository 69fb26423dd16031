package payment

import (
	"errors"
	"testing"
)

func TestComputeUnderpaymentBecomesDebt(t *testing.T) {
	s := Compute(100_000, 0, Tender{Cash: 60_000}, "cust-1")
	if s.DebtAmount != 40_000 {
		t.Fatalf("expected debt 40000, got %d", s.DebtAmount)
	}
	if s.ChangeAmount != 0 {
		t.Fatalf("expected no change, got %d", s.ChangeAmount)
	}
}

func TestComputeOverpaymentBecomesChange(t *testing.T) {
	s := Compute(100_000, 0, Tender{Cash: 50_000, Card: 70_000}, "")
	if s.ChangeAmount != 20_000 || s.DebtAmount != 0 {
		t.Fatalf("expected change 20000 and no debt, got change %d debt %d", s.ChangeAmount, s.DebtAmount)
	}
	if s.TotalPaid != 120_000 {
		t.Fatalf("expected totalPaid 120000, got %d", s.TotalPaid)
	}
}

func TestComputeExactPayment(t *testing.T) {
	s := Compute(100_000, 10_000, Tender{Cash: 90_000}, "")
	if s.DebtAmount != 0 || s.ChangeAmount != 0 {
		t.Fatalf("exact payment must yield zero debt and change, got %+v", s)
	}
}

func TestComputeSplitInvariant(t *testing.T) {
	cases := []struct {
		total, discount, cash, card, click int64
	}{
		{100_000, 0, 60_000, 0, 0},
		{100_000, 0, 0, 0, 150_000},
		{100_000, 100_000, 0, 0, 0},
		{250_000, 50_000, 100_000, 50_000, 50_000},
		{1, 0, 1, 0, 0},
	}
	for _, c := range cases {
		s := Compute(c.total, c.discount, Tender{Cash: c.cash, Card: c.card, Click: c.click}, "x")
		if s.DebtAmount > 0 && s.ChangeAmount > 0 {
			t.Fatalf("both debt and change positive for %+v: %+v", c, s)
		}
		if s.DebtAmount < 0 || s.ChangeAmount < 0 {
			t.Fatalf("negative component for %+v: %+v", c, s)
		}
	}
}

func TestComputeNegativeTenderClamped(t *testing.T) {
	s := Compute(50_000, 0, Tender{Cash: -10_000, Card: 50_000}, "")
	if s.CashAmount != 0 || s.TotalPaid != 50_000 {
		t.Fatalf("negative cash must clamp to zero, got %+v", s)
	}
}

func TestComputeDiscountUncapped(t *testing.T) {
	// Discount beyond total is allowed; net floors at zero and everything
	// tendered comes back as change.
	s := Compute(100_000, 150_000, Tender{Cash: 20_000}, "")
	if s.NetTotal != 0 {
		t.Fatalf("expected net 0, got %d", s.NetTotal)
	}
	if s.ChangeAmount != 20_000 {
		t.Fatalf("expected change 20000, got %d", s.ChangeAmount)
	}
}

func TestValidateNothingTendered(t *testing.T) {
	s := Compute(100_000, 0, Tender{}, "cust-1")
	if err := s.Validate(); !errors.Is(err, ErrNothingTendered) {
		t.Fatalf("expected ErrNothingTendered, got %v", err)
	}
}

func TestValidateFullyDiscountedSaleNeedsNoTender(t *testing.T) {
	s := Compute(100_000, 100_000, Tender{}, "")
	if err := s.Validate(); err != nil {
		t.Fatalf("fully discounted sale should settle with zero tender, got %v", err)
	}
}

func TestValidateDebtRequiresCustomer(t *testing.T) {
	s := Compute(100_000, 0, Tender{Cash: 50_000}, "")
	if err := s.Validate(); !errors.Is(err, ErrDebtRequiresCustomer) {
		t.Fatalf("expected ErrDebtRequiresCustomer, got %v", err)
	}
	s = Compute(100_000, 0, Tender{Cash: 50_000}, "cust-1")
	if err := s.Validate(); err != nil {
		t.Fatalf("expected valid split with customer, got %v", err)
	}
}

func TestMethodDerivation(t *testing.T) {
	if m := Compute(10, 0, Tender{Cash: 10}, "").Method(); m != MethodCash {
		t.Fatalf("expected cash, got %s", m)
	}
	if m := Compute(10, 0, Tender{Card: 10}, "").Method(); m != MethodCard {
		t.Fatalf("expected card, got %s", m)
	}
	if m := Compute(10, 0, Tender{Click: 10}, "").Method(); m != MethodCard {
		t.Fatalf("expected card for click, got %s", m)
	}
	if m := Compute(10, 0, Tender{Cash: 5, Click: 5}, "").Method(); m != MethodMixed {
		t.Fatalf("expected mixed, got %s", m)
	}
}
