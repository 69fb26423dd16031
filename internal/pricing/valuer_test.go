package pricing

import (
	"reflect"
	"testing"
)

func TestValueCartSubtotal(t *testing.T) {
	lines := []Line{
		{ProductID: "a", Quantity: 12, SaleUnit: SaleUnitPiece, Table: unitTable(100_000, tier(10, 20))},
		{ProductID: "b", Quantity: 2, SaleUnit: SaleUnitPiece, Table: unitTable(30_000)},
	}
	v := ValueCart(lines)
	if v.Lines[0].UnitPrice != 80_000 || v.Lines[0].Total != 960_000 {
		t.Fatalf("line a: got unit %d total %d", v.Lines[0].UnitPrice, v.Lines[0].Total)
	}
	if v.Lines[1].Total != 60_000 {
		t.Fatalf("line b: got total %d", v.Lines[1].Total)
	}
	if v.Subtotal != 1_020_000 {
		t.Fatalf("expected subtotal 1020000, got %d", v.Subtotal)
	}
}

func TestValueCartIdempotent(t *testing.T) {
	lines := []Line{
		{ProductID: "a", Quantity: 7, SaleUnit: SaleUnitPiece, Table: unitTable(99_999, tier(5, 7))},
		{ProductID: "b", Quantity: 3, SaleUnit: SaleUnitBox, UnitsPerBox: 6, Table: unitTable(12_345)},
	}
	first := ValueCart(lines)
	second := ValueCart(lines)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("valuation is not idempotent: %+v vs %+v", first, second)
	}
}

func TestValueCartNonPositiveQuantity(t *testing.T) {
	v := ValueCart([]Line{{ProductID: "a", Quantity: 0, Table: unitTable(10_000)}})
	if v.Subtotal != 0 || v.Lines[0].Total != 0 {
		t.Fatalf("zero-quantity line must contribute nothing, got %+v", v)
	}
}

func TestRollDisplayQty(t *testing.T) {
	if got := RollDisplayQty(75, 50); got != 1.5 {
		t.Fatalf("expected 1.5 rolls, got %v", got)
	}
	if got := RollDisplayQty(76, 50); got != 1.5 {
		t.Fatalf("expected 1.5 rolls after rounding, got %v", got)
	}
	if got := RollDisplayQty(30, 0); got != 30 {
		t.Fatalf("missing roll length must pass quantity through, got %v", got)
	}
}

func TestMaxRolls(t *testing.T) {
	if got := MaxRolls(149, 50); got != 2 {
		t.Fatalf("expected 2 rolls from 149m at 50m/roll, got %d", got)
	}
	if got := MaxRolls(149, 0); got != 149 {
		t.Fatalf("expected passthrough without roll length, got %d", got)
	}
}
