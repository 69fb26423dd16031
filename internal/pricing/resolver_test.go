package pricing

import "testing"

func unitTable(unit Money, tiers ...Entry) Table {
	entries := []Entry{{Kind: KindUnit, Amount: unit, Active: true}}
	entries = append(entries, tiers...)
	return Table{Entries: entries}
}

func tier(minQty int64, percent int) Entry {
	return Entry{Kind: KindDiscount, MinQuantity: minQty, DiscountPercent: percent, Active: true}
}

func TestResolveBasePrice(t *testing.T) {
	res := Resolve(unitTable(100_000), 3, SaleUnitPiece, 0)
	if res.UnitPrice != 100_000 {
		t.Fatalf("expected base price 100000, got %d", res.UnitPrice)
	}
	if res.AppliedTier != nil {
		t.Fatalf("expected no tier applied")
	}
}

func TestResolveDeepestSatisfiedTierWins(t *testing.T) {
	table := unitTable(100_000, tier(1, 15), tier(6, 13), tier(21, 11))
	res := Resolve(table, 50, SaleUnitPiece, 0)
	if res.AppliedTier == nil || res.AppliedTier.MinQuantity != 21 {
		t.Fatalf("expected the 21+ tier, got %+v", res.AppliedTier)
	}
	if res.UnitPrice != 89_000 {
		t.Fatalf("expected 89000 (11%% off), got %d", res.UnitPrice)
	}
}

func TestResolveTieBreakIsMinQuantityNotPercent(t *testing.T) {
	// Misconfigured overlap: the lower tier carries the deeper percent. The
	// resolver must still pick the tier with the largest MinQuantity.
	table := unitTable(100_000, tier(1, 30), tier(10, 5))
	res := Resolve(table, 15, SaleUnitPiece, 0)
	if res.AppliedTier == nil || res.AppliedTier.MinQuantity != 10 {
		t.Fatalf("expected the 10+ tier, got %+v", res.AppliedTier)
	}
	if res.UnitPrice != 95_000 {
		t.Fatalf("expected 95000, got %d", res.UnitPrice)
	}
}

func TestResolveZeroPercentDoesNotInflate(t *testing.T) {
	table := unitTable(100_000, tier(1, 0))
	res := Resolve(table, 10, SaleUnitPiece, 0)
	if res.UnitPrice != 100_000 || res.AppliedTier != nil {
		t.Fatalf("zero-percent tier must be ignored, got price %d tier %+v", res.UnitPrice, res.AppliedTier)
	}
}

func TestResolveBoxUsesBoxEntry(t *testing.T) {
	table := Table{Entries: []Entry{
		{Kind: KindUnit, Amount: 10_000, Active: true},
		{Kind: KindBox, Amount: 110_000, Active: true},
		tier(1, 50),
	}}
	res := Resolve(table, 5, SaleUnitBox, 12)
	if res.UnitPrice != 110_000 {
		t.Fatalf("expected box price 110000, got %d", res.UnitPrice)
	}
	if res.AppliedTier != nil {
		t.Fatalf("box sales are not discount eligible")
	}
}

func TestResolveBoxFallsBackToUnitTimesPack(t *testing.T) {
	res := Resolve(unitTable(10_000), 2, SaleUnitBox, 12)
	if res.UnitPrice != 120_000 {
		t.Fatalf("expected 120000 fallback box price, got %d", res.UnitPrice)
	}
}

func TestResolveEmptyTableDegradesToZero(t *testing.T) {
	res := Resolve(Table{}, 4, SaleUnitPiece, 0)
	if res.UnitPrice != 0 {
		t.Fatalf("expected zero price for empty table, got %d", res.UnitPrice)
	}
	res = Resolve(Table{}, 4, SaleUnitBox, 10)
	if res.UnitPrice != 0 {
		t.Fatalf("expected zero box price for empty table, got %d", res.UnitPrice)
	}
}

func TestResolveInactiveEntriesIgnored(t *testing.T) {
	table := Table{Entries: []Entry{
		{Kind: KindUnit, Amount: 50_000, Active: false},
		{Kind: KindUnit, Amount: 60_000, Active: true},
		{Kind: KindDiscount, MinQuantity: 1, DiscountPercent: 20, Active: false},
	}}
	res := Resolve(table, 10, SaleUnitPiece, 0)
	if res.UnitPrice != 60_000 {
		t.Fatalf("expected active unit price 60000, got %d", res.UnitPrice)
	}
	if res.AppliedTier != nil {
		t.Fatalf("inactive tier must not apply")
	}
}

func TestResolveRoundsToNearestUnit(t *testing.T) {
	// 3% off 99999 = 96999.03, rounds to 96999.
	table := unitTable(99_999, tier(1, 3))
	res := Resolve(table, 5, SaleUnitPiece, 0)
	if res.UnitPrice != 96_999 {
		t.Fatalf("expected 96999, got %d", res.UnitPrice)
	}
}
