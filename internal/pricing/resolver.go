package pricing

import "math"

// Resolution is the outcome of resolving a single line's unit price.
type Resolution struct {
	UnitPrice   Money
	AppliedTier *Entry
}

// Resolve picks the applicable unit price for the requested quantity and sale
// unit. Box-mode sales use the active box entry, falling back to the unit price
// multiplied by the packaging size; quantity discount tiers apply to unit-mode
// sales only. Among the satisfied tiers the one with the largest MinQuantity
// wins, regardless of which tier carries the deeper percent. A missing or
// malformed table resolves to a zero price rather than failing.
func Resolve(table Table, quantity int64, saleUnit SaleUnit, unitsPerBox int64) Resolution {
	if saleUnit == SaleUnitBox {
		if box, ok := table.activeByKind(KindBox); ok {
			return Resolution{UnitPrice: clampMoney(box.Amount)}
		}
		if unit, ok := table.activeByKind(KindUnit); ok && unitsPerBox > 0 {
			return Resolution{UnitPrice: clampMoney(unit.Amount * unitsPerBox)}
		}
		return Resolution{}
	}

	unit, ok := table.activeByKind(KindUnit)
	if !ok {
		return Resolution{}
	}
	base := clampMoney(unit.Amount)

	tier, found := bestTier(table, quantity)
	if !found {
		return Resolution{UnitPrice: base}
	}
	discounted := roundMoney(float64(base) * (1 - float64(tier.DiscountPercent)/100))
	// A zero or negative percent must never inflate the price.
	if discounted >= base {
		return Resolution{UnitPrice: base}
	}
	applied := tier
	return Resolution{UnitPrice: discounted, AppliedTier: &applied}
}

// bestTier returns the satisfied discount tier with the largest MinQuantity.
// This tie-break matches the deployed behavior and is deliberately not
// "largest discount percent"; see the end-to-end tests for the adversarial case.
func bestTier(table Table, quantity int64) (Entry, bool) {
	var best Entry
	found := false
	for _, e := range table.Entries {
		if !e.Active || e.Kind != KindDiscount {
			continue
		}
		// Tiers are satisfied by the lower bound alone; the stored upper bound
		// documents the intended range but a quantity past the deepest tier
		// still receives that tier.
		if quantity < e.MinQuantity {
			continue
		}
		if !found || e.MinQuantity > best.MinQuantity {
			best = e
			found = true
		}
	}
	return best, found
}

func roundMoney(v float64) Money {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return Money(math.Round(v))
}

func clampMoney(v Money) Money {
	if v < 0 {
		return 0
	}
	return v
}
