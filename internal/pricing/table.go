package pricing

import "fmt"

// Money represents an integer amount of so'm. The currency carries no sub-units.
type Money = int64

// Kind identifies the role of a price table entry.
type Kind string

const (
	KindCost     Kind = "cost"
	KindUnit     Kind = "unit"
	KindBox      Kind = "box"
	KindDiscount Kind = "discount"
)

// SaleUnit selects which base price applies to a line.
type SaleUnit string

const (
	SaleUnitPiece SaleUnit = "unit"
	SaleUnitBox   SaleUnit = "box"
)

// Entry is one row of a product's price table.
type Entry struct {
	Kind            Kind
	Amount          Money
	MinQuantity     int64
	MaxQuantity     int64
	DiscountPercent int
	Tier            int
	Active          bool
}

// Table is the normalized price table of a single product.
type Table struct {
	Entries []Entry
}

// LegacyFields carries the flat price columns older product records still use.
// Any nil field is treated as absent.
type LegacyFields struct {
	Price     *Money
	UnitPrice *Money
	BoxPrice  *Money
	CostPrice *Money
	Tiers     []LegacyTier
}

// LegacyTier is one of the up-to-three flat discount tiers of the old format.
type LegacyTier struct {
	MinQuantity int64
	Percent     int
}

// Normalize maps either the entry rows (new format) or the legacy flat fields into
// a single Table. The new format wins whenever it contains at least one active
// entry. Soft-invariant violations are returned as warnings, never as errors:
// years of accumulated product records make strictness here unusable.
func Normalize(entries []Entry, legacy LegacyFields) (Table, []string) {
	var warnings []string

	active := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Active {
			active = append(active, e)
		}
	}
	if len(active) > 0 {
		warnings = append(warnings, checkTable(active)...)
		return Table{Entries: active}, warnings
	}

	out := make([]Entry, 0, 4+len(legacy.Tiers))
	unit := legacy.UnitPrice
	if unit == nil {
		unit = legacy.Price
	}
	if unit != nil {
		out = append(out, Entry{Kind: KindUnit, Amount: *unit, Active: true})
	}
	if legacy.BoxPrice != nil {
		out = append(out, Entry{Kind: KindBox, Amount: *legacy.BoxPrice, Active: true})
	}
	if legacy.CostPrice != nil {
		out = append(out, Entry{Kind: KindCost, Amount: *legacy.CostPrice, Active: true})
	}
	for i, tier := range legacy.Tiers {
		if tier.MinQuantity <= 0 || tier.Percent <= 0 {
			continue
		}
		out = append(out, Entry{
			Kind:            KindDiscount,
			MinQuantity:     tier.MinQuantity,
			DiscountPercent: tier.Percent,
			Tier:            i + 1,
			Active:          true,
		})
	}
	warnings = append(warnings, checkTable(out)...)
	return Table{Entries: out}, warnings
}

func checkTable(entries []Entry) []string {
	var warnings []string
	var cost, unit *Entry
	seen := map[Kind]int{}
	for i := range entries {
		e := &entries[i]
		switch e.Kind {
		case KindCost:
			cost = e
		case KindUnit:
			unit = e
		}
		if e.Kind != KindDiscount {
			seen[e.Kind]++
		}
		if e.Kind == KindDiscount && (e.DiscountPercent < 0 || e.DiscountPercent > 100) {
			warnings = append(warnings, fmt.Sprintf("discount tier %d has percent %d outside 0-100", e.Tier, e.DiscountPercent))
		}
	}
	for kind, n := range seen {
		if n > 1 {
			warnings = append(warnings, fmt.Sprintf("multiple active %s entries", kind))
		}
	}
	if cost != nil && unit != nil && cost.Amount >= unit.Amount {
		warnings = append(warnings, fmt.Sprintf("cost price %d is not below unit price %d", cost.Amount, unit.Amount))
	}
	return warnings
}

func (t Table) activeByKind(kind Kind) (Entry, bool) {
	for _, e := range t.Entries {
		if e.Active && e.Kind == kind {
			return e, true
		}
	}
	return Entry{}, false
}
