package pricing

import "math"

// Line is one cart line submitted for valuation.
type Line struct {
	ProductID   string
	Name        string
	Unit        string
	SaleUnit    SaleUnit
	Quantity    int64
	UnitsPerBox int64
	Table       Table
}

// LineTotal is the valued counterpart of a Line, carrying the resolved price
// snapshot the settlement later captures verbatim.
type LineTotal struct {
	ProductID   string
	Name        string
	Unit        string
	Quantity    int64
	UnitPrice   Money
	Total       Money
	AppliedTier *Entry
}

// Valuation aggregates per-line totals into a cart subtotal.
type Valuation struct {
	Lines    []LineTotal
	Subtotal Money
}

// ValueCart resolves every line and sums the cart. It is pure: identical input
// always yields identical output, so the UI can re-run it on every keystroke.
// Lines with non-positive quantity contribute nothing. Stock is not consulted
// here - it is authoritative only at settlement time.
func ValueCart(lines []Line) Valuation {
	out := Valuation{Lines: make([]LineTotal, 0, len(lines))}
	for _, line := range lines {
		lt := LineTotal{
			ProductID: line.ProductID,
			Name:      line.Name,
			Unit:      line.Unit,
			Quantity:  line.Quantity,
		}
		if line.Quantity > 0 {
			res := Resolve(line.Table, line.Quantity, line.SaleUnit, line.UnitsPerBox)
			lt.UnitPrice = res.UnitPrice
			lt.Total = res.UnitPrice * line.Quantity
			lt.AppliedTier = res.AppliedTier
		}
		out.Lines = append(out.Lines, lt)
		out.Subtotal += lt.Total
	}
	return out
}

// RollDisplayQty converts a tracked base-unit quantity (meters) into the
// roll count shown to the cashier, rounded to one decimal. Presentation only:
// the persisted quantity stays in base units.
func RollDisplayQty(baseQty int64, metersPerRoll float64) float64 {
	if metersPerRoll <= 0 {
		return float64(baseQty)
	}
	return math.Round(float64(baseQty)/metersPerRoll*10) / 10
}

// MaxRolls is the largest whole roll count the available stock covers, used to
// clamp roll-mode quantity edits.
func MaxRolls(availableStock int64, metersPerRoll float64) int64 {
	if metersPerRoll <= 0 {
		return availableStock
	}
	return int64(math.Floor(float64(availableStock) / metersPerRoll))
}
