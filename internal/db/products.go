package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const productColumns = `id, name, sku, unit, units_per_box, meters_per_roll, quantity,
	low_stock_threshold, legacy_price, legacy_unit_price, legacy_box_price, legacy_cost_price,
	legacy_tier1_min_qty, legacy_tier1_pct, legacy_tier2_min_qty, legacy_tier2_pct,
	legacy_tier3_min_qty, legacy_tier3_pct, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.Unit, &p.UnitsPerBox, &p.MetersPerRoll,
		&p.Quantity, &p.LowStockThreshold, &p.LegacyPrice, &p.LegacyUnitPrice,
		&p.LegacyBoxPrice, &p.LegacyCostPrice, &p.LegacyTier1MinQty, &p.LegacyTier1Pct,
		&p.LegacyTier2MinQty, &p.LegacyTier2Pct, &p.LegacyTier3MinQty, &p.LegacyTier3Pct,
		&p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// GetProductByID loads a single product.
func (q *Queries) GetProductByID(ctx context.Context, id pgtype.UUID) (Product, error) {
	row := q.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	return scanProduct(row)
}

// GetProductForUpdate loads a product with a row lock, used by settlement to
// serialize concurrent stock mutation.
func (q *Queries) GetProductForUpdate(ctx context.Context, id pgtype.UUID) (Product, error) {
	row := q.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id)
	return scanProduct(row)
}

// ListProductsParams narrows and pages the product listing.
type ListProductsParams struct {
	Query    string
	LowStock bool
	Limit    int32
	Offset   int32
}

// ListProducts returns products matching the optional name/sku filter.
func (q *Queries) ListProducts(ctx context.Context, arg ListProductsParams) ([]Product, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR sku ILIKE '%' || $1 || '%')
		  AND (NOT $2 OR quantity <= low_stock_threshold)
		ORDER BY name
		LIMIT $3 OFFSET $4`, arg.Query, arg.LowStock, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountProducts counts products matching the same filter as ListProducts.
func (q *Queries) CountProducts(ctx context.Context, query string, lowStock bool) (int64, error) {
	var total int64
	err := q.db.QueryRow(ctx, `
		SELECT count(*) FROM products
		WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR sku ILIKE '%' || $1 || '%')
		  AND (NOT $2 OR quantity <= low_stock_threshold)`, query, lowStock).Scan(&total)
	return total, err
}

// CreateProductParams carries insert values for a product.
type CreateProductParams struct {
	Name              string
	SKU               string
	Unit              string
	UnitsPerBox       int64
	MetersPerRoll     float64
	Quantity          int64
	LowStockThreshold int64
}

// CreateProduct inserts a new product.
func (q *Queries) CreateProduct(ctx context.Context, arg CreateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO products (name, sku, unit, units_per_box, meters_per_roll, quantity, low_stock_threshold)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+productColumns, arg.Name, arg.SKU, arg.Unit, arg.UnitsPerBox,
		arg.MetersPerRoll, arg.Quantity, arg.LowStockThreshold)
	return scanProduct(row)
}

// UpdateProductParams carries update values for a product.
type UpdateProductParams struct {
	ID                pgtype.UUID
	Name              string
	Unit              string
	UnitsPerBox       int64
	MetersPerRoll     float64
	Quantity          int64
	LowStockThreshold int64
}

// UpdateProduct replaces the mutable product fields.
func (q *Queries) UpdateProduct(ctx context.Context, arg UpdateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE products SET name = $2, unit = $3, units_per_box = $4, meters_per_roll = $5,
			quantity = $6, low_stock_threshold = $7, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns, arg.ID, arg.Name, arg.Unit, arg.UnitsPerBox,
		arg.MetersPerRoll, arg.Quantity, arg.LowStockThreshold)
	return scanProduct(row)
}

// AdjustProductStock applies a signed stock delta and returns the new quantity.
func (q *Queries) AdjustProductStock(ctx context.Context, id pgtype.UUID, delta int64) (int64, error) {
	var qty int64
	err := q.db.QueryRow(ctx, `
		UPDATE products SET quantity = quantity + $2, updated_at = now()
		WHERE id = $1 RETURNING quantity`, id, delta).Scan(&qty)
	return qty, err
}

// ListPriceEntries returns all price table rows of a product ordered by kind and tier.
func (q *Queries) ListPriceEntries(ctx context.Context, productID pgtype.UUID) ([]PriceEntry, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, product_id, kind, amount, min_qty, max_qty, discount_percent, tier, active, created_at
		FROM price_entries WHERE product_id = $1 ORDER BY kind, tier, min_qty`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PriceEntry
	for rows.Next() {
		var e PriceEntry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.Kind, &e.Amount, &e.MinQty, &e.MaxQty,
			&e.DiscountPercent, &e.Tier, &e.Active, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeletePriceEntries removes a product's whole price table, used before replacement.
func (q *Queries) DeletePriceEntries(ctx context.Context, productID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM price_entries WHERE product_id = $1`, productID)
	return err
}

// InsertPriceEntryParams carries one price table row.
type InsertPriceEntryParams struct {
	ProductID       pgtype.UUID
	Kind            string
	Amount          int64
	MinQty          pgtype.Int8
	MaxQty          pgtype.Int8
	DiscountPercent pgtype.Int4
	Tier            int32
	Active          bool
}

// InsertPriceEntry adds one row to a product's price table.
func (q *Queries) InsertPriceEntry(ctx context.Context, arg InsertPriceEntryParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO price_entries (product_id, kind, amount, min_qty, max_qty, discount_percent, tier, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		arg.ProductID, arg.Kind, arg.Amount, arg.MinQty, arg.MaxQty, arg.DiscountPercent, arg.Tier, arg.Active)
	return err
}
