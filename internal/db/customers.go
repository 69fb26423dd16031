package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const customerColumns = `id, name, phone, debt, total_purchases, total_balls, created_at, updated_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Debt, &c.TotalPurchases, &c.TotalBalls,
		&c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// GetCustomerByID loads a single customer.
func (q *Queries) GetCustomerByID(ctx context.Context, id pgtype.UUID) (Customer, error) {
	row := q.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	return scanCustomer(row)
}

// GetCustomerForUpdate loads a customer with a row lock for settlement.
func (q *Queries) GetCustomerForUpdate(ctx context.Context, id pgtype.UUID) (Customer, error) {
	row := q.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1 FOR UPDATE`, id)
	return scanCustomer(row)
}

// ListCustomers pages customers with an optional name/phone filter.
func (q *Queries) ListCustomers(ctx context.Context, query string, limit, offset int32) ([]Customer, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+customerColumns+` FROM customers
		WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR phone ILIKE '%' || $1 || '%')
		ORDER BY name LIMIT $2 OFFSET $3`, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountCustomers counts customers matching the ListCustomers filter.
func (q *Queries) CountCustomers(ctx context.Context, query string) (int64, error) {
	var total int64
	err := q.db.QueryRow(ctx, `
		SELECT count(*) FROM customers
		WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR phone ILIKE '%' || $1 || '%')`, query).Scan(&total)
	return total, err
}

// CreateCustomer inserts a customer with zeroed aggregates.
func (q *Queries) CreateCustomer(ctx context.Context, name, phone string) (Customer, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO customers (name, phone) VALUES ($1, $2)
		RETURNING `+customerColumns, name, phone)
	return scanCustomer(row)
}

// UpdateCustomer updates the customer's identity fields.
func (q *Queries) UpdateCustomer(ctx context.Context, id pgtype.UUID, name, phone string) (Customer, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE customers SET name = $2, phone = $3, updated_at = now()
		WHERE id = $1 RETURNING `+customerColumns, id, name, phone)
	return scanCustomer(row)
}

// ApplyCustomerPurchase adds to the purchase and loyalty aggregates. Negative
// values reverse a deleted receipt.
func (q *Queries) ApplyCustomerPurchase(ctx context.Context, id pgtype.UUID, amount, balls int64) error {
	_, err := q.db.Exec(ctx, `
		UPDATE customers SET total_purchases = total_purchases + $2,
			total_balls = total_balls + $3, updated_at = now()
		WHERE id = $1`, id, amount, balls)
	return err
}

// AdjustCustomerDebt moves the denormalized debt cache by a signed delta. Only
// call inside the transaction that mutates the underlying debt records.
func (q *Queries) AdjustCustomerDebt(ctx context.Context, id pgtype.UUID, delta int64) error {
	_, err := q.db.Exec(ctx, `
		UPDATE customers SET debt = debt + $2, updated_at = now() WHERE id = $1`, id, delta)
	return err
}

// SumOpenDebt recomputes a customer's outstanding debt from the source of
// truth, used by consistency checks against the cache.
func (q *Queries) SumOpenDebt(ctx context.Context, customerID pgtype.UUID) (int64, error) {
	var total int64
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount - paid_amount), 0) FROM debts
		WHERE customer_id = $1 AND status IN ($2, $3)`,
		customerID, DebtStatusPending, DebtStatusApproved).Scan(&total)
	return total, err
}
