package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const debtColumns = `id, customer_id, amount, paid_amount, status, due_date, note, created_at, updated_at`

func scanDebt(row pgx.Row) (Debt, error) {
	var d Debt
	err := row.Scan(&d.ID, &d.CustomerID, &d.Amount, &d.PaidAmount, &d.Status,
		&d.DueDate, &d.Note, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

// CreateDebtParams carries a new debt record.
type CreateDebtParams struct {
	CustomerID pgtype.UUID
	Amount     int64
	Status     string
	DueDate    pgtype.Timestamptz
	Note       pgtype.Text
}

// CreateDebt inserts a new debt record.
func (q *Queries) CreateDebt(ctx context.Context, arg CreateDebtParams) (Debt, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO debts (customer_id, amount, status, due_date, note)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+debtColumns, arg.CustomerID, arg.Amount, arg.Status, arg.DueDate, arg.Note)
	return scanDebt(row)
}

// GetDebtByID loads a debt.
func (q *Queries) GetDebtByID(ctx context.Context, id pgtype.UUID) (Debt, error) {
	row := q.db.QueryRow(ctx, `SELECT `+debtColumns+` FROM debts WHERE id = $1`, id)
	return scanDebt(row)
}

// GetDebtForUpdate loads a debt with a row lock.
func (q *Queries) GetDebtForUpdate(ctx context.Context, id pgtype.UUID) (Debt, error) {
	row := q.db.QueryRow(ctx, `SELECT `+debtColumns+` FROM debts WHERE id = $1 FOR UPDATE`, id)
	return scanDebt(row)
}

// GetLatestOpenDebtForUpdate returns the customer's most recent open debt with
// a row lock, or pgx.ErrNoRows. Settlement augments this record instead of
// creating one debt per sale.
func (q *Queries) GetLatestOpenDebtForUpdate(ctx context.Context, customerID pgtype.UUID) (Debt, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+debtColumns+` FROM debts
		WHERE customer_id = $1 AND status IN ($2, $3)
		ORDER BY created_at DESC LIMIT 1 FOR UPDATE`,
		customerID, DebtStatusPending, DebtStatusApproved)
	return scanDebt(row)
}

// ListOpenDebtsForUpdate returns the customer's open debts oldest first, all
// row-locked; this ordering is the FIFO payoff policy.
func (q *Queries) ListOpenDebtsForUpdate(ctx context.Context, customerID pgtype.UUID) ([]Debt, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+debtColumns+` FROM debts
		WHERE customer_id = $1 AND status IN ($2, $3)
		ORDER BY created_at ASC FOR UPDATE`,
		customerID, DebtStatusPending, DebtStatusApproved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Debt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// AddToDebt increases (or with a negative delta decreases) the owed amount,
// appending an audit note. The amount never drops below what was already paid.
func (q *Queries) AddToDebt(ctx context.Context, id pgtype.UUID, delta int64, note string) (Debt, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE debts SET amount = GREATEST(paid_amount, amount + $2),
			note = CASE WHEN $3 <> '' THEN trim(E'\n' FROM COALESCE(note, '') || E'\n' || $3) ELSE note END,
			status = CASE WHEN GREATEST(paid_amount, amount + $2) <= paid_amount THEN $4 ELSE status END,
			updated_at = now()
		WHERE id = $1 RETURNING `+debtColumns, id, delta, note, DebtStatusPaid)
	return scanDebt(row)
}

// ApplyDebtPayment raises paid_amount, flipping the debt to paid when fully
// covered. The caller caps amount so paid_amount never exceeds amount.
func (q *Queries) ApplyDebtPayment(ctx context.Context, id pgtype.UUID, amount int64) (Debt, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE debts SET paid_amount = paid_amount + $2,
			status = CASE WHEN paid_amount + $2 >= amount THEN $3 ELSE status END,
			updated_at = now()
		WHERE id = $1 RETURNING `+debtColumns, id, amount, DebtStatusPaid)
	return scanDebt(row)
}

// ReverseDebtPayment lowers paid_amount and reopens the debt when it is no
// longer fully covered. Used by the receipt delete-and-rollback path.
func (q *Queries) ReverseDebtPayment(ctx context.Context, id pgtype.UUID, amount int64) (Debt, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE debts SET paid_amount = GREATEST(0, paid_amount - $2),
			status = CASE WHEN GREATEST(0, paid_amount - $2) < amount AND status = $3 THEN $4 ELSE status END,
			updated_at = now()
		WHERE id = $1 RETURNING `+debtColumns, id, amount, DebtStatusPaid, DebtStatusApproved)
	return scanDebt(row)
}

// UpdateDebtStatus sets the review status of a debt.
func (q *Queries) UpdateDebtStatus(ctx context.Context, id pgtype.UUID, status string) (Debt, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE debts SET status = $2, updated_at = now()
		WHERE id = $1 RETURNING `+debtColumns, id, status)
	return scanDebt(row)
}

// ListDebtsParams filters the debts listing.
type ListDebtsParams struct {
	CustomerID pgtype.UUID
	Status     string
	Limit      int32
	Offset     int32
}

// ListDebts returns debts newest first, optionally narrowed by customer or status.
func (q *Queries) ListDebts(ctx context.Context, arg ListDebtsParams) ([]Debt, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+debtColumns+` FROM debts
		WHERE ($1::uuid IS NULL OR customer_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`, arg.CustomerID, arg.Status, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Debt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CountDebts returns the number of debts matching the listing filters.
func (q *Queries) CountDebts(ctx context.Context, arg ListDebtsParams) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `
		SELECT count(*) FROM debts
		WHERE ($1::uuid IS NULL OR customer_id = $1)
		  AND ($2 = '' OR status = $2)`, arg.CustomerID, arg.Status).Scan(&n)
	return n, err
}

// InsertDebtPaymentParams carries one ledger entry.
type InsertDebtPaymentParams struct {
	DebtID    pgtype.UUID
	ReceiptID pgtype.UUID
	Amount    int64
	Method    string
	Note      pgtype.Text
}

// InsertDebtPayment appends to the payment ledger of a debt.
func (q *Queries) InsertDebtPayment(ctx context.Context, arg InsertDebtPaymentParams) (DebtPayment, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO debt_payments (debt_id, receipt_id, amount, method, note)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, debt_id, receipt_id, amount, method, note, created_at`,
		arg.DebtID, arg.ReceiptID, arg.Amount, arg.Method, arg.Note)
	var p DebtPayment
	err := row.Scan(&p.ID, &p.DebtID, &p.ReceiptID, &p.Amount, &p.Method, &p.Note, &p.CreatedAt)
	return p, err
}

// ListDebtPayments returns the payment ledger of a debt oldest first.
func (q *Queries) ListDebtPayments(ctx context.Context, debtID pgtype.UUID) ([]DebtPayment, error) {
	return q.listDebtPayments(ctx, `debt_id = $1`, debtID)
}

// ListDebtPaymentsByReceipt returns payments a given receipt's surplus
// allocated, used when reversing that receipt.
func (q *Queries) ListDebtPaymentsByReceipt(ctx context.Context, receiptID pgtype.UUID) ([]DebtPayment, error) {
	return q.listDebtPayments(ctx, `receipt_id = $1`, receiptID)
}

func (q *Queries) listDebtPayments(ctx context.Context, where string, arg any) ([]DebtPayment, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, debt_id, receipt_id, amount, method, note, created_at
		FROM debt_payments WHERE `+where+` ORDER BY created_at ASC`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DebtPayment
	for rows.Next() {
		var p DebtPayment
		if err := rows.Scan(&p.ID, &p.DebtID, &p.ReceiptID, &p.Amount, &p.Method, &p.Note, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteDebtPaymentsByReceipt removes the ledger rows a reversed receipt created.
func (q *Queries) DeleteDebtPaymentsByReceipt(ctx context.Context, receiptID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM debt_payments WHERE receipt_id = $1`, receiptID)
	return err
}
