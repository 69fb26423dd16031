package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const receiptColumns = `id, number, customer_id, debt_id, subtotal, discount, total, paid_amount,
	cash_amount, card_amount, click_amount, change_amount, debt_amount, payment_method,
	is_return, created_by, created_at`

func scanReceipt(row pgx.Row) (Receipt, error) {
	var r Receipt
	err := row.Scan(&r.ID, &r.Number, &r.CustomerID, &r.DebtID, &r.Subtotal, &r.Discount,
		&r.Total, &r.PaidAmount, &r.CashAmount, &r.CardAmount, &r.ClickAmount,
		&r.ChangeAmount, &r.DebtAmount, &r.PaymentMethod, &r.IsReturn, &r.CreatedBy, &r.CreatedAt)
	return r, err
}

// InsertReceiptParams carries a finalized receipt.
type InsertReceiptParams struct {
	Number        string
	CustomerID    pgtype.UUID
	Subtotal      int64
	Discount      int64
	Total         int64
	PaidAmount    int64
	CashAmount    int64
	CardAmount    int64
	ClickAmount   int64
	ChangeAmount  int64
	DebtAmount    int64
	PaymentMethod string
	IsReturn      bool
	CreatedBy     pgtype.UUID
}

// InsertReceipt persists a receipt row.
func (q *Queries) InsertReceipt(ctx context.Context, arg InsertReceiptParams) (Receipt, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO receipts (number, customer_id, subtotal, discount, total, paid_amount,
			cash_amount, card_amount, click_amount, change_amount, debt_amount,
			payment_method, is_return, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING `+receiptColumns,
		arg.Number, arg.CustomerID, arg.Subtotal, arg.Discount, arg.Total, arg.PaidAmount,
		arg.CashAmount, arg.CardAmount, arg.ClickAmount, arg.ChangeAmount, arg.DebtAmount,
		arg.PaymentMethod, arg.IsReturn, arg.CreatedBy)
	return scanReceipt(row)
}

// SetReceiptChange overwrites the change amount after an overpayment surplus
// was redirected into debt payoff instead of being handed back.
func (q *Queries) SetReceiptChange(ctx context.Context, id pgtype.UUID, change int64) error {
	_, err := q.db.Exec(ctx, `UPDATE receipts SET change_amount = $2 WHERE id = $1`, id, change)
	return err
}

// SetReceiptDebt links the receipt to the debt it created or augmented.
func (q *Queries) SetReceiptDebt(ctx context.Context, receiptID, debtID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE receipts SET debt_id = $2 WHERE id = $1`, receiptID, debtID)
	return err
}

// InsertReceiptItemParams carries one captured line of a receipt.
type InsertReceiptItemParams struct {
	ReceiptID pgtype.UUID
	ProductID pgtype.UUID
	Name      string
	Unit      string
	Price     int64
	Quantity  int64
}

// InsertReceiptItem persists one receipt line with its captured price.
func (q *Queries) InsertReceiptItem(ctx context.Context, arg InsertReceiptItemParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO receipt_items (receipt_id, product_id, name, unit, price, quantity)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		arg.ReceiptID, arg.ProductID, arg.Name, arg.Unit, arg.Price, arg.Quantity)
	return err
}

// GetReceiptByID loads a receipt.
func (q *Queries) GetReceiptByID(ctx context.Context, id pgtype.UUID) (Receipt, error) {
	row := q.db.QueryRow(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE id = $1`, id)
	return scanReceipt(row)
}

// ListReceiptItems returns the captured lines of a receipt.
func (q *Queries) ListReceiptItems(ctx context.Context, receiptID pgtype.UUID) ([]ReceiptItem, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, receipt_id, product_id, name, unit, price, quantity
		FROM receipt_items WHERE receipt_id = $1 ORDER BY name`, receiptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ReceiptItem
	for rows.Next() {
		var it ReceiptItem
		if err := rows.Scan(&it.ID, &it.ReceiptID, &it.ProductID, &it.Name, &it.Unit, &it.Price, &it.Quantity); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// ListReceiptsParams filters and pages the receipts listing.
type ListReceiptsParams struct {
	CustomerID pgtype.UUID
	From       pgtype.Timestamptz
	To         pgtype.Timestamptz
	Limit      int32
	Offset     int32
}

// ListReceipts returns receipts newest first.
func (q *Queries) ListReceipts(ctx context.Context, arg ListReceiptsParams) ([]Receipt, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+receiptColumns+` FROM receipts
		WHERE ($1::uuid IS NULL OR customer_id = $1)
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5`, arg.CustomerID, arg.From, arg.To, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountReceipts counts receipts matching the ListReceipts filter.
func (q *Queries) CountReceipts(ctx context.Context, arg ListReceiptsParams) (int64, error) {
	var total int64
	err := q.db.QueryRow(ctx, `
		SELECT count(*) FROM receipts
		WHERE ($1::uuid IS NULL OR customer_id = $1)
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)`,
		arg.CustomerID, arg.From, arg.To).Scan(&total)
	return total, err
}

// NextReceiptSeq returns one past the highest sequence already issued under
// the day prefix, e.g. "KS-20250314". Deriving it from the surviving numbers
// rather than a row count keeps a number unique even after a receipt in the
// middle of the day was reversed. The advisory lock serializes concurrent
// settlements so two transactions cannot draw the same sequence; it releases
// with the transaction.
func (q *Queries) NextReceiptSeq(ctx context.Context, prefix string) (int64, error) {
	if _, err := q.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('receipts.number'))`); err != nil {
		return 0, err
	}
	var seq int64
	err := q.db.QueryRow(ctx, `
		SELECT coalesce(max(split_part(number, '-', 3)::bigint), 0) + 1
		FROM receipts WHERE number LIKE $1 || '-%'`, prefix).Scan(&seq)
	return seq, err
}

// DeleteReceipt removes a receipt and, via cascade, its items.
func (q *Queries) DeleteReceipt(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM receipts WHERE id = $1`, id)
	return err
}
