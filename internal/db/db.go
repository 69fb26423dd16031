package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX abstracts a pgx pool, connection, or transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries bundles all hand-written SQL against a DBTX.
type Queries struct {
	db DBTX
}

// New constructs Queries on top of the provided pool or connection.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns Queries bound to the given transaction.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// Product is a row of the products table.
type Product struct {
	ID                pgtype.UUID
	Name              string
	SKU               string
	Unit              string
	UnitsPerBox       int64
	MetersPerRoll     float64
	Quantity          int64
	LowStockThreshold int64
	LegacyPrice       pgtype.Int8
	LegacyUnitPrice   pgtype.Int8
	LegacyBoxPrice    pgtype.Int8
	LegacyCostPrice   pgtype.Int8
	LegacyTier1MinQty pgtype.Int8
	LegacyTier1Pct    pgtype.Int4
	LegacyTier2MinQty pgtype.Int8
	LegacyTier2Pct    pgtype.Int4
	LegacyTier3MinQty pgtype.Int8
	LegacyTier3Pct    pgtype.Int4
	CreatedAt         pgtype.Timestamptz
	UpdatedAt         pgtype.Timestamptz
}

// PriceEntry is a row of the price_entries table.
type PriceEntry struct {
	ID              pgtype.UUID
	ProductID       pgtype.UUID
	Kind            string
	Amount          int64
	MinQty          pgtype.Int8
	MaxQty          pgtype.Int8
	DiscountPercent pgtype.Int4
	Tier            int32
	Active          bool
	CreatedAt       pgtype.Timestamptz
}

// Customer is a row of the customers table.
type Customer struct {
	ID             pgtype.UUID
	Name           string
	Phone          string
	Debt           int64
	TotalPurchases int64
	TotalBalls     int64
	CreatedAt      pgtype.Timestamptz
	UpdatedAt      pgtype.Timestamptz
}

// Receipt is a row of the receipts table.
type Receipt struct {
	ID            pgtype.UUID
	Number        string
	CustomerID    pgtype.UUID
	DebtID        pgtype.UUID
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
	CreatedAt     pgtype.Timestamptz
}

// ReceiptItem is a row of the receipt_items table.
type ReceiptItem struct {
	ID        pgtype.UUID
	ReceiptID pgtype.UUID
	ProductID pgtype.UUID
	Name      string
	Unit      string
	Price     int64
	Quantity  int64
}

// Debt is a row of the debts table.
type Debt struct {
	ID         pgtype.UUID
	CustomerID pgtype.UUID
	Amount     int64
	PaidAmount int64
	Status     string
	DueDate    pgtype.Timestamptz
	Note       pgtype.Text
	CreatedAt  pgtype.Timestamptz
	UpdatedAt  pgtype.Timestamptz
}

// DebtPayment is a row of the debt_payments ledger.
type DebtPayment struct {
	ID        pgtype.UUID
	DebtID    pgtype.UUID
	ReceiptID pgtype.UUID
	Amount    int64
	Method    string
	Note      pgtype.Text
	CreatedAt pgtype.Timestamptz
}

// Staff is a row of the staff table.
type Staff struct {
	ID           pgtype.UUID
	Name         string
	Phone        string
	PasswordHash string
	Role         string
	CreatedAt    pgtype.Timestamptz
}

// Event is a row of the events table.
type Event struct {
	ID        pgtype.UUID
	Topic     string
	EntityID  pgtype.UUID
	Payload   []byte
	CreatedAt pgtype.Timestamptz
}

// Debt statuses. POS-originated debts are created approved; manually entered
// ones start pending and require admin review.
const (
	DebtStatusPending  = "pending"
	DebtStatusApproved = "approved"
	DebtStatusPaid     = "paid"
	DebtStatusRejected = "rejected"
)
