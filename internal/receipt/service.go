package receipt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/aziz-dev/backend-kassa/internal/common"
	"github.com/aziz-dev/backend-kassa/internal/db"
)

// Querier is the slice of db.Queries the receipt history surface reads.
type Querier interface {
	GetReceiptByID(ctx context.Context, id pgtype.UUID) (db.Receipt, error)
	ListReceipts(ctx context.Context, arg db.ListReceiptsParams) ([]db.Receipt, error)
	CountReceipts(ctx context.Context, arg db.ListReceiptsParams) (int64, error)
	ListReceiptItems(ctx context.Context, receiptID pgtype.UUID) ([]db.ReceiptItem, error)
}

// Reverser undoes a settled receipt; settlement.Service provides it.
type Reverser interface {
	Reverse(ctx context.Context, receiptID string) error
}

// Service reads receipt history and delegates deletion to settlement so the
// stock, loyalty and debt side effects unwind in one transaction.
type Service struct {
	Q        Querier
	Reverser Reverser
}

// ItemView is one captured line of a receipt.
type ItemView struct {
	ProductID string `json:"productId,omitempty"`
	Name      string `json:"name"`
	Unit      string `json:"unit"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
}

// View is the API payload for a receipt.
type View struct {
	ID            string     `json:"id"`
	Number        string     `json:"number"`
	CustomerID    string     `json:"customerId,omitempty"`
	DebtID        string     `json:"debtId,omitempty"`
	Subtotal      int64      `json:"subtotal"`
	Discount      int64      `json:"discount"`
	Total         int64      `json:"total"`
	PaidAmount    int64      `json:"paidAmount"`
	CashAmount    int64      `json:"cashAmount"`
	CardAmount    int64      `json:"cardAmount"`
	ClickAmount   int64      `json:"clickAmount"`
	ChangeAmount  int64      `json:"changeAmount"`
	DebtAmount    int64      `json:"debtAmount"`
	PaymentMethod string     `json:"paymentMethod"`
	IsReturn      bool       `json:"isReturn"`
	CreatedAt     time.Time  `json:"createdAt"`
	Items         []ItemView `json:"items,omitempty"`
}

// ListParams filters the receipt listing.
type ListParams struct {
	CustomerID string
	From       *time.Time
	To         *time.Time
	Page       int
	Limit      int
}

// ListResult contains list data and pagination metadata.
type ListResult struct {
	Items []View
	Total int64
	Page  int
	Limit int
}

// List pages receipts newest first, optionally narrowed by customer and a
// created_at window. To is exclusive so a day range is [from, from+24h).
func (s *Service) List(ctx context.Context, p ListParams) (ListResult, error) {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = 50
	}
	if p.Limit > 200 {
		p.Limit = 200
	}
	arg := db.ListReceiptsParams{
		Limit:  int32(p.Limit),
		Offset: int32((p.Page - 1) * p.Limit),
	}
	if p.CustomerID != "" {
		cid, err := db.ToUUID(p.CustomerID)
		if err != nil {
			return ListResult{}, badRequest("invalid customer id", err)
		}
		arg.CustomerID = cid
	}
	if p.From != nil {
		arg.From = pgtype.Timestamptz{Time: *p.From, Valid: true}
	}
	if p.To != nil {
		arg.To = pgtype.Timestamptz{Time: *p.To, Valid: true}
	}
	receipts, err := s.Q.ListReceipts(ctx, arg)
	if err != nil {
		return ListResult{}, fmt.Errorf("list receipts: %w", err)
	}
	total, err := s.Q.CountReceipts(ctx, arg)
	if err != nil {
		return ListResult{}, fmt.Errorf("count receipts: %w", err)
	}
	items := make([]View, 0, len(receipts))
	for _, r := range receipts {
		items = append(items, NewView(r, nil))
	}
	return ListResult{Items: items, Total: total, Page: p.Page, Limit: p.Limit}, nil
}

// Get returns one receipt with its captured lines.
func (s *Service) Get(ctx context.Context, id string) (View, error) {
	rid, err := db.ToUUID(id)
	if err != nil {
		return View{}, badRequest("invalid receipt id", err)
	}
	r, err := s.Q.GetReceiptByID(ctx, rid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return View{}, notFound("receipt not found", err)
		}
		return View{}, fmt.Errorf("get receipt: %w", err)
	}
	lines, err := s.Q.ListReceiptItems(ctx, rid)
	if err != nil {
		return View{}, fmt.Errorf("list receipt items: %w", err)
	}
	return NewView(r, lines), nil
}

// Delete unwinds a settled receipt. Stock returns, loyalty and debt effects
// reverse and the row disappears; the receipt number is not reused.
func (s *Service) Delete(ctx context.Context, id string) error {
	if s.Reverser == nil {
		return errors.New("receipt reversal not configured")
	}
	return s.Reverser.Reverse(ctx, id)
}

// NewView renders a stored receipt, and optionally its lines, as the API payload.
func NewView(r db.Receipt, lines []db.ReceiptItem) View {
	v := View{
		ID:            db.UUIDString(r.ID),
		Number:        r.Number,
		Subtotal:      r.Subtotal,
		Discount:      r.Discount,
		Total:         r.Total,
		PaidAmount:    r.PaidAmount,
		CashAmount:    r.CashAmount,
		CardAmount:    r.CardAmount,
		ClickAmount:   r.ClickAmount,
		ChangeAmount:  r.ChangeAmount,
		DebtAmount:    r.DebtAmount,
		PaymentMethod: r.PaymentMethod,
		IsReturn:      r.IsReturn,
		CreatedAt:     r.CreatedAt.Time,
	}
	if r.CustomerID.Valid {
		v.CustomerID = db.UUIDString(r.CustomerID)
	}
	if r.DebtID.Valid {
		v.DebtID = db.UUIDString(r.DebtID)
	}
	for _, it := range lines {
		item := ItemView{Name: it.Name, Unit: it.Unit, Price: it.Price, Quantity: it.Quantity}
		if it.ProductID.Valid {
			item.ProductID = db.UUIDString(it.ProductID)
		}
		v.Items = append(v.Items, item)
	}
	return v
}

func badRequest(message string, err error) *common.AppError {
	return &common.AppError{Code: "BAD_REQUEST", Message: message, HTTPStatus: http.StatusBadRequest, Err: err}
}

func notFound(message string, err error) *common.AppError {
	return &common.AppError{Code: "NOT_FOUND", Message: message, HTTPStatus: http.StatusNotFound, Err: err}
}
