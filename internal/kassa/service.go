package kassa

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/aziz-dev/backend-kassa/internal/catalog"
	"github.com/aziz-dev/backend-kassa/internal/common"
	"github.com/aziz-dev/backend-kassa/internal/db"
	"github.com/aziz-dev/backend-kassa/internal/lock"
	"github.com/aziz-dev/backend-kassa/internal/payment"
	"github.com/aziz-dev/backend-kassa/internal/pricing"
	"github.com/aziz-dev/backend-kassa/internal/settlement"
)

// Querier is the slice of db.Queries the register needs to value a cart.
type Querier interface {
	GetProductByID(ctx context.Context, id pgtype.UUID) (db.Product, error)
	ListPriceEntries(ctx context.Context, productID pgtype.UUID) ([]db.PriceEntry, error)
}

// Settler finalizes a valued cart; settlement.Service provides it.
type Settler interface {
	Settle(ctx context.Context, in settlement.Input) (settlement.Output, error)
}

// Service is the register: it values carts for preview and drives checkout.
// Preview is pure and cheap, safe to call on every keystroke. Checkout
// serializes per customer so concurrent sales cannot race the same debt.
type Service struct {
	Q       Querier
	Settler Settler

	// Lock guards checkout per customer; ignored when no redis client is set.
	Lock    lock.Locker
	LockTTL time.Duration
}

// LineInput is one cart line as submitted by the register UI.
type LineInput struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
	SaleUnit  string `json:"saleUnit,omitempty" validate:"omitempty,oneof=unit box"`
}

// TenderInput carries the amounts offered per channel.
type TenderInput struct {
	Cash  int64 `json:"cash" validate:"gte=0"`
	Card  int64 `json:"card" validate:"gte=0"`
	Click int64 `json:"click" validate:"gte=0"`
}

// Request is the shared preview/checkout payload.
type Request struct {
	CustomerID string      `json:"customerId,omitempty"`
	Items      []LineInput `json:"items" validate:"required,min=1,dive"`
	Discount   int64       `json:"discount" validate:"gte=0"`
	Tender     TenderInput `json:"tender"`
	IsReturn   bool        `json:"isReturn"`
}

// LineView is one valued line of a preview.
type LineView struct {
	ProductID    string   `json:"productId"`
	Name         string   `json:"name"`
	Unit         string   `json:"unit"`
	Quantity     int64    `json:"quantity"`
	UnitPrice    int64    `json:"unitPrice"`
	Total        int64    `json:"total"`
	TierPercent  int      `json:"tierPercent,omitempty"`
	RollQuantity *float64 `json:"rollQuantity,omitempty"`
	MaxRolls     *int64   `json:"maxRolls,omitempty"`
	Available    int64    `json:"available"`
}

// SplitView mirrors the computed payment split.
type SplitView struct {
	CashAmount   int64  `json:"cashAmount"`
	CardAmount   int64  `json:"cardAmount"`
	ClickAmount  int64  `json:"clickAmount"`
	TotalPaid    int64  `json:"totalPaid"`
	Discount     int64  `json:"discount"`
	NetTotal     int64  `json:"netTotal"`
	DebtAmount   int64  `json:"debtAmount"`
	ChangeAmount int64  `json:"changeAmount"`
	Method       string `json:"method"`
}

// PreviewView is the full preview response. Blockers name the conditions that
// would stop this cart from settling as tendered.
type PreviewView struct {
	Lines    []LineView `json:"lines"`
	Subtotal int64      `json:"subtotal"`
	Split    SplitView  `json:"split"`
	Warnings []string   `json:"warnings,omitempty"`
	Blockers []string   `json:"blockers,omitempty"`
}

type valuedCart struct {
	valuation pricing.Valuation
	split     payment.Split
	lines     []LineView
	warnings  []string
}

// Preview values the cart and computes the payment split without touching any
// state. Stock shortages surface as blockers, not errors, so the UI can show
// them while the cashier is still typing.
func (s *Service) Preview(ctx context.Context, req Request) (PreviewView, error) {
	cart, err := s.value(ctx, req)
	if err != nil {
		return PreviewView{}, err
	}
	view := PreviewView{
		Lines:    cart.lines,
		Subtotal: cart.valuation.Subtotal,
		Split:    toSplitView(cart.split),
		Warnings: cart.warnings,
	}
	if !req.IsReturn {
		for _, line := range cart.lines {
			if line.Quantity > line.Available {
				view.Blockers = append(view.Blockers,
					fmt.Sprintf("%s: only %d in stock, %d requested", line.Name, line.Available, line.Quantity))
			}
		}
		if err := cart.split.Validate(); err != nil {
			view.Blockers = append(view.Blockers, err.Error())
		}
	}
	return view, nil
}

// Checkout values the cart and settles it. The price snapshot taken here is
// what the receipt captures; settlement never re-resolves prices.
func (s *Service) Checkout(ctx context.Context, req Request) (settlement.Output, error) {
	if s.Settler == nil {
		return settlement.Output{}, errors.New("kassa settler not configured")
	}
	cart, err := s.value(ctx, req)
	if err != nil {
		return settlement.Output{}, err
	}
	createdBy, _ := common.StaffID(ctx)
	in := settlement.Input{
		Split:     cart.split,
		IsReturn:  req.IsReturn,
		CreatedBy: createdBy,
	}
	for _, lt := range cart.valuation.Lines {
		in.Lines = append(in.Lines, settlement.Line{
			ProductID: lt.ProductID,
			Name:      lt.Name,
			Unit:      lt.Unit,
			Quantity:  lt.Quantity,
			UnitPrice: lt.UnitPrice,
		})
	}
	var out settlement.Output
	settle := func(ctx context.Context) error {
		var err error
		out, err = s.Settler.Settle(ctx, in)
		return err
	}
	if req.CustomerID != "" && s.Lock.R != nil {
		ttl := s.LockTTL
		if ttl <= 0 {
			ttl = 10 * time.Second
		}
		err = s.Lock.WithLock(ctx, "kassa:customer:"+req.CustomerID, ttl, settle)
	} else {
		err = settle(ctx)
	}
	if err != nil {
		return settlement.Output{}, err
	}
	return out, nil
}

// value loads products, resolves prices, and computes the split. Shared by
// preview and checkout so both see the identical cart.
func (s *Service) value(ctx context.Context, req Request) (valuedCart, error) {
	if len(req.Items) == 0 {
		return valuedCart{}, badRequest("cart is empty", nil)
	}
	var cart valuedCart
	priceLines := make([]pricing.Line, 0, len(req.Items))
	available := make([]int64, 0, len(req.Items))
	rolls := make([]*db.Product, 0, len(req.Items))
	for _, item := range req.Items {
		pid, err := db.ToUUID(item.ProductID)
		if err != nil {
			return valuedCart{}, badRequest("invalid product id "+item.ProductID, err)
		}
		if item.Quantity <= 0 {
			return valuedCart{}, badRequest("quantity must be positive", nil)
		}
		product, err := s.Q.GetProductByID(ctx, pid)
		if err != nil {
			return valuedCart{}, notFound("product "+item.ProductID+" not found", err)
		}
		entries, err := s.Q.ListPriceEntries(ctx, pid)
		if err != nil {
			return valuedCart{}, fmt.Errorf("list price entries: %w", err)
		}
		table, warnings := catalog.TableFor(product, entries)
		cart.warnings = append(cart.warnings, warnings...)
		saleUnit := pricing.SaleUnitPiece
		if item.SaleUnit == string(pricing.SaleUnitBox) {
			saleUnit = pricing.SaleUnitBox
		}
		priceLines = append(priceLines, pricing.Line{
			ProductID:   item.ProductID,
			Name:        product.Name,
			Unit:        product.Unit,
			SaleUnit:    saleUnit,
			Quantity:    item.Quantity,
			UnitsPerBox: product.UnitsPerBox,
			Table:       table,
		})
		available = append(available, product.Quantity)
		p := product
		rolls = append(rolls, &p)
	}
	cart.valuation = pricing.ValueCart(priceLines)
	for i, lt := range cart.valuation.Lines {
		line := LineView{
			ProductID: lt.ProductID,
			Name:      lt.Name,
			Unit:      lt.Unit,
			Quantity:  lt.Quantity,
			UnitPrice: lt.UnitPrice,
			Total:     lt.Total,
			Available: available[i],
		}
		if lt.AppliedTier != nil {
			line.TierPercent = lt.AppliedTier.DiscountPercent
		}
		if rolls[i].MetersPerRoll > 0 {
			rq := pricing.RollDisplayQty(available[i], rolls[i].MetersPerRoll)
			mr := pricing.MaxRolls(available[i], rolls[i].MetersPerRoll)
			line.RollQuantity = &rq
			line.MaxRolls = &mr
		}
		cart.lines = append(cart.lines, line)
	}
	cart.split = payment.Compute(cart.valuation.Subtotal, req.Discount, payment.Tender{
		Cash:  req.Tender.Cash,
		Card:  req.Tender.Card,
		Click: req.Tender.Click,
	}, req.CustomerID)
	return cart, nil
}

func toSplitView(s payment.Split) SplitView {
	return SplitView{
		CashAmount:   s.CashAmount,
		CardAmount:   s.CardAmount,
		ClickAmount:  s.ClickAmount,
		TotalPaid:    s.TotalPaid,
		Discount:     s.Discount,
		NetTotal:     s.NetTotal,
		DebtAmount:   s.DebtAmount,
		ChangeAmount: s.ChangeAmount,
		Method:       string(s.Method()),
	}
}

func badRequest(message string, err error) *common.AppError {
	return &common.AppError{Code: "BAD_REQUEST", Message: message, HTTPStatus: http.StatusBadRequest, Err: err}
}

func notFound(message string, err error) *common.AppError {
	return &common.AppError{Code: "NOT_FOUND", Message: message, HTTPStatus: http.StatusNotFound, Err: err}
}
