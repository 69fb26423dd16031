package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/aziz-dev/backend-kassa/internal/common"
	"github.com/aziz-dev/backend-kassa/internal/db"
	"github.com/aziz-dev/backend-kassa/internal/pricing"
)

// Querier is the slice of db.Queries the catalog surface touches.
type Querier interface {
	GetProductByID(ctx context.Context, id pgtype.UUID) (db.Product, error)
	ListProducts(ctx context.Context, arg db.ListProductsParams) ([]db.Product, error)
	CountProducts(ctx context.Context, query string, lowStock bool) (int64, error)
	CreateProduct(ctx context.Context, arg db.CreateProductParams) (db.Product, error)
	UpdateProduct(ctx context.Context, arg db.UpdateProductParams) (db.Product, error)
	ListPriceEntries(ctx context.Context, productID pgtype.UUID) ([]db.PriceEntry, error)
	DeletePriceEntries(ctx context.Context, productID pgtype.UUID) error
	InsertPriceEntry(ctx context.Context, arg db.InsertPriceEntryParams) error
}

// Beginner starts database transactions; satisfied by *pgxpool.Pool.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service orchestrates product queries, price table assembly, and caching.
type Service struct {
	Q     Querier
	DB    Beginner
	Cache *Cache
	// ForTx overrides the querier bound to a transaction; tests use it to
	// substitute stubs.
	ForTx func(pgx.Tx) Querier
}

// PriceInput is one price table row submitted on create/update.
type PriceInput struct {
	Kind            string `json:"kind" validate:"required,oneof=cost unit box discount"`
	Amount          int64  `json:"amount" validate:"gte=0"`
	MinQty          *int64 `json:"minQty,omitempty"`
	MaxQty          *int64 `json:"maxQty,omitempty"`
	DiscountPercent *int   `json:"discountPercent,omitempty"`
	Tier            int    `json:"tier"`
	Active          bool   `json:"active"`
}

// ProductInput is the create/update payload for a product.
type ProductInput struct {
	Name              string       `json:"name" validate:"required"`
	SKU               string       `json:"sku"`
	Unit              string       `json:"unit" validate:"required"`
	UnitsPerBox       int64        `json:"unitsPerBox" validate:"gte=0"`
	MetersPerRoll     float64      `json:"metersPerRoll" validate:"gte=0"`
	Quantity          int64        `json:"quantity" validate:"gte=0"`
	LowStockThreshold int64        `json:"lowStockThreshold" validate:"gte=0"`
	Prices            []PriceInput `json:"prices"`
}

// PriceView is one price table row in API responses.
type PriceView struct {
	Kind            string `json:"kind"`
	Amount          int64  `json:"amount"`
	MinQty          *int64 `json:"minQty,omitempty"`
	MaxQty          *int64 `json:"maxQty,omitempty"`
	DiscountPercent *int   `json:"discountPercent,omitempty"`
	Tier            int    `json:"tier"`
	Active          bool   `json:"active"`
}

// ProductView is the assembled product payload: persisted fields plus the
// normalized price table and roll-mode display values.
type ProductView struct {
	ID                string      `json:"id"`
	Name              string      `json:"name"`
	SKU               string      `json:"sku"`
	Unit              string      `json:"unit"`
	UnitsPerBox       int64       `json:"unitsPerBox"`
	MetersPerRoll     float64     `json:"metersPerRoll,omitempty"`
	Quantity          int64       `json:"quantity"`
	RollQuantity      *float64    `json:"rollQuantity,omitempty"`
	MaxRolls          *int64      `json:"maxRolls,omitempty"`
	LowStockThreshold int64       `json:"lowStockThreshold"`
	LowStock          bool        `json:"lowStock"`
	UnitPrice         int64       `json:"unitPrice"`
	Prices            []PriceView `json:"prices"`
	Warnings          []string    `json:"warnings,omitempty"`
}

// ListParams filters the product listing.
type ListParams struct {
	Query    string
	LowStock bool
	Page     int
	Limit    int
}

// ListResult contains list data and pagination metadata.
type ListResult struct {
	Items []ProductView
	Total int64
	Page  int
	Limit int
}

func (s *Service) queriesFor(tx pgx.Tx) Querier {
	if s.ForTx != nil {
		return s.ForTx(tx)
	}
	if q, ok := s.Q.(*db.Queries); ok {
		return q.WithTx(tx)
	}
	return s.Q
}

// Get returns a fully assembled product.
func (s *Service) Get(ctx context.Context, id string) (ProductView, error) {
	pid, err := db.ToUUID(id)
	if err != nil {
		return ProductView{}, badRequest("id", "invalid product id", err)
	}
	if s.Cache != nil {
		var cached ProductView
		if ok, err := s.Cache.GetJSON(ctx, productCacheKey(id), &cached); err == nil && ok {
			return cached, nil
		}
	}
	product, err := s.Q.GetProductByID(ctx, pid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductView{}, notFound("product not found", err)
		}
		return ProductView{}, fmt.Errorf("get product: %w", err)
	}
	entries, err := s.Q.ListPriceEntries(ctx, pid)
	if err != nil {
		return ProductView{}, fmt.Errorf("list price entries: %w", err)
	}
	view := assembleView(product, entries)
	if s.Cache != nil {
		_ = s.Cache.SetJSON(ctx, productCacheKey(id), view)
	}
	return view, nil
}

// List returns products with filters and pagination. Listing skips the price
// entry join; row price tables come from the legacy columns only, which is
// enough for the grid. Detail views carry the full table.
func (s *Service) List(ctx context.Context, params ListParams) (ListResult, error) {
	page := params.Page
	if page < 1 {
		page = 1
	}
	limit := params.Limit
	if limit < 1 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	total, err := s.Q.CountProducts(ctx, params.Query, params.LowStock)
	if err != nil {
		return ListResult{}, fmt.Errorf("count products: %w", err)
	}
	rows, err := s.Q.ListProducts(ctx, db.ListProductsParams{
		Query:    params.Query,
		LowStock: params.LowStock,
		Limit:    int32(limit),
		Offset:   int32((page - 1) * limit),
	})
	if err != nil {
		return ListResult{}, fmt.Errorf("list products: %w", err)
	}
	items := make([]ProductView, 0, len(rows))
	for _, p := range rows {
		items = append(items, assembleView(p, nil))
	}
	return ListResult{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// Create inserts a product and its price table in one transaction.
func (s *Service) Create(ctx context.Context, in ProductInput) (ProductView, error) {
	if err := validatePrices(in.Prices); err != nil {
		return ProductView{}, err
	}
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return ProductView{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	q := s.queriesFor(tx)

	product, err := q.CreateProduct(ctx, db.CreateProductParams{
		Name:              strings.TrimSpace(in.Name),
		SKU:               strings.TrimSpace(in.SKU),
		Unit:              strings.TrimSpace(in.Unit),
		UnitsPerBox:       in.UnitsPerBox,
		MetersPerRoll:     in.MetersPerRoll,
		Quantity:          in.Quantity,
		LowStockThreshold: in.LowStockThreshold,
	})
	if err != nil {
		return ProductView{}, fmt.Errorf("create product: %w", err)
	}
	if err := insertPrices(ctx, q, product.ID, in.Prices); err != nil {
		return ProductView{}, err
	}
	entries, err := q.ListPriceEntries(ctx, product.ID)
	if err != nil {
		return ProductView{}, fmt.Errorf("list price entries: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return ProductView{}, err
	}
	return assembleView(product, entries), nil
}

// Update replaces the mutable product fields and, when prices are submitted,
// the whole price table, atomically. The cache entry is invalidated on success.
func (s *Service) Update(ctx context.Context, id string, in ProductInput) (ProductView, error) {
	pid, err := db.ToUUID(id)
	if err != nil {
		return ProductView{}, badRequest("id", "invalid product id", err)
	}
	if err := validatePrices(in.Prices); err != nil {
		return ProductView{}, err
	}
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return ProductView{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	q := s.queriesFor(tx)

	product, err := q.UpdateProduct(ctx, db.UpdateProductParams{
		ID:                pid,
		Name:              strings.TrimSpace(in.Name),
		Unit:              strings.TrimSpace(in.Unit),
		UnitsPerBox:       in.UnitsPerBox,
		MetersPerRoll:     in.MetersPerRoll,
		Quantity:          in.Quantity,
		LowStockThreshold: in.LowStockThreshold,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductView{}, notFound("product not found", err)
		}
		return ProductView{}, fmt.Errorf("update product: %w", err)
	}
	if in.Prices != nil {
		if err := q.DeletePriceEntries(ctx, pid); err != nil {
			return ProductView{}, fmt.Errorf("delete price entries: %w", err)
		}
		if err := insertPrices(ctx, q, pid, in.Prices); err != nil {
			return ProductView{}, err
		}
	}
	entries, err := q.ListPriceEntries(ctx, pid)
	if err != nil {
		return ProductView{}, fmt.Errorf("list price entries: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return ProductView{}, err
	}
	if s.Cache != nil {
		_ = s.Cache.Invalidate(ctx, productCacheKey(id))
	}
	return assembleView(product, entries), nil
}

// TableFor builds the pricing table of a product from its rows, falling back
// to the legacy flat columns when no active entry exists.
func TableFor(p db.Product, entries []db.PriceEntry) (pricing.Table, []string) {
	in := make([]pricing.Entry, 0, len(entries))
	for _, e := range entries {
		entry := pricing.Entry{
			Kind:   pricing.Kind(e.Kind),
			Amount: e.Amount,
			Tier:   int(e.Tier),
			Active: e.Active,
		}
		if e.MinQty.Valid {
			entry.MinQuantity = e.MinQty.Int64
		}
		if e.MaxQty.Valid {
			entry.MaxQuantity = e.MaxQty.Int64
		}
		if e.DiscountPercent.Valid {
			entry.DiscountPercent = int(e.DiscountPercent.Int32)
		}
		in = append(in, entry)
	}
	return pricing.Normalize(in, legacyFields(p))
}

func legacyFields(p db.Product) pricing.LegacyFields {
	legacy := pricing.LegacyFields{
		Price:     int8Ptr(p.LegacyPrice),
		UnitPrice: int8Ptr(p.LegacyUnitPrice),
		BoxPrice:  int8Ptr(p.LegacyBoxPrice),
		CostPrice: int8Ptr(p.LegacyCostPrice),
	}
	for _, t := range []struct {
		qty pgtype.Int8
		pct pgtype.Int4
	}{
		{p.LegacyTier1MinQty, p.LegacyTier1Pct},
		{p.LegacyTier2MinQty, p.LegacyTier2Pct},
		{p.LegacyTier3MinQty, p.LegacyTier3Pct},
	} {
		if t.qty.Valid && t.pct.Valid {
			legacy.Tiers = append(legacy.Tiers, pricing.LegacyTier{
				MinQuantity: t.qty.Int64,
				Percent:     int(t.pct.Int32),
			})
		}
	}
	return legacy
}

func assembleView(p db.Product, entries []db.PriceEntry) ProductView {
	table, warnings := TableFor(p, entries)
	res := pricing.Resolve(table, 1, pricing.SaleUnitPiece, p.UnitsPerBox)
	view := ProductView{
		ID:                db.UUIDString(p.ID),
		Name:              p.Name,
		SKU:               p.SKU,
		Unit:              p.Unit,
		UnitsPerBox:       p.UnitsPerBox,
		MetersPerRoll:     p.MetersPerRoll,
		Quantity:          p.Quantity,
		LowStockThreshold: p.LowStockThreshold,
		LowStock:          p.LowStockThreshold > 0 && p.Quantity <= p.LowStockThreshold,
		UnitPrice:         res.UnitPrice,
		Warnings:          warnings,
	}
	if p.MetersPerRoll > 0 {
		rolls := pricing.RollDisplayQty(p.Quantity, p.MetersPerRoll)
		maxRolls := pricing.MaxRolls(p.Quantity, p.MetersPerRoll)
		view.RollQuantity = &rolls
		view.MaxRolls = &maxRolls
	}
	view.Prices = make([]PriceView, 0, len(table.Entries))
	for _, e := range table.Entries {
		pv := PriceView{
			Kind:   string(e.Kind),
			Amount: e.Amount,
			Tier:   e.Tier,
			Active: e.Active,
		}
		if e.MinQuantity > 0 {
			minQty := e.MinQuantity
			pv.MinQty = &minQty
		}
		if e.MaxQuantity > 0 {
			maxQty := e.MaxQuantity
			pv.MaxQty = &maxQty
		}
		if e.DiscountPercent != 0 {
			pct := e.DiscountPercent
			pv.DiscountPercent = &pct
		}
		view.Prices = append(view.Prices, pv)
	}
	return view
}

func validatePrices(prices []PriceInput) error {
	activeByKind := map[string]int{}
	for i, p := range prices {
		kind := strings.TrimSpace(p.Kind)
		switch kind {
		case "cost", "unit", "box":
			if p.Active {
				activeByKind[kind]++
			}
		case "discount":
			if p.DiscountPercent == nil || *p.DiscountPercent < 0 || *p.DiscountPercent > 100 {
				return badRequest("prices", fmt.Sprintf("price %d: discount percent must be within 0-100", i), nil)
			}
			if p.MinQty == nil || *p.MinQty <= 0 {
				return badRequest("prices", fmt.Sprintf("price %d: discount tier requires a positive minQty", i), nil)
			}
		default:
			return badRequest("prices", fmt.Sprintf("price %d: unknown kind %q", i, p.Kind), nil)
		}
		if p.MinQty != nil && p.MaxQty != nil && *p.MaxQty < *p.MinQty {
			return badRequest("prices", fmt.Sprintf("price %d: maxQty below minQty", i), nil)
		}
		if p.Amount < 0 {
			return badRequest("prices", fmt.Sprintf("price %d: negative amount", i), nil)
		}
	}
	for kind, n := range activeByKind {
		if n > 1 {
			return badRequest("prices", fmt.Sprintf("more than one active %s entry", kind), nil)
		}
	}
	return nil
}

func insertPrices(ctx context.Context, q Querier, productID pgtype.UUID, prices []PriceInput) error {
	for _, p := range prices {
		arg := db.InsertPriceEntryParams{
			ProductID: productID,
			Kind:      strings.TrimSpace(p.Kind),
			Amount:    p.Amount,
			Tier:      int32(p.Tier),
			Active:    p.Active,
		}
		if p.MinQty != nil {
			arg.MinQty = pgtype.Int8{Int64: *p.MinQty, Valid: true}
		}
		if p.MaxQty != nil {
			arg.MaxQty = pgtype.Int8{Int64: *p.MaxQty, Valid: true}
		}
		if p.DiscountPercent != nil {
			arg.DiscountPercent = pgtype.Int4{Int32: int32(*p.DiscountPercent), Valid: true}
		}
		if err := q.InsertPriceEntry(ctx, arg); err != nil {
			return fmt.Errorf("insert price entry: %w", err)
		}
	}
	return nil
}

func int8Ptr(v pgtype.Int8) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func productCacheKey(id string) string {
	return "kassa:products:" + id
}

func badRequest(field, message string, err error) *common.AppError {
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details: map[string]any{
			"field": field,
		},
	}
}

func notFound(message string, err error) *common.AppError {
	return &common.AppError{Code: "NOT_FOUND", Message: message, HTTPStatus: http.StatusNotFound, Err: err}
}
