package customer

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
)

// Querier is the slice of db.Queries the customer surface touches.
type Querier interface {
	GetCustomerByID(ctx context.Context, id pgtype.UUID) (db.Customer, error)
	ListCustomers(ctx context.Context, query string, limit, offset int32) ([]db.Customer, error)
	CountCustomers(ctx context.Context, query string) (int64, error)
	CreateCustomer(ctx context.Context, name, phone string) (db.Customer, error)
	UpdateCustomer(ctx context.Context, id pgtype.UUID, name, phone string) (db.Customer, error)
	SumOpenDebt(ctx context.Context, customerID pgtype.UUID) (int64, error)
}

// Service exposes customer reads and identity writes. Debt and purchase
// aggregates are written only by settlement and the debt surface.
type Service struct {
	Q Querier
}

// Input is the create/update payload.
type Input struct {
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone" validate:"required"`
}

// View is the API payload for a customer.
type View struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	Debt           int64  `json:"debt"`
	TotalPurchases int64  `json:"totalPurchases"`
	TotalBalls     int64  `json:"totalBalls"`
}

// ListResult contains list data and pagination metadata.
type ListResult struct {
	Items []View
	Total int64
	Page  int
	Limit int
}

// Get returns one customer. The debt figure is the cached aggregate; when it
// disagrees with the debts table the recomputed sum wins and the mismatch is
// reported in the payload so an operator can notice drift.
func (s *Service) Get(ctx context.Context, id string) (View, int64, error) {
	cid, err := db.ToUUID(id)
	if err != nil {
		return View{}, 0, badRequest("invalid customer id", err)
	}
	c, err := s.Q.GetCustomerByID(ctx, cid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return View{}, 0, notFound("customer not found", err)
		}
		return View{}, 0, fmt.Errorf("get customer: %w", err)
	}
	open, err := s.Q.SumOpenDebt(ctx, cid)
	if err != nil {
		return View{}, 0, fmt.Errorf("sum open debt: %w", err)
	}
	return toView(c), open, nil
}

// List pages customers with an optional name/phone filter.
func (s *Service) List(ctx context.Context, query string, page, limit int) (ListResult, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	total, err := s.Q.CountCustomers(ctx, query)
	if err != nil {
		return ListResult{}, fmt.Errorf("count customers: %w", err)
	}
	rows, err := s.Q.ListCustomers(ctx, query, int32(limit), int32((page-1)*limit))
	if err != nil {
		return ListResult{}, fmt.Errorf("list customers: %w", err)
	}
	items := make([]View, 0, len(rows))
	for _, c := range rows {
		items = append(items, toView(c))
	}
	return ListResult{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// Create registers a new customer.
func (s *Service) Create(ctx context.Context, in Input) (View, error) {
	name := strings.TrimSpace(in.Name)
	phone := strings.TrimSpace(in.Phone)
	if name == "" || phone == "" {
		return View{}, badRequest("name and phone are required", nil)
	}
	c, err := s.Q.CreateCustomer(ctx, name, phone)
	if err != nil {
		return View{}, fmt.Errorf("create customer: %w", err)
	}
	return toView(c), nil
}

// Update changes the customer's identity fields.
func (s *Service) Update(ctx context.Context, id string, in Input) (View, error) {
	cid, err := db.ToUUID(id)
	if err != nil {
		return View{}, badRequest("invalid customer id", err)
	}
	c, err := s.Q.UpdateCustomer(ctx, cid, strings.TrimSpace(in.Name), strings.TrimSpace(in.Phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return View{}, notFound("customer not found", err)
		}
		return View{}, fmt.Errorf("update customer: %w", err)
	}
	return toView(c), nil
}

func toView(c db.Customer) View {
	return View{
		ID:             db.UUIDString(c.ID),
		Name:           c.Name,
		Phone:          c.Phone,
		Debt:           c.Debt,
		TotalPurchases: c.TotalPurchases,
		TotalBalls:     c.TotalBalls,
	}
}

func badRequest(message string, err error) *common.AppError {
	return &common.AppError{Code: "BAD_REQUEST", Message: message, HTTPStatus: http.StatusBadRequest, Err: err}
}

func notFound(message string, err error) *common.AppError {
	return &common.AppError{Code: "NOT_FOUND", Message: message, HTTPStatus: http.StatusNotFound, Err: err}
}
