package debt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/aziz-dev/backend-kassa/internal/common"
	"github.com/aziz-dev/backend-kassa/internal/db"
	"github.com/aziz-dev/backend-kassa/internal/events"
	"github.com/aziz-dev/backend-kassa/internal/settlement"
)

// Querier is the slice of db.Queries the debt surface touches. It satisfies
// settlement.DebtAllocator so FIFO payments share the settlement routine.
type Querier interface {
	GetDebtByID(ctx context.Context, id pgtype.UUID) (db.Debt, error)
	GetDebtForUpdate(ctx context.Context, id pgtype.UUID) (db.Debt, error)
	ListDebts(ctx context.Context, arg db.ListDebtsParams) ([]db.Debt, error)
	CountDebts(ctx context.Context, arg db.ListDebtsParams) (int64, error)
	ListDebtPayments(ctx context.Context, debtID pgtype.UUID) ([]db.DebtPayment, error)
	CreateDebt(ctx context.Context, arg db.CreateDebtParams) (db.Debt, error)
	UpdateDebtStatus(ctx context.Context, id pgtype.UUID, status string) (db.Debt, error)
	ApplyDebtPayment(ctx context.Context, id pgtype.UUID, amount int64) (db.Debt, error)
	InsertDebtPayment(ctx context.Context, arg db.InsertDebtPaymentParams) (db.DebtPayment, error)
	ListOpenDebtsForUpdate(ctx context.Context, customerID pgtype.UUID) ([]db.Debt, error)
	AdjustCustomerDebt(ctx context.Context, id pgtype.UUID, delta int64) error
	GetCustomerForUpdate(ctx context.Context, id pgtype.UUID) (db.Customer, error)
}

// Beginner starts transactions; *pgxpool.Pool satisfies it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service manages the debt ledger: listing, manual entry, payments and the
// admin review of manually entered debts. POS-originated debts are created by
// settlement and arrive already approved.
type Service struct {
	Q      Querier
	DB     Beginner
	Events *events.Bus

	// DebtTerm is the default due horizon for manual debts.
	DebtTerm time.Duration

	Now func() time.Time

	// ForTx overrides the transaction-scoped querier in tests.
	ForTx func(pgx.Tx) Querier
}

// Input creates a manual debt.
type Input struct {
	CustomerID string     `json:"customerId" validate:"required"`
	Amount     int64      `json:"amount" validate:"required,gt=0"`
	DueDate    *time.Time `json:"dueDate,omitempty"`
	Note       string     `json:"note,omitempty"`
}

// PayInput records a payment, either against one debt or across a customer's
// open debts oldest first.
type PayInput struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Method string `json:"method" validate:"required,oneof=cash card transfer"`
	Note   string `json:"note,omitempty"`
}

// View is the API payload for a debt.
type View struct {
	ID          string     `json:"id"`
	CustomerID  string     `json:"customerId"`
	Amount      int64      `json:"amount"`
	PaidAmount  int64      `json:"paidAmount"`
	Outstanding int64      `json:"outstanding"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Note        string     `json:"note,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// PaymentView is one ledger entry of a debt.
type PaymentView struct {
	ID        string    `json:"id"`
	ReceiptID string    `json:"receiptId,omitempty"`
	Amount    int64     `json:"amount"`
	Method    string    `json:"method"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// PayoffResult reports how a FIFO payment landed.
type PayoffResult struct {
	Allocated int64 `json:"allocated"`
	Leftover  int64 `json:"leftover"`
}

// ListParams filters the debts listing.
type ListParams struct {
	CustomerID string
	Status     string
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

// List pages debts newest first, optionally narrowed by customer or status.
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
	arg := db.ListDebtsParams{
		Status: strings.TrimSpace(p.Status),
		Limit:  int32(p.Limit),
		Offset: int32((p.Page - 1) * p.Limit),
	}
	if arg.Status != "" && !validStatus(arg.Status) {
		return ListResult{}, badRequest("unknown debt status "+arg.Status, nil)
	}
	if p.CustomerID != "" {
		cid, err := db.ToUUID(p.CustomerID)
		if err != nil {
			return ListResult{}, badRequest("invalid customer id", err)
		}
		arg.CustomerID = cid
	}
	debts, err := s.Q.ListDebts(ctx, arg)
	if err != nil {
		return ListResult{}, fmt.Errorf("list debts: %w", err)
	}
	total, err := s.Q.CountDebts(ctx, arg)
	if err != nil {
		return ListResult{}, fmt.Errorf("count debts: %w", err)
	}
	items := make([]View, 0, len(debts))
	for _, d := range debts {
		items = append(items, toView(d))
	}
	return ListResult{Items: items, Total: total, Page: p.Page, Limit: p.Limit}, nil
}

// Get returns one debt together with its payment ledger.
func (s *Service) Get(ctx context.Context, id string) (View, []PaymentView, error) {
	did, err := db.ToUUID(id)
	if err != nil {
		return View{}, nil, badRequest("invalid debt id", err)
	}
	d, err := s.Q.GetDebtByID(ctx, did)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return View{}, nil, notFound("debt not found", err)
		}
		return View{}, nil, fmt.Errorf("get debt: %w", err)
	}
	payments, err := s.Q.ListDebtPayments(ctx, did)
	if err != nil {
		return View{}, nil, fmt.Errorf("list debt payments: %w", err)
	}
	ledger := make([]PaymentView, 0, len(payments))
	for _, p := range payments {
		ledger = append(ledger, toPaymentView(p))
	}
	return toView(d), ledger, nil
}

// CreateManual records a debt entered by hand, for example goods handed over
// before this system existed. It starts pending and needs an admin approval;
// the customer's cached debt still grows immediately so the kassa screens
// show the full exposure.
func (s *Service) CreateManual(ctx context.Context, in Input) (View, error) {
	cid, err := db.ToUUID(in.CustomerID)
	if err != nil {
		return View{}, badRequest("invalid customer id", err)
	}
	if in.Amount <= 0 {
		return View{}, badRequest("debt amount must be positive", nil)
	}
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return View{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)
	q := s.queriesFor(tx)

	if _, err := q.GetCustomerForUpdate(ctx, cid); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return View{}, notFound("customer not found", err)
		}
		return View{}, fmt.Errorf("lock customer: %w", err)
	}
	due := s.now().Add(s.debtTerm())
	if in.DueDate != nil {
		due = *in.DueDate
	}
	d, err := q.CreateDebt(ctx, db.CreateDebtParams{
		CustomerID: cid,
		Amount:     in.Amount,
		Status:     db.DebtStatusPending,
		DueDate:    pgtype.Timestamptz{Time: due, Valid: true},
		Note:       noteText(in.Note),
	})
	if err != nil {
		return View{}, fmt.Errorf("create debt: %w", err)
	}
	if err := q.AdjustCustomerDebt(ctx, cid, in.Amount); err != nil {
		return View{}, fmt.Errorf("adjust customer debt: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return View{}, fmt.Errorf("commit: %w", err)
	}
	s.emit(ctx, events.TopicDebtCreated, d.ID, map[string]any{
		"debtId":     db.UUIDString(d.ID),
		"customerId": db.UUIDString(d.CustomerID),
		"amount":     d.Amount,
		"status":     d.Status,
		"dueDate":    due,
	})
	return toView(d), nil
}

// Pay records a payment against one specific debt. The amount may not exceed
// what is still owed; walk-in overpayments go through PayCustomer instead so
// the surplus reaches the next debt.
func (s *Service) Pay(ctx context.Context, id string, in PayInput) (View, error) {
	did, err := db.ToUUID(id)
	if err != nil {
		return View{}, badRequest("invalid debt id", err)
	}
	if in.Amount <= 0 {
		return View{}, badRequest("payment amount must be positive", nil)
	}
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return View{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)
	q := s.queriesFor(tx)

	d, err := q.GetDebtForUpdate(ctx, did)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return View{}, notFound("debt not found", err)
		}
		return View{}, fmt.Errorf("lock debt: %w", err)
	}
	if d.Status != db.DebtStatusPending && d.Status != db.DebtStatusApproved {
		return View{}, badRequest("debt is "+d.Status+" and cannot accept payments", nil)
	}
	owed := d.Amount - d.PaidAmount
	if in.Amount > owed {
		return View{}, badRequest(fmt.Sprintf("payment of %d exceeds the %d still owed", in.Amount, owed), nil)
	}
	updated, err := q.ApplyDebtPayment(ctx, did, in.Amount)
	if err != nil {
		return View{}, fmt.Errorf("apply payment: %w", err)
	}
	if _, err := q.InsertDebtPayment(ctx, db.InsertDebtPaymentParams{
		DebtID: did,
		Amount: in.Amount,
		Method: in.Method,
		Note:   noteText(in.Note),
	}); err != nil {
		return View{}, fmt.Errorf("record payment: %w", err)
	}
	if err := q.AdjustCustomerDebt(ctx, d.CustomerID, -in.Amount); err != nil {
		return View{}, fmt.Errorf("adjust customer debt: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return View{}, fmt.Errorf("commit: %w", err)
	}
	s.emit(ctx, events.TopicDebtPaid, did, map[string]any{
		"debtId":     db.UUIDString(did),
		"customerId": db.UUIDString(d.CustomerID),
		"amount":     in.Amount,
		"remaining":  updated.Amount - updated.PaidAmount,
	})
	return toView(updated), nil
}

// PayCustomer spreads a walk-in payment across the customer's open debts
// oldest first, the same allocation a receipt surplus gets. Whatever exceeds
// the open debts comes back as leftover for the cashier to return.
func (s *Service) PayCustomer(ctx context.Context, customerID string, in PayInput) (PayoffResult, error) {
	cid, err := db.ToUUID(customerID)
	if err != nil {
		return PayoffResult{}, badRequest("invalid customer id", err)
	}
	if in.Amount <= 0 {
		return PayoffResult{}, badRequest("payment amount must be positive", nil)
	}
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return PayoffResult{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)
	q := s.queriesFor(tx)

	// Lock the customer before the debts, same order settlement takes.
	if _, err := q.GetCustomerForUpdate(ctx, cid); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PayoffResult{}, notFound("customer not found", err)
		}
		return PayoffResult{}, fmt.Errorf("lock customer: %w", err)
	}
	note := strings.TrimSpace(in.Note)
	if note == "" {
		note = "walk-in debt payment"
	}
	allocated, err := settlement.AllocateAcrossDebts(ctx, q, cid, in.Amount, in.Method, pgtype.UUID{}, note)
	if err != nil {
		return PayoffResult{}, fmt.Errorf("allocate payment: %w", err)
	}
	if allocated == 0 {
		return PayoffResult{}, badRequest("customer has no open debt", nil)
	}
	if err := tx.Commit(ctx); err != nil {
		return PayoffResult{}, fmt.Errorf("commit: %w", err)
	}
	s.emit(ctx, events.TopicDebtPaid, cid, map[string]any{
		"customerId": db.UUIDString(cid),
		"amount":     allocated,
		"leftover":   in.Amount - allocated,
	})
	return PayoffResult{Allocated: allocated, Leftover: in.Amount - allocated}, nil
}

// Approve confirms a pending manual debt.
func (s *Service) Approve(ctx context.Context, id string) (View, error) {
	return s.review(ctx, id, db.DebtStatusApproved, events.TopicDebtApproved)
}

// Reject dismisses a pending manual debt and removes it from the customer's
// cached exposure.
func (s *Service) Reject(ctx context.Context, id string) (View, error) {
	return s.review(ctx, id, db.DebtStatusRejected, events.TopicDebtRejected)
}

func (s *Service) review(ctx context.Context, id, status, topic string) (View, error) {
	did, err := db.ToUUID(id)
	if err != nil {
		return View{}, badRequest("invalid debt id", err)
	}
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return View{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)
	q := s.queriesFor(tx)

	d, err := q.GetDebtForUpdate(ctx, did)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return View{}, notFound("debt not found", err)
		}
		return View{}, fmt.Errorf("lock debt: %w", err)
	}
	if d.Status != db.DebtStatusPending {
		return View{}, badRequest("only pending debts can be reviewed, this one is "+d.Status, nil)
	}
	updated, err := q.UpdateDebtStatus(ctx, did, status)
	if err != nil {
		return View{}, fmt.Errorf("update debt status: %w", err)
	}
	if status == db.DebtStatusRejected {
		// A rejected debt no longer counts against the customer.
		if err := q.AdjustCustomerDebt(ctx, d.CustomerID, -(d.Amount - d.PaidAmount)); err != nil {
			return View{}, fmt.Errorf("adjust customer debt: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return View{}, fmt.Errorf("commit: %w", err)
	}
	s.emit(ctx, topic, did, map[string]any{
		"debtId":     db.UUIDString(did),
		"customerId": db.UUIDString(d.CustomerID),
		"status":     status,
	})
	return toView(updated), nil
}

func (s *Service) emit(ctx context.Context, topic string, entityID pgtype.UUID, payload any) {
	if s.Events != nil {
		s.Events.Emit(ctx, topic, entityID, payload)
	}
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

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) debtTerm() time.Duration {
	if s.DebtTerm > 0 {
		return s.DebtTerm
	}
	return 30 * 24 * time.Hour
}

func toView(d db.Debt) View {
	v := View{
		ID:          db.UUIDString(d.ID),
		CustomerID:  db.UUIDString(d.CustomerID),
		Amount:      d.Amount,
		PaidAmount:  d.PaidAmount,
		Outstanding: d.Amount - d.PaidAmount,
		Status:      d.Status,
		CreatedAt:   d.CreatedAt.Time,
	}
	if d.DueDate.Valid {
		due := d.DueDate.Time
		v.DueDate = &due
	}
	if d.Note.Valid {
		v.Note = d.Note.String
	}
	return v
}

func toPaymentView(p db.DebtPayment) PaymentView {
	v := PaymentView{
		ID:        db.UUIDString(p.ID),
		Amount:    p.Amount,
		Method:    p.Method,
		CreatedAt: p.CreatedAt.Time,
	}
	if p.ReceiptID.Valid {
		v.ReceiptID = db.UUIDString(p.ReceiptID)
	}
	if p.Note.Valid {
		v.Note = p.Note.String
	}
	return v
}

func noteText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func validStatus(s string) bool {
	switch s {
	case db.DebtStatusPending, db.DebtStatusApproved, db.DebtStatusPaid, db.DebtStatusRejected:
		return true
	}
	return false
}

func badRequest(message string, err error) *common.AppError {
	return &common.AppError{Code: "BAD_REQUEST", Message: message, HTTPStatus: http.StatusBadRequest, Err: err}
}

func notFound(message string, err error) *common.AppError {
	return &common.AppError{Code: "NOT_FOUND", Message: message, HTTPStatus: http.StatusNotFound, Err: err}
}
