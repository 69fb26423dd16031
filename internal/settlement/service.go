package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/aziz-dev/backend-kassa/internal/db"
	"github.com/aziz-dev/backend-kassa/internal/events"
	"github.com/aziz-dev/backend-kassa/internal/payment"
	"github.com/aziz-dev/backend-kassa/internal/pricing"
)

// Querier is the slice of db.Queries the settlement transaction touches.
type Querier interface {
	GetProductForUpdate(ctx context.Context, id pgtype.UUID) (db.Product, error)
	AdjustProductStock(ctx context.Context, id pgtype.UUID, delta int64) (int64, error)
	NextReceiptSeq(ctx context.Context, prefix string) (int64, error)
	InsertReceipt(ctx context.Context, arg db.InsertReceiptParams) (db.Receipt, error)
	InsertReceiptItem(ctx context.Context, arg db.InsertReceiptItemParams) error
	SetReceiptDebt(ctx context.Context, receiptID, debtID pgtype.UUID) error
	SetReceiptChange(ctx context.Context, id pgtype.UUID, change int64) error
	GetReceiptByID(ctx context.Context, id pgtype.UUID) (db.Receipt, error)
	ListReceiptItems(ctx context.Context, receiptID pgtype.UUID) ([]db.ReceiptItem, error)
	DeleteReceipt(ctx context.Context, id pgtype.UUID) error
	GetCustomerForUpdate(ctx context.Context, id pgtype.UUID) (db.Customer, error)
	ApplyCustomerPurchase(ctx context.Context, id pgtype.UUID, amount, balls int64) error
	AdjustCustomerDebt(ctx context.Context, id pgtype.UUID, delta int64) error
	GetLatestOpenDebtForUpdate(ctx context.Context, customerID pgtype.UUID) (db.Debt, error)
	CreateDebt(ctx context.Context, arg db.CreateDebtParams) (db.Debt, error)
	AddToDebt(ctx context.Context, id pgtype.UUID, delta int64, note string) (db.Debt, error)
	ListOpenDebtsForUpdate(ctx context.Context, customerID pgtype.UUID) ([]db.Debt, error)
	ApplyDebtPayment(ctx context.Context, id pgtype.UUID, amount int64) (db.Debt, error)
	ReverseDebtPayment(ctx context.Context, id pgtype.UUID, amount int64) (db.Debt, error)
	InsertDebtPayment(ctx context.Context, arg db.InsertDebtPaymentParams) (db.DebtPayment, error)
	ListDebtPaymentsByReceipt(ctx context.Context, receiptID pgtype.UUID) ([]db.DebtPayment, error)
	DeleteDebtPaymentsByReceipt(ctx context.Context, receiptID pgtype.UUID) error
}

// Beginner starts database transactions; satisfied by *pgxpool.Pool.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OneBall is the spend, in so'm, that earns one loyalty point.
const OneBall = 1_000_000

// Line is one cart line with the price snapshot captured at valuation time.
// Settlement charges exactly this price and never re-resolves it.
type Line struct {
	ProductID string
	Name      string
	Unit      string
	Quantity  int64
	UnitPrice pricing.Money
}

// Input is a finalized cart plus its payment split.
type Input struct {
	Lines     []Line
	Split     payment.Split
	IsReturn  bool
	CreatedBy string
}

// Output is the persisted receipt with its captured lines. Debt is set when
// the sale created or augmented one.
type Output struct {
	Receipt db.Receipt
	Items   []db.ReceiptItem
	Debt    *db.Debt
}

// Service runs the atomic settlement procedure.
type Service struct {
	DB        Beginner
	Q         *db.Queries
	Events    *events.Bus
	DebtTerm  time.Duration
	Now       func() time.Time
	// ForTx overrides the querier bound to a transaction; tests use it to
	// substitute stubs.
	ForTx func(pgx.Tx) Querier
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) debtTerm() time.Duration {
	if s == nil || s.DebtTerm <= 0 {
		return 30 * 24 * time.Hour
	}
	return s.DebtTerm
}

func (s *Service) queriesFor(tx pgx.Tx) Querier {
	if s.ForTx != nil {
		return s.ForTx(tx)
	}
	return s.Q.WithTx(tx)
}

// Settle finalizes a cart: it checks stock, persists the receipt, mutates
// stock, updates customer aggregates, records or augments debt, and pays off
// the customer's older debts from any surplus. All steps run inside a single
// transaction; a failure at any point leaves no partial state behind.
func (s *Service) Settle(ctx context.Context, in Input) (Output, error) {
	if s == nil || s.DB == nil {
		return Output{}, errors.New("settlement service not configured")
	}
	if err := s.validate(in); err != nil {
		return Output{}, err
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return Output{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	q := s.queriesFor(tx)

	out, lowStock, err := s.settleInTx(ctx, q, in)
	if err != nil {
		return Output{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Output{}, err
	}
	s.emitAfterSettle(ctx, out, lowStock)
	return out, nil
}

func (s *Service) validate(in Input) error {
	if len(in.Lines) == 0 {
		return ErrEmptyCart
	}
	for _, line := range in.Lines {
		if line.Quantity <= 0 || line.UnitPrice < 0 {
			return fmt.Errorf("%w: %s", ErrInvalidLine, line.Name)
		}
	}
	if in.IsReturn {
		// Return receipts pay the customer back, so tender rules do not apply.
		return nil
	}
	if in.Split.NetTotal <= 0 && in.Split.Discount <= 0 {
		return ErrZeroTotal
	}
	return in.Split.Validate()
}

func (s *Service) settleInTx(ctx context.Context, q Querier, in Input) (Output, []db.Product, error) {
	now := s.now()
	stockSign := int64(-1)
	if in.IsReturn {
		stockSign = 1
	}
	var debt *db.Debt

	// Step 1: lock every product and verify stock before any mutation.
	products := make(map[string]db.Product, len(in.Lines))
	for _, line := range in.Lines {
		pid, err := db.ToUUID(line.ProductID)
		if err != nil {
			return Output{}, nil, fmt.Errorf("%w: product %s", ErrInvalidLine, line.ProductID)
		}
		product, err := q.GetProductForUpdate(ctx, pid)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return Output{}, nil, fmt.Errorf("%w: product %s", ErrNotFound, line.ProductID)
			}
			return Output{}, nil, err
		}
		if !in.IsReturn && product.Quantity < line.Quantity {
			return Output{}, nil, &InsufficientStockError{
				ProductID:   line.ProductID,
				ProductName: product.Name,
				Available:   product.Quantity,
				Requested:   line.Quantity,
			}
		}
		products[line.ProductID] = product
	}

	var customer db.Customer
	var customerID pgtype.UUID
	hasCustomer := in.Split.CustomerID != ""
	if hasCustomer {
		var err error
		customerID, err = db.ToUUID(in.Split.CustomerID)
		if err != nil {
			return Output{}, nil, fmt.Errorf("%w: customer %s", ErrInvalidLine, in.Split.CustomerID)
		}
		customer, err = q.GetCustomerForUpdate(ctx, customerID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return Output{}, nil, fmt.Errorf("%w: customer %s", ErrNotFound, in.Split.CustomerID)
			}
			return Output{}, nil, err
		}
	}

	// Step 2: persist the receipt with the captured prices. A return never
	// records debt, so its row must not carry a debt amount either.
	debtAmount := in.Split.DebtAmount
	if in.IsReturn {
		debtAmount = 0
	}
	number, err := s.nextNumber(ctx, q, now)
	if err != nil {
		return Output{}, nil, err
	}
	receipt, err := q.InsertReceipt(ctx, db.InsertReceiptParams{
		Number:        number,
		CustomerID:    customerID,
		Subtotal:      lineSum(in.Lines),
		Discount:      in.Split.Discount,
		Total:         in.Split.NetTotal,
		PaidAmount:    in.Split.TotalPaid,
		CashAmount:    in.Split.CashAmount,
		CardAmount:    in.Split.CardAmount,
		ClickAmount:   in.Split.ClickAmount,
		ChangeAmount:  in.Split.ChangeAmount,
		DebtAmount:    debtAmount,
		PaymentMethod: string(in.Split.Method()),
		IsReturn:      in.IsReturn,
		CreatedBy:     toNullableUUID(in.CreatedBy),
	})
	if err != nil {
		return Output{}, nil, err
	}
	items := make([]db.ReceiptItem, 0, len(in.Lines))
	for _, line := range in.Lines {
		product := products[line.ProductID]
		if err := q.InsertReceiptItem(ctx, db.InsertReceiptItemParams{
			ReceiptID: receipt.ID,
			ProductID: product.ID,
			Name:      line.Name,
			Unit:      line.Unit,
			Price:     line.UnitPrice,
			Quantity:  line.Quantity,
		}); err != nil {
			return Output{}, nil, err
		}
		items = append(items, db.ReceiptItem{
			ReceiptID: receipt.ID,
			ProductID: product.ID,
			Name:      line.Name,
			Unit:      line.Unit,
			Price:     line.UnitPrice,
			Quantity:  line.Quantity,
		})
	}

	// Step 3: mutate stock.
	var lowStock []db.Product
	for _, line := range in.Lines {
		product := products[line.ProductID]
		newQty, err := q.AdjustProductStock(ctx, product.ID, stockSign*line.Quantity)
		if err != nil {
			return Output{}, nil, err
		}
		if newQty <= product.LowStockThreshold && product.LowStockThreshold > 0 {
			product.Quantity = newQty
			lowStock = append(lowStock, product)
		}
	}

	// Steps 4 through 6 track money the customer owes or is owed on a sale.
	// A return hands goods back and pays the customer out, so none of them
	// apply: its split carries no meaningful tender and must not mint debt.
	if hasCustomer && !in.IsReturn {
		// Step 4: purchase and loyalty aggregates.
		balls := in.Split.NetTotal / OneBall
		if err := q.ApplyCustomerPurchase(ctx, customerID, in.Split.NetTotal, balls); err != nil {
			return Output{}, nil, err
		}

		// Step 5: record the shortfall as debt.
		if in.Split.DebtAmount > 0 {
			d, err := s.recordDebt(ctx, q, receipt, customerID, in.Split.DebtAmount, now)
			if err != nil {
				return Output{}, nil, err
			}
			debt = &d
		}

		// Step 6: pay off pre-existing debts from the surplus, oldest first.
		if in.Split.ChangeAmount > 0 && customer.Debt > 0 {
			allocated, err := AllocateAcrossDebts(ctx, q, customerID, in.Split.ChangeAmount, string(in.Split.Method()), receipt.ID, "overpayment on receipt "+receipt.Number)
			if err != nil {
				return Output{}, nil, err
			}
			if allocated > 0 {
				receipt.ChangeAmount = in.Split.ChangeAmount - allocated
				if err := q.SetReceiptChange(ctx, receipt.ID, receipt.ChangeAmount); err != nil {
					return Output{}, nil, err
				}
			}
		}
	}

	return Output{Receipt: receipt, Items: items, Debt: debt}, lowStock, nil
}

// recordDebt augments the customer's most recent open debt, or opens a new
// auto-approved one. Augmenting instead of one-debt-per-sale keeps the
// customer-facing statement to a single running record.
func (s *Service) recordDebt(ctx context.Context, q Querier, receipt db.Receipt, customerID pgtype.UUID, amount int64, now time.Time) (db.Debt, error) {
	note := "kassa receipt " + receipt.Number
	latest, err := q.GetLatestOpenDebtForUpdate(ctx, customerID)
	var debt db.Debt
	switch {
	case err == nil:
		debt, err = q.AddToDebt(ctx, latest.ID, amount, note)
		if err != nil {
			return db.Debt{}, err
		}
	case errors.Is(err, pgx.ErrNoRows):
		debt, err = q.CreateDebt(ctx, db.CreateDebtParams{
			CustomerID: customerID,
			Amount:     amount,
			Status:     db.DebtStatusApproved,
			DueDate:    pgtype.Timestamptz{Time: now.Add(s.debtTerm()), Valid: true},
			Note:       pgtype.Text{String: note, Valid: true},
		})
		if err != nil {
			return db.Debt{}, err
		}
	default:
		return db.Debt{}, err
	}
	if err := q.SetReceiptDebt(ctx, receipt.ID, debt.ID); err != nil {
		return db.Debt{}, err
	}
	// Step 7 (debt side): keep the cache in the same transaction.
	return debt, q.AdjustCustomerDebt(ctx, customerID, amount)
}

// DebtAllocator is the narrow querier slice the FIFO payoff routine needs.
// Both settlement and the debt surface run their payments through it.
type DebtAllocator interface {
	ListOpenDebtsForUpdate(ctx context.Context, customerID pgtype.UUID) ([]db.Debt, error)
	ApplyDebtPayment(ctx context.Context, id pgtype.UUID, amount int64) (db.Debt, error)
	InsertDebtPayment(ctx context.Context, arg db.InsertDebtPaymentParams) (db.DebtPayment, error)
	AdjustCustomerDebt(ctx context.Context, id pgtype.UUID, delta int64) error
}

// AllocateAcrossDebts spreads amount across the customer's open debts in
// created_at order. FIFO is deliberate: the oldest receivable clears first.
// Each touched debt gets a ledger row; the debt cache is decremented by the
// allocated total in the same transaction. Returns the allocated amount,
// which is below the requested amount when the debts run out first.
func AllocateAcrossDebts(ctx context.Context, q DebtAllocator, customerID pgtype.UUID, amount int64, method string, receiptID pgtype.UUID, note string) (int64, error) {
	debts, err := q.ListOpenDebtsForUpdate(ctx, customerID)
	if err != nil {
		return 0, err
	}
	var allocated int64
	for _, d := range debts {
		if amount <= 0 {
			break
		}
		owed := d.Amount - d.PaidAmount
		if owed <= 0 {
			continue
		}
		pay := owed
		if amount < pay {
			pay = amount
		}
		if _, err := q.ApplyDebtPayment(ctx, d.ID, pay); err != nil {
			return 0, err
		}
		if _, err := q.InsertDebtPayment(ctx, db.InsertDebtPaymentParams{
			DebtID:    d.ID,
			ReceiptID: receiptID,
			Amount:    pay,
			Method:    method,
			Note:      pgtype.Text{String: note, Valid: true},
		}); err != nil {
			return 0, err
		}
		amount -= pay
		allocated += pay
	}
	if allocated > 0 {
		if err := q.AdjustCustomerDebt(ctx, customerID, -allocated); err != nil {
			return 0, err
		}
	}
	return allocated, nil
}

// Reverse deletes a receipt and undoes every side effect it had: stock goes
// back, customer aggregates shrink, debt it created is retracted, and debt
// payments funded by its surplus are reversed. Mirrors Settle step for step,
// inside one transaction.
func (s *Service) Reverse(ctx context.Context, receiptID string) error {
	if s == nil || s.DB == nil {
		return errors.New("settlement service not configured")
	}
	rid, err := db.ToUUID(receiptID)
	if err != nil {
		return fmt.Errorf("%w: receipt %s", ErrInvalidLine, receiptID)
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	q := s.queriesFor(tx)

	receipt, err := s.reverseInTx(ctx, q, rid)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	if s.Events != nil {
		s.Events.Emit(ctx, events.TopicReceiptDeleted, receipt.ID, map[string]any{
			"receiptId": db.UUIDString(receipt.ID),
			"number":    receipt.Number,
			"total":     receipt.Total,
		})
	}
	return nil
}

func (s *Service) reverseInTx(ctx context.Context, q Querier, rid pgtype.UUID) (db.Receipt, error) {
	receipt, err := q.GetReceiptByID(ctx, rid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return db.Receipt{}, fmt.Errorf("%w: receipt %s", ErrNotFound, db.UUIDString(rid))
		}
		return db.Receipt{}, err
	}
	items, err := q.ListReceiptItems(ctx, rid)
	if err != nil {
		return db.Receipt{}, err
	}

	stockSign := int64(1)
	if receipt.IsReturn {
		stockSign = -1
	}
	for _, item := range items {
		if _, err := q.AdjustProductStock(ctx, item.ProductID, stockSign*item.Quantity); err != nil {
			return db.Receipt{}, err
		}
	}

	if receipt.CustomerID.Valid {
		if _, err := q.GetCustomerForUpdate(ctx, receipt.CustomerID); err != nil {
			return db.Receipt{}, err
		}
		if !receipt.IsReturn {
			balls := receipt.Total / OneBall
			if err := q.ApplyCustomerPurchase(ctx, receipt.CustomerID, -receipt.Total, -balls); err != nil {
				return db.Receipt{}, err
			}
		}
		if receipt.DebtAmount > 0 && receipt.DebtID.Valid {
			if _, err := q.AddToDebt(ctx, receipt.DebtID, -receipt.DebtAmount, "reversal of receipt "+receipt.Number); err != nil {
				return db.Receipt{}, err
			}
			if err := q.AdjustCustomerDebt(ctx, receipt.CustomerID, -receipt.DebtAmount); err != nil {
				return db.Receipt{}, err
			}
		}
		payments, err := q.ListDebtPaymentsByReceipt(ctx, rid)
		if err != nil {
			return db.Receipt{}, err
		}
		var restored int64
		for _, p := range payments {
			if _, err := q.ReverseDebtPayment(ctx, p.DebtID, p.Amount); err != nil {
				return db.Receipt{}, err
			}
			restored += p.Amount
		}
		if restored > 0 {
			if err := q.AdjustCustomerDebt(ctx, receipt.CustomerID, restored); err != nil {
				return db.Receipt{}, err
			}
		}
	}

	if err := q.DeleteDebtPaymentsByReceipt(ctx, rid); err != nil {
		return db.Receipt{}, err
	}
	if err := q.DeleteReceipt(ctx, rid); err != nil {
		return db.Receipt{}, err
	}
	return receipt, nil
}

func (s *Service) nextNumber(ctx context.Context, q Querier, now time.Time) (string, error) {
	prefix := "KS-" + now.Format("20060102")
	seq, err := q.NextReceiptSeq(ctx, prefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d", prefix, seq), nil
}

func (s *Service) emitAfterSettle(ctx context.Context, out Output, lowStock []db.Product) {
	if s.Events == nil {
		return
	}
	payload := map[string]any{
		"receiptId": db.UUIDString(out.Receipt.ID),
		"number":    out.Receipt.Number,
		"total":     out.Receipt.Total,
	}
	if out.Receipt.CustomerID.Valid {
		payload["customerId"] = db.UUIDString(out.Receipt.CustomerID)
	}
	s.Events.Emit(ctx, events.TopicReceiptCreated, out.Receipt.ID, payload)
	if out.Receipt.DebtAmount > 0 && out.Debt != nil {
		detail := map[string]any{
			"debtId":     db.UUIDString(out.Debt.ID),
			"customerId": db.UUIDString(out.Receipt.CustomerID),
			"amount":     out.Receipt.DebtAmount,
		}
		if out.Debt.DueDate.Valid {
			detail["dueDate"] = out.Debt.DueDate.Time
		}
		s.Events.Emit(ctx, events.TopicDebtCreated, out.Debt.ID, detail)
	}
	for _, p := range lowStock {
		s.Events.Emit(ctx, events.TopicStockLow, p.ID, map[string]any{
			"productId": db.UUIDString(p.ID),
			"name":      p.Name,
			"quantity":  p.Quantity,
			"threshold": p.LowStockThreshold,
		})
	}
}

func lineSum(lines []Line) int64 {
	var total int64
	for _, l := range lines {
		total += l.UnitPrice * l.Quantity
	}
	return total
}

func toNullableUUID(value string) pgtype.UUID {
	if value == "" {
		return pgtype.UUID{}
	}
	id, err := db.ToUUID(value)
	if err != nil {
		return pgtype.UUID{}
	}
	return id
}
