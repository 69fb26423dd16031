package settlement

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/aziz-dev/backend-kassa/internal/db"
	"github.com/aziz-dev/backend-kassa/internal/payment"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakeDB struct {
	tx *fakeTx
}

func (d *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	return d.tx, nil
}

// store is an in-memory Querier that mirrors the SQL semantics of internal/db.
type store struct {
	failOn    string
	calls     []string
	products  map[pgtype.UUID]*db.Product
	customers map[pgtype.UUID]*db.Customer
	debts     []*db.Debt
	receipts  map[pgtype.UUID]*db.Receipt
	items     map[pgtype.UUID][]db.ReceiptItem
	payments  []db.DebtPayment
}

func newStore() *store {
	return &store{
		products:  map[pgtype.UUID]*db.Product{},
		customers: map[pgtype.UUID]*db.Customer{},
		receipts:  map[pgtype.UUID]*db.Receipt{},
		items:     map[pgtype.UUID][]db.ReceiptItem{},
	}
}

func (s *store) step(name string) error {
	s.calls = append(s.calls, name)
	if s.failOn == name {
		return fmt.Errorf("forced failure at %s", name)
	}
	return nil
}

func (s *store) GetProductForUpdate(_ context.Context, id pgtype.UUID) (db.Product, error) {
	if err := s.step("GetProductForUpdate"); err != nil {
		return db.Product{}, err
	}
	p, ok := s.products[id]
	if !ok {
		return db.Product{}, pgx.ErrNoRows
	}
	return *p, nil
}

func (s *store) AdjustProductStock(_ context.Context, id pgtype.UUID, delta int64) (int64, error) {
	if err := s.step("AdjustProductStock"); err != nil {
		return 0, err
	}
	p, ok := s.products[id]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	p.Quantity += delta
	return p.Quantity, nil
}

func (s *store) NextReceiptSeq(_ context.Context, prefix string) (int64, error) {
	if err := s.step("NextReceiptSeq"); err != nil {
		return 0, err
	}
	var max int64
	for _, r := range s.receipts {
		var seq int64
		if _, err := fmt.Sscanf(r.Number, prefix+"-%d", &seq); err == nil && seq > max {
			max = seq
		}
	}
	return max + 1, nil
}

func (s *store) InsertReceipt(_ context.Context, arg db.InsertReceiptParams) (db.Receipt, error) {
	if err := s.step("InsertReceipt"); err != nil {
		return db.Receipt{}, err
	}
	r := db.Receipt{
		ID:            newID(),
		Number:        arg.Number,
		CustomerID:    arg.CustomerID,
		Subtotal:      arg.Subtotal,
		Discount:      arg.Discount,
		Total:         arg.Total,
		PaidAmount:    arg.PaidAmount,
		CashAmount:    arg.CashAmount,
		CardAmount:    arg.CardAmount,
		ClickAmount:   arg.ClickAmount,
		ChangeAmount:  arg.ChangeAmount,
		DebtAmount:    arg.DebtAmount,
		PaymentMethod: arg.PaymentMethod,
		IsReturn:      arg.IsReturn,
		CreatedBy:     arg.CreatedBy,
	}
	s.receipts[r.ID] = &r
	return r, nil
}

func (s *store) InsertReceiptItem(_ context.Context, arg db.InsertReceiptItemParams) error {
	if err := s.step("InsertReceiptItem"); err != nil {
		return err
	}
	s.items[arg.ReceiptID] = append(s.items[arg.ReceiptID], db.ReceiptItem{
		ID:        newID(),
		ReceiptID: arg.ReceiptID,
		ProductID: arg.ProductID,
		Name:      arg.Name,
		Unit:      arg.Unit,
		Price:     arg.Price,
		Quantity:  arg.Quantity,
	})
	return nil
}

func (s *store) SetReceiptDebt(_ context.Context, receiptID, debtID pgtype.UUID) error {
	if err := s.step("SetReceiptDebt"); err != nil {
		return err
	}
	r, ok := s.receipts[receiptID]
	if !ok {
		return pgx.ErrNoRows
	}
	r.DebtID = debtID
	return nil
}

func (s *store) SetReceiptChange(_ context.Context, id pgtype.UUID, change int64) error {
	if err := s.step("SetReceiptChange"); err != nil {
		return err
	}
	r, ok := s.receipts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	r.ChangeAmount = change
	return nil
}

func (s *store) GetReceiptByID(_ context.Context, id pgtype.UUID) (db.Receipt, error) {
	if err := s.step("GetReceiptByID"); err != nil {
		return db.Receipt{}, err
	}
	r, ok := s.receipts[id]
	if !ok {
		return db.Receipt{}, pgx.ErrNoRows
	}
	return *r, nil
}

func (s *store) ListReceiptItems(_ context.Context, receiptID pgtype.UUID) ([]db.ReceiptItem, error) {
	if err := s.step("ListReceiptItems"); err != nil {
		return nil, err
	}
	return s.items[receiptID], nil
}

func (s *store) DeleteReceipt(_ context.Context, id pgtype.UUID) error {
	if err := s.step("DeleteReceipt"); err != nil {
		return err
	}
	delete(s.receipts, id)
	delete(s.items, id)
	return nil
}

func (s *store) GetCustomerForUpdate(_ context.Context, id pgtype.UUID) (db.Customer, error) {
	if err := s.step("GetCustomerForUpdate"); err != nil {
		return db.Customer{}, err
	}
	c, ok := s.customers[id]
	if !ok {
		return db.Customer{}, pgx.ErrNoRows
	}
	return *c, nil
}

func (s *store) ApplyCustomerPurchase(_ context.Context, id pgtype.UUID, amount, balls int64) error {
	if err := s.step("ApplyCustomerPurchase"); err != nil {
		return err
	}
	c, ok := s.customers[id]
	if !ok {
		return pgx.ErrNoRows
	}
	c.TotalPurchases += amount
	c.TotalBalls += balls
	return nil
}

func (s *store) AdjustCustomerDebt(_ context.Context, id pgtype.UUID, delta int64) error {
	if err := s.step("AdjustCustomerDebt"); err != nil {
		return err
	}
	c, ok := s.customers[id]
	if !ok {
		return pgx.ErrNoRows
	}
	c.Debt += delta
	return nil
}

func (s *store) openDebts(customerID pgtype.UUID) []*db.Debt {
	var out []*db.Debt
	for _, d := range s.debts {
		if d.CustomerID == customerID && (d.Status == db.DebtStatusPending || d.Status == db.DebtStatusApproved) {
			out = append(out, d)
		}
	}
	return out
}

func (s *store) GetLatestOpenDebtForUpdate(_ context.Context, customerID pgtype.UUID) (db.Debt, error) {
	if err := s.step("GetLatestOpenDebtForUpdate"); err != nil {
		return db.Debt{}, err
	}
	open := s.openDebts(customerID)
	if len(open) == 0 {
		return db.Debt{}, pgx.ErrNoRows
	}
	return *open[len(open)-1], nil
}

func (s *store) CreateDebt(_ context.Context, arg db.CreateDebtParams) (db.Debt, error) {
	if err := s.step("CreateDebt"); err != nil {
		return db.Debt{}, err
	}
	d := &db.Debt{
		ID:         newID(),
		CustomerID: arg.CustomerID,
		Amount:     arg.Amount,
		Status:     arg.Status,
		DueDate:    arg.DueDate,
		Note:       arg.Note,
	}
	s.debts = append(s.debts, d)
	return *d, nil
}

func (s *store) AddToDebt(_ context.Context, id pgtype.UUID, delta int64, _ string) (db.Debt, error) {
	if err := s.step("AddToDebt"); err != nil {
		return db.Debt{}, err
	}
	for _, d := range s.debts {
		if d.ID == id {
			d.Amount += delta
			if d.Amount < d.PaidAmount {
				d.Amount = d.PaidAmount
			}
			if d.Amount <= d.PaidAmount {
				d.Status = db.DebtStatusPaid
			}
			return *d, nil
		}
	}
	return db.Debt{}, pgx.ErrNoRows
}

func (s *store) ListOpenDebtsForUpdate(_ context.Context, customerID pgtype.UUID) ([]db.Debt, error) {
	if err := s.step("ListOpenDebtsForUpdate"); err != nil {
		return nil, err
	}
	var out []db.Debt
	for _, d := range s.openDebts(customerID) {
		out = append(out, *d)
	}
	return out, nil
}

func (s *store) ApplyDebtPayment(_ context.Context, id pgtype.UUID, amount int64) (db.Debt, error) {
	if err := s.step("ApplyDebtPayment"); err != nil {
		return db.Debt{}, err
	}
	for _, d := range s.debts {
		if d.ID == id {
			d.PaidAmount += amount
			if d.PaidAmount >= d.Amount {
				d.Status = db.DebtStatusPaid
			}
			return *d, nil
		}
	}
	return db.Debt{}, pgx.ErrNoRows
}

func (s *store) ReverseDebtPayment(_ context.Context, id pgtype.UUID, amount int64) (db.Debt, error) {
	if err := s.step("ReverseDebtPayment"); err != nil {
		return db.Debt{}, err
	}
	for _, d := range s.debts {
		if d.ID == id {
			d.PaidAmount -= amount
			if d.PaidAmount < 0 {
				d.PaidAmount = 0
			}
			if d.PaidAmount < d.Amount && d.Status == db.DebtStatusPaid {
				d.Status = db.DebtStatusApproved
			}
			return *d, nil
		}
	}
	return db.Debt{}, pgx.ErrNoRows
}

func (s *store) InsertDebtPayment(_ context.Context, arg db.InsertDebtPaymentParams) (db.DebtPayment, error) {
	if err := s.step("InsertDebtPayment"); err != nil {
		return db.DebtPayment{}, err
	}
	p := db.DebtPayment{
		ID:        newID(),
		DebtID:    arg.DebtID,
		ReceiptID: arg.ReceiptID,
		Amount:    arg.Amount,
		Method:    arg.Method,
		Note:      arg.Note,
	}
	s.payments = append(s.payments, p)
	return p, nil
}

func (s *store) ListDebtPaymentsByReceipt(_ context.Context, receiptID pgtype.UUID) ([]db.DebtPayment, error) {
	if err := s.step("ListDebtPaymentsByReceipt"); err != nil {
		return nil, err
	}
	var out []db.DebtPayment
	for _, p := range s.payments {
		if p.ReceiptID == receiptID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *store) DeleteDebtPaymentsByReceipt(_ context.Context, receiptID pgtype.UUID) error {
	if err := s.step("DeleteDebtPaymentsByReceipt"); err != nil {
		return err
	}
	kept := s.payments[:0]
	for _, p := range s.payments {
		if p.ReceiptID != receiptID {
			kept = append(kept, p)
		}
	}
	s.payments = kept
	return nil
}

func newID() pgtype.UUID {
	return pgtype.UUID{Bytes: uuid.New(), Valid: true}
}

func newService(st *store) (*Service, *fakeTx) {
	tx := &fakeTx{}
	svc := &Service{
		DB:  &fakeDB{tx: tx},
		Now: func() time.Time { return time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC) },
		ForTx: func(pgx.Tx) Querier {
			return st
		},
	}
	return svc, tx
}

func seedProduct(st *store, name string, qty int64) pgtype.UUID {
	id := newID()
	st.products[id] = &db.Product{ID: id, Name: name, Unit: "dona", Quantity: qty, LowStockThreshold: 0}
	return id
}

func seedCustomer(st *store, name string, debt int64) pgtype.UUID {
	id := newID()
	st.customers[id] = &db.Customer{ID: id, Name: name, Debt: debt}
	return id
}

func seedDebt(st *store, customerID pgtype.UUID, amount, paid int64) pgtype.UUID {
	d := &db.Debt{ID: newID(), CustomerID: customerID, Amount: amount, PaidAmount: paid, Status: db.DebtStatusApproved}
	st.debts = append(st.debts, d)
	return d.ID
}

func TestSettleMixedPaymentExact(t *testing.T) {
	st := newStore()
	pid := seedProduct(st, "Gipsokarton", 50)
	svc, tx := newService(st)

	split := payment.Compute(960_000, 0, payment.Tender{Cash: 500_000, Card: 460_000}, "")
	out, err := svc.Settle(context.Background(), Input{
		Lines: []Line{{ProductID: db.UUIDString(pid), Name: "Gipsokarton", Unit: "dona", Quantity: 12, UnitPrice: 80_000}},
		Split: split,
	})
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if !tx.committed || tx.rolledBack {
		t.Fatalf("committed=%v rolledBack=%v, want commit", tx.committed, tx.rolledBack)
	}
	if out.Receipt.Number != "KS-20250314-1" {
		t.Fatalf("number = %q", out.Receipt.Number)
	}
	if out.Receipt.Total != 960_000 || out.Receipt.DebtAmount != 0 || out.Receipt.ChangeAmount != 0 {
		t.Fatalf("receipt money = %+v", out.Receipt)
	}
	if out.Receipt.PaymentMethod != "mixed" {
		t.Fatalf("method = %q", out.Receipt.PaymentMethod)
	}
	if got := st.products[pid].Quantity; got != 38 {
		t.Fatalf("stock = %d, want 38", got)
	}
	if len(st.items[out.Receipt.ID]) != 1 {
		t.Fatalf("items = %d", len(st.items[out.Receipt.ID]))
	}
}

func TestSettleInsufficientStock(t *testing.T) {
	st := newStore()
	pid := seedProduct(st, "Shpaklyovka", 5)
	svc, tx := newService(st)

	split := payment.Compute(100_000, 0, payment.Tender{Cash: 100_000}, "")
	_, err := svc.Settle(context.Background(), Input{
		Lines: []Line{{ProductID: db.UUIDString(pid), Name: "Shpaklyovka", Unit: "dona", Quantity: 10, UnitPrice: 10_000}},
		Split: split,
	})
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("err = %v, want InsufficientStockError", err)
	}
	if stockErr.Available != 5 || stockErr.Requested != 10 || stockErr.ProductName != "Shpaklyovka" {
		t.Fatalf("stock error = %+v", stockErr)
	}
	if tx.committed || !tx.rolledBack {
		t.Fatalf("committed=%v rolledBack=%v, want rollback", tx.committed, tx.rolledBack)
	}
	if got := st.products[pid].Quantity; got != 5 {
		t.Fatalf("stock mutated to %d before rollback point", got)
	}
	if len(st.receipts) != 0 {
		t.Fatalf("receipt persisted despite rejection")
	}
}

func TestSettleRollsBackOnDebtFailure(t *testing.T) {
	st := newStore()
	pid := seedProduct(st, "Profil", 40)
	cid := seedCustomer(st, "Karim aka", 0)
	st.failOn = "CreateDebt"
	svc, tx := newService(st)

	split := payment.Compute(200_000, 0, payment.Tender{Cash: 150_000}, db.UUIDString(cid))
	_, err := svc.Settle(context.Background(), Input{
		Lines: []Line{{ProductID: db.UUIDString(pid), Name: "Profil", Unit: "dona", Quantity: 4, UnitPrice: 50_000}},
		Split: split,
	})
	if err == nil {
		t.Fatal("Settle succeeded, want forced failure")
	}
	if tx.committed || !tx.rolledBack {
		t.Fatalf("committed=%v rolledBack=%v, want rollback", tx.committed, tx.rolledBack)
	}
}

func TestSettleRecordsDebt(t *testing.T) {
	st := newStore()
	pid := seedProduct(st, "Elim", 100)
	cid := seedCustomer(st, "Nodira opa", 0)
	svc, _ := newService(st)

	split := payment.Compute(100_000, 0, payment.Tender{Cash: 60_000}, db.UUIDString(cid))
	out, err := svc.Settle(context.Background(), Input{
		Lines: []Line{{ProductID: db.UUIDString(pid), Name: "Elim", Unit: "dona", Quantity: 10, UnitPrice: 10_000}},
		Split: split,
	})
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if len(st.debts) != 1 {
		t.Fatalf("debts = %d, want 1", len(st.debts))
	}
	d := st.debts[0]
	if d.Amount != 40_000 || d.Status != db.DebtStatusApproved {
		t.Fatalf("debt = %+v", d)
	}
	if !out.Receipt.DebtID.Valid || out.Receipt.DebtID != d.ID {
		t.Fatalf("receipt not linked to debt")
	}
	if got := st.customers[cid].Debt; got != 40_000 {
		t.Fatalf("customer debt cache = %d, want 40000", got)
	}
}

func TestSettleAugmentsLatestOpenDebt(t *testing.T) {
	st := newStore()
	pid := seedProduct(st, "Kraska", 100)
	cid := seedCustomer(st, "Bahodir", 50_000)
	existing := seedDebt(st, cid, 50_000, 0)
	svc, _ := newService(st)

	split := payment.Compute(90_000, 0, payment.Tender{Cash: 70_000}, db.UUIDString(cid))
	_, err := svc.Settle(context.Background(), Input{
		Lines: []Line{{ProductID: db.UUIDString(pid), Name: "Kraska", Unit: "dona", Quantity: 3, UnitPrice: 30_000}},
		Split: split,
	})
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if len(st.debts) != 1 {
		t.Fatalf("debts = %d, want the existing one augmented", len(st.debts))
	}
	d := st.debts[0]
	if d.ID != existing || d.Amount != 70_000 {
		t.Fatalf("debt = %+v, want amount 70000", d)
	}
	if got := st.customers[cid].Debt; got != 70_000 {
		t.Fatalf("customer debt cache = %d, want 70000", got)
	}
}

func TestSettlePaysOffOldestDebtsFirst(t *testing.T) {
	st := newStore()
	pid := seedProduct(st, "Sement", 200)
	cid := seedCustomer(st, "Olim", 80_000)
	d1 := seedDebt(st, cid, 30_000, 0)
	d2 := seedDebt(st, cid, 50_000, 0)
	svc, _ := newService(st)

	split := payment.Compute(100_000, 0, payment.Tender{Cash: 140_000}, db.UUIDString(cid))
	out, err := svc.Settle(context.Background(), Input{
		Lines: []Line{{ProductID: db.UUIDString(pid), Name: "Sement", Unit: "qop", Quantity: 2, UnitPrice: 50_000}},
		Split: split,
	})
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	var first, second *db.Debt
	for _, d := range st.debts {
		switch d.ID {
		case d1:
			first = d
		case d2:
			second = d
		}
	}
	if first.PaidAmount != 30_000 || first.Status != db.DebtStatusPaid {
		t.Fatalf("oldest debt = %+v, want fully paid", first)
	}
	if second.PaidAmount != 10_000 || second.Status != db.DebtStatusApproved {
		t.Fatalf("newer debt = %+v, want 10000 paid", second)
	}
	if got := st.customers[cid].Debt; got != 40_000 {
		t.Fatalf("customer debt cache = %d, want 40000", got)
	}
	if st.receipts[out.Receipt.ID].ChangeAmount != 0 {
		t.Fatalf("change = %d, want 0 after full allocation", st.receipts[out.Receipt.ID].ChangeAmount)
	}
	if len(st.payments) != 2 {
		t.Fatalf("payment ledger rows = %d, want 2", len(st.payments))
	}
}

func TestSettleLoyaltyFloor(t *testing.T) {
	st := newStore()
	pid := seedProduct(st, "Laminat", 500)
	cid := seedCustomer(st, "Gulnoza", 0)
	svc, _ := newService(st)

	split := payment.Compute(2_500_000, 0, payment.Tender{Card: 2_500_000}, db.UUIDString(cid))
	_, err := svc.Settle(context.Background(), Input{
		Lines: []Line{{ProductID: db.UUIDString(pid), Name: "Laminat", Unit: "dona", Quantity: 25, UnitPrice: 100_000}},
		Split: split,
	})
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	c := st.customers[cid]
	if c.TotalBalls != 2 {
		t.Fatalf("balls = %d, want 2", c.TotalBalls)
	}
	if c.TotalPurchases != 2_500_000 {
		t.Fatalf("purchases = %d", c.TotalPurchases)
	}
}

func TestSettleReturnCreatesNoDebt(t *testing.T) {
	st := newStore()
	pid := seedProduct(st, "Plintus", 10)
	cid := seedCustomer(st, "Akmal", 0)
	svc, _ := newService(st)

	split := payment.Compute(100_000, 0, payment.Tender{}, db.UUIDString(cid))
	out, err := svc.Settle(context.Background(), Input{
		Lines:    []Line{{ProductID: db.UUIDString(pid), Name: "Plintus", Unit: "dona", Quantity: 5, UnitPrice: 20_000}},
		Split:    split,
		IsReturn: true,
	})
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if got := st.products[pid].Quantity; got != 15 {
		t.Fatalf("stock after return = %d, want 15", got)
	}
	if len(st.debts) != 0 {
		t.Fatalf("return minted a debt: %+v", st.debts[0])
	}
	if out.Debt != nil || out.Receipt.DebtID.Valid {
		t.Fatalf("return receipt linked to a debt: %+v", out.Receipt)
	}
	if out.Receipt.DebtAmount != 0 {
		t.Fatalf("return receipt recorded debt amount %d", out.Receipt.DebtAmount)
	}
	c := st.customers[cid]
	if c.Debt != 0 {
		t.Fatalf("debt cache after return = %d, want 0", c.Debt)
	}
	if c.TotalPurchases != 0 || c.TotalBalls != 0 {
		t.Fatalf("return touched purchase aggregates: %+v", c)
	}
}

func TestSettleReturnLeavesOpenDebtsAlone(t *testing.T) {
	st := newStore()
	pid := seedProduct(st, "Vint", 10)
	cid := seedCustomer(st, "Ravshan", 50_000)
	old := seedDebt(st, cid, 50_000, 0)
	svc, _ := newService(st)

	split := payment.Compute(30_000, 0, payment.Tender{Cash: 40_000}, db.UUIDString(cid))
	_, err := svc.Settle(context.Background(), Input{
		Lines:    []Line{{ProductID: db.UUIDString(pid), Name: "Vint", Unit: "dona", Quantity: 3, UnitPrice: 10_000}},
		Split:    split,
		IsReturn: true,
	})
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if len(st.payments) != 0 {
		t.Fatalf("return allocated debt payments: %d rows", len(st.payments))
	}
	if st.debts[0].ID != old || st.debts[0].PaidAmount != 0 {
		t.Fatalf("return touched existing debt: %+v", st.debts[0])
	}
	if got := st.customers[cid].Debt; got != 50_000 {
		t.Fatalf("debt cache after return = %d, want 50000", got)
	}
}

func TestSettleRejectsEmptyCart(t *testing.T) {
	st := newStore()
	svc, _ := newService(st)
	_, err := svc.Settle(context.Background(), Input{})
	if !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("err = %v, want ErrEmptyCart", err)
	}
}

func TestSettleDebtWithoutCustomerBlocked(t *testing.T) {
	st := newStore()
	pid := seedProduct(st, "Mix", 100)
	svc, _ := newService(st)

	split := payment.Compute(100_000, 0, payment.Tender{Cash: 60_000}, "")
	_, err := svc.Settle(context.Background(), Input{
		Lines: []Line{{ProductID: db.UUIDString(pid), Name: "Mix", Unit: "dona", Quantity: 1, UnitPrice: 100_000}},
		Split: split,
	})
	if !errors.Is(err, payment.ErrDebtRequiresCustomer) {
		t.Fatalf("err = %v, want ErrDebtRequiresCustomer", err)
	}
}

func TestReverseUndoesSettlement(t *testing.T) {
	st := newStore()
	pid := seedProduct(st, "Truba", 100)
	cid := seedCustomer(st, "Sardor", 0)
	svc, _ := newService(st)

	split := payment.Compute(300_000, 0, payment.Tender{Cash: 200_000}, db.UUIDString(cid))
	out, err := svc.Settle(context.Background(), Input{
		Lines: []Line{{ProductID: db.UUIDString(pid), Name: "Truba", Unit: "metr", Quantity: 30, UnitPrice: 10_000}},
		Split: split,
	})
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if got := st.products[pid].Quantity; got != 70 {
		t.Fatalf("stock after settle = %d", got)
	}
	if got := st.customers[cid].Debt; got != 100_000 {
		t.Fatalf("debt cache after settle = %d", got)
	}

	if err := svc.Reverse(context.Background(), db.UUIDString(out.Receipt.ID)); err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if got := st.products[pid].Quantity; got != 100 {
		t.Fatalf("stock after reverse = %d, want 100", got)
	}
	c := st.customers[cid]
	if c.Debt != 0 || c.TotalPurchases != 0 || c.TotalBalls != 0 {
		t.Fatalf("customer after reverse = %+v", c)
	}
	if len(st.debts) != 1 || st.debts[0].Status != db.DebtStatusPaid || st.debts[0].Amount != 0 {
		t.Fatalf("debt after reverse = %+v", st.debts[0])
	}
	if _, ok := st.receipts[out.Receipt.ID]; ok {
		t.Fatal("receipt still present after reverse")
	}
}

func TestNumberingSurvivesReversal(t *testing.T) {
	st := newStore()
	pid := seedProduct(st, "Gips", 100)
	svc, _ := newService(st)

	settle := func() db.Receipt {
		t.Helper()
		split := payment.Compute(10_000, 0, payment.Tender{Cash: 10_000}, "")
		out, err := svc.Settle(context.Background(), Input{
			Lines: []Line{{ProductID: db.UUIDString(pid), Name: "Gips", Unit: "dona", Quantity: 1, UnitPrice: 10_000}},
			Split: split,
		})
		if err != nil {
			t.Fatalf("Settle: %v", err)
		}
		return out.Receipt
	}

	first := settle()
	second := settle()
	if first.Number != "KS-20250314-1" || second.Number != "KS-20250314-2" {
		t.Fatalf("numbers = %q, %q", first.Number, second.Number)
	}

	if err := svc.Reverse(context.Background(), db.UUIDString(first.ID)); err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	third := settle()
	if third.Number != "KS-20250314-3" {
		t.Fatalf("number after reversal = %q, want KS-20250314-3 (KS-20250314-2 is still taken)", third.Number)
	}
}

func TestReverseRestoresDebtPayments(t *testing.T) {
	st := newStore()
	pid := seedProduct(st, "Kabel", 100)
	cid := seedCustomer(st, "Jasur", 30_000)
	old := seedDebt(st, cid, 30_000, 0)
	svc, _ := newService(st)

	split := payment.Compute(50_000, 0, payment.Tender{Cash: 80_000}, db.UUIDString(cid))
	out, err := svc.Settle(context.Background(), Input{
		Lines: []Line{{ProductID: db.UUIDString(pid), Name: "Kabel", Unit: "metr", Quantity: 5, UnitPrice: 10_000}},
		Split: split,
	})
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if got := st.customers[cid].Debt; got != 0 {
		t.Fatalf("debt cache after payoff = %d", got)
	}

	if err := svc.Reverse(context.Background(), db.UUIDString(out.Receipt.ID)); err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	var d *db.Debt
	for _, cand := range st.debts {
		if cand.ID == old {
			d = cand
		}
	}
	if d.PaidAmount != 0 || d.Status != db.DebtStatusApproved {
		t.Fatalf("debt after reverse = %+v, want reopened", d)
	}
	if got := st.customers[cid].Debt; got != 30_000 {
		t.Fatalf("debt cache after reverse = %d, want 30000", got)
	}
	if len(st.payments) != 0 {
		t.Fatalf("payment ledger not cleaned: %d rows", len(st.payments))
	}
}
