package kassa_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/aziz-dev/backend-kassa/internal/db"
	"github.com/aziz-dev/backend-kassa/internal/kassa"
	"github.com/aziz-dev/backend-kassa/internal/settlement"
)

type fakeQueries struct {
	products map[pgtype.UUID]db.Product
	entries  map[pgtype.UUID][]db.PriceEntry
}

func newFakeQueries() *fakeQueries {
	return &fakeQueries{
		products: map[pgtype.UUID]db.Product{},
		entries:  map[pgtype.UUID][]db.PriceEntry{},
	}
}

func (f *fakeQueries) GetProductByID(_ context.Context, id pgtype.UUID) (db.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return db.Product{}, pgx.ErrNoRows
	}
	return p, nil
}

func (f *fakeQueries) ListPriceEntries(_ context.Context, productID pgtype.UUID) ([]db.PriceEntry, error) {
	return f.entries[productID], nil
}

func (f *fakeQueries) seedProduct(name string, unitPrice, stock int64) pgtype.UUID {
	id := pgtype.UUID{Bytes: uuid.New(), Valid: true}
	f.products[id] = db.Product{ID: id, Name: name, SKU: name, Unit: "dona", Quantity: stock}
	f.entries[id] = []db.PriceEntry{
		{ProductID: id, Kind: "unit", Amount: unitPrice, Active: true},
	}
	return id
}

type fakeSettler struct {
	got settlement.Input
	out settlement.Output
	err error
}

func (f *fakeSettler) Settle(_ context.Context, in settlement.Input) (settlement.Output, error) {
	f.got = in
	if f.err != nil {
		return settlement.Output{}, f.err
	}
	return f.out, nil
}

func newRouter(q *fakeQueries, settler *fakeSettler) *chi.Mux {
	h := &kassa.Handler{
		Service:  &kassa.Service{Q: q, Settler: settler},
		Validate: validator.New(),
	}
	r := chi.NewRouter()
	r.Post("/kassa/preview", h.Preview)
	r.Post("/kassa/checkout", h.Checkout)
	return r
}

func post(t *testing.T, router *chi.Mux, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(raw))))
	return rec
}

func TestPreviewValuesCartAndFlagsDebt(t *testing.T) {
	q := newFakeQueries()
	pid := q.seedProduct("Profil 40x40", 100_000, 50)
	router := newRouter(q, &fakeSettler{})

	rec := post(t, router, "/kassa/preview", kassa.Request{
		Items:  []kassa.LineInput{{ProductID: db.UUIDString(pid), Quantity: 5}},
		Tender: kassa.TenderInput{Cash: 300_000},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Data kassa.PreviewView `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Subtotal != 500_000 {
		t.Fatalf("subtotal = %d", body.Data.Subtotal)
	}
	if body.Data.Split.DebtAmount != 200_000 {
		t.Fatalf("split = %+v", body.Data.Split)
	}
	// Underpaid without a customer cannot settle.
	if len(body.Data.Blockers) == 0 {
		t.Fatal("expected a blocker for anonymous debt")
	}
}

func TestPreviewReportsStockShortage(t *testing.T) {
	q := newFakeQueries()
	pid := q.seedProduct("Gipsokarton", 60_000, 10)
	router := newRouter(q, &fakeSettler{})

	rec := post(t, router, "/kassa/preview", kassa.Request{
		Items:  []kassa.LineInput{{ProductID: db.UUIDString(pid), Quantity: 20}},
		Tender: kassa.TenderInput{Cash: 1_200_000},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Data kassa.PreviewView `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data.Blockers) != 1 || !strings.Contains(body.Data.Blockers[0], "only 10 in stock") {
		t.Fatalf("blockers = %v", body.Data.Blockers)
	}
}

func TestCheckoutPassesPriceSnapshot(t *testing.T) {
	q := newFakeQueries()
	pid := q.seedProduct("Profil 40x40", 80_000, 50)
	settler := &fakeSettler{out: settlement.Output{
		Receipt: db.Receipt{Number: "KS-20250314-1", Total: 960_000, PaidAmount: 960_000, PaymentMethod: "cash"},
	}}
	router := newRouter(q, settler)

	rec := post(t, router, "/kassa/checkout", kassa.Request{
		Items:  []kassa.LineInput{{ProductID: db.UUIDString(pid), Quantity: 12}},
		Tender: kassa.TenderInput{Cash: 960_000},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(settler.got.Lines) != 1 {
		t.Fatalf("lines = %+v", settler.got.Lines)
	}
	if settler.got.Lines[0].UnitPrice != 80_000 || settler.got.Lines[0].Quantity != 12 {
		t.Fatalf("snapshot = %+v", settler.got.Lines[0])
	}
	if settler.got.Split.NetTotal != 960_000 || settler.got.Split.ChangeAmount != 0 {
		t.Fatalf("split = %+v", settler.got.Split)
	}
}

func TestCheckoutMapsStockConflict(t *testing.T) {
	q := newFakeQueries()
	pid := q.seedProduct("Gipsokarton", 60_000, 10)
	settler := &fakeSettler{err: &settlement.InsufficientStockError{
		ProductID: db.UUIDString(pid), ProductName: "Gipsokarton", Available: 10, Requested: 20,
	}}
	router := newRouter(q, settler)

	rec := post(t, router, "/kassa/checkout", kassa.Request{
		Items:  []kassa.LineInput{{ProductID: db.UUIDString(pid), Quantity: 20}},
		Tender: kassa.TenderInput{Cash: 1_200_000},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "INSUFFICIENT_STOCK") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestCheckoutRejectsUnknownProduct(t *testing.T) {
	router := newRouter(newFakeQueries(), &fakeSettler{})
	rec := post(t, router, "/kassa/checkout", kassa.Request{
		Items:  []kassa.LineInput{{ProductID: uuid.NewString(), Quantity: 1}},
		Tender: kassa.TenderInput{Cash: 10_000},
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}
