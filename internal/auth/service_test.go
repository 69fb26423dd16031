package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/aziz-dev/backend-kassa/internal/common"
	"github.com/aziz-dev/backend-kassa/internal/db"
)

type fakeQueries struct {
	byPhone map[string]db.Staff
	byID    map[pgtype.UUID]db.Staff
}

func newFakeQueries() *fakeQueries {
	return &fakeQueries{byPhone: map[string]db.Staff{}, byID: map[pgtype.UUID]db.Staff{}}
}

func (f *fakeQueries) seed(t *testing.T, phone, password, role string) db.Staff {
	t.Helper()
	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	staff := db.Staff{
		ID:           pgtype.UUID{Bytes: uuid.New(), Valid: true},
		Name:         "Dilshod",
		Phone:        phone,
		PasswordHash: hash,
		Role:         role,
	}
	f.byPhone[phone] = staff
	f.byID[staff.ID] = staff
	return staff
}

func (f *fakeQueries) GetStaffByPhone(_ context.Context, phone string) (db.Staff, error) {
	s, ok := f.byPhone[phone]
	if !ok {
		return db.Staff{}, pgx.ErrNoRows
	}
	return s, nil
}

func (f *fakeQueries) GetStaffByID(_ context.Context, id pgtype.UUID) (db.Staff, error) {
	s, ok := f.byID[id]
	if !ok {
		return db.Staff{}, pgx.ErrNoRows
	}
	return s, nil
}

func (f *fakeQueries) CreateStaff(_ context.Context, name, phone, passwordHash, role string) (db.Staff, error) {
	staff := db.Staff{
		ID:           pgtype.UUID{Bytes: uuid.New(), Valid: true},
		Name:         name,
		Phone:        phone,
		PasswordHash: passwordHash,
		Role:         role,
	}
	f.byPhone[phone] = staff
	f.byID[staff.ID] = staff
	return staff, nil
}

func newTestService(t *testing.T, queries Querier) *Service {
	t.Helper()
	svc, err := NewService(Config{Queries: queries, Secret: "super-secret-key", AccessTokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestLoginIssuesTokenWithRole(t *testing.T) {
	queries := newFakeQueries()
	staff := queries.seed(t, "+998901112233", "parol12345", RoleAdmin)
	svc := newTestService(t, queries)

	result, err := svc.Login(context.Background(), "+998 90 111-22-33", "parol12345")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.Staff.ID != db.UUIDString(staff.ID) || result.Staff.Role != RoleAdmin {
		t.Fatalf("staff = %+v", result.Staff)
	}
	subject, role, err := svc.ParseAccessToken(result.AccessToken)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if subject != db.UUIDString(staff.ID) || role != RoleAdmin {
		t.Fatalf("subject=%s role=%s", subject, role)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	queries := newFakeQueries()
	queries.seed(t, "+998901112233", "parol12345", RoleKassa)
	svc := newTestService(t, queries)

	if _, err := svc.Login(context.Background(), "+998901112233", "notquite"); err == nil {
		t.Fatal("expected credential error")
	}
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	queries := newFakeQueries()
	staff := queries.seed(t, "+998901112233", "parol12345", RoleKassa)
	svc := newTestService(t, queries)

	issued := time.Now().Add(-3 * time.Hour)
	svc.WithNow(func() time.Time { return issued })
	token, _, err := svc.signAccessToken(db.UUIDString(staff.ID), staff.Role)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	svc.WithNow(time.Now)
	svc.accessTTL = time.Hour
	if _, _, err := svc.ParseAccessToken(token); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestCreateStaffValidatesRole(t *testing.T) {
	svc := newTestService(t, newFakeQueries())
	if _, err := svc.CreateStaff(context.Background(), "Dilshod", "+998901112233", "parol12345", "manager"); err == nil {
		t.Fatal("expected role validation error")
	}
}

func TestRequireRoleBlocksKassaFromAdminRoutes(t *testing.T) {
	queries := newFakeQueries()
	queries.seed(t, "+998901112233", "parol12345", RoleKassa)
	svc := newTestService(t, queries)

	result, err := svc.Login(context.Background(), "+998901112233", "parol12345")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	mw := Middleware{Service: svc}
	var reached bool
	handler := mw.RequireRole(RoleAdmin)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		reached = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/products", nil)
	req.Header.Set("Authorization", "Bearer "+result.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if reached || rec.Code != http.StatusForbidden {
		t.Fatalf("reached=%v code=%d", reached, rec.Code)
	}
}

func TestRequireAuthPopulatesStaffContext(t *testing.T) {
	queries := newFakeQueries()
	staff := queries.seed(t, "+998901112233", "parol12345", RoleAdmin)
	svc := newTestService(t, queries)

	result, err := svc.Login(context.Background(), "+998901112233", "parol12345")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	mw := Middleware{Service: svc}
	var gotID, gotRole string
	handler := mw.RequireAuth(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotID, _ = common.StaffID(r.Context())
		gotRole, _ = common.StaffRole(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+result.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotID != db.UUIDString(staff.ID) || gotRole != RoleAdmin {
		t.Fatalf("id=%s role=%s", gotID, gotRole)
	}
}
