package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/aziz-dev/backend-kassa/internal/common"
	"github.com/aziz-dev/backend-kassa/internal/db"
)

const defaultAccessTTL = 12 * time.Hour

const roleClaim = "role"

// Staff roles. Admin unlocks product writes, debt review and receipt deletion.
const (
	RoleAdmin = "admin"
	RoleKassa = "kassa"
)

// Querier is the slice of db.Queries the auth service needs.
type Querier interface {
	GetStaffByPhone(ctx context.Context, phone string) (db.Staff, error)
	GetStaffByID(ctx context.Context, id pgtype.UUID) (db.Staff, error)
	CreateStaff(ctx context.Context, name, phone, passwordHash, role string) (db.Staff, error)
}

// Service verifies staff credentials and issues access tokens. The register
// runs a full shift on one token, so the default TTL is long.
type Service struct {
	queries   Querier
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
	signer    jwa.SignatureAlgorithm
	validator TokenValidator
	issuer    string
	audience  string
	clockSkew time.Duration
}

// Config configures the auth service.
type Config struct {
	Queries        Querier
	Secret         string
	AccessTokenTTL time.Duration
	Issuer         string
	Audience       string
	ClockSkew      time.Duration
}

// StaffView is the safe subset of a staff record returned to clients.
type StaffView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Role  string `json:"role"`
}

// LoginResult bundles the token material returned after a successful login.
type LoginResult struct {
	Staff       StaffView `json:"staff"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// NewService constructs a Service instance with sane defaults.
func NewService(cfg Config) (*Service, error) {
	if cfg.Queries == nil {
		return nil, errors.New("auth: queries is required")
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "backend-kassa"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "kassa-frontend"
	}
	clockSkew := cfg.ClockSkew
	if clockSkew < 0 {
		clockSkew = 0
	}

	return &Service{
		queries:   cfg.Queries,
		secret:    []byte(secret),
		accessTTL: accessTTL,
		now:       time.Now,
		signer:    jwa.HS256,
		validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: clockSkew,
			Algorithm: jwa.HS256,
		},
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
	}, nil
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Login verifies credentials and issues an access token carrying the role.
func (s *Service) Login(ctx context.Context, phone, password string) (LoginResult, error) {
	normalized := normalizePhone(phone)
	if normalized == "" || password == "" {
		return LoginResult{}, common.NewAppError("INVALID_CREDENTIALS", "invalid phone or password", httpStatusUnauthorized, nil)
	}

	staff, err := s.queries.GetStaffByPhone(ctx, normalized)
	if err != nil {
		return LoginResult{}, common.NewAppError("INVALID_CREDENTIALS", "invalid phone or password", httpStatusUnauthorized, nil)
	}

	ok, err := argon2id.ComparePasswordAndHash(password, staff.PasswordHash)
	if err != nil || !ok {
		return LoginResult{}, common.NewAppError("INVALID_CREDENTIALS", "invalid phone or password", httpStatusUnauthorized, nil)
	}

	staffID := db.UUIDString(staff.ID)
	if staffID == "" {
		return LoginResult{}, errors.New("auth: invalid staff identifier")
	}

	token, expiresAt, err := s.signAccessToken(staffID, staff.Role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign access token: %w", err)
	}

	return LoginResult{
		Staff:       toStaffView(staff),
		AccessToken: token,
		ExpiresAt:   expiresAt,
	}, nil
}

// CreateStaff registers a staff account. Only admins reach this path; the
// bootstrap tool in cmd/tools uses it to seed the first admin.
func (s *Service) CreateStaff(ctx context.Context, name, phone, password, role string) (StaffView, error) {
	if strings.TrimSpace(name) == "" {
		return StaffView{}, common.NewAppError("VALIDATION", "name is required", httpStatusBadRequest, nil)
	}
	normalized := normalizePhone(phone)
	if normalized == "" {
		return StaffView{}, common.NewAppError("VALIDATION", "phone is required", httpStatusBadRequest, nil)
	}
	if len(password) < 8 {
		return StaffView{}, common.NewAppError("VALIDATION", "password must be at least 8 characters", httpStatusBadRequest, nil)
	}
	if role != RoleAdmin && role != RoleKassa {
		return StaffView{}, common.NewAppError("VALIDATION", "role must be admin or kassa", httpStatusBadRequest, nil)
	}

	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return StaffView{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.queries.CreateStaff(ctx, strings.TrimSpace(name), normalized, hash, role)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return StaffView{}, common.NewAppError("PHONE_ALREADY_USED", "phone is already registered", httpStatusConflict, err)
		}
		return StaffView{}, fmt.Errorf("create staff: %w", err)
	}
	return toStaffView(created), nil
}

// Me fetches the authenticated staff record.
func (s *Service) Me(ctx context.Context, staffID string) (StaffView, error) {
	id, err := db.ToUUID(staffID)
	if err != nil {
		return StaffView{}, common.NewAppError("UNAUTHORIZED", "unauthorized", httpStatusUnauthorized, nil)
	}
	staff, err := s.queries.GetStaffByID(ctx, id)
	if err != nil {
		return StaffView{}, common.NewAppError("UNAUTHORIZED", "unauthorized", httpStatusUnauthorized, nil)
	}
	return toStaffView(staff), nil
}

// ParseAccessToken validates an access token and returns the staff id and role.
func (s *Service) ParseAccessToken(token string) (string, string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", "", common.NewAppError("UNAUTHORIZED", "missing token", httpStatusUnauthorized, nil)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return "", "", common.NewAppError("UNAUTHORIZED", "invalid token", httpStatusUnauthorized, err)
	}
	if s.validator.Algorithm != "" && algorithm != s.validator.Algorithm {
		return "", "", common.NewAppError("UNAUTHORIZED", "invalid token", httpStatusUnauthorized, fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, s.secret))
	if err != nil {
		return "", "", common.NewAppError("UNAUTHORIZED", "invalid token", httpStatusUnauthorized, err)
	}
	if err := s.validator.Validate(parsed, algorithm, s.now()); err != nil {
		return "", "", common.NewAppError("UNAUTHORIZED", "invalid token", httpStatusUnauthorized, err)
	}
	role := ""
	if raw, ok := parsed.Get(roleClaim); ok {
		role, _ = raw.(string)
	}
	return parsed.Subject(), role, nil
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", fmt.Errorf("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}

func (s *Service) signAccessToken(staffID, role string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	builder := jwt.NewBuilder().
		Subject(staffID).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt).
		Claim(roleClaim, role)
	token, err := builder.Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

func toStaffView(s db.Staff) StaffView {
	return StaffView{
		ID:    db.UUIDString(s.ID),
		Name:  s.Name,
		Phone: s.Phone,
		Role:  s.Role,
	}
}

// normalizePhone strips spaces and dashes so +998 90 111-22-33 and
// +998901112233 hit the same row.
func normalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
}

const httpStatusBadRequest = 400
const httpStatusUnauthorized = 401
const httpStatusConflict = 409
