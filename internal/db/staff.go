package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const staffColumns = `id, name, phone, password_hash, role, created_at`

func scanStaff(row pgx.Row) (Staff, error) {
	var s Staff
	err := row.Scan(&s.ID, &s.Name, &s.Phone, &s.PasswordHash, &s.Role, &s.CreatedAt)
	return s, err
}

// CreateStaff inserts a staff account.
func (q *Queries) CreateStaff(ctx context.Context, name, phone, passwordHash, role string) (Staff, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO staff (name, phone, password_hash, role)
		VALUES ($1, $2, $3, $4) RETURNING `+staffColumns, name, phone, passwordHash, role)
	return scanStaff(row)
}

// GetStaffByPhone loads a staff account by its login phone.
func (q *Queries) GetStaffByPhone(ctx context.Context, phone string) (Staff, error) {
	row := q.db.QueryRow(ctx, `SELECT `+staffColumns+` FROM staff WHERE phone = $1`, phone)
	return scanStaff(row)
}

// GetStaffByID loads a staff account.
func (q *Queries) GetStaffByID(ctx context.Context, id pgtype.UUID) (Staff, error) {
	row := q.db.QueryRow(ctx, `SELECT `+staffColumns+` FROM staff WHERE id = $1`, id)
	return scanStaff(row)
}
