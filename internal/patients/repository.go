package patients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrPatientNotFound is returned when no patient matches the lookup.
var ErrPatientNotFound = errors.New("patient not found")

// Patient is the clinic's identity record for a person reachable by phone.
// A patient may optionally be linked to an authenticated user account.
type Patient struct {
	ID              uuid.UUID
	Name            string
	Phone           string
	ContactDatetime time.Time
	UserID          *uuid.UUID
}

// DB is the subset of pgxpool.Pool the repository needs. pgxmock satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository stores patients in the relational database.
type Repository struct {
	db DB
}

// NewRepository initializes a repo backed by pgx.
func NewRepository(db DB) *Repository {
	if db == nil {
		panic("patients: database required")
	}
	return &Repository{db: db}
}

// GetByPhone fetches a patient by their unique phone number.
func (r *Repository) GetByPhone(ctx context.Context, phone string) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, phone, contact_datetime, user_id
		FROM patients
		WHERE phone = $1
	`, phone)
	return scanPatient(row)
}

// GetByUserID fetches the patient linked to an authenticated account.
func (r *Repository) GetByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, phone, contact_datetime, user_id
		FROM patients
		WHERE user_id = $1
	`, userID)
	return scanPatient(row)
}

// GetOrCreateByPhone looks up the patient by phone, creating the record on
// first contact. Lookup by phone is idempotent: concurrent callers converge
// on the same row. An account link is attached only if the patient is not
// already linked; an existing name is never overwritten.
func (r *Repository) GetOrCreateByPhone(ctx context.Context, name, phone string, userID *uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO patients (id, name, phone, user_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (phone) DO UPDATE
		SET user_id = COALESCE(patients.user_id, EXCLUDED.user_id)
		RETURNING id, name, phone, contact_datetime, user_id
	`, uuid.New(), name, phone, userID)
	patient, err := scanPatient(row)
	if err != nil {
		return nil, fmt.Errorf("patients: get or create by phone: %w", err)
	}
	return patient, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var userID *uuid.UUID
	err := row.Scan(&p.ID, &p.Name, &p.Phone, &p.ContactDatetime, &userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	p.UserID = userID
	return &p, nil
}
