package patients

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestGetByPhoneReturnsSentinelOnMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT id, name, phone, contact_datetime, user_id").
		WithArgs("+15550000000").
		WillReturnError(pgx.ErrNoRows)

	repo := NewRepository(mock)
	_, err = repo.GetByPhone(context.Background(), "+15550000000")
	if !errors.Is(err, ErrPatientNotFound) {
		t.Fatalf("expected ErrPatientNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetOrCreateByPhoneReturnsExistingIdentity(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	existing := uuid.New()
	created := time.Now().UTC()

	rows := pgxmock.NewRows([]string{"id", "name", "phone", "contact_datetime", "user_id"}).
		AddRow(existing, "Maya Rao", "+15551234567", created, (*uuid.UUID)(nil))
	mock.ExpectQuery("INSERT INTO patients").
		WithArgs(pgxmock.AnyArg(), "Maya Rao", "+15551234567", (*uuid.UUID)(nil)).
		WillReturnRows(rows)

	repo := NewRepository(mock)
	patient, err := repo.GetOrCreateByPhone(context.Background(), "Maya Rao", "+15551234567", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if patient.ID != existing {
		t.Fatalf("expected upsert to return the stored identity, got %s", patient.ID)
	}
	if patient.Phone != "+15551234567" {
		t.Fatalf("unexpected phone %q", patient.Phone)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetOrCreateByPhoneLinksAccount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	userID := uuid.New()
	rows := pgxmock.NewRows([]string{"id", "name", "phone", "contact_datetime", "user_id"}).
		AddRow(uuid.New(), "Maya Rao", "+15551234567", time.Now().UTC(), &userID)
	mock.ExpectQuery("INSERT INTO patients").
		WithArgs(pgxmock.AnyArg(), "Maya Rao", "+15551234567", &userID).
		WillReturnRows(rows)

	repo := NewRepository(mock)
	patient, err := repo.GetOrCreateByPhone(context.Background(), "Maya Rao", "+15551234567", &userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if patient.UserID == nil || *patient.UserID != userID {
		t.Fatalf("expected linked account %s, got %v", userID, patient.UserID)
	}
}
