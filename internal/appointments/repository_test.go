package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *Repository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock, NewRepository(mock, 30*time.Minute)
}

func TestCreateScheduledInsertsWhenSlotFree(t *testing.T) {
	mock, repo := newMockRepo(t)
	patientID := uuid.New()
	at := time.Date(2026, time.January, 5, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM appointments").
		WithArgs("Dr. Ava Sharma", at.Add(30*time.Minute), 30, at).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), patientID, at, StatusScheduled, "Dr. Ava Sharma").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	appt, err := repo.CreateScheduled(context.Background(), patientID, at, "Dr. Ava Sharma")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appt.Status != StatusScheduled || !appt.Time.Equal(at) {
		t.Fatalf("unexpected appointment %+v", appt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateScheduledReturnsConflictWhenOverlapExists(t *testing.T) {
	mock, repo := newMockRepo(t)
	patientID := uuid.New()
	at := time.Date(2026, time.January, 5, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	rows := pgxmock.NewRows([]string{"id"}).AddRow(uuid.New())
	mock.ExpectQuery("SELECT id FROM appointments").
		WithArgs("Dr. Ava Sharma", at.Add(30*time.Minute), 30, at).
		WillReturnRows(rows)
	mock.ExpectRollback()

	_, err := repo.CreateScheduled(context.Background(), patientID, at, "Dr. Ava Sharma")
	if !errors.Is(err, ErrBookingConflict) {
		t.Fatalf("expected ErrBookingConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCancelActivePrefersUpcomingAppointment(t *testing.T) {
	mock, repo := newMockRepo(t)
	patientID := uuid.New()
	apptID := uuid.New()
	now := time.Date(2026, time.January, 5, 8, 0, 0, 0, time.UTC)
	upcoming := now.Add(26 * time.Hour)

	rows := pgxmock.NewRows([]string{"id", "patient_id", "datetime", "status", "doctor_name"}).
		AddRow(apptID, patientID, upcoming, StatusScheduled, "Dr. Ava Sharma")
	mock.ExpectQuery("SELECT id, patient_id, datetime, status, doctor_name").
		WithArgs(patientID, now).
		WillReturnRows(rows)
	mock.ExpectExec("UPDATE appointments").
		WithArgs(apptID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	appt, err := repo.CancelActive(context.Background(), patientID, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appt.Status != StatusCancelled {
		t.Fatalf("expected cancelled status, got %q", appt.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCancelActiveReturnsNoActiveWhenNothingScheduled(t *testing.T) {
	mock, repo := newMockRepo(t)
	patientID := uuid.New()
	now := time.Date(2026, time.January, 5, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT id, patient_id, datetime, status, doctor_name").
		WithArgs(patientID, now).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT id, patient_id, datetime, status, doctor_name").
		WithArgs(patientID).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.CancelActive(context.Background(), patientID, now)
	if !errors.Is(err, ErrNoActiveAppointment) {
		t.Fatalf("expected ErrNoActiveAppointment, got %v", err)
	}
}

func TestScheduledStartsScansRows(t *testing.T) {
	mock, repo := newMockRepo(t)
	from := time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 30)
	s1 := from.Add(9 * time.Hour)
	s2 := from.Add(10 * time.Hour)

	rows := pgxmock.NewRows([]string{"datetime"}).AddRow(s1).AddRow(s2)
	mock.ExpectQuery("SELECT datetime").
		WithArgs("Dr. Ava Sharma", from, to).
		WillReturnRows(rows)

	starts, err := repo.ScheduledStarts(context.Background(), "Dr. Ava Sharma", from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(starts) != 2 || !starts[0].Equal(s1) || !starts[1].Equal(s2) {
		t.Fatalf("unexpected starts %v", starts)
	}
}
