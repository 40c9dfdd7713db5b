package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the repository needs. pgxmock satisfies it.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides persistence for the booking ledger.
type Repository struct {
	db           DB
	slotDuration time.Duration
}

// NewRepository creates a repository backed by pgx. The slot duration is used
// for the overlap predicate, since only appointment starts are stored.
func NewRepository(db DB, slotDuration time.Duration) *Repository {
	if db == nil {
		panic("appointments: database required")
	}
	if slotDuration <= 0 {
		slotDuration = 30 * time.Minute
	}
	return &Repository{db: db, slotDuration: slotDuration}
}

// ScheduledStarts returns the start instants of scheduled appointments for a
// practitioner within [from, to). This is the resolver's conflict read set.
func (r *Repository) ScheduledStarts(ctx context.Context, doctor string, from, to time.Time) ([]time.Time, error) {
	rows, err := r.db.Query(ctx, `
		SELECT datetime
		FROM appointments
		WHERE status = 'scheduled'
		  AND doctor_name = $1
		  AND datetime >= $2
		  AND datetime < $3
		ORDER BY datetime
	`, doctor, from, to)
	if err != nil {
		return nil, fmt.Errorf("appointments: load scheduled starts: %w", err)
	}
	defer rows.Close()

	var starts []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		starts = append(starts, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return starts, nil
}

// CreateScheduled inserts a scheduled appointment after re-checking the
// overlap invariant inside the same transaction. Two concurrent inserts for
// overlapping slots cannot both pass the re-check and commit.
func (r *Repository) CreateScheduled(ctx context.Context, patientID uuid.UUID, at time.Time, doctor string) (*Appointment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("appointments: begin booking tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	slotMinutes := int(r.slotDuration / time.Minute)
	end := at.Add(r.slotDuration)

	var existing uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id FROM appointments
		WHERE status = 'scheduled'
		  AND doctor_name = $1
		  AND datetime < $2
		  AND datetime + make_interval(mins => $3) > $4
		LIMIT 1
		FOR UPDATE
	`, doctor, end, slotMinutes, at).Scan(&existing)
	if err == nil {
		return nil, ErrBookingConflict
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("appointments: conflict check: %w", err)
	}

	appt := &Appointment{
		ID:         uuid.New(),
		PatientID:  patientID,
		Time:       at,
		Status:     StatusScheduled,
		DoctorName: doctor,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO appointments (id, patient_id, datetime, status, doctor_name)
		VALUES ($1, $2, $3, $4, $5)
	`, appt.ID, appt.PatientID, appt.Time, appt.Status, appt.DoctorName)
	if err != nil {
		// The exclusion constraint on (doctor_name, slot range) is the hard
		// backstop against racing inserts the pre-check cannot see.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23P01" {
			return nil, ErrBookingConflict
		}
		return nil, fmt.Errorf("appointments: insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("appointments: commit booking tx: %w", err)
	}
	return appt, nil
}

// CancelActive transitions the patient's most relevant scheduled appointment
// to cancelled: the soonest upcoming one, or failing that the most recent.
func (r *Repository) CancelActive(ctx context.Context, patientID uuid.UUID, now time.Time) (*Appointment, error) {
	appt, err := r.findActive(ctx, patientID, now)
	if err != nil {
		return nil, err
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled'
		WHERE id = $1 AND status = 'scheduled'
	`, appt.ID)
	if err != nil {
		return nil, fmt.Errorf("appointments: cancel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNoActiveAppointment
	}
	appt.Status = StatusCancelled
	return appt, nil
}

func (r *Repository) findActive(ctx context.Context, patientID uuid.UUID, now time.Time) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, patient_id, datetime, status, doctor_name
		FROM appointments
		WHERE patient_id = $1 AND status = 'scheduled' AND datetime >= $2
		ORDER BY datetime ASC
		LIMIT 1
	`, patientID, now)
	appt, err := scanAppointment(row)
	if err == nil {
		return appt, nil
	}
	if !errors.Is(err, ErrNoActiveAppointment) {
		return nil, err
	}

	// No upcoming appointment; fall back to the most recent scheduled one.
	row = r.db.QueryRow(ctx, `
		SELECT id, patient_id, datetime, status, doctor_name
		FROM appointments
		WHERE patient_id = $1 AND status = 'scheduled'
		ORDER BY datetime DESC
		LIMIT 1
	`, patientID)
	return scanAppointment(row)
}

// DaySheetForDoctor lists all scheduled appointments in [from, to) for every
// practitioner, with the patient's latest interaction as the visit reason.
func (r *Repository) DaySheetForDoctor(ctx context.Context, from, to time.Time) ([]DaySheetEntry, error) {
	return r.daySheet(ctx, `
		SELECT a.datetime, p.name, a.doctor_name,
		       COALESCE((
		           SELECT i.message FROM interactions i
		           WHERE i.patient_id = a.patient_id
		           ORDER BY i.created_at DESC
		           LIMIT 1
		       ), 'N/A')
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		WHERE a.status = 'scheduled' AND a.datetime >= $1 AND a.datetime < $2
		ORDER BY a.datetime ASC
	`, from, to)
}

// DaySheetForPatient lists the patient's own scheduled appointments in [from, to).
func (r *Repository) DaySheetForPatient(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]DaySheetEntry, error) {
	return r.daySheet(ctx, `
		SELECT a.datetime, p.name, a.doctor_name,
		       COALESCE((
		           SELECT i.message FROM interactions i
		           WHERE i.patient_id = a.patient_id
		           ORDER BY i.created_at DESC
		           LIMIT 1
		       ), 'N/A')
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		WHERE a.status = 'scheduled' AND a.datetime >= $1 AND a.datetime < $2
		  AND a.patient_id = $3
		ORDER BY a.datetime ASC
	`, from, to, patientID)
}

func (r *Repository) daySheet(ctx context.Context, query string, args ...any) ([]DaySheetEntry, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: load day sheet: %w", err)
	}
	defer rows.Close()

	var entries []DaySheetEntry
	for rows.Next() {
		var e DaySheetEntry
		if err := rows.Scan(&e.Time, &e.PatientName, &e.DoctorName, &e.Reason); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// LogInteraction appends a conversation log row for a patient.
func (r *Repository) LogInteraction(ctx context.Context, patientID uuid.UUID, channel, message string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO interactions (id, patient_id, channel, message)
		VALUES ($1, $2, $3, $4)
	`, uuid.New(), patientID, channel, message)
	if err != nil {
		return fmt.Errorf("appointments: log interaction: %w", err)
	}
	return nil
}

// UpcomingReminders returns scheduled appointments starting within [from, to)
// whose patients have a registered push token.
func (r *Repository) UpcomingReminders(ctx context.Context, from, to time.Time) ([]Reminder, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.id, p.name, a.doctor_name, a.datetime, d.token
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		JOIN device_tokens d ON d.user_id = p.user_id
		WHERE a.status = 'scheduled' AND a.datetime >= $1 AND a.datetime < $2
		ORDER BY a.datetime ASC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("appointments: load reminders: %w", err)
	}
	defer rows.Close()

	var reminders []Reminder
	for rows.Next() {
		var rem Reminder
		if err := rows.Scan(&rem.AppointmentID, &rem.PatientName, &rem.DoctorName, &rem.Time, &rem.DeviceToken); err != nil {
			return nil, err
		}
		reminders = append(reminders, rem)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reminders, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.Time, &a.Status, &a.DoctorName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveAppointment
		}
		return nil, err
	}
	return &a, nil
}
