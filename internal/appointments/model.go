package appointments

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Appointment statuses. Rescheduling is modeled as cancel plus a new booking,
// so a row only ever moves from scheduled to cancelled.
const (
	StatusScheduled = "scheduled"
	StatusCancelled = "cancelled"
)

var (
	// ErrBookingConflict is returned when the conflict re-check inside the
	// booking transaction finds an overlapping scheduled appointment.
	ErrBookingConflict = errors.New("booking conflict")

	// ErrNoActiveAppointment is returned when a cancellation finds the
	// patient but no scheduled appointment to cancel.
	ErrNoActiveAppointment = errors.New("no active appointment")
)

// Appointment is a scheduling record for a patient with a practitioner.
type Appointment struct {
	ID         uuid.UUID
	PatientID  uuid.UUID
	Time       time.Time
	Status     string
	DoctorName string
}

// DaySheetEntry is one row of a practitioner's or patient's daily schedule.
type DaySheetEntry struct {
	Time        time.Time
	PatientName string
	Reason      string
	DoctorName  string
}

// Reminder pairs an upcoming appointment with the push token of the linked
// patient account, for the reminder worker.
type Reminder struct {
	AppointmentID uuid.UUID
	PatientName   string
	DoctorName    string
	Time          time.Time
	DeviceToken   string
}
