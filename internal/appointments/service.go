package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/flossyai/dental-ai-platform/internal/observability/metrics"
	"github.com/flossyai/dental-ai-platform/internal/patients"
	"github.com/flossyai/dental-ai-platform/internal/redislock"
	"github.com/flossyai/dental-ai-platform/internal/scheduling"
	"github.com/flossyai/dental-ai-platform/pkg/logging"
)

var bookingTracer = otel.Tracer("flossy.internal.appointments")

// BookingRequest carries everything needed to commit a booking: the patient's
// identity slots and the preferred instant already parsed by the caller.
type BookingRequest struct {
	Name      string
	Phone     string
	Reason    string
	Preferred time.Time
	Doctor    string
	UserID    *uuid.UUID
}

// BookingResult is the committed appointment plus the resolver's confidence.
type BookingResult struct {
	Appointment   *Appointment
	Patient       *patients.Patient
	LowConfidence bool
}

// Service is the booking ledger: it resolves a free slot, creates the patient
// on first contact and inserts the appointment under a per-slot lock.
type Service struct {
	repo          *Repository
	patients      *patients.Repository
	calendar      scheduling.Calendar
	locker        redislock.Locker
	metrics       *metrics.BookingMetrics
	logger        *logging.Logger
	defaultDoctor string
	maxRetries    int
	now           func() time.Time
}

// NewService constructs the booking service.
func NewService(repo *Repository, patientsRepo *patients.Repository, cal scheduling.Calendar, locker redislock.Locker, m *metrics.BookingMetrics, logger *logging.Logger, defaultDoctor string, maxRetries int) *Service {
	if repo == nil {
		panic("appointments: repository required")
	}
	if patientsRepo == nil {
		panic("appointments: patients repository required")
	}
	if locker == nil {
		locker = redislock.NoopLocker{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	if defaultDoctor == "" {
		defaultDoctor = "Dr. Ava Sharma"
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Service{
		repo:          repo,
		patients:      patientsRepo,
		calendar:      cal,
		locker:        locker,
		metrics:       m,
		logger:        logger,
		defaultDoctor: defaultDoctor,
		maxRetries:    maxRetries,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Book resolves the next free slot for the preferred instant and commits the
// appointment. A lost race surfaces as ErrBookingConflict from the insert, in
// which case the slot is re-resolved against fresh state and retried.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	ctx, span := bookingTracer.Start(ctx, "appointments.book")
	defer span.End()

	doctor := req.Doctor
	if doctor == "" {
		doctor = s.defaultDoctor
	}
	span.SetAttributes(attribute.String("flossy.doctor", doctor))

	patient, err := s.patients.GetOrCreateByPhone(ctx, req.Name, req.Phone, req.UserID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		now := s.now()
		readHorizon := now.Add(s.calendar.Horizon).AddDate(0, 0, 2)
		starts, err := s.repo.ScheduledStarts(ctx, doctor, now, readHorizon)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}

		busy := make([]scheduling.Interval, 0, len(starts))
		for _, start := range starts {
			busy = append(busy, scheduling.Interval{Start: start, End: start.Add(s.calendar.SlotDuration)})
		}

		res := s.calendar.Resolve(req.Preferred, now, busy)
		if res.LowConfidence {
			s.logger.Warn("slot search horizon exhausted, booking fallback slot",
				"doctor", doctor, "fallback", res.Time)
			s.metrics.ObserveDegenerateResolution(doctor)
		}

		var appt *Appointment
		lockKey := fmt.Sprintf("%s@%s", doctor, res.Time.UTC().Format(time.RFC3339))
		err = s.locker.WithSlotLock(ctx, lockKey, func(ctx context.Context) error {
			var bookErr error
			appt, bookErr = s.repo.CreateScheduled(ctx, patient.ID, res.Time, doctor)
			return bookErr
		})
		if err == nil {
			s.logger.Info("appointment booked",
				"patient_id", patient.ID,
				"doctor", doctor,
				"datetime", appt.Time,
				"low_confidence", res.LowConfidence,
			)
			s.metrics.ObserveBooked(doctor, res.LowConfidence)
			return &BookingResult{Appointment: appt, Patient: patient, LowConfidence: res.LowConfidence}, nil
		}
		if errors.Is(err, ErrBookingConflict) || errors.Is(err, redislock.ErrLockNotAcquired) {
			s.metrics.ObserveConflict(doctor)
			lastErr = err
			continue
		}
		span.RecordError(err)
		return nil, err
	}

	span.RecordError(lastErr)
	return nil, fmt.Errorf("appointments: booking retries exhausted: %w", lastErr)
}

// Cancel finds the patient by phone and cancels their most relevant scheduled
// appointment.
func (s *Service) Cancel(ctx context.Context, phone string) (*Appointment, error) {
	ctx, span := bookingTracer.Start(ctx, "appointments.cancel")
	defer span.End()

	patient, err := s.patients.GetByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}

	appt, err := s.repo.CancelActive(ctx, patient.ID, s.now())
	if err != nil {
		return nil, err
	}

	s.logger.Info("appointment cancelled", "patient_id", patient.ID, "appointment_id", appt.ID)
	s.metrics.ObserveCancelled(appt.DoctorName)
	return appt, nil
}

// LogInteraction records a conversation turn against the patient, if known.
func (s *Service) LogInteraction(ctx context.Context, phone, channel, message string) {
	patient, err := s.patients.GetByPhone(ctx, phone)
	if err != nil {
		return
	}
	if err := s.repo.LogInteraction(ctx, patient.ID, channel, message); err != nil {
		s.logger.Warn("failed to log interaction", "error", err)
	}
}
