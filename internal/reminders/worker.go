// Package reminders runs the background notification loop: push reminders
// for upcoming appointments and the morning day-sheet email to dentists.
package reminders

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flossyai/dental-ai-platform/internal/appointments"
	"github.com/flossyai/dental-ai-platform/internal/identity"
	"github.com/flossyai/dental-ai-platform/internal/notify"
	"github.com/flossyai/dental-ai-platform/pkg/logging"
)

const displayLayout = "Monday, January 02 at 03:04 PM MST"

// Source is the slice of the appointments repository the worker reads.
type Source interface {
	UpcomingReminders(ctx context.Context, from, to time.Time) ([]appointments.Reminder, error)
	DaySheetForDoctor(ctx context.Context, from, to time.Time) ([]appointments.DaySheetEntry, error)
}

// DentistLister enumerates accounts so the worker can find day-sheet
// recipients.
type DentistLister interface {
	List(ctx context.Context) ([]identity.User, error)
}

// DaySheetSender emails one practitioner their schedule.
type DaySheetSender interface {
	Send(ctx context.Context, toEmail, toName string, day time.Time, entries []appointments.DaySheetEntry) error
}

// Worker periodically scans for appointments inside the reminder window and
// pushes a notification to each linked device, once per appointment. Once a
// day it also mails every dentist account the day sheet.
type Worker struct {
	source Source
	push   notify.PushSender
	mailer DaySheetSender
	users  DentistLister
	logger *logging.Logger

	interval   time.Duration
	leadTime   time.Duration
	sendHour   int
	displayLoc *time.Location

	notified     map[uuid.UUID]time.Time
	lastSheetDay string

	now func() time.Time
}

// New creates the reminder worker.
func New(source Source, push notify.PushSender, mailer DaySheetSender, users DentistLister, logger *logging.Logger) *Worker {
	if logger == nil {
		logger = logging.Default()
	}
	return &Worker{
		source:     source,
		push:       push,
		mailer:     mailer,
		users:      users,
		logger:     logger,
		interval:   15 * time.Minute,
		leadTime:   24 * time.Hour,
		sendHour:   7,
		displayLoc: time.UTC,
		notified:   make(map[uuid.UUID]time.Time),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithInterval sets the scan interval.
func (w *Worker) WithInterval(interval time.Duration) *Worker {
	w.interval = interval
	return w
}

// WithLeadTime sets how far ahead of the appointment the push goes out.
func (w *Worker) WithLeadTime(d time.Duration) *Worker {
	w.leadTime = d
	return w
}

// WithDaySheetHour sets the local hour after which the day sheet is mailed.
func (w *Worker) WithDaySheetHour(hour int) *Worker {
	w.sendHour = hour
	return w
}

// WithLocation sets the timezone used for display times and the send hour.
func (w *Worker) WithLocation(loc *time.Location) *Worker {
	if loc != nil {
		w.displayLoc = loc
	}
	return w
}

// Start runs the worker. Blocks until context is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting reminder worker",
		"interval", w.interval.String(),
		"lead_time", w.leadTime.String(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run once immediately on startup
	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("reminder worker shutting down")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single scan. Useful for testing or manual triggers.
func (w *Worker) RunOnce(ctx context.Context) {
	w.sendReminders(ctx)
	w.sendDaySheets(ctx)
	w.prune()
}

func (w *Worker) sendReminders(ctx context.Context) {
	now := w.now()
	upcoming, err := w.source.UpcomingReminders(ctx, now, now.Add(w.leadTime))
	if err != nil {
		w.logger.Error("failed to load upcoming reminders", "error", err)
		return
	}

	for _, rem := range upcoming {
		if _, done := w.notified[rem.AppointmentID]; done {
			continue
		}
		body := "Hi " + rem.PatientName + ", your appointment with " + rem.DoctorName +
			" is at " + rem.Time.In(w.displayLoc).Format(displayLayout) + "."
		if err := w.push.SendPush(ctx, rem.DeviceToken, "Upcoming dental appointment", body); err != nil {
			w.logger.Error("failed to push reminder",
				"appointment_id", rem.AppointmentID,
				"error", err,
			)
			continue
		}
		w.notified[rem.AppointmentID] = rem.Time
		w.logger.Info("reminder pushed", "appointment_id", rem.AppointmentID)
	}
}

func (w *Worker) sendDaySheets(ctx context.Context) {
	if w.mailer == nil || w.users == nil {
		return
	}

	local := w.now().In(w.displayLoc)
	day := local.Format("2006-01-02")
	if local.Hour() < w.sendHour || w.lastSheetDay == day {
		return
	}

	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, w.displayLoc)
	entries, err := w.source.DaySheetForDoctor(ctx, start.UTC(), start.Add(24*time.Hour).UTC())
	if err != nil {
		w.logger.Error("failed to load day sheet", "error", err)
		return
	}

	users, err := w.users.List(ctx)
	if err != nil {
		w.logger.Error("failed to list day sheet recipients", "error", err)
		return
	}

	sent := 0
	for _, u := range users {
		if !u.HasRole(identity.RoleDentist) {
			continue
		}
		name := u.Email
		if at := strings.IndexByte(name, '@'); at > 0 {
			name = name[:at]
		}
		if err := w.mailer.Send(ctx, u.Email, name, start, entries); err != nil {
			w.logger.Error("failed to mail day sheet", "to", u.Email, "error", err)
			continue
		}
		sent++
	}

	w.lastSheetDay = day
	w.logger.Info("day sheets sent", "day", day, "recipients", sent)
}

// prune drops dedupe entries for appointments already in the past.
func (w *Worker) prune() {
	cutoff := w.now()
	for id, at := range w.notified {
		if at.Before(cutoff) {
			delete(w.notified, id)
		}
	}
}
