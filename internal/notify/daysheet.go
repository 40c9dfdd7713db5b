package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/flossyai/dental-ai-platform/internal/appointments"
	"github.com/flossyai/dental-ai-platform/pkg/logging"
)

// DaySheetMailer emails a practitioner their schedule for the day.
type DaySheetMailer struct {
	sender     EmailSender
	logger     *logging.Logger
	clinicName string
	displayLoc *time.Location
}

// NewDaySheetMailer creates the mailer.
func NewDaySheetMailer(sender EmailSender, clinicName string, displayLoc *time.Location, logger *logging.Logger) *DaySheetMailer {
	if sender == nil {
		sender = NewStubEmailSender(logger)
	}
	if logger == nil {
		logger = logging.Default()
	}
	if clinicName == "" {
		clinicName = "FlossyAI"
	}
	if displayLoc == nil {
		displayLoc = time.UTC
	}
	return &DaySheetMailer{
		sender:     sender,
		logger:     logger,
		clinicName: clinicName,
		displayLoc: displayLoc,
	}
}

// Send emails the day's entries to the practitioner. An empty sheet still
// goes out so the recipient knows the day is clear.
func (m *DaySheetMailer) Send(ctx context.Context, toEmail, toName string, day time.Time, entries []appointments.DaySheetEntry) error {
	subject := fmt.Sprintf("%s schedule for %s", m.clinicName, day.In(m.displayLoc).Format("Monday, January 02"))
	body := m.composeBody(day, entries)

	if err := m.sender.Send(ctx, EmailMessage{
		To:      toEmail,
		ToName:  toName,
		Subject: subject,
		Body:    body,
	}); err != nil {
		return err
	}

	m.logger.Info("day sheet sent", "to", toEmail, "entries", len(entries))
	return nil
}

func (m *DaySheetMailer) composeBody(day time.Time, entries []appointments.DaySheetEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Schedule for %s\n\n", day.In(m.displayLoc).Format("Monday, January 02, 2006"))

	if len(entries) == 0 {
		b.WriteString("No appointments scheduled.\n")
		return b.String()
	}

	for _, e := range entries {
		fmt.Fprintf(&b, "%s  %-24s %s  (%s)\n",
			e.Time.In(m.displayLoc).Format("03:04 PM"),
			e.PatientName,
			e.DoctorName,
			e.Reason,
		)
	}
	fmt.Fprintf(&b, "\n%d appointment(s) in total.\n", len(entries))
	return b.String()
}
