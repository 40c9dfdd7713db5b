package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/flossyai/dental-ai-platform/internal/appointments"
	"github.com/flossyai/dental-ai-platform/internal/observability/metrics"
	"github.com/flossyai/dental-ai-platform/internal/patients"
	"github.com/flossyai/dental-ai-platform/pkg/logging"
)

var directorTracer = otel.Tracer("flossy.internal.conversation")

// Canonical prompts the assistant speaks. The greeting is sent when a voice
// connection opens; the retry prompt covers every oracle failure.
const (
	Greeting      = "Hello! I'm FlossyAI. How can I assist you today?"
	RetryPrompt   = "I couldn’t understand that, could you repeat?"
	EmptyPrompt   = "I didn't receive any message. Could you please repeat that?"
	displayLayout = "Monday, January 02 at 03:04 PM MST"
)

const defaultReason = "general checkup"

// BookingLedger is the slice of the appointments service the director uses.
type BookingLedger interface {
	Book(ctx context.Context, req appointments.BookingRequest) (*appointments.BookingResult, error)
	Cancel(ctx context.Context, phone string) (*appointments.Appointment, error)
	LogInteraction(ctx context.Context, phone, channel, message string)
}

// Director drives one turn of conversation per utterance: it consults the
// oracle, advances the session's machine and executes the booking or
// cancellation once the machine is ready.
type Director struct {
	oracle        Oracle
	ledger        BookingLedger
	metrics       *metrics.ConversationMetrics
	logger        *logging.Logger
	oracleTimeout time.Duration
	displayLoc    *time.Location
	now           func() time.Time
}

// NewDirector constructs a director.
func NewDirector(oracle Oracle, ledger BookingLedger, m *metrics.ConversationMetrics, logger *logging.Logger, oracleTimeout time.Duration, displayLoc *time.Location) *Director {
	if oracle == nil {
		panic("conversation: oracle required")
	}
	if ledger == nil {
		panic("conversation: booking ledger required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if oracleTimeout <= 0 {
		oracleTimeout = 15 * time.Second
	}
	if displayLoc == nil {
		displayLoc = time.UTC
	}
	return &Director{
		oracle:        oracle,
		ledger:        ledger,
		metrics:       m,
		logger:        logger,
		oracleTimeout: oracleTimeout,
		displayLoc:    displayLoc,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// HandleUtterance processes one utterance on the session and returns the
// assistant's reply. It never returns an error to the channel: every failure
// is translated into something the user can be told.
func (d *Director) HandleUtterance(ctx context.Context, sess *Session, utterance string) string {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	ctx, span := directorTracer.Start(ctx, "conversation.turn", trace.WithAttributes(
		attribute.String("flossy.session_id", sess.ID),
		attribute.String("flossy.channel", sess.Channel),
	))
	defer span.End()

	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return EmptyPrompt
	}

	now := d.now()
	oracleCtx, cancel := context.WithTimeout(ctx, d.oracleTimeout)
	rec, err := d.oracle.Extract(oracleCtx, utterance, sess.machine.Slots(), now)
	cancel()
	if err != nil {
		span.RecordError(err)
		d.metrics.ObserveOracleFailure()
		d.logger.Warn("oracle extraction failed",
			"session_id", sess.ID, "error", err)
		return RetryPrompt
	}

	state := sess.machine.Advance(rec)
	span.SetAttributes(attribute.String("flossy.state", string(state)))
	d.metrics.ObserveTurn(string(state))

	slots := sess.machine.Slots()
	if slots.Phone != "" {
		d.ledger.LogInteraction(ctx, slots.Phone, sess.Channel, utterance)
	}

	switch state {
	case StateReadyToBook:
		return d.executeBooking(ctx, sess, slots, now)
	case StateReadyToCancel:
		return d.executeCancellation(ctx, sess, slots)
	default:
		if strings.TrimSpace(rec.Message) == "" {
			return RetryPrompt
		}
		return rec.Message
	}
}

func (d *Director) executeBooking(ctx context.Context, sess *Session, slots SlotSet, now time.Time) string {
	reason := slots.Symptom
	if reason == "" {
		reason = defaultReason
	}

	res, err := d.ledger.Book(ctx, appointments.BookingRequest{
		Name:      slots.Name,
		Phone:     slots.Phone,
		Reason:    reason,
		Preferred: parsePreferred(slots.Date, slots.Time, d.displayLoc, now),
		UserID:    sess.UserID,
	})
	if err != nil {
		d.logger.Error("booking failed", "session_id", sess.ID, "error", err)
		return "I'm sorry, I couldn't complete your booking just now. Could we try again?"
	}

	sess.machine.Reset()
	when := res.Appointment.Time.In(d.displayLoc).Format(displayLayout)
	return fmt.Sprintf("Your appointment is confirmed for %s!", when)
}

func (d *Director) executeCancellation(ctx context.Context, sess *Session, slots SlotSet) string {
	appt, err := d.ledger.Cancel(ctx, slots.Phone)
	switch {
	case errors.Is(err, patients.ErrPatientNotFound):
		return "I couldn't find any patient with that phone number. Could you check it and try again?"
	case errors.Is(err, appointments.ErrNoActiveAppointment):
		return "I couldn't find an active appointment under that phone number."
	case err != nil:
		d.logger.Error("cancellation failed", "session_id", sess.ID, "error", err)
		return "I'm sorry, I couldn't cancel your appointment just now. Could we try again?"
	}

	sess.machine.Reset()
	when := appt.Time.In(d.displayLoc).Format(displayLayout)
	return fmt.Sprintf("Your appointment on %s has been cancelled.", when)
}

// parsePreferred combines the raw date and time slots into an instant in the
// clinic's timezone, since that is the zone the caller means. The slots
// arrive unvalidated from the oracle; anything unparseable falls back to ten
// minutes from now, which the resolver then rounds into a real slot.
func parsePreferred(date, timeOfDay string, loc *time.Location, now time.Time) time.Time {
	combined := strings.TrimSpace(date + " " + timeOfDay)
	layouts := []string{
		"2006-01-02 15:04",
		"2006-01-02 15:04:05",
		"2006-01-02 3:04 PM",
		"2006-01-02 3 PM",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, combined, loc); err == nil {
			return t
		}
	}
	return now.Add(10 * time.Minute)
}
