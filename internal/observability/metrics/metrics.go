package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters for the booking ledger.
type BookingMetrics struct {
	bookedTotal     *prometheus.CounterVec
	cancelledTotal  *prometheus.CounterVec
	conflictTotal   *prometheus.CounterVec
	degenerateTotal *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flossy",
			Subsystem: "bookings",
			Name:      "booked_total",
			Help:      "Total committed bookings",
		}, []string{"doctor", "low_confidence"}),
		cancelledTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flossy",
			Subsystem: "bookings",
			Name:      "cancelled_total",
			Help:      "Total cancelled appointments",
		}, []string{"doctor"}),
		conflictTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flossy",
			Subsystem: "bookings",
			Name:      "conflict_total",
			Help:      "Booking attempts that lost a slot race and retried",
		}, []string{"doctor"}),
		degenerateTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flossy",
			Subsystem: "bookings",
			Name:      "degenerate_resolution_total",
			Help:      "Slot searches that exhausted the horizon and used the fallback",
		}, []string{"doctor"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookedTotal, m.cancelledTotal, m.conflictTotal, m.degenerateTotal)
	return m
}

func (m *BookingMetrics) ObserveBooked(doctor string, lowConfidence bool) {
	if m == nil {
		return
	}
	label := "false"
	if lowConfidence {
		label = "true"
	}
	m.bookedTotal.WithLabelValues(doctor, label).Inc()
}

func (m *BookingMetrics) ObserveCancelled(doctor string) {
	if m == nil {
		return
	}
	m.cancelledTotal.WithLabelValues(doctor).Inc()
}

func (m *BookingMetrics) ObserveConflict(doctor string) {
	if m == nil {
		return
	}
	m.conflictTotal.WithLabelValues(doctor).Inc()
}

func (m *BookingMetrics) ObserveDegenerateResolution(doctor string) {
	if m == nil {
		return
	}
	m.degenerateTotal.WithLabelValues(doctor).Inc()
}

// ConversationMetrics exposes counters for conversation turns and sessions.
type ConversationMetrics struct {
	turnsTotal     *prometheus.CounterVec
	oracleFailures prometheus.Counter
	activeSessions *prometheus.GaugeVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flossy",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Conversation turns processed, by resulting state",
		}, []string{"state"}),
		oracleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flossy",
			Subsystem: "conversation",
			Name:      "oracle_failures_total",
			Help:      "Intent oracle calls that failed or returned unparseable output",
		}),
		activeSessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "flossy",
			Subsystem: "conversation",
			Name:      "active_sessions",
			Help:      "Live sessions by channel",
		}, []string{"channel"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.oracleFailures, m.activeSessions)
	return m
}

func (m *ConversationMetrics) ObserveTurn(state string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(state).Inc()
}

func (m *ConversationMetrics) ObserveOracleFailure() {
	if m == nil {
		return
	}
	m.oracleFailures.Inc()
}

func (m *ConversationMetrics) SessionOpened(channel string) {
	if m == nil {
		return
	}
	m.activeSessions.WithLabelValues(channel).Inc()
}

func (m *ConversationMetrics) SessionClosed(channel string) {
	if m == nil {
		return
	}
	m.activeSessions.WithLabelValues(channel).Dec()
}
