package conversation

import (
	"encoding/json"
	"strings"
)

// Intent classifies a single user utterance.
type Intent string

const (
	IntentBookAppointment   Intent = "book_appointment"
	IntentCancelAppointment Intent = "cancel_appointment"
	IntentSymptom           Intent = "symptom"
	IntentSmalltalk         Intent = "smalltalk"
)

// Valid reports whether the intent is one the oracle is allowed to return.
func (i Intent) Valid() bool {
	switch i {
	case IntentBookAppointment, IntentCancelAppointment, IntentSymptom, IntentSmalltalk:
		return true
	}
	return false
}

// IntentRecord is the structured output the oracle produces for one turn.
// Slot fields are raw strings; parsing and validation happen downstream.
type IntentRecord struct {
	Intent               Intent `json:"intent"`
	Name                 string `json:"name,omitempty"`
	Date                 string `json:"date,omitempty"`
	Time                 string `json:"time,omitempty"`
	Phone                string `json:"phone,omitempty"`
	Symptom              string `json:"symptom_message,omitempty"`
	Message              string `json:"message"`
	ReadyForBooking      bool   `json:"ready_for_booking"`
	ReadyForCancellation bool   `json:"ready_for_cancellation"`
}

// SlotSet accumulates the details extracted from a session's turns. It is
// owned by exactly one session and never persisted.
type SlotSet struct {
	Name    string `json:"name,omitempty"`
	Date    string `json:"date,omitempty"`
	Time    string `json:"time,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Symptom string `json:"symptom,omitempty"`
}

// Merge folds an oracle record into the slot set. Non-empty fields overwrite
// the stored value; empty fields never erase what a prior turn supplied.
func (s *SlotSet) Merge(rec IntentRecord) {
	if v := strings.TrimSpace(rec.Name); v != "" {
		s.Name = v
	}
	if v := strings.TrimSpace(rec.Date); v != "" {
		s.Date = v
	}
	if v := strings.TrimSpace(rec.Time); v != "" {
		s.Time = v
	}
	if v := strings.TrimSpace(rec.Phone); v != "" {
		s.Phone = v
	}
	if v := strings.TrimSpace(rec.Symptom); v != "" {
		s.Symptom = v
	}
}

// Empty reports whether no slot has been filled yet.
func (s SlotSet) Empty() bool {
	return s == SlotSet{}
}

// String renders the slot set as compact JSON for prompt embedding.
func (s SlotSet) String() string {
	b, err := json.Marshal(s)
	if err != nil {
		return "{}"
	}
	return string(b)
}
