package conversation

import "testing"

func TestMachineStartsIdle(t *testing.T) {
	m := NewMachine()
	if m.State() != StateIdle {
		t.Fatalf("expected idle, got %q", m.State())
	}
	if !m.Slots().Empty() {
		t.Fatalf("expected empty slots, got %+v", m.Slots())
	}
}

func TestMachineCollectsUntilOracleSignalsReady(t *testing.T) {
	m := NewMachine()

	if got := m.Advance(IntentRecord{Intent: IntentBookAppointment, Name: "Jordan Lee", Phone: "+15550001111", Message: "What day works?"}); got != StateCollecting {
		t.Fatalf("expected collecting, got %q", got)
	}

	got := m.Advance(IntentRecord{
		Intent:          IntentBookAppointment,
		Date:            "2026-01-05",
		Time:            "10:00",
		Symptom:         "cleaning",
		Message:         "Booking now.",
		ReadyForBooking: true,
	})
	if got != StateReadyToBook {
		t.Fatalf("expected ready_to_book, got %q", got)
	}

	slots := m.Slots()
	want := SlotSet{Name: "Jordan Lee", Phone: "+15550001111", Date: "2026-01-05", Time: "10:00", Symptom: "cleaning"}
	if slots != want {
		t.Fatalf("merged slots mismatch:\n got %+v\nwant %+v", slots, want)
	}
}

func TestMachineTrustsReadinessWithoutCompletenessCheck(t *testing.T) {
	// The oracle is the sole arbiter: a booking flag with missing slots
	// still moves the machine to ready.
	m := NewMachine()
	got := m.Advance(IntentRecord{Intent: IntentBookAppointment, Phone: "+15550001111", ReadyForBooking: true})
	if got != StateReadyToBook {
		t.Fatalf("expected ready_to_book, got %q", got)
	}
}

func TestMachineCancellationFlag(t *testing.T) {
	m := NewMachine()
	got := m.Advance(IntentRecord{Intent: IntentCancelAppointment, Phone: "+15550001111", ReadyForCancellation: true})
	if got != StateReadyToCancel {
		t.Fatalf("expected ready_to_cancel, got %q", got)
	}
}

func TestMachineResetClearsSlots(t *testing.T) {
	m := NewMachine()
	m.Advance(IntentRecord{Intent: IntentBookAppointment, Name: "Jordan Lee"})
	m.Reset()

	if m.State() != StateIdle || !m.Slots().Empty() {
		t.Fatalf("expected idle with empty slots after reset, got %q %+v", m.State(), m.Slots())
	}
}

func TestMachineSmalltalkWithNoSlotsStaysIdle(t *testing.T) {
	m := NewMachine()
	if got := m.Advance(IntentRecord{Intent: IntentSmalltalk, Message: "Hello!"}); got != StateIdle {
		t.Fatalf("expected idle, got %q", got)
	}
}
