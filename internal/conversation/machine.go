package conversation

// State is the conversation machine's position in the booking flow.
type State string

const (
	// StateIdle means no slots have been collected yet.
	StateIdle State = "idle"
	// StateCollecting means at least one slot is filled but neither
	// readiness condition holds.
	StateCollecting State = "collecting"
	// StateReadyToBook means the oracle judged the booking slots complete.
	StateReadyToBook State = "ready_to_book"
	// StateReadyToCancel means the oracle judged the cancellation ready.
	StateReadyToCancel State = "ready_to_cancel"
)

// Machine accumulates slots across turns and decides when the session is
// ready to act. The oracle's readiness flags are trusted as-is; the machine
// does not second-guess them with its own completeness check.
type Machine struct {
	state State
	slots SlotSet
}

// NewMachine returns a machine in the idle state with an empty slot set.
func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Slots returns a copy of the accumulated slot set.
func (m *Machine) Slots() SlotSet { return m.slots }

// Advance merges one oracle record and returns the resulting state. An
// oracle failure must not reach this method: the caller keeps the machine
// untouched and replies with a retry prompt instead.
func (m *Machine) Advance(rec IntentRecord) State {
	m.slots.Merge(rec)

	switch {
	case rec.ReadyForBooking:
		m.state = StateReadyToBook
	case rec.ReadyForCancellation:
		m.state = StateReadyToCancel
	case m.slots.Empty():
		m.state = StateIdle
	default:
		m.state = StateCollecting
	}
	return m.state
}

// Reset clears the slot set and returns the machine to idle. Called after a
// booking or cancellation completes so the session can start over.
func (m *Machine) Reset() {
	m.state = StateIdle
	m.slots = SlotSet{}
}
