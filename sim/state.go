package sim

// State is the lifecycle state of a Message.
//
//	Active ──Send──▶ Sent ──Deliver──▶ Active ──Free──▶ Freed | Deleted
//	  ▲                                                  │
//	  └──────────────────── New (pool reuse) ◀───────────┘
//
// A delivered message is Active again: its consumer owns it and may mutate,
// re-send or free it.
type State uint8

const (
	StateActive State = iota
	StateSent
	StateFreed
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateSent:
		return "sent"
	case StateFreed:
		return "freed"
	case StateDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// legalTransitions[from][to] lists every allowed lifecycle move.
var legalTransitions = [4][4]bool{
	StateActive: {StateSent: true, StateFreed: true, StateDeleted: true},
	StateSent:   {StateActive: true},
	StateFreed:  {StateActive: true},
}

// transition is the single place where lifecycle state changes. Any move not
// in legalTransitions panics with a UsageError naming op.
func (m *Message) transition(op string, to State) {
	from := m.state
	if int(from) >= len(legalTransitions) || !legalTransitions[from][to] {
		usagef(m, op, "illegal transition %s -> %s", from, to)
	}
	m.state = to
}

// mustBeActive guards every mutating operation.
func (m *Message) mustBeActive(op string) {
	if m.state != StateActive {
		usagef(m, op, "message is %s", m.state)
	}
}

// mustBeLive guards read operations that are legal on sent messages.
func (m *Message) mustBeLive(op string) {
	if m.state == StateFreed || m.state == StateDeleted {
		usagef(m, op, "message is %s", m.state)
	}
}
