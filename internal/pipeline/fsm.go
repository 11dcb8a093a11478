package pipeline

import "fmt"

// State is the orchestrator's position in the submission pipeline.
type State int

const (
	StateIdle State = iota
	StateValidatingLocal
	StateValidatingRemote
	StateGating
	StateAwaitingEntitlement
	StateAwaitingPayment
	StateSubmitting
	StateSuccess
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:                "IDLE",
	StateValidatingLocal:     "VALIDATING_LOCAL",
	StateValidatingRemote:    "VALIDATING_REMOTE",
	StateGating:              "GATING",
	StateAwaitingEntitlement: "AWAITING_ENTITLEMENT",
	StateAwaitingPayment:     "AWAITING_PAYMENT",
	StateSubmitting:          "SUBMITTING",
	StateSuccess:             "SUCCESS",
	StateFailed:              "FAILED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Event is a pipeline occurrence driving a state transition.
type Event int

const (
	EventSubmit Event = iota
	EventRetry
	EventLocalPassed
	EventRemotePassed
	EventGateBlocked
	EventGateCleared        // gating passed, no payment due
	EventGateClearedPayment // gating passed, paid add-ons selected
	EventEntitlementResolved
	EventPaymentConfirmed
	EventPaymentCancelled
	EventSubmitted
	EventFailed
	EventCancelled
)

var eventNames = map[Event]string{
	EventSubmit:              "submit",
	EventRetry:               "retry",
	EventLocalPassed:         "local_passed",
	EventRemotePassed:        "remote_passed",
	EventGateBlocked:         "gate_blocked",
	EventGateCleared:         "gate_cleared",
	EventGateClearedPayment:  "gate_cleared_payment",
	EventEntitlementResolved: "entitlement_resolved",
	EventPaymentConfirmed:    "payment_confirmed",
	EventPaymentCancelled:    "payment_cancelled",
	EventSubmitted:           "submitted",
	EventFailed:              "failed",
	EventCancelled:           "cancelled",
}

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// transitions is the full transition table. Every state transition in the
// pipeline goes through Next; there is no other way to move the machine.
var transitions = map[State]map[Event]State{
	StateIdle: {
		EventSubmit: StateValidatingLocal,
	},
	StateValidatingLocal: {
		EventLocalPassed: StateValidatingRemote,
		EventFailed:      StateFailed,
		EventCancelled:   StateIdle,
	},
	StateValidatingRemote: {
		EventRemotePassed: StateGating,
		EventFailed:       StateFailed,
		EventCancelled:    StateIdle,
	},
	StateGating: {
		EventGateBlocked:        StateAwaitingEntitlement,
		EventGateCleared:        StateSubmitting,
		EventGateClearedPayment: StateAwaitingPayment,
		EventFailed:             StateFailed,
		EventCancelled:          StateIdle,
	},
	StateAwaitingEntitlement: {
		EventEntitlementResolved: StateGating,
		EventFailed:              StateFailed,
		EventCancelled:           StateIdle,
	},
	StateAwaitingPayment: {
		EventPaymentConfirmed: StateSubmitting,
		EventPaymentCancelled: StateFailed,
		EventFailed:           StateFailed,
		EventCancelled:        StateIdle,
	},
	StateSubmitting: {
		EventSubmitted: StateSuccess,
		EventFailed:    StateFailed,
		EventCancelled: StateIdle,
	},
	StateFailed: {
		EventRetry:     StateValidatingLocal,
		EventSubmit:    StateValidatingLocal,
		EventCancelled: StateIdle,
	},
	// StateSuccess is terminal: the pipeline cannot be reused; a new
	// submission requires a fresh draft generation.
}

// Next is the single transition function. It returns the successor state, or
// an error when the event is not legal in the given state.
func Next(state State, event Event) (State, error) {
	if next, ok := transitions[state][event]; ok {
		return next, nil
	}
	return state, fmt.Errorf("illegal transition: event %s in state %s", event, state)
}

// IsTerminal reports whether the pipeline cannot proceed from the state
// without external action. FAILED is terminal only when the carried error is
// non-retryable; that check belongs to the orchestrator.
func IsTerminal(s State) bool {
	return s == StateSuccess
}

// IsPaused reports whether the state is a suspension point awaiting an
// external interaction.
func IsPaused(s State) bool {
	return s == StateAwaitingEntitlement || s == StateAwaitingPayment
}
