package workflow

import "time"

// State is a node of the planning state machine.
type State string

const (
	StateDispatch          State = "dispatch"
	StateRoute             State = "route"
	StateInventory         State = "inventory"
	StateHardwareStore     State = "hardware_store_creation"
	StateHumanVerification State = "human_verification"
	StateErrorHandler      State = "error_handler"
	StateComplete          State = "complete"
	StateFailed            State = "failed"
	StateCancelled         State = "cancelled"
)

// Terminal reports whether the machine halts in this state.
func (s State) Terminal() bool {
	switch s {
	case StateComplete, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Event is an observed outcome that drives a transition.
type Event string

const (
	// EventStageCompleted signals the current stage finished cleanly.
	EventStageCompleted Event = "stage_completed"
	// EventStageFailed signals the current stage recorded an error.
	EventStageFailed Event = "stage_failed"
	// EventApprovalRequired parks the run at the verification gate.
	EventApprovalRequired Event = "approval_required"
	// EventStoreRunNeeded signals inventory produced store locations.
	EventStoreRunNeeded Event = "store_run_needed"
	// EventApproved and EventRejected resolve the verification gate.
	EventApproved Event = "approved"
	EventRejected Event = "rejected"
	// EventRetry and EventGiveUp resolve the error handler.
	EventRetry  Event = "retry"
	EventGiveUp Event = "give_up"
)

// ApprovalStep tags which stage's output the verification gate covers.
const (
	ApprovalStepDispatch  = "dispatch_approval"
	ApprovalStepRoute     = "route_approval"
	ApprovalStepInventory = "inventory_approval"
	ApprovalStepNone      = "none"
)

// Transition is one recorded step of a run, kept as an audit trail so a
// finished run can be replayed and asserted on.
type Transition struct {
	From  State     `json:"from"`
	Event Event     `json:"event"`
	To    State     `json:"to"`
	At    time.Time `json:"at"`
}
