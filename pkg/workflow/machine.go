package workflow

import "fmt"

// ErrInvalidTransition is returned when no edge exists for a state/event
// pair. The runner treats it as a programming error, not a plan failure.
type ErrInvalidTransition struct {
	From  State
	Event Event
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("no transition from state %q on event %q", e.From, e.Event)
}

// Next computes the successor state for a state/event pair. The edge set
// is closed: every legal move of the pipeline is listed here and nowhere
// else, so retry and approval branches can be checked exhaustively.
//
// Every stage state routes EventStageFailed to the error handler and
// EventApprovalRequired to the verification gate. The hardware store
// state is only reachable from inventory via EventStoreRunNeeded.
func Next(from State, ev Event) (State, error) {
	switch from {
	case StateDispatch:
		switch ev {
		case EventStageCompleted:
			return StateRoute, nil
		case EventStageFailed:
			return StateErrorHandler, nil
		case EventApprovalRequired:
			return StateHumanVerification, nil
		}

	case StateRoute:
		switch ev {
		case EventStageCompleted:
			return StateInventory, nil
		case EventStageFailed:
			return StateErrorHandler, nil
		case EventApprovalRequired:
			return StateHumanVerification, nil
		}

	case StateInventory:
		switch ev {
		case EventStoreRunNeeded:
			return StateHardwareStore, nil
		case EventStageCompleted:
			return StateComplete, nil
		case EventStageFailed:
			return StateErrorHandler, nil
		case EventApprovalRequired:
			return StateHumanVerification, nil
		}

	case StateHardwareStore:
		switch ev {
		case EventStageCompleted:
			return StateComplete, nil
		case EventStageFailed:
			return StateErrorHandler, nil
		case EventApprovalRequired:
			return StateHumanVerification, nil
		}

	case StateHumanVerification:
		switch ev {
		case EventApproved:
			return StateComplete, nil
		case EventRejected:
			return StateCancelled, nil
		case EventStageFailed:
			return StateErrorHandler, nil
		}

	case StateErrorHandler:
		switch ev {
		case EventRetry:
			return StateDispatch, nil
		case EventGiveUp:
			return StateFailed, nil
		}
	}

	return from, &ErrInvalidTransition{From: from, Event: ev}
}

// ApprovalStepFor maps the state the run was about to enter to the tag
// telling the user which stage's output needs sign-off.
func ApprovalStepFor(next State) string {
	switch next {
	case StateRoute:
		return ApprovalStepDispatch
	case StateInventory:
		return ApprovalStepRoute
	case StateComplete:
		return ApprovalStepInventory
	}
	return ApprovalStepNone
}
