package tasks

import (
	"fmt"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	Plan Phase = iota
	CopyCatalog
	CopySubscriptions
	ConfirmHandover
	RevertHandover
	TouchObjects
	ResendEvents
)

func (p Phase) String() string {
	switch p {
	case Plan:
		return "plan"
	case CopyCatalog:
		return "copy_catalog"
	case CopySubscriptions:
		return "copy_subscriptions"
	case ConfirmHandover:
		return "confirm"
	case RevertHandover:
		return "revert"
	case TouchObjects:
		return "touch"
	case ResendEvents:
		return "resend"
	default:
		return ""
	}
}

func planUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Plan,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Found %d subscriptions to migrate", count),
	}
}

func catalogUpdate(resource string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CopyCatalog,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Copying %ss...", resource),
	}
}

func subscriptionUpdate(step, total int, sourceID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CopySubscriptions,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s", step, total, sourceID),
	}
}

func confirmUpdate(step, total int, targetID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ConfirmHandover,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Confirming %s", step, total, targetID),
	}
}

func revertUpdate(resource string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RevertHandover,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Reverting %ss...", resource),
	}
}

func touchUpdate(step, total int, targetID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   TouchObjects,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Touching %s", step, total, targetID),
	}
}

func resendUpdate(step, total int, eventID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResendEvents,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Replaying %s", step, total, eventID),
	}
}
