package engine

import (
	"fmt"
	"strings"

	"stockmind/internal/domain"
)

// PreconditionError reports a trigger that was refused before any state
// change or outbound call happened.
type PreconditionError struct {
	Workflow string
	Reason   string
	Detail   string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Workflow, e.Reason)
}

// checkTrigger enforces the trigger preconditions for a workflow: a target
// endpoint must be configured, and symbol-bound workflows need a symbol.
func checkTrigger(wf domain.WorkflowSpec, webhookURL, symbol string) error {
	if strings.TrimSpace(webhookURL) == "" {
		return &PreconditionError{
			Workflow: wf.ID,
			Reason:   "webhook URL required",
			Detail:   fmt.Sprintf("Please set the webhook URL for %s", wf.Name),
		}
	}
	if wf.RequiresSymbol && symbol == "" {
		return &PreconditionError{
			Workflow: wf.ID,
			Reason:   "stock selection required",
			Detail:   "Please select a stock to analyze",
		}
	}
	return nil
}
