package workflow

import (
	"github.com/hms/hms/internal/platform/auth"
)

// CanPerformAction reports whether the role may perform the action from the
// given step of the named workflow. Unknown workflow, step or action all fail
// closed.
func (r *Registry) CanPerformAction(role auth.Role, workflow string, step Step, action Action) bool {
	d, ok := r.defs[workflow]
	if !ok {
		return false
	}
	spec, ok := d.Steps[step]
	if !ok {
		return false
	}
	allowed := false
	for _, a := range spec.AllowedActions {
		if a == action {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}
	return roleIn(spec.AllowedRoles[action], role)
}

// IsValidTransition reports whether from -> to via action is a legal edge of
// the named workflow. Role authority is checked separately so that graph
// correctness can be tested without an identity.
func (r *Registry) IsValidTransition(workflow string, from, to Step, action Action) bool {
	for _, candidate := range r.NextSteps(workflow, from, action) {
		if candidate == to {
			return true
		}
	}
	return false
}

// canonicalNextStep maps an action to its conventional target step. It is
// consulted only when a transition table declares more than one candidate
// for a (step, action) pair; the built-in definitions are deterministic and
// never reach it.
var canonicalNextStep = map[Action]Step{
	ActionReview:   StepUnderReview,
	ActionApprove:  StepApproved,
	ActionReject:   StepRejected,
	ActionSubmit:   StepSubmitted,
	ActionFinalize: StepFinalized,
	ActionRevise:   StepRevisionRequired,
	ActionArchive:  StepArchived,
	ActionCancel:   StepCancelled,
}

// DetermineNextStep resolves the target step for an action among the
// registry's candidates. A single candidate wins outright. With several, the
// canonical action mapping is applied when it names one of the candidates
// (revise honors actionData["backToDraft"] to return to draft); otherwise the
// first candidate wins. No candidates yields "".
func DetermineNextStep(candidates []Step, action Action, actionData map[string]interface{}) Step {
	if len(candidates) == 0 {
		return ""
	}
	if len(candidates) == 1 {
		return candidates[0]
	}

	want := canonicalNextStep[action]
	if action == ActionRevise {
		if back, _ := actionData["backToDraft"].(bool); back {
			want = StepDraft
		}
	}
	for _, c := range candidates {
		if c == want {
			return c
		}
	}
	return candidates[0]
}
