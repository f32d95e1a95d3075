package workflow

import (
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/auth"
)

// Step is a named state a record occupies within a workflow.
type Step string

// Canonical steps for the medical-record workflow, plus the generic review
// steps used by non-record workflows.
const (
	StepDraft            Step = "draft"
	StepDoctorReview     Step = "doctor_review"
	StepNurseVerify      Step = "nurse_verify"
	StepBillingReview    Step = "billing_review"
	StepInsuranceProcess Step = "insurance_process"
	StepFinalized        Step = "finalized"
	StepArchived         Step = "archived"
	StepCancelled        Step = "cancelled"

	StepSubmitted        Step = "submitted"
	StepUnderReview      Step = "under_review"
	StepApproved         Step = "approved"
	StepRejected         Step = "rejected"
	StepRevisionRequired Step = "revision_required"
)

// Action is a named operation that, if permitted, drives a transition.
type Action string

const (
	ActionCreate   Action = "create"
	ActionSubmit   Action = "submit"
	ActionReview   Action = "review"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionRevise   Action = "revise"
	ActionAdvance  Action = "advance"
	ActionFinalize Action = "finalize"
	ActionArchive  Action = "archive"
	ActionCancel   Action = "cancel"

	// ActionInitialize is the synthetic action recorded when a workflow
	// instance or record status is first created.
	ActionInitialize Action = "initialize"
)

// Actions is the enumerated set of caller-suppliable workflow actions.
var Actions = []Action{
	ActionSubmit, ActionReview, ActionApprove, ActionReject,
	ActionRevise, ActionAdvance, ActionFinalize, ActionArchive, ActionCancel,
}

// StepHistoryEntry records one committed transition. Entries are append-only
// and never mutated after being added to a history.
type StepHistoryEntry struct {
	Step         Step                   `json:"step"`
	PreviousStep Step                   `json:"previous_step,omitempty"`
	PerformedBy  uuid.UUID              `json:"performed_by"`
	PerformedAt  time.Time              `json:"performed_at"`
	Action       Action                 `json:"action"`
	Comments     string                 `json:"comments,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Blocker is an obstruction recorded against a record. A blocker is active
// until ResolvedAt is set.
type Blocker struct {
	Type       string     `json:"type"`
	Reason     string     `json:"reason"`
	BlockedBy  uuid.UUID  `json:"blocked_by"`
	BlockedAt  time.Time  `json:"blocked_at"`
	ResolvedBy *uuid.UUID `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Active reports whether the blocker is unresolved.
func (b *Blocker) Active() bool { return b.ResolvedAt == nil }

// NextStep is a step reachable from the current one together with the roles
// allowed to take it.
type NextStep struct {
	Step         Step        `json:"step"`
	AllowedRoles []auth.Role `json:"allowed_roles"`
}

// Status is the workflow state owned by a workflowable record. It is mutated
// only through the orchestrator's transition operations.
type Status struct {
	WorkflowType            string             `json:"workflow_type"`
	CurrentStep             Step               `json:"current_step"`
	Priority                string             `json:"priority,omitempty"`
	NextSteps               []NextStep         `json:"next_steps,omitempty"`
	StepHistory             []StepHistoryEntry `json:"step_history"`
	Blockers                []Blocker          `json:"blockers,omitempty"`
	EstimatedCompletionTime *time.Time         `json:"estimated_completion_time,omitempty"`
	ActualCompletionTime    *time.Time         `json:"actual_completion_time,omitempty"`
}

// HasActiveBlocker reports whether any blocker is unresolved.
func (s *Status) HasActiveBlocker() bool {
	for i := range s.Blockers {
		if s.Blockers[i].Active() {
			return true
		}
	}
	return false
}

// ActiveBlockers returns the unresolved blockers.
func (s *Status) ActiveBlockers() []Blocker {
	var out []Blocker
	for i := range s.Blockers {
		if s.Blockers[i].Active() {
			out = append(out, s.Blockers[i])
		}
	}
	return out
}

// Overdue reports whether the estimated completion time has passed while the
// workflow is still open. Completed workflows are never overdue.
func (s *Status) Overdue(now time.Time) bool {
	if s.EstimatedCompletionTime == nil || s.ActualCompletionTime != nil {
		return false
	}
	return now.After(*s.EstimatedCompletionTime)
}

// AllowsTransition reports whether the precomputed next steps permit the
// given role to move to the target step.
func (s *Status) AllowsTransition(role auth.Role, target Step) bool {
	for _, ns := range s.NextSteps {
		if ns.Step != target {
			continue
		}
		for _, r := range ns.AllowedRoles {
			if r == role {
				return true
			}
		}
	}
	return false
}

// Apply returns a copy of the status advanced by the given history entry.
// The receiver is not modified; history is extended by exactly one entry.
func (s Status) Apply(entry StepHistoryEntry, terminal bool) Status {
	next := s
	next.CurrentStep = entry.Step
	next.StepHistory = make([]StepHistoryEntry, len(s.StepHistory)+1)
	copy(next.StepHistory, s.StepHistory)
	next.StepHistory[len(s.StepHistory)] = entry
	if terminal {
		t := entry.PerformedAt
		next.ActualCompletionTime = &t
	}
	return next
}

// Assignment associates a user and role with a record for the current step.
type Assignment struct {
	User       uuid.UUID  `json:"user"`
	Role       auth.Role  `json:"role"`
	AssignedAt time.Time  `json:"assigned_at"`
	Deadline   *time.Time `json:"deadline,omitempty"`
}

// Permissions lists the roles granted each coarse capability on a record.
type Permissions struct {
	CanRead    []auth.Role `json:"can_read"`
	CanEdit    []auth.Role `json:"can_edit"`
	CanApprove []auth.Role `json:"can_approve"`
	CanReject  []auth.Role `json:"can_reject"`
}

// AccessControl is the ownership and assignment block carried by a
// workflowable record.
type AccessControl struct {
	CurrentOwner uuid.UUID    `json:"current_owner"`
	AssignedTo   []Assignment `json:"assigned_to,omitempty"`
	Permissions  Permissions  `json:"permissions"`
}

// IsOwner reports whether the user is the record's current owner.
func (ac *AccessControl) IsOwner(user uuid.UUID) bool {
	return ac.CurrentOwner == user
}

// IsAssigned reports whether the user appears among the assignees.
func (ac *AccessControl) IsAssigned(user uuid.UUID) bool {
	for i := range ac.AssignedTo {
		if ac.AssignedTo[i].User == user {
			return true
		}
	}
	return false
}

func roleIn(roles []auth.Role, role auth.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
