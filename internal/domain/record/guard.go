package record

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/workflow"
	"github.com/hms/hms/internal/platform/auth"
)

// AccessBasis says why the guard let an actor through.
type AccessBasis string

const (
	BasisAdminOverride   AccessBasis = "admin_override"
	BasisOwnerPermission AccessBasis = "owner_permission"
	BasisAssignment      AccessBasis = "assignment"
)

// Decision is the guard's verdict for a permitted request. Warnings are
// advisory only; an overdue record is flagged, never rejected.
type Decision struct {
	Basis    AccessBasis `json:"basis"`
	Warnings []string    `json:"warnings,omitempty"`
}

// Guard performs the boundary-level access and blocker checks before a
// workflow operation reaches the orchestrator.
type Guard struct {
	clock func() time.Time
	log   zerolog.Logger
}

// GuardOption configures optional Guard dependencies.
type GuardOption func(*Guard)

// WithGuardClock overrides the guard's time source.
func WithGuardClock(clock func() time.Time) GuardOption {
	return func(g *Guard) { g.clock = clock }
}

// WithGuardLogger attaches a logger.
func WithGuardLogger(log zerolog.Logger) GuardOption {
	return func(g *Guard) { g.log = log }
}

// NewGuard creates a Guard.
func NewGuard(opts ...GuardOption) *Guard {
	g := &Guard{clock: time.Now, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize runs the full pre-check chain for an operation on rec: identity,
// ownership or assignment, action permission, transition permission, then
// blockers. Checks run in order and the first failure wins; nothing fails
// open. Action and targetStep are optional; pass zero values to skip their
// checks.
func (g *Guard) Authorize(rec *MedicalRecord, actor *auth.Identity, action workflow.Action, targetStep workflow.Step) (*Decision, error) {
	if actor == nil {
		return nil, workflow.NewUnauthorized()
	}

	decision := &Decision{}
	switch {
	case actor.IsAdmin():
		decision.Basis = BasisAdminOverride
	case rec.Access.IsOwner(actor.ID):
		decision.Basis = BasisOwnerPermission
	default:
		if !rec.Access.IsAssigned(actor.ID) {
			return nil, workflow.NewNotAssigned()
		}
		decision.Basis = BasisAssignment
	}

	if action != "" && !rec.CanUserPerformAction(actor, action) {
		return nil, workflow.NewPermissionDenied(fmt.Sprintf(
			"role %s may not %s this record", actor.Role, action))
	}

	if targetStep != "" && !rec.Workflow.AllowsTransition(actor.Role, targetStep) {
		return nil, workflow.NewPermissionDenied(fmt.Sprintf(
			"role %s may not move this record to %s", actor.Role, targetStep))
	}

	// Blockers stop everyone but admins. Overdue is only a warning.
	if rec.Workflow.HasActiveBlocker() && !actor.IsAdmin() {
		blockers := rec.Workflow.ActiveBlockers()
		g.log.Debug().
			Str("record_id", rec.ID.String()).
			Str("actor", actor.ID.String()).
			Msg("blocked record access rejected")
		return nil, workflow.NewLocked(blockers[0].Reason)
	}

	if rec.Workflow.Overdue(g.clock().UTC()) {
		decision.Warnings = append(decision.Warnings, "record is past its estimated completion time")
	}

	return decision, nil
}
