package record

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/workflow"
	"github.com/hms/hms/internal/platform/auth"
)

// stepRequiredRoles names the role a step's work belongs to. Used when
// re-assigning a record as it enters the step.
var stepRequiredRoles = map[workflow.Step][]auth.Role{
	workflow.StepDoctorReview:     {auth.RoleDoctor},
	workflow.StepNurseVerify:      {auth.RoleNurse},
	workflow.StepBillingReview:    {auth.RoleBillingStaff},
	workflow.StepInsuranceProcess: {auth.RoleInsuranceStaff},
}

// stepDurations is the expected time a record spends in each step, used for
// estimated-completion bookkeeping and assignment deadlines.
var stepDurations = map[workflow.Step]time.Duration{
	workflow.StepDraft:            24 * time.Hour,
	workflow.StepDoctorReview:     48 * time.Hour,
	workflow.StepNurseVerify:      24 * time.Hour,
	workflow.StepBillingReview:    72 * time.Hour,
	workflow.StepInsuranceProcess: 120 * time.Hour,
	workflow.StepFinalized:        0,
}

const defaultStepDuration = 48 * time.Hour

func stepDuration(step workflow.Step) time.Duration {
	if d, ok := stepDurations[step]; ok {
		return d
	}
	return defaultStepDuration
}

// Service orchestrates medical-record workflow transitions. All state changes
// go through it; the repository applies them under an optimistic version
// token so concurrent transitions from the same step cannot both commit.
type Service struct {
	records  RecordRepository
	registry *workflow.Registry
	audit    workflow.AuditSink
	clock    func() time.Time
	log      zerolog.Logger
}

// ServiceOption configures optional Service dependencies.
type ServiceOption func(*Service)

// WithClock overrides the service's time source.
func WithClock(clock func() time.Time) ServiceOption {
	return func(s *Service) { s.clock = clock }
}

// WithAudit attaches an audit sink.
func WithAudit(sink workflow.AuditSink) ServiceOption {
	return func(s *Service) { s.audit = sink }
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) ServiceOption {
	return func(s *Service) { s.log = log }
}

// NewService creates a record service over the given repository and workflow
// registry.
func NewService(records RecordRepository, registry *workflow.Registry, opts ...ServiceOption) *Service {
	s := &Service{
		records:  records,
		registry: registry,
		audit:    workflow.NopAuditSink{},
		clock:    time.Now,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new record with its workflow seeded at the initial step and
// the creator as owner. The history starts with a synthetic "create" entry.
func (s *Service) Create(ctx context.Context, rec *MedicalRecord, actor *auth.Identity) error {
	if actor == nil {
		return workflow.NewUnauthorized()
	}
	if rec.PatientID == uuid.Nil {
		return workflow.NewMissingField("patient_id")
	}
	if rec.Priority == "" {
		rec.Priority = "routine"
	}
	if !validPriorities[rec.Priority] {
		return workflow.NewMissingField("valid priority (routine, urgent, stat)")
	}

	def, err := s.registry.Get(workflow.MedicalRecordWorkflowName)
	if err != nil {
		return err
	}

	now := s.clock().UTC()
	if rec.RecordNumber == "" {
		rec.RecordNumber = newRecordNumber(now)
	}
	est := now.Add(stepDuration(def.InitialStep))

	rec.Workflow = workflow.Status{
		WorkflowType: def.Name,
		CurrentStep:  def.InitialStep,
		Priority:     rec.Priority,
		NextSteps:    nextStepsFor(def, def.InitialStep),
		StepHistory: []workflow.StepHistoryEntry{{
			Step:        def.InitialStep,
			PerformedBy: actor.ID,
			PerformedAt: now,
			Action:      workflow.ActionCreate,
		}},
		EstimatedCompletionTime: &est,
	}
	rec.Access = workflow.AccessControl{
		CurrentOwner: actor.ID,
		Permissions:  defaultPermissions(),
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now

	if err := s.records.Create(ctx, rec); err != nil {
		return fmt.Errorf("create medical record: %w", err)
	}

	s.log.Info().
		Str("record_id", rec.ID.String()).
		Str("record_number", rec.RecordNumber).
		Str("owner", actor.ID.String()).
		Msg("medical record created")
	return nil
}

// Get loads a record by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*MedicalRecord, error) {
	return s.records.GetByID(ctx, id)
}

// CanUserTransitionStep checks whether the actor may move the record to the
// target step: the actor must be an assignee, the owner or an admin, and the
// target must appear among the record's precomputed next steps for the
// actor's role.
func (s *Service) CanUserTransitionStep(rec *MedicalRecord, actor *auth.Identity, target workflow.Step) error {
	if actor == nil {
		return workflow.NewUnauthorized()
	}
	if !actor.IsAdmin() && !rec.Access.IsOwner(actor.ID) && !rec.Access.IsAssigned(actor.ID) {
		return workflow.NewNotAssigned()
	}
	if !rec.Workflow.AllowsTransition(actor.Role, target) {
		return workflow.NewPermissionDenied(fmt.Sprintf(
			"role %s may not move this record to %s", actor.Role, target))
	}
	return nil
}

// Transition moves the record to newStep via action. Permission, transition
// legality and business rules are all re-validated here; the commit is a
// single version-guarded write, so no partial transition is ever observable.
func (s *Service) Transition(ctx context.Context, recordID uuid.UUID, newStep workflow.Step, actor *auth.Identity, action workflow.Action, comments string) (*MedicalRecord, error) {
	if actor == nil {
		return nil, workflow.NewUnauthorized()
	}
	if newStep == "" {
		return nil, workflow.NewMissingField("workflow step")
	}
	if action == "" {
		return nil, workflow.NewMissingField("workflow action")
	}

	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}

	wfName := rec.Workflow.WorkflowType
	def, err := s.registry.Get(wfName)
	if err != nil {
		return nil, err
	}
	if s.registry.IsTerminalStep(wfName, rec.Workflow.CurrentStep) {
		return nil, workflow.NewInvalidTransition(rec.Workflow.CurrentStep, newStep, action)
	}

	// An unresolved blocker halts everyone but admins.
	if rec.Workflow.HasActiveBlocker() && !actor.IsAdmin() {
		blockers := rec.Workflow.ActiveBlockers()
		return nil, workflow.NewLocked(blockers[0].Reason)
	}

	if err := s.CanUserTransitionStep(rec, actor, newStep); err != nil {
		return nil, err
	}
	if !s.registry.IsValidTransition(wfName, rec.Workflow.CurrentStep, newStep, action) {
		return nil, workflow.NewInvalidTransition(rec.Workflow.CurrentStep, newStep, action)
	}
	if result := workflow.ValidateBusinessRules(rec, newStep); !result.Valid {
		return nil, workflow.NewBusinessRuleFailed(result.Message)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.clock().UTC()
	previous := rec.Workflow.CurrentStep
	terminal := s.registry.IsTerminalStep(wfName, newStep)

	rec.Workflow = rec.Workflow.Apply(workflow.StepHistoryEntry{
		Step:         newStep,
		PreviousStep: previous,
		PerformedBy:  actor.ID,
		PerformedAt:  now,
		Action:       action,
		Comments:     comments,
	}, terminal)
	rec.Workflow.NextSteps = nextStepsFor(def, newStep)
	s.updateAssignments(rec, newStep, actor, now)
	if rec.Workflow.EstimatedCompletionTime == nil {
		est := now.Add(stepDuration(newStep))
		rec.Workflow.EstimatedCompletionTime = &est
	}
	rec.UpdatedAt = now

	if err := s.records.Update(ctx, rec); err != nil {
		return nil, err
	}

	// The transition has committed; an audit failure is logged and swallowed.
	ev := &workflow.TransitionEvent{
		EntityType:    "medical_record",
		EntityID:      rec.ID.String(),
		WorkflowName:  wfName,
		FromStep:      previous,
		ToStep:        newStep,
		Action:        action,
		PerformedBy:   actor.ID,
		PerformedName: actor.Name,
		PerformedRole: actor.Role,
		PerformedAt:   now,
		Comments:      comments,
	}
	if err := s.audit.LogTransition(ctx, ev); err != nil {
		s.log.Warn().Err(err).
			Str("record_id", rec.ID.String()).
			Msg("audit append failed after committed transition")
	}

	s.log.Info().
		Str("record_id", rec.ID.String()).
		Str("from", string(previous)).
		Str("to", string(newStep)).
		Str("action", string(action)).
		Str("actor", actor.ID.String()).
		Msg("medical record transition")
	return rec, nil
}

// updateAssignments replaces assignees whose role matches the step's required
// role set, then adds the actor only when their role is required for the new
// step. Assignments from unrelated roles are left alone.
func (s *Service) updateAssignments(rec *MedicalRecord, newStep workflow.Step, actor *auth.Identity, now time.Time) {
	required := stepRequiredRoles[newStep]
	if len(required) == 0 {
		return
	}
	requiredSet := make(map[auth.Role]bool, len(required))
	for _, role := range required {
		requiredSet[role] = true
	}

	kept := rec.Access.AssignedTo[:0]
	for _, a := range rec.Access.AssignedTo {
		if !requiredSet[a.Role] {
			kept = append(kept, a)
		}
	}
	rec.Access.AssignedTo = kept

	if requiredSet[actor.Role] {
		deadline := now.Add(stepDuration(newStep))
		rec.Access.AssignedTo = append(rec.Access.AssignedTo, workflow.Assignment{
			User:       actor.ID,
			Role:       actor.Role,
			AssignedAt: now,
			Deadline:   &deadline,
		})
	}
}

// AddBlocker records an obstruction against the record.
func (s *Service) AddBlocker(ctx context.Context, recordID uuid.UUID, actor *auth.Identity, blockerType, reason string) (*MedicalRecord, error) {
	if actor == nil {
		return nil, workflow.NewUnauthorized()
	}
	if blockerType == "" {
		return nil, workflow.NewMissingField("blocker type")
	}
	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}

	rec.Workflow.Blockers = append(rec.Workflow.Blockers, workflow.Blocker{
		Type:      blockerType,
		Reason:    reason,
		BlockedBy: actor.ID,
		BlockedAt: s.clock().UTC(),
	})
	rec.UpdatedAt = s.clock().UTC()

	if err := s.records.Update(ctx, rec); err != nil {
		return nil, err
	}
	s.log.Info().
		Str("record_id", rec.ID.String()).
		Str("type", blockerType).
		Str("actor", actor.ID.String()).
		Msg("blocker added")
	return rec, nil
}

// ResolveBlocker resolves the oldest active blocker of the given type.
// History is untouched; the blocker entry itself records who resolved it.
func (s *Service) ResolveBlocker(ctx context.Context, recordID uuid.UUID, actor *auth.Identity, blockerType string) (*MedicalRecord, error) {
	if actor == nil {
		return nil, workflow.NewUnauthorized()
	}
	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}

	now := s.clock().UTC()
	resolved := false
	for i := range rec.Workflow.Blockers {
		b := &rec.Workflow.Blockers[i]
		if b.Active() && (blockerType == "" || b.Type == blockerType) {
			b.ResolvedBy = &actor.ID
			b.ResolvedAt = &now
			resolved = true
			break
		}
	}
	if !resolved {
		return nil, workflow.NewRecordNotFound("active blocker", blockerType)
	}
	rec.UpdatedAt = now

	if err := s.records.Update(ctx, rec); err != nil {
		return nil, err
	}
	s.log.Info().
		Str("record_id", rec.ID.String()).
		Str("type", blockerType).
		Str("actor", actor.ID.String()).
		Msg("blocker resolved")
	return rec, nil
}

// RecordsByStep returns records currently at the given step.
func (s *Service) RecordsByStep(ctx context.Context, step workflow.Step, limit, offset int) ([]*MedicalRecord, int, error) {
	return s.records.ListByStep(ctx, step, limit, offset)
}

// Statistics summarizes workflow state across all records. Read-only.
type Statistics struct {
	Total      int                   `json:"total"`
	ByStep     map[workflow.Step]int `json:"by_step"`
	ByPriority map[string]int        `json:"by_priority"`
	Completed  int                   `json:"completed"`
	Overdue    int                   `json:"overdue"`
}

// Statistics aggregates record counts by step, priority and overdue status.
func (s *Service) Statistics(ctx context.Context) (*Statistics, error) {
	byStep, err := s.records.CountByStep(ctx)
	if err != nil {
		return nil, err
	}
	byPriority, err := s.records.CountByPriority(ctx)
	if err != nil {
		return nil, err
	}
	_, overdue, err := s.records.ListOverdue(ctx, s.clock().UTC(), 1, 0)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{ByStep: byStep, ByPriority: byPriority, Overdue: overdue}
	for step, n := range byStep {
		stats.Total += n
		switch step {
		case workflow.StepFinalized, workflow.StepArchived, workflow.StepCancelled:
			stats.Completed += n
		}
	}
	return stats, nil
}

// Dashboard is a per-actor workflow summary. Read-only.
type Dashboard struct {
	AssignedToMe      []*MedicalRecord      `json:"assigned_to_me"`
	AssignedToMeTotal int                   `json:"assigned_to_me_total"`
	OwnedByMe         []*MedicalRecord      `json:"owned_by_me"`
	OwnedByMeTotal    int                   `json:"owned_by_me_total"`
	Overdue           []*MedicalRecord      `json:"overdue"`
	OverdueTotal      int                   `json:"overdue_total"`
	ByStep            map[workflow.Step]int `json:"by_step"`
}

// Dashboard gathers the actor's assigned and owned records together with the
// overdue queue and step counts.
func (s *Service) Dashboard(ctx context.Context, actor *auth.Identity, limit int) (*Dashboard, error) {
	if actor == nil {
		return nil, workflow.NewUnauthorized()
	}
	if limit <= 0 {
		limit = 20
	}

	assigned, assignedTotal, err := s.records.ListByAssignee(ctx, actor.ID, limit, 0)
	if err != nil {
		return nil, err
	}
	owned, ownedTotal, err := s.records.ListByOwner(ctx, actor.ID, limit, 0)
	if err != nil {
		return nil, err
	}
	overdue, overdueTotal, err := s.records.ListOverdue(ctx, s.clock().UTC(), limit, 0)
	if err != nil {
		return nil, err
	}
	byStep, err := s.records.CountByStep(ctx)
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		AssignedToMe:      assigned,
		AssignedToMeTotal: assignedTotal,
		OwnedByMe:         owned,
		OwnedByMeTotal:    ownedTotal,
		Overdue:           overdue,
		OverdueTotal:      overdueTotal,
		ByStep:            byStep,
	}, nil
}

// nextStepsFor flattens a step's outgoing edges into (target, roles) pairs,
// unioning roles across the actions that reach the same target.
func nextStepsFor(def *workflow.Definition, step workflow.Step) []workflow.NextStep {
	spec, ok := def.Steps[step]
	if !ok {
		return nil
	}

	roleSets := make(map[workflow.Step]map[auth.Role]bool)
	var order []workflow.Step
	for _, action := range spec.AllowedActions {
		for _, target := range spec.Transitions[action] {
			set, seen := roleSets[target]
			if !seen {
				set = make(map[auth.Role]bool)
				roleSets[target] = set
				order = append(order, target)
			}
			for _, role := range spec.AllowedRoles[action] {
				set[role] = true
			}
		}
	}

	out := make([]workflow.NextStep, 0, len(order))
	for _, target := range order {
		var roles []auth.Role
		for role := range roleSets[target] {
			roles = append(roles, role)
		}
		sortRoles(roles)
		out = append(out, workflow.NextStep{Step: target, AllowedRoles: roles})
	}
	return out
}

func sortRoles(roles []auth.Role) {
	for i := 1; i < len(roles); i++ {
		for j := i; j > 0 && roles[j] < roles[j-1]; j-- {
			roles[j], roles[j-1] = roles[j-1], roles[j]
		}
	}
}

func defaultPermissions() workflow.Permissions {
	return workflow.Permissions{
		CanRead: []auth.Role{
			auth.RoleAdmin, auth.RoleDoctor, auth.RoleNurse,
			auth.RoleBillingStaff, auth.RoleInsuranceStaff, auth.RoleReceptionist,
		},
		CanEdit: []auth.Role{auth.RoleAdmin, auth.RoleDoctor, auth.RoleNurse},
		CanApprove: []auth.Role{
			auth.RoleAdmin, auth.RoleDoctor, auth.RoleNurse,
			auth.RoleBillingStaff, auth.RoleInsuranceStaff,
		},
		CanReject: []auth.Role{
			auth.RoleAdmin, auth.RoleDoctor, auth.RoleNurse,
			auth.RoleBillingStaff, auth.RoleInsuranceStaff,
		},
	}
}

// newRecordNumber builds a human-readable record number like MR-20260115-7F3A2C.
func newRecordNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:6])
	return fmt.Sprintf("MR-%s-%s", now.Format("20060102"), suffix)
}
