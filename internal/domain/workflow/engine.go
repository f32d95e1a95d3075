package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/auth"
)

// storeError keeps typed outcomes from the instance store (version conflicts
// in particular) intact and downgrades everything else to an internal error.
func storeError(err error) error {
	var wfErr *Error
	if errors.As(err, &wfErr) {
		return err
	}
	return NewInternal(err)
}

// Engine orchestrates generic workflow instances: it owns no state itself and
// takes its registry, instance store, audit sink and clock as explicit
// dependencies so independent instances can be built for tests.
type Engine struct {
	registry  *Registry
	instances InstanceRepository
	audit     AuditSink
	clock     func() time.Time
	log       zerolog.Logger
}

// EngineOption configures optional Engine dependencies.
type EngineOption func(*Engine)

// WithEngineClock overrides the engine's time source.
func WithEngineClock(clock func() time.Time) EngineOption {
	return func(e *Engine) { e.clock = clock }
}

// WithEngineAudit attaches an audit sink.
func WithEngineAudit(sink AuditSink) EngineOption {
	return func(e *Engine) { e.audit = sink }
}

// WithEngineLogger attaches a logger.
func WithEngineLogger(log zerolog.Logger) EngineOption {
	return func(e *Engine) { e.log = log }
}

// NewEngine creates an orchestrator over the given registry and instance
// store.
func NewEngine(registry *Registry, instances InstanceRepository, opts ...EngineOption) *Engine {
	e := &Engine{
		registry:  registry,
		instances: instances,
		audit:     NopAuditSink{},
		clock:     time.Now,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the engine's workflow catalog.
func (e *Engine) Registry() *Registry { return e.registry }

// Initialize creates an instance of the named workflow at its initial step,
// seeded with a single "initialize" history entry.
func (e *Engine) Initialize(ctx context.Context, workflowName, entityID string, actor *auth.Identity) (*Instance, error) {
	if actor == nil {
		return nil, NewUnauthorized()
	}
	def, err := e.registry.Get(workflowName)
	if err != nil {
		return nil, err
	}

	now := e.clock().UTC()
	in := &Instance{
		ID:           uuid.New(),
		WorkflowName: workflowName,
		EntityID:     entityID,
		CurrentStep:  def.InitialStep,
		State:        InstanceActive,
		History: []StepHistoryEntry{{
			Step:        def.InitialStep,
			PerformedBy: actor.ID,
			PerformedAt: now,
			Action:      ActionInitialize,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.instances.Put(ctx, in); err != nil {
		return nil, storeError(err)
	}

	e.log.Info().
		Str("workflow", workflowName).
		Str("instance_id", in.ID.String()).
		Str("entity_id", entityID).
		Msg("workflow initialized")
	return in, nil
}

// Get loads an instance by ID.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*Instance, error) {
	return e.instances.Get(ctx, id)
}

// List returns instances of the named workflow, newest first.
func (e *Engine) List(ctx context.Context, workflowName string, limit, offset int) ([]*Instance, int, error) {
	return e.instances.ListByWorkflow(ctx, workflowName, limit, offset)
}

// ExecuteAction performs one transition as a single logical operation: load,
// permission check, next-step resolution, edge validation, commit. No partial
// application is observable; the stored instance changes only when every
// check has passed and the store write succeeds.
func (e *Engine) ExecuteAction(ctx context.Context, id uuid.UUID, action Action, actor *auth.Identity, actionData map[string]interface{}) (*Instance, error) {
	if actor == nil {
		return nil, NewUnauthorized()
	}
	if action == "" {
		return nil, NewMissingField("action")
	}

	in, err := e.instances.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.State == InstanceCompleted {
		return nil, NewInvalidTransition(in.CurrentStep, "", action)
	}

	if !e.registry.CanPerformAction(actor.Role, in.WorkflowName, in.CurrentStep, action) {
		return nil, NewPermissionDenied(
			"role " + string(actor.Role) + " may not " + string(action) + " from step " + string(in.CurrentStep))
	}

	candidates := e.registry.NextSteps(in.WorkflowName, in.CurrentStep, action)
	next := DetermineNextStep(candidates, action, actionData)
	if next == "" || !e.registry.IsValidTransition(in.WorkflowName, in.CurrentStep, next, action) {
		return nil, NewInvalidTransition(in.CurrentStep, next, action)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := e.clock().UTC()
	comments, _ := actionData["comments"].(string)
	updated := in.clone()
	updated.History = append(updated.History, StepHistoryEntry{
		Step:         next,
		PreviousStep: in.CurrentStep,
		PerformedBy:  actor.ID,
		PerformedAt:  now,
		Action:       action,
		Comments:     comments,
		Metadata:     actionData,
	})
	updated.CurrentStep = next
	updated.UpdatedAt = now
	if e.registry.IsTerminalStep(in.WorkflowName, next) {
		updated.State = InstanceCompleted
		updated.CompletedAt = &now
	}

	if err := e.instances.Put(ctx, updated); err != nil {
		return nil, storeError(err)
	}

	// The transition has committed; an audit failure is logged and swallowed.
	ev := &TransitionEvent{
		EntityType:    "workflow_instance",
		EntityID:      updated.EntityID,
		WorkflowName:  updated.WorkflowName,
		FromStep:      in.CurrentStep,
		ToStep:        next,
		Action:        action,
		PerformedBy:   actor.ID,
		PerformedName: actor.Name,
		PerformedRole: actor.Role,
		PerformedAt:   now,
		Comments:      comments,
	}
	if err := e.audit.LogTransition(ctx, ev); err != nil {
		e.log.Warn().Err(err).
			Str("instance_id", updated.ID.String()).
			Msg("audit append failed after committed transition")
	}

	e.log.Info().
		Str("workflow", updated.WorkflowName).
		Str("instance_id", updated.ID.String()).
		Str("from", string(in.CurrentStep)).
		Str("to", string(next)).
		Str("action", string(action)).
		Str("actor", actor.ID.String()).
		Msg("workflow transition")
	return updated, nil
}
