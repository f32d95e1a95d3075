package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/auth"
)

// recordingSink captures transition events and can be told to fail.
type recordingSink struct {
	events []*TransitionEvent
	err    error
}

func (s *recordingSink) LogTransition(_ context.Context, ev *TransitionEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func testEngine(t *testing.T, opts ...EngineOption) (*Engine, *MemoryInstanceStore) {
	t.Helper()
	store := NewMemoryInstanceStore(time.Hour, 0)
	t.Cleanup(store.Close)
	return NewEngine(DefaultRegistry(), store, opts...), store
}

func doctor() *auth.Identity {
	return &auth.Identity{ID: uuid.New(), Name: "Dr. Chen", Role: auth.RoleDoctor}
}

func TestEngine_Initialize(t *testing.T) {
	e, _ := testEngine(t)
	actor := doctor()

	in, err := e.Initialize(context.Background(), MedicalRecordWorkflowName, "record-1", actor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.CurrentStep != StepDraft {
		t.Errorf("expected draft, got %s", in.CurrentStep)
	}
	if in.State != InstanceActive {
		t.Errorf("expected active, got %s", in.State)
	}
	if len(in.History) != 1 || in.History[0].Action != ActionInitialize {
		t.Errorf("expected one initialize history entry, got %+v", in.History)
	}
}

func TestEngine_Initialize_UnknownWorkflow(t *testing.T) {
	e, _ := testEngine(t)
	_, err := e.Initialize(context.Background(), "no_such_workflow", "record-1", doctor())
	if !IsOutcome(err, OutcomeWorkflowNotFound) {
		t.Errorf("expected workflow_not_found, got %v", err)
	}
}

func TestEngine_Initialize_RequiresActor(t *testing.T) {
	e, _ := testEngine(t)
	_, err := e.Initialize(context.Background(), MedicalRecordWorkflowName, "record-1", nil)
	if !IsOutcome(err, OutcomeUnauthorized) {
		t.Errorf("expected unauthorized, got %v", err)
	}
}

func TestEngine_ExecuteAction_HappyPath(t *testing.T) {
	sink := &recordingSink{}
	e, _ := testEngine(t, WithEngineAudit(sink))
	ctx := context.Background()
	actor := doctor()

	in, err := e.Initialize(ctx, MedicalRecordWorkflowName, "record-1", actor)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	out, err := e.ExecuteAction(ctx, in.ID, ActionSubmit, actor, map[string]interface{}{"comments": "ready"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.CurrentStep != StepDoctorReview {
		t.Errorf("expected doctor_review, got %s", out.CurrentStep)
	}
	if len(out.History) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(out.History))
	}
	last := out.History[len(out.History)-1]
	if last.PreviousStep != StepDraft || last.Step != StepDoctorReview || last.Comments != "ready" {
		t.Errorf("unexpected history entry: %+v", last)
	}

	if len(sink.events) != 1 {
		t.Fatalf("expected 1 audit event, got %d", len(sink.events))
	}
	ev := sink.events[0]
	if ev.FromStep != StepDraft || ev.ToStep != StepDoctorReview || ev.Action != ActionSubmit {
		t.Errorf("unexpected audit event: %+v", ev)
	}
}

func TestEngine_ExecuteAction_PermissionDenied(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()

	in, err := e.Initialize(ctx, MedicalRecordWorkflowName, "record-1", doctor())
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	nurse := &auth.Identity{ID: uuid.New(), Role: auth.RoleNurse}
	_, err = e.ExecuteAction(ctx, in.ID, ActionSubmit, nurse, nil)
	if !IsOutcome(err, OutcomePermissionDenied) {
		t.Errorf("expected permission_denied, got %v", err)
	}

	// Failed action must not have advanced the stored instance.
	stored, err := e.Get(ctx, in.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.CurrentStep != StepDraft || len(stored.History) != 1 {
		t.Errorf("stored instance changed after denied action: %+v", stored)
	}
}

func TestEngine_ExecuteAction_CompletedInstance(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	admin := &auth.Identity{ID: uuid.New(), Role: auth.RoleAdmin}

	in, err := e.Initialize(ctx, MedicalRecordWorkflowName, "record-1", admin)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	done, err := e.ExecuteAction(ctx, in.ID, ActionCancel, admin, nil)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if done.State != InstanceCompleted || done.CompletedAt == nil {
		t.Fatalf("cancel should complete the instance: %+v", done)
	}

	_, err = e.ExecuteAction(ctx, in.ID, ActionSubmit, admin, nil)
	if !IsOutcome(err, OutcomeInvalidTransition) {
		t.Errorf("expected invalid_transition on completed instance, got %v", err)
	}
}

func TestEngine_ExecuteAction_AuditFailureIsSwallowed(t *testing.T) {
	sink := &recordingSink{err: errors.New("audit store down")}
	e, _ := testEngine(t, WithEngineAudit(sink))
	ctx := context.Background()
	actor := doctor()

	in, err := e.Initialize(ctx, MedicalRecordWorkflowName, "record-1", actor)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	out, err := e.ExecuteAction(ctx, in.ID, ActionSubmit, actor, nil)
	if err != nil {
		t.Fatalf("transition must commit despite audit failure: %v", err)
	}
	if out.CurrentStep != StepDoctorReview {
		t.Errorf("expected doctor_review, got %s", out.CurrentStep)
	}

	stored, err := e.Get(ctx, in.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.CurrentStep != StepDoctorReview {
		t.Error("committed transition must survive audit failure")
	}
}

func TestEngine_ExecuteAction_MissingAction(t *testing.T) {
	e, _ := testEngine(t)
	_, err := e.ExecuteAction(context.Background(), uuid.New(), "", doctor(), nil)
	if !IsOutcome(err, OutcomeMissingField) {
		t.Errorf("expected missing_field, got %v", err)
	}
}

func TestEngine_ExecuteAction_CancelledContext(t *testing.T) {
	e, _ := testEngine(t)
	actor := doctor()

	in, err := e.Initialize(context.Background(), MedicalRecordWorkflowName, "record-1", actor)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.ExecuteAction(ctx, in.ID, ActionSubmit, actor, nil); err == nil {
		t.Error("expected error with cancelled context")
	}
}

func TestEngine_List(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	actor := doctor()

	for i := 0; i < 3; i++ {
		if _, err := e.Initialize(ctx, MedicalRecordWorkflowName, "record", actor); err != nil {
			t.Fatalf("initialize: %v", err)
		}
	}

	items, total, err := e.List(ctx, MedicalRecordWorkflowName, 2, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 {
		t.Errorf("expected total 3, got %d", total)
	}
	if len(items) != 2 {
		t.Errorf("expected page of 2, got %d", len(items))
	}
}

func TestEngine_HistoryIsMonotonic(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	admin := &auth.Identity{ID: uuid.New(), Role: auth.RoleAdmin}

	in, err := e.Initialize(ctx, MedicalRecordWorkflowName, "record-1", admin)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	steps := []Action{ActionSubmit, ActionApprove, ActionApprove, ActionApprove, ActionFinalize}
	for i, action := range steps {
		out, err := e.ExecuteAction(ctx, in.ID, action, admin, nil)
		if err != nil {
			t.Fatalf("step %d (%s): %v", i, action, err)
		}
		if len(out.History) != i+2 {
			t.Fatalf("step %d: history length %d, want %d", i, len(out.History), i+2)
		}
	}

	final, err := e.Get(ctx, in.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.CurrentStep != StepFinalized || final.State != InstanceCompleted {
		t.Errorf("expected finalized/completed, got %s/%s", final.CurrentStep, final.State)
	}
}

// staleReadStore serves a fixed stale snapshot from Get, standing in for a
// second caller that loaded the instance before a concurrent transition
// committed.
type staleReadStore struct {
	*MemoryInstanceStore
	stale *Instance
}

func (s *staleReadStore) Get(ctx context.Context, id uuid.UUID) (*Instance, error) {
	if s.stale != nil && s.stale.ID == id {
		return s.stale.clone(), nil
	}
	return s.MemoryInstanceStore.Get(ctx, id)
}

func TestEngine_ExecuteAction_ConcurrentTransitionConflict(t *testing.T) {
	store := &staleReadStore{MemoryInstanceStore: NewMemoryInstanceStore(time.Hour, 0)}
	t.Cleanup(store.Close)
	e := NewEngine(DefaultRegistry(), store)
	ctx := context.Background()
	actor := doctor()

	in, err := e.Initialize(ctx, MedicalRecordWorkflowName, "record-1", actor)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	snapshot, err := store.MemoryInstanceStore.Get(ctx, in.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	// The first caller's transition commits.
	if _, err := e.ExecuteAction(ctx, in.ID, ActionSubmit, actor, nil); err != nil {
		t.Fatalf("execute: %v", err)
	}

	// The second caller acts on the read it took before that commit: its
	// write must fail instead of silently dropping the first append.
	store.stale = snapshot
	_, err = e.ExecuteAction(ctx, in.ID, ActionSubmit, actor, nil)
	if !IsOutcome(err, OutcomeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	store.stale = nil
	stored, err := store.MemoryInstanceStore.Get(ctx, in.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.CurrentStep != StepDoctorReview {
		t.Errorf("committed step was overwritten: %s", stored.CurrentStep)
	}
	if len(stored.History) != 2 {
		t.Errorf("expected 2 history entries, got %d", len(stored.History))
	}
	if stored.Version != 2 {
		t.Errorf("expected version 2, got %d", stored.Version)
	}
}
