package workflow

import (
	"testing"

	"github.com/hms/hms/internal/platform/auth"
)

func TestDefaultRegistry_Validates(t *testing.T) {
	r := DefaultRegistry()
	if err := r.Validate(); err != nil {
		t.Fatalf("built-in definitions should validate: %v", err)
	}
}

func TestRegistry_Get(t *testing.T) {
	r := DefaultRegistry()

	def, err := r.Get(MedicalRecordWorkflowName)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.InitialStep != StepDraft {
		t.Errorf("expected initial step draft, got %s", def.InitialStep)
	}

	_, err = r.Get("no_such_workflow")
	if !IsOutcome(err, OutcomeWorkflowNotFound) {
		t.Errorf("expected workflow_not_found, got %v", err)
	}
}

func TestRegistry_InitialStep(t *testing.T) {
	r := DefaultRegistry()
	step, err := r.InitialStep(MedicalRecordWorkflowName)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if step != StepDraft {
		t.Errorf("expected draft, got %s", step)
	}
}

func TestRegistry_TerminalSteps(t *testing.T) {
	r := DefaultRegistry()

	for _, step := range []Step{StepFinalized, StepArchived, StepCancelled} {
		if !r.IsTerminalStep(MedicalRecordWorkflowName, step) {
			t.Errorf("expected %s to be terminal", step)
		}
	}
	for _, step := range []Step{StepDraft, StepDoctorReview, StepNurseVerify, StepBillingReview, StepInsuranceProcess} {
		if r.IsTerminalStep(MedicalRecordWorkflowName, step) {
			t.Errorf("did not expect %s to be terminal", step)
		}
	}
	if r.IsTerminalStep("no_such_workflow", StepFinalized) {
		t.Error("unknown workflow should not report terminal steps")
	}
}

func TestMedicalRecordWorkflow_ApprovalChain(t *testing.T) {
	r := DefaultRegistry()

	chain := []struct {
		from Step
		to   Step
	}{
		{StepDraft, StepDoctorReview},
		{StepDoctorReview, StepNurseVerify},
		{StepNurseVerify, StepBillingReview},
		{StepBillingReview, StepInsuranceProcess},
		{StepInsuranceProcess, StepFinalized},
	}
	for _, link := range chain {
		steps := r.NextSteps(MedicalRecordWorkflowName, link.from, ActionAdvance)
		if len(steps) != 1 || steps[0] != link.to {
			t.Errorf("advance from %s: expected [%s], got %v", link.from, link.to, steps)
		}
	}
}

func TestMedicalRecordWorkflow_CancelFromEveryOpenStep(t *testing.T) {
	r := DefaultRegistry()

	open := []Step{StepDraft, StepDoctorReview, StepNurseVerify, StepBillingReview, StepInsuranceProcess}
	for _, step := range open {
		if !r.IsValidTransition(MedicalRecordWorkflowName, step, StepCancelled, ActionCancel) {
			t.Errorf("cancel should be reachable from %s", step)
		}
		if !r.IsValidTransition(MedicalRecordWorkflowName, step, StepArchived, ActionArchive) {
			t.Errorf("archive should be reachable from %s", step)
		}
	}
}

func TestMedicalRecordWorkflow_TerminalClosure(t *testing.T) {
	def := MedicalRecordWorkflow()

	for step := range def.TerminalSteps {
		spec := def.Steps[step]
		if len(spec.Transitions) != 0 {
			t.Errorf("terminal step %s has outgoing transitions", step)
		}
		if len(spec.AllowedActions) != 0 {
			t.Errorf("terminal step %s accepts actions", step)
		}
	}
}

func TestMedicalRecordWorkflow_RejectGoesBackwards(t *testing.T) {
	r := DefaultRegistry()

	backward := []struct {
		from Step
		to   Step
	}{
		{StepDoctorReview, StepDraft},
		{StepNurseVerify, StepDoctorReview},
		{StepBillingReview, StepNurseVerify},
		{StepInsuranceProcess, StepBillingReview},
	}
	for _, link := range backward {
		if !r.IsValidTransition(MedicalRecordWorkflowName, link.from, link.to, ActionReject) {
			t.Errorf("reject from %s should reach %s", link.from, link.to)
		}
	}
}

func TestRegistry_Validate_RejectsBrokenDefinitions(t *testing.T) {
	missingInitial := &Definition{
		Name:        "broken",
		InitialStep: "nowhere",
		Steps:       map[Step]StepSpec{StepDraft: {}},
	}
	if err := NewRegistry(missingInitial).Validate(); err == nil {
		t.Error("expected error for undefined initial step")
	}

	danglingEdge := &Definition{
		Name:        "broken",
		InitialStep: StepDraft,
		Steps: map[Step]StepSpec{
			StepDraft: {
				AllowedActions: []Action{ActionSubmit},
				AllowedRoles:   map[Action][]auth.Role{ActionSubmit: {auth.RoleAdmin}},
				Transitions:    map[Action][]Step{ActionSubmit: {"nowhere"}},
			},
		},
	}
	if err := NewRegistry(danglingEdge).Validate(); err == nil {
		t.Error("expected error for transition to undefined step")
	}

	leakyTerminal := &Definition{
		Name:        "broken",
		InitialStep: StepDraft,
		Steps: map[Step]StepSpec{
			StepDraft: {},
			StepFinalized: {
				Transitions: map[Action][]Step{ActionArchive: {StepDraft}},
			},
		},
		TerminalSteps: map[Step]bool{StepFinalized: true},
	}
	if err := NewRegistry(leakyTerminal).Validate(); err == nil {
		t.Error("expected error for terminal step with outgoing transitions")
	}
}
