package workflow

import (
	"testing"

	"github.com/hms/hms/internal/platform/auth"
)

func TestCanPerformAction(t *testing.T) {
	r := DefaultRegistry()
	wf := MedicalRecordWorkflowName

	tests := []struct {
		name   string
		role   auth.Role
		step   Step
		action Action
		want   bool
	}{
		{"doctor submits draft", auth.RoleDoctor, StepDraft, ActionSubmit, true},
		{"receptionist submits draft", auth.RoleReceptionist, StepDraft, ActionSubmit, true},
		{"nurse submits draft", auth.RoleNurse, StepDraft, ActionSubmit, false},
		{"doctor approves own review", auth.RoleDoctor, StepDoctorReview, ActionApprove, true},
		{"nurse approves doctor review", auth.RoleNurse, StepDoctorReview, ActionApprove, false},
		{"nurse approves verification", auth.RoleNurse, StepNurseVerify, ActionApprove, true},
		{"billing advances billing review", auth.RoleBillingStaff, StepBillingReview, ActionAdvance, true},
		{"insurance finalizes", auth.RoleInsuranceStaff, StepInsuranceProcess, ActionFinalize, true},
		{"billing finalizes", auth.RoleBillingStaff, StepInsuranceProcess, ActionFinalize, false},
		{"admin archives from draft", auth.RoleAdmin, StepDraft, ActionArchive, true},
		{"doctor archives from draft", auth.RoleDoctor, StepDraft, ActionArchive, false},
		{"patient does anything", auth.RolePatient, StepDraft, ActionSubmit, false},
		{"action on terminal step", auth.RoleAdmin, StepFinalized, ActionArchive, false},
		{"unknown workflow fails closed", auth.RoleAdmin, StepDraft, ActionSubmit, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name := wf
			if tt.name == "unknown workflow fails closed" {
				name = "no_such_workflow"
			}
			if got := r.CanPerformAction(tt.role, name, tt.step, tt.action); got != tt.want {
				t.Errorf("CanPerformAction(%s, %s, %s) = %v, want %v", tt.role, tt.step, tt.action, got, tt.want)
			}
		})
	}
}

func TestIsValidTransition(t *testing.T) {
	r := DefaultRegistry()
	wf := MedicalRecordWorkflowName

	if !r.IsValidTransition(wf, StepDraft, StepDoctorReview, ActionSubmit) {
		t.Error("draft -> doctor_review via submit should be valid")
	}
	if r.IsValidTransition(wf, StepDraft, StepFinalized, ActionSubmit) {
		t.Error("draft -> finalized should not be valid")
	}
	if r.IsValidTransition(wf, StepFinalized, StepArchived, ActionArchive) {
		t.Error("finalized is terminal; no outgoing edges")
	}
	if r.IsValidTransition(wf, StepDoctorReview, StepNurseVerify, ActionReject) {
		t.Error("reject from doctor_review goes to draft, not nurse_verify")
	}
}

func TestDetermineNextStep(t *testing.T) {
	tests := []struct {
		name       string
		candidates []Step
		action     Action
		actionData map[string]interface{}
		want       Step
	}{
		{"no candidates", nil, ActionSubmit, nil, ""},
		{"single candidate wins outright", []Step{StepDoctorReview}, ActionReject, nil, StepDoctorReview},
		{"canonical approve", []Step{StepRejected, StepApproved}, ActionApprove, nil, StepApproved},
		{"canonical reject", []Step{StepApproved, StepRejected}, ActionReject, nil, StepRejected},
		{"canonical finalize", []Step{StepArchived, StepFinalized}, ActionFinalize, nil, StepFinalized},
		{"revise default", []Step{StepDraft, StepRevisionRequired}, ActionRevise, nil, StepRevisionRequired},
		{"revise back to draft", []Step{StepDraft, StepRevisionRequired}, ActionRevise,
			map[string]interface{}{"backToDraft": true}, StepDraft},
		{"no canonical match falls back to first", []Step{StepNurseVerify, StepBillingReview}, ActionAdvance, nil, StepNurseVerify},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetermineNextStep(tt.candidates, tt.action, tt.actionData); got != tt.want {
				t.Errorf("DetermineNextStep() = %q, want %q", got, tt.want)
			}
		})
	}
}
