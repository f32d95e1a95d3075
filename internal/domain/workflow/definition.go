package workflow

import (
	"fmt"

	"github.com/hms/hms/internal/platform/auth"
)

// StepSpec describes a single step of a workflow definition: the actions it
// accepts, the roles allowed per action, and the outgoing edges per action.
type StepSpec struct {
	AllowedActions []Action
	AllowedRoles   map[Action][]auth.Role
	Transitions    map[Action][]Step
}

// Definition is an immutable workflow graph loaded at startup.
type Definition struct {
	Name          string
	Module        string
	InitialStep   Step
	Steps         map[Step]StepSpec
	TerminalSteps map[Step]bool
}

// HasStep reports whether the step belongs to the definition.
func (d *Definition) HasStep(step Step) bool {
	_, ok := d.Steps[step]
	return ok
}

// Registry is the static catalog of named workflow definitions. Contents are
// fixed at construction; no runtime mutation API is exposed.
type Registry struct {
	defs map[string]*Definition
}

// NewRegistry builds a registry from the given definitions.
func NewRegistry(defs ...*Definition) *Registry {
	m := make(map[string]*Definition, len(defs))
	for _, d := range defs {
		m[d.Name] = d
	}
	return &Registry{defs: m}
}

// DefaultRegistry returns a registry holding the built-in workflows.
func DefaultRegistry() *Registry {
	return NewRegistry(MedicalRecordWorkflow())
}

// Get returns the named definition, or a WorkflowNotFound error.
func (r *Registry) Get(name string) (*Definition, error) {
	d, ok := r.defs[name]
	if !ok {
		return nil, NewWorkflowNotFound(name)
	}
	return d, nil
}

// InitialStep returns the entry step of the named workflow.
func (r *Registry) InitialStep(name string) (Step, error) {
	d, err := r.Get(name)
	if err != nil {
		return "", err
	}
	return d.InitialStep, nil
}

// IsTerminalStep reports whether the step is terminal in the named workflow.
// Unknown workflows and steps are not terminal.
func (r *Registry) IsTerminalStep(name string, step Step) bool {
	d, ok := r.defs[name]
	if !ok {
		return false
	}
	return d.TerminalSteps[step]
}

// NextSteps returns the steps reachable from the given step via the given
// action. May return more than one candidate; ambiguity is resolved by
// DetermineNextStep. Unknown names yield nil.
func (r *Registry) NextSteps(name string, from Step, action Action) []Step {
	d, ok := r.defs[name]
	if !ok {
		return nil
	}
	spec, ok := d.Steps[from]
	if !ok {
		return nil
	}
	return spec.Transitions[action]
}

// Names returns the registered workflow names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	return names
}

// Validate checks structural soundness of every definition: the initial step
// must exist, every transition must target a defined step, and terminal steps
// must have no outgoing edges.
func (r *Registry) Validate() error {
	for name, d := range r.defs {
		if !d.HasStep(d.InitialStep) {
			return fmt.Errorf("workflow %s: initial step %q is not defined", name, d.InitialStep)
		}
		for step, spec := range d.Steps {
			if d.TerminalSteps[step] && len(spec.Transitions) > 0 {
				return fmt.Errorf("workflow %s: terminal step %q has outgoing transitions", name, step)
			}
			for action, targets := range spec.Transitions {
				for _, target := range targets {
					if !d.HasStep(target) {
						return fmt.Errorf("workflow %s: step %q action %q targets undefined step %q",
							name, step, action, target)
					}
				}
			}
		}
	}
	return nil
}

// MedicalRecordWorkflowName identifies the built-in clinical record workflow.
const MedicalRecordWorkflowName = "medical_record"

// MedicalRecordWorkflow returns the clinical record approval chain:
// draft -> doctor_review -> nurse_verify -> billing_review ->
// insurance_process -> finalized -> archived, with cancel and archive
// reachable from every non-terminal step. Each (step, action) pair maps to a
// single next step, so transitions resolve without tie-breaking.
func MedicalRecordWorkflow() *Definition {
	clinical := []auth.Role{auth.RoleDoctor, auth.RoleNurse, auth.RoleAdmin}
	adminOnly := []auth.Role{auth.RoleAdmin}

	steps := map[Step]StepSpec{
		StepDraft: {
			AllowedActions: []Action{ActionAdvance, ActionSubmit, ActionCancel, ActionArchive},
			AllowedRoles: map[Action][]auth.Role{
				ActionAdvance: {auth.RoleDoctor, auth.RoleReceptionist, auth.RoleAdmin},
				ActionSubmit:  {auth.RoleDoctor, auth.RoleReceptionist, auth.RoleAdmin},
				ActionCancel:  {auth.RoleDoctor, auth.RoleAdmin},
				ActionArchive: adminOnly,
			},
			Transitions: map[Action][]Step{
				ActionAdvance: {StepDoctorReview},
				ActionSubmit:  {StepDoctorReview},
				ActionCancel:  {StepCancelled},
				ActionArchive: {StepArchived},
			},
		},
		StepDoctorReview: {
			AllowedActions: []Action{ActionAdvance, ActionApprove, ActionReject, ActionRevise, ActionCancel, ActionArchive},
			AllowedRoles: map[Action][]auth.Role{
				ActionAdvance: {auth.RoleDoctor, auth.RoleAdmin},
				ActionApprove: {auth.RoleDoctor, auth.RoleAdmin},
				ActionReject:  {auth.RoleDoctor, auth.RoleAdmin},
				ActionRevise:  {auth.RoleDoctor, auth.RoleAdmin},
				ActionCancel:  {auth.RoleDoctor, auth.RoleAdmin},
				ActionArchive: adminOnly,
			},
			Transitions: map[Action][]Step{
				ActionAdvance: {StepNurseVerify},
				ActionApprove: {StepNurseVerify},
				ActionReject:  {StepDraft},
				ActionRevise:  {StepDraft},
				ActionCancel:  {StepCancelled},
				ActionArchive: {StepArchived},
			},
		},
		StepNurseVerify: {
			AllowedActions: []Action{ActionAdvance, ActionApprove, ActionReject, ActionCancel, ActionArchive},
			AllowedRoles: map[Action][]auth.Role{
				ActionAdvance: {auth.RoleNurse, auth.RoleAdmin},
				ActionApprove: {auth.RoleNurse, auth.RoleAdmin},
				ActionReject:  {auth.RoleNurse, auth.RoleAdmin},
				ActionCancel:  clinical,
				ActionArchive: adminOnly,
			},
			Transitions: map[Action][]Step{
				ActionAdvance: {StepBillingReview},
				ActionApprove: {StepBillingReview},
				ActionReject:  {StepDoctorReview},
				ActionCancel:  {StepCancelled},
				ActionArchive: {StepArchived},
			},
		},
		StepBillingReview: {
			AllowedActions: []Action{ActionAdvance, ActionApprove, ActionReject, ActionCancel, ActionArchive},
			AllowedRoles: map[Action][]auth.Role{
				ActionAdvance: {auth.RoleBillingStaff, auth.RoleAdmin},
				ActionApprove: {auth.RoleBillingStaff, auth.RoleAdmin},
				ActionReject:  {auth.RoleBillingStaff, auth.RoleAdmin},
				ActionCancel:  {auth.RoleBillingStaff, auth.RoleAdmin},
				ActionArchive: adminOnly,
			},
			Transitions: map[Action][]Step{
				ActionAdvance: {StepInsuranceProcess},
				ActionApprove: {StepInsuranceProcess},
				ActionReject:  {StepNurseVerify},
				ActionCancel:  {StepCancelled},
				ActionArchive: {StepArchived},
			},
		},
		StepInsuranceProcess: {
			AllowedActions: []Action{ActionAdvance, ActionFinalize, ActionReject, ActionCancel, ActionArchive},
			AllowedRoles: map[Action][]auth.Role{
				ActionAdvance:  {auth.RoleInsuranceStaff, auth.RoleAdmin},
				ActionFinalize: {auth.RoleInsuranceStaff, auth.RoleAdmin},
				ActionReject:   {auth.RoleInsuranceStaff, auth.RoleAdmin},
				ActionCancel:   {auth.RoleInsuranceStaff, auth.RoleAdmin},
				ActionArchive:  adminOnly,
			},
			Transitions: map[Action][]Step{
				ActionAdvance:  {StepFinalized},
				ActionFinalize: {StepFinalized},
				ActionReject:   {StepBillingReview},
				ActionCancel:   {StepCancelled},
				ActionArchive:  {StepArchived},
			},
		},
		// Terminal steps carry no outgoing transitions.
		StepFinalized: {},
		StepArchived:  {},
		StepCancelled: {},
	}

	return &Definition{
		Name:        MedicalRecordWorkflowName,
		Module:      "medical_records",
		InitialStep: StepDraft,
		Steps:       steps,
		TerminalSteps: map[Step]bool{
			StepFinalized: true,
			StepArchived:  true,
			StepCancelled: true,
		},
	}
}
