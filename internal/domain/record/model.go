package record

import (
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/workflow"
	"github.com/hms/hms/internal/platform/auth"
)

// Medication is one ordered medication in a treatment plan.
type Medication struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage,omitempty"`
	Frequency string `json:"frequency,omitempty"`
	Duration  string `json:"duration,omitempty"`
}

// Procedure is one planned procedure in a treatment plan.
type Procedure struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// TreatmentPlan holds the billable content of a record.
type TreatmentPlan struct {
	Medications []Medication `json:"medications,omitempty"`
	Procedures  []Procedure  `json:"procedures,omitempty"`
	Notes       string       `json:"notes,omitempty"`
}

// Diagnosis is a coded diagnosis attached to a record.
type Diagnosis struct {
	ICD10Code   string `json:"icd10_code"`
	Description string `json:"description,omitempty"`
	Primary     bool   `json:"primary,omitempty"`
}

// ElectronicSignature attests that a clinician signed off on the record.
type ElectronicSignature struct {
	SignedBy   uuid.UUID `json:"signed_by"`
	SignedName string    `json:"signed_name,omitempty"`
	SignedAt   time.Time `json:"signed_at"`
}

var validPriorities = map[string]bool{
	"routine": true,
	"urgent":  true,
	"stat":    true,
}

// MedicalRecord is the workflowable clinical record. Its Workflow and Access
// blocks are mutated only through the record service; VersionID is the
// optimistic concurrency token checked on every save.
type MedicalRecord struct {
	ID           uuid.UUID `json:"id" db:"id"`
	PatientID    uuid.UUID `json:"patient_id" db:"patient_id"`
	RecordNumber string    `json:"record_number" db:"record_number"`
	Priority     string    `json:"priority" db:"priority"`

	ChiefComplaint     *string              `json:"chief_complaint,omitempty"`
	ClinicalImpression *string              `json:"clinical_impression,omitempty"`
	TreatmentPlan      TreatmentPlan        `json:"treatment_plan"`
	Diagnoses          []Diagnosis          `json:"diagnoses,omitempty"`
	Signature          *ElectronicSignature `json:"electronic_signature,omitempty"`

	Workflow workflow.Status        `json:"workflow_status"`
	Access   workflow.AccessControl `json:"access_control"`

	VersionID int       `json:"version_id" db:"version_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// GetVersionID returns the current version.
func (r *MedicalRecord) GetVersionID() int { return r.VersionID }

// SetVersionID sets the current version.
func (r *MedicalRecord) SetVersionID(v int) { r.VersionID = v }

// HasChiefComplaint implements workflow.ClinicalContent.
func (r *MedicalRecord) HasChiefComplaint() bool {
	return r.ChiefComplaint != nil && *r.ChiefComplaint != ""
}

// HasClinicalImpression implements workflow.ClinicalContent.
func (r *MedicalRecord) HasClinicalImpression() bool {
	return r.ClinicalImpression != nil && *r.ClinicalImpression != ""
}

// TreatmentItemCount implements workflow.ClinicalContent.
func (r *MedicalRecord) TreatmentItemCount() int {
	return len(r.TreatmentPlan.Medications) + len(r.TreatmentPlan.Procedures)
}

// DiagnosisCodeCount implements workflow.ClinicalContent.
func (r *MedicalRecord) DiagnosisCodeCount() int {
	n := 0
	for i := range r.Diagnoses {
		if r.Diagnoses[i].ICD10Code != "" {
			n++
		}
	}
	return n
}

// HasElectronicSignature implements workflow.ClinicalContent.
func (r *MedicalRecord) HasElectronicSignature() bool {
	return r.Signature != nil && r.Signature.SignedBy != uuid.Nil
}

// CanUserPerformAction checks the record's coarse permission sets for the
// actor's role. Owners and admins always pass; approve and reject consult
// their dedicated role sets, everything else falls under edit.
func (r *MedicalRecord) CanUserPerformAction(actor *auth.Identity, action workflow.Action) bool {
	if actor == nil {
		return false
	}
	if actor.IsAdmin() || r.Access.IsOwner(actor.ID) {
		return true
	}
	var allowed []auth.Role
	switch action {
	case workflow.ActionApprove, workflow.ActionFinalize:
		allowed = r.Access.Permissions.CanApprove
	case workflow.ActionReject:
		allowed = r.Access.Permissions.CanReject
	default:
		allowed = r.Access.Permissions.CanEdit
	}
	for _, role := range allowed {
		if role == actor.Role {
			return true
		}
	}
	return false
}
