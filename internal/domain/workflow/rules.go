package workflow

// ClinicalContent exposes the clinical facts a record must satisfy before
// entering a given step. Implemented by the medical record model; keeping an
// interface here lets the rules be evaluated without importing the record
// package.
type ClinicalContent interface {
	HasChiefComplaint() bool
	HasClinicalImpression() bool
	TreatmentItemCount() int
	DiagnosisCodeCount() int
	HasElectronicSignature() bool
}

// RuleResult is the outcome of a business rule check. Message is set only
// when the rule failed.
type RuleResult struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

// ValidateBusinessRules evaluates the content-based precondition for entering
// the target step. Steps without a rule are unconditionally valid. The check
// never mutates state; a failing result is advisory and the caller must
// reject the transition without committing.
func ValidateBusinessRules(content ClinicalContent, target Step) RuleResult {
	switch target {
	case StepDoctorReview:
		if !content.HasChiefComplaint() {
			return RuleResult{Message: "Chief complaint is required before doctor review"}
		}
	case StepNurseVerify:
		if !content.HasClinicalImpression() {
			return RuleResult{Message: "Doctor assessment is required before nurse verification"}
		}
	case StepBillingReview:
		if content.TreatmentItemCount() == 0 {
			return RuleResult{Message: "Treatment plan with medications or procedures is required for billing"}
		}
	case StepInsuranceProcess:
		if content.DiagnosisCodeCount() == 0 {
			return RuleResult{Message: "ICD-10 diagnostic codes are required for insurance processing"}
		}
	case StepFinalized:
		if !content.HasElectronicSignature() {
			return RuleResult{Message: "Electronic signature is required before finalization"}
		}
	}
	return RuleResult{Valid: true}
}
