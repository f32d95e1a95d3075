package workflow

import (
	"errors"
	"fmt"
	"net/http"
)

// Outcome categorizes a workflow failure for the boundary layer.
type Outcome string

const (
	OutcomeUnauthorized      Outcome = "unauthorized"
	OutcomeMissingField      Outcome = "missing_field"
	OutcomePermissionDenied  Outcome = "permission_denied"
	OutcomeNotAssigned       Outcome = "not_assigned"
	OutcomeWorkflowNotFound  Outcome = "workflow_not_found"
	OutcomeRecordNotFound    Outcome = "record_not_found"
	OutcomeInvalidTransition Outcome = "invalid_transition"
	OutcomeBusinessRule      Outcome = "business_rule_failed"
	OutcomeLocked            Outcome = "locked"
	OutcomeConflict          Outcome = "conflict"
	OutcomeInternal          Outcome = "internal"
)

// Error is a categorized workflow failure. The message is safe to surface to
// callers; internal causes are wrapped and reachable via Unwrap.
type Error struct {
	Outcome Outcome
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Outcome)
}

func (e *Error) Unwrap() error { return e.cause }

func NewUnauthorized() *Error {
	return &Error{Outcome: OutcomeUnauthorized, Message: "authentication required"}
}

func NewMissingField(field string) *Error {
	return &Error{Outcome: OutcomeMissingField, Message: fmt.Sprintf("%s is required", field)}
}

func NewPermissionDenied(msg string) *Error {
	return &Error{Outcome: OutcomePermissionDenied, Message: msg}
}

func NewNotAssigned() *Error {
	return &Error{Outcome: OutcomeNotAssigned, Message: "not assigned to this record"}
}

func NewWorkflowNotFound(name string) *Error {
	return &Error{Outcome: OutcomeWorkflowNotFound, Message: fmt.Sprintf("workflow %q is not registered", name)}
}

func NewRecordNotFound(kind, id string) *Error {
	return &Error{Outcome: OutcomeRecordNotFound, Message: fmt.Sprintf("%s %s not found", kind, id)}
}

func NewInvalidTransition(from, to Step, action Action) *Error {
	return &Error{
		Outcome: OutcomeInvalidTransition,
		Message: fmt.Sprintf("cannot move from %s to %s via %s", from, to, action),
	}
}

func NewBusinessRuleFailed(msg string) *Error {
	return &Error{Outcome: OutcomeBusinessRule, Message: msg}
}

func NewLocked(reason string) *Error {
	msg := "record is blocked"
	if reason != "" {
		msg = fmt.Sprintf("record is blocked: %s", reason)
	}
	return &Error{Outcome: OutcomeLocked, Message: msg}
}

func NewConflict(msg string) *Error {
	return &Error{Outcome: OutcomeConflict, Message: msg}
}

func NewInternal(cause error) *Error {
	return &Error{Outcome: OutcomeInternal, Message: "internal error", cause: cause}
}

// OutcomeOf extracts the outcome category of an error, defaulting to
// OutcomeInternal for uncategorized failures.
func OutcomeOf(err error) Outcome {
	var we *Error
	if errors.As(err, &we) {
		return we.Outcome
	}
	return OutcomeInternal
}

// IsOutcome reports whether the error carries the given outcome.
func IsOutcome(err error, o Outcome) bool {
	return OutcomeOf(err) == o
}

// HTTPStatus maps an error's outcome to the status code the boundary layer
// should respond with.
func HTTPStatus(err error) int {
	switch OutcomeOf(err) {
	case OutcomeUnauthorized:
		return http.StatusUnauthorized
	case OutcomeMissingField, OutcomeInvalidTransition, OutcomeBusinessRule:
		return http.StatusBadRequest
	case OutcomePermissionDenied, OutcomeNotAssigned:
		return http.StatusForbidden
	case OutcomeWorkflowNotFound, OutcomeRecordNotFound:
		return http.StatusNotFound
	case OutcomeLocked:
		return http.StatusLocked
	case OutcomeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
