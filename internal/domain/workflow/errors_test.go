package workflow

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NewUnauthorized(), http.StatusUnauthorized},
		{NewMissingField("patient_id"), http.StatusBadRequest},
		{NewPermissionDenied("nope"), http.StatusForbidden},
		{NewNotAssigned(), http.StatusForbidden},
		{NewWorkflowNotFound("x"), http.StatusNotFound},
		{NewRecordNotFound("medical record", "abc"), http.StatusNotFound},
		{NewInvalidTransition(StepDraft, StepFinalized, ActionSubmit), http.StatusBadRequest},
		{NewBusinessRuleFailed("missing signature"), http.StatusBadRequest},
		{NewLocked("insurance hold"), http.StatusLocked},
		{NewConflict("stale version"), http.StatusConflict},
		{NewInternal(errors.New("boom")), http.StatusInternalServerError},
		{errors.New("plain error"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestOutcomeOf(t *testing.T) {
	if OutcomeOf(NewConflict("x")) != OutcomeConflict {
		t.Error("expected conflict outcome")
	}
	if OutcomeOf(errors.New("other")) != OutcomeInternal {
		t.Error("uncategorized errors should map to internal")
	}

	wrapped := fmt.Errorf("saving record: %w", NewLocked("hold"))
	if !IsOutcome(wrapped, OutcomeLocked) {
		t.Error("outcome should survive wrapping")
	}
}

func TestErrorMessages(t *testing.T) {
	if got := NewNotAssigned().Error(); got != "not assigned to this record" {
		t.Errorf("unexpected message: %q", got)
	}
	if got := NewLocked("insurance hold").Error(); got != "record is blocked: insurance hold" {
		t.Errorf("unexpected message: %q", got)
	}
	if got := NewLocked("").Error(); got != "record is blocked" {
		t.Errorf("unexpected message: %q", got)
	}
	if got := NewInvalidTransition(StepDraft, StepFinalized, ActionSubmit).Error(); got != "cannot move from draft to finalized via submit" {
		t.Errorf("unexpected message: %q", got)
	}
}

func TestInternalError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewInternal(cause)
	if !errors.Is(err, cause) {
		t.Error("internal error should wrap its cause")
	}
	if err.Error() != "internal error" {
		t.Errorf("cause must not leak into the message, got %q", err.Error())
	}
}
