package record

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/domain/workflow"
	"github.com/hms/hms/internal/platform/auth"
)

func testHandler(repo RecordRepository) *Handler {
	return NewHandler(testService(repo), NewGuard())
}

func jsonRequest(method, target string, body interface{}, ident *auth.Identity) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if ident != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), ident))
	}
	return req
}

func TestHandler_CreateRecord(t *testing.T) {
	h := testHandler(newMockRecordRepo())
	doctor := newDoctor()

	body := map[string]interface{}{
		"patient_id":      uuid.New(),
		"priority":        "urgent",
		"chief_complaint": "chest pain",
	}
	e := echo.New()
	req := jsonRequest(http.MethodPost, "/api/v1/records", body, doctor)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreateRecord(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var out MedicalRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Workflow.CurrentStep != workflow.StepDraft {
		t.Errorf("expected draft, got %s", out.Workflow.CurrentStep)
	}
	if out.Priority != "urgent" {
		t.Errorf("expected urgent, got %s", out.Priority)
	}
}

func TestHandler_CreateRecord_BadPriority(t *testing.T) {
	h := testHandler(newMockRecordRepo())

	body := map[string]interface{}{"patient_id": uuid.New(), "priority": "whenever"}
	e := echo.New()
	req := jsonRequest(http.MethodPost, "/api/v1/records", body, newDoctor())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.CreateRecord(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_Transition(t *testing.T) {
	repo := newMockRecordRepo()
	h := testHandler(repo)
	doctor := newDoctor()

	stored := completeRecord()
	if err := h.svc.Create(context.Background(), stored, doctor); err != nil {
		t.Fatalf("create: %v", err)
	}

	body := map[string]interface{}{
		"step":     "doctor_review",
		"action":   "submit",
		"comments": "ready",
	}
	e := echo.New()
	req := jsonRequest(http.MethodPost, "/", body, doctor)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/records/:id/transition")
	c.SetParamNames("id")
	c.SetParamValues(stored.ID.String())

	if err := h.Transition(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var out transitionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Record.Workflow.CurrentStep != workflow.StepDoctorReview {
		t.Errorf("expected doctor_review, got %s", out.Record.Workflow.CurrentStep)
	}
	if out.Basis != BasisOwnerPermission {
		t.Errorf("expected owner_permission basis, got %s", out.Basis)
	}
}

func TestHandler_Transition_ErrorStatuses(t *testing.T) {
	repo := newMockRecordRepo()
	h := testHandler(repo)
	doctor := newDoctor()

	stored := completeRecord()
	if err := h.svc.Create(context.Background(), stored, doctor); err != nil {
		t.Fatalf("create: %v", err)
	}

	tests := []struct {
		name  string
		ident *auth.Identity
		body  map[string]interface{}
		want  int
	}{
		{
			name:  "no identity",
			ident: nil,
			body:  map[string]interface{}{"step": "doctor_review", "action": "submit"},
			want:  http.StatusUnauthorized,
		},
		{
			name:  "stranger",
			ident: &auth.Identity{ID: uuid.New(), Role: auth.RoleDoctor},
			body:  map[string]interface{}{"step": "doctor_review", "action": "submit"},
			want:  http.StatusForbidden,
		},
		{
			name:  "missing step",
			ident: doctor,
			body:  map[string]interface{}{"action": "submit"},
			want:  http.StatusBadRequest,
		},
		{
			name:  "off-graph target",
			ident: doctor,
			body:  map[string]interface{}{"step": "finalized", "action": "finalize"},
			want:  http.StatusForbidden,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := jsonRequest(http.MethodPost, "/", tt.body, tt.ident)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.SetPath("/records/:id/transition")
			c.SetParamNames("id")
			c.SetParamValues(stored.ID.String())

			err := h.Transition(c)
			httpErr, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected HTTP error, got %v", err)
			}
			if httpErr.Code != tt.want {
				t.Errorf("expected %d, got %d (%v)", tt.want, httpErr.Code, httpErr.Message)
			}
		})
	}
}

func TestHandler_Transition_ConflictMapsTo409(t *testing.T) {
	repo := newMockRecordRepo()
	h := testHandler(repo)
	doctor := newDoctor()

	stored := completeRecord()
	if err := h.svc.Create(context.Background(), stored, doctor); err != nil {
		t.Fatalf("create: %v", err)
	}
	repo.forceStale = true

	e := echo.New()
	req := jsonRequest(http.MethodPost, "/", map[string]interface{}{"step": "doctor_review", "action": "submit"}, doctor)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/records/:id/transition")
	c.SetParamNames("id")
	c.SetParamValues(stored.ID.String())

	err := h.Transition(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
}

func TestHandler_GetRecord(t *testing.T) {
	repo := newMockRecordRepo()
	h := testHandler(repo)
	doctor := newDoctor()

	stored := completeRecord()
	if err := h.svc.Create(context.Background(), stored, doctor); err != nil {
		t.Fatalf("create: %v", err)
	}

	e := echo.New()
	req := jsonRequest(http.MethodGet, "/", nil, doctor)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/records/:id")
	c.SetParamNames("id")
	c.SetParamValues(stored.ID.String())

	if err := h.GetRecord(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	// Unknown record maps to 404.
	rec2 := httptest.NewRecorder()
	c2 := e.NewContext(jsonRequest(http.MethodGet, "/", nil, doctor), rec2)
	c2.SetPath("/records/:id")
	c2.SetParamNames("id")
	c2.SetParamValues(uuid.NewString())

	err := h.GetRecord(c2)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestHandler_ListRecords_ByStep(t *testing.T) {
	repo := newMockRecordRepo()
	h := testHandler(repo)
	doctor := newDoctor()

	for i := 0; i < 2; i++ {
		if err := h.svc.Create(context.Background(), completeRecord(), doctor); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	e := echo.New()
	req := jsonRequest(http.MethodGet, fmt.Sprintf("/?step=%s", workflow.StepDraft), nil, doctor)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListRecords(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Total != 2 {
		t.Errorf("expected 2 drafts, got %d", out.Total)
	}
}

func TestHandler_ListRecords_RequiresFilter(t *testing.T) {
	h := testHandler(newMockRecordRepo())

	e := echo.New()
	req := jsonRequest(http.MethodGet, "/", nil, newDoctor())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.ListRecords(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_Blockers(t *testing.T) {
	repo := newMockRecordRepo()
	h := testHandler(repo)
	doctor := newDoctor()

	stored := completeRecord()
	if err := h.svc.Create(context.Background(), stored, doctor); err != nil {
		t.Fatalf("create: %v", err)
	}

	e := echo.New()
	req := jsonRequest(http.MethodPost, "/", map[string]string{"type": "insurance_hold", "reason": "pre-auth pending"}, doctor)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/records/:id/blockers")
	c.SetParamNames("id")
	c.SetParamValues(stored.ID.String())

	if err := h.AddBlocker(c); err != nil {
		t.Fatalf("add blocker: %v", err)
	}

	var out MedicalRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !out.Workflow.HasActiveBlocker() {
		t.Error("expected an active blocker")
	}

	req2 := jsonRequest(http.MethodPost, "/", map[string]string{"type": "insurance_hold"}, doctor)
	rec2 := httptest.NewRecorder()
	c2 := e.NewContext(req2, rec2)
	c2.SetPath("/records/:id/blockers/resolve")
	c2.SetParamNames("id")
	c2.SetParamValues(stored.ID.String())

	if err := h.ResolveBlocker(c2); err != nil {
		t.Fatalf("resolve blocker: %v", err)
	}
	var resolved MedicalRecord
	if err := json.Unmarshal(rec2.Body.Bytes(), &resolved); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resolved.Workflow.HasActiveBlocker() {
		t.Error("blocker should be resolved")
	}
}

func TestHandler_Statistics(t *testing.T) {
	repo := newMockRecordRepo()
	h := testHandler(repo)
	doctor := newDoctor()

	if err := h.svc.Create(context.Background(), completeRecord(), doctor); err != nil {
		t.Fatalf("create: %v", err)
	}

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodGet, "/", nil, doctor), rec)

	if err := h.Statistics(c); err != nil {
		t.Fatalf("statistics: %v", err)
	}
	var stats Statistics
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stats.Total != 1 {
		t.Errorf("expected total 1, got %d", stats.Total)
	}
}
