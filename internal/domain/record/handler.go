package record

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/domain/workflow"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/pkg/pagination"
)

type Handler struct {
	svc   *Service
	guard *Guard
}

func NewHandler(svc *Service, guard *Guard) *Handler {
	return &Handler{svc: svc, guard: guard}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := auth.RequireRole(
		auth.RoleDoctor, auth.RoleNurse, auth.RoleBillingStaff,
		auth.RoleInsuranceStaff, auth.RoleReceptionist,
	)

	g := api.Group("/records", staff)
	g.POST("", h.CreateRecord)
	g.GET("", h.ListRecords)
	g.GET("/workflow/dashboard", h.Dashboard)
	g.GET("/workflow/statistics", h.Statistics)
	g.GET("/:id", h.GetRecord)
	g.GET("/:id/history", h.GetHistory)
	g.POST("/:id/transition", h.Transition)
	g.POST("/:id/blockers", h.AddBlocker)
	g.POST("/:id/blockers/resolve", h.ResolveBlocker)
}

type createRecordRequest struct {
	PatientID          uuid.UUID      `json:"patient_id"`
	RecordNumber       string         `json:"record_number"`
	Priority           string         `json:"priority"`
	ChiefComplaint     *string        `json:"chief_complaint"`
	ClinicalImpression *string        `json:"clinical_impression"`
	TreatmentPlan      *TreatmentPlan `json:"treatment_plan"`
	Diagnoses          []Diagnosis    `json:"diagnoses"`
}

func (h *Handler) CreateRecord(c echo.Context) error {
	var req createRecordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	rec := &MedicalRecord{
		PatientID:          req.PatientID,
		RecordNumber:       req.RecordNumber,
		Priority:           req.Priority,
		ChiefComplaint:     req.ChiefComplaint,
		ClinicalImpression: req.ClinicalImpression,
		Diagnoses:          req.Diagnoses,
	}
	if req.TreatmentPlan != nil {
		rec.TreatmentPlan = *req.TreatmentPlan
	}

	actor := auth.IdentityFromContext(c.Request().Context())
	if err := h.svc.Create(c.Request().Context(), rec, actor); err != nil {
		return echo.NewHTTPError(workflow.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) GetRecord(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rec, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(workflow.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) GetHistory(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rec, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(workflow.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"record_id":    rec.ID,
		"current_step": rec.Workflow.CurrentStep,
		"step_history": rec.Workflow.StepHistory,
	})
}

func (h *Handler) ListRecords(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()

	if step := c.QueryParam("step"); step != "" {
		items, total, err := h.svc.RecordsByStep(ctx, workflow.Step(step), pg.Limit, pg.Offset)
		if err != nil {
			return echo.NewHTTPError(workflow.HTTPStatus(err), err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	}
	if assignee := c.QueryParam("assignee"); assignee != "" {
		uid, err := uuid.Parse(assignee)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid assignee")
		}
		items, total, err := h.svc.records.ListByAssignee(ctx, uid, pg.Limit, pg.Offset)
		if err != nil {
			return echo.NewHTTPError(workflow.HTTPStatus(err), err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	}
	if owner := c.QueryParam("owner"); owner != "" {
		uid, err := uuid.Parse(owner)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid owner")
		}
		items, total, err := h.svc.records.ListByOwner(ctx, uid, pg.Limit, pg.Offset)
		if err != nil {
			return echo.NewHTTPError(workflow.HTTPStatus(err), err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	}
	return echo.NewHTTPError(http.StatusBadRequest, "step, assignee or owner query parameter is required")
}

type transitionRequest struct {
	Step     workflow.Step   `json:"step"`
	Action   workflow.Action `json:"action"`
	Comments string          `json:"comments"`
}

type transitionResponse struct {
	Record   *MedicalRecord `json:"record"`
	Basis    AccessBasis    `json:"access_basis"`
	Warnings []string       `json:"warnings,omitempty"`
}

func (h *Handler) Transition(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Step == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "workflow step is required")
	}
	if req.Action == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "workflow action is required")
	}

	ctx := c.Request().Context()
	actor := auth.IdentityFromContext(ctx)

	rec, err := h.svc.Get(ctx, id)
	if err != nil {
		return echo.NewHTTPError(workflow.HTTPStatus(err), err.Error())
	}
	decision, err := h.guard.Authorize(rec, actor, req.Action, req.Step)
	if err != nil {
		return echo.NewHTTPError(workflow.HTTPStatus(err), err.Error())
	}

	updated, err := h.svc.Transition(ctx, id, req.Step, actor, req.Action, req.Comments)
	if err != nil {
		return echo.NewHTTPError(workflow.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, transitionResponse{
		Record:   updated,
		Basis:    decision.Basis,
		Warnings: decision.Warnings,
	})
}

type blockerRequest struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func (h *Handler) AddBlocker(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req blockerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	actor := auth.IdentityFromContext(c.Request().Context())
	rec, err := h.svc.AddBlocker(c.Request().Context(), id, actor, req.Type, req.Reason)
	if err != nil {
		return echo.NewHTTPError(workflow.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ResolveBlocker(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req blockerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	actor := auth.IdentityFromContext(c.Request().Context())
	rec, err := h.svc.ResolveBlocker(c.Request().Context(), id, actor, req.Type)
	if err != nil {
		return echo.NewHTTPError(workflow.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) Dashboard(c echo.Context) error {
	pg := pagination.FromContext(c)
	actor := auth.IdentityFromContext(c.Request().Context())
	dash, err := h.svc.Dashboard(c.Request().Context(), actor, pg.Limit)
	if err != nil {
		return echo.NewHTTPError(workflow.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, dash)
}

func (h *Handler) Statistics(c echo.Context) error {
	stats, err := h.svc.Statistics(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(workflow.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}
