package workflow

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/pkg/pagination"
)

// Handler exposes the generic workflow engine and registry introspection.
type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := auth.RequireRole(
		auth.RoleDoctor, auth.RoleNurse, auth.RoleBillingStaff,
		auth.RoleInsuranceStaff, auth.RoleReceptionist,
	)

	api.GET("/workflows", h.ListWorkflows, staff)
	api.GET("/workflows/:name/steps", h.GetWorkflowSteps, staff)
	api.POST("/workflows/:name/instances", h.CreateInstance, staff)
	api.GET("/workflows/:name/instances", h.ListInstances, staff)
	api.GET("/instances/:id", h.GetInstance, staff)
	api.POST("/instances/:id/actions", h.ExecuteAction, staff)
}

func (h *Handler) ListWorkflows(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"workflows": h.engine.Registry().Names(),
	})
}

func (h *Handler) GetWorkflowSteps(c echo.Context) error {
	def, err := h.engine.Registry().Get(c.Param("name"))
	if err != nil {
		return echo.NewHTTPError(HTTPStatus(err), err.Error())
	}

	steps := make(map[Step]map[string]interface{}, len(def.Steps))
	for step, spec := range def.Steps {
		steps[step] = map[string]interface{}{
			"allowed_actions": spec.AllowedActions,
			"allowed_roles":   spec.AllowedRoles,
			"transitions":     spec.Transitions,
			"terminal":        def.TerminalSteps[step],
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"name":         def.Name,
		"module":       def.Module,
		"initial_step": def.InitialStep,
		"steps":        steps,
	})
}

type createInstanceRequest struct {
	EntityID string `json:"entity_id"`
}

func (h *Handler) CreateInstance(c echo.Context) error {
	var req createInstanceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.EntityID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "entity_id is required")
	}

	actor := auth.IdentityFromContext(c.Request().Context())
	in, err := h.engine.Initialize(c.Request().Context(), c.Param("name"), req.EntityID, actor)
	if err != nil {
		return echo.NewHTTPError(HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, in)
}

func (h *Handler) ListInstances(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.engine.List(c.Request().Context(), c.Param("name"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetInstance(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	in, err := h.engine.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, in)
}

type executeActionRequest struct {
	Action     Action                 `json:"action"`
	ActionData map[string]interface{} `json:"action_data"`
}

func (h *Handler) ExecuteAction(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req executeActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Action == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "action is required")
	}

	actor := auth.IdentityFromContext(c.Request().Context())
	in, err := h.engine.ExecuteAction(c.Request().Context(), id, req.Action, actor, req.ActionData)
	if err != nil {
		return echo.NewHTTPError(HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, in)
}
